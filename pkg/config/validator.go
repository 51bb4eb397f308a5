package config

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}$`)

type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	// Validate server config
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errors = append(errors, ValidationError{
			Field:   "server.port",
			Message: "port must be between 1 and 65535",
		})
	}

	if c.Server.MaxUploadMB < 1 {
		errors = append(errors, ValidationError{
			Field:   "server.max_upload_mb",
			Message: "max_upload_mb must be positive",
		})
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errors = append(errors, ValidationError{
			Field:   "log.level",
			Message: fmt.Sprintf("unknown log level: %s", c.Log.Level),
		})
	}

	// Validate embedding config
	switch c.Embedding.Provider {
	case "ollama":
		if c.Embedding.BaseURL == "" {
			errors = append(errors, ValidationError{
				Field:   "embedding.base_url",
				Message: "Ollama base URL is required",
			})
		} else if u, err := url.Parse(c.Embedding.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
			errors = append(errors, ValidationError{
				Field:   "embedding.base_url",
				Message: "invalid Ollama base URL",
			})
		}
	case "openai":
		if c.Embedding.APIKey == "" {
			errors = append(errors, ValidationError{
				Field:   "embedding.api_key",
				Message: "api_key is required for the openai provider",
			})
		}
	default:
		errors = append(errors, ValidationError{
			Field:   "embedding.provider",
			Message: fmt.Sprintf("unknown embedding provider: %s", c.Embedding.Provider),
		})
	}

	if c.Embedding.Dimension < 1 {
		errors = append(errors, ValidationError{
			Field:   "embedding.dimension",
			Message: "dimension must be positive",
		})
	}

	// Validate vector store config
	switch c.VectorStore.Driver {
	case "pgvector":
		if c.VectorStore.URL == "" {
			errors = append(errors, ValidationError{
				Field:   "vector_store.url",
				Message: "database URL is required for the pgvector driver",
			})
		} else if u, err := url.Parse(c.VectorStore.URL); err != nil || !strings.HasPrefix(u.Scheme, "postgres") {
			errors = append(errors, ValidationError{
				Field:   "vector_store.url",
				Message: "invalid database URL",
			})
		}
	case "qdrant":
		if c.VectorStore.Host == "" {
			errors = append(errors, ValidationError{
				Field:   "vector_store.host",
				Message: "qdrant host is required",
			})
		}
	default:
		errors = append(errors, ValidationError{
			Field:   "vector_store.driver",
			Message: fmt.Sprintf("unknown vector store driver: %s", c.VectorStore.Driver),
		})
	}

	if !identifierPattern.MatchString(c.VectorStore.Collection) {
		errors = append(errors, ValidationError{
			Field:   "vector_store.collection",
			Message: "collection must be a plain identifier",
		})
	}

	// Validate indexer config
	if c.Indexer.ChunkSize < 1 {
		errors = append(errors, ValidationError{
			Field:   "indexer.chunk_size",
			Message: "chunk_size must be positive",
		})
	}

	if c.Indexer.ChunkOverlap < 0 || c.Indexer.ChunkOverlap >= c.Indexer.ChunkSize {
		errors = append(errors, ValidationError{
			Field:   "indexer.chunk_overlap",
			Message: "chunk_overlap must be non-negative and less than chunk_size",
		})
	}

	if c.Indexer.Workers < 1 {
		errors = append(errors, ValidationError{
			Field:   "indexer.workers",
			Message: "workers must be positive",
		})
	}

	if c.Indexer.RateLimit <= 0 {
		errors = append(errors, ValidationError{
			Field:   "indexer.rate_limit",
			Message: "rate_limit must be positive",
		})
	}

	for _, ext := range c.Indexer.Extensions {
		if !strings.HasPrefix(ext, ".") {
			errors = append(errors, ValidationError{
				Field:   "indexer.extensions",
				Message: fmt.Sprintf("invalid extension format: %s", ext),
			})
		}
	}

	return errors
}
