package llm

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// EmbedderConfig represents the configuration for an embedding backend.
type EmbedderConfig struct {
	Provider  string // "ollama" or "openai"
	Model     string
	BaseURL   string
	APIKey    string
	Dimension int
}

// embeddingClient is the part of a langchaingo model the embedder needs.
type embeddingClient interface {
	CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error)
}

// Embedder produces sentence embeddings of a fixed dimension.
type Embedder struct {
	Config EmbedderConfig
	client embeddingClient
}

func NewEmbedderWithConfig(config EmbedderConfig) (*Embedder, error) {
	if config.Provider == "" {
		config.Provider = "ollama"
	}
	if config.Model == "" {
		config.Model = "all-minilm"
	}
	if config.Dimension == 0 {
		config.Dimension = 384
	}

	var (
		client embeddingClient
		err    error
	)
	switch config.Provider {
	case "ollama":
		if config.BaseURL == "" {
			config.BaseURL = "http://localhost:11434" // Default Ollama URL
		}
		client, err = ollama.New(ollama.WithModel(config.Model), ollama.WithServerURL(config.BaseURL))
	case "openai":
		opts := []openai.Option{
			openai.WithToken(config.APIKey),
			openai.WithEmbeddingModel(config.Model),
		}
		if config.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(config.BaseURL))
		}
		client, err = openai.New(opts...)
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", config.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to initialize %s embedder: %w", config.Provider, err)
	}

	return &Embedder{
		Config: config,
		client: client,
	}, nil
}

func (e *Embedder) Dimension() int {
	return e.Config.Dimension
}

// Embed returns one vector per input text.
func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	embeddings, err := e.client.CreateEmbedding(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("failed to create embeddings: %w", err)
	}
	if len(embeddings) != len(texts) {
		return nil, fmt.Errorf("backend returned %d embeddings for %d texts", len(embeddings), len(texts))
	}

	for _, emb := range embeddings {
		if len(emb) != e.Config.Dimension {
			return nil, fmt.Errorf("%w: model %s returned %d, expected %d",
				ErrDimensionMismatch, e.Config.Model, len(emb), e.Config.Dimension)
		}
	}
	return embeddings, nil
}

// Probe embeds a short text to confirm the backend is reachable and serves
// vectors of the configured dimension.
func (e *Embedder) Probe(ctx context.Context) error {
	_, err := e.Embed(ctx, []string{"proposal evaluator readiness probe"})
	return err
}

// MeanPool averages equally sized vectors and scales the result to unit length.
func MeanPool(embeddings [][]float32) []float32 {
	if len(embeddings) == 0 {
		return nil
	}

	pooled := make([]float32, len(embeddings[0]))
	for _, emb := range embeddings {
		for i, x := range emb {
			pooled[i] += x
		}
	}

	var norm float64
	for i := range pooled {
		pooled[i] /= float32(len(embeddings))
		norm += float64(pooled[i]) * float64(pooled[i])
	}
	if norm == 0 {
		return pooled
	}

	norm = math.Sqrt(norm)
	for i := range pooled {
		pooled[i] = float32(float64(pooled[i]) / norm)
	}
	return pooled
}
