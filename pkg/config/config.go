package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

type ServerConfig struct {
	Host            string `yaml:"host"`
	Port            int    `yaml:"port"`
	Title           string `yaml:"title"`
	MaxUploadMB     int64  `yaml:"max_upload_mb"`
	ShutdownTimeout int    `yaml:"shutdown_timeout"` // seconds
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type EmbeddingConfig struct {
	Provider  string `yaml:"provider"`
	BaseURL   string `yaml:"base_url"`
	Model     string `yaml:"model"`
	APIKey    string `yaml:"api_key"`
	Dimension int    `yaml:"dimension"`
}

type VectorStoreConfig struct {
	Driver     string `yaml:"driver"`
	URL        string `yaml:"url"`
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	APIKey     string `yaml:"api_key"`
	Collection string `yaml:"collection"`
}

type ArtifactsConfig struct {
	Rules      string `yaml:"rules"`
	RiskModel  string `yaml:"risk_model"`
	Vectorizer string `yaml:"vectorizer"`
}

type WebConfig struct {
	StaticDir    string `yaml:"static_dir"`
	TemplatesDir string `yaml:"templates_dir"`
}

type IndexerConfig struct {
	ChunkSize       int      `yaml:"chunk_size"`
	ChunkOverlap    int      `yaml:"chunk_overlap"`
	Workers         int      `yaml:"workers"`
	RateLimit       float64  `yaml:"rate_limit"`
	Extensions      []string `yaml:"extensions"`
	Lowercase       bool     `yaml:"lowercase"`
	RemoveStopwords bool     `yaml:"remove_stopwords"`
	// Stopwords extends the built-in English list when remove_stopwords is set.
	Stopwords []string `yaml:"stopwords"`
}

type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Log         LogConfig         `yaml:"log"`
	Embedding   EmbeddingConfig   `yaml:"embedding"`
	VectorStore VectorStoreConfig `yaml:"vector_store"`
	Artifacts   ArtifactsConfig   `yaml:"artifacts"`
	Web         WebConfig         `yaml:"web"`
	Indexer     IndexerConfig     `yaml:"indexer"`
}

func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func LoadConfig(path string) (*Config, error) {
	// If no path provided, try default locations
	if path == "" {
		locations := []string{
			"config.yaml",
			"config.yml",
			filepath.Join(os.Getenv("HOME"), ".config/evaluator/config.yaml"),
			"/etc/evaluator/config.yaml",
		}

		for _, loc := range locations {
			if _, err := os.Stat(loc); err == nil {
				path = loc
				break
			}
		}
	}

	if path == "" {
		return getDefaultConfig()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	mergeWithEnv(&config)
	applyDefaults(&config)

	return &config, nil
}

func getDefaultConfig() (*Config, error) {
	config := &Config{}
	mergeWithEnv(config)
	applyDefaults(config)
	return config, nil
}

func applyDefaults(config *Config) {
	if config.Server.Host == "" {
		config.Server.Host = "0.0.0.0"
	}
	if config.Server.Port == 0 {
		config.Server.Port = 8000
	}
	if config.Server.Title == "" {
		config.Server.Title = "AI R&D Proposal Evaluator"
	}
	if config.Server.MaxUploadMB == 0 {
		config.Server.MaxUploadMB = 32
	}
	if config.Server.ShutdownTimeout == 0 {
		config.Server.ShutdownTimeout = 10
	}

	if config.Log.Level == "" {
		config.Log.Level = "info"
	}
	if config.Log.Format == "" {
		config.Log.Format = "text"
	}

	if config.Embedding.Provider == "" {
		config.Embedding.Provider = "ollama"
	}
	if config.Embedding.BaseURL == "" && config.Embedding.Provider == "ollama" {
		config.Embedding.BaseURL = "http://localhost:11434"
	}
	if config.Embedding.Model == "" {
		config.Embedding.Model = "all-minilm"
	}
	if config.Embedding.Dimension == 0 {
		config.Embedding.Dimension = 384
	}

	if config.VectorStore.Driver == "" {
		config.VectorStore.Driver = "pgvector"
	}
	if config.VectorStore.Collection == "" {
		config.VectorStore.Collection = "proposals"
	}
	if config.VectorStore.Driver == "qdrant" {
		if config.VectorStore.Host == "" {
			config.VectorStore.Host = "localhost"
		}
		if config.VectorStore.Port == 0 {
			config.VectorStore.Port = 6334
		}
	}

	if config.Artifacts.Rules == "" {
		config.Artifacts.Rules = "financial_rules.yaml"
	}
	if config.Artifacts.RiskModel == "" {
		config.Artifacts.RiskModel = "trained_models/risk_model.json"
	}
	if config.Artifacts.Vectorizer == "" {
		config.Artifacts.Vectorizer = "trained_models/tfidf_vectorizer.json"
	}

	if config.Web.StaticDir == "" {
		config.Web.StaticDir = "web/static"
	}
	if config.Web.TemplatesDir == "" {
		config.Web.TemplatesDir = "web/templates"
	}

	if config.Indexer.ChunkSize == 0 {
		config.Indexer.ChunkSize = 1000
	}
	if config.Indexer.ChunkOverlap == 0 {
		config.Indexer.ChunkOverlap = 200
	}
	if config.Indexer.Workers == 0 {
		config.Indexer.Workers = 4
	}
	if config.Indexer.RateLimit == 0 {
		config.Indexer.RateLimit = 5.0
	}
	if len(config.Indexer.Extensions) == 0 {
		config.Indexer.Extensions = []string{".pdf", ".html", ".htm", ".txt", ".md"}
	}
}

func mergeWithEnv(config *Config) {
	if baseURL := os.Getenv("OLLAMA_BASE_URL"); baseURL != "" {
		config.Embedding.BaseURL = baseURL
	}
	if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" {
		config.Embedding.APIKey = apiKey
	}
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		config.VectorStore.URL = dbURL
	}
	if apiKey := os.Getenv("QDRANT_API_KEY"); apiKey != "" {
		config.VectorStore.APIKey = apiKey
	}
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		config.Log.Level = level
	}
}
