// Package app owns the process-lifetime resources of the evaluator: the
// financial rules, the embedding model, the proposal collection and the two
// trained classifier artifacts. They are loaded once, before the HTTP
// listener starts, and shared read-only by every request.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xhad/evaluator/pkg/classifier"
	"github.com/xhad/evaluator/pkg/config"
	"github.com/xhad/evaluator/pkg/llm"
	"github.com/xhad/evaluator/pkg/rules"
	"github.com/xhad/evaluator/pkg/store"
)

// Embedder is the embedding model as the rest of the application sees it.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Probe(ctx context.Context) error
	Dimension() int
}

type App struct {
	Config *config.Config
	Logger *slog.Logger

	Rules      *rules.FinancialRules
	Embedder   Embedder
	Proposals  store.Collection
	RiskModel  *classifier.RiskModel
	Vectorizer *classifier.Vectorizer
}

type Option func(*loader)

type loader struct {
	embedder   Embedder
	collection store.Collection
}

// WithEmbedder uses e instead of constructing an embedder from config. The
// probe still runs.
func WithEmbedder(e Embedder) Option {
	return func(l *loader) {
		l.embedder = e
	}
}

// WithCollection uses c instead of opening the configured vector store.
func WithCollection(c store.Collection) Option {
	return func(l *loader) {
		l.collection = c
	}
}

// Load acquires every startup resource in order. The first failure aborts
// the whole load; anything already opened is closed again.
func Load(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts ...Option) (*App, error) {
	var l loader
	for _, opt := range opts {
		opt(&l)
	}

	a := &App{Config: cfg, Logger: logger}
	start := time.Now()
	logger.Info("Loading models and data...")

	steps := []struct {
		name string
		run  func(context.Context) error
	}{
		{"financial rules", a.loadRules},
		{"embedding model", func(ctx context.Context) error { return a.loadEmbedder(ctx, l.embedder) }},
		{"vector store", func(ctx context.Context) error { return a.openCollection(ctx, l.collection) }},
		{"risk model", a.loadRiskModel},
		{"vectorizer", a.loadVectorizer},
	}

	for _, step := range steps {
		stepStart := time.Now()
		if err := step.run(ctx); err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to load %s: %w", step.name, err)
		}
		logger.Debug("Loaded startup resource.", "resource", step.name, "elapsed", time.Since(stepStart))
	}

	if err := a.RiskModel.CheckCompatible(a.Vectorizer); err != nil {
		a.Close()
		return nil, err
	}

	logger.Info("All models loaded. API is ready.", "elapsed", time.Since(start))
	return a, nil
}

func (a *App) loadRules(context.Context) error {
	r, err := rules.Load(a.Config.Artifacts.Rules)
	if err != nil {
		return err
	}
	a.Rules = r
	a.Logger.Info("Financial rules loaded.", "path", a.Config.Artifacts.Rules, "categories", len(r.Categories), "currency", r.Currency)
	return nil
}

func (a *App) loadEmbedder(ctx context.Context, e Embedder) error {
	if e == nil {
		emb, err := llm.NewEmbedderWithConfig(llm.EmbedderConfig{
			Provider:  a.Config.Embedding.Provider,
			Model:     a.Config.Embedding.Model,
			BaseURL:   a.Config.Embedding.BaseURL,
			APIKey:    a.Config.Embedding.APIKey,
			Dimension: a.Config.Embedding.Dimension,
		})
		if err != nil {
			return err
		}
		e = emb
	}

	if err := e.Probe(ctx); err != nil {
		return err
	}
	a.Embedder = e
	a.Logger.Info("Embedding model ready.", "provider", a.Config.Embedding.Provider, "model", a.Config.Embedding.Model, "dimension", e.Dimension())
	return nil
}

func (a *App) openCollection(ctx context.Context, c store.Collection) error {
	if c == nil {
		var err error
		c, err = store.Open(ctx, store.VectorStoreConfig{
			Driver:     a.Config.VectorStore.Driver,
			ConnString: a.Config.VectorStore.URL,
			Host:       a.Config.VectorStore.Host,
			Port:       a.Config.VectorStore.Port,
			APIKey:     a.Config.VectorStore.APIKey,
			Collection: a.Config.VectorStore.Collection,
			VectorDim:  a.Embedder.Dimension(),
		})
		if err != nil {
			return err
		}
	}
	a.Proposals = c

	n, err := c.Count(ctx)
	if err != nil {
		return err
	}
	a.Logger.Info("Proposal collection opened.", "driver", a.Config.VectorStore.Driver, "collection", a.Config.VectorStore.Collection, "proposals", n)
	return nil
}

func (a *App) loadRiskModel(context.Context) error {
	m, err := classifier.LoadRiskModel(a.Config.Artifacts.RiskModel)
	if err != nil {
		return err
	}
	a.RiskModel = m
	a.Logger.Info("Risk model loaded.", "path", a.Config.Artifacts.RiskModel, "classes", m.Classes, "features", m.NumFeatures())
	return nil
}

func (a *App) loadVectorizer(context.Context) error {
	v, err := classifier.LoadVectorizer(a.Config.Artifacts.Vectorizer)
	if err != nil {
		return err
	}
	a.Vectorizer = v
	a.Logger.Info("Vectorizer loaded.", "path", a.Config.Artifacts.Vectorizer, "features", v.NumFeatures())
	return nil
}

// Close releases resources acquired by Load. It is safe to call on a
// partially loaded App.
func (a *App) Close() error {
	if a.Proposals == nil {
		return nil
	}
	err := a.Proposals.Close()
	a.Proposals = nil
	return err
}
