package main

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/xhad/evaluator/internal/app"
	"github.com/xhad/evaluator/internal/models"
	"github.com/xhad/evaluator/pkg/llm"
	"github.com/xhad/evaluator/pkg/parser"
	"github.com/xhad/evaluator/pkg/processor"
	"github.com/xhad/evaluator/pkg/store"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

const (
	summaryLength = 300
	upsertBatch   = 32
)

type indexer struct {
	parser     *parser.Parser
	processor  processor.Processor
	embedder   app.Embedder
	collection store.Collection
	limiter    *rate.Limiter
	logger     *slog.Logger

	workers int
	uuidIDs bool

	// progress callbacks, optional
	onParsed  func()
	onIndexed func()
}

type indexStats struct {
	Files    int
	Parsed   int
	Skipped  int
	Chunks   int
	Upserted int
}

// collectFiles lists the supported proposal files under root in a stable order.
func (ix *indexer) collectFiles(root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !ix.parser.Supports(path) {
			return nil
		}
		files = append(files, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", root, err)
	}
	sort.Strings(files)
	return files, nil
}

// parseFiles extracts every file on a bounded worker group. Files that fail
// to parse are logged and skipped.
func (ix *indexer) parseFiles(ctx context.Context, files []string, stats *indexStats) ([]models.Proposal, error) {
	results := make([]*models.Proposal, len(files))

	var mu sync.Mutex
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(ix.workers)

	for i, file := range files {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			proposal, err := ix.parser.ParseFile(file)
			if err != nil {
				ix.logger.Warn("Skipping proposal", "file", file, "error", err)
				mu.Lock()
				stats.Skipped++
				mu.Unlock()
			} else {
				results[i] = proposal
			}
			if ix.onParsed != nil {
				ix.onParsed()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	proposals := make([]models.Proposal, 0, len(results))
	for _, p := range results {
		if p != nil {
			proposals = append(proposals, *p)
		}
	}
	return proposals, nil
}

func (ix *indexer) parseURLs(ctx context.Context, urls []string, stats *indexStats) []models.Proposal {
	var proposals []models.Proposal
	for _, u := range urls {
		proposal, err := ix.parser.ParseURL(ctx, u)
		if err != nil {
			ix.logger.Warn("Skipping proposal", "url", u, "error", err)
			stats.Skipped++
			continue
		}
		proposals = append(proposals, *proposal)
		if ix.onParsed != nil {
			ix.onParsed()
		}
	}
	return proposals
}

// index chunks, embeds and stores the proposals. Each proposal is stored as
// the normalized mean of its chunk embeddings.
func (ix *indexer) index(ctx context.Context, proposals []models.Proposal, stats *indexStats) error {
	processed, err := ix.processor.Process(proposals)
	if err != nil {
		return fmt.Errorf("failed to process proposals: %w", err)
	}

	batch := make([]models.ProposalRecord, 0, upsertBatch)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := ix.collection.Upsert(ctx, batch); err != nil {
			return err
		}
		stats.Upserted += len(batch)
		batch = batch[:0]
		return nil
	}

	for _, pp := range processed {
		if len(pp.Chunks) == 0 {
			ix.logger.Warn("Skipping proposal without text", "id", pp.ID)
			stats.Skipped++
			continue
		}

		if err := ix.limiter.Wait(ctx); err != nil {
			return err
		}
		embeddings, err := ix.embedder.Embed(ctx, pp.Chunks)
		if err != nil {
			return fmt.Errorf("failed to embed proposal %s: %w", pp.ID, err)
		}
		stats.Chunks += len(pp.Chunks)

		batch = append(batch, ix.record(pp, llm.MeanPool(embeddings)))
		if len(batch) == upsertBatch {
			if err := flush(); err != nil {
				return err
			}
		}
		if ix.onIndexed != nil {
			ix.onIndexed()
		}
	}

	return flush()
}

func (ix *indexer) record(pp models.ProcessedProposal, embedding []float32) models.ProposalRecord {
	id := pp.ID
	metadata := map[string]interface{}{}
	for k, v := range pp.Metadata {
		metadata[k] = v
	}
	metadata["chunks"] = len(pp.Chunks)

	if ix.uuidIDs {
		metadata["stem"] = pp.ID
		id = uuid.NewString()
	}

	return models.ProposalRecord{
		ID:        id,
		Title:     pp.Title,
		Source:    pp.Source,
		Summary:   processor.Summary(pp.Content, summaryLength),
		Embedding: embedding,
		Metadata:  metadata,
		IndexedAt: time.Now().UTC(),
	}
}

// query embeds text and returns the closest stored proposals.
func (ix *indexer) query(ctx context.Context, text string, limit int) ([]models.Match, error) {
	embeddings, err := ix.embedder.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(embeddings) == 0 {
		return nil, fmt.Errorf("no embedding returned for query")
	}
	return ix.collection.Query(ctx, llm.MeanPool(embeddings), limit)
}
