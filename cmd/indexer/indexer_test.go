package main

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xhad/evaluator/internal/app"
	"github.com/xhad/evaluator/internal/models"
	"github.com/xhad/evaluator/pkg/config"
	"github.com/xhad/evaluator/pkg/parser"
	"github.com/xhad/evaluator/pkg/processor"
	"golang.org/x/time/rate"
)

type fakeEmbedder struct {
	mu    sync.Mutex
	calls [][]string
}

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	f.calls = append(f.calls, texts)
	f.mu.Unlock()

	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{3, 4}
	}
	return out, nil
}

func (f *fakeEmbedder) Probe(context.Context) error { return nil }

func (f *fakeEmbedder) Dimension() int { return 2 }

type fakeCollection struct {
	records []models.ProposalRecord
	upserts int
	query   []float32
}

func (f *fakeCollection) Upsert(_ context.Context, records []models.ProposalRecord) error {
	f.upserts++
	f.records = append(f.records, records...)
	return nil
}

func (f *fakeCollection) Query(_ context.Context, embedding []float32, limit int) ([]models.Match, error) {
	f.query = embedding
	return []models.Match{{ID: "solar-farm", Title: "Solar Farm", Score: 0.9}}, nil
}

func (f *fakeCollection) Delete(context.Context, string) error { return nil }

func (f *fakeCollection) Count(context.Context) (int64, error) { return int64(len(f.records)), nil }

func (f *fakeCollection) Close() error { return nil }

func newTestIndexer(emb *fakeEmbedder, coll *fakeCollection) *indexer {
	return &indexer{
		parser:     parser.NewWithConfig(parser.ParserConfig{}),
		processor:  processor.NewWithConfig(processor.ProcessorConfig{ChunkSize: 200, ChunkOverlap: 20, MinChunkLength: 10}),
		embedder:   emb,
		collection: coll,
		limiter:    rate.NewLimiter(rate.Inf, 1),
		logger:     app.NewLogger("error", "text", io.Discard),
		workers:    2,
	}
}

func writeProposals(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		"Solar Farm.txt":   "Solar Farm\nA pilot for agrivoltaic solar farms on marginal land.",
		"nested/wind.md":   "# Offshore Wind\nFloating turbine foundations for deep water sites.",
		"blank.txt":        "   ",
		"budget.xlsx":      "not a proposal",
		"nested/notes.htm": "<html><head><title>Grid Notes</title></head><body><p>Storage for the grid edge.</p></body></html>",
	}
	for name, body := range files {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	}
	return dir
}

func TestCollectFiles(t *testing.T) {
	dir := writeProposals(t)
	ix := newTestIndexer(&fakeEmbedder{}, &fakeCollection{})

	files, err := ix.collectFiles(dir)
	require.NoError(t, err)

	assert.Equal(t, []string{
		filepath.Join(dir, "Solar Farm.txt"),
		filepath.Join(dir, "blank.txt"),
		filepath.Join(dir, "nested/notes.htm"),
		filepath.Join(dir, "nested/wind.md"),
	}, files)

	_, err = ix.collectFiles(filepath.Join(dir, "missing"))
	assert.Error(t, err)
}

func TestIndexDirectory(t *testing.T) {
	dir := writeProposals(t)
	emb := &fakeEmbedder{}
	coll := &fakeCollection{}
	ix := newTestIndexer(emb, coll)

	var parsed int
	var mu sync.Mutex
	ix.onParsed = func() {
		mu.Lock()
		parsed++
		mu.Unlock()
	}

	var stats indexStats
	files, err := ix.collectFiles(dir)
	require.NoError(t, err)

	proposals, err := ix.parseFiles(context.Background(), files, &stats)
	require.NoError(t, err)
	assert.Len(t, proposals, 3)
	assert.Equal(t, 1, stats.Skipped)
	assert.Equal(t, 4, parsed)

	require.NoError(t, ix.index(context.Background(), proposals, &stats))
	assert.Equal(t, 3, stats.Upserted)
	assert.Equal(t, 3, stats.Chunks)
	assert.Equal(t, 1, coll.upserts)
	require.Len(t, coll.records, 3)

	ids := make([]string, 0, len(coll.records))
	for _, r := range coll.records {
		ids = append(ids, r.ID)
		assert.InDeltaSlice(t, []float32{0.6, 0.8}, r.Embedding, 1e-6)
		assert.Equal(t, 1, r.Metadata["chunks"])
		assert.False(t, r.IndexedAt.IsZero())
	}
	assert.Equal(t, []string{"solar-farm", "notes", "wind"}, ids)
	assert.Equal(t, "Solar Farm", coll.records[0].Title)
	assert.Equal(t, "Solar Farm A pilot for agrivoltaic solar farms on marginal land.", coll.records[0].Summary)
}

func TestIndexUUIDIDs(t *testing.T) {
	coll := &fakeCollection{}
	ix := newTestIndexer(&fakeEmbedder{}, coll)
	ix.uuidIDs = true

	var stats indexStats
	err := ix.index(context.Background(), []models.Proposal{
		{ID: "grid-storage", Title: "Grid Storage", Content: "Flow batteries for substations."},
	}, &stats)
	require.NoError(t, err)
	require.Len(t, coll.records, 1)

	_, err = uuid.Parse(coll.records[0].ID)
	assert.NoError(t, err)
	assert.Equal(t, "grid-storage", coll.records[0].Metadata["stem"])
}

func TestIndexSkipsEmptyProposals(t *testing.T) {
	emb := &fakeEmbedder{}
	coll := &fakeCollection{}
	ix := newTestIndexer(emb, coll)

	var stats indexStats
	err := ix.index(context.Background(), []models.Proposal{{ID: "empty", Content: " "}}, &stats)
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Skipped)
	assert.Empty(t, emb.calls)
	assert.Zero(t, coll.upserts)
}

func TestIndexCancelled(t *testing.T) {
	ix := newTestIndexer(&fakeEmbedder{}, &fakeCollection{})
	ix.limiter = rate.NewLimiter(1, 1)
	ix.limiter.Allow()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var stats indexStats
	err := ix.index(ctx, []models.Proposal{{ID: "p", Content: "Some proposal text here."}}, &stats)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewProcessor(t *testing.T) {
	emb := &fakeEmbedder{}
	ix := newTestIndexer(emb, &fakeCollection{})
	ix.processor = newProcessor(config.IndexerConfig{
		ChunkSize:       1000,
		ChunkOverlap:    200,
		Lowercase:       true,
		RemoveStopwords: true,
		Stopwords:       []string{"Pilot"},
	})

	var stats indexStats
	err := ix.index(context.Background(), []models.Proposal{
		{ID: "solar-farm", Title: "Solar Farm", Content: "A Pilot for the solar farms on marginal land."},
	}, &stats)
	require.NoError(t, err)

	require.Len(t, emb.calls, 1)
	assert.Equal(t, []string{"solar farms marginal land."}, emb.calls[0])
}

func TestQuery(t *testing.T) {
	emb := &fakeEmbedder{}
	coll := &fakeCollection{}
	ix := newTestIndexer(emb, coll)

	matches, err := ix.query(context.Background(), "solar", 3)
	require.NoError(t, err)

	assert.Equal(t, [][]string{{"solar"}}, emb.calls)
	assert.InDeltaSlice(t, []float32{0.6, 0.8}, coll.query, 1e-6)
	require.Len(t, matches, 1)
	assert.Equal(t, "solar-farm", matches[0].ID)
}
