package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	"github.com/xhad/evaluator/internal/models"
)

type VectorStore struct {
	config VectorStoreConfig
	pool   *pgxpool.Pool
}

func NewWithConfig(ctx context.Context, config VectorStoreConfig) (*VectorStore, error) {
	if config.Collection == "" {
		config.Collection = "proposals"
	}
	if config.VectorDim == 0 {
		config.VectorDim = 384 // all-MiniLM-L6-v2
	}
	if config.SearchLimit == 0 {
		config.SearchLimit = 5
	}

	pool, err := pgxpool.New(ctx, config.ConnString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to reach database: %w", err)
	}

	vs := &VectorStore{
		config: config,
		pool:   pool,
	}

	if err := vs.initialize(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return vs, nil
}

func (vs *VectorStore) initialize(ctx context.Context) error {
	// Enable pgvector extension
	_, err := vs.pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector")
	if err != nil {
		return fmt.Errorf("failed to create vector extension: %w", err)
	}

	createTable := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			title TEXT,
			source TEXT,
			summary TEXT,
			embedding vector(%d) NOT NULL,
			metadata JSONB,
			indexed_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, vs.config.Collection, vs.config.VectorDim)

	_, err = vs.pool.Exec(ctx, createTable)
	if err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}

	// An existing table may predate a model change.
	var dim int
	err = vs.pool.QueryRow(ctx, `
		SELECT atttypmod FROM pg_attribute
		WHERE attrelid = $1::text::regclass AND attname = 'embedding'`,
		vs.config.Collection).Scan(&dim)
	if err != nil {
		return fmt.Errorf("failed to inspect table: %w", err)
	}
	if dim != vs.config.VectorDim {
		return fmt.Errorf("%w: table %s stores vector(%d), embedder produces %d",
			ErrDimensionMismatch, vs.config.Collection, dim, vs.config.VectorDim)
	}

	createIndex := fmt.Sprintf(`
		CREATE INDEX IF NOT EXISTS %s_embedding_idx
		ON %s
		USING hnsw (embedding vector_cosine_ops)`,
		vs.config.Collection, vs.config.Collection)

	_, err = vs.pool.Exec(ctx, createIndex)
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}

	return nil
}

func (vs *VectorStore) Upsert(ctx context.Context, records []models.ProposalRecord) error {
	if err := checkDim(records, vs.config.VectorDim); err != nil {
		return err
	}

	tx, err := vs.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	stmt := fmt.Sprintf(`
		INSERT INTO %s (id, title, source, summary, embedding, metadata, indexed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			source = EXCLUDED.source,
			summary = EXCLUDED.summary,
			embedding = EXCLUDED.embedding,
			metadata = EXCLUDED.metadata,
			indexed_at = EXCLUDED.indexed_at`,
		vs.config.Collection)

	for _, r := range records {
		_, err = tx.Exec(ctx, stmt,
			r.ID,
			sanitizeUTF8(r.Title),
			r.Source,
			sanitizeUTF8(r.Summary),
			pgvector.NewVector(r.Embedding),
			r.Metadata,
			indexedAt(r),
		)
		if err != nil {
			return fmt.Errorf("failed to upsert proposal %s: %w", r.ID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

func (vs *VectorStore) Query(ctx context.Context, embedding []float32, limit int) ([]models.Match, error) {
	if limit <= 0 {
		limit = vs.config.SearchLimit
	}
	if len(embedding) != vs.config.VectorDim {
		return nil, fmt.Errorf("%w: query has %d dimensions, collection has %d",
			ErrDimensionMismatch, len(embedding), vs.config.VectorDim)
	}

	query := fmt.Sprintf(`
		SELECT id, COALESCE(title, ''), COALESCE(source, ''), (1 - (embedding <=> $1))::real
		FROM %s
		ORDER BY embedding <=> $1
		LIMIT $2`,
		vs.config.Collection)

	rows, err := vs.pool.Query(ctx, query, pgvector.NewVector(embedding), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query proposals: %w", err)
	}
	defer rows.Close()

	var matches []models.Match
	for rows.Next() {
		var m models.Match
		if err := rows.Scan(&m.ID, &m.Title, &m.Source, &m.Score); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating proposals: %w", err)
	}

	return matches, nil
}

func (vs *VectorStore) Delete(ctx context.Context, id string) error {
	_, err := vs.pool.Exec(ctx, fmt.Sprintf("DELETE FROM %s WHERE id = $1", vs.config.Collection), id)
	if err != nil {
		return fmt.Errorf("failed to delete proposal %s: %w", id, err)
	}
	return nil
}

func (vs *VectorStore) Count(ctx context.Context) (int64, error) {
	var n int64
	err := vs.pool.QueryRow(ctx, fmt.Sprintf("SELECT count(*) FROM %s", vs.config.Collection)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count proposals: %w", err)
	}
	return n, nil
}

func (vs *VectorStore) Close() error {
	if vs.pool != nil {
		vs.pool.Close()
	}
	return nil
}
