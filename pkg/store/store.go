package store

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/xhad/evaluator/internal/models"
)

var (
	ErrUnknownDriver     = errors.New("unknown vector store driver")
	ErrDimensionMismatch = errors.New("collection dimension mismatch")
)

// Collection is the persistent proposal collection, keyed by proposal id.
type Collection interface {
	Upsert(ctx context.Context, records []models.ProposalRecord) error
	Query(ctx context.Context, embedding []float32, limit int) ([]models.Match, error)
	Delete(ctx context.Context, id string) error
	Count(ctx context.Context) (int64, error)
	Close() error
}

type VectorStoreConfig struct {
	Driver      string
	ConnString  string // pgvector
	Host        string // qdrant
	Port        int    // qdrant
	APIKey      string // qdrant
	Collection  string
	VectorDim   int
	SearchLimit int
}

// Open connects to the configured backend and gets or creates the collection.
func Open(ctx context.Context, config VectorStoreConfig) (Collection, error) {
	var (
		c   Collection
		err error
	)
	switch config.Driver {
	case "", "pgvector":
		c, err = NewWithConfig(ctx, config)
	case "qdrant":
		c, err = NewQdrantStore(ctx, config)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, config.Driver)
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

func sanitizeUTF8(s string) string {
	if !utf8.ValidString(s) {
		v := make([]rune, 0, len(s))
		for i, r := range s {
			if r == utf8.RuneError {
				_, size := utf8.DecodeRuneInString(s[i:])
				if size == 1 {
					continue
				}
			}
			v = append(v, r)
		}
		return string(v)
	}
	return s
}

// indexedAt reports when a record was indexed, falling back to now for records
// built without a timestamp.
func indexedAt(r models.ProposalRecord) time.Time {
	if r.IndexedAt.IsZero() {
		return time.Now().UTC()
	}
	return r.IndexedAt.UTC()
}

func checkDim(records []models.ProposalRecord, dim int) error {
	for _, r := range records {
		if r.ID == "" {
			return errors.New("proposal id must not be empty")
		}
		if len(r.Embedding) != dim {
			return fmt.Errorf("%w: proposal %s has %d dimensions, collection has %d",
				ErrDimensionMismatch, r.ID, len(r.Embedding), dim)
		}
	}
	return nil
}
