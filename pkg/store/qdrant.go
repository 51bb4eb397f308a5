package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"github.com/xhad/evaluator/internal/models"
)

// Qdrant point ids must be UUIDs or integers, so proposal ids are mapped onto
// name-based UUIDs and the original id travels in the payload.
var proposalNamespace = uuid.MustParse("6f1c3c5e-8a36-4c0e-9d8e-3b1f6f0d2a71")

const (
	payloadProposalID = "proposal_id"
	payloadTitle      = "title"
	payloadSource     = "source"
	payloadSummary    = "summary"
	payloadIndexedAt  = "indexed_at"
)

type QdrantStore struct {
	client     *qdrant.Client
	config     VectorStoreConfig
	waitUpsert bool
}

func NewQdrantStore(ctx context.Context, config VectorStoreConfig) (*QdrantStore, error) {
	if config.Collection == "" {
		config.Collection = "proposals"
	}
	if config.VectorDim == 0 {
		config.VectorDim = 384
	}
	if config.SearchLimit == 0 {
		config.SearchLimit = 5
	}

	c, err := qdrant.NewClient(&qdrant.Config{
		Host:   config.Host,
		Port:   config.Port,
		APIKey: config.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}

	s := &QdrantStore{
		client:     c,
		config:     config,
		waitUpsert: true,
	}

	if err := s.ensureCollection(ctx); err != nil {
		c.Close()
		return nil, err
	}
	return s, nil
}

func (s *QdrantStore) ensureCollection(ctx context.Context) error {
	exists, err := s.client.CollectionExists(ctx, s.config.Collection)
	if err != nil {
		return fmt.Errorf("failed to check collection %s: %w", s.config.Collection, err)
	}
	if exists {
		return s.checkCollectionDim(ctx)
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.config.Collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(s.config.VectorDim),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("failed to create collection %s: %w", s.config.Collection, err)
	}
	return nil
}

// checkCollectionDim rejects an existing collection whose vectors were created
// for a different embedding model.
func (s *QdrantStore) checkCollectionDim(ctx context.Context) error {
	info, err := s.client.GetCollectionInfo(ctx, s.config.Collection)
	if err != nil {
		return fmt.Errorf("failed to inspect collection %s: %w", s.config.Collection, err)
	}

	params := info.GetConfig().GetParams().GetVectorsConfig().GetParams()
	if params == nil {
		return fmt.Errorf("%w: collection %s uses named vectors", ErrDimensionMismatch, s.config.Collection)
	}
	if size := params.GetSize(); size != uint64(s.config.VectorDim) {
		return fmt.Errorf("%w: collection %s stores %d dimensions, embedder produces %d",
			ErrDimensionMismatch, s.config.Collection, size, s.config.VectorDim)
	}
	return nil
}

func pointID(proposalID string) string {
	return uuid.NewSHA1(proposalNamespace, []byte(proposalID)).String()
}

func recordPayload(r models.ProposalRecord) map[string]any {
	payload := map[string]any{
		payloadProposalID: r.ID,
		payloadTitle:      sanitizeUTF8(r.Title),
		payloadSource:     r.Source,
		payloadSummary:    sanitizeUTF8(r.Summary),
		payloadIndexedAt:  indexedAt(r).Format(time.RFC3339),
	}
	for k, v := range r.Metadata {
		if _, reserved := payload[k]; reserved {
			continue
		}
		payload[k] = fmt.Sprint(v)
	}
	return payload
}

func (s *QdrantStore) Upsert(ctx context.Context, records []models.ProposalRecord) error {
	if err := checkDim(records, s.config.VectorDim); err != nil {
		return err
	}
	if len(records) == 0 {
		return nil
	}

	points := make([]*qdrant.PointStruct, 0, len(records))
	for _, r := range records {
		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(pointID(r.ID)),
			Vectors: qdrant.NewVectors(r.Embedding...),
			Payload: qdrant.NewValueMap(recordPayload(r)),
		})
	}

	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.config.Collection,
		Wait:           &s.waitUpsert,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("failed to upsert %d proposals: %w", len(records), err)
	}
	return nil
}

func (s *QdrantStore) Query(ctx context.Context, embedding []float32, limit int) ([]models.Match, error) {
	if limit <= 0 {
		limit = s.config.SearchLimit
	}
	if len(embedding) != s.config.VectorDim {
		return nil, fmt.Errorf("%w: query has %d dimensions, collection has %d",
			ErrDimensionMismatch, len(embedding), s.config.VectorDim)
	}

	l := uint64(limit)
	res, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.config.Collection,
		Query:          qdrant.NewQuery(embedding...),
		WithPayload:    qdrant.NewWithPayload(true),
		Limit:          &l,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query proposals: %w", err)
	}

	matches := make([]models.Match, 0, len(res))
	for _, sp := range res {
		payload := sp.GetPayload()
		matches = append(matches, models.Match{
			ID:     payload[payloadProposalID].GetStringValue(),
			Title:  payload[payloadTitle].GetStringValue(),
			Source: payload[payloadSource].GetStringValue(),
			Score:  sp.GetScore(),
		})
	}
	return matches, nil
}

func (s *QdrantStore) Delete(ctx context.Context, id string) error {
	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.config.Collection,
		Wait:           &s.waitUpsert,
		Points:         qdrant.NewPointsSelector(qdrant.NewIDUUID(pointID(id))),
	})
	if err != nil {
		return fmt.Errorf("failed to delete proposal %s: %w", id, err)
	}
	return nil
}

func (s *QdrantStore) Count(ctx context.Context) (int64, error) {
	exact := true
	n, err := s.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: s.config.Collection,
		Exact:          &exact,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count proposals: %w", err)
	}
	return int64(n), nil
}

func (s *QdrantStore) Close() error {
	return s.client.Close()
}
