package vectorstore

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/qdrant/go-client/qdrant"
)

// upsertBatchSize bounds points per upsert request.
const upsertBatchSize = 100

// indexedFields are the payload fields queries filter on. Without payload
// indexes Qdrant falls back to a full payload scan per filter condition.
var indexedFields = []string{"language", "document_id", "type"}

// QdrantStore is the ANN-service backend. If Qdrant is unreachable at
// startup the store comes up disabled: every operation returns an empty or
// zero result with ErrStoreDisabled so the rest of the system can boot and
// degrade instead of crashing.
type QdrantStore struct {
	client     *qdrant.Client
	collection string
	dimension  int
	logger     *slog.Logger
}

// NewQdrantStore connects to Qdrant and ensures the collection exists.
// Connection failure is logged, not returned.
func NewQdrantStore(ctx context.Context, host string, port int, collection string, dimension int, logger *slog.Logger) *QdrantStore {
	if logger == nil {
		logger = slog.Default()
	}
	s := &QdrantStore{
		collection: collection,
		dimension:  dimension,
		logger:     logger,
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host: host,
		Port: port,
	})
	if err != nil {
		logger.Warn("Qdrant client creation failed, store disabled", "error", err)
		return s
	}

	if err := healthCheckWithRetry(ctx, client); err != nil {
		logger.Warn("Qdrant unreachable, store disabled", "host", host, "port", port, "error", err)
		client.Close()
		return s
	}

	s.client = client
	if err := s.ensureCollection(ctx); err != nil {
		logger.Warn("Qdrant collection setup failed, store disabled", "error", err)
		client.Close()
		s.client = nil
	}
	return s
}

// healthCheckWithRetry polls Qdrant with exponential backoff.
// Initial interval 500ms, max interval 5s, max elapsed 15s.
func healthCheckWithRetry(ctx context.Context, client *qdrant.Client) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 5 * time.Second
	b.MaxElapsedTime = 15 * time.Second

	operation := func() error {
		result, err := client.HealthCheck(ctx)
		if err != nil {
			return fmt.Errorf("health check failed: %w", err)
		}
		if result == nil || result.Title == "" {
			return fmt.Errorf("health check returned invalid response")
		}
		return nil
	}

	return backoff.Retry(operation, backoff.WithContext(b, ctx))
}

// ensureCollection creates the collection and payload indexes if missing.
// Idempotent.
func (s *QdrantStore) ensureCollection(ctx context.Context) error {
	collections, err := s.client.ListCollections(ctx)
	if err != nil {
		return fmt.Errorf("list collections: %w", err)
	}
	for _, name := range collections {
		if name == s.collection {
			return nil
		}
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(s.dimension),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("create collection: %w", err)
	}

	for _, field := range indexedFields {
		_, err := s.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
			CollectionName: s.collection,
			FieldName:      field,
			FieldType:      qdrant.FieldType_FieldTypeKeyword.Enum(),
		})
		if err != nil {
			return fmt.Errorf("create index for field %s: %w", field, err)
		}
	}
	return nil
}

// AddDocuments upserts chunks in batches with retry.
func (s *QdrantStore) AddDocuments(ctx context.Context, ids []string, embeddings [][]float32, texts []string, metadatas []map[string]string) error {
	if err := validateAdd(ids, embeddings, texts, metadatas, s.dimension); err != nil {
		return err
	}
	if s.client == nil {
		return ErrStoreDisabled
	}

	for i := 0; i < len(ids); i += upsertBatchSize {
		end := min(i+upsertBatchSize, len(ids))

		points := make([]*qdrant.PointStruct, 0, end-i)
		for j := i; j < end; j++ {
			payload := map[string]any{"text": texts[j]}
			for k, v := range metadatas[j] {
				payload[k] = v
			}
			points = append(points, &qdrant.PointStruct{
				Id:      qdrant.NewIDUUID(ids[j]),
				Vectors: qdrant.NewVectors(embeddings[j]...),
				Payload: qdrant.NewValueMap(payload),
			})
		}

		if err := s.upsertWithRetry(ctx, points); err != nil {
			return fmt.Errorf("upsert batch %d-%d: %w", i, end, err)
		}
	}
	return nil
}

func (s *QdrantStore) upsertWithRetry(ctx context.Context, points []*qdrant.PointStruct) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 30 * time.Second

	operation := func() error {
		_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: s.collection,
			Points:         points,
		})
		return err
	}

	return backoff.Retry(operation, backoff.WithContext(b, ctx))
}

// Search performs vector similarity search. The filter becomes Qdrant match
// conditions, applied before ranking. Qdrant reports cosine similarity as
// the score; distance is derived from it.
func (s *QdrantStore) Search(ctx context.Context, queryEmbedding []float32, limit int, filter map[string]string) ([]SearchResult, error) {
	if s.client == nil {
		return nil, ErrStoreDisabled
	}
	if len(queryEmbedding) != s.dimension {
		return nil, fmt.Errorf("%w: query has %d dimensions, expected %d",
			ErrDimensionMismatch, len(queryEmbedding), s.dimension)
	}

	var qf *qdrant.Filter
	if len(filter) > 0 {
		must := make([]*qdrant.Condition, 0, len(filter))
		for k, v := range filter {
			must = append(must, qdrant.NewMatch(k, v))
		}
		qf = &qdrant.Filter{Must: must}
	}

	results, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQuery(queryEmbedding...),
		Filter:         qf,
		Limit:          qdrant.PtrOf(uint64(limit)),
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors:    qdrant.NewWithVectors(false),
	})
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}

	out := make([]SearchResult, 0, len(results))
	for _, result := range results {
		text := ""
		metadata := make(map[string]string, len(result.Payload))
		for k, v := range result.Payload {
			if k == "text" {
				text = v.GetStringValue()
				continue
			}
			metadata[k] = v.GetStringValue()
		}
		out = append(out, SearchResult{
			ID:         result.Id.GetUuid(),
			Text:       text,
			Metadata:   metadata,
			Similarity: result.Score,
			Distance:   1 - result.Score,
		})
	}
	return out, nil
}

// Delete removes points by ID.
func (s *QdrantStore) Delete(ctx context.Context, ids []string) error {
	if s.client == nil {
		return ErrStoreDisabled
	}
	if len(ids) == 0 {
		return nil
	}

	pointIDs := make([]*qdrant.PointId, len(ids))
	for i, id := range ids {
		pointIDs[i] = qdrant.NewIDUUID(id)
	}

	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.collection,
		Points:         qdrant.NewPointsSelector(pointIDs...),
	})
	if err != nil {
		return fmt.Errorf("delete points: %w", err)
	}
	return nil
}

// Clear drops and recreates the collection.
func (s *QdrantStore) Clear(ctx context.Context) error {
	if s.client == nil {
		return ErrStoreDisabled
	}
	if err := s.client.DeleteCollection(ctx, s.collection); err != nil {
		return fmt.Errorf("delete collection: %w", err)
	}
	return s.ensureCollection(ctx)
}

// Count returns the number of stored points.
func (s *QdrantStore) Count(ctx context.Context) (int, error) {
	if s.client == nil {
		return 0, ErrStoreDisabled
	}
	collection, err := s.client.GetCollectionInfo(ctx, s.collection)
	if err != nil {
		return 0, fmt.Errorf("get collection: %w", err)
	}
	return int(collection.GetPointsCount()), nil
}

// Close closes the client connection.
func (s *QdrantStore) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}
