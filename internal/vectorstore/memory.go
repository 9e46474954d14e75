package vectorstore

import (
	"context"
	"fmt"
	"maps"
	"math"
	"sort"
	"sync"
)

// MemoryStore is an exact in-process backend. It serves tests and local runs
// without infrastructure, and doubles as the reference for the ordering
// semantics the other backends must match.
type MemoryStore struct {
	mu        sync.RWMutex
	dimension int
	records   []memoryRecord
	index     map[string]int // id -> position in records
}

type memoryRecord struct {
	id        string
	embedding []float32
	text      string
	metadata  map[string]string
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(dimension int) *MemoryStore {
	return &MemoryStore{
		dimension: dimension,
		index:     map[string]int{},
	}
}

// AddDocuments upserts records. Updating an existing ID keeps its original
// insertion position, so tie-breaking stays stable across re-ingestion.
func (s *MemoryStore) AddDocuments(ctx context.Context, ids []string, embeddings [][]float32, texts []string, metadatas []map[string]string) error {
	if err := validateAdd(ids, embeddings, texts, metadatas, s.dimension); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for i, id := range ids {
		rec := memoryRecord{
			id:        id,
			embedding: append([]float32(nil), embeddings[i]...),
			text:      texts[i],
			metadata:  maps.Clone(metadatas[i]),
		}
		if pos, ok := s.index[id]; ok {
			s.records[pos] = rec
			continue
		}
		s.index[id] = len(s.records)
		s.records = append(s.records, rec)
	}
	return nil
}

// Search scans every record, applies the filter, and ranks by cosine
// distance. The sort is stable so equal distances keep insertion order.
func (s *MemoryStore) Search(ctx context.Context, queryEmbedding []float32, limit int, filter map[string]string) ([]SearchResult, error) {
	if len(queryEmbedding) != s.dimension {
		return nil, fmt.Errorf("%w: query has %d dimensions, expected %d",
			ErrDimensionMismatch, len(queryEmbedding), s.dimension)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []SearchResult
	for _, rec := range s.records {
		if !matchesFilter(rec.metadata, filter) {
			continue
		}
		sim := cosineSimilarity(queryEmbedding, rec.embedding)
		out = append(out, SearchResult{
			ID:         rec.id,
			Text:       rec.text,
			Metadata:   maps.Clone(rec.metadata),
			Similarity: sim,
			Distance:   1 - sim,
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Distance < out[j].Distance
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Delete removes records by ID, preserving the relative order of the rest.
func (s *MemoryStore) Delete(ctx context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	drop := make(map[string]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}

	kept := s.records[:0]
	for _, rec := range s.records {
		if !drop[rec.id] {
			kept = append(kept, rec)
		}
	}
	s.records = kept

	s.index = make(map[string]int, len(s.records))
	for i, rec := range s.records {
		s.index[rec.id] = i
	}
	return nil
}

// Clear removes every record.
func (s *MemoryStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = nil
	s.index = map[string]int{}
	return nil
}

// Count returns the number of stored records.
func (s *MemoryStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records), nil
}

// Close is a no-op.
func (s *MemoryStore) Close() error {
	return nil
}

func matchesFilter(metadata, filter map[string]string) bool {
	for k, v := range filter {
		if metadata[k] != v {
			return false
		}
	}
	return true
}

// cosineSimilarity returns the angular closeness of two vectors. A zero
// vector on either side yields 0, so searches over degraded embeddings
// degenerate to uniform low scores instead of dividing by zero.
func cosineSimilarity(a, b []float32) float32 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}
