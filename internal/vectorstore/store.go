// Package vectorstore persists embedded chunks and answers top-K
// nearest-neighbor queries by cosine distance.
package vectorstore

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/infohub-ai/taxrag/internal/config"
)

// SearchResult is one ranked candidate from a similarity search.
type SearchResult struct {
	ID         string
	Text       string
	Metadata   map[string]string
	Similarity float32 // 1 - Distance
	Distance   float32 // cosine distance, ascending in result order
}

// Store is the contract shared by all backends. Results are ordered by
// ascending cosine distance with ties broken by ingestion order. The filter
// is an equality constraint over metadata fields applied before ranking: a
// filtered-out candidate never appears, even if it would rank first.
//
// The Qdrant backend searches an approximate HNSW index while the pgvector
// and memory backends are exact (pgvector until its index is built). All
// three share the same ordering semantics; approximation error on recall is
// an accepted trade-off, not a correctness bug.
type Store interface {
	// AddDocuments upserts chunks. All four slices must have equal length
	// or the call fails with ErrLengthMismatch.
	AddDocuments(ctx context.Context, ids []string, embeddings [][]float32, texts []string, metadatas []map[string]string) error

	// Search returns the top-limit candidates for the query embedding.
	Search(ctx context.Context, queryEmbedding []float32, limit int, filter map[string]string) ([]SearchResult, error)

	// Delete removes chunks by ID. Unknown IDs are not an error.
	Delete(ctx context.Context, ids []string) error

	// Clear removes every chunk.
	Clear(ctx context.Context) error

	// Count returns the number of stored chunks.
	Count(ctx context.Context) (int, error)

	Close() error
}

// New constructs the backend selected by configuration. The choice is made
// once at startup; call sites only ever see the Store interface.
func New(ctx context.Context, cfg config.StoreConfig, dimension int, logger *slog.Logger) (Store, error) {
	switch cfg.Backend {
	case "qdrant":
		return NewQdrantStore(ctx, cfg.Qdrant.Host, cfg.Qdrant.Port, cfg.Collection, dimension, logger), nil
	case "pgvector":
		return NewPgVectorStore(ctx, cfg.Postgres.URL, cfg.Collection, dimension, logger)
	case "memory":
		return NewMemoryStore(dimension), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}

// validateAdd enforces the AddDocuments input contract.
func validateAdd(ids []string, embeddings [][]float32, texts []string, metadatas []map[string]string, dimension int) error {
	if len(ids) != len(embeddings) || len(ids) != len(texts) || len(ids) != len(metadatas) {
		return fmt.Errorf("%w: ids=%d embeddings=%d texts=%d metadatas=%d",
			ErrLengthMismatch, len(ids), len(embeddings), len(texts), len(metadatas))
	}
	for i, emb := range embeddings {
		if len(emb) != dimension {
			return fmt.Errorf("%w: item %d has %d dimensions, expected %d",
				ErrDimensionMismatch, i, len(emb), dimension)
		}
	}
	return nil
}
