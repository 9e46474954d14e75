package vectorstore

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// PgVectorStore is the relational backend: chunk rows with a vector column,
// searched with pgvector's cosine distance operator. Search is exact until
// the HNSW index is built; EnsureIndex is an explicit maintenance operation,
// never triggered by writes.
type PgVectorStore struct {
	pool      *pgxpool.Pool
	table     string
	dimension int
	logger    *slog.Logger
}

// NewPgVectorStore connects to Postgres and verifies the pgvector extension.
// Unlike the Qdrant backend this one fails construction: a relational store
// that is configured but absent is a deployment error, not a degraded mode.
func NewPgVectorStore(ctx context.Context, url, table string, dimension int, logger *slog.Logger) (*PgVectorStore, error) {
	if logger == nil {
		logger = slog.Default()
	}

	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	var extname string
	err = pool.QueryRow(ctx, "SELECT extname FROM pg_extension WHERE extname = 'vector'").Scan(&extname)
	if err != nil {
		pool.Close()
		if err == pgx.ErrNoRows {
			return nil, fmt.Errorf("pgvector extension is not installed")
		}
		return nil, fmt.Errorf("check pgvector extension: %w", err)
	}

	s := &PgVectorStore{
		pool:      pool,
		table:     table,
		dimension: dimension,
		logger:    logger,
	}
	if err := s.ensureTable(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// ensureTable creates the chunk table if missing. The seq column records
// ingestion order and breaks distance ties so result ordering is stable.
func (s *PgVectorStore) ensureTable(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id        text PRIMARY KEY,
			content   text NOT NULL,
			metadata  jsonb NOT NULL DEFAULT '{}',
			embedding vector(%d),
			seq       bigint GENERATED ALWAYS AS IDENTITY
		)`, s.table, s.dimension))
	if err != nil {
		return fmt.Errorf("ensure table %s: %w", s.table, err)
	}
	return nil
}

// EnsureIndex builds the HNSW index for cosine distance. Building is a
// maintenance operation run offline (CLI reindex) once the corpus is large
// enough that a sequential scan hurts.
func (s *PgVectorStore) EnsureIndex(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, fmt.Sprintf(`
		CREATE INDEX IF NOT EXISTS %s_embedding_idx
		ON %s USING hnsw (embedding vector_cosine_ops)
		WITH (m = 16, ef_construction = 64)`, s.table, s.table))
	if err != nil {
		return fmt.Errorf("create hnsw index: %w", err)
	}
	return nil
}

// AddDocuments upserts chunk rows in one transaction.
func (s *PgVectorStore) AddDocuments(ctx context.Context, ids []string, embeddings [][]float32, texts []string, metadatas []map[string]string) error {
	if err := validateAdd(ids, embeddings, texts, metadatas, s.dimension); err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	sql := fmt.Sprintf(`
		INSERT INTO %s (id, content, metadata, embedding)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE
		SET content = EXCLUDED.content,
		    metadata = EXCLUDED.metadata,
		    embedding = EXCLUDED.embedding`, s.table)

	for i := range ids {
		meta, err := json.Marshal(metadatas[i])
		if err != nil {
			return fmt.Errorf("marshal metadata for %s: %w", ids[i], err)
		}
		_, err = tx.Exec(ctx, sql, ids[i], texts[i], meta, pgvector.NewVector(embeddings[i]))
		if err != nil {
			return fmt.Errorf("upsert %s: %w", ids[i], err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Search ranks rows by the <=> cosine distance operator. Metadata filters
// become WHERE clauses, so they constrain the candidate set before ranking.
func (s *PgVectorStore) Search(ctx context.Context, queryEmbedding []float32, limit int, filter map[string]string) ([]SearchResult, error) {
	if len(queryEmbedding) != s.dimension {
		return nil, fmt.Errorf("%w: query has %d dimensions, expected %d",
			ErrDimensionMismatch, len(queryEmbedding), s.dimension)
	}

	args := []any{pgvector.NewVector(queryEmbedding)}
	var where strings.Builder
	where.WriteString("embedding IS NOT NULL")
	for k, v := range filter {
		args = append(args, k, v)
		fmt.Fprintf(&where, " AND metadata->>$%d = $%d", len(args)-1, len(args))
	}
	args = append(args, limit)

	sql := fmt.Sprintf(`
		SELECT id, content, metadata, embedding <=> $1 AS distance
		FROM %s
		WHERE %s
		ORDER BY embedding <=> $1, seq
		LIMIT $%d`, s.table, where.String(), len(args))

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	defer rows.Close()

	var out []SearchResult
	for rows.Next() {
		var (
			id       string
			content  string
			meta     []byte
			distance float64
		)
		if err := rows.Scan(&id, &content, &meta, &distance); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}

		metadata := map[string]string{}
		if err := json.Unmarshal(meta, &metadata); err != nil {
			s.logger.Warn("Malformed chunk metadata", "id", id, "error", err)
		}

		out = append(out, SearchResult{
			ID:         id,
			Text:       content,
			Metadata:   metadata,
			Similarity: float32(1 - distance),
			Distance:   float32(distance),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return out, nil
}

// Delete removes rows by ID.
func (s *PgVectorStore) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.pool.Exec(ctx, fmt.Sprintf("DELETE FROM %s WHERE id = ANY($1)", s.table), ids)
	if err != nil {
		return fmt.Errorf("delete: %w", err)
	}
	return nil
}

// Clear removes every row.
func (s *PgVectorStore) Clear(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, fmt.Sprintf("DELETE FROM %s", s.table))
	if err != nil {
		return fmt.Errorf("clear: %w", err)
	}
	return nil
}

// Count returns the number of rows with an embedding.
func (s *PgVectorStore) Count(ctx context.Context) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx,
		fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE embedding IS NOT NULL", s.table)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count: %w", err)
	}
	return count, nil
}

// Close releases the connection pool.
func (s *PgVectorStore) Close() error {
	s.pool.Close()
	return nil
}
