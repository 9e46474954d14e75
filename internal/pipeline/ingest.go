package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/infohub-ai/taxrag/internal/chunking"
	"github.com/infohub-ai/taxrag/internal/embedding"
	"github.com/infohub-ai/taxrag/internal/vectorstore"
)

// chunkNamespace is the UUIDv5 namespace for chunk IDs. Deriving the ID from
// (document ID, ordinal) makes re-ingestion upsert the same points instead
// of duplicating them.
var chunkNamespace = uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")

// Document is an ingested legal text handed over by the crawler. The core
// never fetches documents itself.
type Document struct {
	ID       string `json:"id"` // stable identifier
	Title    string `json:"title"`
	Type     string `json:"type"`     // law, regulation, order, guideline, decision
	Language string `json:"language"` // ka, ru, en
	URL      string `json:"url"`      // source URL
	Text     string `json:"text"`     // full text
	Markdown bool   `json:"markdown"` // crawled pages stored as markdown are flattened first
}

// IngestResult summarizes an ingestion batch.
type IngestResult struct {
	TotalDocs      int
	SuccessfulDocs int
	TotalChunks    int
	FailedDocs     []FailedDoc
	Duration       time.Duration
}

// FailedDoc records one document that could not be ingested.
type FailedDoc struct {
	ID     string
	Reason string
}

// Ingestor runs the offline ingestion path: chunk, embed, store.
type Ingestor struct {
	chunker     *chunking.Chunker
	encoder     embedding.Encoder
	store       vectorstore.Store
	concurrency int
	logger      *slog.Logger
}

// NewIngestor creates an Ingestor. Concurrency bounds parallel documents per
// batch so bulk ingestion does not overload the embedding service or the
// store shared with the query path.
func NewIngestor(chunker *chunking.Chunker, encoder embedding.Encoder, store vectorstore.Store, concurrency int, logger *slog.Logger) *Ingestor {
	if concurrency <= 0 {
		concurrency = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Ingestor{
		chunker:     chunker,
		encoder:     encoder,
		store:       store,
		concurrency: concurrency,
		logger:      logger,
	}
}

// Ingest chunks, embeds and stores one document, returning the number of
// chunks stored. Re-ingesting an unchanged document upserts the same chunk
// IDs and creates no duplicates.
func (in *Ingestor) Ingest(ctx context.Context, doc Document) (int, error) {
	if doc.ID == "" {
		return 0, fmt.Errorf("document ID is required")
	}

	text := doc.Text
	if doc.Markdown {
		text = chunking.FlattenMarkdown([]byte(doc.Text))
	}

	metadata := map[string]string{
		"document_id":  doc.ID,
		"title":        doc.Title,
		"type":         doc.Type,
		"language":     doc.Language,
		"url":          doc.URL,
		"content_hash": contentHash(text),
	}

	chunks := in.chunker.Chunk(text, metadata)
	if len(chunks) == 0 {
		in.logger.Warn("Document produced no chunks", "document", doc.ID)
		return 0, nil
	}

	ids := make([]string, len(chunks))
	texts := make([]string, len(chunks))
	metadatas := make([]map[string]string, len(chunks))
	for i, chunk := range chunks {
		ids[i] = chunkID(doc.ID, chunk.Index)
		texts[i] = chunk.Text
		chunk.Metadata["chunk_index"] = strconv.Itoa(chunk.Index)
		metadatas[i] = chunk.Metadata
	}

	embeddings := in.encoder.Encode(ctx, texts)

	if err := in.store.AddDocuments(ctx, ids, embeddings, texts, metadatas); err != nil {
		return 0, fmt.Errorf("store chunks for %s: %w", doc.ID, err)
	}

	in.logger.Info("Ingested document", "document", doc.ID, "chunks", len(chunks))
	return len(chunks), nil
}

// IngestAll processes a batch with bounded parallelism. One document's
// failure never aborts the batch; failures are reported per document.
func (in *Ingestor) IngestAll(ctx context.Context, docs []Document) *IngestResult {
	start := time.Now()
	result := &IngestResult{TotalDocs: len(docs)}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(in.concurrency)

	for _, doc := range docs {
		g.Go(func() error {
			chunks, err := in.Ingest(gctx, doc)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				in.logger.Warn("Failed to ingest document", "document", doc.ID, "error", err)
				result.FailedDocs = append(result.FailedDocs, FailedDoc{
					ID:     doc.ID,
					Reason: err.Error(),
				})
				return nil
			}
			result.SuccessfulDocs++
			result.TotalChunks += chunks
			return nil
		})
	}
	_ = g.Wait()

	result.Duration = time.Since(start)
	in.logger.Info("Ingestion complete",
		"successful", result.SuccessfulDocs,
		"failed", len(result.FailedDocs),
		"chunks", result.TotalChunks,
		"duration", result.Duration,
	)
	return result
}

func chunkID(docID string, ordinal int) string {
	return uuid.NewSHA1(chunkNamespace, []byte(docID+":"+strconv.Itoa(ordinal))).String()
}

func contentHash(text string) string {
	h := sha256.Sum256([]byte(text))
	return hex.EncodeToString(h[:])
}
