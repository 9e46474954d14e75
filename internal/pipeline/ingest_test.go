package pipeline

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/infohub-ai/taxrag/internal/chunking"
	"github.com/infohub-ai/taxrag/internal/vectorstore"
)

func newTestIngestor(t *testing.T, store vectorstore.Store) *Ingestor {
	t.Helper()
	chunker, err := chunking.New(chunking.Config{ChunkSize: 50, Overlap: 10, CharsPerToken: 1})
	require.NoError(t, err)
	return NewIngestor(chunker,
		&stubEncoder{dimension: 3, queryVec: []float32{1, 0, 0}},
		store, 2, nil)
}

func taxDocument(id string) Document {
	return Document{
		ID:       id,
		Title:    "Tax Code Article 157",
		Type:     "law",
		Language: "ka",
		URL:      "https://matsne.gov.ge/157",
		Text: strings.Repeat("VAT registration is mandatory above the threshold.\n\n", 6) +
			"Voluntary registration is allowed below it.",
	}
}

func TestIngest_StoresChunksWithMetadata(t *testing.T) {
	store := vectorstore.NewMemoryStore(3)
	ingestor := newTestIngestor(t, store)
	ctx := context.Background()

	chunks, err := ingestor.Ingest(ctx, taxDocument("d1"))
	require.NoError(t, err)
	assert.Greater(t, chunks, 1)

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, chunks, count)

	results, err := store.Search(ctx, []float32{1, 0, 0}, 1, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	metadata := results[0].Metadata
	assert.Equal(t, "d1", metadata["document_id"])
	assert.Equal(t, "Tax Code Article 157", metadata["title"])
	assert.Equal(t, "law", metadata["type"])
	assert.Equal(t, "ka", metadata["language"])
	assert.Equal(t, "https://matsne.gov.ge/157", metadata["url"])
	assert.NotEmpty(t, metadata["content_hash"])
	assert.NotEmpty(t, metadata["chunk_index"])
}

func TestIngest_Idempotent(t *testing.T) {
	store := vectorstore.NewMemoryStore(3)
	ingestor := newTestIngestor(t, store)
	ctx := context.Background()

	first, err := ingestor.Ingest(ctx, taxDocument("d1"))
	require.NoError(t, err)
	second, err := ingestor.Ingest(ctx, taxDocument("d1"))
	require.NoError(t, err)
	assert.Equal(t, first, second)

	// Re-ingestion upserts the same chunk IDs, never duplicates.
	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, count)
}

func TestIngest_RequiresDocumentID(t *testing.T) {
	ingestor := newTestIngestor(t, vectorstore.NewMemoryStore(3))

	doc := taxDocument("")
	_, err := ingestor.Ingest(context.Background(), doc)
	assert.Error(t, err)
}

func TestIngest_EmptyDocumentProducesNoChunks(t *testing.T) {
	store := vectorstore.NewMemoryStore(3)
	ingestor := newTestIngestor(t, store)
	ctx := context.Background()

	doc := taxDocument("d1")
	doc.Text = "   \n\n  "
	chunks, err := ingestor.Ingest(ctx, doc)
	require.NoError(t, err)
	assert.Equal(t, 0, chunks)

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestIngest_FlattensMarkdown(t *testing.T) {
	store := vectorstore.NewMemoryStore(3)
	ingestor := newTestIngestor(t, store)
	ctx := context.Background()

	doc := Document{
		ID:       "d1",
		Title:    "Crawled page",
		Type:     "guideline",
		Language: "en",
		Text:     "# VAT Guide\n\nRegistration is **mandatory** above the threshold.",
		Markdown: true,
	}
	_, err := ingestor.Ingest(ctx, doc)
	require.NoError(t, err)

	results, err := store.Search(ctx, []float32{1, 0, 0}, 10, nil)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	for _, r := range results {
		assert.NotContains(t, r.Text, "#")
		assert.NotContains(t, r.Text, "**")
	}
}

func TestIngestAll_PartialFailure(t *testing.T) {
	store := vectorstore.NewMemoryStore(3)
	ingestor := newTestIngestor(t, store)

	docs := []Document{
		taxDocument("d1"),
		taxDocument(""), // missing ID fails, batch continues
		taxDocument("d3"),
	}
	result := ingestor.IngestAll(context.Background(), docs)

	assert.Equal(t, 3, result.TotalDocs)
	assert.Equal(t, 2, result.SuccessfulDocs)
	require.Len(t, result.FailedDocs, 1)
	assert.Equal(t, "", result.FailedDocs[0].ID)
	assert.Greater(t, result.TotalChunks, 0)
	assert.Greater(t, result.Duration.Nanoseconds(), int64(0))
}
