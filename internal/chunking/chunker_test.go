package chunking

import (
	"strings"
	"testing"
)

// newTestChunker uses a divisor of 1 so token estimates equal rune counts
// and budgets are easy to reason about.
func newTestChunker(t *testing.T, size, overlap int) *Chunker {
	t.Helper()
	c, err := New(Config{ChunkSize: size, Overlap: overlap, CharsPerToken: 1})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return c
}

func TestChunk_EmptyInput(t *testing.T) {
	c := newTestChunker(t, 100, 10)

	if got := c.Chunk("", nil); len(got) != 0 {
		t.Errorf("Expected no chunks for empty input, got %d", len(got))
	}
	if got := c.Chunk("   \n\n \t ", nil); len(got) != 0 {
		t.Errorf("Expected no chunks for whitespace input, got %d", len(got))
	}
}

func TestChunk_SingleChunk(t *testing.T) {
	c := newTestChunker(t, 100, 10)

	chunks := c.Chunk("First paragraph.\n\nSecond paragraph.", nil)
	if len(chunks) != 1 {
		t.Fatalf("Expected 1 chunk, got %d", len(chunks))
	}
	if chunks[0].Index != 0 {
		t.Errorf("Chunk index: expected 0, got %d", chunks[0].Index)
	}
	if chunks[0].Text != "First paragraph.\n\nSecond paragraph." {
		t.Errorf("Unexpected chunk text: %q", chunks[0].Text)
	}
}

func TestChunk_ParagraphAccumulationWithOverlap(t *testing.T) {
	c := newTestChunker(t, 10, 3)

	chunks := c.Chunk("aaaa\n\nbbbb\n\ncccc", nil)
	if len(chunks) != 2 {
		t.Fatalf("Expected 2 chunks, got %d", len(chunks))
	}

	if chunks[0].Text != "aaaa\n\nbbbb" {
		t.Errorf("Chunk 0: expected %q, got %q", "aaaa\n\nbbbb", chunks[0].Text)
	}
	// The second chunk starts with the trailing 3 characters of the first.
	if chunks[1].Text != "bbb cccc" {
		t.Errorf("Chunk 1: expected %q, got %q", "bbb cccc", chunks[1].Text)
	}
}

func TestChunk_OrdinalsContiguous(t *testing.T) {
	c := newTestChunker(t, 12, 2)

	var parts []string
	for i := 0; i < 20; i++ {
		parts = append(parts, "paragraph")
	}
	chunks := c.Chunk(strings.Join(parts, "\n\n"), nil)

	if len(chunks) < 2 {
		t.Fatalf("Expected multiple chunks, got %d", len(chunks))
	}
	for i, chunk := range chunks {
		if chunk.Index != i {
			t.Errorf("Chunk %d has index %d", i, chunk.Index)
		}
		if chunk.Text == "" {
			t.Errorf("Chunk %d is empty", i)
		}
	}
}

func TestChunk_ReconstructsParagraphSequence(t *testing.T) {
	paragraphs := []string{"alpha beta", "gamma delta", "epsilon zeta", "eta theta"}
	c := newTestChunker(t, 24, 4)

	chunks := c.Chunk(strings.Join(paragraphs, "\n\n"), nil)

	// Every paragraph appears, in order, across the chunk sequence.
	joined := ""
	for _, chunk := range chunks {
		joined += chunk.Text + "\n"
	}
	pos := 0
	for _, para := range paragraphs {
		idx := strings.Index(joined[pos:], para)
		if idx < 0 {
			t.Fatalf("Paragraph %q missing or out of order", para)
		}
		pos += idx + len(para)
	}
}

func TestChunk_OversizedParagraphSplitsSentences(t *testing.T) {
	c := newTestChunker(t, 12, 2)

	// One paragraph far over budget, split on sentence boundaries.
	chunks := c.Chunk("Aaaa bbbb. Cccc dddd! Eeee ffff? Gggg hhhh.", nil)
	if len(chunks) < 3 {
		t.Fatalf("Expected sentence-level chunks, got %d", len(chunks))
	}

	for _, want := range []string{"Aaaa bbbb.", "Cccc dddd!", "Eeee ffff?", "Gggg hhhh."} {
		found := false
		for _, chunk := range chunks {
			if strings.Contains(chunk.Text, want) {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("Sentence %q missing from chunks", want)
		}
	}
}

func TestChunk_TokenBudget(t *testing.T) {
	c := newTestChunker(t, 20, 5)

	text := strings.Repeat("word word word war\n\n", 30)
	chunks := c.Chunk(text, nil)
	for _, chunk := range chunks {
		if chunk.TokenCount > 20+5 {
			t.Errorf("Chunk %d estimate %d exceeds chunk_size+overlap", chunk.Index, chunk.TokenCount)
		}
	}
}

func TestChunk_MetadataCopied(t *testing.T) {
	c := newTestChunker(t, 10, 2)
	metadata := map[string]string{"document_id": "d1", "language": "ka"}

	chunks := c.Chunk("aaaa\n\nbbbb\n\ncccc", metadata)
	if len(chunks) < 2 {
		t.Fatalf("Expected multiple chunks, got %d", len(chunks))
	}

	chunks[0].Metadata["language"] = "en"
	if chunks[1].Metadata["language"] != "ka" {
		t.Error("Chunk metadata maps alias each other")
	}
	if metadata["language"] != "ka" {
		t.Error("Caller's metadata map was mutated")
	}
}

func TestChunk_Offsets(t *testing.T) {
	c := newTestChunker(t, 100, 10)
	text := "first\n\nsecond"

	chunks := c.Chunk(text, nil)
	if len(chunks) != 1 {
		t.Fatalf("Expected 1 chunk, got %d", len(chunks))
	}
	if chunks[0].Start != 0 {
		t.Errorf("Start: expected 0, got %d", chunks[0].Start)
	}
	if chunks[0].End != len(text) {
		t.Errorf("End: expected %d, got %d", len(text), chunks[0].End)
	}
}

func TestNew_RejectsOverlapNotSmallerThanSize(t *testing.T) {
	if _, err := New(Config{ChunkSize: 100, Overlap: 100}); err == nil {
		t.Error("Expected error for overlap == chunk size")
	}
	if _, err := New(Config{ChunkSize: 100, Overlap: 200}); err == nil {
		t.Error("Expected error for overlap > chunk size")
	}
	if _, err := New(Config{ChunkSize: 0, Overlap: 0}); err == nil {
		t.Error("Expected error for zero chunk size")
	}
}

func TestEstimateTokens_CountsRunes(t *testing.T) {
	c, err := New(Config{ChunkSize: 100, Overlap: 10, CharsPerToken: 4})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	// Georgian text is 3 bytes per rune; the estimate counts characters.
	if got := c.EstimateTokens("გადასახადი"); got != 10/4 {
		t.Errorf("EstimateTokens: expected %d, got %d", 10/4, got)
	}
}
