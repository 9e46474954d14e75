// Package chunking splits document text into bounded, overlapping segments
// sized by an estimated token count.
package chunking

import (
	"maps"
	"regexp"
	"strings"
	"unicode/utf8"
)

// Chunk is one bounded slice of a document's text.
type Chunk struct {
	Index      int               // ordinal within the document, starting at 0
	Text       string            // trimmed chunk content
	TokenCount int               // estimated tokens, not a real tokenizer count
	Start      int               // byte offset of the chunk's novel content in the source
	End        int               // byte offset past the last unit in the chunk
	Metadata   map[string]string // caller-supplied, copied onto every chunk
}

// Chunker accumulates paragraphs (and, for oversized paragraphs, sentences)
// into chunks under a token budget, seeding each new chunk with the trailing
// overlap of the one just closed.
type Chunker struct {
	chunkSize     int
	overlap       int
	charsPerToken int
}

// Config holds chunker settings. ChunkSize and Overlap are expressed in
// estimated tokens; CharsPerToken is the estimate divisor.
type Config struct {
	ChunkSize     int
	Overlap       int
	CharsPerToken int
}

// New creates a Chunker. ChunkSize must exceed Overlap: an overlap as large
// as the budget would re-seed every chunk past its limit and never converge,
// so it is rejected at construction rather than per call.
func New(cfg Config) (*Chunker, error) {
	if cfg.CharsPerToken <= 0 {
		cfg.CharsPerToken = 4
	}
	if cfg.ChunkSize <= 0 {
		return nil, ErrInvalidChunkSize
	}
	if cfg.Overlap < 0 || cfg.Overlap >= cfg.ChunkSize {
		return nil, ErrOverlapTooLarge
	}
	return &Chunker{
		chunkSize:     cfg.ChunkSize,
		overlap:       cfg.Overlap,
		charsPerToken: cfg.CharsPerToken,
	}, nil
}

// unit is a paragraph or sentence with its position in the source text.
type unit struct {
	text  string
	start int
	end   int
}

// Chunk splits text into ordered chunks. Empty or whitespace-only input
// yields no chunks. The metadata map is copied onto every produced chunk.
func (c *Chunker) Chunk(text string, metadata map[string]string) []Chunk {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	var chunks []Chunk
	acc := accumulator{chunker: c, metadata: metadata}

	for _, para := range splitParagraphs(text) {
		if c.estimateTokens(para.text) > c.chunkSize {
			// A single paragraph over budget: close the running chunk and
			// accumulate at sentence granularity instead.
			acc.flush(&chunks)
			for _, sent := range splitSentences(para.text, para.start) {
				acc.add(sent, " ", &chunks)
			}
			continue
		}
		acc.add(para, "\n\n", &chunks)
	}

	acc.flush(&chunks)
	return chunks
}

// EstimateTokens exposes the chunker's token heuristic, len(text)/charsPerToken
// over characters. The divisor is a tunable approximation with no parity to
// any real tokenizer.
func (c *Chunker) EstimateTokens(text string) int {
	return c.estimateTokens(text)
}

func (c *Chunker) estimateTokens(text string) int {
	return utf8.RuneCountInString(text) / c.charsPerToken
}

// accumulator carries the running chunk between units.
type accumulator struct {
	chunker  *Chunker
	metadata map[string]string

	text   string
	tokens int
	start  int
	end    int
}

// add appends a unit to the running chunk, closing it first when the unit
// would push the estimate over the budget. A closed chunk seeds its successor
// with its trailing overlap characters.
func (a *accumulator) add(u unit, sep string, chunks *[]Chunk) {
	tokens := a.chunker.estimateTokens(u.text)

	if a.text != "" && a.tokens+tokens > a.chunker.chunkSize {
		overlap := tailRunes(a.text, a.chunker.overlap)
		a.flush(chunks)
		a.text = overlap + " " + u.text
		a.tokens = a.chunker.estimateTokens(a.text)
		a.start = u.start
		a.end = u.end
		return
	}

	if a.text == "" {
		a.text = u.text
		a.start = u.start
	} else {
		a.text += sep + u.text
	}
	a.end = u.end
	a.tokens += tokens
}

// flush closes the running chunk if it has any content.
func (a *accumulator) flush(chunks *[]Chunk) {
	trimmed := strings.TrimSpace(a.text)
	if trimmed != "" {
		*chunks = append(*chunks, Chunk{
			Index:      len(*chunks),
			Text:       trimmed,
			TokenCount: a.chunker.estimateTokens(trimmed),
			Start:      a.start,
			End:        a.end,
			Metadata:   maps.Clone(a.metadata),
		})
	}
	a.text = ""
	a.tokens = 0
	a.start = 0
	a.end = 0
}

var paragraphBreak = regexp.MustCompile(`\n\s*\n`)

// splitParagraphs splits on blank-line boundaries, keeping source offsets.
func splitParagraphs(text string) []unit {
	var units []unit
	start := 0
	for _, loc := range paragraphBreak.FindAllStringIndex(text, -1) {
		units = appendUnit(units, text, start, loc[0])
		start = loc[1]
	}
	return appendUnit(units, text, start, len(text))
}

var sentenceEnd = regexp.MustCompile(`[.!?]\s+`)

// splitSentences splits on sentence-ending punctuation followed by
// whitespace. The terminator stays with its sentence. base shifts offsets
// into the coordinates of the full document.
func splitSentences(text string, base int) []unit {
	var units []unit
	start := 0
	for _, loc := range sentenceEnd.FindAllStringIndex(text, -1) {
		units = appendOffsetUnit(units, text, start, loc[0]+1, base)
		start = loc[1]
	}
	return appendOffsetUnit(units, text, start, len(text), base)
}

func appendUnit(units []unit, text string, start, end int) []unit {
	return appendOffsetUnit(units, text, start, end, 0)
}

func appendOffsetUnit(units []unit, text string, start, end, base int) []unit {
	segment := text[start:end]
	trimmed := strings.TrimSpace(segment)
	if trimmed == "" {
		return units
	}
	lead := strings.Index(segment, trimmed)
	return append(units, unit{
		text:  trimmed,
		start: base + start + lead,
		end:   base + start + lead + len(trimmed),
	})
}

// tailRunes returns the last n runes of s, never splitting a multi-byte
// character.
func tailRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[len(r)-n:])
}
