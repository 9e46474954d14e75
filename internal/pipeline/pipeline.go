// Package pipeline orchestrates retrieval-augmented query processing:
// embed, search, assemble context, generate, attribute sources.
package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/infohub-ai/taxrag/internal/cache"
	"github.com/infohub-ai/taxrag/internal/embedding"
	"github.com/infohub-ai/taxrag/internal/llm"
	"github.com/infohub-ai/taxrag/internal/vectorstore"
)

const cacheKeyPrefix = "taxrag:response:"

// noContextSentence keeps the generator prompt well-formed when retrieval
// finds nothing.
const noContextSentence = "No relevant information is available in the document database."

// Generator is the answer-generation contract the pipeline consumes.
// Implementations never return errors; failures come back as text.
type Generator interface {
	Generate(ctx context.Context, query, retrievalContext string, history []llm.Turn) string
}

// Source is one cited document in a query result.
type Source struct {
	DocumentID string  `json:"document_id"`
	Title      string  `json:"title"`
	Type       string  `json:"type"`
	URL        string  `json:"url"`
	Relevance  float32 `json:"relevance"`
}

// QueryResult is the pipeline's answer payload.
type QueryResult struct {
	Response       string   `json:"response"`
	Sources        []Source `json:"sources"`
	RetrievedCount int      `json:"retrieved_count"`
}

// Config holds query-time retrieval settings.
type Config struct {
	TopK        int // candidates fetched from the store
	ContextTopK int // candidates rendered into the prompt
	MaxSources  int // unique documents cited per answer
}

// Pipeline processes queries. It holds no mutable state between queries
// besides the shared response cache, so one instance serves concurrent
// requests.
type Pipeline struct {
	encoder   embedding.Encoder
	store     vectorstore.Store
	generator Generator
	cache     cache.ResponseCache
	cfg       Config
	logger    *slog.Logger
}

// NewPipeline creates a query pipeline from its collaborators.
func NewPipeline(encoder embedding.Encoder, store vectorstore.Store, generator Generator, responseCache cache.ResponseCache, cfg Config, logger *slog.Logger) *Pipeline {
	if responseCache == nil {
		responseCache = cache.Noop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		encoder:   encoder,
		store:     store,
		generator: generator,
		cache:     responseCache,
		cfg:       cfg,
		logger:    logger,
	}
}

// ProcessQuery answers a query from the document corpus. The caller never
// sees an error: every failure inside the pipeline degrades to an apologetic
// response in the query's language. Results are cached by (query, language)
// fingerprint; cache lookups are best-effort.
func (p *Pipeline) ProcessQuery(ctx context.Context, query string, history []llm.Turn, language string) QueryResult {
	key := responseKey(query, language)
	if data, ok := p.cache.Get(ctx, key); ok {
		var cached QueryResult
		if err := json.Unmarshal(data, &cached); err == nil {
			p.logger.Debug("Response cache hit", "language", language)
			return cached
		}
		p.logger.Warn("Discarding malformed cache entry", "key", key)
	}

	result, ok := p.processQuery(ctx, query, history, language)

	// Degraded responses are transient; caching one would pin the failure
	// for the whole TTL.
	if ok {
		if data, err := json.Marshal(result); err == nil {
			p.cache.Set(ctx, key, data)
		}
	}
	return result
}

func (p *Pipeline) processQuery(ctx context.Context, query string, history []llm.Turn, language string) (result QueryResult, ok bool) {
	// The pipeline boundary: nothing below may surface as a panic or error
	// to the caller.
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("Query pipeline panic", "panic", r)
			result = degradedResult(language)
			ok = false
		}
	}()

	queryEmbedding := p.encoder.EncodeQuery(ctx, query)

	var filter map[string]string
	if language != "" {
		filter = map[string]string{"language": language}
	}

	candidates, err := p.store.Search(ctx, queryEmbedding, p.cfg.TopK, filter)
	if err != nil {
		// Backend failure means "no relevant documents", not a dead request:
		// the generator still gets a well-formed prompt.
		p.logger.Warn("Vector search failed, answering without context", "error", err)
		candidates = nil
	}
	p.logger.Debug("Retrieved candidates", "count", len(candidates), "language", language)

	retrievalContext := p.assembleContext(candidates)
	response := p.generator.Generate(ctx, query, retrievalContext, history)
	sources := p.collectSources(candidates)

	return QueryResult{
		Response:       response,
		Sources:        sources,
		RetrievedCount: len(candidates),
	}, true
}

// assembleContext renders the top candidates as labeled blocks for the
// generator prompt.
func (p *Pipeline) assembleContext(candidates []vectorstore.SearchResult) string {
	if len(candidates) == 0 {
		return noContextSentence
	}

	limit := min(p.cfg.ContextTopK, len(candidates))
	blocks := make([]string, 0, limit)
	for i, candidate := range candidates[:limit] {
		title := candidate.Metadata["title"]
		if title == "" {
			title = "Untitled document"
		}
		blocks = append(blocks, fmt.Sprintf("[Document %d: %s (%s)]\n%s\n",
			i+1, title, candidate.Metadata["type"], candidate.Text))
	}
	return strings.Join(blocks, "\n---\n")
}

// collectSources deduplicates candidates by document ID in ranked order, so
// multiple chunks from one document collapse to a single citation carrying
// the highest-ranked similarity.
func (p *Pipeline) collectSources(candidates []vectorstore.SearchResult) []Source {
	sources := []Source{}
	seen := make(map[string]bool)

	for _, candidate := range candidates {
		docID := candidate.Metadata["document_id"]
		if docID == "" || seen[docID] {
			continue
		}
		seen[docID] = true

		sources = append(sources, Source{
			DocumentID: docID,
			Title:      candidate.Metadata["title"],
			Type:       candidate.Metadata["type"],
			URL:        candidate.Metadata["url"],
			Relevance:  candidate.Similarity,
		})
		if len(sources) == p.cfg.MaxSources {
			break
		}
	}
	return sources
}

// degradedResult is the pipeline's last-resort answer, localized to the
// query's language.
func degradedResult(language string) QueryResult {
	var response string
	switch language {
	case "ka":
		response = "უკაცრავად, თქვენი მოთხოვნის დამუშავებისას მოხდა შეცდომა. გთხოვთ, სცადოთ მოგვიანებით."
	case "ru":
		response = "Извините, произошла ошибка при обработке запроса. Пожалуйста, попробуйте позже."
	default:
		response = "Sorry, something went wrong while processing your request. Please try again later."
	}
	return QueryResult{
		Response:       response,
		Sources:        []Source{},
		RetrievedCount: 0,
	}
}

// responseKey fingerprints (query, language) for the response cache.
func responseKey(query, language string) string {
	h := sha256.New()
	h.Write([]byte(query))
	h.Write([]byte{0})
	h.Write([]byte(language))
	return cacheKeyPrefix + hex.EncodeToString(h.Sum(nil))
}
