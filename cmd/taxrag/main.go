// Package main provides the taxrag CLI for corpus ingestion, ad-hoc queries
// and store maintenance.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/infohub-ai/taxrag/internal/cache"
	"github.com/infohub-ai/taxrag/internal/chunking"
	"github.com/infohub-ai/taxrag/internal/config"
	"github.com/infohub-ai/taxrag/internal/embedding"
	"github.com/infohub-ai/taxrag/internal/llm"
	"github.com/infohub-ai/taxrag/internal/pipeline"
	"github.com/infohub-ai/taxrag/internal/vectorstore"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "taxrag",
	Short: "Tax legislation retrieval-augmented question answering",
	Long:  "CLI for managing the tax document corpus and answering questions against it",
}

var ingestCmd = &cobra.Command{
	Use:   "ingest <documents.json>...",
	Short: "Chunk, embed and store documents",
	Long: `Reads JSON files containing document arrays produced by the crawler,
splits each document into chunks, generates embeddings and upserts them
into the configured vector store. Re-ingesting unchanged documents is
idempotent.

Environment variables:
  OPENAI_API_KEY OpenAI API key for embeddings (required for real vectors)`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIngest,
}

var queryCmd = &cobra.Command{
	Use:   "query <question>",
	Short: "Answer a question from the corpus",
	Args:  cobra.ExactArgs(1),
	RunE:  runQuery,
}

var reindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "Build the approximate search index (pgvector backend only)",
	Long: `Builds the HNSW index on the embedding column. Index building is an
explicit maintenance operation: writes never trigger it implicitly.`,
	RunE: runReindex,
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print vector store statistics",
	RunE:  runStats,
}

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove every chunk from the vector store",
	RunE:  runClear,
}

var queryLanguage string

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config/local.yaml", "configuration file")
	queryCmd.Flags().StringVarP(&queryLanguage, "language", "l", "ka", "query language (ka, ru, en)")
	rootCmd.AddCommand(ingestCmd, queryCmd, reindexCmd, statsCmd, clearCmd)
}

func main() {
	// Load .env if present (local development), ignore if missing.
	_ = godotenv.Load()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// components bundles everything the subcommands wire together at startup.
type components struct {
	cfg    config.Config
	logger *slog.Logger
	store  vectorstore.Store
}

func setup(ctx context.Context) (*components, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	logger := newLogger(cfg.Logging.Level)
	slog.SetDefault(logger)

	store, err := vectorstore.New(ctx, cfg.Store, cfg.Embedding.Dimension, logger)
	if err != nil {
		return nil, fmt.Errorf("create vector store: %w", err)
	}

	return &components{cfg: cfg, logger: logger, store: store}, nil
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

// newEmbedder creates the OpenAI client and embedder. The client is shared
// with the generator so both use one connection pool.
func newEmbedder(c *components) (*embedding.Embedder, *embedding.Client) {
	client := embedding.NewClient()
	if !client.Available() {
		c.logger.Warn("OPENAI_API_KEY not set, embeddings degrade to zero vectors")
	}
	embedder := embedding.NewEmbedder(client, embedding.Config{
		Model:     c.cfg.Embedding.Model,
		Dimension: c.cfg.Embedding.Dimension,
		BatchSize: c.cfg.Embedding.BatchSize,
	}, c.logger)
	return embedder, client
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	c, err := setup(ctx)
	if err != nil {
		return err
	}
	defer c.store.Close()

	chunker, err := chunking.New(chunking.Config{
		ChunkSize:     c.cfg.Chunking.ChunkSize,
		Overlap:       c.cfg.Chunking.Overlap,
		CharsPerToken: c.cfg.Chunking.CharsPerToken,
	})
	if err != nil {
		return fmt.Errorf("create chunker: %w", err)
	}

	var docs []pipeline.Document
	for _, path := range args {
		batch, err := readDocuments(path)
		if err != nil {
			return err
		}
		docs = append(docs, batch...)
	}
	fmt.Printf("Ingesting %d documents...\n", len(docs))

	embedder, _ := newEmbedder(c)
	ingestor := pipeline.NewIngestor(chunker, embedder, c.store, c.cfg.Ingest.Concurrency, c.logger)
	result := ingestor.IngestAll(ctx, docs)

	fmt.Println()
	fmt.Println("Ingestion complete")
	fmt.Printf("  Documents: %d/%d\n", result.SuccessfulDocs, result.TotalDocs)
	fmt.Printf("  Chunks:    %d\n", result.TotalChunks)
	fmt.Printf("  Duration:  %s\n", result.Duration.Round(time.Millisecond))

	if len(result.FailedDocs) > 0 {
		fmt.Println()
		fmt.Println("Failed documents:")
		for _, failed := range result.FailedDocs {
			fmt.Printf("  - %s: %s\n", failed.ID, failed.Reason)
		}
	}
	return nil
}

func runQuery(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	c, err := setup(ctx)
	if err != nil {
		return err
	}
	defer c.store.Close()

	embedder, client := newEmbedder(c)
	generator := llm.NewGenerator(client.Client(), llm.Config{
		Model:       c.cfg.LLM.Model,
		Temperature: c.cfg.LLM.Temperature,
		MaxTokens:   c.cfg.LLM.MaxTokens,
	}, c.logger)
	responseCache := cache.New(c.cfg.Cache, c.logger)

	p := pipeline.NewPipeline(embedder, c.store, generator, responseCache, pipeline.Config{
		TopK:        c.cfg.Retrieval.TopK,
		ContextTopK: c.cfg.Retrieval.ContextTopK,
		MaxSources:  c.cfg.Retrieval.MaxSources,
	}, c.logger)

	result := p.ProcessQuery(ctx, args[0], nil, queryLanguage)

	fmt.Println(result.Response)
	if len(result.Sources) > 0 {
		fmt.Println()
		fmt.Println("Sources:")
		for _, source := range result.Sources {
			fmt.Printf("  - %s (%s) relevance=%.2f\n    %s\n", source.Title, source.Type, source.Relevance, source.URL)
		}
	}
	fmt.Printf("\nRetrieved chunks: %d\n", result.RetrievedCount)
	return nil
}

func runReindex(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	c, err := setup(ctx)
	if err != nil {
		return err
	}
	defer c.store.Close()

	pg, ok := c.store.(*vectorstore.PgVectorStore)
	if !ok {
		return fmt.Errorf("reindex applies to the pgvector backend, configured backend is %q", c.cfg.Store.Backend)
	}

	fmt.Println("Building HNSW index...")
	if err := pg.EnsureIndex(ctx); err != nil {
		return err
	}
	fmt.Println("Index ready")
	return nil
}

func runStats(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	c, err := setup(ctx)
	if err != nil {
		return err
	}
	defer c.store.Close()

	count, err := c.store.Count(ctx)
	if err != nil {
		return fmt.Errorf("count: %w", err)
	}
	fmt.Printf("Backend: %s\n", c.cfg.Store.Backend)
	fmt.Printf("Chunks:  %d\n", count)
	return nil
}

func runClear(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	c, err := setup(ctx)
	if err != nil {
		return err
	}
	defer c.store.Close()

	if err := c.store.Clear(ctx); err != nil {
		return fmt.Errorf("clear: %w", err)
	}
	fmt.Println("Store cleared")
	return nil
}

// readDocuments parses a crawler output file: a JSON array of documents.
func readDocuments(path string) ([]pipeline.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var docs []pipeline.Document
	if err := json.Unmarshal(data, &docs); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return docs, nil
}
