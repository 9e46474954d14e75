package embedding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/openai/openai-go"
)

// DefaultBatchSize bounds memory and request size during bulk ingestion.
// Batch size affects throughput only, never output values.
const DefaultBatchSize = 32

// Encoder is the embedding contract consumed by the pipeline.
type Encoder interface {
	Encode(ctx context.Context, texts []string) [][]float32
	EncodeQuery(ctx context.Context, text string) []float32
	Dimension() int
}

// Embedder generates embeddings in batches with exponential backoff on rate
// limits. When the client is degraded or a call fails permanently, it returns
// zero vectors of the configured dimension instead of an error; callers treat
// an all-zero vector as "no semantic information available" and similarity
// search over it degenerates to near-equal low scores rather than a crash.
type Embedder struct {
	client    *Client
	model     string
	dimension int
	batchSize int
	logger    *slog.Logger
}

// Config holds embedder settings.
type Config struct {
	Model     string
	Dimension int
	BatchSize int
}

// NewEmbedder creates an Embedder with the given client and settings.
func NewEmbedder(client *Client, cfg Config, logger *slog.Logger) *Embedder {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Embedder{
		client:    client,
		model:     cfg.Model,
		dimension: cfg.Dimension,
		batchSize: cfg.BatchSize,
		logger:    logger,
	}
}

// Dimension returns the fixed vector dimension every call produces.
func (e *Embedder) Dimension() int {
	return e.dimension
}

// Encode generates embeddings for texts, batched. The result always has one
// vector of the configured dimension per input text.
func (e *Embedder) Encode(ctx context.Context, texts []string) [][]float32 {
	if len(texts) == 0 {
		return nil
	}
	if !e.client.Available() {
		return e.zeroVectors(len(texts))
	}

	all := make([][]float32, 0, len(texts))
	for i := 0; i < len(texts); i += e.batchSize {
		end := min(i+e.batchSize, len(texts))
		batch := texts[i:end]

		vectors, err := e.encodeBatchWithRetry(ctx, batch)
		if err != nil {
			e.logger.Warn("Embedding batch failed, substituting zero vectors",
				"from", i, "to", end, "error", err)
			vectors = e.zeroVectors(len(batch))
		}
		all = append(all, vectors...)
	}
	return all
}

// EncodeQuery generates the embedding for a single query text. It is exactly
// Encode([]string{text})[0].
func (e *Embedder) EncodeQuery(ctx context.Context, text string) []float32 {
	return e.Encode(ctx, []string{text})[0]
}

// encodeBatchWithRetry embeds one batch, retrying rate-limit errors with
// exponential backoff. Other API errors are permanent.
func (e *Embedder) encodeBatchWithRetry(ctx context.Context, texts []string) ([][]float32, error) {
	var vectors [][]float32

	operation := func() error {
		resp, err := e.client.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
			Input: openai.EmbeddingNewParamsInputUnion{
				OfArrayOfStrings: texts,
			},
			Model:      e.model,
			Dimensions: openai.Int(int64(e.dimension)),
		})
		if err != nil {
			if isRateLimitError(err) {
				return err
			}
			return backoff.Permanent(err)
		}

		if len(resp.Data) != len(texts) {
			return backoff.Permanent(fmt.Errorf("expected %d embeddings, got %d", len(texts), len(resp.Data)))
		}

		vectors = make([][]float32, len(resp.Data))
		for i, data := range resp.Data {
			vectors[i] = toFloat32(data.Embedding)
		}
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 30 * time.Second

	err := backoff.Retry(operation, backoff.WithContext(b, ctx))
	return vectors, err
}

func (e *Embedder) zeroVectors(n int) [][]float32 {
	vectors := make([][]float32, n)
	for i := range vectors {
		vectors[i] = make([]float32, e.dimension)
	}
	return vectors
}

// isRateLimitError checks for HTTP 429 responses.
func isRateLimitError(err error) bool {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429
	}
	return false
}

// toFloat32 converts the API's float64 vectors to float32 for storage.
func toFloat32(f64 []float64) []float32 {
	f32 := make([]float32, len(f64))
	for i, v := range f64 {
		f32[i] = float32(v)
	}
	return f32
}
