package embedding

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDegradedEmbedder(t *testing.T) *Embedder {
	t.Helper()
	t.Setenv("OPENAI_API_KEY", "")
	client := NewClient()
	require.False(t, client.Available())
	return NewEmbedder(client, Config{Model: "text-embedding-3-small", Dimension: 768}, nil)
}

func TestEncode_DegradedClientReturnsZeroVectors(t *testing.T) {
	e := newDegradedEmbedder(t)

	vectors := e.Encode(context.Background(), []string{"დღგ-ის განაკვეთი", "income tax"})

	require.Len(t, vectors, 2)
	for _, vec := range vectors {
		require.Len(t, vec, 768)
		for _, v := range vec {
			assert.Zero(t, v)
		}
	}
}

func TestEncode_EmptyInput(t *testing.T) {
	e := newDegradedEmbedder(t)
	assert.Nil(t, e.Encode(context.Background(), nil))
}

func TestEncodeQuery_MatchesEncode(t *testing.T) {
	e := newDegradedEmbedder(t)

	query := e.EncodeQuery(context.Background(), "VAT threshold")
	batch := e.Encode(context.Background(), []string{"VAT threshold"})

	require.Len(t, batch, 1)
	assert.Equal(t, batch[0], query)
	assert.Len(t, query, e.Dimension())
}

func TestNewEmbedder_DefaultBatchSize(t *testing.T) {
	e := NewEmbedder(NewClient(), Config{Dimension: 768}, nil)
	assert.Equal(t, DefaultBatchSize, e.batchSize)
}
