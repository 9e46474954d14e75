// Package embedding turns text into fixed-dimension vectors using OpenAI's
// multilingual embedding models.
package embedding

import (
	"os"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// Client wraps the OpenAI client for embedding generation. A Client without
// credentials is valid but degraded: it produces no embeddings and the
// Embedder substitutes zero vectors.
type Client struct {
	client *openai.Client
}

// NewClient creates an OpenAI client from the OPENAI_API_KEY environment
// variable. A missing key yields a degraded client rather than an error, so
// the rest of the system can boot with retrieval-only capability.
func NewClient() *Client {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		return &Client{}
	}
	client := openai.NewClient(option.WithAPIKey(apiKey))
	return &Client{client: &client}
}

// Available reports whether the underlying API client was initialized.
func (c *Client) Available() bool {
	return c.client != nil
}

// Client returns the underlying OpenAI client, or nil when degraded. Shared
// with the llm package so both use one connection pool.
func (c *Client) Client() *openai.Client {
	return c.client
}
