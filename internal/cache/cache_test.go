package cache

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/infohub-ai/taxrag/internal/config"
)

func TestNew_DisabledReturnsNoop(t *testing.T) {
	c := New(config.CacheConfig{Enabled: false}, nil)
	assert.IsType(t, Noop{}, c)
}

func TestNoop_AlwaysMisses(t *testing.T) {
	ctx := context.Background()
	c := Noop{}

	c.Set(ctx, "key", []byte("value"))
	data, ok := c.Get(ctx, "key")
	assert.False(t, ok)
	assert.Nil(t, data)
}
