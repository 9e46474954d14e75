package llm

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGenerate_NilClientDegrades(t *testing.T) {
	g := NewGenerator(nil, Config{Model: "gpt-4-turbo-preview"}, nil)

	got := g.Generate(context.Background(), "What is the VAT rate?", "some context", nil)

	assert.Equal(t, "The language model is not configured. Please contact the administrator.", got)
}

func TestBuildSystemPrompt_EmbedsContext(t *testing.T) {
	g := NewGenerator(nil, Config{}, nil)

	retrievalContext := "[Document 1: Tax Code Article 157 (law)]\nVAT registration threshold."
	prompt := g.buildSystemPrompt(retrievalContext)

	assert.Contains(t, prompt, retrievalContext)
	assert.Contains(t, prompt, "Answer ONLY from the provided context")
	assert.Contains(t, prompt, "cite the sources")
	assert.Contains(t, prompt, "Answer in the language of the user's question")
	assert.True(t, strings.Index(prompt, "Rules:") < strings.Index(prompt, retrievalContext),
		"rules come before the context block")
}
