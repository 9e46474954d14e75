// Package llm generates answers from assembled retrieval context using a
// hosted chat-completion model.
package llm

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/openai/openai-go"
)

// maxHistoryTurns bounds the prompt size: only the most recent turns of the
// conversation are forwarded to the model.
const maxHistoryTurns = 5

// Turn is one prior message of the conversation.
type Turn struct {
	Role    string `json:"role"` // "user" or "assistant"
	Content string `json:"content"`
}

// Generator produces an answer for a query given retrieval context.
type Generator struct {
	client      *openai.Client
	model       string
	temperature float64
	maxTokens   int
	logger      *slog.Logger
}

// Config holds generation settings.
type Config struct {
	Model       string
	Temperature float64
	MaxTokens   int
}

// NewGenerator creates a Generator. A nil client (missing credentials) is
// allowed: generation degrades to a static explanatory message while
// retrieval keeps working.
func NewGenerator(client *openai.Client, cfg Config, logger *slog.Logger) *Generator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{
		client:      client,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		logger:      logger,
	}
}

// Generate returns the model's answer. Failures never propagate: a call-time
// error comes back as a textual message the pipeline treats as the answer.
func (g *Generator) Generate(ctx context.Context, query, retrievalContext string, history []Turn) string {
	if g.client == nil {
		return "The language model is not configured. Please contact the administrator."
	}

	messages := []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(g.buildSystemPrompt(retrievalContext)),
	}
	if len(history) > maxHistoryTurns {
		history = history[len(history)-maxHistoryTurns:]
	}
	for _, turn := range history {
		switch turn.Role {
		case "assistant":
			messages = append(messages, openai.AssistantMessage(turn.Content))
		default:
			messages = append(messages, openai.UserMessage(turn.Content))
		}
	}
	messages = append(messages, openai.UserMessage(query))

	resp, err := g.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages:            messages,
		Model:               g.model,
		Temperature:         openai.Float(g.temperature),
		MaxCompletionTokens: openai.Int(int64(g.maxTokens)),
	})
	if err != nil {
		g.logger.Warn("Chat completion failed", "error", err)
		return fmt.Sprintf("Error generating response: %v", err)
	}
	if len(resp.Choices) == 0 {
		g.logger.Warn("Chat completion returned no choices")
		return "Error generating response: empty completion"
	}

	return resp.Choices[0].Message.Content
}

// buildSystemPrompt embeds the assembled context into the fixed instruction
// prompt. The rules pin the model to the supplied context and to the user's
// language.
func (g *Generator) buildSystemPrompt(retrievalContext string) string {
	return fmt.Sprintf(`You are an AI assistant for Georgian tax legislation.
Your task is to provide accurate information based on official documents.

Rules:
1. Answer ONLY from the provided context
2. ALWAYS cite the sources of your information
3. If the context is insufficient, say so explicitly
4. Do NOT invent information
5. Answer in the language of the user's question
6. Structure the answer clearly
7. When quoting law, name the article and document number

Context from the document database:
%s

Provide a detailed and accurate answer with sources.`, retrievalContext)
}
