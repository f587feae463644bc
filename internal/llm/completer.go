package llm

import (
	"context"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/comigor/writer-chat/internal/config"
	"github.com/comigor/writer-chat/internal/logger"
)

// Message is one role/content pair of a completion request.
type Message struct {
	Role    string
	Content string
}

// Completer issues a single chat completion per call with fixed generation
// parameters. It keeps no state between calls.
type Completer struct {
	client      Client
	model       string
	temperature float32
	maxTokens   int
}

// NewCompleter binds a client to the model and generation parameters in cfg.
func NewCompleter(client Client, cfg config.LLMConfig) *Completer {
	return &Completer{
		client:      client,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
	}
}

// Complete sends msgs, system message first, and returns the trimmed text of
// the first choice. Failures are *CompletionError or *EmptyResponseError.
func (c *Completer) Complete(ctx context.Context, msgs []Message) (string, error) {
	if len(msgs) == 0 || msgs[0].Role != openai.ChatMessageRoleSystem {
		return "", ErrInvalidRequest
	}

	req := openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    make([]openai.ChatCompletionMessage, 0, len(msgs)),
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	}
	for _, m := range msgs {
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}

	logger.L.Debug("completion request", "model", c.model, "messages", len(req.Messages))
	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		cerr := &CompletionError{Err: err}
		logger.L.Error("completion failed", "error", err, "provider", cerr.Provider(), "status", cerr.StatusCode())
		return "", cerr
	}

	if len(resp.Choices) == 0 {
		return "", &EmptyResponseError{Reason: "no choices returned"}
	}
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return "", &EmptyResponseError{Reason: "first choice has no content"}
	}

	logger.L.Debug("completion received", "id", resp.ID, "finish_reason", resp.Choices[0].FinishReason, "total_tokens", resp.Usage.TotalTokens)
	return content, nil
}
