package llm

import (
	"context"

	"github.com/sashabaranov/go-openai"
)

// Client is the one openai.Client method the Completer calls. Tests swap in
// a fake that records requests and returns canned responses.
type Client interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}
