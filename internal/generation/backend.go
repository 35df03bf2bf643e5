package generation

import (
	"context"

	"github.com/lamim/folioforge/internal/api"
	"github.com/lamim/folioforge/internal/config"
)

// Prompt is one request to the text generation capability
type Prompt struct {
	System   string
	User     string
	JSONMode bool
}

// Backend performs a single generation attempt. Failures should be
// *api.APIError so the retry policy can classify them.
type Backend interface {
	Generate(ctx context.Context, p Prompt) (string, error)
}

// ChatBackend generates text through an OpenAI-compatible endpoint
type ChatBackend struct {
	client *api.Client
	model  config.ModelConfig
	apiKey string
}

// NewChatBackend binds an API client to one model and key
func NewChatBackend(client *api.Client, model config.ModelConfig, apiKey string) *ChatBackend {
	return &ChatBackend{client: client, model: model, apiKey: apiKey}
}

// Generate sends one chat completion request
func (b *ChatBackend) Generate(ctx context.Context, p Prompt) (string, error) {
	messages := make([]api.Message, 0, 2)
	if p.System != "" {
		messages = append(messages, api.Message{Role: "system", Content: p.System})
	}
	messages = append(messages, api.Message{Role: "user", Content: p.User})

	resp, err := b.client.ChatCompletion(ctx, b.model, b.apiKey, messages, p.JSONMode)
	if err != nil {
		return "", err
	}
	return resp.Choices[0].Message.Content, nil
}
