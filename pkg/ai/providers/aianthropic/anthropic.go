package aianthropic

import (
	"context"
	"os"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const defaultModel = "claude-sonnet-4-20250514"

type messageService interface {
	New(ctx context.Context, body anthropic.MessageNewParams, opts ...option.RequestOption) (*anthropic.Message, error)
}

// ProviderOption configures the Anthropic provider
type ProviderOption func(*AnthropicProvider)

// WithModel sets the model used for completions.
func WithModel(model string) ProviderOption {
	return func(p *AnthropicProvider) {
		if model != "" {
			p.model = model
		}
	}
}

// WithMaxTokens caps the length of a completion.
func WithMaxTokens(n int64) ProviderOption {
	return func(p *AnthropicProvider) {
		if n > 0 {
			p.maxTokens = n
		}
	}
}

// AnthropicProvider writes text with Anthropic Claude.
type AnthropicProvider struct {
	messages  messageService
	apiKey    string
	model     string
	maxTokens int64
}

// NewAnthropicProvider creates a new Anthropic provider
func NewAnthropicProvider(apiKey string, opts ...ProviderOption) *AnthropicProvider {
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
	}

	client := anthropic.NewClient(option.WithAPIKey(apiKey))

	p := &AnthropicProvider{
		messages:  &client.Messages,
		apiKey:    apiKey,
		model:     defaultModel,
		maxTokens: 2048,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Complete returns the model's text answer to prompt under the given system instructions.
func (p *AnthropicProvider) Complete(ctx context.Context, system, prompt string) (string, error) {
	if p.apiKey == "" {
		return "", errorRegistry.New(ErrMissingAPIKey)
	}
	if strings.TrimSpace(prompt) == "" {
		return "", errorRegistry.New(ErrEmptyPrompt)
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model),
		MaxTokens: p.maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	message, err := p.messages.New(ctx, params)
	if err != nil {
		return "", ParseAnthropicError(err).WithDetail("model", p.model)
	}

	var sb strings.Builder
	for _, block := range message.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	text := strings.TrimSpace(sb.String())
	if text == "" {
		return "", errorRegistry.New(ErrEmptyResponse).
			WithDetail("model", p.model).
			WithDetail("stop_reason", string(message.StopReason))
	}
	return text, nil
}
