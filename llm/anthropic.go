package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicConfig configures an AnthropicProvider.
type AnthropicConfig struct {
	APIKey string

	// BaseURL overrides the API endpoint.
	BaseURL string

	// Models maps aliases to model ids.
	Models map[string]string

	// Model is the default alias or model id.
	// Default: "claude-sonnet-4-20250514"
	Model string

	// MaxTokens caps the reply length.
	// Default: 1024
	MaxTokens int64
}

// AnthropicProvider calls the Anthropic Messages API.
type AnthropicProvider struct {
	client anthropic.Client
	config AnthropicConfig
}

// NewAnthropic creates an Anthropic provider.
func NewAnthropic(cfg AnthropicConfig) *AnthropicProvider {
	if cfg.Model == "" {
		cfg.Model = "claude-sonnet-4-20250514"
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 1024
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &AnthropicProvider{
		client: anthropic.NewClient(opts...),
		config: cfg,
	}
}

// Resolve maps an alias to its model id. Unknown names are used as ids;
// "" selects the default model.
func (p *AnthropicProvider) Resolve(name string) string {
	if name == "" {
		name = p.config.Model
	}
	if id, ok := p.config.Models[name]; ok {
		return id
	}
	return name
}

// Generate sends one Messages request. History and search context are
// appended to the system prompt.
func (p *AnthropicProvider) Generate(ctx context.Context, req *Request) (*Response, error) {
	model := p.Resolve(req.Model)

	system := strings.Join(append([]string{req.SystemPrompt}, contextBlocks(req)...), "\n\n")

	start := time.Now()
	resp, err := p.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: p.config.MaxTokens,
		System: []anthropic.TextBlockParam{
			{Text: system},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.UserInput)),
		},
	})
	elapsed := time.Since(start)
	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusTooManyRequests {
			return nil, fmt.Errorf("claude api error: %w", ErrRateLimited)
		}
		return nil, fmt.Errorf("claude api error: %w", err)
	}

	var text string
	for _, block := range resp.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyResponse
	}

	return &Response{
		Text:    text,
		Model:   string(resp.Model),
		Elapsed: elapsed,
	}, nil
}
