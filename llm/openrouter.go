package llm

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// DefaultOpenRouterURL is the OpenAI-compatible OpenRouter endpoint.
const DefaultOpenRouterURL = "https://openrouter.ai/api/v1/"

// DefaultAlternates are tried in order when a model is rate limited.
var DefaultAlternates = []string{
	"nousresearch/deephermes-3-mistral-24b-preview:free",
	"qwen/qwen3-1.7b:free",
}

// OpenRouterConfig configures an OpenRouterProvider.
type OpenRouterConfig struct {
	// APIKey is the OpenRouter API key.
	APIKey string

	// BaseURL overrides the endpoint.
	// Default: DefaultOpenRouterURL
	BaseURL string

	// SiteURL and SiteName are sent as HTTP-Referer and X-Title.
	SiteURL  string
	SiteName string

	// Models maps aliases (e.g. "gemma") to model ids.
	Models map[string]string

	// DefaultModel is the alias or id used when a request names none.
	DefaultModel string

	// Alternates are model ids tried after a rate-limited attempt.
	// Default: DefaultAlternates
	Alternates []string

	// MaxRetries bounds the attempts after the first one.
	// Default: 3
	MaxRetries int

	// MaxTokens caps the reply length.
	// Default: 1024
	MaxTokens int64

	// Temperature is the sampling temperature.
	// Default: 0.7
	Temperature float64
}

// OpenRouterProvider calls OpenRouter with the openai-go client.
type OpenRouterProvider struct {
	client openai.Client
	config OpenRouterConfig
}

// NewOpenRouter creates an OpenRouter provider.
func NewOpenRouter(cfg OpenRouterConfig) *OpenRouterProvider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultOpenRouterURL
	}
	if cfg.Alternates == nil {
		cfg.Alternates = DefaultAlternates
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 1024
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = 0.7
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithBaseURL(cfg.BaseURL),
		// Rate limits are handled by switching models, not by waiting
		option.WithMaxRetries(0),
	}
	if cfg.SiteURL != "" {
		opts = append(opts, option.WithHeader("HTTP-Referer", cfg.SiteURL))
	}
	if cfg.SiteName != "" {
		opts = append(opts, option.WithHeader("X-Title", cfg.SiteName))
	}

	return &OpenRouterProvider{
		client: openai.NewClient(opts...),
		config: cfg,
	}
}

// Resolve maps a model alias to its id. Empty names resolve to the default
// model; names without an alias are used as ids.
func (p *OpenRouterProvider) Resolve(name string) string {
	if name == "" {
		name = p.config.DefaultModel
	}
	if id, ok := p.config.Models[name]; ok {
		return id
	}
	return name
}

// Generate sends the request, switching to the next alternate model each
// time the current one is rate limited.
func (p *OpenRouterProvider) Generate(ctx context.Context, req *Request) (*Response, error) {
	messages := []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(req.SystemPrompt),
	}
	for _, block := range contextBlocks(req) {
		messages = append(messages, openai.SystemMessage(block))
	}
	messages = append(messages, openai.UserMessage(req.UserInput))

	modelID := p.Resolve(req.Model)
	for attempt := 0; attempt <= p.config.MaxRetries; attempt++ {
		start := time.Now()
		resp, err := p.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
			Model:               modelID,
			Messages:            messages,
			Temperature:         openai.Float(p.config.Temperature),
			MaxCompletionTokens: openai.Int(p.config.MaxTokens),
		})
		elapsed := time.Since(start)

		if isRateLimited(err) {
			next := p.alternate(modelID)
			log.Printf("[LLM] Rate limit exceeded for %s, switching to %s (attempt %d/%d)",
				modelID, next, attempt+1, p.config.MaxRetries+1)
			modelID = next
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("openrouter completion (%s): %w", modelID, err)
		}
		if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
			return nil, fmt.Errorf("openrouter completion (%s): %w", modelID, ErrEmptyResponse)
		}

		used := resp.Model
		if used == "" {
			used = modelID
		}
		return &Response{
			Text:    resp.Choices[0].Message.Content,
			Model:   displayModel(used),
			Elapsed: elapsed,
		}, nil
	}

	log.Printf("[LLM] Failed to generate response after %d attempts", p.config.MaxRetries+1)
	return nil, ErrRateLimited
}

// alternate returns the model to try after current was rate limited: the
// alternate following current, wrapping to the first.
func (p *OpenRouterProvider) alternate(current string) string {
	alts := p.config.Alternates
	if len(alts) == 0 {
		return current
	}
	for i, id := range alts {
		if id == current && i+1 < len(alts) {
			return alts[i+1]
		}
	}
	return alts[0]
}

func isRateLimited(err error) bool {
	var apiErr *openai.Error
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusTooManyRequests
}
