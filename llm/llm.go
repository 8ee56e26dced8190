// Package llm generates assistant replies from a chat model.
//
// Two providers are available: OpenRouter through the OpenAI-compatible
// chat completions API, with alternate models tried on rate limiting, and
// Anthropic through the Messages API.
package llm

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	// ErrRateLimited is returned when every candidate model was rate limited.
	ErrRateLimited = errors.New("llm: rate limited on all models")

	// ErrEmptyResponse is returned when the model produced no text.
	ErrEmptyResponse = errors.New("llm: empty response")
)

// Request is one reply generation.
type Request struct {
	// SystemPrompt carries instructions and any injected memory context.
	SystemPrompt string

	// History is the formatted conversation history, if any.
	History string

	// SearchContext is optional reference material for the reply.
	SearchContext string

	// UserInput is the message being answered.
	UserInput string

	// Model is a model alias or provider model id. Empty uses the
	// provider's default.
	Model string
}

// Response is a generated reply.
type Response struct {
	Text    string
	Model   string
	Elapsed time.Duration
}

// Provider generates replies.
type Provider interface {
	Generate(ctx context.Context, req *Request) (*Response, error)
}

// contextBlocks returns the non-empty history and search blocks in prompt
// order.
func contextBlocks(req *Request) []string {
	var blocks []string
	if h := strings.TrimSpace(req.History); h != "" {
		blocks = append(blocks, "Conversation history:\n"+h)
	}
	if s := strings.TrimSpace(req.SearchContext); s != "" {
		blocks = append(blocks, "Search results:\n"+s)
	}
	return blocks
}

// displayModel strips the routing suffix (":free") from a model id.
func displayModel(id string) string {
	name, _, _ := strings.Cut(id, ":")
	return name
}
