package engine

import (
	"context"
	"errors"
	"log"
	"regexp"
	"time"

	"github.com/becomeliminal/nim-recall/llm"
	"github.com/becomeliminal/nim-recall/memory"
)

// Replies used when no model answer is available.
const (
	LocalOnlyReply = "I'm running in local-only mode with limited functionality. " +
		"To enable full functionality, please set the OPENROUTER_API_KEY in your config."
	BusyReply    = "I'm currently experiencing high demand. Please try again in a few moments."
	FailureReply = "I'm sorry, I couldn't generate a response at this time. (Running in local-only mode)"
)

// LocalModel is the model name reported for replies produced without a model.
const LocalModel = "local"

var namePattern = regexp.MustCompile(`(?i)my name is\s+([A-Za-z]+)`)

// Memory is the conversation memory used by the engine.
// *memory.Manager satisfies it.
type Memory interface {
	GetFormattedHistory(ctx context.Context, threadID string, limit int) string
	GetRelevantContext(ctx context.Context, query string, useSemantic bool) string
	AddConversation(ctx context.Context, userInput, aiResponse string, opts ...memory.AddOption) error
	AddUserInfo(key string, value any) error
}

// Engine runs one assistant turn: it recalls memories, asks the model for a
// reply and records the exchange.
type Engine struct {
	memory       Memory
	provider     llm.Provider // Optional: nil runs in local-only mode
	systemPrompt string
	historyLimit int
}

// Option configures the engine.
type Option func(*Engine)

// WithProvider sets the reply model. Without one the engine answers
// locally.
func WithProvider(p llm.Provider) Option {
	return func(e *Engine) {
		e.provider = p
	}
}

// WithSystemPrompt replaces DefaultSystemPrompt.
func WithSystemPrompt(prompt string) Option {
	return func(e *Engine) {
		e.systemPrompt = prompt
	}
}

// WithHistoryLimit sets how many recent turns are sent as history.
// Default: 5
func WithHistoryLimit(n int) Option {
	return func(e *Engine) {
		e.historyLimit = n
	}
}

// NewEngine creates an engine over the given memory.
func NewEngine(mem Memory, opts ...Option) *Engine {
	e := &Engine{
		memory:       mem,
		systemPrompt: DefaultSystemPrompt,
		historyLimit: 5,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// LocalOnly reports whether the engine runs without a model.
func (e *Engine) LocalOnly() bool {
	return e.provider == nil
}

// Input is one user turn.
type Input struct {
	// UserMessage is the user's message to process.
	UserMessage string

	// ThreadID files the turn under a conversation thread.
	// Defaults to memory.DefaultThreadID.
	ThreadID string

	// Model is the model alias or id for this turn.
	Model string

	// SearchContext is optional reference material for the model.
	SearchContext string
}

// Output is the result of one turn.
type Output struct {
	// Text is the assistant reply.
	Text string

	// Model is the model that produced Text, or LocalModel.
	Model string

	// Elapsed is the model call duration.
	Elapsed time.Duration

	// Memories is the memory context injected into the prompt, if any.
	Memories string

	// Recorded reports whether the turn was stored in memory.
	Recorded bool

	// Error is set when the model failed and Text is a fallback reply.
	Error error
}

// Run processes one turn. Memory and model failures never abort the turn;
// they are logged and reflected in the Output.
func (e *Engine) Run(ctx context.Context, input *Input) (*Output, error) {
	if input == nil || input.UserMessage == "" {
		return nil, errors.New("engine: empty user message")
	}
	threadID := input.ThreadID
	if threadID == "" {
		threadID = memory.DefaultThreadID
	}

	// === PHASE 0: RETRIEVE MEMORIES ===
	history := e.memory.GetFormattedHistory(ctx, threadID, e.historyLimit)
	memories := e.memory.GetRelevantContext(ctx, input.UserMessage, true)
	if memories != "" {
		log.Printf("[ENGINE] Injecting relevant memories into prompt")
	}

	// === PHASE 1: ENRICH SYSTEM PROMPT ===
	systemPrompt := e.systemPrompt
	if memories != "" {
		systemPrompt += "\n\n" + memories
	}

	// === PHASE 2: GENERATE REPLY ===
	out := &Output{Memories: memories}
	if e.provider == nil {
		out.Text = LocalOnlyReply
		out.Model = LocalModel
	} else {
		resp, err := e.provider.Generate(ctx, &llm.Request{
			SystemPrompt:  systemPrompt,
			History:       history,
			SearchContext: input.SearchContext,
			UserInput:     input.UserMessage,
			Model:         input.Model,
		})
		if err != nil {
			log.Printf("[ENGINE] Model call failed: %v", err)
			out.Error = err
			out.Model = LocalModel
			out.Text = FailureReply
			if errors.Is(err, llm.ErrRateLimited) {
				out.Text = BusyReply
			}
		} else {
			out.Text = resp.Text
			out.Model = resp.Model
			out.Elapsed = resp.Elapsed
		}
	}

	// === PHASE 3: RECORD TURN ===
	// Fallback replies are not worth remembering
	if out.Error == nil {
		if err := e.memory.AddConversation(ctx, input.UserMessage, out.Text, memory.InThread(threadID)); err != nil {
			log.Printf("[MEMORY] Failed to record conversation: %v", err)
		} else {
			out.Recorded = true
		}
	}

	// === PHASE 4: EXTRACT USER FACTS ===
	if name := ExtractName(input.UserMessage); name != "" {
		if err := e.memory.AddUserInfo("name", name); err != nil {
			log.Printf("[MEMORY] Failed to save user name: %v", err)
		}
	}

	return out, nil
}

// ExtractName returns the name in a "my name is X" message, or "".
func ExtractName(message string) string {
	m := namePattern.FindStringSubmatch(message)
	if m == nil {
		return ""
	}
	return m[1]
}

// DefaultSystemPrompt is the default system prompt for the assistant.
const DefaultSystemPrompt = `You are an advanced AI assistant with memory capabilities. Your responses should be helpful, informative, and conversational.

When responding:
1. **Bold important information** using markdown
2. Highlight key concepts
3. Use a conversational but professional tone
4. Refer to past conversations when relevant
5. Be concise but thorough

Always mention when you're drawing from your memory of previous conversations.

If search results were provided, synthesize the information rather than just repeating it.`
