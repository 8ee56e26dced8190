package memory

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("github.com/becomeliminal/nim-recall/memory")

// Manager is the conversation memory of the assistant.
// It turns conversation turns into vector records, retrieves relevant past
// turns (semantic first, keyword fallback), enforces the retention limit,
// keeps user facts and imports the legacy memory file once.
//
// Manager assumes a single writer; it does no locking of its own.
type Manager struct {
	store    VectorStore
	embedder Embedder
	facts    *FactStore
	config   *Config
	now      func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock overrides the clock used to timestamp new turns.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// NewManager creates a Manager over an opened store and runs the one-time
// legacy import. The store must already be open; a nil store is reported as
// ErrStoreInit.
func NewManager(ctx context.Context, store VectorStore, embedder Embedder, config *Config, opts ...Option) (*Manager, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: no vector store", ErrStoreInit)
	}
	if embedder == nil {
		return nil, errors.New("memory: embedder is required")
	}
	if config == nil {
		config = DefaultConfig
	}

	m := &Manager{
		store:    store,
		embedder: embedder,
		config:   config,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}

	m.facts = OpenFactStore(config.MemoryFile)
	m.importLegacy(ctx)

	return m, nil
}

// AddOption configures a single AddConversation call.
type AddOption func(*addOptions)

type addOptions struct {
	threadID        string
	saveImmediately bool
}

// InThread files the turn under threadID instead of DefaultThreadID.
func InThread(threadID string) AddOption {
	return func(o *addOptions) {
		if threadID != "" {
			o.threadID = threadID
		}
	}
}

// SaveImmediately overrides Config.SaveImmediately for one call.
// When true the retention limit is enforced before returning.
func SaveImmediately(save bool) AddOption {
	return func(o *addOptions) {
		o.saveImmediately = save
	}
}

// AddConversation embeds and stores one turn, timestamped now.
//
// Eviction only runs when the call saves immediately (per option or
// Config.SaveImmediately). Deferred calls may leave the store above
// MemoryLimit until the caller runs Reconcile or an immediate add.
//
// The returned error is informational: the turn is lost but the store is
// unaffected, so callers may log and carry on.
func (m *Manager) AddConversation(ctx context.Context, userInput, aiResponse string, opts ...AddOption) error {
	o := addOptions{threadID: DefaultThreadID, saveImmediately: m.config.SaveImmediately}
	for _, opt := range opts {
		opt(&o)
	}

	ctx, span := tracer.Start(ctx, "memory.AddConversation")
	defer span.End()
	span.SetAttributes(
		attribute.String("memory.thread_id", o.threadID),
		attribute.Bool("memory.save_immediately", o.saveImmediately),
	)

	if err := m.storeTurn(ctx, userInput, aiResponse, FormatTimestamp(m.now()), o.threadID); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("add conversation: %w", err)
	}

	if o.saveImmediately {
		m.Reconcile(ctx)
	}
	return nil
}

// storeTurn embeds a turn and upserts it.
func (m *Manager) storeTurn(ctx context.Context, userInput, aiResponse, timestamp, threadID string) error {
	vector, err := m.embedder.Embed(ctx, EmbeddingText(userInput, aiResponse))
	if err != nil {
		return fmt.Errorf("embed turn: %w", err)
	}

	id, err := m.store.Upsert(ctx, vector, RecordMetadata{
		UserInput:  userInput,
		AIResponse: aiResponse,
		Timestamp:  timestamp,
		ThreadID:   threadID,
	})
	if err != nil {
		return fmt.Errorf("store turn: %w", err)
	}

	log.Printf("[MEMORY] Stored turn %s in thread %q", id, threadID)
	return nil
}

// Reconcile enforces the retention limit: when more than MemoryLimit
// records are stored, all but the MemoryLimit most recent (by timestamp)
// are deleted. Returns the number of records deleted.
func (m *Manager) Reconcile(ctx context.Context) int {
	limit := m.config.MemoryLimit
	if limit <= 0 || m.store.Count() <= limit {
		return 0
	}

	ctx, span := tracer.Start(ctx, "memory.Evict")
	defer span.End()

	items, err := m.store.GetAll(ctx)
	if err != nil {
		log.Printf("[MEMORY] Eviction skipped: %v", err)
		span.SetStatus(codes.Error, err.Error())
		return 0
	}
	if len(items) <= limit {
		return 0
	}

	sortNewestFirst(items)

	deleted := 0
	for _, item := range items[limit:] {
		if m.store.Delete(ctx, item.ID) {
			deleted++
		}
	}

	span.SetAttributes(attribute.Int("memory.evicted", deleted))
	log.Printf("[MEMORY] Cleaned up %d old conversations", deleted)
	return deleted
}

// sortNewestFirst orders items by timestamp, newest first. Ties keep the
// later timestamp string first, then the smaller id.
func sortNewestFirst(items []StoredItem) {
	sort.SliceStable(items, func(i, j int) bool {
		ti, tj := items[i].Metadata.Time(), items[j].Metadata.Time()
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		if items[i].Metadata.Timestamp != items[j].Metadata.Timestamp {
			return items[i].Metadata.Timestamp > items[j].Metadata.Timestamp
		}
		return items[i].ID < items[j].ID
	})
}

// AddUserInfo records a user fact and persists it immediately.
func (m *Manager) AddUserInfo(key string, value any) error {
	if err := m.facts.Set(key, value); err != nil {
		return fmt.Errorf("save user info: %w", err)
	}
	return nil
}

// GetUserInfo returns all user facts.
func (m *Manager) GetUserInfo() map[string]any {
	return m.facts.All()
}

// UserInfoKeys returns the names of all user facts in sorted order.
func (m *Manager) UserInfoKeys() []string {
	return m.facts.Keys()
}

// GetConversationHistory returns up to limit turns of threadID, newest
// first.
func (m *Manager) GetConversationHistory(ctx context.Context, threadID string, limit int) ([]Turn, error) {
	if threadID == "" {
		threadID = DefaultThreadID
	}

	items, err := m.store.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("get history: %w", err)
	}

	var thread []StoredItem
	for _, item := range items {
		if item.Metadata.Thread() == threadID {
			thread = append(thread, item)
		}
	}
	sortNewestFirst(thread)

	if limit >= 0 && len(thread) > limit {
		thread = thread[:limit]
	}

	turns := make([]Turn, 0, len(thread))
	for _, item := range thread {
		turns = append(turns, Turn{
			Timestamp:  item.Metadata.Timestamp,
			UserInput:  item.Metadata.UserInput,
			AIResponse: item.Metadata.AIResponse,
		})
	}
	return turns, nil
}

// GetFormattedHistory renders the latest limit turns of threadID oldest
// first. Returns "" when the thread has no turns or history is unavailable.
func (m *Manager) GetFormattedHistory(ctx context.Context, threadID string, limit int) string {
	turns, err := m.GetConversationHistory(ctx, threadID, limit)
	if err != nil {
		log.Printf("[MEMORY] History unavailable: %v", err)
		return ""
	}
	if len(turns) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("Previous conversations:\n")
	for i := len(turns) - 1; i >= 0; i-- {
		ts := displayTimestamp(turns[i].Timestamp)
		fmt.Fprintf(&b, "[%s] User: %s\n", ts, turns[i].UserInput)
		fmt.Fprintf(&b, "[%s] AI: %s\n\n", ts, turns[i].AIResponse)
	}
	return b.String()
}

// FindRelevantMemoriesSemantic returns up to topK memories by vector
// similarity.
func (m *Manager) FindRelevantMemoriesSemantic(ctx context.Context, query string, topK int) ([]RetrievalResult, error) {
	return m.semanticRanker(topK).Rank(ctx, query)
}

// FindRelevantMemoriesKeywords returns up to three memories whose keyword
// score is at least threshold.
func (m *Manager) FindRelevantMemoriesKeywords(ctx context.Context, query string, threshold float64) ([]RetrievalResult, error) {
	return m.keywordRanker(threshold).Rank(ctx, query)
}

func (m *Manager) semanticRanker(topK int) *SemanticRanker {
	return &SemanticRanker{Embedder: m.embedder, Store: m.store, TopK: topK}
}

func (m *Manager) keywordRanker(threshold float64) *KeywordRanker {
	return &KeywordRanker{Store: m.store, Threshold: threshold}
}

// Ranker returns the retrieval policy used by GetRelevantContext.
func (m *Manager) Ranker(useSemantic bool) RelevanceRanker {
	keyword := m.keywordRanker(m.config.KeywordThreshold)
	if !useSemantic {
		return keyword
	}
	return &FallbackRanker{
		Primary:  m.semanticRanker(m.config.TopK),
		Fallback: keyword,
	}
}

// GetRelevantContext renders memories relevant to query for prompt
// injection. Retrieval failures yield "", meaning no context to inject.
func (m *Manager) GetRelevantContext(ctx context.Context, query string, useSemantic bool) string {
	ctx, span := tracer.Start(ctx, "memory.GetRelevantContext")
	defer span.End()
	span.SetAttributes(attribute.Bool("memory.semantic", useSemantic))

	memories, err := m.Ranker(useSemantic).Rank(ctx, query)
	if err != nil {
		log.Printf("[MEMORY] Retrieval failed for query %q: %v", truncateLog(query, 50), err)
		span.SetStatus(codes.Error, err.Error())
		return ""
	}

	span.SetAttributes(attribute.Int("memory.results", len(memories)))
	log.Printf("[MEMORY] Retrieved %d memories for query: %q", len(memories), truncateLog(query, 50))
	return FormatMemories(memories)
}

// FormatMemories renders retrieval results in the given order.
func FormatMemories(memories []RetrievalResult) string {
	if len(memories) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("Relevant information from memory:\n\n")
	for _, mem := range memories {
		fmt.Fprintf(&b, "[%s]\n%s\n\n", displayTimestamp(mem.Timestamp), mem.Content)
	}
	return b.String()
}

// ListThreads summarises every thread in one pass over the store.
func (m *Manager) ListThreads(ctx context.Context) (map[string]Thread, error) {
	items, err := m.store.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("list threads: %w", err)
	}

	threads := make(map[string]Thread)
	for _, item := range items {
		id := item.Metadata.Thread()
		th, ok := threads[id]
		if !ok {
			threads[id] = Thread{Name: id, Count: 1, LastUpdated: item.Metadata.Timestamp}
			continue
		}
		th.Count++
		if item.Metadata.Time().After(mustTime(th.LastUpdated)) {
			th.LastUpdated = item.Metadata.Timestamp
		}
		threads[id] = th
	}
	return threads, nil
}

func mustTime(s string) time.Time {
	t, _ := ParseTimestamp(s)
	return t
}

// ClearMemory irreversibly deletes every conversation record.
// User facts are kept.
func (m *Manager) ClearMemory(ctx context.Context) error {
	if err := m.store.Clear(ctx); err != nil {
		return fmt.Errorf("clear memory: %w", err)
	}
	log.Printf("[MEMORY] Cleared all conversation memory")
	return nil
}

// Count returns the number of stored conversation records.
func (m *Manager) Count() int {
	return m.store.Count()
}

// Close releases the store and, if it holds resources, the embedder.
func (m *Manager) Close() error {
	var errs []error
	if err := m.store.Close(); err != nil {
		errs = append(errs, err)
	}
	if c, ok := m.embedder.(io.Closer); ok {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Config holds Manager configuration.
type Config struct {
	// MemoryFile is the legacy memory file; it also persists user facts.
	// Default: "memory.json"
	MemoryFile string

	// MemoryLimit caps the number of stored conversation records.
	// Default: 100
	MemoryLimit int

	// SaveImmediately makes every AddConversation enforce MemoryLimit.
	// Default: false (batched adds; call Reconcile to enforce the limit).
	SaveImmediately bool

	// TopK is the number of semantic results injected as context.
	// Default: 3
	TopK int

	// KeywordThreshold is the minimum keyword score for keyword retrieval.
	// Default: 0.3
	KeywordThreshold float64
}

// DefaultConfig holds the Manager defaults.
var DefaultConfig = &Config{
	MemoryFile:       "memory.json",
	MemoryLimit:      100,
	SaveImmediately:  false,
	TopK:             3,
	KeywordThreshold: DefaultKeywordThreshold,
}
