package memory_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/becomeliminal/nim-recall/memory"
	"github.com/becomeliminal/nim-recall/memory/embedder/mock"
	"github.com/becomeliminal/nim-recall/memory/store/chromem"
)

const dims = 384

// stepClock advances one minute per reading.
type stepClock struct {
	t time.Time
}

func newStepClock() *stepClock {
	return &stepClock{t: time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)}
}

func (c *stepClock) Now() time.Time {
	c.t = c.t.Add(time.Minute)
	return c.t
}

type fixture struct {
	manager  *memory.Manager
	store    *chromem.ChromemStore
	embedder *mock.MockEmbedder
	config   *memory.Config
}

func newFixture(t *testing.T, mutate func(*memory.Config)) *fixture {
	t.Helper()

	store, err := chromem.New()
	require.NoError(t, err)

	config := &memory.Config{
		MemoryFile:       filepath.Join(t.TempDir(), "memory.json"),
		MemoryLimit:      100,
		TopK:             3,
		KeywordThreshold: memory.DefaultKeywordThreshold,
	}
	if mutate != nil {
		mutate(config)
	}

	embedder := mock.New(dims)
	manager, err := memory.NewManager(context.Background(), store, embedder, config,
		memory.WithClock(newStepClock().Now))
	require.NoError(t, err)

	return &fixture{manager: manager, store: store, embedder: embedder, config: config}
}

func TestManager_EmptyStoreHasNoContext(t *testing.T) {
	f := newFixture(t, nil)

	assert.Equal(t, "", f.manager.GetRelevantContext(context.Background(), "hello", true))
	assert.Equal(t, "", f.manager.GetRelevantContext(context.Background(), "hello", false))
	assert.Equal(t, "", f.manager.GetFormattedHistory(context.Background(), memory.DefaultThreadID, 5))
}

func TestManager_UpsertIdempotence(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	require.NoError(t, f.manager.AddConversation(ctx, "What is Go?", "A programming language."))
	require.NoError(t, f.manager.AddConversation(ctx, "What is Go?", "A programming language."))

	assert.Equal(t, 1, f.manager.Count())

	items, err := f.store.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, memory.RecordID("What is Go?", "A programming language."), items[0].ID)
	assert.NotEmpty(t, items[0].Metadata.CreatedAt)
	assert.NotEmpty(t, items[0].Metadata.UpdatedAt)
	assert.Equal(t, "2025-01-01T10:02:00Z", items[0].Metadata.Timestamp)
}

func TestManager_EvictionKeepsMostRecent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, func(c *memory.Config) { c.MemoryLimit = 2 })

	require.NoError(t, f.manager.AddConversation(ctx, "first", "one", memory.SaveImmediately(true)))
	require.NoError(t, f.manager.AddConversation(ctx, "second", "two", memory.SaveImmediately(true)))
	require.NoError(t, f.manager.AddConversation(ctx, "third", "three", memory.SaveImmediately(true)))

	assert.Equal(t, 2, f.manager.Count())

	turns, err := f.manager.GetConversationHistory(ctx, memory.DefaultThreadID, 10)
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, "third", turns[0].UserInput)
	assert.Equal(t, "second", turns[1].UserInput)
}

func TestManager_DeferredEvictionNeedsReconcile(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, func(c *memory.Config) { c.MemoryLimit = 2 })

	for _, in := range []string{"first", "second", "third"} {
		require.NoError(t, f.manager.AddConversation(ctx, in, "ok"))
	}
	assert.Equal(t, 3, f.manager.Count(), "deferred adds do not evict")

	assert.Equal(t, 1, f.manager.Reconcile(ctx))
	assert.Equal(t, 2, f.manager.Count())
	assert.Equal(t, 0, f.manager.Reconcile(ctx))

	turns, err := f.manager.GetConversationHistory(ctx, memory.DefaultThreadID, 10)
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, "third", turns[0].UserInput)
}

func TestManager_ConfigSaveImmediately(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, func(c *memory.Config) {
		c.MemoryLimit = 1
		c.SaveImmediately = true
	})

	require.NoError(t, f.manager.AddConversation(ctx, "old", "turn"))
	require.NoError(t, f.manager.AddConversation(ctx, "new", "turn"))
	assert.Equal(t, 1, f.manager.Count())

	// Per-call override defers eviction
	require.NoError(t, f.manager.AddConversation(ctx, "newest", "turn", memory.SaveImmediately(false)))
	assert.Equal(t, 2, f.manager.Count())
}

func TestManager_KeywordScenario(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	require.NoError(t, f.manager.AddConversation(ctx, "My name is Alice", "Nice to meet you Alice"))
	require.NoError(t, f.manager.AddConversation(ctx, "What's the weather", "I don't know"))

	results, err := f.manager.FindRelevantMemoriesKeywords(ctx, "Alice", memory.DefaultKeywordThreshold)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 1.0, results[0].Relevance)
	assert.Equal(t, "User: My name is Alice\nAI: Nice to meet you Alice", results[0].Content)

	rendered := f.manager.GetRelevantContext(ctx, "Alice", false)
	assert.Equal(t,
		"Relevant information from memory:\n\n[2025-01-01 10:01]\nUser: My name is Alice\nAI: Nice to meet you Alice\n\n",
		rendered)
}

func TestManager_SemanticRanking(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	f.embedder.Set(memory.EmbeddingText("cats", "meow"), mock.Axis(dims, 0))
	f.embedder.Set(memory.EmbeddingText("dogs", "woof"), mock.Axis(dims, 1))
	f.embedder.Set(memory.EmbeddingText("birds", "tweet"), mock.Axis(dims, 2))
	query := make([]float32, dims)
	query[1], query[0] = 0.9, 0.1
	f.embedder.Set("pets", query)

	require.NoError(t, f.manager.AddConversation(ctx, "cats", "meow"))
	require.NoError(t, f.manager.AddConversation(ctx, "dogs", "woof"))
	require.NoError(t, f.manager.AddConversation(ctx, "birds", "tweet"))

	results, err := f.manager.FindRelevantMemoriesSemantic(ctx, "pets", 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "User: dogs\nAI: woof", results[0].Content)
	assert.Equal(t, "User: cats\nAI: meow", results[1].Content)
	assert.Greater(t, results[0].Relevance, results[1].Relevance)
	assert.LessOrEqual(t, results[0].Relevance, 1.0)

	rendered := f.manager.GetRelevantContext(ctx, "pets", true)
	assert.True(t, strings.HasPrefix(rendered, "Relevant information from memory:\n\n"))
	assert.Less(t, strings.Index(rendered, "dogs"), strings.Index(rendered, "cats"))
}

func TestManager_FallsBackToKeywordsWhenSemanticEmpty(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	require.NoError(t, f.manager.AddConversation(ctx, "I love hiking", "Hiking is great exercise"))
	require.NoError(t, f.manager.AddConversation(ctx, "Favourite food?", "Pizza"))

	// A degenerate query vector makes semantic search return nothing.
	f.embedder.Set("hiking trails", make([]float32, dims))

	semantic, err := f.manager.FindRelevantMemoriesSemantic(ctx, "hiking trails", 3)
	require.NoError(t, err)
	assert.Empty(t, semantic)

	withFallback := f.manager.GetRelevantContext(ctx, "hiking trails", true)
	keywordOnly := f.manager.GetRelevantContext(ctx, "hiking trails", false)
	assert.NotEmpty(t, keywordOnly)
	assert.Equal(t, keywordOnly, withFallback)
}

func TestManager_FallsBackToKeywordsWhenEmbeddingFails(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	require.NoError(t, f.manager.AddConversation(ctx, "Remind me about the dentist", "Dentist on Friday"))
	f.embedder.Fail(true)

	_, err := f.manager.FindRelevantMemoriesSemantic(ctx, "dentist", 3)
	require.ErrorIs(t, err, mock.ErrEmbed)

	assert.Equal(t,
		f.manager.GetRelevantContext(ctx, "dentist", false),
		f.manager.GetRelevantContext(ctx, "dentist", true))

	// Adding while the embedder fails loses the turn but leaves the store intact
	err = f.manager.AddConversation(ctx, "lost", "turn")
	require.ErrorIs(t, err, mock.ErrEmbed)
	assert.Equal(t, 1, f.manager.Count())
}

func TestManager_ThreadIsolation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	require.NoError(t, f.manager.AddConversation(ctx, "a1", "x", memory.InThread("A")))
	require.NoError(t, f.manager.AddConversation(ctx, "b1", "x", memory.InThread("B")))
	require.NoError(t, f.manager.AddConversation(ctx, "a2", "x", memory.InThread("A")))

	turns, err := f.manager.GetConversationHistory(ctx, "A", 10)
	require.NoError(t, err)
	require.Len(t, turns, 2)
	for _, turn := range turns {
		assert.True(t, strings.HasPrefix(turn.UserInput, "a"), "thread A returned %q", turn.UserInput)
	}
	assert.Equal(t, "a2", turns[0].UserInput)

	limited, err := f.manager.GetConversationHistory(ctx, "A", 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "a2", limited[0].UserInput)
}

func TestManager_FormattedHistoryIsChronological(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	require.NoError(t, f.manager.AddConversation(ctx, "one", "1"))
	require.NoError(t, f.manager.AddConversation(ctx, "two", "2"))
	require.NoError(t, f.manager.AddConversation(ctx, "three", "3"))

	got := f.manager.GetFormattedHistory(ctx, memory.DefaultThreadID, 2)
	want := "Previous conversations:\n" +
		"[2025-01-01 10:02] User: two\n" +
		"[2025-01-01 10:02] AI: 2\n\n" +
		"[2025-01-01 10:03] User: three\n" +
		"[2025-01-01 10:03] AI: 3\n\n"
	assert.Equal(t, want, got)
}

func TestManager_ListThreads(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	require.NoError(t, f.manager.AddConversation(ctx, "hi", "hello"))
	require.NoError(t, f.manager.AddConversation(ctx, "work 1", "ok", memory.InThread("work")))
	require.NoError(t, f.manager.AddConversation(ctx, "work 2", "ok", memory.InThread("work")))

	threads, err := f.manager.ListThreads(ctx)
	require.NoError(t, err)
	require.Len(t, threads, 2)

	assert.Equal(t, memory.Thread{Name: "default", Count: 1, LastUpdated: "2025-01-01T10:01:00Z"}, threads["default"])
	assert.Equal(t, memory.Thread{Name: "work", Count: 2, LastUpdated: "2025-01-01T10:03:00Z"}, threads["work"])
}

func TestManager_ClearMemoryKeepsFacts(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	require.NoError(t, f.manager.AddConversation(ctx, "hi", "hello"))
	require.NoError(t, f.manager.AddUserInfo("name", "Alice"))
	require.NoError(t, f.manager.ClearMemory(ctx))

	assert.Equal(t, 0, f.manager.Count())
	assert.Equal(t, map[string]any{"name": "Alice"}, f.manager.GetUserInfo())

	// The store keeps working after a clear
	require.NoError(t, f.manager.AddConversation(ctx, "again", "hello"))
	assert.Equal(t, 1, f.manager.Count())
}

func TestManager_UserInfoPersistsImmediately(t *testing.T) {
	f := newFixture(t, nil)

	require.NoError(t, f.manager.AddUserInfo("name", "Alice"))
	require.NoError(t, f.manager.AddUserInfo("name", "Bob"))
	require.NoError(t, f.manager.AddUserInfo("city", "Paris"))

	data, err := os.ReadFile(f.config.MemoryFile)
	require.NoError(t, err)

	var onDisk struct {
		UserInfo map[string]any `json:"user_info"`
	}
	require.NoError(t, json.Unmarshal(data, &onDisk))
	assert.Equal(t, map[string]any{"name": "Bob", "city": "Paris"}, onDisk.UserInfo)
	assert.Equal(t, []string{"city", "name"}, f.manager.UserInfoKeys())
}

func TestNewManager_RequiresStore(t *testing.T) {
	_, err := memory.NewManager(context.Background(), nil, mock.New(dims), nil)
	require.ErrorIs(t, err, memory.ErrStoreInit)
}
