package memory_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/becomeliminal/nim-recall/memory"
	"github.com/becomeliminal/nim-recall/memory/embedder/mock"
	"github.com/becomeliminal/nim-recall/memory/store/chromem"
)

const legacyFile = `{
  "conversations": [
    {"timestamp": "2025-04-01T09:15:00.123456", "user_input": "My name is Alice", "ai_response": "Hi Alice"},
    {"timestamp": "2025-04-02T18:30:00", "user_input": "I live in Paris", "ai_response": "Lovely city"},
    {"timestamp": "2025-04-03T07:00:00", "user_input": "I like tea", "ai_response": "Noted"}
  ],
  "user_info": {"name": "Alice"}
}`

func writeLegacy(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "memory.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func openPersistent(t *testing.T, dir string, memoryFile string) *memory.Manager {
	t.Helper()
	return openPersistentWith(t, dir, memoryFile, mock.New(dims))
}

func openPersistentWith(t *testing.T, dir string, memoryFile string, embedder *mock.MockEmbedder) *memory.Manager {
	t.Helper()

	store, err := chromem.New(chromem.WithPath(filepath.Join(dir, "chroma_db")))
	require.NoError(t, err)

	config := &memory.Config{
		MemoryFile:       memoryFile,
		MemoryLimit:      100,
		TopK:             3,
		KeywordThreshold: memory.DefaultKeywordThreshold,
	}
	m, err := memory.NewManager(context.Background(), store, embedder, config)
	require.NoError(t, err)
	t.Cleanup(func() { m.Close() })
	return m
}

func TestImportLegacy_ImportsOnceWithTimestamps(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := writeLegacy(t, dir, legacyFile)

	m := openPersistent(t, dir, path)
	assert.Equal(t, 3, m.Count())
	assert.Equal(t, map[string]any{"name": "Alice"}, m.GetUserInfo())

	turns, err := m.GetConversationHistory(ctx, memory.DefaultThreadID, 10)
	require.NoError(t, err)
	require.Len(t, turns, 3)
	assert.Equal(t, "2025-04-03T07:00:00", turns[0].Timestamp)
	assert.Equal(t, "2025-04-02T18:30:00", turns[1].Timestamp)
	assert.Equal(t, "2025-04-01T09:15:00.123456", turns[2].Timestamp)

	// A restart over the same store must not ingest the file again
	again := openPersistent(t, dir, path)
	assert.Equal(t, 3, again.Count())
}

func TestImportLegacy_SkipsMalformedEntries(t *testing.T) {
	dir := t.TempDir()
	path := writeLegacy(t, dir, `{
  "conversations": [
    {"timestamp": "2025-04-01T09:15:00", "user_input": "good", "ai_response": "one"},
    {"timestamp": "2025-04-01T09:16:00", "user_input": 42, "ai_response": "bad"},
    {"user_input": "no timestamp", "ai_response": "two"}
  ],
  "user_info": {}
}`)

	m := openPersistent(t, dir, path)
	assert.Equal(t, 2, m.Count())
}

func TestImportLegacy_NoFile(t *testing.T) {
	dir := t.TempDir()
	m := openPersistent(t, dir, filepath.Join(dir, "memory.json"))
	assert.Equal(t, 0, m.Count())
	assert.Empty(t, m.GetUserInfo())
}

func TestImportLegacy_ClearedTurnsStayCleared(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := writeLegacy(t, dir, legacyFile)

	m := openPersistent(t, dir, path)
	require.Equal(t, 3, m.Count())
	require.NoError(t, m.AddUserInfo("city", "Paris"))
	require.NoError(t, m.ClearMemory(ctx))
	require.NoError(t, m.Close())

	again := openPersistent(t, dir, path)
	assert.Equal(t, 0, again.Count())
	assert.Equal(t, map[string]any{"name": "Alice", "city": "Paris"}, again.GetUserInfo())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var onDisk map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &onDisk))
	assert.NotContains(t, onDisk, "conversations")
	assert.Contains(t, onDisk, "user_info")
}

func TestImportLegacy_ContinuesPastFailedEntry(t *testing.T) {
	dir := t.TempDir()
	path := writeLegacy(t, dir, legacyFile)

	embedder := mock.New(dims)
	embedder.Set(memory.EmbeddingText("I live in Paris", "Lovely city"), make([]float32, dims))

	m := openPersistentWith(t, dir, path, embedder)
	assert.Equal(t, 2, m.Count())

	turns, err := m.GetConversationHistory(context.Background(), memory.DefaultThreadID, 10)
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, "I like tea", turns[0].UserInput)
	assert.Equal(t, "My name is Alice", turns[1].UserInput)
}

func TestImportLegacy_KeepsFileWhileStoreEmpty(t *testing.T) {
	dir := t.TempDir()
	path := writeLegacy(t, dir, legacyFile)

	embedder := mock.New(dims)
	embedder.Fail(true)
	m := openPersistentWith(t, dir, path, embedder)
	assert.Equal(t, 0, m.Count())
	require.NoError(t, m.Close())

	// The next start retries the import
	again := openPersistent(t, dir, path)
	assert.Equal(t, 3, again.Count())
}
