package chromem_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/becomeliminal/nim-recall/memory"
	"github.com/becomeliminal/nim-recall/memory/embedder/mock"
	"github.com/becomeliminal/nim-recall/memory/store/chromem"
)

const dims = 8

func meta(u, a string) memory.RecordMetadata {
	return memory.RecordMetadata{UserInput: u, AIResponse: a, Timestamp: "2025-01-01T10:00:00Z"}
}

func fixedClock(ts ...time.Time) func() time.Time {
	i := 0
	return func() time.Time {
		t := ts[min(i, len(ts)-1)]
		i++
		return t
	}
}

func TestChromemStore_UpsertStampsTimes(t *testing.T) {
	ctx := context.Background()
	t1 := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Hour)

	s, err := chromem.New(chromem.WithDimensions(dims), chromem.WithClock(fixedClock(t1, t2)))
	require.NoError(t, err)

	id, err := s.Upsert(ctx, mock.Axis(dims, 0), meta("hi", "hello"))
	require.NoError(t, err)
	assert.Equal(t, memory.RecordID("hi", "hello"), id)

	again, err := s.Upsert(ctx, mock.Axis(dims, 1), meta("hi", "hello"))
	require.NoError(t, err)
	assert.Equal(t, id, again)
	assert.Equal(t, 1, s.Count())

	items, err := s.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "2025-01-01T10:00:00Z", items[0].Metadata.CreatedAt)
	assert.Equal(t, "2025-01-01T11:00:00Z", items[0].Metadata.UpdatedAt)
	assert.Equal(t, "hi|hello", items[0].Document)
	assert.Equal(t, "default", items[0].Metadata.ThreadID)
}

func TestChromemStore_RejectsBadVectors(t *testing.T) {
	ctx := context.Background()
	s, err := chromem.New(chromem.WithDimensions(dims))
	require.NoError(t, err)

	_, err = s.Upsert(ctx, []float32{1, 0}, meta("a", "b"))
	require.ErrorIs(t, err, memory.ErrDimensionMismatch)

	_, err = s.Upsert(ctx, make([]float32, dims), meta("a", "b"))
	require.Error(t, err)
	assert.Equal(t, 0, s.Count())
}

func TestChromemStore_SearchOrdersBySimilarity(t *testing.T) {
	ctx := context.Background()
	s, err := chromem.New(chromem.WithDimensions(dims))
	require.NoError(t, err)

	for i, u := range []string{"zero", "one", "two"} {
		_, err := s.Upsert(ctx, mock.Axis(dims, i), meta(u, "x"))
		require.NoError(t, err)
	}

	query := make([]float32, dims)
	query[2], query[1] = 0.8, 0.6

	hits := s.Search(ctx, query, 10)
	require.Len(t, hits, 3, "topK is clamped to the collection size")
	assert.Equal(t, "two", hits[0].Metadata.UserInput)
	assert.Equal(t, "one", hits[1].Metadata.UserInput)
	assert.InDelta(t, 0.8, hits[0].Similarity, 1e-5)
	assert.InDelta(t, 0.6, hits[1].Similarity, 1e-5)
	assert.InDelta(t, 0.0, hits[2].Similarity, 1e-5)

	assert.Len(t, s.Search(ctx, query, 1), 1)
	assert.Empty(t, s.Search(ctx, query, 0))
	assert.Empty(t, s.Search(ctx, make([]float32, dims), 3))
}

func TestChromemStore_EmptySearch(t *testing.T) {
	s, err := chromem.New(chromem.WithDimensions(dims))
	require.NoError(t, err)

	assert.Empty(t, s.Search(context.Background(), mock.Axis(dims, 0), 3))
	items, err := s.GetAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestChromemStore_DeleteAndClear(t *testing.T) {
	ctx := context.Background()
	s, err := chromem.New(chromem.WithDimensions(dims))
	require.NoError(t, err)

	id, err := s.Upsert(ctx, mock.Axis(dims, 0), meta("a", "b"))
	require.NoError(t, err)
	_, err = s.Upsert(ctx, mock.Axis(dims, 1), meta("c", "d"))
	require.NoError(t, err)

	assert.True(t, s.Delete(ctx, id))
	assert.False(t, s.Delete(ctx, id))
	assert.False(t, s.Delete(ctx, "no-such-id"))
	assert.Equal(t, 1, s.Count())

	require.NoError(t, s.Clear(ctx))
	assert.Equal(t, 0, s.Count())

	_, err = s.Upsert(ctx, mock.Axis(dims, 0), meta("a", "b"))
	require.NoError(t, err)
	assert.Equal(t, 1, s.Count())
}

func TestChromemStore_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "chroma_db")

	s, err := chromem.New(chromem.WithPath(dir), chromem.WithDimensions(dims))
	require.NoError(t, err)
	_, err = s.Upsert(ctx, mock.Axis(dims, 3), memory.RecordMetadata{
		UserInput:  "remember me",
		AIResponse: "ok",
		Timestamp:  "2025-04-01T09:15:00",
		ThreadID:   "work",
	})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	reopened, err := chromem.New(chromem.WithPath(dir), chromem.WithDimensions(dims))
	require.NoError(t, err)
	assert.Equal(t, 1, reopened.Count())

	items, err := reopened.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "remember me", items[0].Metadata.UserInput)
	assert.Equal(t, "2025-04-01T09:15:00", items[0].Metadata.Timestamp)
	assert.Equal(t, "work", items[0].Metadata.ThreadID)
}

func TestNew_InvalidDimensions(t *testing.T) {
	_, err := chromem.New(chromem.WithDimensions(0))
	require.ErrorIs(t, err, memory.ErrStoreInit)
}
