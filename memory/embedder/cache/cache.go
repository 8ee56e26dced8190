// Package cache memoizes embeddings of repeated texts with ristretto.
package cache

import (
	"context"
	"fmt"

	"github.com/dgraph-io/ristretto"

	"github.com/becomeliminal/nim-recall/memory"
)

// DefaultMaxEntries bounds the cache when no size is given.
const DefaultMaxEntries = 4096

// Embedder caches the vectors produced by an inner embedder.
type Embedder struct {
	inner memory.Embedder
	cache *ristretto.Cache
}

// New wraps inner with a cache holding about maxEntries vectors.
func New(inner memory.Embedder, maxEntries int64) (*Embedder, error) {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	// Cost counts entries, not bytes
	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters:        maxEntries * 10,
		MaxCost:            maxEntries,
		BufferItems:        64,
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, fmt.Errorf("create embedding cache: %w", err)
	}
	return &Embedder{inner: inner, cache: c}, nil
}

// Embed returns the cached vector for text, embedding it on a miss.
// Errors are not cached.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if v, ok := e.cache.Get(text); ok {
		return clone(v.([]float32)), nil
	}

	vector, err := e.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	e.cache.Set(text, clone(vector), 1)
	return vector, nil
}

// Dimensions returns the embedding size.
func (e *Embedder) Dimensions() int {
	return e.inner.Dimensions()
}

// Wait blocks until pending cache writes are applied.
func (e *Embedder) Wait() {
	e.cache.Wait()
}

// Close stops the cache and closes the inner embedder if it holds resources.
func (e *Embedder) Close() error {
	e.cache.Close()
	if c, ok := e.inner.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}

func clone(v []float32) []float32 {
	out := make([]float32, len(v))
	copy(out, v)
	return out
}
