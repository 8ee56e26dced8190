// Package fallback composes a primary embedder with the deterministic hash
// embedder, which takes over whenever the primary is missing or fails.
package fallback

import (
	"context"
	"log"

	"github.com/becomeliminal/nim-recall/memory"
	"github.com/becomeliminal/nim-recall/memory/embedder/hash"
)

// Embedder tries Primary and falls back to the hash embedding.
type Embedder struct {
	primary  memory.Embedder
	fallback *hash.Embedder
}

// New creates a fallback embedder. primary may be nil, in which case every
// text uses the hash embedding. dims is the output dimension (384 if <= 0);
// primary output of any other size is discarded.
func New(primary memory.Embedder, dims int) *Embedder {
	if primary == nil {
		log.Printf("[EMBED] No sentence encoder available, using hash-based embedding")
	}
	return &Embedder{
		primary:  primary,
		fallback: hash.New(dims),
	}
}

// Embed returns the primary embedding of text, or the hash embedding when
// the primary is unavailable, errors, or returns the wrong size.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return make([]float32, e.Dimensions()), nil
	}
	if e.primary == nil {
		return e.fallback.Embed(ctx, text)
	}

	vector, err := e.primary.Embed(ctx, text)
	if err != nil {
		log.Printf("[EMBED] Error generating embeddings, using hash fallback: %v", err)
		return e.fallback.Embed(ctx, text)
	}
	if len(vector) != e.Dimensions() {
		log.Printf("[EMBED] Encoder returned %d dimensions, want %d; using hash fallback", len(vector), e.Dimensions())
		return e.fallback.Embed(ctx, text)
	}
	return vector, nil
}

// Dimensions returns the embedding size.
func (e *Embedder) Dimensions() int {
	return e.fallback.Dimensions()
}

// Close closes the primary embedder if it holds resources.
func (e *Embedder) Close() error {
	if c, ok := e.primary.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}
