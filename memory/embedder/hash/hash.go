// Package hash implements the deterministic fallback embedding used when no
// sentence encoder is available.
//
// The algorithm is fixed so vectors stored by earlier runs stay comparable:
// the text is cut into 10-character chunks, each chunk is MD5-hashed, and the
// first min(32, D/12) two-character windows of the hex digest are read as
// numbers, scaled from [0,255] to [-1,1] and written to
// (chunk*32 + window) mod D. The result is L2-normalized unless it is zero.
package hash

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"math"
	"strconv"
)

const (
	// DefaultDimensions matches all-MiniLM-L6-v2.
	DefaultDimensions = 384

	chunkSize  = 10
	chunkWidth = 32
	maxWindows = 32
)

// Embedder is the deterministic hash embedder.
type Embedder struct {
	dimensions int
}

// New creates a hash embedder with the given dimensions (384 if <= 0).
func New(dimensions int) *Embedder {
	if dimensions <= 0 {
		dimensions = DefaultDimensions
	}
	return &Embedder{dimensions: dimensions}
}

// Embed returns the hash embedding of text. It never fails.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return Vector(text, e.dimensions), nil
}

// Dimensions returns the embedding size.
func (e *Embedder) Dimensions() int {
	return e.dimensions
}

// Vector computes the hash embedding of text with dims dimensions.
// Empty text yields the zero vector.
func Vector(text string, dims int) []float32 {
	result := make([]float64, dims)

	runes := []rune(text)
	windows := min(maxWindows, dims/12)
	for i := 0; i*chunkSize < len(runes); i++ {
		end := min((i+1)*chunkSize, len(runes))
		sum := md5.Sum([]byte(string(runes[i*chunkSize : end])))
		digest := hex.EncodeToString(sum[:])

		for j := 0; j < windows; j++ {
			// The last window holds a single hex digit.
			val, _ := strconv.ParseUint(digest[j:min(j+2, len(digest))], 16, 8)
			result[(i*chunkWidth+j)%dims] = (float64(val)/255.0)*2 - 1
		}
	}

	var norm float64
	for _, v := range result {
		norm += v * v
	}
	norm = math.Sqrt(norm)

	out := make([]float32, dims)
	for i, v := range result {
		if norm > 0 {
			v /= norm
		}
		out[i] = float32(v)
	}
	return out
}

// CosineSimilarity returns the cosine similarity of a and b, or 0 when
// either vector is all zero or the lengths differ.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
