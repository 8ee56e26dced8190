package mock

import (
	"context"
	"errors"

	"github.com/becomeliminal/nim-recall/memory/embedder/hash"
)

// ErrEmbed is returned by a failing MockEmbedder.
var ErrEmbed = errors.New("mock embedder failure")

// MockEmbedder is a scriptable embedder for testing.
// Texts registered with Set return their fixed vector; everything else gets
// the deterministic hash embedding.
type MockEmbedder struct {
	dimensions int
	vectors    map[string][]float32
	fail       bool
	calls      int
}

// New creates a new mock embedder with the given dimensions.
func New(dimensions int) *MockEmbedder {
	return &MockEmbedder{
		dimensions: dimensions,
		vectors:    make(map[string][]float32),
	}
}

// Set fixes the vector returned for text.
func (m *MockEmbedder) Set(text string, vector []float32) {
	m.vectors[text] = vector
}

// Fail makes every following Embed call return ErrEmbed.
func (m *MockEmbedder) Fail(fail bool) {
	m.fail = fail
}

// Calls returns how many times Embed was called.
func (m *MockEmbedder) Calls() int {
	return m.calls
}

// Embed returns the scripted or hash vector for text.
func (m *MockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	m.calls++
	if m.fail {
		return nil, ErrEmbed
	}
	if v, ok := m.vectors[text]; ok {
		return v, nil
	}
	return hash.Vector(text, m.dimensions), nil
}

// Dimensions returns the embedding size.
func (m *MockEmbedder) Dimensions() int {
	return m.dimensions
}

// Axis returns a unit vector along dimension i.
func Axis(dimensions, i int) []float32 {
	v := make([]float32, dimensions)
	v[i] = 1
	return v
}
