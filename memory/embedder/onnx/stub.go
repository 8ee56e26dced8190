//go:build !onnx

package onnx

import (
	"context"
	"fmt"
)

// ONNXEmbedder is unavailable in builds without the `onnx` tag.
type ONNXEmbedder struct{}

// New reports ErrUnavailable; rebuild with -tags onnx for the sentence encoder.
func New(cfg Config) (*ONNXEmbedder, error) {
	return nil, fmt.Errorf("%w: built without the onnx tag", ErrUnavailable)
}

// Embed always fails.
func (e *ONNXEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return nil, ErrUnavailable
}

// Dimensions returns 0.
func (e *ONNXEmbedder) Dimensions() int {
	return 0
}

// Close is a no-op.
func (e *ONNXEmbedder) Close() error {
	return nil
}
