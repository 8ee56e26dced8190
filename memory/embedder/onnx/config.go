package onnx

import (
	"errors"
	"fmt"
)

// ErrUnavailable is returned when the ONNX runtime cannot be used, either
// because support was not compiled in (build tag `onnx`) or because the
// model or runtime library could not be loaded.
var ErrUnavailable = errors.New("onnx embedder unavailable")

// Config configures the ONNX embedder.
type Config struct {
	// ModelPath is the path to the ONNX model file.
	ModelPath string

	// TokenizerPath is the path to the tokenizer.json file.
	TokenizerPath string

	// SharedLibraryPath is the onnxruntime shared library.
	// Empty uses the runtime's default lookup.
	SharedLibraryPath string

	// Dimensions is the embedding vector size (default: 384 for all-MiniLM-L6-v2).
	Dimensions int

	// MaxSequenceLength is the token window including [CLS] and [SEP] (default: 128).
	MaxSequenceLength int
}

func (c *Config) applyDefaults() error {
	if c.ModelPath == "" {
		return fmt.Errorf("%w: ModelPath is required", ErrUnavailable)
	}
	if c.TokenizerPath == "" {
		return fmt.Errorf("%w: TokenizerPath is required", ErrUnavailable)
	}
	if c.Dimensions == 0 {
		c.Dimensions = 384
	}
	if c.MaxSequenceLength == 0 {
		c.MaxSequenceLength = 128
	}
	return nil
}
