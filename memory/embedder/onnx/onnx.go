//go:build onnx

package onnx

import (
	"context"
	"fmt"
	"log"

	ort "github.com/yalue/onnxruntime_go"
)

// ONNXEmbedder generates all-MiniLM-L6-v2 sentence embeddings with ONNX
// Runtime.
type ONNXEmbedder struct {
	session    *ort.DynamicAdvancedSession
	tokenizer  *tokenizer
	dimensions int
	maxLen     int
}

// New creates a new ONNX embedder. Any failure wraps ErrUnavailable so the
// caller can fall back to the hash embedder.
func New(cfg Config) (*ONNXEmbedder, error) {
	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}

	if cfg.SharedLibraryPath != "" {
		ort.SetSharedLibraryPath(cfg.SharedLibraryPath)
	}
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("%w: initialize runtime: %v", ErrUnavailable, err)
		}
	}

	tok, err := loadTokenizer(cfg.TokenizerPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	inputNames := []string{"input_ids", "attention_mask", "token_type_ids"}
	outputNames := []string{"last_hidden_state"}

	session, err := ort.NewDynamicAdvancedSession(cfg.ModelPath, inputNames, outputNames, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: create session: %v", ErrUnavailable, err)
	}

	log.Printf("[ONNX] Loaded sentence encoder %s (%d dimensions)", cfg.ModelPath, cfg.Dimensions)

	return &ONNXEmbedder{
		session:    session,
		tokenizer:  tok,
		dimensions: cfg.Dimensions,
		maxLen:     cfg.MaxSequenceLength,
	}, nil
}

// Embed converts text to embedding vector.
func (e *ONNXEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return make([]float32, e.dimensions), nil
	}

	enc := e.tokenizer.encode(text, e.maxLen)
	shape := ort.NewShape(1, int64(e.maxLen))

	inputIDs, err := ort.NewTensor(shape, enc.inputIDs)
	if err != nil {
		return nil, fmt.Errorf("create input_ids tensor: %w", err)
	}
	defer inputIDs.Destroy()

	attentionMask, err := ort.NewTensor(shape, enc.attentionMask)
	if err != nil {
		return nil, fmt.Errorf("create attention_mask tensor: %w", err)
	}
	defer attentionMask.Destroy()

	tokenTypeIDs, err := ort.NewTensor(shape, enc.tokenTypeIDs)
	if err != nil {
		return nil, fmt.Errorf("create token_type_ids tensor: %w", err)
	}
	defer tokenTypeIDs.Destroy()

	// Outputs are allocated by Run
	outputs := []ort.Value{nil}
	if err := e.session.Run([]ort.Value{inputIDs, attentionMask, tokenTypeIDs}, outputs); err != nil {
		return nil, fmt.Errorf("onnx inference: %w", err)
	}
	defer func() {
		for _, out := range outputs {
			if out != nil {
				out.Destroy()
			}
		}
	}()

	out, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, fmt.Errorf("unexpected output tensor type %T", outputs[0])
	}

	return pool(out.GetData(), out.GetShape(), enc.attentionMask, e.dimensions)
}

// Dimensions returns the embedding vector size.
func (e *ONNXEmbedder) Dimensions() int {
	return e.dimensions
}

// Close releases ONNX resources.
func (e *ONNXEmbedder) Close() error {
	if e.session != nil {
		return e.session.Destroy()
	}
	return nil
}
