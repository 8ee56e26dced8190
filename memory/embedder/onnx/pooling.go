package onnx

import (
	"fmt"
	"math"
)

// pool reduces model output to one sentence vector. Output already pooled
// ([1, dims]) is copied; token output ([1, seq, dims]) is mean-pooled over
// attended tokens. The result is L2-normalized.
func pool(data []float32, shape []int64, mask []int64, dims int) ([]float32, error) {
	var out []float32
	switch len(shape) {
	case 2:
		if len(data) < dims {
			return nil, fmt.Errorf("output dimension mismatch: got %d, expected %d", len(data), dims)
		}
		out = make([]float32, dims)
		copy(out, data[:dims])

	case 3:
		if shape[0] != 1 {
			return nil, fmt.Errorf("expected batch size 1, got %d", shape[0])
		}
		seqLen, hidden := int(shape[1]), int(shape[2])
		if hidden != dims {
			return nil, fmt.Errorf("hidden size mismatch: got %d, expected %d", hidden, dims)
		}
		if len(data) < seqLen*hidden || len(mask) < seqLen {
			return nil, fmt.Errorf("output shorter than shape %v", shape)
		}

		out = make([]float32, dims)
		var attended float32
		for i := 0; i < seqLen; i++ {
			if mask[i] == 0 {
				continue
			}
			attended++
			row := data[i*hidden : (i+1)*hidden]
			for j, v := range row {
				out[j] += v
			}
		}
		if attended == 0 {
			return nil, fmt.Errorf("no attended tokens")
		}
		for j := range out {
			out[j] /= attended
		}

	default:
		return nil, fmt.Errorf("unexpected output shape: %v", shape)
	}

	return normalize(out), nil
}

// normalize converts embedding to unit vector.
func normalize(vec []float32) []float32 {
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return vec
	}

	norm = math.Sqrt(norm)
	normalized := make([]float32, len(vec))
	for i, v := range vec {
		normalized[i] = float32(float64(v) / norm)
	}
	return normalized
}
