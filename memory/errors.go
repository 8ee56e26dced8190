package memory

import "errors"

var (
	// ErrStoreInit is returned when the vector store cannot be opened or
	// created. It is the only fatal memory error.
	ErrStoreInit = errors.New("memory: vector store initialization failed")

	// ErrDimensionMismatch is returned when a vector does not have the
	// configured dimension.
	ErrDimensionMismatch = errors.New("memory: vector dimension mismatch")
)
