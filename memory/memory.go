package memory

import (
	"context"
)

// Embedder converts text to vector embeddings.
// Implementations: hash (deterministic fallback), onnx (all-MiniLM-L6-v2),
// fallback (primary with hash fallback), cache (ristretto decorator),
// mock (testing).
//
// Note: Embedder is constructed once at process start and injected into the
// Manager. There is no package-level model cache.
type Embedder interface {
	// Embed converts a single text to embedding vector.
	// Empty text yields the zero vector.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimensions returns embedding vector size.
	Dimensions() int
}

// VectorStore is the persistent record collection backing the Manager.
// Implementations: ChromemStore (embedded, file-backed).
//
// Only construction may fail fatally. Search returns an empty slice on
// internal failure; Delete reports false. The remaining methods return
// errors so the Manager can choose to degrade.
type VectorStore interface {
	// Upsert stores the record under RecordID(userInput, aiResponse).
	// An existing record is replaced and stamped with updated_at; a new one
	// is stamped with created_at.
	Upsert(ctx context.Context, vector []float32, meta RecordMetadata) (string, error)

	// Search returns up to topK hits ordered by descending similarity.
	Search(ctx context.Context, query []float32, topK int) []SearchHit

	// GetAll enumerates every stored record. Order is unspecified.
	GetAll(ctx context.Context) ([]StoredItem, error)

	// Delete removes a record. Returns false if absent or on error.
	Delete(ctx context.Context, id string) bool

	// Clear destroys and recreates the collection.
	Clear(ctx context.Context) error

	// Count returns the number of stored records.
	Count() int

	// Close releases resources.
	Close() error
}

// SearchHit is one similarity search result.
type SearchHit struct {
	ID         string
	Metadata   RecordMetadata
	Similarity float64
}

// StoredItem is one enumerated record.
type StoredItem struct {
	ID       string
	Metadata RecordMetadata
	Document string
}

// RetrievalResult is a ranked memory ready for prompt injection.
type RetrievalResult struct {
	Timestamp string
	Content   string
	Relevance float64
}

// Thread summarises the records sharing one thread id.
type Thread struct {
	Name        string
	Count       int
	LastUpdated string
}

// Turn is one conversation exchange as returned by history queries.
type Turn struct {
	Timestamp  string
	UserInput  string
	AIResponse string
}

// RelevanceRanker ranks stored memories against a query.
// Implementations: SemanticRanker, KeywordRanker, FallbackRanker.
type RelevanceRanker interface {
	Rank(ctx context.Context, query string) ([]RetrievalResult, error)
}
