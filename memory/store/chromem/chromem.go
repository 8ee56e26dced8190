package chromem

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	chromem "github.com/philippgille/chromem-go"

	"github.com/becomeliminal/nim-recall/memory"
)

// CollectionName is the collection holding conversation records.
const CollectionName = "conversations"

// DefaultDimensions matches all-MiniLM-L6-v2 and the hash embedder.
const DefaultDimensions = 384

var collectionMetadata = map[string]string{
	"description": "AI Agent conversation memory",
}

// ChromemStore wraps chromem-go for vector storage.
// chromem-go is a pure Go, embedded vector database. With a path it persists
// every document to disk synchronously on write.
//
// Similarity is cosine similarity, which is 1 - cosine distance; chromem-go
// normalizes every stored and query vector.
type ChromemStore struct {
	db   *chromem.DB
	col  *chromem.Collection
	mu   sync.RWMutex
	dims int
	now  func() time.Time
}

// Option configures a ChromemStore.
type Option func(*options)

type options struct {
	path     string
	compress bool
	dims     int
	now      func() time.Time
}

// WithPath persists the store under dir. Without it the store is in-memory.
func WithPath(dir string) Option {
	return func(o *options) {
		o.path = dir
	}
}

// WithCompression gzips persisted documents.
func WithCompression() Option {
	return func(o *options) {
		o.compress = true
	}
}

// WithDimensions sets the vector dimension. Default: 384.
func WithDimensions(dims int) Option {
	return func(o *options) {
		o.dims = dims
	}
}

// WithClock overrides the clock used for created_at/updated_at.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

// New opens (or creates) the conversations collection.
// Failure is fatal for the caller and wraps memory.ErrStoreInit.
func New(opts ...Option) (*ChromemStore, error) {
	o := options{dims: DefaultDimensions, now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if o.dims <= 0 {
		return nil, fmt.Errorf("%w: dimensions must be positive, got %d", memory.ErrStoreInit, o.dims)
	}

	var db *chromem.DB
	if o.path == "" {
		db = chromem.NewDB()
	} else {
		var err error
		db, err = chromem.NewPersistentDB(o.path, o.compress)
		if err != nil {
			return nil, fmt.Errorf("%w: open %s: %v", memory.ErrStoreInit, o.path, err)
		}
	}

	col, err := db.GetOrCreateCollection(CollectionName, collectionMetadata, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", memory.ErrStoreInit, err)
	}

	log.Printf("[CHROMEM] Opened collection %q (path=%q, documents=%d)", CollectionName, o.path, col.Count())

	return &ChromemStore{
		db:   db,
		col:  col,
		dims: o.dims,
		now:  o.now,
	}, nil
}

func (s *ChromemStore) collection() *chromem.Collection {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.col
}

// Upsert stores the record under its content-derived id.
func (s *ChromemStore) Upsert(ctx context.Context, vector []float32, meta memory.RecordMetadata) (string, error) {
	if len(vector) != s.dims {
		return "", fmt.Errorf("%w: got %d, want %d", memory.ErrDimensionMismatch, len(vector), s.dims)
	}
	if isZero(vector) {
		return "", errors.New("cannot store an all-zero vector")
	}

	col := s.collection()
	id := meta.ID()
	stamp := memory.FormatTimestamp(s.now())

	existing, err := col.GetByID(ctx, id)
	updating := err == nil
	if updating {
		meta.CreatedAt = existing.Metadata[memory.KeyCreatedAt]
		meta.UpdatedAt = stamp
	} else {
		meta.CreatedAt = stamp
		meta.UpdatedAt = ""
	}

	doc := chromem.Document{
		ID:        id,
		Content:   memory.Document(meta.UserInput, meta.AIResponse),
		Embedding: vector,
		Metadata:  meta.ToMap(),
	}
	if err := col.AddDocument(ctx, doc); err != nil {
		return "", fmt.Errorf("add document: %w", err)
	}

	if updating {
		log.Printf("[CHROMEM] Updated existing item: %s", id)
	} else {
		log.Printf("[CHROMEM] Added new item: %s", id)
	}
	return id, nil
}

// Search retrieves up to topK records by cosine similarity.
// Failures are logged and yield no hits.
func (s *ChromemStore) Search(ctx context.Context, query []float32, topK int) []memory.SearchHit {
	col := s.collection()

	// chromem-go requires 0 < nResults <= collection size
	n := min(topK, col.Count())
	if n <= 0 || isZero(query) {
		return []memory.SearchHit{}
	}

	results, err := col.QueryEmbedding(ctx, query, n, nil, nil)
	if err != nil {
		log.Printf("[CHROMEM] Search failed: %v", err)
		return []memory.SearchHit{}
	}

	hits := make([]memory.SearchHit, 0, len(results))
	for _, r := range results {
		hits = append(hits, memory.SearchHit{
			ID:         r.ID,
			Metadata:   memory.MetadataFromMap(r.Metadata),
			Similarity: float64(r.Similarity),
		})
	}
	return hits
}

// GetAll enumerates every record.
//
// chromem-go has no listing API, so this runs an exhaustive query with a
// unit probe vector and nResults equal to the collection size.
func (s *ChromemStore) GetAll(ctx context.Context) ([]memory.StoredItem, error) {
	col := s.collection()

	n := col.Count()
	if n == 0 {
		return nil, nil
	}

	probe := make([]float32, s.dims)
	probe[0] = 1

	results, err := col.QueryEmbedding(ctx, probe, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("enumerate collection: %w", err)
	}

	items := make([]memory.StoredItem, 0, len(results))
	for _, r := range results {
		items = append(items, memory.StoredItem{
			ID:       r.ID,
			Metadata: memory.MetadataFromMap(r.Metadata),
			Document: r.Content,
		})
	}
	return items, nil
}

// Delete removes a record. Returns false if it is not stored or on error.
func (s *ChromemStore) Delete(ctx context.Context, id string) bool {
	col := s.collection()

	if _, err := col.GetByID(ctx, id); err != nil {
		return false
	}
	if err := col.Delete(ctx, nil, nil, id); err != nil {
		log.Printf("[CHROMEM] Failed to delete %s: %v", id, err)
		return false
	}
	return true
}

// Clear deletes the collection, including its files, and recreates it empty.
func (s *ChromemStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.db.DeleteCollection(CollectionName); err != nil {
		return fmt.Errorf("delete collection: %w", err)
	}
	col, err := s.db.CreateCollection(CollectionName, collectionMetadata, nil)
	if err != nil {
		return fmt.Errorf("recreate collection: %w", err)
	}
	s.col = col
	return nil
}

// Count returns the number of stored records.
func (s *ChromemStore) Count() int {
	return s.collection().Count()
}

// Close releases resources.
func (s *ChromemStore) Close() error {
	// Persistent writes are synchronous, nothing to flush
	return nil
}

func isZero(v []float32) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}
