package memory

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
)

// DefaultKeywordThreshold is the minimum keyword score kept by KeywordRanker.
const DefaultKeywordThreshold = 0.3

// maxKeywordResults caps keyword retrieval results.
const maxKeywordResults = 3

// SemanticRanker ranks records by vector similarity to the query.
type SemanticRanker struct {
	Embedder Embedder
	Store    VectorStore
	TopK     int
}

// Rank embeds the query and searches the store. A degenerate (all-zero)
// query vector yields no results.
func (r *SemanticRanker) Rank(ctx context.Context, query string) ([]RetrievalResult, error) {
	vector, err := r.Embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if isZero(vector) {
		return nil, nil
	}

	hits := r.Store.Search(ctx, vector, r.TopK)
	results := make([]RetrievalResult, 0, len(hits))
	for _, hit := range hits {
		results = append(results, RetrievalResult{
			Timestamp: hit.Metadata.Timestamp,
			Content:   hit.Metadata.Content(),
			Relevance: hit.Similarity,
		})
	}
	return results, nil
}

// KeywordRanker ranks every record by KeywordMatcher score.
// Scores below Threshold are dropped; at most three results are returned.
type KeywordRanker struct {
	Store     VectorStore
	Matcher   KeywordMatcher
	Threshold float64
}

// Rank scores all stored records against the query.
func (r *KeywordRanker) Rank(ctx context.Context, query string) ([]RetrievalResult, error) {
	items, err := r.Store.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("enumerate records: %w", err)
	}
	if len(items) == 0 {
		return nil, nil
	}

	keywords := r.Matcher.Keywords(query)
	var results []RetrievalResult
	for _, item := range items {
		meta := item.Metadata
		corpus := strings.ToLower(meta.UserInput + " " + meta.AIResponse)
		score := r.Matcher.scoreKeywords(keywords, corpus)
		if score < r.Threshold {
			continue
		}
		results = append(results, RetrievalResult{
			Timestamp: meta.Timestamp,
			Content:   meta.Content(),
			Relevance: score,
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Relevance > results[j].Relevance
	})
	if len(results) > maxKeywordResults {
		results = results[:maxKeywordResults]
	}
	return results, nil
}

// FallbackRanker tries Primary and falls back to Fallback when Primary fails
// or finds nothing.
type FallbackRanker struct {
	Primary  RelevanceRanker
	Fallback RelevanceRanker
}

// Rank runs the fallback policy.
func (r *FallbackRanker) Rank(ctx context.Context, query string) ([]RetrievalResult, error) {
	results, err := r.Primary.Rank(ctx, query)
	if err != nil {
		log.Printf("[MEMORY] Primary ranking failed, falling back: %v", err)
	} else if len(results) > 0 {
		return results, nil
	}
	return r.Fallback.Rank(ctx, query)
}

func isZero(v []float32) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}
