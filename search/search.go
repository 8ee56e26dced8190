// Package search looks up web results used to ground a reply.
package search

import (
	"context"
	"fmt"
	"strings"
)

// NoResults is the rendering of an empty result list.
const NoResults = "No search results found."

// DefaultMaxResults is the number of results requested per query.
const DefaultMaxResults = 5

// bodyLimit caps each result body in the rendering, in runes.
const bodyLimit = 200

// Result is one search hit.
type Result struct {
	Title string
	Body  string
	URL   string
}

// Provider runs web searches.
type Provider interface {
	Search(ctx context.Context, query string, maxResults int) ([]Result, error)
}

// FormatResults renders results as a numbered list for the model prompt.
func FormatResults(results []Result) string {
	if len(results) == 0 {
		return NoResults
	}

	var b strings.Builder
	for i, r := range results {
		title := r.Title
		if title == "" {
			title = "No title"
		}
		body := r.Body
		if body == "" {
			body = "No description"
		}
		if runes := []rune(body); len(runes) > bodyLimit {
			body = string(runes[:bodyLimit])
		}
		link := r.URL
		if link == "" {
			link = "No link"
		}
		fmt.Fprintf(&b, "%d. %s\n%s...\nSource: %s\n\n", i+1, title, body, link)
	}
	return b.String()
}
