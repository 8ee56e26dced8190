package search

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultDuckDuckGoURL is the DuckDuckGo Instant Answer endpoint.
const DefaultDuckDuckGoURL = "https://api.duckduckgo.com/"

// DuckDuckGo searches the DuckDuckGo Instant Answer API.
type DuckDuckGo struct {
	baseURL    string
	httpClient *http.Client
}

// DuckDuckGoOption configures a DuckDuckGo client.
type DuckDuckGoOption func(*DuckDuckGo)

// WithBaseURL overrides the API endpoint.
func WithBaseURL(u string) DuckDuckGoOption {
	return func(d *DuckDuckGo) {
		d.baseURL = u
	}
}

// WithHTTPClient replaces the default client (15s timeout).
func WithHTTPClient(c *http.Client) DuckDuckGoOption {
	return func(d *DuckDuckGo) {
		d.httpClient = c
	}
}

// NewDuckDuckGo creates a DuckDuckGo client.
func NewDuckDuckGo(opts ...DuckDuckGoOption) *DuckDuckGo {
	d := &DuckDuckGo{
		baseURL: DefaultDuckDuckGoURL,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

type instantAnswer struct {
	Heading       string         `json:"Heading"`
	AbstractText  string         `json:"AbstractText"`
	AbstractURL   string         `json:"AbstractURL"`
	Results       []relatedTopic `json:"Results"`
	RelatedTopics []relatedTopic `json:"RelatedTopics"`
}

type relatedTopic struct {
	Text     string         `json:"Text"`
	FirstURL string         `json:"FirstURL"`
	Name     string         `json:"Name"`
	Topics   []relatedTopic `json:"Topics"`
}

// Search returns up to maxResults hits for query: the abstract first, then
// direct results, then related topics.
func (d *DuckDuckGo) Search(ctx context.Context, query string, maxResults int) ([]Result, error) {
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("format", "json")
	params.Set("no_html", "1")
	params.Set("skip_disambig", "1")

	req, err := http.NewRequestWithContext(ctx, "GET", d.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search: status %d", resp.StatusCode)
	}

	var answer instantAnswer
	if err := json.Unmarshal(body, &answer); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}

	var results []Result
	if answer.AbstractText != "" {
		results = append(results, Result{Title: answer.Heading, Body: answer.AbstractText, URL: answer.AbstractURL})
	}
	results = appendTopics(results, answer.Results)
	results = appendTopics(results, answer.RelatedTopics)

	if len(results) > maxResults {
		results = results[:maxResults]
	}
	return results, nil
}

// appendTopics flattens topic groups into results.
func appendTopics(results []Result, topics []relatedTopic) []Result {
	for _, t := range topics {
		if len(t.Topics) > 0 {
			results = appendTopics(results, t.Topics)
			continue
		}
		if t.Text == "" {
			continue
		}
		// Text reads "Title - description"
		title, body, ok := strings.Cut(t.Text, " - ")
		if !ok {
			title, body = t.Text, t.Text
		}
		results = append(results, Result{Title: title, Body: body, URL: t.FirstURL})
	}
	return results
}
