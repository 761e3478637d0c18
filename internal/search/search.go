// Package search wraps the web-search capability used for evidence
// retrieval, plus a robots-aware page fetcher for snippet enrichment.
package search

import "context"

// Result is one ranked search hit. Ranking order is the backend's
// relevance order and is preserved by callers.
type Result struct {
	Title string `json:"title"`
	URL   string `json:"url"`
	Text  string `json:"text"`
}

// Client defines the interface for web-search providers.
type Client interface {
	// Search runs a keyword query and returns up to limit ranked
	// results, already restricted server-side to the provider's
	// configured domain filter when it supports one.
	Search(ctx context.Context, query string, limit int) ([]Result, error)
}
