package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const exaAPIURL = "https://api.exa.ai/search"

// ExaClient implements the Client interface using the Exa search API.
type ExaClient struct {
	apiKey         string
	baseURL        string
	includeDomains []string
	httpClient     *http.Client
}

// ExaConfig holds configuration for the Exa client.
type ExaConfig struct {
	APIKey         string
	BaseURL        string        // optional override, used by tests
	IncludeDomains []string      // server-side domain restriction
	HTTPClient     *http.Client  // optional shared client
}

// NewExaClient creates a new Exa search client.
func NewExaClient(cfg ExaConfig) *ExaClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = exaAPIURL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &ExaClient{
		apiKey:         cfg.APIKey,
		baseURL:        baseURL,
		includeDomains: cfg.IncludeDomains,
		httpClient:     httpClient,
	}
}

// exaRequest represents an Exa search request.
type exaRequest struct {
	Query          string      `json:"query"`
	Type           string      `json:"type"`
	UseAutoprompt  bool        `json:"useAutoprompt"`
	NumResults     int         `json:"numResults"`
	IncludeDomains []string    `json:"includeDomains,omitempty"`
	Contents       exaContents `json:"contents"`
}

type exaContents struct {
	Text exaText `json:"text"`
}

type exaText struct {
	MaxCharacters int `json:"maxCharacters"`
}

// exaResponse represents an Exa search response.
type exaResponse struct {
	Results []struct {
		Title string `json:"title"`
		URL   string `json:"url"`
		Text  string `json:"text"`
	} `json:"results"`
}

// Search runs a keyword query restricted to the configured domains.
func (c *ExaClient) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	if limit <= 0 {
		limit = 5
	}

	req := exaRequest{
		Query:          query,
		Type:           "auto",
		UseAutoprompt:  true,
		NumResults:     limit,
		IncludeDomains: c.includeDomains,
		Contents:       exaContents{Text: exaText{MaxCharacters: 2000}},
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("Exa API error: %s - %s", resp.Status, string(respBody))
	}

	var exaResp exaResponse
	if err := json.NewDecoder(resp.Body).Decode(&exaResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	results := make([]Result, 0, len(exaResp.Results))
	for _, r := range exaResp.Results {
		results = append(results, Result{Title: r.Title, URL: r.URL, Text: r.Text})
	}
	return results, nil
}
