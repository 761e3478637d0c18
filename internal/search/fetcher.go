package search

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/temoto/robotstxt"
	"golang.org/x/net/html"
	"golang.org/x/time/rate"
)

const fetcherUserAgent = "veritas-factcheck/1.0"

// Fetcher retrieves page text for search results that came back without
// a usable snippet. Fetches are robots.txt-compliant, rate-limited per
// domain and cached.
type Fetcher struct {
	httpClient *http.Client
	logger     *log.Logger
	cache      *gocache.Cache

	mu       sync.Mutex
	robots   map[string]*robotstxt.RobotsData
	limiters map[string]*rate.Limiter
	perHost  rate.Limit
	burst    int
}

// NewFetcher creates a page fetcher. A nil httpClient uses a default
// with a 5 second timeout.
func NewFetcher(httpClient *http.Client, logger *log.Logger) *Fetcher {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 5 * time.Second}
	}
	return &Fetcher{
		httpClient: httpClient,
		logger:     logger,
		cache:      gocache.New(15*time.Minute, 5*time.Minute),
		robots:     make(map[string]*robotstxt.RobotsData),
		limiters:   make(map[string]*rate.Limiter),
		perHost:    rate.Limit(2), // 2 req/s per host
		burst:      3,
	}
}

// PageText fetches rawURL and returns its readable text, truncated to
// maxChars. Returns an error if robots.txt disallows the fetch.
func (f *Fetcher) PageText(ctx context.Context, rawURL string, maxChars int) (string, error) {
	if cached, found := f.cache.Get(rawURL); found {
		return cached.(string), nil
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse URL: %w", err)
	}

	allowed, err := f.canFetch(ctx, parsed)
	if err != nil {
		return "", err
	}
	if !allowed {
		return "", fmt.Errorf("robots.txt disallows %s", rawURL)
	}

	if err := f.limiter(parsed.Host).Wait(ctx); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, "GET", rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", fetcherUserAgent)

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("page fetch error: %s", resp.Status)
	}

	text, err := extractText(io.LimitReader(resp.Body, 1<<20), maxChars)
	if err != nil {
		return "", err
	}

	f.cache.Set(rawURL, text, gocache.DefaultExpiration)
	return text, nil
}

// canFetch consults the host's robots.txt, fetching and caching it on
// first use. Unreachable robots.txt allows the fetch.
func (f *Fetcher) canFetch(ctx context.Context, parsed *url.URL) (bool, error) {
	f.mu.Lock()
	data, ok := f.robots[parsed.Host]
	f.mu.Unlock()

	if !ok {
		robotsURL := fmt.Sprintf("%s://%s/robots.txt", parsed.Scheme, parsed.Host)
		req, err := http.NewRequestWithContext(ctx, "GET", robotsURL, nil)
		if err != nil {
			return false, err
		}
		req.Header.Set("User-Agent", fetcherUserAgent)

		resp, err := f.httpClient.Do(req)
		if err != nil {
			return true, nil
		}
		defer resp.Body.Close()

		data, err = robotstxt.FromResponse(resp)
		if err != nil {
			return true, nil
		}
		f.mu.Lock()
		f.robots[parsed.Host] = data
		f.mu.Unlock()
	}

	return data.TestAgent(parsed.Path, fetcherUserAgent), nil
}

// limiter returns the per-host rate limiter, creating it on first use.
func (f *Fetcher) limiter(host string) *rate.Limiter {
	f.mu.Lock()
	defer f.mu.Unlock()

	l, ok := f.limiters[host]
	if !ok {
		l = rate.NewLimiter(f.perHost, f.burst)
		f.limiters[host] = l
	}
	return l
}

// extractText pulls the visible text out of an HTML document, skipping
// script and style content, collapsing whitespace and truncating to
// maxChars.
func extractText(r io.Reader, maxChars int) (string, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return "", fmt.Errorf("parse HTML: %w", err)
	}

	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "noscript", "nav", "header", "footer":
				return
			}
		}
		if n.Type == html.TextNode {
			trimmed := strings.TrimSpace(n.Data)
			if trimmed != "" {
				if sb.Len() > 0 {
					sb.WriteByte(' ')
				}
				sb.WriteString(trimmed)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if maxChars > 0 && sb.Len() >= maxChars {
				return
			}
			walk(c)
		}
	}
	walk(doc)

	text := sb.String()
	if maxChars > 0 && len(text) > maxChars {
		text = text[:maxChars]
	}
	return text, nil
}
