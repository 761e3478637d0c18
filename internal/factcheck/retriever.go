package factcheck

import (
	"context"
	"log"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/pkriz/veritas/internal/search"
)

// DefaultEvidenceTopK bounds the evidence set handed to the verdict
// synthesizer.
const DefaultEvidenceTopK = 4

// Retriever gathers evidence for one claim from the web-search
// capability, restricted to the trusted-domain allow-list.
type Retriever struct {
	search  search.Client
	fetcher *search.Fetcher // optional snippet enrichment
	allowed []string        // normalized domain allow-list
	topK    int
	logger  *log.Logger

	retries   int
	baseDelay time.Duration

	queries atomic.Int64
}

// RetrieverConfig holds configuration for the evidence retriever.
type RetrieverConfig struct {
	Search         search.Client
	Fetcher        *search.Fetcher // nil disables snippet enrichment
	TrustedDomains []string
	TopK           int
	Retries        int           // search attempts beyond the first (default 2)
	BaseDelay      time.Duration // first backoff delay (default 200ms)
}

// NewRetriever creates an evidence retriever.
func NewRetriever(cfg RetrieverConfig, logger *log.Logger) *Retriever {
	topK := cfg.TopK
	if topK <= 0 {
		topK = DefaultEvidenceTopK
	}
	retries := cfg.Retries
	if retries <= 0 {
		retries = 2
	}
	baseDelay := cfg.BaseDelay
	if baseDelay <= 0 {
		baseDelay = 200 * time.Millisecond
	}
	allowed := make([]string, 0, len(cfg.TrustedDomains))
	for _, d := range cfg.TrustedDomains {
		d = strings.ToLower(strings.TrimSpace(d))
		if d != "" {
			allowed = append(allowed, d)
		}
	}
	return &Retriever{
		search:    cfg.Search,
		fetcher:   cfg.Fetcher,
		allowed:   allowed,
		topK:      topK,
		retries:   retries,
		baseDelay: baseDelay,
		logger:    logger,
	}
}

// Retrieve returns ranked evidence for the claim, bounded to top-K. A
// search failure is retried with exponential backoff; exhausting
// retries yields an empty set, which downstream maps to not_found. It
// never returns an error.
func (r *Retriever) Retrieve(ctx context.Context, claim Claim) []Evidence {
	results := r.searchWithBackoff(ctx, claim.Text)

	evidence := make([]Evidence, 0, r.topK)
	for _, res := range results {
		domain, ok := r.allowedDomain(res.URL)
		if !ok {
			if r.logger != nil {
				r.logger.Printf("retriever: dropping result outside allow-list: %s", res.URL)
			}
			continue
		}
		ev := Evidence{URL: res.URL, Title: res.Title, Snippet: res.Text, Domain: domain}
		if ev.Snippet == "" && r.fetcher != nil {
			if text, err := r.fetcher.PageText(ctx, ev.URL, 2000); err == nil {
				ev.Snippet = text
			}
		}
		evidence = append(evidence, ev)
		if len(evidence) >= r.topK {
			break
		}
	}
	return evidence
}

// Queries returns the number of search queries issued so far.
func (r *Retriever) Queries() int64 {
	return r.queries.Load()
}

// searchWithBackoff issues the query, retrying transient failures with
// doubling delays. Returns nil once retries or the context are
// exhausted.
func (r *Retriever) searchWithBackoff(ctx context.Context, query string) []search.Result {
	delay := r.baseDelay
	for attempt := 0; attempt <= r.retries; attempt++ {
		if ctx.Err() != nil {
			return nil
		}

		r.queries.Add(1)
		results, err := r.search.Search(ctx, query, r.topK)
		if err == nil {
			return results
		}
		if r.logger != nil {
			r.logger.Printf("retriever: search attempt %d failed: %v", attempt+1, err)
		}

		if attempt == r.retries {
			break
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}
		delay *= 2
	}
	return nil
}

// allowedDomain reports whether the URL's host is a member of (or a
// subdomain of a member of) the allow-list, returning the matched
// domain.
func (r *Retriever) allowedDomain(rawURL string) (string, bool) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", false
	}
	host := strings.ToLower(parsed.Hostname())
	for _, d := range r.allowed {
		if host == d || strings.HasSuffix(host, "."+d) {
			return d, true
		}
	}
	return "", false
}
