package factcheck

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pkriz/veritas/internal/search"
)

func testClaim(text string) Claim {
	return NewClaim(text, "", testSentence(text))
}

func newTestRetriever(fs *fakeSearch, domains []string, topK int) *Retriever {
	return NewRetriever(RetrieverConfig{
		Search:         fs,
		TrustedDomains: domains,
		TopK:           topK,
		Retries:        2,
		BaseDelay:      time.Millisecond,
	}, nil)
}

func TestRetrieverFiltersUntrustedDomains(t *testing.T) {
	fs := &fakeSearch{
		fn: func(ctx context.Context, query string, limit int) ([]search.Result, error) {
			return []search.Result{
				{URL: "https://randomblog.example.com/post", Text: "untrusted"},
				{URL: "https://kubernetes.io/docs/concepts/", Text: "trusted"},
				{URL: "https://docs.python.org/3/whatsnew/3.12.html", Text: "trusted"},
			}, nil
		},
	}
	r := newTestRetriever(fs, []string{"kubernetes.io", "docs.python.org"}, 4)

	ev := r.Retrieve(context.Background(), testClaim("distutils was removed in Python 3.12"))
	if len(ev) != 2 {
		t.Fatalf("got %d evidence items, want 2", len(ev))
	}
	for _, e := range ev {
		if e.Domain != "kubernetes.io" && e.Domain != "docs.python.org" {
			t.Errorf("evidence domain %q not in allow-list", e.Domain)
		}
	}
}

func TestRetrieverAllowsSubdomains(t *testing.T) {
	fs := &fakeSearch{
		fn: func(ctx context.Context, query string, limit int) ([]search.Result, error) {
			return []search.Result{
				{URL: "https://v1-29.docs.kubernetes.io/docs/", Text: "subdomain"},
				{URL: "https://notkubernetes.io/docs/", Text: "suffix trick"},
			}, nil
		},
	}
	r := newTestRetriever(fs, []string{"kubernetes.io"}, 4)

	ev := r.Retrieve(context.Background(), testClaim("sidecars are on by default"))
	if len(ev) != 1 {
		t.Fatalf("got %d evidence items, want 1", len(ev))
	}
	if ev[0].URL != "https://v1-29.docs.kubernetes.io/docs/" {
		t.Errorf("kept wrong result: %s", ev[0].URL)
	}
	if ev[0].Domain != "kubernetes.io" {
		t.Errorf("Domain = %q, want kubernetes.io", ev[0].Domain)
	}
}

func TestRetrieverBoundsToTopK(t *testing.T) {
	fs := &fakeSearch{
		fn: func(ctx context.Context, query string, limit int) ([]search.Result, error) {
			var out []search.Result
			for i := 0; i < 10; i++ {
				out = append(out, trustedResult("concepts"))
			}
			return out, nil
		},
	}
	r := newTestRetriever(fs, []string{"kubernetes.io"}, 3)

	ev := r.Retrieve(context.Background(), testClaim("a claim"))
	if len(ev) != 3 {
		t.Errorf("got %d evidence items, want top-K of 3", len(ev))
	}
}

func TestRetrieverRetriesWithBackoff(t *testing.T) {
	var attempts int
	fs := &fakeSearch{}
	fs.fn = func(ctx context.Context, query string, limit int) ([]search.Result, error) {
		attempts++
		if attempts < 3 {
			return nil, errors.New("rate limited")
		}
		return []search.Result{trustedResult("concepts")}, nil
	}
	r := newTestRetriever(fs, []string{"kubernetes.io"}, 4)

	ev := r.Retrieve(context.Background(), testClaim("a claim"))
	if len(ev) != 1 {
		t.Fatalf("got %d evidence items after retries, want 1", len(ev))
	}
	if got := r.Queries(); got != 3 {
		t.Errorf("Queries() = %d, want 3", got)
	}
}

func TestRetrieverExhaustedRetriesReturnsEmpty(t *testing.T) {
	fs := &fakeSearch{
		fn: func(ctx context.Context, query string, limit int) ([]search.Result, error) {
			return nil, errors.New("upstream down")
		},
	}
	r := newTestRetriever(fs, []string{"kubernetes.io"}, 4)

	ev := r.Retrieve(context.Background(), testClaim("a claim"))
	if len(ev) != 0 {
		t.Fatalf("got %d evidence items, want 0", len(ev))
	}
	if got := fs.searches(); got != 3 {
		t.Errorf("search attempts = %d, want initial plus 2 retries", got)
	}
}

func TestRetrieverCancelledContextStopsRetrying(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	fs := &fakeSearch{
		fn: func(ctx context.Context, query string, limit int) ([]search.Result, error) {
			cancel()
			return nil, errors.New("late failure")
		},
	}
	r := newTestRetriever(fs, []string{"kubernetes.io"}, 4)

	ev := r.Retrieve(ctx, testClaim("a claim"))
	if len(ev) != 0 {
		t.Fatalf("got %d evidence items, want 0", len(ev))
	}
	if got := fs.searches(); got != 1 {
		t.Errorf("search attempts = %d after cancellation, want 1", got)
	}
}

func TestRetrieverNormalizesAllowListEntries(t *testing.T) {
	fs := &fakeSearch{
		fn: func(ctx context.Context, query string, limit int) ([]search.Result, error) {
			return []search.Result{{URL: "https://Kubernetes.IO/docs/", Text: "mixed case host"}}, nil
		},
	}
	r := newTestRetriever(fs, []string{"  Kubernetes.io ", ""}, 4)

	ev := r.Retrieve(context.Background(), testClaim("a claim"))
	if len(ev) != 1 {
		t.Fatalf("got %d evidence items, want 1", len(ev))
	}
	if ev[0].Domain != "kubernetes.io" {
		t.Errorf("Domain = %q, want kubernetes.io", ev[0].Domain)
	}
}
