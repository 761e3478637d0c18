package factcheck

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkriz/veritas/internal/eventlog"
	"github.com/pkriz/veritas/internal/llm"
	"github.com/pkriz/veritas/internal/search"
)

// fakeEvents captures audit events instead of writing them to a
// database.
type fakeEvents struct {
	mu     sync.Mutex
	logged []eventlog.EventType
}

func (f *fakeEvents) LogAsync(sessionID string, eventType eventlog.EventType, data map[string]any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logged = append(f.logged, eventType)
}

func (f *fakeEvents) has(eventType eventlog.EventType) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.logged {
		if e == eventType {
			return true
		}
	}
	return false
}

// fakeLLM implements llm.Client with pluggable behavior per test.
type fakeLLM struct {
	mu        sync.Mutex
	extractFn func(ctx context.Context, sentence string) ([]llm.ExtractedClaim, error)
	judgeFn   func(ctx context.Context, claim string, passages []llm.EvidencePassage) (*llm.VerdictResult, error)

	extractCalls int
	judgeCalls   int
}

func (f *fakeLLM) ExtractClaims(ctx context.Context, sentence string) ([]llm.ExtractedClaim, error) {
	f.mu.Lock()
	f.extractCalls++
	fn := f.extractFn
	f.mu.Unlock()
	if fn == nil {
		return nil, nil
	}
	return fn(ctx, sentence)
}

func (f *fakeLLM) JudgeClaim(ctx context.Context, claim string, passages []llm.EvidencePassage) (*llm.VerdictResult, error) {
	f.mu.Lock()
	f.judgeCalls++
	fn := f.judgeFn
	f.mu.Unlock()
	if fn == nil {
		return &llm.VerdictResult{Status: string(StatusUnclear)}, nil
	}
	return fn(ctx, claim, passages)
}

func (f *fakeLLM) Usage() llm.TokenUsage { return llm.TokenUsage{} }

func (f *fakeLLM) extracts() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.extractCalls
}

func (f *fakeLLM) judges() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.judgeCalls
}

// fakeSearch implements search.Client with pluggable behavior.
type fakeSearch struct {
	mu    sync.Mutex
	fn    func(ctx context.Context, query string, limit int) ([]search.Result, error)
	calls int
}

func (f *fakeSearch) Search(ctx context.Context, query string, limit int) ([]search.Result, error) {
	f.mu.Lock()
	f.calls++
	fn := f.fn
	f.mu.Unlock()
	if fn == nil {
		return nil, nil
	}
	return fn(ctx, query, limit)
}

func (f *fakeSearch) searches() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func trustedResult(path string) search.Result {
	return search.Result{
		Title: "Kubernetes docs",
		URL:   "https://kubernetes.io/docs/" + path,
		Text:  "relevant passage",
	}
}

func waitVerdicts(t *testing.T, ch <-chan Verdict, n int, timeout time.Duration) []Verdict {
	t.Helper()
	out := make([]Verdict, 0, n)
	deadline := time.After(timeout)
	for len(out) < n {
		select {
		case v := <-ch:
			out = append(out, v)
		case <-deadline:
			t.Fatalf("got %d verdicts, want %d within %s", len(out), n, timeout)
		}
	}
	return out
}
