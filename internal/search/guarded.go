package search

import (
	"context"
	"errors"

	"github.com/pkriz/veritas/internal/breaker"
)

// GuardedClient runs every search through a circuit breaker so a
// failing provider is backed off instead of hammered. An open breaker
// surfaces as a search error, which the retriever's retry and
// empty-evidence paths already absorb.
type GuardedClient struct {
	inner Client
	br    *breaker.Breaker
}

// WithBreaker wraps a client with breaker protection. A nil breaker
// returns the client unchanged.
func WithBreaker(c Client, br *breaker.Breaker) Client {
	if br == nil {
		return c
	}
	return &GuardedClient{inner: c, br: br}
}

func (g *GuardedClient) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	if err := g.br.Allow(); err != nil {
		return nil, err
	}
	results, err := g.inner.Search(ctx, query, limit)
	// Caller cancellation is not a provider failure.
	if !errors.Is(err, context.Canceled) {
		g.br.Record(err)
	}
	if err != nil {
		return nil, err
	}
	return results, nil
}
