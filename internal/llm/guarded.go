package llm

import (
	"context"
	"errors"

	"github.com/pkriz/veritas/internal/breaker"
)

// GuardedClient runs extraction and judgement calls through a circuit
// breaker, shielding the pipeline from a model provider that is down.
// Malformed responses count as failures too; a provider returning
// garbage is as unavailable as one returning 500s. An open breaker
// surfaces as a call error, which the extractor's drop path and the
// synthesizer's unclear fallback already absorb.
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

func (g *GuardedClient) ExtractClaims(ctx context.Context, sentence string) ([]ExtractedClaim, error) {
	if err := g.br.Allow(); err != nil {
		return nil, err
	}
	claims, err := g.inner.ExtractClaims(ctx, sentence)
	g.record(err)
	if err != nil {
		return nil, err
	}
	return claims, nil
}

func (g *GuardedClient) JudgeClaim(ctx context.Context, claim string, passages []EvidencePassage) (*VerdictResult, error) {
	if err := g.br.Allow(); err != nil {
		return nil, err
	}
	v, err := g.inner.JudgeClaim(ctx, claim, passages)
	g.record(err)
	if err != nil {
		return nil, err
	}
	return v, nil
}

func (g *GuardedClient) Usage() TokenUsage { return g.inner.Usage() }

// record feeds the call outcome back, ignoring caller cancellation.
func (g *GuardedClient) record(err error) {
	if errors.Is(err, context.Canceled) {
		return
	}
	g.br.Record(err)
}
