package factcheck

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/pkriz/veritas/internal/llm"
)

// Extractor identifies checkable factual claims in one sentence using
// the language-model capability.
type Extractor struct {
	llm    llm.Client
	logger *log.Logger
}

// NewExtractor creates a claim extractor.
func NewExtractor(client llm.Client, logger *log.Logger) *Extractor {
	return &Extractor{llm: client, logger: logger}
}

// Extract returns the claims found in the sentence. An empty result is
// the common case. A malformed or failed model response is retried once
// with the same input; on second failure the sentence is dropped and an
// error returned. The caller logs it and moves on, never halting the
// stream.
func (e *Extractor) Extract(ctx context.Context, sentence Sentence) ([]Claim, error) {
	if strings.TrimSpace(sentence.Text) == "" {
		return nil, nil
	}

	extracted, err := e.llm.ExtractClaims(ctx, sentence.Text)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if e.logger != nil {
			e.logger.Printf("extractor: retrying after error: %v", err)
		}
		extracted, err = e.llm.ExtractClaims(ctx, sentence.Text)
		if err != nil {
			return nil, fmt.Errorf("claim extraction failed twice: %w", err)
		}
	}

	claims := make([]Claim, 0, len(extracted))
	for _, ec := range extracted {
		claims = append(claims, NewClaim(ec.Text, ec.Subject, sentence))
	}
	return claims, nil
}
