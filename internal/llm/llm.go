// Package llm wraps the language-model capability consumed by the
// pipeline: structured claim extraction and verdict synthesis.
package llm

import (
	"context"
	"errors"
)

// ErrMalformedResponse marks responses that failed schema validation.
// Callers retry these once before degrading; see the pipeline stages.
var ErrMalformedResponse = errors.New("malformed model response")

// ExtractedClaim is one checkable factual assertion found in a sentence.
type ExtractedClaim struct {
	Text    string `json:"text"`
	Subject string `json:"subject"`
}

// EvidencePassage is one evidence snippet handed to the model for
// verdict synthesis.
type EvidencePassage struct {
	URL  string `json:"url"`
	Text string `json:"text"`
}

// VerdictResult is the model's structured judgement of a claim against
// the supplied evidence.
type VerdictResult struct {
	Status      string  `json:"status"`
	Confidence  float64 `json:"confidence"`
	Rationale   string  `json:"rationale"`
	EvidenceURL string  `json:"evidence_url"`
}

// TokenUsage accumulates prompt/completion token counts for cost
// accounting.
type TokenUsage struct {
	PromptTokens     int
	CompletionTokens int
}

// Client defines the interface for language-model providers.
type Client interface {
	// ExtractClaims identifies zero or more checkable factual claims in
	// one sentence. An empty result is the common case, not an error.
	ExtractClaims(ctx context.Context, sentence string) ([]ExtractedClaim, error)

	// JudgeClaim produces a verdict for a claim given evidence passages.
	// The returned status is always a member of the verdict enum and
	// confidence is within [0,1]; anything else is reported as
	// ErrMalformedResponse.
	JudgeClaim(ctx context.Context, claim string, passages []EvidencePassage) (*VerdictResult, error)

	// Usage returns cumulative token usage for this client.
	Usage() TokenUsage
}
