package factcheck

import (
	"context"
	"log"
	"time"

	"github.com/pkriz/veritas/internal/llm"
)

// Fallback rationales for the degraded verdict paths.
const (
	rationaleNoEvidence         = "no trusted evidence found"
	rationaleVerificationFailed = "verification failed"
)

// Synthesizer produces the terminal verdict for one claim given its
// evidence set. It always returns a verdict; failure paths degrade to a
// low-confidence fallback so every claim that enters the pipeline
// reaches a terminal state.
type Synthesizer struct {
	llm    llm.Client
	logger *log.Logger
}

// NewSynthesizer creates a verdict synthesizer.
func NewSynthesizer(client llm.Client, logger *log.Logger) *Synthesizer {
	return &Synthesizer{llm: client, logger: logger}
}

// Synthesize judges the claim against the evidence. An empty evidence
// set short-circuits to not_found without a model call. A malformed or
// failed model response is retried once; the final fallback is unclear
// with zero confidence.
func (s *Synthesizer) Synthesize(ctx context.Context, claim Claim, evidence []Evidence) Verdict {
	if len(evidence) == 0 {
		return s.verdict(claim, StatusNotFound, 0, rationaleNoEvidence, "")
	}

	passages := make([]llm.EvidencePassage, 0, len(evidence))
	for _, ev := range evidence {
		passages = append(passages, llm.EvidencePassage{URL: ev.URL, Text: ev.Snippet})
	}

	result, err := s.llm.JudgeClaim(ctx, claim.Text, passages)
	if err != nil {
		if s.logger != nil {
			s.logger.Printf("synthesizer: retrying claim %s after error: %v", claim.ID, err)
		}
		result, err = s.llm.JudgeClaim(ctx, claim.Text, passages)
	}
	if err != nil {
		if s.logger != nil {
			s.logger.Printf("synthesizer: claim %s falling back to unclear: %v", claim.ID, err)
		}
		return s.verdict(claim, StatusUnclear, 0, rationaleVerificationFailed, "")
	}

	status := Status(result.Status)
	if !status.Valid() {
		// The client validates this; guard anyway so a bad status can
		// never leave the stage.
		status = StatusUnclear
	}

	evidenceURL := result.EvidenceURL
	if !inEvidenceSet(evidenceURL, evidence) {
		// A URL outside the supplied set violates the contract; cite
		// the top-ranked evidence instead.
		if s.logger != nil && evidenceURL != "" {
			s.logger.Printf("synthesizer: discarding out-of-set URL %q for claim %s", evidenceURL, claim.ID)
		}
		evidenceURL = evidence[0].URL
	}

	return s.verdict(claim, status, clamp01(result.Confidence), result.Rationale, evidenceURL)
}

func (s *Synthesizer) verdict(claim Claim, status Status, confidence float64, rationale, evidenceURL string) Verdict {
	return Verdict{
		ClaimID:     claim.ID,
		SessionID:   claim.SessionID,
		ClaimText:   claim.Text,
		Status:      status,
		Confidence:  confidence,
		Rationale:   rationale,
		EvidenceURL: evidenceURL,
		ProducedAt:  time.Now().UTC(),
	}
}

func inEvidenceSet(url string, evidence []Evidence) bool {
	if url == "" {
		return false
	}
	for _, ev := range evidence {
		if ev.URL == url {
			return true
		}
	}
	return false
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
