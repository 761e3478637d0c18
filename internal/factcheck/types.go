// Package factcheck contains the claim-verification pipeline: domain
// types, the four processing stages (extraction, retrieval, synthesis,
// coordination) and the per-session concurrency discipline that ties
// them together.
package factcheck

import (
	"time"

	"github.com/google/uuid"
)

// Status is the terminal judgement on a claim.
type Status string

const (
	StatusSupported    Status = "supported"
	StatusContradicted Status = "contradicted"
	StatusUnclear      Status = "unclear"
	StatusNotFound     Status = "not_found"
)

// Valid reports whether s is a member of the verdict status enum.
func (s Status) Valid() bool {
	switch s {
	case StatusSupported, StatusContradicted, StatusUnclear, StatusNotFound:
		return true
	}
	return false
}

// TranscriptFragment is one unit of a session's transcription stream.
// Fragments arrive in increasing Sequence order within a session; a
// non-final fragment is a provisional reading that later fragments for
// the same utterance may supersede.
type TranscriptFragment struct {
	SessionID string `json:"session_id"`
	Text      string `json:"text"`
	IsFinal   bool   `json:"is_final"`
	Sequence  uint64 `json:"sequence"`
}

// Sentence is one complete sentence assembled from the fragment stream.
// Immutable once emitted; consumed exactly once by the claim extractor.
type Sentence struct {
	SessionID string    `json:"session_id"`
	Text      string    `json:"text"`
	EmittedAt time.Time `json:"emitted_at"`
}

// Claim is a single checkable factual assertion extracted from a
// sentence. ID is the deduplication key for the at-most-one-verdict
// guarantee.
type Claim struct {
	ID        string   `json:"id"`
	SessionID string   `json:"session_id"`
	Text      string   `json:"text"`
	Subject   string   `json:"subject,omitempty"`
	Sentence  Sentence `json:"sentence"`
}

// NewClaim creates a claim with a freshly generated ID.
func NewClaim(text, subject string, sentence Sentence) Claim {
	return Claim{
		ID:        uuid.NewString(),
		SessionID: sentence.SessionID,
		Text:      text,
		Subject:   subject,
		Sentence:  sentence,
	}
}

// Evidence is one retrieved, source-attributed snippet used to verify a
// claim. Domain is always a member of the configured allow-list; the
// retriever enforces this, downstream stages rely on it.
type Evidence struct {
	URL     string `json:"url"`
	Title   string `json:"title,omitempty"`
	Snippet string `json:"snippet"`
	Domain  string `json:"domain"`
}

// Verdict is the terminal result for one claim. Exactly one verdict is
// produced per claim that enters the pipeline; it is never mutated
// after creation.
type Verdict struct {
	ClaimID     string    `json:"claim_id"`
	SessionID   string    `json:"session_id"`
	ClaimText   string    `json:"claim"`
	Status      Status    `json:"status"`
	Confidence  float64   `json:"confidence"`
	Rationale   string    `json:"rationale"`
	EvidenceURL string    `json:"evidence_url,omitempty"`
	ProducedAt  time.Time `json:"produced_at"`
}

// DeliverySink receives finished verdicts. Implementations must not
// block the pipeline; delivery is fire-and-forget.
type DeliverySink interface {
	Deliver(v Verdict)
}

// SinkFunc adapts a function to the DeliverySink interface.
type SinkFunc func(v Verdict)

func (f SinkFunc) Deliver(v Verdict) { f(v) }

// MultiSink fans a verdict out to several sinks.
type MultiSink []DeliverySink

func (m MultiSink) Deliver(v Verdict) {
	for _, s := range m {
		s.Deliver(v)
	}
}
