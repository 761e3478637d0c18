package factcheck

import (
	"context"
	"errors"
	"testing"

	"github.com/pkriz/veritas/internal/llm"
)

func testEvidence() []Evidence {
	return []Evidence{
		{URL: "https://docs.python.org/3/whatsnew/3.12.html", Snippet: "distutils has been removed", Domain: "docs.python.org"},
		{URL: "https://docs.python.org/3/library/", Snippet: "library index", Domain: "docs.python.org"},
	}
}

func TestSynthesizerEmptyEvidenceShortCircuits(t *testing.T) {
	fake := &fakeLLM{}
	syn := NewSynthesizer(fake, nil)
	claim := testClaim("Python 3.12 removed distutils.")

	v := syn.Synthesize(context.Background(), claim, nil)
	if v.Status != StatusNotFound {
		t.Errorf("Status = %q, want %q", v.Status, StatusNotFound)
	}
	if v.Confidence != 0 {
		t.Errorf("Confidence = %v, want 0", v.Confidence)
	}
	if v.Rationale != "no trusted evidence found" {
		t.Errorf("Rationale = %q, want %q", v.Rationale, "no trusted evidence found")
	}
	if v.EvidenceURL != "" {
		t.Errorf("EvidenceURL = %q, want empty", v.EvidenceURL)
	}
	if fake.judges() != 0 {
		t.Errorf("model called %d times with no evidence, want 0", fake.judges())
	}
	if v.ClaimID != claim.ID || v.ClaimText != claim.Text {
		t.Errorf("verdict does not reference its claim")
	}
}

func TestSynthesizerPassesThroughValidResult(t *testing.T) {
	fake := &fakeLLM{
		judgeFn: func(ctx context.Context, claim string, passages []llm.EvidencePassage) (*llm.VerdictResult, error) {
			if len(passages) != 2 {
				t.Errorf("got %d passages, want 2", len(passages))
			}
			return &llm.VerdictResult{
				Status:      string(StatusSupported),
				Confidence:  0.92,
				Rationale:   "the changelog confirms the removal",
				EvidenceURL: "https://docs.python.org/3/whatsnew/3.12.html",
			}, nil
		},
	}
	syn := NewSynthesizer(fake, nil)

	v := syn.Synthesize(context.Background(), testClaim("Python 3.12 removed distutils."), testEvidence())
	if v.Status != StatusSupported {
		t.Errorf("Status = %q, want %q", v.Status, StatusSupported)
	}
	if v.Confidence != 0.92 {
		t.Errorf("Confidence = %v, want 0.92", v.Confidence)
	}
	if v.EvidenceURL != "https://docs.python.org/3/whatsnew/3.12.html" {
		t.Errorf("EvidenceURL = %q, want the cited evidence URL", v.EvidenceURL)
	}
}

func TestSynthesizerReplacesOutOfSetURL(t *testing.T) {
	fake := &fakeLLM{
		judgeFn: func(ctx context.Context, claim string, passages []llm.EvidencePassage) (*llm.VerdictResult, error) {
			return &llm.VerdictResult{
				Status:      string(StatusSupported),
				Confidence:  0.8,
				Rationale:   "confirmed",
				EvidenceURL: "https://fabricated.example.com/nonsense",
			}, nil
		},
	}
	syn := NewSynthesizer(fake, nil)
	evidence := testEvidence()

	v := syn.Synthesize(context.Background(), testClaim("Python 3.12 removed distutils."), evidence)
	if v.EvidenceURL != evidence[0].URL {
		t.Errorf("EvidenceURL = %q, want top-ranked %q", v.EvidenceURL, evidence[0].URL)
	}
}

func TestSynthesizerRetriesOnceThenSucceeds(t *testing.T) {
	var calls int
	fake := &fakeLLM{}
	fake.judgeFn = func(ctx context.Context, claim string, passages []llm.EvidencePassage) (*llm.VerdictResult, error) {
		calls++
		if calls == 1 {
			return nil, llm.ErrMalformedResponse
		}
		return &llm.VerdictResult{
			Status:      string(StatusContradicted),
			Confidence:  0.7,
			Rationale:   "the docs say otherwise",
			EvidenceURL: testEvidence()[1].URL,
		}, nil
	}
	syn := NewSynthesizer(fake, nil)

	v := syn.Synthesize(context.Background(), testClaim("distutils is still in Python 3.12."), testEvidence())
	if v.Status != StatusContradicted {
		t.Errorf("Status = %q, want %q", v.Status, StatusContradicted)
	}
	if fake.judges() != 2 {
		t.Errorf("model called %d times, want 2", fake.judges())
	}
}

func TestSynthesizerFallsBackAfterTwoFailures(t *testing.T) {
	fake := &fakeLLM{
		judgeFn: func(ctx context.Context, claim string, passages []llm.EvidencePassage) (*llm.VerdictResult, error) {
			return nil, errors.New("upstream 500")
		},
	}
	syn := NewSynthesizer(fake, nil)
	claim := testClaim("Python 3.12 removed distutils.")

	v := syn.Synthesize(context.Background(), claim, testEvidence())
	if v.Status != StatusUnclear {
		t.Errorf("Status = %q, want %q", v.Status, StatusUnclear)
	}
	if v.Confidence != 0 {
		t.Errorf("Confidence = %v, want 0", v.Confidence)
	}
	if v.Rationale != "verification failed" {
		t.Errorf("Rationale = %q, want %q", v.Rationale, "verification failed")
	}
	if fake.judges() != 2 {
		t.Errorf("model called %d times, want 2", fake.judges())
	}
}

func TestSynthesizerGuardsStatusAndConfidence(t *testing.T) {
	fake := &fakeLLM{
		judgeFn: func(ctx context.Context, claim string, passages []llm.EvidencePassage) (*llm.VerdictResult, error) {
			return &llm.VerdictResult{
				Status:      "probably",
				Confidence:  1.4,
				Rationale:   "overconfident",
				EvidenceURL: testEvidence()[0].URL,
			}, nil
		},
	}
	syn := NewSynthesizer(fake, nil)

	v := syn.Synthesize(context.Background(), testClaim("a claim"), testEvidence())
	if v.Status != StatusUnclear {
		t.Errorf("Status = %q for unknown enum value, want %q", v.Status, StatusUnclear)
	}
	if v.Confidence != 1 {
		t.Errorf("Confidence = %v, want clamped to 1", v.Confidence)
	}
}
