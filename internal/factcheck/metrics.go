package factcheck

import "sync/atomic"

// Metrics holds per-session pipeline counters.
type Metrics struct {
	SentencesProcessed int64 `json:"sentences_processed"`
	SentencesDeduped   int64 `json:"sentences_deduped"`
	SentencesDropped   int64 `json:"sentences_dropped"`
	ClaimsExtracted    int64 `json:"claims_extracted"`
	VerdictsDelivered  int64 `json:"verdicts_delivered"`
	VerdictsFromCache  int64 `json:"verdicts_from_cache"`
	ClaimTimeouts      int64 `json:"claim_timeouts"`
	Fallbacks          int64 `json:"fallbacks"`
}

type counters struct {
	sentencesProcessed atomic.Int64
	sentencesDeduped   atomic.Int64
	sentencesDropped   atomic.Int64
	claimsExtracted    atomic.Int64
	verdictsDelivered  atomic.Int64
	verdictsFromCache  atomic.Int64
	claimTimeouts      atomic.Int64
	fallbacks          atomic.Int64
}

func (c *counters) snapshot() Metrics {
	return Metrics{
		SentencesProcessed: c.sentencesProcessed.Load(),
		SentencesDeduped:   c.sentencesDeduped.Load(),
		SentencesDropped:   c.sentencesDropped.Load(),
		ClaimsExtracted:    c.claimsExtracted.Load(),
		VerdictsDelivered:  c.verdictsDelivered.Load(),
		VerdictsFromCache:  c.verdictsFromCache.Load(),
		ClaimTimeouts:      c.claimTimeouts.Load(),
		Fallbacks:          c.fallbacks.Load(),
	}
}
