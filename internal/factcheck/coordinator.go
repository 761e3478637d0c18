package factcheck

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/pkriz/veritas/internal/eventlog"
)

// Defaults for the per-session concurrency discipline.
const (
	DefaultClaimTimeout = 5 * time.Second
	DefaultMaxInflight  = 8
)

// claimState tracks a claim through the ledger. Transitions are
// monotonic; delivered is terminal.
type claimState int

const (
	stateCreated claimState = iota
	stateExtractingEvidence
	stateSynthesizing
	stateDelivered
)

// CoordinatorConfig configures one session's pipeline coordinator.
// Zero values fall back to the defaults above.
type CoordinatorConfig struct {
	SessionID string

	Extractor   *Extractor
	Retriever   *Retriever
	Synthesizer *Synthesizer
	Sink        DeliverySink
	Events      eventlog.Recorder
	Logger      *log.Logger

	// ClaimTimeout bounds one claim's evidence retrieval plus verdict
	// synthesis. A claim that exceeds it gets the unclear fallback.
	ClaimTimeout time.Duration

	// MaxInflight caps claims concurrently in retrieval/synthesis.
	// Claims beyond the cap queue in arrival order: the order their
	// sentence finished extraction, and claim order within a sentence.
	MaxInflight int

	// OrderedDelivery switches from completion-order delivery to
	// per-sentence ordered delivery: all verdicts for sentence N are
	// delivered before any verdict for sentence N+1.
	OrderedDelivery bool

	SentenceDedupeTTL time.Duration
	VerdictCacheTTL   time.Duration
}

// Coordinator orchestrates one session's claims from sentence to
// delivered verdict. It owns the claim ledger that guarantees exactly
// one verdict per admitted claim, the in-flight cap, the per-claim
// deadline, and the delivery ordering mode.
type Coordinator struct {
	cfg    CoordinatorConfig
	logger *log.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	admit  *admitQueue

	dedupe *deduper
	stats  counters

	mu          sync.Mutex
	ledger      map[string]claimState
	nextSeq     uint64
	nextRelease uint64
	groups      map[uint64]*sentenceGroup
}

// sentenceGroup buffers one sentence's verdicts for ordered delivery.
// want is -1 until extraction finishes and the claim count is known.
type sentenceGroup struct {
	want     int
	verdicts []Verdict
}

// NewCoordinator creates a coordinator for one session. Call Close (or
// Drain) when the session ends.
func NewCoordinator(cfg CoordinatorConfig) *Coordinator {
	if cfg.ClaimTimeout <= 0 {
		cfg.ClaimTimeout = DefaultClaimTimeout
	}
	if cfg.MaxInflight <= 0 {
		cfg.MaxInflight = DefaultMaxInflight
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Coordinator{
		cfg:    cfg,
		logger: cfg.Logger,
		ctx:    ctx,
		cancel: cancel,
		admit:  newAdmitQueue(cfg.MaxInflight),
		dedupe: newDeduper(cfg.SentenceDedupeTTL, cfg.VerdictCacheTTL),
		ledger: make(map[string]claimState),
		groups: make(map[uint64]*sentenceGroup),
	}
}

// ProcessSentence admits one assembled sentence into the pipeline. It
// returns immediately; extraction, retrieval and synthesis run on
// background goroutines. Sentences resubmitted within the dedup window
// are dropped. Safe for concurrent use, though a single session feeds
// sentences from one assembler goroutine in practice.
func (c *Coordinator) ProcessSentence(s Sentence) {
	if c.ctx.Err() != nil {
		return
	}
	if c.dedupe.seenSentence(s.Text) {
		c.stats.sentencesDeduped.Add(1)
		c.logEvent(eventlog.EventSentenceDeduped, map[string]any{
			"text_length": len(s.Text),
		})
		return
	}
	c.stats.sentencesProcessed.Add(1)

	c.mu.Lock()
	seq := c.nextSeq
	c.nextSeq++
	if c.cfg.OrderedDelivery {
		c.groups[seq] = &sentenceGroup{want: -1}
	}
	c.mu.Unlock()

	c.wg.Add(1)
	go c.runSentence(seq, s)
}

func (c *Coordinator) runSentence(seq uint64, s Sentence) {
	defer c.wg.Done()

	claims, err := c.cfg.Extractor.Extract(c.ctx, s)
	if err != nil {
		c.stats.sentencesDropped.Add(1)
		c.logger.Printf("coordinator[%s]: dropping sentence after extraction failure: %v", c.cfg.SessionID, err)
		c.logEvent(eventlog.EventExtractionError, map[string]any{
			"error": err.Error(),
		})
		c.completeGroup(seq, 0)
		return
	}

	c.stats.claimsExtracted.Add(int64(len(claims)))
	c.logEvent(eventlog.EventClaimsExtracted, map[string]any{
		"sentence_length": len(s.Text),
		"claim_count":     len(claims),
	})

	c.mu.Lock()
	for _, claim := range claims {
		c.ledger[claim.ID] = stateCreated
	}
	c.mu.Unlock()
	c.completeGroup(seq, len(claims))

	// Tickets are taken here, in claim order, so the in-flight queue
	// admits claims in arrival order rather than scheduler order.
	for _, claim := range claims {
		ticket := c.admit.enqueue()
		c.wg.Add(1)
		go c.runClaim(seq, claim, ticket)
	}
}

func (c *Coordinator) runClaim(seq uint64, claim Claim, ticket chan struct{}) {
	defer c.wg.Done()

	select {
	case <-ticket:
	case <-c.ctx.Done():
		c.admit.abandon(ticket)
		c.discard(claim.ID)
		return
	}
	defer c.admit.release()

	if cached, ok := c.dedupe.cachedVerdict(claim.Text); ok {
		v := cached
		v.ClaimID = claim.ID
		v.SessionID = claim.SessionID
		v.ProducedAt = time.Now().UTC()
		c.stats.verdictsFromCache.Add(1)
		c.logEvent(eventlog.EventVerdictCached, map[string]any{
			"claim_id": claim.ID,
		})
		c.finish(seq, claim.ID, v)
		return
	}

	claimCtx, cancel := context.WithTimeout(c.ctx, c.cfg.ClaimTimeout)
	defer cancel()

	c.advance(claim.ID, stateExtractingEvidence)
	evidence := c.cfg.Retriever.Retrieve(claimCtx, claim)
	if c.ctx.Err() != nil {
		c.discard(claim.ID)
		return
	}
	c.logEvent(eventlog.EventEvidenceFetched, map[string]any{
		"claim_id":       claim.ID,
		"evidence_count": len(evidence),
	})

	var v Verdict
	if claimCtx.Err() != nil {
		// Deadline hit during retrieval; an empty evidence set here
		// must not masquerade as not_found.
		v = c.timeoutVerdict(claim)
	} else {
		c.advance(claim.ID, stateSynthesizing)
		v = c.cfg.Synthesizer.Synthesize(claimCtx, claim, evidence)
		if c.ctx.Err() != nil {
			c.discard(claim.ID)
			return
		}
		if claimCtx.Err() != nil && v.Status == StatusUnclear && v.Rationale == rationaleVerificationFailed {
			c.stats.claimTimeouts.Add(1)
			c.logEvent(eventlog.EventClaimTimeout, map[string]any{
				"claim_id":   claim.ID,
				"timeout_ms": c.cfg.ClaimTimeout.Milliseconds(),
			})
		}
		if v.Status == StatusUnclear && v.Rationale == rationaleVerificationFailed {
			c.stats.fallbacks.Add(1)
		} else {
			// Fallbacks are transient; only real judgements are worth
			// reusing for repeated claims.
			c.dedupe.cacheVerdict(claim.Text, v)
		}
	}

	c.finish(seq, claim.ID, v)
}

// timeoutVerdict builds the unclear fallback for a claim whose deadline
// expired before synthesis could run.
func (c *Coordinator) timeoutVerdict(claim Claim) Verdict {
	c.stats.claimTimeouts.Add(1)
	c.stats.fallbacks.Add(1)
	c.logger.Printf("coordinator[%s]: claim %s timed out after %s", c.cfg.SessionID, claim.ID, c.cfg.ClaimTimeout)
	c.logEvent(eventlog.EventClaimTimeout, map[string]any{
		"claim_id":   claim.ID,
		"timeout_ms": c.cfg.ClaimTimeout.Milliseconds(),
	})
	return Verdict{
		ClaimID:    claim.ID,
		SessionID:  claim.SessionID,
		ClaimText:  claim.Text,
		Status:     StatusUnclear,
		Confidence: 0,
		Rationale:  rationaleVerificationFailed,
		ProducedAt: time.Now().UTC(),
	}
}

// finish records the claim as delivered and hands its verdict to the
// sink, honoring the delivery ordering mode. The ledger check makes
// delivery exactly-once per claim ID.
func (c *Coordinator) finish(seq uint64, claimID string, v Verdict) {
	c.mu.Lock()
	state, ok := c.ledger[claimID]
	if !ok || state == stateDelivered {
		c.mu.Unlock()
		return
	}
	c.ledger[claimID] = stateDelivered

	var toDeliver []Verdict
	if c.cfg.OrderedDelivery {
		if g, ok := c.groups[seq]; ok {
			g.verdicts = append(g.verdicts, v)
			toDeliver = c.releaseReadyLocked()
		}
	} else {
		toDeliver = []Verdict{v}
	}
	c.mu.Unlock()

	for _, out := range toDeliver {
		c.deliver(out)
	}
}

// completeGroup sets the expected verdict count for a sentence group
// and releases any groups that became deliverable. In completion-order
// mode groups are not tracked and this is a no-op.
func (c *Coordinator) completeGroup(seq uint64, want int) {
	if !c.cfg.OrderedDelivery {
		return
	}
	c.mu.Lock()
	if g, ok := c.groups[seq]; ok {
		g.want = want
	}
	toDeliver := c.releaseReadyLocked()
	c.mu.Unlock()

	for _, out := range toDeliver {
		c.deliver(out)
	}
}

// releaseReadyLocked drains consecutive complete groups starting at
// nextRelease. Caller holds c.mu.
func (c *Coordinator) releaseReadyLocked() []Verdict {
	var out []Verdict
	for {
		g, ok := c.groups[c.nextRelease]
		if !ok || g.want < 0 || len(g.verdicts) < g.want {
			return out
		}
		out = append(out, g.verdicts...)
		delete(c.groups, c.nextRelease)
		c.nextRelease++
	}
}

func (c *Coordinator) deliver(v Verdict) {
	c.stats.verdictsDelivered.Add(1)
	if c.cfg.Sink != nil {
		c.cfg.Sink.Deliver(v)
	}
	c.logEvent(eventlog.EventVerdictDelivered, map[string]any{
		"claim_id":   v.ClaimID,
		"status":     string(v.Status),
		"confidence": v.Confidence,
	})
}

// logEvent records one audit event when a recorder is configured.
func (c *Coordinator) logEvent(eventType eventlog.EventType, data map[string]any) {
	if c.cfg.Events == nil {
		return
	}
	c.cfg.Events.LogAsync(c.cfg.SessionID, eventType, data)
}

// discard drops a claim whose session was cancelled before it reached a
// verdict. Discarded work is not an invariant violation; the ledger
// entry is removed so the claim no longer counts as admitted.
func (c *Coordinator) discard(claimID string) {
	c.mu.Lock()
	if c.ledger[claimID] != stateDelivered {
		delete(c.ledger, claimID)
	}
	c.mu.Unlock()
}

// advance moves a claim's ledger state forward. Regressions are
// ignored; delivered is terminal.
func (c *Coordinator) advance(claimID string, to claimState) {
	c.mu.Lock()
	if cur, ok := c.ledger[claimID]; ok && cur < stateDelivered && to > cur {
		c.ledger[claimID] = to
	}
	c.mu.Unlock()
}

// Pending reports claims admitted to the ledger that have not yet been
// delivered.
func (c *Coordinator) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, st := range c.ledger {
		if st != stateDelivered {
			n++
		}
	}
	return n
}

// Metrics returns a snapshot of the session's pipeline counters.
func (c *Coordinator) Metrics() Metrics {
	return c.stats.snapshot()
}

// Queries reports external search calls made on behalf of this session.
func (c *Coordinator) Queries() int64 {
	if c.cfg.Retriever == nil {
		return 0
	}
	return c.cfg.Retriever.Queries()
}

// Drain waits up to timeout for in-flight work to finish, then cancels
// whatever remains. Used on graceful session stop so verdicts for
// already-admitted claims still go out.
func (c *Coordinator) Drain(timeout time.Duration) {
	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		c.logger.Printf("coordinator[%s]: drain timed out after %s, cancelling remaining work", c.cfg.SessionID, timeout)
	}
	c.Close()
}

// Close cancels all in-flight work and waits for goroutines to exit.
// Undelivered claims are discarded. Idempotent.
func (c *Coordinator) Close() {
	c.cancel()
	c.wg.Wait()
}
