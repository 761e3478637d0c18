package httpapi

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pkriz/veritas/internal/assembler"
	"github.com/pkriz/veritas/internal/costs"
	"github.com/pkriz/veritas/internal/eventlog"
	"github.com/pkriz/veritas/internal/factcheck"
	"github.com/pkriz/veritas/internal/llm"
	"github.com/pkriz/veritas/internal/notifications"
	"github.com/pkriz/veritas/internal/search"
	"github.com/pkriz/veritas/internal/store"
)

// drainGrace bounds how long session teardown waits for in-flight
// claims before discarding them.
const drainGrace = 10 * time.Second

// SessionSummary is the admin view of one live session.
type SessionSummary struct {
	ID            string            `json:"id"`
	Title         string            `json:"title"`
	Source        string            `json:"source"`
	StartedAt     time.Time         `json:"started_at"`
	LastActivity  time.Time         `json:"last_activity"`
	PendingClaims int               `json:"pending_claims"`
	Metrics       factcheck.Metrics `json:"metrics"`
}

// pipelineSession wires one ingest connection to a full verification
// pipeline: assembler, claim extraction, evidence retrieval, verdict
// synthesis and all delivery fan-out.
type pipelineSession struct {
	id        string
	title     string
	source    string
	startedAt time.Time

	router    *Router
	conn      *websocket.Conn
	connMu    sync.Mutex
	asm       *assembler.Assembler
	coord     *factcheck.Coordinator
	llmClient llm.Client

	lastActivity atomic.Int64 // unix nanos
	audioBytes   atomic.Int64
	ttsChars     atomic.Int64
	pumpDone     chan struct{}

	shutdownOnce sync.Once
}

// newPipelineSession builds the pipeline for one session and starts the
// sentence pump. The caller owns the websocket read loop and must call
// shutdown exactly once per session (reaping counts; shutdown is
// idempotent).
func (r *Router) newPipelineSession(conn *websocket.Conn, title, source string) *pipelineSession {
	sessionID := uuid.NewString()

	llmClient := r.newLLMClient()
	searchClient := r.newSearchClient()

	ps := &pipelineSession{
		id:        sessionID,
		title:     title,
		source:    source,
		startedAt: nowUTC(),
		router:    r,
		conn:      conn,
		llmClient: llmClient,
		pumpDone:  make(chan struct{}),
	}
	ps.touch()

	silence := time.Duration(r.cfg.SilenceFlushMs) * time.Millisecond
	if silence == 0 {
		silence = assembler.DefaultSilenceWindow
	}
	ps.asm = assembler.New(sessionID, silence, r.logger)

	retriever := factcheck.NewRetriever(factcheck.RetrieverConfig{
		Search:         searchClient,
		Fetcher:        search.NewFetcher(nil, r.logger),
		TrustedDomains: r.cfg.TrustedDomains,
		TopK:           r.cfg.EvidenceTopK,
	}, r.logger)

	ps.coord = factcheck.NewCoordinator(factcheck.CoordinatorConfig{
		SessionID:   sessionID,
		Extractor:   factcheck.NewExtractor(llmClient, r.logger),
		Retriever:   retriever,
		Synthesizer: factcheck.NewSynthesizer(llmClient, r.logger),
		Sink: factcheck.MultiSink{
			factcheck.SinkFunc(ps.persistVerdict),
			factcheck.SinkFunc(ps.broadcastVerdict),
			factcheck.SinkFunc(ps.alertOnVerdict),
		},
		Events:          r.eventLog,
		Logger:          r.logger,
		ClaimTimeout:    time.Duration(r.cfg.ClaimTimeoutMs) * time.Millisecond,
		MaxInflight:     r.cfg.MaxInflightClaims,
		OrderedDelivery: r.cfg.OrderedDelivery,
	})

	go ps.sentencePump()
	return ps
}

func (ps *pipelineSession) touch() {
	ps.lastActivity.Store(time.Now().UnixNano())
}

func (ps *pipelineSession) lastActivityTime() time.Time {
	return time.Unix(0, ps.lastActivity.Load())
}

func (ps *pipelineSession) summary() SessionSummary {
	return SessionSummary{
		ID:            ps.id,
		Title:         ps.title,
		Source:        ps.source,
		StartedAt:     ps.startedAt,
		LastActivity:  ps.lastActivityTime(),
		PendingClaims: ps.coord.Pending(),
		Metrics:       ps.coord.Metrics(),
	}
}

// pushFragment feeds one transcript fragment into the assembler.
func (ps *pipelineSession) pushFragment(frag factcheck.TranscriptFragment) {
	ps.touch()
	frag.SessionID = ps.id
	ps.asm.Push(frag)
}

// sentencePump moves assembled sentences into persistence, the
// dashboard feed and the verification pipeline.
func (ps *pipelineSession) sentencePump() {
	defer close(ps.pumpDone)
	r := ps.router
	var seq uint64
	for sentence := range ps.asm.Sentences() {
		ps.touch()
		seq++
		if err := r.store.InsertSentence(context.Background(), ps.id, store.TranscriptSentence{
			Text:      sentence.Text,
			Sequence:  int(seq),
			EmittedAt: sentence.EmittedAt,
		}); err != nil {
			r.logger.Printf("session %s: failed to persist sentence: %v", ps.id, err)
		}
		r.hub.Broadcast("transcript", ps.id, map[string]any{
			"text":       sentence.Text,
			"sequence":   seq,
			"emitted_at": sentence.EmittedAt,
		})
		r.eventLog.LogAsync(ps.id, eventlog.EventSentenceEmitted, map[string]any{
			"sequence":    seq,
			"text_length": len(sentence.Text),
		})
		ps.coord.ProcessSentence(sentence)
	}
}

// The three verdict sinks below run in order on the coordinator's
// delivery path, so everything slow goes through goroutines or
// non-blocking sends.

// persistVerdict writes one finished verdict to storage.
func (ps *pipelineSession) persistVerdict(v factcheck.Verdict) {
	r := ps.router
	ps.touch()

	var evidenceURL *string
	if v.EvidenceURL != "" {
		u := v.EvidenceURL
		evidenceURL = &u
	}
	if err := r.store.InsertVerdict(context.Background(), store.VerdictRecord{
		ClaimID:     v.ClaimID,
		SessionID:   v.SessionID,
		ClaimText:   v.ClaimText,
		Status:      string(v.Status),
		Confidence:  v.Confidence,
		Rationale:   v.Rationale,
		EvidenceURL: evidenceURL,
		CreatedAt:   v.ProducedAt,
	}); err != nil {
		r.logger.Printf("session %s: failed to persist verdict: %v", ps.id, err)
	}
}

// broadcastVerdict pushes the verdict to dashboard clients and back
// down the ingest connection.
func (ps *pipelineSession) broadcastVerdict(v factcheck.Verdict) {
	ps.router.hub.Broadcast("verdict", ps.id, v)
	ps.writeJSONMessage(map[string]any{"type": "verdict", "verdict": v})
}

// alertOnVerdict raises the out-of-band alarms for contradicted claims.
func (ps *pipelineSession) alertOnVerdict(v factcheck.Verdict) {
	if v.Status != factcheck.StatusContradicted {
		return
	}
	r := ps.router

	if r.discord.Enabled() {
		r.discord.NotifyContradictedClaim(context.Background(), ps.id, v.ClaimText, v.Rationale, v.EvidenceURL, v.Confidence)
	}
	if r.apns != nil && r.cfg.APNsDeviceToken != "" {
		go func() {
			if err := r.apns.SendVerdictNotification(r.cfg.APNsDeviceToken, notificationFromVerdict(v)); err != nil {
				r.logger.Printf("session %s: push notification failed: %v", ps.id, err)
			}
		}()
	}
	if r.tts != nil {
		go ps.speakAlert(v)
	}
}

// speakAlert synthesizes a short spoken warning for a contradicted
// claim and pushes the audio to dashboard clients.
func (ps *pipelineSession) speakAlert(v factcheck.Verdict) {
	r := ps.router
	text := fmt.Sprintf("Warning: the claim %q appears to be false.", v.ClaimText)
	ps.ttsChars.Add(int64(len(text)))

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	audio, err := r.tts.Synthesize(ctx, text)
	if err != nil {
		r.logger.Printf("session %s: alert synthesis failed: %v", ps.id, err)
		return
	}
	r.hub.Broadcast("alert_audio", ps.id, map[string]any{
		"claim_id": v.ClaimID,
		"format":   "mp3",
		"audio":    audio, // base64 via JSON []byte encoding
	})
}

// writeJSONMessage sends a JSON frame back on the ingest connection.
// Gorilla conns allow one concurrent writer, hence the mutex.
func (ps *pipelineSession) writeJSONMessage(v any) {
	if ps.conn == nil {
		return
	}
	ps.connMu.Lock()
	defer ps.connMu.Unlock()
	ps.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	if err := ps.conn.WriteJSON(v); err != nil {
		ps.router.logger.Printf("session %s: write failed: %v", ps.id, err)
	}
}

// shutdown tears the session down: stops ingest, drains in-flight
// claims, persists final state and releases the registry slot. Safe to
// call more than once; only the first call does the work.
func (ps *pipelineSession) shutdown(endedBy string) {
	ps.shutdownOnce.Do(func() {
		r := ps.router
		r.logger.Printf("session %s: ending (%s)", ps.id, endedBy)

		ps.asm.Close()
		select {
		case <-ps.pumpDone:
		case <-time.After(5 * time.Second):
			r.logger.Printf("session %s: sentence pump did not stop in time", ps.id)
		}
		ps.coord.Drain(drainGrace)

		// Clean stops get the final metrics before the socket closes.
		if endedBy == "client" {
			ps.writeStopped()
		}
		if ps.conn != nil {
			ps.conn.Close()
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := r.store.EndSession(ctx, ps.id, endedBy); err != nil {
			r.logger.Printf("session %s: failed to mark ended: %v", ps.id, err)
		}
		ps.recordCosts(ctx)

		m := ps.coord.Metrics()
		contradicted := countContradicted(ctx, r, ps.id)
		if r.discord.Enabled() {
			r.discord.NotifySessionEnded(ctx, ps.id, int(m.VerdictsDelivered), contradicted)
		}
		r.hub.Broadcast("session_ended", ps.id, map[string]any{
			"ended_by": endedBy,
			"metrics":  m,
		})
		r.eventLog.LogAsync(ps.id, eventlog.EventSessionEnded, map[string]any{
			"ended_by":           endedBy,
			"verdicts_delivered": m.VerdictsDelivered,
		})

		ps.coord.Close()
		r.registry.Done(ps.id)
	})
}

// recordCosts computes and persists this session's provider spend.
func (ps *pipelineSession) recordCosts(ctx context.Context) {
	r := ps.router
	usage := ps.llmClient.Usage()

	audioSeconds := 0
	if ps.source == "audio" && r.cfg.STTSampleRate > 0 {
		// linear16 mono: 2 bytes per sample
		audioSeconds = int(ps.audioBytes.Load() / int64(r.cfg.STTSampleRate*2))
	}

	metrics := costs.SessionMetrics{
		STTDurationSeconds: audioSeconds,
		LLMInputTokens:     usage.PromptTokens,
		LLMOutputTokens:    usage.CompletionTokens,
		SearchQueries:      int(ps.coord.Queries()),
		TTSCharacters:      int(ps.ttsChars.Load()),
	}
	calc := costs.CalculateSessionCosts(metrics)

	err := r.store.RecordSessionCosts(ctx, ps.id, store.SessionCostMetrics{
		AudioDurationSeconds: audioSeconds,
		STTDurationSeconds:   audioSeconds,
		LLMInputTokens:       metrics.LLMInputTokens,
		LLMOutputTokens:      metrics.LLMOutputTokens,
		SearchQueries:        metrics.SearchQueries,
		TTSCharacters:        metrics.TTSCharacters,
	}, store.SessionCosts{
		STTCostCents:    calc.STTCostCents,
		LLMCostCents:    calc.LLMCostCents,
		SearchCostCents: calc.SearchCostCents,
		TTSCostCents:    calc.TTSCostCents,
		TotalCostCents:  calc.TotalCostCents,
	})
	if err != nil {
		r.logger.Printf("session %s: failed to record costs: %v", ps.id, err)
	}
}

func countContradicted(ctx context.Context, r *Router, sessionID string) int {
	detail, err := r.store.GetSessionDetail(ctx, sessionID)
	if err != nil {
		return 0
	}
	n := 0
	for _, v := range detail.Verdicts {
		if v.Status == string(factcheck.StatusContradicted) {
			n++
		}
	}
	return n
}

func notificationFromVerdict(v factcheck.Verdict) notifications.VerdictNotification {
	return notifications.VerdictNotification{
		SessionID:  v.SessionID,
		ClaimText:  v.ClaimText,
		Status:     string(v.Status),
		Confidence: v.Confidence,
	}
}

// logSessionStart records the start event consistently for both ingest
// paths.
func (r *Router) logSessionStart(ps *pipelineSession) {
	r.logger.Printf("session %s: started (%s, %q)", ps.id, ps.source, ps.title)
	r.eventLog.LogAsync(ps.id, eventlog.EventSessionStarted, map[string]any{
		"title":  ps.title,
		"source": ps.source,
	})
	r.hub.Broadcast("session_started", ps.id, map[string]any{
		"title":  ps.title,
		"source": ps.source,
	})
}
