// Package assembler converts a session's stream of transcription
// fragments into discrete sentences.
package assembler

import (
	"log"
	"strings"
	"sync"
	"time"

	"github.com/pkriz/veritas/internal/factcheck"
)

// DefaultSilenceWindow is how long the buffer may sit idle before a
// forced flush. Bounds worst-case latency for sentences that never get
// terminal punctuation.
const DefaultSilenceWindow = 800 * time.Millisecond

// Assembler merges partial and final transcript fragments for one
// session into complete sentences. A sentence is emitted when finalized
// text ends in terminal punctuation, or when no fragment has arrived
// for the silence window and the buffer is non-empty.
type Assembler struct {
	sessionID string
	silence   time.Duration
	logger    *log.Logger

	mu        sync.Mutex
	committed string // finalized text, appended permanently
	partial   string // latest provisional reading, superseded by later partials
	lastSeq   uint64
	seenAny   bool
	timer     *time.Timer
	closed    bool

	out chan factcheck.Sentence
}

// New creates an assembler for one session. A silence of 0 uses
// DefaultSilenceWindow.
func New(sessionID string, silence time.Duration, logger *log.Logger) *Assembler {
	if silence <= 0 {
		silence = DefaultSilenceWindow
	}
	a := &Assembler{
		sessionID: sessionID,
		silence:   silence,
		logger:    logger,
		out:       make(chan factcheck.Sentence, 32),
	}
	a.timer = time.AfterFunc(silence, a.onSilence)
	a.timer.Stop()
	return a
}

// Sentences returns the channel on which completed sentences are
// emitted. Closed by Close.
func (a *Assembler) Sentences() <-chan factcheck.Sentence {
	return a.out
}

// Push feeds one fragment into the assembler. Empty or whitespace-only
// text is dropped silently. Fragments with a sequence number at or
// below the last accepted one are dropped as stale.
func (a *Assembler) Push(frag factcheck.TranscriptFragment) {
	text := strings.TrimSpace(frag.Text)
	if text == "" {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return
	}
	if a.seenAny && frag.Sequence <= a.lastSeq {
		return
	}
	a.lastSeq = frag.Sequence
	a.seenAny = true

	if frag.IsFinal {
		a.committed = joinText(a.committed, text)
		a.partial = ""
		a.emitComplete()
	} else {
		// Later partials for the same utterance supersede earlier ones.
		a.partial = text
	}

	if a.committed != "" || a.partial != "" {
		a.timer.Reset(a.silence)
	} else {
		a.timer.Stop()
	}
}

// Close flushes any remaining buffered text as a final sentence and
// closes the output channel. Safe to call once.
func (a *Assembler) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return
	}
	a.timer.Stop()
	a.flush()
	a.closed = true
	close(a.out)
}

// onSilence fires when no fragment has arrived for the silence window.
func (a *Assembler) onSilence() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return
	}
	a.flush()
}

// emitComplete emits the complete-sentence prefix of the committed
// buffer, keeping any trailing incomplete text. Caller holds mu.
func (a *Assembler) emitComplete() {
	complete, remaining := splitCompleteSentences(a.committed)
	if complete == "" {
		return
	}
	a.committed = strings.TrimSpace(remaining)
	a.emit(complete)
}

// flush emits everything buffered, including the latest partial.
// Caller holds mu.
func (a *Assembler) flush() {
	text := joinText(a.committed, a.partial)
	a.committed = ""
	a.partial = ""
	if strings.TrimSpace(text) == "" {
		return
	}
	a.emit(text)
}

// emit sends one sentence without blocking. Caller holds mu.
func (a *Assembler) emit(text string) {
	s := factcheck.Sentence{
		SessionID: a.sessionID,
		Text:      strings.TrimSpace(text),
		EmittedAt: time.Now().UTC(),
	}
	select {
	case a.out <- s:
	default:
		// Consumer has fallen far behind human speech rate; dropping is
		// preferable to stalling the ingest loop.
		if a.logger != nil {
			a.logger.Printf("assembler: dropping sentence for session %s (consumer slow)", a.sessionID)
		}
	}
}

// joinText appends b to a with a single separating space.
func joinText(a, b string) string {
	a = strings.TrimSpace(a)
	b = strings.TrimSpace(b)
	switch {
	case a == "":
		return b
	case b == "":
		return a
	}
	return a + " " + b
}

// isTerminal reports whether c ends a sentence.
func isTerminal(c byte) bool {
	return c == '.' || c == '!' || c == '?'
}

// splitCompleteSentences returns the prefix of buffer up to the last
// sentence boundary, and the remainder after it.
func splitCompleteSentences(buffer string) (string, string) {
	lastBoundary := -1
	for i := len(buffer) - 1; i >= 0; i-- {
		if isTerminal(buffer[i]) {
			lastBoundary = i
			break
		}
	}
	if lastBoundary == -1 {
		return "", buffer
	}
	return strings.TrimSpace(buffer[:lastBoundary+1]), buffer[lastBoundary+1:]
}
