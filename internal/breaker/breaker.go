// Package breaker guards calls to external services. After enough
// consecutive failures the breaker opens and rejects calls outright,
// then probes the service again once the recovery timeout passes.
package breaker

import (
	"errors"
	"log"
	"sync"
	"time"
)

// ErrOpen is returned when a call is rejected because the breaker is
// open. Callers treat it like any other transient provider error.
var ErrOpen = errors.New("breaker: circuit open")

// Defaults applied when Config leaves the knobs at zero.
const (
	DefaultFailureThreshold = 5
	DefaultRecoveryTimeout  = 60 * time.Second

	// Successful probes required to close again from half-open.
	closeAfterSuccesses = 2
)

// State is the breaker's position.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "closed"
	}
}

// Config tunes one breaker.
type Config struct {
	Name             string
	FailureThreshold int           // consecutive failures before opening
	RecoveryTimeout  time.Duration // wait before half-open probing
	Logger           *log.Logger
}

// Breaker is a circuit breaker for one external service. The zero
// value is not usable; construct with New. Safe for concurrent use.
type Breaker struct {
	name      string
	threshold int
	recovery  time.Duration
	logger    *log.Logger
	now       func() time.Time

	mu          sync.Mutex
	state       State
	failures    int
	successes   int
	lastFailure time.Time
}

// New creates a breaker in the closed state.
func New(cfg Config) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = DefaultFailureThreshold
	}
	if cfg.RecoveryTimeout <= 0 {
		cfg.RecoveryTimeout = DefaultRecoveryTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	return &Breaker{
		name:      cfg.Name,
		threshold: cfg.FailureThreshold,
		recovery:  cfg.RecoveryTimeout,
		logger:    cfg.Logger,
		now:       time.Now,
	}
}

// Allow reports whether a call may proceed. An open breaker whose
// recovery timeout has elapsed moves to half-open and lets the call
// through as a probe. Returns ErrOpen otherwise.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateOpen {
		if b.now().Sub(b.lastFailure) < b.recovery {
			return ErrOpen
		}
		b.state = StateHalfOpen
		b.successes = 0
		b.logger.Printf("breaker %s: half-open, probing service", b.name)
	}
	return nil
}

// Record feeds the outcome of an allowed call back into the breaker.
func (b *Breaker) Record(err error) {
	if err != nil {
		b.recordFailure()
		return
	}
	b.recordSuccess()
}

// Do runs call under the breaker: rejected with ErrOpen when open,
// otherwise executed with the outcome recorded.
func (b *Breaker) Do(call func() error) error {
	if err := b.Allow(); err != nil {
		return err
	}
	err := call()
	b.Record(err)
	return err
}

func (b *Breaker) recordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateHalfOpen:
		b.successes++
		if b.successes >= closeAfterSuccesses {
			b.state = StateClosed
			b.failures = 0
			b.successes = 0
			b.logger.Printf("breaker %s: closed, service recovered", b.name)
		}
	case StateClosed:
		b.failures = 0
	}
}

func (b *Breaker) recordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures++
	b.lastFailure = b.now()

	switch {
	case b.state == StateHalfOpen:
		b.state = StateOpen
		b.logger.Printf("breaker %s: reopened, recovery probe failed", b.name)
	case b.failures >= b.threshold && b.state == StateClosed:
		b.state = StateOpen
		b.logger.Printf("breaker %s: opened after %d failures", b.name, b.failures)
	}
}

// State returns the breaker's current position without mutating it.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Status is a point-in-time snapshot for the admin surface.
type Status struct {
	Name     string `json:"name"`
	State    string `json:"state"`
	Failures int    `json:"failures"`
}

// Snapshot returns the breaker's status for reporting.
func (b *Breaker) Snapshot() Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Status{Name: b.name, State: b.state.String(), Failures: b.failures}
}

// Reset forces the breaker closed and clears its counters.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = StateClosed
	b.failures = 0
	b.successes = 0
	b.lastFailure = time.Time{}
}
