package jobs

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/pkriz/veritas/internal/store"
)

// IdleReaper drains in-memory sessions that have been idle too long.
// The live session registry implements this.
type IdleReaper interface {
	ReapIdle(maxAge time.Duration) int
}

// SessionReaperJob closes sessions that were abandoned without a clean
// stop: in-memory sessions whose client vanished, and DB rows left
// active after a crash. It runs on a configurable interval.
type SessionReaperJob struct {
	store    *store.Store
	registry IdleReaper
	logger   *log.Logger
	interval time.Duration
	maxAge   time.Duration
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// NewSessionReaperJob creates a new session reaper job.
func NewSessionReaperJob(s *store.Store, registry IdleReaper, logger *log.Logger, interval, maxAge time.Duration) *SessionReaperJob {
	if interval == 0 {
		interval = 5 * time.Minute
	}
	if maxAge == 0 {
		maxAge = 2 * time.Hour
	}
	return &SessionReaperJob{
		store:    s,
		registry: registry,
		logger:   logger,
		interval: interval,
		maxAge:   maxAge,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the background job.
func (j *SessionReaperJob) Start() {
	j.wg.Add(1)
	go j.run()
	j.logger.Printf("SessionReaperJob: started (interval=%v, max_age=%v)", j.interval, j.maxAge)
}

// Stop gracefully stops the background job.
func (j *SessionReaperJob) Stop() {
	close(j.stopCh)
	j.wg.Wait()
	j.logger.Println("SessionReaperJob: stopped")
}

func (j *SessionReaperJob) run() {
	defer j.wg.Done()

	// Run immediately on start
	j.processAll()

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			j.processAll()
		case <-j.stopCh:
			return
		}
	}
}

func (j *SessionReaperJob) processAll() {
	if j.registry != nil {
		if n := j.registry.ReapIdle(j.maxAge); n > 0 {
			j.logger.Printf("SessionReaperJob: closed %d idle in-memory sessions", n)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	n, err := j.store.ReapStaleSessions(ctx, j.maxAge)
	if err != nil {
		j.logger.Printf("SessionReaperJob: failed to reap stale sessions: %v", err)
		return
	}
	if n > 0 {
		j.logger.Printf("SessionReaperJob: marked %d stale sessions completed", n)
	}
}
