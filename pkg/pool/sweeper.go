package pool

import (
	"sync"
	"time"

	"github.com/parleybot/parley/internal/observability"
)

// Sweeper periodically reclaims idle sessions: not running, nothing
// pending, and inactive past the idle threshold. Reclamation uses the same
// teardown path as explicit removal.
type Sweeper struct {
	pool      *Pool
	interval  time.Duration
	idleAfter time.Duration

	mu      sync.Mutex
	stopCh  chan struct{}
	running bool
}

func newSweeper(pool *Pool, interval, idleAfter time.Duration) *Sweeper {
	return &Sweeper{
		pool:      pool,
		interval:  interval,
		idleAfter: idleAfter,
	}
}

// Start launches the sweep loop. Calling it while running is a no-op, so a
// second Start never creates a duplicate timer.
func (s *Sweeper) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.stopCh = make(chan struct{})
	go s.run(s.stopCh)

	s.pool.logger.Info().
		Dur("interval", s.interval).
		Dur("idle_after", s.idleAfter).
		Msg("Idle sweeper started")
}

// Stop halts the sweep loop. No-op when not started.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	close(s.stopCh)
	s.running = false

	s.pool.logger.Info().Msg("Idle sweeper stopped")
}

// IsRunning reports whether the sweep loop is active.
func (s *Sweeper) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Sweeper) run(stopCh chan struct{}) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.SweepOnce()
		case <-stopCh:
			return
		}
	}
}

// SweepOnce visits every session exactly once, samples the pending
// interaction gauges, and reclaims the eligible ones. A failing or
// panicking teardown is isolated to its session and never aborts the sweep.
func (s *Sweeper) SweepOnce() {
	now := time.Now()
	reclaimed := 0
	var questions, toolApprovals, planApprovals int

	for _, sess := range s.pool.snapshotSessions() {
		pending := sess.Pending()
		if pending.Question != nil {
			questions++
		}
		if pending.ToolApproval != nil {
			toolApprovals++
		}
		if pending.PlanApproval != nil {
			planApprovals++
		}

		if sess.Running() {
			continue
		}
		if !pending.Empty() {
			continue
		}
		if sess.idleSince(now) <= s.idleAfter {
			continue
		}
		s.reclaim(sess.threadID)
		reclaimed++
	}

	observability.SetPendingInteractions("question", questions)
	observability.SetPendingInteractions("tool_approval", toolApprovals)
	observability.SetPendingInteractions("plan_approval", planApprovals)

	if reclaimed > 0 {
		s.pool.logger.Info().Int("reclaimed", reclaimed).Msg("Idle sessions reclaimed")
	}
}

func (s *Sweeper) reclaim(threadID string) {
	defer func() {
		if r := recover(); r != nil {
			s.pool.logger.Warn().
				Interface("panic", r).
				Str("thread_id", threadID).
				Msg("Reclaim panicked")
		}
	}()
	s.pool.remove(threadID, "idle")
}

func (p *Pool) snapshotSessions() []*Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*Session, 0, len(p.sessions))
	for _, s := range p.sessions {
		out = append(out, s)
	}
	return out
}
