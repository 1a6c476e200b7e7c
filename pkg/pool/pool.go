package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"

	"github.com/parleybot/parley/internal/observability"
	"github.com/parleybot/parley/pkg/harness"
)

// ErrNoSession is returned when an operation references a thread id with no
// registered session.
var ErrNoSession = errors.New("no session for thread")

// Listener observes every event of every session. Ordering is guaranteed
// per session only. Listeners run inside the event callback and must not
// block; slow consumers should hand off to their own queue.
type Listener func(threadID string, ev harness.Event)

// Options configures a Pool.
type Options struct {
	Factory harness.Factory
	Logger  zerolog.Logger

	// IdleThreshold is how long a quiet session survives before the sweeper
	// reclaims it.
	IdleThreshold time.Duration

	// SweepInterval is the reclaimer tick.
	SweepInterval time.Duration
}

// Pool is the registry of live sessions keyed by thread id. It owns session
// construction, lookup, teardown, and pool-wide event fan-out.
type Pool struct {
	factory harness.Factory
	logger  zerolog.Logger

	// mu guards the registry and is held across session construction, so at
	// most one session per thread id exists even under concurrent
	// GetOrCreate calls.
	mu       sync.Mutex
	sessions map[string]*Session

	lmu          sync.Mutex
	listeners    map[uint64]Listener
	nextListener uint64

	sweeper *Sweeper
}

// New constructs a pool. The sweeper is created but not started; call
// StartSweeper to enable idle reclamation.
func New(opts Options) (*Pool, error) {
	observability.EnsureRegistered()

	if opts.Factory == nil {
		return nil, fmt.Errorf("harness factory is required")
	}
	if opts.IdleThreshold == 0 {
		opts.IdleThreshold = 30 * time.Minute
	}
	if opts.SweepInterval == 0 {
		opts.SweepInterval = time.Minute
	}

	p := &Pool{
		factory:   opts.Factory,
		logger:    opts.Logger,
		sessions:  make(map[string]*Session),
		listeners: make(map[uint64]Listener),
	}
	p.sweeper = newSweeper(p, opts.SweepInterval, opts.IdleThreshold)
	return p, nil
}

// GetOrCreate returns the session bound to threadID, refreshing its
// activity timestamp, or constructs one lazily.
func (p *Pool) GetOrCreate(ctx context.Context, threadID, origin string) (*Session, error) {
	if threadID == "" {
		return nil, fmt.Errorf("thread id is required")
	}

	p.mu.Lock()
	if s, ok := p.sessions[threadID]; ok {
		p.mu.Unlock()
		s.touch()
		return s, nil
	}
	s, err := p.construct(ctx, threadID, origin, false, "")
	if err != nil {
		p.mu.Unlock()
		return nil, err
	}
	p.sessions[threadID] = s
	count := len(p.sessions)
	p.mu.Unlock()

	observability.SetActiveSessions(count)
	observability.RecordSessionCreated()
	p.logger.Info().
		Str("thread_id", threadID).
		Str("origin", origin).
		Msg("Session created")
	return s, nil
}

// construct builds a session. Callers hold p.mu. When create is true the
// harness allocates a fresh thread instead of binding an existing one.
func (p *Pool) construct(ctx context.Context, threadID, origin string, create bool, title string) (*Session, error) {
	h := p.factory()
	if err := h.Init(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize harness: %w", err)
	}

	if create {
		id, err := h.CreateThread(ctx, title)
		if err != nil {
			p.teardownHarness(h)
			return nil, fmt.Errorf("failed to create thread: %w", err)
		}
		if id == "" {
			id, err = gonanoid.New()
			if err != nil {
				p.teardownHarness(h)
				return nil, fmt.Errorf("failed to allocate thread id: %w", err)
			}
		}
		threadID = id
	} else if err := h.SwitchThread(ctx, threadID); err != nil {
		p.teardownHarness(h)
		return nil, fmt.Errorf("failed to bind thread %s: %w", threadID, err)
	}

	s := &Session{
		threadID:     threadID,
		origin:       origin,
		h:            h,
		lastActivity: time.Now(),
	}
	s.unsubscribe = h.Subscribe(func(ev harness.Event) {
		p.handleEvent(s, ev)
	})
	return s, nil
}

// handleEvent is the per-session pipeline: pending reducer, run buffer,
// then fan-out to pool listeners, in that fixed order.
func (p *Pool) handleEvent(s *Session, ev harness.Event) {
	s.reduce(ev)
	observability.RecordEvent(string(ev.Kind))
	for _, fn := range p.snapshotListeners() {
		fn(s.threadID, ev)
	}
}

func (p *Pool) snapshotListeners() []Listener {
	p.lmu.Lock()
	defer p.lmu.Unlock()
	out := make([]Listener, 0, len(p.listeners))
	for _, fn := range p.listeners {
		out = append(out, fn)
	}
	return out
}

// Get is a pure lookup: no side effects, no activity refresh.
func (p *Pool) Get(threadID string) (*Session, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.sessions[threadID]
	return s, ok
}

// Touch refreshes the activity timestamp. No-op when absent.
func (p *Pool) Touch(threadID string) {
	if s, ok := p.Get(threadID); ok {
		s.touch()
	}
}

// Send feeds text into a session's runtime. The synthesized user_message
// event runs through the full pipeline and reaches every listener before
// the runtime is asked to process it. The returned channel settles once the
// run completes; callers may discard it for fire-and-forget delivery, in
// which case runtime failures are only logged.
func (p *Pool) Send(ctx context.Context, threadID, text string, media []string) (<-chan error, error) {
	s, ok := p.Get(threadID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoSession, threadID)
	}

	p.handleEvent(s, harness.NewUserMessage(text, media))
	s.touch()

	done := make(chan error, 1)
	go func() {
		start := time.Now()
		err := s.h.SendMessage(ctx, text, media)
		observability.RecordRunDuration(time.Since(start))
		if err != nil {
			p.logger.Warn().
				Err(err).
				Str("thread_id", threadID).
				Msg("Runtime send failed")
		}
		done <- err
	}()
	return done, nil
}

// SendWait is Send with the completion awaited.
func (p *Pool) SendWait(ctx context.Context, threadID, text string, media []string) error {
	done, err := p.Send(ctx, threadID, text, media)
	if err != nil {
		return err
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Subscribe registers a pool-wide listener. The returned cancel func is
// idempotent.
func (p *Pool) Subscribe(fn Listener) (cancel func()) {
	p.lmu.Lock()
	p.nextListener++
	id := p.nextListener
	p.listeners[id] = fn
	p.lmu.Unlock()

	return func() {
		p.lmu.Lock()
		delete(p.listeners, id)
		p.lmu.Unlock()
	}
}

// Remove tears a session down and drops it from the registry. Teardown
// failures are swallowed: a leaked runtime resource is preferable to a
// registry entry that blocks the thread id forever. Idempotent.
func (p *Pool) Remove(threadID string) {
	p.remove(threadID, "explicit")
}

func (p *Pool) remove(threadID, reason string) {
	p.mu.Lock()
	s, ok := p.sessions[threadID]
	if !ok {
		p.mu.Unlock()
		return
	}
	delete(p.sessions, threadID)
	count := len(p.sessions)
	p.mu.Unlock()

	s.unsubscribe()
	p.teardownHarness(s.h)

	observability.SetActiveSessions(count)
	observability.RecordSessionRemoved(reason)
	p.logger.Info().
		Str("thread_id", threadID).
		Str("reason", reason).
		Msg("Session removed")
}

func (p *Pool) teardownHarness(h harness.Harness) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Warn().Interface("panic", r).Msg("Harness teardown panicked")
		}
	}()
	h.StopHeartbeats()
	if err := h.DestroyWorkspace(); err != nil {
		p.logger.Warn().Err(err).Msg("Workspace teardown failed")
	}
}

// CreateThread constructs a fresh runtime, allocates a new thread, and
// registers the session the same way GetOrCreate does.
func (p *Pool) CreateThread(ctx context.Context, title, origin string) (string, *Session, error) {
	p.mu.Lock()
	s, err := p.construct(ctx, "", origin, true, title)
	if err != nil {
		p.mu.Unlock()
		return "", nil, err
	}
	p.sessions[s.threadID] = s
	count := len(p.sessions)
	p.mu.Unlock()

	observability.SetActiveSessions(count)
	observability.RecordSessionCreated()
	p.logger.Info().
		Str("thread_id", s.threadID).
		Str("origin", origin).
		Msg("Thread created")
	return s.threadID, s, nil
}

// AnyHarness returns a runtime handle for thread-agnostic read-only
// queries: an existing session's harness when one is available, otherwise a
// throwaway instance that is never registered or reclaimed.
func (p *Pool) AnyHarness(ctx context.Context) (harness.Harness, error) {
	p.mu.Lock()
	for _, s := range p.sessions {
		p.mu.Unlock()
		return s.h, nil
	}
	p.mu.Unlock()

	h := p.factory()
	if err := h.Init(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize harness: %w", err)
	}
	return h, nil
}

// Status is a point-in-time snapshot of one session.
type Status struct {
	Running   bool
	Pending   PendingState
	RunBuffer []harness.Event
}

// Status returns a defensive snapshot, or false when the thread is unknown.
func (p *Pool) Status(threadID string) (Status, bool) {
	s, ok := p.Get(threadID)
	if !ok {
		return Status{}, false
	}
	return Status{
		Running:   s.Running(),
		Pending:   s.Pending(),
		RunBuffer: s.RunEvents(),
	}, true
}

// ClearQuestion drops the pending question without a corresponding runtime
// event, for response paths that emit none. No-op when absent.
func (p *Pool) ClearQuestion(threadID string) {
	if s, ok := p.Get(threadID); ok {
		s.clearQuestion()
	}
}

// ClearToolApproval drops the pending tool approval. No-op when absent.
func (p *Pool) ClearToolApproval(threadID string) {
	if s, ok := p.Get(threadID); ok {
		s.clearToolApproval()
	}
}

// ClearPlanApproval drops the pending plan approval. No-op when absent.
func (p *Pool) ClearPlanApproval(threadID string) {
	if s, ok := p.Get(threadID); ok {
		s.clearPlanApproval()
	}
}

// SessionInfo is one row of the pool-wide listing.
type SessionInfo struct {
	ThreadID       string    `json:"thread_id"`
	Origin         string    `json:"origin"`
	Running        bool      `json:"running"`
	LastActivityAt time.Time `json:"last_activity_at"`
}

// List snapshots every registered session.
func (p *Pool) List() []SessionInfo {
	p.mu.Lock()
	sessions := make([]*Session, 0, len(p.sessions))
	for _, s := range p.sessions {
		sessions = append(sessions, s)
	}
	p.mu.Unlock()

	out := make([]SessionInfo, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, SessionInfo{
			ThreadID:       s.threadID,
			Origin:         s.origin,
			Running:        s.Running(),
			LastActivityAt: s.LastActivity(),
		})
	}
	return out
}

// StartSweeper starts idle reclamation. Safe to call more than once.
func (p *Pool) StartSweeper() {
	p.sweeper.Start()
}

// StopSweeper stops idle reclamation. No-op when not started.
func (p *Pool) StopSweeper() {
	p.sweeper.Stop()
}

// Close stops the sweeper and removes every session.
func (p *Pool) Close() {
	p.StopSweeper()

	p.mu.Lock()
	ids := make([]string, 0, len(p.sessions))
	for id := range p.sessions {
		ids = append(ids, id)
	}
	p.mu.Unlock()

	for _, id := range ids {
		p.remove(id, "shutdown")
	}
}
