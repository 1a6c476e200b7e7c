package pool

import (
	"sync"
	"time"

	"github.com/parleybot/parley/pkg/harness"
)

// Session is the pool's bookkeeping record for one conversation thread: the
// bound runtime plus the state derived from its event stream.
type Session struct {
	threadID string
	origin   string
	h        harness.Harness

	unsubscribe func()

	mu           sync.Mutex
	lastActivity time.Time
	pending      PendingState
	buffer       RunBuffer
}

// ThreadID returns the bound thread id.
func (s *Session) ThreadID() string {
	return s.threadID
}

// Origin returns the surface the session was created for (app, scheduled,
// channel, api, ...).
func (s *Session) Origin() string {
	return s.origin
}

// Harness exposes the underlying runtime, for callers that respond to
// questions and approvals.
func (s *Session) Harness() harness.Harness {
	return s.h
}

// Running reports whether a run is in flight.
func (s *Session) Running() bool {
	return s.h.IsRunning()
}

// LastActivity returns the activity timestamp.
func (s *Session) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

// Pending returns a defensive copy of the unresolved interactions.
func (s *Session) Pending() PendingState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending.Copy()
}

// RunEvents returns a defensive copy of the in-flight run's events.
func (s *Session) RunEvents() []harness.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buffer.Events()
}

func (s *Session) touch() {
	s.mu.Lock()
	s.lastActivity = time.Now()
	s.mu.Unlock()
}

// reduce runs the reducer chain for one event under the session lock, so
// pending state and run buffer are always consistent with the exact event
// just emitted before any later event for this session is processed.
func (s *Session) reduce(ev harness.Event) {
	s.mu.Lock()
	s.pending.Apply(ev)
	s.buffer.Apply(ev)
	s.mu.Unlock()
}

func (s *Session) idleSince(now time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return now.Sub(s.lastActivity)
}

func (s *Session) clearQuestion() {
	s.mu.Lock()
	s.pending.Question = nil
	s.mu.Unlock()
}

func (s *Session) clearToolApproval() {
	s.mu.Lock()
	s.pending.ToolApproval = nil
	s.mu.Unlock()
}

func (s *Session) clearPlanApproval() {
	s.mu.Lock()
	s.pending.PlanApproval = nil
	s.mu.Unlock()
}
