package schedule

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/parleybot/parley/internal/observability"
	"github.com/parleybot/parley/pkg/pool"
)

// Entry is one scheduled prompt delivery.
type Entry struct {
	ID       string `json:"id"`
	Spec     string `json:"spec"`
	ThreadID string `json:"thread_id"`
	Prompt   string `json:"prompt"`
}

// Service fires scheduled prompts into pool sessions with origin
// "scheduled". Deliveries are fire-and-forget; failures are logged and
// counted, never propagated to the cron runner.
type Service struct {
	pool   *pool.Pool
	logger zerolog.Logger
	runner *cron.Cron

	mu      sync.Mutex
	entries map[string]Entry
	ids     map[string]cron.EntryID
	started bool
}

// NewService creates a scheduler bound to a pool.
func NewService(p *pool.Pool, logger zerolog.Logger) *Service {
	observability.EnsureRegistered()
	return &Service{
		pool:    p,
		logger:  logger,
		runner:  cron.New(),
		entries: make(map[string]Entry),
		ids:     make(map[string]cron.EntryID),
	}
}

// Add registers a schedule and returns its id.
func (s *Service) Add(spec, threadID, prompt string) (string, error) {
	if spec == "" {
		return "", fmt.Errorf("cron spec is required")
	}
	if threadID == "" {
		return "", fmt.Errorf("thread id is required")
	}
	if prompt == "" {
		return "", fmt.Errorf("prompt is required")
	}

	entry := Entry{
		ID:       uuid.NewString(),
		Spec:     spec,
		ThreadID: threadID,
		Prompt:   prompt,
	}

	cronID, err := s.runner.AddFunc(spec, func() { s.fire(entry) })
	if err != nil {
		return "", fmt.Errorf("invalid schedule: %w", err)
	}

	s.mu.Lock()
	s.entries[entry.ID] = entry
	s.ids[entry.ID] = cronID
	s.mu.Unlock()

	s.logger.Info().
		Str("schedule_id", entry.ID).
		Str("spec", spec).
		Str("thread_id", threadID).
		Msg("Schedule added")
	return entry.ID, nil
}

// Remove drops a schedule. No-op for unknown ids.
func (s *Service) Remove(id string) {
	s.mu.Lock()
	cronID, ok := s.ids[id]
	if ok {
		delete(s.ids, id)
		delete(s.entries, id)
	}
	s.mu.Unlock()

	if ok {
		s.runner.Remove(cronID)
		s.logger.Info().Str("schedule_id", id).Msg("Schedule removed")
	}
}

// List snapshots all schedules, sorted by id.
func (s *Service) List() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Entry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Start begins firing schedules.
func (s *Service) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true
	s.runner.Start()
	s.logger.Info().Msg("Scheduler started")
}

// Stop halts firing and waits for in-flight jobs.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return
	}
	s.started = false
	<-s.runner.Stop().Done()
	s.logger.Info().Msg("Scheduler stopped")
}

func (s *Service) fire(entry Entry) {
	ctx := context.Background()

	if _, err := s.pool.GetOrCreate(ctx, entry.ThreadID, "scheduled"); err != nil {
		observability.RecordScheduleFire(false)
		s.logger.Warn().
			Err(err).
			Str("schedule_id", entry.ID).
			Msg("Scheduled session unavailable")
		return
	}

	if _, err := s.pool.Send(ctx, entry.ThreadID, entry.Prompt, nil); err != nil {
		observability.RecordScheduleFire(false)
		s.logger.Warn().
			Err(err).
			Str("schedule_id", entry.ID).
			Msg("Scheduled send failed")
		return
	}

	observability.RecordScheduleFire(true)
	s.logger.Debug().
		Str("schedule_id", entry.ID).
		Str("thread_id", entry.ThreadID).
		Msg("Schedule fired")
}
