package outbound

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/parleybot/parley/internal/observability"
)

// Router dispatches outbound messages to delivery adapters keyed by channel
// id, independent of which session produced them.
type Router struct {
	logger zerolog.Logger

	mu       sync.RWMutex
	channels map[string]Adapter
}

// NewRouter constructs an empty router.
func NewRouter(logger zerolog.Logger) *Router {
	observability.EnsureRegistered()
	return &Router{
		logger:   logger,
		channels: make(map[string]Adapter),
	}
}

// Register installs an adapter under id, atomically replacing any prior
// one. In-flight sends already dispatched to the old adapter are
// unaffected.
func (r *Router) Register(id string, adapter Adapter) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("channel id is required")
	}
	if adapter == nil {
		return fmt.Errorf("adapter is required")
	}

	r.mu.Lock()
	_, replaced := r.channels[id]
	r.channels[id] = adapter
	r.mu.Unlock()

	r.logger.Info().
		Str("channel", id).
		Bool("replaced", replaced).
		Msg("Channel registered")
	return nil
}

// Unregister removes the adapter. Subsequent sends to the id fail with an
// unknown-channel result rather than an error.
func (r *Router) Unregister(id string) {
	r.mu.Lock()
	delete(r.channels, strings.TrimSpace(id))
	r.mu.Unlock()

	r.logger.Info().Str("channel", id).Msg("Channel unregistered")
}

// Send delivers through the adapter registered under id. It never returns
// an error and never panics out: unknown channels, adapter errors, and
// adapter panics all become SendResult values.
func (r *Router) Send(ctx context.Context, id, to, text string, opts SendOptions) SendResult {
	r.mu.RLock()
	adapter, ok := r.channels[strings.TrimSpace(id)]
	r.mu.RUnlock()

	if !ok {
		return SendResult{OK: false, Error: "unknown channel"}
	}

	start := time.Now()
	result := r.dispatch(ctx, id, adapter, to, text, opts)
	observability.RecordRouterSend(id, time.Since(start), result.OK)

	if !result.OK {
		r.logger.Warn().
			Str("channel", id).
			Str("error", result.Error).
			Msg("Outbound send failed")
	}
	return result
}

func (r *Router) dispatch(ctx context.Context, id string, adapter Adapter, to, text string, opts SendOptions) (result SendResult) {
	defer func() {
		if rec := recover(); rec != nil {
			result = SendResult{OK: false, Error: fmt.Sprintf("channel panic: %v", rec)}
		}
	}()

	result, err := adapter.Send(ctx, to, text, opts)
	if err != nil {
		return SendResult{OK: false, Error: err.Error()}
	}
	if !result.OK && result.Error == "" {
		result.Error = "send failed"
	}
	return result
}

// ListChannels snapshots every registered adapter's status, sorted by id.
func (r *Router) ListChannels() []ChannelInfo {
	r.mu.RLock()
	adapters := make(map[string]Adapter, len(r.channels))
	for id, a := range r.channels {
		adapters[id] = a
	}
	r.mu.RUnlock()

	out := make([]ChannelInfo, 0, len(adapters))
	for id, a := range adapters {
		out = append(out, ChannelInfo{ID: id, Status: a.Status()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
