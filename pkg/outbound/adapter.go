package outbound

import "context"

// SendOptions carries per-send delivery hints.
type SendOptions struct {
	// Subject is an optional title or subject line for surfaces that have one.
	Subject string
	// Media holds attachment references understood by the adapter.
	Media []string
	// Silent suppresses notification sounds where the surface supports it.
	Silent bool
}

// SendResult is the uniform outcome of an outbound send. Failure is a
// value, never an exception: upstream orchestration branches on OK instead
// of unwinding through channel-specific errors.
type SendResult struct {
	OK        bool   `json:"ok"`
	MessageID string `json:"message_id,omitempty"`
	Error     string `json:"error,omitempty"`
}

// ChannelStatus describes an adapter's connection state.
type ChannelStatus struct {
	Connected bool   `json:"connected"`
	Account   string `json:"account,omitempty"`
}

// Adapter delivers text/media to one external surface. Implementations are
// inherently unreliable I/O; the router converts their failures into
// SendResult values.
type Adapter interface {
	Send(ctx context.Context, to, text string, opts SendOptions) (SendResult, error)
	Status() ChannelStatus
}

// ChannelInfo is one row of the router's listing.
type ChannelInfo struct {
	ID     string        `json:"id"`
	Status ChannelStatus `json:"status"`
}
