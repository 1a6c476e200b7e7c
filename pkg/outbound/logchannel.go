package outbound

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// LogChannel is a trivial adapter that writes deliveries to the log. The
// daemon registers it as the default notification sink so routed messages
// always have somewhere to land.
type LogChannel struct {
	logger zerolog.Logger
}

// NewLogChannel creates a log-backed adapter.
func NewLogChannel(logger zerolog.Logger) *LogChannel {
	return &LogChannel{logger: logger}
}

// Send logs the message and reports success.
func (c *LogChannel) Send(_ context.Context, to, text string, opts SendOptions) (SendResult, error) {
	c.logger.Info().
		Str("to", to).
		Str("subject", opts.Subject).
		Str("text", text).
		Msg("Outbound message")
	return SendResult{OK: true, MessageID: uuid.NewString()}, nil
}

// Status always reports connected.
func (c *LogChannel) Status() ChannelStatus {
	return ChannelStatus{Connected: true, Account: "log"}
}
