package notify

import (
	"context"

	"github.com/rs/zerolog"
)

// LogSink writes messages to the log instead of delivering them. Used when
// no real delivery channel is configured, typically in development.
type LogSink struct {
	logger zerolog.Logger
}

// NewLogSink constructs a log-only sink.
func NewLogSink(logger zerolog.Logger) *LogSink {
	return &LogSink{logger: logger.With().Str("component", "log_sink").Logger()}
}

// Send logs the message and reports success.
func (s *LogSink) Send(ctx context.Context, subscriberID int64, text string) error {
	s.logger.Info().Int64("subscriber_id", subscriberID).Str("text", text).Msg("message (log-only delivery)")
	return nil
}

var _ Sink = (*LogSink)(nil)
