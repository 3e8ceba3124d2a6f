package notify

import (
	"context"

	"github.com/rs/zerolog"
)

// Log writes notifications to a zerolog logger; useful for offline runs
// with no chat transport configured.
type Log struct {
	l zerolog.Logger
}

func NewLog(l zerolog.Logger) *Log {
	return &Log{l: l.With().Str("component", "notify").Logger()}
}

func (s *Log) Send(ctx context.Context, title, message string) error {
	s.l.Info().Str("title", title).Msg(message)
	return nil
}

func (s *Log) Name() string { return "log" }
