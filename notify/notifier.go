// Package notify turns engine events into human-readable messages and
// delivers them to chat transports (Telegram, Discord), the log and live
// websocket clients. Delivery is filtered by verbosity level.
package notify

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/rustyeddy/backtester/sim"
)

// Sender is one delivery channel.
type Sender interface {
	Send(ctx context.Context, title, message string) error
	Name() string
}

var levelNames = []string{"Diam", "Ringkas", "Detail", "Debug"}

// LevelName describes a notification level (0 silent .. 3 debug).
func LevelName(l sim.Level) string {
	if l < 0 || int(l) >= len(levelNames) {
		return fmt.Sprintf("Level %d", l)
	}
	return levelNames[l]
}

// ParseLevel accepts 0..3.
func ParseLevel(n int) (sim.Level, error) {
	if n < int(sim.LevelAlways) || n > int(sim.LevelDebug) {
		return 0, fmt.Errorf("notify: level %d out of range 0..3", n)
	}
	return sim.Level(n), nil
}

// Notifier forwards events whose level is at or below its own to every
// sender. It satisfies backtest.EventSink.
type Notifier struct {
	senders []Sender
	level   atomic.Int32
	format  *Formatter
	log     zerolog.Logger
}

func NewNotifier(senders []Sender, level sim.Level, f *Formatter, log zerolog.Logger) *Notifier {
	if f == nil {
		f = NewFormatter("")
	}
	n := &Notifier{
		senders: senders,
		format:  f,
		log:     log.With().Str("component", "notifier").Logger(),
	}
	n.level.Store(int32(level))
	return n
}

func (n *Notifier) Level() sim.Level     { return sim.Level(n.level.Load()) }
func (n *Notifier) SetLevel(l sim.Level) { n.level.Store(int32(l)) }

// Emit formats and dispatches ev if the current level allows it.
func (n *Notifier) Emit(ctx context.Context, ev sim.Event) error {
	if ev.Level > n.Level() {
		return nil
	}
	m := n.format.Event(ev)
	return n.Send(ctx, m.Title, m.Body)
}

// Send delivers a message to all senders regardless of level. A failing
// sender does not stop delivery to the others.
func (n *Notifier) Send(ctx context.Context, title, message string) error {
	var errs []string
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.log.Error().Err(err).Str("sender", s.Name()).Msg("sender failed")
			errs = append(errs, fmt.Sprintf("%s: %v", s.Name(), err))
			continue
		}
		n.log.Debug().Str("sender", s.Name()).Str("title", title).Msg("notification sent")
	}
	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %s", len(errs), strings.Join(errs, "; "))
	}
	return nil
}
