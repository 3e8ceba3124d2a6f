package backtest

import (
	"context"
	"time"

	"github.com/rustyeddy/backtester/market"
	"github.com/rustyeddy/backtester/sim"
)

// CandleFeed returns candles for symbol at tf in [start, end], ascending.
type CandleFeed interface {
	Fetch(ctx context.Context, symbol string, tf market.Timeframe, start, end time.Time) (market.Series, error)
}

// ChartRequest describes one chart image covering Candles.
type ChartRequest struct {
	Symbol    string
	Timeframe market.Timeframe
	From      time.Time
	To        time.Time
	// Name is a file base name unique within the run.
	Name string
}

// ChartRenderer writes a chart image and returns its path. The caller
// removes the file.
type ChartRenderer interface {
	Render(ctx context.Context, req ChartRequest) (path string, err error)
}

// EventSink receives engine events in emission order.
type EventSink interface {
	Emit(ctx context.Context, ev sim.Event) error
}

type SinkFunc func(ctx context.Context, ev sim.Event) error

func (f SinkFunc) Emit(ctx context.Context, ev sim.Event) error { return f(ctx, ev) }

// MultiSink fans an event out to every sink and returns the first error.
type MultiSink []EventSink

func (m MultiSink) Emit(ctx context.Context, ev sim.Event) error {
	var first error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Emit(ctx, ev); err != nil && first == nil {
			first = err
		}
	}
	return first
}
