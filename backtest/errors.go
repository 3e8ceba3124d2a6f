package backtest

import (
	"fmt"
	"time"

	"github.com/rustyeddy/backtester/market"
	"github.com/rustyeddy/backtester/sim"
)

// FeedError aborts a run: required history could not be obtained.
type FeedError struct {
	Symbol    string
	Timeframe market.Timeframe
	Err       error
}

func (e *FeedError) Error() string {
	return fmt.Sprintf("feed %s %s: %v", e.Symbol, e.Timeframe, e.Err)
}

func (e *FeedError) Unwrap() error { return e.Err }

// DecisionError is one failed decision request. It is counted and the step
// is treated as no-trade.
type DecisionError struct {
	At  time.Time
	Err error
}

func (e *DecisionError) Error() string {
	return fmt.Sprintf("decision at %s: %v", e.At.Format(time.RFC3339), e.Err)
}

func (e *DecisionError) Unwrap() error { return e.Err }

// NotificationError is a sink failure. It never aborts a run.
type NotificationError struct {
	Event sim.EventKind
	Err   error
}

func (e *NotificationError) Error() string {
	return fmt.Sprintf("notify %s: %v", e.Event, e.Err)
}

func (e *NotificationError) Unwrap() error { return e.Err }

// PersistenceError is a failure writing reports after the simulation ended.
type PersistenceError struct {
	Path string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist %s: %v", e.Path, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
