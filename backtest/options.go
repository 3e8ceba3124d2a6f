package backtest

import (
	"fmt"
	"time"

	"github.com/rustyeddy/backtester/market"
	"github.com/rustyeddy/backtester/sim"
)

const (
	DefaultFineWindow   = 120
	DefaultCoarseWindow = 96
	DefaultFineChart    = 60
	DefaultCoarseChart  = 48
	DefaultSkipCandles  = 90
)

// Options are the fixed parameters of one run.
type Options struct {
	Symbol string

	// Start is the simulated present at which decisions may begin; End is
	// the last instant fetched. History before Start is fetched back to
	// Start-HistoryBuffer.
	Start         time.Time
	End           time.Time
	HistoryBuffer time.Duration

	FineTF   market.Timeframe
	CoarseTF market.Timeframe

	FineWindow   int // fine candles handed to the signal source
	CoarseWindow int
	FineChart    int // fine candles drawn on the chart
	CoarseChart  int

	SkipCandles int // forward jump after a no-trade or failed decision

	// DecideWhileArmed requests decisions whenever flat, even with orders
	// pending. Without it decisions wait for an empty book.
	DecideWhileArmed bool
	// CloseAtEnd closes a position still open when the data runs out.
	CloseAtEnd bool

	InitialBalance float64
	LotSize        float64
	Spread         float64 // price units
	Rules          sim.Rules
}

// DefaultOptions returns options with the stock window sizes and rules.
func DefaultOptions() Options {
	return Options{
		FineTF:         market.M1,
		CoarseTF:       market.M15,
		FineWindow:     DefaultFineWindow,
		CoarseWindow:   DefaultCoarseWindow,
		FineChart:      DefaultFineChart,
		CoarseChart:    DefaultCoarseChart,
		SkipCandles:    DefaultSkipCandles,
		HistoryBuffer:  3 * 24 * time.Hour,
		InitialBalance: 10_000,
		LotSize:        0.1,
		Rules: sim.Rules{
			OrderExpiry:  45 * time.Minute,
			TimeLimit:    4 * time.Hour,
			ContractSize: sim.DefaultContractSize,
		},
	}
}

func (o Options) Validate() error {
	if o.Symbol == "" {
		return fmt.Errorf("options.symbol is required")
	}
	if o.Start.IsZero() || o.End.IsZero() {
		return fmt.Errorf("options.start and options.end are required")
	}
	if !o.End.After(o.Start) {
		return fmt.Errorf("options.end (%s) must be after options.start (%s)",
			o.End.Format(time.RFC3339), o.Start.Format(time.RFC3339))
	}
	if o.HistoryBuffer < 0 {
		return fmt.Errorf("options.history_buffer must be >= 0")
	}
	if o.FineTF.Duration() <= 0 || o.CoarseTF.Duration() <= 0 {
		return fmt.Errorf("options: timeframes must be set")
	}
	if o.CoarseTF.Duration() < o.FineTF.Duration() {
		return fmt.Errorf("options.coarse_tf (%s) must not be finer than options.fine_tf (%s)", o.CoarseTF, o.FineTF)
	}
	if o.FineWindow <= 0 || o.CoarseWindow <= 0 {
		return fmt.Errorf("options: fine_window and coarse_window must be > 0")
	}
	if o.FineChart < 0 || o.CoarseChart < 0 {
		return fmt.Errorf("options: chart sizes must be >= 0")
	}
	if o.SkipCandles <= 0 {
		return fmt.Errorf("options.skip_candles must be > 0")
	}
	if o.InitialBalance <= 0 {
		return fmt.Errorf("options.initial_balance must be > 0")
	}
	if o.LotSize <= 0 {
		return fmt.Errorf("options.lot_size must be > 0")
	}
	if o.Spread < 0 {
		return fmt.Errorf("options.spread must be >= 0")
	}
	return o.Rules.Validate()
}
