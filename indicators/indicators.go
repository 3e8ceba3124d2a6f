// Package indicators computes technical indicators over market candles,
// both in batch and as streaming state.
package indicators

import "github.com/rustyeddy/backtester/market"

// Indicator is streaming state fed one closed candle at a time.
type Indicator interface {
	// Name returns a stable identifier like "EMA(20)".
	Name() string
	// Warmup is the number of updates needed before Ready can be true.
	Warmup() int
	Reset()
	Update(c market.Candle)
	Ready() bool
	// Value is 0 until Ready.
	Value() float64
}
