package indicators

import (
	"fmt"

	"github.com/rustyeddy/backtester/market"
)

// MA is the simple moving average of the last period closes.
func MA(candles []market.Candle, period int) (float64, error) {
	if err := need(len(candles), period, period); err != nil {
		return 0, err
	}

	sum := 0.0
	for i := len(candles) - period; i < len(candles); i++ {
		sum += candles[i].Close
	}
	return sum / float64(period), nil
}

// EMA is the exponential moving average over all candles, seeded with the
// SMA of the first period closes.
func EMA(candles []market.Candle, period int) (float64, error) {
	if err := need(len(candles), period, period); err != nil {
		return 0, err
	}

	multiplier := 2.0 / float64(period+1)

	sma := 0.0
	for i := 0; i < period; i++ {
		sma += candles[i].Close
	}
	ema := sma / float64(period)

	for i := period; i < len(candles); i++ {
		ema = (candles[i].Close-ema)*multiplier + ema
	}
	return ema, nil
}

func need(have, period, min int) error {
	if period <= 0 {
		return fmt.Errorf("period must be positive, got %d", period)
	}
	if have < min {
		return fmt.Errorf("not enough candles: need %d, got %d", min, have)
	}
	return nil
}
