package indicators

import (
	"fmt"
	"math"

	"github.com/rustyeddy/backtester/market"
)

// ATRFunc is the Wilder-smoothed average true range over candles.
func ATRFunc(candles []market.Candle, period int) (float64, error) {
	if err := need(len(candles), period, period+1); err != nil {
		return 0, err
	}

	a := NewATR(period)
	for _, c := range candles {
		a.Update(c)
	}
	return a.Value(), nil
}

// ATR is a streaming average true range.
type ATR struct {
	period    int
	atr       float64
	count     int
	warmupSum float64
	prev      market.Candle
	havePrev  bool
}

func NewATR(period int) *ATR {
	return &ATR{period: period}
}

func (a *ATR) Name() string { return fmt.Sprintf("ATR(%d)", a.period) }

// Warmup is period+1: the first candle only seeds the previous close.
func (a *ATR) Warmup() int { return a.period + 1 }

func (a *ATR) Reset() {
	a.atr = 0
	a.count = 0
	a.warmupSum = 0
	a.havePrev = false
}

func (a *ATR) Update(c market.Candle) {
	if !a.havePrev {
		a.prev = c
		a.havePrev = true
		return
	}

	tr := trueRange(c, a.prev)
	a.prev = c

	if a.count < a.period {
		a.warmupSum += tr
		a.count++
		if a.count == a.period {
			a.atr = a.warmupSum / float64(a.period)
		}
		return
	}
	p := float64(a.period)
	a.atr = (a.atr*(p-1) + tr) / p
}

func (a *ATR) Ready() bool { return a.count >= a.period }

func (a *ATR) Value() float64 {
	if !a.Ready() {
		return 0
	}
	return a.atr
}

func trueRange(cur, prev market.Candle) float64 {
	highLow := cur.High - cur.Low
	highClose := math.Abs(cur.High - prev.Close)
	lowClose := math.Abs(cur.Low - prev.Close)
	return math.Max(highLow, math.Max(highClose, lowClose))
}
