package market

import "time"

// Candle represents OHLC (Open, High, Low, Close) candlestick data.
// Time is the bar open time.
type Candle struct {
	Time   time.Time `json:"time"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume,omitempty"`
}

// Valid reports whether the candle's prices are internally consistent.
func (c Candle) Valid() bool {
	if c.Time.IsZero() {
		return false
	}
	if c.High < c.Low {
		return false
	}
	return c.Open >= c.Low && c.Open <= c.High && c.Close >= c.Low && c.Close <= c.High
}
