package market

import "time"

var t0 = time.Date(2025, 7, 7, 2, 0, 0, 0, time.UTC)

// minuteSeries builds n contiguous candles of tf starting at start.
func minuteSeries(start time.Time, tf Timeframe, n int) Series {
	s := Series{Instrument: "EUR_USD", Timeframe: tf}
	for i := 0; i < n; i++ {
		px := 1.1000 + float64(i)*0.0001
		s.Candles = append(s.Candles, Candle{
			Time:  start.Add(time.Duration(i) * tf.Duration()),
			Open:  px,
			High:  px + 0.0002,
			Low:   px - 0.0002,
			Close: px + 0.0001,
		})
	}
	return s
}
