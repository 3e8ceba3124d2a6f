package market

import (
	"fmt"
	"sort"
	"time"
)

// Series is an ordered run of candles at a fixed granularity.
// It is read-only once a backtest starts.
type Series struct {
	Instrument string
	Timeframe  Timeframe
	Candles    []Candle
}

type Gap struct {
	StartIdx int    // index of the candle after which bars are missing
	Len      int    // number of missing intervals
	Kind     string // weekend, suspicious or minor
}

type GapStats struct {
	GapCount       int
	WeekendGaps    int
	SuspiciousGaps int
	LongestGap     int
	LongestGapKind string
}

func (s Series) Len() int { return len(s.Candles) }

// Validate checks that timestamps are strictly increasing.
func (s Series) Validate() error {
	for i := 1; i < len(s.Candles); i++ {
		if !s.Candles[i].Time.After(s.Candles[i-1].Time) {
			return fmt.Errorf("%s %s: candle %d at %s is not after %s",
				s.Instrument, s.Timeframe, i,
				s.Candles[i].Time.Format(time.RFC3339),
				s.Candles[i-1].Time.Format(time.RFC3339))
		}
	}
	return nil
}

// IndexAtOrAfter returns the first candle index with Time >= t, or -1.
func (s Series) IndexAtOrAfter(t time.Time) int {
	i := sort.Search(len(s.Candles), func(i int) bool {
		return !s.Candles[i].Time.Before(t)
	})
	if i == len(s.Candles) {
		return -1
	}
	return i
}

// Between returns the sub-series with from <= Time <= to. Zero bounds are open.
func (s Series) Between(from, to time.Time) Series {
	out := Series{Instrument: s.Instrument, Timeframe: s.Timeframe}
	for _, c := range s.Candles {
		if !from.IsZero() && c.Time.Before(from) {
			continue
		}
		if !to.IsZero() && c.Time.After(to) {
			continue
		}
		out.Candles = append(out.Candles, c)
	}
	return out
}

// Tail returns the last n candles of cs (all of them when n >= len(cs)).
func Tail(cs []Candle, n int) []Candle {
	if n <= 0 {
		return nil
	}
	if n >= len(cs) {
		return cs
	}
	return cs[len(cs)-n:]
}

// Gaps lists the holes between consecutive candles. Missing bars are not
// interpolated; the report only feeds logging.
func (s Series) Gaps() []Gap {
	tf := s.Timeframe.Duration()
	if tf <= 0 {
		return nil
	}

	var gaps []Gap
	for i := 1; i < len(s.Candles); i++ {
		delta := s.Candles[i].Time.Sub(s.Candles[i-1].Time)
		missing := int(delta/tf) - 1
		if missing <= 0 {
			continue
		}
		gaps = append(gaps, Gap{
			StartIdx: i - 1,
			Len:      missing,
			Kind:     classifyGap(s.Candles[i-1].Time.Add(tf), time.Duration(missing)*tf),
		})
	}
	return gaps
}

func classifyGap(start time.Time, length time.Duration) string {
	wd := start.UTC().Weekday()

	// Weekend-ish if gap >= 24h and starts Fri/Sat/Sun (UTC heuristic)
	if length >= 24*time.Hour {
		if wd == time.Friday || wd == time.Saturday || wd == time.Sunday {
			return "weekend"
		}
		return "suspicious"
	}

	if length >= 10*time.Minute {
		return "suspicious"
	}

	return "minor"
}

func (s Series) GapStats() GapStats {
	var st GapStats
	for _, g := range s.Gaps() {
		st.GapCount++
		switch g.Kind {
		case "weekend":
			st.WeekendGaps++
		case "suspicious":
			st.SuspiciousGaps++
		}
		if g.Len > st.LongestGap {
			st.LongestGap = g.Len
			st.LongestGapKind = g.Kind
		}
	}
	return st
}
