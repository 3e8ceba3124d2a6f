// Package feed provides candle feeds for the backtester: a REST candle API,
// local CSV files (optionally xz-compressed) and the OANDA v20 API, plus
// file and Redis caches that sit in front of any of them.
package feed

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/rustyeddy/backtester/backtest"
	"github.com/rustyeddy/backtester/market"
)

// Cache stores fetched series by key. A miss is (Series{}, false, nil); an
// unreadable entry is an error and the caller falls back to the feed.
type Cache interface {
	Get(ctx context.Context, key string) (market.Series, bool, error)
	Put(ctx context.Context, key string, s market.Series) error
}

// CacheKey names a request as SYMBOL_TF_start_to_end.
func CacheKey(symbol string, tf market.Timeframe, start, end time.Time) string {
	return fmt.Sprintf("%s_%s_%s_to_%s", symbol, tf, stamp(start), stamp(end))
}

func stamp(t time.Time) string {
	t = t.UTC()
	if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 {
		return t.Format("2006-01-02")
	}
	return t.Format("2006-01-02T150405Z")
}

// Cached serves requests from Cache when possible and stores what the
// underlying feed returns. Cache failures are logged, never returned.
type Cached struct {
	Feed  backtest.CandleFeed
	Cache Cache
	Log   zerolog.Logger
}

func NewCached(f backtest.CandleFeed, c Cache, log zerolog.Logger) *Cached {
	return &Cached{Feed: f, Cache: c, Log: log.With().Str("component", "feed").Logger()}
}

func (c *Cached) Fetch(ctx context.Context, symbol string, tf market.Timeframe, start, end time.Time) (market.Series, error) {
	key := CacheKey(symbol, tf, start, end)

	s, ok, err := c.Cache.Get(ctx, key)
	switch {
	case err != nil:
		c.Log.Warn().Err(err).Str("key", key).Msg("cache unreadable, fetching from source")
	case ok:
		s.Instrument, s.Timeframe = symbol, tf
		c.Log.Info().Str("key", key).Int("candles", s.Len()).Msg("loaded from cache")
		return s, nil
	}

	s, err = c.Feed.Fetch(ctx, symbol, tf, start, end)
	if err != nil {
		return market.Series{}, err
	}
	c.Log.Info().Str("key", key).Int("candles", s.Len()).Msg("fetched from source")

	if s.Len() > 0 {
		if err := c.Cache.Put(ctx, key, s); err != nil {
			c.Log.Warn().Err(err).Str("key", key).Msg("cache write failed")
		}
	}
	return s, nil
}

// newSeries sorts candles by time and drops exact duplicates.
func newSeries(symbol string, tf market.Timeframe, cs []market.Candle) market.Series {
	sort.SliceStable(cs, func(i, j int) bool { return cs[i].Time.Before(cs[j].Time) })
	out := cs[:0]
	for _, c := range cs {
		if n := len(out); n > 0 && out[n-1].Time.Equal(c.Time) {
			continue
		}
		out = append(out, c)
	}
	return market.Series{Instrument: symbol, Timeframe: tf, Candles: out}
}
