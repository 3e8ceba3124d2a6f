package feed

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/backtester/market"
)

var t0 = time.Date(2025, 7, 7, 0, 0, 0, 0, time.UTC)

func minutes(n int) []market.Candle {
	out := make([]market.Candle, n)
	for i := range out {
		p := 1.1 + float64(i)*0.0001
		out[i] = market.Candle{Time: t0.Add(time.Duration(i) * time.Minute), Open: p, High: p + 0.0002, Low: p - 0.0002, Close: p}
	}
	return out
}

type countingFeed struct {
	series market.Series
	err    error
	calls  int
}

func (f *countingFeed) Fetch(ctx context.Context, symbol string, tf market.Timeframe, start, end time.Time) (market.Series, error) {
	f.calls++
	return f.series, f.err
}

func TestCacheKey(t *testing.T) {
	end := time.Date(2025, 7, 8, 23, 59, 59, 0, time.UTC)
	assert.Equal(t, "EURUSD_M1_2025-07-07_to_2025-07-08T235959Z", CacheKey("EURUSD", market.M1, t0, end))
	assert.Equal(t, "EURUSD_M15_2025-07-07_to_2025-07-08", CacheKey("EURUSD", market.M15, t0, t0.Add(24*time.Hour)))
}

func TestCachedFileCache(t *testing.T) {
	dir := t.TempDir()
	src := &countingFeed{series: market.Series{Instrument: "EURUSD", Timeframe: market.M1, Candles: minutes(5)}}
	c := NewCached(src, FileCache{Dir: dir}, zerolog.Nop())
	ctx := context.Background()
	end := t0.Add(time.Hour)

	s, err := c.Fetch(ctx, "EURUSD", market.M1, t0, end)
	require.NoError(t, err)
	assert.Equal(t, 5, s.Len())
	assert.Equal(t, 1, src.calls)
	assert.FileExists(t, filepath.Join(dir, CacheKey("EURUSD", market.M1, t0, end)+".json"))

	s, err = c.Fetch(ctx, "EURUSD", market.M1, t0, end)
	require.NoError(t, err)
	assert.Equal(t, 1, src.calls, "second fetch is served from cache")
	assert.Equal(t, "EURUSD", s.Instrument)
	assert.Equal(t, market.M1, s.Timeframe)
	assert.Equal(t, src.series.Candles[4].Close, s.Candles[4].Close)
	assert.True(t, s.Candles[0].Time.Equal(t0))
}

func TestCachedCorruptFallsBack(t *testing.T) {
	dir := t.TempDir()
	end := t0.Add(time.Hour)
	key := CacheKey("EURUSD", market.M1, t0, end)
	require.NoError(t, os.WriteFile(filepath.Join(dir, key+".json"), []byte("[{"), 0o644))

	src := &countingFeed{series: market.Series{Candles: minutes(3)}}
	s, err := NewCached(src, FileCache{Dir: dir}, zerolog.Nop()).Fetch(context.Background(), "EURUSD", market.M1, t0, end)
	require.NoError(t, err)
	assert.Equal(t, 3, s.Len())
	assert.Equal(t, 1, src.calls)

	// Rewritten with good data.
	_, ok, err := FileCache{Dir: dir}.Get(context.Background(), key)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCachedSourceError(t *testing.T) {
	src := &countingFeed{err: errors.New("down")}
	_, err := NewCached(src, FileCache{Dir: t.TempDir()}, zerolog.Nop()).Fetch(context.Background(), "EURUSD", market.M1, t0, t0)
	assert.ErrorContains(t, err, "down")
}

func TestCachedSkipsEmpty(t *testing.T) {
	dir := t.TempDir()
	src := &countingFeed{}
	_, err := NewCached(src, FileCache{Dir: dir}, zerolog.Nop()).Fetch(context.Background(), "EURUSD", market.M1, t0, t0)
	require.NoError(t, err)
	entries, _ := os.ReadDir(dir)
	assert.Empty(t, entries)
}

func TestNewSeriesSortsAndDedups(t *testing.T) {
	cs := minutes(3)
	in := []market.Candle{cs[2], cs[0], cs[1], cs[0]}
	s := newSeries("EURUSD", market.M1, in)
	require.Equal(t, 3, s.Len())
	require.NoError(t, s.Validate())
}
