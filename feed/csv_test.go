package feed

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ulikunitz/xz"

	"github.com/rustyeddy/backtester/market"
)

func TestReadCSVLayouts(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"plain", "time,open,high,low,close,volume\n2025-07-07T00:00:00Z,1.1,1.2,1.0,1.15,10\n2025-07-07T00:01:00Z,1.15,1.16,1.14,1.15,5\n"},
		{"oanda canonical", "time,instrument,granularity,complete,volume,o,h,l,c\n2025-07-07T00:00:00Z,EUR_USD,M1,true,10,1.1,1.2,1.0,1.15\n2025-07-07T00:01:00Z,EUR_USD,M1,true,5,1.15,1.16,1.14,1.15\n"},
		{"space dates", "Date,Open,High,Low,Close\n2025-07-07 00:00:00,1.1,1.2,1.0,1.15\n\n2025-07-07 00:01,1.15,1.16,1.14,1.15\n"},
		{"unix seconds", "timestamp,o,h,l,c\n1751846400,1.1,1.2,1.0,1.15\n1751846460,1.15,1.16,1.14,1.15\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cs, err := ReadCSV(strings.NewReader(tt.in))
			require.NoError(t, err)
			require.Len(t, cs, 2)
			assert.True(t, cs[0].Time.Equal(t0), cs[0].Time)
			assert.True(t, cs[1].Time.Equal(t0.Add(time.Minute)))
			assert.Equal(t, 1.2, cs[0].High)
			assert.Equal(t, 1.14, cs[1].Low)
		})
	}
}

func TestReadCSVErrors(t *testing.T) {
	_, err := ReadCSV(strings.NewReader("a,b,c\n1,2,3\n"))
	assert.ErrorContains(t, err, "header")

	_, err = ReadCSV(strings.NewReader("time,open,high,low,close\nyesterday,1,1,1,1\n"))
	assert.ErrorContains(t, err, "line 2")

	_, err = ReadCSV(strings.NewReader("time,open,high,low,close\n2025-07-07T00:00:00Z,x,1,1,1\n"))
	assert.ErrorContains(t, err, "bad price")

	cs, err := ReadCSV(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, cs)
}

func TestCSVFeedPlainAndXZ(t *testing.T) {
	dir := t.TempDir()
	s := market.Series{Candles: minutes(10)}

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, s))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "EURUSD_M1.csv"), buf.Bytes(), 0o644))

	f, err := os.Create(filepath.Join(dir, "EUR_USD_M15.csv.xz"))
	require.NoError(t, err)
	xw, err := xz.NewWriter(f)
	require.NoError(t, err)
	_, err = xw.Write(buf.Bytes())
	require.NoError(t, err)
	require.NoError(t, xw.Close())
	require.NoError(t, f.Close())

	feed := CSV{Dir: dir}
	ctx := context.Background()

	got, err := feed.Fetch(ctx, "EURUSD", market.M1, t0.Add(2*time.Minute), t0.Add(5*time.Minute))
	require.NoError(t, err)
	require.Equal(t, 4, got.Len())
	assert.True(t, got.Candles[0].Time.Equal(t0.Add(2*time.Minute)))
	assert.InDelta(t, s.Candles[5].Close, got.Candles[3].Close, 1e-12)

	got, err = feed.Fetch(ctx, "EURUSD", market.M15, time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, 10, got.Len())

	_, err = feed.Fetch(ctx, "GBPUSD", market.M1, t0, t0)
	assert.ErrorContains(t, err, "no file")
}
