package chart

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/backtester/backtest"
	"github.com/rustyeddy/backtester/market"
)

func TestKeysFromEnv(t *testing.T) {
	env := []string{"HOME=/root", "CHART_IMG_KEY_2=bbb", "CHART_IMG_KEY_1=aaa", "CHART_IMG_KEY_3=", "CHART_IMG_KEYX"}
	assert.Equal(t, []string{"aaa", "bbb"}, KeysFromEnv(env))
}

func TestKeyRingRotatesAndPersists(t *testing.T) {
	state := filepath.Join(t.TempDir(), "data", "api_key_state.json")
	r, err := NewKeyRing([]string{"a", "b", "c"}, state)
	require.NoError(t, err)

	var got []string
	for i := 0; i < 4; i++ {
		k, _, err := r.Next()
		require.NoError(t, err)
		got = append(got, k)
	}
	assert.Equal(t, []string{"a", "b", "c", "a"}, got)

	b, err := os.ReadFile(state)
	require.NoError(t, err)
	assert.JSONEq(t, `{"nextKeyIndex":1}`, string(b))

	// A new ring resumes where the last one stopped.
	r2, err := NewKeyRing([]string{"a", "b", "c"}, state)
	require.NoError(t, err)
	k, idx, err := r2.Next()
	require.NoError(t, err)
	assert.Equal(t, "b", k)
	assert.Equal(t, 1, idx)
}

func TestKeyRingBadState(t *testing.T) {
	state := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(state, []byte("garbage"), 0o644))
	r, err := NewKeyRing([]string{"a", "b"}, state)
	require.NoError(t, err)
	k, _, _ := r.Next()
	assert.Equal(t, "a", k)

	_, err = NewKeyRing(nil, "")
	assert.Error(t, err)
}

func TestRendererRender(t *testing.T) {
	var payload chartPayload
	var keys []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		keys = append(keys, r.Header.Get("x-api-key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		_, _ = w.Write([]byte("\x89PNG"))
	}))
	defer srv.Close()

	ring, err := NewKeyRing([]string{"k1", "k2"}, "")
	require.NoError(t, err)
	dir := t.TempDir()
	r := NewRenderer(dir, ring, zerolog.Nop())
	r.URL = srv.URL

	from := time.Date(2025, 7, 7, 1, 0, 0, 0, time.UTC)
	req := backtest.ChartRequest{Symbol: "EURUSD", Timeframe: market.M15, From: from, To: from.Add(12 * time.Hour), Name: "coarse_1"}

	path, err := r.Render(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "coarse_1.png"), path)
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "\x89PNG", string(b))

	assert.Equal(t, chartPayload{
		Symbol:   "OANDA:EURUSD",
		Interval: "15m",
		From:     "2025-07-07T01:00:00Z",
		To:       "2025-07-07T13:00:00Z",
		Width:    800,
		Height:   450,
		Theme:    "light",
	}, payload)

	_, err = r.Render(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, []string{"k1", "k2"}, keys)
}

func TestRendererHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "limit reached", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	ring, _ := NewKeyRing([]string{"k"}, "")
	dir := t.TempDir()
	r := NewRenderer(dir, ring, zerolog.Nop())
	r.URL = srv.URL

	_, err := r.Render(context.Background(), backtest.ChartRequest{Symbol: "EURUSD", Timeframe: market.M1, Name: "x"})
	assert.ErrorContains(t, err, "429")
	entries, _ := os.ReadDir(dir)
	assert.Empty(t, entries)

	_, err = (&Renderer{}).Render(context.Background(), backtest.ChartRequest{})
	assert.Error(t, err)
}
