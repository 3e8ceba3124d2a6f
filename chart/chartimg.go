// Package chart renders candle charts through the chart-img.com
// TradingView API.
package chart

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/rustyeddy/backtester/backtest"
	"github.com/rustyeddy/backtester/market"
)

const DefaultURL = "https://api.chart-img.com/v2/tradingview/advanced-chart"

type Renderer struct {
	URL      string
	Dir      string
	Exchange string
	Width    int
	Height   int
	Theme    string

	Keys *KeyRing
	HTTP *http.Client
	Log  zerolog.Logger
}

func NewRenderer(dir string, keys *KeyRing, log zerolog.Logger) *Renderer {
	return &Renderer{
		URL:      DefaultURL,
		Dir:      dir,
		Exchange: "OANDA",
		Width:    800,
		Height:   450,
		Theme:    "light",
		Keys:     keys,
		HTTP:     &http.Client{Timeout: time.Minute},
		Log:      log.With().Str("component", "chart").Logger(),
	}
}

type chartPayload struct {
	Symbol   string `json:"symbol"`
	Interval string `json:"interval"`
	From     string `json:"from"`
	To       string `json:"to"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	Theme    string `json:"theme"`
}

func (r *Renderer) payload(req backtest.ChartRequest) chartPayload {
	return chartPayload{
		Symbol:   r.Exchange + ":" + strings.ReplaceAll(market.NormalizePair(req.Symbol), "_", ""),
		Interval: req.Timeframe.ChartInterval(),
		From:     req.From.UTC().Format(time.RFC3339),
		To:       req.To.UTC().Format(time.RFC3339),
		Width:    r.Width,
		Height:   r.Height,
		Theme:    r.Theme,
	}
}

// Render fetches the PNG and writes it to Dir/<Name>.png.
func (r *Renderer) Render(ctx context.Context, req backtest.ChartRequest) (string, error) {
	if r.Keys == nil {
		return "", fmt.Errorf("chart: no api keys configured")
	}
	key, idx, err := r.Keys.Next()
	if err != nil {
		r.Log.Warn().Err(err).Msg("key rotation state not saved")
	}
	r.Log.Debug().Int("key", idx+1).Str("name", req.Name).Msg("rendering chart")

	body, err := json.Marshal(r.payload(req))
	if err != nil {
		return "", err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, r.URL, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("x-api-key", key)
	httpReq.Header.Set("Content-Type", "application/json")

	client := r.HTTP
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("chart-img: %w", err)
	}
	defer resp.Body.Close()

	img, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("chart-img: read: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if len(img) > 512 {
			img = img[:512]
		}
		return "", fmt.Errorf("chart-img http %d: %s", resp.StatusCode, strings.TrimSpace(string(img)))
	}

	if err := os.MkdirAll(r.Dir, 0o755); err != nil {
		return "", err
	}
	name := req.Name
	if name == "" {
		name = fmt.Sprintf("%s_%s_%d", req.Symbol, req.Timeframe, req.To.Unix())
	}
	path := filepath.Join(r.Dir, name+".png")
	if err := os.WriteFile(path, img, 0o644); err != nil {
		return "", err
	}
	r.Log.Info().Str("symbol", req.Symbol).Str("interval", req.Timeframe.ChartInterval()).Msg("chart saved")
	return path, nil
}
