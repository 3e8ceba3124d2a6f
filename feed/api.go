package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rustyeddy/backtester/market"
)

// API fetches candles from an HTTP endpoint taking symbol, timeframe, start
// and end query parameters and answering with a JSON array of
// {time, open, high, low, close[, volume]}.
type API struct {
	URL    string
	Client *http.Client
}

func NewAPI(rawURL string, timeout time.Duration) *API {
	if timeout <= 0 {
		timeout = time.Minute
	}
	return &API{URL: strings.TrimSpace(rawURL), Client: &http.Client{Timeout: timeout}}
}

func (a *API) Fetch(ctx context.Context, symbol string, tf market.Timeframe, start, end time.Time) (market.Series, error) {
	if a.URL == "" {
		return market.Series{}, fmt.Errorf("candle api: missing url")
	}
	u, err := url.Parse(a.URL)
	if err != nil {
		return market.Series{}, fmt.Errorf("candle api: %w", err)
	}
	q := u.Query()
	q.Set("symbol", symbol)
	q.Set("timeframe", tf.String())
	q.Set("start", start.UTC().Format(time.RFC3339))
	q.Set("end", end.UTC().Format(time.RFC3339))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return market.Series{}, err
	}
	req.Header.Set("Accept", "application/json")

	client := a.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return market.Series{}, fmt.Errorf("candle api: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		return market.Series{}, fmt.Errorf("candle api http %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}

	var cs []market.Candle
	if err := json.NewDecoder(resp.Body).Decode(&cs); err != nil {
		return market.Series{}, fmt.Errorf("candle api: decode: %w", err)
	}
	return newSeries(symbol, tf, cs), nil
}
