package feed

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rustyeddy/backtester/market"
)

const (
	OANDAPracticeURL = "https://api-fxpractice.oanda.com"
	OANDALiveURL     = "https://api-fxtrade.oanda.com"

	// oandaMaxCount is the largest page the candles endpoint serves.
	oandaMaxCount = 5000
)

func OANDABaseURL(env string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "practice", "demo", "":
		return OANDAPracticeURL, nil
	case "live", "trade":
		return OANDALiveURL, nil
	default:
		return "", fmt.Errorf("unknown OANDA env %q (want practice|live)", env)
	}
}

// OANDA pages through /v3/instruments/{instrument}/candles. Only complete
// candles are returned. Price selects mid (M, default), bid (B) or ask (A).
type OANDA struct {
	BaseURL string
	Token   string
	Price   string
	HTTP    *http.Client

	// PageSize overrides the page length; zero means the API maximum.
	PageSize int
}

type oandaOHLC struct {
	O string `json:"o"`
	H string `json:"h"`
	L string `json:"l"`
	C string `json:"c"`
}

type oandaCandlesResp struct {
	Instrument  string `json:"instrument"`
	Granularity string `json:"granularity"`
	Candles     []struct {
		Complete bool       `json:"complete"`
		Time     string     `json:"time"`
		Volume   int        `json:"volume"`
		Mid      *oandaOHLC `json:"mid,omitempty"`
		Bid      *oandaOHLC `json:"bid,omitempty"`
		Ask      *oandaOHLC `json:"ask,omitempty"`
	} `json:"candles"`
}

func (o *OANDA) price() string {
	p := strings.ToUpper(strings.TrimSpace(o.Price))
	if p == "" {
		return "M"
	}
	return p
}

func (o *OANDA) Fetch(ctx context.Context, symbol string, tf market.Timeframe, start, end time.Time) (market.Series, error) {
	if o.Token == "" {
		return market.Series{}, fmt.Errorf("oanda: missing token")
	}
	if o.BaseURL == "" {
		return market.Series{}, fmt.Errorf("oanda: missing base url")
	}
	switch o.price() {
	case "M", "B", "A":
	default:
		return market.Series{}, fmt.Errorf("oanda: price %q not supported; use M/B/A", o.Price)
	}

	inst := market.NormalizePair(symbol)
	page := o.PageSize
	if page <= 0 || page > oandaMaxCount {
		page = oandaMaxCount
	}

	var all []market.Candle
	from := start
	for {
		cs, err := o.page(ctx, inst, tf, from, page)
		if err != nil {
			return market.Series{}, err
		}
		done := len(cs) < page
		for _, c := range cs {
			if c.Time.After(end) {
				done = true
				break
			}
			all = append(all, c)
		}
		if done || len(cs) == 0 {
			break
		}
		next := cs[len(cs)-1].Time.Add(tf.Duration())
		if !next.After(from) {
			break
		}
		from = next
	}
	return newSeries(symbol, tf, all), nil
}

func (o *OANDA) page(ctx context.Context, inst string, tf market.Timeframe, from time.Time, count int) ([]market.Candle, error) {
	u, err := url.Parse(o.BaseURL)
	if err != nil {
		return nil, err
	}
	u.Path = fmt.Sprintf("/v3/instruments/%s/candles", inst)

	q := u.Query()
	q.Set("granularity", tf.String())
	q.Set("price", o.price())
	q.Set("from", from.UTC().Format(time.RFC3339Nano))
	q.Set("count", strconv.Itoa(count))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+o.Token)
	req.Header.Set("Content-Type", "application/json")

	client := o.HTTP
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		return nil, fmt.Errorf("oanda candles http %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}

	var cr oandaCandlesResp
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return nil, err
	}

	out := make([]market.Candle, 0, len(cr.Candles))
	for _, cd := range cr.Candles {
		if !cd.Complete {
			continue
		}
		var p *oandaOHLC
		switch o.price() {
		case "M":
			p = cd.Mid
		case "B":
			p = cd.Bid
		case "A":
			p = cd.Ask
		}
		if p == nil {
			continue
		}
		t, err := time.Parse(time.RFC3339Nano, cd.Time)
		if err != nil {
			return nil, fmt.Errorf("oanda: bad time %q: %w", cd.Time, err)
		}
		c := market.Candle{Time: t.UTC(), Volume: float64(cd.Volume)}
		for _, f := range []struct {
			dst *float64
			s   string
		}{{&c.Open, p.O}, {&c.High, p.H}, {&c.Low, p.L}, {&c.Close, p.C}} {
			if *f.dst, err = strconv.ParseFloat(f.s, 64); err != nil {
				return nil, fmt.Errorf("oanda: bad price %q: %w", f.s, err)
			}
		}
		out = append(out, c)
	}
	return out, nil
}

// WriteCSV writes s in the layout CSV reads back:
// time,open,high,low,close,volume.
func WriteCSV(w io.Writer, s market.Series) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"time", "open", "high", "low", "close", "volume"}); err != nil {
		return err
	}
	f := func(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
	for _, c := range s.Candles {
		row := []string{c.Time.UTC().Format(time.RFC3339), f(c.Open), f(c.High), f(c.Low), f(c.Close), f(c.Volume)}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
