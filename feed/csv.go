package feed

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/ulikunitz/xz"

	"github.com/rustyeddy/backtester/market"
)

// CSV reads candles from Dir/<SYMBOL>_<TF>.csv or .csv.xz. The header names
// the columns: time plus open/high/low/close (or o/h/l/c) and an optional
// volume, which covers both plain exports and the OANDA canonical layout
// time,instrument,granularity,complete,volume,o,h,l,c.
type CSV struct {
	Dir string
}

func (f CSV) candidates(symbol string, tf market.Timeframe) []string {
	var out []string
	for _, sym := range []string{symbol, market.NormalizePair(symbol)} {
		base := filepath.Join(f.Dir, fmt.Sprintf("%s_%s.csv", sym, tf))
		out = append(out, base, base+".xz")
	}
	return out
}

func (f CSV) Fetch(ctx context.Context, symbol string, tf market.Timeframe, start, end time.Time) (market.Series, error) {
	for _, path := range f.candidates(symbol, tf) {
		cs, err := ReadCSVFile(path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return market.Series{}, err
		}
		s := newSeries(symbol, tf, cs)
		return s.Between(start, end), nil
	}
	return market.Series{}, fmt.Errorf("csv: no file for %s %s in %s", symbol, tf, f.Dir)
}

// ReadCSVFile reads a candle CSV, decompressing .xz files.
func ReadCSVFile(path string) ([]market.Candle, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer fh.Close()

	var r io.Reader = fh
	if strings.HasSuffix(path, ".xz") {
		xr, err := xz.NewReader(fh)
		if err != nil {
			return nil, fmt.Errorf("csv %s: %w", path, err)
		}
		r = xr
	}
	cs, err := ReadCSV(r)
	if err != nil {
		return nil, fmt.Errorf("csv %s: %w", path, err)
	}
	return cs, nil
}

type columns struct {
	time, open, high, low, close, volume int
}

func headerColumns(row []string) (columns, error) {
	c := columns{-1, -1, -1, -1, -1, -1}
	for i, h := range row {
		switch strings.ToLower(strings.TrimSpace(h)) {
		case "time", "timestamp", "date":
			c.time = i
		case "open", "o":
			c.open = i
		case "high", "h":
			c.high = i
		case "low", "l":
			c.low = i
		case "close", "c":
			c.close = i
		case "volume", "v":
			c.volume = i
		}
	}
	if c.time < 0 || c.open < 0 || c.high < 0 || c.low < 0 || c.close < 0 {
		return c, fmt.Errorf("header %q lacks time/open/high/low/close", strings.Join(row, ","))
	}
	return c, nil
}

// ReadCSV parses a candle CSV with a header row. Empty rows are skipped.
func ReadCSV(r io.Reader) ([]market.Candle, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	head, err := cr.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	cols, err := headerColumns(head)
	if err != nil {
		return nil, err
	}

	var out []market.Candle
	line := 1
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, err
		}
		if len(row) == 0 || (len(row) == 1 && strings.TrimSpace(row[0]) == "") {
			continue
		}
		c, err := parseRow(row, cols)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		out = append(out, c)
	}
	return out, nil
}

func parseRow(row []string, cols columns) (market.Candle, error) {
	get := func(i int) string {
		if i < 0 || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	t, err := parseTime(get(cols.time))
	if err != nil {
		return market.Candle{}, err
	}
	var c market.Candle
	c.Time = t
	for _, f := range []struct {
		dst *float64
		col int
	}{{&c.Open, cols.open}, {&c.High, cols.high}, {&c.Low, cols.low}, {&c.Close, cols.close}} {
		v, err := strconv.ParseFloat(get(f.col), 64)
		if err != nil {
			return market.Candle{}, fmt.Errorf("bad price %q: %w", get(f.col), err)
		}
		*f.dst = v
	}
	if v := get(cols.volume); v != "" {
		c.Volume, _ = strconv.ParseFloat(v, 64)
	}
	return c, nil
}

var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006.01.02 15:04",
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, errors.New("empty time")
	}
	for _, l := range timeLayouts {
		if t, err := time.ParseInLocation(l, s, time.UTC); err == nil {
			return t.UTC(), nil
		}
	}
	if sec, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(sec, 0).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("bad time %q", s)
}
