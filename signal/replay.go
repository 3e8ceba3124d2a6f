package signal

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/rustyeddy/backtester/backtest"
)

// Replay answers with the decisions recorded in an earlier run's decision
// log, keyed by candle time. It re-runs settlement under different trade
// rules without calling any external service.
type Replay struct {
	byTime map[int64]backtest.DecisionRecord
}

func NewReplay(recs []backtest.DecisionRecord) *Replay {
	r := &Replay{byTime: make(map[int64]backtest.DecisionRecord, len(recs))}
	for _, rec := range recs {
		r.byTime[rec.Timestamp.UnixNano()] = rec
	}
	return r
}

// LoadReplay reads a decision log file.
func LoadReplay(path string) (*Replay, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var recs []backtest.DecisionRecord
	if err := json.Unmarshal(b, &recs); err != nil {
		return nil, fmt.Errorf("replay %s: %w", path, err)
	}
	return NewReplay(recs), nil
}

func (r *Replay) Len() int { return len(r.byTime) }

func (r *Replay) Decide(ctx context.Context, w backtest.Window) (backtest.Decision, error) {
	rec, ok := r.byTime[w.At.UnixNano()]
	if !ok {
		return backtest.Decision{Kind: backtest.NoTrade, Raw: "replay: no decision recorded"}, nil
	}
	if rec.Status == backtest.StatusFailure {
		return backtest.Decision{Raw: rec.RawResponse}, fmt.Errorf("replay: recorded failure: %s", rec.Error)
	}
	if rec.Decision == nil {
		d, _ := ParseExtraction(rec.RawResponse)
		d.Raw = rec.RawResponse
		return d, nil
	}
	d := *rec.Decision
	d.Raw = rec.RawResponse
	return d, nil
}
