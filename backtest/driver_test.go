package backtest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/backtester/market"
	"github.com/rustyeddy/backtester/sim"
)

var base = time.Date(2025, 7, 7, 0, 0, 0, 0, time.UTC)

// mockFeed serves fixed series per timeframe.
type mockFeed struct {
	series map[market.Timeframe]market.Series
	errs   map[market.Timeframe]error

	mu    sync.Mutex
	calls []market.Timeframe
}

func (m *mockFeed) Fetch(ctx context.Context, symbol string, tf market.Timeframe, start, end time.Time) (market.Series, error) {
	m.mu.Lock()
	m.calls = append(m.calls, tf)
	m.mu.Unlock()

	if err := m.errs[tf]; err != nil {
		return market.Series{}, err
	}
	return m.series[tf], nil
}

// scriptedSource returns decisions from a script, then NO_TRADE.
type scriptedSource struct {
	script []Decision
	err    error
	check  func(w Window)

	calls []time.Time
}

func (s *scriptedSource) Decide(ctx context.Context, w Window) (Decision, error) {
	s.calls = append(s.calls, w.At)
	if s.check != nil {
		s.check(w)
	}
	if s.err != nil {
		return Decision{Raw: "boom"}, s.err
	}
	n := len(s.calls) - 1
	if n < len(s.script) {
		return s.script[n], nil
	}
	return Decision{Kind: NoTrade, Raw: "NO_TRADE"}, nil
}

type recordingSink struct {
	events []sim.Event
	err    error
}

func (r *recordingSink) Emit(ctx context.Context, ev sim.Event) error {
	r.events = append(r.events, ev)
	return r.err
}

func (r *recordingSink) kinds(max sim.Level) []sim.EventKind {
	var out []sim.EventKind
	for _, ev := range r.events {
		if ev.Level <= max {
			out = append(out, ev.Kind)
		}
	}
	return out
}

// fileCharts writes an empty file per request into dir.
type fileCharts struct {
	dir  string
	fail market.Timeframe
}

func (f *fileCharts) Render(ctx context.Context, req ChartRequest) (string, error) {
	if req.Timeframe == f.fail {
		return "", errors.New("render failed")
	}
	p := filepath.Join(f.dir, req.Name+".png")
	return p, os.WriteFile(p, []byte("png"), 0o644)
}

func flat(at time.Time, px float64) market.Candle {
	return market.Candle{Time: at, Open: px, High: px, Low: px, Close: px}
}

// testSeries builds n fine M1 candles at px from base and the matching M15
// series. mod may adjust individual fine candles by index.
func testSeries(n int, px float64, mod map[int]func(*market.Candle)) (market.Series, market.Series) {
	fine := market.Series{Instrument: "EURUSD", Timeframe: market.M1}
	coarse := market.Series{Instrument: "EURUSD", Timeframe: market.M15}
	for i := 0; i < n; i++ {
		c := flat(base.Add(time.Duration(i)*time.Minute), px)
		if f, ok := mod[i]; ok {
			f(&c)
		}
		fine.Candles = append(fine.Candles, c)
		if i%15 == 0 {
			coarse.Candles = append(coarse.Candles, flat(c.Time, px))
		}
	}
	return fine, coarse
}

func testOptions() Options {
	o := DefaultOptions()
	o.Symbol = "EURUSD"
	o.Start = base.Add(time.Hour)
	o.End = base.Add(24 * time.Hour)
	o.HistoryBuffer = time.Hour
	o.FineWindow = 30
	o.CoarseWindow = 3
	o.FineChart = 20
	o.CoarseChart = 2
	o.LotSize = 1
	o.InitialBalance = 10_000
	return o
}

func newFeed(fine, coarse market.Series) *mockFeed {
	return &mockFeed{series: map[market.Timeframe]market.Series{
		market.M1:  fine,
		market.M15: coarse,
	}}
}

func counterIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("d%d", n)
	}
}

func minute(i int) time.Time { return base.Add(time.Duration(i) * time.Minute) }

func TestDriver_BuyLimitTakeProfit(t *testing.T) {
	t.Parallel()

	fine, coarse := testSeries(300, 1.1010, map[int]func(*market.Candle){
		62: func(c *market.Candle) { c.Low = 1.0995 },
		70: func(c *market.Candle) { c.High = 1.1105 },
	})
	src := &scriptedSource{script: []Decision{
		{Kind: BuyLimit, Entry: 1.1000, StopLoss: 1.0950, TakeProfit: 1.1100, Raw: "buy"},
	}}
	sink := &recordingSink{}

	d := NewDriver(newFeed(fine, coarse), src, testOptions(), WithSink(sink), WithIDs(counterIDs()))
	res, err := d.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []time.Time{minute(60), minute(70), minute(160), minute(250)}, src.calls)
	assert.Equal(t, Done, d.Phase())

	require.Len(t, res.State.Closed, 1)
	tr := res.State.Closed[0]
	assert.Equal(t, sim.Buy, tr.Direction)
	assert.Equal(t, sim.ExitTakeProfit, tr.Reason)
	assert.Equal(t, minute(62), tr.EntryTime)
	assert.Equal(t, minute(70), tr.ExitTime)
	assert.Equal(t, 1000.0, tr.ProfitLoss)
	assert.Equal(t, sim.TimeRange{Start: minute(31), End: minute(60)}, tr.Window)
	assert.InDelta(t, 11_000.0, res.State.Balance, 1e-6)

	assert.Equal(t, []sim.EventKind{
		sim.EventOrderCreated,
		sim.EventPositionOpened,
		sim.EventPositionClosed,
	}, sink.kinds(sim.LevelDetail))

	for _, ev := range sink.events {
		if ev.Kind == sim.EventPositionOpened {
			assert.Equal(t, "ARMED", ev.Phase)
		}
	}

	require.Len(t, res.DecisionLog, 4)
	assert.Equal(t, "d1", res.DecisionLog[0].ID)
	assert.Equal(t, StatusSuccess, res.DecisionLog[0].Status)
	assert.Equal(t, "buy", res.DecisionLog[0].RawResponse)
	require.NotNil(t, res.DecisionLog[0].Decision)
	assert.Equal(t, BuyLimit, res.DecisionLog[0].Decision.Kind)
	assert.Equal(t, 4, res.Decisions)
	assert.Zero(t, res.DecisionFailures)
	assert.Equal(t, minute(60), res.From)
	assert.Equal(t, minute(250), res.To)
}

func TestDriver_SkipAheadAfterNoTrade(t *testing.T) {
	t.Parallel()

	fine, coarse := testSeries(400, 1.1, nil)
	src := &scriptedSource{}

	d := NewDriver(newFeed(fine, coarse), src, testOptions())
	res, err := d.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, src.calls, 4)
	for k := 1; k < len(src.calls); k++ {
		assert.Equal(t, 90*time.Minute, src.calls[k].Sub(src.calls[k-1]))
	}
	assert.Empty(t, res.State.Closed)
	assert.Equal(t, 10_000.0, res.State.Balance)
}

func TestDriver_WaitsForHistory(t *testing.T) {
	t.Parallel()

	fine, coarse := testSeries(100, 1.1, nil)
	o := testOptions()
	o.Start = base

	src := &scriptedSource{}
	_, err := NewDriver(newFeed(fine, coarse), src, o).Run(context.Background())
	require.NoError(t, err)

	// 30 fine candles exist at minute 29 but only two coarse ones (0, 15).
	require.NotEmpty(t, src.calls)
	assert.Equal(t, minute(30), src.calls[0])
}

func TestDriver_WindowHasNoLookAhead(t *testing.T) {
	t.Parallel()

	fine, coarse := testSeries(300, 1.1, nil)
	o := testOptions()

	src := &scriptedSource{}
	src.check = func(w Window) {
		assert.Len(t, w.Fine, o.FineWindow)
		assert.Len(t, w.Coarse, o.CoarseWindow)
		assert.Equal(t, w.At, w.Fine[len(w.Fine)-1].Time)
		for _, c := range w.Fine {
			assert.False(t, c.Time.After(w.At))
		}
		for _, c := range w.Coarse {
			assert.False(t, c.Time.After(w.At))
		}
		// the last coarse bar is the one open at or before At
		assert.WithinDuration(t, w.At, w.Coarse[len(w.Coarse)-1].Time, 15*time.Minute)
	}

	_, err := NewDriver(newFeed(fine, coarse), src, o).Run(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, src.calls)
}

func TestDriver_DecisionFailuresAreCounted(t *testing.T) {
	t.Parallel()

	fine, coarse := testSeries(300, 1.1, nil)
	src := &scriptedSource{err: errors.New("service unavailable")}

	res, err := NewDriver(newFeed(fine, coarse), src, testOptions()).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, res.DecisionFailures)
	require.Len(t, res.DecisionLog, 3)
	for _, rec := range res.DecisionLog {
		assert.Equal(t, StatusFailure, rec.Status)
		assert.Contains(t, rec.Error, "service unavailable")
		assert.Nil(t, rec.Decision)
	}
	assert.Equal(t, []time.Time{minute(60), minute(150), minute(240)}, src.calls)
}

func TestDriver_InvalidDecisionCountsAsFailure(t *testing.T) {
	t.Parallel()

	fine, coarse := testSeries(200, 1.1, nil)
	src := &scriptedSource{script: []Decision{{Kind: SellLimit, Entry: 0, StopLoss: 1.2, TakeProfit: 1.0}}}

	res, err := NewDriver(newFeed(fine, coarse), src, testOptions()).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.DecisionFailures)
	assert.Empty(t, res.State.Orders)
}

func TestDriver_FeedErrors(t *testing.T) {
	t.Parallel()

	fine, coarse := testSeries(100, 1.1, nil)

	tests := []struct {
		name string
		feed *mockFeed
		opts func(*Options)
		tf   market.Timeframe
	}{
		{
			name: "coarse fetch fails",
			feed: &mockFeed{
				series: map[market.Timeframe]market.Series{market.M1: fine},
				errs:   map[market.Timeframe]error{market.M15: errors.New("502")},
			},
			tf: market.M15,
		},
		{
			name: "empty fine series",
			feed: newFeed(market.Series{}, coarse),
			tf:   market.M1,
		},
		{
			name: "unordered fine series",
			feed: newFeed(market.Series{Candles: []market.Candle{flat(minute(2), 1), flat(minute(1), 1)}}, coarse),
			tf:   market.M1,
		},
		{
			name: "nothing at or after start",
			feed: newFeed(fine, coarse),
			opts: func(o *Options) { o.Start = base.Add(10 * time.Hour) },
			tf:   market.M1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := testOptions()
			if tt.opts != nil {
				tt.opts(&o)
			}
			_, err := NewDriver(tt.feed, &scriptedSource{}, o).Run(context.Background())
			require.Error(t, err)

			var ferr *FeedError
			require.True(t, errors.As(err, &ferr), "got %T", err)
			assert.Equal(t, tt.tf, ferr.Timeframe)
			assert.Equal(t, "EURUSD", ferr.Symbol)
		})
	}
}

func TestDriver_ChartsRemoved(t *testing.T) {
	t.Parallel()

	for _, failing := range []bool{false, true} {
		t.Run(fmt.Sprintf("failing=%v", failing), func(t *testing.T) {
			dir := t.TempDir()
			fine, coarse := testSeries(300, 1.1, nil)

			src := &scriptedSource{}
			if failing {
				src.err = errors.New("bad response")
			}
			src.check = func(w Window) {
				require.Len(t, w.Charts, 2)
				for _, p := range w.Charts {
					assert.FileExists(t, p)
				}
			}

			res, err := NewDriver(newFeed(fine, coarse), src, testOptions(),
				WithCharts(&fileCharts{dir: dir})).Run(context.Background())
			require.NoError(t, err)
			require.NotEmpty(t, src.calls)
			assert.Len(t, res.DecisionLog[0].Context.Charts, 2)

			left, err := os.ReadDir(dir)
			require.NoError(t, err)
			assert.Empty(t, left)
		})
	}
}

func TestDriver_ChartFailureIsDecisionFailure(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	fine, coarse := testSeries(300, 1.1, nil)
	src := &scriptedSource{}

	res, err := NewDriver(newFeed(fine, coarse), src, testOptions(),
		WithCharts(&fileCharts{dir: dir, fail: market.M15})).Run(context.Background())
	require.NoError(t, err)

	assert.Empty(t, src.calls)
	assert.Equal(t, 3, res.DecisionFailures)

	left, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, left)
}

func TestDriver_SinkFailureDoesNotChangeResult(t *testing.T) {
	t.Parallel()

	fine, coarse := testSeries(300, 1.1010, map[int]func(*market.Candle){
		62: func(c *market.Candle) { c.Low = 1.0995 },
		70: func(c *market.Candle) { c.Low = 1.0940 },
	})
	script := []Decision{{Kind: BuyLimit, Entry: 1.1000, StopLoss: 1.0950, TakeProfit: 1.1100}}

	quiet, err := NewDriver(newFeed(fine, coarse), &scriptedSource{script: script}, testOptions()).
		Run(context.Background())
	require.NoError(t, err)

	broken := &recordingSink{err: errors.New("socket closed")}
	noisy, err := NewDriver(newFeed(fine, coarse), &scriptedSource{script: script}, testOptions(),
		WithSink(broken)).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, quiet.State, noisy.State)
	assert.Equal(t, len(broken.events), noisy.NotifyFailures)
	require.Len(t, noisy.State.Closed, 1)
	assert.Equal(t, sim.ExitStopLoss, noisy.State.Closed[0].Reason)
	assert.Equal(t, -500.0, noisy.State.Closed[0].ProfitLoss)
}

func TestDriver_ShutdownCancelsPendingOrders(t *testing.T) {
	t.Parallel()

	// Entry is never reached and the series ends before expiry.
	fine, coarse := testSeries(80, 1.1010, nil)
	src := &scriptedSource{script: []Decision{{Kind: BuyLimit, Entry: 1.0, StopLoss: 0.99, TakeProfit: 1.2}}}
	sink := &recordingSink{}

	res, err := NewDriver(newFeed(fine, coarse), src, testOptions(), WithSink(sink)).Run(context.Background())
	require.NoError(t, err)

	assert.Empty(t, res.State.Orders)
	last := sink.events[len(sink.events)-1]
	assert.Equal(t, sim.EventOrderCancelled, last.Kind)
	assert.Equal(t, sim.CancelShutdown, last.Reason)
	assert.Equal(t, minute(79), last.Time)
}

func TestDriver_CloseAtEnd(t *testing.T) {
	t.Parallel()

	fine, coarse := testSeries(80, 1.1010, map[int]func(*market.Candle){
		61: func(c *market.Candle) { c.Low = 1.0999 },
		79: func(c *market.Candle) { c.Close = 1.1030 },
	})
	script := []Decision{{Kind: BuyLimit, Entry: 1.1000, StopLoss: 1.0950, TakeProfit: 1.1100}}

	open, err := NewDriver(newFeed(fine, coarse), &scriptedSource{script: script}, testOptions()).
		Run(context.Background())
	require.NoError(t, err)
	assert.True(t, open.State.InPosition())
	assert.Empty(t, open.State.Closed)

	o := testOptions()
	o.CloseAtEnd = true
	closed, err := NewDriver(newFeed(fine, coarse), &scriptedSource{script: script}, o).
		Run(context.Background())
	require.NoError(t, err)
	require.Len(t, closed.State.Closed, 1)
	assert.Equal(t, sim.ExitEndOfData, closed.State.Closed[0].Reason)
	assert.Equal(t, 1.1030, closed.State.Closed[0].Exit)
	assert.False(t, closed.State.InPosition())
}

func TestDriver_DecideWhileArmed(t *testing.T) {
	t.Parallel()

	fine, coarse := testSeries(100, 1.1010, nil)
	script := []Decision{
		{Kind: BuyLimit, Entry: 1.0, StopLoss: 0.99, TakeProfit: 1.2},
		{Kind: SellLimit, Entry: 1.3, StopLoss: 1.31, TakeProfit: 1.2},
	}

	src := &scriptedSource{script: script}
	res, err := NewDriver(newFeed(fine, coarse), src, testOptions()).Run(context.Background())
	require.NoError(t, err)
	assert.Len(t, src.calls, 1)
	assert.Equal(t, 2, res.State.NextOrderID)

	o := testOptions()
	o.DecideWhileArmed = true
	src = &scriptedSource{script: script}
	res, err = NewDriver(newFeed(fine, coarse), src, o).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []time.Time{minute(60), minute(61), minute(62)}, src.calls)
	assert.Equal(t, 3, res.State.NextOrderID)
}

func TestDriver_ContextCancelled(t *testing.T) {
	t.Parallel()

	fine, coarse := testSeries(300, 1.1, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	src := &scriptedSource{check: func(Window) { cancel() }}
	_, err := NewDriver(newFeed(fine, coarse), src, testOptions()).Run(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, src.calls, 1)
}

func TestDriver_RequiresCollaborators(t *testing.T) {
	t.Parallel()

	_, err := NewDriver(nil, &scriptedSource{}, testOptions()).Run(context.Background())
	assert.EqualError(t, err, "backtest: feed is required")

	_, err = NewDriver(&mockFeed{}, nil, testOptions()).Run(context.Background())
	assert.EqualError(t, err, "backtest: signal source is required")

	o := testOptions()
	o.SkipCandles = 0
	_, err = NewDriver(&mockFeed{}, &scriptedSource{}, o).Run(context.Background())
	assert.Error(t, err)
}
