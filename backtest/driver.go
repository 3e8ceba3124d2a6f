package backtest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/rustyeddy/backtester/internal/id"
	"github.com/rustyeddy/backtester/market"
	"github.com/rustyeddy/backtester/sim"
)

// Phase is the driver's coarse state, for observers.
type Phase int32

const (
	Scanning Phase = iota
	AwaitingDecision
	Armed
	InPosition
	Done
)

func (p Phase) String() string {
	switch p {
	case Scanning:
		return "SCANNING"
	case AwaitingDecision:
		return "AWAITING_DECISION"
	case Armed:
		return "ARMED"
	case InPosition:
		return "IN_POSITION"
	case Done:
		return "DONE"
	}
	return fmt.Sprintf("Phase(%d)", int32(p))
}

// Result is the final state of a completed replay.
type Result struct {
	State            sim.State
	DecisionLog      []DecisionRecord
	Decisions        int
	DecisionFailures int
	NotifyFailures   int

	// First and last fine candle times actually replayed.
	From time.Time
	To   time.Time
}

// Driver runs one backtest. It owns the simulation state for the duration
// of Run and is not safe for concurrent Runs.
type Driver struct {
	feed    CandleFeed
	signals SignalSource
	charts  ChartRenderer
	sink    EventSink
	opts    Options
	log     zerolog.Logger
	newID   func() string

	phase atomic.Int32
}

type DriverOption func(*Driver)

// WithCharts renders charts for every decision request.
func WithCharts(r ChartRenderer) DriverOption {
	return func(d *Driver) { d.charts = r }
}

func WithSink(s EventSink) DriverOption {
	return func(d *Driver) { d.sink = s }
}

func WithLogger(l zerolog.Logger) DriverOption {
	return func(d *Driver) { d.log = l.With().Str("component", "driver").Logger() }
}

// WithIDs overrides the decision record id generator.
func WithIDs(f func() string) DriverOption {
	return func(d *Driver) { d.newID = f }
}

func NewDriver(feed CandleFeed, signals SignalSource, opts Options, options ...DriverOption) *Driver {
	d := &Driver{
		feed:    feed,
		signals: signals,
		opts:    opts,
		log:     zerolog.Nop(),
		newID:   id.NewDecisionID,
	}
	for _, o := range options {
		o(d)
	}
	return d
}

func (d *Driver) Phase() Phase { return Phase(d.phase.Load()) }

func (d *Driver) setPhase(p Phase) {
	if old := Phase(d.phase.Swap(int32(p))); old != p {
		d.log.Debug().Str("from", old.String()).Str("to", p.String()).Msg("phase")
	}
}

// Run fetches both series and replays the fine series from the run start.
// Only a FeedError or context cancellation is returned as an error; decision
// and notification failures are counted in the Result.
func (d *Driver) Run(ctx context.Context) (Result, error) {
	if d.feed == nil {
		return Result{}, fmt.Errorf("backtest: feed is required")
	}
	if d.signals == nil {
		return Result{}, fmt.Errorf("backtest: signal source is required")
	}
	if err := d.opts.Validate(); err != nil {
		return Result{}, fmt.Errorf("backtest: %w", err)
	}

	d.setPhase(Scanning)
	defer d.setPhase(Done)

	fine, coarse, err := d.fetch(ctx)
	if err != nil {
		return Result{}, err
	}

	i := fine.IndexAtOrAfter(d.opts.Start)
	if i < 0 {
		return Result{}, &FeedError{
			Symbol:    d.opts.Symbol,
			Timeframe: d.opts.FineTF,
			Err:       fmt.Errorf("no candle at or after %s", d.opts.Start.Format(time.RFC3339)),
		}
	}

	var (
		o     = d.opts
		r     = o.Rules
		st    = sim.NewState(o.InitialBalance, o.LotSize, o.Spread)
		al    = market.NewAligner(fine, coarse)
		res   = Result{From: fine.Candles[i].Time}
		evs   []sim.Event
		total = fine.Len()
	)

	d.log.Info().
		Str("symbol", o.Symbol).
		Int("fine", fine.Len()).
		Int("coarse", coarse.Len()).
		Time("start", fine.Candles[i].Time).
		Msg("replay started")

	for i < total {
		if err := ctx.Err(); err != nil {
			res.State = st
			return res, fmt.Errorf("backtest: run cancelled: %w", err)
		}

		c := fine.Candles[i]
		now := c.Time
		res.To = now

		if st.InPosition() {
			st, evs = st.EvaluatePosition(c, now, r)
			d.emitAll(ctx, &res, evs)
		}
		if !st.InPosition() && st.HasPendingOrders() {
			st, evs = st.EvaluateOrders(c, now, r)
			d.emitAll(ctx, &res, evs)
		}
		d.trackState(st)

		if st.InPosition() || (st.HasPendingOrders() && !o.DecideWhileArmed) {
			i++
			continue
		}

		fineHist, coarseHist := al.Slices(i)
		if len(fineHist) < o.FineWindow || len(coarseHist) < o.CoarseWindow {
			i++
			continue
		}

		d.setPhase(AwaitingDecision)
		w := Window{
			Symbol:   o.Symbol,
			At:       now,
			FineTF:   o.FineTF,
			CoarseTF: o.CoarseTF,
			Fine:     market.Tail(fineHist, o.FineWindow),
			Coarse:   market.Tail(coarseHist, o.CoarseWindow),
		}

		dec, rec, err := d.decide(ctx, &res, w, fineHist, coarseHist)
		res.Decisions++
		res.DecisionLog = append(res.DecisionLog, rec)
		d.trackState(st)

		if err != nil {
			if ctx.Err() != nil {
				res.State = st
				return res, fmt.Errorf("backtest: run cancelled: %w", ctx.Err())
			}
			res.DecisionFailures++
			d.log.Warn().Err(err).Time("at", now).Msg("decision failed, skipping ahead")
			i += o.SkipCandles
			continue
		}

		if !dec.IsTrade() {
			i += o.SkipCandles
			continue
		}

		req, err := dec.OrderRequest()
		if err != nil {
			res.DecisionFailures++
			d.log.Warn().Err(err).Time("at", now).Msg("unusable decision, skipping ahead")
			i += o.SkipCandles
			continue
		}

		st, _, evs = st.Submit(req, now, w.Range())
		d.emitAll(ctx, &res, evs)
		d.trackState(st)
		i++
	}

	last := fine.Candles[total-1]
	st, evs = st.CancelAll(last.Time, sim.CancelShutdown)
	d.emitAll(ctx, &res, evs)
	if o.CloseAtEnd && st.InPosition() {
		st, evs = st.Close(last.Close, sim.ExitEndOfData, last.Time, r)
		d.emitAll(ctx, &res, evs)
	}

	res.State = st
	d.log.Info().
		Int("trades", len(st.Closed)).
		Float64("balance", st.Balance).
		Int("decisions", res.Decisions).
		Int("decision_failures", res.DecisionFailures).
		Msg("replay finished")
	return res, nil
}

// fetch loads both series concurrently over [Start-HistoryBuffer, End].
func (d *Driver) fetch(ctx context.Context) (fine, coarse market.Series, err error) {
	from := d.opts.Start.Add(-d.opts.HistoryBuffer)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var e error
		fine, e = d.fetchOne(gctx, d.opts.FineTF, from)
		return e
	})
	g.Go(func() error {
		var e error
		coarse, e = d.fetchOne(gctx, d.opts.CoarseTF, from)
		return e
	})
	if err = g.Wait(); err != nil {
		return market.Series{}, market.Series{}, err
	}
	return fine, coarse, nil
}

func (d *Driver) fetchOne(ctx context.Context, tf market.Timeframe, from time.Time) (market.Series, error) {
	s, err := d.feed.Fetch(ctx, d.opts.Symbol, tf, from, d.opts.End)
	if err == nil && s.Len() == 0 {
		err = errors.New("no candles returned")
	}
	if err == nil {
		err = s.Validate()
	}
	if err != nil {
		return market.Series{}, &FeedError{Symbol: d.opts.Symbol, Timeframe: tf, Err: err}
	}
	return s, nil
}

// decide renders charts, asks the signal source and builds the log record.
// Rendered charts are removed before it returns.
func (d *Driver) decide(ctx context.Context, res *Result, w Window, fineHist, coarseHist []market.Candle) (Decision, DecisionRecord, error) {
	rec := DecisionRecord{
		ID:        d.newID(),
		Timestamp: w.At,
		Status:    StatusFailure,
		Context: DecisionContext{
			Pair:            w.Symbol,
			FineTimeframe:   w.FineTF,
			CoarseTimeframe: w.CoarseTF,
			FineStart:       w.Fine[0].Time,
			FineEnd:         w.Fine[len(w.Fine)-1].Time,
			CoarseStart:     w.Coarse[0].Time,
			CoarseEnd:       w.Coarse[len(w.Coarse)-1].Time,
		},
	}

	fail := func(err error) (Decision, DecisionRecord, error) {
		derr := &DecisionError{At: w.At, Err: err}
		rec.Error = err.Error()
		return Decision{}, rec, derr
	}

	defer func() {
		for _, p := range w.Charts {
			if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
				d.log.Warn().Err(err).Str("path", p).Msg("chart cleanup")
			}
		}
	}()

	if d.charts != nil {
		base := fmt.Sprintf("%d", w.At.Unix())
		reqs := []ChartRequest{
			chartRequest(w.Symbol, w.FineTF, market.Tail(fineHist, d.opts.FineChart), "fine_"+base),
			chartRequest(w.Symbol, w.CoarseTF, market.Tail(coarseHist, d.opts.CoarseChart), "coarse_"+base),
		}
		for _, req := range reqs {
			if req.From.IsZero() {
				continue
			}
			p, err := d.charts.Render(ctx, req)
			if p != "" {
				w.Charts = append(w.Charts, p)
			}
			if err != nil {
				rec.Context.Charts = w.Charts
				return fail(fmt.Errorf("chart %s: %w", req.Timeframe, err))
			}
		}
		rec.Context.Charts = w.Charts
	}

	req := sim.Event{
		Kind:    sim.EventDecisionRequested,
		Level:   sim.LevelDebug,
		Time:    w.At,
		Payload: rec.Context,
	}
	if pp, ok := d.signals.(PromptPreviewer); ok {
		req.Text = pp.PromptPreview()
	}
	d.emit(ctx, res, req)

	dec, err := d.signals.Decide(ctx, w)
	rec.RawResponse = dec.Raw
	if err != nil {
		return fail(err)
	}

	rec.Status = StatusSuccess
	rec.Decision = &dec
	d.emit(ctx, res, sim.Event{
		Kind:    sim.EventDecisionReceived,
		Level:   sim.LevelDebug,
		Time:    w.At,
		Text:    dec.Raw,
		Reason:  dec.Kind.String(),
		Payload: dec,
	})
	return dec, rec, nil
}

func chartRequest(symbol string, tf market.Timeframe, cs []market.Candle, name string) ChartRequest {
	req := ChartRequest{Symbol: symbol, Timeframe: tf, Name: name}
	if len(cs) > 0 {
		req.From = cs[0].Time
		req.To = cs[len(cs)-1].Time
	}
	return req
}

func (d *Driver) trackState(st sim.State) {
	switch {
	case st.InPosition():
		d.setPhase(InPosition)
	case st.HasPendingOrders():
		d.setPhase(Armed)
	default:
		d.setPhase(Scanning)
	}
}

func (d *Driver) emitAll(ctx context.Context, res *Result, evs []sim.Event) {
	for _, ev := range evs {
		d.emit(ctx, res, ev)
	}
}

// emit delivers ev to the sink. Failures are logged and counted only.
func (d *Driver) emit(ctx context.Context, res *Result, ev sim.Event) {
	ev.Phase = d.Phase().String()
	d.logEvent(ev)
	if d.sink == nil {
		return
	}
	if err := d.sink.Emit(ctx, ev); err != nil {
		res.NotifyFailures++
		nerr := &NotificationError{Event: ev.Kind, Err: err}
		d.log.Warn().Err(nerr).Msg("event not delivered")
	}
}

func (d *Driver) logEvent(ev sim.Event) {
	var e *zerolog.Event
	switch ev.Level {
	case sim.LevelBrief:
		e = d.log.Info()
	case sim.LevelDebug:
		e = d.log.Trace()
	default:
		e = d.log.Debug()
	}
	e.Str("event", string(ev.Kind)).Time("at", ev.Time)
	if ev.OrderID != 0 {
		e.Int("order", ev.OrderID)
	}
	if ev.Kind == sim.EventPositionClosed {
		e.Float64("pnl", ev.ProfitLoss).Str("reason", ev.Reason)
	}
	e.Msg("event")
}
