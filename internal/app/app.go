// Package app wires the collaborators named by a Config and runs one
// backtest end to end: replay, reports, upload, journal and notifications.
package app

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/rustyeddy/backtester/backtest"
	"github.com/rustyeddy/backtester/config"
	"github.com/rustyeddy/backtester/internal/id"
	"github.com/rustyeddy/backtester/journal"
	"github.com/rustyeddy/backtester/market"
	"github.com/rustyeddy/backtester/notify"
	"github.com/rustyeddy/backtester/report"
	"github.com/rustyeddy/backtester/sim"
)

// Uploader copies written files somewhere durable and returns their keys.
type Uploader interface {
	Upload(ctx context.Context, files ...string) ([]string, error)
}

// Collaborators override what Run would otherwise build from the Config.
// Nil fields are built; Sinks are added next to the notifier.
type Collaborators struct {
	Feed     backtest.CandleFeed
	Signals  backtest.SignalSource
	Charts   backtest.ChartRenderer
	Journal  journal.Journal
	Uploader Uploader
	Notifier *notify.Notifier
	Sinks    []backtest.EventSink
	// Driver receives the driver before it starts, for phase observers.
	Driver func(*backtest.Driver)
	// RunID names the run; a new ULID when empty.
	RunID string
}

// Outcome is what a completed run produced.
type Outcome struct {
	RunID    string
	Result   backtest.Result
	Report   report.Report
	Paths    report.Paths
	OrgPath  string
	Uploaded []string
	Duration time.Duration
}

// Run executes one backtest for cfg. Every fatal error is announced with a
// run_failed event before it is returned; success ends with run_completed
// carrying the performance summary.
func Run(ctx context.Context, cfg config.Config, c Collaborators, log zerolog.Logger) (Outcome, error) {
	log = log.With().Str("component", "app").Logger()
	began := time.Now()
	out := Outcome{RunID: c.RunID}
	if out.RunID == "" {
		out.RunID = id.NewRunID()
	}
	log = log.With().Str("run_id", out.RunID).Logger()

	notifier := c.Notifier
	if notifier == nil {
		notifier = NewNotifier(cfg.Notify, log)
	}
	sink := backtest.MultiSink(append([]backtest.EventSink{notifier}, c.Sinks...))

	fail := func(err error) (Outcome, error) {
		log.Error().Err(err).Msg("run failed")
		// The caller's context may already be done; the failure still goes out.
		ev := sim.Event{Kind: sim.EventRunFailed, Level: sim.LevelAlways, Time: time.Now(), Text: err.Error()}
		if serr := sink.Emit(context.WithoutCancel(ctx), ev); serr != nil {
			log.Warn().Err(serr).Msg("run_failed not delivered")
		}
		return out, err
	}

	if err := cfg.Validate(); err != nil {
		return fail(fmt.Errorf("invalid config: %w", err))
	}
	opts, err := Options(cfg)
	if err != nil {
		return fail(err)
	}
	loc, _ := cfg.Location()

	var cleanup closers
	defer cleanup.Close()

	if c.Feed == nil {
		f, closeFeed, err := NewFeed(ctx, cfg, log)
		if err != nil {
			return fail(fmt.Errorf("feed: %w", err))
		}
		c.Feed = f
		cleanup = append(cleanup, closeFeed)
	}
	if c.Signals == nil {
		s, err := NewSignals(cfg, log)
		if err != nil {
			return fail(fmt.Errorf("signal: %w", err))
		}
		c.Signals = s
	}
	if c.Charts == nil {
		r, err := NewCharts(cfg, log)
		if err != nil {
			return fail(fmt.Errorf("chart: %w", err))
		}
		c.Charts = r
	}
	if c.Journal == nil {
		j, err := NewJournal(ctx, cfg.Journal)
		if err != nil {
			return fail(fmt.Errorf("journal: %w", err))
		}
		if j != nil {
			c.Journal = j
			cleanup = append(cleanup, j.Close)
		}
	}
	if c.Uploader == nil {
		u, err := NewUploader(ctx, cfg.S3)
		if err != nil {
			return fail(fmt.Errorf("s3: %w", err))
		}
		c.Uploader = u
	}

	if err := notifier.Send(ctx, "🚀 Backtest Dimulai", startMessage(cfg, out.RunID, notifier.Level())); err != nil {
		log.Warn().Err(err).Msg("start message not delivered")
	}

	driverOpts := []backtest.DriverOption{backtest.WithSink(sink), backtest.WithLogger(log)}
	if c.Charts != nil {
		driverOpts = append(driverOpts, backtest.WithCharts(c.Charts))
	}
	d := backtest.NewDriver(c.Feed, c.Signals, opts, driverOpts...)
	if c.Driver != nil {
		c.Driver(d)
	}

	log.Info().
		Str("pair", opts.Symbol).
		Time("start", opts.Start).
		Time("end", opts.End).
		Str("source", sourceName(cfg)).
		Msg("backtest starting")

	res, err := d.Run(ctx)
	if err != nil {
		return fail(err)
	}
	out.Result = res

	run := report.Run{
		ID:         out.RunID,
		Pair:       opts.Symbol,
		PromptFile: cfg.PromptFile,
		Start:      opts.Start,
		End:        opts.End,
		Location:   loc,
	}
	out.Report = report.Build(run, opts.InitialBalance, res)

	w := report.FileWriter{ReportsDir: cfg.Reports.ReportsDir, LogsDir: cfg.Reports.LogsDir}
	out.Paths, err = w.Write(out.Report, res.DecisionLog)
	if err != nil {
		return fail(err)
	}
	if cfg.Reports.Org {
		out.OrgPath = filepath.Join(cfg.Reports.ReportsDir, "report_"+out.RunID+".org")
		if err := report.WriteOrg(out.OrgPath, out.Report); err != nil {
			return fail(&backtest.PersistenceError{Path: out.OrgPath, Err: err})
		}
	}

	if c.Uploader != nil {
		keys, err := c.Uploader.Upload(ctx, out.Paths.Report, out.Paths.DecisionLog)
		out.Uploaded = keys
		if err != nil {
			log.Warn().Err(err).Msg("report upload failed")
		}
	}

	if c.Journal != nil {
		rec := journal.NewRunRecord(run, sourceName(cfg), opts.InitialBalance, out.Report.PerformanceSummary, time.Now())
		rec.ReportPath = out.Paths.Report
		rec.LogPath = out.Paths.DecisionLog
		trades := journal.TradeRecords(out.RunID, opts.Symbol, res.State.Closed)
		if err := journal.Record(ctx, c.Journal, rec, trades); err != nil {
			log.Warn().Err(err).Msg("journal write failed")
		}
	}

	out.Duration = time.Since(began)
	sum := out.Report.PerformanceSummary
	done := sim.Event{
		Kind:    sim.EventRunCompleted,
		Level:   sim.LevelAlways,
		Time:    time.Now(),
		Text:    out.Paths.Report,
		Payload: sum,
	}
	if err := sink.Emit(ctx, done); err != nil {
		log.Warn().Err(&backtest.NotificationError{Event: done.Kind, Err: err}).Msg("run_completed not delivered")
	}

	log.Info().
		Int("trades", sum.TotalTrades).
		Float64("end_balance", sum.EndBalance).
		Float64("net_pl", sum.NetProfitLoss).
		Int("ai_failures", sum.AIAnalysisFailures).
		Dur("took", out.Duration).
		Msg("backtest finished")
	return out, nil
}

func startMessage(cfg config.Config, runID string, level sim.Level) string {
	var b strings.Builder
	fmt.Fprintf(&b, "- Run: %s\n", runID)
	fmt.Fprintf(&b, "- Pair: %s\n", market.NormalizePair(cfg.Pair))
	fmt.Fprintf(&b, "- Periode: %s s/d %s (%s)\n", cfg.StartDate, cfg.EndDate, cfg.Timezone)
	fmt.Fprintf(&b, "- Sinyal: %s\n", sourceName(cfg))
	if cfg.Signal.Source == "llm" {
		fmt.Fprintf(&b, "- Prompt: %s\n", cfg.PromptFile)
	}
	fmt.Fprintf(&b, "- Notifikasi: %s", notify.LevelName(level))
	return b.String()
}
