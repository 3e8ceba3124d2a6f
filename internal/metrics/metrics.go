// Package metrics exposes prometheus counters fed from engine events.
package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rustyeddy/backtester/report"
	"github.com/rustyeddy/backtester/sim"
)

// Metrics is an EventSink that counts what a run does. Each instance owns
// its registry so tests and multiple servers do not collide.
type Metrics struct {
	reg *prometheus.Registry

	EventsTotal    *prometheus.CounterVec
	TradesTotal    *prometheus.CounterVec
	ProfitLoss     *prometheus.HistogramVec
	DecisionsTotal *prometheus.CounterVec
	RunsTotal      *prometheus.CounterVec
	RunInProgress  prometheus.Gauge
	LastEndBalance prometheus.Gauge
	LastNetPL      prometheus.Gauge
	LastWinRate    prometheus.Gauge
}

func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		EventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "backtester_events_total", Help: "Engine events emitted"},
			[]string{"kind"},
		),
		TradesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "backtester_trades_closed_total", Help: "Positions closed"},
			[]string{"pair", "direction", "reason"},
		),
		ProfitLoss: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "backtester_trade_profit_loss",
				Help:    "Profit or loss of closed positions in account currency",
				Buckets: []float64{-500, -200, -100, -50, -20, 0, 20, 50, 100, 200, 500},
			},
			[]string{"pair"},
		),
		DecisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "backtester_decisions_total", Help: "Signal source answers by kind"},
			[]string{"kind"},
		),
		RunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "backtester_runs_total", Help: "Finished runs by outcome"},
			[]string{"status"},
		),
		RunInProgress: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "backtester_run_in_progress", Help: "1 while a backtest is running",
		}),
		LastEndBalance: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "backtester_last_run_end_balance", Help: "End balance of the last completed run",
		}),
		LastNetPL: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "backtester_last_run_net_profit_loss", Help: "Net P/L of the last completed run",
		}),
		LastWinRate: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "backtester_last_run_win_rate_percent", Help: "Win rate of the last completed run",
		}),
	}
	m.reg.MustRegister(
		m.EventsTotal, m.TradesTotal, m.ProfitLoss, m.DecisionsTotal,
		m.RunsTotal, m.RunInProgress, m.LastEndBalance, m.LastNetPL, m.LastWinRate,
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// Handler serves the registry in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

// RunStarted marks a run in progress. The matching run_completed or
// run_failed event clears it.
func (m *Metrics) RunStarted() { m.RunInProgress.Set(1) }

// ForPair returns a sink that labels trade metrics with pair.
func (m *Metrics) ForPair(pair string) *Sink { return &Sink{m: m, pair: pair} }

// Sink adapts Metrics to the engine's EventSink for one pair.
type Sink struct {
	m    *Metrics
	pair string
}

func (s *Sink) Emit(ctx context.Context, ev sim.Event) error {
	m := s.m
	m.EventsTotal.WithLabelValues(string(ev.Kind)).Inc()

	switch ev.Kind {
	case sim.EventPositionClosed:
		m.TradesTotal.WithLabelValues(s.pair, ev.Direction.String(), ev.Reason).Inc()
		m.ProfitLoss.WithLabelValues(s.pair).Observe(ev.ProfitLoss)
	case sim.EventDecisionReceived:
		m.DecisionsTotal.WithLabelValues(ev.Reason).Inc()
	case sim.EventRunFailed:
		m.RunsTotal.WithLabelValues("failed").Inc()
		m.RunInProgress.Set(0)
	case sim.EventRunCompleted:
		m.RunsTotal.WithLabelValues("completed").Inc()
		m.RunInProgress.Set(0)
		if sum, ok := ev.Payload.(report.Summary); ok {
			m.LastEndBalance.Set(sum.EndBalance)
			m.LastNetPL.Set(sum.NetProfitLoss)
			m.LastWinRate.Set(sum.WinRatePercent)
		}
	}
	return nil
}
