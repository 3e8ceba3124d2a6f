// Package server is the HTTP control surface: edit the config draft, start
// a run, change the notification level, watch status and stream events.
package server

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/rustyeddy/backtester/backtest"
	"github.com/rustyeddy/backtester/config"
	"github.com/rustyeddy/backtester/internal/app"
	"github.com/rustyeddy/backtester/internal/id"
	"github.com/rustyeddy/backtester/internal/metrics"
	"github.com/rustyeddy/backtester/notify"
)

// RunFunc executes one backtest. app.Run in production.
type RunFunc func(ctx context.Context, cfg config.Config, c app.Collaborators, log zerolog.Logger) (app.Outcome, error)

// ErrRunning is returned when a run is requested while another is active.
var ErrRunning = errors.New("a backtest is already running")

type Server struct {
	engine  *gin.Engine
	srv     *http.Server
	log     zerolog.Logger
	hub     *notify.Hub
	metrics *metrics.Metrics
	run     RunFunc
	// Base is copied into every run; tests put fakes here.
	Base app.Collaborators

	wg sync.WaitGroup

	mu       sync.Mutex
	draft    config.Config
	active   *activeRun
	last     *RunResult
	shutdown context.Context
	stop     context.CancelFunc
}

type activeRun struct {
	id       string
	pair     string
	started  time.Time
	cancel   context.CancelFunc
	notifier *notify.Notifier
	driver   *backtest.Driver
}

// New builds the server around an initial config draft.
func New(cfg config.Config, log zerolog.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(loggerMiddleware(log))

	ctx, stop := context.WithCancel(context.Background())
	s := &Server{
		engine:   engine,
		log:      log.With().Str("component", "server").Logger(),
		hub:      notify.NewHub(log),
		metrics:  metrics.New(),
		run:      app.Run,
		draft:    cfg,
		shutdown: ctx,
		stop:     stop,
		srv: &http.Server{
			Addr:              cfg.Server.Addr,
			Handler:           engine,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
	s.setupRoutes()
	return s
}

// WithRunFunc swaps the run implementation.
func (s *Server) WithRunFunc(f RunFunc) *Server {
	s.run = f
	return s
}

func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) Metrics() *metrics.Metrics { return s.metrics }

func (s *Server) setupRoutes() {
	api := s.engine.Group("/api")
	{
		api.GET("/config", s.getConfig)
		api.PUT("/config", s.putConfig)
		api.PUT("/notify-level", s.putNotifyLevel)
		api.POST("/runs", s.postRun)
		api.DELETE("/runs/current", s.cancelRun)
		api.GET("/runs/last", s.getLastRun)
		api.GET("/status", s.getStatus)
	}

	s.engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	s.engine.GET("/ws", gin.WrapH(s.hub))
	s.engine.GET("/metrics", gin.WrapH(s.metrics.Handler()))
}

// Start serves until Shutdown.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.srv.Addr).Msg("control server listening")
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown cancels an active run, waits for it to finish and stops serving.
func (s *Server) Shutdown(ctx context.Context) error {
	s.stop()
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
	s.hub.Close()
	return s.srv.Shutdown(ctx)
}

// Wait blocks until no run is active.
func (s *Server) Wait() { s.wg.Wait() }

// Draft returns a copy of the current config draft.
func (s *Server) Draft() config.Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.draft
}

// StartRun snapshots the draft with overrides applied and starts a run in
// the background. It returns ErrRunning if one is active.
func (s *Server) StartRun(overrides RunRequest) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active != nil {
		return "", ErrRunning
	}
	if err := s.shutdown.Err(); err != nil {
		return "", err
	}

	cfg := overrides.apply(s.draft)
	if err := cfg.Validate(); err != nil {
		return "", &invalidError{err}
	}

	runID := id.NewRunID()
	ctx, cancel := context.WithCancel(s.shutdown)
	notifier := app.NewNotifier(cfg.Notify, s.log)
	a := &activeRun{
		id:       runID,
		pair:     cfg.Pair,
		started:  time.Now(),
		cancel:   cancel,
		notifier: notifier,
	}
	s.active = a

	c := s.Base
	c.RunID = runID
	c.Notifier = notifier
	c.Sinks = append(append([]backtest.EventSink{}, c.Sinks...), s.hub, s.metrics.ForPair(cfg.Pair))
	c.Driver = func(d *backtest.Driver) {
		s.mu.Lock()
		a.driver = d
		s.mu.Unlock()
	}

	s.metrics.RunStarted()
	s.wg.Add(1)
	go s.execute(ctx, cfg, c, a)
	return runID, nil
}

func (s *Server) execute(ctx context.Context, cfg config.Config, c app.Collaborators, a *activeRun) {
	defer s.wg.Done()
	defer a.cancel()

	out, err := s.run(ctx, cfg, c, s.log)
	res := newRunResult(a, cfg, out, err)

	s.mu.Lock()
	s.active = nil
	s.last = &res
	s.mu.Unlock()
}

type invalidError struct{ err error }

func (e *invalidError) Error() string { return e.err.Error() }
func (e *invalidError) Unwrap() error { return e.err }

func loggerMiddleware(log zerolog.Logger) gin.HandlerFunc {
	log = log.With().Str("component", "http").Logger()
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		log.Debug().
			Str("method", c.Request.Method).
			Str("path", path).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Msg("request")
	}
}
