package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/rustyeddy/backtester/config"
	"github.com/rustyeddy/backtester/internal/app"
	"github.com/rustyeddy/backtester/notify"
	"github.com/rustyeddy/backtester/report"
	"github.com/rustyeddy/backtester/sim"
)

// RunRequest overrides draft fields for one run. Empty fields keep the draft.
type RunRequest struct {
	Pair        string `json:"pair"`
	PromptFile  string `json:"prompt_file"`
	StartDate   string `json:"start_date"`
	EndDate     string `json:"end_date"`
	NotifyLevel *int   `json:"notify_level"`
}

func (r RunRequest) apply(cfg config.Config) config.Config {
	if r.Pair != "" {
		cfg.Pair = r.Pair
	}
	if r.PromptFile != "" {
		cfg.PromptFile = r.PromptFile
	}
	if r.StartDate != "" {
		cfg.StartDate = r.StartDate
	}
	if r.EndDate != "" {
		cfg.EndDate = r.EndDate
	}
	if r.NotifyLevel != nil {
		cfg.Notify.Level = *r.NotifyLevel
	}
	return cfg
}

// RunResult is the outcome of the last finished run.
type RunResult struct {
	RunID      string          `json:"run_id"`
	Pair       string          `json:"pair"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at"`
	Error      string          `json:"error,omitempty"`
	Summary    *report.Summary `json:"summary,omitempty"`
	ReportPath string          `json:"report_path,omitempty"`
	LogPath    string          `json:"log_path,omitempty"`
	Decisions  int             `json:"decisions"`
}

func newRunResult(a *activeRun, cfg config.Config, out app.Outcome, err error) RunResult {
	r := RunResult{
		RunID:      a.id,
		Pair:       cfg.Pair,
		StartedAt:  a.started,
		FinishedAt: time.Now(),
		Decisions:  out.Result.Decisions,
	}
	if err != nil {
		r.Error = err.Error()
		return r
	}
	sum := out.Report.PerformanceSummary
	r.Summary = &sum
	r.ReportPath = out.Paths.Report
	r.LogPath = out.Paths.DecisionLog
	return r
}

func (s *Server) getConfig(c *gin.Context) {
	c.JSON(http.StatusOK, s.Draft().Redacted())
}

// putConfig merges the body over the draft. Redacted secrets sent back
// unchanged keep their stored values.
func (s *Server) putConfig(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.draft.Redacted()
	if err := c.ShouldBindJSON(&next); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	next = s.draft.MergeSecrets(next)
	if err := next.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.draft = next
	c.JSON(http.StatusOK, next.Redacted())
}

type levelRequest struct {
	Level *int `json:"level"`
}

// putNotifyLevel changes the draft level and, if a run is active, its live
// notifier.
func (s *Server) putNotifyLevel(c *gin.Context) {
	var req levelRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Level == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "body must be {\"level\": 0..3}"})
		return
	}
	lvl, err := notify.ParseLevel(*req.Level)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	s.mu.Lock()
	s.draft.Notify.Level = int(lvl)
	live := s.active != nil
	if live {
		s.active.notifier.SetLevel(lvl)
	}
	s.mu.Unlock()

	c.JSON(http.StatusOK, gin.H{"level": int(lvl), "name": notify.LevelName(lvl), "live": live})
}

func (s *Server) postRun(c *gin.Context) {
	var req RunRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	runID, err := s.StartRun(req)
	var invalid *invalidError
	switch {
	case errors.Is(err, ErrRunning):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	case errors.As(err, &invalid):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	case err != nil:
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"run_id": runID, "status": "started"})
}

func (s *Server) cancelRun(c *gin.Context) {
	s.mu.Lock()
	a := s.active
	s.mu.Unlock()
	if a == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no backtest is running"})
		return
	}
	a.cancel()
	c.JSON(http.StatusAccepted, gin.H{"run_id": a.id, "status": "cancelling"})
}

func (s *Server) getLastRun(c *gin.Context) {
	s.mu.Lock()
	last := s.last
	s.mu.Unlock()
	if last == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no backtest has finished yet"})
		return
	}
	c.JSON(http.StatusOK, last)
}

func (s *Server) getStatus(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	lvl := s.draft.Notify.Level
	out := gin.H{
		"running":      s.active != nil,
		"notify_level": lvl,
		"notify_name":  notify.LevelName(sim.Level(lvl)),
		"ws_clients":   s.hub.ClientCount(),
	}
	if a := s.active; a != nil {
		phase := "STARTING"
		if a.driver != nil {
			phase = a.driver.Phase().String()
		}
		out["run"] = gin.H{
			"run_id":     a.id,
			"pair":       a.pair,
			"started_at": a.started,
			"phase":      phase,
			"elapsed":    time.Since(a.started).Round(time.Second).String(),
		}
	}
	if s.last != nil {
		out["last_run_id"] = s.last.RunID
	}
	c.JSON(http.StatusOK, out)
}
