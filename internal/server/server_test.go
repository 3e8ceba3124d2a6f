package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/backtester/config"
	"github.com/rustyeddy/backtester/internal/app"
	"github.com/rustyeddy/backtester/report"
	"github.com/rustyeddy/backtester/sim"
)

type fakeRunner struct {
	started chan app.Collaborators
	release chan struct{}
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{started: make(chan app.Collaborators, 1), release: make(chan struct{})}
}

func (f *fakeRunner) run(ctx context.Context, cfg config.Config, c app.Collaborators, log zerolog.Logger) (app.Outcome, error) {
	f.started <- c
	select {
	case <-f.release:
	case <-ctx.Done():
		return app.Outcome{RunID: c.RunID}, ctx.Err()
	}
	sum := report.Summary{EndBalance: 10_100, NetProfitLoss: 100, TotalTrades: 2}
	for _, s := range c.Sinks {
		_ = s.Emit(ctx, sim.Event{Kind: sim.EventRunCompleted, Payload: sum})
	}
	return app.Outcome{
		RunID:  c.RunID,
		Report: report.Report{PerformanceSummary: sum},
		Paths:  report.Paths{Report: "reports/r.json", DecisionLog: "logs/l.json"},
	}, nil
}

func testServer(t *testing.T) (*Server, *fakeRunner) {
	t.Helper()
	cfg := config.Default()
	cfg.Signal.GeminiKey = "secret"
	cfg.Notify.Log = false
	f := newFakeRunner()
	s := New(cfg, zerolog.Nop()).WithRunFunc(f.run)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.Shutdown(ctx)
	})
	return s, f
}

func do(t *testing.T, s *Server, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, path, nil)
	} else {
		r = httptest.NewRequest(method, path, strings.NewReader(body))
		r.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, r)

	var out map[string]any
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	}
	return w, out
}

func TestHealth(t *testing.T) {
	s, _ := testServer(t)
	w, body := do(t, s, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", body["status"])
}

func TestConfigIsRedacted(t *testing.T) {
	s, _ := testServer(t)
	w, body := do(t, s, http.MethodGet, "/api/config", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "EUR_USD", body["pair"])
	sig := body["signal"].(map[string]any)
	assert.Equal(t, "***", sig["gemini_key"])
}

func TestPutConfig(t *testing.T) {
	s, _ := testServer(t)

	w, body := do(t, s, http.MethodPut, "/api/config", `{"pair":"GBP_USD","signal":{"gemini_key":"***"},"trade":{"lot_size":0.2}}`)
	require.Equal(t, http.StatusOK, w.Code, body)
	draft := s.Draft()
	assert.Equal(t, "GBP_USD", draft.Pair)
	assert.Equal(t, 0.2, draft.Trade.LotSize)
	assert.Equal(t, "secret", draft.Signal.GeminiKey)
	assert.Equal(t, 10_000.0, draft.Trade.InitialBalance)

	w, body = do(t, s, http.MethodPut, "/api/config", `{"trade":{"lot_size":0}}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, body["error"], "trade.lot_size")
	assert.Equal(t, 0.2, s.Draft().Trade.LotSize)

	w, _ = do(t, s, http.MethodPut, "/api/config", `{"pair":`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPutNotifyLevel(t *testing.T) {
	s, _ := testServer(t)

	w, body := do(t, s, http.MethodPut, "/api/notify-level", `{"level":3}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Debug", body["name"])
	assert.Equal(t, false, body["live"])
	assert.Equal(t, 3, s.Draft().Notify.Level)

	w, _ = do(t, s, http.MethodPut, "/api/notify-level", `{"level":7}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w, _ = do(t, s, http.MethodPut, "/api/notify-level", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRunLifecycle(t *testing.T) {
	s, f := testServer(t)

	w, _ := do(t, s, http.MethodGet, "/api/runs/last", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, body := do(t, s, http.MethodPost, "/api/runs", `{"pair":"USD_JPY","notify_level":2}`)
	require.Equal(t, http.StatusAccepted, w.Code, body)
	runID := body["run_id"].(string)
	require.NotEmpty(t, runID)

	var c app.Collaborators
	select {
	case c = <-f.started:
	case <-time.After(5 * time.Second):
		t.Fatal("run did not start")
	}
	assert.Equal(t, runID, c.RunID)
	require.NotNil(t, c.Notifier)
	assert.Equal(t, sim.LevelDetail, c.Notifier.Level())
	assert.Len(t, c.Sinks, 2)

	w, body = do(t, s, http.MethodPost, "/api/runs", "")
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, body["error"], "already running")

	w, body = do(t, s, http.MethodGet, "/api/status", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["running"])
	run := body["run"].(map[string]any)
	assert.Equal(t, runID, run["run_id"])
	assert.Equal(t, "USD_JPY", run["pair"])
	assert.Equal(t, "STARTING", run["phase"])

	w, body = do(t, s, http.MethodPut, "/api/notify-level", `{"level":0}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["live"])
	assert.Equal(t, sim.LevelAlways, c.Notifier.Level())

	close(f.release)
	s.Wait()

	w, body = do(t, s, http.MethodGet, "/api/runs/last", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, runID, body["run_id"])
	assert.Equal(t, "reports/r.json", body["report_path"])
	sum := body["summary"].(map[string]any)
	assert.Equal(t, 10_100.0, sum["end_balance"])

	_, body = do(t, s, http.MethodGet, "/api/status", "")
	assert.Equal(t, false, body["running"])
	assert.Equal(t, runID, body["last_run_id"])

	// The draft is untouched by per-run overrides.
	assert.Equal(t, "EUR_USD", s.Draft().Pair)

	w = httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `backtester_runs_total{status="completed"} 1`)
	assert.Contains(t, w.Body.String(), "backtester_last_run_end_balance 10100")
}

func TestRunRejectsInvalidOverride(t *testing.T) {
	s, _ := testServer(t)
	w, body := do(t, s, http.MethodPost, "/api/runs", `{"start_date":"July 1st"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, body["error"], "start_date")

	_, body = do(t, s, http.MethodGet, "/api/status", "")
	assert.Equal(t, false, body["running"])
}

func TestCancelRun(t *testing.T) {
	s, f := testServer(t)

	w, _ := do(t, s, http.MethodDelete, "/api/runs/current", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = do(t, s, http.MethodPost, "/api/runs", "")
	require.Equal(t, http.StatusAccepted, w.Code)
	<-f.started

	w, body := do(t, s, http.MethodDelete, "/api/runs/current", "")
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, "cancelling", body["status"])
	s.Wait()

	_, body = do(t, s, http.MethodGet, "/api/runs/last", "")
	assert.Contains(t, body["error"], "context canceled")
	assert.Nil(t, body["summary"])
}

func TestShutdownRefusesNewRuns(t *testing.T) {
	s, _ := testServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Shutdown(ctx))

	_, err := s.StartRun(RunRequest{})
	assert.ErrorIs(t, err, context.Canceled)
}
