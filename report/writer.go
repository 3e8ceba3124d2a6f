package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rustyeddy/backtester/backtest"
)

// Paths are the files written for one run.
type Paths struct {
	Report      string
	DecisionLog string
}

// FileWriter writes report_<run_id>.json into ReportsDir and
// log-<run_id>.json into LogsDir.
type FileWriter struct {
	ReportsDir string
	LogsDir    string
}

func (w FileWriter) Paths(runID string) Paths {
	return Paths{
		Report:      filepath.Join(w.ReportsDir, "report_"+runID+".json"),
		DecisionLog: filepath.Join(w.LogsDir, "log-"+runID+".json"),
	}
}

// Write persists both documents. Any failure is a *backtest.PersistenceError.
func (w FileWriter) Write(rep Report, log []backtest.DecisionRecord) (Paths, error) {
	if rep.Metadata.RunID == "" {
		return Paths{}, &backtest.PersistenceError{Err: fmt.Errorf("report has no run id")}
	}
	if log == nil {
		log = []backtest.DecisionRecord{}
	}
	if rep.Trades == nil {
		rep.Trades = []Trade{}
	}

	p := w.Paths(rep.Metadata.RunID)
	if err := writeJSON(p.Report, rep); err != nil {
		return p, err
	}
	if err := writeJSON(p.DecisionLog, log); err != nil {
		return p, err
	}
	return p, nil
}

func writeJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return &backtest.PersistenceError{Path: path, Err: err}
	}
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return &backtest.PersistenceError{Path: path, Err: err}
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return &backtest.PersistenceError{Path: path, Err: err}
	}
	return nil
}
