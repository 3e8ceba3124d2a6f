package report

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/backtester/backtest"
	"github.com/rustyeddy/backtester/sim"
)

func jakarta(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Asia/Jakarta")
	require.NoError(t, err)
	return loc
}

func sampleResult() backtest.Result {
	entry := time.Date(2025, 7, 7, 2, 30, 0, 0, time.UTC)
	st := sim.NewState(11_000, 1, 0)
	st.Closed = []sim.ClosedTrade{{
		TradeID:    1,
		Direction:  sim.Buy,
		Entry:      1.1,
		Exit:       1.11,
		EntryTime:  entry,
		ExitTime:   entry.Add(40 * time.Minute),
		StopLoss:   1.095,
		TakeProfit: 1.11,
		ProfitLoss: 1000,
		Reason:     sim.ExitTakeProfit,
		Window:     sim.TimeRange{Start: entry.Add(-2 * time.Hour), End: entry.Add(-5 * time.Minute)},
	}}
	return backtest.Result{State: st, DecisionFailures: 2}
}

func sampleRun(t *testing.T) Run {
	loc := jakarta(t)
	return Run{
		ID:         "01J0TEST",
		Pair:       "EURUSD",
		PromptFile: "scalping.txt",
		Start:      time.Date(2025, 7, 7, 0, 0, 0, 0, loc),
		End:        time.Date(2025, 7, 8, 0, 0, 0, 0, loc),
		Location:   loc,
	}
}

func TestBuild(t *testing.T) {
	t.Parallel()

	r := Build(sampleRun(t), 10_000, sampleResult())

	assert.Equal(t, "01J0TEST", r.Metadata.RunID)
	assert.Equal(t, "07 Jul 2025 00:00 WIB", r.Metadata.StartDate)
	assert.Equal(t, 10_000.0, r.Metadata.InitialBalance)

	assert.Equal(t, 2, r.PerformanceSummary.AIAnalysisFailures)
	assert.Equal(t, 11_000.0, r.PerformanceSummary.EndBalance)
	assert.True(t, r.PerformanceSummary.ProfitFactor.Infinite)

	require.Len(t, r.Trades, 1)
	tr := r.Trades[0]
	assert.Equal(t, "07 Jul 2025 09:30 WIB", tr.EntryTime)
	assert.Equal(t, "07 Jul 2025 10:10 WIB", tr.ExitTime)
	assert.Equal(t, "07 Jul 2025 07:30 WIB", tr.AnalysisSnapshotRange.StartTime)
	assert.Equal(t, "07 Jul 2025 09:25 WIB", tr.AnalysisSnapshotRange.EndTime)
}

func TestReportJSONFieldNames(t *testing.T) {
	t.Parallel()

	b, err := json.Marshal(Build(sampleRun(t), 10_000, sampleResult()))
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(b, &doc))

	meta := doc["metadata"].(map[string]any)
	for _, k := range []string{"run_id", "pair", "prompt_file", "start_date", "end_date", "initial_balance"} {
		assert.Contains(t, meta, k)
	}

	sum := doc["performance_summary"].(map[string]any)
	for _, k := range []string{
		"end_balance", "net_profit_loss", "net_profit_loss_percent", "total_trades",
		"winning_trades", "losing_trades", "win_rate_percent", "profit_factor",
		"max_drawdown_percent", "ai_analysis_failures",
	} {
		assert.Contains(t, sum, k)
	}
	assert.Nil(t, sum["profit_factor"])

	tr := doc["trades"].([]any)[0].(map[string]any)
	for _, k := range []string{
		"trade_id", "direction", "entry_price", "exit_price", "stop_loss", "take_profit",
		"entry_time", "exit_time", "profit_loss", "exit_reason", "analysis_snapshot_range",
	} {
		assert.Contains(t, tr, k)
	}
	assert.Equal(t, "BUY", tr["direction"])
	assert.Equal(t, "TP_HIT", tr["exit_reason"])
}

func TestFileWriter(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	w := FileWriter{ReportsDir: filepath.Join(dir, "reports"), LogsDir: filepath.Join(dir, "logs")}

	rep := Build(sampleRun(t), 10_000, sampleResult())
	log := []backtest.DecisionRecord{{
		ID:          "d1",
		Timestamp:   time.Date(2025, 7, 7, 2, 0, 0, 0, time.UTC),
		RawResponse: "NO_TRADE",
		Status:      backtest.StatusSuccess,
		Decision:    &backtest.Decision{Kind: backtest.NoTrade},
	}}

	p, err := w.Write(rep, log)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "reports", "report_01J0TEST.json"), p.Report)
	assert.Equal(t, filepath.Join(dir, "logs", "log-01J0TEST.json"), p.DecisionLog)

	got, err := Load(p.Report)
	require.NoError(t, err)
	assert.Equal(t, rep, got)

	recs, err := LoadDecisionLog(p.DecisionLog)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "d1", recs[0].ID)
	assert.Equal(t, backtest.StatusSuccess, recs[0].Status)

	raw, err := os.ReadFile(p.DecisionLog)
	require.NoError(t, err)
	for _, k := range []string{`"id"`, `"timestamp"`, `"context"`, `"raw_response"`, `"status"`} {
		assert.Contains(t, string(raw), k)
	}
}

func TestFileWriterFailureIsPersistenceError(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))

	w := FileWriter{ReportsDir: filepath.Join(blocker, "reports"), LogsDir: dir}
	_, err := w.Write(Build(sampleRun(t), 10_000, sampleResult()), nil)
	require.Error(t, err)

	var perr *backtest.PersistenceError
	assert.True(t, errors.As(err, &perr))
}

func TestPrint(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	Print(&buf, Build(sampleRun(t), 10_000, sampleResult()))

	out := buf.String()
	assert.Contains(t, out, "Run ID:        01J0TEST")
	assert.Contains(t, out, "Trades:        1")
	assert.Contains(t, out, "Profit Factor: inf")
	assert.Contains(t, out, "TP_HIT")
}

func TestWriteOrg(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "run.org")
	require.NoError(t, WriteOrg(path, Build(sampleRun(t), 10_000, sampleResult())))

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	out := string(b)
	assert.Contains(t, out, "* BACKTEST: EURUSD scalping.txt")
	assert.Contains(t, out, ":RUN_ID:      01J0TEST")
	assert.Contains(t, out, ":PROFIT_FAC:  inf")
	assert.Contains(t, out, "| 1 | BUY | 1.10000 | 1.11000 | 1000.00 | TP_HIT |")
}

type fakeUploader struct {
	keys   []string
	bodies []string
	err    error
}

func (f *fakeUploader) Upload(ctx context.Context, in *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	b, _ := io.ReadAll(in.Body)
	f.keys = append(f.keys, *in.Key)
	f.bodies = append(f.bodies, string(b))
	return &manager.UploadOutput{}, nil
}

func TestS3Uploader(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	w := FileWriter{ReportsDir: filepath.Join(dir, "reports"), LogsDir: filepath.Join(dir, "logs")}
	p, err := w.Write(Build(sampleRun(t), 10_000, sampleResult()), nil)
	require.NoError(t, err)

	fake := &fakeUploader{}
	u := &S3Uploader{up: fake, bucket: "bt", prefix: "runs"}

	keys, err := u.Upload(context.Background(), p.Report, p.DecisionLog)
	require.NoError(t, err)
	assert.Equal(t, []string{"runs/reports/report_01J0TEST.json", "runs/logs/log-01J0TEST.json"}, keys)
	assert.Equal(t, fake.keys, keys)
	assert.Equal(t, "[]", fake.bodies[1])

	fake.err = errors.New("denied")
	_, err = u.Upload(context.Background(), p.Report)
	assert.ErrorContains(t, err, "denied")

	_, err = NewS3Uploader(context.Background(), S3Config{Region: "us-east-1"})
	assert.Error(t, err)
}
