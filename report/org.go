package report

import (
	"bytes"
	"os"
	"text/template"
)

// WriteOrg renders r as an org-mode entry into path.
func WriteOrg(path string, r Report) error {
	b, err := RenderOrg(r)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}

func RenderOrg(r Report) ([]byte, error) {
	t, err := template.New("report").Parse(orgTemplate)
	if err != nil {
		return nil, err
	}
	buf := new(bytes.Buffer)
	if err := t.Execute(buf, r); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

const orgTemplate = `
* BACKTEST: {{.Metadata.Pair}} {{if .Metadata.PromptFile}}{{.Metadata.PromptFile}}{{else}}(prompt?){{end}}
:PROPERTIES:
:RUN_ID:      {{.Metadata.RunID}}
:PAIR:        {{.Metadata.Pair}}
:PROMPT:      {{.Metadata.PromptFile}}
:START_DATE:  {{.Metadata.StartDate}}
:END_DATE:    {{.Metadata.EndDate}}
:START_BAL:   {{printf "%.2f" .Metadata.InitialBalance}}
:END_BAL:     {{printf "%.2f" .PerformanceSummary.EndBalance}}
:NET_PL:      {{printf "%.2f" .PerformanceSummary.NetProfitLoss}}
:RETURN_PCT:  {{printf "%.2f" .PerformanceSummary.NetProfitLossPercent}}
:TRADES:      {{.PerformanceSummary.TotalTrades}}
:WINS:        {{.PerformanceSummary.WinningTrades}}
:LOSSES:      {{.PerformanceSummary.LosingTrades}}
:WIN_RATE:    {{printf "%.2f" .PerformanceSummary.WinRatePercent}}
:PROFIT_FAC:  {{.PerformanceSummary.ProfitFactor}}
:FAILURES:    {{.PerformanceSummary.AIAnalysisFailures}}
:END:

** Performance Summary
- Net P/L:          *{{printf "%.2f" .PerformanceSummary.NetProfitLoss}}*
- Return:           *{{printf "%.2f" .PerformanceSummary.NetProfitLossPercent}}%*
- Max Drawdown:     *0.00 (not computed)*
- Win Rate:         *{{printf "%.2f" .PerformanceSummary.WinRatePercent}}%*
- Profit Factor:    *{{.PerformanceSummary.ProfitFactor}}*

** Trade Distribution
| Outcome | Count |
|---------+-------|
| Wins    | {{.PerformanceSummary.WinningTrades}} |
| Losses  | {{.PerformanceSummary.LosingTrades}} |
| Total   | {{.PerformanceSummary.TotalTrades}} |

{{- if .Trades }}

** Trades
| # | Dir | Entry | Exit | P/L | Reason | Opened | Closed |
|---+-----+-------+------+-----+--------+--------+--------|
{{- range .Trades }}
| {{.TradeID}} | {{.Direction}} | {{printf "%.5f" .EntryPrice}} | {{printf "%.5f" .ExitPrice}} | {{printf "%.2f" .ProfitLoss}} | {{.ExitReason}} | {{.EntryTime}} | {{.ExitTime}} |
{{- end }}
{{- end }}
`
