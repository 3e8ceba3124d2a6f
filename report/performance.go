package report

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"github.com/rustyeddy/backtester/sim"
)

// ProfitFactor is gross profit over gross loss. With no losing P/L it is
// Infinite, which serialises as JSON null.
type ProfitFactor struct {
	Value    float64
	Infinite bool
}

func (p ProfitFactor) Float() float64 {
	if p.Infinite {
		return math.Inf(1)
	}
	return p.Value
}

func (p ProfitFactor) String() string {
	if p.Infinite {
		return "inf"
	}
	return fmt.Sprintf("%.2f", p.Value)
}

func (p ProfitFactor) MarshalJSON() ([]byte, error) {
	if p.Infinite {
		return []byte("null"), nil
	}
	return json.Marshal(p.Value)
}

func (p *ProfitFactor) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*p = ProfitFactor{Infinite: true}
		return nil
	}
	var v float64
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*p = ProfitFactor{Value: v}
	return nil
}

// Summary is the performance_summary section of a report.
type Summary struct {
	EndBalance           float64      `json:"end_balance"`
	NetProfitLoss        float64      `json:"net_profit_loss"`
	NetProfitLossPercent float64      `json:"net_profit_loss_percent"`
	TotalTrades          int          `json:"total_trades"`
	WinningTrades        int          `json:"winning_trades"`
	LosingTrades         int          `json:"losing_trades"`
	WinRatePercent       float64      `json:"win_rate_percent"`
	ProfitFactor         ProfitFactor `json:"profit_factor"`
	// MaxDrawdownPercent is not computed and always 0.
	MaxDrawdownPercent float64 `json:"max_drawdown_percent"`
	AIAnalysisFailures int     `json:"ai_analysis_failures"`
}

// Summarize converts closed trades into summary statistics. Trades with
// P/L <= 0 count as losers.
func Summarize(initialBalance, finalBalance float64, trades []sim.ClosedTrade) Summary {
	s := Summary{EndBalance: round2(finalBalance)}
	if len(trades) == 0 {
		return s
	}

	var (
		grossProfit = decimal.Zero
		grossLoss   = decimal.Zero
	)
	for _, t := range trades {
		pl := decimal.NewFromFloat(t.ProfitLoss)
		if t.ProfitLoss > 0 {
			s.WinningTrades++
			grossProfit = grossProfit.Add(pl)
		} else {
			s.LosingTrades++
			grossLoss = grossLoss.Add(pl)
		}
	}
	grossLoss = grossLoss.Abs()

	net := decimal.NewFromFloat(finalBalance).Sub(decimal.NewFromFloat(initialBalance))
	hundred := decimal.NewFromInt(100)

	s.TotalTrades = len(trades)
	s.NetProfitLoss = net.Round(2).InexactFloat64()
	if initialBalance != 0 {
		s.NetProfitLossPercent = net.Div(decimal.NewFromFloat(initialBalance)).Mul(hundred).Round(2).InexactFloat64()
	}
	s.WinRatePercent = decimal.NewFromInt(int64(s.WinningTrades)).
		Div(decimal.NewFromInt(int64(s.TotalTrades))).
		Mul(hundred).Round(2).InexactFloat64()

	if grossLoss.IsPositive() {
		s.ProfitFactor = ProfitFactor{Value: grossProfit.Div(grossLoss).Round(2).InexactFloat64()}
	} else {
		s.ProfitFactor = ProfitFactor{Infinite: true}
	}
	return s
}

func round2(x float64) float64 {
	return decimal.NewFromFloat(x).Round(2).InexactFloat64()
}
