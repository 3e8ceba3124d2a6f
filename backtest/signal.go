package backtest

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rustyeddy/backtester/market"
	"github.com/rustyeddy/backtester/sim"
)

// DecisionKind is the outcome class of one decision request.
type DecisionKind int8

const (
	NoTrade DecisionKind = iota
	BuyLimit
	SellLimit
)

func (k DecisionKind) String() string {
	switch k {
	case BuyLimit:
		return "BUY_LIMIT"
	case SellLimit:
		return "SELL_LIMIT"
	}
	return "NO_TRADE"
}

func ParseDecisionKind(s string) (DecisionKind, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "NO_TRADE", "NO TRADE", "NONE", "":
		return NoTrade, nil
	}
	ok, err := sim.ParseOrderKind(s)
	if err != nil {
		return NoTrade, err
	}
	if ok == sim.SellLimit {
		return SellLimit, nil
	}
	return BuyLimit, nil
}

func (k DecisionKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

func (k *DecisionKind) UnmarshalText(b []byte) error {
	v, err := ParseDecisionKind(string(b))
	if err != nil {
		return err
	}
	*k = v
	return nil
}

// Decision is what a SignalSource returns for one window. Price levels are
// only meaningful when Kind is not NoTrade.
type Decision struct {
	Kind       DecisionKind `json:"kind"`
	Entry      float64      `json:"entry_price,omitempty"`
	StopLoss   float64      `json:"stop_loss,omitempty"`
	TakeProfit float64      `json:"take_profit,omitempty"`

	// Raw is the unparsed response the decision was derived from.
	Raw string `json:"-"`
}

func (d Decision) IsTrade() bool { return d.Kind == BuyLimit || d.Kind == SellLimit }

// OrderRequest converts a concrete decision into an order for the book.
func (d Decision) OrderRequest() (sim.OrderRequest, error) {
	var kind sim.OrderKind
	switch d.Kind {
	case BuyLimit:
		kind = sim.BuyLimit
	case SellLimit:
		kind = sim.SellLimit
	default:
		return sim.OrderRequest{}, fmt.Errorf("decision %s has no order", d.Kind)
	}
	req := sim.OrderRequest{Kind: kind, Entry: d.Entry, StopLoss: d.StopLoss, TakeProfit: d.TakeProfit}
	return req, req.Validate()
}

// Window is the bounded, as-of snapshot a SignalSource decides on. It never
// contains candles later than At.
type Window struct {
	Symbol string
	At     time.Time

	FineTF   market.Timeframe
	CoarseTF market.Timeframe
	Fine     []market.Candle
	Coarse   []market.Candle

	// Charts are rendered image paths, fine first. Empty without a renderer.
	Charts []string
}

// Range is the analysis-window provenance recorded on orders.
func (w Window) Range() sim.TimeRange {
	r := sim.TimeRange{End: w.At}
	if len(w.Fine) > 0 {
		r.Start = w.Fine[0].Time
	}
	return r
}

// SignalSource produces a trading decision from a window. Implementations
// must not depend on engine state.
type SignalSource interface {
	Decide(ctx context.Context, w Window) (Decision, error)
}

// SignalFunc adapts a function to SignalSource.
type SignalFunc func(ctx context.Context, w Window) (Decision, error)

func (f SignalFunc) Decide(ctx context.Context, w Window) (Decision, error) { return f(ctx, w) }

// PromptPreviewer is implemented by sources that can show the prompt they send.
type PromptPreviewer interface {
	PromptPreview() string
}
