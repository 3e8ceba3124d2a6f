package signal

import (
	"context"
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"github.com/rustyeddy/backtester/backtest"
	"github.com/rustyeddy/backtester/indicators"
	"github.com/rustyeddy/backtester/market"
)

// EMACross places a limit order when the fast EMA of the fine window crosses
// the slow one on the latest candle. Entry sits PullbackPips behind the
// close; the stop is StopPips away and the target is the stop distance
// times RR.
type EMACross struct {
	Fast         int
	Slow         int
	StopPips     float64
	RR           float64
	PullbackPips float64

	// MinADX, when positive, requires ADX(ADXPeriod) of the coarse window
	// to be at least this strong.
	MinADX    float64
	ADXPeriod int

	// ATRMult, when positive, widens the stop to ATRMult*ATR(ATRPeriod) of
	// the fine window. StopPips stays the minimum.
	ATRMult   float64
	ATRPeriod int

	// TrendMA, when positive, only takes buys above and sells below the
	// simple moving average of that many coarse closes.
	TrendMA int
}

func NewEMACross(fast, slow int, stopPips, rr float64) *EMACross {
	if rr <= 0 {
		rr = 2.0
	}
	return &EMACross{
		Fast:      fast,
		Slow:      slow,
		StopPips:  stopPips,
		RR:        rr,
		ADXPeriod: 14,
		ATRPeriod: 14,
	}
}

func (s *EMACross) Name() string { return fmt.Sprintf("EMA-Cross(%d/%d)", s.Fast, s.Slow) }

func (s *EMACross) Decide(ctx context.Context, w backtest.Window) (backtest.Decision, error) {
	if s.Fast <= 0 || s.Slow <= s.Fast {
		return backtest.Decision{}, fmt.Errorf("ema cross: need 0 < fast < slow, got %d/%d", s.Fast, s.Slow)
	}
	if s.StopPips <= 0 {
		return backtest.Decision{}, fmt.Errorf("ema cross: stop pips must be positive")
	}

	noTrade := func(why string) (backtest.Decision, error) {
		return backtest.Decision{Kind: backtest.NoTrade, Raw: s.Name() + ": " + why}, nil
	}

	if len(w.Fine) < s.Slow+1 {
		return noTrade("not enough candles")
	}

	fast, slow := indicators.NewEMA(s.Fast), indicators.NewEMA(s.Slow)
	var lastDiff, diff float64
	haveLast := false
	for i, c := range w.Fine {
		fast.Update(c)
		slow.Update(c)
		if !fast.Ready() || !slow.Ready() {
			continue
		}
		if i == len(w.Fine)-1 {
			diff = fast.Value() - slow.Value()
			break
		}
		lastDiff = fast.Value() - slow.Value()
		haveLast = true
	}
	if !haveLast {
		return noTrade("warming up")
	}

	bullCross := diff > 0 && lastDiff <= 0
	bearCross := diff < 0 && lastDiff >= 0
	if !bullCross && !bearCross {
		return noTrade("no cross")
	}

	if s.MinADX > 0 {
		adx := indicators.NewADX(s.ADXPeriod)
		for _, c := range w.Coarse {
			adx.Update(c)
		}
		if !adx.Ready() || adx.Value() < s.MinADX {
			return noTrade(fmt.Sprintf("trend too weak (ADX %.1f)", adx.Value()))
		}
	}

	last := w.Fine[len(w.Fine)-1].Close
	if s.TrendMA > 0 {
		ma, err := indicators.MA(w.Coarse, s.TrendMA)
		if err != nil {
			return noTrade("trend filter warming up")
		}
		if bullCross && last <= ma || bearCross && last >= ma {
			return noTrade(fmt.Sprintf("against trend (MA %.5f)", ma))
		}
	}

	meta, _ := market.LookupInstrument(w.Symbol)
	pip := meta.PipSize()
	places := int32(1 - meta.PipLocation)
	round := func(x float64) float64 { return decimal.NewFromFloat(x).Round(places).InexactFloat64() }

	stop := s.StopPips * pip
	if s.ATRMult > 0 {
		if atr, err := indicators.ATRFunc(w.Fine, s.ATRPeriod); err == nil {
			stop = math.Max(stop, atr*s.ATRMult)
		}
	}
	take := stop * s.RR
	pull := s.PullbackPips * pip

	d := backtest.Decision{}
	if bullCross {
		entry := last - pull
		d = backtest.Decision{Kind: backtest.BuyLimit, Entry: round(entry), StopLoss: round(entry - stop), TakeProfit: round(entry + take)}
	} else {
		entry := last + pull
		d = backtest.Decision{Kind: backtest.SellLimit, Entry: round(entry), StopLoss: round(entry + stop), TakeProfit: round(entry - take)}
	}
	d.Raw = fmt.Sprintf("%s: %s cross at %s, entry %.5f", s.Name(), d.Kind, w.At.Format("2006-01-02 15:04"), d.Entry)
	return d, nil
}
