package sim

import "github.com/rustyeddy/backtester/market"

// orderTriggered tests a pending limit order against one candle.
// SELL_LIMIT compares the spread-adjusted high (spread * -1).
func orderTriggered(o PendingOrder, c market.Candle, spread float64) bool {
	switch o.Kind {
	case BuyLimit:
		return c.Low <= o.Entry
	case SellLimit:
		return c.High+spread*o.Kind.Sign() >= o.Entry
	}
	return false
}

// exitHit evaluates stop and take on one candle.
// If both are hit in the same bar we assume stop-first (pessimistic).
func exitHit(p Position, c market.Candle, spread float64) (float64, ExitReason, bool) {
	switch p.Direction {
	case Buy:
		if c.Low <= p.StopLoss {
			return p.StopLoss, ExitStopLoss, true
		}
		if c.High >= p.TakeProfit {
			return p.TakeProfit, ExitTakeProfit, true
		}
	case Sell:
		adj := spread * p.Direction.Sign()
		if c.High+adj >= p.StopLoss {
			return p.StopLoss, ExitStopLoss, true
		}
		if c.Low+adj <= p.TakeProfit {
			return p.TakeProfit, ExitTakeProfit, true
		}
	}
	return 0, "", false
}
