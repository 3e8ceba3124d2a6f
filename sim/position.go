package sim

import (
	"time"

	"github.com/rustyeddy/backtester/market"
)

// EvaluatePosition checks the open position against candle c.
//
// The holding-time limit is checked before price levels: a position past its
// limit exits at the candle close even if SL or TP was also touched.
func (s State) EvaluatePosition(c market.Candle, now time.Time, r Rules) (State, []Event) {
	p := s.Position
	if p == nil {
		return s, nil
	}

	if elapsed(p.EntryTime, now, r.TimeLimit) {
		return s.Close(c.Close, ExitTimeLimit, now, r)
	}

	if px, reason, hit := exitHit(*p, c, s.Spread); hit {
		return s.Close(px, reason, now, r)
	}
	return s, nil
}

// Close settles the open position at exit and appends it to the trade log.
func (s State) Close(exit float64, reason ExitReason, exitTime time.Time, r Rules) (State, []Event) {
	p := s.Position
	if p == nil {
		return s, nil
	}

	pnl := ProfitLoss(p.Direction, p.Entry, exit, s.LotSize, r.ContractSize)

	t := ClosedTrade{
		TradeID:    p.TradeID,
		Direction:  p.Direction,
		Entry:      p.Entry,
		Exit:       exit,
		EntryTime:  p.EntryTime,
		ExitTime:   exitTime,
		StopLoss:   p.StopLoss,
		TakeProfit: p.TakeProfit,
		ProfitLoss: RoundCents(pnl),
		Reason:     reason,
		Window:     p.Window,
	}

	s.Balance += pnl
	s.Closed = s.withClosed(t)
	s.Position = nil
	return s, []Event{positionClosed(t)}
}
