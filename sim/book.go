package sim

import (
	"time"

	"github.com/rustyeddy/backtester/market"
)

const (
	CancelExpired  = "expired"
	CancelShutdown = "engine shutdown"
)

// Submit adds a pending order built from req and assigns it the next id.
func (s State) Submit(req OrderRequest, signalTime time.Time, window TimeRange) (State, PendingOrder, []Event) {
	o := PendingOrder{
		ID:         s.NextOrderID,
		Kind:       req.Kind,
		Entry:      req.Entry,
		StopLoss:   req.StopLoss,
		TakeProfit: req.TakeProfit,
		SignalTime: signalTime,
		Window:     window,
	}

	orders := make([]PendingOrder, len(s.Orders), len(s.Orders)+1)
	copy(orders, s.Orders)

	s.Orders = append(orders, o)
	s.NextOrderID++
	return s, o, []Event{orderCreated(o)}
}

// EvaluateOrders runs the pending orders against candle c in insertion order.
// Expired orders are dropped first; the first order that triggers opens the
// position and every order after it is kept untouched. It is a no-op while a
// position is open.
func (s State) EvaluateOrders(c market.Candle, now time.Time, r Rules) (State, []Event) {
	if s.InPosition() || len(s.Orders) == 0 {
		return s, nil
	}

	var (
		events []Event
		kept   = make([]PendingOrder, 0, len(s.Orders))
	)

	for i, o := range s.Orders {
		if elapsed(o.SignalTime, now, r.OrderExpiry) {
			events = append(events, orderCancelled(o, now, CancelExpired))
			continue
		}

		if !orderTriggered(o, c, s.Spread) {
			kept = append(kept, o)
			continue
		}

		pos := &Position{
			TradeID:    o.ID,
			Direction:  o.Kind.Direction(),
			Entry:      o.Entry,
			StopLoss:   o.StopLoss,
			TakeProfit: o.TakeProfit,
			EntryTime:  now,
			Window:     o.Window,
		}
		s.Position = pos
		events = append(events, positionOpened(*pos))
		kept = append(kept, s.Orders[i+1:]...)
		break
	}

	s.Orders = kept
	return s, events
}

// CancelAll empties the book, e.g. when the replay ends.
func (s State) CancelAll(now time.Time, reason string) (State, []Event) {
	if len(s.Orders) == 0 {
		return s, nil
	}
	events := make([]Event, 0, len(s.Orders))
	for _, o := range s.Orders {
		events = append(events, orderCancelled(o, now, reason))
	}
	s.Orders = nil
	return s, events
}
