package sim

import "time"

type EventKind string

const (
	EventOrderCreated      EventKind = "order_created"
	EventOrderCancelled    EventKind = "order_cancelled"
	EventPositionOpened    EventKind = "position_opened"
	EventPositionClosed    EventKind = "position_closed"
	EventRunFailed         EventKind = "run_failed"
	EventRunCompleted      EventKind = "run_completed"
	EventDecisionRequested EventKind = "decision_requested"
	EventDecisionReceived  EventKind = "decision_received"
)

// Level is the verbosity an event needs before a sink forwards it.
type Level int

const (
	LevelAlways Level = iota // final results and failures
	LevelBrief               // positions opened and closed
	LevelDetail              // order lifecycle
	LevelDebug               // decision inputs and raw responses
)

// Event is a discrete notification produced by the engine. Fields that do
// not apply to a kind are left zero.
type Event struct {
	Kind  EventKind
	Level Level
	Time  time.Time
	// Phase is the driver phase the event was emitted in, set by the driver.
	Phase string

	OrderID   int
	TradeID   int
	OrderKind OrderKind
	Direction Direction

	Price      float64
	ProfitLoss float64
	Reason     string

	// Text carries free-form content (prompt or response previews, failure reasons).
	Text string
	// Payload carries structured data such as the final performance summary.
	Payload any
}

func orderCreated(o PendingOrder) Event {
	return Event{
		Kind:      EventOrderCreated,
		Level:     LevelDetail,
		Time:      o.SignalTime,
		OrderID:   o.ID,
		OrderKind: o.Kind,
		Direction: o.Kind.Direction(),
		Price:     o.Entry,
	}
}

func orderCancelled(o PendingOrder, now time.Time, reason string) Event {
	return Event{
		Kind:      EventOrderCancelled,
		Level:     LevelDetail,
		Time:      now,
		OrderID:   o.ID,
		OrderKind: o.Kind,
		Direction: o.Kind.Direction(),
		Price:     o.Entry,
		Reason:    reason,
	}
}

func positionOpened(p Position) Event {
	return Event{
		Kind:      EventPositionOpened,
		Level:     LevelBrief,
		Time:      p.EntryTime,
		TradeID:   p.TradeID,
		OrderID:   p.TradeID,
		Direction: p.Direction,
		Price:     p.Entry,
	}
}

func positionClosed(t ClosedTrade) Event {
	return Event{
		Kind:       EventPositionClosed,
		Level:      LevelBrief,
		Time:       t.ExitTime,
		TradeID:    t.TradeID,
		Direction:  t.Direction,
		Price:      t.Exit,
		ProfitLoss: t.ProfitLoss,
		Reason:     string(t.Reason),
	}
}
