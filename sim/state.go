package sim

import (
	"fmt"
	"time"
)

// DefaultContractSize is the units in one standard FX lot.
const DefaultContractSize = 100_000.0

// Rules are the fixed trade rules of a run.
type Rules struct {
	OrderExpiry  time.Duration // pending orders older than this are cancelled
	TimeLimit    time.Duration // positions held this long exit at the candle close
	ContractSize float64
}

func (r Rules) Validate() error {
	if r.OrderExpiry <= 0 {
		return fmt.Errorf("rules: order expiry must be positive")
	}
	if r.TimeLimit <= 0 {
		return fmt.Errorf("rules: time limit must be positive")
	}
	if r.ContractSize <= 0 {
		return fmt.Errorf("rules: contract size must be positive")
	}
	return nil
}

// State is the whole mutable state of a simulation. It is treated as a
// value: the Order Book and Position Tracker functions return a new State
// and never modify slices they were handed.
type State struct {
	Balance float64
	LotSize float64
	Spread  float64 // price units, applied to SELL-side comparisons

	NextOrderID int
	Orders      []PendingOrder
	Position    *Position
	Closed      []ClosedTrade
}

// NewState returns a flat state with the order id counter at 1.
func NewState(balance, lotSize, spread float64) State {
	return State{
		Balance:     balance,
		LotSize:     lotSize,
		Spread:      spread,
		NextOrderID: 1,
	}
}

func (s State) InPosition() bool { return s.Position != nil }

func (s State) HasPendingOrders() bool { return len(s.Orders) > 0 }

// withClosed appends t to a copy of the trade log.
func (s State) withClosed(t ClosedTrade) []ClosedTrade {
	out := make([]ClosedTrade, len(s.Closed), len(s.Closed)+1)
	copy(out, s.Closed)
	return append(out, t)
}

// elapsed reports whether at least d has passed between from and now.
func elapsed(from, now time.Time, d time.Duration) bool {
	return now.Sub(from) >= d
}
