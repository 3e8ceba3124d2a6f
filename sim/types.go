package sim

import (
	"fmt"
	"strings"
	"time"
)

// OrderKind is the pending limit order type. Its value is the sign used for
// spread adjustment: +1 for BUY_LIMIT, -1 for SELL_LIMIT.
type OrderKind int8

const (
	BuyLimit  OrderKind = +1
	SellLimit OrderKind = -1
)

func (k OrderKind) Sign() float64 { return float64(k) }

// Direction of the position the order opens.
func (k OrderKind) Direction() Direction {
	if k == SellLimit {
		return Sell
	}
	return Buy
}

func (k OrderKind) String() string {
	switch k {
	case BuyLimit:
		return "BUY_LIMIT"
	case SellLimit:
		return "SELL_LIMIT"
	}
	return fmt.Sprintf("OrderKind(%d)", int8(k))
}

func ParseOrderKind(s string) (OrderKind, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "BUY_LIMIT", "BUY LIMIT", "BUYLIMIT":
		return BuyLimit, nil
	case "SELL_LIMIT", "SELL LIMIT", "SELLLIMIT":
		return SellLimit, nil
	}
	return 0, fmt.Errorf("unknown order kind %q", s)
}

func (k OrderKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

func (k *OrderKind) UnmarshalText(b []byte) error {
	v, err := ParseOrderKind(string(b))
	if err != nil {
		return err
	}
	*k = v
	return nil
}

// Direction: +1 long, -1 short
type Direction int8

const (
	Buy  Direction = +1
	Sell Direction = -1
)

func (d Direction) Sign() float64 { return float64(d) }

func (d Direction) String() string {
	if d == Sell {
		return "SELL"
	}
	return "BUY"
}

func (d Direction) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

func (d *Direction) UnmarshalText(b []byte) error {
	switch strings.ToUpper(string(b)) {
	case "BUY":
		*d = Buy
	case "SELL":
		*d = Sell
	default:
		return fmt.Errorf("unknown direction %q", string(b))
	}
	return nil
}

type ExitReason string

const (
	ExitStopLoss   ExitReason = "SL_HIT"
	ExitTakeProfit ExitReason = "TP_HIT"
	ExitTimeLimit  ExitReason = "TIME_LIMIT_EXCEEDED"
	ExitEndOfData  ExitReason = "END_OF_DATA"
)

// TimeRange records which slice of history a decision was made from.
type TimeRange struct {
	Start time.Time
	End   time.Time
}

// OrderRequest carries the price levels of a concrete decision.
type OrderRequest struct {
	Kind       OrderKind
	Entry      float64
	StopLoss   float64
	TakeProfit float64
}

func (r OrderRequest) Validate() error {
	if r.Kind != BuyLimit && r.Kind != SellLimit {
		return fmt.Errorf("order: invalid kind %d", r.Kind)
	}
	if r.Entry <= 0 || r.StopLoss <= 0 || r.TakeProfit <= 0 {
		return fmt.Errorf("order: price levels must be positive (entry=%v sl=%v tp=%v)",
			r.Entry, r.StopLoss, r.TakeProfit)
	}
	return nil
}

type PendingOrder struct {
	ID         int
	Kind       OrderKind
	Entry      float64
	StopLoss   float64
	TakeProfit float64
	SignalTime time.Time
	Window     TimeRange
}

type Position struct {
	TradeID    int
	Direction  Direction
	Entry      float64
	StopLoss   float64
	TakeProfit float64
	EntryTime  time.Time
	Window     TimeRange
}

// ClosedTrade is final once appended to the log.
type ClosedTrade struct {
	TradeID    int
	Direction  Direction
	Entry      float64
	Exit       float64
	EntryTime  time.Time
	ExitTime   time.Time
	StopLoss   float64
	TakeProfit float64
	ProfitLoss float64 // account currency, rounded to cents
	Reason     ExitReason
	Window     TimeRange
}
