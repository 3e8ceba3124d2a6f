package backtest

import (
	"time"

	"github.com/rustyeddy/backtester/market"
)

type DecisionStatus string

const (
	StatusSuccess DecisionStatus = "SUCCESS"
	StatusFailure DecisionStatus = "FAILURE"
)

// DecisionContext records what a decision was made from.
type DecisionContext struct {
	Pair            string           `json:"pair"`
	FineTimeframe   market.Timeframe `json:"fine_timeframe"`
	CoarseTimeframe market.Timeframe `json:"coarse_timeframe"`
	FineStart       time.Time        `json:"fine_start"`
	FineEnd         time.Time        `json:"fine_end"`
	CoarseStart     time.Time        `json:"coarse_start"`
	CoarseEnd       time.Time        `json:"coarse_end"`
	Charts          []string         `json:"charts,omitempty"`
}

// DecisionRecord is one entry in the decision log.
type DecisionRecord struct {
	ID          string          `json:"id"`
	Timestamp   time.Time       `json:"timestamp"`
	Context     DecisionContext `json:"context"`
	RawResponse string          `json:"raw_response"`
	Status      DecisionStatus  `json:"status"`
	Decision    *Decision       `json:"decision,omitempty"`
	Error       string          `json:"error,omitempty"`
}
