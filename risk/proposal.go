package risk

import (
	"fmt"
	"time"

	"apex_hunter_go/exchange"
)

// Clock returns the current time. Layers that depend on wall time take one so tests can drive it.
type Clock func() time.Time

// Proposal is a candidate trade moving through the chain.
// It is passed by value: a layer returns an augmented copy and never mutates the caller's value.
type Proposal struct {
	Symbol       string
	Side         exchange.PositionSide
	EntryPrice   float64
	CurrentPrice float64 // latest feed price, the reference for flash-crash detection
	Leverage     int     // requested until LeverageControl, approved after
	StopLoss     float64
	TakeProfit   float64
	SizeUSD      float64
	RiskPercent  float64
	StrategyID   string
	Confidence   float64
}

// AccountState is the read-only view of one strategy's account that layers evaluate against.
type AccountState struct {
	StrategyID        string
	Balance           float64
	PeakBalance       float64
	InitialCapital    float64
	DrawdownPercent   float64
	OpenPositions     []string
	ConsecutiveLosses int
	RecentTrades      []float64
}

// Rejection is the structured reason a proposal was dropped.
type Rejection struct {
	Symbol     string
	StrategyID string
	Layer      string
	Reason     string
	Details    string
}

func (r *Rejection) String() string {
	if r.Details == "" {
		return fmt.Sprintf("[%s] %s %s rejected: %s", r.Layer, r.StrategyID, r.Symbol, r.Reason)
	}
	return fmt.Sprintf("[%s] %s %s rejected: %s (%s)", r.Layer, r.StrategyID, r.Symbol, r.Reason, r.Details)
}

// reject builds a rejection; the chain fills in symbol, strategy and layer.
func reject(reason, detailsFormat string, args ...interface{}) *Rejection {
	r := &Rejection{Reason: reason}
	if detailsFormat != "" {
		r.Details = fmt.Sprintf(detailsFormat, args...)
	}
	return r
}

// Layer is one ordered check of the approval pipeline.
// It returns the (possibly augmented) proposal, or a non-nil rejection.
type Layer interface {
	Name() string
	Evaluate(p Proposal, acct AccountState) (Proposal, *Rejection)
}
