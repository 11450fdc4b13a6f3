package position

import (
	"errors"
	"fmt"
	"time"

	"apex_hunter_go/exchange"
)

// State is the trailing-stop lifecycle of a position.
type State string

const (
	StateOpened           State = "opened"
	StateTrailingInactive State = "trailing_inactive"
	StateTrailingActive   State = "trailing_active"
	StateClosed           State = "closed"
)

// ValidTransitions lists the allowed moves of the lifecycle state machine.
var ValidTransitions = map[State][]State{
	StateOpened:           {StateTrailingInactive, StateClosed},
	StateTrailingInactive: {StateTrailingActive, StateClosed},
	StateTrailingActive:   {StateClosed},
	StateClosed:           {},
}

// CanTransition reports whether from -> to is allowed.
func CanTransition(from, to State) bool {
	for _, s := range ValidTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

var (
	// ErrPositionExists is returned when a (strategy, symbol) key already has an open position.
	ErrPositionExists = errors.New("position already open")
	// ErrInvariant marks a proposal that must never have reached the book.
	ErrInvariant = errors.New("position invariant violated")
)

// Position is one open simulated trade of a strategy on a symbol.
type Position struct {
	ID                 string                `json:"id"`
	StrategyID         string                `json:"strategy_id"`
	Symbol             string                `json:"symbol"`
	Side               exchange.PositionSide `json:"side"`
	EntryTime          time.Time             `json:"entry_time"`
	EntryPrice         float64               `json:"entry_price"`
	Leverage           int                   `json:"leverage"`
	SizeUSD            float64               `json:"size_usd"`
	StopLoss           float64               `json:"stop_loss"`
	TakeProfit         float64               `json:"take_profit"`
	InitialStopLoss    float64               `json:"initial_stop_loss"`
	InitialTakeProfit  float64               `json:"initial_take_profit"`
	TrailingStopActive bool                  `json:"trailing_stop_active"`
	HighestPrice       float64               `json:"highest_price"`
	LowestPrice        float64               `json:"lowest_price"`
	TrailingTPActive   bool                  `json:"trailing_tp_active"`
	TrailingTPExtreme  float64               `json:"trailing_tp_extreme"`
	Confidence         float64               `json:"confidence"`
	State              State                 `json:"state"`
}

// Key identifies the single position slot of a strategy on a symbol.
func Key(strategyID, symbol string) string {
	return strategyID + ":" + symbol
}

func (p *Position) Key() string { return Key(p.StrategyID, p.Symbol) }

// transition moves the state machine; an illegal move is a programming error.
func (p *Position) transition(to State) {
	if p.State == to {
		return
	}
	if !CanTransition(p.State, to) {
		panic(fmt.Sprintf("position %s: illegal state transition %s -> %s", p.Key(), p.State, to))
	}
	p.State = to
}

// ProfitPercent is the unleveraged, direction-aware move from entry, in percent.
func (p *Position) ProfitPercent(price float64) float64 {
	return p.Side.Direction() * (price - p.EntryPrice) / p.EntryPrice * 100
}

// Extreme is the most favorable price seen so far.
func (p *Position) Extreme() float64 {
	if p.Side == exchange.Short {
		return p.LowestPrice
	}
	return p.HighestPrice
}

// validate checks the invariants of a position. The stop-side check only applies at open:
// once trailing is active the stop may legitimately sit beyond entry.
func (p *Position) validate(atOpen bool) error {
	switch {
	case !p.Side.Valid():
		return fmt.Errorf("%w: %s unknown side %q", ErrInvariant, p.Key(), p.Side)
	case !exchange.ValidPrice(p.EntryPrice):
		return fmt.Errorf("%w: %s entry price %v", ErrInvariant, p.Key(), p.EntryPrice)
	case !(p.SizeUSD > 0):
		return fmt.Errorf("%w: %s non-positive size %v", ErrInvariant, p.Key(), p.SizeUSD)
	case p.Leverage < 1:
		return fmt.Errorf("%w: %s leverage %d below 1", ErrInvariant, p.Key(), p.Leverage)
	}
	dir := p.Side.Direction()
	if atOpen && dir*(p.EntryPrice-p.StopLoss) <= 0 {
		return fmt.Errorf("%w: %s stop loss %.6f not on the losing side of entry %.6f", ErrInvariant, p.Key(), p.StopLoss, p.EntryPrice)
	}
	if dir*(p.TakeProfit-p.EntryPrice) <= 0 {
		return fmt.Errorf("%w: %s take profit %.6f not beyond entry %.6f", ErrInvariant, p.Key(), p.TakeProfit, p.EntryPrice)
	}
	return nil
}
