package position

import (
	"fmt"
	"time"

	"apex_hunter_go/config"
	"apex_hunter_go/exchange"
	"apex_hunter_go/logs"
)

// TrailingKind names what a trailing update changed.
type TrailingKind string

const (
	StopActivated TrailingKind = "trailing_stop_activated"
	StopUpdated   TrailingKind = "trailing_stop_updated"
	TPActivated   TrailingKind = "trailing_tp_activated"
	TPUpdated     TrailingKind = "trailing_tp_updated"
)

// TrailingUpdate records one move of a stop or take-profit.
type TrailingUpdate struct {
	Kind          TrailingKind
	StrategyID    string
	Symbol        string
	Side          exchange.PositionSide
	Price         float64
	ProfitPercent float64
	OldValue      float64
	NewValue      float64
	At            time.Time
}

// Trailer applies trailing-stop and trailing-take-profit rules to positions.
type Trailer struct {
	cfg config.TrailingConfig
}

func NewTrailer(cfg config.TrailingConfig) *Trailer {
	return &Trailer{cfg: cfg}
}

// Update processes one tick for pos and returns every change it made.
// The extreme-price trackers move on every tick, before and after activation.
func (t *Trailer) Update(pos *Position, price float64, now time.Time) []TrailingUpdate {
	if pos.State == StateClosed {
		return nil
	}
	if pos.State == StateOpened {
		pos.transition(StateTrailingInactive)
	}

	if pos.Side == exchange.Short {
		if price < pos.LowestPrice {
			pos.LowestPrice = price
		}
	} else if price > pos.HighestPrice {
		pos.HighestPrice = price
	}

	profitPct := pos.ProfitPercent(price)
	var updates []TrailingUpdate
	newUpdate := func(kind TrailingKind, old, new float64) TrailingUpdate {
		return TrailingUpdate{
			Kind: kind, StrategyID: pos.StrategyID, Symbol: pos.Symbol, Side: pos.Side,
			Price: price, ProfitPercent: profitPct, OldValue: old, NewValue: new, At: now,
		}
	}

	if t.cfg.StopEnabled {
		activating := !pos.TrailingStopActive && profitPct >= t.cfg.StopActivationPercent
		if activating {
			pos.TrailingStopActive = true
			pos.transition(StateTrailingActive)
			logs.Infof("[Trailing] %s %s trailing stop ACTIVATED at %.6f (profit %.2f%%)", pos.StrategyID, pos.Symbol, price, profitPct)
		}
		if pos.TrailingStopActive {
			candidate := pos.Extreme() * (1 - pos.Side.Direction()*t.cfg.StopDistancePercent/100)
			if improvesStop(pos.Side, pos.StopLoss, candidate) {
				old := pos.StopLoss
				setStop(pos, candidate)
				kind := StopUpdated
				if activating {
					kind = StopActivated
				}
				logs.Infof("[Trailing] %s %s stop %.6f -> %.6f", pos.StrategyID, pos.Symbol, old, candidate)
				updates = append(updates, newUpdate(kind, old, candidate))
			}
		}
	}

	if t.cfg.TPEnabled {
		if pos.Side == exchange.Short {
			if price < pos.TrailingTPExtreme {
				pos.TrailingTPExtreme = price
			}
		} else if price > pos.TrailingTPExtreme {
			pos.TrailingTPExtreme = price
		}

		activating := !pos.TrailingTPActive && profitPct >= t.cfg.TPActivationPercent
		if activating {
			pos.TrailingTPActive = true
			logs.Infof("[Trailing] %s %s trailing take-profit ACTIVATED at %.6f (profit %.2f%%)", pos.StrategyID, pos.Symbol, price, profitPct)
		}
		if pos.TrailingTPActive {
			candidate := pos.TrailingTPExtreme * (1 - pos.Side.Direction()*t.cfg.TPDistancePercent/100)
			// Skipped, not clamped, when the candidate would reach entry.
			if tightensTP(pos.Side, pos.TakeProfit, candidate) && beyondEntry(pos.Side, pos.EntryPrice, candidate) {
				old := pos.TakeProfit
				setTakeProfit(pos, candidate)
				kind := TPUpdated
				if activating {
					kind = TPActivated
				}
				logs.Infof("[Trailing] %s %s take-profit %.6f -> %.6f", pos.StrategyID, pos.Symbol, old, candidate)
				updates = append(updates, newUpdate(kind, old, candidate))
			}
		}
	}

	return updates
}

// improvesStop: up for long, down for short.
func improvesStop(side exchange.PositionSide, current, candidate float64) bool {
	if side == exchange.Short {
		return candidate < current
	}
	return candidate > current
}

// tightensTP: toward the price, down for long and up for short.
func tightensTP(side exchange.PositionSide, current, candidate float64) bool {
	if side == exchange.Short {
		return candidate > current
	}
	return candidate < current
}

func beyondEntry(side exchange.PositionSide, entry, value float64) bool {
	return side.Direction()*(value-entry) > 0
}

// setStop is the only writer of StopLoss after open.
func setStop(pos *Position, stop float64) {
	if !improvesStop(pos.Side, pos.StopLoss, stop) {
		panic(fmt.Sprintf("trailing stop for %s moved against the position: %.8f -> %.8f", pos.Key(), pos.StopLoss, stop))
	}
	pos.StopLoss = stop
}

// setTakeProfit is the only writer of TakeProfit after open.
func setTakeProfit(pos *Position, tp float64) {
	if !beyondEntry(pos.Side, pos.EntryPrice, tp) {
		panic(fmt.Sprintf("trailing take-profit for %s crossed entry %.8f: %.8f", pos.Key(), pos.EntryPrice, tp))
	}
	pos.TakeProfit = tp
}
