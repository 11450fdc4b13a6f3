package position

import (
	"time"

	"apex_hunter_go/exchange"
)

// ExitReason says which protective level closed a position.
type ExitReason string

const (
	ExitStopLoss   ExitReason = "stop_loss"
	ExitTakeProfit ExitReason = "take_profit"
)

// Trade is the immutable outcome record of a closed position.
type Trade struct {
	PositionID   string                `json:"position_id"`
	StrategyID   string                `json:"strategy_id"`
	Symbol       string                `json:"symbol"`
	Side         exchange.PositionSide `json:"side"`
	EntryTime    time.Time             `json:"entry_time"`
	ExitTime     time.Time             `json:"exit_time"`
	EntryPrice   float64               `json:"entry_price"`
	ExitPrice    float64               `json:"exit_price"`
	Leverage     int                   `json:"leverage"`
	SizeUSD      float64               `json:"size_usd"`
	PnLUSD       float64               `json:"pnl_usd"`
	PnLPercent   float64               `json:"pnl_percent"` // leveraged, in percent
	ExitReason   ExitReason            `json:"exit_reason"`
	BalanceAfter float64               `json:"balance_after"`
}

// IsWin reports whether the trade made money.
func (t Trade) IsWin() bool { return t.PnLUSD > 0 }

// CheckExit evaluates the last price against stop-loss first, then take-profit.
// When both are satisfied on the same tick the stop-loss wins.
func CheckExit(pos *Position, price float64) (ExitReason, bool) {
	if pos.Side == exchange.Short {
		if price >= pos.StopLoss {
			return ExitStopLoss, true
		}
		if price <= pos.TakeProfit {
			return ExitTakeProfit, true
		}
		return "", false
	}
	if price <= pos.StopLoss {
		return ExitStopLoss, true
	}
	if price >= pos.TakeProfit {
		return ExitTakeProfit, true
	}
	return "", false
}

// Settle computes the pnl of closing pos at exitPrice:
// pnlUSD = size x directional return x leverage, pnlPercent = directional return x leverage x 100.
func Settle(pos *Position, exitPrice float64) (pnlUSD, pnlPercent float64) {
	ret := pos.Side.Direction() * (exitPrice - pos.EntryPrice) / pos.EntryPrice
	lev := float64(pos.Leverage)
	return pos.SizeUSD * ret * lev, ret * lev * 100
}

// Close marks pos closed and builds its Trade. BalanceAfter is filled in by the caller
// once the pnl has been applied to the account.
func Close(pos *Position, exitPrice float64, reason ExitReason, exitTime time.Time) Trade {
	pos.transition(StateClosed)
	pnlUSD, pnlPct := Settle(pos, exitPrice)
	return Trade{
		PositionID: pos.ID,
		StrategyID: pos.StrategyID,
		Symbol:     pos.Symbol,
		Side:       pos.Side,
		EntryTime:  pos.EntryTime,
		ExitTime:   exitTime,
		EntryPrice: pos.EntryPrice,
		ExitPrice:  exitPrice,
		Leverage:   pos.Leverage,
		SizeUSD:    pos.SizeUSD,
		PnLUSD:     pnlUSD,
		PnLPercent: pnlPct,
		ExitReason: reason,
	}
}
