// strategy/signal.go
package strategy

import (
	"fmt"

	"apex_hunter_go/config"
	"apex_hunter_go/exchange"
)

// Signal is a trade idea. The engine treats it as untrusted input.
type Signal struct {
	Side       exchange.PositionSide
	EntryPrice float64
	StopLoss   float64
	TakeProfit float64
	Confidence float64
}

// Producer turns candles into at most one signal per call.
type Producer interface {
	Name() string
	GenerateSignal(candles []exchange.Candle) (*Signal, error)
}

// New builds the producer configured for a strategy.
func New(cfg config.StrategyConfig) (Producer, error) {
	switch cfg.Kind {
	case "ema_cross":
		return NewEMACross(cfg.Name, cfg.EMACross), nil
	case "interval":
		return NewInterval(cfg.Name, cfg.Interval), nil
	default:
		return nil, fmt.Errorf("unknown strategy kind '%s' for '%s'", cfg.Kind, cfg.Name)
	}
}

// levels places stop and take-profit a percent away from entry on each side.
// A non-positive percent leaves that level at zero for the risk configuration to fill.
func levels(side exchange.PositionSide, entry, stopPct, tpPct float64) (stop, tp float64) {
	dir := side.Direction()
	if stopPct > 0 {
		stop = entry * (1 - dir*stopPct/100)
	}
	if tpPct > 0 {
		tp = entry * (1 + dir*tpPct/100)
	}
	return stop, tp
}
