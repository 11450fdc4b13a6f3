package strategy

import (
	"apex_hunter_go/config"
	"apex_hunter_go/exchange"
	"apex_hunter_go/logs"
)

// EMACross signals when the fast EMA crosses the slow EMA on the last closed candle.
type EMACross struct {
	name string
	cfg  config.EMACrossConfig
}

func NewEMACross(name string, cfg config.EMACrossConfig) *EMACross {
	return &EMACross{name: name, cfg: cfg}
}

func (s *EMACross) Name() string { return s.name }

// EMA computes an exponential moving average seeded with the first value (no bias adjustment).
func EMA(values []float64, period int) []float64 {
	out := make([]float64, len(values))
	if len(values) == 0 {
		return out
	}
	alpha := 2.0 / float64(period+1)
	out[0] = values[0]
	for i := 1; i < len(values); i++ {
		out[i] = alpha*values[i] + (1-alpha)*out[i-1]
	}
	return out
}

func (s *EMACross) GenerateSignal(candles []exchange.Candle) (*Signal, error) {
	if len(candles) < s.cfg.SlowPeriod+2 {
		logs.Debugf("[%s] Insufficient data: %d candles", s.name, len(candles))
		return nil, nil
	}
	closes := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
	}
	fast := EMA(closes, s.cfg.FastPeriod)
	slow := EMA(closes, s.cfg.SlowPeriod)
	n := len(closes) - 1

	var side exchange.PositionSide
	switch {
	case fast[n] > slow[n] && fast[n-1] <= slow[n-1]:
		side = exchange.Long
	case fast[n] < slow[n] && fast[n-1] >= slow[n-1]:
		side = exchange.Short
	default:
		return nil, nil
	}

	entry := closes[n]
	stop, tp := levels(side, entry, s.cfg.StopLossPercent, s.cfg.TakeProfitPercent)
	logs.Debugf("[%s] EMA crossover %s: fast %.4f slow %.4f", s.name, side, fast[n], slow[n])
	return &Signal{
		Side:       side,
		EntryPrice: entry,
		StopLoss:   stop,
		TakeProfit: tp,
		Confidence: s.cfg.Confidence,
	}, nil
}
