package strategy

import (
	"sync"

	"apex_hunter_go/config"
	"apex_hunter_go/exchange"
)

// Interval emits a signal every N calls, alternating long and short. It exists to
// exercise the engine in simulation where crossovers are rare.
type Interval struct {
	name  string
	cfg   config.IntervalConfig
	mu    sync.Mutex
	calls int
	next  exchange.PositionSide
}

func NewInterval(name string, cfg config.IntervalConfig) *Interval {
	return &Interval{name: name, cfg: cfg, next: exchange.Long}
}

func (s *Interval) Name() string { return s.name }

func (s *Interval) GenerateSignal(candles []exchange.Candle) (*Signal, error) {
	if len(candles) == 0 {
		return nil, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.cfg.Every > 1 && s.calls%s.cfg.Every != 0 {
		return nil, nil
	}
	side := s.next
	if side == exchange.Long {
		s.next = exchange.Short
	} else {
		s.next = exchange.Long
	}

	entry := candles[len(candles)-1].Close
	stop, tp := levels(side, entry, s.cfg.StopLossPercent, s.cfg.TakeProfitPercent)
	return &Signal{Side: side, EntryPrice: entry, StopLoss: stop, TakeProfit: tp, Confidence: s.cfg.Confidence}, nil
}
