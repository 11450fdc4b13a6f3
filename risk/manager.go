// risk/manager.go
package risk

import (
	"apex_hunter_go/config"
	"apex_hunter_go/logs"
)

// ManagerSnapshot is the persisted state of a Manager.
type ManagerSnapshot struct {
	Breaker      BreakerSnapshot `json:"breaker"`
	DailyPnL     float64         `json:"daily_pnl"`
	DailyDate    string          `json:"daily_date"`
	DrawdownPeak float64         `json:"drawdown_peak"`
}

// Manager owns the risk chain of one strategy and the stateful layers that
// trade outcomes feed back into.
type Manager struct {
	strategyID  string
	chain       *Chain
	daily       *DailyLossLimit
	drawdown    *MaximumDrawdown
	breaker     *CircuitBreaker
	sizer       LeverageSizer
	maxLeverage int
}

// NewManager builds the eleven-layer chain for one strategy.
func NewManager(strategyID string, cfg *config.Config, now Clock, onEvent EventHandler) *Manager {
	r := cfg.Risk
	breaker := NewCircuitBreaker(strategyID, cfg.CircuitBreaker, now)
	breaker.SetEventHandler(onEvent)
	daily := NewDailyLossLimit(cfg.Capital.InitialCapital, r.MaxDailyLossPercent, now)
	drawdown := NewMaximumDrawdown(strategyID, cfg.Capital.InitialCapital, r.MaxDrawdownPercent, onEvent)

	chain := NewChain(
		&PositionSizing{BasePercent: r.PositionSizePercent, MinSize: r.MinPositionSize, MaxSize: r.MaxPositionSize, MaxDrawdownPercent: r.MaxDrawdownPercent},
		&LeverageControl{MaxLeverage: r.MaxLeverage, MaxDrawdownPercent: r.MaxDrawdownPercent},
		&StopLossManagement{StopLossPercent: r.StopLossPercent},
		daily,
		drawdown,
		&CorrelationRisk{MaxOpenPositions: r.MaxOpenPositions},
		NewPassThrough("VolatilityAdjustment"),
		NewPassThrough("LiquidityCheck"),
		NewPassThrough("RateLimit"),
		&CircuitBreakerLayer{Breaker: breaker, FlashCrashPercent: cfg.CircuitBreaker.FlashCrashPercent},
		&CapitalPreservation{InitialCapital: cfg.Capital.InitialCapital, FloorPercent: r.CapitalFloorPercent},
	)
	logs.Infof("[RiskManager] %s initialized with %d risk layers", strategyID, len(chain.layers))

	return &Manager{
		strategyID:  strategyID,
		chain:       chain,
		daily:       daily,
		drawdown:    drawdown,
		breaker:     breaker,
		sizer:       LeverageSizer{Bands: r.LeverageBands, MaxDrawdownPercent: r.MaxDrawdownPercent},
		maxLeverage: r.MaxLeverage,
	}
}

// Evaluate runs p through the chain.
func (m *Manager) Evaluate(p Proposal, acct AccountState) (*Proposal, *Rejection) {
	return m.chain.Evaluate(p, acct)
}

// Leverage sizes leverage for a signal confidence at the current drawdown.
func (m *Manager) Leverage(confidence, drawdownPercent float64) int {
	return m.sizer.Leverage(confidence, drawdownPercent, m.maxLeverage)
}

// RecordTradeResult feeds a closed trade to the daily loss counter and the breaker.
func (m *Manager) RecordTradeResult(isWin bool, pnl float64) {
	m.daily.RecordTrade(pnl)
	m.breaker.RecordTradeResult(isWin)
}

// RecordCriticalFailure halts the strategy.
func (m *Manager) RecordCriticalFailure(reason string) {
	m.breaker.RecordCriticalFailure(reason)
}

func (m *Manager) IsTradingHalted() bool { return m.breaker.IsHalted() }

// UpdatePeakBalance keeps the drawdown layer's peak in step with the account.
func (m *Manager) UpdatePeakBalance(balance float64) { m.drawdown.UpdatePeak(balance) }

func (m *Manager) Breaker() *CircuitBreaker { return m.breaker }

func (m *Manager) Chain() *Chain { return m.chain }

func (m *Manager) DailyPnL() float64 { return m.daily.DailyPnL() }

func (m *Manager) Snapshot() ManagerSnapshot {
	day, pnl := m.daily.state()
	return ManagerSnapshot{
		Breaker:      m.breaker.Snapshot(),
		DailyPnL:     pnl,
		DailyDate:    day,
		DrawdownPeak: m.drawdown.Peak(),
	}
}

func (m *Manager) Restore(s ManagerSnapshot) {
	m.breaker.Restore(s.Breaker)
	if s.DailyDate != "" {
		m.daily.Restore(s.DailyDate, s.DailyPnL)
	}
	m.drawdown.UpdatePeak(s.DrawdownPeak)
}
