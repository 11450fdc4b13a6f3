package risk

import (
	"sync"
	"time"

	"apex_hunter_go/exchange"
	"apex_hunter_go/logs"
)

// PositionSizing derives SizeUSD from the balance, a base percent and the drawdown multiplier.
type PositionSizing struct {
	BasePercent        float64
	MinSize            float64
	MaxSize            float64
	MaxDrawdownPercent float64
}

func (l *PositionSizing) Name() string { return "PositionSizing" }

func (l *PositionSizing) Evaluate(p Proposal, acct AccountState) (Proposal, *Rejection) {
	mult := SizeMultiplier(acct.DrawdownPercent, l.MaxDrawdownPercent)
	if mult == 0 {
		return p, reject("Maximum drawdown reached", "drawdown %.2f%%", acct.DrawdownPercent)
	}
	adjusted := l.BasePercent * mult
	size := acct.Balance * adjusted / 100
	if size < l.MinSize {
		return p, reject("Position size below minimum", "size %.2f < minimum %.2f", size, l.MinSize)
	}
	if size > l.MaxSize {
		size = l.MaxSize
	}
	p.SizeUSD = size
	p.RiskPercent = adjusted
	return p, nil
}

// LeverageControl clamps the requested leverage to the drawdown-adjusted ceiling.
type LeverageControl struct {
	MaxLeverage        int
	MaxDrawdownPercent float64
}

func (l *LeverageControl) Name() string { return "LeverageControl" }

func (l *LeverageControl) Evaluate(p Proposal, acct AccountState) (Proposal, *Rejection) {
	ceiling := LeverageCeiling(l.MaxLeverage, acct.DrawdownPercent, l.MaxDrawdownPercent)
	if ceiling <= 0 {
		return p, reject("Leverage not allowed due to high drawdown", "drawdown %.2f%%", acct.DrawdownPercent)
	}
	requested := p.Leverage
	if requested < 1 {
		requested = 1
	}
	if requested > ceiling {
		logs.Debugf("[RiskChain] Leverage reduced from %dx to %dx due to drawdown %.2f%%", requested, ceiling, acct.DrawdownPercent)
		requested = ceiling
	}
	p.Leverage = requested
	return p, nil
}

// StopLossManagement places the stop a fixed percent from entry on the losing side.
type StopLossManagement struct {
	StopLossPercent float64
}

func (l *StopLossManagement) Name() string { return "StopLossManagement" }

func (l *StopLossManagement) Evaluate(p Proposal, acct AccountState) (Proposal, *Rejection) {
	if p.Side == exchange.Short {
		p.StopLoss = p.EntryPrice * (1 + l.StopLossPercent/100)
	} else {
		p.StopLoss = p.EntryPrice * (1 - l.StopLossPercent/100)
	}
	return p, nil
}

// DailyLossLimit keeps a running pnl for the local calendar day.
type DailyLossLimit struct {
	mu             sync.Mutex
	initialCapital float64
	maxLossPercent float64
	now            Clock
	dailyPnL       float64
	day            string
}

func NewDailyLossLimit(initialCapital, maxLossPercent float64, now Clock) *DailyLossLimit {
	if now == nil {
		now = time.Now
	}
	return &DailyLossLimit{
		initialCapital: initialCapital,
		maxLossPercent: maxLossPercent,
		now:            now,
		day:            now().Format("2006-01-02"),
	}
}

func (l *DailyLossLimit) Name() string { return "DailyLossLimit" }

func (l *DailyLossLimit) resetIfNewDayLocked() {
	today := l.now().Format("2006-01-02")
	if today != l.day {
		l.day = today
		l.dailyPnL = 0
		logs.Info("[RiskChain] Daily loss limit reset for new trading day")
	}
}

// RecordTrade adds a closed trade's pnl to today's total.
func (l *DailyLossLimit) RecordTrade(pnl float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.resetIfNewDayLocked()
	l.dailyPnL += pnl
}

// DailyPnL returns today's running total.
func (l *DailyLossLimit) DailyPnL() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.resetIfNewDayLocked()
	return l.dailyPnL
}

// Restore reloads a persisted counter; a counter from another day is discarded.
func (l *DailyLossLimit) Restore(day string, pnl float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.day = day
	l.dailyPnL = pnl
	l.resetIfNewDayLocked()
}

func (l *DailyLossLimit) state() (string, float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.day, l.dailyPnL
}

func (l *DailyLossLimit) Evaluate(p Proposal, acct AccountState) (Proposal, *Rejection) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.resetIfNewDayLocked()
	maxLoss := l.initialCapital * l.maxLossPercent / 100
	if l.dailyPnL <= -maxLoss {
		return p, reject("Daily loss limit reached", "daily pnl %.2f, limit %.2f", l.dailyPnL, -maxLoss)
	}
	return p, nil
}

// MaximumDrawdown tracks its own peak and blocks trading once drawdown reaches the maximum.
type MaximumDrawdown struct {
	mu         sync.Mutex
	maxPercent float64
	peak       float64
	strategyID string
	onEvent    EventHandler
}

func NewMaximumDrawdown(strategyID string, initialCapital, maxPercent float64, onEvent EventHandler) *MaximumDrawdown {
	return &MaximumDrawdown{strategyID: strategyID, peak: initialCapital, maxPercent: maxPercent, onEvent: onEvent}
}

func (l *MaximumDrawdown) Name() string { return "MaximumDrawdown" }

// UpdatePeak raises the tracked peak.
func (l *MaximumDrawdown) UpdatePeak(balance float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if balance > l.peak {
		l.peak = balance
	}
}

func (l *MaximumDrawdown) Peak() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.peak
}

func (l *MaximumDrawdown) Evaluate(p Proposal, acct AccountState) (Proposal, *Rejection) {
	l.UpdatePeak(acct.Balance)
	peak := l.Peak()
	var drawdown float64
	if peak > 0 {
		drawdown = (peak - acct.Balance) / peak * 100
	}
	if drawdown >= l.maxPercent {
		logs.Warnf("[RiskChain] MaximumDrawdown triggered for %s: drawdown %.2f%% exceeds limit, trading halted", l.strategyID, drawdown)
		if l.onEvent != nil {
			l.onEvent(&DrawdownLimitEvent{StrategyID: l.strategyID, DrawdownPercent: drawdown, MaxPercent: l.maxPercent})
		}
		return p, reject("Maximum drawdown exceeded", "drawdown %.2f%%, max %.2f%%", drawdown, l.maxPercent)
	}
	return p, nil
}

// CorrelationRisk is a stand-in for real correlation analysis: it caps the number of open positions.
type CorrelationRisk struct {
	MaxOpenPositions int
}

func (l *CorrelationRisk) Name() string { return "CorrelationRisk" }

func (l *CorrelationRisk) Evaluate(p Proposal, acct AccountState) (Proposal, *Rejection) {
	if len(acct.OpenPositions) >= l.MaxOpenPositions {
		return p, reject("Maximum open positions reached", "%d open, max %d", len(acct.OpenPositions), l.MaxOpenPositions)
	}
	return p, nil
}

// PassThrough is an extension point that approves everything unchanged.
// VolatilityAdjustment, LiquidityCheck and RateLimit are placeholders of this kind.
type PassThrough struct {
	name string
}

func NewPassThrough(name string) *PassThrough { return &PassThrough{name: name} }

func (l *PassThrough) Name() string { return l.name }

func (l *PassThrough) Evaluate(p Proposal, acct AccountState) (Proposal, *Rejection) {
	return p, nil
}

// CircuitBreakerLayer rejects while the breaker is halted and halts it on a flash crash.
type CircuitBreakerLayer struct {
	Breaker           *CircuitBreaker
	FlashCrashPercent float64
}

func (l *CircuitBreakerLayer) Name() string { return "CircuitBreaker" }

func (l *CircuitBreakerLayer) Evaluate(p Proposal, acct AccountState) (Proposal, *Rejection) {
	if !l.Breaker.Enabled() {
		return p, nil
	}
	if l.Breaker.IsHalted() {
		return p, reject("Circuit breaker active", "%.1fh remaining", l.Breaker.Remaining().Hours())
	}
	if p.CurrentPrice > 0 && p.EntryPrice > 0 {
		change := (p.CurrentPrice - p.EntryPrice) / p.EntryPrice * 100
		if change <= l.FlashCrashPercent {
			l.Breaker.Trigger("Flash crash detected")
			return p, reject("Flash crash detected", "price change %.2f%%", change)
		}
	}
	return p, nil
}

// CapitalPreservation is the hard floor: no new risk at or below a percent of initial capital.
type CapitalPreservation struct {
	InitialCapital float64
	FloorPercent   float64
}

func (l *CapitalPreservation) Name() string { return "CapitalPreservation" }

func (l *CapitalPreservation) Evaluate(p Proposal, acct AccountState) (Proposal, *Rejection) {
	floor := l.InitialCapital * l.FloorPercent / 100
	if acct.Balance <= floor {
		return p, reject("Below minimum capital threshold", "balance %.2f, floor %.2f", acct.Balance, floor)
	}
	return p, nil
}
