package capital

import (
	"math"
	"sync"
)

// Snapshot is a point-in-time copy of an account, used for risk evaluation and persistence.
type Snapshot struct {
	StrategyID        string    `json:"strategy_id"`
	InitialCapital    float64   `json:"initial_capital"`
	Balance           float64   `json:"balance"`
	PeakBalance       float64   `json:"peak_balance"`
	DrawdownPercent   float64   `json:"drawdown_percent"`
	RecentTrades      []float64 `json:"recent_trades"`
	ConsecutiveLosses int       `json:"consecutive_losses"`
	TotalTrades       int       `json:"total_trades"`
	Wins              int       `json:"wins"`
}

// Account is the virtual capital of one strategy. It is never shared across strategies.
type Account struct {
	mu                sync.Mutex
	strategyID        string
	initial           float64
	balance           float64
	peak              float64
	recent            []float64 // ring of the last recentLimit outcomes
	recentLimit       int
	consecutiveLosses int
	totalTrades       int
	wins              int
}

// NewAccount creates an account funded with initial capital.
func NewAccount(strategyID string, initial float64, recentLimit int) *Account {
	if recentLimit <= 0 {
		recentLimit = 1
	}
	return &Account{
		strategyID:  strategyID,
		initial:     initial,
		balance:     initial,
		peak:        initial,
		recent:      make([]float64, 0, recentLimit),
		recentLimit: recentLimit,
	}
}

// ApplyOutcome books the pnl of one closed trade and returns the amount actually applied.
// A loss larger than the balance is capped so the balance stops at zero.
func (a *Account) ApplyOutcome(pnl float64) float64 {
	a.mu.Lock()
	defer a.mu.Unlock()

	applied := pnl
	if a.balance+applied < 0 {
		applied = -a.balance
	}
	a.balance += applied

	if len(a.recent) == a.recentLimit {
		copy(a.recent, a.recent[1:])
		a.recent = a.recent[:len(a.recent)-1]
	}
	a.recent = append(a.recent, applied)

	a.totalTrades++
	if applied > 0 {
		a.wins++
		a.consecutiveLosses = 0
	} else {
		a.consecutiveLosses++
	}

	a.updatePeakLocked()
	return applied
}

// UpdatePeak raises the peak to the current balance if it is higher. Idempotent.
func (a *Account) UpdatePeak() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.updatePeakLocked()
}

func (a *Account) updatePeakLocked() {
	if a.balance > a.peak {
		a.peak = a.balance
	}
}

// DrawdownPercent returns (peak-balance)/peak*100, never negative.
func (a *Account) DrawdownPercent() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.drawdownLocked()
}

func (a *Account) drawdownLocked() float64 {
	if a.peak <= 0 {
		return 0
	}
	return math.Max(0, (a.peak-a.balance)/a.peak*100)
}

func (a *Account) Balance() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.balance
}

func (a *Account) PeakBalance() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.peak
}

// ResetConsecutiveLosses clears the loss streak, as when a circuit breaker halt expires.
func (a *Account) ResetConsecutiveLosses() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.consecutiveLosses = 0
}

func (a *Account) StrategyID() string { return a.strategyID }

func (a *Account) InitialCapital() float64 { return a.initial }

// Snapshot returns a copy of the current account state.
func (a *Account) Snapshot() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	recent := make([]float64, len(a.recent))
	copy(recent, a.recent)
	return Snapshot{
		StrategyID:        a.strategyID,
		InitialCapital:    a.initial,
		Balance:           a.balance,
		PeakBalance:       a.peak,
		DrawdownPercent:   a.drawdownLocked(),
		RecentTrades:      recent,
		ConsecutiveLosses: a.consecutiveLosses,
		TotalTrades:       a.totalTrades,
		Wins:              a.wins,
	}
}

// Restore recovers the account from a persisted snapshot.
// Negative balances and peaks below the balance are repaired rather than trusted.
func (a *Account) Restore(s Snapshot) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.balance = math.Max(0, s.Balance)
	a.peak = math.Max(s.PeakBalance, a.balance)
	a.consecutiveLosses = s.ConsecutiveLosses
	a.totalTrades = s.TotalTrades
	a.wins = s.Wins

	recent := s.RecentTrades
	if len(recent) > a.recentLimit {
		recent = recent[len(recent)-a.recentLimit:]
	}
	a.recent = append(a.recent[:0], recent...)
}
