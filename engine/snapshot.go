package engine

import (
	"time"

	"apex_hunter_go/capital"
	"apex_hunter_go/logs"
	"apex_hunter_go/position"
	"apex_hunter_go/risk"
	"apex_hunter_go/state"
)

// StrategySummary is the per-strategy report shown on shutdown and by the status API.
type StrategySummary struct {
	StrategyID        string        `json:"strategy_id"`
	InitialCapital    float64       `json:"initial_capital"`
	Balance           float64       `json:"balance"`
	PeakBalance       float64       `json:"peak_balance"`
	PnL               float64       `json:"pnl"`
	PnLPercent        float64       `json:"pnl_percent"`
	DrawdownPercent   float64       `json:"drawdown_percent"`
	Trades            int           `json:"trades"`
	Wins              int           `json:"wins"`
	WinRate           float64       `json:"win_rate"`
	ConsecutiveLosses int           `json:"consecutive_losses"`
	AverageLeverage   float64       `json:"average_leverage"`
	OpenPositions     int           `json:"open_positions"`
	DailyPnL          float64       `json:"daily_pnl"`
	Halted            bool          `json:"halted"`
	HaltRemaining     time.Duration `json:"halt_remaining"`
}

// Status is the full engine view served by the status API.
type Status struct {
	Time       time.Time           `json:"time"`
	Strategies []StrategySummary   `json:"strategies"`
	Positions  []position.Position `json:"positions"`
}

// Summary reports every strategy in configuration order.
func (e *Engine) Summary() []StrategySummary {
	out := make([]StrategySummary, 0, len(e.desks))
	for _, d := range e.desks {
		d.mu.Lock()
		snap := d.account.Snapshot()
		s := StrategySummary{
			StrategyID:        d.id,
			InitialCapital:    snap.InitialCapital,
			Balance:           snap.Balance,
			PeakBalance:       snap.PeakBalance,
			PnL:               snap.Balance - snap.InitialCapital,
			DrawdownPercent:   snap.DrawdownPercent,
			Trades:            snap.TotalTrades,
			Wins:              snap.Wins,
			ConsecutiveLosses: snap.ConsecutiveLosses,
			OpenPositions:     len(e.book.SymbolsForStrategy(d.id)),
			DailyPnL:          d.risk.DailyPnL(),
			Halted:            d.risk.IsTradingHalted(),
			HaltRemaining:     d.risk.Breaker().Remaining(),
		}
		if snap.InitialCapital > 0 {
			s.PnLPercent = s.PnL / snap.InitialCapital * 100
		}
		if snap.TotalTrades > 0 {
			s.WinRate = float64(snap.Wins) / float64(snap.TotalTrades) * 100
		}
		if d.entries > 0 {
			s.AverageLeverage = float64(d.leverageSum) / float64(d.entries)
		}
		d.mu.Unlock()
		out = append(out, s)
	}
	return out
}

// Status returns summaries and open positions.
func (e *Engine) Status() Status {
	return Status{Time: e.now(), Strategies: e.Summary(), Positions: e.book.All()}
}

// LogSummary writes the final report.
func (e *Engine) LogSummary() {
	logs.Infof("================ FINAL SUMMARY ================")
	for _, s := range e.Summary() {
		logs.Infof("[%s] Balance $%.2f (start $%.2f) | PnL $%+.2f (%+.2f%%) | Trades %d | Win rate %.1f%% | Avg leverage %.1fx | Open %d | Drawdown %.2f%%",
			s.StrategyID, s.Balance, s.InitialCapital, s.PnL, s.PnLPercent, s.Trades, s.WinRate,
			s.AverageLeverage, s.OpenPositions, s.DrawdownPercent)
		if s.Halted {
			logs.Warnf("[%s] Circuit breaker active, %s remaining", s.StrategyID, s.HaltRemaining.Round(time.Minute))
		}
	}
	logs.Infof("===============================================")
}

// Snapshot captures accounts, risk state and open positions for persistence.
func (e *Engine) Snapshot() state.AppState {
	st := state.AppState{
		SavedAt:  e.now(),
		Accounts: make(map[string]capital.Snapshot, len(e.desks)),
		Risk:     make(map[string]risk.ManagerSnapshot, len(e.desks)),
	}
	for _, d := range e.desks {
		d.mu.Lock()
		st.Accounts[d.id] = d.account.Snapshot()
		st.Risk[d.id] = d.risk.Snapshot()
		d.mu.Unlock()
	}
	st.Positions = e.book.All()
	return st
}

// Restore loads a saved state. Entries for strategies that are no longer configured are
// skipped, and positions that fail validation are dropped with an error log.
func (e *Engine) Restore(st state.AppState) {
	for id, snap := range st.Accounts {
		d, ok := e.byID[id]
		if !ok {
			logs.Warnf("[Engine] Ignoring saved account for unknown strategy %s", id)
			continue
		}
		d.mu.Lock()
		d.account.Restore(snap)
		if rs, ok := st.Risk[id]; ok {
			d.risk.Restore(rs)
		}
		d.risk.UpdatePeakBalance(d.account.PeakBalance())
		d.mu.Unlock()
		logs.Infof("[Engine] Restored %s: balance $%.2f, peak $%.2f", id, snap.Balance, snap.PeakBalance)
	}

	var keep []position.Position
	for _, p := range st.Positions {
		if _, ok := e.byID[p.StrategyID]; !ok {
			logs.Warnf("[Engine] Ignoring saved %s position for unknown strategy %s", p.Symbol, p.StrategyID)
			continue
		}
		keep = append(keep, p)
	}
	for _, err := range e.book.Restore(keep) {
		logs.Errorf("[Engine] Dropped saved position: %v", err)
	}
	if n := e.book.Len(); n > 0 {
		logs.Infof("[Engine] Restored %d open positions", n)
	}
}
