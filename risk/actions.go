// risk/actions.go
package risk

import (
	"fmt"
	"time"
)

// Event is anything the risk side wants surfaced to operators (logs, alerts, status stream).
type Event interface {
	Description() string
}

// HaltEvent is emitted when a circuit breaker halts a strategy.
type HaltEvent struct {
	StrategyID string
	Reason     string
	Until      time.Time
	Remaining  time.Duration
}

func (e *HaltEvent) Description() string {
	return fmt.Sprintf("Circuit breaker halted %s: %s (%.1fh remaining, until %s)",
		e.StrategyID, e.Reason, e.Remaining.Hours(), e.Until.Format(time.RFC3339))
}

// ResumeEvent is emitted when an expired halt is lifted.
type ResumeEvent struct {
	StrategyID string
}

func (e *ResumeEvent) Description() string {
	return fmt.Sprintf("Circuit breaker halt expired for %s, trading resumed", e.StrategyID)
}

// DrawdownLimitEvent is emitted when MaximumDrawdown blocks trading. It is not a breaker halt.
type DrawdownLimitEvent struct {
	StrategyID      string
	DrawdownPercent float64
	MaxPercent      float64
}

func (e *DrawdownLimitEvent) Description() string {
	return fmt.Sprintf("Trading halted for %s: drawdown %.2f%% exceeds limit %.2f%%",
		e.StrategyID, e.DrawdownPercent, e.MaxPercent)
}

// EventHandler receives risk events. It must not call back into the emitter.
type EventHandler func(Event)
