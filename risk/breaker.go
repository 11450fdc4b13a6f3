package risk

import (
	"sync"
	"time"

	"apex_hunter_go/config"
	"apex_hunter_go/logs"
)

// BreakerSnapshot is the persisted form of a circuit breaker.
type BreakerSnapshot struct {
	ConsecutiveLosses int        `json:"consecutive_losses"`
	HaltUntil         *time.Time `json:"halt_until,omitempty"`
	Reason            string     `json:"reason,omitempty"`
}

// CircuitBreaker is the timed halt of one strategy. Normal -> Halted -> Normal.
// Recovery is lazy: IsHalted lifts an expired halt and resets the loss streak.
type CircuitBreaker struct {
	mu                sync.Mutex
	strategyID        string
	cfg               config.CircuitBreakerConfig
	now               Clock
	consecutiveLosses int
	haltUntil         time.Time
	reason            string
	onEvent           EventHandler
}

// NewCircuitBreaker creates a breaker in the Normal state.
func NewCircuitBreaker(strategyID string, cfg config.CircuitBreakerConfig, now Clock) *CircuitBreaker {
	if now == nil {
		now = time.Now
	}
	return &CircuitBreaker{strategyID: strategyID, cfg: cfg, now: now}
}

// SetEventHandler registers the receiver of halt and resume events.
func (b *CircuitBreaker) SetEventHandler(h EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onEvent = h
}

func (b *CircuitBreaker) emit(ev Event) {
	b.mu.Lock()
	h := b.onEvent
	b.mu.Unlock()
	if h != nil && ev != nil {
		h(ev)
	}
}

// RecordTradeResult feeds one closed trade into the loss streak.
func (b *CircuitBreaker) RecordTradeResult(isWin bool) {
	b.mu.Lock()
	var ev Event
	if isWin {
		b.consecutiveLosses = 0
	} else {
		b.consecutiveLosses++
		if b.consecutiveLosses >= b.cfg.ConsecutiveLosses {
			ev = b.triggerLocked("Consecutive losses threshold reached")
		}
	}
	b.mu.Unlock()
	b.emit(ev)
}

// RecordCriticalFailure halts the strategy after an externally detected failure.
func (b *CircuitBreaker) RecordCriticalFailure(reason string) {
	b.Trigger("Critical failure: " + reason)
}

// Trigger halts for the configured hours. It reports whether a halt was set;
// with halt_hours 0 nothing happens.
func (b *CircuitBreaker) Trigger(reason string) bool {
	b.mu.Lock()
	ev := b.triggerLocked(reason)
	b.mu.Unlock()
	b.emit(ev)
	return ev != nil
}

func (b *CircuitBreaker) triggerLocked(reason string) Event {
	if b.cfg.HaltHours <= 0 {
		return nil
	}
	now := b.now()
	b.haltUntil = now.Add(time.Duration(b.cfg.HaltHours * float64(time.Hour)))
	b.reason = reason
	logs.Errorf("[CircuitBreaker] %s ACTIVATED: %s, trading halted until %s", b.strategyID, reason, b.haltUntil.Format(time.RFC3339))
	return &HaltEvent{
		StrategyID: b.strategyID,
		Reason:     reason,
		Until:      b.haltUntil,
		Remaining:  b.haltUntil.Sub(now),
	}
}

// IsHalted reports whether the strategy is halted. Exactly at haltUntil it returns false,
// clears the halt and resets the loss streak.
func (b *CircuitBreaker) IsHalted() bool {
	b.mu.Lock()
	if b.haltUntil.IsZero() {
		b.mu.Unlock()
		return false
	}
	if b.now().Before(b.haltUntil) {
		b.mu.Unlock()
		return true
	}
	b.haltUntil = time.Time{}
	b.reason = ""
	b.consecutiveLosses = 0
	b.mu.Unlock()

	logs.Infof("[CircuitBreaker] %s halt period expired, trading resumed", b.strategyID)
	b.emit(&ResumeEvent{StrategyID: b.strategyID})
	return false
}

// Remaining is the time left in the current halt, zero when not halted.
func (b *CircuitBreaker) Remaining() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.haltUntil.IsZero() {
		return 0
	}
	if d := b.haltUntil.Sub(b.now()); d > 0 {
		return d
	}
	return 0
}

func (b *CircuitBreaker) ConsecutiveLosses() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.consecutiveLosses
}

func (b *CircuitBreaker) Enabled() bool { return b.cfg.Enabled }

func (b *CircuitBreaker) Snapshot() BreakerSnapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := BreakerSnapshot{ConsecutiveLosses: b.consecutiveLosses, Reason: b.reason}
	if !b.haltUntil.IsZero() {
		until := b.haltUntil
		s.HaltUntil = &until
	}
	return s
}

func (b *CircuitBreaker) Restore(s BreakerSnapshot) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.consecutiveLosses = s.ConsecutiveLosses
	b.reason = s.Reason
	b.haltUntil = time.Time{}
	if s.HaltUntil != nil {
		b.haltUntil = *s.HaltUntil
	}
}
