package risk

import (
	"math/rand"
	"testing"
	"time"

	"apex_hunter_go/config"
	"apex_hunter_go/exchange"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPositionSizing(t *testing.T) {
	l := &PositionSizing{BasePercent: 10, MinSize: 1, MaxSize: 1000, MaxDrawdownPercent: 15}

	tests := []struct {
		name     string
		balance  float64
		drawdown float64
		wantSize float64
		rejected bool
	}{
		{"full size", 100, 0, 10, false},
		{"a third of max drawdown", 100, 15 * 0.33, 6.7, false},
		{"two thirds of max drawdown", 100, 15 * 0.67, 3.3, false},
		{"at max drawdown", 100, 15, 0, true},
		{"below minimum", 5, 0, 0, true},
		{"clamped to maximum", 50000, 0, 1000, false},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got, rej := l.Evaluate(Proposal{}, AccountState{Balance: tt.balance, DrawdownPercent: tt.drawdown})
			if tt.rejected {
				assert.NotNil(t, rej)
				return
			}
			require.Nil(t, rej)
			assert.InDelta(t, tt.wantSize, got.SizeUSD, 1e-9)
		})
	}
}

func TestLeverageControl(t *testing.T) {
	l := &LeverageControl{MaxLeverage: 10, MaxDrawdownPercent: 15}

	tests := []struct {
		name      string
		requested int
		drawdown  float64
		want      int
	}{
		{"within ceiling", 3, 0, 3},
		{"clamped to max", 50, 0, 10},
		{"a third of max drawdown", 10, 5, 7},
		{"two thirds of max drawdown halves", 10, 15 * 0.67, 5},
		{"non-positive request becomes 1", 0, 0, 1},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got, rej := l.Evaluate(Proposal{Leverage: tt.requested}, AccountState{DrawdownPercent: tt.drawdown})
			require.Nil(t, rej)
			assert.Equal(t, tt.want, got.Leverage)
		})
	}

	_, rej := (&LeverageControl{MaxLeverage: 0, MaxDrawdownPercent: 15}).Evaluate(Proposal{Leverage: 2}, AccountState{})
	assert.NotNil(t, rej, "a zero ceiling rejects")
}

func TestStopLossManagementIsDirectional(t *testing.T) {
	l := &StopLossManagement{StopLossPercent: 2}

	long, rej := l.Evaluate(Proposal{Side: exchange.Long, EntryPrice: 100}, AccountState{})
	require.Nil(t, rej)
	assert.InDelta(t, 98, long.StopLoss, 1e-9)

	short, rej := l.Evaluate(Proposal{Side: exchange.Short, EntryPrice: 100}, AccountState{})
	require.Nil(t, rej)
	assert.InDelta(t, 102, short.StopLoss, 1e-9)
}

func TestDailyLossLimitResetsOnNewDay(t *testing.T) {
	clock, now := fixedClock(time.Date(2024, 3, 1, 23, 0, 0, 0, time.Local))
	l := NewDailyLossLimit(100, 5, clock)
	l.RecordTrade(-3)
	l.RecordTrade(-2)

	_, rej := l.Evaluate(Proposal{}, AccountState{})
	require.NotNil(t, rej)
	assert.Equal(t, "Daily loss limit reached", rej.Reason)

	*now = now.Add(2 * time.Hour)
	_, rej = l.Evaluate(Proposal{}, AccountState{})
	assert.Nil(t, rej)
	assert.Equal(t, 0.0, l.DailyPnL())
}

func TestMaximumDrawdownEmitsEvent(t *testing.T) {
	var events []Event
	l := NewMaximumDrawdown("s1", 100, 15, func(e Event) { events = append(events, e) })
	l.UpdatePeak(200)

	_, rej := l.Evaluate(Proposal{}, AccountState{Balance: 180})
	assert.Nil(t, rej)

	_, rej = l.Evaluate(Proposal{}, AccountState{Balance: 170})
	require.NotNil(t, rej)
	require.Len(t, events, 1)
	ev := events[0].(*DrawdownLimitEvent)
	assert.InDelta(t, 15, ev.DrawdownPercent, 1e-9)
}

func TestCorrelationRiskCapsOpenPositions(t *testing.T) {
	l := &CorrelationRisk{MaxOpenPositions: 2}
	_, rej := l.Evaluate(Proposal{}, AccountState{OpenPositions: []string{"BTCUSDT"}})
	assert.Nil(t, rej)
	_, rej = l.Evaluate(Proposal{}, AccountState{OpenPositions: []string{"BTCUSDT", "ETHUSDT"}})
	assert.NotNil(t, rej)
}

func TestPassThroughLeavesProposalUnchanged(t *testing.T) {
	p := Proposal{Symbol: "BTCUSDT", SizeUSD: 12, Leverage: 3}
	got, rej := NewPassThrough("LiquidityCheck").Evaluate(p, AccountState{})
	assert.Nil(t, rej)
	assert.Equal(t, p, got)
}

func TestCapitalPreservationFloor(t *testing.T) {
	l := &CapitalPreservation{InitialCapital: 100, FloorPercent: 10}
	_, rej := l.Evaluate(Proposal{}, AccountState{Balance: 10})
	assert.NotNil(t, rej, "balance at the floor is rejected")
	_, rej = l.Evaluate(Proposal{}, AccountState{Balance: 10.01})
	assert.Nil(t, rej)
}

func TestCircuitBreakerLayerFlashCrash(t *testing.T) {
	clock, _ := fixedClock(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	b := NewCircuitBreaker("s1", config.CircuitBreakerConfig{Enabled: true, HaltHours: 48, ConsecutiveLosses: 5}, clock)
	l := &CircuitBreakerLayer{Breaker: b, FlashCrashPercent: -10}

	_, rej := l.Evaluate(Proposal{EntryPrice: 100, CurrentPrice: 95}, AccountState{})
	assert.Nil(t, rej)

	_, rej = l.Evaluate(Proposal{EntryPrice: 100, CurrentPrice: 90}, AccountState{})
	require.NotNil(t, rej)
	assert.Equal(t, "Flash crash detected", rej.Reason)
	assert.True(t, b.IsHalted())
	assert.Equal(t, 48*time.Hour, b.Remaining())
}

func TestCircuitBreakerLayerDisabled(t *testing.T) {
	b := NewCircuitBreaker("s1", config.CircuitBreakerConfig{Enabled: false, HaltHours: 1, ConsecutiveLosses: 1}, nil)
	b.RecordCriticalFailure("x")
	l := &CircuitBreakerLayer{Breaker: b, FlashCrashPercent: -10}
	_, rej := l.Evaluate(Proposal{EntryPrice: 100, CurrentPrice: 50}, AccountState{})
	assert.Nil(t, rej)
}

func TestCircuitBreakerHaltWindow(t *testing.T) {
	start := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	clock, now := fixedClock(start)
	b := NewCircuitBreaker("s1", config.CircuitBreakerConfig{Enabled: true, HaltHours: 2, ConsecutiveLosses: 3}, clock)
	var events []Event
	b.SetEventHandler(func(e Event) { events = append(events, e) })

	b.RecordTradeResult(false)
	b.RecordTradeResult(true)
	assert.Equal(t, 0, b.ConsecutiveLosses(), "a win resets the streak")

	for i := 0; i < 3; i++ {
		b.RecordTradeResult(false)
	}
	require.True(t, b.IsHalted())

	*now = start.Add(2*time.Hour - time.Nanosecond)
	assert.True(t, b.IsHalted())
	assert.Equal(t, 3, b.ConsecutiveLosses())

	*now = start.Add(2 * time.Hour)
	assert.False(t, b.IsHalted(), "not halted exactly at haltUntil")
	assert.Equal(t, 0, b.ConsecutiveLosses())
	assert.Equal(t, time.Duration(0), b.Remaining())

	require.Len(t, events, 2)
	assert.IsType(t, &HaltEvent{}, events[0])
	assert.IsType(t, &ResumeEvent{}, events[1])
}

func TestCircuitBreakerZeroHoursNeverHalts(t *testing.T) {
	b := NewCircuitBreaker("s1", config.CircuitBreakerConfig{Enabled: true, HaltHours: 0, ConsecutiveLosses: 1}, nil)
	assert.False(t, b.Trigger("manual"))
	b.RecordTradeResult(false)
	assert.False(t, b.IsHalted())
}

func TestLeverageSizerBands(t *testing.T) {
	s := LeverageSizer{Bands: config.NewConfig().Risk.LeverageBands, MaxDrawdownPercent: 15}

	tests := []struct {
		confidence float64
		drawdown   float64
		max        int
		want       int
	}{
		{0.9, 0, 10, 5},
		{0.75, 0, 10, 3},
		{0.7, 0, 10, 3},
		{0.6, 0, 10, 2},
		{0.55, 0, 10, 1},
		{0.1, 0, 10, 1},
		{0.9, 0, 4, 4},
		{0.9, 15 * 0.67, 6, 3},
		{0.9, 15 * 0.67, 1, 1},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, s.Leverage(tt.confidence, tt.drawdown, tt.max), "conf=%v dd=%v max=%v", tt.confidence, tt.drawdown, tt.max)
	}
}

func TestLeverageSizerBoundsProperty(t *testing.T) {
	s := LeverageSizer{Bands: config.NewConfig().Risk.LeverageBands, MaxDrawdownPercent: 15}
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 5000; i++ {
		conf := rng.Float64()
		dd := rng.Float64() * 100
		max := 1 + rng.Intn(20)
		lev := s.Leverage(conf, dd, max)
		require.GreaterOrEqual(t, lev, 1)
		require.LessOrEqual(t, lev, max)
	}
}

func TestSizeMultiplierAtTwoThirds(t *testing.T) {
	assert.Equal(t, 0.33, SizeMultiplier(15*0.67, 15))
	assert.Equal(t, 5, LeverageCeiling(10, 15*0.67, 15))
}
