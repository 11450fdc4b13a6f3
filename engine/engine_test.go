package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"apex_hunter_go/config"
	"apex_hunter_go/exchange"
	"apex_hunter_go/position"
	"apex_hunter_go/risk"
	"apex_hunter_go/strategy"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ---- fakes ----

type fakeFeed struct {
	mu          sync.Mutex
	prices      map[string]float64
	priceErr    error
	candleCalls int
}

func newFakeFeed() *fakeFeed { return &fakeFeed{prices: map[string]float64{}} }

func (f *fakeFeed) set(symbol string, price float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prices[symbol] = price
}

func (f *fakeFeed) GetLatestPrice(ctx context.Context, symbol string) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.priceErr != nil {
		return 0, f.priceErr
	}
	return f.prices[symbol], nil
}

func (f *fakeFeed) GetCandles(ctx context.Context, symbol, timeframe string, limit int) ([]exchange.Candle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.candleCalls++
	p := f.prices[symbol]
	return []exchange.Candle{{Open: p, High: p, Low: p, Close: p}}, nil
}

// producer returns queued signals, then repeat (if set), then nothing.
type producer struct {
	mu     sync.Mutex
	queue  []*strategy.Signal
	repeat *strategy.Signal
	err    error
	calls  int
}

func (p *producer) Name() string { return "fake" }

func (p *producer) GenerateSignal(candles []exchange.Candle) (*strategy.Signal, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	if len(p.queue) > 0 {
		s := p.queue[0]
		p.queue = p.queue[1:]
		return s, nil
	}
	if p.repeat != nil {
		s := *p.repeat
		return &s, nil
	}
	return nil, nil
}

func longSignal() *strategy.Signal {
	return &strategy.Signal{Side: exchange.Long, EntryPrice: 100, StopLoss: 98, TakeProfit: 110, Confidence: 0.8}
}

type fakeJournal struct {
	mu         sync.Mutex
	trades     []position.Trade
	rejections []risk.Rejection
	trailing   []position.TrailingUpdate
}

func (j *fakeJournal) RecordTrade(t position.Trade) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.trades = append(j.trades, t)
	return nil
}

func (j *fakeJournal) RecordRejection(r risk.Rejection) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.rejections = append(j.rejections, r)
	return nil
}

func (j *fakeJournal) RecordTrailingUpdate(u position.TrailingUpdate) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.trailing = append(j.trailing, u)
	return errors.New("disk full")
}

type fakeNotifier struct {
	mu         sync.Mutex
	entries    int
	exits      int
	trailing   int
	riskEvents []risk.Event
	panicEntry bool
}

func (n *fakeNotifier) NotifyEntry(position.Position) {
	n.mu.Lock()
	n.entries++
	n.mu.Unlock()
	if n.panicEntry {
		panic("telegram down")
	}
}

func (n *fakeNotifier) NotifyExit(position.Trade) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.exits++
}

func (n *fakeNotifier) NotifyTrailingUpdate(position.TrailingUpdate) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.trailing++
}

func (n *fakeNotifier) NotifyRiskEvent(ev risk.Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.riskEvents = append(n.riskEvents, ev)
}

type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *eventLog) Observe(ev Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
}

func (l *eventLog) count(t EventType) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, ev := range l.events {
		if ev.Type == t {
			n++
		}
	}
	return n
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type harness struct {
	engine   *Engine
	feed     *fakeFeed
	journal  *fakeJournal
	notifier *fakeNotifier
	events   *eventLog
	clock    *clock
}

func testConfig() *config.Config {
	cfg := config.NewConfig()
	cfg.Trailing.TPEnabled = false
	cfg.Risk.MaxDailyLossPercent = 50
	return cfg
}

func newHarness(t *testing.T, cfg *config.Config, producers map[string]strategy.Producer, order ...string) *harness {
	t.Helper()
	h := &harness{
		feed:     newFakeFeed(),
		journal:  &fakeJournal{},
		notifier: &fakeNotifier{},
		events:   &eventLog{},
		clock:    &clock{t: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)},
	}
	var specs []StrategySpec
	for _, id := range order {
		specs = append(specs, StrategySpec{ID: id, Producer: producers[id]})
	}
	e, err := New(Options{
		Config:     cfg,
		Feed:       h.feed,
		Strategies: specs,
		Journal:    h.journal,
		Notifier:   h.notifier,
		Observers:  []Observer{h.events},
		Now:        h.clock.now,
	})
	require.NoError(t, err)
	h.engine = e
	return h
}

func (h *harness) tick(t *testing.T, price float64) {
	t.Helper()
	h.feed.set("BTCUSDT", price)
	require.NoError(t, h.engine.RunCycle(context.Background(), []string{"BTCUSDT"}))
	h.clock.advance(time.Minute)
}

// ---- tests ----

func TestNewValidatesOptions(t *testing.T) {
	cfg := testConfig()
	_, err := New(Options{Config: cfg})
	assert.Error(t, err)

	_, err = New(Options{Config: cfg, Feed: newFakeFeed()})
	assert.Error(t, err)

	p := &producer{}
	_, err = New(Options{Config: cfg, Feed: newFakeFeed(), Strategies: []StrategySpec{{ID: "a", Producer: p}, {ID: "a", Producer: p}}})
	assert.Error(t, err)
}

func TestApprovedSignalOpensSizedPosition(t *testing.T) {
	p := &producer{queue: []*strategy.Signal{longSignal()}}
	h := newHarness(t, testConfig(), map[string]strategy.Producer{"s1": p}, "s1")

	h.tick(t, 100)

	pos, ok := h.engine.Book().Get("s1", "BTCUSDT")
	require.True(t, ok)
	assert.Equal(t, 10.0, pos.SizeUSD, "10% of 100")
	assert.Equal(t, 5, pos.Leverage, "confidence 0.8 lands in the 5x band")
	assert.InDelta(t, 98.0, pos.StopLoss, 1e-9)
	assert.Equal(t, 110.0, pos.TakeProfit)
	assert.Equal(t, 1, h.notifier.entries)
	assert.Equal(t, 1, h.events.count(EventEntry))
}

func TestTrailingStopLocksProfitAndSettles(t *testing.T) {
	p := &producer{queue: []*strategy.Signal{longSignal()}}
	h := newHarness(t, testConfig(), map[string]strategy.Producer{"s1": p}, "s1")

	h.tick(t, 100)
	h.tick(t, 106)

	pos, ok := h.engine.Book().Get("s1", "BTCUSDT")
	require.True(t, ok)
	assert.True(t, pos.TrailingStopActive)
	assert.InDelta(t, 103.88, pos.StopLoss, 1e-9)
	require.Len(t, h.journal.trailing, 1, "a failing journal write is swallowed")
	assert.Equal(t, 1, h.notifier.trailing)

	h.tick(t, 103)

	_, ok = h.engine.Book().Get("s1", "BTCUSDT")
	assert.False(t, ok, "stop hit closes the position")
	require.Len(t, h.journal.trades, 1)
	trade := h.journal.trades[0]
	assert.Equal(t, position.ExitStopLoss, trade.ExitReason)
	assert.Equal(t, 103.0, trade.ExitPrice)
	// 10 x 3% x 5
	assert.InDelta(t, 1.5, trade.PnLUSD, 1e-9)
	assert.InDelta(t, 15.0, trade.PnLPercent, 1e-9)
	assert.InDelta(t, 101.5, trade.BalanceAfter, 1e-9)
	assert.True(t, trade.IsWin())
	assert.Equal(t, 1, h.notifier.exits)
	assert.Equal(t, 1, p.calls, "producer is only asked while flat")

	sum := h.engine.Summary()
	require.Len(t, sum, 1)
	assert.InDelta(t, 101.5, sum[0].Balance, 1e-9)
	assert.Equal(t, 1, sum[0].Trades)
	assert.Equal(t, 100.0, sum[0].WinRate)
	assert.Equal(t, 5.0, sum[0].AverageLeverage)
}

func TestNoReentryOnExitTick(t *testing.T) {
	p := &producer{repeat: longSignal()}
	h := newHarness(t, testConfig(), map[string]strategy.Producer{"s1": p}, "s1")

	h.tick(t, 100)
	h.tick(t, 97)

	_, ok := h.engine.Book().Get("s1", "BTCUSDT")
	assert.False(t, ok)
	assert.Equal(t, 1, p.calls)

	h.tick(t, 100)
	_, ok = h.engine.Book().Get("s1", "BTCUSDT")
	assert.True(t, ok, "next tick may enter again")
}

func TestConsecutiveLossesHaltStrategy(t *testing.T) {
	cfg := testConfig()
	cfg.CircuitBreaker.ConsecutiveLosses = 3
	p := &producer{repeat: longSignal()}
	h := newHarness(t, cfg, map[string]strategy.Producer{"s1": p}, "s1")

	for i := 0; i < 3; i++ {
		h.tick(t, 100)
		h.tick(t, 97)
	}
	require.Len(t, h.journal.trades, 3)
	for _, tr := range h.journal.trades {
		assert.False(t, tr.IsWin())
	}
	// Balances chain exactly through each trade.
	balance := 100.0
	for _, tr := range h.journal.trades {
		balance += tr.PnLUSD
		assert.InDelta(t, balance, tr.BalanceAfter, 1e-9)
	}

	h.tick(t, 100)
	_, ok := h.engine.Book().Get("s1", "BTCUSDT")
	assert.False(t, ok)
	require.Len(t, h.journal.rejections, 1)
	rej := h.journal.rejections[0]
	assert.Equal(t, "CircuitBreaker", rej.Layer)
	assert.Equal(t, "Circuit breaker active", rej.Reason)
	assert.Equal(t, "s1", rej.StrategyID)

	var halts int
	for _, ev := range h.notifier.riskEvents {
		if _, ok := ev.(*risk.HaltEvent); ok {
			halts++
		}
	}
	assert.Equal(t, 1, halts)
	assert.True(t, h.engine.Summary()[0].Halted)
}

func TestBreakerResumeClearsAccountLossStreak(t *testing.T) {
	cfg := testConfig()
	cfg.CircuitBreaker.ConsecutiveLosses = 3
	p := &producer{repeat: longSignal()}
	h := newHarness(t, cfg, map[string]strategy.Producer{"s1": p}, "s1")

	for i := 0; i < 3; i++ {
		h.tick(t, 100)
		h.tick(t, 97)
	}
	require.True(t, h.engine.Summary()[0].Halted)
	require.Equal(t, 3, h.engine.Snapshot().Accounts["s1"].ConsecutiveLosses)

	h.clock.advance(time.Duration(cfg.CircuitBreaker.HaltHours * float64(time.Hour)))
	h.tick(t, 100)

	_, ok := h.engine.Book().Get("s1", "BTCUSDT")
	assert.True(t, ok, "trading resumes once the halt expires")
	acct := h.engine.Snapshot().Accounts["s1"]
	assert.Equal(t, 0, acct.ConsecutiveLosses)
	assert.Equal(t, 3, acct.TotalTrades)

	var resumes int
	for _, ev := range h.notifier.riskEvents {
		if _, ok := ev.(*risk.ResumeEvent); ok {
			resumes++
		}
	}
	assert.Equal(t, 1, resumes)
}

func TestFlashCrashRejectsAndHalts(t *testing.T) {
	p := &producer{queue: []*strategy.Signal{longSignal()}}
	h := newHarness(t, testConfig(), map[string]strategy.Producer{"s1": p}, "s1")

	h.tick(t, 89)

	require.Len(t, h.journal.rejections, 1)
	assert.Equal(t, "Flash crash detected", h.journal.rejections[0].Reason)
	assert.True(t, h.engine.Summary()[0].Halted)
	assert.Equal(t, 1, h.events.count(EventRejection))
}

func TestInvalidPriceSkipsTick(t *testing.T) {
	p := &producer{repeat: longSignal()}
	h := newHarness(t, testConfig(), map[string]strategy.Producer{"s1": p}, "s1")

	h.tick(t, 0)
	h.feed.priceErr = errors.New("timeout")
	h.tick(t, 100)

	assert.Equal(t, 0, p.calls)
	assert.Equal(t, 0, h.feed.candleCalls)
	assert.Equal(t, 0, h.engine.Book().Len())
}

func TestInvalidPriceNeverClosesPosition(t *testing.T) {
	p := &producer{queue: []*strategy.Signal{longSignal()}}
	h := newHarness(t, testConfig(), map[string]strategy.Producer{"s1": p}, "s1")

	h.tick(t, 100)
	h.tick(t, -1)
	_, ok := h.engine.Book().Get("s1", "BTCUSDT")
	assert.True(t, ok)
	assert.Empty(t, h.journal.trades)
}

func TestMalformedSignalsAreDiscarded(t *testing.T) {
	bad := []*strategy.Signal{
		{Side: "BOTH", EntryPrice: 100, TakeProfit: 110, Confidence: 0.8},
		{Side: exchange.Long, EntryPrice: 0, TakeProfit: 110, Confidence: 0.8},
		{Side: exchange.Long, EntryPrice: 100, TakeProfit: 90, Confidence: 0.8},
		{Side: exchange.Short, EntryPrice: 100, TakeProfit: 105, Confidence: 0.8},
		{Side: exchange.Long, EntryPrice: 100, TakeProfit: 110, Confidence: 1.5},
	}
	p := &producer{queue: bad}
	h := newHarness(t, testConfig(), map[string]strategy.Producer{"s1": p}, "s1")

	for range bad {
		h.tick(t, 100)
	}
	assert.Equal(t, 0, h.engine.Book().Len())
	assert.Empty(t, h.journal.rejections, "malformed input is not a business rejection")
	assert.Equal(t, len(bad), p.calls)
	assert.Equal(t, len(bad), h.feed.candleCalls, "candles are fetched once per tick")
}

func TestMissingTakeProfitUsesDefault(t *testing.T) {
	sig := &strategy.Signal{Side: exchange.Short, EntryPrice: 100, Confidence: 0.6}
	p := &producer{queue: []*strategy.Signal{sig}}
	h := newHarness(t, testConfig(), map[string]strategy.Producer{"s1": p}, "s1")

	h.tick(t, 100)
	pos, ok := h.engine.Book().Get("s1", "BTCUSDT")
	require.True(t, ok)
	assert.InDelta(t, 96.0, pos.TakeProfit, 1e-9)
	assert.InDelta(t, 102.0, pos.StopLoss, 1e-9)
	assert.Equal(t, 2, pos.Leverage)
}

func TestProducerErrorSkipsStrategyOnly(t *testing.T) {
	broken := &producer{err: errors.New("indicator failure")}
	healthy := &producer{queue: []*strategy.Signal{longSignal()}}
	h := newHarness(t, testConfig(), map[string]strategy.Producer{"bad": broken, "good": healthy}, "bad", "good")

	h.tick(t, 100)
	_, ok := h.engine.Book().Get("good", "BTCUSDT")
	assert.True(t, ok)
	assert.Equal(t, 1, h.feed.candleCalls, "one candle fetch shared by both strategies")
}

func TestNotifierPanicDoesNotAffectCore(t *testing.T) {
	p := &producer{queue: []*strategy.Signal{longSignal()}}
	h := newHarness(t, testConfig(), map[string]strategy.Producer{"s1": p}, "s1")
	h.notifier.panicEntry = true

	assert.NotPanics(t, func() { h.tick(t, 100) })
	_, ok := h.engine.Book().Get("s1", "BTCUSDT")
	assert.True(t, ok)
	assert.Equal(t, 1, h.events.count(EventEntry))
}

func TestParallelStrategiesKeepSeparateAccounts(t *testing.T) {
	cfg := testConfig()
	cfg.Normal.ParallelStrategies = true
	a := &producer{repeat: longSignal()}
	b := &producer{repeat: &strategy.Signal{Side: exchange.Short, EntryPrice: 100, TakeProfit: 90, Confidence: 0.6}}
	h := newHarness(t, cfg, map[string]strategy.Producer{"a": a, "b": b}, "a", "b")

	h.tick(t, 100)
	assert.Equal(t, 2, h.engine.Book().Len())

	h.tick(t, 97) // long stopped out, short still open
	sum := h.engine.Summary()
	assert.Less(t, sum[0].Balance, 100.0)
	assert.Equal(t, 100.0, sum[1].Balance)
	assert.Equal(t, 1, sum[1].OpenPositions)
}

func TestSnapshotRestoreRoundTrip(t *testing.T) {
	p := &producer{queue: []*strategy.Signal{longSignal(), longSignal()}}
	h := newHarness(t, testConfig(), map[string]strategy.Producer{"s1": p}, "s1")

	h.tick(t, 100)
	h.tick(t, 97)
	h.tick(t, 100)
	h.tick(t, 106)
	st := h.engine.Snapshot()
	require.Len(t, st.Positions, 1)

	again := newHarness(t, testConfig(), map[string]strategy.Producer{"s1": &producer{}}, "s1")
	again.engine.Restore(st)

	before, after := h.engine.Summary()[0], again.engine.Summary()[0]
	assert.InDelta(t, before.Balance, after.Balance, 1e-9)
	assert.InDelta(t, before.PeakBalance, after.PeakBalance, 1e-9)
	assert.Equal(t, before.ConsecutiveLosses, after.ConsecutiveLosses)
	assert.InDelta(t, before.DailyPnL, after.DailyPnL, 1e-9)

	pos, ok := again.engine.Book().Get("s1", "BTCUSDT")
	require.True(t, ok)
	assert.InDelta(t, 103.88, pos.StopLoss, 1e-9)
	assert.True(t, pos.TrailingStopActive)

	// The restored position keeps trailing from where it left off.
	again.tick(t, 103)
	assert.Len(t, again.journal.trades, 1)
}

func TestRunCycleHonoursCancellation(t *testing.T) {
	p := &producer{repeat: longSignal()}
	h := newHarness(t, testConfig(), map[string]strategy.Producer{"s1": p}, "s1")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, h.engine.RunCycle(ctx, []string{"BTCUSDT"}), context.Canceled)
	assert.Equal(t, 0, p.calls)
}
