package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"apex_hunter_go/capital"
	"apex_hunter_go/config"
	"apex_hunter_go/exchange"
	"apex_hunter_go/logs"
	"apex_hunter_go/metrics"
	"apex_hunter_go/position"
	"apex_hunter_go/risk"
	"apex_hunter_go/strategy"
)

// Journal persists outcomes. journal.Journal satisfies it.
type Journal interface {
	RecordTrade(t position.Trade) error
	RecordRejection(r risk.Rejection) error
	RecordTrailingUpdate(u position.TrailingUpdate) error
}

// Notifier delivers alerts. It must not block; notify.Channel and notify.Fanout satisfy it.
type Notifier interface {
	NotifyEntry(pos position.Position)
	NotifyExit(trade position.Trade)
	NotifyTrailingUpdate(u position.TrailingUpdate)
	NotifyRiskEvent(ev risk.Event)
}

// Observer sees every engine event, e.g. the status websocket hub.
type Observer interface {
	Observe(ev Event)
}

type EventType string

const (
	EventEntry     EventType = "entry"
	EventExit      EventType = "exit"
	EventRejection EventType = "rejection"
	EventTrailing  EventType = "trailing"
	EventRisk      EventType = "risk"
)

// Event is the observer payload.
type Event struct {
	Type       EventType   `json:"type"`
	At         time.Time   `json:"at"`
	StrategyID string      `json:"strategy_id,omitempty"`
	Symbol     string      `json:"symbol,omitempty"`
	Message    string      `json:"message,omitempty"`
	Data       interface{} `json:"data,omitempty"`
}

// StrategySpec binds a strategy id to its signal producer.
type StrategySpec struct {
	ID       string
	Producer strategy.Producer
}

// Options configure New. Journal, Notifier, Observers and Now are optional.
type Options struct {
	Config     *config.Config
	Feed       exchange.Feed
	Strategies []StrategySpec
	Journal    Journal
	Notifier   Notifier
	Observers  []Observer
	Now        func() time.Time
}

// desk is everything one strategy owns. mu serialises its account, breaker and positions.
type desk struct {
	mu       sync.Mutex
	id       string
	account  *capital.Account
	risk     *risk.Manager
	producer strategy.Producer

	entries     int
	leverageSum int
}

// Engine drives one evaluation and lifecycle tick per (strategy, symbol).
type Engine struct {
	cfg       *config.Config
	feed      exchange.Feed
	book      *position.Book
	trailer   *position.Trailer
	desks     []*desk
	byID      map[string]*desk
	journal   Journal
	notifier  Notifier
	observers []Observer
	now       func() time.Time
}

func New(opts Options) (*Engine, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("engine: config is required")
	}
	if opts.Feed == nil {
		return nil, fmt.Errorf("engine: price feed is required")
	}
	if len(opts.Strategies) == 0 {
		return nil, fmt.Errorf("engine: at least one strategy is required")
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	e := &Engine{
		cfg:       opts.Config,
		feed:      opts.Feed,
		book:      position.NewBook(),
		trailer:   position.NewTrailer(opts.Config.Trailing),
		byID:      make(map[string]*desk, len(opts.Strategies)),
		journal:   opts.Journal,
		notifier:  opts.Notifier,
		observers: opts.Observers,
		now:       now,
	}

	for _, s := range opts.Strategies {
		if s.ID == "" || s.Producer == nil {
			return nil, fmt.Errorf("engine: strategy needs an id and a producer")
		}
		if _, dup := e.byID[s.ID]; dup {
			return nil, fmt.Errorf("engine: duplicate strategy id '%s'", s.ID)
		}
		d := &desk{
			id:       s.ID,
			account:  capital.NewAccount(s.ID, opts.Config.Capital.InitialCapital, opts.Config.Capital.RecentTradesLimit),
			producer: s.Producer,
		}
		d.risk = risk.NewManager(s.ID, opts.Config, risk.Clock(now), e.onRiskEvent)
		e.desks = append(e.desks, d)
		e.byID[s.ID] = d
		logs.Infof("[Engine] Strategy %s ready with $%.2f virtual capital, signals from %s",
			d.account.StrategyID(), d.account.InitialCapital(), s.Producer.Name())
	}
	return e, nil
}

// Book exposes the open positions.
func (e *Engine) Book() *position.Book { return e.book }

// StrategyIDs returns the strategy ids in configuration order.
func (e *Engine) StrategyIDs() []string {
	ids := make([]string, len(e.desks))
	for i, d := range e.desks {
		ids[i] = d.id
	}
	return ids
}

// RunCycle processes every symbol once. It returns ctx.Err() if cancelled mid-cycle.
func (e *Engine) RunCycle(ctx context.Context, symbols []string) error {
	start := time.Now()
	defer func() { metrics.CycleDuration.Observe(time.Since(start).Seconds()) }()

	for _, symbol := range symbols {
		if err := ctx.Err(); err != nil {
			return err
		}
		e.ProcessSymbol(ctx, symbol)
	}

	for _, d := range e.desks {
		d.mu.Lock()
		metrics.UpdateAccount(d.id, d.account.Balance(), d.account.DrawdownPercent(),
			len(e.book.SymbolsForStrategy(d.id)), d.risk.IsTradingHalted())
		d.mu.Unlock()
	}
	return nil
}

// ProcessSymbol runs one tick of every strategy for symbol. An invalid price skips the symbol.
func (e *Engine) ProcessSymbol(ctx context.Context, symbol string) {
	price, err := e.feed.GetLatestPrice(ctx, symbol)
	if err != nil {
		logs.Warnf("[Engine] Skipping %s this tick: price fetch failed: %v", symbol, err)
		metrics.FeedErrors.WithLabelValues(symbol, "price").Inc()
		return
	}
	if !exchange.ValidPrice(price) {
		logs.Warnf("[Engine] Skipping %s this tick: invalid price %v", symbol, price)
		metrics.FeedErrors.WithLabelValues(symbol, "invalid_price").Inc()
		return
	}

	candles := newCandleCache(func() ([]exchange.Candle, error) {
		return e.feed.GetCandles(ctx, symbol, e.cfg.Normal.CandleTimeframe, e.cfg.Normal.CandleLimit)
	})

	if !e.cfg.Normal.ParallelStrategies || len(e.desks) == 1 {
		for _, d := range e.desks {
			e.processDesk(ctx, d, symbol, price, candles)
		}
		return
	}

	var wg sync.WaitGroup
	for _, d := range e.desks {
		wg.Add(1)
		go func(d *desk) {
			defer wg.Done()
			e.processDesk(ctx, d, symbol, price, candles)
		}(d)
	}
	wg.Wait()
}

// candleCache fetches candles at most once per symbol tick, and only if some strategy asks.
type candleCache struct {
	once    sync.Once
	fetch   func() ([]exchange.Candle, error)
	candles []exchange.Candle
	err     error
}

func newCandleCache(fetch func() ([]exchange.Candle, error)) *candleCache {
	return &candleCache{fetch: fetch}
}

func (c *candleCache) get() ([]exchange.Candle, error) {
	c.once.Do(func() { c.candles, c.err = c.fetch() })
	return c.candles, c.err
}

func (e *Engine) onRiskEvent(ev risk.Event) {
	out := Event{Type: EventRisk, At: e.now(), Message: ev.Description(), Data: ev}
	switch v := ev.(type) {
	case *risk.HaltEvent:
		metrics.BreakerHalts.WithLabelValues(v.StrategyID).Inc()
		out.StrategyID = v.StrategyID
		logs.Errorf("[CircuitBreaker] %s", ev.Description())
	case *risk.ResumeEvent:
		out.StrategyID = v.StrategyID
		// The account streak restarts with the breaker's. byID is read-only after New.
		if d, ok := e.byID[v.StrategyID]; ok {
			d.account.ResetConsecutiveLosses()
		}
		logs.Infof("[CircuitBreaker] %s", ev.Description())
	case *risk.DrawdownLimitEvent:
		out.StrategyID = v.StrategyID
		logs.Warnf("[Engine] %s", ev.Description())
	}
	e.safely("notify risk event", func() {
		if e.notifier != nil {
			e.notifier.NotifyRiskEvent(ev)
		}
	})
	e.publish(out)
}

func (e *Engine) publish(ev Event) {
	for _, o := range e.observers {
		o := o
		e.safely("observer", func() { o.Observe(ev) })
	}
}

// safely runs a sink call. Sink failures never reach the core.
func (e *Engine) safely(what string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logs.Errorf("[Engine] %s panicked: %v", what, r)
		}
	}()
	fn()
}
