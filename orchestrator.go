// orchestrator.go
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"apex_hunter_go/config"
	"apex_hunter_go/engine"
	"apex_hunter_go/exchange"
	"apex_hunter_go/journal"
	"apex_hunter_go/logs"
	"apex_hunter_go/monitor"
	"apex_hunter_go/notify"
	"apex_hunter_go/state"
	"apex_hunter_go/strategy"
)

type Orchestrator struct {
	engine       *engine.Engine
	stateManager state.StateManagerInterface
	journal      *journal.Journal
	notifier     notify.Fanout
	hub          *monitor.Hub
	server       *monitor.Server
	ctx          context.Context
	cancel       context.CancelFunc
	wg           sync.WaitGroup
	cfg          *config.Config
	symbols      func(ctx context.Context) []string
}

func NewOrchestrator(cfg *config.Config, envCfg *config.EnvConfig, stateFilePath string) (*Orchestrator, error) {
	var (
		feed    exchange.Feed
		tickers exchange.TickerSource
	)
	if cfg.UseSimulation {
		seed := cfg.Simulation.Seed
		if seed == 0 {
			seed = time.Now().UnixNano()
		}
		mock := exchange.NewMockClient(seed, cfg.Simulation.StartPrice, cfg.Simulation.Volatility)
		mock.SetDrift(cfg.Simulation.Drift)
		for symbol, price := range cfg.Simulation.StartPrices {
			mock.SetPrice(symbol, price)
		}
		feed, tickers = mock, mock
		logs.Warnf("<<<<<<<<<< WARNING: Running in simulation mode >>>>>>>>>>")
	} else {
		api := exchange.NewAPIClient(envCfg.ApiKey, envCfg.BaseURL, cfg.Normal.HTTPTimeoutSeconds,
			cfg.Exchange.RequestsPerSecond, cfg.Exchange.Burst)
		feed, tickers = api, api
	}

	var specs []engine.StrategySpec
	for _, sc := range cfg.EnabledStrategies() {
		producer, err := strategy.New(sc)
		if err != nil {
			return nil, fmt.Errorf("failed to build strategy '%s': %w", sc.Name, err)
		}
		specs = append(specs, engine.StrategySpec{ID: sc.Name, Producer: producer})
	}

	o := &Orchestrator{cfg: cfg}
	o.ctx, o.cancel = context.WithCancel(context.Background())
	o.symbols = symbolSource(cfg, tickers)

	if cfg.Journal.Enabled {
		j, err := openJournalStore(cfg.Journal, envCfg.JournalDSN)
		if err != nil {
			return nil, err
		}
		o.journal = j
	}

	o.notifier = buildNotifiers(cfg, envCfg)

	var observers []engine.Observer
	if cfg.Server.Enabled {
		o.hub = monitor.NewHub()
		observers = append(observers, o.hub)
	}

	opts := engine.Options{
		Config:     cfg,
		Feed:       feed,
		Strategies: specs,
		Notifier:   o.notifier,
		Observers:  observers,
	}
	// A nil *journal.Journal must not become a non-nil interface.
	if o.journal != nil {
		opts.Journal = o.journal
	}
	eng, err := engine.New(opts)
	if err != nil {
		o.closeJournal()
		return nil, fmt.Errorf("failed to initialize engine: %w", err)
	}
	o.engine = eng

	stateManager, err := state.NewStateManager(stateFilePath)
	if err != nil {
		o.closeJournal()
		return nil, fmt.Errorf("failed to initialize state manager: %w", err)
	}
	o.stateManager = stateManager
	logs.Infof("State manager initialized successfully, state will be persisted to: %s", stateFilePath)

	if saved := stateManager.GetFullState(); !saved.Empty() {
		logs.Infof("[Orchestrator] Found saved state from %s, restoring", saved.SavedAt.Format(time.RFC3339))
		eng.Restore(saved)
	}

	if cfg.Server.Enabled {
		o.server = monitor.NewServer(cfg.Server.Addr, eng, o.hub)
	}
	return o, nil
}

// openJournalStore opens the configured journal. envDSN, when set, replaces the file's dsn.
func openJournalStore(jc config.JournalConfig, envDSN string) (*journal.Journal, error) {
	dsn := jc.DSN
	if envDSN != "" {
		dsn = envDSN
	}
	if jc.Driver == "sqlite3" && dsn != ":memory:" && !strings.HasPrefix(dsn, "file:") {
		if err := os.MkdirAll(filepath.Dir(dsn), 0755); err != nil {
			return nil, fmt.Errorf("failed to create journal directory: %w", err)
		}
	}
	j, err := journal.Open(jc.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	return j, nil
}

// symbolSource returns the fixed symbol list, or a top-volume selection when symbols is "auto".
func symbolSource(cfg *config.Config, tickers exchange.TickerSource) func(ctx context.Context) []string {
	if !cfg.Symbols.Auto() {
		fixed := []string(cfg.Symbols)
		return func(context.Context) []string { return fixed }
	}
	a := cfg.AutoSymbols
	universe := exchange.NewTopVolume(tickers, a.TopN, a.MinQuoteVolume, a.QuoteAsset,
		time.Duration(a.RefreshMinutes)*time.Minute, a.Fallback)
	logs.Infof("[Orchestrator] Trading the top %d %s pairs by 24h volume, refreshed every %d min", a.TopN, a.QuoteAsset, a.RefreshMinutes)
	return universe.Symbols
}

// buildNotifiers always logs; chat channels are added when enabled and their credentials are set.
func buildNotifiers(cfg *config.Config, envCfg *config.EnvConfig) notify.Fanout {
	timeout := time.Duration(cfg.Normal.HTTPTimeoutSeconds) * time.Second
	var ns []notify.Notifier
	ns = append(ns, notify.LogNotifier{})

	if cfg.Notify.TelegramEnabled {
		if envCfg.TelegramToken == "" || envCfg.TelegramChatID == "" {
			logs.Warnf("[Orchestrator] Telegram enabled but TELEGRAM_BOT_TOKEN or TELEGRAM_CHAT_ID is empty, skipping")
		} else if tg, err := notify.NewTelegram(envCfg.TelegramToken, envCfg.TelegramChatID, "", timeout); err != nil {
			logs.Errorf("[Orchestrator] Telegram notifier unavailable: %v", err)
		} else {
			ns = append(ns, tg)
			logs.Info("[Orchestrator] Telegram notifications enabled")
		}
	}

	if cfg.Notify.DiscordEnabled {
		if envCfg.DiscordWebhookURL == "" {
			logs.Warnf("[Orchestrator] Discord enabled but DISCORD_WEBHOOK_URL is empty, skipping")
		} else {
			ns = append(ns, notify.NewDiscord(envCfg.DiscordWebhookURL, timeout))
			logs.Info("[Orchestrator] Discord notifications enabled")
		}
	}
	return notify.NewFanout(ns...)
}

// cycle runs one engine pass and persists the result.
func (o *Orchestrator) cycle(ctx context.Context) error {
	err := o.engine.RunCycle(ctx, o.symbols(ctx))
	if serr := o.stateManager.Save(o.engine.Snapshot()); serr != nil {
		logs.Errorf("[Orchestrator] Failed to save state: %v", serr)
	}
	return err
}

func (o *Orchestrator) Start() {
	if o.hub != nil {
		o.wg.Add(1)
		go func() {
			defer o.wg.Done()
			o.hub.Run(o.ctx)
		}()
	}
	if o.server != nil {
		o.server.Start()
	}

	interval := time.Duration(o.cfg.Normal.CycleIntervalSeconds) * time.Second
	heartbeat := time.Duration(o.cfg.Normal.HeartbeatIntervalMinutes) * time.Minute
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		monitor.Run(o.ctx, interval, heartbeat, o.cycle)
	}()
	logs.Infof("Engine started with strategies %v on %v, press Ctrl+C to exit.", o.engine.StrategyIDs(), o.cfg.Symbols)
}

func (o *Orchestrator) Stop() {
	logs.Info("Received close signal, starting graceful shutdown...")

	// Let the in-flight cycle finish before the final save.
	o.cancel()
	o.wg.Wait()

	if err := o.stateManager.Save(o.engine.Snapshot()); err != nil {
		logs.Errorf("Failed to save final state: %v", err)
	} else {
		logs.Infof("[Orchestrator] Final state saved with %d open positions", o.engine.Book().Len())
	}

	o.engine.LogSummary()
	o.notifier.Wait()

	if o.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := o.server.Shutdown(ctx); err != nil {
			logs.Errorf("Status server shutdown: %v", err)
		}
		cancel()
	}
	o.closeJournal()
	logs.Info("All services stopped successfully.")
}

func (o *Orchestrator) closeJournal() {
	if o.journal == nil {
		return
	}
	if err := o.journal.Close(); err != nil {
		logs.Errorf("Failed to close journal: %v", err)
	}
}
