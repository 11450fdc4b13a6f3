package main

import (
	"context"
	"path/filepath"
	"testing"

	"apex_hunter_go/config"
	"apex_hunter_go/exchange"
	"apex_hunter_go/journal"
	"apex_hunter_go/state"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func simConfig(t *testing.T) *config.Config {
	dir := t.TempDir()
	cfg := config.NewConfig()
	cfg.Symbols = []string{"BTCUSDT", "ETHUSDT"}
	cfg.UseSimulation = true
	cfg.Simulation.Seed = 7
	cfg.Normal.StateDirectory = filepath.Join(dir, "state")
	cfg.Normal.LogDirectory = filepath.Join(dir, "logs")
	cfg.Normal.CandleLimit = 50
	cfg.Journal.DSN = filepath.Join(dir, "db", "journal.db")
	cfg.Strategies = []config.StrategyConfig{
		{Name: "pulse", Kind: "interval", Enabled: true, Interval: config.IntervalConfig{Every: 1, Confidence: 0.7}},
	}
	require.NoError(t, cfg.Validate())
	return cfg
}

func TestOrchestratorCyclePersistsState(t *testing.T) {
	cfg := simConfig(t)
	statePath := filepath.Join(cfg.Normal.StateDirectory, "engine_state.json")

	o, err := NewOrchestrator(cfg, &config.EnvConfig{}, statePath)
	require.NoError(t, err)
	require.NotNil(t, o.journal)
	assert.Nil(t, o.server)

	ctx := context.Background()
	require.NoError(t, o.cycle(ctx))
	assert.Equal(t, 2, o.engine.Book().Len(), "the interval producer opens on the first tick")
	require.NoError(t, o.cycle(ctx))
	open := o.engine.Book().Len()
	o.Stop()

	sm, err := state.NewStateManager(statePath)
	require.NoError(t, err)
	saved := sm.GetFullState()
	require.Contains(t, saved.Accounts, "pulse")
	assert.Len(t, saved.Positions, open)

	j, err := journal.Open("sqlite3", cfg.Journal.DSN)
	require.NoError(t, err)
	defer j.Close()
	_, err = j.RecentTrades(10)
	assert.NoError(t, err)
}

func TestOrchestratorRestoresSavedPositions(t *testing.T) {
	cfg := simConfig(t)
	cfg.Journal.Enabled = false
	statePath := filepath.Join(cfg.Normal.StateDirectory, "engine_state.json")

	first, err := NewOrchestrator(cfg, &config.EnvConfig{}, statePath)
	require.NoError(t, err)
	require.NoError(t, first.cycle(context.Background()))
	open := first.engine.Book().Len()
	require.Positive(t, open)
	first.Stop()

	second, err := NewOrchestrator(cfg, &config.EnvConfig{}, statePath)
	require.NoError(t, err)
	defer second.Stop()
	assert.Nil(t, second.journal)
	assert.Equal(t, open, second.engine.Book().Len())
}

func TestOrchestratorAutoSymbolsFromSimulatedVolume(t *testing.T) {
	cfg := simConfig(t)
	cfg.Journal.Enabled = false
	cfg.Symbols = config.SymbolList{config.AutoSymbols}
	cfg.AutoSymbols.TopN = 3
	cfg.AutoSymbols.MinQuoteVolume = 0
	require.NoError(t, cfg.Validate())

	o, err := NewOrchestrator(cfg, &config.EnvConfig{}, filepath.Join(t.TempDir(), "s.json"))
	require.NoError(t, err)
	defer o.Stop()

	picked := o.symbols(context.Background())
	require.Len(t, picked, 3)
	for _, s := range picked {
		assert.Contains(t, exchange.DefaultMockUniverse, s)
	}

	require.NoError(t, o.cycle(context.Background()))
	require.Positive(t, o.engine.Book().Len())
	for _, p := range o.engine.Book().All() {
		assert.Contains(t, picked, p.Symbol)
	}
}

func TestOrchestratorSimulationStartPrices(t *testing.T) {
	cfg := simConfig(t)
	cfg.Journal.Enabled = false
	cfg.Simulation.Volatility = 0
	cfg.Simulation.Drift = 0.001
	cfg.Simulation.StartPrices = map[string]float64{"ETHUSDT": 2500}
	require.NoError(t, cfg.Validate())

	o, err := NewOrchestrator(cfg, &config.EnvConfig{}, filepath.Join(t.TempDir(), "s.json"))
	require.NoError(t, err)
	defer o.Stop()

	require.NoError(t, o.cycle(context.Background()))
	eth, ok := o.engine.Book().Get("pulse", "ETHUSDT")
	require.True(t, ok)
	assert.InDelta(t, 2500*1.001, eth.EntryPrice, 1e-6)
	btc, ok := o.engine.Book().Get("pulse", "BTCUSDT")
	require.True(t, ok)
	assert.InDelta(t, 100*1.001, btc.EntryPrice, 1e-6)
}

func TestOrchestratorRejectsUnknownStrategyKind(t *testing.T) {
	cfg := simConfig(t)
	cfg.Journal.Enabled = false
	cfg.Strategies[0].Kind = "grid"

	_, err := NewOrchestrator(cfg, &config.EnvConfig{}, filepath.Join(t.TempDir(), "s.json"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pulse")
}

func TestBuildNotifiersSkipsMissingCredentials(t *testing.T) {
	cfg := config.NewConfig()
	cfg.Notify.TelegramEnabled = true
	cfg.Notify.DiscordEnabled = true

	fan := buildNotifiers(cfg, &config.EnvConfig{})
	assert.Len(t, fan, 1, "only the log notifier without credentials")

	fan = buildNotifiers(cfg, &config.EnvConfig{DiscordWebhookURL: "http://127.0.0.1:1/hook"})
	assert.Len(t, fan, 2)
}
