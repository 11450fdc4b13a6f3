// config/config.go
package config

import (
	"fmt"
	"io/ioutil"
	"os"

	"gopkg.in/yaml.v2"
)

// LogConfig holds the configuration for logging.
type LogConfig struct {
	LogLevel   string `yaml:"log_level"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// NormalConfig holds all general, non-strategy-specific configuration.
type NormalConfig struct {
	HTTPTimeoutSeconds       int    `yaml:"http_timeout_seconds"`
	CycleIntervalSeconds     int    `yaml:"cycle_interval_seconds"`
	HeartbeatIntervalMinutes int    `yaml:"heartbeat_interval_minutes"`
	LogDirectory             string `yaml:"log_directory"`
	StateDirectory           string `yaml:"state_directory"`
	ParallelStrategies       bool   `yaml:"parallel_strategies"`
	CandleTimeframe          string `yaml:"candle_timeframe"`
	CandleLimit              int    `yaml:"candle_limit"`
}

// CapitalConfig describes the virtual account every strategy starts with.
type CapitalConfig struct {
	InitialCapital    float64 `yaml:"initial_capital"`
	RecentTradesLimit int     `yaml:"recent_trades_limit"`
}

// LeverageBand maps a confidence floor (exclusive) to a leverage.
type LeverageBand struct {
	MinConfidence float64 `yaml:"min_confidence"`
	Leverage      int     `yaml:"leverage"`
}

// RiskConfig holds the parameters of the risk layer chain.
type RiskConfig struct {
	PositionSizePercent float64        `yaml:"position_size_percent"`
	MinPositionSize     float64        `yaml:"min_position_size"`
	MaxPositionSize     float64        `yaml:"max_position_size"`
	MaxLeverage         int            `yaml:"max_leverage"`
	LeverageBands       []LeverageBand `yaml:"leverage_bands"`
	StopLossPercent     float64        `yaml:"stop_loss_percent"`
	TakeProfitPercent   float64        `yaml:"take_profit_percent"`
	MaxDailyLossPercent float64        `yaml:"max_daily_loss_percent"`
	MaxDrawdownPercent  float64        `yaml:"max_drawdown_percent"`
	MaxOpenPositions    int            `yaml:"max_open_positions"`
	CapitalFloorPercent float64        `yaml:"capital_floor_percent"`
}

// CircuitBreakerConfig controls when a strategy is halted and for how long.
type CircuitBreakerConfig struct {
	Enabled           bool    `yaml:"enabled"`
	HaltHours         float64 `yaml:"halt_hours"`
	ConsecutiveLosses int     `yaml:"consecutive_losses"`
	FlashCrashPercent float64 `yaml:"flash_crash_percent"`
}

// TrailingConfig holds the activation thresholds and distances, in percent,
// for the trailing stop and the trailing take-profit.
type TrailingConfig struct {
	StopEnabled           bool    `yaml:"stop_enabled"`
	StopActivationPercent float64 `yaml:"stop_activation_percent"`
	StopDistancePercent   float64 `yaml:"stop_distance_percent"`
	TPEnabled             bool    `yaml:"tp_enabled"`
	TPActivationPercent   float64 `yaml:"tp_activation_percent"`
	TPDistancePercent     float64 `yaml:"tp_distance_percent"`
}

// EMACrossConfig configures the EMA crossover signal producer.
type EMACrossConfig struct {
	FastPeriod        int     `yaml:"fast_period"`
	SlowPeriod        int     `yaml:"slow_period"`
	Confidence        float64 `yaml:"confidence"`
	StopLossPercent   float64 `yaml:"stop_loss_percent"`
	TakeProfitPercent float64 `yaml:"take_profit_percent"`
}

// IntervalConfig configures the interval signal producer used in simulation.
type IntervalConfig struct {
	Every             int     `yaml:"every"`
	Confidence        float64 `yaml:"confidence"`
	StopLossPercent   float64 `yaml:"stop_loss_percent"`
	TakeProfitPercent float64 `yaml:"take_profit_percent"`
}

// StrategyConfig is a generic container for a single strategy's configuration.
// Config is decoded into EMACross or Interval according to Kind.
type StrategyConfig struct {
	Name     string         `yaml:"name"`
	Kind     string         `yaml:"kind"`
	Enabled  bool           `yaml:"enabled"`
	Config   interface{}    `yaml:"config"`
	EMACross EMACrossConfig `yaml:"-"`
	Interval IntervalConfig `yaml:"-"`
}

// JournalConfig selects the SQL store for trades and rejections.
type JournalConfig struct {
	Enabled bool   `yaml:"enabled"`
	Driver  string `yaml:"driver"`
	DSN     string `yaml:"dsn"`
}

// NotifyConfig toggles the chat notifiers. Credentials come from the environment.
type NotifyConfig struct {
	TelegramEnabled bool `yaml:"telegram_enabled"`
	DiscordEnabled  bool `yaml:"discord_enabled"`
}

// ServerConfig controls the status HTTP server.
type ServerConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// ExchangeConfig holds REST pacing for the market data client.
type ExchangeConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// SimulationConfig seeds the random-walk market used when use_simulation is set.
// A zero seed means a time-based seed. Drift is added to every step's return.
// StartPrices overrides StartPrice per symbol.
type SimulationConfig struct {
	Seed        int64              `yaml:"seed"`
	StartPrice  float64            `yaml:"start_price"`
	StartPrices map[string]float64 `yaml:"start_prices"`
	Volatility  float64            `yaml:"volatility"`
	Drift       float64            `yaml:"drift"`
}

// AutoSymbols is the symbols value that selects pairs by 24h quote volume.
const AutoSymbols = "auto"

// SymbolList is either an explicit list of symbols or the single word "auto".
type SymbolList []string

func (l *SymbolList) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var word string
	if err := unmarshal(&word); err == nil {
		if word != AutoSymbols {
			return fmt.Errorf("symbols: expected a list or %q, got %q", AutoSymbols, word)
		}
		*l = SymbolList{AutoSymbols}
		return nil
	}
	var list []string
	if err := unmarshal(&list); err != nil {
		return err
	}
	*l = list
	return nil
}

// Auto reports whether the symbols are picked at runtime.
func (l SymbolList) Auto() bool {
	for _, s := range l {
		if s == AutoSymbols {
			return true
		}
	}
	return false
}

// AutoSymbolsConfig drives the top-volume selection used with `symbols: auto`.
type AutoSymbolsConfig struct {
	TopN           int      `yaml:"top_n"`
	MinQuoteVolume float64  `yaml:"min_quote_volume"`
	QuoteAsset     string   `yaml:"quote_asset"`
	RefreshMinutes int      `yaml:"refresh_minutes"`
	Fallback       []string `yaml:"fallback"`
}

// Config is the top-level configuration structure.
type Config struct {
	Symbols        SymbolList           `yaml:"symbols"`
	AutoSymbols    AutoSymbolsConfig    `yaml:"auto_symbols"`
	UseSimulation  bool                 `yaml:"use_simulation"`
	Normal         NormalConfig         `yaml:"normal_config"`
	Logs           LogConfig            `yaml:"logs"`
	Capital        CapitalConfig        `yaml:"capital"`
	Risk           RiskConfig           `yaml:"risk"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
	Trailing       TrailingConfig       `yaml:"trailing"`
	Strategies     []StrategyConfig     `yaml:"strategies"`
	Journal        JournalConfig        `yaml:"journal"`
	Notify         NotifyConfig         `yaml:"notify"`
	Server         ServerConfig         `yaml:"server"`
	Exchange       ExchangeConfig       `yaml:"exchange"`
	Simulation     SimulationConfig     `yaml:"simulation"`
}

// NewConfig creates a Config with every default resolved.
// Values present in config.yaml override these.
func NewConfig() *Config {
	return &Config{
		Symbols:       SymbolList{"BTCUSDT"},
		UseSimulation: true,
		AutoSymbols: AutoSymbolsConfig{
			TopN:           30,
			MinQuoteVolume: 1e6,
			QuoteAsset:     "USDT",
			RefreshMinutes: 60,
			Fallback:       []string{"BTCUSDT", "ETHUSDT", "SOLUSDT"},
		},
		Normal: NormalConfig{
			HTTPTimeoutSeconds:       10,
			CycleIntervalSeconds:     60,
			HeartbeatIntervalMinutes: 10,
			LogDirectory:             "logs",
			StateDirectory:           "state",
			CandleTimeframe:          "15m",
			CandleLimit:              200,
		},
		Logs: LogConfig{
			LogLevel:   "info",
			MaxSizeMB:  10,
			MaxBackups: 5,
			MaxAgeDays: 30,
			Compress:   true,
		},
		Capital: CapitalConfig{
			InitialCapital:    100,
			RecentTradesLimit: 50,
		},
		Risk: RiskConfig{
			PositionSizePercent: 10,
			MinPositionSize:     1,
			MaxPositionSize:     1000,
			MaxLeverage:         10,
			LeverageBands: []LeverageBand{
				{MinConfidence: 0.75, Leverage: 5},
				{MinConfidence: 0.65, Leverage: 3},
				{MinConfidence: 0.55, Leverage: 2},
			},
			StopLossPercent:     2,
			TakeProfitPercent:   4,
			MaxDailyLossPercent: 5,
			MaxDrawdownPercent:  15,
			MaxOpenPositions:    5,
			CapitalFloorPercent: 10,
		},
		CircuitBreaker: CircuitBreakerConfig{
			Enabled:           true,
			HaltHours:         48,
			ConsecutiveLosses: 5,
			FlashCrashPercent: -10,
		},
		Trailing: TrailingConfig{
			StopEnabled:           true,
			StopActivationPercent: 5,
			StopDistancePercent:   2,
			TPEnabled:             true,
			TPActivationPercent:   3,
			TPDistancePercent:     1.5,
		},
		Journal: JournalConfig{
			Enabled: true,
			Driver:  "sqlite3",
			DSN:     "state/journal.db",
		},
		Server: ServerConfig{
			Addr: ":8090",
		},
		Exchange: ExchangeConfig{
			RequestsPerSecond: 10,
			Burst:             5,
		},
		Simulation: SimulationConfig{
			StartPrice: 100,
			Volatility: 0.005,
		},
	}
}

// LoadConfig loads configuration from a given path, applies defaults, and validates it.
func LoadConfig(path string) (*Config, error) {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found at %s, program cannot run without a config file", path)
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse overlays raw YAML onto the defaults, decodes strategy sections and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := NewConfig()

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal yaml: %w", err)
	}

	for i := range cfg.Strategies {
		s := &cfg.Strategies[i]
		// Unset levels follow the risk section.
		switch s.Kind {
		case "ema_cross":
			s.EMACross = EMACrossConfig{FastPeriod: 9, SlowPeriod: 21, Confidence: 0.6,
				StopLossPercent: cfg.Risk.StopLossPercent, TakeProfitPercent: cfg.Risk.TakeProfitPercent}
			if err := decodeStrategy(s, &s.EMACross); err != nil {
				return nil, err
			}
		case "interval":
			s.Interval = IntervalConfig{Every: 3, Confidence: 0.7,
				StopLossPercent: cfg.Risk.StopLossPercent, TakeProfitPercent: cfg.Risk.TakeProfitPercent}
			if err := decodeStrategy(s, &s.Interval); err != nil {
				return nil, err
			}
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// decodeStrategy overlays the raw `config:` block onto out. A missing block keeps the defaults.
func decodeStrategy(s *StrategyConfig, out interface{}) error {
	if s.Config == nil {
		return nil
	}
	configBytes, err := yaml.Marshal(s.Config)
	if err != nil {
		return fmt.Errorf("failed to re-marshal strategy config '%s': %w", s.Name, err)
	}
	if err := yaml.Unmarshal(configBytes, out); err != nil {
		return fmt.Errorf("failed to unmarshal %s config for '%s': %w", s.Kind, s.Name, err)
	}
	return nil
}

// EnabledStrategies returns the strategies switched on in config.yaml.
func (c *Config) EnabledStrategies() []StrategyConfig {
	var out []StrategyConfig
	for _, s := range c.Strategies {
		if s.Enabled {
			out = append(out, s)
		}
	}
	return out
}

// Validate checks the logical consistency and completeness of the entire configuration.
func (c *Config) Validate() error {
	if len(c.Symbols) == 0 {
		return fmt.Errorf("Critical config missing: 'symbols' must list at least one symbol")
	}
	if c.Symbols.Auto() {
		if len(c.Symbols) > 1 {
			return fmt.Errorf("Config error: 'symbols' is either %q or a list of symbols, not both", AutoSymbols)
		}
		a := c.AutoSymbols
		if a.TopN <= 0 || a.RefreshMinutes <= 0 || a.MinQuoteVolume < 0 {
			return fmt.Errorf("Config error: auto_symbols: top_n and refresh_minutes must be positive, min_quote_volume non-negative")
		}
		if a.QuoteAsset == "" || len(a.Fallback) == 0 {
			return fmt.Errorf("Config error: auto_symbols: quote_asset and fallback must be set when symbols is %q", AutoSymbols)
		}
	}
	if c.Normal.CycleIntervalSeconds <= 0 {
		return fmt.Errorf("Config error: 'normal_config.cycle_interval_seconds' must be positive")
	}
	if c.Normal.HeartbeatIntervalMinutes <= 0 {
		return fmt.Errorf("Config error: 'normal_config.heartbeat_interval_minutes' must be positive")
	}
	if c.Normal.HTTPTimeoutSeconds <= 0 {
		return fmt.Errorf("Config error: 'normal_config.http_timeout_seconds' must be positive")
	}
	if c.Normal.CandleLimit <= 0 {
		return fmt.Errorf("Config error: 'normal_config.candle_limit' must be positive")
	}
	if c.Normal.StateDirectory == "" || c.Normal.LogDirectory == "" {
		return fmt.Errorf("Config error: 'normal_config.log_directory' and 'normal_config.state_directory' must be set")
	}

	if c.Capital.InitialCapital <= 0 {
		return fmt.Errorf("Config error: 'capital.initial_capital' must be positive")
	}
	if c.Capital.RecentTradesLimit <= 0 {
		return fmt.Errorf("Config error: 'capital.recent_trades_limit' must be positive")
	}

	r := c.Risk
	if r.PositionSizePercent <= 0 || r.PositionSizePercent > 100 {
		return fmt.Errorf("Config error: 'risk.position_size_percent' must be in (0, 100], got %.2f", r.PositionSizePercent)
	}
	if r.MinPositionSize < 0 || r.MaxPositionSize <= 0 || r.MinPositionSize > r.MaxPositionSize {
		return fmt.Errorf("Config error: risk: min_position_size (%.2f) must be non-negative and not above max_position_size (%.2f)", r.MinPositionSize, r.MaxPositionSize)
	}
	if r.MaxLeverage < 1 {
		return fmt.Errorf("Config error: 'risk.max_leverage' must be at least 1")
	}
	for i, b := range r.LeverageBands {
		if b.Leverage < 1 {
			return fmt.Errorf("Config error: risk.leverage_bands[%d]: leverage must be at least 1", i)
		}
		if i > 0 {
			prev := r.LeverageBands[i-1]
			if b.MinConfidence >= prev.MinConfidence || b.Leverage > prev.Leverage {
				return fmt.Errorf("Config error: risk.leverage_bands must be ordered by descending confidence with non-increasing leverage (band %d)", i)
			}
		}
	}
	if r.StopLossPercent <= 0 || r.StopLossPercent >= 100 {
		return fmt.Errorf("Config error: 'risk.stop_loss_percent' must be in (0, 100)")
	}
	if r.TakeProfitPercent <= 0 {
		return fmt.Errorf("Config error: 'risk.take_profit_percent' must be positive")
	}
	if r.MaxDailyLossPercent <= 0 {
		return fmt.Errorf("Config error: 'risk.max_daily_loss_percent' must be positive")
	}
	if r.MaxDrawdownPercent <= 0 || r.MaxDrawdownPercent > 100 {
		return fmt.Errorf("Config error: 'risk.max_drawdown_percent' must be in (0, 100]")
	}
	if r.MaxOpenPositions <= 0 {
		return fmt.Errorf("Config error: 'risk.max_open_positions' must be positive")
	}
	if r.CapitalFloorPercent < 0 || r.CapitalFloorPercent >= 100 {
		return fmt.Errorf("Config error: 'risk.capital_floor_percent' must be in [0, 100)")
	}

	cb := c.CircuitBreaker
	if cb.HaltHours < 0 {
		return fmt.Errorf("Config error: 'circuit_breaker.halt_hours' cannot be negative")
	}
	if cb.ConsecutiveLosses <= 0 {
		return fmt.Errorf("Config error: 'circuit_breaker.consecutive_losses' must be positive")
	}
	if cb.FlashCrashPercent >= 0 {
		return fmt.Errorf("Config error: 'circuit_breaker.flash_crash_percent' must be negative, got %.2f", cb.FlashCrashPercent)
	}

	t := c.Trailing
	if t.StopActivationPercent < 0 || t.StopDistancePercent <= 0 || t.StopDistancePercent >= 100 {
		return fmt.Errorf("Config error: trailing: stop activation must be non-negative and stop distance in (0, 100)")
	}
	if t.TPActivationPercent < 0 || t.TPDistancePercent <= 0 || t.TPDistancePercent >= 100 {
		return fmt.Errorf("Config error: trailing: tp activation must be non-negative and tp distance in (0, 100)")
	}

	names := make(map[string]bool)
	for _, s := range c.Strategies {
		if s.Name == "" {
			return fmt.Errorf("Config error: every strategy needs a 'name'")
		}
		if names[s.Name] {
			return fmt.Errorf("Config error: duplicate strategy name '%s'", s.Name)
		}
		names[s.Name] = true
		switch s.Kind {
		case "ema_cross":
			if s.EMACross.FastPeriod <= 0 || s.EMACross.SlowPeriod <= s.EMACross.FastPeriod {
				return fmt.Errorf("Config error: strategy '%s': slow_period must be greater than fast_period > 0", s.Name)
			}
		case "interval":
			if s.Interval.Every <= 0 {
				return fmt.Errorf("Config error: strategy '%s': interval 'every' must be positive", s.Name)
			}
		default:
			return fmt.Errorf("Config error: strategy '%s' has unknown kind '%s'", s.Name, s.Kind)
		}
	}
	if len(c.EnabledStrategies()) == 0 {
		return fmt.Errorf("Critical config missing: at least one strategy must be enabled")
	}

	if c.Journal.Enabled && c.Journal.Driver != "sqlite3" && c.Journal.Driver != "postgres" {
		return fmt.Errorf("Config error: journal.driver must be 'sqlite3' or 'postgres'")
	}
	if c.Server.Enabled && c.Server.Addr == "" {
		return fmt.Errorf("Config error: server.addr must be set when the server is enabled")
	}
	if c.Exchange.RequestsPerSecond <= 0 || c.Exchange.Burst <= 0 {
		return fmt.Errorf("Config error: exchange.requests_per_second and exchange.burst must be positive")
	}
	if c.UseSimulation && (c.Simulation.StartPrice <= 0 || c.Simulation.Volatility < 0) {
		return fmt.Errorf("Config error: simulation.start_price must be positive and simulation.volatility non-negative")
	}
	for symbol, price := range c.Simulation.StartPrices {
		if c.UseSimulation && price <= 0 {
			return fmt.Errorf("Config error: simulation.start_prices.%s must be positive", symbol)
		}
	}

	return nil
}

// EnvConfig holds secrets read from the environment (optionally via .env).
type EnvConfig struct {
	ApiKey            string
	BaseURL           string
	TelegramToken     string
	TelegramChatID    string
	DiscordWebhookURL string
	JournalDSN        string
}

func LoadEnvConfig() *EnvConfig {
	return &EnvConfig{
		ApiKey:            os.Getenv("BINANCE_API_KEY"),
		BaseURL:           os.Getenv("BINANCE_BASE_URL"),
		TelegramToken:     os.Getenv("TELEGRAM_BOT_TOKEN"),
		TelegramChatID:    os.Getenv("TELEGRAM_CHAT_ID"),
		DiscordWebhookURL: os.Getenv("DISCORD_WEBHOOK_URL"),
		JournalDSN:        os.Getenv("JOURNAL_DSN"),
	}
}
