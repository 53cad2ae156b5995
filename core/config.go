package core

import (
	"fmt"
	"os"
	"time"

	str2duration "github.com/xhit/go-str2duration/v2"
	"gopkg.in/yaml.v3"
)

// ExchangeConfig holds exchange credentials and the traded symbol.
type ExchangeConfig struct {
	APIKey   string `yaml:"api_key"`
	Secret   string `yaml:"secret"`
	Password string `yaml:"password"`
	Symbol   string `yaml:"symbol"`
	Leverage int    `yaml:"leverage"`
	Testnet  bool   `yaml:"testnet"`
}

// CadenceConfig drives the trade scheduler.
type CadenceConfig struct {
	CycleIntervalMinutes int  `yaml:"cycle_interval_minutes"`
	JitterSeconds        int  `yaml:"jitter_seconds"`
	FirstRunImmediate    bool `yaml:"first_run_immediate"`
}

// ScoringConfig holds the fusion thresholds.
type ScoringConfig struct {
	BuyThreshold    float64 `yaml:"buy_threshold"`
	SellThreshold   float64 `yaml:"sell_threshold"`
	StrongSignal    float64 `yaml:"strong_signal"`
	CooldownMinutes int     `yaml:"cooldown_minutes"`
}

// StopConfig holds the trailing stop policy constants.
type StopConfig struct {
	LossPct      float64 `yaml:"loss_pct"`
	ProfitPct    float64 `yaml:"profit_pct"`
	TolerancePct float64 `yaml:"tolerance_pct"`
}

// SafetyConfig bounds position sizing.
type SafetyConfig struct {
	SafeBalanceFraction float64 `yaml:"safe_balance_fraction"`
	MinContract         float64 `yaml:"min_contract"`
}

// StoreConfig configures the tiered bar store.
type StoreConfig struct {
	MaxHotBarsPerTF  int    `yaml:"max_hot_bars_per_tf"`
	WarmPath         string `yaml:"warm_path"`
	ColdPath         string `yaml:"cold_path"`
	WorkingTimeframe string `yaml:"working_timeframe"`
	StatePath        string `yaml:"state_path"`
}

// MonitorConfig drives the market monitor loop.
type MonitorConfig struct {
	TickIntervalSeconds int `yaml:"tick_interval_seconds"`
	HistoryBars         int `yaml:"history_bars"`
	SnapshotRetention   int `yaml:"snapshot_retention"`
}

// ValidatorConfig holds second-stage check thresholds.
type ValidatorConfig struct {
	MinConfidence     float64 `yaml:"min_confidence"`
	ATRPercentMin     float64 `yaml:"atr_percent_min"`
	ATRPercentMax     float64 `yaml:"atr_percent_max"`
	AdvisorTimeoutSec int     `yaml:"advisor_timeout_sec"`
}

// TelegramConfig enables the optional telegram notifier.
type TelegramConfig struct {
	Enabled bool   `yaml:"enabled"`
	Token   string `yaml:"token"`
	ChatID  int64  `yaml:"chat_id"`
}

// Config is the full service configuration, loaded once at startup.
type Config struct {
	Exchange  ExchangeConfig  `yaml:"exchange"`
	Cadence   CadenceConfig   `yaml:"cadence"`
	Scoring   ScoringConfig   `yaml:"scoring"`
	Stop      StopConfig      `yaml:"stop"`
	Safety    SafetyConfig    `yaml:"safety"`
	Store     StoreConfig     `yaml:"store"`
	Monitor   MonitorConfig   `yaml:"monitor"`
	Validator ValidatorConfig `yaml:"validator"`
	Telegram  TelegramConfig  `yaml:"telegram"`
}

// Environment variable overrides for credentials
const (
	envAPIKey        = "TIDEBOT_API_KEY"
	envSecret        = "TIDEBOT_SECRET"
	envPassword      = "TIDEBOT_PASSWORD"
	envTelegramToken = "TIDEBOT_TELEGRAM_TOKEN"
)

// DefaultConfig returns the configuration defaults prior to file loading.
func DefaultConfig() Config {
	return Config{
		Cadence: CadenceConfig{
			CycleIntervalMinutes: 15,
			JitterSeconds:        180,
			FirstRunImmediate:    true,
		},
		Scoring: ScoringConfig{
			BuyThreshold:    0.20,
			SellThreshold:   -0.20,
			StrongSignal:    0.80,
			CooldownMinutes: 15,
		},
		Stop: StopConfig{
			LossPct:      0.005,
			ProfitPct:    0.01,
			TolerancePct: 0.001,
		},
		Safety: SafetyConfig{
			SafeBalanceFraction: 0.95,
			MinContract:         0.001,
		},
		Store: StoreConfig{
			MaxHotBarsPerTF:  2016,
			WarmPath:         "tidebot-warm.db",
			ColdPath:         "tidebot-cold.db",
			WorkingTimeframe: "5m",
			StatePath:        "tidebot-state.db",
		},
		Monitor: MonitorConfig{
			TickIntervalSeconds: 60,
			HistoryBars:         2100,
			SnapshotRetention:   5,
		},
		Validator: ValidatorConfig{
			MinConfidence:     0.5,
			ATRPercentMin:     0.1,
			ATRPercentMax:     10.0,
			AdvisorTimeoutSec: 60,
		},
	}
}

// LoadConfig reads the YAML file at path over the defaults, then applies
// environment overrides for credentials.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config file: %w", err)
	}

	if v := os.Getenv(envAPIKey); v != "" {
		cfg.Exchange.APIKey = v
	}
	if v := os.Getenv(envSecret); v != "" {
		cfg.Exchange.Secret = v
	}
	if v := os.Getenv(envPassword); v != "" {
		cfg.Exchange.Password = v
	}
	if v := os.Getenv(envTelegramToken); v != "" {
		cfg.Telegram.Token = v
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}

	return cfg, nil
}

// Validate checks the configuration for fatal errors.
func (c Config) Validate() error {
	if c.Exchange.Symbol == "" {
		return &ConfigError{Field: "exchange.symbol", Reason: "required"}
	}
	if c.Exchange.Leverage < 1 {
		return &ConfigError{Field: "exchange.leverage", Reason: "must be >= 1"}
	}
	if c.Cadence.CycleIntervalMinutes <= 0 {
		return &ConfigError{Field: "cadence.cycle_interval_minutes", Reason: "must be positive"}
	}
	if c.Scoring.BuyThreshold <= 0 || c.Scoring.BuyThreshold > 1 {
		return &ConfigError{Field: "scoring.buy_threshold", Reason: "must be in (0, 1]"}
	}
	if c.Scoring.SellThreshold >= 0 || c.Scoring.SellThreshold < -1 {
		return &ConfigError{Field: "scoring.sell_threshold", Reason: "must be in [-1, 0)"}
	}
	if c.Stop.LossPct <= 0 || c.Stop.LossPct >= 1 {
		return &ConfigError{Field: "stop.loss_pct", Reason: "must be in (0, 1)"}
	}
	if c.Stop.ProfitPct <= 0 || c.Stop.ProfitPct >= 1 {
		return &ConfigError{Field: "stop.profit_pct", Reason: "must be in (0, 1)"}
	}
	if c.Stop.TolerancePct < 0 {
		return &ConfigError{Field: "stop.tolerance_pct", Reason: "must be non-negative"}
	}
	if c.Safety.SafeBalanceFraction <= 0 || c.Safety.SafeBalanceFraction > 1 {
		return &ConfigError{Field: "safety.safe_balance_fraction", Reason: "must be in (0, 1]"}
	}
	if _, err := TimeframeDuration(c.Store.WorkingTimeframe); err != nil {
		return &ConfigError{Field: "store.working_timeframe", Reason: err.Error()}
	}
	return nil
}

// CycleInterval returns the scheduler cadence as a duration.
func (c Config) CycleInterval() time.Duration {
	return time.Duration(c.Cadence.CycleIntervalMinutes) * time.Minute
}

// Jitter returns the scheduler jitter bound as a duration.
func (c Config) Jitter() time.Duration {
	return time.Duration(c.Cadence.JitterSeconds) * time.Second
}

// Cooldown returns the signal cooldown as a duration.
func (c Config) Cooldown() time.Duration {
	return time.Duration(c.Scoring.CooldownMinutes) * time.Minute
}

// AdvisorTimeout returns the advisor deadline as a duration.
func (c Config) AdvisorTimeout() time.Duration {
	return time.Duration(c.Validator.AdvisorTimeoutSec) * time.Second
}

// TimeframeDuration parses a timeframe label (1m, 5m, 1h, 4h, 1d, 7d, 1w)
// into its duration.
func TimeframeDuration(timeframe string) (time.Duration, error) {
	d, err := str2duration.ParseDuration(timeframe)
	if err != nil {
		return 0, fmt.Errorf("invalid timeframe %q: %w", timeframe, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid timeframe %q: non-positive", timeframe)
	}
	return d, nil
}
