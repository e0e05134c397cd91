// Package config exposes the typed application configuration loaded from YAML
// with environment overrides for connection strings and log level.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
	_ "time/tzdata" // EOD cutoffs are exchange-local; images may lack zoneinfo

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"orderflow-lab/internal/absorption"
	"orderflow-lab/internal/backtest"
	"orderflow-lab/internal/detector"
	"orderflow-lab/internal/domain"
	"orderflow-lab/internal/pipeline"
	"orderflow-lab/internal/profile"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid config")

// Environment variables that override file values.
const (
	EnvPostgresDSN   = "POSTGRES_DSN"
	EnvClickHouseDSN = "CLICKHOUSE_DSN"
	EnvLogLevel      = "LOG_LEVEL"
	EnvFeedURL       = "FEED_URL"
	EnvUseMemory     = "USE_MEMORY"
)

// App captures process-wide settings.
type App struct {
	Name     string `yaml:"name"`
	LogLevel string `yaml:"log_level"`
}

// Profile configures the rolling order-flow profile.
type Profile struct {
	Window   time.Duration `yaml:"window"`
	TickSize float64       `yaml:"tick_size"`
}

// Detector configures anomaly detection and density tracking.
type Detector struct {
	StatsWindow     time.Duration `yaml:"stats_window"`
	ZScoreThreshold float64       `yaml:"zscore_threshold"`
	MinPriceLevels  int           `yaml:"min_price_levels"`
	MinTicks        int           `yaml:"min_ticks"`
	DensityWindow   time.Duration `yaml:"density_window"`
}

// Absorption configures the forward-window classifier. Lookahead is also the
// shift delay applied before signals reach the engine.
type Absorption struct {
	Lookahead         time.Duration `yaml:"lookahead"`
	ExpectedMoveTicks float64       `yaml:"expected_move_ticks"`
	FakeFilter        bool          `yaml:"fake_filter"`
}

// Strategy configures the backtest engine.
type Strategy struct {
	TakeProfitPoints    float64 `yaml:"take_profit_points"`
	StopLossPoints      float64 `yaml:"stop_loss_points"`
	PointValue          float64 `yaml:"point_value"`
	Contracts           int     `yaml:"contracts"`
	MaxOpenPositions    int     `yaml:"max_open_positions"`
	EODCutoff           string  `yaml:"eod_cutoff"` // "HH:MM[:SS]", empty disables
	Timezone            string  `yaml:"timezone"`   // IANA zone of EODCutoff and CSV timestamps
	FilterMode          string  `yaml:"filter_mode"`
	DensityThreshold    int     `yaml:"density_threshold"`
	NetDensityThreshold int     `yaml:"net_density_threshold"`
}

// Storage selects and configures backends.
type Storage struct {
	PostgresDSN   string `yaml:"postgres_dsn"`
	ClickHouseDSN string `yaml:"clickhouse_dsn"`
	UseMemory     bool   `yaml:"use_memory"`
}

// Live configures the live feed pipeline.
type Live struct {
	FeedURL     string `yaml:"feed_url"`
	Symbol      string `yaml:"symbol"`
	MetricsAddr string `yaml:"metrics_addr"`
	QueueSize   int    `yaml:"queue_size"`
}

// Config collects every configuration leaf.
type Config struct {
	App        App        `yaml:"app"`
	Profile    Profile    `yaml:"profile"`
	Detector   Detector   `yaml:"detector"`
	Absorption Absorption `yaml:"absorption"`
	Strategy   Strategy   `yaml:"strategy"`
	Storage    Storage    `yaml:"storage"`
	Live       Live       `yaml:"live"`
}

// Default returns the baseline used by the research scripts: NQ futures
// (0.25 tick, $20 per point), 2-point bracket, one position at a time.
func Default() Config {
	return Config{
		App: App{Name: "orderflow-lab", LogLevel: "info"},
		Profile: Profile{
			Window:   60 * time.Second,
			TickSize: 0.25,
		},
		Detector: Detector{
			StatsWindow:     10 * time.Minute,
			ZScoreThreshold: 2.0,
			MinPriceLevels:  3,
			MinTicks:        5,
			DensityWindow:   180 * time.Second,
		},
		Absorption: Absorption{
			Lookahead:         60 * time.Second,
			ExpectedMoveTicks: 2,
		},
		Strategy: Strategy{
			TakeProfitPoints:    2,
			StopLossPoints:      2,
			PointValue:          20,
			Contracts:           1,
			MaxOpenPositions:    1,
			EODCutoff:           "22:00",
			Timezone:            "Europe/Madrid",
			FilterMode:          string(backtest.FilterVolumeOnly),
			DensityThreshold:    10,
			NetDensityThreshold: 10,
		},
		Live: Live{
			MetricsAddr: ":9090",
			QueueSize:   pipeline.DefaultQueueSize,
		},
	}
}

// Load reads a YAML file over Default, loads .env if present and applies
// environment overrides. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		file, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		if err := yaml.NewDecoder(file).Decode(&cfg); err != nil {
			return nil, fmt.Errorf("decode yaml: %w", err)
		}
	}

	// Optional; existing environment wins over .env.
	_ = godotenv.Load()

	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyEnv overrides DSNs, log level, feed URL and the memory switch from getenv.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	if v := getenv(EnvPostgresDSN); v != "" {
		c.Storage.PostgresDSN = v
	}
	if v := getenv(EnvClickHouseDSN); v != "" {
		c.Storage.ClickHouseDSN = v
	}
	if v := getenv(EnvLogLevel); v != "" {
		c.App.LogLevel = v
	}
	if v := getenv(EnvFeedURL); v != "" {
		c.Live.FeedURL = v
	}
	if v := getenv(EnvUseMemory); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%w: %s=%q", ErrInvalidConfig, EnvUseMemory, v)
		}
		c.Storage.UseMemory = b
	}
	return nil
}

// Validate rejects non-positive windows and tick size, negative thresholds,
// an unparsable EOD cutoff or timezone and unknown filter modes.
func (c Config) Validate() error {
	if _, err := c.Pipeline(); err != nil {
		return err
	}
	if c.Live.QueueSize < 0 {
		return fmt.Errorf("%w: live queue size must be non-negative, got %d", ErrInvalidConfig, c.Live.QueueSize)
	}
	return nil
}

// Location resolves the configured timezone; empty means UTC.
func (c Config) Location() (*time.Location, error) {
	if c.Strategy.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.Strategy.Timezone)
	if err != nil {
		return nil, fmt.Errorf("%w: timezone %q: %v", ErrInvalidConfig, c.Strategy.Timezone, err)
	}
	return loc, nil
}

// Pipeline converts the file-level sections into per-component configs and
// validates them.
func (c Config) Pipeline() (pipeline.Config, error) {
	loc, err := c.Location()
	if err != nil {
		return pipeline.Config{}, err
	}

	var cutoff *domain.TimeOfDay
	if c.Strategy.EODCutoff != "" {
		tod, err := domain.ParseTimeOfDay(c.Strategy.EODCutoff)
		if err != nil {
			return pipeline.Config{}, fmt.Errorf("%w: eod cutoff: %v", ErrInvalidConfig, err)
		}
		cutoff = &tod
	}

	pc := pipeline.Config{
		Profile: profile.Config{
			Window:   c.Profile.Window,
			TickSize: c.Profile.TickSize,
		},
		Detector: detector.Config{
			StatsWindow:     c.Detector.StatsWindow,
			TickSize:        c.Profile.TickSize,
			ZScoreThreshold: c.Detector.ZScoreThreshold,
			MinPriceLevels:  c.Detector.MinPriceLevels,
			MinTicks:        c.Detector.MinTicks,
		},
		DensityWindow: c.Detector.DensityWindow,
		Absorption: absorption.Config{
			Lookahead:         c.Absorption.Lookahead,
			TickSize:          c.Profile.TickSize,
			ExpectedMoveTicks: c.Absorption.ExpectedMoveTicks,
			FakeFilter:        c.Absorption.FakeFilter,
		},
		Strategy: backtest.StrategyConfig{
			TakeProfitPoints:    c.Strategy.TakeProfitPoints,
			StopLossPoints:      c.Strategy.StopLossPoints,
			PointValue:          c.Strategy.PointValue,
			Contracts:           c.Strategy.Contracts,
			MaxOpenPositions:    c.Strategy.MaxOpenPositions,
			EODCutoff:           cutoff,
			Location:            loc,
			FilterMode:          backtest.FilterMode(c.Strategy.FilterMode),
			DensityThreshold:    c.Strategy.DensityThreshold,
			NetDensityThreshold: c.Strategy.NetDensityThreshold,
		},
	}
	if err := pc.Validate(); err != nil {
		return pipeline.Config{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return pc, nil
}

// Save persists a Config to disk as YAML.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
