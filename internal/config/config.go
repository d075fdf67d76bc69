// Package config exposes strongly typed application configuration structs loaded from YAML.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// App captures process-wide runtime settings such as name, environment, metrics, and logging levels.
type App struct {
	Name        string `yaml:"name"`
	Env         string `yaml:"env"`
	MetricsAddr string `yaml:"metrics_addr"`
	LogLevel    string `yaml:"log_level"`
}

// Exchange describes one venue the engine should connect to. Credentials are
// opaque to the pipeline and only handed through to connector construction.
type Exchange struct {
	Name      string `yaml:"name"`
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	// Symbols maps canonical pairs to the venue's native symbols,
	// e.g. BTC-USD: BTCUSDT on binance.
	Symbols map[string]string `yaml:"symbols"`
}

// Arbitrage groups the spread detection thresholds.
type Arbitrage struct {
	Pairs        []string `yaml:"pairs"`
	MinSpreadPct float64  `yaml:"min_spread_pct"`
	MaxTickAgeMs int      `yaml:"max_tick_age_ms"`
}

// Paper captures virtual-portfolio settings for the trade simulator.
type Paper struct {
	StartingCash  float64 `yaml:"starting_cash"`
	PositionPct   float64 `yaml:"position_pct"`
	FixedNotional float64 `yaml:"fixed_notional"`
	FeePct        float64 `yaml:"fee_pct"`
	AllowNegative bool    `yaml:"allow_negative"`
	TradesPath    string  `yaml:"trades_path"`
}

// Monitor configures the periodic performance summary.
type Monitor struct {
	ReportIntervalSecs int `yaml:"report_interval_secs"`
}

// Config collects every configuration leaf for easy marshaling from YAML.
type Config struct {
	App       App        `yaml:"app"`
	Exchanges []Exchange `yaml:"exchanges"`
	Arbitrage Arbitrage  `yaml:"arbitrage"`
	Paper     Paper      `yaml:"paper"`
	Monitor   Monitor    `yaml:"monitor"`
}

// MaxTickAge returns the detector latency window as a duration.
func (a Arbitrage) MaxTickAge() time.Duration {
	return time.Duration(a.MaxTickAgeMs) * time.Millisecond
}

// ReportInterval returns the monitor cadence as a duration.
func (m Monitor) ReportInterval() time.Duration {
	return time.Duration(m.ReportIntervalSecs) * time.Second
}

// Load reads a YAML file from disk and hydrates a Config struct.
func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	var config Config
	if err := yaml.NewDecoder(file).Decode(&config); err != nil {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	config.applyDefaults()
	if err := config.validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Save persists a Config struct to disk as YAML.
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

func (c *Config) applyDefaults() {
	if c.App.LogLevel == "" {
		c.App.LogLevel = "info"
	}
	if c.App.MetricsAddr == "" {
		c.App.MetricsAddr = ":9100"
	}
	if c.Arbitrage.MinSpreadPct == 0 {
		c.Arbitrage.MinSpreadPct = 0.5
	}
	if c.Arbitrage.MaxTickAgeMs == 0 {
		c.Arbitrage.MaxTickAgeMs = 2000
	}
	if c.Paper.StartingCash == 0 {
		c.Paper.StartingCash = 10000
	}
	if c.Paper.PositionPct == 0 && c.Paper.FixedNotional == 0 {
		c.Paper.PositionPct = 10
	}
	if c.Monitor.ReportIntervalSecs == 0 {
		c.Monitor.ReportIntervalSecs = 30
	}
}

func (c *Config) validate() error {
	if len(c.Exchanges) < 2 {
		return fmt.Errorf("config: need at least two exchanges, got %d", len(c.Exchanges))
	}
	if len(c.Arbitrage.Pairs) == 0 {
		return fmt.Errorf("config: no trading pairs configured")
	}
	seen := make(map[string]struct{}, len(c.Exchanges))
	for _, ex := range c.Exchanges {
		if ex.Name == "" {
			return fmt.Errorf("config: exchange with empty name")
		}
		if _, dup := seen[ex.Name]; dup {
			return fmt.Errorf("config: duplicate exchange %q", ex.Name)
		}
		seen[ex.Name] = struct{}{}
	}
	if c.Arbitrage.MinSpreadPct < 0 {
		return fmt.Errorf("config: min_spread_pct must not be negative")
	}
	return nil
}
