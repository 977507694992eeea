// Package config defines all configuration for the bracket trading agent.
// Config is loaded from a YAML file (default: configs/config.yaml) with
// credentials overridable via MEXC_* and other fields via BRACKET_*
// environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// Config is the top-level configuration. Maps directly to the YAML file structure.
type Config struct {
	DryRun     bool             `mapstructure:"dry_run"`
	API        APIConfig        `mapstructure:"api"`
	Trading    TradingConfig    `mapstructure:"trading"`
	Liquidator LiquidatorConfig `mapstructure:"liquidator"`
	Store      StoreConfig      `mapstructure:"store"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// APIConfig holds MEXC endpoint and credential settings.
type APIConfig struct {
	BaseURL   string  `mapstructure:"base_url"`
	APIKey    string  `mapstructure:"api_key"`
	SecretKey string  `mapstructure:"secret_key"`
	RatePerS  float64 `mapstructure:"rate_limit_rps"`
}

// WindowConfig is one trading-window entry: start/end HH:MM and an IANA
// timezone id.
type WindowConfig struct {
	Start string `mapstructure:"start"`
	End   string `mapstructure:"end"`
	Tz    string `mapstructure:"timezone"`
}

// TradingConfig tunes the bracket itself plus the trading-window gate and
// the daily order quota.
type TradingConfig struct {
	Symbol        string         `mapstructure:"symbol"`
	Quantity      float64        `mapstructure:"quantity"`
	MaxOrdersDay  int            `mapstructure:"max_orders_per_day"`
	Windows       []WindowConfig `mapstructure:"windows"`
	MonitorTickMS int            `mapstructure:"monitor_tick_ms"`
}

// LiquidatorConfig tunes the Emergency Liquidator's three stages.
type LiquidatorConfig struct {
	MicroBatchUnits   []float64 `mapstructure:"micro_batch_units"`
	MicroBatchSpacing int       `mapstructure:"micro_batch_spacing_ms"`
	LadderDiscounts   []float64 `mapstructure:"ladder_discounts_pct"`
	RetryDelaysSec    []float64 `mapstructure:"retry_delays_sec"`
}

// StoreConfig sets where position data is persisted (JSON files). An empty
// DataDir disables persistence entirely.
type StoreConfig struct {
	DataDir string `mapstructure:"data_dir"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads config from a YAML file with env var overrides. Sensitive
// fields use explicit env vars (never blanket AutomaticEnv) so secrets are
// never silently picked up from an unrelated variable:
// MEXC_API_KEY, MEXC_SECRET_KEY, BRACKET_DRY_RUN.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if key := os.Getenv("MEXC_API_KEY"); key != "" {
		cfg.API.APIKey = key
	}
	if secret := os.Getenv("MEXC_SECRET_KEY"); secret != "" {
		cfg.API.SecretKey = secret
	}
	if sym := os.Getenv("BRACKET_SYMBOL"); sym != "" {
		cfg.Trading.Symbol = sym
	}
	if qty := os.Getenv("BRACKET_QUANTITY"); qty != "" {
		if f, err := strconv.ParseFloat(qty, 64); err == nil {
			cfg.Trading.Quantity = f
		}
	}
	if rps := os.Getenv("BRACKET_RATE_LIMIT_RPS"); rps != "" {
		if f, err := strconv.ParseFloat(rps, 64); err == nil {
			cfg.API.RatePerS = f
		}
	}
	if maxDay := os.Getenv("BRACKET_MAX_ORDERS_PER_DAY"); maxDay != "" {
		if n, err := strconv.Atoi(maxDay); err == nil {
			cfg.Trading.MaxOrdersDay = n
		}
	}
	if level := os.Getenv("BRACKET_LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
	if dr := os.Getenv("BRACKET_DRY_RUN"); dr == "true" || dr == "1" {
		cfg.DryRun = true
	}
	if windows := os.Getenv("BRACKET_TRADING_WINDOWS"); windows != "" {
		parsed, err := parseWindowsEnv(windows)
		if err != nil {
			return nil, fmt.Errorf("parse BRACKET_TRADING_WINDOWS: %w", err)
		}
		cfg.Trading.Windows = parsed
	}

	return &cfg, nil
}

// parseWindowsEnv parses comma-separated "HH:MM-HH:MM@tz" window specs.
func parseWindowsEnv(spec string) ([]WindowConfig, error) {
	var windows []WindowConfig
	for _, entry := range strings.Split(spec, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		atParts := strings.SplitN(entry, "@", 2)
		tz := "UTC"
		timeRange := atParts[0]
		if len(atParts) == 2 {
			tz = atParts[1]
		}
		rangeParts := strings.SplitN(timeRange, "-", 2)
		if len(rangeParts) != 2 {
			return nil, fmt.Errorf("invalid window spec %q", entry)
		}
		windows = append(windows, WindowConfig{Start: rangeParts[0], End: rangeParts[1], Tz: tz})
	}
	return windows, nil
}

// Validate checks all required fields and value ranges.
func (c *Config) Validate() error {
	if !c.DryRun {
		if c.API.APIKey == "" {
			return fmt.Errorf("api.api_key is required (set MEXC_API_KEY) unless dry_run")
		}
		if c.API.SecretKey == "" {
			return fmt.Errorf("api.secret_key is required (set MEXC_SECRET_KEY) unless dry_run")
		}
	}
	if c.API.BaseURL == "" {
		return fmt.Errorf("api.base_url is required")
	}
	if c.API.RatePerS <= 0 {
		return fmt.Errorf("api.rate_limit_rps must be > 0")
	}
	if c.Trading.Symbol == "" {
		return fmt.Errorf("trading.symbol is required")
	}
	if c.Trading.Quantity <= 0 {
		return fmt.Errorf("trading.quantity must be > 0")
	}
	if c.Trading.MaxOrdersDay <= 0 {
		return fmt.Errorf("trading.max_orders_per_day must be > 0")
	}
	return nil
}
