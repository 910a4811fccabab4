// Package config loads the engine configuration from a YAML file with
// environment variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for the helios trading engine.
type Config struct {
	Storage Storage `yaml:"storage"`
	Alpaca  Alpaca  `yaml:"alpaca"`
	Alert   Alert   `yaml:"alert"`
	Logging Logging `yaml:"logging"`
	Trading Trading `yaml:"trading"`
}

// Storage holds paths for data persistence.
type Storage struct {
	DataDir    string `yaml:"data_dir"`
	SQLitePath string `yaml:"sqlite_path"`
}

// Alpaca holds credentials and endpoints for the Alpaca broker API.
type Alpaca struct {
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	BaseURL   string `yaml:"base_url"`
}

// Alert holds the notification sink endpoint.
type Alert struct {
	URL  string `yaml:"url"`
	Port int    `yaml:"port"`
}

// Endpoint returns the base URL of the alert sink, or "" if unconfigured.
func (a Alert) Endpoint() string {
	if a.URL == "" {
		return ""
	}
	if a.Port == 0 {
		return a.URL
	}
	return fmt.Sprintf("%s:%d", a.URL, a.Port)
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Trading defines the engine's position management parameters.
type Trading struct {
	MaxPositions   int      `yaml:"max_positions"`
	ATRWindow      int      `yaml:"atr_window"`
	HoldingDays    int      `yaml:"holding_days"`
	Symbols        []string `yaml:"symbols"`
	MarketTimezone string   `yaml:"market_timezone"`
	PaperMode      bool     `yaml:"paper_mode"`
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Load reads the YAML configuration file at the given path, parses it into a
// Config struct, applies environment variable overrides, and fills defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)
	applyDefaults(cfg)

	return cfg, nil
}

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}

	if v := os.Getenv("ALPACA_API_KEY"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("ALPACA_API_SECRET"); v != "" {
		cfg.Alpaca.APISecret = v
	}
	if v := os.Getenv("ALPACA_BASE_URL"); v != "" {
		cfg.Alpaca.BaseURL = v
	}

	if v := os.Getenv("ALERT_URL"); v != "" {
		cfg.Alert.URL = v
	}
	if v := os.Getenv("ALERT_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Alert.Port = port
		}
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	// Standard Alpaca env vars (highest priority — canonical names used by SDK).
	if v := os.Getenv("APCA_API_KEY_ID"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("APCA_API_SECRET_KEY"); v != "" {
		cfg.Alpaca.APISecret = v
	}
}

// applyDefaults fills zero-valued fields with working defaults.
func applyDefaults(cfg *Config) {
	if cfg.Trading.MaxPositions == 0 {
		cfg.Trading.MaxPositions = 5
	}
	if cfg.Trading.ATRWindow == 0 {
		cfg.Trading.ATRWindow = 14
	}
	if cfg.Trading.HoldingDays == 0 {
		cfg.Trading.HoldingDays = 5
	}
	if cfg.Trading.MarketTimezone == "" {
		cfg.Trading.MarketTimezone = "America/New_York"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
}
