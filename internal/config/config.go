// Package config handles configuration loading for retailcast.
// It supports YAML config files with environment variable overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config represents the complete application configuration.
type Config struct {
	Input    InputConfig    `mapstructure:"input"    yaml:"input"`
	Forecast ForecastConfig `mapstructure:"forecast" yaml:"forecast"`
	Report   ReportConfig   `mapstructure:"report"   yaml:"report"`
	Storage  StorageConfig  `mapstructure:"storage"  yaml:"storage"`
	API      APIConfig      `mapstructure:"api"      yaml:"api"`
	Logging  LoggingConfig  `mapstructure:"logging"  yaml:"logging"`
}

// InputConfig describes where sales records come from and how to read them.
type InputConfig struct {
	Sales       []string          `mapstructure:"sales"        yaml:"sales"`        // current + historical partitions
	DateLayouts []string          `mapstructure:"date_layouts" yaml:"date_layouts"` // Go time layouts, tried in order
	Columns     map[string]string `mapstructure:"columns"      yaml:"columns"`      // field -> comma-separated header aliases
}

// ForecastConfig holds the per-entity regression settings.
type ForecastConfig struct {
	HorizonMonths      float64 `mapstructure:"horizon_months"       yaml:"horizon_months"`
	BatchHorizonMonths float64 `mapstructure:"batch_horizon_months" yaml:"batch_horizon_months"`
	TestFraction       float64 `mapstructure:"test_fraction"        yaml:"test_fraction"`
	Seed               uint64  `mapstructure:"seed"                 yaml:"seed"`
	Workers            int     `mapstructure:"workers"              yaml:"workers"` // 0 = one per CPU
}

// ReportConfig holds ranking and output settings.
type ReportConfig struct {
	TopN       int    `mapstructure:"top_n"       yaml:"top_n"`
	Output     string `mapstructure:"output"      yaml:"output"`
	CSVOutput  string `mapstructure:"csv_output"  yaml:"csv_output"`
	XLSXOutput string `mapstructure:"xlsx_output" yaml:"xlsx_output"`
	HTMLOutput string `mapstructure:"html_output" yaml:"html_output"`
	Title      string `mapstructure:"title"       yaml:"title"`
}

// StorageConfig holds the optional database sink settings.
type StorageConfig struct {
	PostgresDSN string `mapstructure:"postgres_dsn" yaml:"postgres_dsn"`
	Schema      string `mapstructure:"schema"       yaml:"schema"`
}

// APIConfig holds HTTP API server settings.
type APIConfig struct {
	Host          string   `mapstructure:"host"            yaml:"host"`
	Port          int      `mapstructure:"port"            yaml:"port"`
	CORSOrigins   []string `mapstructure:"cors_origins"    yaml:"cors_origins"`
	CacheTTL      int      `mapstructure:"cache_ttl"       yaml:"cache_ttl"` // seconds
	RateLimit     int      `mapstructure:"rate_limit"      yaml:"rate_limit"`
	RateWindowSec int      `mapstructure:"rate_window_sec" yaml:"rate_window_sec"`
	MaxBodyMB     int      `mapstructure:"max_body_mb"     yaml:"max_body_mb"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"  yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `mapstructure:"format" yaml:"format"` // "text" or "json"
}

// Load reads the configuration from file and environment variables.
// Config file search order:
//  1. ./config/config.yaml (project root)
//  2. ~/.retailcast/config.yaml (home directory)
//  3. /etc/retailcast/config.yaml (system)
//
// Environment variables override config file values.
// Format: RETAILCAST_<SECTION>_<KEY>, e.g., RETAILCAST_FORECAST_HORIZON_MONTHS
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./config")
	v.AddConfigPath(filepath.Join(homeDir(), ".retailcast"))
	v.AddConfigPath("/etc/retailcast")

	v.SetEnvPrefix("RETAILCAST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// No config file: defaults + env vars.
	}

	return decode(v)
}

// LoadFromFile reads configuration from a specific file path.
func LoadFromFile(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(path)
	v.SetEnvPrefix("RETAILCAST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file %s: %w", path, err)
	}

	return decode(v)
}

// Default returns the configuration built from defaults alone.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	cfg, err := decode(v)
	if err != nil {
		// Defaults always decode; a failure here is a programming error.
		panic(err)
	}
	return cfg
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	overrideFromEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the pipeline cannot run with.
func (c *Config) Validate() error {
	if c.Forecast.HorizonMonths <= 0 {
		return fmt.Errorf("forecast.horizon_months must be positive, got %v", c.Forecast.HorizonMonths)
	}
	if c.Forecast.BatchHorizonMonths <= 0 {
		return fmt.Errorf("forecast.batch_horizon_months must be positive, got %v", c.Forecast.BatchHorizonMonths)
	}
	if c.Forecast.TestFraction <= 0 || c.Forecast.TestFraction >= 1 {
		return fmt.Errorf("forecast.test_fraction must be in (0, 1), got %v", c.Forecast.TestFraction)
	}
	if c.Forecast.Workers < 0 {
		return fmt.Errorf("forecast.workers must not be negative, got %d", c.Forecast.Workers)
	}
	if c.Report.TopN < 1 {
		return fmt.Errorf("report.top_n must be at least 1, got %d", c.Report.TopN)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}
	return nil
}

// setDefaults sets sensible defaults for all config values.
func setDefaults(v *viper.Viper) {
	// Input defaults
	v.SetDefault("input.sales", []string{})
	v.SetDefault("input.date_layouts", []string{})

	// Forecast defaults: one month ahead for reports, three for the batch flow.
	v.SetDefault("forecast.horizon_months", 1.0)
	v.SetDefault("forecast.batch_horizon_months", 3.0)
	v.SetDefault("forecast.test_fraction", 0.2)
	v.SetDefault("forecast.seed", 42)
	v.SetDefault("forecast.workers", 0)

	// Report defaults
	v.SetDefault("report.top_n", 10)
	v.SetDefault("report.output", "results/relatorio_previsao.md")
	v.SetDefault("report.title", "Sales Forecast Report")

	// Storage defaults
	v.SetDefault("storage.schema", "public")

	// API defaults
	v.SetDefault("api.host", "0.0.0.0")
	v.SetDefault("api.port", 8080)
	v.SetDefault("api.cors_origins", []string{"http://localhost:3000"})
	v.SetDefault("api.cache_ttl", 600)
	v.SetDefault("api.rate_limit", 30)
	v.SetDefault("api.rate_window_sec", 60)
	v.SetDefault("api.max_body_mb", 32)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}

// overrideFromEnv explicitly reads sensitive keys from environment variables.
func overrideFromEnv(cfg *Config) {
	if dsn := os.Getenv("RETAILCAST_STORAGE_POSTGRES_DSN"); dsn != "" {
		cfg.Storage.PostgresDSN = dsn
	} else if dsn := os.Getenv("DATABASE_URL"); dsn != "" && cfg.Storage.PostgresDSN == "" {
		cfg.Storage.PostgresDSN = dsn
	}
}

// homeDir returns the user's home directory.
func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
