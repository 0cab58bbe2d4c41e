package config

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete application configuration
type Config struct {
	Forecast ForecastConfig `mapstructure:"forecast"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Source   SourceConfig   `mapstructure:"source"`
	Telegram TelegramConfig `mapstructure:"telegram"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ForecastConfig holds the defaults of a forecasting run
type ForecastConfig struct {
	// Alpha is passed to the model unchanged; values outside [0,1] are allowed.
	Alpha           float64 `mapstructure:"alpha"`
	Product         string  `mapstructure:"product"`
	ProjectName     string  `mapstructure:"project_name"`
	CreatedBy       string  `mapstructure:"created_by"`
	NextPeriodLabel string  `mapstructure:"next_period_label"`
	WithTrace       bool    `mapstructure:"with_trace"`
}

// StorageConfig holds database configuration
type StorageConfig struct {
	DBPath  string `mapstructure:"db_path"`
	MaxRuns int    `mapstructure:"max_runs"`
}

// SourceConfig selects where sales are read from for a forecast
type SourceConfig struct {
	Type           string        `mapstructure:"type"` // db, http, csv or xlsx
	URL            string        `mapstructure:"url"`
	Path           string        `mapstructure:"path"`
	Sheet          string        `mapstructure:"sheet"`
	Timeout        time.Duration `mapstructure:"timeout"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryDelayBase time.Duration `mapstructure:"retry_delay_base"`
}

// TelegramConfig holds Telegram notification configuration
type TelegramConfig struct {
	BotToken       string        `mapstructure:"bot_token"`
	ChatID         string        `mapstructure:"chat_id"`
	Enabled        bool          `mapstructure:"enabled"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryDelayBase time.Duration `mapstructure:"retry_delay_base"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from file and environment variables.
// An empty path loads defaults and environment only.
func Load(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	// SALES_FORECAST_FORECAST_ALPHA overrides forecast.alpha, and so on.
	v.SetEnvPrefix("SALES_FORECAST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults configures default values for all configuration options.
// Every key needs a default so that AutomaticEnv can override it.
func setDefaults(v *viper.Viper) {
	v.SetDefault("forecast.alpha", 0.5)
	v.SetDefault("forecast.product", "")
	v.SetDefault("forecast.project_name", "")
	v.SetDefault("forecast.created_by", "")
	v.SetDefault("forecast.next_period_label", "")
	v.SetDefault("forecast.with_trace", true)

	v.SetDefault("storage.db_path", "./data/salesforecast.db")
	v.SetDefault("storage.max_runs", 50)

	v.SetDefault("source.type", "db")
	v.SetDefault("source.url", "")
	v.SetDefault("source.path", "")
	v.SetDefault("source.sheet", "")
	v.SetDefault("source.timeout", "30s")
	v.SetDefault("source.max_retries", 3)
	v.SetDefault("source.retry_delay_base", "1s")

	v.SetDefault("telegram.enabled", false)
	v.SetDefault("telegram.bot_token", "")
	v.SetDefault("telegram.chat_id", "")
	v.SetDefault("telegram.max_retries", 3)
	v.SetDefault("telegram.retry_delay_base", "1s")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}

// Validate checks that all configuration values are valid
func (c *Config) Validate() error {
	if math.IsNaN(c.Forecast.Alpha) || math.IsInf(c.Forecast.Alpha, 0) {
		return fmt.Errorf("forecast.alpha must be a finite number")
	}

	if c.Storage.DBPath == "" {
		return fmt.Errorf("storage.db_path is required")
	}
	if c.Storage.MaxRuns < 1 {
		return fmt.Errorf("storage.max_runs must be at least 1")
	}

	switch c.Source.Type {
	case "db":
	case "http":
		if c.Source.URL == "" {
			return fmt.Errorf("source.url is required when source.type is http")
		}
		if c.Source.Timeout <= 0 {
			return fmt.Errorf("source.timeout must be positive")
		}
		if c.Source.MaxRetries < 1 {
			return fmt.Errorf("source.max_retries must be at least 1")
		}
	case "csv", "xlsx":
		if c.Source.Path == "" {
			return fmt.Errorf("source.path is required when source.type is %s", c.Source.Type)
		}
	default:
		return fmt.Errorf("source.type must be one of: db, http, csv, xlsx")
	}

	if c.Telegram.Enabled {
		if c.Telegram.BotToken == "" {
			return fmt.Errorf("telegram.bot_token is required when telegram is enabled")
		}
		if c.Telegram.ChatID == "" {
			return fmt.Errorf("telegram.chat_id is required when telegram is enabled")
		}
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	return nil
}
