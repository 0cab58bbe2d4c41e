package config

import (
	"os"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	tmpfile, err := os.CreateTemp(t.TempDir(), "config-*.yaml")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := tmpfile.Write([]byte(content)); err != nil {
		t.Fatal(err)
	}
	if err := tmpfile.Close(); err != nil {
		t.Fatal(err)
	}
	return tmpfile.Name()
}

func TestLoadAndValidate(t *testing.T) {
	path := writeConfig(t, `
forecast:
  alpha: 0.3
  product: "Soto Ayam"
  project_name: "Q1 Forecast"
  created_by: "owner"
  next_period_label: "2024-06-01"

storage:
  db_path: "./data/test.db"
  max_runs: 20

source:
  type: http
  url: "http://localhost:8080/sales"
  timeout: 10s
  max_retries: 2

telegram:
  bot_token: "test_token"
  chat_id: "12345"
  enabled: true

logging:
  level: "debug"
  format: "json"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Forecast.Alpha != 0.3 {
		t.Errorf("Unexpected alpha: %f", cfg.Forecast.Alpha)
	}
	if cfg.Forecast.Product != "Soto Ayam" || cfg.Forecast.ProjectName != "Q1 Forecast" {
		t.Errorf("Unexpected forecast section: %+v", cfg.Forecast)
	}
	if !cfg.Forecast.WithTrace {
		t.Error("with_trace should default to true")
	}
	if cfg.Source.Timeout != 10*time.Second || cfg.Source.RetryDelayBase != time.Second {
		t.Errorf("Unexpected durations: %v / %v", cfg.Source.Timeout, cfg.Source.RetryDelayBase)
	}
	if cfg.Storage.MaxRuns != 20 {
		t.Errorf("Unexpected max_runs: %d", cfg.Storage.MaxRuns)
	}

	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
}

func TestLoadDefaultsOnly(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Forecast.Alpha != 0.5 || cfg.Source.Type != "db" || cfg.Logging.Level != "info" {
		t.Errorf("Unexpected defaults: %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("SALES_FORECAST_FORECAST_ALPHA", "0.8")
	t.Setenv("SALES_FORECAST_TELEGRAM_BOT_TOKEN", "from-env")

	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Forecast.Alpha != 0.8 {
		t.Errorf("alpha = %v, want 0.8", cfg.Forecast.Alpha)
	}
	if cfg.Telegram.BotToken != "from-env" {
		t.Errorf("bot token = %q", cfg.Telegram.BotToken)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/config.yaml"); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestValidateErrors(t *testing.T) {
	valid := func() *Config {
		cfg, err := Load("")
		if err != nil {
			t.Fatal(err)
		}
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(c *Config)
		want   string
	}{
		{"out of range alpha is allowed", func(c *Config) { c.Forecast.Alpha = 1.7 }, ""},
		{"negative alpha is allowed", func(c *Config) { c.Forecast.Alpha = -0.2 }, ""},
		{"missing db path", func(c *Config) { c.Storage.DBPath = "" }, "storage.db_path"},
		{"zero max runs", func(c *Config) { c.Storage.MaxRuns = 0 }, "storage.max_runs"},
		{"unknown source", func(c *Config) { c.Source.Type = "ftp" }, "source.type"},
		{"http without url", func(c *Config) { c.Source.Type = "http" }, "source.url"},
		{"csv without path", func(c *Config) { c.Source.Type = "csv" }, "source.path"},
		{"telegram without token", func(c *Config) { c.Telegram.Enabled = true }, "telegram.bot_token"},
		{"telegram without chat", func(c *Config) {
			c.Telegram.Enabled = true
			c.Telegram.BotToken = "x"
		}, "telegram.chat_id"},
		{"bad level", func(c *Config) { c.Logging.Level = "trace" }, "logging.level"},
		{"bad format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.want == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Validate() error = %v, want mention of %s", err, tt.want)
			}
		})
	}
}
