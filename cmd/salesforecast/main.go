package main

import (
	"fmt"
	"os"

	"github.com/rewired-gh/salesforecast/internal/config"
	"github.com/rewired-gh/salesforecast/internal/logger"
	"github.com/rewired-gh/salesforecast/internal/storage"
	"github.com/rewired-gh/salesforecast/internal/telegram"
	"github.com/spf13/cobra"
)

// app carries what every subcommand needs once configuration is loaded.
type app struct {
	configPath string
	cfg        *config.Config
	store      *storage.Storage
}

func main() {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:   "salesforecast",
		Short: "Single exponential smoothing forecasts of product sales",
		Long: `Imports daily sales per product, forecasts the next period with single
exponential smoothing and keeps committed runs as named projects.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup()
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return a.close()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "Path to configuration file (defaults and SALES_FORECAST_* env when empty)")

	rootCmd.AddCommand(importCmd(a))
	rootCmd.AddCommand(forecastCmd(a))
	rootCmd.AddCommand(seriesCmd(a))
	rootCmd.AddCommand(projectsCmd(a))
	rootCmd.AddCommand(latestCmd(a))
	rootCmd.AddCommand(salesCmd(a))
	rootCmd.AddCommand(productsCmd(a))

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func (a *app) setup() error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	a.cfg = cfg

	logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	if a.configPath != "" {
		logger.Debug("Configuration loaded from %s", a.configPath)
	}
	return nil
}

// storage opens the database on first use so that pure commands such as
// series never touch the disk.
func (a *app) storage() (*storage.Storage, error) {
	if a.store != nil {
		return a.store, nil
	}
	store, err := storage.New(a.cfg.Storage.MaxRuns, a.cfg.Storage.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	a.store = store
	return store, nil
}

func (a *app) close() error {
	if a.store == nil {
		return nil
	}
	if err := a.store.Close(); err != nil {
		logger.Error("Failed to close storage: %v", err)
		return err
	}
	return nil
}

// notifier returns nil when Telegram notifications are disabled.
func (a *app) notifier() *telegram.Client {
	if !a.cfg.Telegram.Enabled {
		logger.Debug("Telegram notifications disabled")
		return nil
	}
	client, err := telegram.NewClient(a.cfg.Telegram.BotToken, a.cfg.Telegram.ChatID, a.cfg.Telegram.MaxRetries, a.cfg.Telegram.RetryDelayBase)
	if err != nil {
		logger.Warn("Failed to initialize Telegram client: %v", err)
		return nil
	}
	return client
}
