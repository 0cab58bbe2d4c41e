package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rewired-gh/salesforecast/internal/forecast"
	"github.com/rewired-gh/salesforecast/internal/logger"
	"github.com/rewired-gh/salesforecast/internal/models"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

// importCmd stores sales from a file or the configured source
func importCmd(a *app) *cobra.Command {
	var sheet string

	cmd := &cobra.Command{
		Use:   "import [file]",
		Short: "Import sales from a CSV/XLSX file or the configured source",
		Long: `Reads rows of date,product_name,qty and stores them. With no file the
configured source (csv, xlsx or http) is used. A file with any invalid row is
rejected as a whole.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			src := a.cfg.Source
			if len(args) == 1 {
				src = fileSource(args[0], sheet)
			}
			if src.Type == "db" {
				return errors.New("nothing to import: pass a file or set source.type")
			}

			sales, err := readSales(ctx, src)
			if err != nil {
				return fmt.Errorf("failed to read sales: %w", err)
			}

			store, err := a.storage()
			if err != nil {
				return err
			}

			bar := progressbar.Default(int64(len(sales)), "importing")
			if err := store.AddSales(ctx, sales, func() { _ = bar.Add(1) }); err != nil {
				return fmt.Errorf("failed to store sales: %w", err)
			}
			_ = bar.Finish()

			logger.Info("Imported %d sales", len(sales))
			return nil
		},
	}

	cmd.Flags().StringVar(&sheet, "sheet", "", "Workbook sheet (first sheet when empty)")
	return cmd
}

type forecastOptions struct {
	product string
	alpha   float64
	project string
	label   string
	commit  bool
	trace   bool
	asJSON  bool
}

// forecastCmd computes a batch forecast and optionally commits it
func forecastCmd(a *app) *cobra.Command {
	var opts forecastOptions

	cmd := &cobra.Command{
		Use:   "forecast",
		Short: "Forecast the next period for every product",
		Long: `Groups sales per product, smooths each series with the given alpha and
reports MAPE and the next period forecast. Without --commit nothing is stored.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("alpha") {
				opts.alpha = a.cfg.Forecast.Alpha
			}
			if !cmd.Flags().Changed("product") {
				opts.product = a.cfg.Forecast.Product
			}
			if !cmd.Flags().Changed("project") {
				opts.project = a.cfg.Forecast.ProjectName
			}
			if !cmd.Flags().Changed("label") {
				opts.label = a.cfg.Forecast.NextPeriodLabel
			}
			return a.runForecast(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVarP(&opts.product, "product", "p", "", "Only forecast this product")
	cmd.Flags().Float64VarP(&opts.alpha, "alpha", "a", 0.5, "Smoothing factor")
	cmd.Flags().StringVar(&opts.project, "project", "", "Project name to save the run under")
	cmd.Flags().StringVar(&opts.label, "label", "", "Label of the forecast period")
	cmd.Flags().BoolVar(&opts.commit, "commit", false, "Store the run")
	cmd.Flags().BoolVar(&opts.trace, "trace", false, "Print the step by step derivation")
	cmd.Flags().BoolVar(&opts.asJSON, "json", false, "Print the batch as JSON")
	return cmd
}

// observations loads every sale of the configured source. Product filtering
// is left to the Grouper so that all sources treat an unknown product alike.
func (a *app) observations(ctx context.Context) ([]forecast.Observation, error) {
	if a.cfg.Source.Type == "db" {
		store, err := a.storage()
		if err != nil {
			return nil, err
		}
		return store.Observations(ctx, "")
	}
	sales, err := readSales(ctx, a.cfg.Source)
	if err != nil {
		return nil, err
	}
	return models.Observations(sales), nil
}

func (a *app) runForecast(ctx context.Context, opts forecastOptions) error {
	start := time.Now()

	obs, err := a.observations(ctx)
	if err != nil {
		return fmt.Errorf("failed to load sales: %w", err)
	}

	agg := forecast.Aggregator{
		WithTrace:       a.cfg.Forecast.WithTrace || opts.trace,
		NextPeriodLabel: opts.label,
	}
	if opts.product != "" {
		product := opts.product
		agg.Grouper.Include = func(key string) bool { return key == product }
	}

	batch, err := agg.Compute(obs, opts.alpha)
	if err != nil {
		return fmt.Errorf("failed to compute forecast: %w", err)
	}
	logger.Debug("Forecast of %d products computed in %v", len(batch.Results), time.Since(start))

	if opts.asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(batch); err != nil {
			return fmt.Errorf("failed to encode batch: %w", err)
		}
	} else {
		printBatch(os.Stdout, batch, opts.trace)
	}

	if !opts.commit {
		return nil
	}
	return a.commit(ctx, batch, opts.project)
}

func (a *app) commit(ctx context.Context, batch *forecast.BatchResult, project string) error {
	notifier := a.notifier()

	err := a.saveRun(ctx, batch, project)
	if err != nil {
		if notifier != nil {
			if sendErr := notifier.SendError(err); sendErr != nil {
				logger.Warn("Failed to send error notification to Telegram: %v", sendErr)
			}
		}
		return err
	}

	if notifier != nil {
		if sendErr := notifier.SendRun(project, batch, time.Now()); sendErr != nil {
			logger.Warn("Failed to send run summary to Telegram: %v", sendErr)
		}
	}
	return nil
}

func (a *app) saveRun(ctx context.Context, batch *forecast.BatchResult, project string) error {
	records := models.RecordsFromBatch(batch, models.RunMeta{
		ProjectName: project,
		CreatedBy:   a.cfg.Forecast.CreatedBy,
		CreatedAt:   time.Now(),
	})
	if len(records) == 0 {
		return errors.New("nothing to commit: no product matched")
	}

	store, err := a.storage()
	if err != nil {
		return err
	}
	if err := store.SaveRun(ctx, records); err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}
	if err := store.RotateForecasts(ctx); err != nil {
		logger.Warn("Failed to rotate old runs: %v", err)
	}

	if project != "" {
		logger.Info("Saved %d forecasts as project %q", len(records), project)
	} else {
		logger.Info("Saved %d forecasts (run %s)", len(records), records[0].RunID)
	}
	return nil
}

// seriesCmd forecasts a single series given on the command line
func seriesCmd(a *app) *cobra.Command {
	var (
		alpha float64
		dates string
	)

	cmd := &cobra.Command{
		Use:   "series VALUE...",
		Short: "Forecast a single series of values",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("alpha") {
				alpha = a.cfg.Forecast.Alpha
			}

			values := make([]float64, len(args))
			for i, arg := range args {
				v, err := strconv.ParseFloat(arg, 64)
				if err != nil {
					return fmt.Errorf("invalid value %q: %w", arg, err)
				}
				values[i] = v
			}

			var keys []string
			if dates != "" {
				keys = strings.Split(dates, ",")
			}

			res, err := forecast.ComputeSeries(values, keys, alpha, true)
			if err != nil {
				return err
			}
			printTrace(os.Stdout, res.Trace)
			fmt.Printf("\nMAPE: %s\nNext period: %s\n", formatPct(res.MAPE), strconv.FormatFloat(res.NextPeriodForecast, 'f', -1, 64))
			return nil
		},
	}

	cmd.Flags().Float64VarP(&alpha, "alpha", "a", 0.5, "Smoothing factor")
	cmd.Flags().StringVar(&dates, "dates", "", "Comma separated labels, one per value")
	return cmd
}

// projectsCmd manages saved projects
func projectsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "projects",
		Short: "List, show, rename or delete saved projects",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List saved projects, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.storage()
			if err != nil {
				return err
			}
			projects, err := store.ListProjects(cmd.Context())
			if err != nil {
				return err
			}
			printProjects(os.Stdout, projects)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "show NAME",
		Short: "Show the forecasts of a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.storage()
			if err != nil {
				return err
			}
			records, err := store.GetProject(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printRecords(os.Stdout, records)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "rename OLD NEW",
		Short: "Rename a project",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.storage()
			if err != nil {
				return err
			}
			if err := store.RenameProject(cmd.Context(), args[0], args[1]); err != nil {
				return err
			}
			logger.Info("Renamed project %q to %q", args[0], args[1])
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "delete NAME",
		Short: "Delete a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.storage()
			if err != nil {
				return err
			}
			if err := store.DeleteProject(cmd.Context(), args[0]); err != nil {
				return err
			}
			logger.Info("Deleted project %q", args[0])
			return nil
		},
	})

	return cmd
}

// latestCmd prints the most recently committed run
func latestCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "latest",
		Short: "Show the most recently committed run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.storage()
			if err != nil {
				return err
			}
			records, err := store.GetLatestRun(cmd.Context())
			if err != nil {
				return err
			}
			printRecords(os.Stdout, records)
			return nil
		},
	}
}
