// retailcast — monthly sales forecasting for retail product catalogs.
//
// Main CLI entrypoint using cobra command framework.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/seenimoa/retailcast/internal/config"
	"github.com/seenimoa/retailcast/internal/infra"
)

// Build-time variables (set via -ldflags).
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Global config and logger, set by PersistentPreRunE.
var (
	cfg    *config.Config
	logger *slog.Logger
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "retailcast",
	Short: "retailcast — monthly sales forecasts for products and categories",
	Long: `retailcast reads sales transactions (CSV or HTML tables), aggregates them
into monthly series per product and per category, fits a linear trend to each
series and ranks the entities with the highest forecast sales.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load .env: %w", err)
		}

		var err error
		configFile, _ := cmd.Flags().GetString("config")
		if configFile != "" {
			cfg, err = config.LoadFromFile(configFile)
		} else {
			cfg, err = config.Load()
		}
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		if level, _ := cmd.Flags().GetString("log-level"); level != "" {
			cfg.Logging.Level = level
		}
		logger = infra.NewLogger(cfg.Logging, cmd.ErrOrStderr())
		slog.SetDefault(logger)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "config file path (default: ./config/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "log level override (debug, info, warn, error)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(predictCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(statusCmd)
}

// --- Version Command ---

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "retailcast %s\n", version)
		fmt.Fprintf(out, "  commit:  %s\n", commit)
		fmt.Fprintf(out, "  built:   %s\n", date)
	},
}

// --- Report Command ---

var reportCmd = &cobra.Command{
	Use:   "report [sales files...]",
	Short: "Forecast every product and category and write the ranked report",
	Long: `Load sales files, forecast every product and category, rank the top N of
each and write the report. Files default to input.sales from the config.

Examples:
  retailcast report data/current_sales.csv data/historical/*.csv
  retailcast report --batch --top 5 --xlsx results/forecast.xlsx
  retailcast report --postgres "$DATABASE_URL"`,
	RunE: func(cmd *cobra.Command, args []string) error {
		opts, err := reportOptionsFromFlags(cmd, args)
		if err != nil {
			return err
		}
		return runReport(cmd.Context(), cmd.OutOrStdout(), opts)
	},
}

func init() {
	registerReportFlags(reportCmd)
}

func registerReportFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringP("output", "o", "", "markdown report path (default: report.output)")
	f.String("csv", "", "also write a CSV export")
	f.String("xlsx", "", "also write an XLSX workbook")
	f.String("html", "", "also write an HTML report")
	f.String("json", "", "also write the full run as JSON")
	f.String("title", "", "report title")
	f.Float64("horizon", 0, "months ahead to forecast (default: forecast.horizon_months)")
	f.Int("top", 0, "entries per ranking (default: report.top_n)")
	f.Bool("batch", false, "use the batch horizon (forecast.batch_horizon_months)")
	f.Uint64("seed", 0, "train/test split seed (default: forecast.seed)")
	f.Int("workers", 0, "concurrent entity fits (default: one per CPU)")
	f.String("postgres", "", "also store the run in PostgreSQL (DSN)")
	f.Bool("quiet", false, "do not print the summary")
}

// --- Predict Command ---

var predictCmd = &cobra.Command{
	Use:   "predict [sales files...]",
	Short: "Forecast a single product or category",
	Long: `Forecast one entity and print its fitted line and holdout error.

Examples:
  retailcast predict data/current_sales.csv --product prod_001
  retailcast predict data/*.csv --category Bebidas --horizon 3`,
	RunE: func(cmd *cobra.Command, args []string) error {
		opts, err := predictOptionsFromFlags(cmd, args)
		if err != nil {
			return err
		}
		return runPredict(cmd.Context(), cmd.OutOrStdout(), opts)
	},
}

func init() {
	registerPredictFlags(predictCmd)
}

func registerPredictFlags(cmd *cobra.Command) {
	cmd.Flags().String("product", "", "product id to forecast")
	cmd.Flags().String("category", "", "category to forecast")
	cmd.Flags().Float64("horizon", 0, "months ahead to forecast (default: forecast.horizon_months)")
	cmd.MarkFlagsMutuallyExclusive("product", "category")
	cmd.MarkFlagsOneRequired("product", "category")
}

// --- Serve Command (API Server) ---

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		if port, _ := cmd.Flags().GetInt("port"); port != 0 {
			cfg.API.Port = port
		}
		return runServe(cmd.Context())
	},
}

func init() {
	serveCmd.Flags().Int("port", 0, "listen port (default: api.port)")
}

// --- Status Command ---

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show configuration and secret status",
	RunE: func(cmd *cobra.Command, args []string) error {
		printStatus(cmd.OutOrStdout(), cfg)
		return nil
	},
}
