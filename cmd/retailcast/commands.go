package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/seenimoa/retailcast/api"
	"github.com/seenimoa/retailcast/internal/config"
	"github.com/seenimoa/retailcast/internal/loader"
	"github.com/seenimoa/retailcast/internal/pipeline"
	"github.com/seenimoa/retailcast/internal/report"
	"github.com/seenimoa/retailcast/internal/store"
	"github.com/seenimoa/retailcast/pkg/models"
	"github.com/seenimoa/retailcast/pkg/utils"
)

// reportOptions are the resolved inputs of the report command.
type reportOptions struct {
	Sources  []string
	Pipeline pipeline.Config
	Output   string
	CSV      string
	XLSX     string
	HTML     string
	JSON     string
	Title    string
	Postgres string
	Schema   string
	Quiet    bool
}

// reportOptionsFromFlags merges command flags over the loaded config.
func reportOptionsFromFlags(cmd *cobra.Command, args []string) (reportOptions, error) {
	f := cmd.Flags()
	batch, _ := f.GetBool("batch")

	opts := reportOptions{
		Sources:  args,
		Pipeline: pipeline.ConfigFrom(cfg, batch),
		Output:   cfg.Report.Output,
		CSV:      cfg.Report.CSVOutput,
		XLSX:     cfg.Report.XLSXOutput,
		HTML:     cfg.Report.HTMLOutput,
		Title:    cfg.Report.Title,
		Postgres: cfg.Storage.PostgresDSN,
		Schema:   cfg.Storage.Schema,
	}
	if len(opts.Sources) == 0 {
		opts.Sources = cfg.Input.Sales
	}
	if len(opts.Sources) == 0 {
		return opts, fmt.Errorf("no sales files given and input.sales is empty")
	}

	for flag, dst := range map[string]*string{
		"output": &opts.Output, "csv": &opts.CSV, "xlsx": &opts.XLSX,
		"html": &opts.HTML, "json": &opts.JSON, "title": &opts.Title, "postgres": &opts.Postgres,
	} {
		if f.Changed(flag) {
			*dst, _ = f.GetString(flag)
		}
	}
	if f.Changed("horizon") {
		h, _ := f.GetFloat64("horizon")
		if h <= 0 {
			return opts, fmt.Errorf("--horizon must be positive, got %v", h)
		}
		opts.Pipeline.Forecast.HorizonMonths = h
	}
	if f.Changed("top") {
		n, _ := f.GetInt("top")
		if n < 1 {
			return opts, fmt.Errorf("--top must be at least 1, got %d", n)
		}
		opts.Pipeline.TopN = n
	}
	if f.Changed("seed") {
		opts.Pipeline.Forecast.Seed, _ = f.GetUint64("seed")
	}
	if f.Changed("workers") {
		opts.Pipeline.Forecast.Workers, _ = f.GetInt("workers")
	}
	opts.Quiet, _ = f.GetBool("quiet")
	return opts, nil
}

// runReport runs the pipeline and saves the run to every configured sink.
// An empty result still writes the report; only load and save errors fail.
func runReport(ctx context.Context, out io.Writer, opts reportOptions) error {
	run, err := pipeline.New(opts.Pipeline, logger).RunSources(ctx, opts.Sources...)
	if err != nil {
		return err
	}

	sinks, closeSinks, err := buildSinks(ctx, opts)
	if err != nil {
		return err
	}
	defer closeSinks()

	meta := store.NewRunMeta(opts.Sources...)
	if err := sinks.Save(ctx, run, meta); err != nil {
		return fmt.Errorf("saving run %s: %w", meta.ID, err)
	}

	if !opts.Quiet {
		fmt.Fprint(out, report.Text(run, report.Config{Title: opts.Title, GeneratedAt: meta.CreatedAt}))
		for _, path := range []string{opts.Output, opts.CSV, opts.XLSX, opts.HTML, opts.JSON} {
			if path != "" {
				fmt.Fprintf(out, "  Written: %s\n", path)
			}
		}
	}
	logger.Info("run saved", "run_id", meta.ID, "sinks", len(sinks))
	return nil
}

// buildSinks returns one sink per configured output. The returned func
// releases database connections.
func buildSinks(ctx context.Context, opts reportOptions) (store.MultiSink, func(), error) {
	var sinks store.MultiSink
	for _, path := range []string{opts.Output, opts.CSV, opts.XLSX, opts.HTML} {
		if path != "" {
			sinks = append(sinks, store.FileSink{Path: path, Title: opts.Title})
		}
	}
	if opts.JSON != "" {
		sinks = append(sinks, store.FileSink{Path: opts.JSON, Format: report.FormatJSON})
	}

	closeFn := func() {}
	if opts.Postgres != "" {
		pg, err := openPostgres(ctx, opts.Postgres, opts.Schema)
		if err != nil {
			return nil, closeFn, err
		}
		sinks = append(sinks, pg)
		closeFn = pg.Close
	}
	if len(sinks) == 0 {
		return nil, closeFn, errors.New("no output configured: set --output or report.output")
	}
	return sinks, closeFn, nil
}

func openPostgres(ctx context.Context, dsn, schema string) (*store.PostgresSink, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pg, err := store.NewPostgresSink(connectCtx, dsn, schema)
	if err != nil {
		return nil, err
	}
	if err := pg.EnsureSchema(connectCtx); err != nil {
		pg.Close()
		return nil, err
	}
	return pg, nil
}

// predictOptions are the resolved inputs of the predict command.
type predictOptions struct {
	Sources  []string
	Pipeline pipeline.Config
	Scope    models.Scope
	ID       string
}

func predictOptionsFromFlags(cmd *cobra.Command, args []string) (predictOptions, error) {
	f := cmd.Flags()
	opts := predictOptions{
		Sources:  args,
		Pipeline: pipeline.ConfigFrom(cfg, false),
	}
	if len(opts.Sources) == 0 {
		opts.Sources = cfg.Input.Sales
	}
	if len(opts.Sources) == 0 {
		return opts, fmt.Errorf("no sales files given and input.sales is empty")
	}

	if id, _ := f.GetString("product"); id != "" {
		opts.Scope, opts.ID = models.ScopeProduct, utils.NormalizeID(id)
	} else {
		id, _ := f.GetString("category")
		opts.Scope, opts.ID = models.ScopeCategory, strings.TrimSpace(id)
	}
	if f.Changed("horizon") {
		h, _ := f.GetFloat64("horizon")
		if h <= 0 {
			return opts, fmt.Errorf("--horizon must be positive, got %v", h)
		}
		opts.Pipeline.Forecast.HorizonMonths = h
	}
	return opts, nil
}

// runPredict forecasts one entity and prints its fitted model.
func runPredict(ctx context.Context, out io.Writer, opts predictOptions) error {
	records, err := loader.New(opts.Pipeline.Loader).Load(ctx, opts.Sources...)
	if err != nil {
		return err
	}
	res, err := pipeline.New(opts.Pipeline, logger).ForecastEntity(ctx, records, opts.Scope, opts.ID)
	if err != nil {
		return err
	}

	fmt.Fprintln(out, "═══════════════════════════════════════")
	fmt.Fprintf(out, "  %s forecast: %s\n", scopeLabel(res.Scope), res.EntityID)
	fmt.Fprintln(out, "═══════════════════════════════════════")
	if res.EntityName != "" && res.EntityName != res.EntityID {
		fmt.Fprintf(out, "  Name:          %s\n", res.EntityName)
	}
	if res.Category != "" {
		fmt.Fprintf(out, "  Category:      %s\n", res.Category)
	}
	fmt.Fprintf(out, "  Series:        %s to %s (%d months)\n", utils.FormatMonth(res.FirstMonth), utils.FormatMonth(res.LastMonth), res.Points)
	fmt.Fprintf(out, "  Horizon:       %g month(s) (offset %g)\n", opts.Pipeline.Forecast.HorizonMonths, res.TargetOffset)
	fmt.Fprintf(out, "  Forecast:      %s units\n", utils.FormatQuantity(res.Predicted))
	fmt.Fprintf(out, "  Trend:         %+.4f units/month\n", res.Slope)
	fmt.Fprintf(out, "  Intercept:     %.4f\n", res.Intercept)
	fmt.Fprintf(out, "  Holdout MSE:   %s (train %d, test %d)\n", utils.FormatError(res.EvaluationError), res.TrainSize, res.TestSize)
	fmt.Fprintf(out, "  Holdout RMSE:  %s   MAE: %s   R²: %.4f\n", utils.FormatError(res.RMSE), utils.FormatError(res.MAE), res.R2)
	if res.HasRevenue {
		fmt.Fprintf(out, "  Revenue:       %s\n", utils.FormatBRL(res.ExpectedRevenue))
	}
	fmt.Fprintln(out, "═══════════════════════════════════════")
	return nil
}

func scopeLabel(s models.Scope) string {
	if s == models.ScopeCategory {
		return "Category"
	}
	return "Product"
}

// runServe starts the API server until ctx is canceled.
func runServe(ctx context.Context) error {
	opts := api.Options{Logger: logger, Version: version}
	if cfg.Storage.PostgresDSN != "" {
		pg, err := openPostgres(ctx, cfg.Storage.PostgresDSN, cfg.Storage.Schema)
		if err != nil {
			return err
		}
		defer pg.Close()
		opts.Sink = pg
	}

	addr := fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port)
	return api.NewServer(cfg, opts).Serve(ctx, addr)
}

// printStatus prints version, effective settings and secret status.
func printStatus(out io.Writer, c *config.Config) {
	fmt.Fprintln(out, "═══════════════════════════════════════")
	fmt.Fprintln(out, "  retailcast — System Status")
	fmt.Fprintln(out, "═══════════════════════════════════════")
	fmt.Fprintf(out, "  Version:       %s (%s)\n", version, commit)
	fmt.Fprintln(out)

	fmt.Fprintln(out, "  Configuration:")
	sales := "(none)"
	if len(c.Input.Sales) > 0 {
		sales = strings.Join(c.Input.Sales, ", ")
	}
	fmt.Fprintf(out, "    Sales files:   %s\n", sales)
	fmt.Fprintf(out, "    Horizon:       %g month(s), batch %g\n", c.Forecast.HorizonMonths, c.Forecast.BatchHorizonMonths)
	fmt.Fprintf(out, "    Holdout:       %.0f%% (seed %d)\n", c.Forecast.TestFraction*100, c.Forecast.Seed)
	fmt.Fprintf(out, "    Top N:         %d\n", c.Report.TopN)
	fmt.Fprintf(out, "    Report:        %s\n", c.Report.Output)
	fmt.Fprintf(out, "    API Server:    %s:%d\n", c.API.Host, c.API.Port)
	fmt.Fprintf(out, "    Logging:       %s (%s)\n", c.Logging.Level, c.Logging.Format)
	fmt.Fprintln(out)

	fmt.Fprintln(out, "  Secrets:")
	for _, s := range config.CheckSecrets(c) {
		status := "not set"
		if s.IsSet {
			status = fmt.Sprintf("set (%s: %s)", s.Source, s.Masked)
		}
		fmt.Fprintf(out, "    %-15s %s\n", s.Name+":", status)
	}
	fmt.Fprintln(out, "═══════════════════════════════════════")
}
