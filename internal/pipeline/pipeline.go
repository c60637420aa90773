// Package pipeline composes loading, aggregation, forecasting and ranking
// into a single run that returns its results in memory.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/seenimoa/retailcast/internal/aggregate"
	"github.com/seenimoa/retailcast/internal/config"
	"github.com/seenimoa/retailcast/internal/forecast"
	"github.com/seenimoa/retailcast/internal/infra"
	"github.com/seenimoa/retailcast/internal/loader"
	"github.com/seenimoa/retailcast/internal/rank"
	"github.com/seenimoa/retailcast/pkg/models"
)

// WarnEmptyResult is recorded when no entity had enough data to forecast.
const WarnEmptyResult = "empty result: no entity had enough data to forecast"

// ErrEntityNotFound is returned by ForecastEntity for an unknown id.
var ErrEntityNotFound = errors.New("entity not found")

// Config holds everything a run needs.
type Config struct {
	Loader   loader.Options
	Forecast forecast.Config
	TopN     int
}

// ConfigFrom assembles a pipeline config from the application config. batch
// selects the batch forecast horizon.
func ConfigFrom(cfg *config.Config, batch bool) Config {
	return Config{
		Loader:   loader.OptionsFromConfig(cfg.Input),
		Forecast: forecast.ConfigFrom(cfg.Forecast, batch),
		TopN:     cfg.Report.TopN,
	}
}

// Pipeline runs Loader → Aggregator → Forecaster → Ranker. It keeps no state
// between runs.
type Pipeline struct {
	cfg Config
	log *slog.Logger
}

// New creates a Pipeline. A nil logger discards output; a non-positive TopN
// uses rank.DefaultTopN.
func New(cfg Config, log *slog.Logger) *Pipeline {
	if cfg.TopN <= 0 {
		cfg.TopN = rank.DefaultTopN
	}
	if log == nil {
		log = infra.DiscardLogger()
	}
	return &Pipeline{cfg: cfg, log: log}
}

// Config returns the pipeline's effective configuration.
func (p *Pipeline) Config() Config { return p.cfg }

// RunSources loads every source and runs the pipeline over the concatenated
// records. Malformed input aborts before any forecasting.
func (p *Pipeline) RunSources(ctx context.Context, sources ...string) (*models.ForecastRun, error) {
	records, err := loader.New(p.cfg.Loader).Load(ctx, sources...)
	if err != nil {
		return nil, err
	}
	p.log.Info("sales loaded", "sources", len(sources), "records", len(records))
	return p.Run(ctx, records)
}

// Run aggregates records per product and per category, forecasts every
// entity, and ranks both scopes independently.
func (p *Pipeline) Run(ctx context.Context, records []models.SalesRecord) (*models.ForecastRun, error) {
	f := forecast.New(p.cfg.Forecast)
	fcfg := f.Config()

	run := &models.ForecastRun{
		HorizonMonths: fcfg.HorizonMonths,
		TopN:          p.cfg.TopN,
		RecordCount:   len(records),
		HeldOut:       []models.HeldOut{},
	}

	for _, scope := range []models.Scope{models.ScopeProduct, models.ScopeCategory} {
		series := aggregate.Aggregate(records, scope)
		results, heldOut, err := f.ForecastAll(ctx, series)
		if err != nil {
			return nil, fmt.Errorf("forecast %s: %w", scope, err)
		}

		p.log.Debug("scope forecast",
			"scope", scope,
			"entities", len(series),
			"forecast", len(results),
			"held_out", len(heldOut),
		)
		for _, h := range heldOut {
			p.log.Debug("entity held out", "scope", h.Scope, "entity", h.EntityID, "points", h.Points)
		}

		run.HeldOut = append(run.HeldOut, heldOut...)
		if scope == models.ScopeProduct {
			run.Products = results
		} else {
			run.Categories = results
		}
	}

	run.Report = rank.Build(run.Products, run.Categories, p.cfg.TopN)

	if len(run.Products) == 0 && len(run.Categories) == 0 {
		run.Warnings = append(run.Warnings, WarnEmptyResult)
		p.log.Warn(WarnEmptyResult, "records", len(records), "held_out", len(run.HeldOut))
	}

	p.log.Info("forecast complete",
		"horizon_months", fcfg.HorizonMonths,
		"products", len(run.Products),
		"categories", len(run.Categories),
		"held_out", len(run.HeldOut),
	)
	return run, nil
}

// ForecastEntity forecasts a single product or category from records. The
// id is matched against entity ids for products and category names for
// categories.
func (p *Pipeline) ForecastEntity(ctx context.Context, records []models.SalesRecord, scope models.Scope, id string) (models.ForecastResult, error) {
	if err := ctx.Err(); err != nil {
		return models.ForecastResult{}, err
	}
	if !scope.Valid() {
		return models.ForecastResult{}, fmt.Errorf("unknown scope %q", scope)
	}

	series, ok := aggregate.Aggregate(records, scope)[id]
	if !ok {
		return models.ForecastResult{}, fmt.Errorf("%s %q: %w", scope, id, ErrEntityNotFound)
	}

	res, err := forecast.New(p.cfg.Forecast).Forecast(series)
	if err != nil {
		return models.ForecastResult{}, err
	}
	p.log.Info("entity forecast",
		"scope", scope,
		"entity", id,
		"predicted", res.Predicted,
		"mse", res.EvaluationError,
	)
	return res, nil
}
