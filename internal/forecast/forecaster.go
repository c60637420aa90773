// Package forecast fits a per-entity linear trend on monthly sales and
// produces a point forecast with a holdout error estimate.
package forecast

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"sync"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/seenimoa/retailcast/internal/aggregate"
	"github.com/seenimoa/retailcast/internal/config"
	"github.com/seenimoa/retailcast/pkg/models"
)

// Config controls a Forecaster.
type Config struct {
	HorizonMonths float64 // months past the last observation to predict
	TestFraction  float64 // share of points held out for evaluation
	Seed          uint64  // split seed, identical for every entity
	Workers       int     // concurrent entity fits; 0 means runtime.NumCPU()
}

// DefaultConfig returns the single-entity defaults: one month ahead, 20%
// holdout, seed 42.
func DefaultConfig() Config {
	return Config{HorizonMonths: 1, TestFraction: 0.2, Seed: 42}
}

// ConfigFrom converts the forecast config section. batch selects the batch
// horizon instead of the single-report horizon.
func ConfigFrom(fc config.ForecastConfig, batch bool) Config {
	cfg := Config{
		HorizonMonths: fc.HorizonMonths,
		TestFraction:  fc.TestFraction,
		Seed:          fc.Seed,
		Workers:       fc.Workers,
	}
	if batch {
		cfg.HorizonMonths = fc.BatchHorizonMonths
	}
	return cfg
}

// Forecaster fits one regression per entity series.
type Forecaster struct {
	cfg Config
}

// New creates a Forecaster. Non-positive horizon and out-of-range fractions
// fall back to the defaults.
func New(cfg Config) *Forecaster {
	def := DefaultConfig()
	if cfg.HorizonMonths <= 0 {
		cfg.HorizonMonths = def.HorizonMonths
	}
	if cfg.TestFraction <= 0 || cfg.TestFraction >= 1 {
		cfg.TestFraction = def.TestFraction
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	return &Forecaster{cfg: cfg}
}

// Config returns the effective configuration.
func (f *Forecaster) Config() Config { return f.cfg }

// Forecast fits the series and predicts HorizonMonths past its last offset.
// Series shorter than MinPoints return *InsufficientDataError.
func (f *Forecaster) Forecast(series models.EntitySeries) (models.ForecastResult, error) {
	n := series.Len()
	if n < MinPoints {
		return models.ForecastResult{}, &InsufficientDataError{
			Scope:    series.Scope,
			EntityID: series.EntityID,
			Points:   n,
		}
	}

	x, y := series.Offsets(), series.Quantities()
	trainIdx, testIdx := SplitTrainTest(n, f.cfg.TestFraction, f.cfg.Seed)

	line, err := FitOLS(pick(x, trainIdx), pick(y, trainIdx))
	if err != nil {
		return models.ForecastResult{}, fmt.Errorf("%s %q: %w", series.Scope, series.EntityID, err)
	}

	actual, fitted := pick(y, testIdx), line.PredictAll(pick(x, testIdx))
	target := series.LastOffset() + f.cfg.HorizonMonths
	predicted := line.Predict(target)

	result := models.ForecastResult{
		Scope:           series.Scope,
		EntityID:        series.EntityID,
		EntityName:      series.EntityName,
		Category:        series.Category,
		Predicted:       predicted,
		EvaluationError: MSE(actual, fitted),
		RMSE:            RMSE(actual, fitted),
		MAE:             MAE(actual, fitted),
		R2:              R2(actual, fitted),
		Slope:           line.Slope,
		Intercept:       line.Intercept,
		TargetOffset:    target,
		TrainSize:       len(trainIdx),
		TestSize:        len(testIdx),
		Points:          n,
		FirstMonth:      series.Points[0].Month,
		LastMonth:       series.Points[n-1].Month,
	}
	if series.HasPrice {
		result.ExpectedRevenue = ExpectedRevenue(predicted, series.UnitPrice)
		result.HasRevenue = true
	}
	return result, nil
}

// ExpectedRevenue returns quantity × price rounded to cents.
func ExpectedRevenue(quantity float64, price decimal.Decimal) decimal.Decimal {
	return decimal.NewFromFloat(quantity).Mul(price).Round(2)
}

// ForecastAll forecasts every series on a worker pool bounded by
// Config.Workers and waits for all of them. Entities with too little data
// are returned as held out; any other failure aborts the batch. Both slices
// are sorted by entity id.
func (f *Forecaster) ForecastAll(ctx context.Context, series map[string]models.EntitySeries) ([]models.ForecastResult, []models.HeldOut, error) {
	var (
		mu      sync.Mutex
		results = make([]models.ForecastResult, 0, len(series))
		heldOut []models.HeldOut
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.cfg.Workers)

	// Dispatch in key order.
	for _, key := range aggregate.Keys(series) {
		s := series[key]
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			res, err := f.Forecast(s)
			if err != nil {
				var ide *InsufficientDataError
				if errors.As(err, &ide) {
					mu.Lock()
					heldOut = append(heldOut, models.HeldOut{
						Scope:    ide.Scope,
						EntityID: ide.EntityID,
						Points:   ide.Points,
						Reason:   ErrInsufficientData.Error(),
					})
					mu.Unlock()
					return nil // non-fatal
				}
				return err
			}

			mu.Lock()
			results = append(results, res)
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	sort.Slice(results, func(i, j int) bool { return results[i].EntityID < results[j].EntityID })
	sort.Slice(heldOut, func(i, j int) bool { return heldOut[i].EntityID < heldOut[j].EntityID })
	return results, heldOut, nil
}
