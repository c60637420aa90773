package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ForecastResult is the point forecast for one entity. It is created once per
// entity per run and never mutated afterwards.
type ForecastResult struct {
	Scope           Scope           `json:"scope"`
	EntityID        string          `json:"entity_id"`
	EntityName      string          `json:"entity_name"`
	Category        string          `json:"category,omitempty"`
	Predicted       float64         `json:"predicted_quantity"` // may be negative for declining series
	EvaluationError float64         `json:"evaluation_error"`   // holdout mean squared error
	RMSE            float64         `json:"rmse"`               // holdout
	MAE             float64         `json:"mae"`                // holdout
	R2              float64         `json:"r2"`                 // holdout
	Slope           float64         `json:"slope"`
	Intercept       float64         `json:"intercept"`
	TargetOffset    float64         `json:"target_offset"`
	TrainSize       int             `json:"train_size"`
	TestSize        int             `json:"test_size"`
	Points          int             `json:"points"`
	FirstMonth      time.Time       `json:"first_month"`
	LastMonth       time.Time       `json:"last_month"`
	ExpectedRevenue decimal.Decimal `json:"expected_revenue"`
	HasRevenue      bool            `json:"has_revenue"`
}

// HeldOut records an entity that could not be forecast.
type HeldOut struct {
	Scope    Scope  `json:"scope"`
	EntityID string `json:"entity_id"`
	Points   int    `json:"points"`
	Reason   string `json:"reason"`
}

// RankedEntry is one row of a ranking.
type RankedEntry struct {
	Rank            int             `json:"rank"` // 1-based
	EntityID        string          `json:"entity_id"`
	EntityName      string          `json:"entity_name"`
	Category        string          `json:"category,omitempty"`
	Predicted       float64         `json:"predicted_quantity"`
	EvaluationError float64         `json:"evaluation_error"`
	RMSE            float64         `json:"rmse"`
	MAE             float64         `json:"mae"`
	R2              float64         `json:"r2"`
	ExpectedRevenue decimal.Decimal `json:"expected_revenue"`
	HasRevenue      bool            `json:"has_revenue"`
}

// RankedReport holds the independent product and category rankings.
type RankedReport struct {
	TopProducts   []RankedEntry `json:"top_products"`
	TopCategories []RankedEntry `json:"top_categories"`
}

// Empty reports whether neither ranking has any entry.
func (r RankedReport) Empty() bool {
	return len(r.TopProducts) == 0 && len(r.TopCategories) == 0
}

// ForecastRun is the complete in-memory outcome of one pipeline run. It holds
// no wall-clock or random state, so identical input gives an identical run.
type ForecastRun struct {
	Report        RankedReport     `json:"report"`
	Products      []ForecastResult `json:"products"`   // sorted by entity id
	Categories    []ForecastResult `json:"categories"` // sorted by entity id
	HeldOut       []HeldOut        `json:"held_out"`
	HorizonMonths float64          `json:"horizon_months"`
	TopN          int              `json:"top_n"`
	RecordCount   int              `json:"record_count"`
	Warnings      []string         `json:"warnings,omitempty"`
}

// ProductByID returns the product forecast with the given id.
func (r *ForecastRun) ProductByID(id string) (ForecastResult, bool) {
	for _, f := range r.Products {
		if f.EntityID == id {
			return f, true
		}
	}
	return ForecastResult{}, false
}
