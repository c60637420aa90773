// Package rank orders forecasts and slices the top-N report.
package rank

import (
	"sort"

	"github.com/seenimoa/retailcast/pkg/models"
)

// DefaultTopN is the report length used when none is configured.
const DefaultTopN = 10

// Rank sorts forecasts by predicted quantity, highest first, breaking ties by
// entity id ascending, and returns at most topN entries with 1-based ranks.
// The input slice is not modified. topN <= 0 yields an empty ranking.
func Rank(forecasts []models.ForecastResult, topN int) []models.RankedEntry {
	if topN <= 0 || len(forecasts) == 0 {
		return []models.RankedEntry{}
	}

	sorted := append([]models.ForecastResult(nil), forecasts...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Predicted != sorted[j].Predicted {
			return sorted[i].Predicted > sorted[j].Predicted
		}
		return sorted[i].EntityID < sorted[j].EntityID
	})

	n := min(topN, len(sorted))
	out := make([]models.RankedEntry, n)
	for i, f := range sorted[:n] {
		out[i] = models.RankedEntry{
			Rank:            i + 1,
			EntityID:        f.EntityID,
			EntityName:      f.EntityName,
			Category:        f.Category,
			Predicted:       f.Predicted,
			EvaluationError: f.EvaluationError,
			RMSE:            f.RMSE,
			MAE:             f.MAE,
			R2:              f.R2,
			ExpectedRevenue: f.ExpectedRevenue,
			HasRevenue:      f.HasRevenue,
		}
	}
	return out
}

// Build ranks products and categories independently.
func Build(products, categories []models.ForecastResult, topN int) models.RankedReport {
	return models.RankedReport{
		TopProducts:   Rank(products, topN),
		TopCategories: Rank(categories, topN),
	}
}
