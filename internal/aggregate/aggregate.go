// Package aggregate groups raw sales records into monthly series per product
// or per category.
package aggregate

import (
	"sort"
	"time"

	"github.com/seenimoa/retailcast/pkg/models"
	"github.com/seenimoa/retailcast/pkg/utils"
)

// bucket accumulates one entity while records stream in.
type bucket struct {
	series   models.EntitySeries
	months   map[time.Time]float64
	priceAt  time.Time
	hasPrice bool
}

// Aggregate partitions records by scope and sums quantity per calendar month.
// Product keys are entity ids; category keys are category names. Offsets are
// measured from each entity's own earliest month.
//
// A product takes its name and category from its first record in input order
// and its unit price from its latest priced record (earlier input wins ties).
// Categories carry no name beyond the key and no price.
func Aggregate(records []models.SalesRecord, scope models.Scope) map[string]models.EntitySeries {
	buckets := make(map[string]*bucket)

	for _, r := range records {
		key := r.EntityID
		if scope == models.ScopeCategory {
			key = r.Category
		}

		b, ok := buckets[key]
		if !ok {
			b = &bucket{months: make(map[time.Time]float64)}
			b.series = models.EntitySeries{Scope: scope, EntityID: key, EntityName: key}
			if scope == models.ScopeProduct {
				b.series.EntityName = r.EntityName
				b.series.Category = r.Category
			}
			buckets[key] = b
		}

		b.months[utils.MonthStart(r.Timestamp)] += float64(r.Quantity)

		if scope == models.ScopeProduct && r.HasPrice && (!b.hasPrice || r.Timestamp.After(b.priceAt)) {
			b.series.UnitPrice = r.UnitPrice
			b.series.HasPrice = true
			b.priceAt = r.Timestamp
			b.hasPrice = true
		}
	}

	out := make(map[string]models.EntitySeries, len(buckets))
	for key, b := range buckets {
		b.series.Points = points(b.months)
		out[key] = b.series
	}
	return out
}

// points turns month totals into a time-ordered series with offsets relative
// to the first month.
func points(months map[time.Time]float64) []models.SeriesPoint {
	keys := make([]time.Time, 0, len(months))
	for m := range months {
		keys = append(keys, m)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Before(keys[j]) })

	pts := make([]models.SeriesPoint, len(keys))
	for i, m := range keys {
		pts[i] = models.SeriesPoint{
			Month:    m,
			Offset:   utils.MonthOffset(keys[0], m),
			Quantity: months[m],
		}
	}
	return pts
}

// Keys returns the keys of m in ascending order.
func Keys(m map[string]models.EntitySeries) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
