// Package models defines the core data structures used throughout retailcast.
package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Scope identifies which kind of entity a series or forecast belongs to.
type Scope string

const (
	ScopeProduct  Scope = "product"
	ScopeCategory Scope = "category"
)

// Valid reports whether s is a known scope.
func (s Scope) Valid() bool {
	return s == ScopeProduct || s == ScopeCategory
}

// SalesRecord is one sales transaction or monthly rollup row.
type SalesRecord struct {
	Timestamp  time.Time       `json:"timestamp"`
	EntityID   string          `json:"entity_id"`   // e.g., "prod_001"
	EntityName string          `json:"entity_name"` // e.g., "Detergente"
	Category   string          `json:"category"`    // e.g., "Limpeza"
	Quantity   int             `json:"quantity"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
	HasPrice   bool            `json:"has_price"` // false when the source had no price column or an empty cell
}

// SeriesPoint is one aggregated month of an entity's history.
type SeriesPoint struct {
	Month    time.Time `json:"month"`  // first day of the calendar month, UTC
	Offset   float64   `json:"offset"` // elapsed days since the entity's first month, divided by 30
	Quantity float64   `json:"quantity"`
}

// EntitySeries is the time-ordered monthly history of one product or category.
type EntitySeries struct {
	Scope      Scope           `json:"scope"`
	EntityID   string          `json:"entity_id"`
	EntityName string          `json:"entity_name"`
	Category   string          `json:"category,omitempty"` // products only
	Points     []SeriesPoint   `json:"points"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
	HasPrice   bool            `json:"has_price"`
}

// Len returns the number of observed months.
func (s EntitySeries) Len() int {
	return len(s.Points)
}

// Offsets returns the time offsets of the series, in order.
func (s EntitySeries) Offsets() []float64 {
	out := make([]float64, len(s.Points))
	for i, p := range s.Points {
		out[i] = p.Offset
	}
	return out
}

// Quantities returns the monthly quantities of the series, in order.
func (s EntitySeries) Quantities() []float64 {
	out := make([]float64, len(s.Points))
	for i, p := range s.Points {
		out[i] = p.Quantity
	}
	return out
}

// LastOffset returns the largest observed offset, or 0 for an empty series.
func (s EntitySeries) LastOffset() float64 {
	last := 0.0
	for _, p := range s.Points {
		if p.Offset > last {
			last = p.Offset
		}
	}
	return last
}
