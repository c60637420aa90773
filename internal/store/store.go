// Package store persists forecast runs: report files on disk, rows in
// PostgreSQL, or several sinks at once.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/seenimoa/retailcast/pkg/models"
)

// RunMeta identifies one persisted run. It is kept apart from
// models.ForecastRun so the run itself stays a pure function of its input.
type RunMeta struct {
	ID        uuid.UUID `json:"run_id"`
	CreatedAt time.Time `json:"created_at"`
	Sources   []string  `json:"sources,omitempty"`
}

// NewRunMeta returns metadata with a fresh random id and the current time.
func NewRunMeta(sources ...string) RunMeta {
	return RunMeta{
		ID:        uuid.New(),
		CreatedAt: time.Now().UTC(),
		Sources:   sources,
	}
}

// Sink persists a finished run.
type Sink interface {
	Save(ctx context.Context, run *models.ForecastRun, meta RunMeta) error
}

// MultiSink saves to every sink in order. Failures do not stop later sinks;
// they are joined into the returned error.
type MultiSink []Sink

// Save implements Sink.
func (m MultiSink) Save(ctx context.Context, run *models.ForecastRun, meta RunMeta) error {
	var errs []error
	for _, s := range m {
		if err := s.Save(ctx, run, meta); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func checkRun(run *models.ForecastRun) error {
	if run == nil {
		return fmt.Errorf("store: forecast run is nil")
	}
	return nil
}
