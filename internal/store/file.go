package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/seenimoa/retailcast/internal/report"
	"github.com/seenimoa/retailcast/pkg/models"
)

// FileSink writes a rendered report to Path. The format follows the file
// extension unless Format is set.
type FileSink struct {
	Path   string
	Format report.Format
	Title  string
}

// Save renders the run into a temporary file next to Path and renames it
// into place, creating parent directories as needed.
func (s FileSink) Save(ctx context.Context, run *models.ForecastRun, meta RunMeta) error {
	if err := checkRun(run); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	format := s.Format
	if format == "" {
		f, err := report.FormatFromPath(s.Path)
		if err != nil {
			return fmt.Errorf("save %s: %w", s.Path, err)
		}
		format = f
	}

	dir := filepath.Dir(s.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("save %s: %w", s.Path, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.Path)+".*")
	if err != nil {
		return fmt.Errorf("save %s: %w", s.Path, err)
	}
	defer os.Remove(tmp.Name()) // no-op after a successful rename

	cfg := report.Config{Title: s.Title, GeneratedAt: meta.CreatedAt}
	if err := report.Render(tmp, format, run, cfg); err != nil {
		tmp.Close()
		return fmt.Errorf("render %s: %w", s.Path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("save %s: %w", s.Path, err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("save %s: %w", s.Path, err)
	}
	if err := os.Rename(tmp.Name(), s.Path); err != nil {
		return fmt.Errorf("save %s: %w", s.Path, err)
	}
	return nil
}
