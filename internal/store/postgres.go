package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/seenimoa/retailcast/pkg/models"
)

// entryColumns is the column order used when copying ranked entries.
var entryColumns = []string{
	"run_id", "scope", "rank", "entity_id", "entity_name", "category",
	"predicted_quantity", "evaluation_error", "expected_revenue",
}

// PostgresSink stores runs in two tables: forecast_runs holds one row per
// run and forecast_entries one row per ranked entry.
type PostgresSink struct {
	pool   *pgxpool.Pool
	schema string
}

// NewPostgresSink connects to dsn and verifies the connection. An empty
// schema means "public".
func NewPostgresSink(ctx context.Context, dsn, schema string) (*PostgresSink, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	if schema == "" {
		schema = "public"
	}
	return &PostgresSink{pool: pool, schema: schema}, nil
}

// Close releases the connection pool.
func (s *PostgresSink) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// EnsureSchema creates the schema and both tables if they do not exist.
func (s *PostgresSink) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements(s.schema) {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// Save inserts the run row and copies its ranked entries in one transaction.
func (s *PostgresSink) Save(ctx context.Context, run *models.ForecastRun, meta RunMeta) error {
	if err := checkRun(run); err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		fmt.Sprintf(`INSERT INTO %s
			(id, created_at, horizon_months, top_n, record_count, held_out, warnings, sources)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`, s.table("forecast_runs")),
		meta.ID, meta.CreatedAt, run.HorizonMonths, run.TopN, run.RecordCount,
		len(run.HeldOut), nonNil(run.Warnings), nonNil(meta.Sources),
	)
	if err != nil {
		return fmt.Errorf("insert run %s: %w", meta.ID, err)
	}

	rows := entryRows(run, meta)
	if len(rows) > 0 {
		n, err := tx.CopyFrom(ctx,
			pgx.Identifier{s.schema, "forecast_entries"},
			entryColumns,
			pgx.CopyFromRows(rows),
		)
		if err != nil {
			return fmt.Errorf("copy entries for run %s: %w", meta.ID, err)
		}
		if int(n) != len(rows) {
			return fmt.Errorf("copy entries for run %s: wrote %d of %d rows", meta.ID, n, len(rows))
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit run %s: %w", meta.ID, err)
	}
	return nil
}

func (s *PostgresSink) table(name string) string {
	return pgx.Identifier{s.schema, name}.Sanitize()
}

// schemaStatements returns the DDL for the given schema.
func schemaStatements(schema string) []string {
	runs := pgx.Identifier{schema, "forecast_runs"}.Sanitize()
	entries := pgx.Identifier{schema, "forecast_entries"}.Sanitize()
	return []string{
		fmt.Sprintf(`CREATE SCHEMA IF NOT EXISTS %s`, pgx.Identifier{schema}.Sanitize()),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id             UUID PRIMARY KEY,
			created_at     TIMESTAMPTZ NOT NULL,
			horizon_months DOUBLE PRECISION NOT NULL,
			top_n          INTEGER NOT NULL,
			record_count   INTEGER NOT NULL,
			held_out       INTEGER NOT NULL,
			warnings       TEXT[] NOT NULL DEFAULT '{}',
			sources        TEXT[] NOT NULL DEFAULT '{}'
		)`, runs),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			run_id             UUID NOT NULL REFERENCES %s (id) ON DELETE CASCADE,
			scope              TEXT NOT NULL,
			rank               INTEGER NOT NULL,
			entity_id          TEXT NOT NULL,
			entity_name        TEXT NOT NULL,
			category           TEXT NOT NULL DEFAULT '',
			predicted_quantity DOUBLE PRECISION NOT NULL,
			evaluation_error   DOUBLE PRECISION NOT NULL,
			expected_revenue   NUMERIC(14, 2),
			PRIMARY KEY (run_id, scope, rank)
		)`, entries, runs),
	}
}

// entryRows flattens both rankings into rows matching entryColumns.
func entryRows(run *models.ForecastRun, meta RunMeta) [][]any {
	rows := make([][]any, 0, len(run.Report.TopProducts)+len(run.Report.TopCategories))
	add := func(scope models.Scope, entries []models.RankedEntry) {
		for _, e := range entries {
			revenue := pgtype.Numeric{}
			if e.HasRevenue {
				revenue = pgtype.Numeric{
					Int:   e.ExpectedRevenue.Coefficient(),
					Exp:   e.ExpectedRevenue.Exponent(),
					Valid: true,
				}
			}
			rows = append(rows, []any{
				meta.ID, string(scope), e.Rank, e.EntityID, e.EntityName, e.Category,
				e.Predicted, e.EvaluationError, revenue,
			})
		}
	}
	add(models.ScopeProduct, run.Report.TopProducts)
	add(models.ScopeCategory, run.Report.TopCategories)
	return rows
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
