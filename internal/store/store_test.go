package store

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"github.com/seenimoa/retailcast/internal/report"
	"github.com/seenimoa/retailcast/pkg/models"
)

// ════════════════════════════════════════════════════════════════════
// Test Helpers
// ════════════════════════════════════════════════════════════════════

func sampleRun() *models.ForecastRun {
	return &models.ForecastRun{
		Report: models.RankedReport{
			TopProducts: []models.RankedEntry{
				{Rank: 1, EntityID: "prod_002", EntityName: "Suco", Category: "Bebidas", Predicted: 80, EvaluationError: 1,
					ExpectedRevenue: decimal.RequireFromString("632.00"), HasRevenue: true},
				{Rank: 2, EntityID: "prod_001", EntityName: "Detergente", Category: "Limpeza", Predicted: 42},
			},
			TopCategories: []models.RankedEntry{
				{Rank: 1, EntityID: "Bebidas", EntityName: "Bebidas", Predicted: 120},
			},
		},
		HeldOut:       []models.HeldOut{},
		HorizonMonths: 1,
		TopN:          10,
		RecordCount:   12,
	}
}

func fixedMeta() RunMeta {
	return RunMeta{
		ID:        uuid.MustParse("6f1c2a9e-3d4b-4c5e-8f70-1a2b3c4d5e6f"),
		CreatedAt: time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC),
		Sources:   []string{"data/current_sales.csv"},
	}
}

type recordingSink struct {
	saved int
	err   error
}

func (s *recordingSink) Save(_ context.Context, _ *models.ForecastRun, _ RunMeta) error {
	s.saved++
	return s.err
}

// ════════════════════════════════════════════════════════════════════
// RunMeta
// ════════════════════════════════════════════════════════════════════

func TestNewRunMeta(t *testing.T) {
	a := NewRunMeta("a.csv", "b.csv")
	b := NewRunMeta()
	if a.ID == uuid.Nil || a.ID == b.ID {
		t.Errorf("run ids should be unique and non-nil: %s, %s", a.ID, b.ID)
	}
	if a.ID.Version() != 4 {
		t.Errorf("run id version: got %d, want 4", a.ID.Version())
	}
	if a.CreatedAt.IsZero() || a.CreatedAt.Location() != time.UTC {
		t.Errorf("CreatedAt: got %v", a.CreatedAt)
	}
	if len(a.Sources) != 2 {
		t.Errorf("Sources: got %v", a.Sources)
	}
}

// ════════════════════════════════════════════════════════════════════
// FileSink
// ════════════════════════════════════════════════════════════════════

func TestFileSinkFormats(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name string
		want string
	}{
		{"relatorio_previsao.md", "# Sales Forecast Report"},
		{"previsoes.csv", "scope,rank,entity_id"},
		{"report.html", "<!DOCTYPE html>"},
		{"run.json", `"top_products"`},
		{"summary.txt", "TOP PRODUCTS"},
		{"book.xlsx", "PK"}, // zip magic
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.name)
			if err := (FileSink{Path: path}).Save(context.Background(), sampleRun(), fixedMeta()); err != nil {
				t.Fatalf("Save: %v", err)
			}
			data, err := os.ReadFile(path)
			if err != nil {
				t.Fatalf("read back: %v", err)
			}
			if !strings.Contains(string(data), tt.want) {
				t.Errorf("%s should contain %q", tt.name, tt.want)
			}
		})
	}

	// Only the final files remain; temporaries are gone.
	entries, _ := os.ReadDir(dir)
	if len(entries) != len(tests) {
		t.Errorf("files in dir: got %d, want %d", len(entries), len(tests))
	}
}

func TestFileSinkCreatesDirsAndUsesMeta(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results", "nested", "relatorio.md")
	sink := FileSink{Path: path, Title: "Relatório de Previsão de Vendas"}
	if err := sink.Save(context.Background(), sampleRun(), fixedMeta()); err != nil {
		t.Fatalf("Save: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	md := string(data)
	if !strings.HasPrefix(md, "# Relatório de Previsão de Vendas\n") {
		t.Errorf("title: got %q", strings.SplitN(md, "\n", 2)[0])
	}
	if !strings.Contains(md, "Generated 01 Jul 2024, 12:00 UTC") {
		t.Error("timestamp from RunMeta should appear in the report")
	}
}

func TestFileSinkExplicitFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.out")
	if err := (FileSink{Path: path, Format: report.FormatJSON}).Save(context.Background(), sampleRun(), fixedMeta()); err != nil {
		t.Fatalf("Save: %v", err)
	}
	data, _ := os.ReadFile(path)
	var run models.ForecastRun
	if err := json.Unmarshal(data, &run); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
}

func TestFileSinkErrors(t *testing.T) {
	dir := t.TempDir()
	if err := (FileSink{Path: filepath.Join(dir, "report.pdf")}).Save(context.Background(), sampleRun(), fixedMeta()); err == nil {
		t.Error("unsupported extension should fail")
	}
	if err := (FileSink{Path: filepath.Join(dir, "r.md")}).Save(context.Background(), nil, fixedMeta()); err == nil {
		t.Error("nil run should fail")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := (FileSink{Path: filepath.Join(dir, "r.md")}).Save(ctx, sampleRun(), fixedMeta()); !errors.Is(err, context.Canceled) {
		t.Errorf("canceled context: got %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "r.md")); !os.IsNotExist(err) {
		t.Error("no file should be written on failure")
	}
}

// ════════════════════════════════════════════════════════════════════
// MultiSink
// ════════════════════════════════════════════════════════════════════

func TestMultiSinkJoinsErrors(t *testing.T) {
	errA := errors.New("disk full")
	errB := errors.New("db down")
	a := &recordingSink{err: errA}
	ok := &recordingSink{}
	b := &recordingSink{err: errB}

	err := MultiSink{a, ok, b}.Save(context.Background(), sampleRun(), fixedMeta())
	if !errors.Is(err, errA) || !errors.Is(err, errB) {
		t.Errorf("joined error should contain both failures: %v", err)
	}
	if a.saved != 1 || ok.saved != 1 || b.saved != 1 {
		t.Errorf("every sink should be called once: %d %d %d", a.saved, ok.saved, b.saved)
	}

	if err := (MultiSink{ok}).Save(context.Background(), sampleRun(), fixedMeta()); err != nil {
		t.Errorf("all-success MultiSink: got %v", err)
	}
	if err := (MultiSink{}).Save(context.Background(), sampleRun(), fixedMeta()); err != nil {
		t.Errorf("empty MultiSink: got %v", err)
	}
}

// ════════════════════════════════════════════════════════════════════
// PostgresSink
// ════════════════════════════════════════════════════════════════════

func TestEntryRows(t *testing.T) {
	meta := fixedMeta()
	rows := entryRows(sampleRun(), meta)
	if len(rows) != 3 {
		t.Fatalf("rows: got %d, want 3", len(rows))
	}
	for _, r := range rows {
		if len(r) != len(entryColumns) {
			t.Fatalf("row width: got %d, want %d", len(r), len(entryColumns))
		}
		if r[0] != meta.ID {
			t.Errorf("run_id: got %v", r[0])
		}
	}

	if rows[0][1] != "product" || rows[0][3] != "prod_002" || rows[0][2] != 1 {
		t.Errorf("first row: got %v", rows[0])
	}
	rev := rows[0][8].(pgtype.Numeric)
	if !rev.Valid || rev.Int.Int64() != 63200 || rev.Exp != -2 {
		t.Errorf("revenue: got %+v, want 63200e-2", rev)
	}
	if rows[1][8].(pgtype.Numeric).Valid {
		t.Error("unpriced entry should have NULL revenue")
	}
	if rows[2][1] != "category" || rows[2][3] != "Bebidas" {
		t.Errorf("category row: got %v", rows[2])
	}
}

func TestSchemaStatementsQuoteSchema(t *testing.T) {
	stmts := schemaStatements(`sales"fc`)
	if len(stmts) != 3 {
		t.Fatalf("statements: got %d, want 3", len(stmts))
	}
	if !strings.Contains(stmts[0], `"sales""fc"`) {
		t.Errorf("schema not quoted: %s", stmts[0])
	}
	if !strings.Contains(stmts[2], `REFERENCES "sales""fc"."forecast_runs"`) {
		t.Errorf("entries table should reference runs: %s", stmts[2])
	}
}

// TestPostgresSinkIntegration runs against a real database when
// RETAILCAST_TEST_POSTGRES_DSN is set.
func TestPostgresSinkIntegration(t *testing.T) {
	dsn := os.Getenv("RETAILCAST_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("RETAILCAST_TEST_POSTGRES_DSN not set")
	}
	ctx := context.Background()

	sink, err := NewPostgresSink(ctx, dsn, "retailcast_test")
	if err != nil {
		t.Fatalf("NewPostgresSink: %v", err)
	}
	defer sink.Close()

	if err := sink.EnsureSchema(ctx); err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}
	meta := NewRunMeta("integration.csv")
	if err := sink.Save(ctx, sampleRun(), meta); err != nil {
		t.Fatalf("Save: %v", err)
	}

	var n int
	err = sink.pool.QueryRow(ctx,
		`SELECT count(*) FROM "retailcast_test"."forecast_entries" WHERE run_id = $1`, meta.ID,
	).Scan(&n)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 3 {
		t.Errorf("entries: got %d, want 3", n)
	}
}
