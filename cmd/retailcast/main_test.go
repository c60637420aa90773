package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"github.com/seenimoa/retailcast/internal/config"
	"github.com/seenimoa/retailcast/internal/infra"
	"github.com/seenimoa/retailcast/internal/loader"
	"github.com/seenimoa/retailcast/internal/pipeline"
	"github.com/seenimoa/retailcast/pkg/models"
)

// ════════════════════════════════════════════════════════════════════
// Test Helpers
// ════════════════════════════════════════════════════════════════════

func setup(t *testing.T) {
	t.Helper()
	cfg = config.Default()
	logger = infra.DiscardLogger()
}

// writeSales writes a year of flat sales: prod_001 sells 100 a month at
// R$ 3,50 and prod_002 sells 40 a month without a price.
func writeSales(t *testing.T, dir string) string {
	t.Helper()
	var sb strings.Builder
	sb.WriteString("data,produto_id,nome_produto,categoria,quantidade_vendida,preco_unitario\n")
	for m := 1; m <= 12; m++ {
		fmt.Fprintf(&sb, "2023-%02d-05,prod_001,Detergente,Limpeza,100,3.50\n", m)
		fmt.Fprintf(&sb, "2023-%02d-05,prod_002,Suco,Bebidas,40,\n", m)
	}
	path := filepath.Join(dir, "current_sales.csv")
	if err := os.WriteFile(path, []byte(sb.String()), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

// flagsFor returns a fresh command with the flags from register, parsed
// from args.
func flagsFor(t *testing.T, register func(*cobra.Command), args ...string) *cobra.Command {
	t.Helper()
	cmd := &cobra.Command{Use: "test"}
	register(cmd)
	if err := cmd.ParseFlags(args); err != nil {
		t.Fatalf("parse flags %v: %v", args, err)
	}
	return cmd
}

// ════════════════════════════════════════════════════════════════════
// report
// ════════════════════════════════════════════════════════════════════

func TestRunReportWritesEveryOutput(t *testing.T) {
	setup(t)
	dir := t.TempDir()
	sales := writeSales(t, dir)

	opts := reportOptions{
		Sources:  []string{sales},
		Pipeline: pipeline.ConfigFrom(cfg, false),
		Output:   filepath.Join(dir, "results", "relatorio_previsao.md"),
		CSV:      filepath.Join(dir, "results", "previsoes.csv"),
		XLSX:     filepath.Join(dir, "results", "previsoes.xlsx"),
		HTML:     filepath.Join(dir, "results", "relatorio.html"),
		JSON:     filepath.Join(dir, "results", "run.json"),
		Title:    cfg.Report.Title,
	}
	var out bytes.Buffer
	if err := runReport(context.Background(), &out, opts); err != nil {
		t.Fatalf("runReport: %v", err)
	}

	for _, path := range []string{opts.Output, opts.CSV, opts.XLSX, opts.HTML, opts.JSON} {
		info, err := os.Stat(path)
		if err != nil {
			t.Errorf("%s: %v", filepath.Base(path), err)
			continue
		}
		if info.Size() == 0 {
			t.Errorf("%s is empty", filepath.Base(path))
		}
		if !strings.Contains(out.String(), "Written: "+path) {
			t.Errorf("summary should list %s", filepath.Base(path))
		}
	}

	md, _ := os.ReadFile(opts.Output)
	if !strings.Contains(string(md), "prod_001") || !strings.Contains(string(md), "Limpeza") {
		t.Errorf("markdown report missing ranked entries:\n%s", md)
	}
	if !strings.Contains(out.String(), "TOP PRODUCTS") {
		t.Errorf("stdout summary missing:\n%s", out.String())
	}
}

func TestRunReportQuiet(t *testing.T) {
	setup(t)
	dir := t.TempDir()
	opts := reportOptions{
		Sources:  []string{writeSales(t, dir)},
		Pipeline: pipeline.ConfigFrom(cfg, false),
		Output:   filepath.Join(dir, "r.md"),
		Quiet:    true,
	}
	var out bytes.Buffer
	if err := runReport(context.Background(), &out, opts); err != nil {
		t.Fatalf("runReport: %v", err)
	}
	if out.Len() != 0 {
		t.Errorf("quiet run printed %q", out.String())
	}
}

func TestRunReportMalformedInputFails(t *testing.T) {
	setup(t)
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.csv")
	if err := os.WriteFile(bad, []byte("data,produto_id\n2024-01-01,A\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	output := filepath.Join(dir, "r.md")

	err := runReport(context.Background(), &bytes.Buffer{}, reportOptions{
		Sources:  []string{bad},
		Pipeline: pipeline.ConfigFrom(cfg, false),
		Output:   output,
	})
	if !errors.Is(err, loader.ErrMalformedInput) {
		t.Fatalf("error: got %v, want ErrMalformedInput", err)
	}
	if _, err := os.Stat(output); !os.IsNotExist(err) {
		t.Error("no report should be written for malformed input")
	}
}

func TestRunReportEmptyResultSucceeds(t *testing.T) {
	setup(t)
	dir := t.TempDir()
	sales := filepath.Join(dir, "single.csv")
	csv := "data,produto_id,nome_produto,categoria,quantidade_vendida\n2024-01-01,A,Arroz,Mercearia,3\n"
	if err := os.WriteFile(sales, []byte(csv), 0o644); err != nil {
		t.Fatal(err)
	}
	output := filepath.Join(dir, "r.md")

	err := runReport(context.Background(), &bytes.Buffer{}, reportOptions{
		Sources:  []string{sales},
		Pipeline: pipeline.ConfigFrom(cfg, false),
		Output:   output,
	})
	if err != nil {
		t.Fatalf("empty result should not fail: %v", err)
	}
	md, err := os.ReadFile(output)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(md), pipeline.WarnEmptyResult) {
		t.Errorf("report should carry the empty-result warning:\n%s", md)
	}
}

func TestRunReportNoOutputs(t *testing.T) {
	setup(t)
	err := runReport(context.Background(), &bytes.Buffer{}, reportOptions{
		Sources:  []string{writeSales(t, t.TempDir())},
		Pipeline: pipeline.ConfigFrom(cfg, false),
	})
	if err == nil || !strings.Contains(err.Error(), "no output configured") {
		t.Errorf("error: got %v", err)
	}
}

func TestReportOptionsFromFlags(t *testing.T) {
	setup(t)
	cfg.Input.Sales = []string{"data/current_sales.csv"}

	t.Run("defaults from config", func(t *testing.T) {
		opts, err := reportOptionsFromFlags(flagsFor(t, registerReportFlags), nil)
		if err != nil {
			t.Fatal(err)
		}
		if len(opts.Sources) != 1 || opts.Sources[0] != "data/current_sales.csv" {
			t.Errorf("Sources: got %v", opts.Sources)
		}
		if opts.Output != cfg.Report.Output || opts.Pipeline.TopN != 10 || opts.Pipeline.Forecast.HorizonMonths != 1 {
			t.Errorf("defaults: got %+v", opts)
		}
	})

	t.Run("batch horizon", func(t *testing.T) {
		opts, err := reportOptionsFromFlags(flagsFor(t, registerReportFlags, "--batch"), nil)
		if err != nil {
			t.Fatal(err)
		}
		if opts.Pipeline.Forecast.HorizonMonths != 3 {
			t.Errorf("HorizonMonths: got %v, want 3", opts.Pipeline.Forecast.HorizonMonths)
		}
	})

	t.Run("flag overrides", func(t *testing.T) {
		cmd := flagsFor(t, registerReportFlags, "--horizon", "2", "--top", "5", "--seed", "7", "--workers", "2", "-o", "out.md", "--csv", "out.csv")
		opts, err := reportOptionsFromFlags(cmd, []string{"a.csv", "b.html"})
		if err != nil {
			t.Fatal(err)
		}
		if len(opts.Sources) != 2 {
			t.Errorf("Sources: got %v", opts.Sources)
		}
		fc := opts.Pipeline.Forecast
		if fc.HorizonMonths != 2 || opts.Pipeline.TopN != 5 || fc.Seed != 7 || fc.Workers != 2 {
			t.Errorf("overrides: got horizon=%v top=%d seed=%d workers=%d", fc.HorizonMonths, opts.Pipeline.TopN, fc.Seed, fc.Workers)
		}
		if opts.Output != "out.md" || opts.CSV != "out.csv" {
			t.Errorf("outputs: got %q %q", opts.Output, opts.CSV)
		}
	})

	t.Run("invalid values", func(t *testing.T) {
		for _, args := range [][]string{{"--horizon", "0"}, {"--top", "0"}} {
			if _, err := reportOptionsFromFlags(flagsFor(t, registerReportFlags, args...), nil); err == nil {
				t.Errorf("%v should be rejected", args)
			}
		}
	})

	t.Run("no sources", func(t *testing.T) {
		cfg.Input.Sales = nil
		if _, err := reportOptionsFromFlags(flagsFor(t, registerReportFlags), nil); err == nil {
			t.Error("missing sources should be rejected")
		}
	})
}

// ════════════════════════════════════════════════════════════════════
// predict
// ════════════════════════════════════════════════════════════════════

func TestRunPredict(t *testing.T) {
	setup(t)
	sales := writeSales(t, t.TempDir())

	tests := []struct {
		name  string
		scope models.Scope
		id    string
		want  []string
	}{
		{"product", models.ScopeProduct, "prod_001", []string{"Product forecast: prod_001", "Detergente", "100.00 units", "R$ 350,00", "2023-01 to 2023-12 (12 months)", "R²: 1.0000"}},
		{"category", models.ScopeCategory, "Bebidas", []string{"Category forecast: Bebidas", "40.00 units", "2023-01 to 2023-12 (12 months)", "RMSE:  0.00"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			err := runPredict(context.Background(), &out, predictOptions{
				Sources:  []string{sales},
				Pipeline: pipeline.ConfigFrom(cfg, false),
				Scope:    tt.scope,
				ID:       tt.id,
			})
			if err != nil {
				t.Fatalf("runPredict: %v", err)
			}
			for _, w := range tt.want {
				if !strings.Contains(out.String(), w) {
					t.Errorf("output missing %q:\n%s", w, out.String())
				}
			}
		})
	}
}

func TestRunPredictUnknownEntity(t *testing.T) {
	setup(t)
	err := runPredict(context.Background(), &bytes.Buffer{}, predictOptions{
		Sources:  []string{writeSales(t, t.TempDir())},
		Pipeline: pipeline.ConfigFrom(cfg, false),
		Scope:    models.ScopeProduct,
		ID:       "prod_999",
	})
	if !errors.Is(err, pipeline.ErrEntityNotFound) {
		t.Errorf("error: got %v, want ErrEntityNotFound", err)
	}
}

func TestPredictOptionsFromFlags(t *testing.T) {
	setup(t)
	opts, err := predictOptionsFromFlags(flagsFor(t, registerPredictFlags, "--product", " prod_007 ", "--horizon", "3"), []string{"s.csv"})
	if err != nil {
		t.Fatal(err)
	}
	if opts.Scope != models.ScopeProduct || opts.ID != "prod_007" || opts.Pipeline.Forecast.HorizonMonths != 3 {
		t.Errorf("options: got %+v", opts)
	}

	opts, err = predictOptionsFromFlags(flagsFor(t, registerPredictFlags, "--category", "Bebidas"), []string{"s.csv"})
	if err != nil {
		t.Fatal(err)
	}
	if opts.Scope != models.ScopeCategory || opts.ID != "Bebidas" {
		t.Errorf("options: got %+v", opts)
	}
}

// ════════════════════════════════════════════════════════════════════
// status
// ════════════════════════════════════════════════════════════════════

func TestPrintStatus(t *testing.T) {
	setup(t)
	cfg.Storage.PostgresDSN = "postgres://app:hunter2@db:5432/sales"

	var out bytes.Buffer
	printStatus(&out, cfg)
	s := out.String()
	for _, want := range []string{"System Status", "Top N:         10", "Postgres DSN:", "postgres://app:***@db:5432/sales"} {
		if !strings.Contains(s, want) {
			t.Errorf("status missing %q:\n%s", want, s)
		}
	}
	if strings.Contains(s, "hunter2") {
		t.Error("status leaks the database password")
	}
}
