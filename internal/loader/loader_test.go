package loader

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/seenimoa/retailcast/internal/config"
	"github.com/seenimoa/retailcast/pkg/models"
)

// ════════════════════════════════════════════════════════════════════
// Test Helpers
// ════════════════════════════════════════════════════════════════════

const currentSalesCSV = `data,produto_id,nome_produto,categoria,quantidade_vendida,preco_unitario
2024-01-05,prod_001,Detergente,Limpeza,10,4.50
2024-01-20,prod_002,Suco de Laranja,Bebidas,25,7.90
2024-02-03,prod_001,Detergente,Limpeza,12,4.75
`

const historicalSalesCSV = `data,produto_id,nome_produto,categoria,quantidade_vendida
2023-12-01,prod_001,Detergente,Limpeza,8
2024-01-05,prod_001,Detergente,Limpeza,10
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func loadString(t *testing.T, content string, format Format) ([]models.SalesRecord, error) {
	t.Helper()
	return New(Options{}).LoadReader(strings.NewReader(content), "test", format)
}

func wantMalformed(t *testing.T, err error) *MalformedInputError {
	t.Helper()
	if err == nil {
		t.Fatal("expected malformed input error, got nil")
	}
	if !errors.Is(err, ErrMalformedInput) {
		t.Fatalf("error %v should wrap ErrMalformedInput", err)
	}
	var mie *MalformedInputError
	if !errors.As(err, &mie) {
		t.Fatalf("error %v should be *MalformedInputError", err)
	}
	return mie
}

// ════════════════════════════════════════════════════════════════════
// CSV
// ════════════════════════════════════════════════════════════════════

func TestLoadReaderCSV(t *testing.T) {
	recs, err := loadString(t, currentSalesCSV, FormatCSV)
	if err != nil {
		t.Fatalf("LoadReader: %v", err)
	}
	if len(recs) != 3 {
		t.Fatalf("records: got %d, want 3", len(recs))
	}

	r := recs[1]
	if !r.Timestamp.Equal(time.Date(2024, 1, 20, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("Timestamp: got %v", r.Timestamp)
	}
	if r.EntityID != "prod_002" {
		t.Errorf("EntityID: got %q", r.EntityID)
	}
	if r.EntityName != "Suco de Laranja" {
		t.Errorf("EntityName: got %q", r.EntityName)
	}
	if r.Category != "Bebidas" {
		t.Errorf("Category: got %q", r.Category)
	}
	if r.Quantity != 25 {
		t.Errorf("Quantity: got %d, want 25", r.Quantity)
	}
	if !r.HasPrice || r.UnitPrice.String() != "7.9" {
		t.Errorf("UnitPrice: got %s (has=%v), want 7.9", r.UnitPrice, r.HasPrice)
	}
}

func TestLoadReaderEnglishAliases(t *testing.T) {
	content := "Transaction Date,SKU,Product Name,Category,Qty,Price\n" +
		"2024-03-01,A1,Widget,Tools,3,\n"
	recs, err := loadString(t, content, FormatCSV)
	if err != nil {
		t.Fatalf("LoadReader: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("records: got %d, want 1", len(recs))
	}
	if recs[0].EntityID != "A1" || recs[0].Quantity != 3 {
		t.Errorf("record: got %+v", recs[0])
	}
	if recs[0].HasPrice {
		t.Error("empty price cell should leave HasPrice false")
	}
}

func TestLoadReaderDateLayouts(t *testing.T) {
	tests := []struct {
		raw  string
		want time.Time
	}{
		{"2024-05-17", time.Date(2024, 5, 17, 0, 0, 0, 0, time.UTC)},
		{"2024-05-17 13:45:00", time.Date(2024, 5, 17, 13, 45, 0, 0, time.UTC)},
		{"2024-05-17T13:45:00", time.Date(2024, 5, 17, 13, 45, 0, 0, time.UTC)},
		{"2024-05-17T13:45:00-03:00", time.Date(2024, 5, 17, 16, 45, 0, 0, time.UTC)},
		{"17/05/2024", time.Date(2024, 5, 17, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			content := "date,product_id,product_name,category,quantity\n" + tt.raw + ",p,P,C,1\n"
			recs, err := loadString(t, content, FormatCSV)
			if err != nil {
				t.Fatalf("LoadReader: %v", err)
			}
			if !recs[0].Timestamp.Equal(tt.want) {
				t.Errorf("Timestamp: got %v, want %v", recs[0].Timestamp, tt.want)
			}
		})
	}
}

func TestLoadReaderCustomLayoutsAndAliases(t *testing.T) {
	opts := OptionsFromConfig(config.InputConfig{
		DateLayouts: []string{"01-02-2006"},
		Columns:     map[string]string{"quantity": "Unidades, units"},
	})
	content := "date,product_id,product_name,category,unidades\n05-17-2024,p,P,C,4\n"
	recs, err := New(opts).LoadReader(strings.NewReader(content), "custom", FormatCSV)
	if err != nil {
		t.Fatalf("LoadReader: %v", err)
	}
	if recs[0].Quantity != 4 {
		t.Errorf("Quantity: got %d, want 4", recs[0].Quantity)
	}
	if recs[0].Timestamp.Month() != time.May || recs[0].Timestamp.Day() != 17 {
		t.Errorf("Timestamp: got %v", recs[0].Timestamp)
	}
}

func TestLoadReaderHeaderOnly(t *testing.T) {
	recs, err := loadString(t, "data,produto_id,nome_produto,categoria,quantidade_vendida\n", FormatCSV)
	if err != nil {
		t.Fatalf("header-only file should not fail: %v", err)
	}
	if len(recs) != 0 {
		t.Errorf("records: got %d, want 0", len(recs))
	}
}

func TestLoadReaderSkipsBlankRows(t *testing.T) {
	content := "date,product_id,product_name,category,quantity\n2024-01-01,p,P,C,1\n,,,,\n2024-02-01,p,P,C,2\n"
	recs, err := loadString(t, content, FormatCSV)
	if err != nil {
		t.Fatalf("LoadReader: %v", err)
	}
	if len(recs) != 2 {
		t.Errorf("records: got %d, want 2", len(recs))
	}
}

func TestLoadReaderEmptyNameFallsBackToID(t *testing.T) {
	content := "date,product_id,product_name,category,quantity\n2024-01-01,p9,,C,1\n"
	recs, err := loadString(t, content, FormatCSV)
	if err != nil {
		t.Fatalf("LoadReader: %v", err)
	}
	if recs[0].EntityName != "p9" {
		t.Errorf("EntityName: got %q, want %q", recs[0].EntityName, "p9")
	}
}

// ── Malformed input ──

func TestLoadReaderMalformed(t *testing.T) {
	const header = "data,produto_id,nome_produto,categoria,quantidade_vendida,preco_unitario\n"
	tests := []struct {
		name       string
		content    string
		wantRow    int
		wantColumn string
	}{
		{"empty file", "", 0, ""},
		{"missing quantity column", "data,produto_id,nome_produto,categoria\n2024-01-01,p,P,C\n", 0, "quantity"},
		{"missing date column", "produto_id,nome_produto,categoria,quantidade_vendida\np,P,C,1\n", 0, "date"},
		{"bad date", header + "2024-01-01,p,P,C,1,\nnot-a-date,p,P,C,1,\n", 3, "date"},
		{"impossible date", header + "2024-02-30,p,P,C,1,\n", 2, "date"},
		{"fractional quantity", header + "2024-01-01,p,P,C,1.5,\n", 2, "quantity"},
		{"negative quantity", header + "2024-01-01,p,P,C,-3,\n", 2, "quantity"},
		{"empty id", header + "2024-01-01,,P,C,1,\n", 2, "product_id"},
		{"empty category", header + "2024-01-01,p,P,,1,\n", 2, "category"},
		{"bad price", header + "2024-01-01,p,P,C,1,abc\n", 2, "unit_price"},
		{"negative price", header + "2024-01-01,p,P,C,1,-2.00\n", 2, "unit_price"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := loadString(t, tt.content, FormatCSV)
			mie := wantMalformed(t, err)
			if mie.Source != "test" {
				t.Errorf("Source: got %q, want %q", mie.Source, "test")
			}
			if mie.Row != tt.wantRow {
				t.Errorf("Row: got %d, want %d", mie.Row, tt.wantRow)
			}
			if mie.Column != tt.wantColumn {
				t.Errorf("Column: got %q, want %q", mie.Column, tt.wantColumn)
			}
		})
	}
}

func TestLoadReaderPriceFormats(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"4.50", "4.5"},
		{"4,50", "4.5"},
		{"1.234,56", "1234.56"},
		{"1,234.56", "1234.56"},
		{"R$ 1.234,56", "1234.56"},
		{"12.345.678,9", "12345678.9"},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			content := "date,product_id,product_name,category,quantity,unit_price\n" +
				`2024-01-01,p,P,C,1,"` + tt.raw + "\"\n"
			recs, err := loadString(t, content, FormatCSV)
			if err != nil {
				t.Fatalf("LoadReader: %v", err)
			}
			if !recs[0].HasPrice || recs[0].UnitPrice.String() != tt.want {
				t.Errorf("UnitPrice: got %s (has=%v), want %s", recs[0].UnitPrice, recs[0].HasPrice, tt.want)
			}
		})
	}
}

func TestMalformedInputErrorMessage(t *testing.T) {
	err := &MalformedInputError{Source: "sales.csv", Row: 4, Column: "date", Value: "ontem", Reason: "unparseable date"}
	want := `malformed input in sales.csv at row 4, column "date": unparseable date (got "ontem")`
	if err.Error() != want {
		t.Errorf("Error():\n got %s\nwant %s", err.Error(), want)
	}
}

// ── Validate ──

func TestValidate(t *testing.T) {
	valid := models.SalesRecord{
		Timestamp:  time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		EntityID:   "p",
		EntityName: "P",
		Category:   "C",
		Quantity:   0,
	}
	if err := Validate(valid); err != nil {
		t.Errorf("Validate(valid): %v", err)
	}

	noDate := valid
	noDate.Timestamp = time.Time{}
	if err := Validate(noDate); !errors.Is(err, ErrMalformedInput) {
		t.Errorf("zero timestamp: got %v", err)
	}

	neg := valid
	neg.Quantity = -1
	if err := Validate(neg); !errors.Is(err, ErrMalformedInput) {
		t.Errorf("negative quantity: got %v", err)
	}
}

// ════════════════════════════════════════════════════════════════════
// HTML
// ════════════════════════════════════════════════════════════════════

func TestLoadReaderHTML(t *testing.T) {
	content := `<html><body>
<h1>Vendas</h1>
<table>
  <thead><tr><th>Data</th><th>Produto ID</th><th>Nome Produto</th><th>Categoria</th><th>Quantidade Vendida</th></tr></thead>
  <tbody>
    <tr><td>2024-01-05</td><td>prod_001</td><td>Detergente</td><td>Limpeza</td><td>10</td></tr>
    <tr><td>2024-02-05</td><td>prod_001</td><td>Detergente <b>500ml</b></td><td>Limpeza</td><td>14</td></tr>
  </tbody>
</table>
<table><tr><th>ignored</th></tr></table>
</body></html>`

	recs, err := loadString(t, content, FormatHTML)
	if err != nil {
		t.Fatalf("LoadReader(html): %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("records: got %d, want 2", len(recs))
	}
	if recs[1].EntityName != "Detergente 500ml" {
		t.Errorf("EntityName: got %q", recs[1].EntityName)
	}
	if recs[1].Quantity != 14 {
		t.Errorf("Quantity: got %d, want 14", recs[1].Quantity)
	}
}

func TestLoadReaderHTMLMalformed(t *testing.T) {
	content := `<table>
<tr><th>date</th><th>product_id</th><th>product_name</th><th>category</th><th>quantity</th></tr>
<tr><td>2024-01-05</td><td>p</td><td>P</td><td>C</td><td>1</td></tr>
<tr><td>yesterday</td><td>p</td><td>P</td><td>C</td><td>1</td></tr>
</table>`
	_, err := loadString(t, content, FormatHTML)
	mie := wantMalformed(t, err)
	if mie.Row != 3 {
		t.Errorf("Row: got %d, want 3", mie.Row)
	}

	_, err = loadString(t, "<p>no table here</p>", FormatHTML)
	wantMalformed(t, err)
}

// ════════════════════════════════════════════════════════════════════
// Load (files)
// ════════════════════════════════════════════════════════════════════

func TestLoadConcatenatesWithoutDedup(t *testing.T) {
	dir := t.TempDir()
	cur := writeFile(t, dir, "current_sales.csv", currentSalesCSV)
	hist := writeFile(t, dir, "historical_sales_data.csv", historicalSalesCSV)

	recs, err := Load(context.Background(), cur, hist)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(recs) != 5 {
		t.Fatalf("records: got %d, want 5", len(recs))
	}

	// 2024-01-05 prod_001 appears in both files and is kept twice.
	dups := 0
	for _, r := range recs {
		if r.EntityID == "prod_001" && r.Timestamp.Equal(time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)) {
			dups++
		}
	}
	if dups != 2 {
		t.Errorf("duplicate rows: got %d, want 2", dups)
	}
}

func TestLoadDetectsHTMLByExtension(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "export.htm", `<table><tr><th>date</th><th>sku</th><th>name</th><th>category</th><th>qty</th></tr>
<tr><td>2024-01-01</td><td>x</td><td>X</td><td>C</td><td>2</td></tr></table>`)

	recs, err := Load(context.Background(), path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(recs) != 1 || recs[0].Quantity != 2 {
		t.Errorf("records: got %+v", recs)
	}
}

func TestLoadMalformedSecondFileAborts(t *testing.T) {
	dir := t.TempDir()
	good := writeFile(t, dir, "good.csv", currentSalesCSV)
	bad := writeFile(t, dir, "bad.csv", "produto_id,quantidade_vendida\np,1\n")

	recs, err := Load(context.Background(), good, bad)
	mie := wantMalformed(t, err)
	if mie.Source != bad {
		t.Errorf("Source: got %q, want %q", mie.Source, bad)
	}
	if recs != nil {
		t.Errorf("no partial output expected, got %d records", len(recs))
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(context.Background(), filepath.Join(t.TempDir(), "nope.csv"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	if errors.Is(err, ErrMalformedInput) {
		t.Error("missing file is an I/O error, not malformed input")
	}
}

func TestLoadCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := Load(ctx, "whatever.csv"); !errors.Is(err, context.Canceled) {
		t.Errorf("got %v, want context.Canceled", err)
	}
}

// ── Formats ──

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"text/csv", FormatCSV, false},
		{"text/csv; charset=utf-8", FormatCSV, false},
		{"", FormatCSV, false},
		{"text/html", FormatHTML, false},
		{"HTML", FormatHTML, false},
		{"application/pdf", "", true},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseFormat(%q) error: got %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseFormat(%q): got %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFormatFromPath(t *testing.T) {
	if FormatFromPath("a/b/sales.HTML") != FormatHTML {
		t.Error("sales.HTML should be HTML")
	}
	if FormatFromPath("sales.csv") != FormatCSV || FormatFromPath("sales") != FormatCSV {
		t.Error("csv and extensionless sources should be CSV")
	}
}
