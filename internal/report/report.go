// Package report renders a forecast run as Markdown, CSV, XLSX, HTML, JSON
// or plain text. Every renderer is a pure function of the run and Config.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/seenimoa/retailcast/pkg/models"
	"github.com/seenimoa/retailcast/pkg/utils"
)

// ════════════════════════════════════════════════════════════════════
// Formats and Config
// ════════════════════════════════════════════════════════════════════

// Format specifies the output format.
type Format string

const (
	FormatMarkdown Format = "markdown"
	FormatCSV      Format = "csv"
	FormatXLSX     Format = "xlsx"
	FormatHTML     Format = "html"
	FormatJSON     Format = "json"
	FormatText     Format = "text"
)

// FormatFromPath picks a format from a file extension.
func FormatFromPath(path string) (Format, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".md", ".markdown":
		return FormatMarkdown, nil
	case ".csv":
		return FormatCSV, nil
	case ".xlsx":
		return FormatXLSX, nil
	case ".html", ".htm":
		return FormatHTML, nil
	case ".json":
		return FormatJSON, nil
	case ".txt":
		return FormatText, nil
	default:
		return "", fmt.Errorf("no report format for extension %q", ext)
	}
}

// Config controls report rendering.
type Config struct {
	Title       string
	GeneratedAt time.Time // zero omits the timestamp
}

// DefaultTitle is used when Config.Title is empty.
const DefaultTitle = "Sales Forecast Report"

// Render writes run to w in the given format.
func Render(w io.Writer, format Format, run *models.ForecastRun, cfg Config) error {
	if run == nil {
		return fmt.Errorf("forecast run is nil")
	}
	switch format {
	case FormatMarkdown:
		_, err := io.WriteString(w, Markdown(run, cfg))
		return err
	case FormatCSV:
		return CSV(w, run)
	case FormatXLSX:
		return XLSX(w, run, cfg)
	case FormatHTML:
		html, err := HTML(run, cfg)
		if err != nil {
			return err
		}
		_, err = io.WriteString(w, html)
		return err
	case FormatJSON:
		return JSON(w, run)
	case FormatText:
		_, err := io.WriteString(w, Text(run, cfg))
		return err
	default:
		return fmt.Errorf("unsupported report format %q", format)
	}
}

// JSON writes the full run as indented JSON.
func JSON(w io.Writer, run *models.ForecastRun) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(run)
}

// ════════════════════════════════════════════════════════════════════
// Report Data — Flattened for rendering
// ════════════════════════════════════════════════════════════════════

// ReportData is the view model shared by the text, Markdown and HTML
// renderers.
type ReportData struct {
	Title       string
	GeneratedAt string
	Horizon     string
	TopN        int
	RecordCount int
	HeldOut     int

	Products    []EntryRow
	Categories  []EntryRow
	Revenue     []RevenueRow
	ShowRevenue bool

	Warnings []string
}

// EntryRow is one formatted ranking row.
type EntryRow struct {
	Rank     int
	ID       string
	Name     string
	Category string
	Forecast string
	Error    string
	Revenue  string
}

// RevenueRow is one formatted category revenue row.
type RevenueRow struct {
	Category string
	Products int
	Revenue  string
}

func buildReportData(run *models.ForecastRun, cfg Config) ReportData {
	data := ReportData{
		Title:       cfg.Title,
		Horizon:     formatHorizon(run.HorizonMonths),
		TopN:        run.TopN,
		RecordCount: run.RecordCount,
		HeldOut:     len(run.HeldOut),
		Products:    flattenEntries(run.Report.TopProducts),
		Categories:  flattenEntries(run.Report.TopCategories),
		Warnings:    run.Warnings,
	}
	if data.Title == "" {
		data.Title = DefaultTitle
	}
	if !cfg.GeneratedAt.IsZero() {
		data.GeneratedAt = cfg.GeneratedAt.UTC().Format("02 Jan 2006, 15:04 UTC")
	}

	for _, e := range run.Report.TopProducts {
		if e.HasRevenue {
			data.ShowRevenue = true
			break
		}
	}
	for _, r := range RevenueByCategory(run) {
		data.Revenue = append(data.Revenue, RevenueRow{
			Category: r.Category,
			Products: r.Products,
			Revenue:  utils.FormatBRL(r.Revenue),
		})
	}
	return data
}

func flattenEntries(entries []models.RankedEntry) []EntryRow {
	rows := make([]EntryRow, len(entries))
	for i, e := range entries {
		rows[i] = EntryRow{
			Rank:     e.Rank,
			ID:       e.EntityID,
			Name:     e.EntityName,
			Category: e.Category,
			Forecast: utils.FormatQuantity(e.Predicted),
			Error:    utils.FormatError(e.EvaluationError),
		}
		if e.HasRevenue {
			rows[i].Revenue = utils.FormatBRL(e.ExpectedRevenue)
		}
	}
	return rows
}

func formatHorizon(months float64) string {
	if months == 1 {
		return "1 month"
	}
	return fmt.Sprintf("%g months", months)
}

// ════════════════════════════════════════════════════════════════════
// Revenue by category
// ════════════════════════════════════════════════════════════════════

// CategoryRevenue is the expected revenue of all priced products in one
// category.
type CategoryRevenue struct {
	Category string          `json:"category"`
	Products int             `json:"products"`
	Revenue  decimal.Decimal `json:"revenue"`
}

// RevenueByCategory sums expected revenue over every forecast product that
// has a price, grouped by category, highest revenue first. Ties are broken
// by category name.
func RevenueByCategory(run *models.ForecastRun) []CategoryRevenue {
	byCat := make(map[string]*CategoryRevenue)
	for _, p := range run.Products {
		if !p.HasRevenue {
			continue
		}
		c, ok := byCat[p.Category]
		if !ok {
			c = &CategoryRevenue{Category: p.Category}
			byCat[p.Category] = c
		}
		c.Products++
		c.Revenue = c.Revenue.Add(p.ExpectedRevenue)
	}

	out := make([]CategoryRevenue, 0, len(byCat))
	for _, c := range byCat {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool {
		if cmp := out[i].Revenue.Cmp(out[j].Revenue); cmp != 0 {
			return cmp > 0
		}
		return out[i].Category < out[j].Category
	})
	return out
}

// ════════════════════════════════════════════════════════════════════
// Markdown renderer
// ════════════════════════════════════════════════════════════════════

// Markdown renders the top-N product and category tables followed by a
// short methodology note.
func Markdown(run *models.ForecastRun, cfg Config) string {
	d := buildReportData(run, cfg)
	var sb strings.Builder

	fmt.Fprintf(&sb, "# %s\n", d.Title)
	fmt.Fprintf(&sb, "Forecasts of the **Top %d Products** and **Top %d Categories** for the next %s, based on sales history.\n\n",
		d.TopN, d.TopN, d.Horizon)

	fmt.Fprintf(&sb, "## Top %d Products by Forecast Sales\n", d.TopN)
	if d.ShowRevenue {
		sb.WriteString("| Rank | Product ID | Product Name | Category | Forecast | Expected Revenue |\n")
		sb.WriteString("|------|------------|--------------|----------|----------|------------------|\n")
	} else {
		sb.WriteString("| Rank | Product ID | Product Name | Category | Forecast |\n")
		sb.WriteString("|------|------------|--------------|----------|----------|\n")
	}
	for _, r := range d.Products {
		fmt.Fprintf(&sb, "| %d | %s | %s | %s | %s |", r.Rank, mdCell(r.ID), mdCell(r.Name), mdCell(r.Category), r.Forecast)
		if d.ShowRevenue {
			fmt.Fprintf(&sb, " %s |", r.Revenue)
		}
		sb.WriteString("\n")
	}
	if len(d.Products) == 0 {
		sb.WriteString("\n_No product had enough history to forecast._\n")
	}
	sb.WriteString("\n\n")

	fmt.Fprintf(&sb, "## Top %d Categories by Forecast Sales\n", d.TopN)
	sb.WriteString("| Rank | Category | Forecast |\n")
	sb.WriteString("|------|----------|----------|\n")
	for _, r := range d.Categories {
		fmt.Fprintf(&sb, "| %d | %s | %s |\n", r.Rank, mdCell(r.ID), r.Forecast)
	}
	if len(d.Categories) == 0 {
		sb.WriteString("\n_No category had enough history to forecast._\n")
	}
	sb.WriteString("\n\n")

	if len(d.Revenue) > 0 {
		sb.WriteString("## Expected Revenue by Category\n")
		sb.WriteString("| Category | Products | Expected Revenue |\n")
		sb.WriteString("|----------|----------|------------------|\n")
		for _, r := range d.Revenue {
			fmt.Fprintf(&sb, "| %s | %d | %s |\n", mdCell(r.Category), r.Products, r.Revenue)
		}
		sb.WriteString("\n\n")
	}

	sb.WriteString("> **Note:** Forecasts come from per-entity linear regression over monthly sales history.\n")
	if d.HeldOut > 0 {
		fmt.Fprintf(&sb, "> %d entities with fewer than two months of sales were left out.\n", d.HeldOut)
	}
	for _, w := range d.Warnings {
		fmt.Fprintf(&sb, "> Warning: %s\n", w)
	}
	if d.GeneratedAt != "" {
		fmt.Fprintf(&sb, "> Generated %s.\n", d.GeneratedAt)
	} else {
		sb.WriteString("> Report generated automatically.\n")
	}

	return sb.String()
}

// mdCell escapes pipes so a value cannot break a table row.
func mdCell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}

// ════════════════════════════════════════════════════════════════════
// Plain-text renderer
// ════════════════════════════════════════════════════════════════════

// Text renders a terminal summary of the run.
func Text(run *models.ForecastRun, cfg Config) string {
	d := buildReportData(run, cfg)
	var sb strings.Builder
	line := strings.Repeat("═", 60)
	thinLine := strings.Repeat("─", 60)

	sb.WriteString("\n" + line + "\n")
	fmt.Fprintf(&sb, "  %s\n", d.Title)
	if d.GeneratedAt != "" {
		fmt.Fprintf(&sb, "  Generated: %s\n", d.GeneratedAt)
	}
	fmt.Fprintf(&sb, "  Horizon: %s | Records: %d | Held out: %d\n", d.Horizon, d.RecordCount, d.HeldOut)
	sb.WriteString(line + "\n")

	sb.WriteString("\n  ■ TOP PRODUCTS\n")
	for _, r := range d.Products {
		fmt.Fprintf(&sb, "  %2d. %-12s %-24s %-14s %10s", r.Rank, r.ID, truncate(r.Name, 24), truncate(r.Category, 14), r.Forecast)
		if r.Revenue != "" {
			fmt.Fprintf(&sb, "  %s", r.Revenue)
		}
		sb.WriteString("\n")
	}
	if len(d.Products) == 0 {
		sb.WriteString("  (none)\n")
	}
	sb.WriteString(thinLine + "\n")

	sb.WriteString("\n  ■ TOP CATEGORIES\n")
	for _, r := range d.Categories {
		fmt.Fprintf(&sb, "  %2d. %-38s %10s\n", r.Rank, truncate(r.ID, 38), r.Forecast)
	}
	if len(d.Categories) == 0 {
		sb.WriteString("  (none)\n")
	}
	sb.WriteString(thinLine + "\n")

	if len(d.Warnings) > 0 {
		sb.WriteString("\n")
		for _, w := range d.Warnings {
			fmt.Fprintf(&sb, "  ⚠ %s\n", w)
		}
	}
	sb.WriteString(line + "\n")

	return sb.String()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
