package report

import (
	"bytes"
	"fmt"
	"html/template"

	"github.com/seenimoa/retailcast/pkg/models"
)

// HTML renders a standalone HTML page with the ranking tables.
func HTML(run *models.ForecastRun, cfg Config) (string, error) {
	if run == nil {
		return "", fmt.Errorf("forecast run is nil")
	}
	tmpl, err := template.New("report").Parse(ReportTemplate)
	if err != nil {
		return "", fmt.Errorf("parsing template: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, buildReportData(run, cfg)); err != nil {
		return "", fmt.Errorf("executing template: %w", err)
	}
	return buf.String(), nil
}

// ReportTemplate is the HTML template for the forecast report.
// It is embedded as a Go constant so rendering needs no external files.
const ReportTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
<title>{{.Title}}</title>
<style>
  :root {
    --bg: #ffffff;
    --text: #1a1a2e;
    --muted: #6b7280;
    --border: #e5e7eb;
    --accent: #2563eb;
    --orange: #ea580c;
    --section-bg: #f8fafc;
  }
  * { margin: 0; padding: 0; box-sizing: border-box; }
  body {
    font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif;
    color: var(--text);
    background: var(--bg);
    line-height: 1.6;
    max-width: 900px;
    margin: 0 auto;
    padding: 20px;
  }
  h1 { font-size: 1.5rem; color: var(--accent); }
  h2 { font-size: 1.2rem; margin: 24px 0 12px; padding-bottom: 6px; border-bottom: 2px solid var(--accent); }
  .muted { color: var(--muted); font-size: 0.85rem; }
  .header { border-bottom: 3px solid var(--accent); padding-bottom: 12px; margin-bottom: 16px; }
  table { width: 100%; border-collapse: collapse; margin: 8px 0 16px; font-size: 0.9rem; }
  th { background: var(--section-bg); text-align: left; padding: 8px; font-weight: 600; }
  td { padding: 8px; border-bottom: 1px solid var(--border); }
  td.num, th.num { text-align: right; font-variant-numeric: tabular-nums; }
  .empty { color: var(--muted); font-style: italic; }
  .warning { background: #fff7ed; border-left: 4px solid var(--orange); padding: 8px 12px; margin: 8px 0; }
  .footer {
    margin-top: 30px;
    padding-top: 12px;
    border-top: 2px solid var(--border);
    font-size: 0.8rem;
    color: var(--muted);
    text-align: center;
  }
  @media print {
    body { max-width: 100%; padding: 10px; }
    table { page-break-inside: avoid; }
  }
</style>
</head>
<body>

<!-- ═══════ HEADER ═══════ -->
<div class="header">
  <h1>{{.Title}}</h1>
  <p class="muted">Horizon: {{.Horizon}} · Records: {{.RecordCount}} · Held out: {{.HeldOut}}{{if .GeneratedAt}} · {{.GeneratedAt}}{{end}}</p>
</div>

{{range .Warnings}}<div class="warning">{{.}}</div>
{{end}}

<!-- ═══════ PRODUCTS ═══════ -->
<h2>Top {{.TopN}} Products</h2>
{{if .Products}}
<table id="top-products">
  <thead><tr><th>#</th><th>Product ID</th><th>Product Name</th><th>Category</th><th class="num">Forecast</th><th class="num">Holdout MSE</th>{{if .ShowRevenue}}<th class="num">Expected Revenue</th>{{end}}</tr></thead>
  <tbody>
  {{range .Products}}<tr><td>{{.Rank}}</td><td>{{.ID}}</td><td>{{.Name}}</td><td>{{.Category}}</td><td class="num">{{.Forecast}}</td><td class="num">{{.Error}}</td>{{if $.ShowRevenue}}<td class="num">{{.Revenue}}</td>{{end}}</tr>
  {{end}}
  </tbody>
</table>
{{else}}<p class="empty">No product had enough history to forecast.</p>{{end}}

<!-- ═══════ CATEGORIES ═══════ -->
<h2>Top {{.TopN}} Categories</h2>
{{if .Categories}}
<table id="top-categories">
  <thead><tr><th>#</th><th>Category</th><th class="num">Forecast</th><th class="num">Holdout MSE</th></tr></thead>
  <tbody>
  {{range .Categories}}<tr><td>{{.Rank}}</td><td>{{.ID}}</td><td class="num">{{.Forecast}}</td><td class="num">{{.Error}}</td></tr>
  {{end}}
  </tbody>
</table>
{{else}}<p class="empty">No category had enough history to forecast.</p>{{end}}

{{if .Revenue}}
<!-- ═══════ REVENUE ═══════ -->
<h2>Expected Revenue by Category</h2>
<table id="revenue">
  <thead><tr><th>Category</th><th class="num">Products</th><th class="num">Expected Revenue</th></tr></thead>
  <tbody>
  {{range .Revenue}}<tr><td>{{.Category}}</td><td class="num">{{.Products}}</td><td class="num">{{.Revenue}}</td></tr>
  {{end}}
  </tbody>
</table>
{{end}}

<div class="footer">
  Forecasts come from per-entity linear regression over monthly sales history.
</div>

</body>
</html>
`
