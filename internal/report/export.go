package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/xuri/excelize/v2"

	"github.com/seenimoa/retailcast/pkg/models"
)

// CSVHeader is the column layout of the machine-readable export.
var CSVHeader = []string{
	"scope", "rank", "entity_id", "entity_name", "category",
	"predicted_quantity", "evaluation_error", "expected_revenue",
}

// CSV writes one row per ranked product followed by one row per ranked
// category. expected_revenue is empty for entries without a price.
func CSV(w io.Writer, run *models.ForecastRun) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(CSVHeader); err != nil {
		return err
	}

	write := func(scope models.Scope, entries []models.RankedEntry) error {
		for _, e := range entries {
			revenue := ""
			if e.HasRevenue {
				revenue = e.ExpectedRevenue.StringFixed(2)
			}
			row := []string{
				string(scope),
				strconv.Itoa(e.Rank),
				e.EntityID,
				e.EntityName,
				e.Category,
				strconv.FormatFloat(e.Predicted, 'f', 4, 64),
				strconv.FormatFloat(e.EvaluationError, 'f', 4, 64),
				revenue,
			}
			if err := cw.Write(row); err != nil {
				return err
			}
		}
		return nil
	}

	if err := write(models.ScopeProduct, run.Report.TopProducts); err != nil {
		return err
	}
	if err := write(models.ScopeCategory, run.Report.TopCategories); err != nil {
		return err
	}
	cw.Flush()
	return cw.Error()
}

// ════════════════════════════════════════════════════════════════════
// XLSX workbook
// ════════════════════════════════════════════════════════════════════

// Sheet names of the XLSX export.
const (
	SheetProducts   = "Products"
	SheetCategories = "Categories"
	SheetRevenue    = "Revenue"
)

// XLSX writes a workbook with one sheet per ranking, plus a revenue sheet
// when any product is priced.
func XLSX(w io.Writer, run *models.ForecastRun, cfg Config) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetProducts); err != nil {
		return fmt.Errorf("xlsx: %w", err)
	}
	if _, err := f.NewSheet(SheetCategories); err != nil {
		return fmt.Errorf("xlsx: %w", err)
	}

	header, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#DCE6F1"}, Pattern: 1},
	})
	if err != nil {
		return fmt.Errorf("xlsx style: %w", err)
	}

	products := [][]any{{"Rank", "Product ID", "Product Name", "Category", "Forecast",
		"Holdout MSE", "Holdout RMSE", "Holdout MAE", "Holdout R²", "Expected Revenue"}}
	for _, e := range run.Report.TopProducts {
		row := []any{e.Rank, e.EntityID, e.EntityName, e.Category, round2(e.Predicted),
			round2(e.EvaluationError), round2(e.RMSE), round2(e.MAE), round2(e.R2), nil}
		if e.HasRevenue {
			row[9] = e.ExpectedRevenue.InexactFloat64()
		}
		products = append(products, row)
	}
	if err := writeSheet(f, SheetProducts, products, header); err != nil {
		return err
	}

	categories := [][]any{{"Rank", "Category", "Forecast", "Holdout MSE", "Holdout RMSE", "Holdout MAE", "Holdout R²"}}
	for _, e := range run.Report.TopCategories {
		categories = append(categories, []any{e.Rank, e.EntityID, round2(e.Predicted),
			round2(e.EvaluationError), round2(e.RMSE), round2(e.MAE), round2(e.R2)})
	}
	if err := writeSheet(f, SheetCategories, categories, header); err != nil {
		return err
	}

	if revenue := RevenueByCategory(run); len(revenue) > 0 {
		if _, err := f.NewSheet(SheetRevenue); err != nil {
			return fmt.Errorf("xlsx: %w", err)
		}
		rows := [][]any{{"Category", "Products", "Expected Revenue"}}
		for _, r := range revenue {
			rows = append(rows, []any{r.Category, r.Products, r.Revenue.InexactFloat64()})
		}
		if err := writeSheet(f, SheetRevenue, rows, header); err != nil {
			return err
		}
	}

	title := cfg.Title
	if title == "" {
		title = DefaultTitle
	}
	if err := f.SetDocProps(&excelize.DocProperties{Title: title, Creator: "retailcast"}); err != nil {
		return fmt.Errorf("xlsx props: %w", err)
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("xlsx write: %w", err)
	}
	return nil
}

func writeSheet(f *excelize.File, sheet string, rows [][]any, headerStyle int) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("xlsx %s row %d: %w", sheet, i+1, err)
		}
	}

	last, err := excelize.CoordinatesToCellName(len(rows[0]), 1)
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(sheet, "A1", last, headerStyle); err != nil {
		return fmt.Errorf("xlsx %s style: %w", sheet, err)
	}
	lastCol, _ := excelize.ColumnNumberToName(len(rows[0]))
	return f.SetColWidth(sheet, "A", lastCol, 18)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
