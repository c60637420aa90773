// Package loader reads raw sales records from CSV files and HTML table
// exports, resolves their columns by header alias, parses dates, and
// validates every row before anything downstream sees it.
package loader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/seenimoa/retailcast/internal/config"
	"github.com/seenimoa/retailcast/pkg/models"
	"github.com/seenimoa/retailcast/pkg/utils"
)

// Format is the on-disk layout of a sales source.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatHTML Format = "html"
)

// FormatFromPath picks a format from the file extension. Unknown extensions
// are read as CSV.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".html", ".htm":
		return FormatHTML
	default:
		return FormatCSV
	}
}

// ParseFormat maps a user-supplied name or MIME type to a Format.
func ParseFormat(s string) (Format, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if i := strings.IndexByte(s, ';'); i >= 0 {
		s = strings.TrimSpace(s[:i])
	}
	switch s {
	case "", "csv", "text/csv", "application/csv", "text/plain":
		return FormatCSV, nil
	case "html", "htm", "text/html", "application/xhtml+xml":
		return FormatHTML, nil
	default:
		return "", fmt.Errorf("unsupported sales format %q", s)
	}
}

// Field names a logical column of a sales source.
type Field string

const (
	FieldDate      Field = "date"
	FieldEntityID  Field = "product_id"
	FieldName      Field = "product_name"
	FieldCategory  Field = "category"
	FieldQuantity  Field = "quantity"
	FieldUnitPrice Field = "unit_price"
)

var requiredFields = []Field{FieldDate, FieldEntityID, FieldName, FieldCategory, FieldQuantity}

// DefaultAliases lists the accepted headers for each field, compared after
// utils.NormalizeHeader.
var DefaultAliases = map[Field][]string{
	FieldDate:      {"data", "date", "transaction_date"},
	FieldEntityID:  {"produto_id", "product_id", "sku"},
	FieldName:      {"nome_produto", "product_name", "name"},
	FieldCategory:  {"categoria", "category"},
	FieldQuantity:  {"quantidade_vendida", "quantity", "quantity_sold", "qty"},
	FieldUnitPrice: {"preco_unitario", "unit_price", "price"},
}

// Options controls how sources are parsed. Zero values fall back to the
// package defaults.
type Options struct {
	DateLayouts []string
	Aliases     map[Field][]string // extra aliases, checked before DefaultAliases
}

// OptionsFromConfig builds loader options from the input config section.
// Column overrides are comma-separated alias lists keyed by field name.
func OptionsFromConfig(cfg config.InputConfig) Options {
	opts := Options{DateLayouts: cfg.DateLayouts}
	if len(cfg.Columns) > 0 {
		opts.Aliases = make(map[Field][]string, len(cfg.Columns))
		for field, list := range cfg.Columns {
			f := Field(utils.NormalizeHeader(field))
			for _, alias := range strings.Split(list, ",") {
				if a := utils.NormalizeHeader(alias); a != "" {
					opts.Aliases[f] = append(opts.Aliases[f], a)
				}
			}
		}
	}
	return opts
}

// Loader reads sales sources.
type Loader struct {
	opts Options
}

// New creates a Loader with the given options.
func New(opts Options) *Loader {
	return &Loader{opts: opts}
}

// Load reads every source with default options. See Loader.Load.
func Load(ctx context.Context, sources ...string) ([]models.SalesRecord, error) {
	return New(Options{}).Load(ctx, sources...)
}

// Load reads each source in order and concatenates the records row-wise.
// Duplicate rows across sources are kept. The first malformed row aborts the
// whole load.
func (l *Loader) Load(ctx context.Context, sources ...string) ([]models.SalesRecord, error) {
	var all []models.SalesRecord
	for _, src := range sources {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		recs, err := l.loadFile(src)
		if err != nil {
			return nil, err
		}
		all = append(all, recs...)
	}
	return all, nil
}

func (l *Loader) loadFile(path string) ([]models.SalesRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open sales source: %w", err)
	}
	defer f.Close()
	return l.LoadReader(f, path, FormatFromPath(path))
}

// LoadReader parses an already-open stream. name is used in error messages.
func (l *Loader) LoadReader(r io.Reader, name string, format Format) ([]models.SalesRecord, error) {
	var (
		t   *table
		err error
	)
	switch format {
	case FormatHTML:
		t, err = readHTMLTable(r)
	case FormatCSV, "":
		t, err = readCSVTable(r)
	default:
		return nil, fmt.Errorf("unsupported sales format %q", format)
	}
	if err != nil {
		var mie *MalformedInputError
		if errors.As(err, &mie) {
			mie.Source = name
			return nil, mie
		}
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	return l.parseTable(t, name)
}

// ── Table parsing ──

// table is the format-independent view of a source: one header row plus
// data rows, each tagged with its line in the source.
type table struct {
	header []string
	rows   [][]string
	lines  []int
}

func (l *Loader) parseTable(t *table, source string) ([]models.SalesRecord, error) {
	cols, err := l.resolveColumns(t.header)
	if err != nil {
		err.Source = source
		return nil, err
	}

	layouts := l.opts.DateLayouts
	if len(layouts) == 0 {
		layouts = utils.DefaultDateLayouts
	}

	records := make([]models.SalesRecord, 0, len(t.rows))
	for i, row := range t.rows {
		line := t.lines[i]
		if blankRow(row) {
			continue
		}
		rec, perr := parseRow(row, cols, layouts)
		if perr == nil {
			perr = Validate(rec)
		}
		if perr != nil {
			var mie *MalformedInputError
			if errors.As(perr, &mie) {
				mie.Source = source
				mie.Row = line
				return nil, mie
			}
			return nil, perr
		}
		records = append(records, rec)
	}
	return records, nil
}

// resolveColumns maps each field to its column index, or -1 when an
// optional field is absent.
func (l *Loader) resolveColumns(header []string) (map[Field]int, *MalformedInputError) {
	index := make(map[string]int, len(header))
	for i, h := range header {
		key := utils.NormalizeHeader(h)
		if _, dup := index[key]; !dup {
			index[key] = i
		}
	}

	cols := make(map[Field]int, len(DefaultAliases))
	for field, defaults := range DefaultAliases {
		cols[field] = -1
		aliases := append(append([]string{}, l.opts.Aliases[field]...), defaults...)
		for _, a := range aliases {
			if i, ok := index[a]; ok {
				cols[field] = i
				break
			}
		}
	}

	for _, f := range requiredFields {
		if cols[f] < 0 {
			return nil, &MalformedInputError{
				Column: string(f),
				Reason: "missing required column",
			}
		}
	}
	return cols, nil
}

func parseRow(row []string, cols map[Field]int, layouts []string) (models.SalesRecord, error) {
	cell := func(f Field) string {
		i := cols[f]
		if i < 0 || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	var rec models.SalesRecord

	rawDate := cell(FieldDate)
	ts, err := utils.ParseDate(rawDate, layouts)
	if err != nil {
		return rec, &MalformedInputError{Column: string(FieldDate), Value: rawDate, Reason: "unparseable date"}
	}
	rec.Timestamp = ts

	rawQty := cell(FieldQuantity)
	qty, err := strconv.Atoi(rawQty)
	if err != nil {
		return rec, &MalformedInputError{Column: string(FieldQuantity), Value: rawQty, Reason: "quantity must be an integer"}
	}
	rec.Quantity = qty

	rec.EntityID = utils.NormalizeID(cell(FieldEntityID))
	rec.Category = strings.TrimSpace(cell(FieldCategory))
	rec.EntityName = cell(FieldName)
	if rec.EntityName == "" {
		rec.EntityName = rec.EntityID
	}

	if rawPrice := cell(FieldUnitPrice); rawPrice != "" {
		price, err := parsePrice(rawPrice)
		if err != nil {
			return rec, &MalformedInputError{Column: string(FieldUnitPrice), Value: rawPrice, Reason: "unit price must be a number"}
		}
		rec.UnitPrice = price
		rec.HasPrice = true
	}

	return rec, nil
}

// parsePrice accepts dot decimals ("1234.56", "1,234.56") and Brazilian
// comma decimals ("1234,56", "1.234,56", "R$ 1.234,56"). Whichever of ','
// and '.' comes last is the decimal separator. A lone '.' is always decimal.
func parsePrice(raw string) (decimal.Decimal, error) {
	s := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(raw), "R$"))
	if comma := strings.LastIndex(s, ","); comma >= 0 {
		if comma > strings.LastIndex(s, ".") {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	}
	return decimal.NewFromString(s)
}

func blankRow(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
