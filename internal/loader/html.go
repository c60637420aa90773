package loader

import (
	"fmt"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// readHTMLTable reads the first <table> of an HTML export. The first
// non-empty row is the header. Line numbers count table rows, header included.
func readHTMLTable(r io.Reader) (*table, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse sales HTML: %w", err)
	}

	tbl := doc.Find("table").First()
	if tbl.Length() == 0 {
		return nil, &MalformedInputError{Reason: "no <table> element"}
	}

	t := &table{}
	line := 0
	tbl.Find("tr").Each(func(_ int, tr *goquery.Selection) {
		// Skip rows of tables nested inside a cell.
		if tr.ParentsFiltered("table").First().Get(0) != tbl.Get(0) {
			return
		}
		line++

		var cells []string
		tr.ChildrenFiltered("th, td").Each(func(_ int, cell *goquery.Selection) {
			cells = append(cells, strings.TrimSpace(cell.Text()))
		})

		if t.header == nil {
			if len(cells) > 0 {
				t.header = cells
			}
			return
		}
		t.rows = append(t.rows, cells)
		t.lines = append(t.lines, line)
	})

	if t.header == nil {
		return nil, &MalformedInputError{Reason: "missing header row"}
	}
	return t, nil
}
