package loader

import (
	"encoding/csv"
	"errors"
	"io"
)

// readCSVTable reads a comma-separated source. The first record is the
// header; ragged rows are allowed and missing cells read as empty.
func readCSVTable(r io.Reader) (*table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.ReuseRecord = false

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, &MalformedInputError{Reason: "missing header row"}
	}
	if err != nil {
		return nil, csvError(err)
	}

	t := &table{header: header}
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, csvError(err)
		}
		line, _ := cr.FieldPos(0)
		t.rows = append(t.rows, row)
		t.lines = append(t.lines, line)
	}
	return t, nil
}

func csvError(err error) error {
	var pe *csv.ParseError
	if errors.As(err, &pe) {
		return &MalformedInputError{Row: pe.Line, Reason: pe.Err.Error()}
	}
	return err
}
