package loader

import (
	"errors"
	"fmt"
	"strings"

	"github.com/seenimoa/retailcast/pkg/models"
)

// ErrMalformedInput is the sentinel wrapped by every MalformedInputError.
var ErrMalformedInput = errors.New("malformed input")

// MalformedInputError describes a structural problem in a sales source.
// Row is the 1-based line of the source, counting the header as line 1;
// it is 0 for problems with the header itself.
type MalformedInputError struct {
	Source string
	Row    int
	Column string
	Value  string
	Reason string
}

func (e *MalformedInputError) Error() string {
	var b strings.Builder
	b.WriteString("malformed input")
	if e.Source != "" {
		fmt.Fprintf(&b, " in %s", e.Source)
	}
	if e.Row > 0 {
		fmt.Fprintf(&b, " at row %d", e.Row)
	}
	if e.Column != "" {
		fmt.Fprintf(&b, ", column %q", e.Column)
	}
	fmt.Fprintf(&b, ": %s", e.Reason)
	if e.Value != "" {
		fmt.Fprintf(&b, " (got %q)", e.Value)
	}
	return b.String()
}

// Unwrap lets errors.Is match ErrMalformedInput.
func (e *MalformedInputError) Unwrap() error { return ErrMalformedInput }

// Validate checks the invariants of a parsed record. It runs once per row at
// load time; the caller fills in Source and Row on the returned error.
func Validate(rec models.SalesRecord) error {
	switch {
	case rec.Timestamp.IsZero():
		return &MalformedInputError{Column: string(FieldDate), Reason: "missing date"}
	case strings.TrimSpace(rec.EntityID) == "":
		return &MalformedInputError{Column: string(FieldEntityID), Reason: "empty product id"}
	case strings.TrimSpace(rec.Category) == "":
		return &MalformedInputError{Column: string(FieldCategory), Reason: "empty category"}
	case rec.Quantity < 0:
		return &MalformedInputError{
			Column: string(FieldQuantity),
			Value:  fmt.Sprint(rec.Quantity),
			Reason: "quantity must not be negative",
		}
	case rec.HasPrice && rec.UnitPrice.IsNegative():
		return &MalformedInputError{
			Column: string(FieldUnitPrice),
			Value:  rec.UnitPrice.String(),
			Reason: "unit price must not be negative",
		}
	}
	return nil
}
