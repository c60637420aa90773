package forecast

import (
	"errors"
	"fmt"

	"github.com/seenimoa/retailcast/pkg/models"
)

// MinPoints is the smallest series that can be split and fitted.
const MinPoints = 2

// ErrInsufficientData is the sentinel wrapped by InsufficientDataError.
var ErrInsufficientData = errors.New("insufficient data")

// InsufficientDataError reports an entity whose series is too short to
// forecast. It is recovered by holding the entity out of the ranking.
type InsufficientDataError struct {
	Scope    models.Scope
	EntityID string
	Points   int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient data for %s %q: %d point(s), need at least %d",
		e.Scope, e.EntityID, e.Points, MinPoints)
}

// Unwrap lets errors.Is match ErrInsufficientData.
func (e *InsufficientDataError) Unwrap() error { return ErrInsufficientData }
