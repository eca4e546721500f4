package analysis

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jengzang/loi-backend-go/internal/spatial"
)

var (
	// ErrInvalidInput marks malformed source rows or layers.
	ErrInvalidInput = errors.New("invalid input")
	// ErrConfiguration marks run parameters rejected before any stage runs.
	ErrConfiguration = errors.New("invalid configuration")
	// ErrEmptyResult marks a run that produced zero locations. It is reported
	// as a warning and never aborts a run.
	ErrEmptyResult = errors.New("no locations found")
	// ErrDegenerateRange is returned when min == max during normalisation
	// and the degenerate policy is "fail".
	ErrDegenerateRange = errors.New("degenerate normalisation range")
	// ErrSpatialOperation is a failure inside the geometry engine.
	ErrSpatialOperation = spatial.ErrSpatialOperation
)

// StageError wraps the error that aborted a pipeline stage
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// RowError describes one event row that could not be geocoded
type RowError struct {
	Row   int
	Field string
	Value string
	Err   error
}

func (e RowError) Error() string {
	return fmt.Sprintf("row %d: %s=%q: %v", e.Row, e.Field, e.Value, e.Err)
}

func (e RowError) Unwrap() error {
	return e.Err
}

// InvalidRowsError aggregates the rows skipped during geocoding
type InvalidRowsError struct {
	Rows []RowError
}

func (e *InvalidRowsError) Error() string {
	const shown = 5

	var b strings.Builder
	fmt.Fprintf(&b, "%d invalid row(s)", len(e.Rows))
	for i, r := range e.Rows {
		if i == shown {
			fmt.Fprintf(&b, "; and %d more", len(e.Rows)-shown)
			break
		}
		b.WriteString("; ")
		b.WriteString(r.Error())
	}
	return b.String()
}

// Is lets errors.Is(err, ErrInvalidInput) match the aggregate.
func (e *InvalidRowsError) Is(target error) bool {
	return target == ErrInvalidInput
}
