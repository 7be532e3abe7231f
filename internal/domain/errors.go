package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidNumericValue means the raw value does not parse as a finite number.
	ErrInvalidNumericValue = errors.New("invalid numeric value")

	// ErrUnknownReading means the reading name has no definition.
	ErrUnknownReading = errors.New("unknown reading")

	// ErrUnconvertibleUnit means the reading is known but the unit is neither
	// canonical nor in its conversion table.
	ErrUnconvertibleUnit = errors.New("unconvertible unit")

	// ErrInvalidReading is the umbrella kind for every per-sample ingest failure.
	ErrInvalidReading = errors.New("invalid reading")

	// ErrInvalidArgument marks malformed input to a public entry point.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrNotFound means a looked-up record does not exist.
	ErrNotFound = errors.New("not found")
)

// IngestError describes why a raw reading was dropped. It matches both
// ErrInvalidReading and its specific Kind under errors.Is.
type IngestError struct {
	Kind     error
	SensorID string
	Reading  string
	Unit     string
	Value    string

	// NewUnit is set when the failed reading also carried a reading name or
	// unit the registry has not seen before.
	NewUnit *NewUnitObserved
}

func (e *IngestError) Error() string {
	return fmt.Sprintf("ingest %s/%s (%q %s): %v", e.SensorID, e.Reading, e.Value, e.Unit, e.Kind)
}

func (e *IngestError) Unwrap() []error {
	return []error{ErrInvalidReading, e.Kind}
}

// invalidArgument wraps ErrInvalidArgument with a description.
func invalidArgument(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}
