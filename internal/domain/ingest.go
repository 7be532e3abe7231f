package domain

import "strings"

// IngestResult is an accepted reading.
type IngestResult struct {
	Sample NormalizedSample

	// NewUnit is set when the reading's name or unit was new to the registry.
	NewUnit *NewUnitObserved
}

// Ingestor validates raw readings and converts them to canonical units.
type Ingestor struct {
	registry *Registry
	tracker  SeriesTracker
}

// NewIngestor creates an Ingestor over registry. tracker may be nil; callers
// that persist the sample after Ingest and may retry should pass nil and track
// once the write succeeds.
func NewIngestor(registry *Registry, tracker SeriesTracker) *Ingestor {
	return &Ingestor{registry: registry, tracker: tracker}
}

// Ingest validates and converts raw. Failures are *IngestError values matching
// ErrInvalidReading; they are routine and should be logged and dropped.
//
// Every reading whose value parses is also checked for a novel (reading, unit)
// pair, including readings rejected for an unknown name or unit.
func (in *Ingestor) Ingest(raw RawReading) (IngestResult, error) {
	fail := func(kind error, observed *NewUnitObserved) (IngestResult, error) {
		return IngestResult{}, &IngestError{
			Kind:     kind,
			SensorID: raw.SensorID,
			Reading:  raw.Reading,
			Unit:     raw.Unit,
			Value:    string(raw.Value),
			NewUnit:  observed,
		}
	}

	if strings.TrimSpace(raw.SensorID) == "" || strings.TrimSpace(raw.Reading) == "" {
		return fail(invalidArgument("sensor id and reading name are required"), nil)
	}
	if raw.Timestamp.IsZero() {
		return fail(invalidArgument("timestamp is required"), nil)
	}
	if err := raw.Attributes.Validate(); err != nil {
		return fail(err, nil)
	}

	f, err := raw.Value.Float()
	if err != nil {
		return fail(err, nil)
	}
	observed := in.observe(raw.Reading, raw.Unit)

	def, ok := in.registry.Snapshot().Lookup(raw.Reading)
	if !ok {
		return fail(ErrUnknownReading, observed)
	}
	value, ok := def.Convert(f, raw.Unit)
	if !ok {
		return fail(ErrUnconvertibleUnit, observed)
	}

	variable := def.Variable()
	if raw.Theme != "" {
		variable.Theme = raw.Theme
	}
	sample := NormalizedSample{
		SensorID: raw.SensorID,
		Variable: variable,
		Sample: Sample{
			Timestamp: raw.Timestamp.UTC(),
			Value:     value,
			Flagged:   !def.Range.Contains(value),
		},
		Attributes: raw.Attributes,
		IngestedAt: clock.Now().UTC(),
	}
	if in.tracker != nil {
		in.tracker.Track(sample)
	}
	return IngestResult{Sample: sample, NewUnit: observed}, nil
}

func (in *Ingestor) observe(reading, unit string) *NewUnitObserved {
	ev, novel := in.registry.ObserveUnit(reading, unit)
	if !novel {
		return nil
	}
	return &ev
}

// Registry returns the registry the ingestor converts against.
func (in *Ingestor) Registry() *Registry { return in.registry }
