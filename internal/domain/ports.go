package domain

import (
	"context"
	"time"
)

// SampleRow is a stored reading as returned by a SampleStore, carrying its
// quality flag.
type SampleRow struct {
	SensorID  string
	Reading   string
	Value     RawValue
	Unit      string
	Theme     string
	Timestamp time.Time
	Flagged   bool
}

// SampleQuery selects rows for a set of sensors. An empty Variable selects all
// readings.
type SampleQuery struct {
	SensorIDs []string
	Variable  string
	Range     TimeRange
}

// SampleStore is the external source and sink of samples.
type SampleStore interface {
	Query(ctx context.Context, q SampleQuery) ([]SampleRow, error)
	Append(ctx context.Context, sample NormalizedSample) error
}

// SeriesTracker receives accepted samples so in-memory series can append them
// and reset their latest cache. Each sample must be tracked once.
type SeriesTracker interface {
	Track(sample NormalizedSample)
}

// BuildSeries converts rows into per-sensor series through the registry. Rows
// that fail conversion are skipped and counted. Every requested sensor gets a
// series, empty when it has no rows.
func BuildSeries(reg *Registry, sensorIDs []string, rows []SampleRow) (map[string]*SensorTimeSeries, int) {
	out := make(map[string]*SensorTimeSeries, len(sensorIDs))
	for _, id := range sensorIDs {
		out[id] = NewSensorTimeSeries(id)
	}

	snap := reg.Snapshot()
	dropped := 0
	for _, row := range rows {
		def, ok := snap.Lookup(row.Reading)
		if !ok {
			dropped++
			continue
		}
		f, err := row.Value.Float()
		if err != nil {
			dropped++
			continue
		}
		v, ok := def.Convert(f, row.Unit)
		if !ok {
			dropped++
			continue
		}
		series, ok := out[row.SensorID]
		if !ok {
			series = NewSensorTimeSeries(row.SensorID)
			out[row.SensorID] = series
		}
		variable := def.Variable()
		if row.Theme != "" {
			variable.Theme = row.Theme
		}
		series.Append(variable, Sample{Timestamp: row.Timestamp, Value: v, Flagged: row.Flagged})
	}
	return out, dropped
}
