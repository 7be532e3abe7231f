package postgres

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/couchcryptid/sensor-reading-engine/internal/domain"
)

type readingModel struct {
	ID            uint            `gorm:"primaryKey"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
	Name          string          `gorm:"uniqueIndex;not null"`
	CanonicalUnit string          `gorm:"not null"`
	Theme         string          `gorm:"index"`
	Conversions   conversionTable `gorm:"type:jsonb"`
	Min           *float64
	Max           *float64
}

func (readingModel) TableName() string { return "readings" }

func (m readingModel) toDomain() domain.ReadingDefinition {
	return domain.ReadingDefinition{
		Name:          m.Name,
		CanonicalUnit: m.CanonicalUnit,
		Theme:         m.Theme,
		Conversions:   map[string]float64(m.Conversions),
		Range:         domain.ValidRange{Min: m.Min, Max: m.Max},
	}
}

func readingFromDomain(d domain.ReadingDefinition) readingModel {
	return readingModel{
		Name:          d.Name,
		CanonicalUnit: d.CanonicalUnit,
		Theme:         d.Theme,
		Conversions:   conversionTable(d.Conversions),
		Min:           d.Range.Min,
		Max:           d.Range.Max,
	}
}

// newReadingModel records reading names and units seen in the feed but absent
// from the registry, pending review.
type newReadingModel struct {
	ID         uint      `gorm:"primaryKey"`
	CreatedAt  time.Time
	Reading    string    `gorm:"uniqueIndex:idx_new_reading_unit;not null"`
	Unit       string    `gorm:"uniqueIndex:idx_new_reading_unit;not null"`
	NewReading bool
}

func (newReadingModel) TableName() string { return "new_readings" }

type tagModel struct {
	ID         uint      `gorm:"primaryKey"`
	CreatedAt  time.Time
	OwnerTable string    `gorm:"column:table_name;uniqueIndex:idx_tag_value;not null"`
	Tag        string    `gorm:"uniqueIndex:idx_tag_value;not null"`
	Value      string    `gorm:"uniqueIndex:idx_tag_value;not null"`
}

func (tagModel) TableName() string { return "tags" }

type sensorModel struct {
	ID         string    `gorm:"primaryKey"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
	Name       string    `gorm:"uniqueIndex;not null"`
	Type       string    `gorm:"index"`
	Source     string    `gorm:"index"`
	Active     bool
	Geometry   rawJSON   `gorm:"type:jsonb"`
	Attributes stringMap `gorm:"type:jsonb"`
}

func (sensorModel) TableName() string { return "sensors" }

func (m sensorModel) toDomain() domain.SensorInfo {
	return domain.SensorInfo{
		ID:         m.ID,
		Name:       m.Name,
		Type:       m.Type,
		Source:     m.Source,
		Active:     m.Active,
		Geometry:   json.RawMessage(m.Geometry),
		Attributes: domain.Attributes(m.Attributes),
	}
}

func sensorFromDomain(s domain.SensorInfo) sensorModel {
	return sensorModel{
		ID:         s.ID,
		Name:       s.Name,
		Type:       s.Type,
		Source:     s.Source,
		Active:     s.Active,
		Geometry:   rawJSON(s.Geometry),
		Attributes: stringMap(s.Attributes),
	}
}

// sampleModel stores a sample in its canonical unit. Value keeps the text
// form so rows read back as domain.SampleRow without loss.
type sampleModel struct {
	ID         uint      `gorm:"primaryKey"`
	SensorID   string    `gorm:"index:idx_sample_sensor_time,priority:1;not null"`
	Timestamp  time.Time `gorm:"index:idx_sample_sensor_time,priority:2;not null"`
	Reading    string    `gorm:"index;not null"`
	Value      string    `gorm:"not null"`
	Unit       string    `gorm:"not null"`
	Theme      string
	Flagged    bool
	Attributes stringMap `gorm:"type:jsonb"`
	IngestedAt time.Time
}

func (sampleModel) TableName() string { return "samples" }

func sampleFromDomain(s domain.NormalizedSample) sampleModel {
	return sampleModel{
		SensorID:   s.SensorID,
		Timestamp:  s.Sample.Timestamp.UTC(),
		Reading:    s.Variable.Name,
		Value:      strconv.FormatFloat(s.Sample.Value, 'g', -1, 64),
		Unit:       s.Variable.Unit,
		Theme:      s.Variable.Theme,
		Flagged:    s.Sample.Flagged,
		Attributes: stringMap(s.Attributes),
		IngestedAt: s.IngestedAt.UTC(),
	}
}

func (m sampleModel) toRow() domain.SampleRow {
	return domain.SampleRow{
		SensorID:  m.SensorID,
		Reading:   m.Reading,
		Value:     domain.RawValue(m.Value),
		Unit:      m.Unit,
		Theme:     m.Theme,
		Timestamp: m.Timestamp.UTC(),
		Flagged:   m.Flagged,
	}
}

// conversionTable is a unit -> factor map stored as jsonb.
type conversionTable map[string]float64

func (c conversionTable) Value() (driver.Value, error) {
	if c == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(map[string]float64(c))
}

func (c *conversionTable) Scan(value any) error {
	return scanJSON(value, c, "conversionTable")
}

// stringMap is a bounded attribute map stored as jsonb.
type stringMap map[string]string

func (s stringMap) Value() (driver.Value, error) {
	if s == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(map[string]string(s))
}

func (s *stringMap) Scan(value any) error {
	return scanJSON(value, s, "stringMap")
}

// rawJSON is an opaque JSON document, such as a GeoJSON geometry.
type rawJSON json.RawMessage

func (r rawJSON) Value() (driver.Value, error) {
	if len(r) == 0 {
		return nil, nil
	}
	if !json.Valid(r) {
		return nil, fmt.Errorf("invalid json document")
	}
	return []byte(r), nil
}

func (r *rawJSON) Scan(value any) error {
	switch v := value.(type) {
	case nil:
		*r = nil
	case []byte:
		*r = append((*r)[:0], v...)
	case string:
		*r = rawJSON(v)
	default:
		return fmt.Errorf("cannot scan %T into rawJSON", value)
	}
	return nil
}

func scanJSON(value, dst any, name string) error {
	if value == nil {
		return nil
	}

	var fieldBytes []byte
	switch v := value.(type) {
	case []byte:
		fieldBytes = v
	case string:
		fieldBytes = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into %s", value, name)
	}

	return json.Unmarshal(fieldBytes, dst)
}
