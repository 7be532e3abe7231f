package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Attribute map bounds.
const (
	MaxAttributes        = 32
	MaxAttributeKeyLen   = 64
	MaxAttributeValueLen = 256
)

// ValidRange bounds acceptable canonical values for a reading. A nil bound is open.
type ValidRange struct {
	Min *float64 `json:"min,omitempty"`
	Max *float64 `json:"max,omitempty"`
}

// Contains reports whether v lies inside the range, bounds inclusive.
func (r ValidRange) Contains(v float64) bool {
	if r.Min != nil && v < *r.Min {
		return false
	}
	if r.Max != nil && v > *r.Max {
		return false
	}
	return true
}

// ReadingDefinition is a named measurable quantity with one canonical unit.
// Conversions maps an alternate unit to the factor that converts it into the
// canonical unit by multiplication.
type ReadingDefinition struct {
	Name          string             `json:"name"`
	CanonicalUnit string             `json:"canonical_unit"`
	Theme         string             `json:"theme,omitempty"`
	Conversions   map[string]float64 `json:"conversions,omitempty"`
	Range         ValidRange         `json:"range,omitzero"`
}

// Convert converts value expressed in unit into the canonical unit.
func (d ReadingDefinition) Convert(value float64, unit string) (float64, bool) {
	if unit == d.CanonicalUnit {
		return value, true
	}
	factor, ok := d.Conversions[unit]
	if !ok {
		return 0, false
	}
	return value * factor, true
}

// Units returns the canonical unit followed by the alternate units, sorted.
func (d ReadingDefinition) Units() []string {
	alt := make([]string, 0, len(d.Conversions))
	for u := range d.Conversions {
		if u != d.CanonicalUnit {
			alt = append(alt, u)
		}
	}
	sort.Strings(alt)
	return append([]string{d.CanonicalUnit}, alt...)
}

// HasUnit reports whether unit is canonical or directly convertible.
func (d ReadingDefinition) HasUnit(unit string) bool {
	if unit == d.CanonicalUnit {
		return true
	}
	_, ok := d.Conversions[unit]
	return ok
}

// Variable returns the variable this definition describes.
func (d ReadingDefinition) Variable() Variable {
	return Variable{Name: d.Name, Unit: d.CanonicalUnit, Theme: d.Theme}
}

// clone copies the conversion table so snapshots never share maps with callers.
func (d ReadingDefinition) clone() ReadingDefinition {
	if d.Conversions != nil {
		conv := make(map[string]float64, len(d.Conversions))
		for k, v := range d.Conversions {
			conv[k] = v
		}
		d.Conversions = conv
	}
	return d
}

// Variable is a reading name paired with its canonical unit and theme.
type Variable struct {
	Name  string `json:"name"`
	Unit  string `json:"unit"`
	Theme string `json:"theme,omitempty"`
}

// RawValue is a reading value as sent upstream. It decodes from either a JSON
// string or a JSON number and keeps the original text.
type RawValue string

func (v *RawValue) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*v = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("decode raw value: %w", err)
		}
		*v = RawValue(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("decode raw value: %w", err)
	}
	*v = RawValue(n.String())
	return nil
}

// Float parses the value as a finite float64.
func (v RawValue) Float() (float64, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(string(v)), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, ErrInvalidNumericValue
	}
	return f, nil
}

// Attributes holds extensible string metadata attached to readings and sensors.
type Attributes map[string]string

// Validate enforces the attribute bounds.
func (a Attributes) Validate() error {
	if len(a) > MaxAttributes {
		return invalidArgument("%d attributes exceeds limit of %d", len(a), MaxAttributes)
	}
	for k, v := range a {
		if k == "" || len(k) > MaxAttributeKeyLen {
			return invalidArgument("attribute key %q must be 1-%d bytes", k, MaxAttributeKeyLen)
		}
		if len(v) > MaxAttributeValueLen {
			return invalidArgument("attribute %q value exceeds %d bytes", k, MaxAttributeValueLen)
		}
	}
	return nil
}

// RawReading is a single reading as received from a sensor feed.
type RawReading struct {
	SensorID   string     `json:"sensor_id"`
	Reading    string     `json:"reading"`
	Value      RawValue   `json:"value"`
	Unit       string     `json:"unit"`
	Timestamp  time.Time  `json:"timestamp"`
	Theme      string     `json:"theme,omitempty"`
	Attributes Attributes `json:"attributes,omitempty"`
}

// Sample is one normalized value in the canonical unit of its variable.
type Sample struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
	Flagged   bool      `json:"flagged,omitempty"`
}

// NormalizedSample is a Sample together with the series it belongs to.
type NormalizedSample struct {
	SensorID   string     `json:"sensor_id"`
	Variable   Variable   `json:"variable"`
	Sample     Sample     `json:"sample"`
	Attributes Attributes `json:"attributes,omitempty"`
	IngestedAt time.Time  `json:"ingested_at"`
}

// NewUnitObserved reports a reading name or unit missing from the registry.
type NewUnitObserved struct {
	Reading    string    `json:"reading"`
	Unit       string    `json:"unit"`
	NewReading bool      `json:"new_reading"`
	ObservedAt time.Time `json:"observed_at"`
}

// TimeRange is the half-open interval [Start, End).
type TimeRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Validate rejects ranges that end before they start.
func (r TimeRange) Validate() error {
	if r.End.Before(r.Start) {
		return invalidArgument("time range end %s is before start %s",
			r.End.Format(time.RFC3339), r.Start.Format(time.RFC3339))
	}
	return nil
}

// Contains reports whether t lies in [Start, End).
func (r TimeRange) Contains(t time.Time) bool {
	return !t.Before(r.Start) && t.Before(r.End)
}
