package domain

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// Tag locations used when registering sensors.
const (
	SensorsTable = "sensors"
	TagType      = "type"
	TagSource    = "source"
)

// SensorInfo is sensor metadata: a fixed set of known fields plus bounded
// free-form attributes.
type SensorInfo struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Type       string          `json:"type"`
	Source     string          `json:"source"`
	Active     bool            `json:"active"`
	Geometry   json.RawMessage `json:"geometry,omitempty"`
	Attributes Attributes      `json:"attributes,omitempty"`
}

// SensorStore persists sensor metadata. Upsert creates the sensor or updates
// the one with the same name, returning the stored record.
type SensorStore interface {
	Upsert(ctx context.Context, info SensorInfo) (SensorInfo, error)
}

// Registration is the outcome of registering a sensor.
type Registration struct {
	Sensor    SensorInfo
	NewType   bool
	NewSource bool
}

// SensorRegistrar canonicalizes sensor type and source tags before storing.
type SensorRegistrar struct {
	tags  *Canonicalizer
	store SensorStore
}

// NewSensorRegistrar creates a SensorRegistrar.
func NewSensorRegistrar(tags *Canonicalizer, store SensorStore) *SensorRegistrar {
	return &SensorRegistrar{tags: tags, store: store}
}

// Register canonicalizes info.Type and info.Source and upserts the sensor.
func (r *SensorRegistrar) Register(ctx context.Context, info SensorInfo) (Registration, error) {
	if strings.TrimSpace(info.Name) == "" {
		return Registration{}, invalidArgument("sensor name is required")
	}
	if err := info.Attributes.Validate(); err != nil {
		return Registration{}, err
	}

	typ, err := r.tags.Resolve(ctx, SensorsTable, TagType, info.Type)
	if err != nil {
		return Registration{}, fmt.Errorf("canonicalize sensor type: %w", err)
	}
	src, err := r.tags.Resolve(ctx, SensorsTable, TagSource, info.Source)
	if err != nil {
		return Registration{}, fmt.Errorf("canonicalize sensor source: %w", err)
	}
	info.Type = typ.Value
	info.Source = src.Value

	stored, err := r.store.Upsert(ctx, info)
	if err != nil {
		return Registration{}, fmt.Errorf("store sensor %q: %w", info.Name, err)
	}
	return Registration{Sensor: stored, NewType: typ.IsNew, NewSource: src.IsNew}, nil
}
