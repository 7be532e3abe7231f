package postgres

import (
	"context"
	"fmt"

	"github.com/couchcryptid/sensor-reading-engine/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ReadingStore persists reading definitions and new-unit reports.
type ReadingStore struct {
	db *gorm.DB
}

func NewReadingStore(p *DB) *ReadingStore {
	return &ReadingStore{db: p.db}
}

// LoadAll returns every reading definition ordered by name.
func (r *ReadingStore) LoadAll(ctx context.Context) ([]domain.ReadingDefinition, error) {
	var models []readingModel
	if err := r.db.WithContext(ctx).Order("name").Find(&models).Error; err != nil {
		return nil, fmt.Errorf("load readings: %w", err)
	}

	defs := make([]domain.ReadingDefinition, 0, len(models))
	for _, m := range models {
		defs = append(defs, m.toDomain())
	}
	return defs, nil
}

// RecordNewUnit stores a report of an unseen reading or unit. Repeated reports
// of the same pair are ignored.
func (r *ReadingStore) RecordNewUnit(ctx context.Context, reading, unit string, newReading bool) error {
	m := newReadingModel{Reading: reading, Unit: unit, NewReading: newReading}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&m).Error
	if err != nil {
		return fmt.Errorf("record new unit %s/%s: %w", reading, unit, err)
	}
	return nil
}

// SaveDefinitions creates or replaces definitions by name.
func (r *ReadingStore) SaveDefinitions(ctx context.Context, defs []domain.ReadingDefinition) error {
	if len(defs) == 0 {
		return nil
	}
	models := make([]readingModel, 0, len(defs))
	for _, d := range defs {
		models = append(models, readingFromDomain(d))
	}

	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "name"}},
			DoUpdates: clause.AssignmentColumns([]string{"canonical_unit", "theme", "conversions", "min", "max", "updated_at"}),
		}).
		Create(&models).Error
	if err != nil {
		return fmt.Errorf("save readings: %w", err)
	}
	return nil
}

// PendingUnits lists the recorded new-unit reports, oldest first.
func (r *ReadingStore) PendingUnits(ctx context.Context) ([]domain.NewUnitObserved, error) {
	var models []newReadingModel
	if err := r.db.WithContext(ctx).Order("created_at, id").Find(&models).Error; err != nil {
		return nil, fmt.Errorf("load pending units: %w", err)
	}

	out := make([]domain.NewUnitObserved, 0, len(models))
	for _, m := range models {
		out = append(out, domain.NewUnitObserved{
			Reading:    m.Reading,
			Unit:       m.Unit,
			NewReading: m.NewReading,
			ObservedAt: m.CreatedAt.UTC(),
		})
	}
	return out, nil
}
