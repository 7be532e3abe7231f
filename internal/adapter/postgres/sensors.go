package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/couchcryptid/sensor-reading-engine/internal/domain"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SensorStore persists sensor metadata.
type SensorStore struct {
	db *gorm.DB
}

func NewSensorStore(p *DB) *SensorStore {
	return &SensorStore{db: p.db}
}

// Upsert creates the sensor, or updates the existing sensor with the same
// name. A new sensor without an ID is assigned one.
func (s *SensorStore) Upsert(ctx context.Context, info domain.SensorInfo) (domain.SensorInfo, error) {
	var stored sensorModel
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing sensorModel
		result := tx.Where("name = ?", info.Name).First(&existing)

		switch {
		case result.Error == nil:
			updates := map[string]any{
				"type":       info.Type,
				"source":     info.Source,
				"active":     info.Active,
				"geometry":   rawJSON(info.Geometry),
				"attributes": stringMap(info.Attributes),
			}
			if err := tx.Model(&existing).Updates(updates).Error; err != nil {
				return err
			}
			return tx.Where("id = ?", existing.ID).First(&stored).Error

		case errors.Is(result.Error, gorm.ErrRecordNotFound):
			stored = sensorFromDomain(info)
			if stored.ID == "" {
				stored.ID = uuid.NewString()
			}
			return tx.Create(&stored).Error

		default:
			return result.Error
		}
	})
	if err != nil {
		return domain.SensorInfo{}, fmt.Errorf("upsert sensor %q: %w", info.Name, err)
	}
	return stored.toDomain(), nil
}

// FindByName returns the sensor with the given name.
func (s *SensorStore) FindByName(ctx context.Context, name string) (domain.SensorInfo, error) {
	var m sensorModel
	if err := s.db.WithContext(ctx).Where("name = ?", name).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.SensorInfo{}, fmt.Errorf("sensor %q: %w", name, domain.ErrNotFound)
		}
		return domain.SensorInfo{}, fmt.Errorf("find sensor %q: %w", name, err)
	}
	return m.toDomain(), nil
}
