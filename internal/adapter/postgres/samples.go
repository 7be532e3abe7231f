package postgres

import (
	"context"
	"fmt"

	"github.com/couchcryptid/sensor-reading-engine/internal/domain"
	"gorm.io/gorm"
)

const insertBatchSize = 500

// SampleStore persists normalized samples and serves range queries over them.
type SampleStore struct {
	db *gorm.DB
}

func NewSampleStore(p *DB) *SampleStore {
	return &SampleStore{db: p.db}
}

// Query returns rows for the requested sensors whose timestamps fall in
// [Start, End), ordered by sensor and time.
func (s *SampleStore) Query(ctx context.Context, q domain.SampleQuery) ([]domain.SampleRow, error) {
	if len(q.SensorIDs) == 0 {
		return nil, nil
	}

	tx := s.db.WithContext(ctx).
		Where("sensor_id IN ?", q.SensorIDs).
		Where("timestamp >= ? AND timestamp < ?", q.Range.Start.UTC(), q.Range.End.UTC())
	if q.Variable != "" {
		tx = tx.Where("reading = ?", q.Variable)
	}

	var models []sampleModel
	if err := tx.Order("sensor_id, timestamp").Find(&models).Error; err != nil {
		return nil, fmt.Errorf("query samples: %w", err)
	}

	rows := make([]domain.SampleRow, 0, len(models))
	for _, m := range models {
		rows = append(rows, m.toRow())
	}
	return rows, nil
}

// Append stores a single sample.
func (s *SampleStore) Append(ctx context.Context, sample domain.NormalizedSample) error {
	m := sampleFromDomain(sample)
	if err := s.db.WithContext(ctx).Create(&m).Error; err != nil {
		return fmt.Errorf("append sample for %s: %w", sample.SensorID, err)
	}
	return nil
}

// LoadBatch stores samples in one transaction so a failed batch is retried
// whole.
func (s *SampleStore) LoadBatch(ctx context.Context, samples []domain.NormalizedSample) error {
	if len(samples) == 0 {
		return nil
	}
	models := make([]sampleModel, 0, len(samples))
	for _, sample := range samples {
		models = append(models, sampleFromDomain(sample))
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.CreateInBatches(&models, insertBatchSize).Error; err != nil {
			return fmt.Errorf("insert %d samples: %w", len(models), err)
		}
		return nil
	})
}
