package postgres

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// TagStore persists the canonical values of tag columns.
type TagStore struct {
	db *gorm.DB
}

func NewTagStore(p *DB) *TagStore {
	return &TagStore{db: p.db}
}

// LoadExisting returns the canonical values recorded for table.tag.
func (s *TagStore) LoadExisting(ctx context.Context, table, tag string) ([]string, error) {
	var values []string
	err := s.db.WithContext(ctx).
		Model(&tagModel{}).
		Where("table_name = ? AND tag = ?", table, tag).
		Order("value").
		Pluck("value", &values).Error
	if err != nil {
		return nil, fmt.Errorf("load tags %s.%s: %w", table, tag, err)
	}
	return values, nil
}

// RecordNew stores a new canonical value. Recording an existing value is a
// no-op.
func (s *TagStore) RecordNew(ctx context.Context, table, tag, value string) error {
	m := tagModel{OwnerTable: table, Tag: tag, Value: value}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&m).Error
	if err != nil {
		return fmt.Errorf("record tag %s.%s=%q: %w", table, tag, value, err)
	}
	return nil
}
