// Package postgres implements the domain stores on PostgreSQL through gorm.
package postgres

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// DB owns the gorm connection pool shared by the stores.
type DB struct {
	db *gorm.DB
}

// Open connects to dsn, configures the pool, and migrates the schema.
func Open(dsn string) (*DB, error) {
	gormLogger := logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  logger.Silent,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql db: %w", err)
	}

	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(5 * time.Minute)

	p := &DB{db: db}
	if err := p.migrate(); err != nil {
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return p, nil
}

func (p *DB) migrate() error {
	return p.db.AutoMigrate(
		&readingModel{},
		&newReadingModel{},
		&tagModel{},
		&sensorModel{},
		&sampleModel{},
	)
}

// CheckReadiness pings the database.
func (p *DB) CheckReadiness(ctx context.Context) error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

func (p *DB) Close() error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
