// Command seed loads reading definitions into the database and can publish
// the mock reading fixture to the source topic. Connection settings come from
// the same environment variables as the ingest service.
//
// Usage:
//
//	go run ./cmd/seed \
//	  -readings data/readings.json \
//	  -publish data/mock/sensor_readings.json
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/couchcryptid/sensor-reading-engine/internal/adapter/postgres"
	"github.com/couchcryptid/sensor-reading-engine/internal/config"
	"github.com/couchcryptid/sensor-reading-engine/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	readingsPath := flag.String("readings", "data/readings.json", "path to reading definitions JSON")
	publishPath := flag.String("publish", "", "optional path to raw readings JSON to publish to the source topic")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	defs, err := loadJSON[domain.ReadingDefinition](*readingsPath)
	if err != nil {
		return fmt.Errorf("loading definitions: %w", err)
	}
	// Unnamed or duplicate definitions collapse when indexed.
	reg := domain.NewRegistry(defs)
	if reg.Snapshot().Len() != len(defs) {
		return fmt.Errorf("definitions file has %d entries but only %d are usable", len(defs), reg.Snapshot().Len())
	}

	db, err := postgres.Open(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := postgres.NewReadingStore(db).SaveDefinitions(ctx, defs); err != nil {
		return err
	}
	log.Printf("seeded %d reading definitions", len(defs))

	if *publishPath == "" {
		return nil
	}
	return publish(ctx, cfg, *publishPath)
}

func publish(ctx context.Context, cfg *config.Config, path string) error {
	rows, err := loadJSON[json.RawMessage](path)
	if err != nil {
		return fmt.Errorf("loading readings: %w", err)
	}

	msgs := make([]kafkago.Message, 0, len(rows))
	for i, row := range rows {
		var r struct {
			SensorID string `json:"sensor_id"`
		}
		if err := json.Unmarshal(row, &r); err != nil {
			return fmt.Errorf("reading %d: %w", i, err)
		}
		msgs = append(msgs, kafkago.Message{Key: []byte(r.SensorID), Value: row})
	}

	w := &kafkago.Writer{
		Addr:                   kafkago.TCP(cfg.KafkaBrokers...),
		Topic:                  cfg.KafkaSourceTopic,
		Balancer:               &kafkago.Hash{},
		AllowAutoTopicCreation: true,
	}
	defer w.Close()

	if err := w.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("publishing to %s: %w", cfg.KafkaSourceTopic, err)
	}
	log.Printf("published %d readings to %s", len(msgs), cfg.KafkaSourceTopic)
	return nil
}

func loadJSON[T any](path string) ([]T, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var items []T
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, err
	}
	return items, nil
}
