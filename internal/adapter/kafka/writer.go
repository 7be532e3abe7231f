package kafka

import (
	"context"
	"log/slog"

	"github.com/couchcryptid/sensor-reading-engine/internal/config"
	"github.com/couchcryptid/sensor-reading-engine/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
)

// Writer produces normalized samples to a Kafka topic.
// It implements pipeline.BatchLoader.
type Writer struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for the configured sink topic. Messages
// are hashed by key so a sensor's samples land on one partition.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaSinkTopic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Writer{writer: w, logger: logger}
}

// LoadBatch serializes and publishes samples in a single WriteMessages call.
func (w *Writer) LoadBatch(ctx context.Context, samples []domain.NormalizedSample) error {
	if len(samples) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(samples))
	for i := range samples {
		msg, err := serializeToMessage(samples[i])
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	return w.writer.WriteMessages(ctx, msgs...)
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeToMessage converts a sample into a Kafka message with headers in a
// stable order.
func serializeToMessage(sample domain.NormalizedSample) (kafkago.Message, error) {
	out, err := domain.SerializeSample(sample)
	if err != nil {
		return kafkago.Message{}, err
	}
	headers := make([]kafkago.Header, 0, len(out.Headers))
	for _, key := range []string{domain.HeaderReading, domain.HeaderUnit, domain.HeaderIngestedAt, domain.HeaderFlagged} {
		if v, ok := out.Headers[key]; ok {
			headers = append(headers, kafkago.Header{Key: key, Value: []byte(v)})
		}
	}
	return kafkago.Message{
		Key:     out.Key,
		Value:   out.Value,
		Headers: headers,
	}, nil
}
