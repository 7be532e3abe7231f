package pipeline

import (
	"context"
	"errors"
	"log/slog"

	"github.com/couchcryptid/sensor-reading-engine/internal/domain"
	"github.com/couchcryptid/sensor-reading-engine/internal/observability"
)

// ReadingTransformer implements Transformer by decoding the message and
// running it through the domain Ingestor. Newly observed reading names and
// units are recorded through the UnitRecorder before Transform returns.
type ReadingTransformer struct {
	ingestor *domain.Ingestor
	recorder domain.UnitRecorder
	logger   *slog.Logger
	metrics  *observability.Metrics
}

// NewTransformer creates a ReadingTransformer. Pass a nil recorder to skip
// recording new units.
func NewTransformer(ingestor *domain.Ingestor, recorder domain.UnitRecorder, logger *slog.Logger, metrics *observability.Metrics) *ReadingTransformer {
	return &ReadingTransformer{
		ingestor: ingestor,
		recorder: recorder,
		logger:   logger,
		metrics:  metrics,
	}
}

func (t *ReadingTransformer) Transform(ctx context.Context, raw domain.RawEvent) (domain.NormalizedSample, error) {
	reading, err := domain.ParseRawEvent(raw)
	if err != nil {
		return domain.NormalizedSample{}, err
	}

	res, err := t.ingestor.Ingest(reading)
	if err != nil {
		var ie *domain.IngestError
		if errors.As(err, &ie) {
			t.recordNewUnit(ctx, ie.NewUnit)
		}
		return domain.NormalizedSample{}, err
	}
	t.recordNewUnit(ctx, res.NewUnit)

	if res.Sample.Sample.Flagged {
		t.metrics.FlaggedSamples.Inc()
		t.logger.Debug("sample outside valid range",
			"sensor_id", res.Sample.SensorID,
			"reading", res.Sample.Variable.Name,
			"value", res.Sample.Sample.Value,
		)
	}
	return res.Sample, nil
}

// recordNewUnit persists an observation. On failure the registry forgets the
// observation so the next sighting retries the write.
func (t *ReadingTransformer) recordNewUnit(ctx context.Context, ev *domain.NewUnitObserved) {
	if ev == nil {
		return
	}
	kind := "new_unit"
	if ev.NewReading {
		kind = "new_reading"
	}
	t.metrics.NewUnitsObserved.WithLabelValues(kind).Inc()
	t.logger.Info("new unit observed", "reading", ev.Reading, "unit", ev.Unit, "new_reading", ev.NewReading)

	if t.recorder == nil {
		return
	}
	if err := t.recorder.RecordNewUnit(ctx, ev.Reading, ev.Unit, ev.NewReading); err != nil {
		t.logger.Warn("record new unit failed", "error", err, "reading", ev.Reading, "unit", ev.Unit)
		t.ingestor.Registry().ForgetObservation(ev.Reading, ev.Unit)
	}
}
