package pipeline

import (
	"context"
	"fmt"

	"github.com/couchcryptid/sensor-reading-engine/internal/domain"
	"golang.org/x/sync/errgroup"
)

// NamedLoader pairs a BatchLoader with a name used in error messages.
type NamedLoader struct {
	Name   string
	Loader BatchLoader
}

// FanOutLoader writes each batch to every destination concurrently. The batch
// fails if any destination fails, so offsets are not committed and the
// messages are retried.
type FanOutLoader struct {
	loaders []NamedLoader
}

// NewFanOutLoader creates a loader over the given destinations.
func NewFanOutLoader(loaders ...NamedLoader) *FanOutLoader {
	return &FanOutLoader{loaders: loaders}
}

func (f *FanOutLoader) LoadBatch(ctx context.Context, samples []domain.NormalizedSample) error {
	if len(samples) == 0 {
		return nil
	}
	g, gctx := errgroup.WithContext(ctx)
	for _, l := range f.loaders {
		g.Go(func() error {
			if err := l.Loader.LoadBatch(gctx, samples); err != nil {
				return fmt.Errorf("load %s: %w", l.Name, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// TrackingLoader hands every sample of a batch to a tracker once the wrapped
// loader has stored it. A failed batch is not tracked; its redelivery is.
type TrackingLoader struct {
	loader  BatchLoader
	tracker domain.SeriesTracker
}

// NewTrackingLoader wraps loader so successful batches reach tracker.
func NewTrackingLoader(loader BatchLoader, tracker domain.SeriesTracker) *TrackingLoader {
	return &TrackingLoader{loader: loader, tracker: tracker}
}

func (t *TrackingLoader) LoadBatch(ctx context.Context, samples []domain.NormalizedSample) error {
	if err := t.loader.LoadBatch(ctx, samples); err != nil {
		return err
	}
	for _, s := range samples {
		t.tracker.Track(s)
	}
	return nil
}
