// Package analytics answers group-level questions (latest timestamp, bucketed
// averages, summaries, heatmaps) over samples held in a domain.SampleStore.
package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/sensor-reading-engine/internal/domain"
	"github.com/couchcryptid/sensor-reading-engine/internal/observability"
	"golang.org/x/sync/errgroup"
)

// loadConcurrency bounds concurrent per-sensor store queries.
const loadConcurrency = 8

// Service loads sensor series from a SampleStore and runs the domain
// aggregations over them. Loaded series are cached per (sensor, range) and
// kept current by Track.
type Service struct {
	registry *domain.Registry
	store    domain.SampleStore
	cache    *seriesCache
	logger   *slog.Logger
	metrics  *observability.Metrics
}

// NewService creates a Service. cacheSize is the maximum number of cached
// (sensor, range) series.
func NewService(registry *domain.Registry, store domain.SampleStore, cacheSize int, logger *slog.Logger, metrics *observability.Metrics) *Service {
	if cacheSize < 1 {
		cacheSize = 1
	}
	return &Service{
		registry: registry,
		store:    store,
		cache:    newSeriesCache(cacheSize),
		logger:   logger,
		metrics:  metrics,
	}
}

// Track implements domain.SeriesTracker. Cached series covering the sample
// append it, which resets their latest-timestamp cache.
func (s *Service) Track(sample domain.NormalizedSample) {
	s.cache.appendSample(sample)
}

// Purge drops every cached series. Call it after the registry reloads, since
// cached values were converted with the previous definitions.
func (s *Service) Purge() {
	s.cache.purge()
}

// GroupLatest returns the newest sample timestamp of the group within r.
func (s *Service) GroupLatest(ctx context.Context, sensorIDs []string, r domain.TimeRange) (time.Time, bool, error) {
	group, err := s.Group(ctx, sensorIDs, r)
	if err != nil {
		return time.Time{}, false, err
	}
	latest, ok := domain.GroupLatest(group)
	return latest, ok, nil
}

// BucketedAverages averages variable across the group in buckets of width.
func (s *Service) BucketedAverages(ctx context.Context, sensorIDs []string, variable string, r domain.TimeRange, width time.Duration) ([]domain.Bucket, bool, error) {
	if err := domain.ValidateBuckets(r, width); err != nil {
		return nil, false, err
	}
	group, err := s.Group(ctx, sensorIDs, r)
	if err != nil {
		return nil, false, err
	}
	return domain.GroupBucketedAverages(group, variable, r, width)
}

// Summaries computes per-variable statistics for the group.
func (s *Service) Summaries(ctx context.Context, sensorIDs []string, r domain.TimeRange) (map[string]domain.Summary, error) {
	group, err := s.Group(ctx, sensorIDs, r)
	if err != nil {
		return nil, err
	}
	return domain.Summaries(group, r)
}

// Heatmap bins variable for the group. geometry maps sensor IDs to opaque
// geometry handles copied into the output.
func (s *Service) Heatmap(ctx context.Context, sensorIDs []string, variable string, r domain.TimeRange, geometry map[string]json.RawMessage) (domain.Heatmap, bool, error) {
	group, err := s.Group(ctx, sensorIDs, r)
	if err != nil {
		return domain.Heatmap{}, false, err
	}
	return domain.BuildHeatmap(group, variable, r, geometry)
}

// Group returns one series per distinct sensor ID, in first-seen order,
// loading cache misses concurrently.
func (s *Service) Group(ctx context.Context, sensorIDs []string, r domain.TimeRange) ([]*domain.SensorTimeSeries, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	ids := uniqueIDs(sensorIDs)
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: at least one sensor id is required", domain.ErrInvalidArgument)
	}

	group := make([]*domain.SensorTimeSeries, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(loadConcurrency)
	for i, id := range ids {
		key := newSeriesKey(id, r)
		if series, ok := s.cache.get(key); ok {
			s.metrics.SeriesCache.WithLabelValues("hit").Inc()
			group[i] = series
			continue
		}
		s.metrics.SeriesCache.WithLabelValues("miss").Inc()

		g.Go(func() error {
			series, err := s.load(gctx, id, r)
			if err != nil {
				return err
			}
			group[i] = s.cache.put(key, series)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return group, nil
}

func (s *Service) load(ctx context.Context, sensorID string, r domain.TimeRange) (*domain.SensorTimeSeries, error) {
	rows, err := s.store.Query(ctx, domain.SampleQuery{SensorIDs: []string{sensorID}, Range: r})
	if err != nil {
		return nil, fmt.Errorf("query samples for sensor %s: %w", sensorID, err)
	}

	kept := rows[:0:0]
	for _, row := range rows {
		if row.SensorID == sensorID && r.Contains(row.Timestamp) {
			kept = append(kept, row)
		}
	}

	built, dropped := domain.BuildSeries(s.registry, []string{sensorID}, kept)
	if dropped > 0 {
		s.logger.Debug("skipped unconvertible stored samples",
			"sensor_id", sensorID,
			"dropped", dropped,
			"registry_version", s.registry.Version(),
		)
	}
	return built[sensorID], nil
}

func uniqueIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
