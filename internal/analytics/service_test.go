package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/couchcryptid/sensor-reading-engine/internal/domain"
	"github.com/couchcryptid/sensor-reading-engine/internal/observability"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- mocks ---

type memSampleStore struct {
	mu      sync.Mutex
	rows    []domain.SampleRow
	queries int
	err     error
}

func (m *memSampleStore) Query(_ context.Context, q domain.SampleQuery) ([]domain.SampleRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queries++
	if m.err != nil {
		return nil, m.err
	}
	want := map[string]bool{}
	for _, id := range q.SensorIDs {
		want[id] = true
	}
	var out []domain.SampleRow
	for _, r := range m.rows {
		if want[r.SensorID] && (q.Variable == "" || q.Variable == r.Reading) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memSampleStore) Append(_ context.Context, s domain.NormalizedSample) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows = append(m.rows, domain.SampleRow{
		SensorID:  s.SensorID,
		Reading:   s.Variable.Name,
		Value:     domain.RawValue("0"),
		Unit:      s.Variable.Unit,
		Timestamp: s.Sample.Timestamp,
		Flagged:   s.Sample.Flagged,
	})
	return nil
}

var base = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

func at(minutes int) time.Time { return base.Add(time.Duration(minutes) * time.Minute) }

func day() domain.TimeRange { return domain.TimeRange{Start: base, End: base.Add(24 * time.Hour)} }

func testRegistry() *domain.Registry {
	return domain.NewRegistry([]domain.ReadingDefinition{
		{Name: "temperature", CanonicalUnit: "C", Theme: "Weather", Conversions: map[string]float64{"F": 0.5556}},
		{Name: "level", CanonicalUnit: "m", Theme: "Water", Conversions: map[string]float64{"cm": 0.01}},
	})
}

func row(sensor, reading, value, unit string, minutes int) domain.SampleRow {
	return domain.SampleRow{SensorID: sensor, Reading: reading, Value: domain.RawValue(value), Unit: unit, Timestamp: at(minutes)}
}

func newTestService(store domain.SampleStore) (*Service, *observability.Metrics) {
	metrics := observability.NewMetricsForTesting()
	return NewService(testRegistry(), store, 16, slog.Default(), metrics), metrics
}

// --- tests ---

func TestService_Summaries(t *testing.T) {
	store := &memSampleStore{rows: []domain.SampleRow{
		row("a", "temperature", "10", "C", 10),
		row("a", "temperature", "12", "C", 20),
		row("b", "temperature", "68", "F", 15),
		row("b", "level", "150", "cm", 15),
		row("b", "level", "oops", "cm", 16),
		row("c", "temperature", "99", "C", 60*30),
	}}
	svc, _ := newTestService(store)

	got, err := svc.Summaries(context.Background(), []string{"a", "b", "c"}, day())
	require.NoError(t, err)

	temp := got["temperature"]
	assert.Equal(t, 2, temp.Count)
	assert.InDelta(t, 12, temp.Min, 1e-9)
	assert.InDelta(t, 68*0.5556, temp.Max, 1e-9)

	level := got["level"]
	assert.Equal(t, 1, level.Count)
	assert.InDelta(t, 1.5, level.Avg, 1e-9)
}

func TestService_BucketedAveragesAndLatest(t *testing.T) {
	store := &memSampleStore{rows: []domain.SampleRow{
		row("a", "temperature", "10", "C", 5),
		row("b", "temperature", "20", "C", 50),
		row("b", "temperature", "30", "C", 70),
	}}
	svc, _ := newTestService(store)
	r := domain.TimeRange{Start: at(0), End: at(120)}

	buckets, ok, err := svc.BucketedAverages(context.Background(), []string{"a", "b"}, "temperature", r, time.Hour)
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, buckets, 2)
	assert.InDelta(t, 15, *buckets[0].Average, 1e-9)
	assert.InDelta(t, 30, *buckets[1].Average, 1e-9)

	latest, ok, err := svc.GroupLatest(context.Background(), []string{"a", "b"}, r)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, at(70), latest)

	_, ok, err = svc.BucketedAverages(context.Background(), []string{"a"}, "level", r, time.Hour)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestService_InvalidArguments(t *testing.T) {
	svc, _ := newTestService(&memSampleStore{})
	ctx := context.Background()

	_, _, err := svc.BucketedAverages(ctx, []string{"a"}, "temperature", day(), 0)
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)

	_, err = svc.Summaries(ctx, []string{"a"}, domain.TimeRange{Start: at(10), End: at(0)})
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)

	_, err = svc.Summaries(ctx, nil, day())
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestService_BucketLimitRejectedBeforeLoad(t *testing.T) {
	store := &memSampleStore{rows: []domain.SampleRow{row("a", "temperature", "10", "C", 5)}}
	svc, _ := newTestService(store)

	_, _, err := svc.BucketedAverages(context.Background(), []string{"a"}, "temperature", day(), time.Nanosecond)
	require.ErrorIs(t, err, domain.ErrInvalidArgument)
	assert.Zero(t, store.queries)
}

func TestService_StoreError(t *testing.T) {
	svc, _ := newTestService(&memSampleStore{err: errors.New("connection refused")})

	_, _, err := svc.GroupLatest(context.Background(), []string{"a", "b"}, day())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "query samples for sensor")
}

func TestService_CachesPerSensorAndRange(t *testing.T) {
	store := &memSampleStore{rows: []domain.SampleRow{row("a", "temperature", "10", "C", 5)}}
	svc, metrics := newTestService(store)
	ctx := context.Background()

	_, err := svc.Summaries(ctx, []string{"a", "a", "b"}, day())
	require.NoError(t, err)
	assert.Equal(t, 2, store.queries, "duplicate ids load once")

	_, err = svc.Summaries(ctx, []string{"a", "b"}, day())
	require.NoError(t, err)
	assert.Equal(t, 2, store.queries)

	_, err = svc.Summaries(ctx, []string{"a"}, domain.TimeRange{Start: at(0), End: at(60)})
	require.NoError(t, err)
	assert.Equal(t, 3, store.queries, "different range is a separate entry")

	assert.InDelta(t, 2, testutil.ToFloat64(metrics.SeriesCache.WithLabelValues("hit")), 0)
	assert.InDelta(t, 3, testutil.ToFloat64(metrics.SeriesCache.WithLabelValues("miss")), 0)

	svc.Purge()
	_, err = svc.Summaries(ctx, []string{"a"}, day())
	require.NoError(t, err)
	assert.Equal(t, 4, store.queries)
}

func TestService_TrackUpdatesCachedSeries(t *testing.T) {
	store := &memSampleStore{rows: []domain.SampleRow{row("a", "temperature", "10", "C", 5)}}
	svc, _ := newTestService(store)
	ctx := context.Background()

	group, err := svc.Group(ctx, []string{"a"}, day())
	require.NoError(t, err)
	latest, ok := group[0].Latest("temperature")
	require.True(t, ok)
	assert.Equal(t, at(5), latest)
	assert.Equal(t, domain.LatestKnown, group[0].LatestState("temperature"))

	in := domain.NewIngestor(svc.registry, svc)
	_, err = in.Ingest(domain.RawReading{SensorID: "a", Reading: "temperature", Value: "50", Unit: "F", Timestamp: at(90)})
	require.NoError(t, err)
	assert.Equal(t, domain.LatestUncomputed, group[0].LatestState("temperature"), "ingest resets the cached latest")

	got, ok, err := svc.GroupLatest(ctx, []string{"a"}, day())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, at(90), got)
	assert.Equal(t, 1, store.queries, "served from cache")

	_, err = in.Ingest(domain.RawReading{SensorID: "a", Reading: "temperature", Value: "1", Unit: "C", Timestamp: base.Add(48 * time.Hour)})
	require.NoError(t, err)
	assert.Equal(t, 2, group[0].Len("temperature"), "samples outside the cached range are ignored")
}

func TestService_Heatmap(t *testing.T) {
	store := &memSampleStore{rows: []domain.SampleRow{
		row("a", "level", "100", "cm", 1),
		row("b", "level", "2", "m", 2),
		row("c", "level", "1.5", "m", 3),
	}}
	svc, _ := newTestService(store)
	geom := map[string]json.RawMessage{"c": json.RawMessage(`{"type":"Point","coordinates":[0,51.5]}`)}

	hm, ok, err := svc.Heatmap(context.Background(), []string{"a", "b", "c", "d"}, "level", day(), geom)
	require.NoError(t, err)
	require.True(t, ok)
	assert.InDelta(t, 1, hm.Min, 1e-9)
	assert.InDelta(t, 2, hm.Max, 1e-9)
	require.Len(t, hm.Data, 3)
	assert.Equal(t, "a", hm.Data[0].SensorID)
	assert.Equal(t, 0, hm.Data[0].Level)
	assert.Equal(t, 10, hm.Data[1].Level)
	assert.Equal(t, 5, hm.Data[2].Level)
	assert.NotNil(t, hm.Data[2].Geometry)
}

func TestSeriesCache_Eviction(t *testing.T) {
	c := newSeriesCache(2)
	r := day()

	k1, k2, k3 := newSeriesKey("a", r), newSeriesKey("b", r), newSeriesKey("c", r)
	c.put(k1, domain.NewSensorTimeSeries("a"))
	c.put(k2, domain.NewSensorTimeSeries("b"))

	_, ok := c.get(k1)
	require.True(t, ok)

	c.put(k3, domain.NewSensorTimeSeries("c"))
	assert.Equal(t, 2, c.len())

	_, ok = c.get(k2)
	assert.False(t, ok, "least recently used entry is evicted")
	_, ok = c.get(k1)
	assert.True(t, ok)
}

func TestSeriesCache_PutKeepsFirst(t *testing.T) {
	c := newSeriesCache(4)
	k := newSeriesKey("a", day())
	first := domain.NewSensorTimeSeries("a")

	assert.Same(t, first, c.put(k, first))
	assert.Same(t, first, c.put(k, domain.NewSensorTimeSeries("a")))
}
