package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLevels(t *testing.T) {
	l := NewLevels(0, 100)
	assert.Equal(t, 0.0, l[0])
	assert.Equal(t, 50.0, l[5])
	assert.Equal(t, 100.0, l[10])

	tests := []struct {
		v    float64
		want int
	}{
		{0, 0},
		{100, 10},
		{49, 5},
		{54, 5},
		{56, 6},
		{5, 0},
		{15, 1},
		{-20, 0},
		{400, 10},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, l.Index(tt.v), "value %v", tt.v)
	}
}

func TestLevels_DegenerateRange(t *testing.T) {
	l := NewLevels(7, 7)
	for _, ref := range l {
		assert.Equal(t, 7.0, ref)
	}
	assert.Equal(t, 0, l.Index(7))
}

func TestBuildHeatmap(t *testing.T) {
	group := []*SensorTimeSeries{
		seriesWith("low", tempVar, map[int]float64{1: 50, 2: 0}),
		seriesWith("high", tempVar, map[int]float64{3: 100}),
		seriesWith("mid", tempVar, map[int]float64{4: 55}),
		seriesWith("other", no2Var, map[int]float64{4: 12}),
	}
	group[0].Append(tempVar, Sample{Timestamp: at(5), Value: -400, Flagged: true})

	geometry := map[string]json.RawMessage{"high": json.RawMessage(`{"type":"Point","coordinates":[1,2]}`)}
	hm, ok, err := BuildHeatmap(group, readingTemp, TimeRange{Start: at(0), End: at(60)}, geometry)
	require.NoError(t, err)
	require.True(t, ok)

	assert.Equal(t, tempVar, hm.Variable)
	assert.Equal(t, 0.0, hm.Min)
	assert.Equal(t, 100.0, hm.Max)
	require.Len(t, hm.Data, 3)

	byID := map[string]HeatmapPoint{}
	for _, p := range hm.Data {
		assert.GreaterOrEqual(t, p.Level, 0)
		assert.LessOrEqual(t, p.Level, 10)
		byID[p.SensorID] = p
	}
	assert.Equal(t, 0, byID["low"].Level)
	assert.Equal(t, 10, byID["high"].Level)
	assert.Equal(t, 5, byID["mid"].Level, "tie between 50 and 60 goes to the lower level")
	assert.JSONEq(t, `{"type":"Point","coordinates":[1,2]}`, string(byID["high"].Geometry))
	assert.Nil(t, byID["low"].Geometry)
}

func TestBuildHeatmap_SingleValue(t *testing.T) {
	group := []*SensorTimeSeries{
		seriesWith("a", tempVar, map[int]float64{1: 21}),
		seriesWith("b", tempVar, map[int]float64{2: 21}),
	}
	hm, ok, err := BuildHeatmap(group, readingTemp, TimeRange{Start: at(0), End: at(60)}, nil)
	require.NoError(t, err)
	require.True(t, ok)
	for _, p := range hm.Data {
		assert.Equal(t, 0, p.Level)
	}
}

func TestBuildHeatmap_NoData(t *testing.T) {
	group := []*SensorTimeSeries{seriesWith("a", tempVar, map[int]float64{90: 1})}

	_, ok, err := BuildHeatmap(group, readingTemp, TimeRange{Start: at(0), End: at(60)}, nil)
	require.NoError(t, err)
	assert.False(t, ok)

	_, _, err = BuildHeatmap(group, readingTemp, TimeRange{Start: at(60), End: at(0)}, nil)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}
