package domain

import (
	"encoding/json"
	"math"
)

// LevelCount is the number of reference levels a heatmap variable is binned into.
const LevelCount = 11

// Levels are evenly spaced reference values from min (index 0) to max (index 10).
type Levels [LevelCount]float64

// NewLevels spaces the references (max-min)/10 apart. When max == min every
// reference equals min.
func NewLevels(lo, hi float64) Levels {
	var l Levels
	step := (hi - lo) / float64(LevelCount-1)
	for i := range l {
		l[i] = lo + step*float64(i)
	}
	l[LevelCount-1] = hi
	return l
}

// Index returns the index of the reference nearest to v. Scanning left to
// right, only a strictly smaller distance replaces the current best, so ties
// go to the lower index.
func (l Levels) Index(v float64) int {
	best, bestDist := 0, math.Abs(v-l[0])
	for i := 1; i < len(l); i++ {
		if d := math.Abs(v - l[i]); d < bestDist {
			best, bestDist = i, d
		}
	}
	return best
}

// HeatmapPoint is one contributing sensor. Geometry is the caller-supplied
// handle, passed through untouched.
type HeatmapPoint struct {
	SensorID string          `json:"sensor_id"`
	Level    int             `json:"level"`
	Value    float64         `json:"value"`
	Geometry json.RawMessage `json:"geometry,omitempty"`
}

// Heatmap is the level-binned view of one variable over a group.
type Heatmap struct {
	Variable Variable       `json:"variable"`
	Min      float64        `json:"min"`
	Max      float64        `json:"max"`
	Levels   Levels         `json:"levels"`
	Data     []HeatmapPoint `json:"data"`
}

// BuildHeatmap bins each sensor's latest unflagged value of variable in r.
// Sensors with no such value are left out. The bool is false when no sensor
// contributes.
func BuildHeatmap(group []*SensorTimeSeries, variable string, r TimeRange, geometry map[string]json.RawMessage) (Heatmap, bool, error) {
	if err := r.Validate(); err != nil {
		return Heatmap{}, false, err
	}

	type latest struct {
		sensorID string
		value    float64
	}
	var points []latest
	var meta Variable
	for _, s := range group {
		smp, ok, err := s.LatestSample(variable, r)
		if err != nil {
			return Heatmap{}, false, err
		}
		if !ok {
			continue
		}
		if meta.Name == "" {
			meta, _ = s.Variable(variable)
		}
		points = append(points, latest{sensorID: s.SensorID(), value: smp.Value})
	}
	if len(points) == 0 {
		return Heatmap{}, false, nil
	}

	lo, hi := points[0].value, points[0].value
	for _, p := range points[1:] {
		lo = min(lo, p.value)
		hi = max(hi, p.value)
	}

	levels := NewLevels(lo, hi)
	hm := Heatmap{
		Variable: meta,
		Min:      lo,
		Max:      hi,
		Levels:   levels,
		Data:     make([]HeatmapPoint, 0, len(points)),
	}
	for _, p := range points {
		hm.Data = append(hm.Data, HeatmapPoint{
			SensorID: p.sensorID,
			Level:    levels.Index(p.value),
			Value:    p.value,
			Geometry: geometry[p.sensorID],
		})
	}
	return hm, true, nil
}
