package domain

import (
	"sort"
	"sync"
	"time"
)

// LatestState is the cache state of a series' latest timestamp.
type LatestState int

const (
	// LatestUncomputed means the latest timestamp has not been computed since
	// the last append.
	LatestUncomputed LatestState = iota
	// LatestEmpty means the series was scanned and holds no samples.
	LatestEmpty
	// LatestKnown means the latest timestamp is cached.
	LatestKnown
)

func (s LatestState) String() string {
	switch s {
	case LatestEmpty:
		return "empty"
	case LatestKnown:
		return "known"
	default:
		return "uncomputed"
	}
}

// latestCache is the tagged cache value: At is meaningful only in LatestKnown.
type latestCache struct {
	state LatestState
	at    time.Time
}

type variableSeries struct {
	variable Variable
	samples  []Sample // ascending by Timestamp
	latest   latestCache
}

// SensorTimeSeries holds the ordered samples of one sensor, per variable name.
// All methods are safe for concurrent use.
type SensorTimeSeries struct {
	sensorID string

	mu   sync.Mutex
	vars map[string]*variableSeries
}

// NewSensorTimeSeries creates an empty series for sensorID.
func NewSensorTimeSeries(sensorID string) *SensorTimeSeries {
	return &SensorTimeSeries{
		sensorID: sensorID,
		vars:     make(map[string]*variableSeries),
	}
}

// SensorID returns the owning sensor.
func (s *SensorTimeSeries) SensorID() string { return s.sensorID }

func (s *SensorTimeSeries) series(v Variable) *variableSeries {
	vs, ok := s.vars[v.Name]
	if !ok {
		vs = &variableSeries{variable: v}
		s.vars[v.Name] = vs
	} else if vs.variable.Unit == "" {
		vs.variable = v
	}
	return vs
}

// Append inserts sample keeping timestamps ascending; samples with equal
// timestamps keep arrival order. It resets the latest cache for the variable.
func (s *SensorTimeSeries) Append(v Variable, sample Sample) {
	s.mu.Lock()
	defer s.mu.Unlock()

	vs := s.series(v)
	i := sort.Search(len(vs.samples), func(i int) bool {
		return vs.samples[i].Timestamp.After(sample.Timestamp)
	})
	vs.samples = append(vs.samples, Sample{})
	copy(vs.samples[i+1:], vs.samples[i:])
	vs.samples[i] = sample
	vs.latest = latestCache{state: LatestUncomputed}
}

// Latest returns the newest sample timestamp of variable, flagged or not. The
// result, including "no data", is cached until the next Append.
func (s *SensorTimeSeries) Latest(variable string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	vs, ok := s.vars[variable]
	if !ok {
		vs = &variableSeries{variable: Variable{Name: variable}}
		s.vars[variable] = vs
	}
	if vs.latest.state == LatestUncomputed {
		vs.latest = computeLatest(vs.samples)
	}
	return vs.latest.at, vs.latest.state == LatestKnown
}

func computeLatest(samples []Sample) latestCache {
	if len(samples) == 0 {
		return latestCache{state: LatestEmpty}
	}
	newest := samples[0].Timestamp
	for _, smp := range samples[1:] {
		if smp.Timestamp.After(newest) {
			newest = smp.Timestamp
		}
	}
	return latestCache{state: LatestKnown, at: newest}
}

// LatestState reports the cache state of variable without computing it.
func (s *SensorTimeSeries) LatestState(variable string) LatestState {
	s.mu.Lock()
	defer s.mu.Unlock()
	if vs, ok := s.vars[variable]; ok {
		return vs.latest.state
	}
	return LatestUncomputed
}

// LatestOverall returns the newest timestamp across all variables.
func (s *SensorTimeSeries) LatestOverall() (time.Time, bool) {
	var newest time.Time
	found := false
	for _, name := range s.VariableNames() {
		if t, ok := s.Latest(name); ok && (!found || t.After(newest)) {
			newest, found = t, true
		}
	}
	return newest, found
}

// SamplesInRange returns the unflagged samples of variable in [start, end),
// ascending by timestamp.
func (s *SensorTimeSeries) SamplesInRange(variable string, r TimeRange) ([]Sample, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	vs, ok := s.vars[variable]
	if !ok {
		return nil, nil
	}
	lo := sort.Search(len(vs.samples), func(i int) bool {
		return !vs.samples[i].Timestamp.Before(r.Start)
	})
	var out []Sample
	for _, smp := range vs.samples[lo:] {
		if !smp.Timestamp.Before(r.End) {
			break
		}
		if smp.Flagged {
			continue
		}
		out = append(out, smp)
	}
	return out, nil
}

// LatestSample returns the newest unflagged sample of variable in r.
func (s *SensorTimeSeries) LatestSample(variable string, r TimeRange) (Sample, bool, error) {
	samples, err := s.SamplesInRange(variable, r)
	if err != nil || len(samples) == 0 {
		return Sample{}, false, err
	}
	return samples[len(samples)-1], true, nil
}

// Variable returns the variable metadata recorded for name.
func (s *SensorTimeSeries) Variable(name string) (Variable, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	vs, ok := s.vars[name]
	if !ok || len(vs.samples) == 0 {
		return Variable{}, false
	}
	return vs.variable, true
}

// VariableNames lists variables that hold at least one sample, sorted.
func (s *SensorTimeSeries) VariableNames() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.vars))
	for name, vs := range s.vars {
		if len(vs.samples) > 0 {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Len returns the number of samples of variable, flagged included.
func (s *SensorTimeSeries) Len(variable string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if vs, ok := s.vars[variable]; ok {
		return len(vs.samples)
	}
	return 0
}
