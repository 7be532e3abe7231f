package domain

import (
	"sort"
	"time"
)

// GroupLatest returns the newest timestamp across every (sensor, variable)
// series in the group, or false when the group holds no data.
func GroupLatest(group []*SensorTimeSeries) (time.Time, bool) {
	var newest time.Time
	found := false
	for _, s := range group {
		if t, ok := s.LatestOverall(); ok && (!found || t.After(newest)) {
			newest, found = t, true
		}
	}
	return newest, found
}

// Bucket is one fixed-width slice [Start, End) of a bucketed average. Average
// is nil when no sample fell in the bucket.
type Bucket struct {
	Start   time.Time `json:"start"`
	End     time.Time `json:"end"`
	Average *float64  `json:"average"`
	Count   int       `json:"count"`
}

// MaxBuckets caps how many buckets one bucketed average may span.
const MaxBuckets = 10000

// ValidateBuckets checks r and width before any bucketing work: the range must
// be valid, width positive, and the range may span at most MaxBuckets buckets.
func ValidateBuckets(r TimeRange, width time.Duration) error {
	if err := r.Validate(); err != nil {
		return err
	}
	if width <= 0 {
		return invalidArgument("bucket width %s must be positive", width)
	}
	if n := r.End.Sub(r.Start) / width; n > MaxBuckets {
		return invalidArgument("bucket width %s over %s yields %d buckets, limit is %d",
			width, r.End.Sub(r.Start), int64(n), MaxBuckets)
	}
	return nil
}

// BucketedAverages averages samples over consecutive buckets of width starting
// at r.Start. A trailing bucket that would extend past r.End is dropped. Flagged
// samples are ignored. The bool is false when every bucket is empty.
func BucketedAverages(samples []Sample, r TimeRange, width time.Duration) ([]Bucket, bool, error) {
	if err := ValidateBuckets(r, width); err != nil {
		return nil, false, err
	}

	var buckets []Bucket
	for t := r.Start; !t.Add(width).After(r.End); t = t.Add(width) {
		buckets = append(buckets, Bucket{Start: t, End: t.Add(width)})
	}
	if len(buckets) == 0 {
		return nil, false, nil
	}

	sums := make([]float64, len(buckets))
	covered := TimeRange{Start: r.Start, End: buckets[len(buckets)-1].End}
	for _, smp := range samples {
		if smp.Flagged || !covered.Contains(smp.Timestamp) {
			continue
		}
		i := int(smp.Timestamp.Sub(r.Start) / width)
		sums[i] += smp.Value
		buckets[i].Count++
	}

	hasData := false
	for i := range buckets {
		if buckets[i].Count == 0 {
			continue
		}
		avg := sums[i] / float64(buckets[i].Count)
		buckets[i].Average = &avg
		hasData = true
	}
	if !hasData {
		return nil, false, nil
	}
	return buckets, true, nil
}

// GroupBucketedAverages pools the unflagged samples of variable from every
// sensor in the group and buckets them.
func GroupBucketedAverages(group []*SensorTimeSeries, variable string, r TimeRange, width time.Duration) ([]Bucket, bool, error) {
	if err := r.Validate(); err != nil {
		return nil, false, err
	}
	var pooled []Sample
	for _, s := range group {
		samples, err := s.SamplesInRange(variable, r)
		if err != nil {
			return nil, false, err
		}
		pooled = append(pooled, samples...)
	}
	return BucketedAverages(pooled, r, width)
}

// Summary holds statistics of one variable over a group. Each contributing
// sensor adds its latest unflagged value in the range; Count is the number of
// contributing sensors and Avg is Sum/Count.
type Summary struct {
	Variable Variable `json:"variable"`
	Min      float64  `json:"min"`
	Max      float64  `json:"max"`
	Avg      float64  `json:"avg"`
	Count    int      `json:"count"`
}

// Summaries computes a Summary per variable present in the group within r.
// Variables with no unflagged sample in range are omitted.
func Summaries(group []*SensorTimeSeries, r TimeRange) (map[string]Summary, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}

	type acc struct {
		variable Variable
		values   []float64
	}
	pools := map[string]*acc{}
	for _, s := range group {
		for _, name := range s.VariableNames() {
			smp, ok, err := s.LatestSample(name, r)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
			a, exists := pools[name]
			if !exists {
				v, _ := s.Variable(name)
				a = &acc{variable: v}
				pools[name] = a
			}
			a.values = append(a.values, smp.Value)
		}
	}

	out := make(map[string]Summary, len(pools))
	for name, a := range pools {
		out[name] = summarize(a.variable, a.values)
	}
	return out, nil
}

func summarize(v Variable, values []float64) Summary {
	s := Summary{Variable: v, Min: values[0], Max: values[0], Count: len(values)}
	sum := 0.0
	for _, x := range values {
		s.Min = min(s.Min, x)
		s.Max = max(s.Max, x)
		sum += x
	}
	s.Avg = sum / float64(len(values))
	return s
}

// SortedVariables returns the keys of a summary map in name order.
func SortedVariables(summaries map[string]Summary) []string {
	names := make([]string, 0, len(summaries))
	for name := range summaries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
