// Command validate replays the raw reading fixture through the ingestion and
// aggregation code and checks the results for integrity: definitions are
// usable, every reading is either accepted in its canonical unit or rejected
// for a known reason, and group aggregates are internally consistent.
//
// Usage:
//
//	go run ./cmd/validate \
//	  -readings data/readings.json \
//	  -fixture data/mock/sensor_readings.json
package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"math"
	"os"
	"sort"
	"time"

	"github.com/couchcryptid/sensor-reading-engine/internal/domain"
	"github.com/jonboulle/clockwork"
)

var ingestedAt = time.Date(2024, time.April, 27, 6, 0, 0, 0, time.UTC)

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

// replay is the outcome of ingesting the fixture.
type replay struct {
	accepted []domain.NormalizedSample
	rejected map[string]int
	newUnits []domain.NewUnitObserved
}

func main() {
	readingsPath := flag.String("readings", "", "path to reading definitions JSON")
	fixturePath := flag.String("fixture", "", "path to raw readings JSON fixture")
	flag.Parse()

	if *readingsPath == "" || *fixturePath == "" {
		flag.Usage()
		os.Exit(1)
	}

	if code := run(*readingsPath, *fixturePath); code != 0 {
		os.Exit(code)
	}
}

func run(readingsPath, fixturePath string) int {
	domain.SetClock(clockwork.NewFakeClockAt(ingestedAt))
	defer domain.SetClock(nil)

	fmt.Println("=== Sensor Reading Integrity Validation ===")
	fmt.Println()

	defs, err := loadJSON[domain.ReadingDefinition](readingsPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load definitions: %v\n", err)
		return 1
	}
	rows, err := loadJSON[json.RawMessage](fixturePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load fixture: %v\n", err)
		return 1
	}

	registry := domain.NewRegistry(defs)
	result := ingestAll(registry, rows)

	phases := []*phase{
		validateDefinitions(defs),
		validateIngest(registry, rows, result),
		validateAggregates(registry, result.accepted),
	}

	fmt.Println()
	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Printf("  %-42s %s\n", p.name, status)
	}

	fmt.Println()
	fmt.Printf("Readings: %d in fixture, %d accepted, %d rejected, %d new units observed\n",
		len(rows), len(result.accepted), len(rows)-len(result.accepted), len(result.newUnits))
	for _, reason := range sortedKeys(result.rejected) {
		fmt.Printf("  rejected %-24s %d\n", reason, result.rejected[reason])
	}

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Printf("\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Printf("  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Println("\nAll validations passed.")
		return 0
	}
	fmt.Println("\nValidation FAILED.")
	return 1
}

func ingestAll(registry *domain.Registry, rows []json.RawMessage) replay {
	ingestor := domain.NewIngestor(registry, nil)
	out := replay{rejected: map[string]int{}}

	for i, row := range rows {
		raw, err := domain.ParseRawEvent(domain.RawEvent{Value: row, Offset: int64(i)})
		if err != nil {
			out.rejected["decode"]++
			continue
		}
		res, err := ingestor.Ingest(raw)
		var ie *domain.IngestError
		switch {
		case err == nil:
			out.accepted = append(out.accepted, res.Sample)
			if res.NewUnit != nil {
				out.newUnits = append(out.newUnits, *res.NewUnit)
			}
		case errors.As(err, &ie):
			out.rejected[ie.Kind.Error()]++
			if ie.NewUnit != nil {
				out.newUnits = append(out.newUnits, *ie.NewUnit)
			}
		default:
			out.rejected[err.Error()]++
		}
	}
	return out
}

// ── Phase 1: Definitions ──

func validateDefinitions(defs []domain.ReadingDefinition) *phase {
	p := &phase{name: "Phase 1: Reading Definitions"}

	seen := map[string]bool{}
	for _, d := range defs {
		if d.Name == "" {
			p.errorf("definition with empty name")
			continue
		}
		if seen[d.Name] {
			p.errorf("%s: duplicate definition", d.Name)
		}
		seen[d.Name] = true

		if d.CanonicalUnit == "" {
			p.errorf("%s: missing canonical unit", d.Name)
		}
		for unit, factor := range d.Conversions {
			if unit == d.CanonicalUnit {
				p.errorf("%s: conversion listed for canonical unit %q", d.Name, unit)
			}
			if factor <= 0 || math.IsNaN(factor) || math.IsInf(factor, 0) {
				p.errorf("%s: unit %q has non-positive factor %v", d.Name, unit, factor)
			}
		}
		if d.Range.Min != nil && d.Range.Max != nil && *d.Range.Min > *d.Range.Max {
			p.errorf("%s: range min %v exceeds max %v", d.Name, *d.Range.Min, *d.Range.Max)
		}
	}
	return p
}

// ── Phase 2: Ingest ──
// Every accepted sample is canonical, finite, and flagged exactly when it falls
// outside its range. Every rejection has a known reason.

func validateIngest(registry *domain.Registry, rows []json.RawMessage, r replay) *phase {
	p := &phase{name: "Phase 2: Ingest Replay"}

	known := map[string]bool{
		domain.ErrInvalidNumericValue.Error(): true,
		domain.ErrUnknownReading.Error():      true,
		domain.ErrUnconvertibleUnit.Error():   true,
	}
	for reason, n := range r.rejected {
		if !known[reason] {
			p.errorf("%d readings rejected for unexpected reason %q", n, reason)
		}
	}

	total := len(r.accepted)
	for _, n := range r.rejected {
		total += n
	}
	if total != len(rows) {
		p.errorf("accounted for %d readings, fixture has %d", total, len(rows))
	}

	for _, s := range r.accepted {
		def, err := registry.Lookup(s.Variable.Name)
		if err != nil {
			p.errorf("%s: accepted sample for unknown reading %q", s.SensorID, s.Variable.Name)
			continue
		}
		if s.Variable.Unit != def.CanonicalUnit {
			p.errorf("%s/%s: unit %q, want canonical %q", s.SensorID, def.Name, s.Variable.Unit, def.CanonicalUnit)
		}
		if math.IsNaN(s.Sample.Value) || math.IsInf(s.Sample.Value, 0) {
			p.errorf("%s/%s: non-finite value", s.SensorID, def.Name)
		}
		if want := !def.Range.Contains(s.Sample.Value); s.Sample.Flagged != want {
			p.errorf("%s/%s at %s: flagged=%v, want %v", s.SensorID, def.Name,
				s.Sample.Timestamp.Format(time.RFC3339), s.Sample.Flagged, want)
		}
		if !s.IngestedAt.Equal(ingestedAt) {
			p.errorf("%s/%s: ingested_at %s not taken from the clock", s.SensorID, def.Name, s.IngestedAt)
		}
	}
	return p
}

// ── Phase 3: Aggregates ──
// Summaries over the whole fixture window bracket their averages, and bucket
// counts add up to the unflagged samples they cover.

func validateAggregates(registry *domain.Registry, accepted []domain.NormalizedSample) *phase {
	p := &phase{name: "Phase 3: Group Aggregates"}
	if len(accepted) == 0 {
		p.errorf("no accepted samples to aggregate")
		return p
	}

	window := domain.TimeRange{Start: accepted[0].Sample.Timestamp, End: accepted[0].Sample.Timestamp}
	bySensor := map[string]*domain.SensorTimeSeries{}
	for _, s := range accepted {
		if s.Sample.Timestamp.Before(window.Start) {
			window.Start = s.Sample.Timestamp
		}
		if !s.Sample.Timestamp.Before(window.End) {
			window.End = s.Sample.Timestamp.Add(time.Second)
		}
		series, ok := bySensor[s.SensorID]
		if !ok {
			series = domain.NewSensorTimeSeries(s.SensorID)
			bySensor[s.SensorID] = series
		}
		series.Append(s.Variable, s.Sample)
	}
	window.Start = window.Start.Truncate(time.Hour)
	window.End = window.End.Truncate(time.Hour).Add(time.Hour)

	group := make([]*domain.SensorTimeSeries, 0, len(bySensor))
	for _, id := range sortedKeys(bySensor) {
		group = append(group, bySensor[id])
	}

	summaries, err := domain.Summaries(group, window)
	if err != nil {
		p.errorf("summaries: %v", err)
		return p
	}
	for name, s := range summaries {
		if s.Avg < s.Min || s.Avg > s.Max {
			p.errorf("%s: avg %v outside [%v, %v]", name, s.Avg, s.Min, s.Max)
		}
		if s.Count < 1 {
			p.errorf("%s: summary with no contributing sensors", name)
		}
	}

	for _, v := range registry.Variables("") {
		buckets, _, err := domain.GroupBucketedAverages(group, v.Name, window, 15*time.Minute)
		if err != nil {
			p.errorf("%s buckets: %v", v.Name, err)
			continue
		}
		counted := 0
		for _, b := range buckets {
			counted += b.Count
		}
		want := 0
		for _, s := range accepted {
			if s.Variable.Name == v.Name && !s.Sample.Flagged {
				want++
			}
		}
		if counted != want {
			p.errorf("%s: buckets cover %d samples, want %d", v.Name, counted, want)
		}
	}
	return p
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

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
