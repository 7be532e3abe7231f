package domain

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// ReadingDefinitionStore is the external source of reading definitions.
type ReadingDefinitionStore interface {
	LoadAll(ctx context.Context) ([]ReadingDefinition, error)
	UnitRecorder
}

// UnitRecorder persists advisory reports of unseen reading names and units.
type UnitRecorder interface {
	RecordNewUnit(ctx context.Context, reading, unit string, newReading bool) error
}

// Snapshot is an immutable, versioned view of the reading definitions.
type Snapshot struct {
	version uint64
	defs    map[string]ReadingDefinition
}

// Version increases by one on every load.
func (s *Snapshot) Version() uint64 { return s.version }

// Lookup returns the definition for name.
func (s *Snapshot) Lookup(name string) (ReadingDefinition, bool) {
	d, ok := s.defs[name]
	return d, ok
}

// Len returns the number of definitions.
func (s *Snapshot) Len() int { return len(s.defs) }

// Registry holds the current reading definitions and owns all conversion logic.
// Reads go through an immutable snapshot; Reload swaps it under the write lock.
type Registry struct {
	mu   sync.RWMutex
	snap *Snapshot

	// reported tracks (reading, unit) pairs already surfaced as NewUnitObserved,
	// so concurrent ingestion reports each pair once per process.
	reported map[unitKey]struct{}
}

type unitKey struct {
	reading string
	unit    string
}

// NewRegistry builds a registry at version 1 from defs. Later entries win on
// duplicate names.
func NewRegistry(defs []ReadingDefinition) *Registry {
	r := &Registry{reported: make(map[unitKey]struct{})}
	r.snap = buildSnapshot(1, defs)
	return r
}

// LoadRegistry builds a registry from the store.
func LoadRegistry(ctx context.Context, store ReadingDefinitionStore) (*Registry, error) {
	defs, err := store.LoadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("load reading definitions: %w", err)
	}
	return NewRegistry(defs), nil
}

func buildSnapshot(version uint64, defs []ReadingDefinition) *Snapshot {
	m := make(map[string]ReadingDefinition, len(defs))
	for _, d := range defs {
		if d.Name == "" {
			continue
		}
		m[d.Name] = d.clone()
	}
	return &Snapshot{version: version, defs: m}
}

// Reload replaces the definitions with a fresh load from the store. On error the
// current snapshot stays in place. Returns the new version.
func (r *Registry) Reload(ctx context.Context, store ReadingDefinitionStore) (uint64, error) {
	defs, err := store.LoadAll(ctx)
	if err != nil {
		return r.Version(), fmt.Errorf("reload reading definitions: %w", err)
	}
	return r.Replace(defs), nil
}

// Replace installs defs as the next snapshot version and returns it.
func (r *Registry) Replace(defs []ReadingDefinition) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snap = buildSnapshot(r.snap.version+1, defs)
	return r.snap.version
}

// Snapshot returns the current snapshot.
func (r *Registry) Snapshot() *Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snap
}

// Version returns the current snapshot version.
func (r *Registry) Version() uint64 {
	return r.Snapshot().version
}

// Lookup returns the definition for name or ErrUnknownReading.
func (r *Registry) Lookup(name string) (ReadingDefinition, error) {
	d, ok := r.Snapshot().Lookup(name)
	if !ok {
		return ReadingDefinition{}, fmt.Errorf("%w: %q", ErrUnknownReading, name)
	}
	return d, nil
}

// Convert parses value and converts it from unit into the canonical unit of
// the reading. It reports false for unparseable values, unknown readings, and
// units that are neither canonical nor in the conversion table.
func (r *Registry) Convert(reading string, value RawValue, unit string) (float64, bool) {
	v, err := r.ConvertValue(reading, value, unit)
	return v, err == nil
}

// ConvertValue is Convert with the failure kind: ErrInvalidNumericValue,
// ErrUnknownReading or ErrUnconvertibleUnit.
func (r *Registry) ConvertValue(reading string, value RawValue, unit string) (float64, error) {
	f, err := value.Float()
	if err != nil {
		return 0, err
	}
	def, ok := r.Snapshot().Lookup(reading)
	if !ok {
		return 0, ErrUnknownReading
	}
	v, ok := def.Convert(f, unit)
	if !ok {
		return 0, ErrUnconvertibleUnit
	}
	return v, nil
}

// KnownUnits returns the canonical unit and all convertible units of reading,
// or nil when the reading is unknown.
func (r *Registry) KnownUnits(reading string) []string {
	def, ok := r.Snapshot().Lookup(reading)
	if !ok {
		return nil
	}
	return def.Units()
}

// ObserveUnit checks whether (reading, unit) is novel against the current
// snapshot. A novel pair is reported once: the first caller gets the event and
// true, every later caller gets false.
func (r *Registry) ObserveUnit(reading, unit string) (NewUnitObserved, bool) {
	key := unitKey{reading: reading, unit: unit}

	r.mu.RLock()
	seen := r.seenLocked(key)
	r.mu.RUnlock()
	if seen {
		return NewUnitObserved{}, false
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	// Reload or another caller may have got here first.
	if r.seenLocked(key) {
		return NewUnitObserved{}, false
	}
	_, known := r.snap.Lookup(reading)
	r.reported[key] = struct{}{}
	return NewUnitObserved{
		Reading:    reading,
		Unit:       unit,
		NewReading: !known,
		ObservedAt: clock.Now().UTC(),
	}, true
}

// seenLocked reports whether key is a known unit or was already reported.
// The caller holds r.mu.
func (r *Registry) seenLocked(key unitKey) bool {
	if def, ok := r.snap.Lookup(key.reading); ok && def.HasUnit(key.unit) {
		return true
	}
	_, done := r.reported[key]
	return done
}

// ForgetObservation clears the reported mark for (reading, unit) so the pair is
// reported again on next sight. Used when recording the observation failed.
func (r *Registry) ForgetObservation(reading, unit string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.reported, unitKey{reading: reading, unit: unit})
}

// Themes lists the distinct non-empty themes, sorted.
func (r *Registry) Themes() []string {
	seen := map[string]struct{}{}
	for _, d := range r.Snapshot().defs {
		if d.Theme != "" {
			seen[d.Theme] = struct{}{}
		}
	}
	themes := make([]string, 0, len(seen))
	for t := range seen {
		themes = append(themes, t)
	}
	sort.Strings(themes)
	return themes
}

// Variables lists the variables of the current snapshot sorted by name. A
// non-empty theme filters to that theme.
func (r *Registry) Variables(theme string) []Variable {
	snap := r.Snapshot()
	vars := make([]Variable, 0, len(snap.defs))
	for _, d := range snap.defs {
		if theme != "" && d.Theme != theme {
			continue
		}
		vars = append(vars, d.Variable())
	}
	sort.Slice(vars, func(i, j int) bool { return vars[i].Name < vars[j].Name })
	return vars
}
