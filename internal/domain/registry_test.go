package domain

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	readingTemp = "temperature"
	readingNO2  = "no2"
)

func testDefinitions() []ReadingDefinition {
	maxNO2 := 2000.0
	minNO2 := 0.0
	return []ReadingDefinition{
		{
			Name:          readingTemp,
			CanonicalUnit: "C",
			Theme:         "Weather",
			Conversions:   map[string]float64{"F": 0.5556},
		},
		{
			Name:          readingNO2,
			CanonicalUnit: "ugm3",
			Theme:         "Air Quality",
			Conversions:   map[string]float64{"ppb": 1.88, "mgm3": 1000},
			Range:         ValidRange{Min: &minNO2, Max: &maxNO2},
		},
		{
			Name:          "level",
			CanonicalUnit: "m",
			Theme:         "Water",
		},
	}
}

type stubDefinitionStore struct {
	defs    []ReadingDefinition
	err     error
	loads   int
	records []NewUnitObserved
}

func (s *stubDefinitionStore) LoadAll(_ context.Context) ([]ReadingDefinition, error) {
	s.loads++
	return s.defs, s.err
}

func (s *stubDefinitionStore) RecordNewUnit(_ context.Context, reading, unit string, newReading bool) error {
	s.records = append(s.records, NewUnitObserved{Reading: reading, Unit: unit, NewReading: newReading})
	return nil
}

func TestRegistry_Convert(t *testing.T) {
	reg := NewRegistry(testDefinitions())

	tests := []struct {
		name    string
		reading string
		value   RawValue
		unit    string
		wantOK  bool
		want    float64
		wantErr error
	}{
		{"canonical unit passes through", readingTemp, "21.5", "C", true, 21.5, nil},
		{"table unit multiplies", readingTemp, "32", "F", true, 32 * 0.5556, nil},
		{"second table unit", readingNO2, "0.05", "mgm3", true, 50, nil},
		{"whitespace around value", readingTemp, " 4 ", "C", true, 4, nil},
		{"non numeric value", readingTemp, "abc", "C", false, 0, ErrInvalidNumericValue},
		{"empty value", readingTemp, "", "C", false, 0, ErrInvalidNumericValue},
		{"NaN rejected", readingTemp, "NaN", "C", false, 0, ErrInvalidNumericValue},
		{"unknown reading", "pm25", "12", "ugm3", false, 0, ErrUnknownReading},
		{"unknown unit", readingTemp, "290", "K", false, 0, ErrUnconvertibleUnit},
		{"no transitive conversion", readingNO2, "1", "ppm", false, 0, ErrUnconvertibleUnit},
		{"unit match is exact", readingTemp, "10", "c", false, 0, ErrUnconvertibleUnit},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := reg.Convert(tt.reading, tt.value, tt.unit)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.InDelta(t, tt.want, got, 1e-9)
			}

			_, err := reg.ConvertValue(tt.reading, tt.value, tt.unit)
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestRegistry_ConversionProperties(t *testing.T) {
	defs := testDefinitions()
	reg := NewRegistry(defs)
	values := []RawValue{"0", "1", "-3.5", "1e3", "17.25"}

	for _, d := range defs {
		for _, v := range values {
			f, err := v.Float()
			require.NoError(t, err)

			got, ok := reg.Convert(d.Name, v, d.CanonicalUnit)
			require.True(t, ok, "identity %s %s", d.Name, v)
			assert.Equal(t, f, got)

			for unit, factor := range d.Conversions {
				got, ok := reg.Convert(d.Name, v, unit)
				require.True(t, ok, "table %s %s", d.Name, unit)
				assert.Equal(t, f*factor, got)
			}

			_, ok = reg.Convert(d.Name, v, "no-such-unit")
			assert.False(t, ok)
		}
	}
}

func TestRegistry_ScenarioFahrenheit(t *testing.T) {
	reg := NewRegistry(testDefinitions())

	got, ok := reg.Convert(readingTemp, "32", "F")
	require.True(t, ok)
	assert.InDelta(t, 17.78, got, 0.01)

	_, ok = reg.Convert(readingTemp, "abc", "C")
	assert.False(t, ok)
}

func TestRegistry_Lookup(t *testing.T) {
	reg := NewRegistry(testDefinitions())

	def, err := reg.Lookup(readingNO2)
	require.NoError(t, err)
	assert.Equal(t, "ugm3", def.CanonicalUnit)
	assert.Equal(t, []string{"ugm3", "mgm3", "ppb"}, def.Units())

	_, err = reg.Lookup("pm10")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownReading)
	assert.Contains(t, err.Error(), "pm10")

	assert.Nil(t, reg.KnownUnits("pm10"))
	assert.Equal(t, []string{"C", "F"}, reg.KnownUnits(readingTemp))
}

func TestRegistry_SnapshotIsolatedFromCaller(t *testing.T) {
	defs := testDefinitions()
	reg := NewRegistry(defs)

	defs[0].Conversions["K"] = 1
	_, ok := reg.Convert(readingTemp, "1", "K")
	assert.False(t, ok, "mutating the input slice must not change the registry")
}

func TestRegistry_Reload(t *testing.T) {
	store := &stubDefinitionStore{defs: testDefinitions()}
	reg, err := LoadRegistry(context.Background(), store)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), reg.Version())

	_, ok := reg.Convert(readingTemp, "300", "K")
	assert.False(t, ok)

	store.defs = append(testDefinitions(), ReadingDefinition{Name: "pm25", CanonicalUnit: "ugm3"})
	store.defs[0].Conversions = map[string]float64{"F": 0.5556, "K": 1}
	version, err := reg.Reload(context.Background(), store)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), version)

	_, ok = reg.Convert(readingTemp, "300", "K")
	assert.True(t, ok)
	_, err = reg.Lookup("pm25")
	assert.NoError(t, err)

	store.err = errors.New("db down")
	version, err = reg.Reload(context.Background(), store)
	require.Error(t, err)
	assert.Equal(t, uint64(2), version, "failed reload keeps the current snapshot")
	_, err = reg.Lookup("pm25")
	assert.NoError(t, err)
}

func TestLoadRegistry_StoreError(t *testing.T) {
	_, err := LoadRegistry(context.Background(), &stubDefinitionStore{err: errors.New("boom")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load reading definitions")
}

func TestRegistry_ObserveUnit(t *testing.T) {
	fixed := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	SetClock(clockwork.NewFakeClockAt(fixed))
	t.Cleanup(func() { SetClock(nil) })

	reg := NewRegistry(testDefinitions())

	_, novel := reg.ObserveUnit(readingTemp, "C")
	assert.False(t, novel, "canonical unit is known")
	_, novel = reg.ObserveUnit(readingTemp, "F")
	assert.False(t, novel, "table unit is known")

	ev, novel := reg.ObserveUnit(readingTemp, "K")
	require.True(t, novel)
	assert.Equal(t, NewUnitObserved{Reading: readingTemp, Unit: "K", NewReading: false, ObservedAt: fixed}, ev)

	_, novel = reg.ObserveUnit(readingTemp, "K")
	assert.False(t, novel, "reported once")

	ev, novel = reg.ObserveUnit("pm25", "ugm3")
	require.True(t, novel)
	assert.True(t, ev.NewReading)

	reg.ForgetObservation("pm25", "ugm3")
	_, novel = reg.ObserveUnit("pm25", "ugm3")
	assert.True(t, novel, "forgotten pair is reported again")
}

func TestRegistry_ObserveUnitConcurrent(t *testing.T) {
	reg := NewRegistry(testDefinitions())

	var wg sync.WaitGroup
	var mu sync.Mutex
	reports := 0
	for range 64 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, novel := reg.ObserveUnit("pm25", "ugm3"); novel {
				mu.Lock()
				reports++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, reports)
}

func TestRegistry_ObserveUnitKnownSharesLock(t *testing.T) {
	reg := NewRegistry(testDefinitions())
	_, _ = reg.ObserveUnit(readingTemp, "K")

	// Another reader holds the lock; known and already reported pairs must
	// not wait for it.
	reg.mu.RLock()
	defer reg.mu.RUnlock()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for range 1000 {
			_, novel := reg.ObserveUnit(readingTemp, "F")
			assert.False(t, novel)
			_, novel = reg.ObserveUnit(readingTemp, "K")
			assert.False(t, novel)
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("ObserveUnit blocked on a known unit")
	}
}

func TestRegistry_ThemesAndVariables(t *testing.T) {
	reg := NewRegistry(testDefinitions())

	assert.Equal(t, []string{"Air Quality", "Water", "Weather"}, reg.Themes())

	all := reg.Variables("")
	require.Len(t, all, 3)
	assert.Equal(t, "level", all[0].Name)

	weather := reg.Variables("Weather")
	assert.Equal(t, []Variable{{Name: readingTemp, Unit: "C", Theme: "Weather"}}, weather)
}

func TestRawValue_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want RawValue
	}{
		{"number", `12.5`, "12.5"},
		{"string", `"12.5"`, "12.5"},
		{"garbage string kept", `"n/a"`, "n/a"},
		{"null", `null`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var v RawValue
			require.NoError(t, v.UnmarshalJSON([]byte(tt.in)))
			assert.Equal(t, tt.want, v)
		})
	}

	var v RawValue
	assert.Error(t, v.UnmarshalJSON([]byte(`{}`)))
}

func TestReadingDefinition_RangeOmittedWhenOpen(t *testing.T) {
	open, err := json.Marshal(ReadingDefinition{Name: "pm25", CanonicalUnit: "ugm3"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"pm25","canonical_unit":"ugm3"}`, string(open))

	hi := 500.0
	bounded, err := json.Marshal(ReadingDefinition{Name: "pm25", CanonicalUnit: "ugm3", Range: ValidRange{Max: &hi}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"pm25","canonical_unit":"ugm3","range":{"max":500}}`, string(bounded))
}
