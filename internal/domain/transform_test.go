package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRawEvent(t *testing.T) {
	raw := RawEvent{
		Key: []byte("station-9"),
		Value: []byte(`{
			"sensor_id": "station-1",
			"reading": "temperature",
			"value": 32,
			"unit": "F",
			"timestamp": "2024-03-10T11:00:00Z",
			"attributes": {"site": "roof"}
		}`),
	}

	got, err := ParseRawEvent(raw)
	require.NoError(t, err)

	want := RawReading{
		SensorID:   "station-1",
		Reading:    "temperature",
		Value:      "32",
		Unit:       "F",
		Timestamp:  time.Date(2024, 3, 10, 11, 0, 0, 0, time.UTC),
		Attributes: Attributes{"site": "roof"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("ParseRawEvent mismatch (-want +got):\n%s", diff)
	}
}

func TestParseRawEvent_Fallbacks(t *testing.T) {
	msgTime := time.Date(2024, 3, 10, 12, 30, 0, 0, time.UTC)
	raw := RawEvent{
		Key:       []byte("station-2"),
		Value:     []byte(`{"reading":"level","value":"1.2","unit":"m"}`),
		Timestamp: msgTime,
	}

	got, err := ParseRawEvent(raw)
	require.NoError(t, err)
	assert.Equal(t, "station-2", got.SensorID)
	assert.Equal(t, msgTime, got.Timestamp)
	assert.Equal(t, RawValue("1.2"), got.Value)
}

func TestParseRawEvent_Invalid(t *testing.T) {
	_, err := ParseRawEvent(RawEvent{Value: []byte("not json")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse raw reading")

	_, err = ParseRawEvent(RawEvent{Value: []byte(`{"value":{"nested":1}}`)})
	assert.Error(t, err)
}

func TestSerializeSample(t *testing.T) {
	ingested := time.Date(2024, 3, 10, 12, 0, 5, 0, time.UTC)
	s := NormalizedSample{
		SensorID:   "station-1",
		Variable:   Variable{Name: "temperature", Unit: "C", Theme: "Weather"},
		Sample:     Sample{Timestamp: ingested.Add(-5 * time.Second), Value: 17.78},
		IngestedAt: ingested,
	}

	out, err := SerializeSample(s)
	require.NoError(t, err)
	assert.Equal(t, []byte("station-1"), out.Key)
	assert.Equal(t, "temperature", out.Headers[HeaderReading])
	assert.Equal(t, "C", out.Headers[HeaderUnit])
	assert.Equal(t, "2024-03-10T12:00:05Z", out.Headers[HeaderIngestedAt])
	assert.Equal(t, "false", out.Headers[HeaderFlagged])

	var decoded NormalizedSample
	require.NoError(t, json.Unmarshal(out.Value, &decoded))
	if diff := cmp.Diff(s, decoded); diff != "" {
		t.Fatalf("decoded sample mismatch (-want +got):\n%s", diff)
	}
}
