package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// ParseRawEvent decodes a RawEvent's value into a RawReading. A missing
// sensor_id falls back to the message key and a missing timestamp to the
// message time.
func ParseRawEvent(raw RawEvent) (RawReading, error) {
	var rec RawReading
	if err := json.Unmarshal(raw.Value, &rec); err != nil {
		return RawReading{}, fmt.Errorf("parse raw reading: %w", err)
	}
	if rec.SensorID == "" {
		rec.SensorID = string(raw.Key)
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = raw.Timestamp
	}
	return rec, nil
}

// SerializeSample encodes a NormalizedSample for the sink topic.
func SerializeSample(s NormalizedSample) (OutputEvent, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return OutputEvent{}, fmt.Errorf("serialize sample: %w", err)
	}
	return OutputEvent{
		Key:   []byte(s.SensorID),
		Value: data,
		Headers: map[string]string{
			HeaderReading:    s.Variable.Name,
			HeaderUnit:       s.Variable.Unit,
			HeaderIngestedAt: s.IngestedAt.Format(time.RFC3339),
			HeaderFlagged:    strconv.FormatBool(s.Sample.Flagged),
		},
	}, nil
}
