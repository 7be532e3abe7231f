package domain

import (
	"context"
	"time"
)

// Output message header keys.
const (
	HeaderReading    = "reading"
	HeaderUnit       = "unit"
	HeaderIngestedAt = "ingested_at"
	HeaderFlagged    = "flagged"
)

// RawEvent is an unprocessed message from the source topic carrying one
// JSON-encoded RawReading.
type RawEvent struct {
	Key       []byte
	Value     []byte
	Headers   map[string]string
	Topic     string
	Partition int
	Offset    int64
	Timestamp time.Time
	Commit    func(ctx context.Context) error
}

// OutputEvent is a serialized NormalizedSample destined for the sink topic,
// keyed by sensor ID so each sensor's samples stay ordered within a partition.
type OutputEvent struct {
	Key     []byte
	Value   []byte
	Headers map[string]string
}
