package analytics

import (
	"sync"
	"time"

	"github.com/couchcryptid/sensor-reading-engine/internal/domain"
)

// seriesKey identifies a series loaded for one sensor over one time range.
type seriesKey struct {
	sensorID string
	start    int64
	end      int64
}

func newSeriesKey(sensorID string, r domain.TimeRange) seriesKey {
	return seriesKey{sensorID: sensorID, start: r.Start.UnixNano(), end: r.End.UnixNano()}
}

func (k seriesKey) contains(t time.Time) bool {
	n := t.UnixNano()
	return n >= k.start && n < k.end
}

// seriesCache is a thread-safe LRU of loaded sensor series.
type seriesCache struct {
	maxEntries int
	mu         sync.Mutex
	entries    map[seriesKey]*entry
	head       *entry // most recently used
	tail       *entry // least recently used
}

type entry struct {
	key   seriesKey
	value *domain.SensorTimeSeries
	prev  *entry
	next  *entry
}

func newSeriesCache(maxEntries int) *seriesCache {
	return &seriesCache{
		maxEntries: maxEntries,
		entries:    make(map[seriesKey]*entry),
	}
}

func (c *seriesCache) get(key seriesKey) (*domain.SensorTimeSeries, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	c.moveToFront(e)
	return e.value, true
}

// put stores value unless key is already present, and returns the cached
// series. Two concurrent loads of the same key settle on the first one stored.
func (c *seriesCache) put(key seriesKey, value *domain.SensorTimeSeries) *domain.SensorTimeSeries {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		c.moveToFront(e)
		return e.value
	}

	e := &entry{key: key, value: value}
	c.entries[key] = e
	c.addToFront(e)

	if len(c.entries) > c.maxEntries {
		c.evictTail()
	}
	return value
}

// appendSample adds sample to every cached series of its sensor whose range
// covers the sample timestamp, returning how many series were updated.
func (c *seriesCache) appendSample(s domain.NormalizedSample) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for k, e := range c.entries {
		if k.sensorID == s.SensorID && k.contains(s.Sample.Timestamp) {
			e.value.Append(s.Variable, s.Sample)
			n++
		}
	}
	return n
}

func (c *seriesCache) purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[seriesKey]*entry)
	c.head, c.tail = nil, nil
}

func (c *seriesCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *seriesCache) moveToFront(e *entry) {
	if e == c.head {
		return
	}
	c.remove(e)
	c.addToFront(e)
}

func (c *seriesCache) addToFront(e *entry) {
	e.next = c.head
	e.prev = nil
	if c.head != nil {
		c.head.prev = e
	}
	c.head = e
	if c.tail == nil {
		c.tail = e
	}
}

func (c *seriesCache) remove(e *entry) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		c.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		c.tail = e.prev
	}
}

func (c *seriesCache) evictTail() {
	if c.tail == nil {
		return
	}
	delete(c.entries, c.tail.key)
	c.remove(c.tail)
}
