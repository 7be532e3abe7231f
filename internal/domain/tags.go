package domain

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// DefaultTagDistanceThreshold is the edit distance below which a candidate tag
// is treated as a variant of an existing one.
const DefaultTagDistanceThreshold = 4

// TagStore is the external backing store for canonical tag values.
type TagStore interface {
	LoadExisting(ctx context.Context, table, tag string) ([]string, error)
	RecordNew(ctx context.Context, table, tag, value string) error
}

// TagResolution is the outcome of canonicalizing a candidate tag value.
type TagResolution struct {
	IsNew bool
	Value string
}

// CanonicalizeTag matches candidate against existing canonical values. When the
// closest value is within threshold-1 edits it is returned with IsNew false.
// Otherwise the title-cased candidate is returned with IsNew true. Among equally
// close values the first in existing wins.
func CanonicalizeTag(existing []string, candidate string, threshold int) TagResolution {
	best, bestDist := "", -1
	for _, ex := range existing {
		d := Levenshtein(ex, candidate)
		if bestDist < 0 || d < bestDist {
			best, bestDist = ex, d
		}
	}
	if bestDist >= 0 && bestDist < threshold {
		return TagResolution{IsNew: false, Value: best}
	}
	return TagResolution{IsNew: true, Value: TitleCase(candidate)}
}

// TitleCase capitalizes each whitespace-separated word and lowercases the rest,
// collapsing runs of whitespace to a single space.
func TitleCase(s string) string {
	// A Caser keeps state between calls and must not be shared across goroutines.
	caser := cases.Title(language.Und)
	words := strings.Fields(s)
	for i, w := range words {
		words[i] = caser.String(w)
	}
	return strings.Join(words, " ")
}

// Levenshtein returns the unit-cost edit distance between a and b, by rune.
func Levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}

	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}

type tagKey struct {
	table string
	tag   string
}

// tagSet is the canonical values of one (table, tag) pair. mu serializes
// decide-and-register so near-identical concurrent candidates resolve to one value.
type tagSet struct {
	mu     sync.Mutex
	loaded bool
	values []string
}

// Canonicalizer resolves candidate tag values against per-(table, tag) sets
// loaded lazily from a TagStore.
type Canonicalizer struct {
	store     TagStore
	threshold int

	mu   sync.Mutex
	sets map[tagKey]*tagSet
}

// NewCanonicalizer creates a Canonicalizer. A threshold below 1 falls back to
// DefaultTagDistanceThreshold.
func NewCanonicalizer(store TagStore, threshold int) *Canonicalizer {
	if threshold < 1 {
		threshold = DefaultTagDistanceThreshold
	}
	return &Canonicalizer{
		store:     store,
		threshold: threshold,
		sets:      make(map[tagKey]*tagSet),
	}
}

func (c *Canonicalizer) set(table, tag string) *tagSet {
	c.mu.Lock()
	defer c.mu.Unlock()
	k := tagKey{table: table, tag: tag}
	s, ok := c.sets[k]
	if !ok {
		s = &tagSet{}
		c.sets[k] = s
	}
	return s
}

// Resolve canonicalizes candidate for (table, tag). A new value is recorded in
// the store and added to the in-memory set before the lock is released; if the
// store write fails the value is not added and the error is returned.
func (c *Canonicalizer) Resolve(ctx context.Context, table, tag, candidate string) (TagResolution, error) {
	if strings.TrimSpace(candidate) == "" {
		return TagResolution{}, invalidArgument("empty %s.%s tag value", table, tag)
	}

	s := c.set(table, tag)
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.loaded {
		existing, err := c.store.LoadExisting(ctx, table, tag)
		if err != nil {
			return TagResolution{}, fmt.Errorf("load %s.%s tags: %w", table, tag, err)
		}
		s.values = normalizeTagValues(existing)
		s.loaded = true
	}

	res := CanonicalizeTag(s.values, candidate, c.threshold)
	if !res.IsNew {
		return res, nil
	}
	if err := c.store.RecordNew(ctx, table, tag, res.Value); err != nil {
		return TagResolution{}, fmt.Errorf("record %s.%s tag %q: %w", table, tag, res.Value, err)
	}
	s.values = append(s.values, res.Value)
	return res, nil
}

// Values returns a copy of the loaded canonical values for (table, tag).
func (c *Canonicalizer) Values(table, tag string) []string {
	s := c.set(table, tag)
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.values...)
}

// Reload marks every set stale; each is reloaded from the store on next use.
// A set is cleared under its own lock, so Reload waits for a resolution in
// flight on that set and the value it registers is in the store before the
// set reloads.
func (c *Canonicalizer) Reload() {
	c.mu.Lock()
	sets := make([]*tagSet, 0, len(c.sets))
	for _, s := range c.sets {
		sets = append(sets, s)
	}
	c.mu.Unlock()

	for _, s := range sets {
		s.mu.Lock()
		s.loaded = false
		s.values = nil
		s.mu.Unlock()
	}
}

// normalizeTagValues drops blanks and duplicates and sorts so resolution does
// not depend on store ordering.
func normalizeTagValues(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
