// Package domain normalizes free-text-tagged environmental sensor readings and
// aggregates them over sensor groups.
//
// # Readings and Units
//
// Every reading name (e.g. "temperature", "no2") has exactly one canonical unit
// and a table of alternate units with multiplicative factors:
//
//	temperature: canonical "C"
//	no2:         canonical "ugm3", {"ppb": 1.88, "mgm3": 1000}
//
// Conversion is single-hop. A raw unit is accepted only when it equals the
// canonical unit or appears directly in the table; "ppm" is not reachable via
// "ppb" even when both factors are known. Unit strings are compared exactly.
//
// Upstream sensors routinely send malformed or mis-tagged values, so a failed
// conversion is a normal outcome reported through a boolean (see
// [Registry.Convert]) or an [IngestError], never a panic. When a reading arrives
// with a reading name or unit the registry has never seen, the ingestor reports
// a [NewUnitObserved] so the definitions store can queue it for review.
//
// # Quality Flags
//
// A definition may carry a [ValidRange] in canonical units. Samples outside the
// range are kept but marked flagged; flagged samples never reach summaries,
// bucket averages, or heatmaps.
//
// # Tags
//
// Sensor metadata such as "type" and "source" is free text typed by humans.
// [CanonicalizeTag] folds near-duplicates ("river", "rivers", "Rivr") onto the
// existing spelling when the Levenshtein distance is below the threshold
// (default 4). Anything further away becomes a new tag, title-cased
// ("water quality" -> "Water Quality").
//
// # Latest Value Caching
//
// [SensorTimeSeries] caches the latest timestamp per variable in one of three
// states: uncomputed, empty (no data), or a value. Appending a sample resets the
// state to uncomputed.
//
// # Aggregation
//
// Bucketed averages partition [start, end) into half-open buckets of a fixed
// width starting at start. A trailing partial bucket is dropped. When every
// bucket is empty the whole result is "no data".
//
// Heatmap levels are 11 evenly spaced reference values over [min, max]. A value
// maps to the nearest reference; on an exact tie the lower index wins.
package domain
