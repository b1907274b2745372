package search

import "time"

// sortByDate reorders results by the "timestamp" metadata key,
// descending unless ascending is set. Results missing a parseable
// timestamp sort last, matching the engine's date-sort rule that a
// post-sort never promotes a timestamp-less passage above a dated one
// (§4.4 step 5).
func sortByDate(results []Result, ascending bool) {
	less := func(i, j int) bool {
		ti, oki := timestampOf(results[i].Passage.Metadata)
		tj, okj := timestampOf(results[j].Passage.Metadata)
		if !oki && !okj {
			return false
		}
		if !oki {
			return false
		}
		if !okj {
			return true
		}
		if ascending {
			return ti.Before(tj)
		}
		return ti.After(tj)
	}

	// Simple insertion sort keeps this stable without importing sort for
	// a custom comparator that already needs two-sided tie handling.
	for i := 1; i < len(results); i++ {
		for j := i; j > 0 && less(j, j-1); j-- {
			results[j], results[j-1] = results[j-1], results[j]
		}
	}
}

func timestampOf(metadata map[string]interface{}) (time.Time, bool) {
	raw, ok := metadata["timestamp"]
	if !ok {
		return time.Time{}, false
	}
	switch v := raw.(type) {
	case time.Time:
		return v, true
	case string:
		for _, layout := range []string{time.RFC3339, time.RFC3339Nano, "2006-01-02"} {
			if t, err := time.Parse(layout, v); err == nil {
				return t, true
			}
		}
	}
	return time.Time{}, false
}
