package filter

import (
	"fmt"
	"time"
)

// RangeFilter matches numeric, string, or time fields within [Min, Max].
// A nil Min or Max means that bound is open. Timestamp filters (§4.4,
// date_from/date_to) are expressed as a RangeFilter over the "timestamp"
// metadata field.
type RangeFilter struct {
	Field string
	Min   interface{}
	Max   interface{}
}

func NewRangeFilter(field string, min, max interface{}) *RangeFilter {
	return &RangeFilter{Field: field, Min: min, Max: max}
}

// NewTimeRangeFilter builds the "timestamp" range filter used for
// date_from/date_to query options. A zero dateFrom or dateTo leaves that
// bound open.
func NewTimeRangeFilter(field string, dateFrom, dateTo time.Time) *RangeFilter {
	rf := &RangeFilter{Field: field}
	if !dateFrom.IsZero() {
		rf.Min = dateFrom
	}
	if !dateTo.IsZero() {
		rf.Max = dateTo
	}
	return rf
}

func (f *RangeFilter) Matches(metadata map[string]interface{}) bool {
	if metadata == nil {
		return false
	}
	fieldValue, exists := metadata[f.Field]
	if !exists {
		return false
	}
	if f.Min != nil && compareValues(fieldValue, f.Min) < 0 {
		return false
	}
	if f.Max != nil && compareValues(fieldValue, f.Max) > 0 {
		return false
	}
	return true
}

func (f *RangeFilter) Validate() error {
	if f.Field == "" {
		return newError("range", f.Field, "field name cannot be empty")
	}
	if f.Min == nil && f.Max == nil {
		return newError("range", f.Field, "at least one bound (min or max) must be specified")
	}
	if f.Min != nil && f.Max != nil {
		if !comparable(f.Min, f.Max) {
			return newError("range", f.Field, "min and max values must be of comparable types")
		}
		if compareValues(f.Min, f.Max) > 0 {
			return newError("range", f.Field, "min value must be less than or equal to max value")
		}
	}
	return nil
}

// EstimateSelectivity mirrors the two-sided/one-sided distinction a real
// planner would use: a bounded range is assumed tighter than an open one.
func (f *RangeFilter) EstimateSelectivity() float64 {
	if f.Min != nil && f.Max != nil {
		return 0.3
	}
	return 0.5
}

func (f *RangeFilter) String() string {
	switch {
	case f.Min != nil && f.Max != nil:
		return fmt.Sprintf("%s BETWEEN %v AND %v", f.Field, f.Min, f.Max)
	case f.Min != nil:
		return fmt.Sprintf("%s >= %v", f.Field, f.Min)
	default:
		return fmt.Sprintf("%s <= %v", f.Field, f.Max)
	}
}

func compareValues(a, b interface{}) int {
	if aNum, aOk := toFloat64(a); aOk {
		if bNum, bOk := toFloat64(b); bOk {
			switch {
			case aNum < bNum:
				return -1
			case aNum > bNum:
				return 1
			default:
				return 0
			}
		}
	}
	if aStr, aOk := a.(string); aOk {
		if bStr, bOk := b.(string); bOk {
			switch {
			case aStr < bStr:
				return -1
			case aStr > bStr:
				return 1
			default:
				return 0
			}
		}
	}
	if aTime, aOk := toTime(a); aOk {
		if bTime, bOk := toTime(b); bOk {
			switch {
			case aTime.Before(bTime):
				return -1
			case aTime.After(bTime):
				return 1
			default:
				return 0
			}
		}
	}
	return 0
}

func comparable(a, b interface{}) bool {
	if _, aOk := toFloat64(a); aOk {
		if _, bOk := toFloat64(b); bOk {
			return true
		}
	}
	if _, aOk := a.(string); aOk {
		if _, bOk := b.(string); bOk {
			return true
		}
	}
	if _, aOk := toTime(a); aOk {
		if _, bOk := toTime(b); bOk {
			return true
		}
	}
	return false
}

// toTime accepts a time.Time, RFC3339-family string, or unix timestamp —
// the shapes a passage's ISO-8601 "timestamp" metadata value may arrive in
// after a JSON round-trip.
func toTime(v interface{}) (time.Time, bool) {
	switch val := v.(type) {
	case time.Time:
		return val, true
	case string:
		formats := []string{
			time.RFC3339,
			time.RFC3339Nano,
			"2006-01-02T15:04:05",
			"2006-01-02 15:04:05",
			"2006-01-02",
		}
		for _, format := range formats {
			if t, err := time.Parse(format, val); err == nil {
				return t, true
			}
		}
	case int64:
		return time.Unix(val, 0), true
	case float64:
		return time.Unix(int64(val), 0), true
	}
	return time.Time{}, false
}
