package leann

import (
	"time"

	"github.com/ngmks/leann/internal/filter"
)

// Filter is a metadata/time predicate evaluated against a passage's
// metadata map before it can be returned from Search (§6). It is an
// alias for the engine's internal filter type, so a Filter built here
// can be passed directly to WithFilter with no conversion.
type Filter = filter.Filter

// Equal matches passages whose metadata[field] equals value.
func Equal(field string, value interface{}) Filter {
	return filter.NewEqualityFilter(field, value)
}

// Range matches passages whose metadata[field] falls within [min, max].
func Range(field string, min, max interface{}) Filter {
	return filter.NewRangeFilter(field, min, max)
}

// DateRange matches passages whose "timestamp" metadata falls within
// [from, to], the predicate behind the Search API's date_from/date_to
// options (§6).
func DateRange(from, to time.Time) Filter {
	return filter.NewTimeRangeFilter("timestamp", from, to)
}

// ContainsAny matches passages whose metadata[field] (a slice) shares at
// least one element with values.
func ContainsAny(field string, values []interface{}) Filter {
	return filter.NewContainsAnyFilter(field, values)
}

// ContainsAll matches passages whose metadata[field] (a slice) contains
// every element of values.
func ContainsAll(field string, values []interface{}) Filter {
	return filter.NewContainsAllFilter(field, values)
}

// ExactValues matches passages whose metadata[field] (a slice) equals
// the same elements as values, in any order.
func ExactValues(field string, values []interface{}) Filter {
	return filter.NewExactMatchFilter(field, values)
}

// And matches passages satisfying every filter in filters.
func And(filters ...Filter) Filter {
	return filter.NewAndFilter(filters...)
}

// Or matches passages satisfying at least one filter in filters.
func Or(filters ...Filter) Filter {
	return filter.NewOrFilter(filters...)
}

// Not inverts f.
func Not(f Filter) Filter {
	return filter.NewNotFilter(f)
}
