package filter

import (
	"fmt"
	"strings"
)

// LogicalFilter combines child filters with AND, OR, or NOT. Law L3
// (filter monotonicity) falls directly out of this: AND over metadata
// predicates never returns more than its narrowest child, and dropping a
// child from an AND (or adding one to an OR) cannot shrink the result
// relative to the narrower combination.
type LogicalFilter struct {
	Operator LogicalOperator
	Filters  []Filter
}

func NewAndFilter(filters ...Filter) *LogicalFilter {
	return &LogicalFilter{Operator: AndOperator, Filters: filters}
}

func NewOrFilter(filters ...Filter) *LogicalFilter {
	return &LogicalFilter{Operator: OrOperator, Filters: filters}
}

func NewNotFilter(f Filter) *LogicalFilter {
	return &LogicalFilter{Operator: NotOperator, Filters: []Filter{f}}
}

func (f *LogicalFilter) Matches(metadata map[string]interface{}) bool {
	switch f.Operator {
	case AndOperator:
		for _, child := range f.Filters {
			if !child.Matches(metadata) {
				return false
			}
		}
		return true
	case OrOperator:
		for _, child := range f.Filters {
			if child.Matches(metadata) {
				return true
			}
		}
		return false
	case NotOperator:
		return !f.Filters[0].Matches(metadata)
	default:
		return false
	}
}

func (f *LogicalFilter) Validate() error {
	if len(f.Filters) == 0 {
		return newError("logical", "", "logical filter must have at least one child filter")
	}
	if f.Operator == NotOperator && len(f.Filters) != 1 {
		return newError("logical", "", "NOT filter must have exactly one child filter")
	}
	for i, child := range f.Filters {
		if err := child.Validate(); err != nil {
			return newError("logical", "", fmt.Sprintf("child filter %d invalid: %v", i, err))
		}
	}
	return nil
}

func (f *LogicalFilter) EstimateSelectivity() float64 {
	if len(f.Filters) == 0 {
		return 1.0
	}
	switch f.Operator {
	case AndOperator:
		selectivity := 1.0
		for _, child := range f.Filters {
			selectivity *= child.EstimateSelectivity()
		}
		return selectivity
	case OrOperator:
		complement := 1.0
		for _, child := range f.Filters {
			complement *= 1.0 - child.EstimateSelectivity()
		}
		return 1.0 - complement
	case NotOperator:
		return 1.0 - f.Filters[0].EstimateSelectivity()
	default:
		return 0.5
	}
}

func (f *LogicalFilter) String() string {
	if len(f.Filters) == 0 {
		return "EMPTY"
	}
	switch f.Operator {
	case AndOperator:
		return joinChildren(f.Filters, " AND ")
	case OrOperator:
		return joinChildren(f.Filters, " OR ")
	case NotOperator:
		return fmt.Sprintf("NOT (%s)", f.Filters[0].String())
	default:
		return "UNKNOWN"
	}
}

func joinChildren(filters []Filter, sep string) string {
	parts := make([]string, len(filters))
	for i, child := range filters {
		parts[i] = fmt.Sprintf("(%s)", child.String())
	}
	return strings.Join(parts, sep)
}
