package filter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEqualityFilter(t *testing.T) {
	f := NewEqualityFilter("tag", "pinned")
	require.NoError(t, f.Validate())
	assert.True(t, f.Matches(map[string]interface{}{"tag": "pinned"}))
	assert.False(t, f.Matches(map[string]interface{}{"tag": "other"}))
	assert.False(t, f.Matches(nil))
	assert.True(t, NewEqualityFilter("count", 3).Matches(map[string]interface{}{"count": int64(3)}))
}

func TestRangeFilterTimestamps(t *testing.T) {
	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	f := NewTimeRangeFilter("timestamp", from, to)
	require.NoError(t, f.Validate())

	inside := map[string]interface{}{"timestamp": "2026-03-01T00:00:00Z"}
	outside := map[string]interface{}{"timestamp": "2027-01-01T00:00:00Z"}
	assert.True(t, f.Matches(inside))
	assert.False(t, f.Matches(outside))
}

func TestRangeFilterInvalidBounds(t *testing.T) {
	f := NewRangeFilter("score", 10.0, 1.0)
	assert.Error(t, f.Validate())
}

func TestContainmentFilterModes(t *testing.T) {
	meta := map[string]interface{}{"tags": []interface{}{"a", "b", "c"}}
	assert.True(t, NewContainsAnyFilter("tags", []interface{}{"c", "z"}).Matches(meta))
	assert.True(t, NewContainsAllFilter("tags", []interface{}{"a", "b"}).Matches(meta))
	assert.False(t, NewContainsAllFilter("tags", []interface{}{"a", "z"}).Matches(meta))
	assert.True(t, NewExactMatchFilter("tags", []interface{}{"c", "b", "a"}).Matches(meta))
	assert.False(t, NewExactMatchFilter("tags", []interface{}{"a", "b"}).Matches(meta))
}

func TestLogicalFilterMonotonicity(t *testing.T) {
	meta := map[string]interface{}{"tag": "pinned", "score": 0.9}
	tag := NewEqualityFilter("tag", "pinned")
	score := NewRangeFilter("score", 0.5, nil)

	and := NewAndFilter(tag, score)
	assert.True(t, and.Matches(meta))

	// L3: adding a filter never widens the match set.
	stricter := NewAndFilter(tag, score, NewEqualityFilter("tag", "other"))
	assert.False(t, stricter.Matches(meta))

	not := NewNotFilter(tag)
	assert.False(t, not.Matches(meta))
}

func TestNodeSet(t *testing.T) {
	s := NewNodeSet(10)
	s.Set(2)
	s.Set(9)
	s.Set(100) // out of range, ignored
	assert.Equal(t, 2, s.Count())
	assert.ElementsMatch(t, []int{2, 9}, s.Nodes())
}
