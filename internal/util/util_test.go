package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDistanceFuncs(t *testing.T) {
	a := []float32{1, 0, 0}
	b := []float32{0, 1, 0}

	l2, err := GetDistanceFunc(L2Metric, false)
	require.NoError(t, err)
	assert.InDelta(t, 2.0, l2(a, b), 1e-6)

	cos, err := GetDistanceFunc(CosineMetric, false)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, cos(a, b), 1e-6)

	assert.InDelta(t, 0.0, cos(a, a), 1e-6)
}

func TestNormalizedCosineFastPath(t *testing.T) {
	a := Normalize([]float32{3, 4})
	b := Normalize([]float32{3, 4})
	cos, err := GetDistanceFunc(CosineMetric, true)
	require.NoError(t, err)
	assert.InDelta(t, 0.0, cos(a, b), 1e-6)
}

func TestMinHeapOrdering(t *testing.T) {
	h := NewMinHeap()
	h.Push(&Candidate{Node: 2, Distance: 0.5})
	h.Push(&Candidate{Node: 1, Distance: 0.1})
	h.Push(&Candidate{Node: 3, Distance: 0.1})

	first := h.Pop()
	assert.Equal(t, uint32(1), first.Node) // tie broken by ascending node index
	second := h.Pop()
	assert.Equal(t, uint32(3), second.Node)
	third := h.Pop()
	assert.Equal(t, uint32(2), third.Node)
}

func TestMaxHeapBoundedEviction(t *testing.T) {
	h := NewMaxHeap(2)
	h.Push(&Candidate{Node: 1, Distance: 0.9})
	h.Push(&Candidate{Node: 2, Distance: 0.5})
	assert.Equal(t, 2, h.Len())

	h.Push(&Candidate{Node: 3, Distance: 0.1}) // closer than worst, evicts node 1
	assert.Equal(t, 2, h.Len())
	assert.Equal(t, float32(0.5), h.Top().Distance)

	h.Push(&Candidate{Node: 4, Distance: 0.99}) // worse than current worst, dropped
	assert.Equal(t, float32(0.5), h.Top().Distance)

	sorted := h.Sorted()
	require.Len(t, sorted, 2)
	assert.Equal(t, uint32(3), sorted[0].Node)
	assert.Equal(t, uint32(2), sorted[1].Node)
}
