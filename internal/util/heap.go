package util

import "container/heap"

// Candidate is a single graph-search candidate: a node index and its
// distance to the query.
type Candidate struct {
	Node     uint32
	Distance float32
}

// candidateHeap is the container/heap.Interface plumbing shared by MinHeap
// and MaxHeap; the ordering is supplied by the embedding type.
type candidateHeap struct {
	items []*Candidate
	less  func(a, b *Candidate) bool
}

func (h *candidateHeap) Len() int            { return len(h.items) }
func (h *candidateHeap) Less(i, j int) bool  { return h.less(h.items[i], h.items[j]) }
func (h *candidateHeap) Swap(i, j int)       { h.items[i], h.items[j] = h.items[j], h.items[i] }
func (h *candidateHeap) Push(x interface{}) { h.items = append(h.items, x.(*Candidate)) }
func (h *candidateHeap) Pop() interface{} {
	old := h.items
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	h.items = old[:n-1]
	return item
}

// MinHeap is a min-heap over distance, ties broken by ascending node
// index to satisfy the engine's deterministic tie-break rule (§4.4). Used
// as the beam search frontier — the next candidates to explore.
type MinHeap struct{ h *candidateHeap }

func NewMinHeap() *MinHeap {
	return &MinHeap{h: &candidateHeap{less: func(a, b *Candidate) bool {
		if a.Distance != b.Distance {
			return a.Distance < b.Distance
		}
		return a.Node < b.Node
	}}}
}

func (h *MinHeap) Len() int { return h.h.Len() }

func (h *MinHeap) Push(c *Candidate) { heap.Push(h.h, c) }

func (h *MinHeap) Pop() *Candidate {
	if h.h.Len() == 0 {
		return nil
	}
	return heap.Pop(h.h).(*Candidate)
}

// MaxHeap is a bounded max-heap over distance (farthest on top), used as
// the beam search's `results` set of size ef_search (§4.2.2): once full,
// pushing a closer candidate evicts the current farthest.
type MaxHeap struct {
	h       *candidateHeap
	maxSize int
}

func NewMaxHeap(maxSize int) *MaxHeap {
	return &MaxHeap{
		maxSize: maxSize,
		h: &candidateHeap{less: func(a, b *Candidate) bool {
			if a.Distance != b.Distance {
				return a.Distance > b.Distance
			}
			return a.Node > b.Node
		}},
	}
}

func (h *MaxHeap) Len() int { return h.h.Len() }

func (h *MaxHeap) Full() bool { return h.maxSize > 0 && h.Len() >= h.maxSize }

// Top returns the farthest (worst) candidate currently held, without
// removing it.
func (h *MaxHeap) Top() *Candidate {
	if h.h.Len() == 0 {
		return nil
	}
	return h.h.items[0]
}

// Push inserts c, evicting the current worst candidate if the heap is
// already at capacity and c is an improvement.
func (h *MaxHeap) Push(c *Candidate) {
	if h.maxSize <= 0 || h.Len() < h.maxSize {
		heap.Push(h.h, c)
		return
	}
	if h.h.less(h.Top(), c) {
		heap.Pop(h.h)
		heap.Push(h.h, c)
	}
}

// Pop removes and returns the current worst (farthest) candidate.
func (h *MaxHeap) Pop() *Candidate {
	if h.h.Len() == 0 {
		return nil
	}
	return heap.Pop(h.h).(*Candidate)
}

// Sorted drains the heap and returns its contents ordered closest-first.
func (h *MaxHeap) Sorted() []Candidate {
	out := make([]Candidate, h.Len())
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = *h.Pop()
	}
	return out
}
