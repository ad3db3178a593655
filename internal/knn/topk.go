package knn

import (
	"container/heap"
	"math"
	"sort"
)

// candidate is a scored corpus entry. seq is its position in the corpus.
type candidate struct {
	seq   int
	docID string
	score float64
}

// rankKey orders NaN below every real score.
func rankKey(score float64) float64 {
	if math.IsNaN(score) {
		return math.Inf(-1)
	}
	return score
}

// better reports whether a ranks ahead of b: higher score first, then
// earlier corpus position.
func better(a, b candidate) bool {
	ka, kb := rankKey(a.score), rankKey(b.score)
	if ka != kb {
		return ka > kb
	}
	return a.seq < b.seq
}

// worstFirst is a min-heap whose root is the lowest-ranked candidate.
type worstFirst []candidate

var _ heap.Interface = (*worstFirst)(nil)

func (h worstFirst) Len() int           { return len(h) }
func (h worstFirst) Less(i, j int) bool { return better(h[j], h[i]) }
func (h worstFirst) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *worstFirst) Push(x any)        { *h = append(*h, x.(candidate)) }
func (h *worstFirst) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// topK keeps the best k candidates seen so far in O(k) memory.
type topK struct {
	k int
	h worstFirst
}

func newTopK(k int) *topK {
	return &topK{k: k, h: make(worstFirst, 0, k)}
}

func (t *topK) offer(c candidate) {
	if len(t.h) < t.k {
		heap.Push(&t.h, c)
		return
	}
	if better(c, t.h[0]) {
		t.h[0] = c
		heap.Fix(&t.h, 0)
	}
}

// sorted returns the retained candidates best first.
func (t *topK) sorted() []candidate {
	out := make([]candidate, len(t.h))
	copy(out, t.h)
	rank(out)
	return out
}

func rank(cs []candidate) {
	sort.Slice(cs, func(i, j int) bool { return better(cs[i], cs[j]) })
}
