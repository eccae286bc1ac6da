package evo

import "sort"

// CompareFunc orders scores: negative when a < b, zero when equal, positive
// when a > b.
type CompareFunc[S any] func(a, b S) int

type Scored[S any] struct {
	Genome Bitstring
	Score  S
}

type Population[S any] []Scored[S]

// Best returns the first individual whose score is maximal under cmp.
func (p Population[S]) Best(cmp CompareFunc[S]) (Scored[S], bool) {
	if len(p) == 0 {
		return Scored[S]{}, false
	}
	best := p[0]
	for _, item := range p[1:] {
		if cmp(item.Score, best.Score) > 0 {
			best = item
		}
	}
	return best, true
}

// Ranked returns a copy sorted best first. Equal scores keep population order.
func (p Population[S]) Ranked(cmp CompareFunc[S]) Population[S] {
	out := make(Population[S], len(p))
	copy(out, p)
	sort.SliceStable(out, func(i, j int) bool {
		return cmp(out[i].Score, out[j].Score) > 0
	})
	return out
}
