package score

import (
	"errors"
	"fmt"

	"knapsweep/internal/evo"
	"knapsweep/internal/knapsack"
)

var ErrGenomeLengthMismatch = errors.New("genome length mismatch")

type GenomeLengthError struct {
	Got  int
	Want int
}

func (e *GenomeLengthError) Error() string {
	return fmt.Sprintf("genome length mismatch: got=%d want=%d", e.Got, e.Want)
}

func (e *GenomeLengthError) Is(target error) bool {
	return target == ErrGenomeLengthMismatch
}

// CliffScorer maps genomes to cliff scores against one bound instance. It
// holds no mutable state and is safe for concurrent use.
type CliffScorer struct {
	ks *knapsack.Knapsack
}

func NewCliffScorer(ks *knapsack.Knapsack) *CliffScorer {
	return &CliffScorer{ks: ks}
}

func (s *CliffScorer) Knapsack() *knapsack.Knapsack {
	return s.ks
}

func (s *CliffScorer) Score(genome evo.Bitstring) (CliffScore, error) {
	value, weight, err := s.Totals(genome)
	if err != nil {
		return CliffScore{}, err
	}
	return Evaluate(value, weight, s.ks.Capacity()), nil
}

// Totals sums the value and weight of the items selected by genome. The
// sums cannot overflow: knapsack.New bounds the instance totals.
func (s *CliffScorer) Totals(genome evo.Bitstring) (value, weight int64, err error) {
	if len(genome) != s.ks.NumItems() {
		return 0, 0, &GenomeLengthError{Got: len(genome), Want: s.ks.NumItems()}
	}
	for i, bit := range genome {
		if !bit {
			continue
		}
		item := s.ks.Item(i)
		value += item.Value
		weight += item.Weight
	}
	return value, weight, nil
}
