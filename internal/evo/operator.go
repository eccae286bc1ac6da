package evo

import (
	"fmt"
	"math/rand"
)

type Mutator interface {
	Name() string
	Mutate(rng *rand.Rand, genome Bitstring) Bitstring
}

type Recombinator interface {
	Name() string
	Recombine(rng *rand.Rand, a, b Bitstring) (Bitstring, error)
}

// BitFlipMutator flips each bit independently with probability Rate. A
// non-positive rate means one expected flip per genome (1/length).
type BitFlipMutator struct {
	Rate float64
}

func (BitFlipMutator) Name() string {
	return "bit_flip"
}

func (m BitFlipMutator) Mutate(rng *rand.Rand, genome Bitstring) Bitstring {
	child := genome.Clone()
	if len(child) == 0 {
		return child
	}
	rate := m.Rate
	if rate <= 0 {
		rate = 1.0 / float64(len(child))
	}
	for i := range child {
		if rng.Float64() < rate {
			child[i] = !child[i]
		}
	}
	return child
}

// UniformCrossover takes each bit from either parent with equal probability.
type UniformCrossover struct{}

func (UniformCrossover) Name() string {
	return "uniform"
}

func (UniformCrossover) Recombine(rng *rand.Rand, a, b Bitstring) (Bitstring, error) {
	if len(a) != len(b) {
		return nil, fmt.Errorf("parent length mismatch: %d != %d", len(a), len(b))
	}
	child := make(Bitstring, len(a))
	for i := range child {
		if rng.Intn(2) == 0 {
			child[i] = a[i]
		} else {
			child[i] = b[i]
		}
	}
	return child, nil
}

// TwoPointCrossover copies the segment [lo, hi) from the second parent.
type TwoPointCrossover struct{}

func (TwoPointCrossover) Name() string {
	return "two_point"
}

func (TwoPointCrossover) Recombine(rng *rand.Rand, a, b Bitstring) (Bitstring, error) {
	if len(a) != len(b) {
		return nil, fmt.Errorf("parent length mismatch: %d != %d", len(a), len(b))
	}
	child := a.Clone()
	if len(a) == 0 {
		return child, nil
	}
	lo := rng.Intn(len(a) + 1)
	hi := rng.Intn(len(a) + 1)
	if lo > hi {
		lo, hi = hi, lo
	}
	copy(child[lo:hi], b[lo:hi])
	return child, nil
}
