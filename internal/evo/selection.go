package evo

import (
	"fmt"
	"math/rand"
)

// Selector chooses an individual from an evaluated population.
type Selector[S any] interface {
	Name() string
	Select(rng *rand.Rand, population Population[S], cmp CompareFunc[S]) (Scored[S], error)
}

// BestSelector always picks the first maximal individual.
type BestSelector[S any] struct{}

func (BestSelector[S]) Name() string {
	return "best"
}

func (BestSelector[S]) Select(_ *rand.Rand, population Population[S], cmp CompareFunc[S]) (Scored[S], error) {
	best, ok := population.Best(cmp)
	if !ok {
		return Scored[S]{}, fmt.Errorf("cannot select from an empty population")
	}
	return best, nil
}

// TournamentSelector samples Size individuals with replacement and keeps the
// best of them.
type TournamentSelector[S any] struct {
	Size int
}

func (TournamentSelector[S]) Name() string {
	return "tournament"
}

func (s TournamentSelector[S]) Select(rng *rand.Rand, population Population[S], cmp CompareFunc[S]) (Scored[S], error) {
	if rng == nil {
		return Scored[S]{}, fmt.Errorf("random source is required")
	}
	if len(population) == 0 {
		return Scored[S]{}, fmt.Errorf("cannot select from an empty population")
	}
	size := s.Size
	if size <= 0 {
		size = 2
	}

	best := population[rng.Intn(len(population))]
	for i := 1; i < size; i++ {
		candidate := population[rng.Intn(len(population))]
		if cmp(candidate.Score, best.Score) > 0 {
			best = candidate
		}
	}
	return best, nil
}
