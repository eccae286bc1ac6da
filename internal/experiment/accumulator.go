package experiment

import (
	"errors"
	"time"

	"knapsweep/internal/evo"
	"knapsweep/internal/score"
)

var ErrEmptyRun = errors.New("run finished without an observed generation")

// Accumulator tracks the best individual seen across the generations of a
// single run. It belongs to exactly one run and is not safe for concurrent
// use; the engine calls its inspector sequentially.
type Accumulator struct {
	best        evo.Scored[score.CliffScore]
	generation  int
	observed    bool
	generations int
}

func NewAccumulator() *Accumulator {
	return &Accumulator{}
}

// Observe records a generation's best individual. Only a strictly better
// score replaces the current best, so ties keep the earliest generation.
func (a *Accumulator) Observe(generation int, best evo.Scored[score.CliffScore]) {
	a.generations++
	if a.observed && score.Compare(best.Score, a.best.Score) <= 0 {
		return
	}
	a.best = evo.Scored[score.CliffScore]{Genome: best.Genome.Clone(), Score: best.Score}
	a.generation = generation
	a.observed = true
}

// Best returns the best-of-run individual and the generation it first
// appeared in.
func (a *Accumulator) Best() (evo.Scored[score.CliffScore], int, bool) {
	return a.best, a.generation, a.observed
}

func (a *Accumulator) Generations() int {
	return a.generations
}

// Inspector adapts the accumulator to the engine callback. The selector
// picks the generation best and must not depend on its random source.
func (a *Accumulator) Inspector(selector evo.Selector[score.CliffScore]) evo.Inspector[score.CliffScore] {
	if selector == nil {
		selector = evo.BestSelector[score.CliffScore]{}
	}
	return func(generation int, population evo.Population[score.CliffScore]) error {
		best, err := selector.Select(nil, population, score.Compare)
		if err != nil {
			return err
		}
		a.Observe(generation, best)
		return nil
	}
}

func (a *Accumulator) Finalize(sweepID string, entry Entry, evaluations int64, elapsed time.Duration) (RunResult, error) {
	if !a.observed {
		return RunResult{}, ErrEmptyRun
	}
	return RunResult{
		SweepID:                 sweepID,
		Group:                   entry.Group,
		RunIndex:                entry.RunIndex,
		GenerationBudget:        entry.GenerationBudget,
		Seed:                    entry.Seed,
		BestScore:               a.best.Score,
		BestGenome:              a.best.Genome,
		GenerationFirstAchieved: a.generation,
		Evaluations:             evaluations,
		Elapsed:                 elapsed,
	}, nil
}
