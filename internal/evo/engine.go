package evo

import (
	"context"
	"fmt"
	"math/rand"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/puzpuzpuz/xsync/v3"
	"golang.org/x/sync/errgroup"
)

type Scorer[S any] interface {
	Score(genome Bitstring) (S, error)
}

type ScorerFunc[S any] func(genome Bitstring) (S, error)

func (f ScorerFunc[S]) Score(genome Bitstring) (S, error) {
	return f(genome)
}

// Inspector is called once per evaluated generation, sequentially, before the
// next generation is bred. The population must be treated as read-only.
type Inspector[S any] func(generation int, population Population[S]) error

type GenerationStats[S any] struct {
	Generation  int
	Best        S
	Distinct    int
	Evaluations int64
}

type Config[S any] struct {
	BitLength          int
	MaxGenerations     int
	PopulationSize     int
	EliteCount         int
	Selector           Selector[S]
	Mutator            Mutator
	Recombinator       Recombinator
	ParallelEvaluation bool
	Workers            int
	Scorer             Scorer[S]
	Compare            CompareFunc[S]
	Inspector          Inspector[S]
	OnStats            func(GenerationStats[S])
	Seed               int64
}

type Engine[S any] struct {
	cfg         Config[S]
	rng         *rand.Rand
	evaluations *xsync.Counter
}

func NewEngine[S any](cfg Config[S]) (*Engine[S], error) {
	if cfg.BitLength <= 0 {
		return nil, fmt.Errorf("bit length must be > 0")
	}
	if cfg.MaxGenerations <= 0 {
		return nil, fmt.Errorf("max generations must be > 0")
	}
	if cfg.PopulationSize <= 0 {
		return nil, fmt.Errorf("population size must be > 0")
	}
	if cfg.EliteCount < 0 || cfg.EliteCount >= cfg.PopulationSize {
		return nil, fmt.Errorf("elite count must be in [0, population size)")
	}
	if cfg.Scorer == nil {
		return nil, fmt.Errorf("scorer is required")
	}
	if cfg.Compare == nil {
		return nil, fmt.Errorf("compare function is required")
	}
	if cfg.Selector == nil {
		cfg.Selector = TournamentSelector[S]{Size: 2}
	}
	if cfg.Mutator == nil {
		cfg.Mutator = BitFlipMutator{}
	}
	if cfg.Recombinator == nil {
		cfg.Recombinator = UniformCrossover{}
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}

	return &Engine[S]{
		cfg:         cfg,
		rng:         rand.New(rand.NewSource(cfg.Seed)),
		evaluations: xsync.NewCounter(),
	}, nil
}

// Evaluations reports how many times the scorer has been invoked.
func (e *Engine[S]) Evaluations() int64 {
	return e.evaluations.Value()
}

// Execute runs generations 0..MaxGenerations-1 and returns the last evaluated
// population.
func (e *Engine[S]) Execute(ctx context.Context) (Population[S], error) {
	genomes := make([]Bitstring, e.cfg.PopulationSize)
	for i := range genomes {
		genomes[i] = RandomBitstring(e.rng, e.cfg.BitLength)
	}

	var scored Population[S]
	for gen := 0; gen < e.cfg.MaxGenerations; gen++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		var err error
		scored, err = e.evaluate(ctx, genomes)
		if err != nil {
			return nil, fmt.Errorf("evaluate generation %d: %w", gen, err)
		}
		if e.cfg.OnStats != nil {
			e.cfg.OnStats(e.summarize(gen, scored))
		}
		if e.cfg.Inspector != nil {
			if err := e.cfg.Inspector(gen, scored); err != nil {
				return nil, fmt.Errorf("inspect generation %d: %w", gen, err)
			}
		}
		if gen == e.cfg.MaxGenerations-1 {
			break
		}

		genomes, err = e.breed(scored)
		if err != nil {
			return nil, fmt.Errorf("breed generation %d: %w", gen+1, err)
		}
	}
	return scored, nil
}

func (e *Engine[S]) evaluate(ctx context.Context, genomes []Bitstring) (Population[S], error) {
	scored := make(Population[S], len(genomes))
	if !e.cfg.ParallelEvaluation {
		for i, genome := range genomes {
			s, err := e.cfg.Scorer.Score(genome)
			if err != nil {
				return nil, err
			}
			e.evaluations.Inc()
			scored[i] = Scored[S]{Genome: genome, Score: s}
		}
		return scored, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Workers)
	for i := range genomes {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			s, err := e.cfg.Scorer.Score(genomes[i])
			if err != nil {
				return err
			}
			e.evaluations.Inc()
			scored[i] = Scored[S]{Genome: genomes[i], Score: s}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return scored, nil
}

func (e *Engine[S]) breed(scored Population[S]) ([]Bitstring, error) {
	next := make([]Bitstring, 0, e.cfg.PopulationSize)
	if e.cfg.EliteCount > 0 {
		ranked := scored.Ranked(e.cfg.Compare)
		for i := 0; i < e.cfg.EliteCount; i++ {
			next = append(next, ranked[i].Genome.Clone())
		}
	}

	for len(next) < e.cfg.PopulationSize {
		a, err := e.cfg.Selector.Select(e.rng, scored, e.cfg.Compare)
		if err != nil {
			return nil, err
		}
		b, err := e.cfg.Selector.Select(e.rng, scored, e.cfg.Compare)
		if err != nil {
			return nil, err
		}
		child, err := e.cfg.Recombinator.Recombine(e.rng, a.Genome, b.Genome)
		if err != nil {
			return nil, err
		}
		next = append(next, e.cfg.Mutator.Mutate(e.rng, child))
	}
	return next, nil
}

func (e *Engine[S]) summarize(gen int, scored Population[S]) GenerationStats[S] {
	distinct := mapset.NewThreadUnsafeSet[string]()
	for _, item := range scored {
		distinct.Add(item.Genome.Key())
	}
	best, _ := scored.Best(e.cfg.Compare)
	return GenerationStats[S]{
		Generation:  gen,
		Best:        best.Score,
		Distinct:    distinct.Cardinality(),
		Evaluations: e.evaluations.Value(),
	}
}
