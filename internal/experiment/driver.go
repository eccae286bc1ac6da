package experiment

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"

	"knapsweep/internal/evo"
	"knapsweep/internal/knapsack"
	"knapsweep/internal/score"
)

var ErrEngineExecution = errors.New("evolutionary run failed")

// RunError reports a failure of one sweep entry.
type RunError struct {
	Entry Entry
	Err   error
}

func (e *RunError) Error() string {
	return fmt.Sprintf("run %s: %v", e.Entry, e.Err)
}

func (e *RunError) Unwrap() error {
	return e.Err
}

func (e *RunError) Is(target error) bool {
	return target == ErrEngineExecution
}

type FailurePolicy string

const (
	// FailFast cancels the remaining runs on the first failure.
	FailFast FailurePolicy = "fail_fast"
	// Continue skips failed runs and reports their errors together at the end.
	Continue FailurePolicy = "continue"
)

func ParseFailurePolicy(s string) (FailurePolicy, error) {
	switch FailurePolicy(s) {
	case "", FailFast:
		return FailFast, nil
	case Continue:
		return Continue, nil
	default:
		return "", fmt.Errorf("unsupported failure policy: %s", s)
	}
}

// Sink consumes completed run results. The driver calls Write from a single
// goroutine.
type Sink interface {
	Write(ctx context.Context, result RunResult) error
	Close() error
}

type MultiSink []Sink

func (m MultiSink) Write(ctx context.Context, result RunResult) error {
	for _, s := range m {
		if err := s.Write(ctx, result); err != nil {
			return err
		}
	}
	return nil
}

func (m MultiSink) Close() error {
	var errs []error
	for _, s := range m {
		errs = append(errs, s.Close())
	}
	return errors.Join(errs...)
}

// Recorder receives run level telemetry.
type Recorder interface {
	RunCompleted(result RunResult)
	RunFailed(entry Entry)
}

type DriverConfig struct {
	SweepID            string
	Sweep              SweepConfig
	PopulationSize     int
	EliteCount         int
	TournamentSize     int
	MutationRate       float64
	Recombinator       string
	ParallelEvaluation bool
	Workers            int
	Parallelism        int
	FailurePolicy      FailurePolicy
	CacheSize          int
}

type Driver struct {
	cfg          DriverConfig
	ks           *knapsack.Knapsack
	scorer       evo.Scorer[score.CliffScore]
	recombinator evo.Recombinator
	sink         Sink
	recorder     Recorder
	logger       *slog.Logger
}

type Option func(*Driver)

func WithSink(s Sink) Option {
	return func(d *Driver) { d.sink = s }
}

func WithRecorder(r Recorder) Option {
	return func(d *Driver) { d.recorder = r }
}

func WithLogger(l *slog.Logger) Option {
	return func(d *Driver) { d.logger = l }
}

func NewDriver(cfg DriverConfig, ks *knapsack.Knapsack, opts ...Option) (*Driver, error) {
	if ks == nil {
		return nil, fmt.Errorf("knapsack instance is required")
	}
	if err := cfg.Sweep.Validate(); err != nil {
		return nil, err
	}
	if cfg.PopulationSize <= 0 {
		return nil, fmt.Errorf("population size must be > 0")
	}
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = 1
	}
	policy, err := ParseFailurePolicy(string(cfg.FailurePolicy))
	if err != nil {
		return nil, err
	}
	cfg.FailurePolicy = policy
	recombinator, err := evo.ResolveRecombinator(cfg.Recombinator)
	if err != nil {
		return nil, err
	}

	var scorer evo.Scorer[score.CliffScore] = score.NewCliffScorer(ks)
	if cfg.CacheSize > 0 {
		cached, err := score.NewCachedScorer(scorer, cfg.CacheSize)
		if err != nil {
			return nil, err
		}
		scorer = cached
	}

	d := &Driver{
		cfg:          cfg,
		ks:           ks,
		scorer:       scorer,
		recombinator: recombinator,
		logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

func (d *Driver) Plan() []Entry {
	return d.cfg.Sweep.Plan()
}

// Run executes every entry of the plan and returns the successful results in
// sweep order. Sinks receive results as runs complete.
func (d *Driver) Run(ctx context.Context) ([]RunResult, error) {
	entries := d.Plan()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	d.logger.Info("sweep started",
		"sweep", d.cfg.SweepID,
		"instance", d.ks.Name(),
		"items", d.ks.NumItems(),
		"capacity", d.ks.Capacity(),
		"runs", len(entries),
		"parallelism", d.cfg.Parallelism,
	)
	started := time.Now()

	completed := make(chan RunResult)
	var sinkErr error
	var emitWG sync.WaitGroup
	emitWG.Add(1)
	go func() {
		defer emitWG.Done()
		for res := range completed {
			if sinkErr != nil || d.sink == nil {
				continue
			}
			if err := d.sink.Write(ctx, res); err != nil {
				sinkErr = fmt.Errorf("write run result %s: %w", res.Entry(), err)
				cancel()
			}
		}
	}()

	results := make([]RunResult, len(entries))
	done := make([]bool, len(entries))
	runErrs := make([]error, len(entries))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.cfg.Parallelism)
	for i, entry := range entries {
		g.Go(func() error {
			res, err := d.RunEntry(gctx, entry)
			if err != nil {
				if d.recorder != nil {
					d.recorder.RunFailed(entry)
				}
				if d.cfg.FailurePolicy == FailFast {
					return err
				}
				d.logger.Warn("run failed, continuing", "run", entry.String(), "err", err)
				runErrs[i] = err
				return nil
			}
			results[i] = res
			done[i] = true
			select {
			case completed <- res:
				return nil
			case <-gctx.Done():
				return gctx.Err()
			}
		})
	}
	waitErr := g.Wait()
	close(completed)
	emitWG.Wait()

	out := make([]RunResult, 0, len(entries))
	for i := range entries {
		if done[i] {
			out = append(out, results[i])
		}
	}

	switch {
	case sinkErr != nil:
		waitErr = sinkErr
	case waitErr == nil:
		waitErr = errors.Join(runErrs...)
	}
	if waitErr != nil {
		d.logger.Error("sweep finished with errors", "sweep", d.cfg.SweepID, "completed", len(out), "err", waitErr)
		return out, waitErr
	}
	d.logger.Info("sweep completed",
		"sweep", d.cfg.SweepID,
		"runs", len(out),
		"elapsed", time.Since(started).Round(time.Millisecond),
	)
	return out, nil
}

// RunEntry executes a single run synchronously and finalizes its best-of-run
// result.
func (d *Driver) RunEntry(ctx context.Context, entry Entry) (RunResult, error) {
	started := time.Now()
	acc := NewAccumulator()
	var onStats func(evo.GenerationStats[score.CliffScore])
	if d.logger.Enabled(ctx, slog.LevelDebug) {
		onStats = func(s evo.GenerationStats[score.CliffScore]) {
			d.logger.Debug("generation evaluated",
				"group", entry.Group,
				"budget", entry.GenerationBudget,
				"run", entry.RunIndex,
				"gen", s.Generation,
				"best", s.Best.String(),
				"distinct", s.Distinct,
				"evals", s.Evaluations,
			)
		}
	}
	engine, err := evo.NewEngine(evo.Config[score.CliffScore]{
		BitLength:          d.ks.NumItems(),
		MaxGenerations:     entry.GenerationBudget,
		PopulationSize:     d.cfg.PopulationSize,
		EliteCount:         d.cfg.EliteCount,
		Selector:           evo.TournamentSelector[score.CliffScore]{Size: d.cfg.TournamentSize},
		Mutator:            evo.BitFlipMutator{Rate: d.cfg.MutationRate},
		Recombinator:       d.recombinator,
		ParallelEvaluation: d.cfg.ParallelEvaluation,
		Workers:            d.cfg.Workers,
		Scorer:             d.scorer,
		Compare:            score.Compare,
		Inspector:          acc.Inspector(evo.BestSelector[score.CliffScore]{}),
		OnStats:            onStats,
		Seed:               entry.Seed,
	})
	if err != nil {
		return RunResult{}, &RunError{Entry: entry, Err: err}
	}
	if _, err := engine.Execute(ctx); err != nil {
		return RunResult{}, &RunError{Entry: entry, Err: err}
	}

	res, err := acc.Finalize(d.cfg.SweepID, entry, engine.Evaluations(), time.Since(started))
	if err != nil {
		return RunResult{}, fmt.Errorf("run %s: %w", entry, err)
	}
	if d.recorder != nil {
		d.recorder.RunCompleted(res)
	}
	d.logger.Info("run completed",
		"group", res.Group,
		"budget", res.GenerationBudget,
		"run", res.RunIndex,
		"best", res.BestScore.String(),
		"gen", res.GenerationFirstAchieved,
		"generations", acc.Generations(),
		"evals", humanize.Comma(res.Evaluations),
		"elapsed", res.Elapsed.Round(time.Millisecond),
	)
	return res, nil
}
