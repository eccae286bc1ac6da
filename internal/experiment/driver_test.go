package experiment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math/rand"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"knapsweep/internal/evo"
	"knapsweep/internal/knapsack"
	"knapsweep/internal/score"
)

type collectSink struct {
	mu        sync.Mutex
	results   []RunResult
	failAfter int
	closed    bool
}

func (s *collectSink) Write(_ context.Context, r RunResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAfter > 0 && len(s.results) >= s.failAfter {
		return errors.New("sink full")
	}
	s.results = append(s.results, r)
	return nil
}

func (s *collectSink) Close() error {
	s.closed = true
	return nil
}

type countingRecorder struct {
	completed atomic.Int64
	failed    atomic.Int64
}

func (r *countingRecorder) RunCompleted(RunResult) { r.completed.Add(1) }
func (r *countingRecorder) RunFailed(Entry)        { r.failed.Add(1) }

func randomInstance(t *testing.T, n int, seed int64) *knapsack.Knapsack {
	t.Helper()
	rng := rand.New(rand.NewSource(seed))
	items := make([]knapsack.Item, n)
	var total int64
	for i := range items {
		items[i] = knapsack.Item{Weight: int64(1 + rng.Intn(30)), Value: int64(1 + rng.Intn(40))}
		total += items[i].Weight
	}
	ks, err := knapsack.New("random", items, total/2)
	require.NoError(t, err)
	return ks
}

// optimum brute-forces the best feasible value of a small instance.
func optimum(ks *knapsack.Knapsack) int64 {
	n := ks.NumItems()
	var best int64
	for mask := 0; mask < 1<<n; mask++ {
		var v, w int64
		for i := 0; i < n; i++ {
			if mask&(1<<i) != 0 {
				v += ks.Item(i).Value
				w += ks.Item(i).Weight
			}
		}
		if w <= ks.Capacity() && v > best {
			best = v
		}
	}
	return best
}

func testDriverConfig() DriverConfig {
	return DriverConfig{
		SweepID: "test-sweep",
		Sweep: SweepConfig{
			BaselineBudget:     12,
			BaselineRuns:       2,
			IncrementalBudgets: []int{2, 6},
			IncrementalRuns:    2,
			BaseSeed:           3,
		},
		PopulationSize:     16,
		EliteCount:         1,
		TournamentSize:     2,
		ParallelEvaluation: true,
		Workers:            3,
	}
}

func stripElapsed(results []RunResult) []RunResult {
	out := make([]RunResult, len(results))
	for i, r := range results {
		r.Elapsed = 0
		out[i] = r
	}
	return out
}

func TestDriverRunsEverySweepEntry(t *testing.T) {
	ks := randomInstance(t, 12, 1)
	sink := &collectSink{}
	rec := &countingRecorder{}
	driver, err := NewDriver(testDriverConfig(), ks, WithSink(sink), WithRecorder(rec))
	require.NoError(t, err)

	results, err := driver.Run(context.Background())
	require.NoError(t, err)

	plan := driver.Plan()
	require.Len(t, results, len(plan))
	best := optimum(ks)
	for i, res := range results {
		assert.Equal(t, plan[i], res.Entry(), "results are returned in sweep order")
		assert.Equal(t, "test-sweep", res.SweepID)
		assert.GreaterOrEqual(t, res.GenerationFirstAchieved, 0)
		assert.Less(t, res.GenerationFirstAchieved, res.GenerationBudget)
		assert.Equal(t, int64(res.GenerationBudget*16), res.Evaluations)
		assert.LessOrEqual(t, res.BestScore.Int(), best)
		assert.Len(t, res.BestGenome, ks.NumItems())

		rescored, err := score.NewCliffScorer(ks).Score(res.BestGenome)
		require.NoError(t, err)
		assert.True(t, rescored.Equal(res.BestScore), "stored genome must reproduce the best score")
	}
	assert.Equal(t, stripElapsed(results), stripElapsed(sink.results), "single-run parallelism emits in sweep order")
	assert.Equal(t, int64(len(plan)), rec.completed.Load())
	assert.Zero(t, rec.failed.Load())
	assert.False(t, sink.closed, "driver does not own sinks")
}

func TestDriverSweepIsReproducible(t *testing.T) {
	ks := randomInstance(t, 14, 2)
	cfg := testDriverConfig()
	cfg.Parallelism = 3
	cfg.CacheSize = 256

	run := func() []RunResult {
		sink := &collectSink{}
		driver, err := NewDriver(cfg, ks, WithSink(sink))
		require.NoError(t, err)
		results, err := driver.Run(context.Background())
		require.NoError(t, err)
		require.Len(t, sink.results, len(results))
		return stripElapsed(results)
	}

	first := run()
	second := run()
	assert.Equal(t, first, second)

	cfg.Parallelism = 1
	cfg.CacheSize = 0
	cfg.ParallelEvaluation = false
	serial := run()
	assert.Equal(t, first, serial, "parallelism does not change outcomes")
}

func TestDriverBestOfRunBeatsFinalGeneration(t *testing.T) {
	ks := randomInstance(t, 12, 5)
	cfg := testDriverConfig()
	cfg.EliteCount = 0
	driver, err := NewDriver(cfg, ks)
	require.NoError(t, err)

	entry := driver.Plan()[0]
	res, err := driver.RunEntry(context.Background(), entry)
	require.NoError(t, err)

	engine, err := evo.NewEngine(evo.Config[score.CliffScore]{
		BitLength:      ks.NumItems(),
		MaxGenerations: entry.GenerationBudget,
		PopulationSize: cfg.PopulationSize,
		Selector:       evo.TournamentSelector[score.CliffScore]{Size: cfg.TournamentSize},
		Mutator:        evo.BitFlipMutator{},
		Recombinator:   evo.UniformCrossover{},
		Scorer:         score.NewCliffScorer(ks),
		Compare:        score.Compare,
		Seed:           entry.Seed,
	})
	require.NoError(t, err)
	final, err := engine.Execute(context.Background())
	require.NoError(t, err)
	finalBest, ok := final.Best(score.Compare)
	require.True(t, ok)
	assert.GreaterOrEqual(t, score.Compare(res.BestScore, finalBest.Score), 0)
}

func failingScorer(ks *knapsack.Knapsack, after int64) evo.Scorer[score.CliffScore] {
	inner := score.NewCliffScorer(ks)
	var calls atomic.Int64
	return evo.ScorerFunc[score.CliffScore](func(g evo.Bitstring) (score.CliffScore, error) {
		if calls.Add(1) > after {
			return score.CliffScore{}, errors.New("scorer exploded")
		}
		return inner.Score(g)
	})
}

func TestDriverFailFastStopsSweep(t *testing.T) {
	ks := randomInstance(t, 10, 3)
	cfg := testDriverConfig()
	driver, err := NewDriver(cfg, ks)
	require.NoError(t, err)
	first := driver.Plan()[0]
	driver.scorer = failingScorer(ks, int64(first.GenerationBudget*cfg.PopulationSize))

	results, err := driver.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEngineExecution)
	var runErr *RunError
	require.True(t, errors.As(err, &runErr))
	assert.Equal(t, driver.Plan()[1], runErr.Entry)
	require.Len(t, results, 1)
	assert.Equal(t, first, results[0].Entry())
}

func TestDriverContinuePolicySkipsFailedRuns(t *testing.T) {
	ks := randomInstance(t, 10, 4)
	cfg := testDriverConfig()
	cfg.FailurePolicy = Continue
	rec := &countingRecorder{}
	driver, err := NewDriver(cfg, ks, WithRecorder(rec))
	require.NoError(t, err)
	first := driver.Plan()[0]
	driver.scorer = failingScorer(ks, int64(first.GenerationBudget*cfg.PopulationSize))

	results, err := driver.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEngineExecution)
	require.Len(t, results, 1)
	assert.Equal(t, int64(len(driver.Plan())-1), rec.failed.Load())
	assert.Equal(t, int64(1), rec.completed.Load())
}

func TestDriverSinkFailureAbortsSweep(t *testing.T) {
	ks := randomInstance(t, 10, 6)
	sink := &collectSink{failAfter: 2}
	driver, err := NewDriver(testDriverConfig(), ks, WithSink(sink))
	require.NoError(t, err)

	_, err = driver.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sink full")
	assert.Len(t, sink.results, 2)
}

func TestNewDriverValidates(t *testing.T) {
	ks := randomInstance(t, 5, 1)
	_, err := NewDriver(testDriverConfig(), nil)
	assert.Error(t, err)

	cfg := testDriverConfig()
	cfg.PopulationSize = 0
	_, err = NewDriver(cfg, ks)
	assert.Error(t, err)

	cfg = testDriverConfig()
	cfg.Recombinator = "nope"
	_, err = NewDriver(cfg, ks)
	assert.Error(t, err)

	cfg = testDriverConfig()
	cfg.FailurePolicy = "retry"
	_, err = NewDriver(cfg, ks)
	assert.Error(t, err)

	cfg = testDriverConfig()
	cfg.Sweep = SweepConfig{}
	_, err = NewDriver(cfg, ks)
	assert.Error(t, err)
}

func TestMultiSink(t *testing.T) {
	a, b := &collectSink{}, &collectSink{}
	sinks := MultiSink{a, b}
	require.NoError(t, sinks.Write(context.Background(), RunResult{RunIndex: 4}))
	require.NoError(t, sinks.Close())
	assert.Len(t, a.results, 1)
	assert.Len(t, b.results, 1)
	assert.True(t, a.closed && b.closed)
}

func TestDriverLogsGenerationStatsAtDebug(t *testing.T) {
	ks := randomInstance(t, 10, 4)
	cfg := testDriverConfig()
	cfg.Sweep = SweepConfig{BaselineBudget: 3, BaselineRuns: 1, BaseSeed: 9}

	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	driver, err := NewDriver(cfg, ks, WithLogger(logger))
	require.NoError(t, err)
	_, err = driver.Run(context.Background())
	require.NoError(t, err)

	var generations, completed int
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		var rec map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &rec))
		switch rec["msg"] {
		case "generation evaluated":
			assert.Equal(t, float64(generations), rec["gen"])
			distinct, ok := rec["distinct"].(float64)
			require.True(t, ok)
			assert.GreaterOrEqual(t, distinct, 1.0)
			assert.LessOrEqual(t, distinct, float64(cfg.PopulationSize))
			generations++
		case "run completed":
			assert.Equal(t, 3.0, rec["generations"])
			completed++
		}
	}
	assert.Equal(t, 3, generations)
	assert.Equal(t, 1, completed)
}

func TestDriverSkipsGenerationStatsAboveDebug(t *testing.T) {
	ks := randomInstance(t, 10, 4)
	cfg := testDriverConfig()
	cfg.Sweep = SweepConfig{BaselineBudget: 3, BaselineRuns: 1, BaseSeed: 9}

	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
	driver, err := NewDriver(cfg, ks, WithLogger(logger))
	require.NoError(t, err)
	_, err = driver.Run(context.Background())
	require.NoError(t, err)
	assert.NotContains(t, buf.String(), "generation evaluated")
	assert.Contains(t, buf.String(), `"generations":3`)
}
