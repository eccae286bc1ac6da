package experiment

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"knapsweep/internal/evo"
	"knapsweep/internal/score"
)

func scored(bits string, s score.CliffScore) evo.Scored[score.CliffScore] {
	genome, err := evo.ParseBitstring(bits)
	if err != nil {
		panic(err)
	}
	return evo.Scored[score.CliffScore]{Genome: genome, Score: s}
}

func TestAccumulatorKeepsFirstGenerationOfMaximum(t *testing.T) {
	acc := NewAccumulator()
	for gen, v := range []int64{5, 5, 8, 3, 8} {
		acc.Observe(gen, scored("101", score.Feasible(v)))
	}

	best, gen, ok := acc.Best()
	require.True(t, ok)
	assert.Equal(t, int64(8), best.Score.Int())
	assert.Equal(t, 2, gen)
	assert.Equal(t, 5, acc.Generations())
}

func TestAccumulatorCliffOrdering(t *testing.T) {
	acc := NewAccumulator()
	acc.Observe(0, scored("111", score.Infeasible()))
	acc.Observe(1, scored("111", score.Infeasible()))
	_, gen, _ := acc.Best()
	assert.Equal(t, 0, gen, "equal infeasible scores do not replace")

	acc.Observe(2, scored("000", score.Feasible(0)))
	best, gen, _ := acc.Best()
	assert.Equal(t, 2, gen)
	assert.True(t, best.Score.IsFeasible())

	acc.Observe(3, scored("111", score.Infeasible()))
	best, gen, _ = acc.Best()
	assert.Equal(t, 2, gen)
	assert.Equal(t, "000", best.Genome.String())
}

func TestAccumulatorCopiesGenome(t *testing.T) {
	acc := NewAccumulator()
	item := scored("110", score.Feasible(7))
	acc.Observe(0, item)
	item.Genome[0] = false

	best, _, _ := acc.Best()
	assert.Equal(t, "110", best.Genome.String())
}

func TestAccumulatorFinalize(t *testing.T) {
	entry := Entry{Group: GroupIncremental, GenerationBudget: 10, RunIndex: 3, Seed: 99}

	_, err := NewAccumulator().Finalize("s", entry, 0, 0)
	require.ErrorIs(t, err, ErrEmptyRun)

	acc := NewAccumulator()
	acc.Observe(0, scored("01", score.Feasible(4)))
	acc.Observe(1, scored("11", score.Feasible(6)))
	res, err := acc.Finalize("s", entry, 40, 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, RunResult{
		SweepID:                 "s",
		Group:                   GroupIncremental,
		RunIndex:                3,
		GenerationBudget:        10,
		Seed:                    99,
		BestScore:               score.Feasible(6),
		BestGenome:              evo.Bitstring{true, true},
		GenerationFirstAchieved: 1,
		Evaluations:             40,
		Elapsed:                 2 * time.Second,
	}, res)
	assert.Equal(t, entry, res.Entry())
}

func TestAccumulatorInspectorUsesGenerationBest(t *testing.T) {
	acc := NewAccumulator()
	inspect := acc.Inspector(nil)

	require.NoError(t, inspect(0, evo.Population[score.CliffScore]{
		scored("11", score.Infeasible()),
		scored("01", score.Feasible(2)),
		scored("10", score.Feasible(3)),
	}))
	require.NoError(t, inspect(1, evo.Population[score.CliffScore]{
		scored("00", score.Feasible(0)),
		scored("10", score.Feasible(3)),
	}))

	best, gen, ok := acc.Best()
	require.True(t, ok)
	assert.Equal(t, 0, gen)
	assert.Equal(t, "10", best.Genome.String())

	assert.Error(t, inspect(2, nil))
}

func TestRecordRoundTrip(t *testing.T) {
	res := RunResult{
		SweepID:                 "sweep",
		Group:                   GroupBaseline,
		RunIndex:                1,
		GenerationBudget:        20,
		Seed:                    5,
		BestScore:               score.Infeasible(),
		BestGenome:              evo.Bitstring{true, false, true},
		GenerationFirstAchieved: 0,
		Evaluations:             200,
		Elapsed:                 1500 * time.Millisecond,
	}
	rec := res.Record()
	assert.Equal(t, int64(-1), rec.BestScore)
	assert.False(t, rec.Feasible)
	assert.Equal(t, "101", rec.BestGenome)

	back, err := FromRecord(rec)
	require.NoError(t, err)
	assert.Equal(t, res, back)

	rec.Feasible = true
	_, err = FromRecord(rec)
	assert.Error(t, err)
}
