package score

import (
	"encoding/json"
	"errors"
	"math"
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"knapsweep/internal/evo"
	"knapsweep/internal/knapsack"
)

func exampleKnapsack(t *testing.T) *knapsack.Knapsack {
	t.Helper()
	ks, err := knapsack.New("example", []knapsack.Item{
		{Weight: 2, Value: 3},
		{Weight: 3, Value: 4},
		{Weight: 4, Value: 5},
	}, 5)
	require.NoError(t, err)
	return ks
}

func mustBits(t *testing.T, s string) evo.Bitstring {
	t.Helper()
	bits, err := evo.ParseBitstring(s)
	require.NoError(t, err)
	return bits
}

func TestCliffScorerExamples(t *testing.T) {
	scorer := NewCliffScorer(exampleKnapsack(t))

	atCapacity, err := scorer.Score(mustBits(t, "110"))
	require.NoError(t, err)
	assert.True(t, atCapacity.IsFeasible())
	assert.Equal(t, int64(7), atCapacity.Int())

	over, err := scorer.Score(mustBits(t, "111"))
	require.NoError(t, err)
	assert.False(t, over.IsFeasible())
	assert.Equal(t, InfeasibleScore, over.Int())
	assert.Less(t, over.Int(), atCapacity.Int())
	assert.True(t, over.Less(atCapacity))

	empty, err := scorer.Score(mustBits(t, "000"))
	require.NoError(t, err)
	assert.True(t, empty.IsFeasible())
	assert.Equal(t, int64(0), empty.Int())
	assert.True(t, over.Less(empty), "the empty selection is a feasible lower bound")
}

func TestCliffScorerRejectsWrongLength(t *testing.T) {
	scorer := NewCliffScorer(exampleKnapsack(t))
	for _, bits := range []string{"11", "1100", ""} {
		_, err := scorer.Score(mustBits(t, bits))
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrGenomeLengthMismatch)
		var lerr *GenomeLengthError
		require.True(t, errors.As(err, &lerr))
		assert.Equal(t, 3, lerr.Want)
	}
}

func TestCliffScorerNearInt64Limits(t *testing.T) {
	half := int64(math.MaxInt64 / 2)
	ks, err := knapsack.New("limits", []knapsack.Item{
		{Weight: half, Value: half},
		{Weight: half + 1, Value: half + 1},
	}, math.MaxInt64-1)
	require.NoError(t, err)
	scorer := NewCliffScorer(ks)

	both, err := scorer.Score(mustBits(t, "11"))
	require.NoError(t, err)
	assert.False(t, both.IsFeasible(), "weight sum above capacity must stay infeasible")

	first, err := scorer.Score(mustBits(t, "10"))
	require.NoError(t, err)
	require.True(t, first.IsFeasible())
	assert.Equal(t, half, first.Int())

	empty, err := scorer.Score(mustBits(t, "00"))
	require.NoError(t, err)
	assert.Equal(t, 1, Compare(first, empty))
	assert.Equal(t, -1, Compare(both, empty))

	value, weight, err := scorer.Totals(mustBits(t, "11"))
	require.NoError(t, err)
	assert.Equal(t, int64(math.MaxInt64), value)
	assert.Equal(t, int64(math.MaxInt64), weight)

	_, err = knapsack.New("wraps", []knapsack.Item{{Weight: 0, Value: math.MaxInt64}, {Weight: 0, Value: 1}}, 0)
	assert.ErrorIs(t, err, knapsack.ErrTotalOverflow)
}

func TestCompareCliffRule(t *testing.T) {
	assert.Equal(t, 1, Compare(Feasible(0), Infeasible()))
	assert.Equal(t, -1, Compare(Infeasible(), Feasible(0)))
	assert.Equal(t, 0, Compare(Infeasible(), Infeasible()))
	assert.Equal(t, 0, Compare(Evaluate(100, 10, 5), Evaluate(1, 6, 5)), "infeasible selections are order-equal")
	assert.Equal(t, 1, Compare(Feasible(9), Feasible(3)))
	assert.Equal(t, -1, Compare(Feasible(3), Feasible(9)))
	assert.True(t, Feasible(4).Equal(Evaluate(4, 5, 5)))
	assert.Equal(t, 1, Feasible(1).Cmp(Evaluate(1000, 6, 5)))
}

func TestCliffScoreOrderingProperties(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	items := make([]knapsack.Item, 24)
	for i := range items {
		items[i] = knapsack.Item{Weight: int64(rng.Intn(20)), Value: int64(rng.Intn(30))}
	}
	ks, err := knapsack.New("random", items, 80)
	require.NoError(t, err)
	scorer := NewCliffScorer(ks)

	type selection struct {
		score  CliffScore
		value  int64
		weight int64
	}
	sample := func() selection {
		bits := evo.RandomBitstring(rng, ks.NumItems())
		var v, w int64
		for i, bit := range bits {
			if bit {
				v += items[i].Value
				w += items[i].Weight
			}
		}
		s, err := scorer.Score(bits)
		require.NoError(t, err)
		return selection{score: s, value: v, weight: w}
	}

	for i := 0; i < 2000; i++ {
		a, b := sample(), sample()
		aFeasible := a.weight <= ks.Capacity()
		bFeasible := b.weight <= ks.Capacity()
		require.Equal(t, aFeasible, a.score.IsFeasible())

		switch {
		case aFeasible && bFeasible:
			assert.Equal(t, a.value > b.value, Compare(a.score, b.score) > 0)
		case aFeasible && !bFeasible:
			assert.Equal(t, 1, Compare(a.score, b.score))
		case !aFeasible && bFeasible:
			assert.Equal(t, -1, Compare(a.score, b.score))
		default:
			assert.Equal(t, 0, Compare(a.score, b.score))
		}

		if Compare(a.score, b.score) > 0 {
			assert.Greater(t, a.score.Int(), b.score.Int())
		}
	}
}

func TestCliffScorerIsDeterministicUnderConcurrency(t *testing.T) {
	ks := exampleKnapsack(t)
	scorer := NewCliffScorer(ks)
	genomes := []evo.Bitstring{mustBits(t, "000"), mustBits(t, "110"), mustBits(t, "111"), mustBits(t, "011")}
	want := make([]CliffScore, len(genomes))
	for i, g := range genomes {
		s, err := scorer.Score(g)
		require.NoError(t, err)
		want[i] = s
	}

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for n := 0; n < 200; n++ {
				i := n % len(genomes)
				got, err := scorer.Score(genomes[i])
				assert.NoError(t, err)
				assert.Equal(t, want[i], got)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, exampleKnapsack(t).Items(), ks.Items())
}

func TestCachedScorer(t *testing.T) {
	inner := NewCliffScorer(exampleKnapsack(t))
	cached, err := NewCachedScorer(inner, 8)
	require.NoError(t, err)

	first, err := cached.Score(mustBits(t, "110"))
	require.NoError(t, err)
	second, err := cached.Score(mustBits(t, "110"))
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, int64(1), cached.Hits())
	assert.Equal(t, int64(1), cached.Misses())

	_, err = cached.Score(mustBits(t, "1"))
	assert.ErrorIs(t, err, ErrGenomeLengthMismatch)

	_, err = NewCachedScorer(nil, 8)
	assert.Error(t, err)
	_, err = NewCachedScorer(inner, 0)
	assert.Error(t, err)
}

func TestCliffScoreJSONAndIntProjection(t *testing.T) {
	data, err := json.Marshal(map[string]CliffScore{"a": Feasible(12), "b": Infeasible()})
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":12,"b":-1}`, string(data))

	var decoded map[string]CliffScore
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, Feasible(12), decoded["a"])
	assert.Equal(t, Infeasible(), decoded["b"])

	_, err = FromInt(-5)
	assert.Error(t, err)
	assert.Equal(t, "infeasible", Infeasible().String())
	assert.Equal(t, "12", Feasible(12).String())
}
