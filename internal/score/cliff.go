package score

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// InfeasibleScore is the integer projection of every over-capacity selection.
// Feasible value sums are never negative, so it sorts below all of them.
const InfeasibleScore int64 = -1

// CliffScore is either Feasible(valueSum) or Infeasible. Exceeding capacity
// drops a selection below every feasible one regardless of its value.
type CliffScore struct {
	feasible bool
	value    int64
}

func Feasible(valueSum int64) CliffScore {
	return CliffScore{feasible: true, value: valueSum}
}

func Infeasible() CliffScore {
	return CliffScore{}
}

// Evaluate applies the cliff rule to the aggregated sums of a selection.
func Evaluate(valueSum, weightSum, capacity int64) CliffScore {
	if weightSum > capacity {
		return Infeasible()
	}
	return Feasible(valueSum)
}

// Compare orders a and b: any feasible score beats any infeasible one,
// feasible scores are ordered by value sum, and infeasible scores are equal.
func Compare(a, b CliffScore) int {
	switch {
	case a.feasible && b.feasible:
		switch {
		case a.value < b.value:
			return -1
		case a.value > b.value:
			return 1
		default:
			return 0
		}
	case a.feasible:
		return 1
	case b.feasible:
		return -1
	default:
		return 0
	}
}

func (s CliffScore) Cmp(o CliffScore) int {
	return Compare(s, o)
}

func (s CliffScore) Less(o CliffScore) bool {
	return Compare(s, o) < 0
}

func (s CliffScore) Equal(o CliffScore) bool {
	return Compare(s, o) == 0
}

func (s CliffScore) IsFeasible() bool {
	return s.feasible
}

// Value returns the value sum and whether the score is feasible.
func (s CliffScore) Value() (int64, bool) {
	return s.value, s.feasible
}

// Int projects the score onto integers, preserving order.
func (s CliffScore) Int() int64 {
	if !s.feasible {
		return InfeasibleScore
	}
	return s.value
}

func (s CliffScore) String() string {
	if !s.feasible {
		return "infeasible"
	}
	return strconv.FormatInt(s.value, 10)
}

// FromInt is the inverse of Int.
func FromInt(v int64) (CliffScore, error) {
	switch {
	case v == InfeasibleScore:
		return Infeasible(), nil
	case v >= 0:
		return Feasible(v), nil
	default:
		return CliffScore{}, fmt.Errorf("invalid cliff score %d", v)
	}
}

func (s CliffScore) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Int())
}

func (s *CliffScore) UnmarshalJSON(data []byte) error {
	var v int64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	parsed, err := FromInt(v)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
