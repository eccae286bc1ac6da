package experiment

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

type Entry struct {
	Group            Group
	GenerationBudget int
	RunIndex         int
	Seed             int64
}

func (e Entry) String() string {
	return fmt.Sprintf("%s/budget=%d/run=%d", e.Group, e.GenerationBudget, e.RunIndex)
}

// SweepConfig describes the experiment matrix: a baseline budget repeated
// BaselineRuns times, then every incremental budget repeated IncrementalRuns
// times.
type SweepConfig struct {
	BaselineBudget     int
	BaselineRuns       int
	IncrementalBudgets []int
	IncrementalRuns    int
	BaseSeed           int64
}

func (c SweepConfig) Validate() error {
	if c.BaselineRuns < 0 || c.IncrementalRuns < 0 {
		return fmt.Errorf("run counts must be >= 0")
	}
	if c.BaselineRuns > 0 && c.BaselineBudget <= 0 {
		return fmt.Errorf("baseline budget must be > 0")
	}
	for _, budget := range c.IncrementalBudgets {
		if budget <= 0 {
			return fmt.Errorf("incremental budgets must be > 0, got %d", budget)
		}
	}
	if c.BaselineRuns == 0 && (c.IncrementalRuns == 0 || len(c.IncrementalBudgets) == 0) {
		return fmt.Errorf("sweep has no runs")
	}
	return nil
}

// Plan expands the matrix in sweep order.
func (c SweepConfig) Plan() []Entry {
	entries := make([]Entry, 0, c.BaselineRuns+len(c.IncrementalBudgets)*c.IncrementalRuns)
	for run := 0; run < c.BaselineRuns; run++ {
		entries = append(entries, Entry{
			Group:            GroupBaseline,
			GenerationBudget: c.BaselineBudget,
			RunIndex:         run,
			Seed:             SeedFor(c.BaseSeed, GroupBaseline, c.BaselineBudget, run),
		})
	}
	for _, budget := range c.IncrementalBudgets {
		for run := 0; run < c.IncrementalRuns; run++ {
			entries = append(entries, Entry{
				Group:            GroupIncremental,
				GenerationBudget: budget,
				RunIndex:         run,
				Seed:             SeedFor(c.BaseSeed, GroupIncremental, budget, run),
			})
		}
	}
	return entries
}

// SeedFor derives a stable, non-negative seed for one cell of the matrix.
func SeedFor(base int64, group Group, budget, runIndex int) int64 {
	buf := make([]byte, 0, 24+len(group))
	buf = binary.LittleEndian.AppendUint64(buf, uint64(base))
	buf = binary.LittleEndian.AppendUint64(buf, uint64(budget))
	buf = binary.LittleEndian.AppendUint64(buf, uint64(runIndex))
	buf = append(buf, string(group)...)
	return int64(xxhash.Sum64(buf) >> 1)
}

// ParseBudgets accepts "start:stop:step" (inclusive), a comma separated list,
// or an empty string.
func ParseBudgets(spec string) ([]int, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return nil, nil
	}
	if strings.Contains(spec, ":") {
		parts := strings.Split(spec, ":")
		if len(parts) < 2 || len(parts) > 3 {
			return nil, fmt.Errorf("budget range must be start:stop[:step], got %q", spec)
		}
		nums := make([]int, 0, 3)
		for _, p := range parts {
			n, err := strconv.Atoi(strings.TrimSpace(p))
			if err != nil {
				return nil, fmt.Errorf("budget range %q: %w", spec, err)
			}
			nums = append(nums, n)
		}
		step := 1
		if len(nums) == 3 {
			step = nums[2]
		}
		if step <= 0 || nums[0] <= 0 || nums[1] < nums[0] {
			return nil, fmt.Errorf("invalid budget range %q", spec)
		}
		var out []int
		for b := nums[0]; b <= nums[1]; b += step {
			out = append(out, b)
		}
		return out, nil
	}

	var out []int
	for _, p := range strings.Split(spec, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("budget list %q: %w", spec, err)
		}
		if n <= 0 {
			return nil, fmt.Errorf("budgets must be > 0, got %d", n)
		}
		out = append(out, n)
	}
	return out, nil
}
