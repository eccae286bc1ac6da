package stats

import (
	"encoding/json"
	"math"
	"os"
	"sort"

	"knapsweep/internal/model"
)

// BudgetSummary aggregates the runs of one (group, budget) cell. Score
// statistics cover feasible runs only; infeasible runs are counted.
type BudgetSummary struct {
	Group                       string  `json:"experiment_group"`
	GenerationBudget            int     `json:"generation_budget"`
	Runs                        int     `json:"runs"`
	FeasibleRuns                int     `json:"feasible_runs"`
	MeanBestScore               float64 `json:"mean_best_score"`
	StdDevBestScore             float64 `json:"stddev_best_score"`
	MinBestScore                int64   `json:"min_best_score"`
	MaxBestScore                int64   `json:"max_best_score"`
	MedianBestScore             float64 `json:"median_best_score"`
	MeanGenerationFirstAchieved float64 `json:"mean_generation_first_achieved"`
	MeanElapsedSeconds          float64 `json:"mean_elapsed_seconds"`
}

type cellKey struct {
	group  string
	budget int
}

// Summarize groups records by (group, budget). Baseline cells sort before
// incremental ones, then by ascending budget.
func Summarize(records []model.RunRecord) []BudgetSummary {
	cells := map[cellKey][]model.RunRecord{}
	var keys []cellKey
	for _, rec := range records {
		key := cellKey{group: rec.Group, budget: rec.GenerationBudget}
		if _, ok := cells[key]; !ok {
			keys = append(keys, key)
		}
		cells[key] = append(cells[key], rec)
	}
	sort.Slice(keys, func(i, j int) bool {
		ri, rj := groupRank(keys[i].group), groupRank(keys[j].group)
		if ri != rj {
			return ri < rj
		}
		if keys[i].group != keys[j].group {
			return keys[i].group < keys[j].group
		}
		return keys[i].budget < keys[j].budget
	})

	out := make([]BudgetSummary, 0, len(keys))
	for _, key := range keys {
		out = append(out, summarizeCell(key, cells[key]))
	}
	return out
}

func groupRank(group string) int {
	switch group {
	case "baseline":
		return 0
	case "incremental":
		return 1
	default:
		return 2
	}
}

func summarizeCell(key cellKey, runs []model.RunRecord) BudgetSummary {
	s := BudgetSummary{Group: key.group, GenerationBudget: key.budget, Runs: len(runs)}

	var scores []float64
	var firstGen, elapsed float64
	for _, rec := range runs {
		firstGen += float64(rec.GenerationFirstAchieved)
		elapsed += rec.ElapsedSeconds
		if !rec.Feasible {
			continue
		}
		if len(scores) == 0 || rec.BestScore < s.MinBestScore {
			s.MinBestScore = rec.BestScore
		}
		if len(scores) == 0 || rec.BestScore > s.MaxBestScore {
			s.MaxBestScore = rec.BestScore
		}
		scores = append(scores, float64(rec.BestScore))
	}
	s.FeasibleRuns = len(scores)
	s.MeanGenerationFirstAchieved = firstGen / float64(len(runs))
	s.MeanElapsedSeconds = elapsed / float64(len(runs))
	if len(scores) == 0 {
		return s
	}

	s.MeanBestScore = mean(scores)
	s.StdDevBestScore = stddev(scores, s.MeanBestScore)
	s.MedianBestScore = median(scores)
	return s
}

func mean(values []float64) float64 {
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// stddev is the population standard deviation.
func stddev(values []float64, m float64) float64 {
	var sq float64
	for _, v := range values {
		sq += (v - m) * (v - m)
	}
	return math.Sqrt(sq / float64(len(values)))
}

func median(values []float64) float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}

func WriteSummaryJSON(path string, summaries []BudgetSummary) error {
	return writeJSON(path, summaries)
}

func ReadSummaryJSON(path string) ([]BudgetSummary, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	var summaries []BudgetSummary
	if err := json.Unmarshal(data, &summaries); err != nil {
		return nil, false, err
	}
	return summaries, true, nil
}
