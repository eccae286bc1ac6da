package main

import (
	"fmt"
	"io"

	"github.com/fatih/color"

	"knapsweep/internal/stats"
)

var (
	headerColor   = color.New(color.Bold)
	groupColor    = color.New(color.FgCyan)
	bestColor     = color.New(color.FgGreen)
	infeasibleRow = color.New(color.FgRed)
)

func printSummaries(w io.Writer, summaries []stats.BudgetSummary) {
	if len(summaries) == 0 {
		return
	}
	headerColor.Fprintf(w, "%-12s %7s %5s %9s %10s %9s %6s %6s %9s %9s\n",
		"group", "budget", "runs", "feasible", "mean", "stddev", "min", "max", "median", "mean_gen")

	var top float64
	for _, s := range summaries {
		if s.FeasibleRuns > 0 && s.MeanBestScore > top {
			top = s.MeanBestScore
		}
	}
	for _, s := range summaries {
		groupColor.Fprintf(w, "%-12s", s.Group)
		if s.FeasibleRuns == 0 {
			infeasibleRow.Fprintf(w, " %7d %5d %9d %10s\n", s.GenerationBudget, s.Runs, 0, "infeasible")
			continue
		}
		mean := fmt.Sprintf("%10.2f", s.MeanBestScore)
		if s.MeanBestScore == top {
			mean = bestColor.Sprint(mean)
		}
		fmt.Fprintf(w, " %7d %5d %9d %s %9.2f %6d %6d %9.1f %9.2f\n",
			s.GenerationBudget, s.Runs, s.FeasibleRuns, mean, s.StdDevBestScore,
			s.MinBestScore, s.MaxBestScore, s.MedianBestScore, s.MeanGenerationFirstAchieved)
	}
}
