package experiment

import (
	"fmt"
	"time"

	"knapsweep/internal/evo"
	"knapsweep/internal/model"
	"knapsweep/internal/score"
)

type Group string

const (
	GroupBaseline    Group = "baseline"
	GroupIncremental Group = "incremental"
)

// RunResult summarizes one completed run. BestScore is the best score seen in
// any generation, not only the last one.
type RunResult struct {
	SweepID                 string
	Group                   Group
	RunIndex                int
	GenerationBudget        int
	Seed                    int64
	BestScore               score.CliffScore
	BestGenome              evo.Bitstring
	GenerationFirstAchieved int
	Evaluations             int64
	Elapsed                 time.Duration
}

func (r RunResult) Entry() Entry {
	return Entry{Group: r.Group, GenerationBudget: r.GenerationBudget, RunIndex: r.RunIndex, Seed: r.Seed}
}

func (r RunResult) Record() model.RunRecord {
	return model.RunRecord{
		SweepID:                 r.SweepID,
		Group:                   string(r.Group),
		RunIndex:                r.RunIndex,
		GenerationBudget:        r.GenerationBudget,
		Seed:                    r.Seed,
		BestScore:               r.BestScore.Int(),
		Feasible:                r.BestScore.IsFeasible(),
		BestGenome:              r.BestGenome.String(),
		GenerationFirstAchieved: r.GenerationFirstAchieved,
		Evaluations:             r.Evaluations,
		ElapsedSeconds:          r.Elapsed.Seconds(),
	}
}

func FromRecord(rec model.RunRecord) (RunResult, error) {
	best, err := score.FromInt(rec.BestScore)
	if err != nil {
		return RunResult{}, err
	}
	if best.IsFeasible() != rec.Feasible {
		return RunResult{}, fmt.Errorf("run record feasibility mismatch: score=%d feasible=%t", rec.BestScore, rec.Feasible)
	}
	genome, err := evo.ParseBitstring(rec.BestGenome)
	if err != nil {
		return RunResult{}, fmt.Errorf("run record genome: %w", err)
	}
	return RunResult{
		SweepID:                 rec.SweepID,
		Group:                   Group(rec.Group),
		RunIndex:                rec.RunIndex,
		GenerationBudget:        rec.GenerationBudget,
		Seed:                    rec.Seed,
		BestScore:               best,
		BestGenome:              genome,
		GenerationFirstAchieved: rec.GenerationFirstAchieved,
		Evaluations:             rec.Evaluations,
		Elapsed:                 time.Duration(rec.ElapsedSeconds * float64(time.Second)),
	}, nil
}
