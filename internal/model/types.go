package model

import "time"

// TimestampLayout is RFC 3339 with a fixed nine-digit fraction, so stored
// timestamps sort as text in time order.
const TimestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// NormalizeTimestamp rewrites any RFC 3339 value into TimestampLayout.
// Unparseable values are returned unchanged.
func NormalizeTimestamp(s string) string {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return s
	}
	return FormatTimestamp(t)
}

// TimestampAfter reports whether a is later than b. Values that do not
// parse fall back to text order.
func TimestampAfter(a, b string) bool {
	ta, errA := time.Parse(time.RFC3339Nano, a)
	tb, errB := time.Parse(time.RFC3339Nano, b)
	if errA != nil || errB != nil {
		return a > b
	}
	return ta.After(tb)
}

// VersionedRecord captures schema and codec evolution for persistent data.
type VersionedRecord struct {
	SchemaVersion int `json:"schema_version"`
	CodecVersion  int `json:"codec_version"`
}

// SweepRecord describes one execution of an experiment matrix.
type SweepRecord struct {
	VersionedRecord
	ID                 string `json:"id"`
	Instance           string `json:"instance"`
	NumItems           int    `json:"num_items"`
	Capacity           int64  `json:"capacity"`
	BaselineBudget     int    `json:"baseline_budget"`
	BaselineRuns       int    `json:"baseline_runs"`
	IncrementalBudgets []int  `json:"incremental_budgets,omitempty"`
	IncrementalRuns    int    `json:"incremental_runs"`
	BaseSeed           int64  `json:"base_seed"`
	PopulationSize     int    `json:"population_size"`
	StartedAtUTC       string `json:"started_at_utc"`
	CompletedAtUTC     string `json:"completed_at_utc,omitempty"`
	Status             string `json:"status"`
}

// RunRecord is the flattened, persisted form of one run result.
type RunRecord struct {
	VersionedRecord
	SweepID                 string  `json:"sweep_id"`
	Group                   string  `json:"experiment_group"`
	RunIndex                int     `json:"run_index"`
	GenerationBudget        int     `json:"generation_budget"`
	Seed                    int64   `json:"seed"`
	BestScore               int64   `json:"best_score"`
	Feasible                bool    `json:"feasible"`
	BestGenome              string  `json:"best_genome"`
	GenerationFirstAchieved int     `json:"generation_first_achieved"`
	Evaluations             int64   `json:"evaluations"`
	ElapsedSeconds          float64 `json:"elapsed_seconds"`
}

const (
	SweepStatusRunning   = "running"
	SweepStatusCompleted = "completed"
	SweepStatusFailed    = "failed"
)
