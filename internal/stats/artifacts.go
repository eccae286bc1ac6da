package stats

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"knapsweep/internal/model"
)

const sweepIndexFile = "sweep_index.json"

type SweepArtifacts struct {
	Sweep     model.SweepRecord `json:"sweep"`
	Summaries []BudgetSummary   `json:"summaries"`
}

type SweepIndexEntry struct {
	SweepID      string `json:"sweep_id"`
	Instance     string `json:"instance"`
	Runs         int    `json:"runs"`
	Status       string `json:"status"`
	BestScore    int64  `json:"best_score"`
	CreatedAtUTC string `json:"created_at_utc"`
}

// WriteSweepArtifacts stores the sweep description and its per-budget
// summaries under baseDir/<sweep id>.
func WriteSweepArtifacts(baseDir string, artifacts SweepArtifacts) (string, error) {
	if artifacts.Sweep.ID == "" {
		return "", fmt.Errorf("sweep id is required")
	}

	sweepDir := filepath.Join(baseDir, artifacts.Sweep.ID)
	if err := os.MkdirAll(sweepDir, 0o755); err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(sweepDir, "sweep.json"), artifacts.Sweep); err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(sweepDir, "summary.json"), artifacts.Summaries); err != nil {
		return "", err
	}
	return sweepDir, nil
}

func ReadSweepSummaries(baseDir, sweepID string) ([]BudgetSummary, bool, error) {
	data, err := os.ReadFile(filepath.Join(baseDir, sweepID, "summary.json"))
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

func AppendSweepIndex(baseDir string, entry SweepIndexEntry) error {
	if entry.SweepID == "" {
		return fmt.Errorf("sweep id is required")
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return err
	}

	index, err := ListSweepIndex(baseDir)
	if err != nil {
		return err
	}
	for i := range index {
		if index[i].SweepID == entry.SweepID {
			index[i] = entry
			return writeJSON(filepath.Join(baseDir, sweepIndexFile), index)
		}
	}
	index = append(index, entry)
	return writeJSON(filepath.Join(baseDir, sweepIndexFile), index)
}

// ListSweepIndex returns index entries newest first.
func ListSweepIndex(baseDir string) ([]SweepIndexEntry, error) {
	data, err := os.ReadFile(filepath.Join(baseDir, sweepIndexFile))
	if err != nil {
		if os.IsNotExist(err) {
			return []SweepIndexEntry{}, nil
		}
		return nil, err
	}

	var entries []SweepIndexEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, err
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return model.TimestampAfter(entries[i].CreatedAtUTC, entries[j].CreatedAtUTC)
	})
	return entries, nil
}

func writeJSON(path string, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o644)
}
