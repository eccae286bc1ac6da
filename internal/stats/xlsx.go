package stats

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"

	"knapsweep/internal/experiment"
	"knapsweep/internal/model"
)

const (
	runsSheet    = "runs"
	summarySheet = "summary"
)

var summaryColumns = []string{
	"experiment_group",
	"generation_budget",
	"runs",
	"feasible_runs",
	"mean_best_score",
	"stddev_best_score",
	"min_best_score",
	"max_best_score",
	"median_best_score",
	"mean_generation_first_achieved",
	"mean_elapsed_seconds",
}

// XLSXSink writes a workbook with a runs sheet and a per-budget summary
// sheet. Rows are buffered and the file is saved on Close.
type XLSXSink struct {
	path    string
	records []model.RunRecord
}

func NewXLSXSink(path string) (*XLSXSink, error) {
	if path == "" {
		return nil, fmt.Errorf("xlsx path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return &XLSXSink{path: path}, nil
}

func (s *XLSXSink) Write(_ context.Context, result experiment.RunResult) error {
	s.records = append(s.records, result.Record())
	return nil
}

func (s *XLSXSink) Close() error {
	return WriteWorkbook(s.path, s.records)
}

// WriteWorkbook saves records and their summaries to an xlsx file.
func WriteWorkbook(path string, records []model.RunRecord) (err error) {
	f := excelize.NewFile()
	defer func() {
		err = errors.Join(err, f.Close())
	}()

	if err := f.SetSheetName("Sheet1", runsSheet); err != nil {
		return err
	}
	if err := writeSheetRow(f, runsSheet, 1, stringsToAny(Columns)); err != nil {
		return err
	}
	for i, rec := range records {
		row := []any{
			rec.Group,
			rec.RunIndex,
			rec.GenerationBudget,
			rec.BestScore,
			rec.GenerationFirstAchieved,
			rec.ElapsedSeconds,
			rec.Seed,
			rec.Evaluations,
			rec.Feasible,
			rec.BestGenome,
		}
		if err := writeSheetRow(f, runsSheet, i+2, row); err != nil {
			return err
		}
	}

	if _, err := f.NewSheet(summarySheet); err != nil {
		return err
	}
	if err := writeSheetRow(f, summarySheet, 1, stringsToAny(summaryColumns)); err != nil {
		return err
	}
	for i, s := range Summarize(records) {
		row := []any{
			s.Group,
			s.GenerationBudget,
			s.Runs,
			s.FeasibleRuns,
			s.MeanBestScore,
			s.StdDevBestScore,
			s.MinBestScore,
			s.MaxBestScore,
			s.MedianBestScore,
			s.MeanGenerationFirstAchieved,
			s.MeanElapsedSeconds,
		}
		if err := writeSheetRow(f, summarySheet, i+2, row); err != nil {
			return err
		}
	}
	return f.SaveAs(path)
}

func writeSheetRow(f *excelize.File, sheet string, rowNum int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, rowNum)
	if err != nil {
		return err
	}
	return f.SetSheetRow(sheet, cell, &values)
}

func stringsToAny(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
