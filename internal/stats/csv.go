package stats

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/klauspost/compress/zstd"

	"knapsweep/internal/experiment"
	"knapsweep/internal/model"
)

// Columns is the run record schema, in output order. The first six columns
// are the core record; the rest are supplementary.
var Columns = []string{
	"experiment_group",
	"run_index",
	"generation_budget",
	"best_score",
	"generation_first_achieved",
	"elapsed_seconds",
	"seed",
	"evaluations",
	"feasible",
	"best_genome",
}

const requiredColumns = 6

func RecordRow(rec model.RunRecord) []string {
	return []string{
		rec.Group,
		strconv.Itoa(rec.RunIndex),
		strconv.Itoa(rec.GenerationBudget),
		strconv.FormatInt(rec.BestScore, 10),
		strconv.Itoa(rec.GenerationFirstAchieved),
		strconv.FormatFloat(rec.ElapsedSeconds, 'f', 6, 64),
		strconv.FormatInt(rec.Seed, 10),
		strconv.FormatInt(rec.Evaluations, 10),
		strconv.FormatBool(rec.Feasible),
		rec.BestGenome,
	}
}

// CSVSink streams run records to a CSV file, zstd-compressed when the path
// ends in .zst.
type CSVSink struct {
	file *os.File
	zw   *zstd.Encoder
	w    *csv.Writer
}

func NewCSVSink(path string) (*CSVSink, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	file, err := os.Create(path)
	if err != nil {
		return nil, err
	}

	s := &CSVSink{file: file}
	var out io.Writer = file
	if isZstd(path) {
		zw, err := zstd.NewWriter(file)
		if err != nil {
			_ = file.Close()
			return nil, fmt.Errorf("create zstd writer: %w", err)
		}
		s.zw = zw
		out = zw
	}
	s.w = csv.NewWriter(out)
	if err := s.w.Write(Columns); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

func (s *CSVSink) Write(_ context.Context, result experiment.RunResult) error {
	if err := s.w.Write(RecordRow(result.Record())); err != nil {
		return err
	}
	s.w.Flush()
	return s.w.Error()
}

func (s *CSVSink) Close() error {
	s.w.Flush()
	errs := []error{s.w.Error()}
	if s.zw != nil {
		errs = append(errs, s.zw.Close())
	}
	errs = append(errs, s.file.Close())
	return errors.Join(errs...)
}

// ReadResultsCSV parses a file written by CSVSink. Columns are matched by
// header name; supplementary columns are optional.
func ReadResultsCSV(path string) ([]model.RunRecord, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var in io.Reader = file
	if isZstd(path) {
		zr, err := zstd.NewReader(file)
		if err != nil {
			return nil, fmt.Errorf("create zstd reader: %w", err)
		}
		defer zr.Close()
		in = zr
	}

	reader := csv.NewReader(in)
	reader.FieldsPerRecord = -1
	header, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return nil, fmt.Errorf("results file %s is empty", path)
		}
		return nil, err
	}
	index := make(map[string]int, len(header))
	for i, name := range header {
		index[strings.TrimSpace(name)] = i
	}
	for _, name := range Columns[:requiredColumns] {
		if _, ok := index[name]; !ok {
			return nil, fmt.Errorf("results header is missing column %q", name)
		}
	}

	var records []model.RunRecord
	line := 1
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		line++
		rec, err := parseRow(index, row)
		if err != nil {
			return nil, fmt.Errorf("results line %d: %w", line, err)
		}
		records = append(records, rec)
	}
	return records, nil
}

func parseRow(index map[string]int, row []string) (model.RunRecord, error) {
	field := func(name string) (string, bool) {
		i, ok := index[name]
		if !ok || i >= len(row) {
			return "", false
		}
		return strings.TrimSpace(row[i]), true
	}
	intField := func(name string) (int64, error) {
		v, ok := field(name)
		if !ok {
			return 0, fmt.Errorf("missing %s", name)
		}
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%s: %w", name, err)
		}
		return n, nil
	}

	var rec model.RunRecord
	group, _ := field("experiment_group")
	rec.Group = group

	runIndex, err := intField("run_index")
	if err != nil {
		return rec, err
	}
	budget, err := intField("generation_budget")
	if err != nil {
		return rec, err
	}
	best, err := intField("best_score")
	if err != nil {
		return rec, err
	}
	firstGen, err := intField("generation_first_achieved")
	if err != nil {
		return rec, err
	}
	elapsedText, _ := field("elapsed_seconds")
	elapsed, err := strconv.ParseFloat(elapsedText, 64)
	if err != nil {
		return rec, fmt.Errorf("elapsed_seconds: %w", err)
	}
	rec.RunIndex = int(runIndex)
	rec.GenerationBudget = int(budget)
	rec.BestScore = best
	rec.Feasible = best >= 0
	rec.GenerationFirstAchieved = int(firstGen)
	rec.ElapsedSeconds = elapsed

	if _, ok := field("seed"); ok {
		if rec.Seed, err = intField("seed"); err != nil {
			return rec, err
		}
	}
	if _, ok := field("evaluations"); ok {
		if rec.Evaluations, err = intField("evaluations"); err != nil {
			return rec, err
		}
	}
	if v, ok := field("feasible"); ok && v != "" {
		if rec.Feasible, err = strconv.ParseBool(v); err != nil {
			return rec, fmt.Errorf("feasible: %w", err)
		}
	}
	if v, ok := field("best_genome"); ok {
		rec.BestGenome = v
	}
	return rec, nil
}

func isZstd(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".zst")
}
