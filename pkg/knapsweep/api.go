package knapsweep

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"knapsweep/internal/evo"
	"knapsweep/internal/experiment"
	"knapsweep/internal/knapsack"
	"knapsweep/internal/logging"
	"knapsweep/internal/model"
	"knapsweep/internal/score"
	"knapsweep/internal/stats"
	"knapsweep/internal/storage"
)

const defaultDBPath = "knapsweep.db"

type Options struct {
	StoreKind string
	DBPath    string
	// ArtifactsDir receives sweep.json/summary.json per sweep and a sweep
	// index. Empty disables artifacts.
	ArtifactsDir string
	Logger       *slog.Logger
}

type Client struct {
	store        storage.Store
	artifactsDir string
	logger       *slog.Logger

	initOnce sync.Once
	initErr  error
}

type SweepRequest struct {
	// InstancePath is loaded when Instance is nil.
	InstancePath string
	Instance     *knapsack.Knapsack

	BaselineBudget     int
	BaselineRuns       int
	IncrementalBudgets []int
	IncrementalRuns    int
	Seed               int64

	PopulationSize     int
	EliteCount         int
	TournamentSize     int
	MutationRate       float64
	Recombinator       string
	ParallelEvaluation bool
	Workers            int
	Parallelism        int
	FailurePolicy      string
	CacheSize          int

	// Sinks receive every run as it completes. The caller closes them.
	Sinks    []experiment.Sink
	Recorder experiment.Recorder
}

type SweepSummary struct {
	SweepID      string
	Instance     string
	Status       string
	Results      []experiment.RunResult
	Summaries    []stats.BudgetSummary
	Best         score.CliffScore
	ArtifactsDir string
}

type ScoreRequest struct {
	InstancePath string
	Instance     *knapsack.Knapsack
	Genome       string
}

type ScoreResult struct {
	Instance  string
	Score     score.CliffScore
	ValueSum  int64
	WeightSum int64
	Capacity  int64
}

type RunsRequest struct {
	SweepID string
	Latest  bool
	Limit   int
}

type RunItem = model.RunRecord

type SweepItem struct {
	SweepID        string
	Instance       string
	Status         string
	StartedAtUTC   string
	CompletedAtUTC string
	BaseSeed       int64
	Runs           int
}

func New(opts Options) (*Client, error) {
	storeKind := opts.StoreKind
	if storeKind == "" {
		storeKind = storage.DefaultStoreKind
	}
	dbPath := opts.DBPath
	if dbPath == "" {
		dbPath = defaultDBPath
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}

	store, err := storage.NewStore(storeKind, dbPath)
	if err != nil {
		return nil, err
	}

	return &Client{
		store:        store,
		artifactsDir: opts.ArtifactsDir,
		logger:       logger,
	}, nil
}

func (c *Client) Close() error {
	return storage.CloseIfSupported(c.store)
}

func (c *Client) ensureStore(ctx context.Context) error {
	c.initOnce.Do(func() {
		c.initErr = c.store.Init(ctx)
	})
	return c.initErr
}

// Sweep runs the whole experiment matrix on one instance. On failure the
// summary still carries every run that completed.
func (c *Client) Sweep(ctx context.Context, req SweepRequest) (SweepSummary, error) {
	if err := c.ensureStore(ctx); err != nil {
		return SweepSummary{}, err
	}
	ks, err := resolveInstance(req.InstancePath, req.Instance)
	if err != nil {
		return SweepSummary{}, err
	}
	if req.PopulationSize <= 0 {
		req.PopulationSize = 50
	}

	policy, err := experiment.ParseFailurePolicy(req.FailurePolicy)
	if err != nil {
		return SweepSummary{}, err
	}
	sweepID := uuid.NewString()
	driverCfg := experiment.DriverConfig{
		SweepID: sweepID,
		Sweep: experiment.SweepConfig{
			BaselineBudget:     req.BaselineBudget,
			BaselineRuns:       req.BaselineRuns,
			IncrementalBudgets: append([]int(nil), req.IncrementalBudgets...),
			IncrementalRuns:    req.IncrementalRuns,
			BaseSeed:           req.Seed,
		},
		PopulationSize:     req.PopulationSize,
		EliteCount:         req.EliteCount,
		TournamentSize:     req.TournamentSize,
		MutationRate:       req.MutationRate,
		Recombinator:       req.Recombinator,
		ParallelEvaluation: req.ParallelEvaluation,
		Workers:            req.Workers,
		Parallelism:        req.Parallelism,
		FailurePolicy:      policy,
		CacheSize:          req.CacheSize,
	}

	sinks := experiment.MultiSink{storage.NewSink(c.store)}
	sinks = append(sinks, req.Sinks...)
	opts := []experiment.Option{experiment.WithSink(sinks), experiment.WithLogger(c.logger)}
	if req.Recorder != nil {
		opts = append(opts, experiment.WithRecorder(req.Recorder))
	}
	driver, err := experiment.NewDriver(driverCfg, ks, opts...)
	if err != nil {
		return SweepSummary{}, err
	}

	sweep := model.SweepRecord{
		VersionedRecord:    storage.CurrentVersion(),
		ID:                 sweepID,
		Instance:           ks.Name(),
		NumItems:           ks.NumItems(),
		Capacity:           ks.Capacity(),
		BaselineBudget:     driverCfg.Sweep.BaselineBudget,
		BaselineRuns:       driverCfg.Sweep.BaselineRuns,
		IncrementalBudgets: driverCfg.Sweep.IncrementalBudgets,
		IncrementalRuns:    driverCfg.Sweep.IncrementalRuns,
		BaseSeed:           driverCfg.Sweep.BaseSeed,
		PopulationSize:     driverCfg.PopulationSize,
		StartedAtUTC:       model.FormatTimestamp(time.Now()),
		Status:             model.SweepStatusRunning,
	}
	if err := c.store.SaveSweep(ctx, sweep); err != nil {
		return SweepSummary{}, fmt.Errorf("save sweep: %w", err)
	}

	results, runErr := driver.Run(ctx)

	sweep.CompletedAtUTC = model.FormatTimestamp(time.Now())
	sweep.Status = model.SweepStatusCompleted
	if runErr != nil {
		sweep.Status = model.SweepStatusFailed
	}
	// The sweep context may already be cancelled; record the outcome anyway.
	saveCtx := context.WithoutCancel(ctx)
	if err := c.store.SaveSweep(saveCtx, sweep); err != nil {
		runErr = errors.Join(runErr, fmt.Errorf("save sweep: %w", err))
	}

	records := make([]model.RunRecord, 0, len(results))
	for _, r := range results {
		records = append(records, r.Record())
	}
	summary := SweepSummary{
		SweepID:   sweepID,
		Instance:  ks.Name(),
		Status:    sweep.Status,
		Results:   results,
		Summaries: stats.Summarize(records),
		Best:      bestOf(results),
	}

	if c.artifactsDir != "" {
		dir, err := stats.WriteSweepArtifacts(c.artifactsDir, stats.SweepArtifacts{Sweep: sweep, Summaries: summary.Summaries})
		if err != nil {
			runErr = errors.Join(runErr, fmt.Errorf("write sweep artifacts: %w", err))
		} else {
			summary.ArtifactsDir = dir
			entry := stats.SweepIndexEntry{
				SweepID:      sweepID,
				Instance:     ks.Name(),
				Runs:         len(results),
				Status:       sweep.Status,
				BestScore:    summary.Best.Int(),
				CreatedAtUTC: sweep.StartedAtUTC,
			}
			if err := stats.AppendSweepIndex(c.artifactsDir, entry); err != nil {
				runErr = errors.Join(runErr, fmt.Errorf("update sweep index: %w", err))
			}
		}
	}
	return summary, runErr
}

func bestOf(results []experiment.RunResult) score.CliffScore {
	best := score.Infeasible()
	for _, r := range results {
		if score.Compare(r.BestScore, best) > 0 {
			best = r.BestScore
		}
	}
	return best
}

func (c *Client) Score(_ context.Context, req ScoreRequest) (ScoreResult, error) {
	ks, err := resolveInstance(req.InstancePath, req.Instance)
	if err != nil {
		return ScoreResult{}, err
	}
	genome, err := evo.ParseBitstring(req.Genome)
	if err != nil {
		return ScoreResult{}, err
	}
	scorer := score.NewCliffScorer(ks)
	value, weight, err := scorer.Totals(genome)
	if err != nil {
		return ScoreResult{}, err
	}
	return ScoreResult{
		Instance:  ks.Name(),
		Score:     score.Evaluate(value, weight, ks.Capacity()),
		ValueSum:  value,
		WeightSum: weight,
		Capacity:  ks.Capacity(),
	}, nil
}

// Runs lists the stored runs of one sweep, or of the newest sweep when
// Latest is set.
func (c *Client) Runs(ctx context.Context, req RunsRequest) ([]RunItem, error) {
	if err := c.ensureStore(ctx); err != nil {
		return nil, err
	}
	sweepID := req.SweepID
	if req.Latest || sweepID == "" {
		sweeps, err := c.store.ListSweeps(ctx)
		if err != nil {
			return nil, err
		}
		if len(sweeps) == 0 {
			return nil, fmt.Errorf("no sweeps recorded")
		}
		sweepID = sweeps[0].ID
	}
	if _, ok, err := c.store.GetSweep(ctx, sweepID); err != nil {
		return nil, err
	} else if !ok {
		return nil, fmt.Errorf("sweep not found: %s", sweepID)
	}

	runs, err := c.store.ListRunResults(ctx, sweepID)
	if err != nil {
		return nil, err
	}
	if req.Limit > 0 && len(runs) > req.Limit {
		runs = runs[:req.Limit]
	}
	return runs, nil
}

func (c *Client) Sweeps(ctx context.Context) ([]SweepItem, error) {
	if err := c.ensureStore(ctx); err != nil {
		return nil, err
	}
	sweeps, err := c.store.ListSweeps(ctx)
	if err != nil {
		return nil, err
	}
	items := make([]SweepItem, 0, len(sweeps))
	for _, s := range sweeps {
		items = append(items, SweepItem{
			SweepID:        s.ID,
			Instance:       s.Instance,
			Status:         s.Status,
			StartedAtUTC:   s.StartedAtUTC,
			CompletedAtUTC: s.CompletedAtUTC,
			BaseSeed:       s.BaseSeed,
			Runs:           s.BaselineRuns + len(s.IncrementalBudgets)*s.IncrementalRuns,
		})
	}
	return items, nil
}

func resolveInstance(path string, ks *knapsack.Knapsack) (*knapsack.Knapsack, error) {
	if ks != nil {
		return ks, nil
	}
	if path == "" {
		return nil, fmt.Errorf("instance path is required")
	}
	return knapsack.Load(path)
}
