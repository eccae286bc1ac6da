package storage

import (
	"context"

	"knapsweep/internal/model"
)

// Store persists sweeps and the run records they produce.
type Store interface {
	Init(ctx context.Context) error
	SaveSweep(ctx context.Context, sweep model.SweepRecord) error
	GetSweep(ctx context.Context, id string) (model.SweepRecord, bool, error)
	// ListSweeps returns sweeps newest first.
	ListSweeps(ctx context.Context) ([]model.SweepRecord, error)
	SaveRunResult(ctx context.Context, run model.RunRecord) error
	// ListRunResults returns a sweep's runs in sweep order: baseline before
	// incremental, then by budget and run index.
	ListRunResults(ctx context.Context, sweepID string) ([]model.RunRecord, error)
}
