package storage

import (
	"context"

	"knapsweep/internal/experiment"
)

// Sink saves each completed run to a Store. Closing the sink does not close
// the store.
type Sink struct {
	store Store
}

func NewSink(store Store) *Sink {
	return &Sink{store: store}
}

func (s *Sink) Write(ctx context.Context, result experiment.RunResult) error {
	rec := result.Record()
	rec.VersionedRecord = CurrentVersion()
	return s.store.SaveRunResult(ctx, rec)
}

func (s *Sink) Close() error {
	return nil
}
