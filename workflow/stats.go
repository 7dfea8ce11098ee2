package workflow

import (
	"context"
	"log/slog"

	"github.com/docuflow/workflow-engine/storage"
)

// StatsAggregator folds finished runs into workflow-level counters:
// run_count on every run, success_count on successful runs, and a running
// mean of avg_duration_ms.
type StatsAggregator struct {
	store  storage.Store
	logger *slog.Logger
}

// NewStatsAggregator creates a StatsAggregator backed by the given store.
func NewStatsAggregator(store storage.Store, logger *slog.Logger) *StatsAggregator {
	if logger == nil {
		logger = slog.Default()
	}
	return &StatsAggregator{store: store, logger: logger}
}

// Record updates the workflow's counters for one finished run. The update is
// not transactional with the execution's own finalization: when it fails the
// execution record stays completed/failed but the counters under-count that
// run. The failure is logged, not surfaced.
func (a *StatsAggregator) Record(ctx context.Context, workflowID string, success bool, durationMS int64) {
	if err := a.store.IncrementStats(ctx, workflowID, success, durationMS); err != nil {
		a.logger.Error("failed to record run statistics",
			slog.String("workflow_id", workflowID),
			slog.Bool("success", success),
			slog.Int64("duration_ms", durationMS),
			slog.Any("error", err),
		)
	}
}
