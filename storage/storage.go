package storage

import (
	"context"
	"errors"

	"github.com/docuflow/workflow-engine/types"
)

// Errors returned by Store implementations.
var (
	ErrWorkflowNotFound  = errors.New("workflow not found")
	ErrExecutionNotFound = errors.New("execution not found")
)

// Store persists workflow definitions, execution records, and workflow-level
// run statistics.
type Store interface {
	// SaveWorkflow saves a workflow definition.
	SaveWorkflow(ctx context.Context, wf types.Workflow) error

	// GetWorkflow retrieves a workflow by ID.
	GetWorkflow(ctx context.Context, id string) (types.Workflow, error)

	// ListWorkflows returns all stored workflow definitions.
	ListWorkflows(ctx context.Context) ([]types.Workflow, error)

	// SaveExecution saves an execution record, overwriting any previous
	// version. Progress writes during a run go through this method.
	SaveExecution(ctx context.Context, exec types.WorkflowExecution) error

	// GetExecution retrieves an execution record by ID.
	GetExecution(ctx context.Context, id string) (types.WorkflowExecution, error)

	// ListExecutions returns all execution records for a workflow. Useful for
	// finding runs stuck in "processing" after a crash; the engine itself has
	// no reconciliation sweep.
	ListExecutions(ctx context.Context, workflowID string) ([]types.WorkflowExecution, error)

	// IncrementStats atomically updates the workflow's run counters:
	// run_count always, success_count when success is true, and the running
	// mean of avg_duration_ms. Not transactional with execution finalization;
	// a crash in between leaves counters stale.
	IncrementStats(ctx context.Context, workflowID string, success bool, durationMS int64) error
}

// withContext is a standalone generic helper function.
func withContext[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	var zero T
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	default:
		return fn()
	}
}

// withContextError handles context cancellation for operations that only
// return an error.
func withContextError(ctx context.Context, fn func() error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return fn()
	}
}

// applyStats folds one finished run into a workflow's counters using a
// running mean for the average duration.
func applyStats(wf *types.Workflow, success bool, durationMS int64) {
	wf.RunCount++
	if success {
		wf.SuccessCount++
	}
	wf.AvgDurationMS += (float64(durationMS) - wf.AvgDurationMS) / float64(wf.RunCount)
}
