package storage

import (
	"context"
	"fmt"
	"sync"

	"github.com/docuflow/workflow-engine/types"
)

// MemoryStore is an in-memory implementation of the Store interface.
type MemoryStore struct {
	workflows  map[string]types.Workflow
	executions map[string]types.WorkflowExecution
	mu         sync.RWMutex
}

// NewMemoryStore creates a new MemoryStore instance.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		workflows:  make(map[string]types.Workflow),
		executions: make(map[string]types.WorkflowExecution),
	}
}

// getItem is a standalone generic helper function.
func getItem[T any](ctx context.Context, mu *sync.RWMutex, m map[string]T, id string, errNotFound error) (T, error) {
	return withContext(ctx, func() (T, error) {
		mu.RLock()
		defer mu.RUnlock()
		item, ok := m[id]
		if !ok {
			var zero T
			return zero, fmt.Errorf("%w: id=%s", errNotFound, id)
		}
		return item, nil
	})
}

// SaveWorkflow saves a workflow to memory.
func (s *MemoryStore) SaveWorkflow(ctx context.Context, wf types.Workflow) error {
	return withContextError(ctx, func() error {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.workflows[wf.ID] = wf
		return nil
	})
}

// GetWorkflow retrieves a workflow from memory.
func (s *MemoryStore) GetWorkflow(ctx context.Context, id string) (types.Workflow, error) {
	return getItem(ctx, &s.mu, s.workflows, id, ErrWorkflowNotFound)
}

// ListWorkflows returns all workflows stored in memory.
func (s *MemoryStore) ListWorkflows(ctx context.Context) ([]types.Workflow, error) {
	return withContext(ctx, func() ([]types.Workflow, error) {
		s.mu.RLock()
		defer s.mu.RUnlock()
		wfs := make([]types.Workflow, 0, len(s.workflows))
		for _, wf := range s.workflows {
			wfs = append(wfs, wf)
		}
		return wfs, nil
	})
}

// SaveExecution saves an execution record to memory.
func (s *MemoryStore) SaveExecution(ctx context.Context, exec types.WorkflowExecution) error {
	return withContextError(ctx, func() error {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.executions[exec.ID] = exec
		return nil
	})
}

// GetExecution retrieves an execution record from memory.
func (s *MemoryStore) GetExecution(ctx context.Context, id string) (types.WorkflowExecution, error) {
	return getItem(ctx, &s.mu, s.executions, id, ErrExecutionNotFound)
}

// ListExecutions returns all execution records for the given workflow.
func (s *MemoryStore) ListExecutions(ctx context.Context, workflowID string) ([]types.WorkflowExecution, error) {
	return withContext(ctx, func() ([]types.WorkflowExecution, error) {
		s.mu.RLock()
		defer s.mu.RUnlock()
		var execs []types.WorkflowExecution
		for _, exec := range s.executions {
			if exec.WorkflowID == workflowID {
				execs = append(execs, exec)
			}
		}
		return execs, nil
	})
}

// IncrementStats updates the workflow's run counters under the store lock,
// so concurrent run completions never lose an increment.
func (s *MemoryStore) IncrementStats(ctx context.Context, workflowID string, success bool, durationMS int64) error {
	return withContextError(ctx, func() error {
		s.mu.Lock()
		defer s.mu.Unlock()
		wf, ok := s.workflows[workflowID]
		if !ok {
			return fmt.Errorf("%w: id=%s", ErrWorkflowNotFound, workflowID)
		}
		applyStats(&wf, success, durationMS)
		s.workflows[workflowID] = wf
		return nil
	})
}

// ClearFinished removes completed or failed execution records.
func (s *MemoryStore) ClearFinished(ctx context.Context) error {
	return withContextError(ctx, func() error {
		s.mu.Lock()
		defer s.mu.Unlock()
		for id, exec := range s.executions {
			if exec.Status == types.ExecutionCompleted || exec.Status == types.ExecutionFailed {
				delete(s.executions, id)
			}
		}
		return nil
	})
}
