package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/songzhibin97/gkit/generator"

	"github.com/docuflow/workflow-engine/events"
	"github.com/docuflow/workflow-engine/storage"
	"github.com/docuflow/workflow-engine/types"
)

// Standard error definitions
var (
	ErrWorkflowNotFound  = storage.ErrWorkflowNotFound
	ErrExecutionNotFound = storage.ErrExecutionNotFound
)

// CodeExecutionFailed identifies a failed run in error payloads.
const CodeExecutionFailed = "WORKFLOW_EXECUTION_FAILED"

// ExecutionError reports a run that reached the failed state. Step is the
// 1-based index of the failing step.
type ExecutionError struct {
	Code        string
	ExecutionID string
	WorkflowID  string
	Step        int
	Message     string
	Cause       error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ExecutionError) Unwrap() error {
	return e.Cause
}

// ExecuteRequest is the synchronous run invocation.
type ExecuteRequest struct {
	WorkflowID    string                 `json:"workflowId"`
	TriggerSource string                 `json:"triggerSource,omitempty"`
	TriggerData   map[string]interface{} `json:"triggerData,omitempty"`
	InputData     map[string]interface{} `json:"inputData,omitempty"`
}

// ExecuteResult is the success payload of a finished run.
type ExecuteResult struct {
	ExecutionID string             `json:"executionId"`
	WorkflowID  string             `json:"workflowId"`
	Status      string             `json:"status"`
	DurationMS  int64              `json:"duration_ms"`
	Results     []types.StepResult `json:"results"`
}

// Engine is the execution coordinator: it creates workflow definitions,
// drives runs to a terminal state, and records run statistics.
//
// Runs are synchronous and single-threaded per invocation: the caller
// blocks until the run completes or fails, steps execute strictly in
// definition order, and a step failure aborts the remaining steps. There is
// no retry, no step timeout, and no checkpoint-resume; a process crash
// mid-run leaves the execution in "processing" with no automatic
// reconciliation.
type Engine struct {
	store     storage.Store
	registry  *Registry
	generate  generator.Generator
	stats     *StatsAggregator
	validator *Validator
	eventBus  *events.EventBus
	logger    *slog.Logger
}

// NewEngine creates an Engine. The generator supplies execution IDs. A nil
// store falls back to in-memory storage.
func NewEngine(generate generator.Generator, store storage.Store, registry *Registry) (*Engine, error) {
	if generate == nil {
		return nil, errors.New("generator is required")
	}
	if registry == nil {
		return nil, errors.New("registry is required")
	}

	if store == nil {
		store = storage.NewMemoryStore()
	}

	validator, err := NewValidator()
	if err != nil {
		return nil, fmt.Errorf("failed to build workflow validator: %w", err)
	}

	logger := slog.Default()
	return &Engine{
		store:     store,
		registry:  registry,
		generate:  generate,
		stats:     NewStatsAggregator(store, logger),
		validator: validator,
		eventBus:  events.NewEventBus(),
		logger:    logger,
	}, nil
}

// SetLogger replaces the engine's logger. Not safe to call concurrently
// with running executions.
func (e *Engine) SetLogger(logger *slog.Logger) {
	if logger == nil {
		return
	}
	e.logger = logger
	e.stats.logger = logger
}

// SubscribeEvent subscribes an event handler to a specific event type.
func (e *Engine) SubscribeEvent(eventType string, handler events.EventHandler) {
	e.eventBus.Subscribe(eventType, handler)
}

// CreateWorkflow validates and persists a workflow definition. An empty ID
// is assigned a fresh UUID; trigger type and status default to manual/draft.
func (e *Engine) CreateWorkflow(ctx context.Context, wf types.Workflow) (types.Workflow, error) {
	select {
	case <-ctx.Done():
		return types.Workflow{}, ctx.Err()
	default:
	}

	if wf.ID == "" {
		wf.ID = uuid.NewString()
	}
	if wf.TriggerType == "" {
		wf.TriggerType = types.TriggerManual
	}
	if wf.Status == "" {
		wf.Status = types.WorkflowDraft
	}
	if wf.Steps == nil {
		wf.Steps = []types.Step{}
	}

	if err := e.validator.ValidateWorkflow(wf); err != nil {
		return types.Workflow{}, err
	}

	now := time.Now().UnixMilli()
	wf.CreatedAt = now
	wf.UpdatedAt = now
	wf.RunCount = 0
	wf.SuccessCount = 0
	wf.AvgDurationMS = 0

	if err := e.store.SaveWorkflow(ctx, wf); err != nil {
		return types.Workflow{}, fmt.Errorf("failed to save workflow: %w", err)
	}
	return wf, nil
}

// GetWorkflow retrieves a workflow definition by ID.
func (e *Engine) GetWorkflow(ctx context.Context, workflowID string) (types.Workflow, error) {
	return e.store.GetWorkflow(ctx, workflowID)
}

// ListWorkflows returns all stored workflow definitions.
func (e *Engine) ListWorkflows(ctx context.Context) ([]types.Workflow, error) {
	return e.store.ListWorkflows(ctx)
}

// GetExecution retrieves an execution record by ID.
func (e *Engine) GetExecution(ctx context.Context, executionID string) (types.WorkflowExecution, error) {
	return e.store.GetExecution(ctx, executionID)
}

// ListExecutions returns all execution records of a workflow.
func (e *Engine) ListExecutions(ctx context.Context, workflowID string) ([]types.WorkflowExecution, error) {
	return e.store.ListExecutions(ctx, workflowID)
}

// Execute runs a workflow synchronously against the supplied input and
// blocks until the run reaches a terminal state. On success it returns the
// execution ID, duration, and the ordered step results. On a step failure
// it returns an *ExecutionError naming the failing step; the persisted
// execution record carries the partial step results for forensics.
//
// If the workflow does not exist the request fails synchronously and no
// execution record is created.
func (e *Engine) Execute(ctx context.Context, req ExecuteRequest) (*ExecuteResult, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	wf, err := e.store.GetWorkflow(ctx, req.WorkflowID)
	if err != nil {
		return nil, err
	}

	id, err := e.generate.NextID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate execution ID: %w", err)
	}
	executionID := "exec-" + strconv.FormatUint(id, 10)

	startedAt := time.Now()
	exec := types.WorkflowExecution{
		ID:            executionID,
		WorkflowID:    wf.ID,
		Status:        types.ExecutionProcessing,
		TriggerSource: req.TriggerSource,
		TriggerData:   req.TriggerData,
		InputData:     req.InputData,
		CurrentStep:   0,
		TotalSteps:    len(wf.Steps),
		StepResults:   []types.StepResult{},
		StartedAt:     startedAt.UnixMilli(),
	}

	if err := e.store.SaveExecution(ctx, exec); err != nil {
		return nil, fmt.Errorf("failed to create execution record: %w", err)
	}

	e.publishEvent(ctx, events.TypeExecutionStarted, &exec, map[string]interface{}{
		"total_steps": exec.TotalSteps,
	})

	// The data context starts as the input and accumulates step results
	// under step_<i>_result keys.
	data := make(map[string]interface{}, len(req.InputData))
	for k, v := range req.InputData {
		data[k] = v
	}

	for i, step := range wf.Steps {
		stepIndex := i + 1

		// Best-effort progress write so an external observer can see the
		// in-flight step; a failed write must not abort the run.
		exec.CurrentStep = stepIndex
		e.saveProgress(ctx, exec)

		result, stepErr := e.registry.Dispatch(ctx, step.Type, step.Config, data)
		if stepErr != nil {
			exec.StepResults = append(exec.StepResults, types.StepResult{
				Step:      stepIndex,
				Type:      step.Type,
				Status:    types.StepFailed,
				Error:     stepErr.Error(),
				Timestamp: time.Now().UnixMilli(),
			})
			e.publishEvent(ctx, events.TypeStepFailed, &exec, map[string]interface{}{
				"step":  stepIndex,
				"type":  step.Type,
				"error": stepErr.Error(),
			})
			return nil, e.finalize(ctx, &exec, startedAt, stepIndex, stepErr)
		}

		exec.StepResults = append(exec.StepResults, types.StepResult{
			Step:      stepIndex,
			Type:      step.Type,
			Status:    types.StepCompleted,
			Result:    result,
			Timestamp: time.Now().UnixMilli(),
		})
		data[fmt.Sprintf("step_%d_result", stepIndex)] = result

		e.saveProgress(ctx, exec)
		e.publishEvent(ctx, events.TypeStepCompleted, &exec, map[string]interface{}{
			"step": stepIndex,
			"type": step.Type,
		})
	}

	if err := e.finalize(ctx, &exec, startedAt, 0, nil); err != nil {
		return nil, err
	}

	return &ExecuteResult{
		ExecutionID: exec.ID,
		WorkflowID:  exec.WorkflowID,
		Status:      exec.Status,
		DurationMS:  exec.DurationMS,
		Results:     exec.StepResults,
	}, nil
}

// finalize moves the execution to its terminal state, persists it, and
// records statistics. When failedStep > 0 it returns the *ExecutionError
// surfaced to the caller; otherwise it returns nil on success.
func (e *Engine) finalize(ctx context.Context, exec *types.WorkflowExecution, startedAt time.Time, failedStep int, cause error) error {
	completedAt := time.Now()
	exec.CompletedAt = completedAt.UnixMilli()
	exec.DurationMS = completedAt.Sub(startedAt).Milliseconds()

	var execErr *ExecutionError
	if failedStep > 0 {
		exec.Status = types.ExecutionFailed
		exec.ErrorMessage = fmt.Sprintf("step %d failed: %v", failedStep, cause)
		execErr = &ExecutionError{
			Code:        CodeExecutionFailed,
			ExecutionID: exec.ID,
			WorkflowID:  exec.WorkflowID,
			Step:        failedStep,
			Message:     exec.ErrorMessage,
			Cause:       cause,
		}
	} else {
		exec.Status = types.ExecutionCompleted
	}

	// Finalization and statistics are best-effort sequenced, not
	// transactional: a crash in between leaves the counters stale.
	if err := e.store.SaveExecution(ctx, *exec); err != nil {
		e.logger.Error("failed to persist finalized execution",
			slog.String("execution_id", exec.ID),
			slog.String("workflow_id", exec.WorkflowID),
			slog.Any("error", err),
		)
	}

	e.stats.Record(ctx, exec.WorkflowID, exec.Status == types.ExecutionCompleted, exec.DurationMS)

	eventType := events.TypeExecutionCompleted
	eventData := map[string]interface{}{
		"duration_ms": exec.DurationMS,
	}
	if execErr != nil {
		eventType = events.TypeExecutionFailed
		eventData["error"] = exec.ErrorMessage
		eventData["step"] = failedStep
	}
	e.publishEvent(ctx, eventType, exec, eventData)

	if execErr != nil {
		return execErr
	}
	return nil
}

// saveProgress persists in-flight run state. Progress writes are a
// best-effort observability aid; failures are logged and swallowed.
func (e *Engine) saveProgress(ctx context.Context, exec types.WorkflowExecution) {
	if err := e.store.SaveExecution(ctx, exec); err != nil {
		e.logger.Warn("failed to persist execution progress",
			slog.String("execution_id", exec.ID),
			slog.Int("current_step", exec.CurrentStep),
			slog.Any("error", err),
		)
	}
}

// publishEvent publishes an event asynchronously, dropping it when nobody
// subscribed.
func (e *Engine) publishEvent(ctx context.Context, eventType string, exec *types.WorkflowExecution, data map[string]interface{}) {
	err := e.eventBus.Publish(ctx, events.Event{
		Type:        eventType,
		ExecutionID: exec.ID,
		WorkflowID:  exec.WorkflowID,
		Data:        data,
	})
	if err != nil && !errors.Is(err, events.ErrNoHandler) {
		e.logger.Warn("failed to publish event",
			slog.String("event_type", eventType),
			slog.String("execution_id", exec.ID),
			slog.Any("error", err),
		)
	}
}

// Stop gracefully stops the engine's event bus.
func (e *Engine) Stop(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		e.eventBus.Stop()
		return nil
	}
}
