// Package trigger fires schedule-triggered workflows. The scheduler is a
// caller layered on top of the engine: each fire goes through the same
// synchronous Execute path as a manual invocation.
package trigger

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/docuflow/workflow-engine/types"
	"github.com/docuflow/workflow-engine/workflow"
)

// SourceSchedule is the trigger source recorded on scheduled executions.
const SourceSchedule = "schedule"

// Scheduler runs active schedule-type workflows on their cron expressions.
type Scheduler struct {
	engine *workflow.Engine
	cron   *cron.Cron
	logger *slog.Logger

	mu      sync.Mutex
	entries map[string]cron.EntryID
	started bool
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithLogger sets the scheduler's logger.
func WithLogger(logger *slog.Logger) SchedulerOption {
	return func(s *Scheduler) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewScheduler creates a scheduler bound to an engine.
func NewScheduler(engine *workflow.Engine, options ...SchedulerOption) (*Scheduler, error) {
	if engine == nil {
		return nil, errors.New("engine is required")
	}
	s := &Scheduler{
		engine:  engine,
		cron:    cron.New(),
		logger:  slog.Default(),
		entries: make(map[string]cron.EntryID),
	}
	for _, option := range options {
		option(s)
	}
	return s, nil
}

// Start syncs schedules from the store and begins firing them. Call Sync
// again after workflow definitions change.
func (s *Scheduler) Start(ctx context.Context) error {
	if err := s.Sync(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		s.cron.Start()
		s.started = true
	}
	return nil
}

// Sync reconciles cron entries with the stored workflow definitions: active
// schedule-type workflows are registered, everything else is removed.
func (s *Scheduler) Sync(ctx context.Context) error {
	workflows, err := s.engine.ListWorkflows(ctx)
	if err != nil {
		return err
	}

	want := make(map[string]types.Workflow)
	for _, wf := range workflows {
		if wf.TriggerType == types.TriggerSchedule && wf.Status == types.WorkflowActive && wf.Schedule != "" {
			want[wf.ID] = wf
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for id, entryID := range s.entries {
		if _, ok := want[id]; !ok {
			s.cron.Remove(entryID)
			delete(s.entries, id)
		}
	}

	for id, wf := range want {
		if _, ok := s.entries[id]; ok {
			continue
		}
		workflowID := id
		entryID, err := s.cron.AddFunc(wf.Schedule, func() {
			s.fire(workflowID)
		})
		if err != nil {
			s.logger.Error("failed to schedule workflow",
				slog.String("workflow_id", id),
				slog.String("schedule", wf.Schedule),
				slog.Any("error", err),
			)
			continue
		}
		s.entries[id] = entryID
		s.logger.Info("workflow scheduled",
			slog.String("workflow_id", id),
			slog.String("schedule", wf.Schedule),
		)
	}
	return nil
}

// Scheduled reports whether a workflow currently has a cron entry.
func (s *Scheduler) Scheduled(workflowID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entries[workflowID]
	return ok
}

// fire runs one scheduled invocation. Failures are logged; the next tick
// fires regardless of this one's outcome.
func (s *Scheduler) fire(workflowID string) {
	result, err := s.engine.Execute(context.Background(), workflow.ExecuteRequest{
		WorkflowID:    workflowID,
		TriggerSource: SourceSchedule,
		TriggerData: map[string]interface{}{
			"fired_at": time.Now().UnixMilli(),
		},
	})
	if err != nil {
		s.logger.Error("scheduled execution failed",
			slog.String("workflow_id", workflowID),
			slog.Any("error", err),
		)
		return
	}
	s.logger.Info("scheduled execution completed",
		slog.String("workflow_id", workflowID),
		slog.String("execution_id", result.ExecutionID),
		slog.Int64("duration_ms", result.DurationMS),
	)
}

// Stop halts firing and waits for in-flight scheduled runs to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		stopCtx := s.cron.Stop()
		<-stopCtx.Done()
		s.started = false
	}
}
