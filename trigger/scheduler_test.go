package trigger

import (
	"context"
	"testing"
	"time"

	"github.com/songzhibin97/gkit/generator"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docuflow/workflow-engine/storage"
	"github.com/docuflow/workflow-engine/types"
	"github.com/docuflow/workflow-engine/workflow"
)

func newTestEngine(t *testing.T) (*workflow.Engine, storage.Store) {
	t.Helper()

	store := storage.NewMemoryStore()
	snowflake := generator.NewSnowflake(time.Now().Add(-1*time.Second), 1)
	registry := workflow.NewRegistry(workflow.Collaborators{}, nil)

	engine, err := workflow.NewEngine(snowflake, store, registry)
	require.NoError(t, err)
	t.Cleanup(func() {
		engine.Stop(context.Background())
	})
	return engine, store
}

func createScheduled(t *testing.T, engine *workflow.Engine, status string) types.Workflow {
	t.Helper()

	wf, err := engine.CreateWorkflow(context.Background(), types.Workflow{
		Name:        "nightly sweep",
		TriggerType: types.TriggerSchedule,
		Schedule:    "0 2 * * *",
		Status:      status,
		Steps: []types.Step{
			{Type: types.StepDelay, Name: "pause", Config: map[string]interface{}{"duration": float64(1)}},
		},
	})
	require.NoError(t, err)
	return wf
}

func TestScheduler(t *testing.T) {
	t.Run("RequiresEngine", func(t *testing.T) {
		_, err := NewScheduler(nil)
		assert.Error(t, err)
	})

	t.Run("SyncRegistersActiveScheduleWorkflows", func(t *testing.T) {
		engine, _ := newTestEngine(t)
		scheduler, err := NewScheduler(engine)
		require.NoError(t, err)

		active := createScheduled(t, engine, types.WorkflowActive)
		draft := createScheduled(t, engine, types.WorkflowDraft)

		manual, err := engine.CreateWorkflow(context.Background(), types.Workflow{
			Name:        "manual only",
			TriggerType: types.TriggerManual,
			Status:      types.WorkflowActive,
		})
		require.NoError(t, err)

		require.NoError(t, scheduler.Sync(context.Background()))

		assert.True(t, scheduler.Scheduled(active.ID))
		assert.False(t, scheduler.Scheduled(draft.ID))
		assert.False(t, scheduler.Scheduled(manual.ID))
	})

	t.Run("SyncRemovesArchivedWorkflows", func(t *testing.T) {
		engine, store := newTestEngine(t)
		scheduler, err := NewScheduler(engine)
		require.NoError(t, err)

		wf := createScheduled(t, engine, types.WorkflowActive)
		require.NoError(t, scheduler.Sync(context.Background()))
		require.True(t, scheduler.Scheduled(wf.ID))

		wf.Status = types.WorkflowArchived
		require.NoError(t, store.SaveWorkflow(context.Background(), wf))

		require.NoError(t, scheduler.Sync(context.Background()))
		assert.False(t, scheduler.Scheduled(wf.ID))
	})

	t.Run("FireRunsThroughEngine", func(t *testing.T) {
		engine, _ := newTestEngine(t)
		scheduler, err := NewScheduler(engine)
		require.NoError(t, err)

		wf := createScheduled(t, engine, types.WorkflowActive)
		scheduler.fire(wf.ID)

		executions, err := engine.ListExecutions(context.Background(), wf.ID)
		require.NoError(t, err)
		require.Len(t, executions, 1)
		assert.Equal(t, types.ExecutionCompleted, executions[0].Status)
		assert.Equal(t, SourceSchedule, executions[0].TriggerSource)
		assert.Contains(t, executions[0].TriggerData, "fired_at")

		stored, err := engine.GetWorkflow(context.Background(), wf.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(1), stored.RunCount)
		assert.Equal(t, int64(1), stored.SuccessCount)
	})

	t.Run("FireUnknownWorkflowDoesNotPanic", func(t *testing.T) {
		engine, _ := newTestEngine(t)
		scheduler, err := NewScheduler(engine)
		require.NoError(t, err)

		scheduler.fire("missing")
	})

	t.Run("StartStop", func(t *testing.T) {
		engine, _ := newTestEngine(t)
		scheduler, err := NewScheduler(engine)
		require.NoError(t, err)

		createScheduled(t, engine, types.WorkflowActive)

		require.NoError(t, scheduler.Start(context.Background()))
		scheduler.Stop()
		// Stop is idempotent.
		scheduler.Stop()
	})
}
