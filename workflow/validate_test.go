package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docuflow/workflow-engine/types"
)

func TestValidator(t *testing.T) {
	validator, err := NewValidator()
	require.NoError(t, err)

	base := func(steps ...types.Step) types.Workflow {
		return types.Workflow{
			ID:          "wf-1",
			Name:        "Valid",
			TriggerType: types.TriggerManual,
			Status:      types.WorkflowActive,
			Steps:       steps,
		}
	}

	t.Run("ValidWorkflow", func(t *testing.T) {
		wf := base(
			types.Step{Type: types.StepAIAnalysis, Config: map[string]interface{}{"text": "x"}},
			types.Step{Type: types.StepDataFetch, Config: map[string]interface{}{"source": "crm"}},
			types.Step{Type: types.StepNotification, Config: map[string]interface{}{"message": "hi"}},
			types.Step{Type: types.StepDataTransform, Config: map[string]interface{}{"transformation": "json_extract", "path": "a.b"}},
			types.Step{Type: types.StepCondition, Config: map[string]interface{}{"condition": "status", "operator": "equals", "value": "ok"}},
			types.Step{Type: types.StepDelay, Config: map[string]interface{}{"duration": float64(10)}},
		)
		assert.NoError(t, validator.ValidateWorkflow(wf))
	})

	t.Run("EmptySteps", func(t *testing.T) {
		wf := base()
		wf.Steps = []types.Step{}
		assert.NoError(t, validator.ValidateWorkflow(wf))
	})

	t.Run("MissingName", func(t *testing.T) {
		wf := base()
		wf.Name = ""
		assert.Error(t, validator.ValidateWorkflow(wf))
	})

	t.Run("BadTriggerType", func(t *testing.T) {
		wf := base()
		wf.TriggerType = "psychic"
		assert.Error(t, validator.ValidateWorkflow(wf))
	})

	t.Run("BadStatus", func(t *testing.T) {
		wf := base()
		wf.Status = "zombie"
		assert.Error(t, validator.ValidateWorkflow(wf))
	})

	t.Run("UnknownStepType", func(t *testing.T) {
		wf := base(types.Step{Type: "teleport"})
		assert.Error(t, validator.ValidateWorkflow(wf))
	})

	t.Run("DataFetchWithoutSource", func(t *testing.T) {
		wf := base(types.Step{Type: types.StepDataFetch, Config: map[string]interface{}{}})
		assert.Error(t, validator.ValidateWorkflow(wf))
	})

	t.Run("TransformWithoutTransformation", func(t *testing.T) {
		wf := base(types.Step{Type: types.StepDataTransform, Config: map[string]interface{}{}})
		assert.Error(t, validator.ValidateWorkflow(wf))
	})

	t.Run("UnknownTransformation", func(t *testing.T) {
		wf := base(types.Step{Type: types.StepDataTransform, Config: map[string]interface{}{"transformation": "rot13"}})
		assert.Error(t, validator.ValidateWorkflow(wf))
	})

	t.Run("ConditionWithoutOperator", func(t *testing.T) {
		wf := base(types.Step{Type: types.StepCondition, Config: map[string]interface{}{"condition": "status"}})
		assert.Error(t, validator.ValidateWorkflow(wf))
	})

	t.Run("ConditionExpressionForm", func(t *testing.T) {
		wf := base(types.Step{Type: types.StepCondition, Config: map[string]interface{}{"expression": "score > 10"}})
		assert.NoError(t, validator.ValidateWorkflow(wf))
	})

	t.Run("UnknownOperator", func(t *testing.T) {
		wf := base(types.Step{Type: types.StepCondition, Config: map[string]interface{}{"condition": "status", "operator": "sounds_like"}})
		assert.Error(t, validator.ValidateWorkflow(wf))
	})

	t.Run("DelayWithoutDuration", func(t *testing.T) {
		wf := base(types.Step{Type: types.StepDelay, Config: map[string]interface{}{}})
		assert.Error(t, validator.ValidateWorkflow(wf))
	})

	t.Run("NegativeDelay", func(t *testing.T) {
		wf := base(types.Step{Type: types.StepDelay, Config: map[string]interface{}{"duration": float64(-5)}})
		assert.Error(t, validator.ValidateWorkflow(wf))
	})

	t.Run("ScheduleTrigger", func(t *testing.T) {
		wf := base(types.Step{Type: types.StepDelay, Config: map[string]interface{}{"duration": float64(1)}})
		wf.TriggerType = types.TriggerSchedule

		assert.ErrorContains(t, validator.ValidateWorkflow(wf), "requires a schedule")

		wf.Schedule = "bogus"
		assert.ErrorContains(t, validator.ValidateWorkflow(wf), "bad schedule")

		wf.Schedule = "0 * * * *"
		assert.NoError(t, validator.ValidateWorkflow(wf))
	})
}
