package types

// Trigger types. Only manual invocation is executed by the engine itself;
// schedule-type workflows are fired by the trigger package, and webhook/event
// are informational labels for callers that own those surfaces.
const (
	TriggerManual   = "manual"
	TriggerSchedule = "schedule"
	TriggerWebhook  = "webhook"
	TriggerEvent    = "event"
)

// Workflow lifecycle statuses. These describe the definition, not any run.
const (
	WorkflowDraft    = "draft"
	WorkflowActive   = "active"
	WorkflowArchived = "archived"
)

// Execution statuses.
const (
	ExecutionProcessing = "processing"
	ExecutionCompleted  = "completed"
	ExecutionFailed     = "failed"
)

// Step types.
const (
	StepAIAnalysis    = "ai_analysis"
	StepDataFetch     = "data_fetch"
	StepNotification  = "notification"
	StepDataTransform = "data_transform"
	StepCondition     = "condition"
	StepDelay         = "delay"
)

// Step result statuses.
const (
	StepCompleted = "completed"
	StepFailed    = "failed"
)

// Workflow defines an ordered, typed step sequence together with its
// aggregate run statistics.
type Workflow struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	TriggerType string `json:"trigger_type"`
	// Schedule is a cron expression, meaningful only when TriggerType is
	// "schedule".
	Schedule string `json:"schedule,omitempty"`
	Steps    []Step `json:"steps"`
	Status   string `json:"status"`

	// Aggregate counters, mutated only by the statistics aggregator after a
	// run finalizes.
	RunCount      int64   `json:"run_count"`
	SuccessCount  int64   `json:"success_count"`
	AvgDurationMS float64 `json:"avg_duration_ms"`

	CreatedAt int64 `json:"created_at"`
	UpdatedAt int64 `json:"updated_at"`
}

// Step is one typed unit of work within a workflow. Steps are value types
// owned by exactly one workflow; they are not independently addressable.
type Step struct {
	Type string `json:"type"`
	Name string `json:"name,omitempty"`
	// Config is interpreted by the handler matching Type.
	Config map[string]interface{} `json:"config,omitempty"`
}

// WorkflowExecution is the historical record of one run of a workflow
// against specific input. It is never mutated once finalized.
type WorkflowExecution struct {
	ID            string                 `json:"id"`
	WorkflowID    string                 `json:"workflow_id"`
	Status        string                 `json:"execution_status"`
	TriggerSource string                 `json:"trigger_source,omitempty"`
	TriggerData   map[string]interface{} `json:"trigger_data,omitempty"`
	InputData     map[string]interface{} `json:"input_data,omitempty"`

	// CurrentStep is the 1-based index of the step currently executing or
	// last attempted. TotalSteps is a snapshot of the workflow's step count
	// at run start and never changes retroactively.
	CurrentStep int `json:"current_step"`
	TotalSteps  int `json:"total_steps"`

	StepResults  []StepResult `json:"step_results"`
	ErrorMessage string       `json:"error_message,omitempty"`
	DurationMS   int64        `json:"duration_ms"`
	StartedAt    int64        `json:"started_at"`
	CompletedAt  int64        `json:"completed_at,omitempty"`
}

// StepResult records one attempted step. Entries are append-only during a
// run, one per attempted step, including the failing step when a run aborts.
type StepResult struct {
	Step      int         `json:"step"`
	Type      string      `json:"type"`
	Status    string      `json:"status"`
	Result    interface{} `json:"result,omitempty"`
	Error     string      `json:"error,omitempty"`
	Timestamp int64       `json:"timestamp"`
}
