package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/docuflow/workflow-engine/rules"
	"github.com/docuflow/workflow-engine/types"
)

// ErrHandlerNotRegistered is returned when a step's type has no handler.
var ErrHandlerNotRegistered = errors.New("step handler not registered")

// StepHandler executes one step type. Handlers receive the step's config and
// the run's accumulated data context; they never see the execution record
// itself, so they are independently unit-testable.
type StepHandler interface {
	Execute(ctx context.Context, config, data map[string]interface{}) (interface{}, error)
}

// AnalysisRequest is the payload sent to the AI analysis collaborator.
type AnalysisRequest struct {
	Text  string `json:"text"`
	Task  string `json:"task"`
	Model string `json:"model"`
}

// AnalysisClient is the AI text analysis collaborator. Its internals are out
// of scope; the handler returns its structured result verbatim.
type AnalysisClient interface {
	Analyze(ctx context.Context, req AnalysisRequest) (map[string]interface{}, error)
}

// FetchClient is the external data fetch collaborator, keyed by source.
type FetchClient interface {
	Fetch(ctx context.Context, source string, config map[string]interface{}) (map[string]interface{}, error)
}

// Notification is the payload delivered to the notification collaborator.
// Message has already had placeholder substitution applied.
type Notification struct {
	Channel   string                 `json:"channel"`
	Recipient string                 `json:"recipient"`
	Message   string                 `json:"message"`
	Subject   string                 `json:"subject,omitempty"`
	Config    map[string]interface{} `json:"config,omitempty"`
}

// NotificationClient is the notification dispatch collaborator.
type NotificationClient interface {
	Send(ctx context.Context, n Notification) (map[string]interface{}, error)
}

// Registry maps step types to their handlers.
type Registry struct {
	handlers map[string]StepHandler
	mu       sync.RWMutex
}

// Collaborators bundles the external services the built-in handlers call.
type Collaborators struct {
	Analysis AnalysisClient
	Fetcher  FetchClient
	Notifier NotificationClient
}

// NewRegistry creates a registry populated with the six built-in step
// handlers. The evaluator backs the condition step's optional expression
// config; pass nil to restrict conditions to the field/operator/value form.
func NewRegistry(c Collaborators, evaluator rules.Evaluator) *Registry {
	return &Registry{
		handlers: map[string]StepHandler{
			types.StepAIAnalysis:    &aiAnalysisHandler{client: c.Analysis},
			types.StepDataFetch:     &dataFetchHandler{client: c.Fetcher},
			types.StepNotification:  &notificationHandler{client: c.Notifier},
			types.StepDataTransform: newDataTransformHandler(),
			types.StepCondition:     &conditionHandler{evaluator: evaluator},
			types.StepDelay:         &delayHandler{},
		},
	}
}

// Register adds or replaces the handler for a step type.
func (r *Registry) Register(stepType string, handler StepHandler) error {
	if stepType == "" || handler == nil {
		return errors.New("step type and handler are required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[stepType] = handler
	return nil
}

// Has reports whether a handler is registered for the step type.
func (r *Registry) Has(stepType string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.handlers[stepType]
	return ok
}

// Dispatch routes a step to its handler.
func (r *Registry) Dispatch(ctx context.Context, stepType string, config, data map[string]interface{}) (interface{}, error) {
	r.mu.RLock()
	handler, ok := r.handlers[stepType]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrHandlerNotRegistered, stepType)
	}
	return handler.Execute(ctx, config, data)
}
