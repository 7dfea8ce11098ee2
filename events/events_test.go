package events

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestEventBus_Subscribe(t *testing.T) {
	eb := NewEventBus()
	defer eb.Stop()

	handler := &mockHandler{}
	eb.Subscribe(TypeStepCompleted, handler)

	eb.mu.RLock()
	handlers, ok := eb.handlers[TypeStepCompleted]
	eb.mu.RUnlock()

	if !ok {
		t.Fatal("Expected handlers for step_completed, but none found")
	}

	if len(handlers) != 1 {
		t.Fatalf("Expected 1 handler, got %d", len(handlers))
	}
}

func TestEventBus_Unsubscribe(t *testing.T) {
	eb := NewEventBus()
	defer eb.Stop()

	handler1 := &mockHandler{}
	handler2 := &mockHandler{}

	eb.Subscribe(TypeStepCompleted, handler1)
	eb.Subscribe(TypeStepCompleted, handler2)

	eb.mu.RLock()
	if len(eb.handlers[TypeStepCompleted]) != 2 {
		t.Fatalf("Expected 2 handlers, got %d", len(eb.handlers[TypeStepCompleted]))
	}
	eb.mu.RUnlock()

	success := eb.Unsubscribe(TypeStepCompleted, handler1)
	if !success {
		t.Fatal("Unsubscribe should return true for existing handler")
	}

	eb.mu.RLock()
	if len(eb.handlers[TypeStepCompleted]) != 1 {
		t.Fatalf("Expected 1 handler after unsubscribe, got %d", len(eb.handlers[TypeStepCompleted]))
	}
	eb.mu.RUnlock()

	success = eb.Unsubscribe(TypeStepCompleted, &mockHandler{})
	if success {
		t.Fatal("Unsubscribe should return false for non-existent handler")
	}
}

func TestEventBus_Publish(t *testing.T) {
	eb := NewEventBus()
	defer eb.Stop()

	var wg sync.WaitGroup
	wg.Add(1)

	handler := &mockHandler{
		handleFunc: func(ctx context.Context, event Event) error {
			defer wg.Done()
			if event.Type != TypeExecutionCompleted {
				t.Errorf("Expected event type 'execution_completed', got '%s'", event.Type)
			}
			if event.ExecutionID != "exec-123" {
				t.Errorf("Expected execution ID exec-123, got %s", event.ExecutionID)
			}
			return nil
		},
	}

	eb.Subscribe(TypeExecutionCompleted, handler)

	event := Event{
		Type:        TypeExecutionCompleted,
		ExecutionID: "exec-123",
		WorkflowID:  "wf-1",
		Data:        map[string]interface{}{"duration_ms": int64(42)},
	}

	err := eb.Publish(context.Background(), event)
	if err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	waitWithTimeout(&wg, 1*time.Second)
}

func TestEventBus_PublishSync(t *testing.T) {
	eb := NewEventBus()
	defer eb.Stop()

	handler := &mockHandler{
		handleFunc: func(ctx context.Context, event Event) error {
			return errors.New("test error")
		},
	}

	eb.Subscribe(TypeExecutionFailed, handler)

	event := Event{
		Type:        TypeExecutionFailed,
		ExecutionID: "exec-123",
	}

	errs := eb.PublishSync(context.Background(), event)
	if len(errs) != 1 {
		t.Fatalf("Expected 1 error, got %d", len(errs))
	}

	if errs[0] == nil || !strings.Contains(errs[0].Error(), "test error") {
		t.Errorf("Expected error containing 'test error', got '%v'", errs[0])
	}
}

func TestEventBus_PublishNoHandlers(t *testing.T) {
	eb := NewEventBus()
	defer eb.Stop()

	event := Event{
		Type:        "unknown_event",
		ExecutionID: "exec-123",
	}

	err := eb.Publish(context.Background(), event)
	if err != ErrNoHandler {
		t.Fatalf("Expected ErrNoHandler, got %v", err)
	}
}

func TestEventBus_PublishAfterStop(t *testing.T) {
	eb := NewEventBus()
	eb.Stop()

	event := Event{
		Type:        TypeStepCompleted,
		ExecutionID: "exec-123",
	}

	err := eb.Publish(context.Background(), event)
	if err != ErrBusClosed {
		t.Fatalf("Expected ErrBusClosed, got %v", err)
	}
}

func TestEventBus_HasSubscribers(t *testing.T) {
	eb := NewEventBus()
	defer eb.Stop()

	if eb.HasSubscribers(TypeStepFailed) {
		t.Fatal("HasSubscribers should return false for non-existent event type")
	}

	handler := &mockHandler{}
	eb.Subscribe(TypeStepFailed, handler)

	if !eb.HasSubscribers(TypeStepFailed) {
		t.Fatal("HasSubscribers should return true after subscription")
	}

	eb.Unsubscribe(TypeStepFailed, handler)

	if eb.HasSubscribers(TypeStepFailed) {
		t.Fatal("HasSubscribers should return false after unsubscribe")
	}
}

func TestEventBus_SubscribeFunc(t *testing.T) {
	eb := NewEventBus()
	defer eb.Stop()

	var handlerCalled bool
	var mu sync.Mutex
	var wg sync.WaitGroup
	wg.Add(1)

	eb.SubscribeFunc(TypeExecutionStarted, func(ctx context.Context, event Event) error {
		defer wg.Done()
		mu.Lock()
		handlerCalled = true
		mu.Unlock()
		return nil
	})

	event := Event{
		Type:        TypeExecutionStarted,
		ExecutionID: "exec-123",
	}

	err := eb.Publish(context.Background(), event)
	if err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	waitWithTimeout(&wg, 1*time.Second)

	mu.Lock()
	if !handlerCalled {
		t.Fatal("Handler function was not called")
	}
	mu.Unlock()
}

func TestEventBus_WithOptions(t *testing.T) {
	var customErrorCalled bool
	var customErrorMu sync.Mutex

	customErrorHandler := func(event Event, err error) {
		customErrorMu.Lock()
		customErrorCalled = true
		customErrorMu.Unlock()
	}

	eb := NewEventBus(
		WithBufferSize(200),
		WithErrorHandler(customErrorHandler),
	)
	defer eb.Stop()

	if cap(eb.eventCh) != 200 {
		t.Fatalf("Expected buffer size 200, got %d", cap(eb.eventCh))
	}

	var wg sync.WaitGroup
	wg.Add(1)

	eb.Subscribe(TypeStepCompleted, &mockHandler{
		handleFunc: func(ctx context.Context, event Event) error {
			defer wg.Done()
			return errors.New("test error")
		},
	})

	event := Event{
		Type:        TypeStepCompleted,
		ExecutionID: "exec-123",
	}

	err := eb.Publish(context.Background(), event)
	if err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	waitWithTimeout(&wg, 1*time.Second)
	time.Sleep(100 * time.Millisecond) // Give time for error handler to be called

	customErrorMu.Lock()
	if !customErrorCalled {
		t.Fatal("Custom error handler was not called")
	}
	customErrorMu.Unlock()
}

func TestEventBus_CancelledContext(t *testing.T) {
	eb := NewEventBus()
	defer eb.Stop()

	eb.Subscribe(TypeStepCompleted, &mockHandler{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	event := Event{
		Type:        TypeStepCompleted,
		ExecutionID: "exec-123",
	}

	err := eb.Publish(ctx, event)
	if err == nil || !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context.Canceled error, got %v", err)
	}
}

// Helper types and functions

type mockHandler struct {
	handleFunc func(ctx context.Context, event Event) error
}

func (m *mockHandler) Handle(ctx context.Context, event Event) error {
	if m.handleFunc != nil {
		return m.handleFunc(ctx, event)
	}
	return nil
}

func waitWithTimeout(wg *sync.WaitGroup, timeout time.Duration) {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return
	case <-time.After(timeout):
		return
	}
}
