package clients

import (
	"context"

	"github.com/docuflow/workflow-engine/workflow"
)

// AnalysisService calls a text analysis service over HTTP.
type AnalysisService struct {
	caller *httpCaller
}

// NewAnalysisService creates an analysis client for the given service.
func NewAnalysisService(cfg Config) *AnalysisService {
	return &AnalysisService{caller: newHTTPCaller(cfg)}
}

// Analyze submits text for analysis and returns the service's structured
// verdict as-is.
func (s *AnalysisService) Analyze(ctx context.Context, req workflow.AnalysisRequest) (map[string]interface{}, error) {
	return s.caller.postJSON(ctx, "/v1/analyze", req)
}

// FetchService retrieves records from external sources over HTTP.
type FetchService struct {
	caller *httpCaller
}

// NewFetchService creates a fetch client for the given service.
func NewFetchService(cfg Config) *FetchService {
	return &FetchService{caller: newHTTPCaller(cfg)}
}

// Fetch asks the service to pull data from the named source. The step config
// rides along so the service can apply source-specific options.
func (s *FetchService) Fetch(ctx context.Context, source string, config map[string]interface{}) (map[string]interface{}, error) {
	payload := map[string]interface{}{
		"source": source,
		"config": config,
	}
	return s.caller.postJSON(ctx, "/v1/fetch", payload)
}

// NotificationService dispatches notifications through an HTTP gateway.
type NotificationService struct {
	caller *httpCaller
}

// NewNotificationService creates a notification client for the given gateway.
func NewNotificationService(cfg Config) *NotificationService {
	return &NotificationService{caller: newHTTPCaller(cfg)}
}

// Send delivers a rendered notification.
func (s *NotificationService) Send(ctx context.Context, n workflow.Notification) (map[string]interface{}, error) {
	return s.caller.postJSON(ctx, "/v1/notify", n)
}

var (
	_ workflow.AnalysisClient     = (*AnalysisService)(nil)
	_ workflow.FetchClient        = (*FetchService)(nil)
	_ workflow.NotificationClient = (*NotificationService)(nil)
)
