package clients

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docuflow/workflow-engine/workflow"
)

func TestAnalysisService(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "/v1/analyze", r.URL.Path)
			assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

			var req workflow.AnalysisRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "hello", req.Text)
			assert.Equal(t, "sentiment", req.Task)

			json.NewEncoder(w).Encode(map[string]interface{}{"verdict": "positive", "score": 0.9})
		}))
		defer srv.Close()

		client := NewAnalysisService(Config{BaseURL: srv.URL, APIKey: "secret"})
		result, err := client.Analyze(context.Background(), workflow.AnalysisRequest{
			Text: "hello", Task: "sentiment", Model: "default",
		})
		require.NoError(t, err)
		assert.Equal(t, "positive", result["verdict"])
		assert.Equal(t, 0.9, result["score"])
	})

	t.Run("ServerError", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "model overloaded", http.StatusServiceUnavailable)
		}))
		defer srv.Close()

		client := NewAnalysisService(Config{BaseURL: srv.URL})
		_, err := client.Analyze(context.Background(), workflow.AnalysisRequest{Text: "x"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "503")
		assert.Contains(t, err.Error(), "model overloaded")
	})

	t.Run("ContextCancelled", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			<-r.Context().Done()
		}))
		defer srv.Close()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		client := NewAnalysisService(Config{BaseURL: srv.URL})
		_, err := client.Analyze(ctx, workflow.AnalysisRequest{Text: "x"})
		assert.Error(t, err)
	})
}

func TestFetchService(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/fetch", r.URL.Path)

		var payload map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "crm", payload["source"])

		json.NewEncoder(w).Encode(map[string]interface{}{
			"records": []interface{}{map[string]interface{}{"id": "1"}},
		})
	}))
	defer srv.Close()

	client := NewFetchService(Config{BaseURL: srv.URL})
	result, err := client.Fetch(context.Background(), "crm", map[string]interface{}{"limit": 10})
	require.NoError(t, err)
	assert.Len(t, result["records"], 1)
}

func TestNotificationService(t *testing.T) {
	var got workflow.Notification
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/notify", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		json.NewEncoder(w).Encode(map[string]interface{}{"delivered": true})
	}))
	defer srv.Close()

	client := NewNotificationService(Config{BaseURL: srv.URL})
	result, err := client.Send(context.Background(), workflow.Notification{
		Channel:   "email",
		Recipient: "ops@example.com",
		Message:   "Deal closed: Acme",
	})
	require.NoError(t, err)
	assert.Equal(t, true, result["delivered"])
	assert.Equal(t, "email", got.Channel)
	assert.Equal(t, "Deal closed: Acme", got.Message)
}

func TestEmptyResponseBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	client := NewNotificationService(Config{BaseURL: srv.URL})
	result, err := client.Send(context.Background(), workflow.Notification{Message: "ping"})
	require.NoError(t, err)
	assert.Empty(t, result)
}
