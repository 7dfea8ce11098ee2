package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
)

// aiAnalysisHandler delegates text analysis to the external AI collaborator.
// The text comes from config["text"], falls back to the context field named
// by config["text_field"], and finally to a JSON rendering of the whole
// context.
type aiAnalysisHandler struct {
	client AnalysisClient
}

func (h *aiAnalysisHandler) Execute(ctx context.Context, config, data map[string]interface{}) (interface{}, error) {
	if h.client == nil {
		return nil, errors.New("ai_analysis: no analysis client configured")
	}

	text := configString(config, "text")
	if text == "" {
		if field := configString(config, "text_field"); field != "" {
			if v, ok := data[field]; ok {
				text = fmt.Sprintf("%v", v)
			}
		}
	}
	if text == "" {
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("ai_analysis: failed to serialize context: %w", err)
		}
		text = string(raw)
	}

	req := AnalysisRequest{
		Text:  text,
		Task:  configStringDefault(config, "task", "general_analysis"),
		Model: configStringDefault(config, "model", "default"),
	}
	return h.client.Analyze(ctx, req)
}

// dataFetchHandler delegates to the fetch collaborator keyed by source.
type dataFetchHandler struct {
	client FetchClient
}

func (h *dataFetchHandler) Execute(ctx context.Context, config, data map[string]interface{}) (interface{}, error) {
	if h.client == nil {
		return nil, errors.New("data_fetch: no fetch client configured")
	}

	source := configString(config, "source")
	if source == "" {
		return nil, errors.New("data_fetch: config is missing 'source'")
	}

	sourceConfig, _ := config["config"].(map[string]interface{})
	return h.client.Fetch(ctx, source, sourceConfig)
}

// placeholderPattern matches {{key}} tokens in notification messages.
var placeholderPattern = regexp.MustCompile(`\{\{(\w+)\}\}`)

// renderMessage substitutes every {{key}} token with the matching context
// value. Tokens without a matching key are left unchanged.
func renderMessage(message string, data map[string]interface{}) string {
	return placeholderPattern.ReplaceAllStringFunc(message, func(token string) string {
		key := token[2 : len(token)-2]
		if v, ok := data[key]; ok {
			return fmt.Sprintf("%v", v)
		}
		return token
	})
}

// notificationHandler renders the message template and delegates delivery to
// the notification collaborator.
type notificationHandler struct {
	client NotificationClient
}

func (h *notificationHandler) Execute(ctx context.Context, config, data map[string]interface{}) (interface{}, error) {
	if h.client == nil {
		return nil, errors.New("notification: no notification client configured")
	}

	channelConfig, _ := config["channelConfig"].(map[string]interface{})
	n := Notification{
		Channel:   configStringDefault(config, "channel", "email"),
		Recipient: configString(config, "recipient"),
		Message:   renderMessage(configString(config, "message"), data),
		Subject:   configString(config, "subject"),
		Config:    channelConfig,
	}
	return h.client.Send(ctx, n)
}

// configString reads a string from a step config, returning "" for missing
// or non-string values.
func configString(config map[string]interface{}, key string) string {
	if v, ok := config[key].(string); ok {
		return v
	}
	return ""
}

// configStringDefault reads a string from a step config with a fallback.
func configStringDefault(config map[string]interface{}, key, fallback string) string {
	if v := configString(config, key); v != "" {
		return v
	}
	return fallback
}
