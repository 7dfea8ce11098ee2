package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/docuflow/workflow-engine/clients"
	"github.com/docuflow/workflow-engine/storage"
	"github.com/docuflow/workflow-engine/types"
	"github.com/docuflow/workflow-engine/workflow"
)

// Config is the CLI configuration file.
type Config struct {
	Storage StorageConfig `yaml:"storage"`
	Clients ClientsConfig `yaml:"clients"`
}

// StorageConfig selects and configures the backing store.
type StorageConfig struct {
	// Type is "memory" or "redis". Defaults to memory.
	Type  string      `yaml:"type"`
	Redis RedisConfig `yaml:"redis"`
}

// RedisConfig configures the redis store.
type RedisConfig struct {
	Addr         string `yaml:"addr"`
	Password     string `yaml:"password"`
	DB           int    `yaml:"db"`
	PoolSize     int    `yaml:"pool_size"`
	MinIdleConns int    `yaml:"min_idle_conns"`
}

// ClientsConfig configures the collaborator service endpoints.
type ClientsConfig struct {
	Analysis ServiceConfig `yaml:"analysis"`
	Fetch    ServiceConfig `yaml:"fetch"`
	Notify   ServiceConfig `yaml:"notify"`
}

// ServiceConfig is one collaborator service endpoint.
type ServiceConfig struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
}

// loadConfig reads a YAML config file. A missing path yields the zero
// config, which runs fully in-memory with no collaborators configured.
func loadConfig(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

func buildStore(cfg StorageConfig) (storage.Store, error) {
	switch cfg.Type {
	case "", "memory":
		return storage.NewMemoryStore(), nil
	case "redis":
		return storage.NewRedisStore(storage.RedisOptions{
			Addr:         cfg.Redis.Addr,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
			IdleTimeout:  5 * time.Minute,
		})
	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.Type)
	}
}

func buildCollaborators(cfg ClientsConfig) workflow.Collaborators {
	var c workflow.Collaborators
	if cfg.Analysis.BaseURL != "" {
		c.Analysis = clients.NewAnalysisService(clients.Config{
			BaseURL: cfg.Analysis.BaseURL,
			APIKey:  cfg.Analysis.APIKey,
		})
	}
	if cfg.Fetch.BaseURL != "" {
		c.Fetcher = clients.NewFetchService(clients.Config{
			BaseURL: cfg.Fetch.BaseURL,
			APIKey:  cfg.Fetch.APIKey,
		})
	}
	if cfg.Notify.BaseURL != "" {
		c.Notifier = clients.NewNotificationService(clients.Config{
			BaseURL: cfg.Notify.BaseURL,
			APIKey:  cfg.Notify.APIKey,
		})
	}
	return c
}

// workflowFile is the YAML shape of a workflow definition.
type workflowFile struct {
	ID          string     `yaml:"id"`
	Name        string     `yaml:"name"`
	Description string     `yaml:"description"`
	TriggerType string     `yaml:"trigger_type"`
	Schedule    string     `yaml:"schedule"`
	Status      string     `yaml:"status"`
	Steps       []stepFile `yaml:"steps"`
}

type stepFile struct {
	Type   string                 `yaml:"type"`
	Name   string                 `yaml:"name"`
	Config map[string]interface{} `yaml:"config"`
}

// loadWorkflowFile reads a workflow definition from a YAML file.
func loadWorkflowFile(path string) (types.Workflow, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return types.Workflow{}, fmt.Errorf("read workflow %s: %w", path, err)
	}

	var file workflowFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return types.Workflow{}, fmt.Errorf("parse workflow %s: %w", path, err)
	}

	wf := types.Workflow{
		ID:          file.ID,
		Name:        file.Name,
		Description: file.Description,
		TriggerType: file.TriggerType,
		Schedule:    file.Schedule,
		Status:      file.Status,
		Steps:       make([]types.Step, 0, len(file.Steps)),
	}
	for _, s := range file.Steps {
		wf.Steps = append(wf.Steps, types.Step{
			Type:   s.Type,
			Name:   s.Name,
			Config: normalizeYAMLValue(s.Config).(map[string]interface{}),
		})
	}
	return wf, nil
}

// normalizeYAMLValue rewrites map[interface{}]interface{} values that yaml
// decoding can produce in nested structures into map[string]interface{}, so
// step configs behave like JSON-decoded data.
func normalizeYAMLValue(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, item := range val {
			out[k] = normalizeYAMLValue(item)
		}
		return out
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, item := range val {
			out[fmt.Sprintf("%v", k)] = normalizeYAMLValue(item)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = normalizeYAMLValue(item)
		}
		return out
	case nil:
		return map[string]interface{}{}
	default:
		return val
	}
}
