package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/docuflow/workflow-engine/types"
)

const (
	workflowPrefix  = "workflow:"
	executionPrefix = "execution:"
	// executionIndexPrefix keys a set of execution IDs per workflow.
	executionIndexPrefix = "workflow_executions:"

	// statsMaxRetries caps the optimistic CAS loop in IncrementStats.
	statsMaxRetries = 10
)

// RedisStore is a Redis-backed implementation of the Store interface.
// Workflows and executions are stored as JSON values.
type RedisStore struct {
	client *redis.Client
}

// RedisOptions extends redis.Options with additional configuration.
type RedisOptions struct {
	Addr         string
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	IdleTimeout  time.Duration
}

// NewRedisStore creates a new RedisStore instance with configurable options.
func NewRedisStore(opts RedisOptions) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		PoolSize:     opts.PoolSize,
		MinIdleConns: opts.MinIdleConns,
		IdleTimeout:  opts.IdleTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := client.Ping(ctx).Result(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %v", err)
	}

	return &RedisStore{client: client}, nil
}

// saveJSON saves a value to Redis under the given key prefix and ID.
func (s *RedisStore) saveJSON(ctx context.Context, prefix, id string, value interface{}) error {
	return withContextError(ctx, func() error {
		data, err := json.Marshal(value)
		if err != nil {
			return fmt.Errorf("failed to marshal %s%s: %v", prefix, id, err)
		}
		key := prefix + id
		if err := s.client.Set(ctx, key, data, 0).Err(); err != nil {
			return fmt.Errorf("failed to set %s in Redis: %v", key, err)
		}
		return nil
	})
}

// getJSON retrieves and unmarshals a value from Redis under the given key
// prefix and ID.
func getJSON[T any](ctx context.Context, client *redis.Client, prefix, id string, errNotFound error) (T, error) {
	return withContext(ctx, func() (T, error) {
		var zero T
		key := prefix + id
		data, err := client.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return zero, fmt.Errorf("%w: id=%s", errNotFound, id)
		} else if err != nil {
			return zero, fmt.Errorf("failed to get %s from Redis: %v", key, err)
		}

		var result T
		if err := json.Unmarshal(data, &result); err != nil {
			return zero, fmt.Errorf("failed to unmarshal %s: %v", key, err)
		}
		return result, nil
	})
}

// SaveWorkflow saves a workflow to Redis.
func (s *RedisStore) SaveWorkflow(ctx context.Context, wf types.Workflow) error {
	return s.saveJSON(ctx, workflowPrefix, wf.ID, wf)
}

// GetWorkflow retrieves a workflow from Redis.
func (s *RedisStore) GetWorkflow(ctx context.Context, id string) (types.Workflow, error) {
	return getJSON[types.Workflow](ctx, s.client, workflowPrefix, id, ErrWorkflowNotFound)
}

// ListWorkflows returns all workflows stored in Redis.
func (s *RedisStore) ListWorkflows(ctx context.Context) ([]types.Workflow, error) {
	return withContext(ctx, func() ([]types.Workflow, error) {
		keys, err := s.client.Keys(ctx, workflowPrefix+"*").Result()
		if err != nil {
			return nil, fmt.Errorf("failed to scan workflow keys: %v", err)
		}

		wfs := make([]types.Workflow, 0, len(keys))
		for _, key := range keys {
			data, err := s.client.Get(ctx, key).Bytes()
			if errors.Is(err, redis.Nil) {
				continue
			} else if err != nil {
				return nil, fmt.Errorf("failed to get %s: %v", key, err)
			}

			var wf types.Workflow
			if err := json.Unmarshal(data, &wf); err != nil {
				return nil, fmt.Errorf("failed to unmarshal %s: %v", key, err)
			}
			wfs = append(wfs, wf)
		}
		return wfs, nil
	})
}

// SaveExecution saves an execution record to Redis and indexes it under its
// workflow for ListExecutions.
func (s *RedisStore) SaveExecution(ctx context.Context, exec types.WorkflowExecution) error {
	return withContextError(ctx, func() error {
		data, err := json.Marshal(exec)
		if err != nil {
			return fmt.Errorf("failed to marshal execution %s: %v", exec.ID, err)
		}

		pipe := s.client.Pipeline()
		pipe.Set(ctx, executionPrefix+exec.ID, data, 0)
		pipe.SAdd(ctx, executionIndexPrefix+exec.WorkflowID, exec.ID)
		if _, err := pipe.Exec(ctx); err != nil {
			return fmt.Errorf("failed to save execution %s: %v", exec.ID, err)
		}
		return nil
	})
}

// GetExecution retrieves an execution record from Redis.
func (s *RedisStore) GetExecution(ctx context.Context, id string) (types.WorkflowExecution, error) {
	return getJSON[types.WorkflowExecution](ctx, s.client, executionPrefix, id, ErrExecutionNotFound)
}

// ListExecutions returns all execution records for the given workflow.
func (s *RedisStore) ListExecutions(ctx context.Context, workflowID string) ([]types.WorkflowExecution, error) {
	return withContext(ctx, func() ([]types.WorkflowExecution, error) {
		ids, err := s.client.SMembers(ctx, executionIndexPrefix+workflowID).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to read execution index for %s: %v", workflowID, err)
		}

		execs := make([]types.WorkflowExecution, 0, len(ids))
		for _, id := range ids {
			exec, err := getJSON[types.WorkflowExecution](ctx, s.client, executionPrefix, id, ErrExecutionNotFound)
			if errors.Is(err, ErrExecutionNotFound) {
				continue
			} else if err != nil {
				return nil, err
			}
			execs = append(execs, exec)
		}
		return execs, nil
	})
}

// IncrementStats updates the workflow's counters with an optimistic WATCH
// transaction, retried on contention so concurrent run completions never
// lose an increment.
func (s *RedisStore) IncrementStats(ctx context.Context, workflowID string, success bool, durationMS int64) error {
	return withContextError(ctx, func() error {
		key := workflowPrefix + workflowID

		update := func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if errors.Is(err, redis.Nil) {
				return fmt.Errorf("%w: id=%s", ErrWorkflowNotFound, workflowID)
			} else if err != nil {
				return fmt.Errorf("failed to get %s from Redis: %v", key, err)
			}

			var wf types.Workflow
			if err := json.Unmarshal(data, &wf); err != nil {
				return fmt.Errorf("failed to unmarshal %s: %v", key, err)
			}

			applyStats(&wf, success, durationMS)

			updated, err := json.Marshal(wf)
			if err != nil {
				return fmt.Errorf("failed to marshal %s: %v", key, err)
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, updated, 0)
				return nil
			})
			return err
		}

		for i := 0; i < statsMaxRetries; i++ {
			err := s.client.Watch(ctx, update, key)
			if err == nil {
				return nil
			}
			if errors.Is(err, redis.TxFailedErr) {
				continue
			}
			return err
		}
		return fmt.Errorf("failed to update stats for %s after %d retries", workflowID, statsMaxRetries)
	})
}

// ClearFinished removes completed or failed execution records from Redis.
func (s *RedisStore) ClearFinished(ctx context.Context) error {
	return withContextError(ctx, func() error {
		keys, err := s.client.Keys(ctx, executionPrefix+"*").Result()
		if err != nil {
			return fmt.Errorf("failed to scan execution keys: %v", err)
		}

		if len(keys) == 0 {
			return nil
		}

		pipe := s.client.Pipeline()
		for _, key := range keys {
			data, err := s.client.Get(ctx, key).Bytes()
			if errors.Is(err, redis.Nil) {
				continue
			} else if err != nil {
				return fmt.Errorf("failed to get %s: %v", key, err)
			}

			var exec types.WorkflowExecution
			if err := json.Unmarshal(data, &exec); err != nil {
				return fmt.Errorf("failed to unmarshal %s: %v", key, err)
			}

			if exec.Status == types.ExecutionCompleted || exec.Status == types.ExecutionFailed {
				pipe.Del(ctx, key)
				pipe.SRem(ctx, executionIndexPrefix+exec.WorkflowID, exec.ID)
			}
		}

		if _, err := pipe.Exec(ctx); err != nil {
			return fmt.Errorf("failed to execute pipeline for deletion: %v", err)
		}
		return nil
	})
}

// Close closes the Redis client connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
