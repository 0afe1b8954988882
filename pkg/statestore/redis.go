package statestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/flowlinehq/flowline/pkg/models"
	redis "github.com/redis/go-redis/v9"
)

// RedisStore is the production state store. All cross-process shared state
// (contexts, node outputs, cancel flags) lives here so that queued executions
// survive worker crashes and can resume on any worker.
type RedisStore struct {
	client redis.UniversalClient
	logger *slog.Logger
}

func NewRedisStore(ctx context.Context, addr, password string, db int, logger *slog.Logger) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err := client.Ping(pingCtx).Err()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisStore{
		client: client,
		logger: logger.With("module", "statestore"),
	}, nil
}

func (s *RedisStore) SaveContext(ctx context.Context, executionCtx *models.ExecutionContext) error {
	payload, err := json.Marshal(executionCtx)
	if err != nil {
		return fmt.Errorf("failed to serialize execution context: %w", err)
	}

	err = s.client.Set(ctx, ContextKey(executionCtx.ID), payload, ActiveTTL).Err()
	if err != nil {
		return fmt.Errorf("failed to save execution context: %w", err)
	}

	return nil
}

func (s *RedisStore) LoadContext(ctx context.Context, executionID string) (*models.ExecutionContext, error) {
	payload, err := s.client.Get(ctx, ContextKey(executionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrContextNotFound
		}

		return nil, fmt.Errorf("failed to load execution context: %w", err)
	}

	var executionCtx models.ExecutionContext

	err = json.Unmarshal(payload, &executionCtx)
	if err != nil {
		return nil, fmt.Errorf("failed to deserialize execution context: %w", err)
	}

	return &executionCtx, nil
}

func (s *RedisStore) DeleteContext(ctx context.Context, executionID string) error {
	return s.client.Del(ctx, ContextKey(executionID), CancelKey(executionID)).Err()
}

func (s *RedisStore) ExpireContext(ctx context.Context, executionID string, ttl time.Duration) error {
	return s.client.Expire(ctx, ContextKey(executionID), ttl).Err()
}

func (s *RedisStore) SaveNodeOutput(ctx context.Context, executionID, nodeID string, outputs map[string]models.NodeResult) error {
	payload, err := json.Marshal(outputs)
	if err != nil {
		return fmt.Errorf("failed to serialize node output: %w", err)
	}

	err = s.client.Set(ctx, OutputsKey(executionID, nodeID), payload, ActiveTTL).Err()
	if err != nil {
		return fmt.Errorf("failed to save node output: %w", err)
	}

	return nil
}

func (s *RedisStore) LoadNodeOutput(ctx context.Context, executionID, nodeID string) (map[string]models.NodeResult, error) {
	payload, err := s.client.Get(ctx, OutputsKey(executionID, nodeID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrContextNotFound
		}

		return nil, fmt.Errorf("failed to load node output: %w", err)
	}

	var outputs map[string]models.NodeResult

	err = json.Unmarshal(payload, &outputs)
	if err != nil {
		return nil, fmt.Errorf("failed to deserialize node output: %w", err)
	}

	return outputs, nil
}

func (s *RedisStore) RequestCancel(ctx context.Context, executionID string) error {
	return s.client.Set(ctx, CancelKey(executionID), "1", ActiveTTL).Err()
}

func (s *RedisStore) IsCancelRequested(ctx context.Context, executionID string) (bool, error) {
	count, err := s.client.Exists(ctx, CancelKey(executionID)).Result()
	if err != nil {
		return false, err
	}

	return count > 0, nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
