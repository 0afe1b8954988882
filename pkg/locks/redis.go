package locks

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/flowlinehq/flowline/pkg/models"
	redis "github.com/redis/go-redis/v9"
)

const (
	lockKeyPrefix = "lock:node:"
	heldKeyPrefix = "lock:held:"

	// lockTTL bounds how long a crashed execution can keep nodes locked
	// before crash-recovery cleanup or expiry frees them.
	lockTTL = 24 * time.Hour
)

// RedisManager stores locks in Redis so multiple worker processes observe the
// same lock state. Exclusive node locks are plain SETNX keys holding the
// isolated execution id; the per-execution held set drives release.
type RedisManager struct {
	client redis.UniversalClient
	logger *slog.Logger
}

func NewRedisManager(client redis.UniversalClient, logger *slog.Logger) *RedisManager {
	return &RedisManager{
		client: client,
		logger: logger.With("module", "locks"),
	}
}

func (m *RedisManager) AcquireLocks(ctx context.Context, executionCtx *models.ExecutionContext, graph *models.Graph) (bool, error) {
	closure := graph.DownstreamClosure(executionCtx.TriggerNodeID)

	if !executionCtx.Isolated {
		// Shared holders never block anyone; record the held set so release
		// stays uniform across modes.
		err := m.recordHeld(ctx, executionCtx.ID, closure, false)
		if err != nil {
			return false, err
		}

		return true, nil
	}

	acquired := make([]string, 0, len(closure))

	for _, nodeID := range closure {
		ok, err := m.client.SetNX(ctx, lockKeyPrefix+nodeID, executionCtx.ID, lockTTL).Result()
		if err != nil {
			m.rollback(ctx, acquired)

			return false, fmt.Errorf("failed to acquire lock for node %s: %w", nodeID, err)
		}

		if !ok {
			holder, _ := m.client.Get(ctx, lockKeyPrefix+nodeID).Result()
			if holder == executionCtx.ID {
				// Re-acquisition by the same execution (worker retry).
				acquired = append(acquired, nodeID)

				continue
			}

			m.logger.DebugContext(ctx, "Lock contention",
				"execution_id", executionCtx.ID,
				"node_id", nodeID,
				"held_by", holder,
			)
			m.rollback(ctx, acquired)

			return false, nil
		}

		acquired = append(acquired, nodeID)
	}

	err := m.recordHeld(ctx, executionCtx.ID, closure, true)
	if err != nil {
		m.rollback(ctx, acquired)

		return false, err
	}

	return true, nil
}

func (m *RedisManager) ReleaseLocks(ctx context.Context, executionID string) error {
	nodeIDs, err := m.client.SMembers(ctx, heldKeyPrefix+executionID).Result()
	if err != nil {
		return fmt.Errorf("failed to read held locks: %w", err)
	}

	for _, nodeID := range nodeIDs {
		holder, err := m.client.Get(ctx, lockKeyPrefix+nodeID).Result()
		if err == nil && holder == executionID {
			_ = m.client.Del(ctx, lockKeyPrefix+nodeID).Err()
		}
	}

	return m.client.Del(ctx, heldKeyPrefix+executionID).Err()
}

func (m *RedisManager) recordHeld(ctx context.Context, executionID string, closure []string, exclusive bool) error {
	if !exclusive {
		// Shared executions do not own exclusive keys; nothing to release.
		return nil
	}

	members := make([]any, len(closure))
	for i, nodeID := range closure {
		members[i] = nodeID
	}

	pipe := m.client.TxPipeline()
	pipe.SAdd(ctx, heldKeyPrefix+executionID, members...)
	pipe.Expire(ctx, heldKeyPrefix+executionID, lockTTL)

	_, err := pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to record held locks: %w", err)
	}

	return nil
}

func (m *RedisManager) rollback(ctx context.Context, acquired []string) {
	for _, nodeID := range acquired {
		_ = m.client.Del(ctx, lockKeyPrefix+nodeID).Err()
	}
}
