package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/flowlinehq/flowline/pkg/models"
)

const (
	jobsKey    = "queue:jobs"
	delayedKey = "queue:delayed"
	deadKey    = "queue:dead"

	// blockInterval bounds how long a single BLPOP blocks so that context
	// cancellation is observed promptly.
	blockInterval = 2 * time.Second
)

// RedisQueue is the durable queue implementation. Ready jobs live in a list
// consumed with BLPOP; delayed jobs sit in a sorted set scored by their
// ready-at time and are promoted lazily on dequeue.
type RedisQueue struct {
	client *redis.Client
	logger *slog.Logger
	closed chan struct{}
}

func NewRedisQueue(redisURL string, logger *slog.Logger) (*RedisQueue, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	return &RedisQueue{
		client: redis.NewClient(opts),
		logger: logger.With("module", "redis_queue"),
		closed: make(chan struct{}),
	}, nil
}

func (q *RedisQueue) Enqueue(ctx context.Context, job *models.Job) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	err = q.client.RPush(ctx, jobsKey, payload).Err()
	if err != nil {
		return fmt.Errorf("failed to enqueue job for execution %s: %w", job.ExecutionID, err)
	}

	return nil
}

func (q *RedisQueue) EnqueueDelayed(ctx context.Context, job *models.Job, delay time.Duration) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	readyAt := float64(time.Now().Add(delay).UnixMilli())

	err = q.client.ZAdd(ctx, delayedKey, redis.Z{Score: readyAt, Member: payload}).Err()
	if err != nil {
		return fmt.Errorf("failed to schedule delayed job for execution %s: %w", job.ExecutionID, err)
	}

	return nil
}

func (q *RedisQueue) Dequeue(ctx context.Context) (*models.Job, error) {
	for {
		select {
		case <-q.closed:
			return nil, ErrQueueClosed
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		q.promoteDue(ctx)

		values, err := q.client.BLPop(ctx, blockInterval, jobsKey).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}

		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}

			return nil, fmt.Errorf("failed to dequeue job: %w", err)
		}

		// BLPOP returns [key, value].
		var job models.Job

		err = json.Unmarshal([]byte(values[1]), &job)
		if err != nil {
			q.logger.ErrorContext(ctx, "Discarding undecodable job payload", "error", err)

			continue
		}

		return &job, nil
	}
}

// promoteDue moves delayed jobs whose ready-at time has passed onto the ready
// list. Races between concurrent promoters are resolved by ZREM: only the
// caller that removes the member enqueues it.
func (q *RedisQueue) promoteDue(ctx context.Context) {
	now := strconv.FormatInt(time.Now().UnixMilli(), 10)

	payloads, err := q.client.ZRangeByScore(ctx, delayedKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: now,
	}).Result()
	if err != nil || len(payloads) == 0 {
		return
	}

	for _, payload := range payloads {
		removed, err := q.client.ZRem(ctx, delayedKey, payload).Result()
		if err != nil || removed == 0 {
			continue
		}

		err = q.client.RPush(ctx, jobsKey, payload).Err()
		if err != nil {
			q.logger.ErrorContext(ctx, "Failed to promote delayed job", "error", err)
		}
	}
}

func (q *RedisQueue) DeadLetter(ctx context.Context, job *models.Job, reason string) error {
	entry := struct {
		Job      *models.Job `json:"job"`
		Reason   string      `json:"reason"`
		FailedAt time.Time   `json:"failed_at"`
	}{Job: job, Reason: reason, FailedAt: time.Now().UTC()}

	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal dead-letter entry: %w", err)
	}

	err = q.client.RPush(ctx, deadKey, payload).Err()
	if err != nil {
		return fmt.Errorf("failed to dead-letter job for execution %s: %w", job.ExecutionID, err)
	}

	return nil
}

func (q *RedisQueue) Depth(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, jobsKey).Result()
}

func (q *RedisQueue) Ping(ctx context.Context) error {
	return q.client.Ping(ctx).Err()
}

func (q *RedisQueue) Close() error {
	select {
	case <-q.closed:
	default:
		close(q.closed)
	}

	return q.client.Close()
}
