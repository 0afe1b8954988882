// Package queue provides the durable job queue backing queued execution mode
// and the worker pool that drains it.
package queue

import (
	"context"
	"errors"
	"time"

	"github.com/flowlinehq/flowline/pkg/models"
)

var (
	// ErrQueueClosed is returned by Dequeue after Close.
	ErrQueueClosed = errors.New("job queue closed")
)

const (
	// DefaultMaxAttempts bounds worker-side retries per job before it goes
	// to the dead-letter list.
	DefaultMaxAttempts = 3

	// Retry backoff doubles per attempt starting at BackoffBase, capped at
	// BackoffMax.
	BackoffBase = 1 * time.Second
	BackoffMax  = 1 * time.Minute
)

// JobQueue is the durable queue contract. Enqueue is at-least-once; jobs
// survive process restarts in the Redis implementation. Dequeue blocks until
// a job is available, the context is done, or the queue is closed.
type JobQueue interface {
	Enqueue(ctx context.Context, job *models.Job) error

	// EnqueueDelayed makes the job available for dequeue only after the
	// delay elapses. Used for retry backoff.
	EnqueueDelayed(ctx context.Context, job *models.Job, delay time.Duration) error

	Dequeue(ctx context.Context) (*models.Job, error)

	// DeadLetter parks a job that exhausted its attempts for inspection.
	DeadLetter(ctx context.Context, job *models.Job, reason string) error

	// Depth reports the number of immediately dequeueable jobs.
	Depth(ctx context.Context) (int64, error)

	// Ping verifies the backing store is reachable. The dispatcher probes
	// it before routing an execution to queued mode.
	Ping(ctx context.Context) error

	Close() error
}

// Backoff returns the retry delay before the given attempt (1-based).
func Backoff(attempt int) time.Duration {
	delay := BackoffBase
	for range attempt - 1 {
		delay *= 2
		if delay >= BackoffMax {
			return BackoffMax
		}
	}

	return delay
}
