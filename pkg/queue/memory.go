package queue

import (
	"context"
	"sync"
	"time"

	"github.com/flowlinehq/flowline/pkg/models"
)

// MemoryQueue is an in-process JobQueue for tests and single-node setups.
// Jobs do not survive a restart.
type MemoryQueue struct {
	mu     sync.Mutex
	ready  []*models.Job
	dead   []DeadEntry
	wake   chan struct{}
	closed bool
}

// DeadEntry is a parked job with the reason it was abandoned.
type DeadEntry struct {
	Job    *models.Job
	Reason string
}

func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{wake: make(chan struct{}, 1)}
}

func (q *MemoryQueue) Enqueue(_ context.Context, job *models.Job) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()

		return ErrQueueClosed
	}

	q.ready = append(q.ready, job)
	q.mu.Unlock()

	q.signal()

	return nil
}

func (q *MemoryQueue) EnqueueDelayed(ctx context.Context, job *models.Job, delay time.Duration) error {
	time.AfterFunc(delay, func() {
		//nolint:errcheck // a closed queue drops pending retries
		_ = q.Enqueue(ctx, job)
	})

	return nil
}

func (q *MemoryQueue) Dequeue(ctx context.Context) (*models.Job, error) {
	for {
		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			// Chain the wakeup so every blocked waiter observes the close.
			q.signal()

			return nil, ErrQueueClosed
		}

		if len(q.ready) > 0 {
			job := q.ready[0]
			q.ready = q.ready[1:]
			remaining := len(q.ready)
			q.mu.Unlock()

			if remaining > 0 {
				q.signal()
			}

			return job, nil
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-q.wake:
		}
	}
}

func (q *MemoryQueue) DeadLetter(_ context.Context, job *models.Job, reason string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.dead = append(q.dead, DeadEntry{Job: job, Reason: reason})

	return nil
}

// DeadLetters returns a snapshot of the parked jobs.
func (q *MemoryQueue) DeadLetters() []DeadEntry {
	q.mu.Lock()
	defer q.mu.Unlock()

	entries := make([]DeadEntry, len(q.dead))
	copy(entries, q.dead)

	return entries
}

func (q *MemoryQueue) Depth(_ context.Context) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	return int64(len(q.ready)), nil
}

func (q *MemoryQueue) Ping(_ context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}

	return nil
}

func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()

	q.signal()

	return nil
}

func (q *MemoryQueue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}
