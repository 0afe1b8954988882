package queue

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/flowlinehq/flowline/pkg/models"
)

// Processor runs one dequeued job to its next stopping point. ProcessJob must
// be idempotent per execution: the same job may be delivered again after a
// crash, and completed node work is skipped on rehydration.
type Processor interface {
	ProcessJob(ctx context.Context, workerID string, job *models.Job) error

	// JobExhausted is called once a job has burned through its attempts.
	// The processor finalizes the execution as failed.
	JobExhausted(ctx context.Context, job *models.Job, lastErr error)
}

// WorkerPool drains a JobQueue with a fixed number of worker goroutines.
// Failed jobs are re-enqueued with exponential backoff until MaxAttempts,
// then dead-lettered.
type WorkerPool struct {
	id          string
	queue       JobQueue
	processor   Processor
	logger      *slog.Logger
	size        int
	maxAttempts int

	wg sync.WaitGroup
}

func NewWorkerPool(id string, jobQueue JobQueue, processor Processor, size int, logger *slog.Logger) *WorkerPool {
	if size <= 0 {
		size = 1
	}

	return &WorkerPool{
		id:          id,
		queue:       jobQueue,
		processor:   processor,
		logger:      logger.With("module", "worker_pool", "worker_id", id),
		size:        size,
		maxAttempts: DefaultMaxAttempts,
	}
}

// WithMaxAttempts overrides the per-job retry budget.
func (p *WorkerPool) WithMaxAttempts(maxAttempts int) *WorkerPool {
	if maxAttempts > 0 {
		p.maxAttempts = maxAttempts
	}

	return p
}

// Start launches the workers. It returns immediately; Wait blocks until all
// workers have exited after the context is cancelled or the queue is closed.
func (p *WorkerPool) Start(ctx context.Context) {
	p.logger.InfoContext(ctx, "Starting worker pool", "size", p.size)

	for i := range p.size {
		p.wg.Add(1)

		go p.worker(ctx, i)
	}
}

// Wait blocks until every worker goroutine has exited.
func (p *WorkerPool) Wait() {
	p.wg.Wait()
}

func (p *WorkerPool) worker(ctx context.Context, index int) {
	defer p.wg.Done()

	logger := p.logger.With("worker_index", index)

	for {
		job, err := p.queue.Dequeue(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ErrQueueClosed) {
				logger.InfoContext(ctx, "Worker stopping")

				return
			}

			logger.ErrorContext(ctx, "Failed to dequeue job", "error", err)

			continue
		}

		p.handle(ctx, logger, job)
	}
}

func (p *WorkerPool) handle(ctx context.Context, logger *slog.Logger, job *models.Job) {
	job.Attempt++

	logger = logger.With(
		"execution_id", job.ExecutionID,
		"workflow_id", job.WorkflowID,
		"attempt", job.Attempt,
	)
	logger.InfoContext(ctx, "Processing job")

	err := p.processor.ProcessJob(ctx, p.id, job)
	if err == nil {
		return
	}

	if job.Attempt >= p.maxAttempts {
		logger.ErrorContext(ctx, "Job exhausted retry budget", "error", err)

		deadErr := p.queue.DeadLetter(ctx, job, err.Error())
		if deadErr != nil {
			logger.ErrorContext(ctx, "Failed to dead-letter job", "error", deadErr)
		}

		p.processor.JobExhausted(ctx, job, err)

		return
	}

	delay := Backoff(job.Attempt)
	logger.WarnContext(ctx, "Job failed, scheduling retry", "error", err, "retry_in", delay)

	retryErr := p.queue.EnqueueDelayed(ctx, job, delay)
	if retryErr != nil {
		logger.ErrorContext(ctx, "Failed to schedule retry, dead-lettering", "error", retryErr)

		deadErr := p.queue.DeadLetter(ctx, job, err.Error())
		if deadErr != nil {
			logger.ErrorContext(ctx, "Failed to dead-letter job", "error", deadErr)
		}

		p.processor.JobExhausted(ctx, job, err)
	}
}
