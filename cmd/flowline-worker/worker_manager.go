package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/flowlinehq/flowline/pkg/dispatcher"
	"github.com/flowlinehq/flowline/pkg/eventbus"
	"github.com/flowlinehq/flowline/pkg/locks"
	"github.com/flowlinehq/flowline/pkg/models"
	"github.com/flowlinehq/flowline/pkg/otelhelper"
	"github.com/flowlinehq/flowline/pkg/persistence"
	"github.com/flowlinehq/flowline/pkg/queue"
	"github.com/flowlinehq/flowline/pkg/registry"
	"github.com/flowlinehq/flowline/pkg/statestore"
	"github.com/flowlinehq/flowline/pkg/timeout"
	"github.com/flowlinehq/flowline/pkg/triggers/schedule"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type WorkerManagerConfig struct {
	ID          string
	Persistence persistence.Persistence
	EventBus    eventbus.EventBus
	Store       statestore.Store
	JobQueue    queue.JobQueue
	LockManager locks.Manager
	Registry    *registry.Registry
	Concurrency int
	Schedules   bool
	Logger      *slog.Logger
}

// WorkerManager wires the dispatcher, the job queue worker pool and the cron
// schedule source into one long-running process.
type WorkerManager struct {
	id         string
	logger     *slog.Logger
	config     WorkerManagerConfig
	dispatcher *dispatcher.Dispatcher
	source     *schedule.Source
}

func NewWorkerManager(config WorkerManagerConfig) *WorkerManager {
	return &WorkerManager{
		id:     config.ID,
		logger: config.Logger.With("module", "worker_manager"),
		config: config,
	}
}

func (w *WorkerManager) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var startSpan trace.Span

	tracer, err := otelhelper.NewTracer(ctx, "flowline-worker")
	if err != nil {
		w.logger.WarnContext(ctx, "Tracing disabled, collector unreachable", "error", err)
	} else {
		_, startSpan = otelhelper.StartSpan(ctx, tracer, "worker.start",
			attribute.String(otelhelper.WorkerIDKey, w.id))
	}

	timeouts := timeout.NewManager(w.config.EventBus, w.config.Logger)
	interventions := timeout.NewInterventionManager(w.config.Logger)

	w.dispatcher = dispatcher.NewDispatcher(
		w.id,
		w.config.Persistence,
		w.config.Store,
		w.config.JobQueue,
		w.config.LockManager,
		timeouts,
		interventions,
		w.config.Registry,
		w.config.EventBus,
		w.config.Logger,
	)

	var pool *queue.WorkerPool
	if w.config.JobQueue != nil {
		pool = queue.NewWorkerPool(w.id, w.config.JobQueue, w.dispatcher, w.config.Concurrency, w.config.Logger)
		pool.Start(ctx)
	} else {
		w.logger.InfoContext(ctx, "No job queue configured, executions run in direct mode only")
	}

	if w.config.Schedules {
		w.source = schedule.NewSource(w.config.Persistence, w.config.Logger)

		err := w.source.Start(ctx, w.onScheduleFired)
		if err != nil {
			if startSpan != nil {
				otelhelper.RecordError(startSpan, err)
				startSpan.End()
			}

			return err
		}
	}

	if startSpan != nil {
		startSpan.End()
	}

	w.logger.InfoContext(ctx, "Worker started successfully")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		w.logger.InfoContext(ctx, "Shutting down worker...", "signal", sig.String())
	case <-ctx.Done():
		w.logger.InfoContext(ctx, "Shutting down worker...", "reason", ctx.Err())
	}

	return w.shutdown(cancel, pool)
}

func (w *WorkerManager) shutdown(cancel context.CancelFunc, pool *queue.WorkerPool) error {
	stopCtx, stopCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer stopCancel()

	if w.source != nil {
		err := w.source.Stop(stopCtx)
		if err != nil {
			w.logger.ErrorContext(stopCtx, "Failed to stop schedule source", "error", err)
		}
	}

	cancel()

	if pool != nil {
		if err := w.config.JobQueue.Close(); err != nil {
			w.logger.ErrorContext(stopCtx, "Failed to close job queue", "error", err)
		}

		pool.Wait()
	}

	w.logger.InfoContext(stopCtx, "Worker stopped")

	return nil
}

// onScheduleFired starts a queued execution for a workflow whose cron trigger
// ticked. Queued mode keeps cron callbacks cheap: the dispatcher only enqueues.
func (w *WorkerManager) onScheduleFired(ctx context.Context, workflowID, triggerNodeID string, data map[string]any) error {
	executionID, err := w.dispatcher.Run(ctx, workflowID, "", triggerNodeID, data, models.ExecutionOptions{
		UseQueue: w.config.JobQueue != nil,
	})
	if err != nil {
		return err
	}

	w.logger.InfoContext(ctx, "Schedule started execution",
		"workflow_id", workflowID, "execution_id", executionID)

	return nil
}
