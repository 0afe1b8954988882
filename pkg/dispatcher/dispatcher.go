// Package dispatcher routes triggered executions between direct and queued
// execution modes and owns the execution lifecycle around the graph walk:
// locks, timeout tracking, manual intervention gates, and finalization.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/flowlinehq/flowline/pkg/eventbus"
	"github.com/flowlinehq/flowline/pkg/events"
	"github.com/flowlinehq/flowline/pkg/flow"
	"github.com/flowlinehq/flowline/pkg/locks"
	"github.com/flowlinehq/flowline/pkg/models"
	"github.com/flowlinehq/flowline/pkg/persistence"
	"github.com/flowlinehq/flowline/pkg/queue"
	"github.com/flowlinehq/flowline/pkg/registry"
	"github.com/flowlinehq/flowline/pkg/statestore"
	"github.com/flowlinehq/flowline/pkg/timeout"
)

var (
	// ErrResourcesBusy is returned when an execution cannot take the node
	// locks it needs. Nothing is held on return.
	ErrResourcesBusy = errors.New("workflow nodes are locked by another execution")

	// ErrExecutionFinished is returned by Cancel for already terminal executions.
	ErrExecutionFinished = errors.New("execution already finished")
)

// Dispatcher is the execution mode router. Run returns the execution id as
// soon as the execution is admitted; the graph walk itself happens either on
// a goroutine (direct mode) or on whichever worker dequeues the job (queued
// mode).
type Dispatcher struct {
	id            string
	logger        *slog.Logger
	persistence   persistence.Persistence
	store         statestore.Store
	jobQueue      queue.JobQueue // nil disables queued mode
	lockManager   locks.Manager
	timeouts      *timeout.Manager
	interventions *timeout.InterventionManager
	registry      *registry.Registry
	publisher     eventbus.EventPublisher
	executor      *flow.Executor
}

func NewDispatcher(
	id string,
	persist persistence.Persistence,
	store statestore.Store,
	jobQueue queue.JobQueue,
	lockManager locks.Manager,
	timeouts *timeout.Manager,
	interventions *timeout.InterventionManager,
	reg *registry.Registry,
	publisher eventbus.EventPublisher,
	logger *slog.Logger,
) *Dispatcher {
	d := &Dispatcher{
		id:            id,
		logger:        logger.With("module", "dispatcher", "worker_id", id),
		persistence:   persist,
		store:         store,
		jobQueue:      jobQueue,
		lockManager:   lockManager,
		timeouts:      timeouts,
		interventions: interventions,
		registry:      reg,
		publisher:     publisher,
	}

	d.executor = flow.NewExecutor(reg, publisher, store, logger).
		WithActivityReporter(timeouts).
		WithWorkerID(id)

	timeouts.SetTimeoutHandler(d.onTimeout)
	interventions.SetResolutionHandler(d.onInterventionResolved)

	return d
}

// Run admits a new execution for a published workflow and returns its id
// immediately. Queued mode hands the execution to the worker pool; direct
// mode runs it on a goroutine detached from the caller's context. When the
// queue is configured but unreachable, the execution degrades to direct mode.
func (d *Dispatcher) Run(ctx context.Context, workflowID, userID, triggerNodeID string, triggerData map[string]any, options models.ExecutionOptions) (string, error) {
	workflow, err := d.persistence.WorkflowByID(ctx, workflowID)
	if err != nil {
		return "", err
	}

	if workflow.Status != models.WorkflowStatusPublished {
		return "", &persistence.WorkflowError{Op: "Run", WorkflowID: workflowID, Err: persistence.ErrWorkflowNotPublished}
	}

	graph := models.NewGraph(workflow)
	if _, ok := graph.Node(triggerNodeID); !ok {
		return "", fmt.Errorf("trigger node %s not found in workflow %s", triggerNodeID, workflowID)
	}

	executionID := "exec-" + uuid.New().String()[:8]
	ectx := models.NewExecutionContext(executionID, workflowID, userID, triggerNodeID, triggerData, options)
	ectx.Variables = workflow.Variables

	logger := d.logger.With("execution_id", executionID, "workflow_id", workflowID)

	acquired, err := d.lockManager.AcquireLocks(ctx, ectx, graph)
	if err != nil {
		return "", fmt.Errorf("failed to acquire node locks: %w", err)
	}

	if !acquired {
		return "", ErrResourcesBusy
	}

	err = d.store.SaveContext(ctx, ectx)
	if err != nil {
		_ = d.lockManager.ReleaseLocks(ctx, executionID)

		return "", fmt.Errorf("failed to persist execution context: %w", err)
	}

	if options.UseQueue && d.queueHealthy(ctx, logger) {
		err = d.jobQueue.Enqueue(ctx, &models.Job{
			ExecutionID:   executionID,
			WorkflowID:    workflowID,
			TriggerNodeID: triggerNodeID,
			Options:       ectx.Options,
			EnqueuedAt:    time.Now().UTC(),
		})
		if err == nil {
			logger.InfoContext(ctx, "Execution enqueued", "mode", "queued")

			return executionID, nil
		}

		logger.ErrorContext(ctx, "Failed to enqueue execution, degrading to direct mode", "error", err)
	}

	logger.InfoContext(ctx, "Execution starting", "mode", "direct")

	runCtx := context.WithoutCancel(ctx)

	d.timeouts.Track(runCtx, executionID, workflowID, ectx.Options.TimeoutMs)

	go d.executeGraph(runCtx, graph, ectx)

	return executionID, nil
}

// queueHealthy probes the queue backend. Degradation to direct mode is
// logged, never silent.
func (d *Dispatcher) queueHealthy(ctx context.Context, logger *slog.Logger) bool {
	if d.jobQueue == nil {
		logger.WarnContext(ctx, "Queued mode requested but no queue configured, degrading to direct mode")

		return false
	}

	err := d.jobQueue.Ping(ctx)
	if err != nil {
		logger.WarnContext(ctx, "Queue backend unreachable, degrading to direct mode", "error", err)

		return false
	}

	return true
}

// ProcessJob runs one dequeued job to its next stopping point. It is the
// queue.Processor implementation: redelivered jobs for finished or paused
// executions are acknowledged without work.
func (d *Dispatcher) ProcessJob(ctx context.Context, workerID string, job *models.Job) error {
	logger := d.logger.With("execution_id", job.ExecutionID, "workflow_id", job.WorkflowID)

	ectx, err := d.store.LoadContext(ctx, job.ExecutionID)
	if errors.Is(err, statestore.ErrContextNotFound) {
		logger.WarnContext(ctx, "Dropping job for unknown execution")

		return nil
	}

	if err != nil {
		return fmt.Errorf("failed to load execution context: %w", err)
	}

	if ectx.Status.Terminal() {
		logger.InfoContext(ctx, "Dropping job for finished execution", "status", ectx.Status)

		return nil
	}

	if ectx.Status == models.ExecutionStatusPaused && ectx.PendingIntervention != nil {
		logger.InfoContext(ctx, "Dropping job for paused execution",
			"intervention_id", ectx.PendingIntervention.ID)

		return nil
	}

	workflow, err := d.persistence.WorkflowByID(ctx, job.WorkflowID)
	if err != nil {
		return fmt.Errorf("failed to load workflow: %w", err)
	}

	graph := models.NewGraph(workflow)

	// Re-acquisition by the same execution succeeds, so redelivery after a
	// crash does not deadlock on its own locks.
	acquired, err := d.lockManager.AcquireLocks(ctx, ectx, graph)
	if err != nil {
		return fmt.Errorf("failed to acquire node locks: %w", err)
	}

	if !acquired {
		return ErrResourcesBusy
	}

	logger.InfoContext(ctx, "Worker picked up execution", "pool_worker_id", workerID)

	d.timeouts.Track(ctx, ectx.ID, ectx.WorkflowID, ectx.Options.TimeoutMs)
	d.executeGraph(ctx, graph, ectx)

	return nil
}

// JobExhausted finalizes an execution whose job burned through its retry
// budget.
func (d *Dispatcher) JobExhausted(ctx context.Context, job *models.Job, lastErr error) {
	ectx, err := d.store.LoadContext(ctx, job.ExecutionID)
	if err != nil {
		d.logger.ErrorContext(ctx, "Failed to load context of exhausted job",
			"execution_id", job.ExecutionID, "error", err)

		ectx = models.NewExecutionContext(job.ExecutionID, job.WorkflowID, "", job.TriggerNodeID, nil, job.Options)
	}

	ectx.Error = lastErr.Error()
	d.finalize(ctx, ectx, models.ExecutionStatusError, "", lastErr.Error())
}

// executeGraph walks the graph and settles the outcome: finalize on terminal
// status, open an intervention gate on pause.
func (d *Dispatcher) executeGraph(ctx context.Context, graph *models.Graph, ectx *models.ExecutionContext) {
	result, err := d.executor.Run(ctx, graph, ectx)
	if err != nil {
		d.finalize(ctx, ectx, models.ExecutionStatusError, "", err.Error())

		return
	}

	if result.Status == models.ExecutionStatusPaused {
		d.pause(ctx, ectx, result)

		return
	}

	errMsg := ""
	if result.Err != nil {
		errMsg = result.Err.Error()
	}

	d.finalize(ctx, ectx, result.Status, result.FailedNodeID, errMsg)
}

// pause opens the manual intervention gate for the waiting node. The timeout
// budget keeps running while the execution waits; callers extend it through
// the control surface when human latency is expected.
func (d *Dispatcher) pause(ctx context.Context, ectx *models.ExecutionContext, result *flow.Result) {
	request := d.interventions.Create(ctx, models.ManualInterventionRequest{
		ExecutionID:  ectx.ID,
		WorkflowID:   ectx.WorkflowID,
		NodeID:       result.WaitingNodeID,
		Type:         result.Intervention.Type,
		Prompt:       result.Intervention.Prompt,
		Choices:      result.Intervention.Choices,
		RequiredRole: result.Intervention.RequiredRole,
	}, result.Intervention.TimeoutMs)

	ectx.PendingIntervention = request
	ectx.Status = models.ExecutionStatusPaused

	err := d.store.SaveContext(ctx, ectx)
	if err != nil {
		d.logger.ErrorContext(ctx, "Failed to persist paused execution",
			"execution_id", ectx.ID, "error", err)
	}

	event := events.ExecutionPaused{
		BaseEvent:      events.NewBaseEvent(events.ExecutionPausedEvent, ectx.ID, ectx.WorkflowID),
		NodeID:         result.WaitingNodeID,
		InterventionID: request.ID,
		Prompt:         request.Prompt,
	}
	event.WorkerID = d.id

	d.publish(ctx, ectx.ID, event)
	d.logger.InfoContext(ctx, "Execution paused for manual intervention",
		"execution_id", ectx.ID, "node_id", result.WaitingNodeID, "intervention_id", request.ID)
}

// Cancel requests cooperative cancellation. A running execution observes the
// flag at its next scheduling boundary; a paused one is finalized here since
// no executor is watching it.
func (d *Dispatcher) Cancel(ctx context.Context, executionID, reason, actor string) error {
	ectx, err := d.store.LoadContext(ctx, executionID)
	if err != nil {
		return err
	}

	if ectx.Status.Terminal() {
		return ErrExecutionFinished
	}

	err = d.store.RequestCancel(ctx, executionID)
	if err != nil {
		return fmt.Errorf("failed to flag cancellation: %w", err)
	}

	d.logger.InfoContext(ctx, "Cancellation requested",
		"execution_id", executionID, "reason", reason, "actor", actor)

	if ectx.Status == models.ExecutionStatusPaused {
		d.interventions.CancelForExecution(executionID)
		ectx.Cancelled = true
		d.finalize(ctx, ectx, models.ExecutionStatusCancelled, "", "")
	}

	return nil
}

// finalize settles a terminal status exactly once: audit record, lock
// release, timer cleanup, state retention, terminal event.
func (d *Dispatcher) finalize(ctx context.Context, ectx *models.ExecutionContext, status models.ExecutionStatus, failedNodeID, errMsg string) {
	// A cancel triggered by the timeout manager surfaces as TIMEOUT, not
	// CANCELLED.
	if status == models.ExecutionStatusCancelled {
		if record, tracked := d.timeouts.Status(ectx.ID); tracked && record.Status == models.TimeoutStatusTimeout {
			status = models.ExecutionStatusTimeout
		}
	}

	now := time.Now().UTC()
	ectx.Status = status
	ectx.Error = errMsg

	logger := d.logger.With("execution_id", ectx.ID, "workflow_id", ectx.WorkflowID)

	err := d.persistence.SaveExecution(ctx, &models.ExecutionRecord{
		ID:            ectx.ID,
		WorkflowID:    ectx.WorkflowID,
		UserID:        ectx.UserID,
		Status:        status,
		TriggerNodeID: ectx.TriggerNodeID,
		StartedAt:     ectx.StartedAt,
		FinishedAt:    &now,
		Error:         errMsg,
		NodesExecuted: len(ectx.Path),
	})
	if err != nil {
		logger.ErrorContext(ctx, "Failed to save execution record", "error", err)
	}

	err = d.lockManager.ReleaseLocks(ctx, ectx.ID)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to release node locks", "error", err)
	}

	d.timeouts.Clear(ectx.ID)
	d.interventions.CancelForExecution(ectx.ID)

	err = d.store.SaveContext(ctx, ectx)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to persist final execution context", "error", err)
	}

	err = d.store.ExpireContext(ctx, ectx.ID, statestore.CompletedTTL)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to shorten state retention", "error", err)
	}

	d.publishTerminalEvent(ctx, ectx, status, failedNodeID, errMsg, now)
	logger.InfoContext(ctx, "Execution finalized", "status", status, "nodes_executed", len(ectx.Path))
}

func (d *Dispatcher) publishTerminalEvent(ctx context.Context, ectx *models.ExecutionContext, status models.ExecutionStatus, failedNodeID, errMsg string, finishedAt time.Time) {
	durationMs := finishedAt.Sub(ectx.StartedAt).Milliseconds()

	var event eventbus.Event

	switch status {
	case models.ExecutionStatusSuccess:
		completed := events.ExecutionCompleted{
			BaseEvent:     events.NewBaseEvent(events.ExecutionCompletedEvent, ectx.ID, ectx.WorkflowID),
			Status:        string(status),
			DurationMs:    durationMs,
			NodesExecuted: len(ectx.Path),
		}
		completed.WorkerID = d.id
		event = completed
	case models.ExecutionStatusCancelled:
		cancelled := events.ExecutionCancelled{
			BaseEvent:     events.NewBaseEvent(events.ExecutionCancelledEvent, ectx.ID, ectx.WorkflowID),
			DurationMs:    durationMs,
			NodesExecuted: len(ectx.Path),
		}
		cancelled.WorkerID = d.id
		event = cancelled
	default:
		failed := events.ExecutionFailed{
			BaseEvent:     events.NewBaseEvent(events.ExecutionFailedEvent, ectx.ID, ectx.WorkflowID),
			Status:        string(status),
			Error:         errMsg,
			FailedNodeID:  failedNodeID,
			DurationMs:    durationMs,
			NodesExecuted: len(ectx.Path),
		}
		failed.WorkerID = d.id
		event = failed
	}

	d.publish(ctx, ectx.ID, event)
}

// onTimeout fires from the timeout manager's timer goroutine when the budget
// is exhausted. Running executions observe the cancel flag; paused ones have
// no executor watching and are finalized here.
func (d *Dispatcher) onTimeout(executionID string) {
	ctx := context.Background()

	err := d.store.RequestCancel(ctx, executionID)
	if err != nil {
		d.logger.Error("Failed to flag timeout cancellation",
			"execution_id", executionID, "error", err)
	}

	ectx, err := d.store.LoadContext(ctx, executionID)
	if err != nil {
		return
	}

	if ectx.Status == models.ExecutionStatusPaused {
		d.interventions.CancelForExecution(executionID)
		d.finalize(ctx, ectx, models.ExecutionStatusTimeout, "", "execution timeout budget exhausted")
	}
}

// onInterventionResolved fires exactly once per gate. Approval completes the
// waiting node on its "approved" port and resumes the walk; denial and gate
// expiry cancel the execution.
func (d *Dispatcher) onInterventionResolved(ctx context.Context, request *models.ManualInterventionRequest, response *models.InterventionResponse) {
	logger := d.logger.With("execution_id", request.ExecutionID, "intervention_id", request.ID)

	ectx, err := d.store.LoadContext(ctx, request.ExecutionID)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to load context for resolved intervention", "error", err)

		return
	}

	if ectx.Status != models.ExecutionStatusPaused {
		logger.WarnContext(ctx, "Ignoring resolution for non-paused execution", "status", ectx.Status)

		return
	}

	switch request.Status {
	case models.InterventionStatusApproved:
		d.resume(ctx, ectx, request, response, "approved")
	case models.InterventionStatusDenied:
		logger.InfoContext(ctx, "Intervention denied, cancelling execution", "actor", response.Actor)
		ectx.Cancelled = true
		d.finalize(ctx, ectx, models.ExecutionStatusCancelled, "", "manual intervention denied")
	case models.InterventionStatusTimeout:
		logger.InfoContext(ctx, "Intervention expired, cancelling execution")
		ectx.Cancelled = true
		d.finalize(ctx, ectx, models.ExecutionStatusCancelled, "", "manual intervention timed out")
	default:
		logger.ErrorContext(ctx, "Unexpected intervention status", "status", request.Status)
	}
}

// resume completes the gate node on the resolved port and hands the execution
// back to its execution mode.
func (d *Dispatcher) resume(ctx context.Context, ectx *models.ExecutionContext, request *models.ManualInterventionRequest, response *models.InterventionResponse, port string) {
	logger := d.logger.With("execution_id", ectx.ID, "node_id", request.NodeID)

	now := time.Now().UTC()
	pausedFor := now.Sub(request.CreatedAt).Milliseconds()

	data := map[string]any{
		"approved": port == "approved",
		"actor":    response.Actor,
	}
	if response.Choice != "" {
		data["choice"] = response.Choice
	}

	if len(response.Input) > 0 {
		data["input"] = response.Input
	}

	outputs := map[string]models.NodeResult{
		port: {
			NodeID:    request.NodeID,
			Data:      data,
			Status:    string(models.NodeStatusSuccess),
			Timestamp: now,
		},
	}

	if state, ok := ectx.CurrentState(request.NodeID); ok {
		state.Status = models.NodeStatusSuccess
		state.Output = outputs
		state.FinishedAt = &now
	}

	ectx.RecordOutput(request.NodeID, outputs)
	ectx.Paused = false
	ectx.PendingIntervention = nil
	ectx.Status = models.ExecutionStatusRunning

	err := d.store.SaveContext(ctx, ectx)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to persist resumed execution", "error", err)

		return
	}

	err = d.store.SaveNodeOutput(ctx, ectx.ID, request.NodeID, outputs)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to persist gate node output", "error", err)
	}

	event := events.ExecutionResumed{
		BaseEvent:       events.NewBaseEvent(events.ExecutionResumedEvent, ectx.ID, ectx.WorkflowID),
		NodeID:          request.NodeID,
		InterventionID:  request.ID,
		ResumedBy:       response.Actor,
		PauseDurationMs: pausedFor,
	}
	event.WorkerID = d.id

	d.publish(ctx, ectx.ID, event)
	logger.InfoContext(ctx, "Execution resumed", "port", port, "resumed_by", response.Actor)

	if ectx.Options.UseQueue && d.jobQueue != nil {
		err = d.jobQueue.Enqueue(ctx, &models.Job{
			ExecutionID:   ectx.ID,
			WorkflowID:    ectx.WorkflowID,
			TriggerNodeID: ectx.TriggerNodeID,
			Options:       ectx.Options,
			EnqueuedAt:    now,
		})
		if err == nil {
			return
		}

		logger.ErrorContext(ctx, "Failed to re-enqueue resumed execution, continuing in direct mode", "error", err)
	}

	workflow, err := d.persistence.WorkflowByID(ctx, ectx.WorkflowID)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to load workflow for resumed execution", "error", err)
		d.finalize(ctx, ectx, models.ExecutionStatusError, "", err.Error())

		return
	}

	go d.executeGraph(context.WithoutCancel(ctx), models.NewGraph(workflow), ectx)
}

func (d *Dispatcher) publish(ctx context.Context, key string, event eventbus.Event) {
	err := d.publisher.Publish(ctx, key, event)
	if err != nil {
		d.logger.ErrorContext(ctx, "Failed to publish execution event",
			"event_type", event.GetType(), "error", err)
	}
}
