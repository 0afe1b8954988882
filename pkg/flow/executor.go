// Package flow implements the graph-walking executor that drives one
// execution from its trigger node to a terminal state.
package flow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/flowlinehq/flowline/pkg/eventbus"
	"github.com/flowlinehq/flowline/pkg/events"
	"github.com/flowlinehq/flowline/pkg/models"
	"github.com/flowlinehq/flowline/pkg/protocol"
	"github.com/flowlinehq/flowline/pkg/registry"
	"github.com/flowlinehq/flowline/pkg/statestore"
)

// ErrLoopLimitExceeded fails a loop-construct node that re-entered more times
// than the per-execution iteration cap allows.
var ErrLoopLimitExceeded = errors.New("loop iteration limit exceeded")

// ActivityReporter receives a liveness signal after every node completion so
// that long-but-healthy executions do not trip timeout warnings.
type ActivityReporter interface {
	UpdateActivity(executionID string)
}

// Result describes how a run ended. When Status is paused, Intervention holds
// the gate the waiting node asked for; the caller registers it and resumes
// the execution once it resolves.
type Result struct {
	Status        models.ExecutionStatus
	Intervention  *protocol.InterventionNeeded
	WaitingNodeID string
	FailedNodeID  string
	Err           error
}

// Executor walks a graph for one execution at a time. A single scheduler
// goroutine owns all context mutation; node invocations run concurrently up
// to the per-execution cap and report back over a channel.
type Executor struct {
	registry  *registry.Registry
	publisher eventbus.EventPublisher
	store     statestore.Store // nil in direct mode: context stays in memory only
	activity  ActivityReporter // optional
	logger    *slog.Logger
	workerID  string
}

func NewExecutor(reg *registry.Registry, publisher eventbus.EventPublisher, store statestore.Store, logger *slog.Logger) *Executor {
	return &Executor{
		registry:  reg,
		publisher: publisher,
		store:     store,
		logger:    logger.With("module", "flow_executor"),
	}
}

// WithActivityReporter wires the timeout manager's liveness signal.
func (e *Executor) WithActivityReporter(reporter ActivityReporter) *Executor {
	e.activity = reporter

	return e
}

// WithWorkerID stamps emitted events with the processing worker.
func (e *Executor) WithWorkerID(workerID string) *Executor {
	e.workerID = workerID

	return e
}

type nodeOutcome struct {
	nodeID  string
	state   *models.NodeExecutionState
	outputs map[string]models.NodeResult
	err     error
}

// run holds the per-run scheduling state so Executor itself stays reusable
// across executions.
type run struct {
	graph   *models.Graph
	ectx    *models.ExecutionContext
	nodes   map[string]protocol.Node
	ready   []string
	results chan nodeOutcome
	running int

	failed       bool
	failedNodeID string
	failErr      error

	intervention  *protocol.InterventionNeeded
	waitingNodeID string
}

// Run walks the graph starting at the context's trigger node until the ready
// set is empty and no node is running, or until failure, cancellation, pause
// or context expiry stops scheduling. Nodes already marked success in a
// rehydrated context are never re-executed; scheduling resumes from the ready
// set computed against the persisted node states.
func (e *Executor) Run(ctx context.Context, graph *models.Graph, ectx *models.ExecutionContext) (*Result, error) {
	logger := e.logger.With("execution_id", ectx.ID, "workflow_id", ectx.WorkflowID)
	logger.InfoContext(ctx, "Starting graph walk", "trigger_node_id", ectx.TriggerNodeID)

	r := &run{
		graph:   graph,
		ectx:    ectx,
		nodes:   make(map[string]protocol.Node),
		results: make(chan nodeOutcome),
	}

	ectx.Paused = false
	ectx.PendingIntervention = nil
	ectx.Status = models.ExecutionStatusRunning

	err := e.seedReadySet(ctx, r)
	if err != nil {
		return nil, err
	}

	for {
		e.observeCancellation(ctx, r)

		for e.mayScheduleMore(r) {
			nodeID := r.ready[0]
			r.ready = r.ready[1:]

			e.startNode(ctx, r, nodeID)
		}

		if r.running == 0 {
			break
		}

		outcome := <-r.results
		r.running--

		e.handleOutcome(ctx, r, outcome)
	}

	result := e.terminalResult(r)
	ectx.Status = result.Status

	if result.Err != nil {
		ectx.Error = result.Err.Error()
	}

	e.checkpoint(ctx, r)
	logger.InfoContext(ctx, "Graph walk finished", "status", result.Status, "nodes_executed", len(ectx.Path))

	return result, nil
}

// seedReadySet computes the initial ready set. Fresh contexts seed the
// trigger node; rehydrated ones re-arm unfinished states and pick up nodes
// whose inputs were already satisfied before the interruption.
func (e *Executor) seedReadySet(ctx context.Context, r *run) error {
	if len(r.ectx.NodeStates) == 0 {
		if _, ok := r.graph.Node(r.ectx.TriggerNodeID); !ok {
			return fmt.Errorf("trigger node %s not found in workflow %s", r.ectx.TriggerNodeID, r.ectx.WorkflowID)
		}

		r.ectx.PushState(r.ectx.TriggerNodeID)
		r.ready = append(r.ready, r.ectx.TriggerNodeID)

		return nil
	}

	for nodeID := range r.ectx.NodeStates {
		state, _ := r.ectx.CurrentState(nodeID)
		if state.Terminal() {
			continue
		}

		// The node was scheduled but never finished (crash or pause).
		// Re-arm the same instance; the attempt counter makes the retry
		// visible to observers.
		state.Status = models.NodeStatusPending
		state.Attempt++
		state.StartedAt = nil
		r.ready = append(r.ready, nodeID)
	}

	// Nodes whose inputs were satisfied but that were never scheduled
	// before the interruption.
	for _, nodeID := range e.satisfiedUnscheduled(ctx, r) {
		r.ectx.PushState(nodeID)
		r.ready = append(r.ready, nodeID)
	}

	return nil
}

func (e *Executor) satisfiedUnscheduled(ctx context.Context, r *run) []string {
	var nodeIDs []string

	for sourceID, outputs := range r.ectx.NodeOutputs {
		for portName := range outputs {
			for _, edge := range r.graph.OutgoingFrom(sourceID, portName) {
				if len(r.ectx.NodeStates[edge.TargetNode]) > 0 {
					continue
				}

				if e.inputsSatisfied(ctx, r, edge.TargetNode) {
					nodeIDs = appendUnique(nodeIDs, edge.TargetNode)
				}
			}
		}
	}

	return nodeIDs
}

func appendUnique(list []string, value string) []string {
	for _, existing := range list {
		if existing == value {
			return list
		}
	}

	return append(list, value)
}

// observeCancellation checks the cooperative cancellation signals at the
// scheduling boundary: the run context (direct mode) and the shared cancel
// flag in the state store (queued mode, cancel may come from another process).
func (e *Executor) observeCancellation(ctx context.Context, r *run) {
	if r.ectx.Cancelled {
		return
	}

	if ctx.Err() != nil {
		r.ectx.Cancelled = true

		return
	}

	if e.store != nil {
		requested, err := e.store.IsCancelRequested(ctx, r.ectx.ID)
		if err == nil && requested {
			r.ectx.Cancelled = true
		}
	}
}

func (e *Executor) mayScheduleMore(r *run) bool {
	if r.ectx.Cancelled || r.ectx.Paused || r.failed {
		// Nodes already running are allowed to finish; nothing new starts.
		return false
	}

	return len(r.ready) > 0 && r.running < r.ectx.Options.MaxConcurrency
}

// startNode transitions the node to running and launches its logic.
func (e *Executor) startNode(ctx context.Context, r *run, nodeID string) {
	state, ok := r.ectx.CurrentState(nodeID)
	if !ok || state.Terminal() {
		return
	}

	node, err := e.nodeInstance(ctx, r, nodeID)
	if err != nil {
		now := time.Now().UTC()
		state.Status = models.NodeStatusFailed
		state.Error = err.Error()
		state.FinishedAt = &now
		e.emitNodeFailed(ctx, r, state, "", err)
		e.escalateFailure(r, nodeID, err)

		return
	}

	inputs := r.collectInputs(nodeID)
	now := time.Now().UTC()
	state.Status = models.NodeStatusRunning
	state.StartedAt = &now
	state.Input = inputs
	r.ectx.Path = append(r.ectx.Path, nodeID)

	e.emitNodeStarted(ctx, r, state, node.Type())

	snapshot := r.ectx.Clone()
	r.running++

	go func() {
		outputs, execErr := node.Execute(ctx, snapshot, inputs)
		r.results <- nodeOutcome{nodeID: nodeID, state: state, outputs: outputs, err: execErr}
	}()
}

func (e *Executor) handleOutcome(ctx context.Context, r *run, outcome nodeOutcome) {
	now := time.Now().UTC()
	state := outcome.state
	state.FinishedAt = &now

	nodeType := ""
	if node, ok := r.nodes[outcome.nodeID]; ok {
		nodeType = node.Type()
	}

	if outcome.err != nil {
		if needed, ok := protocol.AsInterventionNeeded(outcome.err); ok {
			// The node stays running; the intervention response completes it.
			state.FinishedAt = nil
			state.Status = models.NodeStatusRunning
			r.ectx.Paused = true
			r.intervention = needed
			r.waitingNodeID = outcome.nodeID
			e.checkpoint(ctx, r)

			return
		}

		state.Status = models.NodeStatusFailed
		state.Error = outcome.err.Error()
		e.emitNodeFailed(ctx, r, state, nodeType, outcome.err)
		e.escalateFailure(r, outcome.nodeID, outcome.err)
		e.checkpoint(ctx, r)

		return
	}

	state.Status = models.NodeStatusSuccess
	state.Output = outcome.outputs
	r.ectx.RecordOutput(outcome.nodeID, outcome.outputs)

	e.emitNodeCompleted(ctx, r, state, nodeType, outcome.outputs)
	e.emitProgress(ctx, r)
	e.checkpointNode(ctx, r, outcome.nodeID, outcome.outputs)
	e.checkpoint(ctx, r)

	if e.activity != nil {
		e.activity.UpdateActivity(r.ectx.ID)
	}

	e.observeCancellation(ctx, r)

	if r.ectx.Cancelled || r.ectx.Paused || r.failed {
		return
	}

	// Activate targets of edges leaving the populated ports only. Edges
	// leaving unselected branch ports are never activated, so their targets
	// are never scheduled and never block completion.
	for portName := range outcome.outputs {
		for _, edge := range r.graph.OutgoingFrom(outcome.nodeID, portName) {
			e.scheduleIfReady(ctx, r, edge.TargetNode)
		}
	}
}

// scheduleIfReady pushes a target node onto the ready set once its input
// requirements are met. Non-reentrant nodes are never revisited within one
// execution; loop constructs re-enter with a fresh state per iteration up to
// the configured cap.
func (e *Executor) scheduleIfReady(ctx context.Context, r *run, nodeID string) {
	workflowNode, ok := r.graph.Node(nodeID)
	if !ok {
		return
	}

	if !workflowNode.Enabled {
		// A disabled node absorbs its activations; downstream edges stay
		// inactive.
		if _, has := r.ectx.CurrentState(nodeID); !has {
			now := time.Now().UTC()
			state := r.ectx.PushState(nodeID)
			state.Status = models.NodeStatusSkipped
			state.FinishedAt = &now
		}

		return
	}

	node, err := e.nodeInstance(ctx, r, nodeID)
	if err != nil {
		now := time.Now().UTC()
		state := r.ectx.PushState(nodeID)
		state.Status = models.NodeStatusFailed
		state.Error = err.Error()
		state.FinishedAt = &now
		e.emitNodeFailed(ctx, r, state, "", err)
		e.escalateFailure(r, nodeID, err)

		return
	}

	if current, has := r.ectx.CurrentState(nodeID); has {
		if !current.Terminal() {
			// Already scheduled or running; fan-in activations coalesce.
			return
		}

		reentrant, isLoop := node.(protocol.Reentrant)
		if !isLoop || !reentrant.Reentrant() {
			return
		}

		if r.ectx.IterationCount(nodeID) >= r.ectx.Options.MaxLoopIterations {
			state := r.ectx.PushState(nodeID)
			now := time.Now().UTC()
			state.Status = models.NodeStatusFailed
			state.Error = ErrLoopLimitExceeded.Error()
			state.FinishedAt = &now
			e.emitNodeFailed(ctx, r, state, node.Type(), ErrLoopLimitExceeded)
			e.escalateFailure(r, nodeID, ErrLoopLimitExceeded)

			return
		}
	}

	if !e.inputsSatisfied(ctx, r, nodeID) {
		return
	}

	r.ectx.PushState(nodeID)
	r.ready = append(r.ready, nodeID)
}

// inputsSatisfied checks the node's wait mode against the outputs produced so
// far. A port counts as satisfied when at least one incoming edge's source
// has produced output on the edge's source port. The node instance is
// resolved here so a rehydrated context, where no instance exists yet, still
// sees the node's real coordination requirements rather than the defaults.
func (e *Executor) inputsSatisfied(ctx context.Context, r *run, nodeID string) bool {
	requirements := models.DefaultInputRequirements()

	node, err := e.nodeInstance(ctx, r, nodeID)
	if err == nil {
		requirements = protocol.GetInputRequirements(node)
	}

	satisfied := func(portName string) bool {
		for _, edge := range r.graph.Incoming(nodeID) {
			if edge.TargetPort != portName {
				continue
			}

			if _, produced := r.ectx.OutputOn(edge.SourceNode, edge.SourcePort); produced {
				return true
			}
		}

		return false
	}

	switch requirements.WaitMode {
	case models.WaitModeAll:
		for _, portName := range requirements.RequiredPorts {
			if !satisfied(portName) {
				return false
			}
		}

		return true
	case models.WaitModeAny, models.WaitModeFirst:
		for _, portName := range requirements.RequiredPorts {
			if satisfied(portName) {
				return true
			}
		}

		return false
	default:
		return len(r.collectInputs(nodeID)) > 0
	}
}

// collectInputs gathers the union of inputs from all incoming edges whose
// source has produced output, keyed by the target input port.
func (r *run) collectInputs(nodeID string) map[string]models.NodeResult {
	inputs := make(map[string]models.NodeResult)

	for _, edge := range r.graph.Incoming(nodeID) {
		if result, produced := r.ectx.OutputOn(edge.SourceNode, edge.SourcePort); produced {
			inputs[edge.TargetPort] = result
		}
	}

	return inputs
}

func (e *Executor) nodeInstance(ctx context.Context, r *run, nodeID string) (protocol.Node, error) {
	if node, ok := r.nodes[nodeID]; ok {
		return node, nil
	}

	workflowNode, ok := r.graph.Node(nodeID)
	if !ok {
		return nil, fmt.Errorf("node %s not found in workflow %s", nodeID, r.ectx.WorkflowID)
	}

	node, err := e.registry.CreateNode(ctx, workflowNode.Type, nodeID, workflowNode.Config)
	if err != nil {
		return nil, fmt.Errorf("failed to create node %s: %w", nodeID, err)
	}

	r.nodes[nodeID] = node

	return node, nil
}

func (e *Executor) escalateFailure(r *run, nodeID string, err error) {
	if r.ectx.Options.ContinueOnFail {
		return
	}

	if !r.failed {
		r.failed = true
		r.failedNodeID = nodeID
		r.failErr = err
	}
}

func (e *Executor) terminalResult(r *run) *Result {
	switch {
	case r.ectx.Cancelled:
		return &Result{Status: models.ExecutionStatusCancelled}
	case r.ectx.Paused:
		return &Result{
			Status:        models.ExecutionStatusPaused,
			Intervention:  r.intervention,
			WaitingNodeID: r.waitingNodeID,
		}
	case r.failed:
		return &Result{
			Status:       models.ExecutionStatusError,
			FailedNodeID: r.failedNodeID,
			Err:          r.failErr,
		}
	default:
		return &Result{Status: models.ExecutionStatusSuccess}
	}
}

// checkpoint persists the whole context snapshot. Direct-mode executions run
// without a store and keep state in memory only.
func (e *Executor) checkpoint(ctx context.Context, r *run) {
	if e.store == nil {
		return
	}

	err := e.store.SaveContext(ctx, r.ectx)
	if err != nil {
		e.logger.ErrorContext(ctx, "Failed to checkpoint execution context",
			"execution_id", r.ectx.ID, "error", err)
	}
}

func (e *Executor) checkpointNode(ctx context.Context, r *run, nodeID string, outputs map[string]models.NodeResult) {
	if e.store == nil {
		return
	}

	err := e.store.SaveNodeOutput(ctx, r.ectx.ID, nodeID, outputs)
	if err != nil {
		e.logger.ErrorContext(ctx, "Failed to checkpoint node output",
			"execution_id", r.ectx.ID, "node_id", nodeID, "error", err)
	}
}

func (e *Executor) emitNodeStarted(ctx context.Context, r *run, state *models.NodeExecutionState, nodeType string) {
	event := events.NodeStarted{
		BaseEvent: events.NewBaseEvent(events.NodeStartedEvent, r.ectx.ID, r.ectx.WorkflowID),
		NodeID:    state.NodeID,
		NodeType:  nodeType,
		Iteration: state.Iteration,
		Attempt:   state.Attempt,
	}
	event.WorkerID = e.workerID

	e.publish(ctx, r.ectx.ID, event)
}

func (e *Executor) emitNodeCompleted(ctx context.Context, r *run, state *models.NodeExecutionState, nodeType string, outputs map[string]models.NodeResult) {
	ports := make([]string, 0, len(outputs))
	for portName := range outputs {
		ports = append(ports, portName)
	}

	event := events.NodeCompleted{
		BaseEvent:   events.NewBaseEvent(events.NodeCompletedEvent, r.ectx.ID, r.ectx.WorkflowID),
		NodeID:      state.NodeID,
		NodeType:    nodeType,
		Iteration:   state.Iteration,
		OutputPorts: ports,
		Outputs:     outputs,
		DurationMs:  stateDurationMs(state),
	}
	event.WorkerID = e.workerID

	e.publish(ctx, r.ectx.ID, event)
}

func (e *Executor) emitNodeFailed(ctx context.Context, r *run, state *models.NodeExecutionState, nodeType string, err error) {
	event := events.NodeFailed{
		BaseEvent:  events.NewBaseEvent(events.NodeFailedEvent, r.ectx.ID, r.ectx.WorkflowID),
		NodeID:     state.NodeID,
		NodeType:   nodeType,
		Iteration:  state.Iteration,
		Error:      err.Error(),
		DurationMs: stateDurationMs(state),
	}
	event.WorkerID = e.workerID

	e.publish(ctx, r.ectx.ID, event)
}

func (e *Executor) emitProgress(ctx context.Context, r *run) {
	event := events.ExecutionProgress{
		BaseEvent:      events.NewBaseEvent(events.ExecutionProgressEvent, r.ectx.ID, r.ectx.WorkflowID),
		CompletedNodes: r.ectx.CompletedNodes(),
		TotalNodes:     r.graph.NodeCount(),
	}
	event.WorkerID = e.workerID

	e.publish(ctx, r.ectx.ID, event)
}

func (e *Executor) publish(ctx context.Context, key string, event eventbus.Event) {
	err := e.publisher.Publish(ctx, key, event)
	if err != nil {
		e.logger.ErrorContext(ctx, "Failed to publish execution event",
			"event_type", event.GetType(), "error", err)
	}
}

func stateDurationMs(state *models.NodeExecutionState) int64 {
	if state.StartedAt == nil || state.FinishedAt == nil {
		return 0
	}

	return state.FinishedAt.Sub(*state.StartedAt).Milliseconds()
}
