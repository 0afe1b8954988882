package models

import "time"

// ExecutionStatus represents the persisted lifecycle state of one execution.
// Paused is deliberately a distinct status from cancelled so that
// crash-recovery can tell an intervention gate apart from a user cancel.
type ExecutionStatus string

const (
	ExecutionStatusRunning   ExecutionStatus = "RUNNING"
	ExecutionStatusPaused    ExecutionStatus = "PAUSED"
	ExecutionStatusSuccess   ExecutionStatus = "SUCCESS"
	ExecutionStatusError     ExecutionStatus = "ERROR"
	ExecutionStatusCancelled ExecutionStatus = "CANCELLED"
	ExecutionStatusTimeout   ExecutionStatus = "TIMEOUT"
)

// Terminal reports whether the status is final.
func (s ExecutionStatus) Terminal() bool {
	switch s {
	case ExecutionStatusSuccess, ExecutionStatusError, ExecutionStatusCancelled, ExecutionStatusTimeout:
		return true
	default:
		return false
	}
}

// ExecutionOptions control how a single execution is run.
type ExecutionOptions struct {
	UseQueue          bool  `json:"use_queue"`           // Queued mode instead of direct in-process execution
	Isolated          bool  `json:"isolated"`            // Require exclusive locks on the downstream closure
	ContinueOnFail    bool  `json:"continue_on_fail"`    // Keep scheduling after a node failure
	MaxConcurrency    int   `json:"max_concurrency"`     // Per-execution concurrent node cap
	MaxLoopIterations int   `json:"max_loop_iterations"` // Per-node iteration cap for loop constructs
	TimeoutMs         int64 `json:"timeout_ms"`          // Execution timeout budget
}

const (
	DefaultMaxConcurrency    = 4
	DefaultMaxLoopIterations = 100
	DefaultTimeoutMs         = 5 * 60 * 1000
)

// Normalized returns a copy with defaults applied to zero-valued fields.
func (o ExecutionOptions) Normalized() ExecutionOptions {
	if o.MaxConcurrency <= 0 {
		o.MaxConcurrency = DefaultMaxConcurrency
	}

	if o.MaxLoopIterations <= 0 {
		o.MaxLoopIterations = DefaultMaxLoopIterations
	}

	if o.TimeoutMs <= 0 {
		o.TimeoutMs = DefaultTimeoutMs
	}

	return o
}

// ExecutionContext owns all mutable state for one in-flight execution. It is
// mutated exclusively by the flow executor that owns the run (plus the timeout
// manager's flag writes) and serialized as a whole to the state store after
// every node completion in queued mode.
type ExecutionContext struct {
	ID            string         `json:"id"             validate:"required"`
	WorkflowID    string         `json:"workflow_id"    validate:"required"`
	UserID        string         `json:"user_id"`
	TriggerNodeID string         `json:"trigger_node_id" validate:"required"`
	TriggerData   map[string]any `json:"trigger_data,omitempty"`
	Variables     map[string]any `json:"variables,omitempty"`

	// NodeStates holds every state instance pushed for a node id; the last
	// element is the current one. Loop constructs append fresh instances.
	NodeStates map[string][]*NodeExecutionState `json:"node_states"`

	// NodeOutputs holds the last produced output per node id, keyed by
	// output port name. Used for input collection and expression lookups.
	NodeOutputs map[string]map[string]NodeResult `json:"node_outputs"`

	// Path records node ids in the order their execution started.
	Path []string `json:"path"`

	Status    ExecutionStatus `json:"status"`
	StartedAt time.Time       `json:"started_at"`
	Error     string          `json:"error,omitempty"`

	Cancelled bool `json:"cancelled"`
	Paused    bool `json:"paused"`
	Isolated  bool `json:"isolated"`

	// PendingIntervention links a paused execution to the gate that paused it.
	PendingIntervention *ManualInterventionRequest `json:"pending_intervention,omitempty"`

	Options ExecutionOptions `json:"options"`
}

// NewExecutionContext creates the context for a fresh run.
func NewExecutionContext(executionID, workflowID, userID, triggerNodeID string, triggerData map[string]any, options ExecutionOptions) *ExecutionContext {
	return &ExecutionContext{
		ID:            executionID,
		WorkflowID:    workflowID,
		UserID:        userID,
		TriggerNodeID: triggerNodeID,
		TriggerData:   triggerData,
		NodeStates:    make(map[string][]*NodeExecutionState),
		NodeOutputs:   make(map[string]map[string]NodeResult),
		Path:          make([]string, 0),
		Status:        ExecutionStatusRunning,
		StartedAt:     time.Now().UTC(),
		Isolated:      options.Isolated,
		Options:       options.Normalized(),
	}
}

// CurrentState returns the most recent state instance for a node, if any.
func (c *ExecutionContext) CurrentState(nodeID string) (*NodeExecutionState, bool) {
	states := c.NodeStates[nodeID]
	if len(states) == 0 {
		return nil, false
	}

	return states[len(states)-1], true
}

// PushState appends a fresh pending state for a node and returns it. The
// iteration counter is the number of prior instances for the same node id.
func (c *ExecutionContext) PushState(nodeID string) *NodeExecutionState {
	state := &NodeExecutionState{
		NodeID:    nodeID,
		Status:    NodeStatusPending,
		Iteration: len(c.NodeStates[nodeID]),
	}
	c.NodeStates[nodeID] = append(c.NodeStates[nodeID], state)

	return state
}

// IterationCount returns how many state instances exist for a node id.
func (c *ExecutionContext) IterationCount(nodeID string) int {
	return len(c.NodeStates[nodeID])
}

// RecordOutput stores the last produced output of a node.
func (c *ExecutionContext) RecordOutput(nodeID string, outputs map[string]NodeResult) {
	c.NodeOutputs[nodeID] = outputs
}

// OutputOn returns the result a node produced on a specific output port.
func (c *ExecutionContext) OutputOn(nodeID, portName string) (NodeResult, bool) {
	outputs, ok := c.NodeOutputs[nodeID]
	if !ok {
		return NodeResult{}, false
	}

	result, ok := outputs[portName]

	return result, ok
}

// CompletedNodes counts node ids whose current state is terminal.
func (c *ExecutionContext) CompletedNodes() int {
	count := 0

	for _, states := range c.NodeStates {
		if len(states) > 0 && states[len(states)-1].Terminal() {
			count++
		}
	}

	return count
}
