// Package events defines event types and structures for execution lifecycle notifications.
package events

import (
	"time"

	"github.com/flowlinehq/flowline/pkg/models"
	"github.com/google/uuid"
)

type EventType string

// Topic carries every execution lifecycle event, keyed by execution id so that
// events of a single execution stay ordered on one partition.
const Topic = "flowline.execution.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// Node lifecycle events.
	NodeStartedEvent   EventType = "node.started"
	NodeCompletedEvent EventType = "node.completed"
	NodeFailedEvent    EventType = "node.failed"

	// Execution lifecycle events.
	ExecutionProgressEvent       EventType = "execution.progress"
	ExecutionCompletedEvent      EventType = "execution.completed"
	ExecutionFailedEvent         EventType = "execution.failed"
	ExecutionCancelledEvent      EventType = "execution.cancelled"
	ExecutionPausedEvent         EventType = "execution.paused"
	ExecutionResumedEvent        EventType = "execution.resumed"
	ExecutionTimeoutWarningEvent EventType = "execution.timeout.warning"
)

// BaseEvent carries the fields shared by all execution events. Events for a
// single execution are published in the order their causing state transitions
// occurred; no global ordering across executions is guaranteed.
type BaseEvent struct {
	ID          string         `json:"id"`
	Type        EventType      `json:"type"`
	Timestamp   time.Time      `json:"timestamp"`
	ExecutionID string         `json:"execution_id"`
	WorkflowID  string         `json:"workflow_id"`
	WorkerID    string         `json:"worker_id,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

func NewBaseEvent(eventType EventType, executionID, workflowID string) BaseEvent {
	return BaseEvent{
		ID:          uuid.New().String(),
		Type:        eventType,
		Timestamp:   time.Now().UTC(),
		ExecutionID: executionID,
		WorkflowID:  workflowID,
		Metadata:    make(map[string]any),
	}
}

func (b BaseEvent) GetExecutionID() string {
	return b.ExecutionID
}

// Node lifecycle events

// NodeStarted is emitted when a node transitions to running. Attempt
// increments across worker-side retries of the same node, making transient
// retries visible to observers.
type NodeStarted struct {
	BaseEvent

	NodeID    string `json:"node_id"`
	NodeType  string `json:"node_type"`
	Iteration int    `json:"iteration"`
	Attempt   int    `json:"attempt"`
}

func (n NodeStarted) GetType() EventType {
	return NodeStartedEvent
}

type NodeCompleted struct {
	BaseEvent

	NodeID      string                       `json:"node_id"`
	NodeType    string                       `json:"node_type"`
	Iteration   int                          `json:"iteration"`
	OutputPorts []string                     `json:"output_ports"`
	Outputs     map[string]models.NodeResult `json:"outputs,omitempty"`
	DurationMs  int64                        `json:"duration_ms"`
}

func (n NodeCompleted) GetType() EventType {
	return NodeCompletedEvent
}

type NodeFailed struct {
	BaseEvent

	NodeID     string `json:"node_id"`
	NodeType   string `json:"node_type"`
	Iteration  int    `json:"iteration"`
	Error      string `json:"error"`
	DurationMs int64  `json:"duration_ms"`
}

func (n NodeFailed) GetType() EventType {
	return NodeFailedEvent
}

// Execution lifecycle events

type ExecutionProgress struct {
	BaseEvent

	CompletedNodes int `json:"completed_nodes"`
	TotalNodes     int `json:"total_nodes"`
}

func (e ExecutionProgress) GetType() EventType {
	return ExecutionProgressEvent
}

type ExecutionCompleted struct {
	BaseEvent

	Status        string `json:"status"`
	DurationMs    int64  `json:"duration_ms"`
	NodesExecuted int    `json:"nodes_executed"`
}

func (e ExecutionCompleted) GetType() EventType {
	return ExecutionCompletedEvent
}

type ExecutionFailed struct {
	BaseEvent

	Status        string `json:"status"`
	Error         string `json:"error"`
	FailedNodeID  string `json:"failed_node_id,omitempty"`
	DurationMs    int64  `json:"duration_ms"`
	NodesExecuted int    `json:"nodes_executed"`
}

func (e ExecutionFailed) GetType() EventType {
	return ExecutionFailedEvent
}

type ExecutionCancelled struct {
	BaseEvent

	Reason        string `json:"reason"`
	CancelledBy   string `json:"cancelled_by,omitempty"`
	DurationMs    int64  `json:"duration_ms"`
	NodesExecuted int    `json:"nodes_executed"`
}

func (e ExecutionCancelled) GetType() EventType {
	return ExecutionCancelledEvent
}

type ExecutionPaused struct {
	BaseEvent

	NodeID         string `json:"node_id"`
	InterventionID string `json:"intervention_id"`
	Prompt         string `json:"prompt,omitempty"`
}

func (e ExecutionPaused) GetType() EventType {
	return ExecutionPausedEvent
}

type ExecutionResumed struct {
	BaseEvent

	NodeID          string `json:"node_id"`
	InterventionID  string `json:"intervention_id"`
	ResumedBy       string `json:"resumed_by,omitempty"`
	PauseDurationMs int64  `json:"pause_duration_ms"`
}

func (e ExecutionResumed) GetType() EventType {
	return ExecutionResumedEvent
}

// ExecutionTimeoutWarning fires once when 80% of the timeout budget has
// elapsed without completion. It does not stop the execution.
type ExecutionTimeoutWarning struct {
	BaseEvent

	ElapsedMs int64 `json:"elapsed_ms"`
	BudgetMs  int64 `json:"budget_ms"`
}

func (e ExecutionTimeoutWarning) GetType() EventType {
	return ExecutionTimeoutWarningEvent
}
