// Package models defines core node-based workflow models for graph execution
package models

import (
	"time"
)

// CategoryType represents the category of node.
type CategoryType string

const (
	CategoryTypeAction  CategoryType = "action"  // Regular action nodes (http, log, transform, etc.)
	CategoryTypeTrigger CategoryType = "trigger" // Trigger nodes (webhook, schedule, manual, etc.)
)

// Built-in trigger node types.
const (
	NodeTypeTriggerWebhook  = "trigger:webhook"
	NodeTypeTriggerSchedule = "trigger:schedule"
	NodeTypeTriggerManual   = "trigger:manual"
)

// Connection connects an output port of one node to an input port of another.
// Multiple connections may share a source port (fan-out) or a target port (fan-in).
type Connection struct {
	ID         string `json:"id"`
	SourcePort string `json:"source_port" validate:"required"` // References Port.ID: "{node_id}:{port_name}"
	TargetPort string `json:"target_port" validate:"required"` // References Port.ID: "{node_id}:{port_name}"
}

// WorkflowNode represents a node instance in a workflow. Immutable once the
// workflow is finalized for execution.
type WorkflowNode struct {
	ID       string         `json:"id"       validate:"required"`
	Type     string         `json:"type"     validate:"required"`
	Category CategoryType   `json:"category" validate:"required"`
	Config   map[string]any `json:"config"`
	Name     string         `json:"name"     validate:"required,min=1"`
	Enabled  bool           `json:"enabled"`
}

func (n *WorkflowNode) IsActionNode() bool {
	return n.Category == CategoryTypeAction
}

func (n *WorkflowNode) IsTriggerNode() bool {
	return n.Category == CategoryTypeTrigger
}

// NodeResult represents data produced on a single output port of a node.
type NodeResult struct {
	NodeID    string         `json:"node_id"`
	Data      map[string]any `json:"data"`
	Status    string         `json:"status"`
	Timestamp time.Time      `json:"timestamp"`
	Error     string         `json:"error,omitempty"`
}

// NodeStatus defines the possible states of a node execution.
// A node transitions pending -> running -> {success, failed, skipped} and is
// never revisited within one execution unless re-entered by a loop construct,
// which pushes a fresh NodeExecutionState instead of mutating the prior one.
type NodeStatus string

const (
	NodeStatusPending NodeStatus = "pending"
	NodeStatusRunning NodeStatus = "running"
	NodeStatusSuccess NodeStatus = "success"
	NodeStatusFailed  NodeStatus = "failed"
	NodeStatusSkipped NodeStatus = "skipped"
)

// NodeExecutionState tracks one execution of one node. Loop constructs produce
// one instance per iteration.
type NodeExecutionState struct {
	NodeID     string                `json:"node_id"`
	Status     NodeStatus            `json:"status"`
	Iteration  int                   `json:"iteration"`
	Attempt    int                   `json:"attempt"`
	StartedAt  *time.Time            `json:"started_at,omitempty"`
	FinishedAt *time.Time            `json:"finished_at,omitempty"`
	Input      map[string]NodeResult `json:"input,omitempty"`
	Output     map[string]NodeResult `json:"output,omitempty"`
	Error      string                `json:"error,omitempty"`
}

// Terminal reports whether the state reached a final status.
func (s *NodeExecutionState) Terminal() bool {
	return s.Status == NodeStatusSuccess || s.Status == NodeStatusFailed || s.Status == NodeStatusSkipped
}
