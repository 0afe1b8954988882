package models

import "time"

// ExecutionRecord is the durable audit row written when an execution reaches
// a terminal state. The live execution context lives in the state store; the
// record is what outlives its TTL.
type ExecutionRecord struct {
	ID            string          `json:"id"          validate:"required"`
	WorkflowID    string          `json:"workflow_id" validate:"required"`
	UserID        string          `json:"user_id"`
	Status        ExecutionStatus `json:"status"`
	TriggerNodeID string          `json:"trigger_node_id"`
	StartedAt     time.Time       `json:"started_at"`
	FinishedAt    *time.Time      `json:"finished_at,omitempty"`
	Error         string          `json:"error,omitempty"`
	NodesExecuted int             `json:"nodes_executed"`
}
