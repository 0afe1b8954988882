package models

import "time"

// InterventionType classifies what a manual gate asks of a human.
type InterventionType string

const (
	InterventionTypeApproval InterventionType = "approval"
	InterventionTypeInput    InterventionType = "input"
	InterventionTypeChoice   InterventionType = "choice"
)

// InterventionStatus is the gate's state machine: pending until a response or
// expiry resolves it, exactly once.
type InterventionStatus string

const (
	InterventionStatusPending  InterventionStatus = "pending"
	InterventionStatusApproved InterventionStatus = "approved"
	InterventionStatusDenied   InterventionStatus = "denied"
	InterventionStatusTimeout  InterventionStatus = "timeout"
)

// ManualInterventionRequest is created when a node demands human input. It is
// consumed exactly once, by a response or by expiry.
type ManualInterventionRequest struct {
	ID           string             `json:"id"`
	ExecutionID  string             `json:"execution_id"`
	WorkflowID   string             `json:"workflow_id"`
	NodeID       string             `json:"node_id"`
	Type         InterventionType   `json:"type"`
	Prompt       string             `json:"prompt"`
	Choices      []string           `json:"choices,omitempty"`
	RequiredRole string             `json:"required_role,omitempty"`
	Status       InterventionStatus `json:"status"`
	CreatedAt    time.Time          `json:"created_at"`
	ExpiresAt    time.Time          `json:"expires_at"`
}

// InterventionResponse carries a human's answer to a pending gate.
type InterventionResponse struct {
	Approved bool           `json:"approved"`
	Input    map[string]any `json:"input,omitempty"`
	Choice   string         `json:"choice,omitempty"`
	Actor    string         `json:"actor,omitempty"`
}
