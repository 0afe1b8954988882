package models

import "time"

// JobStatus is the queue entry lifecycle.
type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusActive    JobStatus = "active"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusDead      JobStatus = "dead"
)

// Job is the durable queue entry for one queued execution. Workers rehydrate
// the execution context from the state store keyed by ExecutionID, so the job
// itself carries only routing data.
type Job struct {
	ExecutionID   string           `json:"execution_id"   validate:"required"`
	WorkflowID    string           `json:"workflow_id"    validate:"required"`
	TriggerNodeID string           `json:"trigger_node_id" validate:"required"`
	Options       ExecutionOptions `json:"options"`
	Attempt       int              `json:"attempt"`
	EnqueuedAt    time.Time        `json:"enqueued_at"`
}
