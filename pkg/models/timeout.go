package models

import "time"

// TimeoutStatus is the per-execution timer state machine.
type TimeoutStatus string

const (
	TimeoutStatusActive  TimeoutStatus = "active"
	TimeoutStatusWarning TimeoutStatus = "warning"
	TimeoutStatusTimeout TimeoutStatus = "timeout"
)

// WarningFraction is how much of the budget may elapse before the warning
// notification fires.
const WarningFraction = 0.8

// TimeoutRecord tracks the timeout budget of one in-flight execution. One
// record exists per execution and is deleted on completion or cancellation.
type TimeoutRecord struct {
	ExecutionID  string        `json:"execution_id"`
	WorkflowID   string        `json:"workflow_id"`
	StartedAt    time.Time     `json:"started_at"`
	LastActivity time.Time     `json:"last_activity"`
	BudgetMs     int64         `json:"budget_ms"`
	WarningMs    int64         `json:"warning_ms"`
	Status       TimeoutStatus `json:"status"`
}
