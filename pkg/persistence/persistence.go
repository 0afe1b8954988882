// Package persistence provides the durable storage abstraction for workflow
// definitions and execution audit records.
package persistence

import (
	"context"

	"github.com/flowlinehq/flowline/pkg/models"
)

// WorkflowRepository stores workflow definitions. Executions only ever read
// published workflows; drafts are edited through the API surface.
type WorkflowRepository interface {
	Workflows(ctx context.Context) ([]*models.Workflow, error)
	WorkflowByID(ctx context.Context, id string) (*models.Workflow, error)
	SaveWorkflow(ctx context.Context, workflow *models.Workflow) error
	DeleteWorkflow(ctx context.Context, id string) error
}

// ExecutionRepository stores the terminal audit record of each execution.
type ExecutionRepository interface {
	SaveExecution(ctx context.Context, record *models.ExecutionRecord) error
	ExecutionByID(ctx context.Context, id string) (*models.ExecutionRecord, error)
	ExecutionsByWorkflow(ctx context.Context, workflowID string) ([]*models.ExecutionRecord, error)
}

type Persistence interface {
	WorkflowRepository
	ExecutionRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}
