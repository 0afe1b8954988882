package services

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/flowlinehq/flowline/pkg/models"
	"github.com/flowlinehq/flowline/pkg/persistence"
)

// Workflow handles workflow publishing operations. Only published workflows
// are executable; publishing runs the structural checks once so the executor
// can treat the graph as trusted.
type Workflow struct {
	persistence persistence.Persistence
	validate    *validator.Validate
}

func NewWorkflow(persist persistence.Persistence) *Workflow {
	return &Workflow{
		persistence: persist,
		validate:    validator.New(),
	}
}

// Publish validates a draft workflow and marks it executable.
func (s *Workflow) Publish(ctx context.Context, workflowID string) (*models.Workflow, error) {
	workflow, err := s.persistence.WorkflowByID(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	if workflow.Status != models.WorkflowStatusDraft {
		return nil, ErrWorkflowNotDraft
	}

	err = s.ValidateForPublish(workflow)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	workflow.Status = models.WorkflowStatusPublished
	workflow.PublishedAt = &now
	workflow.UpdatedAt = now

	err = s.persistence.SaveWorkflow(ctx, workflow)
	if err != nil {
		return nil, fmt.Errorf("failed to save published workflow: %w", err)
	}

	return workflow, nil
}

// ValidateForPublish runs the structural checks a workflow must pass before
// it can execute.
func (s *Workflow) ValidateForPublish(workflow *models.Workflow) error {
	if workflow.Name == "" {
		return ErrWorkflowNameRequired
	}

	err := s.validate.Struct(workflow)
	if err != nil {
		return &ServiceError{Op: "ValidateForPublish", Message: err.Error(), Err: ErrInvalidRequest}
	}

	if len(workflow.Nodes) == 0 {
		return ErrNodesRequired
	}

	nodeIDs := make(map[string]bool, len(workflow.Nodes))
	hasTrigger := false

	for _, node := range workflow.Nodes {
		nodeIDs[node.ID] = true

		if node.IsTriggerNode() && node.Enabled {
			hasTrigger = true
		}
	}

	if !hasTrigger {
		return ErrTriggerNodeRequired
	}

	for _, conn := range workflow.Connections {
		sourceNode, _, ok := models.ParsePortID(conn.SourcePort)
		if !ok || !nodeIDs[sourceNode] {
			return fmt.Errorf("%w: connection %s source %q", ErrDanglingConnection, conn.ID, conn.SourcePort)
		}

		targetNode, _, ok := models.ParsePortID(conn.TargetPort)
		if !ok || !nodeIDs[targetNode] {
			return fmt.Errorf("%w: connection %s target %q", ErrDanglingConnection, conn.ID, conn.TargetPort)
		}
	}

	return nil
}
