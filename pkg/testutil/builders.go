// Package testutil provides test data builders for workflow graphs.
package testutil

import (
	"github.com/google/uuid"

	"github.com/flowlinehq/flowline/pkg/models"
)

// CreateTestNode creates a WorkflowNode with default values that can be
// overridden.
func CreateTestNode(overrides ...func(*models.WorkflowNode)) *models.WorkflowNode {
	node := &models.WorkflowNode{
		ID:       uuid.New().String(),
		Type:     "transform",
		Category: models.CategoryTypeAction,
		Name:     "Test Node",
		Config:   map[string]any{"expression": "ok"},
		Enabled:  true,
	}

	for _, override := range overrides {
		override(node)
	}

	return node
}

// WithNodeID sets the node id (and name, so both stay recognizable in
// assertions).
func WithNodeID(id string) func(*models.WorkflowNode) {
	return func(n *models.WorkflowNode) {
		n.ID = id
		n.Name = id
	}
}

// WithNodeType sets the node type.
func WithNodeType(nodeType string) func(*models.WorkflowNode) {
	return func(n *models.WorkflowNode) {
		n.Type = nodeType
	}
}

// WithTriggerNode configures the node as a manual trigger node.
func WithTriggerNode() func(*models.WorkflowNode) {
	return func(n *models.WorkflowNode) {
		n.Type = models.NodeTypeTriggerManual
		n.Category = models.CategoryTypeTrigger
		n.Config = nil
	}
}

// WithConfig sets the node configuration.
func WithConfig(config map[string]any) func(*models.WorkflowNode) {
	return func(n *models.WorkflowNode) {
		n.Config = config
	}
}

// WithDisabled marks the node as disabled.
func WithDisabled() func(*models.WorkflowNode) {
	return func(n *models.WorkflowNode) {
		n.Enabled = false
	}
}

// CreateTestConnection wires a source node port to a target node port.
func CreateTestConnection(id, sourceNode, sourcePort, targetNode, targetPort string) *models.Connection {
	return &models.Connection{
		ID:         id,
		SourcePort: models.MakePortID(sourceNode, sourcePort),
		TargetPort: models.MakePortID(targetNode, targetPort),
	}
}

// CreateTestWorkflow creates a published two-node workflow (manual trigger
// feeding a transform) that can be overridden.
func CreateTestWorkflow(overrides ...func(*models.Workflow)) *models.Workflow {
	workflow := &models.Workflow{
		ID:     uuid.New().String(),
		Name:   "Test Workflow",
		Status: models.WorkflowStatusPublished,
		Nodes: []*models.WorkflowNode{
			CreateTestNode(WithTriggerNode(), WithNodeID("trigger")),
			CreateTestNode(WithNodeID("task")),
		},
		Connections: []*models.Connection{
			CreateTestConnection("c1", "trigger", "main", "task", "main"),
		},
	}

	for _, override := range overrides {
		override(workflow)
	}

	return workflow
}

// WithWorkflowID sets the workflow id.
func WithWorkflowID(id string) func(*models.Workflow) {
	return func(w *models.Workflow) {
		w.ID = id
	}
}

// WithWorkflowName sets the workflow name.
func WithWorkflowName(name string) func(*models.Workflow) {
	return func(w *models.Workflow) {
		w.Name = name
	}
}

// WithDraftStatus marks the workflow as an unpublished draft.
func WithDraftStatus() func(*models.Workflow) {
	return func(w *models.Workflow) {
		w.Status = models.WorkflowStatusDraft
	}
}

// WithNodes replaces the workflow's nodes.
func WithNodes(nodes ...*models.WorkflowNode) func(*models.Workflow) {
	return func(w *models.Workflow) {
		w.Nodes = nodes
	}
}

// WithConnections replaces the workflow's connections.
func WithConnections(connections ...*models.Connection) func(*models.Workflow) {
	return func(w *models.Workflow) {
		w.Connections = connections
	}
}
