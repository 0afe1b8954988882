// Package protocol defines the interfaces and contracts for pluggable nodes.
package protocol

import (
	"context"

	"github.com/flowlinehq/flowline/pkg/models"
)

// Node is a unit of workflow logic with declared input/output ports. Execute
// receives the union of inputs collected from incoming edges, keyed by input
// port name, and returns results keyed by output port name. Branch nodes
// populate only the port(s) selected by their logic; edges leaving unselected
// ports are never activated.
type Node interface {
	ID() string
	Type() string
	Execute(ctx context.Context, executionCtx *models.ExecutionContext, inputs map[string]models.NodeResult) (map[string]models.NodeResult, error)
	GetInputPorts() []models.InputPort
	GetOutputPorts() []models.OutputPort
}

// InputCoordinated is implemented by nodes with non-default input needs, such
// as merge nodes that wait on several ports.
type InputCoordinated interface {
	InputRequirements() models.InputRequirements
}

// Reentrant marks loop-construct nodes that may be scheduled again for the
// same node id within one execution. Re-entry pushes a fresh execution state
// per iteration; the executor caps iterations.
type Reentrant interface {
	Reentrant() bool
}

// NodeFactory creates node instances and provides metadata about the node type.
type NodeFactory interface {
	// Create creates a new node instance with the given configuration
	Create(ctx context.Context, id string, config map[string]any) (Node, error)

	// ID returns the unique identifier for this node type
	ID() string

	// Name returns the human-readable name for this node type
	Name() string

	// Description returns a description of what this node does
	Description() string

	// Schema returns the JSON schema for configuring this node
	Schema() map[string]any
}

// GetInputRequirements returns a node's coordination requirements, falling
// back to the single-port default when the node does not declare any.
func GetInputRequirements(node Node) models.InputRequirements {
	if coordinated, ok := node.(InputCoordinated); ok {
		return coordinated.InputRequirements()
	}

	return models.DefaultInputRequirements()
}
