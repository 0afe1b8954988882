// Package loop provides iteration node implementation for workflow graph execution.
package loop

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/flowlinehq/flowline/pkg/models"
	"github.com/flowlinehq/flowline/pkg/template"
)

const (
	OutputPortNext = "next"
	OutputPortDone = "done"
	InputPortMain  = "main"
)

// LoopNode drives bounded iteration in a workflow graph. Each execution is one
// iteration: while the continue condition holds and the iteration count is
// below the configured limit, the node emits on the "next" port, which feeds
// the loop body and eventually cycles back into this node. When iteration
// finishes it emits on "done".
//
// The node is reentrant, so the executor pushes a fresh execution state per
// iteration instead of coalescing repeat activations.
type LoopNode struct {
	id         string
	condition  string
	iterations int
}

func NewLoopNode(id string, config map[string]any) (*LoopNode, error) {
	condition, hasCondition := config["condition"].(string)

	iterations := 0
	if raw, ok := config["iterations"].(float64); ok {
		iterations = int(raw)
	}

	if !hasCondition && iterations <= 0 {
		return nil, errors.New("loop requires 'condition' or a positive 'iterations' count")
	}

	if iterations < 0 {
		return nil, errors.New("'iterations' must be positive")
	}

	return &LoopNode{
		id:         id,
		condition:  condition,
		iterations: iterations,
	}, nil
}

func (n *LoopNode) ID() string {
	return n.id
}

func (n *LoopNode) Type() string {
	return "loop"
}

// Reentrant marks the node as safe to schedule repeatedly within one execution.
func (n *LoopNode) Reentrant() bool {
	return true
}

// Execute decides whether the loop continues. The iteration number comes from
// the execution context's state history for this node; the first activation is
// iteration 1.
func (n *LoopNode) Execute(_ context.Context, executionCtx *models.ExecutionContext, _ map[string]models.NodeResult) (map[string]models.NodeResult, error) {
	iteration := executionCtx.IterationCount(n.id)

	proceed := true

	if n.iterations > 0 && iteration > n.iterations {
		proceed = false
	}

	if proceed && n.condition != "" {
		evaluated, err := template.RenderWithContext(n.condition, executionCtx)
		if err != nil {
			return nil, fmt.Errorf("loop condition evaluation failed: %w", err)
		}

		proceed = truthy(evaluated)
	}

	port := OutputPortNext
	if !proceed {
		port = OutputPortDone
	}

	return map[string]models.NodeResult{
		port: {
			NodeID: n.id,
			Data: map[string]any{
				"iteration": iteration,
			},
			Status:    string(models.NodeStatusSuccess),
			Timestamp: time.Now().UTC(),
		},
	}, nil
}

func truthy(value any) bool {
	switch v := value.(type) {
	case bool:
		return v
	case string:
		return v == "true"
	case float64:
		return v != 0
	case int:
		return v != 0
	case nil:
		return false
	default:
		return false
	}
}

func (n *LoopNode) GetInputPorts() []models.InputPort {
	return []models.InputPort{
		{
			Port: models.Port{
				ID:          models.MakePortID(n.id, InputPortMain),
				NodeID:      n.id,
				Name:        InputPortMain,
				Description: "Loop entry and loop-back input",
			},
		},
	}
}

func (n *LoopNode) GetOutputPorts() []models.OutputPort {
	return []models.OutputPort{
		{
			Port: models.Port{
				ID:          models.MakePortID(n.id, OutputPortNext),
				NodeID:      n.id,
				Name:        OutputPortNext,
				Description: "Execution path into the loop body for the current iteration",
				Schema: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"iteration": map[string]any{"type": "number"},
					},
				},
			},
		},
		{
			Port: models.Port{
				ID:          models.MakePortID(n.id, OutputPortDone),
				NodeID:      n.id,
				Name:        OutputPortDone,
				Description: "Execution path after the loop finishes",
				Schema: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"iteration": map[string]any{"type": "number"},
					},
				},
			},
		},
	}
}

// InputRequirements uses first-arrival semantics so the loop-back edge can
// reactivate the node without waiting for the original entry edge again.
func (n *LoopNode) InputRequirements() models.InputRequirements {
	return models.InputRequirements{
		RequiredPorts: []string{InputPortMain},
		OptionalPorts: []string{},
		WaitMode:      models.WaitModeFirst,
	}
}
