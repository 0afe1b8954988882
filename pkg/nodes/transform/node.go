// Package transform provides data transformation node implementation for workflow graph execution.
package transform

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/flowlinehq/flowline/pkg/models"
	"github.com/flowlinehq/flowline/pkg/template"
)

const (
	OutputPortSuccess = "success"
	OutputPortError   = "error"
	InputPortMain     = "main"
)

// TransformNode reshapes execution data with a Go template expression. The
// rendered output is JSON-decoded when possible, so expressions can build
// structured payloads for downstream nodes.
type TransformNode struct {
	id         string
	expression string
}

func NewTransformNode(id string, config map[string]any) (*TransformNode, error) {
	expression, ok := config["expression"].(string)
	if !ok {
		return nil, errors.New("missing required field 'expression'")
	}

	return &TransformNode{
		id:         id,
		expression: expression,
	}, nil
}

func (n *TransformNode) ID() string {
	return n.id
}

func (n *TransformNode) Type() string {
	return "transform"
}

// Execute renders the transformation expression against the execution context.
func (n *TransformNode) Execute(_ context.Context, executionCtx *models.ExecutionContext, _ map[string]models.NodeResult) (map[string]models.NodeResult, error) {
	result, err := template.RenderWithContext(n.expression, executionCtx)
	if err != nil {
		message := fmt.Sprintf("transformation failed: %v", err)

		return map[string]models.NodeResult{
			OutputPortError: {
				NodeID:    n.id,
				Data:      map[string]any{"error": message},
				Status:    string(models.NodeStatusFailed),
				Error:     message,
				Timestamp: time.Now().UTC(),
			},
		}, nil
	}

	return map[string]models.NodeResult{
		OutputPortSuccess: {
			NodeID: n.id,
			Data: map[string]any{
				"result": result,
			},
			Status:    string(models.NodeStatusSuccess),
			Timestamp: time.Now().UTC(),
		},
	}, nil
}

func (n *TransformNode) GetInputPorts() []models.InputPort {
	return []models.InputPort{
		{
			Port: models.Port{
				ID:          models.MakePortID(n.id, InputPortMain),
				NodeID:      n.id,
				Name:        InputPortMain,
				Description: "Main input for triggering the transformation",
			},
		},
	}
}

func (n *TransformNode) GetOutputPorts() []models.OutputPort {
	return []models.OutputPort{
		{
			Port: models.Port{
				ID:          models.MakePortID(n.id, OutputPortSuccess),
				NodeID:      n.id,
				Name:        OutputPortSuccess,
				Description: "Transformed data result",
				Schema: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"result": map[string]any{"description": "The transformed result"},
					},
				},
			},
		},
		{
			Port: models.Port{
				ID:          models.MakePortID(n.id, OutputPortError),
				NodeID:      n.id,
				Name:        OutputPortError,
				Description: "Error information when transformation fails",
				Schema: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"error": map[string]any{"type": "string"},
					},
				},
			},
		},
	}
}

func (n *TransformNode) InputRequirements() models.InputRequirements {
	return models.InputRequirements{
		RequiredPorts: []string{InputPortMain},
		OptionalPorts: []string{},
		WaitMode:      models.WaitModeAll,
	}
}
