// Package conditional provides conditional branching node implementation for workflow graph execution.
package conditional

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/flowlinehq/flowline/pkg/models"
	"github.com/flowlinehq/flowline/pkg/template"
)

const (
	OutputPortTrue  = "true"
	OutputPortFalse = "false"
	OutputPortError = "error"
	InputPortMain   = "main"
)

// ConditionalNode evaluates a templated condition and routes execution to
// exactly one of its true/false output ports. Edges leaving the unselected
// port are never activated.
type ConditionalNode struct {
	id        string
	condition string
}

func NewConditionalNode(id string, config map[string]any) (*ConditionalNode, error) {
	condition, ok := config["condition"].(string)
	if !ok {
		return nil, errors.New("missing required field 'condition'")
	}

	return &ConditionalNode{id: id, condition: condition}, nil
}

func (n *ConditionalNode) ID() string {
	return n.id
}

func (n *ConditionalNode) Type() string {
	return "conditional"
}

// Execute evaluates the condition and routes to the true or false output port.
func (n *ConditionalNode) Execute(_ context.Context, executionCtx *models.ExecutionContext, _ map[string]models.NodeResult) (map[string]models.NodeResult, error) {
	value, err := template.RenderWithContext(n.condition, executionCtx)
	if err != nil {
		return n.errorResult(fmt.Sprintf("condition evaluation failed: %v", err)), nil
	}

	port := OutputPortFalse
	if truthy(value) {
		port = OutputPortTrue
	}

	return map[string]models.NodeResult{
		port: {
			NodeID: n.id,
			Data: map[string]any{
				"condition_result": port == OutputPortTrue,
				"evaluated_value":  value,
			},
			Status:    string(models.NodeStatusSuccess),
			Timestamp: time.Now().UTC(),
		},
	}, nil
}

// truthy converts various evaluated types to boolean.
func truthy(value any) bool {
	switch v := value.(type) {
	case bool:
		return v
	case string:
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}

		return v != ""
	case int:
		return v != 0
	case int64:
		return v != 0
	case float64:
		return v != 0
	case []any:
		return len(v) > 0
	case map[string]any:
		return len(v) > 0
	case nil:
		return false
	default:
		return false
	}
}

func (n *ConditionalNode) errorResult(message string) map[string]models.NodeResult {
	return map[string]models.NodeResult{
		OutputPortError: {
			NodeID:    n.id,
			Data:      map[string]any{"error": message},
			Status:    string(models.NodeStatusFailed),
			Error:     message,
			Timestamp: time.Now().UTC(),
		},
	}
}

func (n *ConditionalNode) GetInputPorts() []models.InputPort {
	return []models.InputPort{
		{
			Port: models.Port{
				ID:          models.MakePortID(n.id, InputPortMain),
				NodeID:      n.id,
				Name:        InputPortMain,
				Description: "Main input for triggering the condition evaluation",
			},
		},
	}
}

func (n *ConditionalNode) GetOutputPorts() []models.OutputPort {
	return []models.OutputPort{
		{
			Port: models.Port{
				ID:          models.MakePortID(n.id, OutputPortTrue),
				NodeID:      n.id,
				Name:        OutputPortTrue,
				Description: "Execution path when the condition evaluates to true",
			},
		},
		{
			Port: models.Port{
				ID:          models.MakePortID(n.id, OutputPortFalse),
				NodeID:      n.id,
				Name:        OutputPortFalse,
				Description: "Execution path when the condition evaluates to false",
			},
		},
		{
			Port: models.Port{
				ID:          models.MakePortID(n.id, OutputPortError),
				NodeID:      n.id,
				Name:        OutputPortError,
				Description: "Error information when the condition evaluation fails",
			},
		},
	}
}

func (n *ConditionalNode) InputRequirements() models.InputRequirements {
	return models.InputRequirements{
		RequiredPorts: []string{InputPortMain},
		OptionalPorts: []string{},
		WaitMode:      models.WaitModeAll,
	}
}
