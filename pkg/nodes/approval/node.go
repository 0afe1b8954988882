// Package approval provides the manual intervention gate node for workflow
// graph execution.
package approval

import (
	"context"
	"errors"
	"fmt"

	"github.com/flowlinehq/flowline/pkg/models"
	"github.com/flowlinehq/flowline/pkg/protocol"
	"github.com/flowlinehq/flowline/pkg/template"
)

const (
	OutputPortApproved = "approved"
	InputPortMain      = "main"

	// DefaultTimeoutMs is the gate expiry when none is configured (24h).
	DefaultTimeoutMs = int64(24 * 60 * 60 * 1000)
)

// ApprovalNode pauses the execution until a human responds. Execute never
// produces output itself: it raises an intervention request. An approval
// later completes the node on the "approved" port; a denial or gate expiry
// cancels the whole execution.
type ApprovalNode struct {
	id           string
	prompt       string
	kind         models.InterventionType
	choices      []string
	requiredRole string
	timeoutMs    int64
}

func NewApprovalNode(id string, config map[string]any) (*ApprovalNode, error) {
	prompt, ok := config["prompt"].(string)
	if !ok {
		return nil, errors.New("missing required field 'prompt'")
	}

	kind := models.InterventionTypeApproval
	if raw, ok := config["type"].(string); ok {
		kind = models.InterventionType(raw)
	}

	switch kind {
	case models.InterventionTypeApproval, models.InterventionTypeInput, models.InterventionTypeChoice:
	default:
		return nil, fmt.Errorf("invalid intervention type: %s", kind)
	}

	var choices []string

	if choicesAny, ok := config["choices"].([]any); ok {
		choices = make([]string, len(choicesAny))

		for i, choice := range choicesAny {
			choiceStr, ok := choice.(string)
			if !ok {
				return nil, fmt.Errorf("choice %d must be a string", i)
			}

			choices[i] = choiceStr
		}
	}

	if kind == models.InterventionTypeChoice && len(choices) == 0 {
		return nil, errors.New("choice interventions require 'choices'")
	}

	requiredRole, _ := config["required_role"].(string)

	timeoutMs := DefaultTimeoutMs
	if raw, ok := config["timeout_ms"].(float64); ok {
		if raw <= 0 {
			return nil, errors.New("'timeout_ms' must be positive")
		}

		timeoutMs = int64(raw)
	}

	return &ApprovalNode{
		id:           id,
		prompt:       prompt,
		kind:         kind,
		choices:      choices,
		requiredRole: requiredRole,
		timeoutMs:    timeoutMs,
	}, nil
}

func (n *ApprovalNode) ID() string {
	return n.id
}

func (n *ApprovalNode) Type() string {
	return "approval"
}

// Execute raises the intervention request. The prompt is rendered against the
// execution context so it can reference workflow data.
func (n *ApprovalNode) Execute(_ context.Context, executionCtx *models.ExecutionContext, _ map[string]models.NodeResult) (map[string]models.NodeResult, error) {
	prompt := n.prompt

	if rendered, err := template.RenderWithContext(n.prompt, executionCtx); err == nil {
		prompt = fmt.Sprintf("%v", rendered)
	}

	return nil, &protocol.InterventionNeeded{
		Type:         n.kind,
		Prompt:       prompt,
		Choices:      n.choices,
		RequiredRole: n.requiredRole,
		TimeoutMs:    n.timeoutMs,
	}
}

func (n *ApprovalNode) GetInputPorts() []models.InputPort {
	return []models.InputPort{
		{
			Port: models.Port{
				ID:          models.MakePortID(n.id, InputPortMain),
				NodeID:      n.id,
				Name:        InputPortMain,
				Description: "Main input for reaching the approval gate",
			},
		},
	}
}

func (n *ApprovalNode) GetOutputPorts() []models.OutputPort {
	return []models.OutputPort{
		{
			Port: models.Port{
				ID:          models.MakePortID(n.id, OutputPortApproved),
				NodeID:      n.id,
				Name:        OutputPortApproved,
				Description: "Execution path when the request is approved",
				Schema: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"approved": map[string]any{"type": "boolean"},
						"actor":    map[string]any{"type": "string"},
						"choice":   map[string]any{"type": "string"},
						"input":    map[string]any{"type": "object"},
					},
				},
			},
		},
	}
}

func (n *ApprovalNode) InputRequirements() models.InputRequirements {
	return models.InputRequirements{
		RequiredPorts: []string{InputPortMain},
		OptionalPorts: []string{},
		WaitMode:      models.WaitModeAll,
	}
}
