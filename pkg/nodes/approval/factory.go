package approval

import (
	"context"

	"github.com/flowlinehq/flowline/pkg/protocol"
)

type ApprovalNodeFactory struct{}

func NewApprovalNodeFactory() protocol.NodeFactory {
	return &ApprovalNodeFactory{}
}

func (f *ApprovalNodeFactory) ID() string {
	return "approval"
}

func (f *ApprovalNodeFactory) Name() string {
	return "Manual Approval"
}

func (f *ApprovalNodeFactory) Description() string {
	return "Pauses the execution until a human approves, denies, or the gate times out"
}

func (f *ApprovalNodeFactory) Create(_ context.Context, id string, config map[string]any) (protocol.Node, error) {
	return NewApprovalNode(id, config)
}

func (f *ApprovalNodeFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"prompt": map[string]any{
				"type":        "string",
				"description": "Question presented to the human; supports templating",
				"examples": []string{
					"Deploy {{.variables.service}} to production?",
				},
			},
			"type": map[string]any{
				"type":        "string",
				"description": "Kind of intervention requested",
				"default":     "approval",
				"enum":        []string{"approval", "input", "choice"},
			},
			"choices": map[string]any{
				"type":        "array",
				"description": "Allowed answers for choice interventions",
				"items":       map[string]any{"type": "string"},
			},
			"required_role": map[string]any{
				"type":        "string",
				"description": "Role the responding actor must hold",
			},
			"timeout_ms": map[string]any{
				"type":        "number",
				"description": "Gate expiry in milliseconds; an expired gate cancels the execution",
				"minimum":     1,
			},
		},
		"required": []string{"prompt"},
	}
}
