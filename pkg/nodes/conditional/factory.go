// Package conditional provides conditional branching node factory for registry integration.
package conditional

import (
	"context"

	"github.com/flowlinehq/flowline/pkg/protocol"
)

// ConditionalNodeFactory creates ConditionalNode instances.
type ConditionalNodeFactory struct{}

func NewConditionalNodeFactory() protocol.NodeFactory {
	return &ConditionalNodeFactory{}
}

func (f *ConditionalNodeFactory) Create(_ context.Context, id string, config map[string]any) (protocol.Node, error) {
	return NewConditionalNode(id, config)
}

func (f *ConditionalNodeFactory) ID() string {
	return "conditional"
}

func (f *ConditionalNodeFactory) Name() string {
	return "Conditional"
}

func (f *ConditionalNodeFactory) Description() string {
	return "Evaluates a condition and routes execution to the true or false path."
}

func (f *ConditionalNodeFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"condition": map[string]any{
				"type":        "string",
				"description": "Condition expression to evaluate. Supports templating over node outputs, variables and trigger data.",
				"examples": []string{
					`{{.variables.environment}}`,
					`{{gt .variables.count 10}}`,
					`{{.trigger_data.action}}`,
					`true`,
				},
			},
		},
		"required": []string{"condition"},
	}
}
