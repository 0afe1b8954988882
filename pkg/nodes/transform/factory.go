package transform

import (
	"context"

	"github.com/flowlinehq/flowline/pkg/protocol"
)

type TransformNodeFactory struct{}

func NewTransformNodeFactory() protocol.NodeFactory {
	return &TransformNodeFactory{}
}

func (f *TransformNodeFactory) ID() string {
	return "transform"
}

func (f *TransformNodeFactory) Name() string {
	return "Transform"
}

func (f *TransformNodeFactory) Description() string {
	return "Reshapes execution data using a Go template expression"
}

func (f *TransformNodeFactory) Create(_ context.Context, id string, config map[string]any) (protocol.Node, error) {
	return NewTransformNode(id, config)
}

func (f *TransformNodeFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"expression": map[string]any{
				"type":        "string",
				"description": "Template expression producing the transformed value; JSON output is decoded into structured data",
				"examples": []string{
					`{"order_id": "{{.trigger_data.id}}", "total": {{.nodes.pricing.success.total}}}`,
					"{{.nodes.fetch.success.body}}",
				},
			},
		},
		"required": []string{"expression"},
	}
}
