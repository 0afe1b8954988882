package switchnode

import (
	"context"

	"github.com/flowlinehq/flowline/pkg/protocol"
)

type SwitchNodeFactory struct{}

func NewSwitchNodeFactory() protocol.NodeFactory {
	return &SwitchNodeFactory{}
}

func (f *SwitchNodeFactory) ID() string {
	return "switch"
}

func (f *SwitchNodeFactory) Name() string {
	return "Switch"
}

func (f *SwitchNodeFactory) Description() string {
	return "Routes execution to one of several named paths based on a templated value"
}

func (f *SwitchNodeFactory) Create(_ context.Context, id string, config map[string]any) (protocol.Node, error) {
	return NewSwitchNode(id, config)
}

func (f *SwitchNodeFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"value": map[string]any{
				"type":        "string",
				"description": "Template expression producing the value to match against cases",
				"examples": []string{
					"{{.trigger_data.environment}}",
					"{{.nodes.classify.main.category}}",
				},
			},
			"cases": map[string]any{
				"type":        "object",
				"description": "Map of matched value to output port name",
				"additionalProperties": map[string]any{
					"type": "string",
				},
				"examples": []map[string]any{
					{"production": "prod", "staging": "stage"},
				},
			},
		},
		"required": []string{"value", "cases"},
	}
}
