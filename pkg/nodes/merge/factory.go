package merge

import (
	"context"

	"github.com/flowlinehq/flowline/pkg/protocol"
)

type MergeNodeFactory struct{}

func NewMergeNodeFactory() protocol.NodeFactory {
	return &MergeNodeFactory{}
}

func (f *MergeNodeFactory) ID() string {
	return "merge"
}

func (f *MergeNodeFactory) Name() string {
	return "Merge"
}

func (f *MergeNodeFactory) Description() string {
	return "Joins multiple execution paths, combining their data into a single output"
}

func (f *MergeNodeFactory) Create(_ context.Context, id string, config map[string]any) (protocol.Node, error) {
	return NewMergeNode(id, config)
}

func (f *MergeNodeFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"input_ports": map[string]any{
				"type":        "array",
				"description": "Names of the input ports to coordinate, one per incoming path",
				"items":       map[string]any{"type": "string"},
				"minItems":    2,
				"examples": [][]string{
					{"left", "right"},
				},
			},
			"merge_mode": map[string]any{
				"type":        "string",
				"description": "Coordination mode: wait for all inputs, any input, or the first arrival only",
				"enum":        []string{MergeModeAll, MergeModeAny, MergeModeFirst},
				"default":     MergeModeAll,
			},
		},
		"required": []string{"input_ports"},
	}
}
