package loop

import (
	"context"

	"github.com/flowlinehq/flowline/pkg/protocol"
)

type LoopNodeFactory struct{}

func NewLoopNodeFactory() protocol.NodeFactory {
	return &LoopNodeFactory{}
}

func (f *LoopNodeFactory) ID() string {
	return "loop"
}

func (f *LoopNodeFactory) Name() string {
	return "Loop"
}

func (f *LoopNodeFactory) Description() string {
	return "Repeats a section of the workflow while a condition holds or up to a fixed iteration count"
}

func (f *LoopNodeFactory) Create(_ context.Context, id string, config map[string]any) (protocol.Node, error) {
	return NewLoopNode(id, config)
}

func (f *LoopNodeFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"condition": map[string]any{
				"type":        "string",
				"description": "Template expression evaluated each iteration; the loop continues while it is truthy",
				"examples": []string{
					"{{lt .variables.processed .variables.total}}",
				},
			},
			"iterations": map[string]any{
				"type":        "number",
				"description": "Maximum number of iterations; the loop finishes after this many passes",
				"minimum":     1,
				"examples":    []float64{5},
			},
		},
		"anyOf": []map[string]any{
			{"required": []string{"condition"}},
			{"required": []string{"iterations"}},
		},
	}
}
