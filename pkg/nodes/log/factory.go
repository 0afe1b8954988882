package log

import (
	"context"

	"github.com/flowlinehq/flowline/pkg/protocol"
)

type LogNodeFactory struct{}

func NewLogNodeFactory() protocol.NodeFactory {
	return &LogNodeFactory{}
}

func (f *LogNodeFactory) ID() string {
	return "log"
}

func (f *LogNodeFactory) Name() string {
	return "Log"
}

func (f *LogNodeFactory) Description() string {
	return "Writes a templated message to the structured log"
}

func (f *LogNodeFactory) Create(_ context.Context, id string, config map[string]any) (protocol.Node, error) {
	return NewLogNode(id, config)
}

func (f *LogNodeFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"message": map[string]any{
				"type":        "string",
				"description": "Message to log; supports templating against the execution context",
				"examples": []string{
					"Order {{.trigger_data.order_id}} processed",
				},
			},
			"level": map[string]any{
				"type":        "string",
				"description": "Log level",
				"default":     LevelInfo,
				"enum":        []string{LevelDebug, LevelInfo, LevelWarn, LevelError},
			},
		},
		"required": []string{"message"},
	}
}
