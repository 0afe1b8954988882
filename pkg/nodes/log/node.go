// Package log provides logging node implementation for workflow graph execution.
package log

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/flowlinehq/flowline/pkg/models"
	"github.com/flowlinehq/flowline/pkg/template"
)

const (
	OutputPortSuccess = "success"
	OutputPortError   = "error"
	InputPortMain     = "main"

	LevelDebug = "debug"
	LevelInfo  = "info"
	LevelWarn  = "warn"
	LevelError = "error"
)

// LogNode writes a templated message to the structured log at a configured
// level. Useful for tracing workflow progress without external side effects.
type LogNode struct {
	id      string
	message string
	level   string
	logger  *slog.Logger
}

func NewLogNode(id string, config map[string]any) (*LogNode, error) {
	message, ok := config["message"].(string)
	if !ok {
		return nil, errors.New("missing required field 'message'")
	}

	level := LevelInfo
	if lvl, ok := config["level"].(string); ok {
		level = lvl
	}

	switch level {
	case LevelDebug, LevelInfo, LevelWarn, LevelError:
	default:
		return nil, fmt.Errorf("invalid log level '%s' (must be debug, info, warn, or error)", level)
	}

	return &LogNode{
		id:      id,
		message: message,
		level:   level,
		logger:  slog.Default(),
	}, nil
}

// WithLogger replaces the destination logger, mainly for tests.
func (n *LogNode) WithLogger(logger *slog.Logger) *LogNode {
	n.logger = logger

	return n
}

func (n *LogNode) ID() string {
	return n.id
}

func (n *LogNode) Type() string {
	return "log"
}

// Execute renders the message template and logs it.
func (n *LogNode) Execute(ctx context.Context, executionCtx *models.ExecutionContext, _ map[string]models.NodeResult) (map[string]models.NodeResult, error) {
	renderedMessage, err := template.RenderWithContext(n.message, executionCtx)
	if err != nil {
		message := fmt.Sprintf("failed to render log message template: %v", err)

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

	message := fmt.Sprintf("%v", renderedMessage)
	logger := n.logger.With("node_id", n.id, "execution_id", executionCtx.ID)

	switch n.level {
	case LevelDebug:
		logger.DebugContext(ctx, message)
	case LevelWarn:
		logger.WarnContext(ctx, message)
	case LevelError:
		logger.ErrorContext(ctx, message)
	default:
		logger.InfoContext(ctx, message)
	}

	return map[string]models.NodeResult{
		OutputPortSuccess: {
			NodeID: n.id,
			Data: map[string]any{
				"message": message,
				"level":   n.level,
			},
			Status:    string(models.NodeStatusSuccess),
			Timestamp: time.Now().UTC(),
		},
	}, nil
}

func (n *LogNode) GetInputPorts() []models.InputPort {
	return []models.InputPort{
		{
			Port: models.Port{
				ID:          models.MakePortID(n.id, InputPortMain),
				NodeID:      n.id,
				Name:        InputPortMain,
				Description: "Main input for triggering the log operation",
			},
		},
	}
}

func (n *LogNode) GetOutputPorts() []models.OutputPort {
	return []models.OutputPort{
		{
			Port: models.Port{
				ID:          models.MakePortID(n.id, OutputPortSuccess),
				NodeID:      n.id,
				Name:        OutputPortSuccess,
				Description: "Logged message information",
				Schema: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"message": map[string]any{"type": "string"},
						"level":   map[string]any{"type": "string"},
					},
				},
			},
		},
		{
			Port: models.Port{
				ID:          models.MakePortID(n.id, OutputPortError),
				NodeID:      n.id,
				Name:        OutputPortError,
				Description: "Error information when message rendering fails",
			},
		},
	}
}

func (n *LogNode) InputRequirements() models.InputRequirements {
	return models.InputRequirements{
		RequiredPorts: []string{InputPortMain},
		OptionalPorts: []string{},
		WaitMode:      models.WaitModeAll,
	}
}
