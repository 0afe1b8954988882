package trigger

import (
	"context"

	"github.com/flowlinehq/flowline/pkg/models"
	"github.com/flowlinehq/flowline/pkg/protocol"
)

// ManualTriggerNodeFactory creates ManualTriggerNode instances.
type ManualTriggerNodeFactory struct{}

func NewManualTriggerNodeFactory() protocol.NodeFactory {
	return &ManualTriggerNodeFactory{}
}

func (f *ManualTriggerNodeFactory) Create(_ context.Context, id string, config map[string]any) (protocol.Node, error) {
	return NewManualTriggerNode(id, config)
}

func (f *ManualTriggerNodeFactory) ID() string {
	return models.NodeTypeTriggerManual
}

func (f *ManualTriggerNodeFactory) Name() string {
	return "Manual Trigger"
}

func (f *ManualTriggerNodeFactory) Description() string {
	return "Starts an execution on an explicit user request."
}

func (f *ManualTriggerNodeFactory) Schema() map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": map[string]any{},
	}
}

// WebhookTriggerNodeFactory creates WebhookTriggerNode instances.
type WebhookTriggerNodeFactory struct{}

func NewWebhookTriggerNodeFactory() protocol.NodeFactory {
	return &WebhookTriggerNodeFactory{}
}

func (f *WebhookTriggerNodeFactory) Create(_ context.Context, id string, config map[string]any) (protocol.Node, error) {
	return NewWebhookTriggerNode(id, config)
}

func (f *WebhookTriggerNodeFactory) ID() string {
	return models.NodeTypeTriggerWebhook
}

func (f *WebhookTriggerNodeFactory) Name() string {
	return "Webhook Trigger"
}

func (f *WebhookTriggerNodeFactory) Description() string {
	return "Starts an execution from an inbound HTTP callback."
}

func (f *WebhookTriggerNodeFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path": map[string]any{
				"type":        "string",
				"description": "Webhook path this trigger listens on, e.g. /hooks/deploy",
			},
		},
		"required": []string{"path"},
	}
}

// ScheduleTriggerNodeFactory creates ScheduleTriggerNode instances.
type ScheduleTriggerNodeFactory struct{}

func NewScheduleTriggerNodeFactory() protocol.NodeFactory {
	return &ScheduleTriggerNodeFactory{}
}

func (f *ScheduleTriggerNodeFactory) Create(_ context.Context, id string, config map[string]any) (protocol.Node, error) {
	return NewScheduleTriggerNode(id, config)
}

func (f *ScheduleTriggerNodeFactory) ID() string {
	return models.NodeTypeTriggerSchedule
}

func (f *ScheduleTriggerNodeFactory) Name() string {
	return "Schedule Trigger"
}

func (f *ScheduleTriggerNodeFactory) Description() string {
	return "Starts executions on a cron schedule."
}

func (f *ScheduleTriggerNodeFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"cron": map[string]any{
				"type":        "string",
				"description": "Standard cron expression, e.g. */5 * * * *",
			},
		},
		"required": []string{"cron"},
	}
}
