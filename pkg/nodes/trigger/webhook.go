package trigger

import (
	"context"
	"errors"
	"time"

	"github.com/flowlinehq/flowline/pkg/models"
)

// WebhookTriggerNode starts an execution from an inbound HTTP callback. The
// webhook receiver validates the request and hands the body over as trigger
// data; the node surfaces it downstream together with routing metadata.
type WebhookTriggerNode struct {
	id   string
	path string
}

func NewWebhookTriggerNode(id string, config map[string]any) (*WebhookTriggerNode, error) {
	path, ok := config["path"].(string)
	if !ok || path == "" {
		return nil, errors.New("missing required field 'path'")
	}

	return &WebhookTriggerNode{id: id, path: path}, nil
}

func (n *WebhookTriggerNode) ID() string {
	return n.id
}

func (n *WebhookTriggerNode) Type() string {
	return models.NodeTypeTriggerWebhook
}

func (n *WebhookTriggerNode) Execute(_ context.Context, executionCtx *models.ExecutionContext, _ map[string]models.NodeResult) (map[string]models.NodeResult, error) {
	data := map[string]any{
		"path": n.path,
	}

	for key, value := range executionCtx.TriggerData {
		data[key] = value
	}

	return map[string]models.NodeResult{
		OutputPortMain: {
			NodeID:    n.id,
			Data:      data,
			Status:    string(models.NodeStatusSuccess),
			Timestamp: time.Now().UTC(),
		},
	}, nil
}

func (n *WebhookTriggerNode) GetInputPorts() []models.InputPort {
	return nil
}

func (n *WebhookTriggerNode) GetOutputPorts() []models.OutputPort {
	return []models.OutputPort{
		{
			Port: models.Port{
				ID:          models.MakePortID(n.id, OutputPortMain),
				NodeID:      n.id,
				Name:        OutputPortMain,
				Description: "Webhook request body and routing metadata",
			},
		},
	}
}
