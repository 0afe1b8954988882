// Package trigger provides the trigger node implementations that start a
// graph walk. A trigger node's Execute simply forwards the trigger payload
// onto its main output port; the decision to start the execution was made by
// the dispatcher before the walk began.
package trigger

import (
	"context"
	"time"

	"github.com/flowlinehq/flowline/pkg/models"
)

const (
	OutputPortMain = "main"
)

// ManualTriggerNode starts an execution on an explicit user request.
type ManualTriggerNode struct {
	id string
}

func NewManualTriggerNode(id string, _ map[string]any) (*ManualTriggerNode, error) {
	return &ManualTriggerNode{id: id}, nil
}

func (n *ManualTriggerNode) ID() string {
	return n.id
}

func (n *ManualTriggerNode) Type() string {
	return models.NodeTypeTriggerManual
}

// Execute forwards the trigger payload downstream.
func (n *ManualTriggerNode) Execute(_ context.Context, executionCtx *models.ExecutionContext, _ map[string]models.NodeResult) (map[string]models.NodeResult, error) {
	data := executionCtx.TriggerData
	if data == nil {
		data = map[string]any{}
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

func (n *ManualTriggerNode) GetInputPorts() []models.InputPort {
	return nil
}

func (n *ManualTriggerNode) GetOutputPorts() []models.OutputPort {
	return []models.OutputPort{
		{
			Port: models.Port{
				ID:          models.MakePortID(n.id, OutputPortMain),
				NodeID:      n.id,
				Name:        OutputPortMain,
				Description: "Trigger payload supplied by the caller",
			},
		},
	}
}
