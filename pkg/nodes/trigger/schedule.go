package trigger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/flowlinehq/flowline/pkg/models"
)

// ScheduleTriggerNode starts executions on a cron schedule. The schedule
// trigger source fires the executions; the node validates the expression and
// surfaces the tick time downstream.
type ScheduleTriggerNode struct {
	id       string
	cronExpr string
}

func NewScheduleTriggerNode(id string, config map[string]any) (*ScheduleTriggerNode, error) {
	cronExpr, ok := config["cron"].(string)
	if !ok || cronExpr == "" {
		return nil, errors.New("missing required field 'cron'")
	}

	_, err := cron.ParseStandard(cronExpr)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression %q: %w", cronExpr, err)
	}

	return &ScheduleTriggerNode{id: id, cronExpr: cronExpr}, nil
}

func (n *ScheduleTriggerNode) ID() string {
	return n.id
}

func (n *ScheduleTriggerNode) Type() string {
	return models.NodeTypeTriggerSchedule
}

// CronExpression returns the validated schedule of this trigger.
func (n *ScheduleTriggerNode) CronExpression() string {
	return n.cronExpr
}

func (n *ScheduleTriggerNode) Execute(_ context.Context, executionCtx *models.ExecutionContext, _ map[string]models.NodeResult) (map[string]models.NodeResult, error) {
	now := time.Now().UTC()

	data := map[string]any{
		"cron":     n.cronExpr,
		"fired_at": now.Format(time.RFC3339),
	}

	for key, value := range executionCtx.TriggerData {
		data[key] = value
	}

	return map[string]models.NodeResult{
		OutputPortMain: {
			NodeID:    n.id,
			Data:      data,
			Status:    string(models.NodeStatusSuccess),
			Timestamp: now,
		},
	}, nil
}

func (n *ScheduleTriggerNode) GetInputPorts() []models.InputPort {
	return nil
}

func (n *ScheduleTriggerNode) GetOutputPorts() []models.OutputPort {
	return []models.OutputPort{
		{
			Port: models.Port{
				ID:          models.MakePortID(n.id, OutputPortMain),
				NodeID:      n.id,
				Name:        OutputPortMain,
				Description: "Schedule tick metadata",
			},
		},
	}
}
