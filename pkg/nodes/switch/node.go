// Package switchnode provides multi-way switch node implementation for workflow graph execution.
package switchnode

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/flowlinehq/flowline/pkg/models"
	"github.com/flowlinehq/flowline/pkg/template"
)

const (
	OutputPortDefault = "default"
	OutputPortError   = "error"
	InputPortMain     = "main"
)

// SwitchNode routes execution to one of several output ports based on a
// templated value. Each case maps a matched value to a port name; unmatched
// values fall through to the default port.
type SwitchNode struct {
	id    string
	value string
	cases map[string]string // matched value -> output port
}

func NewSwitchNode(id string, config map[string]any) (*SwitchNode, error) {
	value, ok := config["value"].(string)
	if !ok {
		return nil, errors.New("missing required field 'value'")
	}

	casesAny, ok := config["cases"].(map[string]any)
	if !ok || len(casesAny) == 0 {
		return nil, errors.New("missing required field 'cases'")
	}

	cases := make(map[string]string, len(casesAny))

	for matched, portAny := range casesAny {
		port, ok := portAny.(string)
		if !ok || port == "" {
			return nil, fmt.Errorf("case %q must map to an output port name", matched)
		}

		cases[matched] = port
	}

	return &SwitchNode{id: id, value: value, cases: cases}, nil
}

func (n *SwitchNode) ID() string {
	return n.id
}

func (n *SwitchNode) Type() string {
	return "switch"
}

// Execute evaluates the value expression and emits on the matching case port.
func (n *SwitchNode) Execute(_ context.Context, executionCtx *models.ExecutionContext, _ map[string]models.NodeResult) (map[string]models.NodeResult, error) {
	evaluated, err := template.RenderWithContext(n.value, executionCtx)
	if err != nil {
		message := fmt.Sprintf("switch value evaluation failed: %v", err)

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

	matched := fmt.Sprintf("%v", evaluated)

	port, ok := n.cases[matched]
	if !ok {
		port = OutputPortDefault
	}

	return map[string]models.NodeResult{
		port: {
			NodeID: n.id,
			Data: map[string]any{
				"matched_value": matched,
				"matched_case":  ok,
			},
			Status:    string(models.NodeStatusSuccess),
			Timestamp: time.Now().UTC(),
		},
	}, nil
}

func (n *SwitchNode) GetInputPorts() []models.InputPort {
	return []models.InputPort{
		{
			Port: models.Port{
				ID:          models.MakePortID(n.id, InputPortMain),
				NodeID:      n.id,
				Name:        InputPortMain,
				Description: "Main input for triggering the switch evaluation",
			},
		},
	}
}

func (n *SwitchNode) GetOutputPorts() []models.OutputPort {
	seen := map[string]bool{}
	ports := make([]models.OutputPort, 0, len(n.cases)+2)

	for _, portName := range n.cases {
		if seen[portName] {
			continue
		}

		seen[portName] = true
		ports = append(ports, models.OutputPort{
			Port: models.Port{
				ID:          models.MakePortID(n.id, portName),
				NodeID:      n.id,
				Name:        portName,
				Description: "Execution path for a matched case",
			},
		})
	}

	ports = append(ports,
		models.OutputPort{
			Port: models.Port{
				ID:          models.MakePortID(n.id, OutputPortDefault),
				NodeID:      n.id,
				Name:        OutputPortDefault,
				Description: "Execution path when no case matches",
			},
		},
		models.OutputPort{
			Port: models.Port{
				ID:          models.MakePortID(n.id, OutputPortError),
				NodeID:      n.id,
				Name:        OutputPortError,
				Description: "Error information when the value evaluation fails",
			},
		},
	)

	return ports
}

func (n *SwitchNode) InputRequirements() models.InputRequirements {
	return models.InputRequirements{
		RequiredPorts: []string{InputPortMain},
		OptionalPorts: []string{},
		WaitMode:      models.WaitModeAll,
	}
}
