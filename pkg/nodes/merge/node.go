// Package merge provides merge node implementation for joining multiple execution paths.
package merge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/flowlinehq/flowline/pkg/models"
)

const (
	OutputPortMerged = "merged"
	MergeModeAll     = "all"
	MergeModeAny     = "any"
	MergeModeFirst   = "first"
)

// MergeNode joins multiple execution paths into one. The executor handles the
// input coordination according to InputRequirements; the node combines whatever
// inputs arrive into a single merged payload.
type MergeNode struct {
	id         string
	inputPorts []string
	mergeMode  string
}

func NewMergeNode(id string, config map[string]any) (*MergeNode, error) {
	inputPortsAny, ok := config["input_ports"].([]any)
	if !ok {
		return nil, errors.New("missing required field 'input_ports'")
	}

	if len(inputPortsAny) < 2 {
		return nil, errors.New("merge node requires at least 2 input ports")
	}

	inputPorts := make([]string, len(inputPortsAny))

	for i, port := range inputPortsAny {
		portStr, ok := port.(string)
		if !ok {
			return nil, fmt.Errorf("input_port %d must be a string", i)
		}

		inputPorts[i] = portStr
	}

	mergeMode := MergeModeAll
	if mode, ok := config["merge_mode"].(string); ok {
		mergeMode = mode
	}

	switch mergeMode {
	case MergeModeAll, MergeModeAny, MergeModeFirst:
	default:
		return nil, fmt.Errorf("invalid merge_mode: %s (must be 'all', 'any', or 'first')", mergeMode)
	}

	return &MergeNode{
		id:         id,
		inputPorts: inputPorts,
		mergeMode:  mergeMode,
	}, nil
}

func (n *MergeNode) ID() string {
	return n.id
}

func (n *MergeNode) Type() string {
	return "merge"
}

// InputRequirements maps the merge mode onto the executor's wait semantics.
func (n *MergeNode) InputRequirements() models.InputRequirements {
	waitMode := models.WaitModeAll

	switch n.mergeMode {
	case MergeModeAny:
		waitMode = models.WaitModeAny
	case MergeModeFirst:
		waitMode = models.WaitModeFirst
	}

	return models.InputRequirements{
		RequiredPorts: n.inputPorts,
		OptionalPorts: []string{},
		WaitMode:      waitMode,
	}
}

// Execute combines the inputs the executor delivered into a single payload.
func (n *MergeNode) Execute(_ context.Context, _ *models.ExecutionContext, inputs map[string]models.NodeResult) (map[string]models.NodeResult, error) {
	mergedData := make(map[string]any)
	inputsReceived := make([]string, 0, len(inputs))

	for _, portName := range n.inputPorts {
		result, ok := inputs[portName]
		if !ok {
			continue
		}

		mergedData[portName] = result.Data
		inputsReceived = append(inputsReceived, portName)
	}

	if n.mergeMode == MergeModeFirst && len(inputsReceived) > 1 {
		firstPort := inputsReceived[0]
		mergedData = map[string]any{firstPort: mergedData[firstPort]}
		inputsReceived = []string{firstPort}
	}

	return map[string]models.NodeResult{
		OutputPortMerged: {
			NodeID: n.id,
			Data: map[string]any{
				"merged_inputs":   mergedData,
				"inputs_received": inputsReceived,
				"merge_mode":      n.mergeMode,
			},
			Status:    string(models.NodeStatusSuccess),
			Timestamp: time.Now().UTC(),
		},
	}, nil
}

// GetInputPorts returns the input ports, which are dynamic per configuration.
func (n *MergeNode) GetInputPorts() []models.InputPort {
	ports := make([]models.InputPort, 0, len(n.inputPorts))

	for _, port := range n.inputPorts {
		ports = append(ports, models.InputPort{
			Port: models.Port{
				ID:          models.MakePortID(n.id, port),
				NodeID:      n.id,
				Name:        port,
				Description: fmt.Sprintf("Input from execution path '%s'", port),
			},
		})
	}

	return ports
}

func (n *MergeNode) GetOutputPorts() []models.OutputPort {
	return []models.OutputPort{
		{
			Port: models.Port{
				ID:          models.MakePortID(n.id, OutputPortMerged),
				NodeID:      n.id,
				Name:        OutputPortMerged,
				Description: "Combined data from the merged execution paths",
				Schema: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"merged_inputs":   map[string]any{"type": "object"},
						"inputs_received": map[string]any{"type": "array"},
						"merge_mode":      map[string]any{"type": "string"},
					},
				},
			},
		},
	}
}
