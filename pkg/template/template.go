// Package template provides templating functionality for dynamic node configuration.
package template

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/template"
	"time"

	"github.com/flowlinehq/flowline/pkg/models"
)

// RenderWithContext renders an expression against the live execution context.
// Node outputs are addressable by node id, e.g. {{.nodes.httpCall.main.data.status}}.
func RenderWithContext(input string, executionCtx *models.ExecutionContext) (any, error) {
	data := map[string]any{
		"nodes":        nodeOutputView(executionCtx),
		"variables":    executionCtx.Variables,
		"vars":         executionCtx.Variables,
		"trigger_data": executionCtx.TriggerData,
		"env":          getEnvVars(),
		"execution": map[string]any{
			"id":          executionCtx.ID,
			"workflow_id": executionCtx.WorkflowID,
		},
	}

	return Render(input, data)
}

// nodeOutputView flattens the last produced outputs into nested maps so that
// templates can reach into them by name.
func nodeOutputView(executionCtx *models.ExecutionContext) map[string]any {
	view := make(map[string]any, len(executionCtx.NodeOutputs))

	for nodeID, outputs := range executionCtx.NodeOutputs {
		ports := make(map[string]any, len(outputs))
		for portName, result := range outputs {
			ports[portName] = map[string]any{
				"data":   result.Data,
				"status": result.Status,
			}
		}

		view[nodeID] = ports
	}

	return view
}

func Render(templateStr string, data any) (any, error) {
	tmpl, err := template.
		New("render").
		Funcs(template.FuncMap{
			"now": func() string {
				return time.Now().UTC().Format(time.RFC3339)
			},
		}).Parse(templateStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse template '%s': %w", templateStr, err)
	}

	var buf strings.Builder

	err = tmpl.Execute(&buf, data)
	if err != nil {
		return nil, fmt.Errorf("failed to execute template '%s': %w", templateStr, err)
	}

	result := strings.TrimSpace(buf.String())

	// Try to parse as JSON if it looks like JSON
	if (strings.HasPrefix(result, "{") && strings.HasSuffix(result, "}")) ||
		(strings.HasPrefix(result, "[") && strings.HasSuffix(result, "]")) {
		var jsonResult any

		err := json.Unmarshal([]byte(result), &jsonResult)
		if err == nil {
			return jsonResult, nil
		}
	}

	return result, nil
}

func getEnvVars() map[string]string {
	env := make(map[string]string)

	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			env[k] = v
		}
	}

	return env
}
