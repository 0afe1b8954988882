package conditional

import (
	"context"
	"testing"

	"github.com/flowlinehq/flowline/pkg/models"
)

func contextWithVariables(variables map[string]any) *models.ExecutionContext {
	ectx := models.NewExecutionContext("exec-test", "wf-test", "", "trigger", nil, models.ExecutionOptions{})
	ectx.Variables = variables

	return ectx
}

func TestConditionalNodeExecuteTrue(t *testing.T) {
	node, err := NewConditionalNode("check", map[string]any{
		"condition": "{{.variables.enabled}}",
	})
	if err != nil {
		t.Fatalf("Failed to create node: %v", err)
	}

	ectx := contextWithVariables(map[string]any{"enabled": true})

	results, err := node.Execute(context.Background(), ectx, nil)
	if err != nil {
		t.Fatalf("Node execution failed: %v", err)
	}

	result, ok := results[OutputPortTrue]
	if !ok {
		t.Fatal("Expected true output port to be activated")
	}

	if result.Status != string(models.NodeStatusSuccess) {
		t.Errorf("Expected success status, got: %s", result.Status)
	}

	if _, ok := results[OutputPortFalse]; ok {
		t.Error("False output port should not be activated when condition is true")
	}
}

func TestConditionalNodeExecuteFalse(t *testing.T) {
	node, err := NewConditionalNode("check", map[string]any{"condition": "false"})
	if err != nil {
		t.Fatalf("Failed to create node: %v", err)
	}

	results, err := node.Execute(context.Background(), contextWithVariables(nil), nil)
	if err != nil {
		t.Fatalf("Node execution failed: %v", err)
	}

	if _, ok := results[OutputPortFalse]; !ok {
		t.Fatal("Expected false output port to be activated")
	}

	if _, ok := results[OutputPortTrue]; ok {
		t.Error("True output port should not be activated when condition is false")
	}
}

func TestConditionalNodeTemplateComparison(t *testing.T) {
	node, _ := NewConditionalNode("check", map[string]any{
		"condition": "{{gt .variables.count 10.0}}",
	})

	results, err := node.Execute(context.Background(), contextWithVariables(map[string]any{"count": 42.0}), nil)
	if err != nil {
		t.Fatalf("Node execution failed: %v", err)
	}

	if _, ok := results[OutputPortTrue]; !ok {
		t.Fatal("Expected true output port for count > 10")
	}
}

func TestConditionalNodeEvaluationError(t *testing.T) {
	node, _ := NewConditionalNode("check", map[string]any{
		"condition": "{{call .variables.missing}}",
	})

	results, err := node.Execute(context.Background(), contextWithVariables(nil), nil)
	if err != nil {
		t.Fatalf("Expected error to surface on the error port, got: %v", err)
	}

	result, ok := results[OutputPortError]
	if !ok {
		t.Fatal("Expected error output port to be activated")
	}

	if result.Error == "" {
		t.Error("Expected error message in result")
	}
}

func TestConditionalNodeMissingCondition(t *testing.T) {
	_, err := NewConditionalNode("check", map[string]any{})
	if err == nil {
		t.Fatal("Expected error for missing condition")
	}
}

func TestTruthy(t *testing.T) {
	cases := []struct {
		value any
		want  bool
	}{
		{true, true},
		{false, false},
		{"true", true},
		{"false", false},
		{"", false},
		{"anything", true},
		{0, false},
		{7, true},
		{0.0, false},
		{3.14, true},
		{nil, false},
		{[]any{1}, true},
		{[]any{}, false},
		{map[string]any{"k": 1}, true},
	}

	for _, tc := range cases {
		if got := truthy(tc.value); got != tc.want {
			t.Errorf("truthy(%v) = %v, want %v", tc.value, got, tc.want)
		}
	}
}
