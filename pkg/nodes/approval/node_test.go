package approval

import (
	"context"
	"testing"

	"github.com/flowlinehq/flowline/pkg/models"
	"github.com/flowlinehq/flowline/pkg/protocol"
)

func newExecutionContext(variables map[string]any) *models.ExecutionContext {
	ectx := models.NewExecutionContext("approval-test", "workflow-1", "", "trigger", nil, models.ExecutionOptions{})
	ectx.Variables = variables

	return ectx
}

func TestApprovalNodeRaisesIntervention(t *testing.T) {
	node, err := NewApprovalNode("gate", map[string]any{
		"prompt":     "Deploy {{.variables.service}} to production?",
		"timeout_ms": float64(60000),
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	outputs, err := node.Execute(context.Background(), newExecutionContext(map[string]any{"service": "billing"}), nil)
	if outputs != nil {
		t.Fatalf("expected no outputs, got %v", outputs)
	}

	needed, ok := protocol.AsInterventionNeeded(err)
	if !ok {
		t.Fatalf("expected InterventionNeeded error, got %v", err)
	}

	if needed.Prompt != "Deploy billing to production?" {
		t.Errorf("expected rendered prompt, got %q", needed.Prompt)
	}

	if needed.Type != models.InterventionTypeApproval {
		t.Errorf("expected approval type, got %s", needed.Type)
	}

	if needed.TimeoutMs != 60000 {
		t.Errorf("expected timeout 60000, got %d", needed.TimeoutMs)
	}
}

func TestApprovalNodeDefaultsTimeout(t *testing.T) {
	node, err := NewApprovalNode("gate", map[string]any{
		"prompt": "Proceed?",
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	_, err = node.Execute(context.Background(), newExecutionContext(nil), nil)

	needed, ok := protocol.AsInterventionNeeded(err)
	if !ok {
		t.Fatalf("expected InterventionNeeded error, got %v", err)
	}

	if needed.TimeoutMs != DefaultTimeoutMs {
		t.Errorf("expected default timeout, got %d", needed.TimeoutMs)
	}
}

func TestApprovalNodeChoiceCarriesChoices(t *testing.T) {
	node, err := NewApprovalNode("gate", map[string]any{
		"prompt":  "Pick a region",
		"type":    "choice",
		"choices": []any{"us-east", "eu-west"},
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	_, err = node.Execute(context.Background(), newExecutionContext(nil), nil)

	needed, ok := protocol.AsInterventionNeeded(err)
	if !ok {
		t.Fatalf("expected InterventionNeeded error, got %v", err)
	}

	if len(needed.Choices) != 2 || needed.Choices[0] != "us-east" {
		t.Errorf("expected choices carried through, got %v", needed.Choices)
	}
}

func TestApprovalNodeRequiresPrompt(t *testing.T) {
	_, err := NewApprovalNode("gate", map[string]any{})
	if err == nil {
		t.Fatal("expected error for missing prompt")
	}
}

func TestApprovalNodeChoiceRequiresChoices(t *testing.T) {
	_, err := NewApprovalNode("gate", map[string]any{
		"prompt": "Pick one",
		"type":   "choice",
	})
	if err == nil {
		t.Fatal("expected error for choice type without choices")
	}
}

func TestApprovalNodeRejectsNonPositiveTimeout(t *testing.T) {
	_, err := NewApprovalNode("gate", map[string]any{
		"prompt":     "Proceed?",
		"timeout_ms": float64(0),
	})
	if err == nil {
		t.Fatal("expected error for non-positive timeout")
	}
}
