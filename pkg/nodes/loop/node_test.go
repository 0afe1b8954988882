package loop

import (
	"context"
	"testing"

	"github.com/flowlinehq/flowline/pkg/models"
)

func contextAtIteration(iteration int, variables map[string]any) *models.ExecutionContext {
	ectx := models.NewExecutionContext("loop-test", "workflow-1", "", "trigger", nil, models.ExecutionOptions{})
	ectx.Variables = variables

	for range iteration {
		ectx.PushState("lp")
	}

	return ectx
}

func TestLoopNodeEmitsNextWithinIterationLimit(t *testing.T) {
	node, err := NewLoopNode("lp", map[string]any{
		"iterations": float64(3),
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	for iteration := 1; iteration <= 3; iteration++ {
		outputs, err := node.Execute(context.Background(), contextAtIteration(iteration, nil), nil)
		if err != nil {
			t.Fatalf("iteration %d: expected no error, got %v", iteration, err)
		}

		result, ok := outputs[OutputPortNext]
		if !ok {
			t.Fatalf("iteration %d: expected output on next port, got %v", iteration, outputs)
		}

		if result.Data["iteration"] != iteration {
			t.Errorf("iteration %d: expected iteration in data, got %v", iteration, result.Data["iteration"])
		}
	}
}

func TestLoopNodeEmitsDoneAfterIterationLimit(t *testing.T) {
	node, err := NewLoopNode("lp", map[string]any{
		"iterations": float64(3),
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	outputs, err := node.Execute(context.Background(), contextAtIteration(4, nil), nil)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if _, ok := outputs[OutputPortDone]; !ok {
		t.Fatalf("expected output on done port, got %v", outputs)
	}
}

func TestLoopNodeConditionControlsContinuation(t *testing.T) {
	node, err := NewLoopNode("lp", map[string]any{
		"condition": "{{.variables.keep_going}}",
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	outputs, err := node.Execute(context.Background(), contextAtIteration(1, map[string]any{"keep_going": true}), nil)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if _, ok := outputs[OutputPortNext]; !ok {
		t.Fatalf("expected next while condition holds, got %v", outputs)
	}

	outputs, err = node.Execute(context.Background(), contextAtIteration(2, map[string]any{"keep_going": false}), nil)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if _, ok := outputs[OutputPortDone]; !ok {
		t.Fatalf("expected done once condition fails, got %v", outputs)
	}
}

func TestLoopNodeConditionErrorFailsNode(t *testing.T) {
	node, err := NewLoopNode("lp", map[string]any{
		"condition": "{{call .variables.missing}}",
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	_, err = node.Execute(context.Background(), contextAtIteration(1, map[string]any{}), nil)
	if err == nil {
		t.Fatal("expected error for failing condition evaluation")
	}
}

func TestLoopNodeIsReentrant(t *testing.T) {
	node, err := NewLoopNode("lp", map[string]any{
		"iterations": float64(1),
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if !node.Reentrant() {
		t.Error("expected loop node to be reentrant")
	}
}

func TestLoopNodeRequiresConditionOrIterations(t *testing.T) {
	_, err := NewLoopNode("lp", map[string]any{})
	if err == nil {
		t.Fatal("expected error when neither condition nor iterations configured")
	}
}
