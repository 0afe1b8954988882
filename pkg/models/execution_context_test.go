package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewExecutionContextDefaults(t *testing.T) {
	ectx := NewExecutionContext("exec-1", "wf-1", "user-1", "trigger",
		map[string]any{"source": "test"}, ExecutionOptions{Isolated: true})

	assert.Equal(t, "exec-1", ectx.ID)
	assert.Equal(t, "wf-1", ectx.WorkflowID)
	assert.Equal(t, ExecutionStatusRunning, ectx.Status)
	assert.True(t, ectx.Isolated)
	assert.False(t, ectx.StartedAt.IsZero())

	assert.Equal(t, DefaultMaxConcurrency, ectx.Options.MaxConcurrency)
	assert.Equal(t, DefaultMaxLoopIterations, ectx.Options.MaxLoopIterations)
	assert.Equal(t, int64(DefaultTimeoutMs), ectx.Options.TimeoutMs)
}

func TestNormalizedKeepsExplicitValues(t *testing.T) {
	options := ExecutionOptions{MaxConcurrency: 2, MaxLoopIterations: 10, TimeoutMs: 1000}

	normalized := options.Normalized()

	assert.Equal(t, 2, normalized.MaxConcurrency)
	assert.Equal(t, 10, normalized.MaxLoopIterations)
	assert.Equal(t, int64(1000), normalized.TimeoutMs)
}

func TestPushStateNumbersIterations(t *testing.T) {
	ectx := NewExecutionContext("exec-1", "wf-1", "", "trigger", nil, ExecutionOptions{})

	first := ectx.PushState("loop")
	assert.Equal(t, 0, first.Iteration)
	assert.Equal(t, NodeStatusPending, first.Status)

	first.Status = NodeStatusSuccess

	second := ectx.PushState("loop")
	assert.Equal(t, 1, second.Iteration)
	assert.Equal(t, 2, ectx.IterationCount("loop"))

	current, ok := ectx.CurrentState("loop")
	require.True(t, ok)
	assert.Same(t, second, current)

	_, ok = ectx.CurrentState("never-ran")
	assert.False(t, ok)
}

func TestRecordOutputAndOutputOn(t *testing.T) {
	ectx := NewExecutionContext("exec-1", "wf-1", "", "trigger", nil, ExecutionOptions{})

	ectx.RecordOutput("fetch", map[string]NodeResult{
		"success": {NodeID: "fetch", Data: map[string]any{"status_code": 200}, Status: string(NodeStatusSuccess)},
	})

	result, ok := ectx.OutputOn("fetch", "success")
	require.True(t, ok)
	assert.Equal(t, map[string]any{"status_code": 200}, result.Data)

	_, ok = ectx.OutputOn("fetch", "error")
	assert.False(t, ok)

	_, ok = ectx.OutputOn("missing", "success")
	assert.False(t, ok)
}

func TestCompletedNodesCountsTerminalStates(t *testing.T) {
	ectx := NewExecutionContext("exec-1", "wf-1", "", "trigger", nil, ExecutionOptions{})

	done := ectx.PushState("a")
	done.Status = NodeStatusSuccess

	skipped := ectx.PushState("b")
	skipped.Status = NodeStatusSkipped

	ectx.PushState("c") // still pending

	running := ectx.PushState("d")
	running.Status = NodeStatusRunning

	assert.Equal(t, 2, ectx.CompletedNodes())
}

func TestExecutionStatusTerminal(t *testing.T) {
	terminal := []ExecutionStatus{
		ExecutionStatusSuccess,
		ExecutionStatusError,
		ExecutionStatusCancelled,
		ExecutionStatusTimeout,
	}
	for _, status := range terminal {
		assert.True(t, status.Terminal(), string(status))
	}

	assert.False(t, ExecutionStatusRunning.Terminal())
	assert.False(t, ExecutionStatusPaused.Terminal())
}
