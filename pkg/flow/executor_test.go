package flow

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowlinehq/flowline/pkg/eventbus"
	"github.com/flowlinehq/flowline/pkg/events"
	"github.com/flowlinehq/flowline/pkg/models"
	"github.com/flowlinehq/flowline/pkg/protocol"
	"github.com/flowlinehq/flowline/pkg/registry"
	"github.com/flowlinehq/flowline/pkg/statestore"
)

type stubNode struct {
	id           string
	nodeType     string
	execute      func(ctx context.Context, ectx *models.ExecutionContext, inputs map[string]models.NodeResult) (map[string]models.NodeResult, error)
	requirements *models.InputRequirements
	reentrant    bool
}

func (n *stubNode) ID() string   { return n.id }
func (n *stubNode) Type() string { return n.nodeType }

func (n *stubNode) Execute(ctx context.Context, ectx *models.ExecutionContext, inputs map[string]models.NodeResult) (map[string]models.NodeResult, error) {
	return n.execute(ctx, ectx, inputs)
}

func (n *stubNode) GetInputPorts() []models.InputPort   { return nil }
func (n *stubNode) GetOutputPorts() []models.OutputPort { return nil }

func (n *stubNode) InputRequirements() models.InputRequirements {
	if n.requirements != nil {
		return *n.requirements
	}

	return models.DefaultInputRequirements()
}

func (n *stubNode) Reentrant() bool { return n.reentrant }

type stubFactory struct {
	nodeType string
	build    func(id string, config map[string]any) *stubNode
}

func (f *stubFactory) Create(ctx context.Context, id string, config map[string]any) (protocol.Node, error) {
	node := f.build(id, config)
	node.id = id
	node.nodeType = f.nodeType

	return node, nil
}

func (f *stubFactory) ID() string             { return f.nodeType }
func (f *stubFactory) Name() string           { return f.nodeType }
func (f *stubFactory) Description() string    { return "" }
func (f *stubFactory) Schema() map[string]any { return nil }

type capturingPublisher struct {
	mu     sync.Mutex
	events []eventbus.Event
}

func (p *capturingPublisher) Publish(_ context.Context, _ string, event eventbus.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.events = append(p.events, event)

	return nil
}

func (p *capturingPublisher) ofType(eventType events.EventType) []eventbus.Event {
	p.mu.Lock()
	defer p.mu.Unlock()

	var matched []eventbus.Event

	for _, event := range p.events {
		if event.GetType() == eventType {
			matched = append(matched, event)
		}
	}

	return matched
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(testWriter{}, &slog.HandlerOptions{Level: slog.LevelError}))
}

type testWriter struct{}

func (testWriter) Write(p []byte) (int, error) { return len(p), nil }

func passthrough(port string) func(context.Context, *models.ExecutionContext, map[string]models.NodeResult) (map[string]models.NodeResult, error) {
	return func(_ context.Context, ectx *models.ExecutionContext, _ map[string]models.NodeResult) (map[string]models.NodeResult, error) {
		return map[string]models.NodeResult{
			port: {NodeID: "", Status: string(models.NodeStatusSuccess), Data: map[string]any{"ok": true}},
		}, nil
	}
}

func newTestRegistry(t *testing.T, factories ...*stubFactory) *registry.Registry {
	t.Helper()

	reg := registry.NewRegistry(testLogger())
	for _, factory := range factories {
		reg.RegisterNode(factory)
	}

	return reg
}

func node(id, nodeType string) *models.WorkflowNode {
	return &models.WorkflowNode{ID: id, Type: nodeType, Enabled: true}
}

func connect(id, sourceNode, sourcePort, targetNode, targetPort string) *models.Connection {
	return &models.Connection{
		ID:         id,
		SourcePort: models.MakePortID(sourceNode, sourcePort),
		TargetPort: models.MakePortID(targetNode, targetPort),
	}
}

func newContext(workflowID, triggerNodeID string, options models.ExecutionOptions) *models.ExecutionContext {
	return models.NewExecutionContext("exec-test1234", workflowID, "user-1", triggerNodeID, nil, options)
}

func TestExecutorLinearFlow(t *testing.T) {
	workflow := &models.Workflow{
		ID: "wf-linear",
		Nodes: []*models.WorkflowNode{
			node("trigger", "pass"),
			node("step-a", "pass"),
			node("step-b", "pass"),
		},
		Connections: []*models.Connection{
			connect("c1", "trigger", "main", "step-a", "main"),
			connect("c2", "step-a", "main", "step-b", "main"),
		},
	}

	reg := newTestRegistry(t, &stubFactory{nodeType: "pass", build: func(id string, _ map[string]any) *stubNode {
		return &stubNode{execute: passthrough("main")}
	}})

	publisher := &capturingPublisher{}
	executor := NewExecutor(reg, publisher, nil, testLogger())
	ectx := newContext(workflow.ID, "trigger", models.ExecutionOptions{})

	result, err := executor.Run(context.Background(), models.NewGraph(workflow), ectx)
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusSuccess, result.Status)
	assert.Equal(t, models.ExecutionStatusSuccess, ectx.Status)
	assert.Equal(t, []string{"trigger", "step-a", "step-b"}, ectx.Path)

	for _, nodeID := range []string{"trigger", "step-a", "step-b"} {
		state, ok := ectx.CurrentState(nodeID)
		require.True(t, ok, nodeID)
		assert.Equal(t, models.NodeStatusSuccess, state.Status)
	}

	assert.Len(t, publisher.ofType(events.NodeStartedEvent), 3)
	assert.Len(t, publisher.ofType(events.NodeCompletedEvent), 3)
	assert.Len(t, publisher.ofType(events.ExecutionProgressEvent), 3)
}

func TestExecutorBranchRoutesSelectedPortOnly(t *testing.T) {
	workflow := &models.Workflow{
		ID: "wf-branch",
		Nodes: []*models.WorkflowNode{
			node("trigger", "pass"),
			node("decide", "branch"),
			node("then", "pass"),
			node("else", "pass"),
		},
		Connections: []*models.Connection{
			connect("c1", "trigger", "main", "decide", "main"),
			connect("c2", "decide", "true", "then", "main"),
			connect("c3", "decide", "false", "else", "main"),
		},
	}

	reg := newTestRegistry(t,
		&stubFactory{nodeType: "pass", build: func(id string, _ map[string]any) *stubNode {
			return &stubNode{execute: passthrough("main")}
		}},
		&stubFactory{nodeType: "branch", build: func(id string, _ map[string]any) *stubNode {
			return &stubNode{execute: passthrough("true")}
		}},
	)

	executor := NewExecutor(reg, &capturingPublisher{}, nil, testLogger())
	ectx := newContext(workflow.ID, "trigger", models.ExecutionOptions{})

	result, err := executor.Run(context.Background(), models.NewGraph(workflow), ectx)
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusSuccess, result.Status)

	thenState, ok := ectx.CurrentState("then")
	require.True(t, ok)
	assert.Equal(t, models.NodeStatusSuccess, thenState.Status)

	// The unselected branch target was never scheduled and did not block
	// completion.
	_, scheduled := ectx.CurrentState("else")
	assert.False(t, scheduled)
}

func TestExecutorFailureStopsScheduling(t *testing.T) {
	workflow := &models.Workflow{
		ID: "wf-fail",
		Nodes: []*models.WorkflowNode{
			node("trigger", "pass"),
			node("boom", "fail"),
			node("after", "pass"),
		},
		Connections: []*models.Connection{
			connect("c1", "trigger", "main", "boom", "main"),
			connect("c2", "boom", "main", "after", "main"),
		},
	}

	wantErr := errors.New("upstream service unavailable")

	reg := newTestRegistry(t,
		&stubFactory{nodeType: "pass", build: func(id string, _ map[string]any) *stubNode {
			return &stubNode{execute: passthrough("main")}
		}},
		&stubFactory{nodeType: "fail", build: func(id string, _ map[string]any) *stubNode {
			return &stubNode{execute: func(context.Context, *models.ExecutionContext, map[string]models.NodeResult) (map[string]models.NodeResult, error) {
				return nil, wantErr
			}}
		}},
	)

	publisher := &capturingPublisher{}
	executor := NewExecutor(reg, publisher, nil, testLogger())
	ectx := newContext(workflow.ID, "trigger", models.ExecutionOptions{})

	result, err := executor.Run(context.Background(), models.NewGraph(workflow), ectx)
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusError, result.Status)
	assert.Equal(t, "boom", result.FailedNodeID)
	assert.ErrorIs(t, result.Err, wantErr)
	assert.Equal(t, wantErr.Error(), ectx.Error)

	_, scheduled := ectx.CurrentState("after")
	assert.False(t, scheduled)

	assert.Len(t, publisher.ofType(events.NodeFailedEvent), 1)
}

func TestExecutorContinueOnFailKeepsIndependentBranches(t *testing.T) {
	workflow := &models.Workflow{
		ID: "wf-continue",
		Nodes: []*models.WorkflowNode{
			node("trigger", "pass"),
			node("boom", "fail"),
			node("healthy", "pass"),
		},
		Connections: []*models.Connection{
			connect("c1", "trigger", "main", "boom", "main"),
			connect("c2", "trigger", "main", "healthy", "main"),
		},
	}

	reg := newTestRegistry(t,
		&stubFactory{nodeType: "pass", build: func(id string, _ map[string]any) *stubNode {
			return &stubNode{execute: passthrough("main")}
		}},
		&stubFactory{nodeType: "fail", build: func(id string, _ map[string]any) *stubNode {
			return &stubNode{execute: func(context.Context, *models.ExecutionContext, map[string]models.NodeResult) (map[string]models.NodeResult, error) {
				return nil, errors.New("still broken")
			}}
		}},
	)

	executor := NewExecutor(reg, &capturingPublisher{}, nil, testLogger())
	ectx := newContext(workflow.ID, "trigger", models.ExecutionOptions{ContinueOnFail: true})

	result, err := executor.Run(context.Background(), models.NewGraph(workflow), ectx)
	require.NoError(t, err)

	// The failure is absorbed; the run as a whole completes.
	assert.Equal(t, models.ExecutionStatusSuccess, result.Status)

	healthyState, ok := ectx.CurrentState("healthy")
	require.True(t, ok)
	assert.Equal(t, models.NodeStatusSuccess, healthyState.Status)

	boomState, ok := ectx.CurrentState("boom")
	require.True(t, ok)
	assert.Equal(t, models.NodeStatusFailed, boomState.Status)
}

func TestExecutorLoopIterationCap(t *testing.T) {
	// self-loop: trigger -> loop -> loop via the "next" port.
	workflow := &models.Workflow{
		ID: "wf-loop",
		Nodes: []*models.WorkflowNode{
			node("trigger", "pass"),
			node("repeat", "loop"),
		},
		Connections: []*models.Connection{
			connect("c1", "trigger", "main", "repeat", "main"),
			connect("c2", "repeat", "next", "repeat", "main"),
		},
	}

	reg := newTestRegistry(t,
		&stubFactory{nodeType: "pass", build: func(id string, _ map[string]any) *stubNode {
			return &stubNode{execute: passthrough("main")}
		}},
		&stubFactory{nodeType: "loop", build: func(id string, _ map[string]any) *stubNode {
			return &stubNode{reentrant: true, execute: passthrough("next")}
		}},
	)

	executor := NewExecutor(reg, &capturingPublisher{}, nil, testLogger())
	ectx := newContext(workflow.ID, "trigger", models.ExecutionOptions{MaxLoopIterations: 3})

	result, err := executor.Run(context.Background(), models.NewGraph(workflow), ectx)
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusError, result.Status)
	assert.ErrorIs(t, result.Err, ErrLoopLimitExceeded)
	assert.Equal(t, 3+1, ectx.IterationCount("repeat")) // 3 runs plus the capped instance
}

func TestExecutorReentrantLoopRunsPerIteration(t *testing.T) {
	workflow := &models.Workflow{
		ID: "wf-loop-bounded",
		Nodes: []*models.WorkflowNode{
			node("trigger", "pass"),
			node("repeat", "loop"),
			node("done", "pass"),
		},
		Connections: []*models.Connection{
			connect("c1", "trigger", "main", "repeat", "main"),
			connect("c2", "repeat", "next", "repeat", "main"),
			connect("c3", "repeat", "done", "done", "main"),
		},
	}

	reg := newTestRegistry(t,
		&stubFactory{nodeType: "pass", build: func(id string, _ map[string]any) *stubNode {
			return &stubNode{execute: passthrough("main")}
		}},
		&stubFactory{nodeType: "loop", build: func(id string, _ map[string]any) *stubNode {
			return &stubNode{reentrant: true, execute: func(_ context.Context, ectx *models.ExecutionContext, _ map[string]models.NodeResult) (map[string]models.NodeResult, error) {
				// Two passes through the body, then the exit port.
				if ectx.IterationCount("repeat") <= 2 {
					return map[string]models.NodeResult{"next": {Data: map[string]any{}}}, nil
				}

				return map[string]models.NodeResult{"done": {Data: map[string]any{}}}, nil
			}}
		}},
	)

	executor := NewExecutor(reg, &capturingPublisher{}, nil, testLogger())
	ectx := newContext(workflow.ID, "trigger", models.ExecutionOptions{})

	result, err := executor.Run(context.Background(), models.NewGraph(workflow), ectx)
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusSuccess, result.Status)
	assert.Equal(t, 3, ectx.IterationCount("repeat"))

	doneState, ok := ectx.CurrentState("done")
	require.True(t, ok)
	assert.Equal(t, models.NodeStatusSuccess, doneState.Status)
}

func TestExecutorMergeWaitsForAllPorts(t *testing.T) {
	workflow := &models.Workflow{
		ID: "wf-merge",
		Nodes: []*models.WorkflowNode{
			node("trigger", "pass"),
			node("left", "pass"),
			node("right", "pass"),
			node("merge", "merge"),
		},
		Connections: []*models.Connection{
			connect("c1", "trigger", "main", "left", "main"),
			connect("c2", "trigger", "main", "right", "main"),
			connect("c3", "left", "main", "merge", "left"),
			connect("c4", "right", "main", "merge", "right"),
		},
	}

	var mergeInputs map[string]models.NodeResult

	requirements := models.InputRequirements{
		RequiredPorts: []string{"left", "right"},
		WaitMode:      models.WaitModeAll,
	}

	reg := newTestRegistry(t,
		&stubFactory{nodeType: "pass", build: func(id string, _ map[string]any) *stubNode {
			return &stubNode{execute: passthrough("main")}
		}},
		&stubFactory{nodeType: "merge", build: func(id string, _ map[string]any) *stubNode {
			return &stubNode{requirements: &requirements, execute: func(_ context.Context, _ *models.ExecutionContext, inputs map[string]models.NodeResult) (map[string]models.NodeResult, error) {
				mergeInputs = inputs

				return map[string]models.NodeResult{"main": {Data: map[string]any{}}}, nil
			}}
		}},
	)

	executor := NewExecutor(reg, &capturingPublisher{}, nil, testLogger())
	ectx := newContext(workflow.ID, "trigger", models.ExecutionOptions{})

	result, err := executor.Run(context.Background(), models.NewGraph(workflow), ectx)
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusSuccess, result.Status)
	require.NotNil(t, mergeInputs)
	assert.Contains(t, mergeInputs, "left")
	assert.Contains(t, mergeInputs, "right")

	// The merge node ran exactly once despite two activations.
	assert.Equal(t, 1, ectx.IterationCount("merge"))
}

func TestExecutorDisabledNodeIsSkipped(t *testing.T) {
	disabled := node("off", "pass")
	disabled.Enabled = false

	workflow := &models.Workflow{
		ID: "wf-disabled",
		Nodes: []*models.WorkflowNode{
			node("trigger", "pass"),
			disabled,
			node("after", "pass"),
		},
		Connections: []*models.Connection{
			connect("c1", "trigger", "main", "off", "main"),
			connect("c2", "off", "main", "after", "main"),
		},
	}

	reg := newTestRegistry(t, &stubFactory{nodeType: "pass", build: func(id string, _ map[string]any) *stubNode {
		return &stubNode{execute: passthrough("main")}
	}})

	executor := NewExecutor(reg, &capturingPublisher{}, nil, testLogger())
	ectx := newContext(workflow.ID, "trigger", models.ExecutionOptions{})

	result, err := executor.Run(context.Background(), models.NewGraph(workflow), ectx)
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusSuccess, result.Status)

	offState, ok := ectx.CurrentState("off")
	require.True(t, ok)
	assert.Equal(t, models.NodeStatusSkipped, offState.Status)

	// A skipped node activates nothing downstream.
	_, scheduled := ectx.CurrentState("after")
	assert.False(t, scheduled)
}

func TestExecutorCancellationViaStoreFlag(t *testing.T) {
	workflow := &models.Workflow{
		ID: "wf-cancel",
		Nodes: []*models.WorkflowNode{
			node("trigger", "pass"),
			node("slow", "cancelme"),
			node("after", "pass"),
		},
		Connections: []*models.Connection{
			connect("c1", "trigger", "main", "slow", "main"),
			connect("c2", "slow", "main", "after", "main"),
		},
	}

	store := statestore.NewMemoryStore()

	reg := newTestRegistry(t,
		&stubFactory{nodeType: "pass", build: func(id string, _ map[string]any) *stubNode {
			return &stubNode{execute: passthrough("main")}
		}},
		&stubFactory{nodeType: "cancelme", build: func(id string, _ map[string]any) *stubNode {
			return &stubNode{execute: func(ctx context.Context, ectx *models.ExecutionContext, _ map[string]models.NodeResult) (map[string]models.NodeResult, error) {
				// Request cancellation mid-run; the executor must observe the
				// flag at the next scheduling boundary.
				require.NoError(t, store.RequestCancel(ctx, ectx.ID))

				return map[string]models.NodeResult{"main": {Data: map[string]any{}}}, nil
			}}
		}},
	)

	executor := NewExecutor(reg, &capturingPublisher{}, store, testLogger())
	ectx := newContext(workflow.ID, "trigger", models.ExecutionOptions{UseQueue: true})

	result, err := executor.Run(context.Background(), models.NewGraph(workflow), ectx)
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusCancelled, result.Status)
	assert.Equal(t, models.ExecutionStatusCancelled, ectx.Status)

	_, scheduled := ectx.CurrentState("after")
	assert.False(t, scheduled)
}

func TestExecutorInterventionPausesRun(t *testing.T) {
	workflow := &models.Workflow{
		ID: "wf-approval",
		Nodes: []*models.WorkflowNode{
			node("trigger", "pass"),
			node("gate", "approval"),
			node("after", "pass"),
		},
		Connections: []*models.Connection{
			connect("c1", "trigger", "main", "gate", "main"),
			connect("c2", "gate", "approved", "after", "main"),
		},
	}

	reg := newTestRegistry(t,
		&stubFactory{nodeType: "pass", build: func(id string, _ map[string]any) *stubNode {
			return &stubNode{execute: passthrough("main")}
		}},
		&stubFactory{nodeType: "approval", build: func(id string, _ map[string]any) *stubNode {
			return &stubNode{execute: func(context.Context, *models.ExecutionContext, map[string]models.NodeResult) (map[string]models.NodeResult, error) {
				return nil, &protocol.InterventionNeeded{
					Type:   models.InterventionTypeApproval,
					Prompt: "Deploy to production?",
				}
			}}
		}},
	)

	executor := NewExecutor(reg, &capturingPublisher{}, nil, testLogger())
	ectx := newContext(workflow.ID, "trigger", models.ExecutionOptions{})

	result, err := executor.Run(context.Background(), models.NewGraph(workflow), ectx)
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusPaused, result.Status)
	assert.Equal(t, "gate", result.WaitingNodeID)
	require.NotNil(t, result.Intervention)
	assert.Equal(t, models.InterventionTypeApproval, result.Intervention.Type)
	assert.True(t, ectx.Paused)

	_, scheduled := ectx.CurrentState("after")
	assert.False(t, scheduled)
}

func TestExecutorResumeSkipsCompletedNodes(t *testing.T) {
	workflow := &models.Workflow{
		ID: "wf-resume",
		Nodes: []*models.WorkflowNode{
			node("trigger", "pass"),
			node("step-a", "countonce"),
			node("step-b", "pass"),
		},
		Connections: []*models.Connection{
			connect("c1", "trigger", "main", "step-a", "main"),
			connect("c2", "step-a", "main", "step-b", "main"),
		},
	}

	runs := map[string]int{}

	var mu sync.Mutex

	counting := func(port string) func(context.Context, *models.ExecutionContext, map[string]models.NodeResult) (map[string]models.NodeResult, error) {
		return passthrough(port)
	}

	reg := newTestRegistry(t,
		&stubFactory{nodeType: "pass", build: func(id string, _ map[string]any) *stubNode {
			return &stubNode{execute: func(ctx context.Context, ectx *models.ExecutionContext, inputs map[string]models.NodeResult) (map[string]models.NodeResult, error) {
				mu.Lock()
				runs[id]++
				mu.Unlock()

				return counting("main")(ctx, ectx, inputs)
			}}
		}},
		&stubFactory{nodeType: "countonce", build: func(id string, _ map[string]any) *stubNode {
			return &stubNode{execute: func(ctx context.Context, ectx *models.ExecutionContext, inputs map[string]models.NodeResult) (map[string]models.NodeResult, error) {
				mu.Lock()
				runs[id]++
				mu.Unlock()

				return counting("main")(ctx, ectx, inputs)
			}}
		}},
	)

	executor := NewExecutor(reg, &capturingPublisher{}, nil, testLogger())

	// Simulate a context recovered after a crash: trigger and step-a already
	// succeeded, step-b was scheduled but never finished.
	ectx := newContext(workflow.ID, "trigger", models.ExecutionOptions{})

	for _, done := range []string{"trigger", "step-a"} {
		state := ectx.PushState(done)
		state.Status = models.NodeStatusSuccess
		ectx.RecordOutput(done, map[string]models.NodeResult{"main": {Data: map[string]any{}}})
	}

	interrupted := ectx.PushState("step-b")
	interrupted.Status = models.NodeStatusRunning

	result, err := executor.Run(context.Background(), models.NewGraph(workflow), ectx)
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusSuccess, result.Status)

	// Completed nodes were not re-executed; only the interrupted one ran.
	assert.Equal(t, 0, runs["trigger"])
	assert.Equal(t, 0, runs["step-a"])
	assert.Equal(t, 1, runs["step-b"])

	stepB, ok := ectx.CurrentState("step-b")
	require.True(t, ok)
	assert.Equal(t, models.NodeStatusSuccess, stepB.Status)
	assert.Equal(t, 1, stepB.Attempt)
}

func TestExecutorResumeSchedulesSatisfiedUnscheduledNodes(t *testing.T) {
	workflow := &models.Workflow{
		ID: "wf-resume-gap",
		Nodes: []*models.WorkflowNode{
			node("trigger", "pass"),
			node("step-a", "pass"),
		},
		Connections: []*models.Connection{
			connect("c1", "trigger", "main", "step-a", "main"),
		},
	}

	reg := newTestRegistry(t, &stubFactory{nodeType: "pass", build: func(id string, _ map[string]any) *stubNode {
		return &stubNode{execute: passthrough("main")}
	}})

	executor := NewExecutor(reg, &capturingPublisher{}, nil, testLogger())

	// The crash happened after the trigger completed but before step-a was
	// ever pushed onto the ready set.
	ectx := newContext(workflow.ID, "trigger", models.ExecutionOptions{})
	state := ectx.PushState("trigger")
	state.Status = models.NodeStatusSuccess
	ectx.RecordOutput("trigger", map[string]models.NodeResult{"main": {Data: map[string]any{}}})

	result, err := executor.Run(context.Background(), models.NewGraph(workflow), ectx)
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusSuccess, result.Status)

	stepA, ok := ectx.CurrentState("step-a")
	require.True(t, ok)
	assert.Equal(t, models.NodeStatusSuccess, stepA.Status)
}

func TestExecutorResumeSchedulesSatisfiedMultiPortNode(t *testing.T) {
	workflow := &models.Workflow{
		ID: "wf-resume-fanin",
		Nodes: []*models.WorkflowNode{
			node("trigger", "pass"),
			node("left", "pass"),
			node("right", "pass"),
			node("merge", "merge"),
		},
		Connections: []*models.Connection{
			connect("c1", "trigger", "main", "left", "main"),
			connect("c2", "trigger", "main", "right", "main"),
			connect("c3", "left", "main", "merge", "left"),
			connect("c4", "right", "main", "merge", "right"),
		},
	}

	requirements := models.InputRequirements{
		RequiredPorts: []string{"left", "right"},
		WaitMode:      models.WaitModeAll,
	}

	mergeRan := false

	reg := newTestRegistry(t,
		&stubFactory{nodeType: "pass", build: func(id string, _ map[string]any) *stubNode {
			return &stubNode{execute: passthrough("main")}
		}},
		&stubFactory{nodeType: "merge", build: func(id string, _ map[string]any) *stubNode {
			return &stubNode{requirements: &requirements, execute: func(_ context.Context, _ *models.ExecutionContext, inputs map[string]models.NodeResult) (map[string]models.NodeResult, error) {
				mergeRan = true

				assert.Contains(t, inputs, "left")
				assert.Contains(t, inputs, "right")

				return map[string]models.NodeResult{"main": {Data: map[string]any{}}}, nil
			}}
		}},
	)

	executor := NewExecutor(reg, &capturingPublisher{}, nil, testLogger())

	// The crash happened after both fan-in sources completed but before the
	// merge node was ever pushed onto the ready set. Resume must judge the
	// merge by its own required ports, not by a default "main" port it does
	// not have.
	ectx := newContext(workflow.ID, "trigger", models.ExecutionOptions{})

	for _, done := range []string{"trigger", "left", "right"} {
		state := ectx.PushState(done)
		state.Status = models.NodeStatusSuccess
		ectx.RecordOutput(done, map[string]models.NodeResult{"main": {Data: map[string]any{}}})
	}

	result, err := executor.Run(context.Background(), models.NewGraph(workflow), ectx)
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusSuccess, result.Status)
	assert.True(t, mergeRan)

	mergeState, ok := ectx.CurrentState("merge")
	require.True(t, ok)
	assert.Equal(t, models.NodeStatusSuccess, mergeState.Status)
}

type failingFactory struct {
	nodeType string
	err      error
}

func (f *failingFactory) Create(context.Context, string, map[string]any) (protocol.Node, error) {
	return nil, f.err
}

func (f *failingFactory) ID() string             { return f.nodeType }
func (f *failingFactory) Name() string           { return f.nodeType }
func (f *failingFactory) Description() string    { return "" }
func (f *failingFactory) Schema() map[string]any { return nil }

func TestExecutorNodeCreationFailureIsRecorded(t *testing.T) {
	workflow := &models.Workflow{
		ID: "wf-badnode",
		Nodes: []*models.WorkflowNode{
			node("trigger", "pass"),
			node("broken", "badtype"),
		},
		Connections: []*models.Connection{
			connect("c1", "trigger", "main", "broken", "main"),
		},
	}

	createErr := errors.New("invalid node configuration")

	reg := newTestRegistry(t, &stubFactory{nodeType: "pass", build: func(id string, _ map[string]any) *stubNode {
		return &stubNode{execute: passthrough("main")}
	}})
	reg.RegisterNode(&failingFactory{nodeType: "badtype", err: createErr})

	publisher := &capturingPublisher{}
	executor := NewExecutor(reg, publisher, nil, testLogger())
	ectx := newContext(workflow.ID, "trigger", models.ExecutionOptions{})

	result, err := executor.Run(context.Background(), models.NewGraph(workflow), ectx)
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusError, result.Status)
	assert.Equal(t, "broken", result.FailedNodeID)

	// The failure is visible in per-node state and on the bus, same as an
	// execution-time failure.
	brokenState, ok := ectx.CurrentState("broken")
	require.True(t, ok)
	assert.Equal(t, models.NodeStatusFailed, brokenState.Status)
	assert.Contains(t, brokenState.Error, createErr.Error())

	assert.Len(t, publisher.ofType(events.NodeFailedEvent), 1)
}

func TestExecutorUnknownTriggerNode(t *testing.T) {
	workflow := &models.Workflow{
		ID:    "wf-missing",
		Nodes: []*models.WorkflowNode{node("trigger", "pass")},
	}

	reg := newTestRegistry(t, &stubFactory{nodeType: "pass", build: func(id string, _ map[string]any) *stubNode {
		return &stubNode{execute: passthrough("main")}
	}})

	executor := NewExecutor(reg, &capturingPublisher{}, nil, testLogger())
	ectx := newContext(workflow.ID, "ghost", models.ExecutionOptions{})

	_, err := executor.Run(context.Background(), models.NewGraph(workflow), ectx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ghost")
}
