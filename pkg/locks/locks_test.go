package locks

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowlinehq/flowline/pkg/models"
	"github.com/flowlinehq/flowline/pkg/testutil"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(discard{}, &slog.HandlerOptions{Level: slog.LevelError}))
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

// diamondGraph builds trigger -> {left, right} -> join.
func diamondGraph() *models.Graph {
	workflow := testutil.CreateTestWorkflow(
		testutil.WithNodes(
			testutil.CreateTestNode(testutil.WithTriggerNode(), testutil.WithNodeID("trigger")),
			testutil.CreateTestNode(testutil.WithNodeID("left")),
			testutil.CreateTestNode(testutil.WithNodeID("right")),
			testutil.CreateTestNode(testutil.WithNodeID("join")),
		),
		testutil.WithConnections(
			testutil.CreateTestConnection("c1", "trigger", "main", "left", "main"),
			testutil.CreateTestConnection("c2", "trigger", "main", "right", "main"),
			testutil.CreateTestConnection("c3", "left", "success", "join", "main"),
			testutil.CreateTestConnection("c4", "right", "success", "join", "main"),
		),
	)

	return models.NewGraph(workflow)
}

func executionContext(id string, isolated bool) *models.ExecutionContext {
	return models.NewExecutionContext(id, "wf-1", "user-1", "trigger", nil, models.ExecutionOptions{Isolated: isolated})
}

func TestIsolatedExecutionLocksDownstreamClosure(t *testing.T) {
	manager := NewMemoryManager(testLogger())
	graph := diamondGraph()

	acquired, err := manager.AcquireLocks(context.Background(), executionContext("exec-1", true), graph)
	require.NoError(t, err)
	require.True(t, acquired)

	for _, nodeID := range []string{"trigger", "left", "right", "join"} {
		holder, held := manager.Holder(nodeID)
		require.True(t, held, "node %s should be locked", nodeID)
		assert.Equal(t, "exec-1", holder)
	}
}

func TestSecondIsolatedExecutionBlocked(t *testing.T) {
	manager := NewMemoryManager(testLogger())
	graph := diamondGraph()
	ctx := context.Background()

	acquired, err := manager.AcquireLocks(ctx, executionContext("exec-1", true), graph)
	require.NoError(t, err)
	require.True(t, acquired)

	// Overlapping closure: all-or-nothing acquisition fails, nothing is held.
	acquired, err = manager.AcquireLocks(ctx, executionContext("exec-2", true), graph)
	require.NoError(t, err)
	assert.False(t, acquired)

	holder, held := manager.Holder("join")
	require.True(t, held)
	assert.Equal(t, "exec-1", holder)

	// Releasing the first unblocks the second.
	require.NoError(t, manager.ReleaseLocks(ctx, "exec-1"))

	acquired, err = manager.AcquireLocks(ctx, executionContext("exec-2", true), graph)
	require.NoError(t, err)
	assert.True(t, acquired)
}

func TestNonIsolatedExecutionsShareLocks(t *testing.T) {
	manager := NewMemoryManager(testLogger())
	graph := diamondGraph()
	ctx := context.Background()

	for _, id := range []string{"exec-1", "exec-2", "exec-3"} {
		acquired, err := manager.AcquireLocks(ctx, executionContext(id, false), graph)
		require.NoError(t, err)
		assert.True(t, acquired, "shared acquisition must not contend")
	}
}

func TestNonIsolatedSucceedsDespiteIsolatedHolder(t *testing.T) {
	manager := NewMemoryManager(testLogger())
	graph := diamondGraph()
	ctx := context.Background()

	acquired, err := manager.AcquireLocks(ctx, executionContext("exec-iso", true), graph)
	require.NoError(t, err)
	require.True(t, acquired)

	acquired, err = manager.AcquireLocks(ctx, executionContext("exec-manual", false), graph)
	require.NoError(t, err)
	assert.True(t, acquired)
}

func TestReleaseLocksIsIdempotent(t *testing.T) {
	manager := NewMemoryManager(testLogger())
	graph := diamondGraph()
	ctx := context.Background()

	acquired, err := manager.AcquireLocks(ctx, executionContext("exec-1", true), graph)
	require.NoError(t, err)
	require.True(t, acquired)

	require.NoError(t, manager.ReleaseLocks(ctx, "exec-1"))
	require.NoError(t, manager.ReleaseLocks(ctx, "exec-1"))
	require.NoError(t, manager.ReleaseLocks(ctx, "exec-unknown"))

	_, held := manager.Holder("trigger")
	assert.False(t, held)
}

func TestClosureScopedToTriggerNode(t *testing.T) {
	manager := NewMemoryManager(testLogger())

	// Two disjoint chains in one workflow: a -> a1 and b -> b1.
	workflow := testutil.CreateTestWorkflow(
		testutil.WithNodes(
			testutil.CreateTestNode(testutil.WithTriggerNode(), testutil.WithNodeID("a")),
			testutil.CreateTestNode(testutil.WithNodeID("a1")),
			testutil.CreateTestNode(testutil.WithTriggerNode(), testutil.WithNodeID("b")),
			testutil.CreateTestNode(testutil.WithNodeID("b1")),
		),
		testutil.WithConnections(
			testutil.CreateTestConnection("c1", "a", "main", "a1", "main"),
			testutil.CreateTestConnection("c2", "b", "main", "b1", "main"),
		),
	)
	graph := models.NewGraph(workflow)
	ctx := context.Background()

	first := models.NewExecutionContext("exec-a", "wf-1", "user-1", "a", nil, models.ExecutionOptions{Isolated: true})
	second := models.NewExecutionContext("exec-b", "wf-1", "user-1", "b", nil, models.ExecutionOptions{Isolated: true})

	acquired, err := manager.AcquireLocks(ctx, first, graph)
	require.NoError(t, err)
	require.True(t, acquired)

	// Disjoint closures never contend.
	acquired, err = manager.AcquireLocks(ctx, second, graph)
	require.NoError(t, err)
	assert.True(t, acquired)
}
