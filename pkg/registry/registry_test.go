package registry

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowlinehq/flowline/pkg/models"
	"github.com/flowlinehq/flowline/pkg/protocol"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(discard{}, &slog.HandlerOptions{Level: slog.LevelError}))
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

type echoNode struct {
	id    string
	reply string
}

func (n *echoNode) ID() string                          { return n.id }
func (n *echoNode) Type() string                        { return "echo" }
func (n *echoNode) GetInputPorts() []models.InputPort   { return nil }
func (n *echoNode) GetOutputPorts() []models.OutputPort { return nil }

func (n *echoNode) Execute(context.Context, *models.ExecutionContext, map[string]models.NodeResult) (map[string]models.NodeResult, error) {
	return map[string]models.NodeResult{
		"main": {NodeID: n.id, Data: map[string]any{"reply": n.reply}},
	}, nil
}

type echoFactory struct {
	reply string
}

func (f *echoFactory) Create(_ context.Context, id string, config map[string]any) (protocol.Node, error) {
	reply := f.reply
	if message, ok := config["message"].(string); ok {
		reply = message
	}

	return &echoNode{id: id, reply: reply}, nil
}

func (f *echoFactory) ID() string          { return "echo" }
func (f *echoFactory) Name() string        { return "Echo" }
func (f *echoFactory) Description() string { return "" }

func (f *echoFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"message": map[string]any{"type": "string"},
		},
		"required": []string{"message"},
	}
}

func TestCreateNodeValidatesConfig(t *testing.T) {
	registry := NewRegistry(testLogger())
	registry.RegisterNode(&echoFactory{})

	node, err := registry.CreateNode(context.Background(), "echo", "node-1", map[string]any{"message": "hi"})
	require.NoError(t, err)
	assert.Equal(t, "node-1", node.ID())

	// Schema rejects a missing required field.
	_, err = registry.CreateNode(context.Background(), "echo", "node-2", map[string]any{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "message")

	// And a wrong type.
	_, err = registry.CreateNode(context.Background(), "echo", "node-3", map[string]any{"message": 42})
	assert.Error(t, err)
}

func TestCreateNodeUnknownType(t *testing.T) {
	registry := NewRegistry(testLogger())

	_, err := registry.CreateNode(context.Background(), "ghost", "node-1", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not registered")
}

func TestReloadSwapsRegisteredFactory(t *testing.T) {
	registry := NewRegistry(testLogger())
	registry.RegisterNode(&echoFactory{reply: "v1"})

	require.NoError(t, registry.Reload(&echoFactory{reply: "v2"}))

	node, err := registry.CreateNode(context.Background(), "echo", "node-1", map[string]any{"message": "configured"})
	require.NoError(t, err)

	outputs, err := node.Execute(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "configured", outputs["main"].Data["reply"])
}

func TestReloadUnknownType(t *testing.T) {
	registry := NewRegistry(testLogger())

	assert.Error(t, registry.Reload(&echoFactory{}))
}

func TestNodeTypesListsRegistrations(t *testing.T) {
	registry := NewRegistry(testLogger())
	RegisterDefaultNodes(registry)

	types := registry.NodeTypes()
	assert.Contains(t, types, models.NodeTypeTriggerManual)
	assert.Contains(t, types, "conditional")
	assert.Contains(t, types, "switch")
	assert.Contains(t, types, "merge")
	assert.Contains(t, types, "transform")
	assert.Contains(t, types, "httprequest")
	assert.Contains(t, types, "log")
	assert.Contains(t, types, "loop")
	assert.Contains(t, types, "approval")
}
