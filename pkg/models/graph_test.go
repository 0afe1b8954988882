package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func graphNode(id string) *WorkflowNode {
	return &WorkflowNode{ID: id, Type: "transform", Category: CategoryTypeAction, Name: id, Enabled: true}
}

func graphEdge(id, sourceNode, sourcePort, targetNode, targetPort string) *Connection {
	return &Connection{
		ID:         id,
		SourcePort: MakePortID(sourceNode, sourcePort),
		TargetPort: MakePortID(targetNode, targetPort),
	}
}

// trigger -> branch -[true]-> left -> join
//                  \-[false]-> right -> join
func branchingWorkflow() *Workflow {
	return &Workflow{
		ID:   "wf-branch",
		Name: "branching",
		Nodes: []*WorkflowNode{
			graphNode("trigger"),
			graphNode("branch"),
			graphNode("left"),
			graphNode("right"),
			graphNode("join"),
		},
		Connections: []*Connection{
			graphEdge("c1", "trigger", "main", "branch", "main"),
			graphEdge("c2", "branch", "true", "left", "main"),
			graphEdge("c3", "branch", "false", "right", "main"),
			graphEdge("c4", "left", "success", "join", "a"),
			graphEdge("c5", "right", "success", "join", "b"),
		},
	}
}

func TestGraphAdjacency(t *testing.T) {
	graph := NewGraph(branchingWorkflow())

	assert.Equal(t, 5, graph.NodeCount())

	node, ok := graph.Node("branch")
	require.True(t, ok)
	assert.Equal(t, "branch", node.ID)

	_, ok = graph.Node("ghost")
	assert.False(t, ok)

	assert.Len(t, graph.Outgoing("branch"), 2)
	assert.Len(t, graph.Incoming("join"), 2)
	assert.Empty(t, graph.Outgoing("join"))
	assert.Empty(t, graph.Incoming("trigger"))
}

func TestOutgoingFromFiltersByPort(t *testing.T) {
	graph := NewGraph(branchingWorkflow())

	edges := graph.OutgoingFrom("branch", "true")
	require.Len(t, edges, 1)
	assert.Equal(t, "left", edges[0].TargetNode)

	assert.Empty(t, graph.OutgoingFrom("branch", "maybe"))
}

func TestInputPortsDeduplicated(t *testing.T) {
	workflow := branchingWorkflow()
	// A second edge into join's "a" port must not duplicate the port name.
	workflow.Connections = append(workflow.Connections,
		graphEdge("c6", "branch", "true", "join", "a"))

	graph := NewGraph(workflow)

	ports := graph.InputPorts("join")
	assert.ElementsMatch(t, []string{"a", "b"}, ports)
}

func TestDownstreamClosure(t *testing.T) {
	graph := NewGraph(branchingWorkflow())

	closure := graph.DownstreamClosure("trigger")
	assert.ElementsMatch(t, []string{"trigger", "branch", "left", "right", "join"}, closure)

	closure = graph.DownstreamClosure("left")
	assert.ElementsMatch(t, []string{"left", "join"}, closure)

	closure = graph.DownstreamClosure("join")
	assert.ElementsMatch(t, []string{"join"}, closure)
}

func TestDownstreamClosureHandlesCycles(t *testing.T) {
	workflow := &Workflow{
		ID:   "wf-loop",
		Name: "looping",
		Nodes: []*WorkflowNode{
			graphNode("start"),
			graphNode("loop"),
			graphNode("body"),
		},
		Connections: []*Connection{
			graphEdge("c1", "start", "main", "loop", "main"),
			graphEdge("c2", "loop", "next", "body", "main"),
			graphEdge("c3", "body", "success", "loop", "main"),
		},
	}
	graph := NewGraph(workflow)

	closure := graph.DownstreamClosure("start")
	assert.ElementsMatch(t, []string{"start", "loop", "body"}, closure)
}

func TestMalformedConnectionsIgnored(t *testing.T) {
	workflow := &Workflow{
		ID:    "wf-bad",
		Name:  "malformed",
		Nodes: []*WorkflowNode{graphNode("a"), graphNode("b")},
		Connections: []*Connection{
			{ID: "c1", SourcePort: "no-separator", TargetPort: MakePortID("b", "main")},
			graphEdge("c2", "a", "main", "b", "main"),
		},
	}
	graph := NewGraph(workflow)

	assert.Len(t, graph.Incoming("b"), 1)
}
