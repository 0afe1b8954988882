// Package models provides the immutable graph view handed to the flow executor.
package models

// GraphEdge is a resolved connection with its port references split into
// node and port components.
type GraphEdge struct {
	SourceNode string
	SourcePort string
	TargetNode string
	TargetPort string
}

// Graph is an immutable adjacency view over a finalized workflow. It is built
// once at execution start and shared read-only between goroutines.
type Graph struct {
	WorkflowID string
	Variables  map[string]any

	nodes    map[string]*WorkflowNode
	outgoing map[string][]GraphEdge // source node id -> edges
	incoming map[string][]GraphEdge // target node id -> edges
}

// NewGraph builds a Graph from a finalized workflow. Connections with
// malformed port references are ignored; workflow validation happens upstream.
func NewGraph(workflow *Workflow) *Graph {
	g := &Graph{
		WorkflowID: workflow.ID,
		Variables:  workflow.Variables,
		nodes:      make(map[string]*WorkflowNode, len(workflow.Nodes)),
		outgoing:   make(map[string][]GraphEdge),
		incoming:   make(map[string][]GraphEdge),
	}

	for _, node := range workflow.Nodes {
		g.nodes[node.ID] = node
	}

	for _, conn := range workflow.Connections {
		sourceNode, sourcePort, ok := ParsePortID(conn.SourcePort)
		if !ok {
			continue
		}

		targetNode, targetPort, ok := ParsePortID(conn.TargetPort)
		if !ok {
			continue
		}

		edge := GraphEdge{
			SourceNode: sourceNode,
			SourcePort: sourcePort,
			TargetNode: targetNode,
			TargetPort: targetPort,
		}
		g.outgoing[sourceNode] = append(g.outgoing[sourceNode], edge)
		g.incoming[targetNode] = append(g.incoming[targetNode], edge)
	}

	return g
}

// Node returns the node with the given id, if present.
func (g *Graph) Node(nodeID string) (*WorkflowNode, bool) {
	node, ok := g.nodes[nodeID]

	return node, ok
}

// NodeCount returns the number of nodes in the graph.
func (g *Graph) NodeCount() int {
	return len(g.nodes)
}

// Outgoing returns the edges leaving the given node.
func (g *Graph) Outgoing(nodeID string) []GraphEdge {
	return g.outgoing[nodeID]
}

// OutgoingFrom returns the edges leaving a specific output port of a node.
func (g *Graph) OutgoingFrom(nodeID, portName string) []GraphEdge {
	var edges []GraphEdge

	for _, edge := range g.outgoing[nodeID] {
		if edge.SourcePort == portName {
			edges = append(edges, edge)
		}
	}

	return edges
}

// Incoming returns the edges entering the given node.
func (g *Graph) Incoming(nodeID string) []GraphEdge {
	return g.incoming[nodeID]
}

// InputPorts returns the distinct input port names of a node that have at
// least one incoming connection.
func (g *Graph) InputPorts(nodeID string) []string {
	seen := make(map[string]bool)

	var ports []string

	for _, edge := range g.incoming[nodeID] {
		if !seen[edge.TargetPort] {
			seen[edge.TargetPort] = true

			ports = append(ports, edge.TargetPort)
		}
	}

	return ports
}

// DownstreamClosure returns every node reachable from start via outgoing
// edges, including start itself. Used by the lock manager to compute the
// set of nodes an isolated execution must hold.
func (g *Graph) DownstreamClosure(start string) []string {
	visited := make(map[string]bool)
	stack := []string{start}

	var closure []string

	for len(stack) > 0 {
		nodeID := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if visited[nodeID] {
			continue
		}

		visited[nodeID] = true

		if _, ok := g.nodes[nodeID]; !ok {
			continue
		}

		closure = append(closure, nodeID)

		for _, edge := range g.outgoing[nodeID] {
			if !visited[edge.TargetNode] {
				stack = append(stack, edge.TargetNode)
			}
		}
	}

	return closure
}
