package models

// Clone returns a snapshot of the execution context safe to hand to a node
// running concurrently with the scheduler. Maps are copied one level deep;
// NodeResult values and state instances are treated as immutable once stored.
func (c *ExecutionContext) Clone() *ExecutionContext {
	clone := *c

	clone.NodeStates = make(map[string][]*NodeExecutionState, len(c.NodeStates))
	for nodeID, states := range c.NodeStates {
		copied := make([]*NodeExecutionState, len(states))
		copy(copied, states)
		clone.NodeStates[nodeID] = copied
	}

	clone.NodeOutputs = make(map[string]map[string]NodeResult, len(c.NodeOutputs))
	for nodeID, outputs := range c.NodeOutputs {
		ports := make(map[string]NodeResult, len(outputs))
		for portName, result := range outputs {
			ports[portName] = result
		}

		clone.NodeOutputs[nodeID] = ports
	}

	clone.Path = append([]string(nil), c.Path...)

	return &clone
}
