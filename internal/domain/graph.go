package domain

// ExecutionGraph is the compiled, pruned, indexed form of a Workflow
// produced by the Workflow Compiler. It is immutable and safe to share
// read-only across many WorkflowExecutions of the same (workflow, version,
// trigger).
type ExecutionGraph struct {
	WorkflowID      string
	Version         string
	TriggerNodeKey  string

	// NodeMap holds only reachable nodes, keyed by Node.Key.
	NodeMap map[string]Node

	// ConnectionMap is keyed by the (from_key, from_port) PortKey.
	ConnectionMap map[PortKey][]Connection

	// ReverseConnectionMap holds all incoming connections for a node,
	// regardless of to_port; callers filter by port at use.
	ReverseConnectionMap map[string][]Connection

	// DependencyGraph maps a node key to the distinct set of source node
	// keys for its incoming connections.
	DependencyGraph map[string][]string
}

// PortKey identifies a (node, port) pair used to index the forward
// connection map.
type PortKey struct {
	NodeKey string
	Port    string
}

// NodeOrder returns the reachable node keys in a stable order (the order
// they appear in the original Workflow.Nodes slice, filtered to reachable
// ones). Used for deterministic iteration and tie-breaking.
func (g *ExecutionGraph) NodeOrder(original *Workflow) []string {
	order := make([]string, 0, len(g.NodeMap))
	for _, n := range original.Nodes {
		if _, ok := g.NodeMap[n.Key]; ok {
			order = append(order, n.Key)
		}
	}
	return order
}

// OutgoingByPort returns the connections leaving (nodeKey, port).
func (g *ExecutionGraph) OutgoingByPort(nodeKey, port string) []Connection {
	return g.ConnectionMap[PortKey{NodeKey: nodeKey, Port: port}]
}

// IncomingByPort returns the incoming connections at (nodeKey, port).
func (g *ExecutionGraph) IncomingByPort(nodeKey, port string) []Connection {
	var out []Connection
	for _, c := range g.ReverseConnectionMap[nodeKey] {
		if c.ToPort == port {
			out = append(out, c)
		}
	}
	return out
}
