package domain

// RetrySettings is the per-node retry configuration consumed by §4.7.
type RetrySettings struct {
	RetryOnFailed bool `json:"retry_on_failed"`
	MaxRetries    int  `json:"max_retries"`
	RetryDelayMs  int  `json:"retry_delay_ms"`
}

// NodeSettings bundles the per-node policies that are not part of the
// action's own parameters: retry behavior and the on-error policy.
type NodeSettings struct {
	Retry   RetrySettings `json:"retry"`
	OnError OnErrorPolicy `json:"on_error"`
}

// NodeMetadata is filled in by the Workflow Compiler; hosts should treat it
// as read-only output, not input.
type NodeMetadata struct {
	LoopLevel int      `json:"loop_level"`
	LoopRole  LoopRole  `json:"loop_role"`
	LoopIDs   []string `json:"loop_ids,omitempty"`
}

// Node is one step of a Workflow: a unique key bound to an action type,
// carrying template-bearing params and per-node policy settings.
type Node struct {
	Key      string         `json:"key"`
	Name     string         `json:"name"`
	Type     string         `json:"type"`
	Params   map[string]any `json:"params"`
	Settings NodeSettings   `json:"settings"`
	Metadata NodeMetadata   `json:"metadata"`
}

// Connection is a directed, port-labeled edge between two nodes.
type Connection struct {
	FromNodeKey string `json:"from_node_key"`
	FromPort    string `json:"from_port"`
	ToNodeKey   string `json:"to_node_key"`
	ToPort      string `json:"to_port"`
}

// Workflow is the declarative input graph: an ordered sequence of nodes and
// a connection map keyed by the source node's key.
type Workflow struct {
	ID          string                    `json:"id"`
	Version     string                    `json:"version"`
	Nodes       []Node                    `json:"nodes"`
	Connections map[string][]Connection   `json:"connections"`
	Vars        map[string]any            `json:"vars,omitempty"`
}

// NodeByKey returns the node with the given key, if present.
func (w *Workflow) NodeByKey(key string) (Node, bool) {
	for _, n := range w.Nodes {
		if n.Key == key {
			return n, true
		}
	}
	return Node{}, false
}

// OutgoingConnections returns every connection whose source is nodeKey,
// regardless of from_port.
func (w *Workflow) OutgoingConnections(nodeKey string) []Connection {
	return w.Connections[nodeKey]
}

// AllConnections flattens the connection map into a single slice, stable by
// source-node insertion order within each bucket.
func (w *Workflow) AllConnections() []Connection {
	var all []Connection
	for _, n := range w.Nodes {
		all = append(all, w.Connections[n.Key]...)
	}
	return all
}

// ToMap renders the workflow as plain structured data for the §6
// serialization contract.
func (w *Workflow) ToMap() map[string]any {
	nodes := make([]map[string]any, 0, len(w.Nodes))
	for _, n := range w.Nodes {
		nodes = append(nodes, map[string]any{
			"key":  n.Key,
			"name": n.Name,
			"type": n.Type,
			"params": n.Params,
			"settings": map[string]any{
				"retry": map[string]any{
					"retry_on_failed": n.Settings.Retry.RetryOnFailed,
					"max_retries":     n.Settings.Retry.MaxRetries,
					"retry_delay_ms":  n.Settings.Retry.RetryDelayMs,
				},
				"on_error": string(n.Settings.OnError),
			},
			"metadata": map[string]any{
				"loop_level": n.Metadata.LoopLevel,
				"loop_role":  string(n.Metadata.LoopRole),
				"loop_ids":   n.Metadata.LoopIDs,
			},
		})
	}
	conns := make(map[string]any, len(w.Connections))
	for from, cs := range w.Connections {
		list := make([]map[string]any, 0, len(cs))
		for _, c := range cs {
			list = append(list, map[string]any{
				"from_node_key": c.FromNodeKey,
				"from_port":     c.FromPort,
				"to_node_key":   c.ToNodeKey,
				"to_port":       c.ToPort,
			})
		}
		conns[from] = list
	}
	return map[string]any{
		"id":          w.ID,
		"version":     w.Version,
		"nodes":       nodes,
		"connections": conns,
		"vars":        w.Vars,
	}
}
