// Package workflow is the public fluent builder for assembling a
// domain.Workflow without hand-constructing its maps and slices.
package workflow

import "github.com/stepflow-dev/stepflow/internal/domain"

// Builder assembles a domain.Workflow one node/connection at a time.
type Builder struct {
	w domain.Workflow
}

// New starts a Builder for workflow (id, version).
func New(id, version string) *Builder {
	return &Builder{w: domain.Workflow{
		ID:          id,
		Version:     version,
		Connections: make(map[string][]domain.Connection),
	}}
}

// Vars sets the workflow's static variable bag.
func (b *Builder) Vars(vars map[string]any) *Builder {
	b.w.Vars = vars
	return b
}

// AddNode appends a fully-built Node, typically produced via NewNode.
func (b *Builder) AddNode(n domain.Node) *Builder {
	b.w.Nodes = append(b.w.Nodes, n)
	return b
}

// Connect adds a directed, port-labeled edge from (fromKey, fromPort) to
// (toKey, toPort).
func (b *Builder) Connect(fromKey, fromPort, toKey, toPort string) *Builder {
	b.w.Connections[fromKey] = append(b.w.Connections[fromKey], domain.Connection{
		FromNodeKey: fromKey,
		FromPort:    fromPort,
		ToNodeKey:   toKey,
		ToPort:      toPort,
	})
	return b
}

// Build returns the assembled Workflow. It performs no validation itself —
// that is the Workflow Compiler's job, run over the result.
func (b *Builder) Build() *domain.Workflow {
	return &b.w
}

// NodeBuilder assembles a single domain.Node.
type NodeBuilder struct {
	n domain.Node
}

// NewNode starts a NodeBuilder for a node of the given type, keyed by key.
func NewNode(key, nodeType string) *NodeBuilder {
	return &NodeBuilder{n: domain.Node{Key: key, Type: nodeType, Params: make(map[string]any)}}
}

func (b *NodeBuilder) Name(name string) *NodeBuilder {
	b.n.Name = name
	return b
}

func (b *NodeBuilder) Param(key string, value any) *NodeBuilder {
	b.n.Params[key] = value
	return b
}

func (b *NodeBuilder) Params(params map[string]any) *NodeBuilder {
	for k, v := range params {
		b.n.Params[k] = v
	}
	return b
}

// Retry sets the node's retry policy (§4.7).
func (b *NodeBuilder) Retry(maxRetries, retryDelayMs int) *NodeBuilder {
	b.n.Settings.Retry = domain.RetrySettings{
		RetryOnFailed: true,
		MaxRetries:    maxRetries,
		RetryDelayMs:  retryDelayMs,
	}
	return b
}

// OnError sets the node's on-error policy, applied once retries (if any)
// are exhausted.
func (b *NodeBuilder) OnError(policy domain.OnErrorPolicy) *NodeBuilder {
	b.n.Settings.OnError = policy
	return b
}

func (b *NodeBuilder) Build() domain.Node {
	return b.n
}
