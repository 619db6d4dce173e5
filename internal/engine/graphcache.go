package engine

import (
	"fmt"

	"github.com/puzpuzpuz/xsync/v3"
	"github.com/stepflow-dev/stepflow/internal/domain"
)

// GraphCache memoizes compiled ExecutionGraphs by (workflow_id, version,
// trigger_node_key). A compiled graph is immutable and safe to share
// read-only across many concurrently-running WorkflowExecutions (§5), so
// the cache uses a lock-free concurrent map rather than a mutex-guarded one.
type GraphCache struct {
	compiler *Compiler
	entries  *xsync.MapOf[string, *domain.ExecutionGraph]
}

func NewGraphCache(compiler *Compiler) *GraphCache {
	return &GraphCache{
		compiler: compiler,
		entries:  xsync.NewMapOf[string, *domain.ExecutionGraph](),
	}
}

func cacheKey(workflowID, version, triggerNodeKey string) string {
	return fmt.Sprintf("%s\x00%s\x00%s", workflowID, version, triggerNodeKey)
}

// Compile returns the cached ExecutionGraph for (workflow, triggerNodeKey),
// compiling and caching it on first use.
func (c *GraphCache) Compile(workflow *domain.Workflow, triggerNodeKey string) (*domain.ExecutionGraph, error) {
	key := cacheKey(workflow.ID, workflow.Version, triggerNodeKey)
	if g, ok := c.entries.Load(key); ok {
		return g, nil
	}
	graph, err := c.compiler.Compile(workflow, triggerNodeKey)
	if err != nil {
		return nil, err
	}
	c.entries.Store(key, graph)
	return graph, nil
}

// InvalidateCache drops every cached graph for workflowID, across all
// versions and triggers — for hosts that republish a workflow under the
// same version during development.
func (c *GraphCache) InvalidateCache(workflowID string) {
	prefix := workflowID + "\x00"
	c.entries.Range(func(key string, _ *domain.ExecutionGraph) bool {
		if len(key) >= len(prefix) && key[:len(prefix)] == prefix {
			c.entries.Delete(key)
		}
		return true
	})
}
