package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stepflow-dev/stepflow/internal/domain"
)

func linearWorkflow() *domain.Workflow {
	return &domain.Workflow{
		ID:      "wf-linear",
		Version: "v1",
		Nodes: []domain.Node{
			{Key: "start", Type: "trigger"},
			{Key: "a", Type: "noop"},
			{Key: "b", Type: "noop"},
			{Key: "unreachable", Type: "noop"},
		},
		Connections: map[string][]domain.Connection{
			"start": {{FromNodeKey: "start", FromPort: "main", ToNodeKey: "a", ToPort: "input"}},
			"a":     {{FromNodeKey: "a", FromPort: "main", ToNodeKey: "b", ToPort: "input"}},
		},
	}
}

func TestCompiler_PrunesUnreachableNodes(t *testing.T) {
	c := NewCompiler()
	graph, err := c.Compile(linearWorkflow(), "start")
	require.NoError(t, err)

	assert.Len(t, graph.NodeMap, 3)
	_, ok := graph.NodeMap["unreachable"]
	assert.False(t, ok)
}

func TestCompiler_TriggerNotFound(t *testing.T) {
	c := NewCompiler()
	_, err := c.Compile(linearWorkflow(), "missing")
	require.Error(t, err)
	derr, ok := err.(*domain.Error)
	require.True(t, ok)
	assert.Equal(t, domain.ErrCodeTriggerNotFound, derr.Code)
}

func TestCompiler_RejectsDanglingConnection(t *testing.T) {
	wf := &domain.Workflow{
		ID:      "wf-bad",
		Version: "v1",
		Nodes:   []domain.Node{{Key: "start", Type: "trigger"}},
		Connections: map[string][]domain.Connection{
			"start": {{FromNodeKey: "start", FromPort: "main", ToNodeKey: "ghost", ToPort: "input"}},
		},
	}
	c := NewCompiler()
	_, err := c.Compile(wf, "start")
	require.Error(t, err)
}

// simpleLoopWorkflow builds start -> a -> b -> a (back edge), matching S3's
// "simple loop" seed scenario shape.
func simpleLoopWorkflow() *domain.Workflow {
	return &domain.Workflow{
		ID:      "wf-loop",
		Version: "v1",
		Nodes: []domain.Node{
			{Key: "start", Type: "trigger"},
			{Key: "a", Type: "noop"},
			{Key: "b", Type: "noop"},
		},
		Connections: map[string][]domain.Connection{
			"start": {{FromNodeKey: "start", FromPort: "main", ToNodeKey: "a", ToPort: "input"}},
			"a":     {{FromNodeKey: "a", FromPort: "main", ToNodeKey: "b", ToPort: "input"}},
			"b":     {{FromNodeKey: "b", FromPort: "main", ToNodeKey: "a", ToPort: "input"}},
		},
	}
}

func TestCompiler_CompilesCycles(t *testing.T) {
	c := NewCompiler()
	graph, err := c.Compile(simpleLoopWorkflow(), "start")
	require.NoError(t, err)
	assert.Len(t, graph.NodeMap, 3)
}

func TestCompiler_AnnotatesLoopRoles(t *testing.T) {
	c := NewCompiler()
	graph, err := c.Compile(simpleLoopWorkflow(), "start")
	require.NoError(t, err)

	a := graph.NodeMap["a"]
	b := graph.NodeMap["b"]
	start := graph.NodeMap["start"]

	assert.Equal(t, domain.LoopRoleNotInLoop, start.Metadata.LoopRole)
	assert.NotEqual(t, domain.LoopRoleNotInLoop, a.Metadata.LoopRole)
	assert.NotEqual(t, domain.LoopRoleNotInLoop, b.Metadata.LoopRole)
	assert.Equal(t, 1, a.Metadata.LoopLevel)
	assert.Equal(t, 1, b.Metadata.LoopLevel)
	assert.NotEmpty(t, a.Metadata.LoopIDs)
}

func TestTarjanSCC_FindsCycle(t *testing.T) {
	edges := map[string][]string{
		"a": {"b"},
		"b": {"c"},
		"c": {"a"},
		"d": {},
	}
	components := tarjanSCC([]string{"a", "b", "c", "d"}, edges)

	var found bool
	for _, comp := range components {
		if len(comp) == 3 {
			assert.ElementsMatch(t, []string{"a", "b", "c"}, comp)
			found = true
		}
	}
	assert.True(t, found, "expected to find the 3-node cycle as one component")
}
