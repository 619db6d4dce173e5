package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecution_MarshalSnapshotRoundTrip(t *testing.T) {
	graph := linearGraph()
	e := NewExecution(graph, "manual", map[string]any{"k": "v"}, map[string]any{"x": 1}, 50)
	e.Start()
	e.MarkRunning()
	completeNode(e, graph, "start", 1)

	data, err := e.MarshalSnapshot()
	require.NoError(t, err)
	require.NotEmpty(t, data)

	restored, err := UnmarshalSnapshot(data)
	require.NoError(t, err)

	assert.Equal(t, e.ID(), restored.ID())
	assert.Equal(t, e.WorkflowID(), restored.WorkflowID())
	assert.Equal(t, e.Status(), restored.Status())
	assert.Equal(t, e.CurrentExecutionIndex(), restored.CurrentExecutionIndex())
	assert.Equal(t, e.MaxIterations(), restored.MaxIterations())

	restoredNE := restored.NodeExecutions("start")
	require.Len(t, restoredNE, 1)
	assert.Equal(t, "start", restoredNE[0].NodeKey)
	assert.Equal(t, NodeStatusCompleted, restoredNE[0].Status)
}

func TestExecution_MarshalSnapshotPreservesSuspension(t *testing.T) {
	graph := linearGraph()
	e := NewExecution(graph, "manual", nil, nil, 100)
	e.Start()
	e.MarkRunning()
	e.AddNodeExecution(NodeExecution{
		NodeKey:        "start",
		Status:         NodeStatusSuspended,
		SuspensionType: SuspensionTypeWebhook,
		SuspensionData: map[string]any{"url": "https://example.com/resume"},
		ExecutionIndex: 1,
	}, graph)

	data, err := e.MarshalSnapshot()
	require.NoError(t, err)

	restored, err := UnmarshalSnapshot(data)
	require.NoError(t, err)
	assert.Equal(t, ExecutionStatusSuspended, restored.Status())
	assert.Equal(t, "start", restored.SuspendedNodeKey())
	assert.Equal(t, SuspensionTypeWebhook, restored.SuspensionType())
}
