package monitoring

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsCollector_RecordsWorkflowExecution(t *testing.T) {
	mc := NewMetricsCollector()
	mc.RecordWorkflowExecution("wf-1", 100*time.Millisecond, true)
	mc.RecordWorkflowExecution("wf-1", 300*time.Millisecond, false)

	summary := mc.GetSummary()
	m, ok := summary.Workflows["wf-1"]
	require.True(t, ok)
	assert.Equal(t, 2, m.ExecutionCount)
	assert.Equal(t, 1, m.SuccessCount)
	assert.Equal(t, 1, m.FailureCount)
	assert.Equal(t, 200*time.Millisecond, m.AverageDuration)
}

func TestMetricsCollector_RecordsNodeExecution(t *testing.T) {
	mc := NewMetricsCollector()
	mc.RecordNodeExecution("node-a", true, false)
	mc.RecordNodeExecution("node-a", false, true)

	summary := mc.GetSummary()
	m, ok := summary.Nodes["node-a"]
	require.True(t, ok)
	assert.Equal(t, 2, m.ExecutionCount)
	assert.Equal(t, 1, m.SuccessCount)
	assert.Equal(t, 1, m.FailureCount)
	assert.Equal(t, 1, m.RetryCount)
}

func TestMetricsCollector_ObserverUpdatesFromEvents(t *testing.T) {
	mc := NewMetricsCollector()
	observer := mc.Observer()

	passthrough := func(d map[string]any) map[string]any { return d }
	observer("execution_completed", map[string]any{"workflow_id": "wf-1"}, passthrough)
	observer("node_failed", map[string]any{"node_key": "node-a"}, passthrough)

	summary := mc.GetSummary()
	assert.Equal(t, 1, summary.Workflows["wf-1"].SuccessCount)
	assert.Equal(t, 1, summary.Nodes["node-a"].FailureCount)
}

func TestMetricsCollector_ObserverAlwaysCallsNext(t *testing.T) {
	mc := NewMetricsCollector()
	observer := mc.Observer()

	called := false
	out := observer("unrelated_event", map[string]any{"a": 1}, func(d map[string]any) map[string]any {
		called = true
		return d
	})
	assert.True(t, called)
	assert.Equal(t, 1, out["a"])
}
