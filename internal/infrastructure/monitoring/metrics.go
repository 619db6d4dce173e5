// Package monitoring collects execution/node metrics as a plain in-memory
// MiddlewareFunc-compatible observer.
package monitoring

import (
	"sync"
	"time"
)

// WorkflowMetrics aggregates outcomes for one workflow across executions.
type WorkflowMetrics struct {
	WorkflowID      string        `json:"workflow_id"`
	ExecutionCount  int           `json:"execution_count"`
	SuccessCount    int           `json:"success_count"`
	FailureCount    int           `json:"failure_count"`
	TotalDuration   time.Duration `json:"total_duration"`
	AverageDuration time.Duration `json:"average_duration"`
	LastExecutionAt time.Time     `json:"last_execution_at"`
}

// NodeMetrics aggregates outcomes for one node key across dispatches.
type NodeMetrics struct {
	NodeKey        string `json:"node_key"`
	ExecutionCount int    `json:"execution_count"`
	SuccessCount   int    `json:"success_count"`
	FailureCount   int    `json:"failure_count"`
	RetryCount     int    `json:"retry_count"`
}

// MetricsCollector is a concurrency-safe sink for execution and node
// outcome counters, queried via GetSummary for host-side reporting.
type MetricsCollector struct {
	mu              sync.RWMutex
	workflowMetrics map[string]*WorkflowMetrics
	nodeMetrics     map[string]*NodeMetrics
}

func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{
		workflowMetrics: make(map[string]*WorkflowMetrics),
		nodeMetrics:     make(map[string]*NodeMetrics),
	}
}

func (mc *MetricsCollector) RecordWorkflowExecution(workflowID string, duration time.Duration, success bool) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	m, ok := mc.workflowMetrics[workflowID]
	if !ok {
		m = &WorkflowMetrics{WorkflowID: workflowID}
		mc.workflowMetrics[workflowID] = m
	}
	m.ExecutionCount++
	if success {
		m.SuccessCount++
	} else {
		m.FailureCount++
	}
	m.TotalDuration += duration
	m.AverageDuration = m.TotalDuration / time.Duration(m.ExecutionCount)
	m.LastExecutionAt = time.Now()
}

func (mc *MetricsCollector) RecordNodeExecution(nodeKey string, success, isRetry bool) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	m, ok := mc.nodeMetrics[nodeKey]
	if !ok {
		m = &NodeMetrics{NodeKey: nodeKey}
		mc.nodeMetrics[nodeKey] = m
	}
	m.ExecutionCount++
	if success {
		m.SuccessCount++
	} else {
		m.FailureCount++
	}
	if isRetry {
		m.RetryCount++
	}
}

// Summary is the host-facing read model GetSummary returns.
type Summary struct {
	Workflows map[string]WorkflowMetrics `json:"workflows"`
	Nodes     map[string]NodeMetrics     `json:"nodes"`
}

func (mc *MetricsCollector) GetSummary() Summary {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	s := Summary{
		Workflows: make(map[string]WorkflowMetrics, len(mc.workflowMetrics)),
		Nodes:     make(map[string]NodeMetrics, len(mc.nodeMetrics)),
	}
	for k, v := range mc.workflowMetrics {
		s.Workflows[k] = *v
	}
	for k, v := range mc.nodeMetrics {
		s.Nodes[k] = *v
	}
	return s
}

// Observer returns a middleware-shaped function that updates the collector
// from engine-fired events and always passes data through unchanged.
func (mc *MetricsCollector) Observer() func(event string, data map[string]any, next func(map[string]any) map[string]any) map[string]any {
	return func(event string, data map[string]any, next func(map[string]any) map[string]any) map[string]any {
		switch event {
		case "execution_completed":
			if wfID, ok := data["workflow_id"].(string); ok {
				mc.RecordWorkflowExecution(wfID, 0, true)
			}
		case "execution_failed":
			if wfID, ok := data["workflow_id"].(string); ok {
				mc.RecordWorkflowExecution(wfID, 0, false)
			}
		case "node_completed":
			if nodeKey, ok := data["node_key"].(string); ok {
				mc.RecordNodeExecution(nodeKey, true, false)
			}
		case "node_failed":
			if nodeKey, ok := data["node_key"].(string); ok {
				mc.RecordNodeExecution(nodeKey, false, false)
			}
		}
		return next(data)
	}
}
