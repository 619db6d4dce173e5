package domain

import (
	"time"

	"github.com/google/uuid"
)

// ToMap renders the persistent fields of an Execution to plain structured
// data per the §6 serialization contract: everything needed to reconstruct
// state via RebuildRuntime, and nothing from the transient runtime cache.
func (e *Execution) ToMap() map[string]any {
	e.mu.RLock()
	defer e.mu.RUnlock()

	nodeExecutions := make(map[string]any, len(e.nodeExecutions))
	for key, list := range e.nodeExecutions {
		recs := make([]map[string]any, 0, len(list))
		for _, ne := range list {
			recs = append(recs, ne.ToMap())
		}
		nodeExecutions[key] = recs
	}

	activePaths := make(map[string]any, len(e.activePaths))
	for k, v := range e.activePaths {
		activePaths[k] = map[string]any{"execution_index": v.ExecutionIndex}
	}

	m := map[string]any{
		"id":                      e.id.String(),
		"workflow_id":             e.workflowID,
		"version":                 e.version,
		"mode":                    string(e.mode),
		"trigger_node_key":        e.triggerNodeKey,
		"status":                  string(e.status),
		"node_executions":         nodeExecutions,
		"current_execution_index": e.currentExecutionIndex,
		"context_data": map[string]any{
			"workflow": e.workflowContext,
			"node":     e.nodeContext,
		},
		"active_paths":     activePaths,
		"active_nodes":     e.activeNodes,
		"preparation_data": e.preparationData,
		"trigger_type":     e.triggerType,
		"trigger_data":     e.triggerData,
		"vars":             e.vars,
		"max_iterations":   e.maxIterations,
	}
	if e.startedAt != nil {
		m["started_at"] = e.startedAt.Format(time.RFC3339Nano)
	}
	if e.completedAt != nil {
		m["completed_at"] = e.completedAt.Format(time.RFC3339Nano)
	}
	if e.err != nil {
		m["error"] = e.err.ToMap()
	}
	if e.parentExecutionID != nil {
		m["parent_execution_id"] = e.parentExecutionID.String()
	}
	if e.suspendedNodeKey != "" {
		m["suspended_node_key"] = e.suspendedNodeKey
		m["suspension_type"] = string(e.suspensionType)
		m["suspension_data"] = e.suspensionData
		if e.suspendedAt != nil {
			m["suspended_at"] = e.suspendedAt.Format(time.RFC3339Nano)
		}
	}
	return m
}

// FromMap reconstructs an Execution's persistent fields from the plain
// structured data produced by ToMap. The transient runtime cache is left
// empty; callers must call RebuildRuntime before resuming execution.
func FromMap(m map[string]any) *Execution {
	e := &Execution{
		nodeExecutions:  make(map[string][]NodeExecution),
		workflowContext: make(map[string]any),
		nodeContext:     make(map[string]map[string]any),
		activePaths:     make(map[string]ActivePathEntry),
		activeNodes:     make(map[string]int),
		preparationData: make(map[string]map[string]any),
		nodes:           make(map[string]map[string]any),
	}

	if id, err := uuid.Parse(anyToString(m["id"])); err == nil {
		e.id = id
	}
	e.workflowID, _ = m["workflow_id"].(string)
	e.version, _ = m["version"].(string)
	e.mode = ExecutionMode(anyToString(m["mode"]))
	e.triggerNodeKey, _ = m["trigger_node_key"].(string)
	e.status = ExecutionStatus(anyToString(m["status"]))
	if pidStr, ok := m["parent_execution_id"].(string); ok && pidStr != "" {
		if pid, err := uuid.Parse(pidStr); err == nil {
			e.parentExecutionID = &pid
		}
	}

	if neRaw, ok := m["node_executions"].(map[string]any); ok {
		for key, v := range neRaw {
			list := asRecordList(v)
			recs := make([]NodeExecution, 0, len(list))
			for _, rm := range list {
				recs = append(recs, NodeExecutionFromMap(rm))
			}
			e.nodeExecutions[key] = recs
		}
	}
	e.currentExecutionIndex = toInt(m["current_execution_index"])
	if ctx, ok := m["context_data"].(map[string]any); ok {
		if wf, ok := ctx["workflow"].(map[string]any); ok {
			e.workflowContext = wf
		}
		if nc := asNestedStringMap(ctx["node"]); nc != nil {
			e.nodeContext = nc
		}
	}
	if ap, ok := m["active_paths"].(map[string]any); ok {
		for k, v := range ap {
			if entry, ok := v.(map[string]any); ok {
				e.activePaths[k] = ActivePathEntry{ExecutionIndex: toInt(entry["execution_index"])}
			}
		}
	}
	switch an := m["active_nodes"].(type) {
	case map[string]int:
		e.activeNodes = an
	case map[string]any:
		for k, v := range an {
			e.activeNodes[k] = toInt(v)
		}
	}
	if pd := asNestedStringMap(m["preparation_data"]); pd != nil {
		e.preparationData = pd
	}
	e.triggerType, _ = m["trigger_type"].(string)
	e.triggerData, _ = m["trigger_data"].(map[string]any)
	e.vars, _ = m["vars"].(map[string]any)
	if mi := toInt(m["max_iterations"]); mi > 0 {
		e.maxIterations = mi
	}
	if s, ok := m["started_at"].(string); ok {
		t, _ := time.Parse(time.RFC3339Nano, s)
		e.startedAt = &t
	}
	if s, ok := m["completed_at"].(string); ok {
		t, _ := time.Parse(time.RFC3339Nano, s)
		e.completedAt = &t
	}
	if errMap, ok := m["error"].(map[string]any); ok {
		e.err = errorFromMap(errMap)
	}
	if s, ok := m["suspended_node_key"].(string); ok && s != "" {
		e.suspendedNodeKey = s
		e.suspensionType = SuspensionType(anyToString(m["suspension_type"]))
		e.suspensionData, _ = m["suspension_data"].(map[string]any)
		if s, ok := m["suspended_at"].(string); ok {
			t, _ := time.Parse(time.RFC3339Nano, s)
			e.suspendedAt = &t
		}
	}
	return e
}

// asRecordList widens a decoded node_executions-list value into
// []map[string]any. A native []map[string]any survives unchanged (the
// in-memory ToMap/FromMap path, and msgpack's string-keyed map decoding);
// json.Unmarshal into map[string]any always produces []interface{} of
// map[string]interface{} for a JSON array of objects, so that shape is
// widened here too rather than silently dropping the audit trail.
func asRecordList(v any) []map[string]any {
	switch list := v.(type) {
	case []map[string]any:
		return list
	case []any:
		recs := make([]map[string]any, 0, len(list))
		for _, item := range list {
			if rm, ok := item.(map[string]any); ok {
				recs = append(recs, rm)
			}
		}
		return recs
	default:
		return nil
	}
}

// asNestedStringMap widens a decoded value into map[string]map[string]any.
// A native map[string]map[string]any survives unchanged; json.Unmarshal into
// map[string]any always produces map[string]interface{} of
// map[string]interface{} for a JSON object of objects, so that shape is
// widened here too.
func asNestedStringMap(v any) map[string]map[string]any {
	switch m := v.(type) {
	case map[string]map[string]any:
		return m
	case map[string]any:
		out := make(map[string]map[string]any, len(m))
		for k, val := range m {
			if inner, ok := val.(map[string]any); ok {
				out[k] = inner
			}
		}
		return out
	default:
		return nil
	}
}

// toInt widens the numeric types that plain-map decoding (JSON or msgpack)
// may produce for an integer field into a single int.
func toInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int8:
		return int(n)
	case int16:
		return int(n)
	case int32:
		return int(n)
	case int64:
		return int(n)
	case uint8:
		return int(n)
	case uint16:
		return int(n)
	case uint32:
		return int(n)
	case uint64:
		return int(n)
	case float64:
		return int(n)
	default:
		return 0
	}
}
