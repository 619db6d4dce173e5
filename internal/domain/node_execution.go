package domain

import "time"

// NodeExecution is one recorded attempt to run a node: the audit-trail unit.
type NodeExecution struct {
	NodeKey string     `json:"node_key"`
	Status  NodeStatus `json:"status"`

	Params     map[string]any `json:"params,omitempty"`
	OutputData map[string]any `json:"output_data,omitempty"`
	OutputPort string         `json:"output_port,omitempty"`
	ErrorData  *Error         `json:"error_data,omitempty"`

	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	DurationMs  int64      `json:"duration_ms,omitempty"`

	SuspensionType SuspensionType `json:"suspension_type,omitempty"`
	SuspensionData map[string]any `json:"suspension_data,omitempty"`

	ExecutionIndex int `json:"execution_index"`
	RunIndex       int `json:"run_index"`
}

// ToMap renders the record as plain structured data (§6 serialization).
func (n *NodeExecution) ToMap() map[string]any {
	m := map[string]any{
		"node_key":        n.NodeKey,
		"status":          string(n.Status),
		"params":          n.Params,
		"output_data":     n.OutputData,
		"output_port":     n.OutputPort,
		"started_at":      n.StartedAt.Format(time.RFC3339Nano),
		"duration_ms":     n.DurationMs,
		"execution_index": n.ExecutionIndex,
		"run_index":       n.RunIndex,
	}
	if n.CompletedAt != nil {
		m["completed_at"] = n.CompletedAt.Format(time.RFC3339Nano)
	}
	if n.ErrorData != nil {
		m["error_data"] = n.ErrorData.ToMap()
	}
	if n.SuspensionType != "" {
		m["suspension_type"] = string(n.SuspensionType)
		m["suspension_data"] = n.SuspensionData
	}
	return m
}

// NodeExecutionFromMap reconstructs a NodeExecution from its serialized form.
func NodeExecutionFromMap(m map[string]any) NodeExecution {
	var n NodeExecution
	n.NodeKey, _ = m["node_key"].(string)
	if s, ok := m["status"].(string); ok {
		n.Status = NodeStatus(s)
	}
	n.Params, _ = m["params"].(map[string]any)
	n.OutputData, _ = m["output_data"].(map[string]any)
	n.OutputPort, _ = m["output_port"].(string)
	if s, ok := m["started_at"].(string); ok {
		n.StartedAt, _ = time.Parse(time.RFC3339Nano, s)
	}
	if s, ok := m["completed_at"].(string); ok {
		t, err := time.Parse(time.RFC3339Nano, s)
		if err == nil {
			n.CompletedAt = &t
		}
	}
	n.DurationMs = int64(toInt(m["duration_ms"]))
	if ed, ok := m["error_data"].(map[string]any); ok {
		n.ErrorData = errorFromMap(ed)
	}
	if st, ok := m["suspension_type"].(string); ok {
		n.SuspensionType = SuspensionType(st)
	}
	n.SuspensionData, _ = m["suspension_data"].(map[string]any)
	n.ExecutionIndex = toInt(m["execution_index"])
	n.RunIndex = toInt(m["run_index"])
	return n
}

func errorFromMap(m map[string]any) *Error {
	if m == nil {
		return nil
	}
	e := &Error{}
	e.Code = ErrorCode(anyToString(m["code"]))
	e.Message = anyToString(m["message"])
	e.Details, _ = m["details"].(map[string]any)
	return e
}

func anyToString(v any) string {
	s, _ := v.(string)
	return s
}
