package domain

import "github.com/vmihailenco/msgpack/v5"

// MarshalSnapshot encodes an Execution's ToMap representation as MessagePack,
// a compact alternative to the canonical JSON-compatible map for hosts that
// persist many executions and want cheaper storage than JSON affords. The
// decoded snapshot round-trips through the same FromMap/RebuildRuntime path
// as the canonical map form.
func (e *Execution) MarshalSnapshot() ([]byte, error) {
	return msgpack.Marshal(e.ToMap())
}

// UnmarshalSnapshot decodes a MessagePack-encoded snapshot back into an
// Execution whose persistent fields are populated; RebuildRuntime must
// still be called before the execution can be resumed. FromMap itself
// widens the []interface{}/map[string]interface{} shapes that both
// msgpack's and encoding/json's generic decode into map[string]any produce,
// so no msgpack-specific normalization is needed here.
func UnmarshalSnapshot(data []byte) (*Execution, error) {
	var m map[string]any
	if err := msgpack.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return FromMap(m), nil
}
