package websocket

import "time"

// Observer returns a MiddlewareFunc-shaped function (matching
// engine.MiddlewareFunc's signature without importing the engine package,
// since that dependency direction already runs the other way for the
// root facade's wiring) that broadcasts every event to hub, unchanged.
func Observer(hub *Hub) func(event string, data map[string]any, next func(map[string]any) map[string]any) map[string]any {
	return func(event string, data map[string]any, next func(map[string]any) map[string]any) map[string]any {
		executionID, _ := data["execution_id"].(string)
		workflowID, _ := data["workflow_id"].(string)
		nodeKey, _ := data["node_key"].(string)
		hub.Broadcast(executionID, &Event{
			Type:        event,
			ExecutionID: executionID,
			WorkflowID:  workflowID,
			NodeKey:     nodeKey,
			Data:        data,
			Timestamp:   time.Now(),
		})
		return next(data)
	}
}
