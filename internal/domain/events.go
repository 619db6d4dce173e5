package domain

import (
	"time"

	"github.com/google/uuid"
)

// EventType identifies the kind of domain event raised against an
// execution aggregate.
type EventType string

const (
	EventTypeExecutionStarted        EventType = "execution_started"
	EventTypeExecutionCompleted      EventType = "execution_completed"
	EventTypeExecutionFailed         EventType = "execution_failed"
	EventTypeExecutionSuspended      EventType = "execution_suspended"
	EventTypeExecutionResumed        EventType = "execution_resumed"
	EventTypeExecutionCancelled      EventType = "execution_cancelled"
	EventTypeNodeExecutionAdded      EventType = "node_execution_added"
	EventTypeIterationIncremented    EventType = "iteration_incremented"
	EventTypeExecutionContextUpdated EventType = "execution_context_updated"
	EventTypeNodeContextUpdated      EventType = "node_context_updated"
)

// Event is an immutable domain event raised against a WorkflowExecution.
// Replaying events through applyInternal (see RebuildFromEvents) restores
// the lifecycle status, the suspension record and the workflow/node
// contexts; the NodeExecution records themselves are carried separately,
// and RebuildRuntime derives the transient cache from them.
type Event struct {
	ID             uuid.UUID      `json:"id"`
	Type           EventType      `json:"type"`
	ExecutionID    uuid.UUID      `json:"execution_id"`
	SequenceNumber int64          `json:"sequence_number"`
	Timestamp      time.Time      `json:"timestamp"`
	Data           map[string]any `json:"data"`
}

func newEvent(t EventType, executionID uuid.UUID, seq int64, data map[string]any) Event {
	if data == nil {
		data = map[string]any{}
	}
	return Event{
		ID:             uuid.New(),
		Type:           t,
		ExecutionID:    executionID,
		SequenceNumber: seq,
		Timestamp:      time.Now(),
		Data:           data,
	}
}
