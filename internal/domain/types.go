package domain

// NodeStatus is the lifecycle status of a single NodeExecution record.
type NodeStatus string

const (
	NodeStatusPending   NodeStatus = "pending"
	NodeStatusRunning   NodeStatus = "running"
	NodeStatusCompleted NodeStatus = "completed"
	NodeStatusFailed    NodeStatus = "failed"
	NodeStatusSuspended NodeStatus = "suspended"
)

// ExecutionStatus is the lifecycle status of a WorkflowExecution.
type ExecutionStatus string

const (
	ExecutionStatusPending   ExecutionStatus = "pending"
	ExecutionStatusRunning   ExecutionStatus = "running"
	ExecutionStatusSuspended ExecutionStatus = "suspended"
	ExecutionStatusCompleted ExecutionStatus = "completed"
	ExecutionStatusFailed    ExecutionStatus = "failed"
	ExecutionStatusCancelled ExecutionStatus = "cancelled"
	ExecutionStatusTimeout   ExecutionStatus = "timeout"
)

// IsTerminal reports whether status admits no further transitions.
func (s ExecutionStatus) IsTerminal() bool {
	switch s {
	case ExecutionStatusCompleted, ExecutionStatusFailed, ExecutionStatusCancelled, ExecutionStatusTimeout:
		return true
	default:
		return false
	}
}

// ExecutionMode controls how the host drives a WorkflowExecution relative
// to the caller that triggered it. The engine itself is indifferent to the
// mode; it is carried for the host's dispatch decisions.
type ExecutionMode string

const (
	ExecutionModeSync          ExecutionMode = "sync"
	ExecutionModeAsync         ExecutionMode = "async"
	ExecutionModeFireAndForget ExecutionMode = "fire_and_forget"
)

// SuspensionType names the standardized suspension payload shapes of §4.6.
type SuspensionType string

const (
	SuspensionTypeWebhook     SuspensionType = "webhook"
	SuspensionTypeInterval    SuspensionType = "interval"
	SuspensionTypeSchedule    SuspensionType = "schedule"
	SuspensionTypeSubWorkflow SuspensionType = "sub_workflow"
	SuspensionTypeRetry       SuspensionType = "retry"
)

// LoopRole classifies a node's position within a compiled loop.
type LoopRole string

const (
	LoopRoleNotInLoop LoopRole = "not_in_loop"
	LoopRoleStartLoop LoopRole = "start_loop"
	LoopRoleInLoop    LoopRole = "in_loop"
	LoopRoleEndLoop   LoopRole = "end_loop"
)

// OnErrorPolicy is the per-node rule applied once retries are exhausted.
type OnErrorPolicy string

const (
	OnErrorStopWorkflow        OnErrorPolicy = "stop_workflow"
	OnErrorContinue            OnErrorPolicy = "continue"
	OnErrorContinueErrorOutput OnErrorPolicy = "continue_error_output"
)

// DefaultOutputPort is used when an action's Ok result omits an explicit port.
const DefaultOutputPort = "main"

// ErrorOutputPort is the virtual port synthesized by OnErrorContinueErrorOutput;
// it bypasses the declared-output-port check.
const ErrorOutputPort = "error"

// WildcardPort marks an action whose output_ports accept any non-empty string.
const WildcardPort = "*"
