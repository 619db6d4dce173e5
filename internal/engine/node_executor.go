package engine

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/stepflow-dev/stepflow/internal/domain"
)

// NodeOutcome tags what happened to a dispatched node, mirroring the
// Ok/Suspend/Err result of §4.5's contract.
type NodeOutcome int

const (
	OutcomeCompleted NodeOutcome = iota
	OutcomeSuspended
	OutcomeFailed
)

// NodeExecutor implements §4.5: resolve the action, template-expand and
// validate params, invoke it, classify the result, and apply retry / on
// error policy on failure.
type NodeExecutor struct {
	registry  *Registry
	evaluator Evaluator
	log       zerolog.Logger
	now       func() time.Time
}

func NewNodeExecutor(registry *Registry, evaluator Evaluator, log zerolog.Logger) *NodeExecutor {
	return &NodeExecutor{registry: registry, evaluator: evaluator, log: log, now: time.Now}
}

// Execute dispatches node for the given execution_index/run_index, with
// routedInput already resolved per §4.4. priorAttempt is 0 on a fresh
// dispatch and the previous retry suspension's attempt_number when this
// call is the re-invocation driven by Resume for a :retry suspension.
func (ne *NodeExecutor) Execute(
	ctx context.Context,
	graph *domain.ExecutionGraph,
	node domain.Node,
	exec *domain.Execution,
	routedInput map[string]any,
	executionIndex, runIndex, priorAttempt int,
) (domain.NodeExecution, NodeOutcome) {
	started := ne.now()

	action, ok := ne.registry.Lookup(node.Type)
	if !ok {
		return ne.fatal(node, executionIndex, runIndex, started, domain.ErrCodeActionNotFound,
			"no action registered for node type \""+node.Type+"\""), OutcomeFailed
	}

	if preparer, ok := action.(Preparer); ok {
		if _, already := exec.PreparationData(node.Key); !already {
			data, err := preparer.Prepare(ctx, node)
			if err != nil {
				return ne.fatal(node, executionIndex, runIndex, started, domain.ErrCodeActionPreparationFailed, err.Error()), OutcomeFailed
			}
			exec.SetPreparationData(node.Key, data)
		}
	}

	actx := ne.buildContext(graph, node, exec, routedInput)
	evalCtx := map[string]any{
		"input":     actx.Input,
		"nodes":     actx.Nodes,
		"vars":      actx.Vars,
		"env":       actx.Env,
		"workflow":  map[string]any{"id": actx.Workflow.ID, "version": actx.Workflow.Version},
		"execution": map[string]any{"id": actx.Execution.ID, "state": actx.Execution.State},
	}
	expandedAny, err := ne.evaluator.Evaluate(node.Params, evalCtx)
	if err != nil {
		// The evaluator contract treats missing paths as nil, not errors;
		// a non-nil error here means the evaluator itself malfunctioned.
		return ne.fatal(node, executionIndex, runIndex, started, domain.ErrCodeWorkflowError, err.Error()), OutcomeFailed
	}
	expanded, _ := expandedAny.(map[string]any)

	def := action.Definition()
	if def.ParamsSchema != nil {
		if verr := def.ParamsSchema.Validate(expanded); verr != nil {
			return ne.handleError(node, action, exec, expanded, executionIndex, runIndex, started,
				domain.ErrCodeWorkflowError, "action parameters validation failed: "+verr.Error(), priorAttempt, true)
		}
	}

	result, execErr := action.Execute(ctx, expanded, actx)
	if execErr != nil {
		return ne.handleError(node, action, exec, expanded, executionIndex, runIndex, started,
			domain.ErrCodeActionExecutionFailed, execErr.Error(), priorAttempt, false)
	}

	switch result.Kind {
	case ActionResultOk:
		port := result.Port
		if port == "" {
			port = firstOutputPort(def)
		}
		if verr := validatePort(def, port); verr != nil {
			return ne.fatal(node, executionIndex, runIndex, started, domain.ErrCodeInvalidOutputPort, verr.Error()), OutcomeFailed
		}
		if len(result.ContextUpdates) > 0 {
			exec.UpdateExecutionContext(result.ContextUpdates)
		}
		return ne.completed(node, expanded, executionIndex, runIndex, started, result.Data, port), OutcomeCompleted

	case ActionResultSuspend:
		ne2 := domain.NodeExecution{
			NodeKey:        node.Key,
			Status:         domain.NodeStatusSuspended,
			Params:         expanded,
			StartedAt:      started,
			ExecutionIndex: executionIndex,
			RunIndex:       runIndex,
			SuspensionType: result.SuspensionType,
			SuspensionData: result.SuspensionData,
		}
		return ne2, OutcomeSuspended

	case ActionResultErr:
		return ne.handleError(node, action, exec, expanded, executionIndex, runIndex, started,
			domain.ErrCodeActionError, result.ErrReason, priorAttempt, false)

	default:
		return ne.fatal(node, executionIndex, runIndex, started, domain.ErrCodeInvalidReturnFormat,
			"action returned an unrecognized result"), OutcomeFailed
	}
}

// Resume re-dispatches a suspended node for §4.6. For a :retry suspension
// the caller is expected to call Execute directly (re-invoking the action's
// Execute, not Resume); this method handles every other suspension type by
// calling the action's optional Resume hook.
func (ne *NodeExecutor) Resume(
	ctx context.Context,
	graph *domain.ExecutionGraph,
	node domain.Node,
	exec *domain.Execution,
	routedInput map[string]any,
	executionIndex, runIndex int,
	resumeData map[string]any,
) (domain.NodeExecution, NodeOutcome) {
	started := ne.now()
	action, ok := ne.registry.Lookup(node.Type)
	if !ok {
		return ne.fatal(node, executionIndex, runIndex, started, domain.ErrCodeActionNotFound,
			"no action registered for node type \""+node.Type+"\""), OutcomeFailed
	}
	resumer, ok := action.(Resumer)
	if !ok {
		return ne.fatal(node, executionIndex, runIndex, started, domain.ErrCodeInvalidReturnFormat,
			"action does not support resume"), OutcomeFailed
	}

	actx := ne.buildContext(graph, node, exec, routedInput)
	def := action.Definition()
	latest, _ := exec.LatestNodeExecution(node.Key)
	result, execErr := resumer.Resume(ctx, latest.Params, actx, resumeData)
	if execErr != nil {
		return ne.handleError(node, action, exec, latest.Params, executionIndex, runIndex, started,
			domain.ErrCodeActionExecutionFailed, execErr.Error(), 0, false)
	}

	switch result.Kind {
	case ActionResultOk:
		port := result.Port
		if port == "" {
			port = firstOutputPort(def)
		}
		if verr := validatePort(def, port); verr != nil {
			return ne.fatal(node, executionIndex, runIndex, started, domain.ErrCodeInvalidOutputPort, verr.Error()), OutcomeFailed
		}
		if len(result.ContextUpdates) > 0 {
			exec.UpdateExecutionContext(result.ContextUpdates)
		}
		return ne.completed(node, latest.Params, executionIndex, runIndex, started, result.Data, port), OutcomeCompleted
	case ActionResultSuspend:
		ne2 := domain.NodeExecution{
			NodeKey:        node.Key,
			Status:         domain.NodeStatusSuspended,
			Params:         latest.Params,
			StartedAt:      started,
			ExecutionIndex: executionIndex,
			RunIndex:       runIndex,
			SuspensionType: result.SuspensionType,
			SuspensionData: result.SuspensionData,
		}
		return ne2, OutcomeSuspended
	case ActionResultErr:
		return ne.handleError(node, action, exec, latest.Params, executionIndex, runIndex, started,
			domain.ErrCodeActionError, result.ErrReason, 0, false)
	default:
		return ne.fatal(node, executionIndex, runIndex, started, domain.ErrCodeInvalidReturnFormat,
			"action resume returned an unrecognized result"), OutcomeFailed
	}
}

func (ne *NodeExecutor) buildContext(graph *domain.ExecutionGraph, node domain.Node, exec *domain.Execution, routedInput map[string]any) *ActionContext {
	actx := &ActionContext{
		Input: routedInput,
		Nodes: exec.Nodes(),
		Vars:  exec.Vars(),
		Env:   exec.Env(),
	}
	actx.Workflow.ID = graph.WorkflowID
	actx.Workflow.Version = graph.Version
	actx.Execution.ID = exec.ID().String()
	actx.Execution.State = exec.WorkflowContext()
	return actx
}

func (ne *NodeExecutor) completed(node domain.Node, params map[string]any, executionIndex, runIndex int, started time.Time, data map[string]any, port string) domain.NodeExecution {
	now := ne.now()
	return domain.NodeExecution{
		NodeKey:        node.Key,
		Status:         domain.NodeStatusCompleted,
		Params:         params,
		OutputData:     data,
		OutputPort:     port,
		StartedAt:      started,
		CompletedAt:    &now,
		DurationMs:     now.Sub(started).Milliseconds(),
		ExecutionIndex: executionIndex,
		RunIndex:       runIndex,
	}
}

func (ne *NodeExecutor) fatal(node domain.Node, executionIndex, runIndex int, started time.Time, code domain.ErrorCode, message string) domain.NodeExecution {
	now := ne.now()
	return domain.NodeExecution{
		NodeKey:        node.Key,
		Status:         domain.NodeStatusFailed,
		ErrorData:      domain.NewError(code, message, nil),
		StartedAt:      started,
		CompletedAt:    &now,
		DurationMs:     now.Sub(started).Milliseconds(),
		ExecutionIndex: executionIndex,
		RunIndex:       runIndex,
	}
}

// handleError applies retry policy first, then the on-error policy, per
// §4.5 steps 9. skipRetry is set for validation failures, which §4.5 step 5
// says are routed straight through on-error policy without a retry pass.
func (ne *NodeExecutor) handleError(
	node domain.Node,
	action Action,
	exec *domain.Execution,
	params map[string]any,
	executionIndex, runIndex int,
	started time.Time,
	code domain.ErrorCode,
	message string,
	priorAttempt int,
	skipRetry bool,
) (domain.NodeExecution, NodeOutcome) {
	domainErr := domain.NewError(code, message, nil)

	if !skipRetry {
		decision := decideRetry(node.Settings.Retry, priorAttempt, ne.now())
		if decision.shouldRetry {
			ne2 := domain.NodeExecution{
				NodeKey:        node.Key,
				Status:         domain.NodeStatusSuspended,
				Params:         params,
				StartedAt:      started,
				ExecutionIndex: executionIndex,
				RunIndex:       runIndex,
				SuspensionType: domain.SuspensionTypeRetry,
				SuspensionData: map[string]any{
					"attempt_number": decision.attemptNumber,
					"max_attempts":   decision.maxAttempts,
					"retry_delay_ms": node.Settings.Retry.RetryDelayMs,
					"resume_at":      decision.resumeAt.Format(time.RFC3339Nano),
					"original_error": domainErr.ToMap(),
				},
			}
			return ne2, OutcomeSuspended
		}
	}

	switch node.Settings.OnError {
	case domain.OnErrorContinue:
		port := firstOutputPort(action.Definition())
		return ne.completed(node, params, executionIndex, runIndex, started, domainErr.ToMap(), port), OutcomeCompleted
	case domain.OnErrorContinueErrorOutput:
		return ne.completed(node, params, executionIndex, runIndex, started, domainErr.ToMap(), domain.ErrorOutputPort), OutcomeCompleted
	default: // stop_workflow, the default
		now := ne.now()
		return domain.NodeExecution{
			NodeKey:        node.Key,
			Status:         domain.NodeStatusFailed,
			Params:         params,
			ErrorData:      domainErr,
			StartedAt:      started,
			CompletedAt:    &now,
			DurationMs:     now.Sub(started).Milliseconds(),
			ExecutionIndex: executionIndex,
			RunIndex:       runIndex,
		}, OutcomeFailed
	}
}

func firstOutputPort(def ActionDefinition) string {
	if len(def.OutputPorts) > 0 && def.OutputPorts[0] != domain.WildcardPort {
		return def.OutputPorts[0]
	}
	return domain.DefaultOutputPort
}
