package engine

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/stepflow-dev/stepflow/internal/domain"
)

// GraphExecutor is the incremental, suspension-aware sequential evaluator of
// §4.8: it repeatedly picks the next ready active node, dispatches it
// through the Node Executor, folds the result back into the Execution
// aggregate, and stops on completion, suspension, failure, or cancellation.
type GraphExecutor struct {
	cache      *GraphCache
	nodeExec   *NodeExecutor
	registry   *Registry
	middleware *MiddlewareChain
	log        zerolog.Logger
}

func NewGraphExecutor(cache *GraphCache, nodeExec *NodeExecutor, registry *Registry, middleware *MiddlewareChain, log zerolog.Logger) *GraphExecutor {
	return &GraphExecutor{cache: cache, nodeExec: nodeExec, registry: registry, middleware: middleware, log: log}
}

// Execute compiles (workflow, triggerNodeKey) if needed, starts a fresh
// Execution, and drives it to completion, suspension, or failure.
func (ge *GraphExecutor) Execute(
	ctx context.Context,
	workflow *domain.Workflow,
	triggerNodeKey, triggerType string,
	triggerData, vars map[string]any,
	maxIterations int,
	env any,
) (*domain.Execution, error) {
	graph, err := ge.cache.Compile(workflow, triggerNodeKey)
	if err != nil {
		return nil, err
	}

	exec := domain.NewExecution(graph, triggerType, triggerData, vars, maxIterations)
	exec.SetEnv(env)
	exec.Start()
	exec.MarkRunning()
	ge.middleware.Fire(EventExecutionStarted, map[string]any{
		"execution_id": exec.ID().String(),
		"workflow_id":  graph.WorkflowID,
	})

	ge.run(ctx, graph, exec)
	return exec, nil
}

// Resume continues a suspended Execution: it re-dispatches the suspended
// node (re-invoking Execute for a :retry suspension, or the action's Resume
// hook for every other suspension type) and then drives the main loop
// forward. exec must already have its runtime cache populated — freshly
// via the live in-memory instance, or via RebuildRuntime after
// RebuildFromEvents for a cold-started host.
func (ge *GraphExecutor) Resume(
	ctx context.Context,
	workflow *domain.Workflow,
	triggerNodeKey string,
	exec *domain.Execution,
	resumeData map[string]any,
	env any,
) (*domain.Execution, error) {
	if exec.Status() != domain.ExecutionStatusSuspended {
		return exec, domain.NewError(domain.ErrCodeNotSuspended, "execution is not suspended", nil)
	}
	graph, err := ge.cache.Compile(workflow, triggerNodeKey)
	if err != nil {
		return nil, err
	}
	exec.SetEnv(env)

	nodeKey := exec.SuspendedNodeKey()
	suspType := exec.SuspensionType()
	priorAttempt := attemptNumberFromSuspension(exec.SuspensionData())
	node, ok := graph.NodeMap[nodeKey]
	if !ok {
		return exec, domain.NewError(domain.ErrCodeInvalidWorkflow, "suspended node is no longer part of the compiled graph", nil)
	}
	suspended, _ := exec.LatestNodeExecution(nodeKey)

	if err := exec.ResumeSuspension(); err != nil {
		return exec, err
	}

	routedInput := exec.RoutedInput(graph, nodeKey, ge.registry.InputPorts(node.Type))

	var ne domain.NodeExecution
	var outcome NodeOutcome
	if suspType == domain.SuspensionTypeRetry {
		ne, outcome = ge.nodeExec.Execute(ctx, graph, node, exec, routedInput, suspended.ExecutionIndex, suspended.RunIndex, priorAttempt)
	} else {
		ne, outcome = ge.nodeExec.Resume(ctx, graph, node, exec, routedInput, suspended.ExecutionIndex, suspended.RunIndex, resumeData)
	}

	if !ge.fold(graph, exec, node, ne, outcome) {
		return exec, nil
	}

	ge.run(ctx, graph, exec)
	return exec, nil
}

// Cancel marks a running or suspended execution cancelled. A running main
// loop sees the cancelled status at the top of its next iteration and stops
// without dispatching further nodes; for an already-suspended execution (no
// loop currently running) it takes effect immediately.
func (ge *GraphExecutor) Cancel(exec *domain.Execution) {
	exec.Cancel()
}

// run is the §4.8 main loop. It returns once the execution reaches a
// terminal or suspended state.
func (ge *GraphExecutor) run(ctx context.Context, graph *domain.ExecutionGraph, exec *domain.Execution) {
	for {
		if exec.Status() == domain.ExecutionStatusCancelled {
			return
		}
		if err := ctx.Err(); err != nil {
			exec.Cancel()
			return
		}

		if len(exec.ActiveNodes()) == 0 {
			exec.Complete()
			ge.middleware.Fire(EventExecutionCompleted, map[string]any{
				"execution_id": exec.ID().String(),
				"workflow_id":  graph.WorkflowID,
			})
			return
		}

		if exec.IterationCount() >= exec.MaxIterations() {
			exec.Fail(domain.NewError(domain.ErrCodeInfiniteLoopProtection,
				"iteration count reached max_iterations without completing", map[string]any{
					"iteration_count": exec.IterationCount(),
					"max_iterations":  exec.MaxIterations(),
				}))
			ge.middleware.Fire(EventExecutionFailed, map[string]any{
				"execution_id": exec.ID().String(),
				"workflow_id":  graph.WorkflowID,
			})
			return
		}

		key, ready := exec.FindNextReadyNode(graph, ge.registry.InputPorts)
		if !ready {
			exec.Fail(domain.NewError(domain.ErrCodeWorkflowError,
				"execution stalled: active nodes remain but none has satisfied input ports", nil))
			ge.middleware.Fire(EventExecutionFailed, map[string]any{
				"execution_id": exec.ID().String(),
				"workflow_id":  graph.WorkflowID,
			})
			return
		}

		node := graph.NodeMap[key]
		executionIndex := exec.CurrentExecutionIndex()
		runIndex := exec.GetNextRunIndex(key)
		routedInput := exec.RoutedInput(graph, key, ge.registry.InputPorts(node.Type))

		ne, outcome := ge.nodeExec.Execute(ctx, graph, node, exec, routedInput, executionIndex, runIndex, 0)

		if !ge.fold(graph, exec, node, ne, outcome) {
			return
		}
	}
}

// fold applies one dispatch's outcome to exec: records the NodeExecution,
// tracks loopback iteration counting, and raises the workflow-level
// suspended/failed transition where applicable. It returns true if the main
// loop should keep running, false if it already reached a stopping point.
func (ge *GraphExecutor) fold(graph *domain.ExecutionGraph, exec *domain.Execution, node domain.Node, ne domain.NodeExecution, outcome NodeOutcome) bool {
	wasInActivePath := exec.InActivePath(node.Key)
	exec.AddNodeExecution(ne, graph)

	switch outcome {
	case OutcomeCompleted:
		if wasInActivePath {
			exec.IncrementIterationCount()
		}
		ge.middleware.Fire(EventNodeCompleted, map[string]any{
			"execution_id": exec.ID().String(),
			"node_key":     node.Key,
			"output_port":  ne.OutputPort,
		})
		return true

	case OutcomeSuspended:
		exec.Suspend(node.Key, ne.SuspensionType, ne.SuspensionData)
		ge.middleware.Fire(EventNodeCompleted, map[string]any{
			"execution_id":    exec.ID().String(),
			"node_key":        node.Key,
			"suspension_type": string(ne.SuspensionType),
		})
		return false

	default: // OutcomeFailed
		exec.Fail(ne.ErrorData)
		ge.middleware.Fire(EventNodeFailed, map[string]any{
			"execution_id": exec.ID().String(),
			"node_key":     node.Key,
		})
		ge.middleware.Fire(EventExecutionFailed, map[string]any{
			"execution_id": exec.ID().String(),
			"workflow_id":  graph.WorkflowID,
		})
		return false
	}
}
