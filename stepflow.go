// Package stepflow is the public SDK surface: compile workflows, execute
// and resume them, register actions, and attach middleware, all against
// the engine internals.
package stepflow

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/stepflow-dev/stepflow/internal/domain"
	"github.com/stepflow-dev/stepflow/internal/engine"
	"github.com/stepflow-dev/stepflow/internal/infrastructure/logger"
)

// Re-exported types and constructors hosts need without reaching into
// internal/.
type (
	Workflow      = domain.Workflow
	Node          = domain.Node
	Connection    = domain.Connection
	Execution     = domain.Execution
	ActionResult  = engine.ActionResult
	ActionContext = engine.ActionContext
	Action        = engine.Action
	Resumer       = engine.Resumer
	Preparer      = engine.Preparer
	Definition    = engine.ActionDefinition
	Schema        = engine.Schema
)

var (
	Ok        = engine.Ok
	OkPort    = engine.OkPort
	OkContext = engine.OkContext
	Suspend   = engine.Suspend
	Err       = engine.Err
	ErrPort   = engine.ErrPort
)

// Option configures an Engine at construction time.
type Option func(*Engine)

// WithLogLevel sets the structured logger's level ("debug"|"info"|"warn"|"error").
func WithLogLevel(level string) Option {
	return func(e *Engine) { e.log = logger.Setup(level) }
}

// WithEnv sets the host environment value exposed to actions as
// ActionContext.Env.
func WithEnv(env any) Option {
	return func(e *Engine) { e.env = env }
}

// WithMaxIterations overrides the default infinite-loop-protection ceiling
// (§4.7) for executions started without an explicit per-call override.
func WithMaxIterations(n int) Option {
	return func(e *Engine) { e.defaultMaxIterations = n }
}

// Engine is the top-level façade: one per host process, holding the action
// registry, the compiled-graph cache, and the middleware chain every
// execution runs through.
type Engine struct {
	registry   *engine.Registry
	evaluator  engine.Evaluator
	compiler   *engine.Compiler
	cache      *engine.GraphCache
	middleware *engine.MiddlewareChain
	nodeExec   *engine.NodeExecutor
	graphExec  *engine.GraphExecutor

	log                  zerolog.Logger
	env                  any
	defaultMaxIterations int
}

// New constructs an Engine ready to register actions and run workflows.
func New(opts ...Option) *Engine {
	e := &Engine{
		registry:             engine.NewRegistry(),
		evaluator:            engine.NewExprEvaluator(),
		compiler:             engine.NewCompiler(),
		defaultMaxIterations: 100,
		log:                  logger.Setup("info"),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.cache = engine.NewGraphCache(e.compiler)
	e.middleware = engine.NewMiddlewareChain(e.log)
	e.nodeExec = engine.NewNodeExecutor(e.registry, e.evaluator, e.log)
	e.graphExec = engine.NewGraphExecutor(e.cache, e.nodeExec, e.registry, e.middleware, e.log)
	return e
}

// RegisterAction binds an Action implementation to a node type string.
func (e *Engine) RegisterAction(nodeType string, action Action) {
	e.registry.Register(nodeType, action)
}

// Use appends a middleware to the event-hook chain (§6). Middlewares run in
// registration order for every event an execution fires.
func (e *Engine) Use(m func(event string, data map[string]any, next func(map[string]any) map[string]any) map[string]any) {
	e.middleware.Use(m)
}

// Compile validates and compiles a workflow against a trigger node, caching
// the result for reuse across executions of the same (workflow, version,
// trigger).
func (e *Engine) Compile(workflow *Workflow, triggerNodeKey string) error {
	_, err := e.cache.Compile(workflow, triggerNodeKey)
	return err
}

// Execute starts a fresh Execution of workflow from triggerNodeKey and runs
// it to completion, suspension, or failure.
func (e *Engine) Execute(ctx context.Context, workflow *Workflow, triggerNodeKey, triggerType string, triggerData, vars map[string]any) (*Execution, error) {
	return e.graphExec.Execute(ctx, workflow, triggerNodeKey, triggerType, triggerData, vars, e.defaultMaxIterations, e.env)
}

// Resume continues a suspended Execution with host-supplied resume data
// (e.g. a webhook callback's body, or nil for a retry/interval/schedule
// wakeup).
func (e *Engine) Resume(ctx context.Context, workflow *Workflow, triggerNodeKey string, exec *Execution, resumeData map[string]any) (*Execution, error) {
	return e.graphExec.Resume(ctx, workflow, triggerNodeKey, exec, resumeData, e.env)
}

// Cancel marks exec cancelled. A running Execute/Resume call sees the
// cancelled status on its next loop iteration and stops there; for an
// already-suspended execution (no loop currently running), Cancel takes
// effect immediately.
func (e *Engine) Cancel(exec *Execution) {
	e.graphExec.Cancel(exec)
}

// RebuildExecution reconstructs a live Execution from a persisted event log
// and audit trail, for a host that stores executions between process
// restarts. env is the environment value to attach for any subsequent
// Resume call.
func (e *Engine) RebuildExecution(workflow *Workflow, triggerNodeKey string, events []domain.Event, auditTrail map[string][]domain.NodeExecution, currentExecutionIndex int) (*Execution, error) {
	graph, err := e.cache.Compile(workflow, triggerNodeKey)
	if err != nil {
		return nil, err
	}
	exec := domain.RebuildFromEvents(triggerNodeKey, events, auditTrail, currentExecutionIndex)
	exec.RebuildRuntime(graph, e.env)
	return exec, nil
}

// DefaultNodeExecutionTimeout is the ambient per-node context deadline a host may
// apply around a single Execute/Resume call; the engine itself does not
// impose one; it is the caller's ctx to set.
const DefaultNodeExecutionTimeout = 30 * time.Second
