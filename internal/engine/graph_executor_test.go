package engine

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stepflow-dev/stepflow/internal/domain"
)

func newTestGraphExecutor() (*GraphExecutor, *Registry) {
	registry := NewRegistry()
	compiler := NewCompiler()
	cache := NewGraphCache(compiler)
	nodeExec := NewNodeExecutor(registry, NewExprEvaluator(), zerolog.Nop())
	mw := NewMiddlewareChain(zerolog.Nop())
	return NewGraphExecutor(cache, nodeExec, registry, mw, zerolog.Nop()), registry
}

// okAction always completes on its first declared output port.
type okAction struct {
	def ActionDefinition
}

func (a *okAction) Definition() ActionDefinition { return a.def }
func (a *okAction) Execute(ctx context.Context, params map[string]any, actx *ActionContext) (ActionResult, error) {
	return OkPort(nil, "main"), nil
}

func linearWorkflowWF() *domain.Workflow {
	return &domain.Workflow{
		ID:      "wf-linear",
		Version: "v1",
		Nodes: []domain.Node{
			{Key: "start", Type: "trigger"},
			{Key: "a", Type: "noop"},
			{Key: "b", Type: "noop"},
		},
		Connections: map[string][]domain.Connection{
			"start": {{FromNodeKey: "start", FromPort: "main", ToNodeKey: "a", ToPort: "input"}},
			"a":     {{FromNodeKey: "a", FromPort: "main", ToNodeKey: "b", ToPort: "input"}},
		},
	}
}

func TestGraphExecutor_LinearChainCompletes(t *testing.T) {
	ge, registry := newTestGraphExecutor()
	def := ActionDefinition{OutputPorts: []string{"main"}}
	registry.Register("trigger", &okAction{def: def})
	registry.Register("noop", &okAction{def: def})

	exec, err := ge.Execute(context.Background(), linearWorkflowWF(), "start", "manual", nil, nil, 100, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.ExecutionStatusCompleted, exec.Status())
	assert.Empty(t, exec.ActiveNodes())

	start, ok := exec.LatestNodeExecution("start")
	require.True(t, ok)
	assert.Equal(t, 0, start.ExecutionIndex)
	a, ok := exec.LatestNodeExecution("a")
	require.True(t, ok)
	assert.Equal(t, 1, a.ExecutionIndex)
	b, ok := exec.LatestNodeExecution("b")
	require.True(t, ok)
	assert.Equal(t, 2, b.ExecutionIndex)
}

func TestGraphExecutor_SimpleLoopHitsIterationProtection(t *testing.T) {
	ge, registry := newTestGraphExecutor()
	def := ActionDefinition{OutputPorts: []string{"main"}}
	registry.Register("trigger", &okAction{def: def})
	registry.Register("noop", &okAction{def: def})

	exec, err := ge.Execute(context.Background(), simpleLoopWorkflow(), "start", "manual", nil, nil, 3, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.ExecutionStatusFailed, exec.Status())
	require.NotNil(t, exec.Error())
	assert.Equal(t, domain.ErrCodeInfiniteLoopProtection, exec.Error().Code)
}

// webhookAction suspends on Execute and completes on Resume, modeling an
// external callback wait.
type webhookAction struct {
	def ActionDefinition
}

func (a *webhookAction) Definition() ActionDefinition { return a.def }
func (a *webhookAction) Execute(ctx context.Context, params map[string]any, actx *ActionContext) (ActionResult, error) {
	return Suspend(domain.SuspensionTypeWebhook, map[string]any{"url": "https://example.com/resume"}), nil
}
func (a *webhookAction) Resume(ctx context.Context, params map[string]any, actx *ActionContext, resumeData map[string]any) (ActionResult, error) {
	return OkPort(resumeData, "main"), nil
}

func webhookWorkflow() *domain.Workflow {
	return &domain.Workflow{
		ID:      "wf-webhook",
		Version: "v1",
		Nodes: []domain.Node{
			{Key: "start", Type: "trigger"},
			{Key: "a", Type: "webhook"},
		},
		Connections: map[string][]domain.Connection{
			"start": {{FromNodeKey: "start", FromPort: "main", ToNodeKey: "a", ToPort: "input"}},
		},
	}
}

func TestGraphExecutor_SuspendsThenResumesToCompletion(t *testing.T) {
	ge, registry := newTestGraphExecutor()
	def := ActionDefinition{OutputPorts: []string{"main"}}
	registry.Register("trigger", &okAction{def: def})
	registry.Register("webhook", &webhookAction{def: def})

	wf := webhookWorkflow()
	exec, err := ge.Execute(context.Background(), wf, "start", "manual", nil, nil, 100, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.ExecutionStatusSuspended, exec.Status())
	assert.Equal(t, "a", exec.SuspendedNodeKey())

	exec, err = ge.Resume(context.Background(), wf, "start", exec, map[string]any{"payload": "ok"}, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.ExecutionStatusCompleted, exec.Status())
}

// flakyThenOkAction fails its first Execute call and succeeds on the next,
// modeling a transient failure recovered by the retry policy.
type flakyThenOkAction struct {
	def   ActionDefinition
	calls int
}

func (a *flakyThenOkAction) Definition() ActionDefinition { return a.def }
func (a *flakyThenOkAction) Execute(ctx context.Context, params map[string]any, actx *ActionContext) (ActionResult, error) {
	a.calls++
	if a.calls == 1 {
		return Err("transient failure"), nil
	}
	return OkPort(nil, "main"), nil
}

func singleNodeWorkflow(nodeType string, settings domain.NodeSettings) *domain.Workflow {
	return &domain.Workflow{
		ID:      "wf-single",
		Version: "v1",
		Nodes: []domain.Node{
			{Key: "start", Type: "trigger"},
			{Key: "a", Type: nodeType, Settings: settings},
		},
		Connections: map[string][]domain.Connection{
			"start": {{FromNodeKey: "start", FromPort: "main", ToNodeKey: "a", ToPort: "input"}},
		},
	}
}

func TestGraphExecutor_RetryThenSucceed(t *testing.T) {
	ge, registry := newTestGraphExecutor()
	def := ActionDefinition{OutputPorts: []string{"main"}}
	registry.Register("trigger", &okAction{def: def})
	flaky := &flakyThenOkAction{def: def}
	registry.Register("flaky", flaky)

	wf := singleNodeWorkflow("flaky", domain.NodeSettings{
		Retry: domain.RetrySettings{RetryOnFailed: true, MaxRetries: 2, RetryDelayMs: 10},
	})

	exec, err := ge.Execute(context.Background(), wf, "start", "manual", nil, nil, 100, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.ExecutionStatusSuspended, exec.Status())
	assert.Equal(t, domain.SuspensionTypeRetry, exec.SuspensionType())

	exec, err = ge.Resume(context.Background(), wf, "start", exec, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.ExecutionStatusCompleted, exec.Status())
	assert.Equal(t, 2, flaky.calls)
}

// alwaysFailsAction always returns Err, modeling a permanently broken step.
type alwaysFailsAction struct {
	def ActionDefinition
}

func (a *alwaysFailsAction) Definition() ActionDefinition { return a.def }
func (a *alwaysFailsAction) Execute(ctx context.Context, params map[string]any, actx *ActionContext) (ActionResult, error) {
	return Err("permanent failure"), nil
}

func TestGraphExecutor_RetryExhaustedContinuesWorkflow(t *testing.T) {
	ge, registry := newTestGraphExecutor()
	def := ActionDefinition{OutputPorts: []string{"main"}}
	registry.Register("trigger", &okAction{def: def})
	registry.Register("broken", &alwaysFailsAction{def: def})

	wf := singleNodeWorkflow("broken", domain.NodeSettings{OnError: domain.OnErrorContinue})

	exec, err := ge.Execute(context.Background(), wf, "start", "manual", nil, nil, 100, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.ExecutionStatusCompleted, exec.Status())

	latest, ok := exec.LatestNodeExecution("a")
	require.True(t, ok)
	assert.Equal(t, domain.NodeStatusCompleted, latest.Status)
	assert.Equal(t, "main", latest.OutputPort)
}
