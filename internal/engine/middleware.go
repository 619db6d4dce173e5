package engine

import "github.com/rs/zerolog"

// Middleware event names, per §6's external-interfaces contract.
const (
	EventExecutionStarted   = "execution_started"
	EventNodeCompleted      = "node_completed"
	EventNodeFailed         = "node_failed"
	EventExecutionCompleted = "execution_completed"
	EventExecutionFailed    = "execution_failed"
)

// MiddlewareFunc is one link of the host-registered event-hook chain:
// (event, data, next) → data. A middleware may transform data before
// calling next, inspect/transform what next returns, or short-circuit by
// never calling next at all.
type MiddlewareFunc func(event string, data map[string]any, next func(map[string]any) map[string]any) map[string]any

// MiddlewareChain runs an ordered list of MiddlewareFunc for each event
// the Graph Executor fires. It is the general mechanism the engine exposes
// for §6; ObserverManager-style fire-and-forget notifiers (logging,
// metrics, websocket) are plain middlewares that always call next and never
// transform data — one point in this more general space.
type MiddlewareChain struct {
	middlewares []MiddlewareFunc
	log         zerolog.Logger
}

func NewMiddlewareChain(log zerolog.Logger) *MiddlewareChain {
	return &MiddlewareChain{log: log}
}

func (c *MiddlewareChain) Use(m MiddlewareFunc) {
	c.middlewares = append(c.middlewares, m)
}

// Fire runs the chain for event, starting from data, and returns whatever
// the chain produced. A middleware that panics is logged and treated as if
// it had called next unchanged — the pipeline continues with the data as
// received at the failing step.
func (c *MiddlewareChain) Fire(event string, data map[string]any) map[string]any {
	return c.runFrom(0, event, data)
}

func (c *MiddlewareChain) runFrom(i int, event string, data map[string]any) (result map[string]any) {
	if i >= len(c.middlewares) {
		return data
	}
	result = data
	nextCalled := false
	defer func() {
		if r := recover(); r != nil {
			c.log.Error().
				Str("event", event).
				Interface("panic", r).
				Msg("middleware panicked, continuing with data as received")
			if nextCalled {
				result = data
			} else {
				result = c.runFrom(i+1, event, data)
			}
		}
	}()
	result = c.middlewares[i](event, data, func(d map[string]any) map[string]any {
		nextCalled = true
		return c.runFrom(i+1, event, d)
	})
	return result
}
