package domain

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ActivePathEntry records the execution_index of the completed execution
// that is currently "live" (on the current iteration's branch) for a node.
type ActivePathEntry struct {
	ExecutionIndex int `json:"execution_index"`
}

// Execution is the WorkflowExecution aggregate root: an event-sourced value
// whose persistent fields are entirely reconstructible by replaying its
// event log, and whose transient runtime cache is reconstructible from the
// persistent fields plus a compiled ExecutionGraph (rebuild_runtime).
//
// Every mutator raises an event and applies it in the same call; the events
// returned by GetUncommittedEvents are what a host persists for replay by
// RebuildFromEvents. The node_execution_added event carries only a summary
// of each record, so the full NodeExecution records are persisted alongside
// the event log and passed to RebuildFromEvents separately.
type Execution struct {
	mu sync.RWMutex

	id                 uuid.UUID
	workflowID         string
	version            string
	parentExecutionID  *uuid.UUID
	mode               ExecutionMode
	triggerNodeKey     string

	status      ExecutionStatus
	startedAt   *time.Time
	completedAt *time.Time
	err         *Error

	// Persistent audit trail: newest-first per node.
	nodeExecutions        map[string][]NodeExecution
	currentExecutionIndex int

	// Persistent suspension record.
	suspendedNodeKey string
	suspensionType   SuspensionType
	suspensionData   map[string]any
	suspendedAt      *time.Time

	// Persistent execution data.
	workflowContext map[string]any
	nodeContext     map[string]map[string]any
	activePaths     map[string]ActivePathEntry
	activeNodes     map[string]int
	preparationData map[string]map[string]any

	// Inputs.
	triggerType string
	triggerData map[string]any
	vars        map[string]any
	maxIterations int

	// Transient runtime cache (rebuildable).
	nodes          map[string]map[string]any
	env            any
	iterationCount int

	uncommitted []Event
	seq         int64
}

// NewExecution creates a fresh Execution ready to be started against graph.
func NewExecution(graph *ExecutionGraph, triggerType string, triggerData, vars map[string]any, maxIterations int) *Execution {
	if maxIterations <= 0 {
		maxIterations = 100
	}
	return &Execution{
		id:              uuid.New(),
		workflowID:      graph.WorkflowID,
		version:         graph.Version,
		mode:            ExecutionModeSync,
		triggerNodeKey:  graph.TriggerNodeKey,
		status:          ExecutionStatusPending,
		nodeExecutions:  make(map[string][]NodeExecution),
		workflowContext: make(map[string]any),
		nodeContext:     make(map[string]map[string]any),
		activePaths:     make(map[string]ActivePathEntry),
		activeNodes:     make(map[string]int),
		preparationData: make(map[string]map[string]any),
		triggerType:     triggerType,
		triggerData:     triggerData,
		vars:            vars,
		maxIterations:   maxIterations,
		nodes:           make(map[string]map[string]any),
	}
}

// Accessors.

func (e *Execution) ID() uuid.UUID     { e.mu.RLock(); defer e.mu.RUnlock(); return e.id }
func (e *Execution) WorkflowID() string { e.mu.RLock(); defer e.mu.RUnlock(); return e.workflowID }
func (e *Execution) Version() string    { e.mu.RLock(); defer e.mu.RUnlock(); return e.version }
func (e *Execution) TriggerNodeKey() string { e.mu.RLock(); defer e.mu.RUnlock(); return e.triggerNodeKey }
func (e *Execution) Status() ExecutionStatus { e.mu.RLock(); defer e.mu.RUnlock(); return e.status }
func (e *Execution) Error() *Error      { e.mu.RLock(); defer e.mu.RUnlock(); return e.err }
func (e *Execution) Vars() map[string]any { e.mu.RLock(); defer e.mu.RUnlock(); return e.vars }
func (e *Execution) MaxIterations() int { e.mu.RLock(); defer e.mu.RUnlock(); return e.maxIterations }
func (e *Execution) IterationCount() int { e.mu.RLock(); defer e.mu.RUnlock(); return e.iterationCount }
func (e *Execution) CurrentExecutionIndex() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.currentExecutionIndex
}
func (e *Execution) SuspendedNodeKey() string { e.mu.RLock(); defer e.mu.RUnlock(); return e.suspendedNodeKey }
func (e *Execution) SuspensionType() SuspensionType {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.suspensionType
}
func (e *Execution) SuspensionData() map[string]any {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.suspensionData
}

// ActiveNodes returns a copy of the current active-nodes map.
func (e *Execution) ActiveNodes() map[string]int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make(map[string]int, len(e.activeNodes))
	for k, v := range e.activeNodes {
		out[k] = v
	}
	return out
}

// ActivePaths returns a copy of the current active-paths map.
func (e *Execution) ActivePaths() map[string]ActivePathEntry {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make(map[string]ActivePathEntry, len(e.activePaths))
	for k, v := range e.activePaths {
		out[k] = v
	}
	return out
}

// NodeExecutions returns the audit trail for a node, newest first.
func (e *Execution) NodeExecutions(nodeKey string) []NodeExecution {
	e.mu.RLock()
	defer e.mu.RUnlock()
	list := e.nodeExecutions[nodeKey]
	out := make([]NodeExecution, len(list))
	copy(out, list)
	return out
}

// LatestNodeExecution returns the most recent record for nodeKey, if any.
func (e *Execution) LatestNodeExecution(nodeKey string) (NodeExecution, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	list := e.nodeExecutions[nodeKey]
	if len(list) == 0 {
		return NodeExecution{}, false
	}
	return list[0], true
}

// NodeOutput returns the cached output for a completed node, from the
// runtime cache (property 3 of §8).
func (e *Execution) NodeOutput(nodeKey string) (map[string]any, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	v, ok := e.nodes[nodeKey]
	return v, ok
}

// Nodes returns the full runtime output cache (for building action context).
func (e *Execution) Nodes() map[string]any {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make(map[string]any, len(e.nodes))
	for k, v := range e.nodes {
		out[k] = v
	}
	return out
}

func (e *Execution) Env() any { e.mu.RLock(); defer e.mu.RUnlock(); return e.env }

// SetEnv installs the host-supplied environment value exposed to actions as
// ActionContext.Env. It is transient runtime state, set by the Graph
// Executor at the start of every Execute and Resume call.
func (e *Execution) SetEnv(env any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.env = env
}

func (e *Execution) GetNodeContext(key string) map[string]any {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.nodeContext[key]
}

func (e *Execution) WorkflowContext() map[string]any {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make(map[string]any, len(e.workflowContext))
	for k, v := range e.workflowContext {
		out[k] = v
	}
	return out
}

func (e *Execution) PreparationData(nodeKey string) (map[string]any, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	v, ok := e.preparationData[nodeKey]
	return v, ok
}

// GetUncommittedEvents returns events raised since the last
// MarkEventsAsCommitted call.
func (e *Execution) GetUncommittedEvents() []Event {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]Event, len(e.uncommitted))
	copy(out, e.uncommitted)
	return out
}

// MarkEventsAsCommitted clears the uncommitted-event buffer.
func (e *Execution) MarkEventsAsCommitted() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.uncommitted = nil
}

// raiseEvent stamps, applies, and buffers an event in one step.
func (e *Execution) raiseEvent(t EventType, data map[string]any) {
	ev := newEvent(t, e.id, e.seq, data)
	e.seq++
	e.applyInternal(ev)
	e.uncommitted = append(e.uncommitted, ev)
}

// Mutators. Each acquires the write lock, raises its event, and returns.

func (e *Execution) Start() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.raiseEvent(EventTypeExecutionStarted, map[string]any{
		"trigger_type": e.triggerType,
		"trigger_data": e.triggerData,
		"vars":         e.vars,
	})
}

func (e *Execution) Complete() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.raiseEvent(EventTypeExecutionCompleted, map[string]any{})
}

func (e *Execution) Fail(err *Error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.raiseEvent(EventTypeExecutionFailed, map[string]any{"error": err})
}

func (e *Execution) Cancel() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.raiseEvent(EventTypeExecutionCancelled, map[string]any{})
}

// Suspend records a workflow-level suspension; the caller has already
// appended the suspended NodeExecution via AddNodeExecution.
func (e *Execution) Suspend(nodeKey string, suspensionType SuspensionType, data map[string]any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.raiseEvent(EventTypeExecutionSuspended, map[string]any{
		"node_key":        nodeKey,
		"suspension_type": string(suspensionType),
		"suspension_data": data,
	})
}

// ResumeSuspension clears the suspension fields and decrements
// current_execution_index so the resumed node reuses the suspended
// record's index. Precondition: the suspended record will be overwritten
// by the caller via AddNodeExecution at the same run_index.
func (e *Execution) ResumeSuspension() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.status != ExecutionStatusSuspended {
		return NewError(ErrCodeNotSuspended, "execution is not suspended", nil)
	}
	e.raiseEvent(EventTypeExecutionResumed, map[string]any{})
	return nil
}

// GetNextRunIndex returns (max existing run_index for nodeKey) + 1, or 0.
func (e *Execution) GetNextRunIndex(nodeKey string) int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	list := e.nodeExecutions[nodeKey]
	max := -1
	for _, ne := range list {
		if ne.RunIndex > max {
			max = ne.RunIndex
		}
	}
	return max + 1
}

// AddNodeExecution appends or replaces (at the same run_index) the audit
// record for a node, bumps current_execution_index in either case (a
// replacement follows ResumeSuspension's decrement), and — for completed
// records — updates the runtime nodes cache and the active-paths/active-nodes
// per §4.3. Failed and suspended records are appended without touching the
// routing caches (§4.2 guarantees); a suspended record also records the
// suspension and moves the execution to suspended.
func (e *Execution) AddNodeExecution(ne NodeExecution, graph *ExecutionGraph) {
	e.mu.Lock()
	defer e.mu.Unlock()

	list := e.nodeExecutions[ne.NodeKey]
	replaced := false
	for i, existing := range list {
		if existing.RunIndex == ne.RunIndex {
			list[i] = ne
			replaced = true
			break
		}
	}
	if !replaced {
		list = append([]NodeExecution{ne}, list...)
	}
	e.currentExecutionIndex++
	e.nodeExecutions[ne.NodeKey] = list

	e.raiseEvent(EventTypeNodeExecutionAdded, map[string]any{
		"node_key":        ne.NodeKey,
		"status":          string(ne.Status),
		"execution_index": ne.ExecutionIndex,
		"run_index":       ne.RunIndex,
	})

	switch ne.Status {
	case NodeStatusCompleted:
		e.nodes[ne.NodeKey] = ne.OutputData
		e.advanceActivePaths(ne.NodeKey, ne.ExecutionIndex, ne.OutputPort, graph)
	case NodeStatusSuspended:
		e.status = ExecutionStatusSuspended
		e.suspendedNodeKey = ne.NodeKey
		e.suspensionType = ne.SuspensionType
		e.suspensionData = ne.SuspensionData
		now := time.Now()
		e.suspendedAt = &now
	}
}

// advanceActivePaths applies the §4.3 maintenance rule for a node K that
// just completed at index i via output port p. Caller holds the write lock.
func (e *Execution) advanceActivePaths(k string, i int, p string, graph *ExecutionGraph) {
	delete(e.activeNodes, k)

	for _, conn := range graph.OutgoingByPort(k, p) {
		e.activeNodes[conn.ToNodeKey] = i + 1
	}

	if prevEntry, ok := e.activePaths[k]; !ok {
		e.activePaths[k] = ActivePathEntry{ExecutionIndex: i}
	} else {
		prev := prevEntry.ExecutionIndex
		for key, entry := range e.activePaths {
			if entry.ExecutionIndex > prev {
				delete(e.activePaths, key)
			}
		}
		e.activePaths[k] = ActivePathEntry{ExecutionIndex: i}
	}
}

// IncrementIterationCount bumps the transient loop-iteration counter.
func (e *Execution) IncrementIterationCount() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.iterationCount++
	e.raiseEvent(EventTypeIterationIncremented, map[string]any{"iteration_count": e.iterationCount})
}

// UpdateExecutionContext merges updates into the shared workflow context.
func (e *Execution) UpdateExecutionContext(updates map[string]any) {
	if len(updates) == 0 {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	for k, v := range updates {
		e.workflowContext[k] = v
	}
	e.raiseEvent(EventTypeExecutionContextUpdated, map[string]any{"updates": updates})
}

// UpdateNodeContext merges updates into a node's private context.
func (e *Execution) UpdateNodeContext(key string, updates map[string]any) {
	if len(updates) == 0 {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.nodeContext[key] == nil {
		e.nodeContext[key] = make(map[string]any)
	}
	for k, v := range updates {
		e.nodeContext[key][k] = v
	}
	e.raiseEvent(EventTypeNodeContextUpdated, map[string]any{"node_key": key, "updates": updates})
}

// SetPreparationData records the one-time result of an action's prepare hook.
func (e *Execution) SetPreparationData(nodeKey string, data map[string]any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.preparationData[nodeKey] = data
}

// MarkRunning transitions the execution to running with a started_at stamp,
// and seeds active_nodes with the trigger at index 0. Called once, by the
// Graph Executor, on a fresh (non-resumed) run.
func (e *Execution) MarkRunning() {
	e.mu.Lock()
	defer e.mu.Unlock()
	now := time.Now()
	e.status = ExecutionStatusRunning
	e.startedAt = &now
	e.activeNodes = map[string]int{e.triggerNodeKey: 0}
	e.activePaths = make(map[string]ActivePathEntry)
	e.iterationCount = 0
}

// applyInternal mutates in-memory state from a single event. It is the
// only place EventType is switched on, shared by raiseEvent (hot path) and
// RebuildFromEvents (cold path), so the two can never drift.
func (e *Execution) applyInternal(ev Event) {
	switch ev.Type {
	case EventTypeExecutionStarted:
		now := time.Now()
		e.status = ExecutionStatusRunning
		e.startedAt = &now
		if e.activeNodes == nil || len(e.activeNodes) == 0 {
			e.activeNodes = map[string]int{e.triggerNodeKey: 0}
		}
	case EventTypeExecutionCompleted:
		now := time.Now()
		e.status = ExecutionStatusCompleted
		e.completedAt = &now
	case EventTypeExecutionFailed:
		now := time.Now()
		e.status = ExecutionStatusFailed
		e.completedAt = &now
		if err, ok := ev.Data["error"].(*Error); ok {
			e.err = err
		}
	case EventTypeExecutionCancelled:
		now := time.Now()
		e.status = ExecutionStatusCancelled
		e.completedAt = &now
	case EventTypeExecutionSuspended:
		e.status = ExecutionStatusSuspended
		e.suspendedNodeKey, _ = ev.Data["node_key"].(string)
		if st, ok := ev.Data["suspension_type"].(string); ok {
			e.suspensionType = SuspensionType(st)
		}
		e.suspensionData, _ = ev.Data["suspension_data"].(map[string]any)
		now := time.Now()
		e.suspendedAt = &now
	case EventTypeExecutionResumed:
		e.status = ExecutionStatusRunning
		e.suspendedNodeKey = ""
		e.suspensionType = ""
		e.suspensionData = nil
		e.suspendedAt = nil
		if e.currentExecutionIndex > 0 {
			e.currentExecutionIndex--
		}
	case EventTypeIterationIncremented:
		if ic, ok := ev.Data["iteration_count"].(int); ok {
			e.iterationCount = ic
		}
	case EventTypeExecutionContextUpdated:
		if updates, ok := ev.Data["updates"].(map[string]any); ok {
			if e.workflowContext == nil {
				e.workflowContext = make(map[string]any)
			}
			for k, v := range updates {
				e.workflowContext[k] = v
			}
		}
	case EventTypeNodeContextUpdated:
		key, _ := ev.Data["node_key"].(string)
		if updates, ok := ev.Data["updates"].(map[string]any); ok {
			if e.nodeContext == nil {
				e.nodeContext = make(map[string]map[string]any)
			}
			if e.nodeContext[key] == nil {
				e.nodeContext[key] = make(map[string]any)
			}
			for k, v := range updates {
				e.nodeContext[key][k] = v
			}
		}
	case EventTypeNodeExecutionAdded:
		// No-op on replay: AddNodeExecution's caller persists the full
		// NodeExecution separately (see RebuildFromEvents); the event only
		// marks sequencing, the actual record replay is driven by the
		// audit trail snapshot, not by this lightweight event's summary
		// fields.
	}
}

// RebuildFromEvents reconstructs the persistent fields of an Execution by
// replaying its event log in order, given the original trigger node key
// (carried separately since it is not itself persisted as an event field).
func RebuildFromEvents(triggerNodeKey string, events []Event, auditTrail map[string][]NodeExecution, currentExecutionIndex int) *Execution {
	e := &Execution{
		triggerNodeKey:  triggerNodeKey,
		nodeExecutions:  auditTrail,
		workflowContext: make(map[string]any),
		nodeContext:     make(map[string]map[string]any),
		activePaths:     make(map[string]ActivePathEntry),
		activeNodes:     make(map[string]int),
		preparationData: make(map[string]map[string]any),
		nodes:           make(map[string]map[string]any),
	}
	if currentExecutionIndex > 0 {
		e.currentExecutionIndex = currentExecutionIndex
	}
	for _, ev := range events {
		e.applyInternal(ev)
		e.seq = ev.SequenceNumber + 1
	}
	return e
}

// RebuildRuntime recomputes the transient cache (nodes, active_paths,
// active_nodes) from the persistent audit trail and a compiled graph. It is
// the cold-path counterpart to the hot-path incremental maintenance in
// AddNodeExecution/advanceActivePaths, and must produce an identical result
// for any audit trail that could arise from a legal run (§8 property 1).
func (e *Execution) RebuildRuntime(graph *ExecutionGraph, env any) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.env = env
	e.nodes = make(map[string]map[string]any)
	for key, list := range e.nodeExecutions {
		if len(list) == 0 {
			continue
		}
		latest := list[0]
		if latest.Status == NodeStatusCompleted {
			e.nodes[key] = latest.OutputData
		}
	}

	e.activePaths = make(map[string]ActivePathEntry)
	e.activeNodes = make(map[string]int)
	visited := make(map[string]bool)
	e.dfsRebuild(graph, e.triggerNodeKey, nil, visited)
}

// latestCompleted returns the most recent completed record for key, if any.
func (e *Execution) latestCompleted(key string) (NodeExecution, bool) {
	for _, ne := range e.nodeExecutions[key] {
		if ne.Status == NodeStatusCompleted {
			return ne, true
		}
	}
	return NodeExecution{}, false
}

// dfsRebuild implements the reconstruction DFS of §4.3. prev is the parent
// step's completed record (nil at the trigger). Caller holds the write lock.
func (e *Execution) dfsRebuild(graph *ExecutionGraph, n string, prev *NodeExecution, visited map[string]bool) {
	key := n
	if prev != nil {
		key = fmt.Sprintf("%s\x00%d", n, prev.ExecutionIndex)
	}
	if visited[key] {
		return
	}
	visited[key] = true

	record, hasCompleted := e.latestCompleted(n)

	if !hasCompleted {
		nextIdx := 0
		if prev != nil {
			nextIdx = prev.ExecutionIndex + 1
		}
		e.activeNodes[n] = nextIdx
		return
	}

	if prev == nil || record.ExecutionIndex > prev.ExecutionIndex {
		e.activePaths[n] = ActivePathEntry{ExecutionIndex: record.ExecutionIndex}
		for _, conn := range graph.OutgoingByPort(n, record.OutputPort) {
			r := record
			e.dfsRebuild(graph, conn.ToNodeKey, &r, visited)
		}
		return
	}

	nextIdx := prev.ExecutionIndex + 1
	e.activeNodes[n] = nextIdx
}

// FindNextReadyNode selects the next node to dispatch per §4.3/§4.4: among
// active nodes whose input ports are satisfied, the one with the highest
// active_nodes value, ties broken lexicographically by key. Returns false
// if no active node is currently ready.
func (e *Execution) FindNextReadyNode(graph *ExecutionGraph, inputPorts func(nodeType string) []string) (string, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	type candidate struct {
		key   string
		index int
	}
	var ready []candidate
	for key, idx := range e.activeNodes {
		node, ok := graph.NodeMap[key]
		if !ok {
			continue
		}
		ports := inputPorts(node.Type)
		if len(ports) == 0 {
			ports = []string{"input"}
		}
		if e.portsSatisfiedLocked(graph, key, ports) {
			ready = append(ready, candidate{key: key, index: idx})
		}
	}
	if len(ready) == 0 {
		return "", false
	}
	sort.Slice(ready, func(i, j int) bool {
		if ready[i].index != ready[j].index {
			return ready[i].index > ready[j].index
		}
		return ready[i].key < ready[j].key
	})
	return ready[0].key, true
}

// portsSatisfiedLocked implements §4.4 satisfaction: a port with no incoming
// connections is trivially satisfied; otherwise at least one source must
// have a completed record (fan-in is OR). Caller holds at least a read lock.
func (e *Execution) portsSatisfiedLocked(graph *ExecutionGraph, nodeKey string, ports []string) bool {
	for _, p := range ports {
		incoming := graph.IncomingByPort(nodeKey, p)
		if len(incoming) == 0 {
			continue
		}
		satisfied := false
		for _, conn := range incoming {
			if _, ok := e.latestCompleted(conn.FromNodeKey); ok {
				satisfied = true
				break
			}
		}
		if !satisfied {
			return false
		}
	}
	return true
}

// RoutedInput implements §4.4's routed-input construction for dispatch time.
func (e *Execution) RoutedInput(graph *ExecutionGraph, nodeKey string, ports []string) map[string]any {
	e.mu.RLock()
	defer e.mu.RUnlock()

	routed := make(map[string]any)
	for _, p := range ports {
		incoming := graph.IncomingByPort(nodeKey, p)
		if len(incoming) == 0 {
			continue
		}
		var best *NodeExecution
		for _, conn := range incoming {
			list := e.nodeExecutions[conn.FromNodeKey]
			for _, ne := range list {
				if ne.Status != NodeStatusCompleted || ne.OutputPort != conn.FromPort {
					continue
				}
				if best == nil || ne.ExecutionIndex > best.ExecutionIndex {
					cp := ne
					best = &cp
				}
				break // list is newest-first; first match per connection is the latest candidate
			}
		}
		if best != nil {
			routed[p] = best.OutputData
		}
	}
	return routed
}

// InActivePath reports whether nodeKey is currently recorded in active_paths.
func (e *Execution) InActivePath(nodeKey string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	_, ok := e.activePaths[nodeKey]
	return ok
}
