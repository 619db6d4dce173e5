package engine

import (
	"fmt"
	"sort"

	"github.com/stepflow-dev/stepflow/internal/domain"
)

// Compiler implements §4.1: it transforms a Workflow plus a chosen trigger
// into an immutable, cacheable ExecutionGraph — reachability pruning,
// connection-map construction, and Tarjan-based loop detection with
// loop_level/loop_role/loop_ids annotations.
type Compiler struct{}

func NewCompiler() *Compiler { return &Compiler{} }

// Compile runs the three compilation steps of §4.1 and returns the
// resulting ExecutionGraph, or a *domain.Error on structural failure.
func (c *Compiler) Compile(workflow *domain.Workflow, triggerNodeKey string) (*domain.ExecutionGraph, error) {
	if err := validateStructure(workflow); err != nil {
		return nil, err
	}

	triggerNode, ok := workflow.NodeByKey(triggerNodeKey)
	if !ok {
		return nil, domain.NewError(domain.ErrCodeTriggerNotFound,
			fmt.Sprintf("trigger node %q not found in workflow", triggerNodeKey), nil)
	}

	reachable, bfsOrder := bfsReachable(workflow, triggerNodeKey)
	_ = triggerNode

	nodeMap := make(map[string]domain.Node, len(reachable))
	for key := range reachable {
		n, _ := workflow.NodeByKey(key)
		nodeMap[key] = n
	}

	connectionMap := make(map[domain.PortKey][]domain.Connection)
	reverseConnectionMap := make(map[string][]domain.Connection)
	forwardEdges := make(map[string][]string) // distinct target keys, for SCC purposes
	dependencySet := make(map[string]map[string]bool)

	for _, conn := range workflow.AllConnections() {
		if !reachable[conn.FromNodeKey] || !reachable[conn.ToNodeKey] {
			continue
		}
		pk := domain.PortKey{NodeKey: conn.FromNodeKey, Port: conn.FromPort}
		connectionMap[pk] = append(connectionMap[pk], conn)
		reverseConnectionMap[conn.ToNodeKey] = append(reverseConnectionMap[conn.ToNodeKey], conn)
		forwardEdges[conn.FromNodeKey] = append(forwardEdges[conn.FromNodeKey], conn.ToNodeKey)
		if dependencySet[conn.ToNodeKey] == nil {
			dependencySet[conn.ToNodeKey] = make(map[string]bool)
		}
		dependencySet[conn.ToNodeKey][conn.FromNodeKey] = true
	}

	dependencyGraph := make(map[string][]string, len(dependencySet))
	for to, fromSet := range dependencySet {
		list := make([]string, 0, len(fromSet))
		for from := range fromSet {
			list = append(list, from)
		}
		sort.Strings(list)
		dependencyGraph[to] = list
	}

	nodeSet := make([]string, 0, len(nodeMap))
	for key := range nodeMap {
		nodeSet = append(nodeSet, key)
	}
	sort.Strings(nodeSet)

	metadata := make(map[string]*domain.NodeMetadata, len(nodeSet))
	for _, key := range nodeSet {
		metadata[key] = &domain.NodeMetadata{}
	}
	roles := make(map[string]domain.LoopRole, len(nodeSet))

	loopCounter := 0
	annotateLoops(nodeSet, forwardEdges, 1, &loopCounter, bfsOrder, metadata, roles)

	for key, m := range metadata {
		role, ok := roles[key]
		if !ok {
			role = domain.LoopRoleNotInLoop
		}
		n := nodeMap[key]
		n.Metadata = domain.NodeMetadata{LoopLevel: m.LoopLevel, LoopRole: role, LoopIDs: m.LoopIDs}
		nodeMap[key] = n
	}

	return &domain.ExecutionGraph{
		WorkflowID:           workflow.ID,
		Version:              workflow.Version,
		TriggerNodeKey:       triggerNodeKey,
		NodeMap:              nodeMap,
		ConnectionMap:        connectionMap,
		ReverseConnectionMap: reverseConnectionMap,
		DependencyGraph:      dependencyGraph,
	}, nil
}

// validateStructure checks unique node keys, dangling connection endpoints,
// and at least one node. It does not reject cycles: loops are a first-class,
// annotated feature of §4.1, not a structural error.
func validateStructure(workflow *domain.Workflow) error {
	if len(workflow.Nodes) == 0 {
		return domain.NewError(domain.ErrCodeInvalidWorkflow, "workflow has no nodes", nil)
	}
	seen := make(map[string]bool, len(workflow.Nodes))
	for _, n := range workflow.Nodes {
		if seen[n.Key] {
			return domain.NewError(domain.ErrCodeInvalidWorkflow,
				fmt.Sprintf("duplicate node key %q", n.Key), nil)
		}
		seen[n.Key] = true
	}
	for _, conn := range workflow.AllConnections() {
		if !seen[conn.FromNodeKey] {
			return domain.NewError(domain.ErrCodeInvalidWorkflow,
				fmt.Sprintf("connection references unknown source node %q", conn.FromNodeKey), nil)
		}
		if !seen[conn.ToNodeKey] {
			return domain.NewError(domain.ErrCodeInvalidWorkflow,
				fmt.Sprintf("connection references unknown target node %q", conn.ToNodeKey), nil)
		}
	}
	return nil
}

// bfsReachable returns the set of nodes reachable from trigger (inclusive)
// over forward connections, plus the BFS visit order used for deterministic
// loop-role tie-breaking.
func bfsReachable(workflow *domain.Workflow, triggerNodeKey string) (map[string]bool, map[string]int) {
	reachable := map[string]bool{triggerNodeKey: true}
	order := map[string]int{triggerNodeKey: 0}
	queue := []string{triggerNodeKey}
	next := 1
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		conns := workflow.OutgoingConnections(cur)
		targets := make([]string, 0, len(conns))
		for _, c := range conns {
			targets = append(targets, c.ToNodeKey)
		}
		sort.Strings(targets)
		for _, t := range targets {
			if reachable[t] {
				continue
			}
			reachable[t] = true
			order[t] = next
			next++
			queue = append(queue, t)
		}
	}
	return reachable, order
}

// annotateLoops implements the loop-detection step of §4.1 as a recursive
// condensation peel: Tarjan SCCs are computed over (nodeSet, edges); each
// non-trivial SCC becomes one loop, its closing back-edge is then removed
// and the same procedure re-applied to the SCC's own node set to discover
// nested loops at level+1. loop_ids accumulate innermost-first because the
// recursive call appends its findings before the current level appends its
// own id; loop_role is decided by the innermost loop a node belongs to,
// for the same reason — the first (deepest) assignment wins.
func annotateLoops(
	nodeSet []string,
	edges map[string][]string,
	level int,
	loopCounter *int,
	order map[string]int,
	metadata map[string]*domain.NodeMetadata,
	roles map[string]domain.LoopRole,
) {
	sccs := tarjanSCC(nodeSet, edges)
	nodeSetIndex := make(map[string]bool, len(nodeSet))
	for _, n := range nodeSet {
		nodeSetIndex[n] = true
	}

	for _, scc := range sccs {
		isLoop := len(scc) > 1
		if len(scc) == 1 && hasSelfEdge(edges, scc[0]) {
			isLoop = true
		}
		if !isLoop {
			continue
		}

		sccIndex := make(map[string]bool, len(scc))
		for _, n := range scc {
			sccIndex[n] = true
		}

		startLoop := chooseStartLoop(scc, sccIndex, nodeSetIndex, edges, order)
		endLoop := chooseEndLoop(scc, sccIndex, edges, startLoop)

		reduced := make(map[string][]string, len(scc))
		for _, n := range scc {
			for _, t := range edges[n] {
				if n == endLoop && t == startLoop {
					continue // remove the closing back-edge for the nested pass
				}
				if sccIndex[t] {
					reduced[n] = append(reduced[n], t)
				}
			}
		}
		innerNodeSet := make([]string, len(scc))
		copy(innerNodeSet, scc)
		sort.Strings(innerNodeSet)
		annotateLoops(innerNodeSet, reduced, level+1, loopCounter, order, metadata, roles)

		*loopCounter++
		loopID := fmt.Sprintf("loop_%d", *loopCounter)
		for _, n := range scc {
			m := metadata[n]
			m.LoopIDs = append(m.LoopIDs, loopID)
			if m.LoopLevel < level {
				m.LoopLevel = level
			}
			if _, assigned := roles[n]; !assigned {
				switch n {
				case startLoop:
					roles[n] = domain.LoopRoleStartLoop
				case endLoop:
					roles[n] = domain.LoopRoleEndLoop
				default:
					roles[n] = domain.LoopRoleInLoop
				}
			}
		}
	}
}

func hasSelfEdge(edges map[string][]string, n string) bool {
	for _, t := range edges[n] {
		if t == n {
			return true
		}
	}
	return false
}

// chooseStartLoop picks the SCC member with the lowest BFS-order incoming
// cross-SCC edge (the re-entry point from outside the loop); ties broken
// lexicographically by key. If the SCC has no cross edges (it is itself the
// entire remaining node set, e.g. the whole reachable graph is one loop),
// falls back to the lowest-order member of the SCC itself.
func chooseStartLoop(scc []string, sccIndex, outerIndex map[string]bool, edges map[string][]string, order map[string]int) string {
	var candidates []string
	for outer := range outerIndex {
		if sccIndex[outer] {
			continue
		}
		for _, t := range edges[outer] {
			if sccIndex[t] {
				candidates = append(candidates, t)
			}
		}
	}
	if len(candidates) == 0 {
		candidates = append(candidates, scc...)
	}
	sort.Slice(candidates, func(i, j int) bool {
		oi, oj := order[candidates[i]], order[candidates[j]]
		if oi != oj {
			return oi < oj
		}
		return candidates[i] < candidates[j]
	})
	return candidates[0]
}

// chooseEndLoop picks the SCC member with an outgoing edge to startLoop
// (closing the cycle); ties broken lexicographically by key.
func chooseEndLoop(scc []string, sccIndex map[string]bool, edges map[string][]string, startLoop string) string {
	var candidates []string
	for _, n := range scc {
		for _, t := range edges[n] {
			if t == startLoop {
				candidates = append(candidates, n)
				break
			}
		}
	}
	if len(candidates) == 0 {
		return startLoop
	}
	sort.Strings(candidates)
	return candidates[0]
}
