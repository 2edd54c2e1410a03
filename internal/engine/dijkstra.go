package engine

import (
	"container/heap"
	"fmt"
	"math"

	"terminalsim/pkg/apperror"
)

// pqItem is one entry of the Dijkstra priority queue: a node keyed by its
// current best-known distance. Grounded on the teacher's solver-svc
// priorityQueueItem/priorityQueue (internal/algorithms/dijkstra.go).
type pqItem struct {
	node     string
	distance float64
	index    int
}

type pq []*pqItem

func (q pq) Len() int { return len(q) }
func (q pq) Less(i, j int) bool {
	if q[i].distance != q[j].distance {
		return q[i].distance < q[j].distance
	}
	return q[i].node < q[j].node
}
func (q pq) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}
func (q *pq) Push(x any) {
	item := x.(*pqItem)
	item.index = len(*q)
	*q = append(*q, item)
}
func (q *pq) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*q = old[:n-1]
	return item
}

// dijkstraResult carries the predecessor trace the three search variants
// reconstruct a Path from.
type dijkstraResult struct {
	distance map[string]float64
	previous map[string]string
	edgeMode map[string]TransportationMode
	edgeAttr map[string]map[string]float64
}

// edgeFilter decides whether an edge may be relaxed during search.
type edgeFilter func(e *Edge) bool

// runDijkstra is the shared core for §4.1.3/§4.1.4/§4.1.5: a min-priority-
// queue search over a searchSnapshot's adjacency, augmenting each edge's
// attributes with terminal_delay/terminal_cost (spec.md §4.1.2) before
// costing it, and terminating early once end is popped. It never touches
// the live graph or its lock — snap was built by graph.snapshot() with the
// engine lock already released, satisfying spec.md §5's deadlock
// discipline (terminal methods below take only the terminal's own lock).
func runDijkstra(snap *searchSnapshot, nodes []string, start, end string, mode TransportationMode, allow edgeFilter) *dijkstraResult {
	res := &dijkstraResult{
		distance: make(map[string]float64, len(nodes)),
		previous: make(map[string]string, len(nodes)),
		edgeMode: make(map[string]TransportationMode),
		edgeAttr: make(map[string]map[string]float64),
	}
	for _, n := range nodes {
		res.distance[n] = math.Inf(1)
	}
	res.distance[start] = 0

	queue := make(pq, 0, len(nodes))
	heap.Init(&queue)
	heap.Push(&queue, &pqItem{node: start, distance: 0})

	processed := make(map[string]bool, len(nodes))

	for queue.Len() > 0 {
		current := heap.Pop(&queue).(*pqItem)
		if processed[current.node] {
			continue
		}
		if current.node == end {
			break
		}
		processed[current.node] = true

		for _, e := range snap.adjacency[current.node] {
			if mode != ModeAny && e.Mode != mode {
				continue
			}
			if allow != nil && !allow(e) {
				continue
			}
			if processed[e.To] {
				continue
			}

			params := augmentedAttributes(snap, e, current.node)
			weight := cost(snap.weightForMode(e.Mode), params)
			newDist := res.distance[current.node] + weight

			if newDist < res.distance[e.To] {
				res.distance[e.To] = newDist
				res.previous[e.To] = current.node
				res.edgeMode[e.To] = e.Mode
				res.edgeAttr[e.To] = e.Attributes
				heap.Push(&queue, &pqItem{node: e.To, distance: newDist})
			}
		}
	}
	return res
}

// augmentedAttributes implements spec.md §4.1.2's augmentation step: adds
// terminal_delay = handling(from) + handling(to) and
// terminal_cost = cost(from) + cost(to) to the edge's attribute map before
// costing.
func augmentedAttributes(snap *searchSnapshot, e *Edge, from string) map[string]float64 {
	out := e.CloneAttributes()
	fromTerm := snap.terminals[from]
	toTerm := snap.terminals[e.To]
	var delay, tcost float64
	if fromTerm != nil {
		delay += fromTerm.EstimateHandlingTime()
		tcost += fromTerm.EstimateContainerCost(nil, false)
	}
	if toTerm != nil {
		delay += toTerm.EstimateHandlingTime()
		tcost += toTerm.EstimateContainerCost(nil, false)
	}
	out["terminal_delay"] = delay
	out["terminal_cost"] = tcost
	return out
}

// reconstructSegments walks a dijkstraResult's predecessor trace from end
// back to start, producing segments in start->end order.
func reconstructSegments(res *dijkstraResult, start, end string) ([]PathSegment, error) {
	if _, ok := res.previous[end]; !ok && start != end {
		return nil, apperror.New(apperror.CodeNoPath, fmt.Sprintf("no path from %s to %s", start, end))
	}
	var segments []PathSegment
	current := end
	for {
		prev, ok := res.previous[current]
		if !ok {
			break
		}
		segments = append([]PathSegment{{
			From:       prev,
			To:         current,
			Mode:       res.edgeMode[current],
			Weight:     res.distance[current] - res.distance[prev],
			Attributes: res.edgeAttr[current],
		}}, segments...)
		current = prev
	}
	return segments, nil
}

// resolveAndCheck resolves start/end to canonical names and confirms both
// exist, taking only a brief read lock.
func (e *Engine) resolveAndCheck(start, end string) (string, string, error) {
	e.g.mu.RLock()
	defer e.g.mu.RUnlock()
	return e.resolveEndpointsLocked(start, end)
}

// ShortestPath implements spec.md §4.1.3.
func (e *Engine) ShortestPath(start, end string, mode TransportationMode) ([]PathSegment, error) {
	from, to, err := e.resolveAndCheck(start, end)
	if err != nil {
		return nil, err
	}
	snap := e.g.snapshot()
	res := runDijkstra(snap, snap.nodes, from, to, mode, nil)
	return reconstructSegments(res, from, to)
}

// ShortestPathWithinRegions implements spec.md §4.1.4. Per the Open
// Question resolution in DESIGN.md, this uses the same priority-queue
// search as ShortestPath rather than the source's O(V^2) scan variant —
// both satisfy the spec; this is a performance choice, not a semantic one.
func (e *Engine) ShortestPathWithinRegions(start, end string, regions []string, mode TransportationMode) ([]PathSegment, error) {
	if len(regions) == 0 {
		return nil, apperror.New(apperror.CodeInvalidArgs, "allowed regions must be non-empty")
	}
	allowed := make(map[string]bool, len(regions))
	for _, r := range regions {
		allowed[r] = true
	}

	from, to, err := e.resolveAndCheck(start, end)
	if err != nil {
		return nil, err
	}

	snap := e.g.snapshot()

	if r, ok := snap.nodeRegion[from]; ok && r != "" && !allowed[r] {
		return nil, apperror.New(apperror.CodeInvalidArgs, fmt.Sprintf("start terminal %s not in allowed regions", start))
	}
	if r, ok := snap.nodeRegion[to]; ok && r != "" && !allowed[r] {
		return nil, apperror.New(apperror.CodeInvalidArgs, fmt.Sprintf("end terminal %s not in allowed regions", end))
	}

	var nodes []string
	inSubgraph := make(map[string]bool, len(snap.nodes))
	for _, n := range snap.nodes {
		if r, ok := snap.nodeRegion[n]; !ok || r == "" || allowed[r] {
			nodes = append(nodes, n)
			inSubgraph[n] = true
		}
	}

	res := runDijkstra(snap, nodes, from, to, mode, func(edge *Edge) bool {
		return inSubgraph[edge.To]
	})
	segments, err := reconstructSegments(res, from, to)
	if err != nil {
		return nil, apperror.New(apperror.CodeNoPath, fmt.Sprintf("no path within allowed regions from %s to %s", start, end))
	}
	return segments, nil
}

// ShortestPathWithExclusions implements spec.md §4.1.5: edgesToExclude and
// nodesToExclude additionally constrain the search. A (from,to,Any) triple
// in edgesToExclude excludes all modes on that connection; a concrete-mode
// triple excludes only that mode.
func (e *Engine) ShortestPathWithExclusions(start, end string, mode TransportationMode, edgesToExclude map[EdgeKey]bool, nodesToExclude map[string]bool) ([]PathSegment, error) {
	from, to, err := e.resolveAndCheck(start, end)
	if err != nil {
		return nil, err
	}
	if nodesToExclude[from] || nodesToExclude[to] {
		return nil, apperror.New(apperror.CodeInvalidArgs, "start/end excluded")
	}
	snap := e.g.snapshot()
	return searchWithExclusions(snap, from, to, mode, edgesToExclude, nodesToExclude)
}

// searchWithExclusions runs the §4.1.5 search against an already-built
// snapshot. Factored out so §4.1.6's top-N diversification can re-run the
// search many times against one consistent snapshot instead of
// re-acquiring the engine lock per candidate.
func searchWithExclusions(snap *searchSnapshot, from, to string, mode TransportationMode, edgesToExclude map[EdgeKey]bool, nodesToExclude map[string]bool) ([]PathSegment, error) {
	var nodes []string
	for _, n := range snap.nodes {
		if !nodesToExclude[n] {
			nodes = append(nodes, n)
		}
	}

	res := runDijkstra(snap, nodes, from, to, mode, func(edge *Edge) bool {
		if nodesToExclude[edge.To] {
			return false
		}
		if edgesToExclude[EdgeKey{From: edge.From, To: edge.To, Mode: edge.Mode}] {
			return false
		}
		if edgesToExclude[EdgeKey{From: edge.From, To: edge.To, Mode: ModeAny}] {
			return false
		}
		return true
	})
	return reconstructSegments(res, from, to)
}
