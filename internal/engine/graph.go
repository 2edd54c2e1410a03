package engine

import (
	"sort"
	"sync"

	"terminalsim/internal/terminal"
)

// graph is the engine's core data structure (spec.md §3 "Graph"): adjacency
// list, edge-key set, alias map with its inverse closure, node region
// attributes, and engine-wide configuration (default link attributes,
// cost-function weights). It also owns the canonical-name -> *Terminal
// table. Serialize and Deserialize call Terminal methods while holding
// this struct's lock (terminalToJSON under the read lock, terminalFromJSON
// under the write lock); Terminal methods never take this lock.
type graph struct {
	mu sync.RWMutex

	terminals map[string]*terminal.Terminal
	adjacency map[string][]*Edge
	edgeKeys  map[EdgeKey]*Edge

	// aliasToCanonical maps every known name (canonical or alias) to its
	// canonical name. canonicalToAliases is the inverse closure: canonical
	// name -> set of all names (including the canonical name itself) that
	// resolve to it. spec.md §3's invariant: every canonical name appears
	// in both maps, every alias resolves to exactly one canonical.
	aliasToCanonical   map[string]string
	canonicalToAliases map[string]map[string]bool

	nodeRegion map[string]string

	defaultLinkAttributes map[string]float64
	costFunctionWeights   map[string]map[string]float64

	nextSeq int
}

func newGraph() *graph {
	return &graph{
		terminals:             make(map[string]*terminal.Terminal),
		adjacency:             make(map[string][]*Edge),
		edgeKeys:              make(map[EdgeKey]*Edge),
		aliasToCanonical:      make(map[string]string),
		canonicalToAliases:    make(map[string]map[string]bool),
		nodeRegion:            make(map[string]string),
		defaultLinkAttributes: make(map[string]float64),
		costFunctionWeights:   make(map[string]map[string]float64),
	}
}

// canonicalLocked resolves any known name to its canonical name
// (spec.md §4.1.1). Callers must already hold g.mu.
func (g *graph) canonicalLocked(name string) string {
	if c, ok := g.aliasToCanonical[name]; ok {
		return c
	}
	return name
}

// registerNameLocked records a new canonical terminal and its alias-set
// bookkeeping.
func (g *graph) registerNameLocked(canonical string) {
	g.aliasToCanonical[canonical] = canonical
	g.canonicalToAliases[canonical] = map[string]bool{canonical: true}
}

// addAliasLocked wires alias -> canonical into both directions.
func (g *graph) addAliasLocked(canonical, alias string) {
	g.aliasToCanonical[alias] = canonical
	if g.canonicalToAliases[canonical] == nil {
		g.canonicalToAliases[canonical] = make(map[string]bool)
	}
	g.canonicalToAliases[canonical][alias] = true
}

// aliasesLocked returns the sorted alias set (including the canonical name
// itself) for a canonical name.
func (g *graph) aliasesLocked(canonical string) []string {
	set := g.canonicalToAliases[canonical]
	out := make([]string, 0, len(set))
	for a := range set {
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}

// addEdgeLocked inserts or overwrites the edge at (from,to,mode). A new edge
// is appended to from's adjacency slice, which keeps insertion order, and
// gets the next insertion sequence number.
func (g *graph) addEdgeLocked(from, to, routeID string, mode TransportationMode, attrs map[string]float64) *Edge {
	key := EdgeKey{From: from, To: to, Mode: mode}
	merged := make(map[string]float64, len(g.defaultLinkAttributes)+len(attrs))
	for k, v := range g.defaultLinkAttributes {
		merged[k] = v
	}
	for k, v := range attrs {
		merged[k] = v
	}

	if existing, ok := g.edgeKeys[key]; ok {
		existing.RouteID = routeID
		existing.Attributes = merged
		return existing
	}

	g.nextSeq++
	e := &Edge{From: from, To: to, RouteID: routeID, Mode: mode, Attributes: merged, seq: g.nextSeq}
	g.edgeKeys[key] = e
	g.adjacency[from] = append(g.adjacency[from], e)
	return e
}

// outEdgesLocked returns from's outgoing edges in insertion order.
func (g *graph) outEdgesLocked(from string) []*Edge {
	return g.adjacency[from]
}

// removeNodeLocked drops a node, every incident edge in both directions,
// and every alias resolving to it.
func (g *graph) removeNodeLocked(canonical string) {
	delete(g.adjacency, canonical)
	for key, e := range g.edgeKeys {
		if e.From == canonical || e.To == canonical {
			delete(g.edgeKeys, key)
		}
	}
	for from, edges := range g.adjacency {
		filtered := edges[:0:0]
		for _, e := range edges {
			if e.To != canonical {
				filtered = append(filtered, e)
			}
		}
		g.adjacency[from] = filtered
	}
	for alias, c := range g.aliasToCanonical {
		if c == canonical {
			delete(g.aliasToCanonical, alias)
		}
	}
	delete(g.canonicalToAliases, canonical)
	delete(g.nodeRegion, canonical)
	delete(g.terminals, canonical)
}

// cloneFloatMap returns a shallow copy of a string->float64 map.
func cloneFloatMap(m map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// weightForMode returns the attribute->weight map for mode, falling back to
// the "default" entry (spec.md §4.1.2).
func (g *graph) weightForMode(mode TransportationMode) map[string]float64 {
	if w, ok := g.costFunctionWeights[mode.String()]; ok {
		return w
	}
	if w, ok := g.costFunctionWeights[modeWeightKey(mode)]; ok {
		return w
	}
	return g.costFunctionWeights["default"]
}

// modeWeightKey matches the wire schema's stringified-int mode keys
// (spec.md §6 "default"|stringified_int).
func modeWeightKey(mode TransportationMode) string {
	switch mode {
	case ModeTruck:
		return "0"
	case ModeTrain:
		return "1"
	case ModeShip:
		return "2"
	case ModeAny:
		return "3"
	default:
		return "default"
	}
}

// cost implements spec.md §4.1.2: cost(A,m) = sum_k w_m[k] * A[k], weight
// missing ⇒ 1.0, non-numeric attributes already excluded by A's type.
func cost(weights map[string]float64, attrs map[string]float64) float64 {
	var total float64
	for k, v := range attrs {
		w := 1.0
		if weights != nil {
			if ww, ok := weights[k]; ok {
				w = ww
			}
		}
		total += w * v
	}
	return total
}

// searchSnapshot is a private, point-in-time copy of everything a
// Dijkstra-family search reads: topology, terminal pointers, regions, and
// cost weights. Building one lets search run with the engine lock released
// (spec.md §5 deadlock discipline rule 1 — a search calls Terminal methods
// per edge, which take the terminal's own lock), at the cost of seeing a
// possibly-stale snapshot of concurrent graph mutations (spec.md §5's
// ordering guarantees explicitly allow this: "never a dangling read").
type searchSnapshot struct {
	nodes      []string
	adjacency  map[string][]*Edge
	terminals  map[string]*terminal.Terminal
	nodeRegion map[string]string
	weights    map[string]map[string]float64
}

func (g *graph) snapshot() *searchSnapshot {
	g.mu.RLock()
	defer g.mu.RUnlock()

	nodes := make([]string, 0, len(g.terminals))
	terminals := make(map[string]*terminal.Terminal, len(g.terminals))
	for n, t := range g.terminals {
		nodes = append(nodes, n)
		terminals[n] = t
	}

	adjacency := make(map[string][]*Edge, len(g.adjacency))
	for from, edges := range g.adjacency {
		cloned := make([]*Edge, len(edges))
		for i, e := range edges {
			cloned[i] = &Edge{From: e.From, To: e.To, RouteID: e.RouteID, Mode: e.Mode, Attributes: e.CloneAttributes(), seq: e.seq}
		}
		adjacency[from] = cloned
	}

	nodeRegion := make(map[string]string, len(g.nodeRegion))
	for k, v := range g.nodeRegion {
		nodeRegion[k] = v
	}

	weights := make(map[string]map[string]float64, len(g.costFunctionWeights))
	for k, v := range g.costFunctionWeights {
		wc := make(map[string]float64, len(v))
		for k2, v2 := range v {
			wc[k2] = v2
		}
		weights[k] = wc
	}

	return &searchSnapshot{nodes: nodes, adjacency: adjacency, terminals: terminals, nodeRegion: nodeRegion, weights: weights}
}

// weightForMode mirrors graph.weightForMode against a snapshot's weights.
func (s *searchSnapshot) weightForMode(mode TransportationMode) map[string]float64 {
	if w, ok := s.weights[mode.String()]; ok {
		return w
	}
	if w, ok := s.weights[modeWeightKey(mode)]; ok {
		return w
	}
	return s.weights["default"]
}
