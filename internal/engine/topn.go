package engine

import (
	"sort"

	"terminalsim/pkg/apperror"
)

// candidatePath is one path under consideration before detail expansion:
// just its segments. Candidates are ranked in step 4, on the fully expanded
// Path.TotalPathCost computed once selection is done.
type candidatePath struct {
	segments []PathSegment
}

// FindTopPaths implements spec.md §4.1.6-§4.1.8: direct-edge enumeration,
// a shortest path excluding those edges, then edge-exclusion or
// intermediate-node diversification, finishing with detail expansion and a
// finalization sort/truncate/renumber.
func (e *Engine) FindTopPaths(start, end string, n int, mode TransportationMode, skipDelays bool) ([]Path, error) {
	if n < 1 {
		return nil, apperror.New(apperror.CodeInvalidArgs, "n must be >= 1")
	}
	from, to, err := e.resolveAndCheck(start, end)
	if err != nil {
		return nil, err
	}

	// SPEC_FULL.md §4.1 supplement: the snapshot itself is this call's
	// per-terminal-lookup cache (snap.terminals), scoped to one FindTopPaths
	// invocation rather than re-resolving the engine's terminal map per
	// candidate.
	snap := e.g.snapshot()

	signatures := make(map[string]bool)
	var chosen []candidatePath

	// 1. Direct paths, sorted ascending by augmented cost, deduplicated by
	// signature, taken until n reached.
	var directs []candidatePath
	directEdges := make(map[EdgeKey]bool)
	for _, edge := range snap.adjacency[from] {
		if edge.To != to {
			continue
		}
		if mode != ModeAny && edge.Mode != mode {
			continue
		}
		params := augmentedAttributes(snap, edge, from)
		weight := cost(snap.weightForMode(edge.Mode), params)
		directs = append(directs, candidatePath{segments: []PathSegment{{
			From: from, To: to, Mode: edge.Mode, Weight: weight, Attributes: edge.Attributes,
		}}})
	}
	sort.SliceStable(directs, func(i, j int) bool {
		return directs[i].segments[0].Weight < directs[j].segments[0].Weight
	})
	for _, d := range directs {
		if len(chosen) >= n {
			break
		}
		sig := Signature(d.segments)
		if signatures[sig] {
			continue
		}
		signatures[sig] = true
		chosen = append(chosen, d)
		directEdges[EdgeKey{From: from, To: to, Mode: d.segments[0].Mode}] = true
	}

	// 2. Shortest path excluding the already-chosen direct edges.
	if len(chosen) < n {
		segs, err := searchWithExclusions(snap, from, to, mode, directEdges, nil)
		if err == nil {
			sig := Signature(segs)
			if !signatures[sig] {
				signatures[sig] = true
				chosen = append(chosen, candidatePath{segments: segs})
			}
		}
	}

	// 3. Diversification.
	hasMultiSegment := false
	for _, c := range chosen {
		if len(c.segments) > 1 {
			hasMultiSegment = true
			break
		}
	}
	if len(chosen) < n {
		if hasMultiSegment {
			chosen = diversifyByEdgeExclusion(snap, from, to, mode, n, chosen, signatures)
		} else {
			chosen = diversifyByIntermediateNode(snap, from, to, mode, n, chosen, signatures)
		}
	}

	// 4. Finalization: expand detail, sort ascending by total_path_cost,
	// truncate, renumber.
	paths := make([]Path, 0, len(chosen))
	for _, c := range chosen {
		paths = append(paths, expandPathDetail(snap, 0, c.segments, skipDelays))
	}
	sort.SliceStable(paths, func(i, j int) bool { return paths[i].TotalPathCost < paths[j].TotalPathCost })
	if len(paths) > n {
		paths = paths[:n]
	}
	for i := range paths {
		paths[i].PathID = i + 1
	}
	return paths, nil
}

// sortedEdgeKeys returns a pool's keys in deterministic order
// (From, then To, then Mode) so diversification is reproducible.
func sortedEdgeKeys(pool map[EdgeKey]bool) []EdgeKey {
	out := make([]EdgeKey, 0, len(pool))
	for k := range pool {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].From != out[j].From {
			return out[i].From < out[j].From
		}
		if out[i].To != out[j].To {
			return out[i].To < out[j].To
		}
		return out[i].Mode < out[j].Mode
	})
	return out
}

// diversifyByEdgeExclusion implements spec.md §4.1.6 step 3's
// edge-exclusion branch: collect the (from,to,mode) triples appearing in
// any multi-segment chosen path, then iteratively exclude one (then, once
// singles are exhausted without progress, every ordered pair) and re-run
// the exclusion search, growing the exclusion pool with triples from any
// newly discovered path.
func diversifyByEdgeExclusion(snap *searchSnapshot, from, to string, mode TransportationMode, n int, chosen []candidatePath, signatures map[string]bool) []candidatePath {
	pool := make(map[EdgeKey]bool)
	for _, c := range chosen {
		if len(c.segments) <= 1 {
			continue
		}
		for _, seg := range c.segments {
			pool[EdgeKey{From: seg.From, To: seg.To, Mode: seg.Mode}] = true
		}
	}

	tried := make(map[EdgeKey]bool)
	for len(chosen) < n {
		progress := false
		for _, k := range sortedEdgeKeys(pool) {
			if tried[k] {
				continue
			}
			tried[k] = true
			segs, err := searchWithExclusions(snap, from, to, mode, map[EdgeKey]bool{k: true}, nil)
			if err != nil {
				continue
			}
			sig := Signature(segs)
			if signatures[sig] {
				continue
			}
			signatures[sig] = true
			chosen = append(chosen, candidatePath{segments: segs})
			if len(segs) > 1 {
				for _, seg := range segs {
					pool[EdgeKey{From: seg.From, To: seg.To, Mode: seg.Mode}] = true
				}
			}
			progress = true
			if len(chosen) >= n {
				return chosen
			}
		}
		if !progress {
			break
		}
	}

	// All singletons exhausted without further progress: try every ordered
	// pair of triples from the pool.
	keys := sortedEdgeKeys(pool)
	for i := 0; i < len(keys) && len(chosen) < n; i++ {
		for j := i + 1; j < len(keys) && len(chosen) < n; j++ {
			excl := map[EdgeKey]bool{keys[i]: true, keys[j]: true}
			segs, err := searchWithExclusions(snap, from, to, mode, excl, nil)
			if err != nil {
				continue
			}
			sig := Signature(segs)
			if signatures[sig] {
				continue
			}
			signatures[sig] = true
			chosen = append(chosen, candidatePath{segments: segs})
		}
	}
	return chosen
}

// diversifyByIntermediateNode implements spec.md §4.1.6 step 3's
// intermediate-node branch, used when only direct (single-segment) paths
// have been chosen so far: for every non-endpoint node in deterministic
// order, compose shortest(start->mid) ++ shortest(mid->end), discarding
// single-segment composites (already covered by the direct-path pass),
// node-revisiting composites, and duplicate signatures.
func diversifyByIntermediateNode(snap *searchSnapshot, from, to string, mode TransportationMode, n int, chosen []candidatePath, signatures map[string]bool) []candidatePath {
	var mids []string
	for _, node := range snap.nodes {
		if node != from && node != to {
			mids = append(mids, node)
		}
	}
	sort.Strings(mids)

	for _, mid := range mids {
		if len(chosen) >= n {
			break
		}
		seg1, err1 := searchWithExclusions(snap, from, mid, mode, nil, nil)
		if err1 != nil {
			continue
		}
		seg2, err2 := searchWithExclusions(snap, mid, to, mode, nil, nil)
		if err2 != nil {
			continue
		}
		combined := make([]PathSegment, 0, len(seg1)+len(seg2))
		combined = append(combined, seg1...)
		combined = append(combined, seg2...)
		if len(combined) <= 1 {
			continue
		}

		visited := map[string]bool{from: true}
		revisits := false
		for _, s := range combined {
			if visited[s.To] {
				revisits = true
				break
			}
			visited[s.To] = true
		}
		if revisits {
			continue
		}

		sig := Signature(combined)
		if signatures[sig] {
			continue
		}
		signatures[sig] = true
		chosen = append(chosen, candidatePath{segments: combined})
	}
	return chosen
}

// expandPathDetail implements spec.md §4.1.7: recomputes each segment's
// edge weight from its raw (non-terminal-augmented) attributes, derives
// estimated_values/estimated_cost per segment, walks terminals_in_path
// applying the costs_skipped rule, and sums total_edge_costs/
// total_terminal_costs/total_path_cost/cost_breakdown.
func expandPathDetail(snap *searchSnapshot, pathID int, segments []PathSegment, skipDelays bool) Path {
	if len(segments) == 0 {
		return Path{PathID: pathID, CostBreakdown: map[string]float64{"edge": 0, "terminal": 0, "total": 0}}
	}

	expanded := make([]PathSegment, len(segments))
	var totalEdgeCost float64
	for i, seg := range segments {
		weights := snap.weightForMode(seg.Mode)
		edgeWeight := cost(weights, seg.Attributes)
		totalEdgeCost += edgeWeight

		estimatedValues := cloneFloatMap(seg.Attributes)
		estimatedCost := make(map[string]float64, len(seg.Attributes))
		for k, v := range seg.Attributes {
			w := 1.0
			if weights != nil {
				if ww, ok := weights[k]; ok {
					w = ww
				}
			}
			estimatedCost[k] = w * v
		}

		expanded[i] = PathSegment{
			From: seg.From, To: seg.To, Mode: seg.Mode,
			Weight:          edgeWeight,
			Attributes:      seg.Attributes,
			EstimatedValues: estimatedValues,
			EstimatedCost:   estimatedCost,
		}
	}

	names := make([]string, 0, len(segments)+1)
	names = append(names, segments[0].From)
	for _, seg := range segments {
		names = append(names, seg.To)
	}

	terminalsInPath := make([]TerminalInPath, len(names))
	var totalTerminalCost float64
	for i, name := range names {
		t := snap.terminals[name]
		var handling, tcost float64
		if t != nil {
			handling = t.EstimateHandlingTime()
			tcost = t.EstimateContainerCost(nil, false)
		}

		var skip bool
		switch {
		case i == 0:
			// Origin: always skipped iff skip_delays (spec.md §4.1.7).
			skip = skipDelays
		case i == len(names)-1:
			// Destination: always counted (DESIGN.md Open Question
			// resolution — spec.md's literal text over the reference
			// implementation's index-bounds quirk).
			skip = false
		default:
			skip = skipDelays && segments[i-1].Mode == segments[i].Mode
		}

		if !skip {
			totalTerminalCost += tcost
		}
		terminalsInPath[i] = TerminalInPath{Terminal: name, HandlingTime: handling, Cost: tcost, CostsSkipped: skip}
	}

	total := totalEdgeCost + totalTerminalCost
	return Path{
		PathID:             pathID,
		Segments:           expanded,
		TerminalsInPath:    terminalsInPath,
		TotalEdgeCosts:     totalEdgeCost,
		TotalTerminalCosts: totalTerminalCost,
		TotalPathCost:      total,
		CostBreakdown:      map[string]float64{"edge": totalEdgeCost, "terminal": totalTerminalCost, "total": total},
	}
}
