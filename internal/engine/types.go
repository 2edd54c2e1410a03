// Package engine implements the terminal-graph data model and algorithmic
// core described in SPEC_FULL.md §3–§4.1: the multigraph, alias resolution,
// region tagging, mode-filtered shortest-path search, and the top-N diverse
// paths algorithm.
package engine

import (
	"strconv"
	"strings"

	"terminalsim/internal/terminal"
)

// TransportationMode and TerminalInterface are canonically defined in
// internal/terminal, since a Terminal's interface table is keyed by them;
// the engine re-exports them here so callers of this package never need to
// import internal/terminal directly for these enums.
type TransportationMode = terminal.TransportationMode

const (
	ModeTruck TransportationMode = terminal.ModeTruck
	ModeTrain TransportationMode = terminal.ModeTrain
	ModeShip  TransportationMode = terminal.ModeShip
	ModeAny   TransportationMode = terminal.ModeAny
)

// ParseTransportationMode accepts either an integer literal (as produced by
// JSON round-trips) or a case-insensitive mode name, matching the
// dispatcher's parameter-normalization rule in SPEC_FULL.md §4.3.
func ParseTransportationMode(v any) (TransportationMode, error) {
	return terminal.ParseTransportationMode(v)
}

type TerminalInterface = terminal.TerminalInterface

const (
	InterfaceLandSide TerminalInterface = terminal.InterfaceLandSide
	InterfaceSeaSide  TerminalInterface = terminal.InterfaceSeaSide
	InterfaceRailSide TerminalInterface = terminal.InterfaceRailSide
)

// ParseTerminalInterface mirrors ParseTransportationMode's normalization
// rule for interface-keyed parameters.
func ParseTerminalInterface(v any) (TerminalInterface, error) {
	return terminal.ParseTerminalInterface(v)
}

// CompatibleMode is the fixed mode/interface compatibility table from
// spec.md §3: Truck<->LandSide, Train<->RailSide, Ship<->SeaSide.
func CompatibleMode(i TerminalInterface) TransportationMode {
	return terminal.CompatibleMode(i)
}

// EdgeKey identifies a route uniquely: at most one edge exists per
// (From, To, Mode) triple (spec.md §3 invariant, §8 invariant 1).
type EdgeKey struct {
	From string
	To   string
	Mode TransportationMode
}

// Edge is a directed route between two canonical terminal names under a
// concrete transportation mode.
type Edge struct {
	From       string
	To         string
	RouteID    string
	Mode       TransportationMode
	Attributes map[string]float64
	// seq records insertion order. No lookup reads it: adjacency slices
	// already keep edges in insertion order, and the Dijkstra queue breaks
	// equal-distance ties by node name.
	seq int
}

// CloneAttributes returns a shallow copy of the edge's attribute map.
func (e *Edge) CloneAttributes() map[string]float64 {
	out := make(map[string]float64, len(e.Attributes))
	for k, v := range e.Attributes {
		out[k] = v
	}
	return out
}

// PathSegment is one hop of a computed path.
type PathSegment struct {
	From       string
	To         string
	Mode       TransportationMode
	Weight     float64
	Attributes map[string]float64
	// EstimatedValues/EstimatedCost are the per-segment derived maps
	// SPEC_FULL.md §3 carries forward from original_source/terminal_path_segment.h:
	// the raw attribute map before weighting, and the per-attribute
	// weighted contribution.
	EstimatedValues map[string]float64
	EstimatedCost   map[string]float64
}

// TerminalInPath is one entry of Path.TerminalsInPath.
type TerminalInPath struct {
	Terminal     string
	HandlingTime float64
	Cost         float64
	CostsSkipped bool
}

// Path is a fully-detailed, costed route between two terminals.
type Path struct {
	PathID             int
	Segments           []PathSegment
	TerminalsInPath    []TerminalInPath
	TotalEdgeCosts     float64
	TotalTerminalCosts float64
	TotalPathCost      float64
	CostBreakdown      map[string]float64
}

// Signature returns the path's deterministic de-duplication key
// (spec.md §4.1.7): from0 ++ ("->" + to_i + ":" + int(mode_i)) per segment.
func Signature(segments []PathSegment) string {
	if len(segments) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString(segments[0].From)
	for _, seg := range segments {
		b.WriteString("->")
		b.WriteString(seg.To)
		b.WriteString(":")
		b.WriteString(strconv.Itoa(int(seg.Mode)))
	}
	return b.String()
}
