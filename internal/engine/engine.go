package engine

import (
	"fmt"
	"sort"

	"terminalsim/internal/terminal"
	"terminalsim/pkg/apperror"
)

// TerminalConfig is the caller-supplied configuration for a new terminal,
// mirroring spec.md §4.1's add_terminal `config` argument.
type TerminalConfig = terminal.Config

// TerminalStatus is the snapshot get_terminal_status returns for one
// terminal (spec.md §4.1): container_count, available_capacity,
// max_capacity, region, aliases.
type TerminalStatus struct {
	Name              string
	ContainerCount    int
	AvailableCapacity int
	MaxCapacity       *int
	Region            string
	Aliases           []string
}

// Engine is the terminal-graph engine: the public, thread-safe contract
// described in spec.md §4.1. It owns the graph's adjacency/alias/region
// state and the canonical-name -> *terminal.Terminal table.
type Engine struct {
	g *graph

	// storageFactory builds the terminal.Storage backend for a newly added
	// terminal, keyed by its canonical name. nil means every terminal gets
	// the default in-memory backend (terminal.New's behavior). Set via
	// NewWithStorageFactory when cfg.Database.Enabled wires a persistent
	// container store (internal/store/postgres) from cmd/terminalsimd.
	storageFactory func(canonicalName string) terminal.Storage
}

// New constructs an empty engine whose terminals use in-memory container
// storage.
func New() *Engine {
	return &Engine{g: newGraph()}
}

// NewWithStorageFactory constructs an empty engine whose terminals get
// their container storage from factory instead of the in-memory default,
// e.g. one scoped to a shared *postgres.Store pool.
func NewWithStorageFactory(factory func(canonicalName string) terminal.Storage) *Engine {
	return &Engine{g: newGraph(), storageFactory: factory}
}

func (e *Engine) newTerminal(canonical, displayName string, interfaces map[TerminalInterface]map[TransportationMode]bool, cfg TerminalConfig) *terminal.Terminal {
	if e.storageFactory != nil {
		return terminal.NewWithStorage(canonical, displayName, interfaces, cfg, e.storageFactory(canonical))
	}
	return terminal.New(canonical, displayName, interfaces, cfg)
}

// AddTerminal implements spec.md §4.1 add_terminal: names[0] is canonical,
// all names must be new, interfaces must be non-empty.
func (e *Engine) AddTerminal(names []string, displayName string, cfg TerminalConfig, interfaces map[TerminalInterface]map[TransportationMode]bool, region string) (*terminal.Terminal, error) {
	if len(names) == 0 {
		return nil, apperror.New(apperror.CodeInvalidArgs, "add_terminal requires at least one name")
	}
	if len(interfaces) == 0 {
		return nil, apperror.New(apperror.CodeInvalidArgs, "add_terminal requires at least one interface")
	}

	e.g.mu.Lock()
	defer e.g.mu.Unlock()

	canonical := names[0]
	for _, n := range names {
		if _, exists := e.g.aliasToCanonical[n]; exists {
			return nil, apperror.NewWithField(apperror.CodeNameConflict, fmt.Sprintf("name %q already in use", n), "name")
		}
	}

	t := e.newTerminal(canonical, displayName, interfaces, cfg)
	e.g.terminals[canonical] = t
	e.g.registerNameLocked(canonical)
	for _, alias := range names[1:] {
		e.g.addAliasLocked(canonical, alias)
	}
	if region != "" {
		e.g.nodeRegion[canonical] = region
	}
	return t, nil
}

// AddTerminalSpec is one entry of a batch add_terminals call.
type AddTerminalSpec struct {
	Names       []string
	DisplayName string
	Config      TerminalConfig
	Interfaces  map[TerminalInterface]map[TransportationMode]bool
	Region      string
}

// AddTerminals implements spec.md §4.1 add_terminals: all-or-nothing —
// validate every entry (no empty name lists, no duplicates within the
// batch or against the existing graph), then add them all.
func (e *Engine) AddTerminals(specs []AddTerminalSpec) (map[string]*terminal.Terminal, error) {
	e.g.mu.Lock()
	defer e.g.mu.Unlock()

	seen := make(map[string]bool)
	for _, s := range specs {
		if len(s.Names) == 0 {
			return nil, apperror.New(apperror.CodeInvalidArgs, "add_terminals entry requires at least one name")
		}
		if len(s.Interfaces) == 0 {
			return nil, apperror.New(apperror.CodeInvalidArgs, "add_terminals entry requires at least one interface")
		}
		for _, n := range s.Names {
			if _, exists := e.g.aliasToCanonical[n]; exists {
				return nil, apperror.NewWithField(apperror.CodeNameConflict, fmt.Sprintf("name %q already in use", n), "name")
			}
			if seen[n] {
				return nil, apperror.NewWithField(apperror.CodeNameConflict, fmt.Sprintf("duplicate name %q within batch", n), "name")
			}
			seen[n] = true
		}
	}

	out := make(map[string]*terminal.Terminal, len(specs))
	for _, s := range specs {
		canonical := s.Names[0]
		t := e.newTerminal(canonical, s.DisplayName, s.Interfaces, s.Config)
		e.g.terminals[canonical] = t
		e.g.registerNameLocked(canonical)
		for _, alias := range s.Names[1:] {
			e.g.addAliasLocked(canonical, alias)
		}
		if s.Region != "" {
			e.g.nodeRegion[canonical] = s.Region
		}
		out[canonical] = t
	}
	return out, nil
}

// AddAliasToTerminal implements spec.md §4.1 add_alias_to_terminal.
func (e *Engine) AddAliasToTerminal(name, alias string) error {
	e.g.mu.Lock()
	defer e.g.mu.Unlock()

	canonical, ok := e.g.aliasToCanonical[name]
	if !ok {
		return apperror.New(apperror.CodeNotFound, fmt.Sprintf("terminal %q not found", name))
	}
	if _, exists := e.g.aliasToCanonical[alias]; exists {
		return apperror.NewWithField(apperror.CodeNameConflict, fmt.Sprintf("alias %q already in use", alias), "alias")
	}
	e.g.addAliasLocked(canonical, alias)
	return nil
}

// GetAliasesOfTerminal implements spec.md §4.1 get_aliases_of_terminal.
func (e *Engine) GetAliasesOfTerminal(name string) ([]string, error) {
	e.g.mu.RLock()
	defer e.g.mu.RUnlock()

	canonical, ok := e.g.aliasToCanonical[name]
	if !ok {
		return nil, apperror.New(apperror.CodeNotFound, fmt.Sprintf("terminal %q not found", name))
	}
	return e.g.aliasesLocked(canonical), nil
}

// RemoveTerminal implements spec.md §4.1 remove_terminal: removes the node,
// all incident edges in both directions, and all its aliases.
func (e *Engine) RemoveTerminal(name string) bool {
	e.g.mu.Lock()
	defer e.g.mu.Unlock()

	canonical, ok := e.g.aliasToCanonical[name]
	if !ok {
		return false
	}
	e.g.removeNodeLocked(canonical)
	return true
}

// AddRoute implements spec.md §4.1 add_route: mode must be concrete,
// attributes = defaults ∪ attrs (attrs wins); a second edge with the same
// (start,end,mode) overwrites the prior attributes.
func (e *Engine) AddRoute(routeID, start, end string, mode TransportationMode, attrs map[string]float64) error {
	if mode == ModeAny {
		return apperror.New(apperror.CodeInvalidArgs, "add_route requires a concrete mode, not Any")
	}
	e.g.mu.Lock()
	defer e.g.mu.Unlock()

	from, to, err := e.resolveEndpointsLocked(start, end)
	if err != nil {
		return err
	}
	e.g.addEdgeLocked(from, to, routeID, mode, attrs)
	return nil
}

func (e *Engine) resolveEndpointsLocked(start, end string) (string, string, error) {
	from, ok := e.g.aliasToCanonical[start]
	if !ok {
		return "", "", apperror.NewWithField(apperror.CodeNotFound, fmt.Sprintf("terminal %q not found", start), "start")
	}
	to, ok := e.g.aliasToCanonical[end]
	if !ok {
		return "", "", apperror.NewWithField(apperror.CodeNotFound, fmt.Sprintf("terminal %q not found", end), "end")
	}
	return from, to, nil
}

// RouteSpec is one entry of a batch add_routes call.
type RouteSpec struct {
	RouteID string
	Start   string
	End     string
	Mode    TransportationMode
	Attrs   map[string]float64
}

// AddRoutes implements spec.md §4.1 add_routes: up-front validation like
// add_terminals, then inserts.
func (e *Engine) AddRoutes(specs []RouteSpec) error {
	e.g.mu.Lock()
	defer e.g.mu.Unlock()

	for _, s := range specs {
		if s.Mode == ModeAny {
			return apperror.New(apperror.CodeInvalidArgs, "add_routes requires a concrete mode, not Any")
		}
		if _, ok := e.g.aliasToCanonical[s.Start]; !ok {
			return apperror.NewWithField(apperror.CodeNotFound, fmt.Sprintf("terminal %q not found", s.Start), "start")
		}
		if _, ok := e.g.aliasToCanonical[s.End]; !ok {
			return apperror.NewWithField(apperror.CodeNotFound, fmt.Sprintf("terminal %q not found", s.End), "end")
		}
	}
	for _, s := range specs {
		from := e.g.aliasToCanonical[s.Start]
		to := e.g.aliasToCanonical[s.End]
		e.g.addEdgeLocked(from, to, s.RouteID, s.Mode, s.Attrs)
	}
	return nil
}

// ChangeRouteWeight implements spec.md §4.1 change_route_weight: merges
// attrs into the existing edge, failing with NotFound if absent.
func (e *Engine) ChangeRouteWeight(start, end string, mode TransportationMode, attrs map[string]float64) error {
	e.g.mu.Lock()
	defer e.g.mu.Unlock()

	from, to, err := e.resolveEndpointsLocked(start, end)
	if err != nil {
		return err
	}
	key := EdgeKey{From: from, To: to, Mode: mode}
	edge, ok := e.g.edgeKeys[key]
	if !ok {
		return apperror.New(apperror.CodeNotFound, fmt.Sprintf("no edge (%s,%s,%s)", start, end, mode))
	}
	for k, v := range attrs {
		edge.Attributes[k] = v
	}
	return nil
}

// GetEdgeByMode implements spec.md §4.1 get_edge_by_mode: returns the
// attribute map (plus mode and route_id); empty when absent.
func (e *Engine) GetEdgeByMode(start, end string, mode TransportationMode) map[string]any {
	e.g.mu.RLock()
	defer e.g.mu.RUnlock()

	from, ok1 := e.g.aliasToCanonical[start]
	to, ok2 := e.g.aliasToCanonical[end]
	if !ok1 || !ok2 {
		return map[string]any{}
	}
	edge, ok := e.g.edgeKeys[EdgeKey{From: from, To: to, Mode: mode}]
	if !ok {
		return map[string]any{}
	}
	out := make(map[string]any, len(edge.Attributes)+2)
	for k, v := range edge.Attributes {
		out[k] = v
	}
	out["mode"] = edge.Mode
	out["route_id"] = edge.RouteID
	return out
}

// GetTerminalsByRegion implements spec.md §4.1 get_terminals_by_region.
func (e *Engine) GetTerminalsByRegion(region string) []string {
	e.g.mu.RLock()
	defer e.g.mu.RUnlock()

	var out []string
	for name, r := range e.g.nodeRegion {
		if r == region {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// RouteBetweenRegions is one entry get_routes_between_regions returns.
type RouteBetweenRegions struct {
	From, To, RouteID string
	Mode              TransportationMode
	Attributes        map[string]float64
}

// GetRoutesBetweenRegions implements spec.md §4.1 get_routes_between_regions:
// enumerates every edge whose endpoints lie in the two regions (a×b),
// excluding self-loops.
func (e *Engine) GetRoutesBetweenRegions(a, b string) []RouteBetweenRegions {
	e.g.mu.RLock()
	defer e.g.mu.RUnlock()

	var out []RouteBetweenRegions
	for key, edge := range e.g.edgeKeys {
		if key.From == key.To {
			continue
		}
		fromRegion := e.g.nodeRegion[key.From]
		toRegion := e.g.nodeRegion[key.To]
		if fromRegion == a && toRegion == b {
			out = append(out, RouteBetweenRegions{From: key.From, To: key.To, RouteID: edge.RouteID, Mode: edge.Mode, Attributes: edge.CloneAttributes()})
		}
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

// ConnectTerminalsByInterfaceModes implements spec.md §4.1
// connect_terminals_by_interface_modes: for every unordered pair (A,B) and
// every TerminalInterface present in both terminals' interfaces, and every
// mode present in both sides of that interface, add bidirectional
// auto-routes with default attributes.
//
// Per spec.md §5 deadlock-discipline item 1, the terminal pointers are
// snapshotted under the engine lock, the lock is released, Interfaces() is
// called against the plain pointers (taking each terminal's own lock with
// the engine lock not held), and only the edge mutation itself reacquires
// the engine lock — the same pattern GetTerminalStatus uses.
func (e *Engine) ConnectTerminalsByInterfaceModes() {
	names, pointers := e.snapshotAllTerminalPointers()
	ifaceSnapshot := interfaceSnapshot(names, pointers)

	e.g.mu.Lock()
	defer e.g.mu.Unlock()
	for i := 0; i < len(names); i++ {
		for j := i + 1; j < len(names); j++ {
			a, b := names[i], names[j]
			if !e.g.hasTerminalLocked(a) || !e.g.hasTerminalLocked(b) {
				continue
			}
			for iface, aModes := range ifaceSnapshot[a] {
				bModes, ok := ifaceSnapshot[b][iface]
				if !ok {
					continue
				}
				for mode := range aModes {
					if !bModes[mode] {
						continue
					}
					e.g.addEdgeLocked(a, b, autoRouteID(a, b, mode), mode, nil)
					e.g.addEdgeLocked(b, a, autoRouteID(b, a, mode), mode, nil)
				}
			}
		}
	}
}

// ConnectTerminalsInRegionByMode implements spec.md §4.1
// connect_terminals_in_region_by_mode: within a region, connect every
// ordered pair of distinct terminals sharing at least one mode (union over
// interfaces), bidirectionally per shared mode. Follows the same
// snapshot-then-release pattern as ConnectTerminalsByInterfaceModes.
func (e *Engine) ConnectTerminalsInRegionByMode(region string) {
	names, pointers := e.snapshotRegionTerminalPointers(region)
	modeUnion := modeUnionSnapshot(names, pointers)

	e.g.mu.Lock()
	defer e.g.mu.Unlock()
	for i := 0; i < len(names); i++ {
		for j := 0; j < len(names); j++ {
			if i == j {
				continue
			}
			a, b := names[i], names[j]
			if !e.g.hasTerminalLocked(a) || !e.g.hasTerminalLocked(b) {
				continue
			}
			for mode := range modeUnion[a] {
				if modeUnion[b][mode] {
					e.g.addEdgeLocked(a, b, autoRouteID(a, b, mode), mode, nil)
				}
			}
		}
	}
}

// ConnectRegionsByMode implements spec.md §4.1 connect_regions_by_mode: for
// every ordered pair of terminals in different regions that both support
// mode, add a route. Follows the same snapshot-then-release pattern as
// ConnectTerminalsByInterfaceModes.
func (e *Engine) ConnectRegionsByMode(mode TransportationMode) {
	names, pointers := e.snapshotAllTerminalPointers()
	modeUnion := modeUnionSnapshot(names, pointers)

	e.g.mu.Lock()
	defer e.g.mu.Unlock()
	for i := 0; i < len(names); i++ {
		for j := 0; j < len(names); j++ {
			if i == j {
				continue
			}
			a, b := names[i], names[j]
			if !e.g.hasTerminalLocked(a) || !e.g.hasTerminalLocked(b) {
				continue
			}
			if e.g.nodeRegion[a] == e.g.nodeRegion[b] {
				continue
			}
			if modeUnion[a][mode] && modeUnion[b][mode] {
				e.g.addEdgeLocked(a, b, autoRouteID(a, b, mode), mode, nil)
			}
		}
	}
}

func autoRouteID(from, to string, mode TransportationMode) string {
	return fmt.Sprintf("auto:%s->%s:%s", from, to, mode)
}

func (e *Engine) sortedCanonicalNamesLocked() []string {
	names := make([]string, 0, len(e.g.terminals))
	for name := range e.g.terminals {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// hasTerminalLocked reports whether name still names a live terminal.
// Callers must already hold e.g.mu. Used by the auto-wire methods to
// re-check terminal presence after releasing the engine lock to take
// interface/mode snapshots, in case a concurrent remove_terminal raced in
// between.
func (g *graph) hasTerminalLocked(name string) bool {
	_, ok := g.terminals[name]
	return ok
}

// snapshotAllTerminalPointers copies every canonical name's *Terminal
// pointer under a read lock on the engine, then releases it. Callers use
// the returned pointers to call terminal methods (which take the
// terminal's own lock) without the engine lock held, per spec.md §5
// deadlock-discipline item 1.
func (e *Engine) snapshotAllTerminalPointers() ([]string, map[string]*terminal.Terminal) {
	e.g.mu.RLock()
	defer e.g.mu.RUnlock()
	names := e.sortedCanonicalNamesLocked()
	pointers := make(map[string]*terminal.Terminal, len(names))
	for _, name := range names {
		pointers[name] = e.g.terminals[name]
	}
	return names, pointers
}

// snapshotRegionTerminalPointers is snapshotAllTerminalPointers scoped to
// one region's terminals.
func (e *Engine) snapshotRegionTerminalPointers(region string) ([]string, map[string]*terminal.Terminal) {
	e.g.mu.RLock()
	defer e.g.mu.RUnlock()
	var names []string
	for name, r := range e.g.nodeRegion {
		if r == region {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	pointers := make(map[string]*terminal.Terminal, len(names))
	for _, name := range names {
		pointers[name] = e.g.terminals[name]
	}
	return names, pointers
}

// interfaceSnapshot builds name -> interface -> mode-set from plain
// terminal pointers, called with no engine lock held.
func interfaceSnapshot(names []string, pointers map[string]*terminal.Terminal) map[string]map[TerminalInterface]map[TransportationMode]bool {
	out := make(map[string]map[TerminalInterface]map[TransportationMode]bool, len(names))
	for _, name := range names {
		out[name] = pointers[name].Interfaces()
	}
	return out
}

// modeUnionSnapshot builds name -> mode-set (union across interfaces) from
// plain terminal pointers, called with no engine lock held.
func modeUnionSnapshot(names []string, pointers map[string]*terminal.Terminal) map[string]map[TransportationMode]bool {
	out := make(map[string]map[TransportationMode]bool, len(names))
	for _, name := range names {
		union := make(map[TransportationMode]bool)
		for _, modes := range pointers[name].Interfaces() {
			for mode := range modes {
				union[mode] = true
			}
		}
		out[name] = union
	}
	return out
}

// GetTerminal implements spec.md §4.1 get_terminal.
func (e *Engine) GetTerminal(name string) (*terminal.Terminal, error) {
	e.g.mu.RLock()
	defer e.g.mu.RUnlock()

	canonical, ok := e.g.aliasToCanonical[name]
	if !ok {
		return nil, apperror.New(apperror.CodeNotFound, fmt.Sprintf("terminal %q not found", name))
	}
	t, ok := e.g.terminals[canonical]
	if !ok {
		return nil, apperror.New(apperror.CodeNotFound, fmt.Sprintf("terminal %q not found", name))
	}
	return t, nil
}

// TerminalExists implements spec.md §4.1 terminal_exists.
func (e *Engine) TerminalExists(name string) bool {
	e.g.mu.RLock()
	defer e.g.mu.RUnlock()
	_, ok := e.g.aliasToCanonical[name]
	return ok
}

// GetTerminalCount implements spec.md §4.1 get_terminal_count.
func (e *Engine) GetTerminalCount() int {
	e.g.mu.RLock()
	defer e.g.mu.RUnlock()
	return len(e.g.terminals)
}

// GetAllTerminalNames implements spec.md §4.1 get_all_terminal_names:
// canonical -> alias list (empty if includeAliases is false).
func (e *Engine) GetAllTerminalNames(includeAliases bool) map[string][]string {
	e.g.mu.RLock()
	names := e.sortedCanonicalNamesLocked()
	out := make(map[string][]string, len(names))
	for _, name := range names {
		if includeAliases {
			out[name] = e.g.aliasesLocked(name)
		} else {
			out[name] = nil
		}
	}
	e.g.mu.RUnlock()
	return out
}

// GetTerminalStatus implements spec.md §4.1 get_terminal_status. When name
// is "", returns the status of every terminal. Per the deadlock discipline
// in spec.md §5, pointers are snapshotted under the engine lock, then the
// engine lock is released before calling terminal methods.
func (e *Engine) GetTerminalStatus(name string) ([]TerminalStatus, error) {
	type snapshot struct {
		name   string
		t      *terminal.Terminal
		region string
	}

	e.g.mu.RLock()
	var snaps []snapshot
	if name == "" {
		for _, canonical := range e.sortedCanonicalNamesLocked() {
			snaps = append(snaps, snapshot{name: canonical, t: e.g.terminals[canonical], region: e.g.nodeRegion[canonical]})
		}
	} else {
		canonical, ok := e.g.aliasToCanonical[name]
		if !ok {
			e.g.mu.RUnlock()
			return nil, apperror.New(apperror.CodeNotFound, fmt.Sprintf("terminal %q not found", name))
		}
		snaps = append(snaps, snapshot{name: canonical, t: e.g.terminals[canonical], region: e.g.nodeRegion[canonical]})
	}
	var aliasLists [][]string
	for _, s := range snaps {
		aliasLists = append(aliasLists, e.g.aliasesLocked(s.name))
	}
	e.g.mu.RUnlock()

	out := make([]TerminalStatus, 0, len(snaps))
	for i, s := range snaps {
		out = append(out, TerminalStatus{
			Name:              s.name,
			ContainerCount:    s.t.ContainerCount(),
			AvailableCapacity: s.t.AvailableCapacity(),
			MaxCapacity:       s.t.MaxCapacity(),
			Region:            s.region,
			Aliases:           aliasLists[i],
		})
	}
	return out, nil
}

// SetDefaultLinkAttributes implements the engine configuration described in
// spec.md §3: a numeric map merged into every new edge's attributes.
func (e *Engine) SetDefaultLinkAttributes(attrs map[string]float64) {
	e.g.mu.Lock()
	defer e.g.mu.Unlock()
	e.g.defaultLinkAttributes = cloneFloatMap(attrs)
}

// DefaultLinkAttributes returns the engine's configured default link
// attributes.
func (e *Engine) DefaultLinkAttributes() map[string]float64 {
	e.g.mu.RLock()
	defer e.g.mu.RUnlock()
	return cloneFloatMap(e.g.defaultLinkAttributes)
}

// SetCostFunctionWeights implements spec.md §3's cost-function weights
// table: mode-key -> attribute -> weight, with a "default" fallback entry.
func (e *Engine) SetCostFunctionWeights(weights map[string]map[string]float64) {
	e.g.mu.Lock()
	defer e.g.mu.Unlock()
	cloned := make(map[string]map[string]float64, len(weights))
	for k, v := range weights {
		cloned[k] = cloneFloatMap(v)
	}
	e.g.costFunctionWeights = cloned
}

// CostFunctionWeights returns the engine's configured cost-function weights.
func (e *Engine) CostFunctionWeights() map[string]map[string]float64 {
	e.g.mu.RLock()
	defer e.g.mu.RUnlock()
	out := make(map[string]map[string]float64, len(e.g.costFunctionWeights))
	for k, v := range e.g.costFunctionWeights {
		out[k] = cloneFloatMap(v)
	}
	return out
}

// Clear implements spec.md §4.1 clear: destroys all terminals, resets
// adjacency/alias/region state.
func (e *Engine) Clear() {
	e.g.mu.Lock()
	defer e.g.mu.Unlock()
	fresh := newGraph()
	e.g.terminals = fresh.terminals
	e.g.adjacency = fresh.adjacency
	e.g.edgeKeys = fresh.edgeKeys
	e.g.aliasToCanonical = fresh.aliasToCanonical
	e.g.canonicalToAliases = fresh.canonicalToAliases
	e.g.nodeRegion = fresh.nodeRegion
	e.g.defaultLinkAttributes = fresh.defaultLinkAttributes
	e.g.costFunctionWeights = fresh.costFunctionWeights
	e.g.nextSeq = 0
}
