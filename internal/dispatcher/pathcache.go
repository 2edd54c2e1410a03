package dispatcher

import (
	"context"
	"encoding/json"
)

// PathCache is the optional cache-aside contract a path-finding result
// cache satisfies (spec.md §9's Design Notes call this out as an optional
// layer any dispatcher wiring can add or omit without changing command
// semantics). internal/pathcache provides an implementation backed by
// pkg/cache (memory or Redis);
// a Dispatcher with no cache configured behaves exactly as if this
// interface didn't exist.
type PathCache interface {
	// Get returns the cached JSON-encoded result for key, if present.
	Get(ctx context.Context, key string) (json.RawMessage, bool)
	// Set stores value (already JSON-marshalable) under key.
	Set(ctx context.Context, key string, value any)
	// InvalidateAll drops every cached path result. Called after any
	// command that can change path costs (topology or weight changes).
	InvalidateAll(ctx context.Context)
}

// graphMutatingCommands are the commands whose effects can change a
// future find_shortest_path/find_top_paths result: anything that adds,
// removes, or reweights a terminal, alias, or edge, plus a full graph
// swap. Container operations are excluded — terminal cost/delay
// estimates spec.md §4.2 defines are derived from static configuration,
// never from current container counts.
var graphMutatingCommands = map[string]bool{
	"deserialize_graph":                    true,
	"add_terminal":                         true,
	"add_alias_to_terminal":                true,
	"remove_terminal":                      true,
	"add_route":                            true,
	"change_route_weight":                  true,
	"connect_terminals_by_interface_modes": true,
	"connect_terminals_in_region_by_mode":  true,
	"connect_regions_by_mode":              true,
}

// SetCache attaches an optional path cache to the dispatcher.
func (d *Dispatcher) SetCache(cache PathCache) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cache = cache
}

func (d *Dispatcher) pathCache() PathCache {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.cache
}
