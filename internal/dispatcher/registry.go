package dispatcher

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"terminalsim/internal/engine"
	"terminalsim/internal/terminal"
	"terminalsim/pkg/apperror"
)

// registry builds spec.md §4.3's full command table, grouped exactly as
// the table is: System, Terminals, Routes, Auto-wire, Path-finding,
// Container ops.
func registry() map[string]handler {
	return map[string]handler{
		// System
		"ping":              handlePing,
		"serialize_graph":   handleSerializeGraph,
		"deserialize_graph": handleDeserializeGraph,

		// Terminals
		"add_terminal":            handleAddTerminal,
		"add_alias_to_terminal":   handleAddAliasToTerminal,
		"get_aliases_of_terminal": handleGetAliasesOfTerminal,
		"remove_terminal":         handleRemoveTerminal,
		"get_terminal_count":      handleGetTerminalCount,
		"get_terminal_status":     handleGetTerminalStatus,
		"get_terminal":            handleGetTerminal,

		// Routes
		"add_route":           handleAddRoute,
		"change_route_weight": handleChangeRouteWeight,

		// Auto-wire
		"connect_terminals_by_interface_modes": handleConnectTerminalsByInterfaceModes,
		"connect_terminals_in_region_by_mode":  handleConnectTerminalsInRegionByMode,
		"connect_regions_by_mode":              handleConnectRegionsByMode,

		// Path-finding
		"find_shortest_path": handleFindShortestPath,
		"find_top_paths":     handleFindTopPaths,

		// Container ops
		"add_container":                         handleAddContainer,
		"add_containers":                        handleAddContainers,
		"add_containers_from_json":               handleAddContainersFromJSON,
		"get_containers_by_departing_time":       handleGetContainersByDepartingTime,
		"get_containers_by_added_time":           handleGetContainersByAddedTime,
		"get_containers_by_next_destination":     handleGetContainersByNextDestination,
		"dequeue_containers_by_next_destination":  handleDequeueContainersByNextDestination,
		"get_container_count":                    handleGetContainerCount,
		"get_available_capacity":                 handleGetAvailableCapacity,
		"get_max_capacity":                        handleGetMaxCapacity,
		"clear_terminal":                          handleClearTerminal,
	}
}

func handlePing(d *Dispatcher, params map[string]any) (any, error) {
	out := map[string]any{
		"status":    "ok",
		"timestamp": nowISO(),
	}
	if echo, ok := params["echo"]; ok {
		out["echo"] = echo
	}
	return out, nil
}

func handleSerializeGraph(d *Dispatcher, params map[string]any) (any, error) {
	data, err := d.engine().Serialize()
	if err != nil {
		return nil, apperror.Wrap(err, apperror.CodeInternal, "failed to serialize graph")
	}
	obj, err := decodeJSONObject(string(data))
	if err != nil {
		return nil, apperror.Wrap(err, apperror.CodeInternal, "failed to decode serialized graph")
	}
	return obj, nil
}

func handleDeserializeGraph(d *Dispatcher, params map[string]any) (any, error) {
	raw, ok := params["graph_data"]
	if !ok {
		return nil, apperror.NewWithField(apperror.CodeInvalidArgs, "missing graph_data parameter", "graph_data")
	}

	var data []byte
	switch t := raw.(type) {
	case string:
		data = []byte(t)
	case map[string]any:
		b, err := marshalGraphData(t)
		if err != nil {
			return nil, apperror.New(apperror.CodeInvalidArgs, fmt.Sprintf("invalid graph_data: %v", err))
		}
		data = b
	default:
		return nil, apperror.NewWithField(apperror.CodeInvalidArgs, "graph_data must be a JSON string or object", "graph_data")
	}

	newEngine, err := engine.Deserialize(data)
	if err != nil {
		return nil, err
	}
	d.replaceEngine(newEngine)
	return true, nil
}

func handleAddTerminal(d *Dispatcher, params map[string]any) (any, error) {
	names, err := paramStringList(params, "terminal_names")
	if err != nil {
		return nil, err
	}
	interfaces, err := paramTerminalInterfaces(params, "terminal_interfaces")
	if err != nil {
		return nil, err
	}
	cfg := paramTerminalConfig(params, "custom_config")
	region := optString(params, "region", "")

	_, err = d.engine().AddTerminal(names, optString(params, "display_name", names[0]), cfg, interfaces, region)
	if err != nil {
		return nil, err
	}
	return true, nil
}

func handleAddAliasToTerminal(d *Dispatcher, params map[string]any) (any, error) {
	name, err := paramString(params, "terminal_name")
	if err != nil {
		return nil, err
	}
	alias, err := paramString(params, "alias")
	if err != nil {
		return nil, err
	}
	if err := d.engine().AddAliasToTerminal(name, alias); err != nil {
		return nil, err
	}
	return true, nil
}

func handleGetAliasesOfTerminal(d *Dispatcher, params map[string]any) (any, error) {
	name, err := paramString(params, "terminal_name")
	if err != nil {
		return nil, err
	}
	return d.engine().GetAliasesOfTerminal(name)
}

func handleRemoveTerminal(d *Dispatcher, params map[string]any) (any, error) {
	name, err := paramString(params, "terminal_name")
	if err != nil {
		return nil, err
	}
	return d.engine().RemoveTerminal(name), nil
}

func handleGetTerminalCount(d *Dispatcher, params map[string]any) (any, error) {
	return d.engine().GetTerminalCount(), nil
}

func handleGetTerminalStatus(d *Dispatcher, params map[string]any) (any, error) {
	name := optString(params, "terminal_name", "")
	statuses, err := d.engine().GetTerminalStatus(name)
	if err != nil {
		return nil, err
	}
	if name != "" {
		return statusToMap(statuses[0]), nil
	}
	out := make([]map[string]any, 0, len(statuses))
	for _, s := range statuses {
		out = append(out, statusToMap(s))
	}
	return out, nil
}

func statusToMap(s engine.TerminalStatus) map[string]any {
	return map[string]any{
		"name":               s.Name,
		"container_count":    s.ContainerCount,
		"available_capacity": s.AvailableCapacity,
		"max_capacity":       s.MaxCapacity,
		"region":             s.Region,
		"aliases":            s.Aliases,
	}
}

func handleGetTerminal(d *Dispatcher, params map[string]any) (any, error) {
	name, err := paramString(params, "terminal_name")
	if err != nil {
		return nil, err
	}
	t, err := d.engine().GetTerminal(name)
	if err != nil {
		return nil, err
	}
	return terminalToResponseJSON(t), nil
}

func handleAddRoute(d *Dispatcher, params map[string]any) (any, error) {
	routeID, err := paramString(params, "route_id")
	if err != nil {
		return nil, err
	}
	start, err := paramString(params, "start_terminal")
	if err != nil {
		return nil, err
	}
	end, err := paramString(params, "end_terminal")
	if err != nil {
		return nil, err
	}
	mode, err := paramMode(params, "mode", 0, false)
	if err != nil {
		return nil, err
	}
	attrs := paramFloatMap(params, "attributes")

	if err := d.engine().AddRoute(routeID, start, end, mode, attrs); err != nil {
		return nil, err
	}
	return true, nil
}

func handleChangeRouteWeight(d *Dispatcher, params map[string]any) (any, error) {
	start, err := paramString(params, "start_terminal")
	if err != nil {
		return nil, err
	}
	end, err := paramString(params, "end_terminal")
	if err != nil {
		return nil, err
	}
	mode, err := paramMode(params, "mode", engine.ModeTruck, true)
	if err != nil {
		return nil, err
	}
	attrs := paramFloatMap(params, "attributes")
	if len(attrs) == 0 {
		return nil, apperror.New(apperror.CodeInvalidArgs, "attributes must be provided")
	}
	if err := d.engine().ChangeRouteWeight(start, end, mode, attrs); err != nil {
		return nil, err
	}
	return true, nil
}

func handleConnectTerminalsByInterfaceModes(d *Dispatcher, params map[string]any) (any, error) {
	d.engine().ConnectTerminalsByInterfaceModes()
	return true, nil
}

func handleConnectTerminalsInRegionByMode(d *Dispatcher, params map[string]any) (any, error) {
	region, err := paramString(params, "region")
	if err != nil {
		return nil, err
	}
	d.engine().ConnectTerminalsInRegionByMode(region)
	return true, nil
}

func handleConnectRegionsByMode(d *Dispatcher, params map[string]any) (any, error) {
	mode, err := paramMode(params, "mode", engine.ModeTruck, true)
	if err != nil {
		return nil, err
	}
	d.engine().ConnectRegionsByMode(mode)
	return true, nil
}

func handleFindShortestPath(d *Dispatcher, params map[string]any) (any, error) {
	start, err := paramString(params, "start_terminal")
	if err != nil {
		return nil, err
	}
	end, err := paramString(params, "end_terminal")
	if err != nil {
		return nil, err
	}
	mode, err := paramMode(params, "mode", engine.ModeTruck, true)
	if err != nil {
		return nil, err
	}

	cache := d.pathCache()
	cacheKey := cachedCommandKey("find_shortest_path", params)
	if cache != nil {
		if cached, ok := cache.Get(context.Background(), cacheKey); ok {
			var out any
			if json.Unmarshal(cached, &out) == nil {
				return out, nil
			}
		}
	}

	var segments []engine.PathSegment
	if regions, err := paramStringListOptional(params, "allowed_regions"); err == nil && regions != nil {
		segments, err = d.engine().ShortestPathWithinRegions(start, end, regions, mode)
		if err != nil {
			return nil, err
		}
	} else {
		segments, err = d.engine().ShortestPath(start, end, mode)
		if err != nil {
			return nil, err
		}
	}
	result := segmentsToResponse(segments)
	if cache != nil {
		cache.Set(context.Background(), cacheKey, result)
	}
	return result, nil
}

// cachedCommandKey builds a deterministic cache key from a command name
// and its parameter map. encoding/json marshals map keys in sorted order,
// so two logically-identical parameter maps always produce the same key.
func cachedCommandKey(command string, params map[string]any) string {
	b, err := json.Marshal(params)
	if err != nil {
		return command
	}
	return command + ":" + string(b)
}

func paramStringListOptional(params map[string]any, key string) ([]string, error) {
	if _, ok := params[key]; !ok {
		return nil, nil
	}
	return paramStringList(params, key)
}

func handleFindTopPaths(d *Dispatcher, params map[string]any) (any, error) {
	start, err := paramString(params, "start_terminal")
	if err != nil {
		return nil, err
	}
	end, err := paramString(params, "end_terminal")
	if err != nil {
		return nil, err
	}
	n := optInt(params, "n", 5)
	mode, err := paramMode(params, "mode", engine.ModeTruck, true)
	if err != nil {
		return nil, err
	}
	skipDelays := optBool(params, "skip_same_mode_terminal_delays_and_costs", true)

	cache := d.pathCache()
	cacheKey := cachedCommandKey("find_top_paths", params)
	if cache != nil {
		if cached, ok := cache.Get(context.Background(), cacheKey); ok {
			var out any
			if json.Unmarshal(cached, &out) == nil {
				return out, nil
			}
		}
	}

	paths, err := d.engine().FindTopPaths(start, end, n, mode, skipDelays)
	if err != nil {
		return nil, err
	}
	out := make([]map[string]any, 0, len(paths))
	for _, p := range paths {
		out = append(out, pathToResponse(p))
	}
	if cache != nil {
		cache.Set(context.Background(), cacheKey, out)
	}
	return out, nil
}

func getTerminalFromParams(d *Dispatcher, params map[string]any) (*terminal.Terminal, error) {
	id, err := paramString(params, "terminal_id")
	if err != nil {
		return nil, err
	}
	t, err := d.engine().GetTerminal(id)
	if err != nil {
		return nil, apperror.New(apperror.CodeNotFound, fmt.Sprintf("terminal not found: %s", id))
	}
	return t, nil
}

func handleAddContainer(d *Dispatcher, params map[string]any) (any, error) {
	t, err := getTerminalFromParams(d, params)
	if err != nil {
		return nil, err
	}
	c, err := paramContainer(params, "container")
	if err != nil {
		return nil, err
	}
	addingTime := optFloat(params, "adding_time", -1)
	if err := t.AddContainer(c, addingTime); err != nil {
		return nil, err
	}
	return true, nil
}

func handleAddContainers(d *Dispatcher, params map[string]any) (any, error) {
	t, err := getTerminalFromParams(d, params)
	if err != nil {
		return nil, err
	}
	containers, err := paramContainerList(params, "containers")
	if err != nil {
		return nil, err
	}
	addingTime := optFloat(params, "adding_time", -1)
	if err := t.AddContainers(containers, addingTime); err != nil {
		return nil, err
	}
	return true, nil
}

func handleAddContainersFromJSON(d *Dispatcher, params map[string]any) (any, error) {
	t, err := getTerminalFromParams(d, params)
	if err != nil {
		return nil, err
	}
	jsonStr, err := paramString(params, "containers_json")
	if err != nil {
		return nil, err
	}
	obj, err := decodeJSONObject(jsonStr)
	if err != nil {
		return nil, apperror.New(apperror.CodeInvalidArgs, fmt.Sprintf("invalid containers_json: %v", err))
	}
	addingTime := optFloat(params, "adding_time", -1)
	if err := terminal.AddContainersFromJSON(t, obj, addingTime); err != nil {
		return nil, err
	}
	return true, nil
}

func handleGetContainersByDepartingTime(d *Dispatcher, params map[string]any) (any, error) {
	t, err := getTerminalFromParams(d, params)
	if err != nil {
		return nil, err
	}
	tVal := optFloat(params, "departing_time", float64(time.Now().Unix()))
	condition := optString(params, "condition", "<")
	containers, err := t.GetContainersByDepartingTime(tVal, condition)
	if err != nil {
		return nil, err
	}
	return containersToResponse(containers), nil
}

func handleGetContainersByAddedTime(d *Dispatcher, params map[string]any) (any, error) {
	t, err := getTerminalFromParams(d, params)
	if err != nil {
		return nil, err
	}
	tVal := optFloat(params, "added_time", float64(time.Now().Unix()))
	condition, err := paramString(params, "condition")
	if err != nil {
		return nil, err
	}
	containers, err := t.GetContainersByAddedTime(tVal, condition)
	if err != nil {
		return nil, err
	}
	return containersToResponse(containers), nil
}

func handleGetContainersByNextDestination(d *Dispatcher, params map[string]any) (any, error) {
	t, err := getTerminalFromParams(d, params)
	if err != nil {
		return nil, err
	}
	dest, err := paramString(params, "destination")
	if err != nil {
		return nil, err
	}
	return containersToResponse(t.GetContainersByNextDestination(dest)), nil
}

func handleDequeueContainersByNextDestination(d *Dispatcher, params map[string]any) (any, error) {
	t, err := getTerminalFromParams(d, params)
	if err != nil {
		return nil, err
	}
	dest, err := paramString(params, "destination")
	if err != nil {
		return nil, err
	}
	return containersToResponse(t.DequeueContainersByNextDestination(dest)), nil
}

func handleGetContainerCount(d *Dispatcher, params map[string]any) (any, error) {
	t, err := getTerminalFromParams(d, params)
	if err != nil {
		return nil, err
	}
	return t.ContainerCount(), nil
}

func handleGetAvailableCapacity(d *Dispatcher, params map[string]any) (any, error) {
	t, err := getTerminalFromParams(d, params)
	if err != nil {
		return nil, err
	}
	return t.AvailableCapacity(), nil
}

func handleGetMaxCapacity(d *Dispatcher, params map[string]any) (any, error) {
	t, err := getTerminalFromParams(d, params)
	if err != nil {
		return nil, err
	}
	return t.MaxCapacity(), nil
}

func handleClearTerminal(d *Dispatcher, params map[string]any) (any, error) {
	t, err := getTerminalFromParams(d, params)
	if err != nil {
		return nil, err
	}
	t.Clear()
	return true, nil
}

// terminalToResponseJSON builds get_terminal's response payload from a
// terminal's public accessors, the same field set engine.Serialize embeds
// per terminal (spec.md §6's Terminal JSON shape) plus the live derived
// counts the wire schema also carries.
func terminalToResponseJSON(t *terminal.Terminal) map[string]any {
	interfaces := make(map[string][]int)
	for iface, modes := range t.Interfaces() {
		modeList := make([]int, 0, len(modes))
		for mode := range modes {
			modeList = append(modeList, int(mode))
		}
		interfaces[strconv.Itoa(int(iface))] = modeList
	}

	cfg := t.Config()
	var maxCapacity *int
	if mc := t.MaxCapacity(); mc != nil {
		maxCapacity = mc
	}

	return map[string]any{
		"terminal_name":        t.Name(),
		"display_name":         t.DisplayName(),
		"interfaces":           interfaces,
		"mode_network_aliases": t.ModeNetworkAliases(),
		"capacity": map[string]any{
			"max_capacity":       maxCapacity,
			"critical_threshold": cfg.Capacity.CriticalThreshold,
		},
		"dwell_time": map[string]any{
			"method":     cfg.DwellTime.Method,
			"parameters": cfg.DwellTime.Parameters,
		},
		"customs": map[string]any{
			"probability":    cfg.Customs.Probability,
			"delay_mean":     cfg.Customs.DelayMean,
			"delay_variance": cfg.Customs.DelayVariance,
		},
		"cost": map[string]any{
			"fixed_fees":   cfg.Cost.FixedFees,
			"customs_fees": cfg.Cost.CustomsFees,
			"risk_factor":  cfg.Cost.RiskFactor,
		},
		"container_count":    t.ContainerCount(),
		"available_capacity": t.AvailableCapacity(),
	}
}

func containersToResponse(containers []terminal.Container) []map[string]any {
	out := make([]map[string]any, 0, len(containers))
	for _, c := range containers {
		out = append(out, c.ToJSON())
	}
	return out
}

func segmentsToResponse(segments []engine.PathSegment) []map[string]any {
	out := make([]map[string]any, 0, len(segments))
	for _, s := range segments {
		out = append(out, map[string]any{
			"from":       s.From,
			"to":         s.To,
			"mode":       int(s.Mode),
			"weight":     s.Weight,
			"attributes": s.Attributes,
		})
	}
	return out
}

func pathToResponse(p engine.Path) map[string]any {
	segments := make([]map[string]any, 0, len(p.Segments))
	for _, s := range p.Segments {
		segments = append(segments, map[string]any{
			"from":             s.From,
			"to":               s.To,
			"mode":             int(s.Mode),
			"weight":           s.Weight,
			"attributes":       s.Attributes,
			"estimated_values": s.EstimatedValues,
			"estimated_cost":   s.EstimatedCost,
		})
	}
	terminals := make([]map[string]any, 0, len(p.TerminalsInPath))
	for _, t := range p.TerminalsInPath {
		terminals = append(terminals, map[string]any{
			"terminal":      t.Terminal,
			"handling_time": t.HandlingTime,
			"cost":          t.Cost,
			"costs_skipped": t.CostsSkipped,
		})
	}
	return map[string]any{
		"path_id":              p.PathID,
		"segments":             segments,
		"terminals_in_path":    terminals,
		"total_edge_costs":     p.TotalEdgeCosts,
		"total_terminal_costs": p.TotalTerminalCosts,
		"total_path_cost":      p.TotalPathCost,
		"cost_breakdown":       p.CostBreakdown,
	}
}

func marshalGraphData(m map[string]any) ([]byte, error) {
	return json.Marshal(m)
}
