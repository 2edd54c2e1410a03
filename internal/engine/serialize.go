package engine

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"terminalsim/internal/terminal"
	"terminalsim/pkg/apperror"
)

// graphJSON is the wire shape of spec.md §6's round-trippable Graph JSON
// schema.
type graphJSON struct {
	Terminals             map[string]terminalEntryJSON  `json:"terminals"`
	Edges                 []edgeJSON                    `json:"edges"`
	TerminalAliases       map[string]string             `json:"terminal_aliases"`
	CanonicalToAliases    map[string][]string            `json:"canonical_to_aliases"`
	CostFunctionWeights   map[string]map[string]float64  `json:"cost_function_weights"`
	DefaultLinkAttributes map[string]float64             `json:"default_link_attributes"`
}

type terminalEntryJSON struct {
	Config   terminalJSON   `json:"config"`
	NodeData map[string]any `json:"node_data"`
}

type edgeJSON struct {
	From       string             `json:"from"`
	To         string             `json:"to"`
	RouteID    string             `json:"route_id"`
	Mode       int                `json:"mode"`
	Attributes map[string]float64 `json:"attributes"`
}

// terminalJSON is spec.md §6's Terminal JSON shape.
type terminalJSON struct {
	TerminalName       string           `json:"terminal_name"`
	DisplayName        string           `json:"display_name"`
	Interfaces         map[string][]int `json:"interfaces"`
	ModeNetworkAliases map[string]string `json:"mode_network_aliases"`
	Capacity           capacityJSON     `json:"capacity"`
	DwellTime          dwellTimeJSON    `json:"dwell_time"`
	Customs            customsJSON      `json:"customs"`
	Cost               costJSON         `json:"cost"`
	ContainerCount     int              `json:"container_count"`
	AvailableCapacity  int              `json:"available_capacity"`
}

type capacityJSON struct {
	MaxCapacity       *int     `json:"max_capacity"`
	CriticalThreshold *float64 `json:"critical_threshold"`
}

type dwellTimeJSON struct {
	Method     string             `json:"method"`
	Parameters map[string]float64 `json:"parameters"`
}

type customsJSON struct {
	Probability   float64 `json:"probability"`
	DelayMean     float64 `json:"delay_mean"`
	DelayVariance float64 `json:"delay_variance"`
}

type costJSON struct {
	FixedFees   float64 `json:"fixed_fees"`
	CustomsFees float64 `json:"customs_fees"`
	RiskFactor  float64 `json:"risk_factor"`
}

// terminalToJSON builds a terminal's wire representation, matching
// spec.md §6's Terminal JSON shape field for field.
func terminalToJSON(t *terminal.Terminal) terminalJSON {
	cfg := t.Config()

	interfaces := make(map[string][]int)
	for iface, modes := range t.Interfaces() {
		modeList := make([]int, 0, len(modes))
		for mode := range modes {
			modeList = append(modeList, int(mode))
		}
		sort.Ints(modeList)
		interfaces[strconv.Itoa(int(iface))] = modeList
	}

	return terminalJSON{
		TerminalName:       t.Name(),
		DisplayName:        t.DisplayName(),
		Interfaces:         interfaces,
		ModeNetworkAliases: t.ModeNetworkAliases(),
		Capacity: capacityJSON{
			MaxCapacity:       cfg.Capacity.MaxCapacity,
			CriticalThreshold: cfg.Capacity.CriticalThreshold,
		},
		DwellTime: dwellTimeJSON{
			Method:     cfg.DwellTime.Method,
			Parameters: cfg.DwellTime.Parameters,
		},
		Customs: customsJSON{
			Probability:   cfg.Customs.Probability,
			DelayMean:     cfg.Customs.DelayMean,
			DelayVariance: cfg.Customs.DelayVariance,
		},
		Cost: costJSON{
			FixedFees:   cfg.Cost.FixedFees,
			CustomsFees: cfg.Cost.CustomsFees,
			RiskFactor:  cfg.Cost.RiskFactor,
		},
		ContainerCount:    t.ContainerCount(),
		AvailableCapacity: t.AvailableCapacity(),
	}
}

// terminalFromJSON reconstructs a terminal's interfaces/config from its
// wire representation. Container contents are not part of the schema
// (only derived counts are, and those are read-only), so a deserialized
// terminal always starts with empty storage, matching
// original_source/src/terminal/terminal_graph.cpp's load behavior.
func terminalFromJSON(tj terminalJSON) (*terminal.Terminal, error) {
	interfaces := make(map[terminal.TerminalInterface]map[terminal.TransportationMode]bool, len(tj.Interfaces))
	for ifaceKey, modes := range tj.Interfaces {
		iface, err := terminal.ParseTerminalInterface(ifaceKey)
		if err != nil {
			return nil, err
		}
		modeSet := make(map[terminal.TransportationMode]bool, len(modes))
		for _, m := range modes {
			mode, err := terminal.ParseTransportationMode(m)
			if err != nil {
				return nil, err
			}
			modeSet[mode] = true
		}
		interfaces[iface] = modeSet
	}

	cfg := terminal.Config{
		Capacity: terminal.CapacityConfig{
			MaxCapacity:       tj.Capacity.MaxCapacity,
			CriticalThreshold: tj.Capacity.CriticalThreshold,
		},
		DwellTime: terminal.DwellTimeConfig{
			Method:     tj.DwellTime.Method,
			Parameters: tj.DwellTime.Parameters,
		},
		Customs: terminal.CustomsConfig{
			Probability:   tj.Customs.Probability,
			DelayMean:     tj.Customs.DelayMean,
			DelayVariance: tj.Customs.DelayVariance,
		},
		Cost: terminal.CostConfig{
			FixedFees:   tj.Cost.FixedFees,
			CustomsFees: tj.Cost.CustomsFees,
			RiskFactor:  tj.Cost.RiskFactor,
		},
	}

	t := terminal.New(tj.TerminalName, tj.DisplayName, interfaces, cfg)
	for key, alias := range tj.ModeNetworkAliases {
		parts := strings.SplitN(key, ":", 2)
		if len(parts) != 2 {
			continue
		}
		mode, err := terminal.ParseTransportationMode(parts[0])
		if err != nil {
			return nil, err
		}
		t.AddAliasForModeNetwork(mode, parts[1], alias)
	}
	return t, nil
}

// Serialize implements spec.md §6's round-trippable Graph JSON schema.
func (e *Engine) Serialize() ([]byte, error) {
	e.g.mu.RLock()
	defer e.g.mu.RUnlock()

	out := graphJSON{
		Terminals:             make(map[string]terminalEntryJSON, len(e.g.terminals)),
		TerminalAliases:       make(map[string]string, len(e.g.aliasToCanonical)),
		CanonicalToAliases:    make(map[string][]string, len(e.g.canonicalToAliases)),
		CostFunctionWeights:   e.g.costFunctionWeights,
		DefaultLinkAttributes: e.g.defaultLinkAttributes,
	}

	for name, t := range e.g.terminals {
		nodeData := map[string]any{}
		if region, ok := e.g.nodeRegion[name]; ok && region != "" {
			nodeData["region"] = region
		}
		out.Terminals[name] = terminalEntryJSON{Config: terminalToJSON(t), NodeData: nodeData}
	}

	for alias, canonical := range e.g.aliasToCanonical {
		out.TerminalAliases[alias] = canonical
	}
	for canonical := range e.g.canonicalToAliases {
		out.CanonicalToAliases[canonical] = e.g.aliasesLocked(canonical)
	}

	for _, edges := range e.g.adjacency {
		for _, edge := range edges {
			out.Edges = append(out.Edges, edgeJSON{
				From: edge.From, To: edge.To, RouteID: edge.RouteID,
				Mode: int(edge.Mode), Attributes: edge.Attributes,
			})
		}
	}
	sort.Slice(out.Edges, func(i, j int) bool {
		if out.Edges[i].From != out.Edges[j].From {
			return out.Edges[i].From < out.Edges[j].From
		}
		if out.Edges[i].To != out.Edges[j].To {
			return out.Edges[i].To < out.Edges[j].To
		}
		return out.Edges[i].Mode < out.Edges[j].Mode
	})

	return json.Marshal(out)
}

// Deserialize builds a fresh Engine from spec.md §6's Graph JSON schema,
// as produced by Serialize. Used by cmd/terminalsimd's --load flag.
func Deserialize(data []byte) (*Engine, error) {
	var in graphJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return nil, apperror.New(apperror.CodeInvalidArgs, fmt.Sprintf("invalid graph JSON: %v", err))
	}

	e := New()
	e.g.mu.Lock()

	for canonical, entry := range in.Terminals {
		t, err := terminalFromJSON(entry.Config)
		if err != nil {
			e.g.mu.Unlock()
			return nil, err
		}
		e.g.terminals[canonical] = t
		e.g.registerNameLocked(canonical)
		if region, ok := entry.NodeData["region"]; ok {
			if s, ok := region.(string); ok {
				e.g.nodeRegion[canonical] = s
			}
		}
	}

	for alias, canonical := range in.TerminalAliases {
		if alias == canonical {
			continue
		}
		e.g.addAliasLocked(canonical, alias)
	}
	for canonical, aliases := range in.CanonicalToAliases {
		for _, alias := range aliases {
			if alias == canonical {
				continue
			}
			e.g.addAliasLocked(canonical, alias)
		}
	}

	if in.CostFunctionWeights != nil {
		cloned := make(map[string]map[string]float64, len(in.CostFunctionWeights))
		for k, v := range in.CostFunctionWeights {
			cloned[k] = cloneFloatMap(v)
		}
		e.g.costFunctionWeights = cloned
	}

	for _, edge := range in.Edges {
		mode, err := terminal.ParseTransportationMode(edge.Mode)
		if err != nil {
			e.g.mu.Unlock()
			return nil, err
		}
		if _, ok := e.g.aliasToCanonical[edge.From]; !ok {
			e.g.mu.Unlock()
			return nil, apperror.New(apperror.CodeInvalidArgs, fmt.Sprintf("edge references unknown terminal %q", edge.From))
		}
		if _, ok := e.g.aliasToCanonical[edge.To]; !ok {
			e.g.mu.Unlock()
			return nil, apperror.New(apperror.CodeInvalidArgs, fmt.Sprintf("edge references unknown terminal %q", edge.To))
		}
		e.g.addEdgeLocked(edge.From, edge.To, edge.RouteID, mode, edge.Attributes)
	}

	// Restored after the edges, so addEdgeLocked does not merge defaults
	// into edges that were serialized without them.
	if in.DefaultLinkAttributes != nil {
		e.g.defaultLinkAttributes = cloneFloatMap(in.DefaultLinkAttributes)
	}

	e.g.mu.Unlock()
	return e, nil
}
