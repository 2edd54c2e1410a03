// Package dispatcher implements spec.md §4.3's command registry and
// envelope-in/envelope-out contract over the terminal-graph engine.
// Grounded on original_source/src/server/command_processor.{h,cpp}'s
// registry-of-handlers pattern, generalized to Go's map-of-closures idiom.
package dispatcher

import (
	"fmt"

	"terminalsim/internal/engine"
	"terminalsim/internal/terminal"
	"terminalsim/pkg/apperror"
)

// paramString extracts a required string parameter.
func paramString(params map[string]any, key string) (string, error) {
	v, ok := params[key]
	if !ok {
		return "", apperror.NewWithField(apperror.CodeInvalidArgs, fmt.Sprintf("missing required parameter %q", key), key)
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", apperror.NewWithField(apperror.CodeInvalidArgs, fmt.Sprintf("parameter %q must be a non-empty string", key), key)
	}
	return s, nil
}

// optString extracts an optional string parameter, returning fallback when
// absent.
func optString(params map[string]any, key, fallback string) string {
	v, ok := params[key]
	if !ok {
		return fallback
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fallback
}

// optFloat extracts an optional numeric parameter.
func optFloat(params map[string]any, key string, fallback float64) float64 {
	v, ok := params[key]
	if !ok {
		return fallback
	}
	switch t := v.(type) {
	case float64:
		return t
	case int:
		return float64(t)
	}
	return fallback
}

// optInt extracts an optional integer parameter.
func optInt(params map[string]any, key string, fallback int) int {
	v, ok := params[key]
	if !ok {
		return fallback
	}
	switch t := v.(type) {
	case float64:
		return int(t)
	case int:
		return t
	}
	return fallback
}

// optBool extracts an optional boolean parameter.
func optBool(params map[string]any, key string, fallback bool) bool {
	v, ok := params[key]
	if !ok {
		return fallback
	}
	if b, ok := v.(bool); ok {
		return b
	}
	return fallback
}

// paramMode extracts a mode parameter, accepting either an integer or a
// case-insensitive mode name (spec.md §4.3 parameter normalization rule).
// A missing parameter yields fallback when hasFallback is set and an
// INVALID_ARGS error otherwise.
func paramMode(params map[string]any, key string, fallback engine.TransportationMode, hasFallback bool) (engine.TransportationMode, error) {
	v, ok := params[key]
	if !ok {
		if hasFallback {
			return fallback, nil
		}
		return 0, apperror.NewWithField(apperror.CodeInvalidArgs, fmt.Sprintf("missing required parameter %q", key), key)
	}
	return engine.ParseTransportationMode(v)
}

// paramStringList normalizes a parameter that may be either a single string
// or a list of strings (spec.md §4.1 add_terminal's terminal_names shape).
func paramStringList(params map[string]any, key string) ([]string, error) {
	v, ok := params[key]
	if !ok {
		return nil, apperror.NewWithField(apperror.CodeInvalidArgs, fmt.Sprintf("missing required parameter %q", key), key)
	}
	switch t := v.(type) {
	case string:
		if t == "" {
			return nil, apperror.NewWithField(apperror.CodeInvalidArgs, fmt.Sprintf("parameter %q must be non-empty", key), key)
		}
		return []string{t}, nil
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		if len(out) == 0 {
			return nil, apperror.NewWithField(apperror.CodeInvalidArgs, fmt.Sprintf("parameter %q must contain at least one name", key), key)
		}
		return out, nil
	case []string:
		if len(t) == 0 {
			return nil, apperror.NewWithField(apperror.CodeInvalidArgs, fmt.Sprintf("parameter %q must contain at least one name", key), key)
		}
		return t, nil
	default:
		return nil, apperror.NewWithField(apperror.CodeInvalidArgs, fmt.Sprintf("parameter %q must be a string or list of strings", key), key)
	}
}

// paramFloatMap normalizes an attributes-style map of numeric values.
func paramFloatMap(params map[string]any, key string) map[string]float64 {
	v, ok := params[key]
	if !ok {
		return nil
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	out := make(map[string]float64, len(m))
	for k, raw := range m {
		switch t := raw.(type) {
		case float64:
			out[k] = t
		case int:
			out[k] = float64(t)
		}
	}
	return out
}

// paramWeightTable normalizes cost_function_weights-style nested maps.
func paramWeightTable(params map[string]any, key string) map[string]map[string]float64 {
	v, ok := params[key]
	if !ok {
		return nil
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	out := make(map[string]map[string]float64, len(m))
	for k, raw := range m {
		if inner, ok := raw.(map[string]any); ok {
			weights := make(map[string]float64, len(inner))
			for ik, iv := range inner {
				switch t := iv.(type) {
				case float64:
					weights[ik] = t
				case int:
					weights[ik] = float64(t)
				}
			}
			out[k] = weights
		}
	}
	return out
}

// paramStringSet normalizes an optional list-of-strings parameter into a
// set, returning nil when the key is absent so callers can distinguish
// "not provided" from "empty".
func paramStringSet(params map[string]any, key string) map[string]bool {
	v, ok := params[key]
	if !ok {
		return nil
	}
	arr, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make(map[string]bool, len(arr))
	for _, item := range arr {
		if s, ok := item.(string); ok {
			out[s] = true
		}
	}
	return out
}

// paramTerminalInterfaces normalizes add_terminal's terminal_interfaces
// parameter: {interface_key: [mode, ...]}.
func paramTerminalInterfaces(params map[string]any, key string) (map[engine.TerminalInterface]map[engine.TransportationMode]bool, error) {
	v, ok := params[key]
	if !ok {
		return nil, apperror.NewWithField(apperror.CodeInvalidArgs, fmt.Sprintf("missing required parameter %q", key), key)
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, apperror.NewWithField(apperror.CodeInvalidArgs, fmt.Sprintf("parameter %q must be an object", key), key)
	}
	out := make(map[engine.TerminalInterface]map[engine.TransportationMode]bool, len(m))
	for ifaceKey, raw := range m {
		iface, err := engine.ParseTerminalInterface(ifaceKey)
		if err != nil {
			return nil, apperror.New(apperror.CodeInvalidArgs, err.Error())
		}
		modesRaw, ok := raw.([]any)
		if !ok {
			continue
		}
		modes := make(map[engine.TransportationMode]bool, len(modesRaw))
		for _, mv := range modesRaw {
			mode, err := engine.ParseTransportationMode(mv)
			if err != nil {
				continue
			}
			modes[mode] = true
		}
		if len(modes) > 0 {
			out[iface] = modes
		}
	}
	if len(out) == 0 {
		return nil, apperror.NewWithField(apperror.CodeInvalidArgs, fmt.Sprintf("parameter %q must define at least one interface with modes", key), key)
	}
	return out, nil
}

// paramTerminalConfig normalizes add_terminal's custom_config parameter
// into a terminal.Config, tolerating missing blocks (zero-valued).
func paramTerminalConfig(params map[string]any, key string) terminal.Config {
	v, ok := params[key]
	if !ok {
		return terminal.Config{}
	}
	m, ok := v.(map[string]any)
	if !ok {
		return terminal.Config{}
	}

	var cfg terminal.Config
	if capRaw, ok := m["capacity"].(map[string]any); ok {
		if mc, ok := capRaw["max_capacity"]; ok {
			if f, ok := asFloat(mc); ok {
				n := int(f)
				cfg.Capacity.MaxCapacity = &n
			}
		}
		if ct, ok := capRaw["critical_threshold"]; ok {
			if f, ok := asFloat(ct); ok {
				cfg.Capacity.CriticalThreshold = &f
			}
		}
	}
	if dwellRaw, ok := m["dwell_time"].(map[string]any); ok {
		if method, ok := dwellRaw["method"].(string); ok {
			cfg.DwellTime.Method = method
		}
		if paramsRaw, ok := dwellRaw["parameters"].(map[string]any); ok {
			cfg.DwellTime.Parameters = make(map[string]float64, len(paramsRaw))
			for k, v := range paramsRaw {
				if f, ok := asFloat(v); ok {
					cfg.DwellTime.Parameters[k] = f
				}
			}
		}
	}
	if customsRaw, ok := m["customs"].(map[string]any); ok {
		cfg.Customs.Probability = optFloat(customsRaw, "probability", 0)
		cfg.Customs.DelayMean = optFloat(customsRaw, "delay_mean", 0)
		cfg.Customs.DelayVariance = optFloat(customsRaw, "delay_variance", 0)
	}
	if costRaw, ok := m["cost"].(map[string]any); ok {
		cfg.Cost.FixedFees = optFloat(costRaw, "fixed_fees", 0)
		cfg.Cost.CustomsFees = optFloat(costRaw, "customs_fees", 0)
		cfg.Cost.RiskFactor = optFloat(costRaw, "risk_factor", 0)
	}
	return cfg
}

func asFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	}
	return 0, false
}

// paramContainer normalizes add_container's container parameter, accepting
// either a structured object or a JSON string (spec.md §4.3).
func paramContainer(params map[string]any, key string) (terminal.Container, error) {
	v, ok := params[key]
	if !ok {
		return nil, apperror.NewWithField(apperror.CodeInvalidArgs, fmt.Sprintf("missing required parameter %q", key), key)
	}
	switch t := v.(type) {
	case map[string]any:
		return terminal.RecordFromJSON(t), nil
	case string:
		obj, err := decodeJSONObject(t)
		if err != nil {
			return nil, apperror.New(apperror.CodeInvalidArgs, fmt.Sprintf("invalid container JSON: %v", err))
		}
		return terminal.RecordFromJSON(obj), nil
	default:
		return nil, apperror.NewWithField(apperror.CodeInvalidArgs, fmt.Sprintf("parameter %q must be a JSON string or object", key), key)
	}
}

// paramContainerList normalizes add_containers' containers parameter: a
// list whose entries are each either a structured object or a JSON string.
func paramContainerList(params map[string]any, key string) ([]terminal.Container, error) {
	v, ok := params[key]
	if !ok {
		return nil, apperror.NewWithField(apperror.CodeInvalidArgs, fmt.Sprintf("missing required parameter %q", key), key)
	}
	arr, ok := v.([]any)
	if !ok {
		return nil, apperror.NewWithField(apperror.CodeInvalidArgs, fmt.Sprintf("parameter %q must be a list", key), key)
	}
	out := make([]terminal.Container, 0, len(arr))
	for _, item := range arr {
		switch t := item.(type) {
		case map[string]any:
			out = append(out, terminal.RecordFromJSON(t))
		case string:
			obj, err := decodeJSONObject(t)
			if err != nil {
				return nil, apperror.New(apperror.CodeInvalidArgs, fmt.Sprintf("invalid container JSON: %v", err))
			}
			out = append(out, terminal.RecordFromJSON(obj))
		}
	}
	return out, nil
}
