package terminal

import (
	"fmt"
	"strconv"
	"strings"
)

// TransportationMode is the tagged variant over concrete transport modes
// plus the query-only Any filter (spec.md §3). Integer values follow
// spec.md §3's ordering so that serialized graphs and dispatcher params
// round-trip; internal/engine re-exports this type as engine.TransportationMode
// since a Terminal's interfaces are keyed by it.
type TransportationMode int

const (
	ModeTruck TransportationMode = iota
	ModeTrain
	ModeShip
	ModeAny
)

func (m TransportationMode) String() string {
	switch m {
	case ModeTruck:
		return "truck"
	case ModeTrain:
		return "train"
	case ModeShip:
		return "ship"
	case ModeAny:
		return "any"
	default:
		return "unknown"
	}
}

// ParseTransportationMode accepts either an integer literal (as produced by
// JSON round-trips) or a case-insensitive mode name, matching the
// dispatcher's parameter-normalization rule (spec.md §4.3).
func ParseTransportationMode(v any) (TransportationMode, error) {
	switch t := v.(type) {
	case TransportationMode:
		return t, nil
	case int:
		return intToMode(t)
	case int64:
		return intToMode(int(t))
	case float64:
		return intToMode(int(t))
	case string:
		if n, err := strconv.Atoi(t); err == nil {
			return intToMode(n)
		}
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "truck":
			return ModeTruck, nil
		case "train":
			return ModeTrain, nil
		case "ship":
			return ModeShip, nil
		case "any":
			return ModeAny, nil
		}
		return 0, fmt.Errorf("unknown transportation mode: %q", t)
	default:
		return 0, fmt.Errorf("unsupported transportation mode value: %v", v)
	}
}

func intToMode(n int) (TransportationMode, error) {
	switch TransportationMode(n) {
	case ModeTruck, ModeTrain, ModeShip, ModeAny:
		return TransportationMode(n), nil
	default:
		return 0, fmt.Errorf("unknown transportation mode: %d", n)
	}
}

// TerminalInterface is the tagged variant over the physical side of a
// terminal. Integer values follow spec.md §3's ordering.
type TerminalInterface int

const (
	InterfaceLandSide TerminalInterface = iota
	InterfaceSeaSide
	InterfaceRailSide
)

func (i TerminalInterface) String() string {
	switch i {
	case InterfaceLandSide:
		return "land_side"
	case InterfaceSeaSide:
		return "sea_side"
	case InterfaceRailSide:
		return "rail_side"
	default:
		return "unknown"
	}
}

// ParseTerminalInterface mirrors ParseTransportationMode's normalization
// rule for interface-keyed parameters.
func ParseTerminalInterface(v any) (TerminalInterface, error) {
	switch t := v.(type) {
	case TerminalInterface:
		return t, nil
	case int:
		return intToInterface(t)
	case int64:
		return intToInterface(int(t))
	case float64:
		return intToInterface(int(t))
	case string:
		if n, err := strconv.Atoi(t); err == nil {
			return intToInterface(n)
		}
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "land_side", "landside", "land":
			return InterfaceLandSide, nil
		case "sea_side", "seaside", "sea":
			return InterfaceSeaSide, nil
		case "rail_side", "railside", "rail":
			return InterfaceRailSide, nil
		}
		return 0, fmt.Errorf("unknown terminal interface: %q", t)
	default:
		return 0, fmt.Errorf("unsupported terminal interface value: %v", v)
	}
}

func intToInterface(n int) (TerminalInterface, error) {
	switch TerminalInterface(n) {
	case InterfaceLandSide, InterfaceSeaSide, InterfaceRailSide:
		return TerminalInterface(n), nil
	default:
		return 0, fmt.Errorf("unknown terminal interface: %d", n)
	}
}

// CompatibleMode is the fixed mode/interface compatibility table from
// spec.md §3: Truck<->LandSide, Train<->RailSide, Ship<->SeaSide.
func CompatibleMode(i TerminalInterface) TransportationMode {
	switch i {
	case InterfaceLandSide:
		return ModeTruck
	case InterfaceRailSide:
		return ModeTrain
	case InterfaceSeaSide:
		return ModeShip
	default:
		return ModeAny
	}
}
