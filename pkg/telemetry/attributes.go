package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Standard attribute keys shared across spans.
const (
	// Dispatcher / command
	AttrCommand   = "command.name"
	AttrCommandID = "command.id"
	AttrSuccess   = "command.success"
	AttrErrorCode = "command.error_code"

	// Engine / terminal graph
	AttrTerminalName   = "terminal.canonical_name"
	AttrTerminalRegion = "terminal.region"
	AttrTerminalCount  = "graph.terminal_count"
	AttrEdgeCount      = "graph.edge_count"
	AttrMode           = "route.mode"

	// Path-finding
	AttrPathCount     = "path.count"
	AttrPathTotalCost = "path.total_cost"
	AttrPathLength    = "path.length"
	AttrPathSignature = "path.signature"

	// Bus adapter
	AttrBusConnected = "bus.connected"
	AttrBusQueue     = "bus.queue"
)

// CommandAttributes returns the attributes recorded around a dispatched
// command.
func CommandAttributes(command string, success bool) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrCommand, command),
		attribute.Bool(AttrSuccess, success),
	}
}

// GraphAttributes returns the attributes describing the terminal graph's
// current size.
func GraphAttributes(terminals, edges int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Int(AttrTerminalCount, terminals),
		attribute.Int(AttrEdgeCount, edges),
	}
}

// PathAttributes returns the attributes describing a path-finding result.
func PathAttributes(count int, totalCost float64) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Int(AttrPathCount, count),
		attribute.Float64(AttrPathTotalCost, totalCost),
	}
}

// BusAttributes returns the attributes describing the bus adapter's
// connection state.
func BusAttributes(queue string, connected bool) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrBusQueue, queue),
		attribute.Bool(AttrBusConnected, connected),
	}
}
