// Package busadapter defines the bus-client capability contract
// SPEC_FULL.md §4.4 names as an external collaborator: connect/disconnect,
// connection probing, response publishing, and the two callbacks a
// consuming worker drives the dispatcher with. The core never depends on
// any bus-specific feature beyond this interface — concrete
// implementations live in internal/busadapter/amqp (a real broker) and
// internal/busadapter/inmemory (tests).
package busadapter

import "context"

// Adapter is the bus adapter capability interface (spec.md §4.4), adapted
// from original_source/src/server/rabbit_mq_handler.h's
// connect/disconnect/isConnected/sendResponse contract and its
// commandReceived/connectionChanged signals, expressed as Go callbacks.
type Adapter interface {
	// Connect establishes the broker connection and topology (spec.md §6):
	// one durable topic exchange, one durable command queue bound with the
	// command routing key, one durable response queue bound with the
	// response routing key. Bounded reconnection is the adapter's own
	// responsibility (<=5 attempts, linear 5s backoff per spec.md §4.4).
	Connect(ctx context.Context, host string, port int, user, password string) error

	// Disconnect tears down the connection. Idempotent.
	Disconnect() error

	// IsConnected reports the adapter's current connection state.
	IsConnected() bool

	// SendResponse publishes a JSON response envelope to the response
	// queue, persistent delivery, with up to 3 retries at 1s backoff.
	SendResponse(ctx context.Context, message []byte) error

	// OnCommand registers the callback invoked for every consumed command
	// envelope (spec.md §4.4 "command_received").
	OnCommand(fn func([]byte))

	// OnConnectionChange registers the callback invoked on every connection
	// state transition (spec.md §4.4 "connection_changed").
	OnConnectionChange(fn func(bool))
}

// Topology is the normative bus topology from spec.md §6.
type Topology struct {
	Exchange           string
	CommandQueue       string
	CommandRoutingKey  string
	ResponseQueue      string
	ResponseRoutingKey string
}

// DefaultTopology is the topology spec.md §6 names verbatim.
var DefaultTopology = Topology{
	Exchange:           "CargoNetSim.Exchange",
	CommandQueue:       "CargoNetSim.CommandQueue.TerminalSim",
	CommandRoutingKey:  "CargoNetSim.Command.TerminalSim",
	ResponseQueue:      "CargoNetSim.ResponseQueue.TerminalSim",
	ResponseRoutingKey: "CargoNetSim.Response.TerminalSim",
}

// RetryConfig bounds the reconnection/publish retry behavior spec.md §4.4
// and §6 specify: at most 5 connect attempts with linear 5s backoff, at
// most 3 publish retries with 1s backoff.
type RetryConfig struct {
	ConnectMaxAttempts int
	ConnectBackoffSecs int
	PublishMaxAttempts int
	PublishBackoffSecs int
}

// DefaultRetryConfig mirrors original_source/rabbit_mq_handler.cpp's
// RECONNECT_DELAY_SECONDS=5 and its 1-second publish-retry sleeps.
var DefaultRetryConfig = RetryConfig{
	ConnectMaxAttempts: 5,
	ConnectBackoffSecs: 5,
	PublishMaxAttempts: 3,
	PublishBackoffSecs: 1,
}
