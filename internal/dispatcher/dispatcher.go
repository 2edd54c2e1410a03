package dispatcher

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"terminalsim/internal/engine"
	"terminalsim/pkg/apperror"
	"terminalsim/pkg/logger"
	"terminalsim/pkg/telemetry"
)

// handler is one registered command's implementation. It receives the
// dispatcher (for engine access under the dispatcher's lock) and the
// already-normalized parameter map, and returns the raw result value that
// EnvelopeOut.Result will carry.
type handler func(d *Dispatcher, params map[string]any) (any, error)

// Dispatcher implements spec.md §4.3: a single command registry built once
// at construction, generalizing original_source/src/server/
// command_processor.cpp's QMap<QString, CommandHandler> into a Go
// map[string]handler. Every dispatch acquires the dispatcher's lock for
// the duration of the call, matching the original's QMutexLocker in
// processCommand — command execution is always serialized relative to a
// deserialize_graph swap of the underlying engine.
type Dispatcher struct {
	// execMu is spec.md §5's "dispatcher lock": it serializes full
	// command processing (handler invocation plus cache invalidation) so
	// the server's observable mutations are totally ordered, matching
	// original_source/src/server/command_processor.cpp:283's
	// QMutexLocker spanning the whole of processCommand.
	execMu sync.Mutex

	// mu guards only the eng pointer itself, so a deserialize_graph swap
	// (replaceEngine) and engine()'s read inside an in-flight handler
	// never race, without requiring re-entrant locking against execMu.
	mu       sync.RWMutex
	eng      *engine.Engine
	serverID string
	handlers map[string]handler
	cache    PathCache
}

// New builds a dispatcher wired to eng, registering the full command table
// once.
func New(eng *engine.Engine, serverID string) *Dispatcher {
	d := &Dispatcher{eng: eng, serverID: serverID}
	d.handlers = registry()
	return d
}

// engine returns the currently active engine, honoring any deserialize_graph
// swap that happened since New.
func (d *Dispatcher) engine() *engine.Engine {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.eng
}

func (d *Dispatcher) replaceEngine(e *engine.Engine) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.eng = e
}

// Dispatch implements spec.md §4.3's dispatch(command, params) -> value.
// Unknown commands and any handler failure return a *apperror.Error drawn
// from the §7 taxonomy; the dispatcher itself never panics on a
// command-level error.
func (d *Dispatcher) Dispatch(ctx context.Context, command string, params map[string]any) (result any, err error) {
	ctx, span := telemetry.StartSpan(ctx, "terminalsim.dispatch", telemetry.WithAttributes(telemetry.CommandAttributes(command, false)...))
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			err = apperror.New(apperror.CodeInternal, fmt.Sprintf("command %q panicked: %v", command, r))
		}
		if err != nil {
			telemetry.SetError(ctx, err)
			telemetry.SetAttributes(ctx, telemetry.CommandAttributes(command, false)...)
		} else {
			telemetry.SetAttributes(ctx, telemetry.CommandAttributes(command, true)...)
		}
	}()

	h, ok := d.handlers[command]
	if !ok {
		return nil, apperror.New(apperror.CodeInvalidArgs, fmt.Sprintf("unknown command: %s", command))
	}
	if params == nil {
		params = map[string]any{}
	}

	d.execMu.Lock()
	defer d.execMu.Unlock()

	result, err = h(d, params)
	if err == nil && graphMutatingCommands[command] {
		if cache := d.pathCache(); cache != nil {
			cache.InvalidateAll(ctx)
		}
	}
	return result, err
}

// EnvelopeIn is spec.md §4.3's dispatch_envelope input shape.
type EnvelopeIn struct {
	Command   string         `json:"command"`
	Params    map[string]any `json:"params"`
	RequestID string         `json:"request_id"`
}

// EnvelopeOut is spec.md §4.3's dispatch_envelope output shape.
type EnvelopeOut struct {
	Success   bool   `json:"success"`
	Result    any    `json:"result,omitempty"`
	Error     string `json:"error,omitempty"`
	RequestID string `json:"request_id"`
	Timestamp string `json:"timestamp"`
	ServerID  string `json:"server_id"`
	MessageID string `json:"message_id,omitempty"`
}

// DispatchEnvelope implements spec.md §4.3's dispatch_envelope(json) -> json:
// request_id is echoed when present, otherwise generated; timestamp is
// ISO-8601 UTC; every thrown condition becomes {success:false, error:<string>}.
func (d *Dispatcher) DispatchEnvelope(ctx context.Context, raw []byte) []byte {
	var in EnvelopeIn
	if err := json.Unmarshal(raw, &in); err != nil {
		return mustMarshal(EnvelopeOut{
			Success:   false,
			Error:     fmt.Sprintf("invalid envelope: %v", err),
			RequestID: uuid.NewString(),
			Timestamp: nowISO(),
			ServerID:  d.serverID,
		})
	}

	requestID := in.RequestID
	if requestID == "" {
		requestID = uuid.NewString()
	}

	result, err := d.Dispatch(ctx, in.Command, in.Params)
	out := EnvelopeOut{
		RequestID: requestID,
		Timestamp: nowISO(),
		ServerID:  d.serverID,
		MessageID: uuid.NewString(),
	}
	if err != nil {
		out.Success = false
		out.Error = err.Error()
		logger.Log.Warn("command failed", "command", in.Command, "request_id", requestID, "error", err)
	} else {
		out.Success = true
		out.Result = result
	}
	return mustMarshal(out)
}

func nowISO() string {
	return time.Now().UTC().Format(time.RFC3339)
}

func mustMarshal(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		return []byte(`{"success":false,"error":"failed to encode response"}`)
	}
	return b
}

func decodeJSONObject(s string) (map[string]any, error) {
	var out map[string]any
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil, err
	}
	return out, nil
}
