// Package inmemory is a fake busadapter.Adapter backed by an in-process
// channel, so tests of adapter consumers need no live broker — in the
// same spirit as the
// teacher's pgxmock-backed database tests
// (services/simulation-svc/internal/testutil/mocks.go).
package inmemory

import (
	"context"
	"sync"

	"terminalsim/internal/busadapter"
)

// Adapter is an in-memory busadapter.Adapter. Publishing a response
// appends it to Sent (inspectable by tests); Deliver lets a test simulate
// an inbound command envelope without a broker.
type Adapter struct {
	mu        sync.Mutex
	connected bool

	onCommand    func([]byte)
	onConnection func(bool)

	Sent [][]byte

	// ConnectErr, when non-nil, is returned by Connect (simulating a
	// broker that refuses connections).
	ConnectErr error
	// SendErr, when non-nil, is returned by SendResponse.
	SendErr error
}

// New constructs a disconnected in-memory adapter.
func New() *Adapter {
	return &Adapter{}
}

func (a *Adapter) Connect(_ context.Context, _ string, _ int, _, _ string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.ConnectErr != nil {
		return a.ConnectErr
	}
	a.connected = true
	if a.onConnection != nil {
		a.onConnection(true)
	}
	return nil
}

func (a *Adapter) Disconnect() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.connected {
		return nil
	}
	a.connected = false
	if a.onConnection != nil {
		a.onConnection(false)
	}
	return nil
}

func (a *Adapter) IsConnected() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.connected
}

func (a *Adapter) SendResponse(_ context.Context, message []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.SendErr != nil {
		return a.SendErr
	}
	a.Sent = append(a.Sent, message)
	return nil
}

func (a *Adapter) OnCommand(fn func([]byte)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.onCommand = fn
}

func (a *Adapter) OnConnectionChange(fn func(bool)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.onConnection = fn
}

// Deliver simulates the worker thread handing a consumed command envelope
// to the registered OnCommand callback.
func (a *Adapter) Deliver(envelope []byte) {
	a.mu.Lock()
	fn := a.onCommand
	a.mu.Unlock()
	if fn != nil {
		fn(envelope)
	}
}

var _ busadapter.Adapter = (*Adapter)(nil)
