// Package singleton implements the at-most-one-active-instance guarantee
// spec.md §2 requires: process startup must probe a well-known local
// rendezvous name and exit non-zero if another instance already holds it.
//
// original_source/src/main.cpp does this with QLocalSocket/QLocalServer,
// a named-pipe abstraction on Windows and a Unix-domain socket everywhere
// else. Go has no equivalent cross-platform wrapper in the standard
// library, but net.Listen("unix", path) is the direct idiomatic
// translation on the platforms this service actually targets.
package singleton

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"
)

// Name is the well-known rendezvous name spec.md §6 fixes verbatim.
const Name = "TerminalSimServerInstance"

// Handle is the claimed rendezvous socket. Holding it open for the
// lifetime of the process is what makes the next probe see the instance
// as running; Release tears it down.
type Handle struct {
	listener net.Listener
	path     string
}

var (
	mu     sync.Mutex
	active *Handle
)

// socketPath derives a well-known Unix-domain socket path from name,
// scoped under the OS temp directory the same way QLocalServer scopes
// its named pipe under a per-user runtime location.
func socketPath(name string) string {
	return filepath.Join(os.TempDir(), name+".sock")
}

// Acquire probes the rendezvous name and, if no other instance is
// listening, claims it. It guards construction with a package-level
// lock (spec.md §5's instance-singleton lock) so a single process never
// races itself into creating two listeners.
func Acquire(name string) (*Handle, error) {
	mu.Lock()
	defer mu.Unlock()

	if active != nil {
		return nil, fmt.Errorf("singleton: already acquired in this process")
	}

	path := socketPath(name)

	if conn, err := net.Dial("unix", path); err == nil {
		conn.Close()
		return nil, fmt.Errorf("another instance of %s is already running", name)
	}

	// A prior crash can leave a stale socket file with nothing listening
	// on it; Dial above failed, so it is safe to clear it before binding.
	_ = os.Remove(path)

	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("singleton: failed to create local server: %w", err)
	}
	// World-accessible, matching QLocalServer::WorldAccessOption.
	_ = os.Chmod(path, 0o777)

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()

	h := &Handle{listener: ln, path: path}
	active = h
	return h, nil
}

// Release closes the rendezvous listener and removes the socket file,
// freeing the name for the next process.
func (h *Handle) Release() error {
	mu.Lock()
	defer mu.Unlock()

	if h == nil || h.listener == nil {
		return nil
	}
	err := h.listener.Close()
	_ = os.Remove(h.path)
	if active == h {
		active = nil
	}
	return err
}
