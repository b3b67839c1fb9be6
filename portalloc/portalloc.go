// Package portalloc implements the monotonic local-port counter shared by
// the TCP and UDP layers (SPEC_FULL.md §4.4, §4.5.4: "initial local port =
// 1023, first handed out = 1024").
package portalloc

import "sync/atomic"

// InitialPort is the counter's seed value; the first call to Next returns
// InitialPort+1.
const InitialPort = 1023

// Allocator hands out strictly increasing local port numbers.
type Allocator struct {
	seed    uint16
	counter atomic.Uint64
}

// New returns an Allocator seeded so the first Next() call returns
// InitialPort+1, matching the original kernel's init_layer().
func New() *Allocator {
	return NewFrom(InitialPort)
}

// NewFrom returns an Allocator seeded at initial, so the first Next() call
// returns initial+1. Used to apply config.SocketConfig.InitialLocalPort
// instead of the built-in InitialPort.
func NewFrom(initial uint16) *Allocator {
	a := &Allocator{seed: initial}
	a.counter.Store(uint64(initial))
	return a
}

// Next returns the next local port, strictly greater than every port
// returned before it in this Allocator's lifetime.
func (a *Allocator) Next() uint16 {
	return uint16(a.counter.Add(1))
}

// Reset reseeds the counter back to the value it was constructed with,
// used by Stack.Reset for test isolation between scenarios (SPEC_FULL.md
// "init_layer() per-transport local-port reset").
func (a *Allocator) Reset() {
	a.counter.Store(uint64(a.seed))
}
