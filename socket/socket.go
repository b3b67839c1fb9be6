// Package socket implements the per-file-descriptor socket object:
// queued outgoing packets, an incoming ready-queue, and the waiter that
// bridges the interrupt-driven receive path to a cooperatively-blocked
// reader (SPEC_FULL.md §2 "Socket object", §3 "Socket").
package socket

import (
	"sync"

	"github.com/relaykernel/netstack/buffer"
	"github.com/relaykernel/netstack/config"
	"github.com/relaykernel/netstack/waiter"
)

// Domain, Type and Protocol mirror the BSD socket() arguments the
// user-facing syscall shim (out of scope, SPEC_FULL.md §1) would pass
// through.
type Domain uint8
type Type uint8
type Protocol uint8

const (
	DomainInet Domain = iota
)

const (
	TypeStream Type = iota
	TypeDgram
	TypeRaw
)

const (
	ProtocolICMP Protocol = 1
	ProtocolTCP  Protocol = 6
	ProtocolUDP  Protocol = 17
)

// InvalidID is the all-ones sentinel an invalidated socket carries, per the
// original kernel's socket::invalidate() (SPEC_FULL.md "Socket
// invalidate()/is_valid()").
const InvalidID = ^uint32(0)

// defaultReadyQueueDepth is the ready-queue bound when a socket is created
// without an explicit depth (the original kernel's circular_buffer<...,32>).
const defaultReadyQueueDepth = 32

// Socket is per-file-descriptor state. Its connection back-pointer is an
// opaque handle: the socket doesn't know whether it holds a TCP or UDP
// connection, exactly as the original kernel's socket::connection_data is an
// untyped void* cast back by the transport layer (SPEC_FULL.md §9
// "back-pointers between sockets and connections"). Use SetConnection and
// the package-level Connection[T] helper instead of touching connData
// directly.
type Socket struct {
	ID       uint32
	Domain   Domain
	Type     Type
	Protocol Protocol

	// Listen is true once the socket is ready to receive queued packets.
	// Invariant: while false, ready stays empty (SPEC_FULL.md §3).
	Listen bool

	mu    sync.Mutex
	ready []*buffer.Packet
	depth int

	// Waiter is notified whenever a packet is pushed onto ready.
	Waiter *waiter.Waiter

	connData any

	fdMu    sync.Mutex
	nextFD  uint64
	pending map[uint64]*buffer.Packet
}

// New creates a socket bound to the given id, with its ready-queue waiter
// wired through irq so the receive path can wake it safely from interrupt
// context (see waiter.Waiter.NotifyOneIRQ). Its ready-queue depth is the
// built-in default (SPEC_FULL.md §6, defaultReadyQueueDepth).
func New(id uint32, domain Domain, typ Type, proto Protocol, irq *waiter.SoftIRQ) *Socket {
	return NewFromConfig(id, domain, typ, proto, irq, config.SocketConfig{ReadyQueueDepth: defaultReadyQueueDepth})
}

// NewFromConfig creates a socket whose ready-queue depth comes from cfg,
// so a loaded config.Config can retune queue depth without recompiling
// (SPEC_FULL.md "AMBIENT STACK / Configuration").
func NewFromConfig(id uint32, domain Domain, typ Type, proto Protocol, irq *waiter.SoftIRQ, cfg config.SocketConfig) *Socket {
	depth := cfg.ReadyQueueDepth
	if depth <= 0 {
		depth = defaultReadyQueueDepth
	}
	return &Socket{
		ID:       id,
		Domain:   domain,
		Type:     typ,
		Protocol: proto,
		depth:    depth,
		Waiter:   waiter.New(irq),
		pending:  make(map[uint64]*buffer.Packet),
	}
}

// Invalidate marks the socket invalid, per the original kernel's
// socket::invalidate().
func (s *Socket) Invalidate() { s.ID = InvalidID }

// Valid reports whether the socket has not been invalidated.
func (s *Socket) Valid() bool { return s.ID != InvalidID }

// SetConnection attaches the transport layer's connection state. Called
// once, by connect()/client_bind(), before the socket is usable.
func (s *Socket) SetConnection(c any) { s.connData = c }

// Connection retrieves the transport-typed connection attached to s. It
// mirrors the original kernel's socket::get_connection_data<T>(), a cast
// back to the concrete connection type only the owning transport layer
// knows.
func Connection[T any](s *Socket) (T, bool) {
	v, ok := s.connData.(T)
	return v, ok
}

// Enqueue deep-copies pkt into the ready-queue and notifies the waiter; a
// packet arriving while the queue is at depth is dropped. Called from the
// receive path, which may be running in interrupt context — pass
// irqContext=true there so the waiter is woken through NotifyOneIRQ.
func (s *Socket) Enqueue(pkt *buffer.Packet, irqContext bool) {
	cp := pkt.Clone()

	s.mu.Lock()
	if len(s.ready) < s.depth {
		s.ready = append(s.ready, cp)
	}
	s.mu.Unlock()

	if irqContext {
		s.Waiter.NotifyOneIRQ()
	} else {
		s.Waiter.NotifyOne()
	}
}

// TryPop removes and returns the oldest ready packet, if any.
func (s *Socket) TryPop() (*buffer.Packet, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.ready) == 0 {
		return nil, false
	}
	pkt := s.ready[0]
	s.ready = s.ready[1:]
	return pkt, true
}

// Empty reports whether the ready-queue currently has no packets.
func (s *Socket) Empty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ready) == 0
}

// RegisterPacket records a prepared-but-not-yet-finalized outgoing packet
// under a fresh per-socket fd, so a caller (the user-facing socket-call
// shim) can finalize it later by fd instead of holding a live pointer
// across a syscall boundary (SPEC_FULL.md "per-packet file-descriptor
// registration").
func (s *Socket) RegisterPacket(pkt *buffer.Packet) uint64 {
	s.fdMu.Lock()
	defer s.fdMu.Unlock()
	fd := s.nextFD
	s.nextFD++
	s.pending[fd] = pkt
	return fd
}

// Packet returns the packet registered under fd.
func (s *Socket) Packet(fd uint64) (*buffer.Packet, bool) {
	s.fdMu.Lock()
	defer s.fdMu.Unlock()
	p, ok := s.pending[fd]
	return p, ok
}

// ReleasePacket forgets the packet registered under fd.
func (s *Socket) ReleasePacket(fd uint64) {
	s.fdMu.Lock()
	defer s.fdMu.Unlock()
	delete(s.pending, fd)
}
