package tcp

import (
	"sync"
	"sync/atomic"

	"github.com/relaykernel/netstack"
	"github.com/relaykernel/netstack/buffer"
	"github.com/relaykernel/netstack/socket"
	"github.com/relaykernel/netstack/waiter"
)

// connectionQueueDepth bounds the connection's internal acknowledgement
// queue, matching the original kernel's circular_buffer<packet, 8>.
const connectionQueueDepth = 8

// connection is the per-socket TCP state: sequence/ack tracking, the
// acknowledgement-waiter queue a send/connect/disconnect attempt drains,
// and the socket this connection feeds PSH-delivered segments into
// (SPEC_FULL.md §2 "Connection (TCP)").
type connection struct {
	LocalPort  uint16
	ServerPort uint16
	ServerAddr netstack.Address

	// Listening is true while a send/connect/disconnect attempt is
	// waiting on Waiter for an acknowledgement — distinct from a
	// socket's Listen mode (SPEC_FULL.md GLOSSARY "Listening (on a
	// connection)").
	Listening atomic.Bool
	Waiter    *waiter.Waiter

	mu       sync.Mutex
	packets  []*buffer.Packet
	maxDepth int

	Connected bool

	// SeqNumber and AckNumber track the connection's next sequence and
	// acknowledgement numbers; guarded by mu since the decode path
	// (interrupt context) and an in-flight send/connect/disconnect
	// (task context) both touch them.
	SeqNumber uint32
	AckNumber uint32

	Socket *socket.Socket
}

func newConnection(irq *waiter.SoftIRQ) *connection {
	return newConnectionWithDepth(irq, connectionQueueDepth)
}

func newConnectionWithDepth(irq *waiter.SoftIRQ, depth int) *connection {
	if depth <= 0 {
		depth = connectionQueueDepth
	}
	return &connection{Waiter: waiter.New(irq), maxDepth: depth}
}

// pushPacket enqueues pkt, dropping it if the queue is already at depth —
// the sender is expected to retransmit and get another chance.
func (c *connection) pushPacket(pkt *buffer.Packet) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.packets) < c.maxDepth {
		c.packets = append(c.packets, pkt)
	}
}

func (c *connection) popPacket() (*buffer.Packet, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.packets) == 0 {
		return nil, false
	}
	p := c.packets[0]
	c.packets = c.packets[1:]
	return p, true
}

func (c *connection) empty() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.packets) == 0
}

// setSeqAck updates the connection's tracked sequence and acknowledgement
// numbers.
func (c *connection) setSeqAck(seq, ack uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.SeqNumber = seq
	c.AckNumber = ack
}

// seqAck returns the connection's current sequence and acknowledgement
// numbers.
func (c *connection) seqAck() (uint32, uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.SeqNumber, c.AckNumber
}
