// Package tcp implements the embedded TCP connection state machine: the
// three-way connect, reliable send with acknowledgement-waiting, the
// four-way disconnect, and incoming-segment dispatch to both the
// acknowledgement-waiter and the socket's ready-queue (SPEC_FULL.md §4.5,
// the spec's dominant component).
package tcp

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/relaykernel/netstack"
	"github.com/relaykernel/netstack/buffer"
	"github.com/relaykernel/netstack/config"
	"github.com/relaykernel/netstack/conntrack"
	"github.com/relaykernel/netstack/header"
	"github.com/relaykernel/netstack/network/ip"
	"github.com/relaykernel/netstack/portalloc"
	"github.com/relaykernel/netstack/waiter"
)

// defaultTimeout and defaultMaxTries are the reliable-finalize retry
// budget (SPEC_FULL.md §4.5.3: "timeout_ms = 1000", "max_tries = 5").
const (
	defaultTimeout  = time.Second
	defaultMaxTries = 5
)

// Layer owns the TCP connection table, local-port allocator, and the
// softirq worker incoming segments notify acknowledgement-waiters
// through. One Layer per stack instance.
type Layer struct {
	table      *conntrack.Table[*connection]
	ports      *portalloc.Allocator
	irq        *waiter.SoftIRQ
	log        *logrus.Logger
	timeout    time.Duration
	maxTries   int
	queueDepth int
}

// NewLayer creates an empty TCP layer using the built-in retry/timeout
// defaults (SPEC_FULL.md §6). irq is the softirq worker the connection
// waiters created here are wired through, so the decode path can notify
// them safely from interrupt context.
func NewLayer(irq *waiter.SoftIRQ, log *logrus.Logger) *Layer {
	return NewLayerFromConfig(irq, log, config.Default())
}

// NewLayerFromConfig creates an empty TCP layer whose retry budget,
// timeout and local-port seed come from cfg, so a loaded config.Config can
// retune reliable-finalize behavior without recompiling (SPEC_FULL.md
// "AMBIENT STACK / Configuration").
func NewLayerFromConfig(irq *waiter.SoftIRQ, log *logrus.Logger, cfg config.Config) *Layer {
	timeout := cfg.TCP.Timeout()
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	maxTries := cfg.TCP.MaxTries
	if maxTries <= 0 {
		maxTries = defaultMaxTries
	}
	return &Layer{
		table:      conntrack.New[*connection](),
		ports:      portalloc.NewFrom(cfg.Socket.InitialLocalPort),
		irq:        irq,
		log:        log,
		timeout:    timeout,
		maxTries:   maxTries,
		queueDepth: cfg.TCP.ConnectionQueueDepth,
	}
}

// Reset clears all connections and reseeds the local-port counter, used
// between test scenarios.
func (l *Layer) Reset() {
	l.table = conntrack.New[*connection]()
	l.ports.Reset()
}

func prepareHeader(iface *ip.Interface, owned bool, target netstack.Address, source, dest uint16, seq, ack uint32, flags header.TCPFlags, payloadSize int) (*buffer.Packet, header.TCP) {
	desc := ip.Descriptor{
		PayloadSize: header.TCPMinimumSize + payloadSize,
		TargetIP:    target,
		Protocol:    netstack.ProtocolTCP,
	}
	var pkt *buffer.Packet
	if owned {
		pkt, _ = ip.KernelPreparePacket(iface, desc)
	} else {
		pkt, _ = ip.UserPreparePacket(iface, desc)
	}

	hdr := header.TCP(pkt.Push(header.TCPMinimumSize))
	hdr.Encode(&header.TCPFields{
		SrcPort:    source,
		DstPort:    dest,
		SeqNum:     seq,
		AckNum:     ack,
		Flags:      flags,
		WindowSize: header.TCPReceiveWindow,
	})
	return pkt, hdr
}

// prepareRaw builds a bare reply with no backing connection record, used
// for the unsolicited ACK the decode path sends independently of whether
// a connection was found (SPEC_FULL.md §4.5.2).
func prepareRaw(iface *ip.Interface, target netstack.Address, source, dest uint16, seq, ack uint32, flags header.TCPFlags) (*buffer.Packet, header.TCP) {
	return prepareHeader(iface, true, target, source, dest, seq, ack, flags, 0)
}

// prepareConn builds a packet carrying conn's current sequence/ack state
// and port pair.
func prepareConn(iface *ip.Interface, owned bool, conn *connection, flags header.TCPFlags, payloadSize int) (*buffer.Packet, header.TCP) {
	seq, ack := conn.seqAck()
	return prepareHeader(iface, owned, conn.ServerAddr, conn.LocalPort, conn.ServerPort, seq, ack, flags, payloadSize)
}

// computeChecksum zeroes and recomputes the TCP checksum over the segment
// (header + payload, sized from the IP total-length field, exactly as
// many bytes as were actually reserved — SPEC_FULL.md §4.5.7).
func computeChecksum(pkt *buffer.Packet) {
	ipHdr := header.IPv4(pkt.Header(buffer.LayerNetwork))
	start := pkt.Tag(buffer.LayerTransport)
	segLen := int(ipHdr.TotalLength()) - ipHdr.IHL()

	hdr := header.TCP(pkt.Data[start : start+segLen])
	hdr.SetChecksum(0)

	srcIP := ipHdr.SourceAddress()
	dstIP := ipHdr.DestinationAddress()
	sum := header.PseudoHeaderSum([4]byte(srcIP), [4]byte(dstIP), byte(netstack.ProtocolTCP), uint16(segLen))
	sum = header.Checksum(hdr, sum)
	hdr.SetChecksum(header.FinalizeZeroAvoiding(sum))
}

// finalizeDirect is the fire-and-forget egress path: compute the checksum
// and hand down to IP. Used for pure ACKs (SPEC_FULL.md §4.5.3).
func finalizeDirect(iface *ip.Interface, pkt *buffer.Packet) error {
	computeChecksum(pkt)
	return ip.FinalizePacket(iface, pkt)
}

// Decode dispatches an inbound TCP segment: it updates the matched
// connection's sequence/ack state, wakes any in-flight
// send/connect/disconnect waiting on an acknowledgement, delivers
// PSH-carrying payload to the socket's ready-queue, and independently
// answers every PSH segment with a bare ACK (SPEC_FULL.md §4.5.2).
func (l *Layer) Decode(iface *ip.Interface, pkt *buffer.Packet, ipHdr header.IPv4) {
	pkt.SetTag(buffer.LayerTransport)
	hdr := header.TCP(pkt.Data[pkt.Index : pkt.Index+header.TCPMinimumSize])

	if l.log != nil {
		l.log.Trace("tcp: start packet handling")
	}

	sourcePort := hdr.SourcePort()
	targetPort := hdr.DestinationPort()
	seq := hdr.SequenceNumber()
	ack := hdr.AckNumber()
	flags := hdr.Flags()

	dataOffset := flags.DataOffset() * 4
	segLen := int(ipHdr.TotalLength()) - ipHdr.IHL()
	payloadLen := segLen - dataOffset
	if payloadLen < 0 {
		payloadLen = 0
	}

	nextSeqForUs := ack
	nextAckForUs := seq + uint32(payloadLen)

	conn, found := l.table.Get(targetPort, sourcePort)
	if found {
		conn.setSeqAck(nextSeqForUs, nextAckForUs)

		if conn.Listening.Load() {
			conn.pushPacket(pkt.Clone())
			conn.Waiter.NotifyOneIRQ()
		}

		if flags.Has(header.TCPFlagPsh) && conn.Socket != nil {
			pkt.Advance(dataOffset)
			if conn.Socket.Listen {
				conn.Socket.Enqueue(pkt, true)
			}
		}
	} else if l.log != nil {
		l.log.Debug("tcp: received packet for which there are no connection")
	}

	if flags.Has(header.TCPFlagPsh) {
		// Deferred through the softirq worker rather than sent inline: the
		// decode path runs in interrupt context, and SPEC_FULL.md §9
		// ("Unsolicited ACK reentrancy") requires the reply go through the
		// work queue rather than re-enter the network layer synchronously.
		l.irq.Defer(func() {
			l.sendBareAck(iface, ipHdr.SourceAddress(), targetPort, sourcePort, nextSeqForUs, nextAckForUs)
		})
	}
}

func (l *Layer) sendBareAck(iface *ip.Interface, targetIP netstack.Address, localPort, peerPort uint16, seq, ack uint32) {
	pkt, _ := prepareRaw(iface, targetIP, localPort, peerPort, seq, ack, header.TCPFlagAck)

	if err := finalizeDirect(iface, pkt); err != nil && l.log != nil {
		l.log.WithError(err).Error("tcp: impossible to prepare packet for ack")
	}
}
