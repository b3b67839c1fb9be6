// Package udp implements the stateless-on-ingress UDP demultiplexer:
// decode by port, bind/unbind a connection, and deliver to a socket's
// ready-queue (SPEC_FULL.md §4.4). Unlike TCP there is no per-segment
// state machine here — a connection is just the (local_port, server_port,
// server_address) tuple a socket was bound to.
package udp

import (
	"github.com/miekg/dns"
	"github.com/sirupsen/logrus"

	"github.com/relaykernel/netstack"
	"github.com/relaykernel/netstack/buffer"
	"github.com/relaykernel/netstack/config"
	"github.com/relaykernel/netstack/conntrack"
	"github.com/relaykernel/netstack/header"
	"github.com/relaykernel/netstack/network/ip"
	"github.com/relaykernel/netstack/portalloc"
	"github.com/relaykernel/netstack/socket"
)

// dnsPort is the well-known server port whose ingress traffic also gets
// handed to the DNS parser, a layering violation SPEC_FULL.md §9 keeps
// deliberately because it is cheap (§9 "Decode also dispatches DNS").
const dnsPort = 53

// connection is the bound state behind a UDP socket: no sequence numbers,
// no waiter of its own, no listener queue — delivery goes straight to the
// socket's ready-queue (SPEC_FULL.md §2 "Connection (UDP)").
type connection struct {
	LocalPort  uint16
	ServerPort uint16
	ServerAddr netstack.Address
	Connected  bool
	Socket     *socket.Socket
}

// Layer owns the UDP connection table and local-port allocator. One Layer
// per stack instance, the way the original kernel's udp_layer owns a single
// package-level connections table and local_port counter.
type Layer struct {
	table *conntrack.Table[*connection]
	ports *portalloc.Allocator
	log   *logrus.Logger
}

// NewLayer creates an empty UDP layer using the built-in local-port seed
// (SPEC_FULL.md §6 default, portalloc.InitialPort).
func NewLayer(log *logrus.Logger) *Layer {
	return NewLayerFromConfig(log, config.Default().Socket)
}

// NewLayerFromConfig creates an empty UDP layer whose local-port counter
// starts at cfg.InitialLocalPort, so a loaded config.Config can retune the
// allocator without recompiling (SPEC_FULL.md "AMBIENT STACK /
// Configuration").
func NewLayerFromConfig(log *logrus.Logger, cfg config.SocketConfig) *Layer {
	return &Layer{
		table: conntrack.New[*connection](),
		ports: portalloc.NewFrom(cfg.InitialLocalPort),
		log:   log,
	}
}

// Reset clears all connections and reseeds the local-port counter, used
// between test scenarios (SPEC_FULL.md "init_layer() per-transport
// local-port reset").
func (l *Layer) Reset() {
	l.table = conntrack.New[*connection]()
	l.ports.Reset()
}

func preparePacket(iface *ip.Interface, target netstack.Address, localPort, serverPort uint16, payloadSize int) (*buffer.Packet, header.UDP) {
	pkt, _ := ip.UserPreparePacket(iface, ip.Descriptor{
		PayloadSize: header.UDPMinimumSize + payloadSize,
		TargetIP:    target,
		Protocol:    netstack.ProtocolUDP,
	})

	hdr := header.UDP(pkt.Push(header.UDPMinimumSize))
	hdr.Encode(&header.UDPFields{
		SrcPort: localPort,
		DstPort: serverPort,
		Length:  uint16(header.UDPMinimumSize + payloadSize),
	})
	return pkt, hdr
}

func computeChecksum(iface *ip.Interface, pkt *buffer.Packet, target netstack.Address) {
	hdr := header.UDP(pkt.Header(buffer.LayerTransport))
	hdr.SetChecksum(0)

	length := hdr.Length()
	sum := header.PseudoHeaderSum([4]byte(iface.IP), [4]byte(target), byte(netstack.ProtocolUDP), length)
	sum = header.Checksum(hdr, sum)
	hdr.SetChecksum(header.FinalizeZeroAvoiding(sum))
}

// FinalizePacket computes the UDP checksum (pseudo-header + segment) and
// delegates to the IP layer to finalize and transmit.
func (l *Layer) FinalizePacket(iface *ip.Interface, pkt *buffer.Packet, target netstack.Address) error {
	computeChecksum(iface, pkt, target)
	return ip.FinalizePacket(iface, pkt)
}

// Decode demultiplexes an inbound UDP segment: it always advances past the
// 8-byte header (stateless), optionally hands off to the DNS parser when
// the source port is 53, then looks up a bound connection and, if its
// socket is listening, enqueues a copy.
func (l *Layer) Decode(iface *ip.Interface, pkt *buffer.Packet, ipHdr header.IPv4) {
	pkt.SetTag(buffer.LayerTransport)
	hdr := header.UDP(pkt.Data[pkt.Index : pkt.Index+header.UDPMinimumSize])
	pkt.Advance(header.UDPMinimumSize)

	sourcePort := hdr.SourcePort()
	targetPort := hdr.DestinationPort()

	if l.log != nil {
		l.log.WithFields(logrus.Fields{
			"source_port": sourcePort,
			"target_port": targetPort,
			"length":      hdr.Length(),
		}).Trace("udp: start packet handling")
	}

	if sourcePort == dnsPort {
		l.decodeDNS(pkt)
	}

	conn, ok := l.table.Get(targetPort, sourcePort)
	if !ok {
		if l.log != nil {
			l.log.Debug("udp: received packet for which there are no connection")
		}
		return
	}
	if conn.Socket == nil || !conn.Socket.Listen {
		return
	}
	conn.Socket.Enqueue(pkt, true)
}

// decodeDNS hands the remaining payload to a DNS message parse purely for
// observability — SPEC_FULL.md §9 keeps this hook but the result is never
// acted on; it is not a resolver.
func (l *Layer) decodeDNS(pkt *buffer.Packet) {
	var msg dns.Msg
	if err := msg.Unpack(pkt.Payload()); err != nil {
		if l.log != nil {
			l.log.WithError(err).Trace("udp: dns: unparseable payload on port 53")
		}
		return
	}
	if l.log != nil {
		l.log.WithField("questions", len(msg.Question)).Trace("udp: dns: parsed message")
	}
}

// ClientBind allocates a new local port, registers a connection, and links
// the socket and connection together. Returns the allocated local port.
func (l *Layer) ClientBind(sock *socket.Socket, serverPort uint16, server netstack.Address) uint16 {
	conn := &connection{
		LocalPort:  l.ports.Next(),
		ServerPort: serverPort,
		ServerAddr: server,
		Connected:  true,
		Socket:     sock,
	}

	sock.SetConnection(conn)
	l.table.Insert(conntrack.PortPair{Local: conn.LocalPort, Remote: serverPort}, conn)

	return conn.LocalPort
}

// ClientUnbind marks the socket's connection disconnected and removes it
// from the connection table. Returns ErrSocketNotConnected if the socket
// holds no active UDP connection.
func (l *Layer) ClientUnbind(sock *socket.Socket) error {
	conn, ok := socket.Connection[*connection](sock)
	if !ok || !conn.Connected {
		return netstack.ErrSocketNotConnected
	}

	conn.Connected = false
	l.table.Delete(conntrack.PortPair{Local: conn.LocalPort, Remote: conn.ServerPort})

	return nil
}

// Send writes buf as the payload of a new UDP segment to the socket's
// bound server and transmits it.
func (l *Layer) Send(iface *ip.Interface, sock *socket.Socket, buf []byte) error {
	conn, ok := socket.Connection[*connection](sock)
	if !ok || !conn.Connected {
		return netstack.ErrSocketNotConnected
	}

	pkt, _ := preparePacket(iface, conn.ServerAddr, conn.LocalPort, conn.ServerPort, len(buf))
	copy(pkt.Push(len(buf)), buf)

	return l.FinalizePacket(iface, pkt, conn.ServerAddr)
}

func deliver(sock *socket.Socket, buf []byte) (int, error) {
	pkt, ok := sock.TryPop()
	if !ok {
		return 0, netstack.ErrSocketTimeout
	}

	hdr := header.UDP(pkt.Header(buffer.LayerTransport))
	payloadLen := int(hdr.Length())

	if payloadLen > len(buf) {
		return 0, netstack.ErrBufferSmall
	}

	// payloadLen includes the 8-byte UDP header, matching the original
	// kernel's observable length-field count exactly (SPEC_FULL.md
	// scenario 2); only the bytes actually present past the header are
	// copied.
	avail := pkt.Payload()
	n := payloadLen
	if n > len(avail) {
		n = len(avail)
	}
	copy(buf, avail[:n])
	return payloadLen, nil
}

// Receive blocks until a datagram is queued, then copies its payload into
// buf. The returned count is the segment's length field, which — matching
// the original kernel's observable behaviour exactly — includes the
// 8-byte UDP header, not just the application payload (SPEC_FULL.md
// scenario 2).
func (l *Layer) Receive(sock *socket.Socket, buf []byte) (int, error) {
	conn, ok := socket.Connection[*connection](sock)
	if !ok || !conn.Connected {
		return 0, netstack.ErrSocketNotConnected
	}

	for sock.Empty() {
		sock.Waiter.Wait()
	}

	return deliver(sock, buf)
}

// ReceiveTimeout is Receive bounded by waitFor, a caller-supplied wait of
// at most some duration; it reports ErrSocketTimeout if waitFor returns
// false or the queue is still empty afterwards.
func (l *Layer) ReceiveTimeout(sock *socket.Socket, buf []byte, waitFor func() bool) (int, error) {
	conn, ok := socket.Connection[*connection](sock)
	if !ok || !conn.Connected {
		return 0, netstack.ErrSocketNotConnected
	}

	if sock.Empty() {
		if !waitFor() {
			return 0, netstack.ErrSocketTimeout
		}
	}

	return deliver(sock, buf)
}
