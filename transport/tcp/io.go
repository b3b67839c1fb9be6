package tcp

import (
	"github.com/relaykernel/netstack"
	"github.com/relaykernel/netstack/buffer"
	"github.com/relaykernel/netstack/header"
	"github.com/relaykernel/netstack/network/ip"
	"github.com/relaykernel/netstack/socket"
)

// Send transmits buf as the payload of a PSH+ACK segment and blocks until
// the peer's acknowledgement is observed (SPEC_FULL.md §4.5.6).
func (l *Layer) Send(iface *ip.Interface, sock *socket.Socket, buf []byte) error {
	conn, ok := socket.Connection[*connection](sock)
	if !ok || !conn.Connected {
		return netstack.ErrSocketNotConnected
	}

	pkt, _ := prepareConn(iface, false, conn, header.TCPFlagPsh|header.TCPFlagAck, len(buf))
	copy(pkt.Push(len(buf)), buf)

	return l.reliableFinalize(iface, conn, pkt, false, expectAck)
}

// deliver copies a PSH-delivered segment's payload (already advanced past
// its TCP header by Decode before it was queued) into buf.
func deliver(pkt *buffer.Packet, buf []byte) (int, error) {
	payload := pkt.Payload()
	if len(payload) > len(buf) {
		return 0, netstack.ErrBufferSmall
	}

	copy(buf, payload)
	return len(payload), nil
}

// Receive blocks until a PSH-delivered segment is queued, then copies its
// payload into buf (SPEC_FULL.md §4.5.6).
func (l *Layer) Receive(sock *socket.Socket, buf []byte) (int, error) {
	conn, ok := socket.Connection[*connection](sock)
	if !ok || !conn.Connected {
		return 0, netstack.ErrSocketNotConnected
	}

	for sock.Empty() {
		sock.Waiter.Wait()
	}

	pkt, ok := sock.TryPop()
	if !ok {
		return 0, netstack.ErrSocketTimeout
	}
	return deliver(pkt, buf)
}

// ReceiveTimeout is Receive bounded by waitFor, a caller-supplied wait of
// at most some duration; it reports ErrSocketTimeout if nothing arrives in
// time.
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

	pkt, ok := sock.TryPop()
	if !ok {
		return 0, netstack.ErrSocketTimeout
	}
	return deliver(pkt, buf)
}
