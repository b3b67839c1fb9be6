package tcp

import (
	"time"

	"github.com/cenkalti/backoff"

	"github.com/relaykernel/netstack"
	"github.com/relaykernel/netstack/buffer"
	"github.com/relaykernel/netstack/conntrack"
	"github.com/relaykernel/netstack/header"
	"github.com/relaykernel/netstack/network/ip"
	"github.com/relaykernel/netstack/socket"
)

// errUnacknowledged signals a reliable-finalize attempt that produced no
// matching acknowledgement within its timeout window, telling
// cenkalti/backoff's Retry to try again — it is never returned to a
// caller.
var errUnacknowledged = netstack.ErrSocketTCPError

// reliableFinalize is the egress path used for SYN, PSH+ACK data and
// FIN+ACK: compute the checksum, then retransmit up to maxTries times,
// each attempt waiting up to timeout for a segment on the connection's
// queue whose flags satisfy match (SPEC_FULL.md §4.5.3). On a match, conn's
// sequence/ack state is updated from the acknowledging segment
// (SeqNumber = received ack, AckNumber = received seq + 1) and nil is
// returned; after maxTries failed attempts it returns ErrSocketTCPError.
func (l *Layer) reliableFinalize(iface *ip.Interface, conn *connection, pkt *buffer.Packet, owned bool, match func(header.TCPFlags) bool) error {
	computeChecksum(pkt)

	conn.Listening.Store(true)
	defer conn.Listening.Store(false)

	var matchedSeq, matchedAck uint32
	received := false

	attempt := func() error {
		var err error
		if owned {
			// Retransmit a clone so the original buffer survives for the
			// next attempt (SPEC_FULL.md §4.5.3 "Ownership rule").
			err = ip.FinalizePacket(iface, pkt.Clone())
		} else {
			err = ip.FinalizePacket(iface, pkt)
		}
		if err != nil {
			return backoff.Permanent(err)
		}

		deadline := time.Now().Add(l.timeout)
		for {
			remaining := time.Until(deadline)
			if remaining <= 0 {
				return errUnacknowledged
			}
			if !conn.Waiter.WaitFor(remaining) {
				return errUnacknowledged
			}

			got, ok := conn.popPacket()
			if !ok {
				continue
			}

			start := got.Tag(buffer.LayerTransport)
			hdr := header.TCP(got.Data[start : start+header.TCPMinimumSize])
			if match(hdr.Flags()) {
				matchedSeq = hdr.SequenceNumber()
				matchedAck = hdr.AckNumber()
				received = true
				return nil
			}
		}
	}

	policy := backoff.WithMaxRetries(backoff.NewConstantBackOff(0), uint64(l.maxTries-1))
	err := backoff.Retry(attempt, policy)

	if !received {
		if err != nil && err != errUnacknowledged {
			return err
		}
		return netstack.ErrSocketTCPError
	}

	conn.setSeqAck(matchedAck, matchedSeq+1)
	return nil
}

func expectSynAck(f header.TCPFlags) bool { return f.Has(header.TCPFlagSyn | header.TCPFlagAck) }
func expectAck(f header.TCPFlags) bool    { return f.Has(header.TCPFlagAck) }

// Connect performs the three-way handshake: allocate a connection, send a
// SYN via reliable finalize (which blocks until SYN+ACK arrives), send a
// bare ACK via direct finalize, then mark the connection connected
// (SPEC_FULL.md §4.5.4). Returns the allocated local port.
func (l *Layer) Connect(iface *ip.Interface, sock *socket.Socket, serverPort uint16, server netstack.Address) (uint16, error) {
	conn := newConnectionWithDepth(l.irq, l.queueDepth)
	conn.LocalPort = l.ports.Next()
	conn.ServerPort = serverPort
	conn.ServerAddr = server

	sock.SetConnection(conn)
	conn.Socket = sock
	l.table.Insert(conntrack.PortPair{Local: conn.LocalPort, Remote: serverPort}, conn)

	synPkt, _ := prepareConn(iface, true, conn, header.TCPFlagSyn, 0)
	if err := l.reliableFinalize(iface, conn, synPkt, true, expectSynAck); err != nil {
		return 0, err
	}

	ackPkt, _ := prepareConn(iface, true, conn, header.TCPFlagAck, 0)
	if err := finalizeDirect(iface, ackPkt); err != nil {
		return 0, err
	}

	conn.Connected = true
	return conn.LocalPort, nil
}

// Disconnect performs the four-way close: send FIN+ACK in a retry loop
// that accepts either a bare ACK followed later by a FIN+ACK, or a
// combined FIN+ACK directly; then send the terminal ACK and remove the
// connection (SPEC_FULL.md §4.5.5). This does not reuse reliableFinalize
// because it must distinguish two acceptable flag patterns and may need a
// second wait after an ACK-only response.
func (l *Layer) Disconnect(iface *ip.Interface, sock *socket.Socket) error {
	conn, ok := socket.Connection[*connection](sock)
	if !ok || !conn.Connected {
		return netstack.ErrSocketNotConnected
	}

	finPkt, _ := prepareConn(iface, true, conn, header.TCPFlagFin|header.TCPFlagAck, 0)

	conn.Listening.Store(true)

	var matchedSeq, matchedAck uint32
	gotFinAck := false
	gotAckOnly := false

	attempt := func() error {
		if err := finalizeDirect(iface, finPkt.Clone()); err != nil {
			return backoff.Permanent(err)
		}

		deadline := time.Now().Add(l.timeout)
		for {
			remaining := time.Until(deadline)
			if remaining <= 0 {
				return errUnacknowledged
			}
			if !conn.Waiter.WaitFor(remaining) {
				return errUnacknowledged
			}

			got, ok := conn.popPacket()
			if !ok {
				continue
			}

			start := got.Tag(buffer.LayerTransport)
			hdr := header.TCP(got.Data[start : start+header.TCPMinimumSize])
			flags := hdr.Flags()

			switch {
			case flags.Has(header.TCPFlagFin | header.TCPFlagAck):
				gotFinAck = true
			case flags.Has(header.TCPFlagAck):
				gotAckOnly = true
			default:
				continue
			}

			matchedSeq = hdr.SequenceNumber()
			matchedAck = hdr.AckNumber()
			return nil
		}
	}

	policy := backoff.WithMaxRetries(backoff.NewConstantBackOff(0), uint64(l.maxTries-1))
	err := backoff.Retry(attempt, policy)

	if !gotFinAck && !gotAckOnly {
		conn.Listening.Store(false)
		if err != nil && err != errUnacknowledged {
			return err
		}
		return netstack.ErrSocketTCPError
	}

	conn.setSeqAck(matchedAck, matchedSeq+1)

	if gotAckOnly {
		received := false
		deadline := time.Now().Add(l.timeout)
		for {
			if conn.empty() {
				remaining := time.Until(deadline)
				if remaining <= 0 {
					break
				}
				if !conn.Waiter.WaitFor(remaining) {
					break
				}
			}

			got, ok := conn.popPacket()
			if !ok {
				continue
			}

			start := got.Tag(buffer.LayerTransport)
			hdr := header.TCP(got.Data[start : start+header.TCPMinimumSize])
			if hdr.Flags().Has(header.TCPFlagFin | header.TCPFlagAck) {
				conn.setSeqAck(hdr.AckNumber(), hdr.SequenceNumber()+1)
				received = true
				break
			}
		}

		if !received {
			conn.Listening.Store(false)
			return netstack.ErrSocketTCPError
		}
	}

	conn.Listening.Store(false)

	finalAck, _ := prepareConn(iface, true, conn, header.TCPFlagAck, 0)
	if err := finalizeDirect(iface, finalAck); err != nil {
		return err
	}

	conn.Connected = false
	l.table.Delete(conntrack.PortPair{Local: conn.LocalPort, Remote: conn.ServerPort})

	return nil
}
