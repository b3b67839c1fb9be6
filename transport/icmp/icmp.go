// Package icmp implements the ICMP responder: it auto-replies to echo
// requests addressed to one of the stack's own interfaces and otherwise
// only logs what it saw, then hands the decoded packet on to any raw ICMP
// sockets (SPEC_FULL.md §4.3).
package icmp

import (
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/relaykernel/netstack"
	"github.com/relaykernel/netstack/buffer"
	"github.com/relaykernel/netstack/header"
	"github.com/relaykernel/netstack/network/ip"
	"github.com/relaykernel/netstack/socket"
)

// Descriptor carries what a caller (kernel responder or a raw-socket user
// send) knows about an outgoing ICMP message before any header exists.
type Descriptor struct {
	PayloadSize int
	TargetIP    netstack.Address
	Type        header.ICMPv4Type
	Code        uint8
}

// Layer owns the set of raw ICMP sockets registered to receive a copy of
// every decoded packet, mirroring the original kernel's
// network::propagate_packet(packet, socket_protocol::ICMP) fan-out.
type Layer struct {
	mu      sync.Mutex
	sockets []*socket.Socket
	log     *logrus.Logger
}

// NewLayer creates an empty ICMP layer.
func NewLayer(log *logrus.Logger) *Layer {
	return &Layer{log: log}
}

// Register adds sock to the set that receives a copy of every decoded
// ICMP packet, used by a raw ICMP socket once it starts listening.
func (l *Layer) Register(sock *socket.Socket) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sockets = append(l.sockets, sock)
}

// Unregister removes sock from the propagation set.
func (l *Layer) Unregister(sock *socket.Socket) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, s := range l.sockets {
		if s == sock {
			l.sockets = append(l.sockets[:i], l.sockets[i+1:]...)
			return
		}
	}
}

func preparePacket(iface *ip.Interface, desc Descriptor) (*buffer.Packet, header.ICMPv4) {
	pkt, _ := ip.KernelPreparePacket(iface, ip.Descriptor{
		PayloadSize: header.ICMPv4MinimumSize + desc.PayloadSize,
		TargetIP:    desc.TargetIP,
		Protocol:    netstack.ProtocolICMP,
	})

	hdr := header.ICMPv4(pkt.Push(header.ICMPv4MinimumSize))
	hdr.SetType(desc.Type)
	hdr.SetCode(desc.Code)
	return pkt, hdr
}

// KernelPreparePacket builds a kernel-originated ICMP message (e.g. an echo
// reply) with the Ethernet, IPv4 and ICMP headers written, ready for the
// caller to fill in the "rest of header" and any payload before
// FinalizePacket.
func KernelPreparePacket(iface *ip.Interface, desc Descriptor) (*buffer.Packet, header.ICMPv4) {
	return preparePacket(iface, desc)
}

// UserPreparePacket is KernelPreparePacket's user-path counterpart, kept as
// a distinct entry point for the same reason network/ip keeps its two
// PreparePacket functions distinct (SPEC_FULL.md "prepare_packet called
// from both the kernel's own responder and the user-facing send() shim").
func UserPreparePacket(iface *ip.Interface, desc Descriptor) (*buffer.Packet, header.ICMPv4) {
	return preparePacket(iface, desc)
}

// FinalizePacket computes the ICMP checksum over the header and any
// payload pushed after it, then delegates to the IP layer.
func FinalizePacket(iface *ip.Interface, pkt *buffer.Packet) error {
	hdr := header.ICMPv4(pkt.Data[pkt.Tag(buffer.LayerTransport) : pkt.Tag(buffer.LayerTransport)+header.ICMPv4MinimumSize])
	payload := pkt.Data[pkt.Tag(buffer.LayerTransport)+header.ICMPv4MinimumSize : pkt.Index]

	hdr.SetChecksum(hdr.CalculateChecksum(payload))

	return ip.FinalizePacket(iface, pkt)
}

// Decode demultiplexes an inbound ICMP message. An echo request addressed
// to iface's own IP gets an automatic echo reply with the identifier and
// sequence number copied verbatim; every other observed type is only
// logged. Either way the packet is handed on to every registered raw
// socket afterwards.
func (l *Layer) Decode(iface *ip.Interface, pkt *buffer.Packet, ipHdr header.IPv4) {
	pkt.SetTag(buffer.LayerTransport)

	hdr := header.ICMPv4(pkt.Data[pkt.Index : pkt.Index+header.ICMPv4MinimumSize])

	if l.log != nil {
		l.log.Trace("icmp: start packet handling")
	}

	switch hdr.Type() {
	case header.ICMPv4EchoRequest:
		if l.log != nil {
			l.log.Trace("icmp: received echo request")
		}
		if ipHdr.DestinationAddress() == iface.IP {
			payloadLen := int(ipHdr.TotalLength()) - ipHdr.IHL() - header.ICMPv4MinimumSize
			if payloadLen < 0 {
				payloadLen = 0
			}
			payloadEnd := pkt.Index + header.ICMPv4MinimumSize + payloadLen
			if payloadEnd > len(pkt.Data) {
				payloadEnd = len(pkt.Data)
			}
			payload := pkt.Data[pkt.Index+header.ICMPv4MinimumSize : payloadEnd]
			l.reply(iface, ipHdr.SourceAddress(), hdr, payload)
		}
	case header.ICMPv4EchoReply:
		if l.log != nil {
			l.log.Trace("icmp: echo reply")
		}
	case header.ICMPv4Unreachable:
		if l.log != nil {
			l.log.Trace("icmp: unreachable")
		}
	case header.ICMPv4TimeExceeded:
		if l.log != nil {
			l.log.Trace("icmp: time exceeded")
		}
	default:
		if l.log != nil {
			l.log.WithField("type", hdr.Type()).Trace("icmp: unsupported packet received")
		}
	}

	l.propagate(pkt)
}

func (l *Layer) reply(iface *ip.Interface, source netstack.Address, request header.ICMPv4, payload []byte) {
	reply, replyHdr := KernelPreparePacket(iface, Descriptor{
		PayloadSize: len(payload),
		TargetIP:    source,
		Type:        header.ICMPv4EchoReply,
		Code:        0,
	})

	copy(replyHdr.RestOfHeader(), request.RestOfHeader())
	copy(reply.Push(len(payload)), payload)

	if err := FinalizePacket(iface, reply); err != nil && l.log != nil {
		l.log.WithError(err).Error("icmp: failed to reply")
	}
}

func (l *Layer) propagate(pkt *buffer.Packet) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, s := range l.sockets {
		if s.Listen {
			s.Enqueue(pkt, true)
		}
	}
}
