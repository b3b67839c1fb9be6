package stack

import (
	"testing"

	"github.com/relaykernel/netstack"
	"github.com/relaykernel/netstack/buffer"
	"github.com/relaykernel/netstack/config"
	"github.com/relaykernel/netstack/header"
	"github.com/relaykernel/netstack/link/testlink"
	"github.com/relaykernel/netstack/network/ip"
	"github.com/relaykernel/netstack/socket"
)

func newTestStack(t *testing.T, link *testlink.Link) (*Stack, *ip.Interface) {
	t.Helper()
	s := New(config.Default(), nil)
	t.Cleanup(s.Close)

	iface := &ip.Interface{
		Name:  "eth0",
		MAC:   netstack.LinkAddress{0x02, 0, 0, 0, 0, 1},
		IP:    netstack.Address{10, 0, 0, 1},
		MTU:   1500,
		Write: link.Write,
		Neighbors: map[netstack.Address]netstack.LinkAddress{
			{10, 0, 0, 2}: {0x02, 0, 0, 0, 0, 2},
		},
	}
	s.AddInterface(iface)
	return s, iface
}

// buildEchoRequestFrame builds a raw Ethernet+IPv4+ICMP echo-request frame
// as if sent by peer to iface, matching spec.md scenario 1.
func buildEchoRequestFrame(iface *ip.Interface, peer netstack.Address, ident, seq uint16, payload []byte) []byte {
	peerIface := &ip.Interface{IP: peer}
	pkt, _ := ip.KernelPreparePacket(peerIface, ip.Descriptor{
		PayloadSize: header.ICMPv4MinimumSize + len(payload),
		TargetIP:    iface.IP,
		Protocol:    netstack.ProtocolICMP,
	})

	hdr := header.ICMPv4(pkt.Push(header.ICMPv4MinimumSize))
	hdr.SetType(header.ICMPv4EchoRequest)
	hdr.SetCode(0)
	hdr.SetIdent(ident)
	hdr.SetSequence(seq)
	copy(pkt.Push(len(payload)), payload)

	ipHdr := header.IPv4(pkt.Header(buffer.LayerNetwork))
	ipHdr.SetChecksum(ipHdr.CalculateChecksum())
	icmpHdr := header.ICMPv4(pkt.Header(buffer.LayerTransport))
	icmpHdr.SetChecksum(icmpHdr.CalculateChecksum(payload))

	// ip.KernelPreparePacket already reserved the Ethernet header (with
	// zero addresses, since peerIface has no MAC/neighbor table); fill in
	// the real source/destination now that both are known.
	ethHdr := header.Ethernet(pkt.Header(buffer.LayerLink))
	ethHdr.Encode(&header.EthernetFields{
		SrcAddr: netstack.LinkAddress{0x02, 0, 0, 0, 0, 2},
		DstAddr: iface.MAC,
		Type:    header.EtherTypeIPv4,
	})

	frame := make([]byte, len(pkt.Data))
	copy(frame, pkt.Data)
	return frame
}

func TestDeliverIncomingEchoesICMPRequest(t *testing.T) {
	link := testlink.New()
	s, iface := newTestStack(t, link)

	frame := buildEchoRequestFrame(iface, netstack.Address{10, 0, 0, 2}, 7, 1, []byte("ABCDEFGH"))
	s.DeliverIncoming(iface, frame)

	reply, ok := link.Pop()
	if !ok {
		t.Fatal("no reply frame written")
	}

	replyIPHdr := header.IPv4(reply[header.EthernetMinimumSize:])
	replyICMPHdr := header.ICMPv4(reply[header.EthernetMinimumSize+replyIPHdr.IHL():])

	if replyICMPHdr.Type() != header.ICMPv4EchoReply {
		t.Fatalf("reply type = %v, want EchoReply", replyICMPHdr.Type())
	}
	if replyICMPHdr.Ident() != 7 || replyICMPHdr.Sequence() != 1 {
		t.Fatalf("reply ident/seq = %d/%d, want 7/1", replyICMPHdr.Ident(), replyICMPHdr.Sequence())
	}

	payloadStart := header.EthernetMinimumSize + replyIPHdr.IHL() + header.ICMPv4MinimumSize
	if string(reply[payloadStart:]) != "ABCDEFGH" {
		t.Fatalf("reply payload = %q, want %q", reply[payloadStart:], "ABCDEFGH")
	}
}

func TestResetClearsTransportState(t *testing.T) {
	link := testlink.New()
	s, _ := newTestStack(t, link)

	sock := socket.New(1, socket.DomainInet, socket.TypeDgram, socket.ProtocolUDP, s.IRQ)
	server := netstack.Address{10, 0, 0, 2}
	if got := s.UDP.ClientBind(sock, 53, server); got != 1024 {
		t.Fatalf("ClientBind before Reset = %d, want 1024", got)
	}

	s.Reset()
	if s.TCP == nil || s.UDP == nil {
		t.Fatal("Reset must not discard the layers themselves")
	}
	if got := s.UDP.ClientBind(sock, 53, server); got != 1024 {
		t.Fatalf("ClientBind after Reset = %d, want 1024 (port counter reseeded)", got)
	}
}
