package udp

import (
	"testing"

	"github.com/relaykernel/netstack"
	"github.com/relaykernel/netstack/buffer"
	"github.com/relaykernel/netstack/header"
	"github.com/relaykernel/netstack/network/ip"
	"github.com/relaykernel/netstack/socket"
	"github.com/relaykernel/netstack/waiter"
)

func testInterface(capture *[][]byte) *ip.Interface {
	return &ip.Interface{
		Name: "test0",
		MAC:  netstack.LinkAddress{0x02, 0, 0, 0, 0, 1},
		IP:   netstack.Address{0, 0, 0, 0},
		MTU:  1500,
		Write: func(b []byte) error {
			*capture = append(*capture, append([]byte(nil), b...))
			return nil
		},
		Neighbors: map[netstack.Address]netstack.LinkAddress{
			{10, 0, 0, 2}: {0x02, 0, 0, 0, 0, 2},
		},
	}
}

func buildInbound(target netstack.Address, source netstack.Address, srcPort, dstPort uint16, payload []byte) *buffer.Packet {
	iface := &ip.Interface{IP: source}
	pkt, _ := ip.KernelPreparePacket(iface, ip.Descriptor{
		PayloadSize: header.UDPMinimumSize + len(payload),
		TargetIP:    target,
		Protocol:    netstack.ProtocolUDP,
	})

	hdr := header.UDP(pkt.Push(header.UDPMinimumSize))
	hdr.Encode(&header.UDPFields{
		SrcPort: srcPort,
		DstPort: dstPort,
		Length:  uint16(header.UDPMinimumSize + len(payload)),
	})
	copy(pkt.Push(len(payload)), payload)

	in := buffer.NewKernel(len(pkt.Data))
	copy(in.Data, pkt.Data)
	in.Advance(header.EthernetMinimumSize)
	ip.Decode(in)
	return in
}

func TestBindReceiveReportsLengthIncludingHeader(t *testing.T) {
	var out [][]byte
	iface := testInterface(&out)
	layer := NewLayer(nil)

	irq := waiter.NewSoftIRQ(4)
	defer irq.Stop()
	sock := socket.New(1, socket.DomainInet, socket.TypeDgram, socket.ProtocolUDP, irq)
	sock.Listen = true

	localPort := layer.ClientBind(sock, 53, netstack.Address{10, 0, 0, 2})
	if localPort != 1024 {
		t.Fatalf("ClientBind returned port %d, want 1024", localPort)
	}

	in := buildInbound(netstack.Address{0, 0, 0, 0}, netstack.Address{10, 0, 0, 2}, 53, localPort, []byte("hello"))
	layer.Decode(iface, in, header.IPv4(in.Data[header.EthernetMinimumSize:]))

	buf := make([]byte, 64)
	n, err := layer.Receive(sock, buf)
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if n != 5+header.UDPMinimumSize {
		t.Fatalf("Receive returned %d, want %d", n, 5+header.UDPMinimumSize)
	}
}
