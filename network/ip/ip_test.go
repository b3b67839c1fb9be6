package ip

import (
	"testing"

	"github.com/relaykernel/netstack"
	"github.com/relaykernel/netstack/buffer"
	"github.com/relaykernel/netstack/header"
)

func testInterface(capture *[]byte) *Interface {
	return &Interface{
		Name: "test0",
		MAC:  netstack.LinkAddress{0x02, 0, 0, 0, 0, 1},
		IP:   netstack.Address{10, 0, 0, 1},
		MTU:  1500,
		Write: func(b []byte) error {
			*capture = append([]byte(nil), b...)
			return nil
		},
		Neighbors: map[netstack.Address]netstack.LinkAddress{
			{10, 0, 0, 2}: {0x02, 0, 0, 0, 0, 2},
		},
	}
}

func TestPrepareFinalizeRoundTrip(t *testing.T) {
	var out []byte
	iface := testInterface(&out)

	pkt, _ := KernelPreparePacket(iface, Descriptor{
		PayloadSize: 4,
		TargetIP:    netstack.Address{10, 0, 0, 2},
		Protocol:    netstack.ProtocolUDP,
	})
	copy(pkt.Push(4), []byte{1, 2, 3, 4})

	if err := FinalizePacket(iface, pkt); err != nil {
		t.Fatalf("FinalizePacket: %v", err)
	}
	if len(out) == 0 {
		t.Fatal("interface never received a frame")
	}

	hdr := header.IPv4(out[header.EthernetMinimumSize:])
	if header.Finalize(header.Checksum(hdr[:hdr.IHL()], 0)) != 0 {
		t.Fatalf("IPv4 checksum does not verify to zero")
	}
	if hdr.Protocol() != netstack.ProtocolUDP {
		t.Fatalf("Protocol = %v, want UDP", hdr.Protocol())
	}
	if hdr.DestinationAddress() != (netstack.Address{10, 0, 0, 2}) {
		t.Fatalf("DestinationAddress = %v", hdr.DestinationAddress())
	}
}

func TestDecodeAdvancesByIHL(t *testing.T) {
	var out []byte
	iface := testInterface(&out)

	pkt, _ := KernelPreparePacket(iface, Descriptor{
		PayloadSize: 2,
		TargetIP:    netstack.Address{10, 0, 0, 2},
		Protocol:    netstack.ProtocolICMP,
	})
	copy(pkt.Push(2), []byte{0xAA, 0xBB})
	if err := FinalizePacket(iface, pkt); err != nil {
		t.Fatalf("FinalizePacket: %v", err)
	}

	in := buffer.NewKernel(len(out))
	copy(in.Data, out)
	in.Advance(header.EthernetMinimumSize)

	hdr := Decode(in)
	if hdr.IHL() != header.IPv4MinimumSize {
		t.Fatalf("IHL = %d, want %d", hdr.IHL(), header.IPv4MinimumSize)
	}
	if in.Index != header.EthernetMinimumSize+header.IPv4MinimumSize {
		t.Fatalf("Index after Decode = %d, want %d", in.Index, header.EthernetMinimumSize+header.IPv4MinimumSize)
	}
	if got := in.Payload(); len(got) != 2 || got[0] != 0xAA || got[1] != 0xBB {
		t.Fatalf("Payload = %v, want [AA BB]", got)
	}
}
