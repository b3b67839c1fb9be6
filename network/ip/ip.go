// Package ip implements the network layer's narrow slice of SPEC_FULL.md
// §6: decode the IPv4 header, prepare an outgoing packet's header and
// checksum, and hand the finished datagram to the interface. IP
// fragmentation, routing and ARP are external collaborators (SPEC_FULL.md
// §1 Out of scope); an Interface here carries only a static neighbor table
// that a test harness or static configuration fills in, never a real ARP
// cache.
package ip

import (
	"github.com/relaykernel/netstack"
	"github.com/relaykernel/netstack/buffer"
	"github.com/relaykernel/netstack/header"
	"github.com/relaykernel/netstack/link/ethernet"
)

// Interface is a single network-attached interface: its own addresses, the
// driver hand-off, and a minimal neighbor table standing in for the ARP
// resolution SPEC_FULL.md explicitly scopes out.
type Interface struct {
	Name string
	MAC  netstack.LinkAddress
	IP   netstack.Address
	MTU  int

	// Write hands a finished frame to the driver. Out of scope itself
	// (SPEC_FULL.md §1 "link-layer driver I/O"); the stack only calls it.
	Write func([]byte) error

	// Neighbors is a static IP->MAC table. It is not ARP: there is no
	// resolution protocol here, only a map a test harness or a static
	// configuration populates up front.
	Neighbors map[netstack.Address]netstack.LinkAddress
}

// Resolve looks up the link address for dst, the narrow collaborator this
// package needs in place of the ARP layer SPEC_FULL.md scopes out.
func (iface *Interface) Resolve(dst netstack.Address) (netstack.LinkAddress, bool) {
	mac, ok := iface.Neighbors[dst]
	return mac, ok
}

// Descriptor carries what a transport layer knows about an outgoing
// datagram before any header exists: how much payload it needs room for,
// where it's going, and what protocol number to stamp on it.
type Descriptor struct {
	PayloadSize int
	TargetIP    netstack.Address
	Protocol    netstack.Protocol
}

var datagramID uint16

// nextID returns a monotonic IPv4 identification value. The original
// kernel's IP layer increments a single global counter per datagram sent;
// uniqueness across restarts was never a requirement it carried either.
func nextID() uint16 {
	datagramID++
	return datagramID
}

func prepare(iface *Interface, desc Descriptor) (*buffer.Packet, header.IPv4) {
	total := header.EthernetMinimumSize + header.IPv4MinimumSize + desc.PayloadSize
	pkt := buffer.NewKernel(total)

	dstMAC, ok := iface.Resolve(desc.TargetIP)
	if !ok {
		dstMAC = netstack.LinkAddress{}
	}
	ethernet.Reserve(pkt, iface.MAC, dstMAC)

	pkt.SetTag(buffer.LayerNetwork)
	hdr := header.IPv4(pkt.Push(header.IPv4MinimumSize))
	hdr.Encode(&header.IPv4Fields{
		TotalLength: uint16(header.IPv4MinimumSize + desc.PayloadSize),
		ID:          nextID(),
		TTL:         64,
		Protocol:    desc.Protocol,
		SrcAddr:     iface.IP,
		DstAddr:     desc.TargetIP,
	})

	pkt.SetTag(buffer.LayerTransport)
	return pkt, hdr
}

// KernelPreparePacket allocates a packet for a kernel-originated datagram
// (e.g. an ICMP echo reply) with the Ethernet and IPv4 headers already
// written, positioned for the transport layer to push its own header.
func KernelPreparePacket(iface *Interface, desc Descriptor) (*buffer.Packet, header.IPv4) {
	return prepare(iface, desc)
}

// UserPreparePacket allocates a packet for a datagram originated by a
// user-path send call, identically laid out to KernelPreparePacket. The two
// are kept as distinct entry points because the original kernel's
// ip_layer::prepare_packet() is called from both the kernel's own ICMP
// responder and the user-facing send() shim with different packet
// provenance, even though the header construction is the same.
func UserPreparePacket(iface *Interface, desc Descriptor) (*buffer.Packet, header.IPv4) {
	return prepare(iface, desc)
}

// FinalizePacket computes the IPv4 header checksum over the network-layer
// header and hands the completed frame to the interface's driver. It never
// touches pkt.Index: by the time a transport layer calls this, Index has
// already advanced past its own header, and IP's checksum only covers the
// region Header(LayerNetwork) already bounds via the transport layer's tag.
func FinalizePacket(iface *Interface, pkt *buffer.Packet) error {
	hdr := header.IPv4(pkt.Header(buffer.LayerNetwork))
	hdr.SetChecksum(hdr.CalculateChecksum())

	return netstack.WrapDownstream(iface.Write(pkt.Data))
}

// Decode tags the network layer and advances past the IPv4 header,
// returning the parsed header for the transport layer to inspect.
func Decode(pkt *buffer.Packet) header.IPv4 {
	pkt.SetTag(buffer.LayerNetwork)
	hdr := header.IPv4(pkt.Data[pkt.Index : pkt.Index+header.IPv4MinimumSize])
	pkt.Advance(hdr.IHL())
	return hdr
}

// Demux is implemented by the top-level stack so this package can dispatch
// a decoded datagram to its transport layer without importing
// transport/tcp, transport/udp or transport/icmp directly — keeping the
// network/ip <-> transport/* dependency edge one-directional.
type Demux interface {
	DeliverIP(iface *Interface, pkt *buffer.Packet, hdr header.IPv4)
}
