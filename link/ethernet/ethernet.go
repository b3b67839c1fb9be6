// Package ethernet implements the link layer's narrow slice of SPEC_FULL.md
// §6: decode the frame header and reserve room for it on egress. Handing
// the assembled frame to the driver happens in network/ip's FinalizePacket
// through ip.Interface.Write. Driver I/O itself and ARP resolution are
// external collaborators (SPEC_FULL.md §1 Out of scope); this package only
// speaks the frame format.
package ethernet

import (
	"github.com/relaykernel/netstack"
	"github.com/relaykernel/netstack/buffer"
	"github.com/relaykernel/netstack/header"
)

// Decode tags the link layer and advances past the Ethernet header,
// returning the parsed header for the network layer to inspect.
func Decode(pkt *buffer.Packet) header.Ethernet {
	pkt.SetTag(buffer.LayerLink)
	hdr := header.Ethernet(pkt.Data[pkt.Index : pkt.Index+header.EthernetMinimumSize])
	pkt.Advance(header.EthernetMinimumSize)
	return hdr
}

// Reserve tags the link layer on an egress packet and writes its header
// with EtherType IPv4, returning the written header.
func Reserve(pkt *buffer.Packet, src, dst netstack.LinkAddress) header.Ethernet {
	pkt.SetTag(buffer.LayerLink)
	hdr := header.Ethernet(pkt.Push(header.EthernetMinimumSize))
	hdr.Encode(&header.EthernetFields{
		SrcAddr: src,
		DstAddr: dst,
		Type:    header.EtherTypeIPv4,
	})
	return hdr
}
