package header

import (
	"encoding/binary"

	"github.com/relaykernel/netstack"
)

const (
	ethDst  = 0
	ethSrc  = 6
	ethType = 12
)

// EthernetMinimumSize is the size of an Ethernet header with no 802.1Q tag.
const EthernetMinimumSize = 14

// EthernetFields describes a frame header to be encoded.
type EthernetFields struct {
	SrcAddr netstack.LinkAddress
	DstAddr netstack.LinkAddress
	Type    uint16
}

// Ethernet is an Ethernet frame header stored in a byte slice.
type Ethernet []byte

// SourceAddress returns the frame's source MAC.
func (b Ethernet) SourceAddress() netstack.LinkAddress {
	var a netstack.LinkAddress
	copy(a[:], b[ethSrc:ethSrc+6])
	return a
}

// DestinationAddress returns the frame's destination MAC.
func (b Ethernet) DestinationAddress() netstack.LinkAddress {
	var a netstack.LinkAddress
	copy(a[:], b[ethDst:ethDst+6])
	return a
}

// Type returns the frame's EtherType field.
func (b Ethernet) Type() uint16 {
	return binary.BigEndian.Uint16(b[ethType:])
}

// Encode fills in every field of the Ethernet header.
func (b Ethernet) Encode(f *EthernetFields) {
	copy(b[ethDst:ethDst+6], f.DstAddr[:])
	copy(b[ethSrc:ethSrc+6], f.SrcAddr[:])
	binary.BigEndian.PutUint16(b[ethType:], f.Type)
}

// EtherTypeIPv4 is the EtherType value for an IPv4 payload.
const EtherTypeIPv4 = 0x0800
