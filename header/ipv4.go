package header

import (
	"encoding/binary"

	"github.com/relaykernel/netstack"
)

const (
	ipVersionIHL  = 0
	ipTOS         = 1
	ipTotalLen    = 2
	ipID          = 4
	ipFlagsFrag   = 6
	ipTTL         = 8
	ipProtocol    = 9
	ipChecksum    = 10
	ipSrcAddr     = 12
	ipDstAddr     = 16
)

// IPv4MinimumSize is the size of an IPv4 header with no options. Options
// are out of scope (SPEC_FULL.md Non-goals: no fragmentation/routing).
const IPv4MinimumSize = 20

// IPv4Version is the value of the version nibble for IPv4.
const IPv4Version = 4

// IPv4Fields describes an IPv4 header to be encoded.
type IPv4Fields struct {
	TotalLength uint16
	ID          uint16
	TTL         uint8
	Protocol    netstack.Protocol
	SrcAddr     netstack.Address
	DstAddr     netstack.Address
}

// IPv4 is an IPv4 header (no options) stored in a byte slice.
type IPv4 []byte

// IHL returns the header length in bytes, decoded from the IHL nibble.
func (b IPv4) IHL() int {
	return int(b[ipVersionIHL]&0x0F) * 4
}

// TotalLength returns the total datagram length, header + payload.
func (b IPv4) TotalLength() uint16 {
	return binary.BigEndian.Uint16(b[ipTotalLen:])
}

// Protocol returns the encapsulated transport protocol number.
func (b IPv4) Protocol() netstack.Protocol {
	return netstack.Protocol(b[ipProtocol])
}

// Checksum returns the header checksum field.
func (b IPv4) Checksum() uint16 {
	return binary.BigEndian.Uint16(b[ipChecksum:])
}

// SetChecksum sets the header checksum field.
func (b IPv4) SetChecksum(v uint16) {
	binary.BigEndian.PutUint16(b[ipChecksum:], v)
}

// SourceAddress returns the packet's source IP.
func (b IPv4) SourceAddress() netstack.Address {
	var a netstack.Address
	copy(a[:], b[ipSrcAddr:ipSrcAddr+4])
	return a
}

// DestinationAddress returns the packet's destination IP.
func (b IPv4) DestinationAddress() netstack.Address {
	var a netstack.Address
	copy(a[:], b[ipDstAddr:ipDstAddr+4])
	return a
}

// Encode fills in every field of a 20-byte IPv4 header (no options, no
// fragmentation).
func (b IPv4) Encode(f *IPv4Fields) {
	b[ipVersionIHL] = (IPv4Version << 4) | (IPv4MinimumSize / 4)
	b[ipTOS] = 0
	binary.BigEndian.PutUint16(b[ipTotalLen:], f.TotalLength)
	binary.BigEndian.PutUint16(b[ipID:], f.ID)
	binary.BigEndian.PutUint16(b[ipFlagsFrag:], 0)
	b[ipTTL] = f.TTL
	b[ipProtocol] = byte(f.Protocol)
	b.SetChecksum(0)
	copy(b[ipSrcAddr:ipSrcAddr+4], f.SrcAddr[:])
	copy(b[ipDstAddr:ipDstAddr+4], f.DstAddr[:])
}

// CalculateChecksum computes the header-only checksum (IPv4 has no
// pseudo-header; the checksum covers only the header itself).
func (b IPv4) CalculateChecksum() uint16 {
	saved := b.Checksum()
	b.SetChecksum(0)
	sum := Checksum(b[:b.IHL()], 0)
	b.SetChecksum(saved)
	return Finalize(sum)
}
