package header

import "encoding/binary"

const (
	udpSrcPort  = 0
	udpDstPort  = 2
	udpLength   = 4
	udpChecksum = 6
)

// UDPMinimumSize is the size of a UDP header.
const UDPMinimumSize = 8

// UDPFields describes a UDP header to be encoded.
type UDPFields struct {
	SrcPort uint16
	DstPort uint16
	Length  uint16
}

// UDP is a UDP header stored in a byte slice.
type UDP []byte

// SourcePort returns the "source port" field.
func (b UDP) SourcePort() uint16 { return binary.BigEndian.Uint16(b[udpSrcPort:]) }

// DestinationPort returns the "destination port" field.
func (b UDP) DestinationPort() uint16 { return binary.BigEndian.Uint16(b[udpDstPort:]) }

// Length returns the "length" field — this includes the 8-byte UDP header
// itself, per RFC 768. SPEC_FULL.md scenario 2 asserts on this observable
// directly.
func (b UDP) Length() uint16 { return binary.BigEndian.Uint16(b[udpLength:]) }

// Checksum returns the checksum field.
func (b UDP) Checksum() uint16 { return binary.BigEndian.Uint16(b[udpChecksum:]) }

// SetSourcePort sets the "source port" field.
func (b UDP) SetSourcePort(p uint16) { binary.BigEndian.PutUint16(b[udpSrcPort:], p) }

// SetDestinationPort sets the "destination port" field.
func (b UDP) SetDestinationPort(p uint16) { binary.BigEndian.PutUint16(b[udpDstPort:], p) }

// SetLength sets the "length" field.
func (b UDP) SetLength(l uint16) { binary.BigEndian.PutUint16(b[udpLength:], l) }

// SetChecksum sets the checksum field.
func (b UDP) SetChecksum(v uint16) { binary.BigEndian.PutUint16(b[udpChecksum:], v) }

// Encode fills in every field of the UDP header except the checksum.
func (b UDP) Encode(f *UDPFields) {
	b.SetSourcePort(f.SrcPort)
	b.SetDestinationPort(f.DstPort)
	b.SetLength(f.Length)
	b.SetChecksum(0)
}

// PseudoHeaderSum accumulates the IPv4 pseudo-header used by the UDP
// checksum: source IP + dest IP + zero byte + protocol byte + UDP length
// (SPEC_FULL.md §4.4).
func PseudoHeaderSum(src, dst [4]byte, protocol uint8, length uint16) uint32 {
	sum := Checksum(src[:], 0)
	sum = Checksum(dst[:], sum)
	sum += uint32(protocol)
	sum += uint32(length)
	return sum
}
