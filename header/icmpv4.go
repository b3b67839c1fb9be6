package header

import "encoding/binary"

const (
	icmpType     = 0
	icmpCode     = 1
	icmpChecksum = 2
	icmpRest     = 4
)

// ICMPv4MinimumSize is the size of the fixed ICMPv4 header (type, code,
// checksum, 4-byte "rest of header").
const ICMPv4MinimumSize = 8

// ICMPv4Type is the ICMP type field, RFC 792.
type ICMPv4Type uint8

// ICMP types this stack decodes, per SPEC_FULL.md §4.3.
const (
	ICMPv4EchoReply     ICMPv4Type = 0
	ICMPv4Unreachable   ICMPv4Type = 3
	ICMPv4EchoRequest   ICMPv4Type = 8
	ICMPv4TimeExceeded  ICMPv4Type = 11
)

// ICMPv4 is an ICMPv4 message header stored in a byte slice.
type ICMPv4 []byte

// Type returns the ICMP type field.
func (b ICMPv4) Type() ICMPv4Type { return ICMPv4Type(b[icmpType]) }

// SetType sets the ICMP type field.
func (b ICMPv4) SetType(t ICMPv4Type) { b[icmpType] = byte(t) }

// Code returns the ICMP code field.
func (b ICMPv4) Code() uint8 { return b[icmpCode] }

// SetCode sets the ICMP code field.
func (b ICMPv4) SetCode(c uint8) { b[icmpCode] = c }

// Checksum returns the ICMP checksum field.
func (b ICMPv4) Checksum() uint16 {
	return binary.BigEndian.Uint16(b[icmpChecksum:])
}

// SetChecksum sets the ICMP checksum field.
func (b ICMPv4) SetChecksum(v uint16) {
	binary.BigEndian.PutUint16(b[icmpChecksum:], v)
}

// RestOfHeader returns the 4-byte "rest of header" field — for echo
// request/reply this is the identifier + sequence number pair, copied
// verbatim from request to reply (SPEC_FULL.md §4.3).
func (b ICMPv4) RestOfHeader() []byte {
	return b[icmpRest:ICMPv4MinimumSize]
}

// Ident returns the echo identifier.
func (b ICMPv4) Ident() uint16 {
	return binary.BigEndian.Uint16(b[icmpRest:])
}

// Sequence returns the echo sequence number.
func (b ICMPv4) Sequence() uint16 {
	return binary.BigEndian.Uint16(b[icmpRest+2:])
}

// SetIdent sets the echo identifier.
func (b ICMPv4) SetIdent(v uint16) {
	binary.BigEndian.PutUint16(b[icmpRest:], v)
}

// SetSequence sets the echo sequence number.
func (b ICMPv4) SetSequence(v uint16) {
	binary.BigEndian.PutUint16(b[icmpRest+2:], v)
}

// CalculateChecksum computes the ICMP checksum over the header and payload,
// zeroing the checksum field during computation as SPEC_FULL.md §4.3
// requires.
func (b ICMPv4) CalculateChecksum(payload []byte) uint16 {
	saved := b.Checksum()
	b.SetChecksum(0)
	sum := Checksum(b, 0)
	sum = Checksum(payload, sum)
	b.SetChecksum(saved)
	return Finalize(sum)
}
