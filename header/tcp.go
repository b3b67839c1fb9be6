package header

import "encoding/binary"

const (
	tcpSrcPort  = 0
	tcpDstPort  = 2
	tcpSeqNum   = 4
	tcpAckNum   = 8
	tcpFlags    = 12
	tcpWindow   = 14
	tcpChecksum = 16
	tcpUrgent   = 18
)

// TCPMinimumSize is the size of a TCP header with no options — this stack
// never sets the options bits, so data-offset is always 5 (SPEC_FULL.md
// §4.5.1).
const TCPMinimumSize = 20

// TCPDefaultDataOffset is the data-offset value (in 32-bit words) for a
// 20-byte, option-free header.
const TCPDefaultDataOffset = TCPMinimumSize / 4

// TCPReceiveWindow is the fixed advertised receive window (SPEC_FULL.md
// §4.5.1, Non-goals: no window management beyond this fixed value).
const TCPReceiveWindow = 1024

// TCPFlags holds the flag bits of a TCP segment: data-offset in bits 15-12,
// then the control bits down to bit 0 (FIN), exactly as SPEC_FULL.md
// §4.5.1 lays them out.
type TCPFlags uint16

// Individual TCP control bits.
const (
	TCPFlagFin TCPFlags = 1 << 0
	TCPFlagSyn TCPFlags = 1 << 1
	TCPFlagRst TCPFlags = 1 << 2
	TCPFlagPsh TCPFlags = 1 << 3
	TCPFlagAck TCPFlags = 1 << 4
	TCPFlagUrg TCPFlags = 1 << 5
	TCPFlagEce TCPFlags = 1 << 6
	TCPFlagCwr TCPFlags = 1 << 7
	TCPFlagNs  TCPFlags = 1 << 8
)

// DataOffset returns the data-offset sub-field of flags, in 32-bit words.
func (f TCPFlags) DataOffset() int {
	return int(f>>12) & 0xF
}

// WithDataOffset returns flags with the data-offset sub-field set to words.
func (f TCPFlags) WithDataOffset(words int) TCPFlags {
	return (f &^ (0xF << 12)) | TCPFlags(words&0xF)<<12
}

// Has reports whether every bit in want is set.
func (f TCPFlags) Has(want TCPFlags) bool {
	return f&want == want
}

// TCPFields describes a TCP header to be encoded.
type TCPFields struct {
	SrcPort    uint16
	DstPort    uint16
	SeqNum     uint32
	AckNum     uint32
	Flags      TCPFlags
	WindowSize uint16
}

// TCP is a TCP segment header (no options) stored in a byte slice.
type TCP []byte

// SourcePort returns the source port field.
func (b TCP) SourcePort() uint16 { return binary.BigEndian.Uint16(b[tcpSrcPort:]) }

// DestinationPort returns the destination port field.
func (b TCP) DestinationPort() uint16 { return binary.BigEndian.Uint16(b[tcpDstPort:]) }

// SequenceNumber returns the sequence number field.
func (b TCP) SequenceNumber() uint32 { return binary.BigEndian.Uint32(b[tcpSeqNum:]) }

// AckNumber returns the acknowledgement number field.
func (b TCP) AckNumber() uint32 { return binary.BigEndian.Uint32(b[tcpAckNum:]) }

// Flags returns the flags field (data-offset + control bits).
func (b TCP) Flags() TCPFlags { return TCPFlags(binary.BigEndian.Uint16(b[tcpFlags:])) }

// Checksum returns the checksum field.
func (b TCP) Checksum() uint16 { return binary.BigEndian.Uint16(b[tcpChecksum:]) }

// SetSequenceNumber sets the sequence number field.
func (b TCP) SetSequenceNumber(v uint32) { binary.BigEndian.PutUint32(b[tcpSeqNum:], v) }

// SetAckNumber sets the acknowledgement number field.
func (b TCP) SetAckNumber(v uint32) { binary.BigEndian.PutUint32(b[tcpAckNum:], v) }

// SetFlags sets the flags field.
func (b TCP) SetFlags(f TCPFlags) { binary.BigEndian.PutUint16(b[tcpFlags:], uint16(f)) }

// SetChecksum sets the checksum field.
func (b TCP) SetChecksum(v uint16) { binary.BigEndian.PutUint16(b[tcpChecksum:], v) }

// DataOffset returns the header length in bytes.
func (b TCP) DataOffset() int { return b.Flags().DataOffset() * 4 }

// Encode fills in every field of a 20-byte, option-free TCP header except
// the checksum.
func (b TCP) Encode(f *TCPFields) {
	binary.BigEndian.PutUint16(b[tcpSrcPort:], f.SrcPort)
	binary.BigEndian.PutUint16(b[tcpDstPort:], f.DstPort)
	b.SetSequenceNumber(f.SeqNum)
	b.SetAckNumber(f.AckNum)
	b.SetFlags(f.Flags.WithDataOffset(TCPDefaultDataOffset))
	binary.BigEndian.PutUint16(b[tcpWindow:], f.WindowSize)
	b.SetChecksum(0)
	binary.BigEndian.PutUint16(b[tcpUrgent:], 0)
}
