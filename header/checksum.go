// Package header provides byte-slice wrapper types for decoding and
// encoding the protocol headers this stack understands (Ethernet, IPv4,
// ICMPv4, UDP, TCP), in the style of gvisor's pkg/tcpip/header: a thin
// named-slice type per header with field accessors computed from fixed
// byte offsets.
package header

// Checksum computes the Internet checksum (RFC 1071) of buf, folding in an
// initial partial sum (e.g. a pseudo-header sum already accumulated by the
// caller). It does not invert the result and does not apply zero-avoidance;
// callers finish with Finalize.
func Checksum(buf []byte, initial uint32) uint32 {
	v := initial
	l := len(buf)
	if l&1 != 0 {
		l--
		v += uint32(buf[l]) << 8
	}
	for i := 0; i < l; i += 2 {
		v += (uint32(buf[i]) << 8) + uint32(buf[i+1])
	}
	return v
}

// Finalize folds carries into a 16-bit checksum and returns its one's
// complement, per SPEC_FULL.md §4.3/§4.5.7 ("one's-complement sum ...
// final bitwise-NOT stored").
func Finalize(sum uint32) uint16 {
	for sum>>16 != 0 {
		sum = (sum & 0xFFFF) + (sum >> 16)
	}
	return ^uint16(sum)
}

// FinalizeZeroAvoiding is Finalize with RFC 768/793 zero-avoidance applied:
// a computed checksum of zero is stored as 0xFFFF so it is never confused
// with "checksum absent".
func FinalizeZeroAvoiding(sum uint32) uint16 {
	c := Finalize(sum)
	if c == 0 {
		return 0xFFFF
	}
	return c
}
