// Package netstack holds the address and protocol types shared by every
// layer of the stack: the buffer, header, transport and network packages
// all import this package instead of redeclaring these primitives.
package netstack

import "fmt"

// Address is an IPv4 address in network byte order.
type Address [4]byte

// String implements fmt.Stringer.
func (a Address) String() string {
	return fmt.Sprintf("%d.%d.%d.%d", a[0], a[1], a[2], a[3])
}

// LinkAddress is an Ethernet MAC address.
type LinkAddress [6]byte

// String implements fmt.Stringer.
func (l LinkAddress) String() string {
	return fmt.Sprintf("%02x:%02x:%02x:%02x:%02x:%02x", l[0], l[1], l[2], l[3], l[4], l[5])
}

// Protocol is an IP protocol number, as carried in the IPv4 header's
// protocol field.
type Protocol uint8

// Protocol numbers consumed by this stack. See SPEC_FULL.md "Protocol
// bytes".
const (
	ProtocolICMP Protocol = 0x01
	ProtocolTCP  Protocol = 0x06
	ProtocolUDP  Protocol = 0x11
)

// BroadcastAddress is the IPv4 limited broadcast address.
var BroadcastAddress = Address{255, 255, 255, 255}
