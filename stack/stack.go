// Package stack wires the link, network and transport layers together
// into the single entry point a driver or test harness drives: decode an
// incoming frame, dispatch it by IP protocol number to the matching
// transport layer, and provide the handful of collaborator interfaces
// (select_interface, reset) SPEC_FULL.md §6 describes as consumed by the
// out-of-scope syscall shim and driver. Grounded on gvisor's
// `pkg/tcpip/stack.Stack`, which plays the identical "own every layer,
// dispatch by protocol number" role for a much larger protocol matrix.
package stack

import (
	"github.com/sirupsen/logrus"

	"github.com/relaykernel/netstack"
	"github.com/relaykernel/netstack/buffer"
	"github.com/relaykernel/netstack/config"
	"github.com/relaykernel/netstack/header"
	"github.com/relaykernel/netstack/link/ethernet"
	"github.com/relaykernel/netstack/network/ip"
	"github.com/relaykernel/netstack/transport/icmp"
	"github.com/relaykernel/netstack/transport/tcp"
	"github.com/relaykernel/netstack/transport/udp"
	"github.com/relaykernel/netstack/waiter"
)

// Stack owns every interface and transport layer in one process, and is
// the ip.Demux implementation network/ip dispatches decoded datagrams
// through — the seam that lets network/ip avoid importing any transport
// package.
type Stack struct {
	IRQ  *waiter.SoftIRQ
	ICMP *icmp.Layer
	UDP  *udp.Layer
	TCP  *tcp.Layer

	log        *logrus.Logger
	interfaces map[string]*ip.Interface
}

// New builds a Stack from cfg, sharing a single softirq worker across every
// connection waiter the TCP layer creates. log may be nil.
func New(cfg config.Config, log *logrus.Logger) *Stack {
	irq := waiter.NewSoftIRQ(64)
	return &Stack{
		IRQ:        irq,
		ICMP:       icmp.NewLayer(log),
		UDP:        udp.NewLayerFromConfig(log, cfg.Socket),
		TCP:        tcp.NewLayerFromConfig(irq, log, cfg),
		log:        log,
		interfaces: make(map[string]*ip.Interface),
	}
}

// AddInterface registers iface under its Name so SelectInterface can find
// it later.
func (s *Stack) AddInterface(iface *ip.Interface) {
	s.interfaces[iface.Name] = iface
}

// SelectInterface returns the interface registered under name, the
// collaborator spec.md §6 calls select_interface.
func (s *Stack) SelectInterface(name string) (*ip.Interface, bool) {
	iface, ok := s.interfaces[name]
	return iface, ok
}

// Reset clears every transport layer's connection table and reseeds its
// local-port counter, the Go counterpart of the original kernel's
// per-transport init_layer() (SPEC_FULL.md "Supplemented features").
func (s *Stack) Reset() {
	s.UDP.Reset()
	s.TCP.Reset()
}

// Close stops the stack's softirq worker. Safe to call once.
func (s *Stack) Close() {
	s.IRQ.Stop()
}

// DeliverIncoming is the ingress entry point a driver (or link/testlink)
// hands a raw frame to: link-layer decode, then IP decode, then dispatch
// by protocol number through DeliverIP (SPEC_FULL.md §2 "Data flow,
// ingress").
func (s *Stack) DeliverIncoming(iface *ip.Interface, frame []byte) {
	pkt := buffer.NewKernel(len(frame))
	copy(pkt.Data, frame)

	ethHdr := ethernet.Decode(pkt)
	if ethHdr.DestinationAddress() != iface.MAC {
		if s.log != nil {
			s.log.WithField("interface", iface.Name).Trace("stack: dropping frame not addressed to us")
		}
		return
	}
	if ethHdr.Type() != header.EtherTypeIPv4 {
		if s.log != nil {
			s.log.WithField("ethertype", ethHdr.Type()).Trace("stack: dropping non-IPv4 frame")
		}
		return
	}

	ipHdr := ip.Decode(pkt)
	s.DeliverIP(iface, pkt, ipHdr)
}

// DeliverIP implements ip.Demux: dispatch a decoded IPv4 datagram to the
// transport layer named by its protocol field.
func (s *Stack) DeliverIP(iface *ip.Interface, pkt *buffer.Packet, ipHdr header.IPv4) {
	switch ipHdr.Protocol() {
	case netstack.ProtocolICMP:
		s.ICMP.Decode(iface, pkt, ipHdr)
	case netstack.ProtocolUDP:
		s.UDP.Decode(iface, pkt, ipHdr)
	case netstack.ProtocolTCP:
		s.TCP.Decode(iface, pkt, ipHdr)
	default:
		if s.log != nil {
			s.log.WithField("protocol", ipHdr.Protocol()).Debug("stack: dropping datagram for unsupported protocol")
		}
	}
}

var _ ip.Demux = (*Stack)(nil)
