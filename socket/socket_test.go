package socket

import (
	"testing"

	"github.com/relaykernel/netstack/buffer"
	"github.com/relaykernel/netstack/config"
	"github.com/relaykernel/netstack/waiter"
)

func TestEnqueueRespectsConfiguredDepth(t *testing.T) {
	irq := waiter.NewSoftIRQ(4)
	defer irq.Stop()

	s := NewFromConfig(1, DomainInet, TypeDgram, ProtocolUDP, irq, config.SocketConfig{ReadyQueueDepth: 2})

	s.Enqueue(buffer.NewKernel(1), false)
	s.Enqueue(buffer.NewKernel(1), false)
	s.Enqueue(buffer.NewKernel(1), false)

	for i := 0; i < 2; i++ {
		if _, ok := s.TryPop(); !ok {
			t.Fatalf("expected a queued packet at position %d", i)
		}
	}
	if _, ok := s.TryPop(); ok {
		t.Fatal("third enqueue should have been dropped at depth 2")
	}
}

func TestEnqueueClonesSoCallerMutationIsInvisible(t *testing.T) {
	irq := waiter.NewSoftIRQ(4)
	defer irq.Stop()

	s := New(1, DomainInet, TypeDgram, ProtocolUDP, irq)

	pkt := buffer.NewKernel(4)
	copy(pkt.Data, []byte{1, 2, 3, 4})
	s.Enqueue(pkt, false)
	pkt.Data[0] = 0xFF

	got, ok := s.TryPop()
	if !ok {
		t.Fatal("expected a queued packet")
	}
	if got.Data[0] != 1 {
		t.Fatalf("queued packet was mutated by caller after Enqueue: Data[0] = %d, want 1", got.Data[0])
	}
}

func TestConnectionRoundTripsTypedConnection(t *testing.T) {
	type fakeConn struct{ localPort uint16 }

	irq := waiter.NewSoftIRQ(4)
	defer irq.Stop()

	s := New(1, DomainInet, TypeStream, ProtocolTCP, irq)

	if _, ok := Connection[*fakeConn](s); ok {
		t.Fatal("expected no connection before SetConnection")
	}

	s.SetConnection(&fakeConn{localPort: 1024})

	conn, ok := Connection[*fakeConn](s)
	if !ok {
		t.Fatal("expected a connection after SetConnection")
	}
	if conn.localPort != 1024 {
		t.Fatalf("localPort = %d, want 1024", conn.localPort)
	}
}

func TestInvalidateClearsValid(t *testing.T) {
	irq := waiter.NewSoftIRQ(4)
	defer irq.Stop()

	s := New(7, DomainInet, TypeRaw, ProtocolICMP, irq)
	if !s.Valid() {
		t.Fatal("freshly created socket should be valid")
	}

	s.Invalidate()
	if s.Valid() {
		t.Fatal("socket should be invalid after Invalidate")
	}
	if s.ID != InvalidID {
		t.Fatalf("ID = %#x, want InvalidID", s.ID)
	}
}

func TestRegisterPacketRoundTrip(t *testing.T) {
	irq := waiter.NewSoftIRQ(4)
	defer irq.Stop()

	s := New(1, DomainInet, TypeDgram, ProtocolUDP, irq)
	pkt := buffer.NewKernel(1)

	fd := s.RegisterPacket(pkt)
	got, ok := s.Packet(fd)
	if !ok || got != pkt {
		t.Fatal("expected to retrieve the packet registered under fd")
	}

	s.ReleasePacket(fd)
	if _, ok := s.Packet(fd); ok {
		t.Fatal("packet should be gone after ReleasePacket")
	}
}
