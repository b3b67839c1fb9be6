// Package buffer implements the cross-layer packet representation: an
// owned byte region with an advancing write cursor and a per-layer tag
// array, so any layer can locate its own or an earlier layer's header at
// any later point without re-parsing. See SPEC_FULL.md §4.1.
package buffer

import "github.com/mohae/deepcopy"

// Layer indices into a Packet's Tags array. A tag records the byte offset
// at which a given layer's header begins.
const (
	LayerLink = iota
	LayerNetwork
	LayerTransport
	NumLayers
)

// unsetTag marks a layer tag that has not yet been recorded.
const unsetTag = -1

// Packet is a contiguous byte region plus an advancing write cursor and a
// per-layer tag array. Its invariant: Tag(k) < Tag(k+1) <= Index for every
// assigned tag (SPEC_FULL.md §3).
//
// Ownership is exclusive: a Packet whose storage was allocated by the stack
// (Owned == true) may be cloned freely; a Packet wrapping a caller-provided
// buffer (Owned == false, the user path) must never be retained past the
// call that produced it.
type Packet struct {
	// Data is the packet's backing store.
	Data []byte

	// Index is the current write/read cursor into Data.
	Index int

	// Tags records, per layer, the offset at which that layer's header
	// begins. unsetTag until the layer assigns it.
	Tags []int

	// Owned is true for kernel-allocated storage, false for storage
	// handed in by a user-path caller.
	Owned bool
}

func newTags() []int {
	t := make([]int, NumLayers)
	for i := range t {
		t[i] = unsetTag
	}
	return t
}

// NewKernel allocates a fresh kernel-owned packet of the given total size.
func NewKernel(size int) *Packet {
	return &Packet{
		Data:  make([]byte, size),
		Tags:  newTags(),
		Owned: true,
	}
}

// NewUser wraps a caller-provided buffer. The stack never frees or retains
// this storage beyond the call that produced the Packet.
func NewUser(buf []byte) *Packet {
	return &Packet{
		Data:  buf,
		Tags:  newTags(),
		Owned: false,
	}
}

// SetTag records that layer's header begins at the current Index.
func (p *Packet) SetTag(layer int) {
	p.Tags[layer] = p.Index
}

// Tag returns the byte offset at which layer's header begins, or
// unsetTag if that layer hasn't tagged yet.
func (p *Packet) Tag(layer int) int {
	return p.Tags[layer]
}

// Header returns the bytes belonging to the given layer's header, using
// that layer's tag and the next assigned tag (or Index, if layer is the
// last one tagged so far) as bounds.
func (p *Packet) Header(layer int) []byte {
	start := p.Tags[layer]
	if start == unsetTag {
		return nil
	}
	end := p.Index
	for l := layer + 1; l < NumLayers; l++ {
		if p.Tags[l] != unsetTag {
			end = p.Tags[l]
			break
		}
	}
	return p.Data[start:end]
}

// Push reserves n bytes at the current cursor for a header write and
// advances the cursor past them, returning the reserved window.
func (p *Packet) Push(n int) []byte {
	s := p.Data[p.Index : p.Index+n]
	p.Index += n
	return s
}

// Advance moves the cursor forward by n without returning a window; used on
// decode, after a layer has read its header in place.
func (p *Packet) Advance(n int) {
	p.Index += n
}

// Rewind moves the cursor back by n, used by finalize to walk back over a
// header that was already written so checksums can be computed over it.
func (p *Packet) Rewind(n int) {
	p.Index -= n
}

// Payload returns the bytes from the current cursor to the end of the
// buffer.
func (p *Packet) Payload() []byte {
	return p.Data[p.Index:]
}

// Size returns the total backing-store length.
func (p *Packet) Size() int {
	return len(p.Data)
}

// Clone deep-copies the packet: a new backing array, a new tag slice. Used
// whenever a packet crosses a queue boundary (socket ready-queue,
// connection listener-queue) or is retransmitted, so the producer and every
// consumer hold independently-owned copies (SPEC_FULL.md §3, §9 "Packet
// ownership across queues"). The clone is always marked Owned: a queued or
// retransmitted copy is always kernel-managed storage, even if it started
// out wrapping a user buffer.
func (p *Packet) Clone() *Packet {
	dataCopy := deepcopy.Copy(p.Data).([]byte)
	tagsCopy := deepcopy.Copy(p.Tags).([]int)
	return &Packet{
		Data:  dataCopy,
		Index: p.Index,
		Tags:  tagsCopy,
		Owned: true,
	}
}
