// Package conntrack implements the connection table: an indexed collection
// of active transport connections keyed by a (local_port, remote_port)
// tuple (SPEC_FULL.md §3, §2 "Connection table"). It is backed by
// google/btree's generic BTreeG, giving ordered iteration over active
// connections (useful for a netstat-style dump) instead of a bare map, the
// way gvisor reaches for an ordered container over its transport endpoint
// tables.
package conntrack

import (
	"sync"

	"github.com/google/btree"
)

// PortPair is the key every TCP and UDP connection table is indexed by.
type PortPair struct {
	Local  uint16
	Remote uint16
}

func less(a, b PortPair) bool {
	if a.Local != b.Local {
		return a.Local < b.Local
	}
	return a.Remote < b.Remote
}

type entry[V any] struct {
	key   PortPair
	value V
}

// Table is a concurrency-safe, ordered (local_port, remote_port) -> *V
// index. V is a pointer type (e.g. *tcpConnection): entries are looked up
// and mutated through the same pointer a caller holds, matching the
// original kernel's connection_handler<T>, which hands out long-lived
// references into its own storage.
type Table[V any] struct {
	mu   sync.RWMutex
	tree *btree.BTreeG[entry[V]]
}

// New creates an empty connection table.
func New[V any]() *Table[V] {
	return &Table[V]{
		tree: btree.NewG(32, func(a, b entry[V]) bool {
			return less(a.key, b.key)
		}),
	}
}

// Insert adds or replaces the connection for key.
func (t *Table[V]) Insert(key PortPair, value V) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.tree.ReplaceOrInsert(entry[V]{key: key, value: value})
}

// Get looks up the connection for (local, remote). For an incoming segment
// the decode paths call Get(target_port, source_port): the packet's target
// is our local port and the packet's source is our remote.
func (t *Table[V]) Get(local, remote uint16) (V, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	e, ok := t.tree.Get(entry[V]{key: PortPair{Local: local, Remote: remote}})
	return e.value, ok
}

// Delete removes the connection for key, if present.
func (t *Table[V]) Delete(key PortPair) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.tree.Delete(entry[V]{key: key})
}

// Len returns the number of active connections.
func (t *Table[V]) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.tree.Len()
}

// Ascend visits every connection in (local_port, remote_port) order,
// stopping early if fn returns false.
func (t *Table[V]) Ascend(fn func(key PortPair, value V) bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	t.tree.Ascend(func(e entry[V]) bool {
		return fn(e.key, e.value)
	})
}
