// Package memtable provides the write-facing wrapper around the
// index-addressed red-black tree: it tracks the accumulated byte size
// used to decide when a flush is due, and owns the flush-scratch
// buffer so the flush pipeline never allocates per record.
package memtable

import "github.com/flashcore/lsmkv/rbtree"

// BufferCapacity is the size of the flush-scratch buffer, reused
// across every flush this memtable performs.
const BufferCapacity = 1 << 16

// keySize is sizeof(key) in the on-disk record: an int64.
const keySize = 8

// Memtable wraps an rbtree.Tree plus accounting and scratch space used
// only by the flush pipeline.
type Memtable struct {
	tree      *rbtree.Tree
	totalSize int
	scratch   []byte
}

// New binds nodes and values arenas to a fresh memtable.
func New(nodes []rbtree.Node, values []rbtree.Value, ownsValues bool) *Memtable {
	return &Memtable{
		tree:    rbtree.New(nodes, values, ownsValues),
		scratch: make([]byte, 0, BufferCapacity),
	}
}

// Put forwards to the tree and, on success, adds sizeof(key)+length to
// total_size. It refuses insertion once the arena has only its
// reserved sentinel slot left, even if the tree itself could still
// squeeze in one more node.
func (m *Memtable) Put(key int64, value []byte, length int32) bool {
	if m.tree.NextFree() >= m.tree.Capacity()-1 {
		return false
	}
	if !m.tree.Put(key, value, length) {
		return false
	}
	m.totalSize += keySize + int(length)
	return true
}

// Get forwards to the tree.
func (m *Memtable) Get(key int64) (rbtree.Value, bool) {
	return m.tree.Get(key)
}

// Delete forwards to the tree's logical delete.
func (m *Memtable) Delete(key int64) bool {
	return m.tree.Delete(key)
}

// TotalSize reports the running byte-size estimate; the caller
// chooses what threshold triggers a flush.
func (m *Memtable) TotalSize() int {
	return m.totalSize
}

// Tree exposes the underlying tree for the flush pipeline's
// traversal.
func (m *Memtable) Tree() *rbtree.Tree {
	return m.tree
}

// Scratch returns the reusable flush-staging buffer, reset to zero
// length but retaining its backing array, so repeated flushes do not
// allocate.
func (m *Memtable) Scratch() []byte {
	return m.scratch[:0]
}

// Reset clears the tree (freeing owned value buffers) and the size
// counter. It does not touch the scratch buffer.
func (m *Memtable) Reset() {
	m.tree.Reset()
	m.totalSize = 0
}
