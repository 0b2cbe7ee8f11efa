// Package sstable holds the in-memory handle to one segment's sparse
// block index: a pair of parallel arrays mapping a block-boundary key
// to the offset, in the segment's uncompressed record stream, of the
// first record at or after that boundary. This is a read-path hook
// only — nothing in this module serializes it (see SPEC_FULL.md §13.3
// on segment_index_{id}.ser).
package sstable

// Descriptor is the append-only sparse index built during a flush.
// Keys and Offsets are kept as parallel slices, one entry per emitted
// block boundary, rather than a single slice of structs, mirroring
// the (key, stream-offset) pairing the on-disk format would use if this
// were ever persisted.
type Descriptor struct {
	Keys    []int64
	Offsets []int64
}

// NewDescriptor allocates a descriptor sized for the expected block
// count (typically total_size/BLOCK_SIZE); capacity is only a hint,
// Record still grows the slices past it if needed.
func NewDescriptor(expectedBlocks int) *Descriptor {
	if expectedBlocks < 0 {
		expectedBlocks = 0
	}
	return &Descriptor{
		Keys:    make([]int64, 0, expectedBlocks),
		Offsets: make([]int64, 0, expectedBlocks),
	}
}

// Record appends one (key, offset) entry for a newly crossed block
// boundary.
func (d *Descriptor) Record(key int64, offset int64) {
	d.Keys = append(d.Keys, key)
	d.Offsets = append(d.Offsets, offset)
}

// Len reports the number of recorded block-boundary entries.
func (d *Descriptor) Len() int { return len(d.Keys) }
