// Package bloom implements the fixed-size, double-hashed Bloom filter
// used to skip a segment on a definite miss. Membership uses double
// hashing over the SplitMix64 finalizer: no per-key allocation, no
// table lookups, just arithmetic over a bit array.
//
// The constants below are load-bearing, not decorative: §9 of the
// core spec requires them to match exactly if a filter built by one
// process must be readable (bit-for-bit) by another.
package bloom

import "github.com/bits-and-blooms/bitset"

// K is the default probe count used when flushing a segment.
const K = 6

const splitMix64Increment = 0x9E3779B97F4A7C15
const splitMix64Mix1 = 0xBF58476D1CE4E5B9
const splitMix64Mix2 = 0x94D049BB133111EB
const doubleHashSalt = 0xD6E8FEB86659FD93

func mix64(x uint64) uint64 {
	x += splitMix64Increment
	x = (x ^ (x >> 30)) * splitMix64Mix1
	x = (x ^ (x >> 27)) * splitMix64Mix2
	return x ^ (x >> 31)
}

// Filter is a fixed-size Bloom filter over signed 64-bit keys.
type Filter struct {
	bits   *bitset.BitSet
	nbytes uint64
	k      uint32
}

// New allocates a filter of nbytes bytes (nbytes*8 bits) using k
// probes per operation.
func New(nbytes uint64, k uint32) *Filter {
	return &Filter{
		bits:   bitset.New(uint(nbytes * 8)),
		nbytes: nbytes,
		k:      k,
	}
}

func (f *Filter) indices(key int64) (h1, h2 uint64) {
	x := uint64(key)
	return mix64(x), mix64(x ^ doubleHashSalt)
}

// Put never fails; it sets the k bits the double hash derives for key.
func (f *Filter) Put(key int64) {
	m := f.nbytes * 8
	if m == 0 {
		return
	}
	h1, h2 := f.indices(key)
	for i := uint64(0); i < uint64(f.k); i++ {
		pos := (h1 + i*h2) % m
		f.bits.Set(uint(pos))
	}
}

// Has returns false on the first missing bit; it returns true only if
// all k probed bits are set. False positives are admissible; false
// negatives must never occur.
func (f *Filter) Has(key int64) bool {
	m := f.nbytes * 8
	if m == 0 {
		return false
	}
	h1, h2 := f.indices(key)
	for i := uint64(0); i < uint64(f.k); i++ {
		pos := (h1 + i*h2) % m
		if !f.bits.Test(uint(pos)) {
			return false
		}
	}
	return true
}
