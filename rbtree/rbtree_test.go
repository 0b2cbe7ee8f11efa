package rbtree

import (
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func newArena(capacity int) ([]Node, []Value) {
	return make([]Node, capacity), make([]Value, capacity)
}

func TestEmptyTree(t *testing.T) {
	nodes, values := newArena(16)
	tr := New(nodes, values, false)

	if tr.Len() != 0 {
		t.Fatalf("expected length 0, got %d", tr.Len())
	}
	if _, ok := tr.Get(1); ok {
		t.Fatalf("expected not found in empty tree")
	}
}

func TestPutAndGetSingle(t *testing.T) {
	nodes, values := newArena(16)
	tr := New(nodes, values, false)

	if !tr.Put(10, []byte("ten"), 3) {
		t.Fatalf("put failed")
	}

	v, ok := tr.Get(10)
	if !ok || string(v.Bytes) != "ten" {
		t.Fatalf("expected (ten,true), got (%v,%v)", v, ok)
	}
	if tr.nodes[tr.rootIdx].clr != black {
		t.Fatalf("first node must be black")
	}
}

// S1 from spec.md's concrete scenarios.
func TestScenarioS1(t *testing.T) {
	nodes, values := newArena(128)
	tr := New(nodes, values, false)

	tr.Put(1, []byte("a"), 1)
	tr.Put(2, []byte("b"), 1)
	tr.Put(3, []byte("c"), 1)

	if v, ok := tr.Get(2); !ok || string(v.Bytes) != "b" {
		t.Fatalf("expected b, got %v %v", v, ok)
	}

	if !tr.Delete(2) {
		t.Fatalf("delete should succeed")
	}
	if _, ok := tr.Get(2); ok {
		t.Fatalf("key 2 should be absent after delete")
	}

	if v, ok := tr.Get(1); !ok || string(v.Bytes) != "a" {
		t.Fatalf("key 1 should still be a, got %v %v", v, ok)
	}
	if v, ok := tr.Get(3); !ok || string(v.Bytes) != "c" {
		t.Fatalf("key 3 should still be c, got %v %v", v, ok)
	}
}

// The traversal must expose tombstones as live entries with the -1
// length sentinel, so a structural comparison is the clearest way to
// pin down the exact shape flush relies on.
func TestAllTraversalShape(t *testing.T) {
	nodes, values := newArena(16)
	tr := New(nodes, values, false)
	tr.Put(3, []byte("c"), 1)
	tr.Put(1, []byte("a"), 1)
	tr.Put(2, []byte("b"), 1)
	tr.Delete(2)

	var got []Entry
	for e := range tr.All() {
		got = append(got, e)
	}

	want := []Entry{
		{Key: 1, Value: Value{Bytes: []byte("a"), Length: 1}, Tombstone: false},
		{Key: 2, Value: Value{Bytes: nil, Length: -1}, Tombstone: true},
		{Key: 3, Value: Value{Bytes: []byte("c"), Length: 1}, Tombstone: false},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("traversal mismatch (-want +got):\n%s", diff)
	}
}

func TestIdempotentDelete(t *testing.T) {
	nodes, values := newArena(16)
	tr := New(nodes, values, false)
	tr.Put(1, []byte("a"), 1)

	if !tr.Delete(1) {
		t.Fatalf("first delete should succeed")
	}
	if tr.Delete(1) {
		t.Fatalf("second delete should fail")
	}
	if _, ok := tr.Get(1); ok {
		t.Fatalf("key should be absent")
	}
}

func TestOverwritePreservesStructure(t *testing.T) {
	nodes, values := newArena(16)
	tr := New(nodes, values, false)
	tr.Put(5, []byte("first"), 5)
	rootBefore := tr.rootIdx
	lenBefore := tr.Len()

	tr.Put(5, []byte("second"), 6)

	if tr.rootIdx != rootBefore || tr.Len() != lenBefore {
		t.Fatalf("overwrite must not change tree structure")
	}
	v, ok := tr.Get(5)
	if !ok || string(v.Bytes) != "second" {
		t.Fatalf("expected second, got %v %v", v, ok)
	}
}

// checkRedBlackInvariants walks every root-to-null path and verifies invariant 4
// from spec.md §8: root black, no red-red, equal black heights.
func checkRedBlackInvariants(t *testing.T, tr *Tree) {
	t.Helper()
	if tr.rootIdx == 0 {
		return
	}
	if tr.nodes[tr.rootIdx].clr != black {
		t.Fatalf("root must be black")
	}

	var walk func(idx int) int
	walk = func(idx int) int {
		if idx == 0 {
			return 1
		}
		n := &tr.nodes[idx]
		if n.clr == red {
			if tr.isRed(n.leftIdx) || tr.isRed(n.rightIdx) {
				t.Fatalf("red node %d has a red child", idx)
			}
		}
		lh := walk(n.leftIdx)
		rh := walk(n.rightIdx)
		if lh != rh {
			t.Fatalf("unequal black heights at node %d: left=%d right=%d", idx, lh, rh)
		}
		if n.clr == black {
			return lh + 1
		}
		return lh
	}
	walk(tr.rootIdx)
}

// S2 from spec.md: ascending insert of 128 keys must stay red-black
// valid, and depth must stay within 2*log2(129).
func TestScenarioS2(t *testing.T) {
	nodes, values := newArena(129)
	tr := New(nodes, values, false)

	for i := int64(1); i <= 128; i++ {
		if !tr.Put(i, nil, 0) {
			t.Fatalf("put %d failed", i)
		}
	}

	checkRedBlackInvariants(t, tr)

	var maxDepth func(idx int, depth int) int
	maxDepth = func(idx int, depth int) int {
		if idx == 0 {
			return depth
		}
		n := &tr.nodes[idx]
		l := maxDepth(n.leftIdx, depth+1)
		r := maxDepth(n.rightIdx, depth+1)
		if l > r {
			return l
		}
		return r
	}
	if d := maxDepth(tr.rootIdx, 0); d > 16 {
		t.Fatalf("tree too deep: %d", d)
	}
}

// S3 from spec.md: scrambled inserts, then overwrite every third key.
func TestScenarioS3(t *testing.T) {
	nodes, values := newArena(129)
	tr := New(nodes, values, true)

	for i := int64(0); i < 128; i++ {
		key := (i * 37) ^ 0x5A5A
		tr.Put(key, []byte("val"), 3)
	}
	checkRedBlackInvariants(t, tr)

	for i := int64(0); i < 128; i += 3 {
		key := (i * 37) ^ 0x5A5A
		if !tr.Put(key, []byte("val_i_updated"), 13) {
			t.Fatalf("overwrite of %d failed", key)
		}
	}

	for i := int64(0); i < 128; i++ {
		key := (i * 37) ^ 0x5A5A
		v, ok := tr.Get(key)
		if !ok {
			t.Fatalf("key %d missing", key)
		}
		if i%3 == 0 {
			if string(v.Bytes) != "val_i_updated" {
				t.Fatalf("key %d should be updated, got %q", key, v.Bytes)
			}
		} else if string(v.Bytes) != "val" {
			t.Fatalf("key %d should be untouched, got %q", key, v.Bytes)
		}
	}
}

// Invariant 5: an in-order walk emits keys in strictly ascending order.
func TestInOrderIsSorted(t *testing.T) {
	nodes, values := newArena(2049)
	tr := New(nodes, values, false)

	seen := map[int64]bool{}
	for i := 0; i < 2000; i++ {
		k := int64(rand.Intn(100000))
		if seen[k] {
			continue
		}
		seen[k] = true
		tr.Put(k, nil, 0)
	}

	var prev int64 = -1 << 62
	count := 0
	for e := range tr.All() {
		if e.Key <= prev {
			t.Fatalf("in-order walk out of order: %d after %d", e.Key, prev)
		}
		prev = e.Key
		count++
	}
	if count != len(seen) {
		t.Fatalf("expected %d entries, got %d", len(seen), count)
	}
}

func TestInOrderEarlyStop(t *testing.T) {
	nodes, values := newArena(101)
	tr := New(nodes, values, false)
	for i := int64(0); i < 100; i++ {
		tr.Put(i, nil, 0)
	}

	count := 0
	for range tr.All() {
		count++
		if count == 10 {
			break
		}
	}
	if count != 10 {
		t.Fatalf("expected early stop at 10, got %d", count)
	}
}

func TestCapacityExceededNoPartialMutation(t *testing.T) {
	nodes, values := newArena(3) // slot 0 reserved, 2 usable
	tr := New(nodes, values, false)

	if !tr.Put(1, nil, 0) {
		t.Fatalf("first put should fit")
	}
	if !tr.Put(2, nil, 0) {
		t.Fatalf("second put should fit")
	}
	lenBefore := tr.Len()
	if tr.Put(3, nil, 0) {
		t.Fatalf("third put should fail: arena full")
	}
	if tr.Len() != lenBefore {
		t.Fatalf("failed put must not mutate length")
	}
}

// Ownership: the tree must not alias caller memory when it owns
// values, and must alias it when it does not (spec §9 "Value
// ownership flag", property 3).
func TestValueOwnershipCopyVsBorrow(t *testing.T) {
	t.Run("owned", func(t *testing.T) {
		nodes, values := newArena(4)
		tr := New(nodes, values, true)
		buf := []byte("hello")
		tr.Put(1, buf, 5)
		buf[0] = 'X'

		v, _ := tr.Get(1)
		if string(v.Bytes) != "hello" {
			t.Fatalf("owned tree must not alias caller buffer, got %q", v.Bytes)
		}
	})

	t.Run("borrowed", func(t *testing.T) {
		nodes, values := newArena(4)
		tr := New(nodes, values, false)
		buf := []byte("hello")
		tr.Put(1, buf, 5)
		buf[0] = 'X'

		v, _ := tr.Get(1)
		if string(v.Bytes) != "Xello" {
			t.Fatalf("borrowed tree should alias caller buffer, got %q", v.Bytes)
		}
	})
}

func TestDeleteClearsValueSlot(t *testing.T) {
	nodes, values := newArena(4)
	tr := New(nodes, values, true)
	tr.Put(1, []byte("payload"), 7)
	tr.Delete(1)

	if tr.values[1].Bytes != nil {
		t.Fatalf("delete must clear owned value buffer")
	}
	if tr.values[1].Length != -1 {
		t.Fatalf("tombstoned slot must carry length sentinel -1, got %d", tr.values[1].Length)
	}
}

func TestReset(t *testing.T) {
	nodes, values := newArena(16)
	tr := New(nodes, values, true)
	for i := int64(0); i < 10; i++ {
		tr.Put(i, []byte("x"), 1)
	}

	tr.Reset()

	if tr.Len() != 0 || tr.NextFree() != 1 || tr.RootIdx() != 1 {
		t.Fatalf("reset must restore length=0, next_free=1, root_idx=1")
	}
	for i := 1; i < len(values); i++ {
		if values[i].Bytes != nil {
			t.Fatalf("reset must free owned value slot %d", i)
		}
	}

	if !tr.Put(42, []byte("y"), 1) {
		t.Fatalf("tree must be usable after reset")
	}
	if v, ok := tr.Get(42); !ok || string(v.Bytes) != "y" {
		t.Fatalf("expected y after reset+put, got %v %v", v, ok)
	}
}

func TestRandomInsertAndGet(t *testing.T) {
	nodes, values := newArena(2001)
	tr := New(nodes, values, false)
	ref := map[int64]int64{}

	for i := 0; i < 1500; i++ {
		k := int64(rand.Intn(5000))
		v := int64(rand.Intn(99999))
		if ref[k] == 0 {
			if !tr.Put(k, []byte{byte(v)}, 1) {
				continue
			}
		} else {
			tr.Put(k, []byte{byte(v)}, 1)
		}
		ref[k] = v
		checkRedBlackInvariants(t, tr)
	}

	for k, v := range ref {
		got, ok := tr.Get(k)
		if !ok || got.Bytes[0] != byte(v) {
			t.Fatalf("bad value for key %d: got %v want %d", k, got, byte(v))
		}
	}
}
