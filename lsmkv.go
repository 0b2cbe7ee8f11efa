// Package lsmkv is the facade over the write path and segment
// producer described by the core spec: a memtable backed by an
// index-addressed red-black tree, a flush pipeline that drains it into
// a compressed, framed segment file, and a segment-id registry that
// survives restarts.
//
// Reads, compaction, a WAL, and concurrency arbitration are out of
// scope; a DB is a single-threaded, blocking, program-ordered object.
package lsmkv

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/flashcore/lsmkv/bloom"
	"github.com/flashcore/lsmkv/flush"
	"github.com/flashcore/lsmkv/memtable"
	"github.com/flashcore/lsmkv/rbtree"
	"github.com/flashcore/lsmkv/segmentstore"
	"github.com/flashcore/lsmkv/sstable"
)

// maxSegmentID is the modulus the segment counter wraps against.
// ErrSegmentIDExhausted is returned instead of silently wrapping.
const maxSegmentID = uint64(1) << 63

// ErrSegmentIDExhausted is returned by Flush when advancing the
// segment counter would wrap past its modulus. A conservative caller
// should treat this as fatal for the store rather than let ids repeat.
var ErrSegmentIDExhausted = errors.New("lsmkv: segment id counter exhausted")

// Segment is everything a completed flush hands back for a segment
// still resident only in memory: its sparse block index and its Bloom
// filter. Neither is persisted (see SPEC_FULL.md §13.3); both live for
// the lifetime of the process.
type Segment struct {
	ID     uint64
	Index  *sstable.Descriptor
	Filter *bloom.Filter
}

// DB binds a memtable, a segment-id registry, and the growing set of
// flushed segments rooted at one directory on disk.
type DB struct {
	dir      string
	mt       *memtable.Memtable
	counter  *segmentstore.Store
	nextID   uint64
	segments []*Segment
	report   flush.Reporter
}

// Option configures Open.
type Option func(*DB)

// WithReporter overrides the default stderr diagnostic reporter used
// by the flush pipeline.
func WithReporter(r flush.Reporter) Option {
	return func(db *DB) { db.report = r }
}

// Open binds nodes and values arenas to a fresh memtable and loads the
// segment counter from dir/segments/segment_count, creating dir and
// its segments directory if they do not already exist. The arenas are supplied by the caller, exactly as
// rbtree.New requires, so their capacity bounds how many live keys a
// single memtable generation can hold before Flush must run.
func Open(dir string, nodes []rbtree.Node, values []rbtree.Value, ownsValues bool, opts ...Option) (*DB, error) {
	if err := os.MkdirAll(filepath.Join(dir, "segments"), 0o755); err != nil {
		return nil, fmt.Errorf("lsmkv: open: %w", err)
	}

	store := segmentstore.New(filepath.Join(dir, "segments"))
	next, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("lsmkv: open: %w", err)
	}

	db := &DB{
		dir:     dir,
		mt:      memtable.New(nodes, values, ownsValues),
		counter: store,
		nextID:  next,
	}
	for _, opt := range opts {
		opt(db)
	}

	if onDisk, err := segmentstore.ListSegmentIDs(filepath.Join(dir, "segments")); err == nil && len(onDisk) > 0 {
		if highest := onDisk[len(onDisk)-1]; highest >= next {
			report := db.report
			if report == nil {
				report = defaultReporter
			}
			report("open", fmt.Errorf("lsmkv: segment %d on disk but counter only reached %d", highest, next))
		}
	}

	return db, nil
}

func defaultReporter(event string, err error) {
	fmt.Fprintf(os.Stderr, "lsmkv: %s: %v\n", event, err)
}

// Put inserts or overwrites key in the active memtable.
func (db *DB) Put(key int64, value []byte, length int32) bool {
	return db.mt.Put(key, value, length)
}

// Get looks up key in the active memtable only; flushed segments are
// not consulted (segment reads are out of scope for this module).
func (db *DB) Get(key int64) (rbtree.Value, bool) {
	return db.mt.Get(key)
}

// Delete logically removes key from the active memtable.
func (db *DB) Delete(key int64) bool {
	return db.mt.Delete(key)
}

// TotalSize reports the active memtable's running byte-size estimate.
func (db *DB) TotalSize() int {
	return db.mt.TotalSize()
}

// Segments returns the segments flushed so far, oldest first. The
// returned slice is owned by the caller; DB does not mutate it after
// returning.
func (db *DB) Segments() []*Segment {
	out := make([]*Segment, len(db.segments))
	copy(out, db.segments)
	return out
}

// Flush drains the active memtable into a new segment file and
// assigns it the next segment id. It does not reset the memtable:
// keys already put remain visible through Get until the caller's next
// Put, Delete, or explicit Reset (spec.md §8 property 1), matching
// original_source/LSM's own flush(), which never calls rb_tree_reset.
//
// Error policy (SPEC_FULL.md §13 decisions 1-2): a failure to open the
// segment file aborts before any id is consumed or persisted. Any
// later failure (compression, write, seal, close, or persisting the
// advanced counter) still advances and best-effort persists the
// in-memory counter, so a retry never reuses an id — but the error is
// still returned so the caller can react.
func (db *DB) Flush() (*Segment, error) {
	if db.mt.Tree().RootIdx() == 0 || db.mt.Tree().Len() == 0 {
		// Nothing to flush. No segment id is consumed.
		return nil, nil
	}

	if db.nextID == maxSegmentID-1 {
		return nil, ErrSegmentIDExhausted
	}

	id := db.nextID
	tree := db.mt.Tree()

	index, filter, flushErr := flush.Run(filepath.Join(db.dir, "segments"), id, tree, db.mt.TotalSize(), db.mt.Scratch(), db.report)
	if flushErr != nil && errors.Is(flushErr, flush.ErrOpenSegment) {
		return nil, flushErr
	}

	db.nextID = (id + 1) % maxSegmentID
	persistErr := db.counter.Store(db.nextID)

	seg := &Segment{ID: id, Index: index, Filter: filter}
	db.segments = append(db.segments, seg)

	if flushErr != nil {
		return seg, flushErr
	}
	if persistErr != nil {
		return seg, fmt.Errorf("lsmkv: flush %d: %w", id, persistErr)
	}
	return seg, nil
}

// Reset clears the active memtable (dropping owned value buffers) and
// its size accounting, without touching the segment counter or any
// already-flushed segment. It does not reclaim or merge flushed
// segments; that remains out of scope for this module.
func (db *DB) Reset() {
	db.mt.Reset()
}
