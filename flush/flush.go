// Package flush implements the traversal-to-segment pipeline: an
// in-order walk of a memtable's tree, serialized into fixed-layout
// records, staged into a reusable buffer, and sealed into zlib-
// compressed frames as the buffer fills. Along the way it builds the
// segment's sparse block index and Bloom filter.
package flush

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/flashcore/lsmkv/bloom"
	"github.com/flashcore/lsmkv/rbtree"
	"github.com/flashcore/lsmkv/sstable"
)

const (
	// BlockSize is the sparse-index block boundary granularity, and
	// also the staging buffer's fill threshold.
	BlockSize = 1 << 16
	// FrameMagic identifies a compressed frame header ("LSM1").
	FrameMagic = 0x4C534D31
	// KeySize is sizeof(key) on the wire: an int64.
	KeySize = 8
	// frameHeaderSize is magic(4) + ulen(4) + clen(4).
	frameHeaderSize = 12
	// recordHeaderSize is key(8) + length(4).
	recordHeaderSize = KeySize + 4
)

// ErrOpenSegment wraps a failure to create the segment file. The
// caller must not advance or persist the segment counter when it sees
// this error.
var ErrOpenSegment = errors.New("flush: failed to open segment file")

// Reporter receives a diagnostic event and the error that caused it.
// Errors are still returned from Run; Reporter exists purely for
// observability, matching §7's "diagnostic channel".
type Reporter func(event string, err error)

func defaultReporter(event string, err error) {
	fmt.Fprintf(os.Stderr, "flush: %s: %v\n", event, err)
}

// Run performs one flush of tree into segment_{id}.log directly under
// dir (the caller passes the segments directory itself). It returns the sparse index and Bloom filter built during the
// traversal. A nil Descriptor/Filter and nil error together mean
// "nothing to flush" (root_idx == 0 or length == 0).
//
// totalSize is the memtable's running byte-size estimate, used only
// to size the sparse index's initial capacity. scratch is the
// memtable's reusable staging buffer; Run resets and refills it. Only
// when scratch has no capacity does Run allocate a BlockSize buffer
// for this one flush.
func Run(dir string, id uint64, tree *rbtree.Tree, totalSize int, scratch []byte, report Reporter) (*sstable.Descriptor, *bloom.Filter, error) {
	if report == nil {
		report = defaultReporter
	}
	if tree.RootIdx() == 0 || tree.Len() == 0 {
		return nil, nil, nil
	}

	path := filepath.Join(dir, fmt.Sprintf("segment_%d.log", id))
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrOpenSegment, err)
	}

	index := sstable.NewDescriptor(totalSize / BlockSize)
	nbytes := uint64(tree.Len()) * KeySize
	filter := bloom.New(nbytes, bloom.K)

	p := &pipeline{f: f, buf: scratch[:0], report: report}

	var uncompressedOffset int64
	lastBlock := int64(-1)
	recBuf := make([]byte, 0, recordHeaderSize+256)

	var walkErr error
	for entry := range tree.All() {
		recordStart := uncompressedOffset
		block := recordStart / BlockSize
		if recordStart == 0 || block > lastBlock {
			index.Record(entry.Key, recordStart)
			lastBlock = block
		}

		length := entry.Value.Length
		if entry.Tombstone {
			length = -1
		}
		if length > 0 && entry.Value.Bytes == nil {
			walkErr = fmt.Errorf("flush: key %d: length %d>0 but value is nil", entry.Key, length)
			report("flush-record", walkErr)
			break
		}

		recBuf = recBuf[:0]
		recBuf = appendRecordHeader(recBuf, entry.Key, length)
		if length > 0 {
			recBuf = append(recBuf, entry.Value.Bytes...)
		}

		if err := p.appendRecord(recBuf); err != nil {
			walkErr = err
			report("flush-write", err)
			break
		}

		if !entry.Tombstone {
			filter.Put(entry.Key)
		}
		uncompressedOffset += int64(len(recBuf))
	}

	// Seal whatever is staged regardless of walkErr: a record that
	// aborted the walk must not cost the valid records already written
	// into the buffer before it, matching the original's unconditional
	// flush_buf_if_nonempty(m, segment) after the traversal loop.
	if err := p.seal(); err != nil {
		report("flush-seal", err)
		if walkErr == nil {
			walkErr = err
		}
	}

	if closeErr := f.Close(); closeErr != nil {
		report("flush-close", closeErr)
		if walkErr == nil {
			walkErr = fmt.Errorf("flush: close segment: %w", closeErr)
		}
	}

	return index, filter, walkErr
}

func appendRecordHeader(dst []byte, key int64, length int32) []byte {
	var hdr [recordHeaderSize]byte
	binary.LittleEndian.PutUint64(hdr[0:8], uint64(key))
	binary.LittleEndian.PutUint32(hdr[8:12], uint32(length))
	return append(dst, hdr[:]...)
}

// pipeline owns the staging buffer and the open segment file for one
// flush invocation. A record is always appended to the buffer whole:
// if it does not fit, the buffer is sealed into a frame first, so no
// record ever crosses a frame boundary.
type pipeline struct {
	f      *os.File
	buf    []byte
	report Reporter
}

func (p *pipeline) appendRecord(rec []byte) error {
	capBuf := cap(p.buf)
	if capBuf == 0 {
		p.buf = make([]byte, 0, BlockSize)
		capBuf = BlockSize
	}

	if len(rec) > capBuf {
		if err := p.seal(); err != nil {
			return err
		}
		return p.writeFrame(rec)
	}

	if len(p.buf)+len(rec) > capBuf {
		if err := p.seal(); err != nil {
			return err
		}
	}

	p.buf = append(p.buf, rec...)
	if len(p.buf) == capBuf {
		return p.seal()
	}
	return nil
}

func (p *pipeline) seal() error {
	if len(p.buf) == 0 {
		return nil
	}
	err := p.writeFrame(p.buf)
	p.buf = p.buf[:0]
	return err
}

func (p *pipeline) writeFrame(payload []byte) error {
	var compressed bytes.Buffer
	zw := zlib.NewWriter(&compressed)
	if _, err := zw.Write(payload); err != nil {
		zw.Close()
		return fmt.Errorf("flush: compress frame: %w", err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("flush: compress frame: %w", err)
	}

	var header [frameHeaderSize]byte
	binary.LittleEndian.PutUint32(header[0:4], FrameMagic)
	binary.LittleEndian.PutUint32(header[4:8], uint32(len(payload)))
	binary.LittleEndian.PutUint32(header[8:12], uint32(compressed.Len()))

	if _, err := p.f.Write(header[:]); err != nil {
		return fmt.Errorf("flush: write frame header: %w", err)
	}
	if _, err := p.f.Write(compressed.Bytes()); err != nil {
		return fmt.Errorf("flush: write frame body: %w", err)
	}
	return nil
}
