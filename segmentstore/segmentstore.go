// Package segmentstore persists the monotone next-segment-id counter
// that survives process restarts. The on-disk representation is
// exactly 8 bytes: a little-endian uint64, nothing else.
package segmentstore

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/natefinch/atomic"
)

// CounterFileName is the well-known file name inside the segments
// directory.
const CounterFileName = "segment_count"

// Store binds the counter to a directory on disk.
type Store struct {
	path string
}

// New returns a Store rooted at dir/segment_count.
func New(dir string) *Store {
	return &Store{path: filepath.Join(dir, CounterFileName)}
}

// Load reads the persisted counter. A missing file, a zero-size file,
// or a short read all yield 0, matching a freshly initialized store.
func (s *Store) Load() (uint64, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("segmentstore: read counter: %w", err)
	}
	if len(data) < 8 {
		return 0, nil
	}
	return binary.LittleEndian.Uint64(data[:8]), nil
}

// Store persists next as an 8-byte little-endian value, replacing the
// file atomically via write-to-temp-then-rename.
func (s *Store) Store(next uint64) error {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], next)
	if err := atomic.WriteFile(s.path, bytes.NewReader(buf[:])); err != nil {
		return fmt.Errorf("segmentstore: persist counter: %w", err)
	}
	return nil
}
