package segmentstore

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
)

var segmentFileNamePattern = regexp.MustCompile(`^segment_(\d+)\.log$`)

// ListSegmentIDs scans dir for files matching segment_<id>.log and
// returns the ids found, sorted ascending. It is a read-only
// diagnostic aid: nothing in this module reconstructs a segment's
// index or Bloom filter from disk (those are never persisted), but a
// caller can use this to confirm the persisted counter agrees with
// what is physically present after a restart.
func ListSegmentIDs(dir string) ([]uint64, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("segmentstore: list segments: %w", err)
	}

	var ids []uint64
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		if filepath.Ext(entry.Name()) != ".log" {
			continue
		}
		matches := segmentFileNamePattern.FindStringSubmatch(entry.Name())
		if len(matches) != 2 {
			continue
		}
		id, err := strconv.ParseUint(matches[1], 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}
