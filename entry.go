package disklru

import (
	"path/filepath"
	"strconv"
)

// entry is the table's record for one key.
type entry struct {
	key     string
	lengths []int64

	// readable is set once the entry has been committed.
	readable bool

	// editor is the active edit, or nil.
	editor *Editor

	// sequence is the cache sequence number of the most recent commit.
	sequence int64
}

func newEntry(key string, valueCount int) *entry {
	return &entry{key: key, lengths: make([]int64, valueCount)}
}

func (e *entry) cleanPath(dir string, slot int) string {
	return filepath.Join(dir, e.key+"."+strconv.Itoa(slot))
}

func (e *entry) dirtyPath(dir string, slot int) string {
	return e.cleanPath(dir, slot) + ".tmp"
}

func (e *entry) size() int64 {
	var n int64
	for _, l := range e.lengths {
		n += l
	}
	return n
}
