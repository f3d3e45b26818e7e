// Package journal implements the cache's operation log.
//
// The journal is a human-readable ASCII file. It starts with a five line header
// and is followed by one record per line:
//
//	libcore.io.DiskLruCache
//	1
//	100
//	2
//
//	CLEAN 3400330d1dfc7f3f7f4b8d4d803dfcf6 832 21054
//	DIRTY 335c4c6028171cfddfbaae1a9c313c52
//	CLEAN 335c4c6028171cfddfbaae1a9c313c52 3934 2342
//	REMOVE 335c4c6028171cfddfbaae1a9c313c52
//	DIRTY 1ab96a171faeeee38496d8b330771a7a
//	CLEAN 1ab96a171faeeee38496d8b330771a7a 1600 234
//	READ 335c4c6028171cfddfbaae1a9c313c52
//
// The header holds the magic string, the format version, the caller's
// generation and the number of values per entry. Replaying the records in
// order rebuilds the cache's entry table.
package journal

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
)

// File names inside the cache directory.
const (
	FileName       = "journal"
	TempFileName   = "journal.tmp"
	BackupFileName = "journal.bkp"
)

const (
	// Magic is the first header line.
	Magic = "libcore.io.DiskLruCache"

	// Version is the journal format version.
	Version = "1"

	// Charset is the only encoding journals are written in.
	Charset = "US-ASCII"
)

// KeyPattern is the grammar every cache key must match.
const KeyPattern = "[a-z0-9_-]{1,120}"

var legalKey = regexp.MustCompile("^" + KeyPattern + "$")

// ValidKey reports whether key matches KeyPattern.
func ValidKey(key string) bool {
	return legalKey.MatchString(key)
}

// Header identifies the cache instance a journal belongs to.
type Header struct {
	Generation int
	ValueCount int
}

func (h Header) lines() []string {
	return []string{
		Magic,
		Version,
		strconv.Itoa(h.Generation),
		strconv.Itoa(h.ValueCount),
		"",
	}
}

// Path returns the live journal path in dir.
func Path(dir string) string {
	return filepath.Join(dir, FileName)
}

func parseHeader(lines []string) (Header, error) {
	if lines[0] != Magic || lines[1] != Version || lines[4] != "" {
		return Header{}, fmt.Errorf("%w: unexpected header %q", ErrCorrupt, lines)
	}
	generation, err := strconv.Atoi(lines[2])
	if err != nil {
		return Header{}, fmt.Errorf("%w: generation %q", ErrCorrupt, lines[2])
	}
	valueCount, err := strconv.Atoi(lines[3])
	if err != nil || valueCount <= 0 {
		return Header{}, fmt.Errorf("%w: value count %q", ErrCorrupt, lines[3])
	}
	return Header{Generation: generation, ValueCount: valueCount}, nil
}

func checkHeader(got []string, want Header) error {
	expected := want.lines()
	for i := range expected {
		if got[i] != expected[i] {
			return fmt.Errorf("%w: unexpected header %q", ErrCorrupt, got)
		}
	}
	return nil
}
