package fsutil

import (
	"errors"
	"io/fs"
	"os"
	"strings"
)

// StagedSuffix marks files that hold uncommitted data.
const StagedSuffix = ".tmp"

// Usage describes the bytes a cache directory occupies.
type Usage struct {
	// Files is the number of regular files.
	Files int

	// Total is the size of every regular file, staged ones included.
	Total int64

	// Staged is the size of files ending in StagedSuffix.
	Staged int64
}

// DiskUsage reports the regular files directly inside dir. The cache keeps a
// flat layout, so subdirectories are not descended into. A missing dir has
// zero usage.
func DiskUsage(dir string) (Usage, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return Usage{}, nil
	}
	if err != nil {
		return Usage{}, err
	}

	var u Usage
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		info, err := e.Info()
		if errors.Is(err, fs.ErrNotExist) {
			// Removed by a concurrent eviction.
			continue
		}
		if err != nil {
			return Usage{}, err
		}
		u.Files++
		u.Total += info.Size()
		if strings.HasSuffix(e.Name(), StagedSuffix) {
			u.Staged += info.Size()
		}
	}
	return u, nil
}
