// Package fsutil holds the small filesystem operations the cache is built on.
package fsutil

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
)

// DeleteIfExists removes path. A missing file is not an error.
func DeleteIfExists(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete %s: %w", path, err)
	}
	return nil
}

// Rename moves from to to. When replace is set, an existing destination is
// deleted first so the rename never fails on platforms that refuse to
// overwrite.
func Rename(from, to string, replace bool) error {
	if replace {
		if err := DeleteIfExists(to); err != nil {
			return err
		}
	}
	if err := os.Rename(from, to); err != nil {
		return fmt.Errorf("rename %s: %w", from, err)
	}
	return nil
}

// Exists reports whether path names an existing file.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
