//go:build unix

package fsutil

import "os"

// SyncDir flushes directory metadata so completed renames survive a crash.
func SyncDir(dir string) error {
	d, err := os.Open(dir) //nolint:gosec // dir is the cache root chosen by the caller
	if err != nil {
		return err
	}
	if err := d.Sync(); err != nil {
		_ = d.Close()
		return err
	}
	return d.Close()
}
