//go:build !unix

package fsutil

// SyncDir is a no-op where directories cannot be opened for syncing.
func SyncDir(string) error {
	return nil
}
