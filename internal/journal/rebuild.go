package journal

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/meigma/disklru/internal/fsutil"
)

// PrepareFiles settles a rebuild that was interrupted by a crash.
//
// A backup without a live journal means the crash happened between the two
// renames of Rebuild, so the backup is promoted. When both exist the backup is
// stale and removed.
func PrepareFiles(dir string) error {
	backup := filepath.Join(dir, BackupFileName)
	if !fsutil.Exists(backup) {
		return nil
	}
	if fsutil.Exists(Path(dir)) {
		return fsutil.DeleteIfExists(backup)
	}
	return fsutil.Rename(backup, Path(dir), false)
}

// Rebuild replaces the journal in dir with one holding only h and records.
//
// The new journal is written to a temporary file first. The live journal is
// then moved to the backup name, the temporary file takes its place and the
// backup is deleted, so a crash at any point leaves one complete journal
// behind. The returned Writer appends to the new journal.
func Rebuild(dir string, h Header, records []Record, perm os.FileMode) (*Writer, error) {
	tmp := filepath.Join(dir, TempFileName)
	if err := writeFile(tmp, h, records, perm); err != nil {
		_ = os.Remove(tmp)
		return nil, fmt.Errorf("write journal: %w", err)
	}

	live := Path(dir)
	backup := filepath.Join(dir, BackupFileName)
	if fsutil.Exists(live) {
		if err := fsutil.Rename(live, backup, true); err != nil {
			return nil, err
		}
	}
	if err := fsutil.Rename(tmp, live, false); err != nil {
		return nil, err
	}
	if err := fsutil.DeleteIfExists(backup); err != nil {
		return nil, err
	}
	if err := fsutil.SyncDir(dir); err != nil {
		return nil, fmt.Errorf("sync cache dir: %w", err)
	}
	return OpenWriter(live)
}

func writeFile(path string, h Header, records []Record, perm os.FileMode) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm) //nolint:gosec // inside the cache root
	if err != nil {
		return err
	}
	bw := bufio.NewWriter(f)
	for _, line := range h.lines() {
		_, _ = bw.WriteString(line)
		_ = bw.WriteByte('\n')
	}
	for _, rec := range records {
		_, _ = bw.WriteString(rec.String())
		_ = bw.WriteByte('\n')
	}
	if err := bw.Flush(); err != nil {
		return errors.Join(err, f.Close())
	}
	if err := f.Sync(); err != nil {
		return errors.Join(err, f.Close())
	}
	return f.Close()
}
