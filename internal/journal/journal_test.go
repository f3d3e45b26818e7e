package journal

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testHeader = Header{Generation: 100, ValueCount: 2}

func writeJournal(t *testing.T, dir, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(Path(dir), []byte(content), 0o600))
}

func readRecords(t *testing.T, r *Reader) []Record {
	t.Helper()
	var recs []Record
	for {
		rec, err := r.Next()
		if err == io.EOF {
			return recs
		}
		require.NoError(t, err)
		recs = append(recs, rec)
	}
}

func TestRebuildThenRead(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	records := []Record{
		{Op: OpClean, Key: "a", Lengths: []int64{1, 2}},
		{Op: OpDirty, Key: "b"},
	}

	w, err := Rebuild(dir, testHeader, records, 0o600)
	require.NoError(t, err)
	require.NoError(t, w.Append(Record{Op: OpRead, Key: "a"}))
	require.NoError(t, w.Close())

	data, err := os.ReadFile(Path(dir))
	require.NoError(t, err)
	assert.Equal(t, "libcore.io.DiskLruCache\n1\n100\n2\n\nCLEAN a 1 2\nDIRTY b\nREAD a\n", string(data))

	r, err := OpenReader(Path(dir), testHeader)
	require.NoError(t, err)
	defer r.Close()

	got := readRecords(t, r)
	assert.Equal(t, append(records, Record{Op: OpRead, Key: "a"}), got)
	assert.False(t, r.Torn())

	assert.NoFileExists(t, filepath.Join(dir, TempFileName))
	assert.NoFileExists(t, filepath.Join(dir, BackupFileName))
}

func TestRebuildReplacesExistingJournal(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeJournal(t, dir, "libcore.io.DiskLruCache\n1\n100\n2\n\nCLEAN a 1 2\nREAD a\nREAD a\n")

	w, err := Rebuild(dir, testHeader, []Record{{Op: OpClean, Key: "a", Lengths: []int64{1, 2}}}, 0o600)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	data, err := os.ReadFile(Path(dir))
	require.NoError(t, err)
	assert.Equal(t, "libcore.io.DiskLruCache\n1\n100\n2\n\nCLEAN a 1 2\n", string(data))
	assert.NoFileExists(t, filepath.Join(dir, BackupFileName))
}

func TestOpenReader_HeaderMismatch(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
	}{
		{name: "bad magic", content: "libcore.io.DiskLruCacheX\n1\n100\n2\n\n"},
		{name: "bad version", content: "libcore.io.DiskLruCache\n2\n100\n2\n\n"},
		{name: "other generation", content: "libcore.io.DiskLruCache\n1\n101\n2\n\n"},
		{name: "other value count", content: "libcore.io.DiskLruCache\n1\n100\n1\n\n"},
		{name: "missing blank", content: "libcore.io.DiskLruCache\n1\n100\n2\nCLEAN a 1 2\n"},
		{name: "truncated", content: "libcore.io.DiskLruCache\n1\n"},
		{name: "empty", content: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			dir := t.TempDir()
			writeJournal(t, dir, tt.content)

			_, err := OpenReader(Path(dir), testHeader)
			require.ErrorIs(t, err, ErrCorrupt)
		})
	}
}

func TestReadHeader(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeJournal(t, dir, "libcore.io.DiskLruCache\n1\n7\n3\n\nDIRTY a\n")

	h, err := ReadHeader(Path(dir))
	require.NoError(t, err)
	assert.Equal(t, Header{Generation: 7, ValueCount: 3}, h)

	for _, content := range []string{
		"",
		"libcore.io.DiskLruCache\n1\n7\n",
		"other\n1\n7\n3\n\n",
		"libcore.io.DiskLruCache\n2\n7\n3\n\n",
		"libcore.io.DiskLruCache\n1\nseven\n3\n\n",
		"libcore.io.DiskLruCache\n1\n7\n0\n\n",
		"libcore.io.DiskLruCache\n1\n7\n3\nx\n",
	} {
		writeJournal(t, dir, content)
		_, err := ReadHeader(Path(dir))
		require.ErrorIs(t, err, ErrCorrupt, "content %q", content)
	}

	_, err = ReadHeader(filepath.Join(dir, "missing"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestReader_TornTail(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeJournal(t, dir, "libcore.io.DiskLruCache\n1\n100\n2\n\nCLEAN a 1 2\nCLEAN b 3")

	r, err := OpenReader(Path(dir), testHeader)
	require.NoError(t, err)
	defer r.Close()

	got := readRecords(t, r)
	assert.Equal(t, []Record{{Op: OpClean, Key: "a", Lengths: []int64{1, 2}}}, got)
	assert.True(t, r.Torn())
}

func TestReader_CorruptRecord(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeJournal(t, dir, "libcore.io.DiskLruCache\n1\n100\n2\n\nCLEAN a 1\n")

	r, err := OpenReader(Path(dir), testHeader)
	require.NoError(t, err)
	defer r.Close()

	_, err = r.Next()
	require.ErrorIs(t, err, ErrCorrupt)
}

func TestPrepareFiles(t *testing.T) {
	t.Parallel()

	t.Run("promotes backup", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		backup := filepath.Join(dir, BackupFileName)
		require.NoError(t, os.WriteFile(backup, []byte("backup"), 0o600))

		require.NoError(t, PrepareFiles(dir))

		data, err := os.ReadFile(Path(dir))
		require.NoError(t, err)
		assert.Equal(t, "backup", string(data))
		assert.NoFileExists(t, backup)
	})

	t.Run("discards backup when journal exists", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		backup := filepath.Join(dir, BackupFileName)
		require.NoError(t, os.WriteFile(backup, []byte("backup"), 0o600))
		writeJournal(t, dir, "live")

		require.NoError(t, PrepareFiles(dir))

		data, err := os.ReadFile(Path(dir))
		require.NoError(t, err)
		assert.Equal(t, "live", string(data))
		assert.NoFileExists(t, backup)
	})

	t.Run("missing directory", func(t *testing.T) {
		t.Parallel()

		require.NoError(t, PrepareFiles(filepath.Join(t.TempDir(), "nope")))
	})
}

func TestWriter_AppendIsBuffered(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	w, err := Rebuild(dir, testHeader, nil, 0o600)
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, w.Append(Record{Op: OpRemove, Key: "gone"}))
	data, err := os.ReadFile(Path(dir))
	require.NoError(t, err)
	assert.False(t, strings.Contains(string(data), "REMOVE"))

	require.NoError(t, w.Flush())
	data, err = os.ReadFile(Path(dir))
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(string(data), "REMOVE gone\n"))
}
