package disklru

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/disklru/internal/testutil"
)

func TestReopen_PreservesEntries(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	c, err := Open(dir, testGeneration, testValueCount, testMaxSize)
	require.NoError(t, err)
	writeEntry(t, c, "a", "a0", "a1")
	writeEntry(t, c, "b", "b0", "b11")
	_, err = c.Remove("a")
	require.NoError(t, err)
	writeEntry(t, c, "c", "c", "c")
	require.NoError(t, c.Close())

	c = openTestCache(t, dir)
	requireMiss(t, c, "a")
	assert.Equal(t, []string{"b0", "b11"}, readEntry(t, c, "b"))
	assert.Equal(t, []string{"c", "c"}, readEntry(t, c, "c"))
	assert.Equal(t, int64(7), c.Size())
	assert.Equal(t, 2, c.Len())
}

func TestRecover_UncommittedNewEntry(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	c := openTestCache(t, dir)
	writeEntry(t, c, "a", "A", "B")

	ed, err := c.Edit("pending")
	require.NoError(t, err)
	require.NoError(t, ed.Set(0, "half"))

	crashed := testutil.CopyDir(t, dir)
	require.FileExists(t, filepath.Join(crashed, "pending.0.tmp"))

	recovered := openTestCache(t, crashed)
	requireMiss(t, recovered, "pending")
	assert.Equal(t, []string{"A", "B"}, readEntry(t, recovered, "a"))
	assert.Equal(t, []string{"a.0", "a.1", "journal"}, testutil.Files(t, crashed))

	require.NoError(t, ed.Abort())
}

func TestRecover_UncommittedEditOfExistingEntry(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	c := openTestCache(t, dir)
	writeEntry(t, c, "a", "old0", "old1")

	ed, err := c.Edit("a")
	require.NoError(t, err)
	require.NoError(t, ed.Set(0, "new0"))

	crashed := testutil.CopyDir(t, dir)
	recovered := openTestCache(t, crashed)

	assert.Equal(t, []string{"old0", "old1"}, readEntry(t, recovered, "a"))
	assert.Equal(t, int64(8), recovered.Size())
	assert.NoFileExists(t, filepath.Join(crashed, "a.0.tmp"))

	// The recovered entry can be edited again.
	writeEntry(t, recovered, "a", "x", "y")
	assert.Equal(t, []string{"x", "y"}, readEntry(t, recovered, "a"))

	require.NoError(t, ed.Abort())
}

func TestRecover_DirtyWithoutCommitDeletesStrayFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	testutil.WriteJournal(t, dir, testGeneration, testValueCount, "DIRTY x")
	testutil.WriteFile(t, dir, "x.0", "stale")
	testutil.WriteFile(t, dir, "x.0.tmp", "staged")

	c := openTestCache(t, dir)
	requireMiss(t, c, "x")
	assert.Zero(t, c.Len())
	assert.Equal(t, []string{"journal"}, testutil.Files(t, dir))
}

func TestRecover_TornTailRebuildsJournal(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	testutil.WriteJournal(t, dir, testGeneration, testValueCount, "CLEAN a 1 1")
	testutil.WriteFile(t, dir, "a.0", "A")
	testutil.WriteFile(t, dir, "a.1", "B")

	f, err := os.OpenFile(filepath.Join(dir, "journal"), os.O_WRONLY|os.O_APPEND, 0)
	require.NoError(t, err)
	_, err = f.WriteString("CLEAN b 1")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	c := openTestCache(t, dir)
	assert.Equal(t, []string{"A", "B"}, readEntry(t, c, "a"))
	requireMiss(t, c, "b")

	lines := testutil.JournalLines(t, dir)
	require.GreaterOrEqual(t, len(lines), 6)
	assert.Equal(t, "CLEAN a 1 1", lines[5])
	for _, line := range lines {
		assert.NotEqual(t, "CLEAN b 1", line)
	}
}

func TestRecover_UnusableJournalWipesDirectory(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		journal func(t *testing.T, dir string)
	}{
		{
			name: "bad magic",
			journal: func(t *testing.T, dir string) {
				testutil.WriteFile(t, dir, "journal", "garbage\n1\n1\n2\n\n")
			},
		},
		{
			name: "truncated header",
			journal: func(t *testing.T, dir string) {
				testutil.WriteFile(t, dir, "journal", "libcore.io.DiskLruCache\n1\n")
			},
		},
		{
			name: "generation mismatch",
			journal: func(t *testing.T, dir string) {
				testutil.WriteJournal(t, dir, testGeneration+1, testValueCount, "CLEAN a 1 1")
			},
		},
		{
			name: "value count mismatch",
			journal: func(t *testing.T, dir string) {
				testutil.WriteJournal(t, dir, testGeneration, testValueCount+1, "CLEAN a 1 1 1")
			},
		},
		{
			name: "unknown operation",
			journal: func(t *testing.T, dir string) {
				testutil.WriteJournal(t, dir, testGeneration, testValueCount, "CLEAN a 1 1", "BOGUS a")
			},
		},
		{
			name: "wrong length count",
			journal: func(t *testing.T, dir string) {
				testutil.WriteJournal(t, dir, testGeneration, testValueCount, "CLEAN a 1")
			},
		},
		{
			name: "non-numeric length",
			journal: func(t *testing.T, dir string) {
				testutil.WriteJournal(t, dir, testGeneration, testValueCount, "CLEAN a one 1")
			},
		},
		{
			name: "illegal key",
			journal: func(t *testing.T, dir string) {
				testutil.WriteJournal(t, dir, testGeneration, testValueCount, "CLEAN A 1 1")
			},
		},
		{
			name: "non-ascii record",
			journal: func(t *testing.T, dir string) {
				testutil.WriteJournal(t, dir, testGeneration, testValueCount, "READ \xc3\xa9")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			dir := t.TempDir()
			tt.journal(t, dir)
			testutil.WriteFile(t, dir, "a.0", "A")
			testutil.WriteFile(t, dir, "a.1", "B")
			testutil.WriteFile(t, dir, "unrelated", "x")

			var logs bytes.Buffer
			logger := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelWarn}))
			c := openTestCache(t, dir, WithLogger(logger))

			requireMiss(t, c, "a")
			assert.Zero(t, c.Len())
			assert.Zero(t, c.Size())
			assert.Equal(t, []string{"journal"}, testutil.Files(t, dir))
			assert.Contains(t, logs.String(), "journal is unusable")

			writeEntry(t, c, "a", "fresh", "start")
			assert.Equal(t, []string{"fresh", "start"}, readEntry(t, c, "a"))
		})
	}
}

func TestRecover_Backup(t *testing.T) {
	t.Parallel()

	seed := func(t *testing.T) string {
		dir := t.TempDir()
		c, err := Open(dir, testGeneration, testValueCount, testMaxSize)
		require.NoError(t, err)
		writeEntry(t, c, "a", "A", "B")
		require.NoError(t, c.Close())
		return dir
	}

	t.Run("promoted when journal is missing", func(t *testing.T) {
		t.Parallel()

		dir := seed(t)
		require.NoError(t, os.Rename(filepath.Join(dir, "journal"), filepath.Join(dir, "journal.bkp")))

		c := openTestCache(t, dir)
		assert.Equal(t, []string{"A", "B"}, readEntry(t, c, "a"))
		assert.NoFileExists(t, filepath.Join(dir, "journal.bkp"))
		assert.FileExists(t, filepath.Join(dir, "journal"))
	})

	t.Run("discarded when journal exists", func(t *testing.T) {
		t.Parallel()

		dir := seed(t)
		testutil.WriteFile(t, dir, "journal.bkp", "stale backup")

		c := openTestCache(t, dir)
		assert.Equal(t, []string{"A", "B"}, readEntry(t, c, "a"))
		assert.NoFileExists(t, filepath.Join(dir, "journal.bkp"))
	})

	t.Run("leftover temp journal is deleted", func(t *testing.T) {
		t.Parallel()

		dir := seed(t)
		testutil.WriteFile(t, dir, "journal.tmp", "half written")

		c := openTestCache(t, dir)
		assert.Equal(t, []string{"A", "B"}, readEntry(t, c, "a"))
		assert.NoFileExists(t, filepath.Join(dir, "journal.tmp"))
	})
}

func TestRecover_ReadRecordsRestoreOrder(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	testutil.WriteJournal(t, dir, testGeneration, testValueCount,
		"CLEAN a 1 1",
		"CLEAN b 1 1",
		"READ a",
	)
	for _, name := range []string{"a.0", "a.1", "b.0", "b.1"} {
		testutil.WriteFile(t, dir, name, "x")
	}

	c := openTestCacheSize(t, dir, 2)
	assert.Equal(t, int64(4), c.Size())
	require.NoError(t, c.Flush())

	requireMiss(t, c, "b")
	assert.Equal(t, []string{"x", "x"}, readEntry(t, c, "a"))
}

func TestRecover_RemoveRecord(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	testutil.WriteJournal(t, dir, testGeneration, testValueCount,
		"CLEAN a 1 1",
		"REMOVE a",
		"REMOVE never-existed",
	)

	c := openTestCache(t, dir)
	requireMiss(t, c, "a")
	assert.Zero(t, c.Len())
}

func TestRecover_CountsRedundantRecords(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	testutil.WriteJournal(t, dir, testGeneration, testValueCount,
		"DIRTY a",
		"CLEAN a 1 1",
		"READ a",
		"READ a",
		"CLEAN b 2 2",
	)

	c := openTestCache(t, dir)
	c.mu.Lock()
	defer c.mu.Unlock()
	assert.Equal(t, 3, c.redundantOps)
	assert.Equal(t, int64(6), c.size)
}

func TestRecover_SnapshotOfReplayedEntryGoesStale(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	c, err := Open(dir, testGeneration, testValueCount, testMaxSize)
	require.NoError(t, err)
	writeEntry(t, c, "a", "A", "B")
	require.NoError(t, c.Close())

	c = openTestCache(t, dir)
	snap, err := c.Get("a")
	require.NoError(t, err)
	defer snap.Close()

	writeEntry(t, c, "a", "C", "D")

	_, err = snap.Edit()
	require.ErrorIs(t, err, ErrStaleSnapshot)
}
