package disklru

import (
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

const (
	testGeneration = 1
	testValueCount = 2
	testMaxSize    = 1000
)

func openTestCache(t *testing.T, dir string, opts ...Option) *Cache {
	t.Helper()
	return openTestCacheSize(t, dir, testMaxSize, opts...)
}

func openTestCacheSize(t *testing.T, dir string, maxSize int64, opts ...Option) *Cache {
	t.Helper()
	c, err := Open(dir, testGeneration, testValueCount, maxSize, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func writeEntry(t *testing.T, c *Cache, key string, values ...string) {
	t.Helper()
	ed, err := c.Edit(key)
	require.NoError(t, err)
	for i, v := range values {
		require.NoError(t, ed.Set(i, v))
	}
	require.NoError(t, ed.Commit())
}

func readEntry(t *testing.T, c *Cache, key string) []string {
	t.Helper()
	snap, err := c.Get(key)
	require.NoError(t, err)
	defer snap.Close()
	values := make([]string, c.ValueCount())
	for i := range values {
		b, err := io.ReadAll(snap.Reader(i))
		require.NoError(t, err)
		values[i] = string(b)
	}
	return values
}

func requireMiss(t *testing.T, c *Cache, key string) {
	t.Helper()
	snap, err := c.Get(key)
	if snap != nil {
		_ = snap.Close()
	}
	require.ErrorIs(t, err, ErrNotFound)
}

// trackedSize recomputes the cache size from the entry table.
func trackedSize(c *Cache) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	var total int64
	for e := range c.entries.all() {
		total += e.size()
	}
	return total
}
