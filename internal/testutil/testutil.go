// Package testutil holds helpers shared by the cache's tests.
package testutil

import (
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// JournalLines returns the lines of the journal in dir, header included.
// A trailing unterminated line is returned as the last element.
func JournalLines(tb testing.TB, dir string) []string {
	tb.Helper()
	data, err := os.ReadFile(filepath.Join(dir, "journal"))
	require.NoError(tb, err)
	lines := strings.Split(string(data), "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

// WriteJournal replaces the journal in dir with the given header and lines.
// Every line is newline terminated.
func WriteJournal(tb testing.TB, dir string, generation, valueCount int, lines ...string) {
	tb.Helper()
	var b strings.Builder
	b.WriteString("libcore.io.DiskLruCache\n1\n")
	b.WriteString(strconv.Itoa(generation) + "\n")
	b.WriteString(strconv.Itoa(valueCount) + "\n\n")
	for _, line := range lines {
		b.WriteString(line + "\n")
	}
	require.NoError(tb, os.MkdirAll(dir, 0o700))
	require.NoError(tb, os.WriteFile(filepath.Join(dir, "journal"), []byte(b.String()), 0o600))
}

// WriteFile writes content to name inside dir.
func WriteFile(tb testing.TB, dir, name, content string) {
	tb.Helper()
	require.NoError(tb, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600))
}

// ReadFile returns the content of name inside dir.
func ReadFile(tb testing.TB, dir, name string) string {
	tb.Helper()
	data, err := os.ReadFile(filepath.Join(dir, name))
	require.NoError(tb, err)
	return string(data)
}

// CopyDir copies the regular files of src into a new directory and returns
// its path. It captures a cache directory as a crash would leave it.
func CopyDir(tb testing.TB, src string) string {
	tb.Helper()
	dst := filepath.Join(tb.TempDir(), "copy")
	require.NoError(tb, os.MkdirAll(dst, 0o700))
	err := filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == src || !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		data, err := os.ReadFile(path) //nolint:gosec // test helper
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if err := os.MkdirAll(filepath.Dir(target), 0o700); err != nil {
			return err
		}
		return os.WriteFile(target, data, 0o600)
	})
	require.NoError(tb, err)
	return dst
}

// Files returns the names of the regular files in dir, sorted.
func Files(tb testing.TB, dir string) []string {
	tb.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(tb, err)
	var names []string
	for _, e := range entries {
		if e.Type().IsRegular() {
			names = append(names, e.Name())
		}
	}
	return names
}
