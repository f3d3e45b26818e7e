package journal

import (
	"bufio"
	"errors"
	"os"
)

// Writer appends records to a journal. Appends are buffered; call Flush to
// hand them to the operating system.
type Writer struct {
	f  *os.File
	bw *bufio.Writer
}

// OpenWriter opens an existing journal for appending.
func OpenWriter(path string) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0) //nolint:gosec // journal inside the cache root
	if err != nil {
		return nil, err
	}
	return &Writer{f: f, bw: bufio.NewWriter(f)}, nil
}

// Append buffers rec.
func (w *Writer) Append(rec Record) error {
	if _, err := w.bw.WriteString(rec.String()); err != nil {
		return err
	}
	return w.bw.WriteByte('\n')
}

// Flush writes buffered records to the file.
func (w *Writer) Flush() error {
	return w.bw.Flush()
}

// Close flushes and closes the journal file.
func (w *Writer) Close() error {
	return errors.Join(w.bw.Flush(), w.f.Close())
}
