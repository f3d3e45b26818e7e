package journal

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/meigma/disklru/internal/linereader"
)

// Reader replays the records of an existing journal.
type Reader struct {
	lr         *linereader.Reader
	valueCount int
}

// OpenReader opens the journal at path and validates its header against want.
// A mismatched or truncated header is reported as ErrCorrupt.
func OpenReader(path string, want Header) (*Reader, error) {
	f, err := os.Open(path) //nolint:gosec // path is the journal inside the cache root
	if err != nil {
		return nil, err
	}
	lr, err := linereader.New(f, Charset)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	header := make([]string, len(want.lines()))
	for i := range header {
		line, err := lr.ReadLine()
		if err != nil {
			_ = lr.Close()
			if errors.Is(err, io.EOF) {
				return nil, fmt.Errorf("%w: truncated header", ErrCorrupt)
			}
			return nil, err
		}
		header[i] = line
	}
	if err := checkHeader(header, want); err != nil {
		_ = lr.Close()
		return nil, err
	}
	return &Reader{lr: lr, valueCount: want.ValueCount}, nil
}

// ReadHeader returns the header of the journal at path without comparing it
// to an expected one. A header that is not well formed is ErrCorrupt.
func ReadHeader(path string) (Header, error) {
	f, err := os.Open(path) //nolint:gosec // path is the journal inside the cache root
	if err != nil {
		return Header{}, err
	}
	lr, err := linereader.New(f, Charset)
	if err != nil {
		_ = f.Close()
		return Header{}, err
	}
	defer lr.Close()

	lines := make([]string, len(Header{}.lines()))
	for i := range lines {
		line, err := lr.ReadLine()
		if errors.Is(err, io.EOF) {
			return Header{}, fmt.Errorf("%w: truncated header", ErrCorrupt)
		}
		if err != nil {
			return Header{}, fmt.Errorf("%w: %w", ErrCorrupt, err)
		}
		lines[i] = line
	}
	return parseHeader(lines)
}

// Next returns the next record, or io.EOF after the last complete line.
func (r *Reader) Next() (Record, error) {
	line, err := r.lr.ReadLine()
	if err != nil {
		if errors.Is(err, linereader.ErrNotASCII) {
			return Record{}, fmt.Errorf("%w: %w", ErrCorrupt, err)
		}
		return Record{}, err
	}
	return ParseRecord(line, r.valueCount)
}

// Torn reports whether the journal ended in a partially written line.
// It is only meaningful once Next has returned io.EOF.
func (r *Reader) Torn() bool {
	return r.lr.HasUnterminatedLine()
}

// Close closes the underlying file.
func (r *Reader) Close() error {
	return r.lr.Close()
}
