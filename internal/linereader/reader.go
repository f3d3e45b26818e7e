// Package linereader reads newline-terminated ASCII records from a byte stream.
//
// It is stricter than bufio.Scanner: lines must be terminated, a torn final
// line is reported through HasUnterminatedLine instead of being returned, and
// any byte outside the ASCII range is an error.
package linereader

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
)

// DefaultCapacity is the default size of the read buffer.
const DefaultCapacity = 8192

// minCapacity matches the smallest buffer bufio will allocate.
const minCapacity = 16

var (
	// ErrUnsupportedEncoding is returned by New for any charset other than US-ASCII.
	ErrUnsupportedEncoding = errors.New("linereader: unsupported encoding")

	// ErrNotASCII is returned when a line contains a byte outside the ASCII range.
	ErrNotASCII = errors.New("linereader: non-ASCII byte in line")

	// ErrClosed is returned when reading from a closed Reader.
	ErrClosed = errors.New("linereader: reader is closed")
)

// Reader reads lines terminated by "\n" or "\r\n".
//
// A Reader is not safe for concurrent use.
type Reader struct {
	src          io.Reader
	br           *bufio.Reader
	unterminated bool
}

// Option configures a Reader.
type Option func(*config)

type config struct {
	capacity int
}

// WithCapacity sets the size of the internal buffer.
// Lines longer than the buffer are still read; they are assembled across refills.
func WithCapacity(n int) Option {
	return func(c *config) {
		c.capacity = n
	}
}

// New returns a Reader over r. Only the US-ASCII charset is supported.
func New(r io.Reader, charset string, opts ...Option) (*Reader, error) {
	if r == nil {
		return nil, errors.New("linereader: source is nil")
	}
	if !isASCIICharset(charset) {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedEncoding, charset)
	}
	cfg := config{capacity: DefaultCapacity}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.capacity <= 0 {
		return nil, errors.New("linereader: capacity must be > 0")
	}
	return &Reader{
		src: r,
		br:  bufio.NewReaderSize(r, max(cfg.capacity, minCapacity)),
	}, nil
}

// ReadLine returns the next line without its terminator.
//
// It returns io.EOF once no complete line remains. Bytes after the last
// terminator are discarded and reported by HasUnterminatedLine.
func (r *Reader) ReadLine() (string, error) {
	if r.br == nil {
		return "", ErrClosed
	}
	var pending []byte
	for {
		chunk, err := r.br.ReadSlice('\n')
		switch {
		case err == nil:
			line := chunk[:len(chunk)-1]
			if pending != nil {
				pending = append(pending, line...)
				line = pending
			}
			if n := len(line); n > 0 && line[n-1] == '\r' {
				line = line[:n-1]
			}
			if !isASCII(line) {
				return "", fmt.Errorf("%w: %q", ErrNotASCII, line)
			}
			return string(line), nil
		case errors.Is(err, bufio.ErrBufferFull):
			pending = append(pending, chunk...)
		case errors.Is(err, io.EOF):
			if len(pending)+len(chunk) > 0 {
				r.unterminated = true
			}
			return "", io.EOF
		default:
			return "", err
		}
	}
}

// HasUnterminatedLine reports whether the stream ended with bytes that were
// not followed by a line terminator.
func (r *Reader) HasUnterminatedLine() bool {
	return r.unterminated
}

// Close releases the buffer and closes the source if it is an io.Closer.
func (r *Reader) Close() error {
	if r.br == nil {
		return nil
	}
	r.br = nil
	if c, ok := r.src.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func isASCIICharset(name string) bool {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "us-ascii", "ascii", "us_ascii":
		return true
	default:
		return false
	}
}

func isASCII(b []byte) bool {
	for _, c := range b {
		if c >= 0x80 {
			return false
		}
	}
	return true
}
