package store

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/meigma/disklru/cachekey"
)

// Option configures a Store.
type Option func(*Store) error

// WithCompression sets the encoding for payloads written by Put. Entries
// written with another encoding remain readable.
func WithCompression(c Compression) Option {
	return func(s *Store) error {
		if !c.valid() {
			return fmt.Errorf("unsupported compression %q", c)
		}
		s.compression = c
		return nil
	}
}

// WithKeyFunc sets how sources are mapped to cache keys. The default is
// cachekey.Digest.
func WithKeyFunc(fn cachekey.Func) Option {
	return func(s *Store) error {
		if fn == nil {
			return errors.New("key func is nil")
		}
		s.keyFunc = fn
		return nil
	}
}

// WithLogger sets the logger for discarded entries and failed writes.
// If not set, logging is disabled.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) error {
		s.logger = logger
		return nil
	}
}

// WithMaxDecoderMemory limits the memory a zstd decoder may allocate while
// reading one payload. Zero means no limit.
func WithMaxDecoderMemory(n uint64) Option {
	return func(s *Store) error {
		s.maxDecoderMemory = n
		return nil
	}
}
