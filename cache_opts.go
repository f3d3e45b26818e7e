package disklru

import (
	"errors"
	"log/slog"
	"os"
)

// Option configures a Cache.
type Option func(*Cache) error

const (
	// DefaultCompactThreshold is the number of redundant journal records that
	// triggers a journal rebuild.
	DefaultCompactThreshold = 2000

	defaultDirPerm  = 0o700
	defaultFilePerm = 0o600
)

// WithLogger sets the logger for recovery, eviction and compaction events.
// If not set, logging is disabled.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Cache) error {
		c.logger = logger
		return nil
	}
}

// WithCompactThreshold sets how many redundant journal records accumulate
// before the journal is rebuilt. The rebuild also waits until redundant
// records outnumber live entries.
func WithCompactThreshold(n int) Option {
	return func(c *Cache) error {
		if n <= 0 {
			return errors.New("compact threshold must be > 0")
		}
		c.compactThreshold = n
		return nil
	}
}

// WithDirPerm sets the permissions used when creating the cache directory.
func WithDirPerm(mode os.FileMode) Option {
	return func(c *Cache) error {
		c.dirPerm = mode
		return nil
	}
}

// WithFilePerm sets the permissions used for value files and the journal.
func WithFilePerm(mode os.FileMode) Option {
	return func(c *Cache) error {
		c.filePerm = mode
		return nil
	}
}
