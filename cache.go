package disklru

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"sync"

	"github.com/meigma/disklru/internal/fsutil"
	"github.com/meigma/disklru/internal/journal"
)

// anySequence disables the staleness check in edit.
const anySequence int64 = -1

// Cache is a size-bounded cache of entries stored in a directory.
//
// Each entry has a string key and a fixed number of values, each an opaque
// byte stream stored in its own file. Once the total size of all values
// exceeds the maximum, entries are evicted in least recently used order by a
// background goroutine. The limit is not strict: the cache may briefly exceed
// it while evictions are pending.
//
// Entries are written through an Editor and read through a Snapshot. Readers
// see either the complete previous value or the complete new value of an
// entry, never a mixture; commits rename staged files over the committed ones.
//
// A Cache is safe for concurrent use. It must not share its directory with
// another Cache or with files the caller keeps there.
type Cache struct {
	dir              string
	generation       int
	valueCount       int
	compactThreshold int
	dirPerm          os.FileMode
	filePerm         os.FileMode
	logger           *slog.Logger

	mu           sync.Mutex
	maxSize      int64
	size         int64
	journal      *journal.Writer
	entries      *lruTable
	redundantOps int
	nextSequence int64
	closed       bool

	cleanupCh chan struct{} // capacity 1; a pending request absorbs new ones
	stopCh    chan struct{}
	workerWG  sync.WaitGroup
}

// Open opens the cache in dir, creating the directory if needed.
//
// generation is a caller-chosen version number; a journal written with a
// different generation or valueCount is discarded along with every file in
// dir. valueCount is the number of values per entry and maxSize the number of
// bytes the cache should use. A journal that cannot be replayed is treated
// the same way: the directory is wiped and the cache starts empty.
func Open(dir string, generation, valueCount int, maxSize int64, opts ...Option) (*Cache, error) {
	if dir == "" {
		return nil, fmt.Errorf("%w: cache dir is empty", ErrInvalidArgument)
	}
	if maxSize <= 0 {
		return nil, fmt.Errorf("%w: max size must be > 0", ErrInvalidArgument)
	}
	if valueCount <= 0 {
		return nil, fmt.Errorf("%w: value count must be > 0", ErrInvalidArgument)
	}

	c, err := newCache(dir, generation, valueCount, maxSize, opts)
	if err != nil {
		return nil, err
	}
	if err := journal.PrepareFiles(dir); err != nil {
		return nil, fmt.Errorf("prepare journal: %w", err)
	}

	if fsutil.Exists(journal.Path(dir)) {
		err := c.recover()
		if err == nil {
			c.start()
			return c, nil
		}
		c.log().Warn("cache journal is unusable, removing cache contents",
			"dir", dir, "error", err)
		if c.journal != nil {
			_ = c.journal.Close()
		}
		if err := os.RemoveAll(dir); err != nil {
			return nil, fmt.Errorf("remove corrupt cache: %w", err)
		}
		if c, err = newCache(dir, generation, valueCount, maxSize, opts); err != nil {
			return nil, err
		}
	}

	if err := os.MkdirAll(dir, c.dirPerm); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	c.mu.Lock()
	err = c.rebuildJournal()
	c.mu.Unlock()
	if err != nil {
		return nil, err
	}
	c.start()
	return c, nil
}

func newCache(dir string, generation, valueCount int, maxSize int64, opts []Option) (*Cache, error) {
	c := &Cache{
		dir:              dir,
		generation:       generation,
		valueCount:       valueCount,
		compactThreshold: DefaultCompactThreshold,
		dirPerm:          defaultDirPerm,
		filePerm:         defaultFilePerm,
		maxSize:          maxSize,
		entries:          newLRUTable(),
		// Entries replayed from the journal carry sequence 0, so numbering
		// starts at 1 to keep their snapshots distinguishable from new commits.
		nextSequence: 1,
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// log returns the logger, falling back to a discard logger if nil.
func (c *Cache) log() *slog.Logger {
	if c.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return c.logger
}

func (c *Cache) header() journal.Header {
	return journal.Header{Generation: c.generation, ValueCount: c.valueCount}
}

// Get returns a snapshot of the entry named key.
//
// It returns ErrNotFound if the entry does not exist, has never been
// committed, its files are missing or the read cannot be journaled. The
// caller must Close the snapshot.
func (c *Cache) Get(key string) (*Snapshot, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}

	e := c.entries.get(key)
	if e == nil || !e.readable {
		return nil, ErrNotFound
	}

	files := make([]*os.File, c.valueCount)
	for i := range files {
		f, err := os.Open(e.cleanPath(c.dir, i))
		if err != nil {
			closeFiles(files[:i])
			c.log().Debug("cache entry files missing", "key", key, "error", err)
			return nil, ErrNotFound
		}
		files[i] = f
	}

	c.redundantOps++
	if err := c.append(journal.Record{Op: journal.OpRead, Key: key}); err != nil {
		closeFiles(files)
		c.log().Warn("record cache read", "key", key, "error", err)
		return nil, fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	if c.rebuildRequired() {
		c.scheduleCleanup()
	}
	return &Snapshot{
		cache:    c,
		key:      key,
		sequence: e.sequence,
		files:    files,
		lengths:  slices.Clone(e.lengths),
	}, nil
}

// Edit returns an editor for the entry named key, creating the entry if it
// does not exist. It returns ErrEntryBusy if another edit is in progress.
//
// The caller must Commit or Abort the editor; Close aborts an editor that was
// not committed.
func (c *Cache) Edit(key string) (*Editor, error) {
	return c.edit(key, anySequence)
}

func (c *Cache) edit(key string, expectedSequence int64) (*Editor, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}

	e := c.entries.get(key)
	if expectedSequence != anySequence && (e == nil || e.sequence != expectedSequence) {
		return nil, ErrStaleSnapshot
	}
	created := e == nil
	if created {
		e = newEntry(key, c.valueCount)
		c.entries.add(e)
	} else if e.editor != nil {
		return nil, ErrEntryBusy
	}

	ed := newEditor(c, e)
	e.editor = ed

	// Flushed before returning so a crash leaves a DIRTY record for the
	// staged files this editor may create.
	if err := c.appendAndFlush(journal.Record{Op: journal.OpDirty, Key: key}); err != nil {
		e.editor = nil
		if created {
			c.entries.remove(key)
		}
		return nil, err
	}
	return ed, nil
}

// Remove deletes the entry named key. It reports false if the entry does not
// exist or is being edited.
func (c *Cache) Remove(key string) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false, ErrClosed
	}
	return c.remove(key)
}

// remove requires c.mu.
func (c *Cache) remove(key string) (bool, error) {
	e := c.entries.peek(key)
	if e == nil || e.editor != nil {
		return false, nil
	}

	for i := range c.valueCount {
		if err := fsutil.DeleteIfExists(e.cleanPath(c.dir, i)); err != nil {
			return false, err
		}
		c.size -= e.lengths[i]
		e.lengths[i] = 0
	}

	c.redundantOps++
	c.entries.remove(key)
	if err := c.append(journal.Record{Op: journal.OpRemove, Key: key}); err != nil {
		return true, err
	}
	if c.rebuildRequired() {
		c.scheduleCleanup()
	}
	return true, nil
}

// Dir returns the directory the cache stores its data in.
func (c *Cache) Dir() string {
	return c.dir
}

// ValueCount returns the number of values per entry.
func (c *Cache) ValueCount() int {
	return c.valueCount
}

// MaxSize returns the maximum number of bytes the cache should use.
func (c *Cache) MaxSize() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.maxSize
}

// SetMaxSize changes the size bound and schedules eviction in the background.
func (c *Cache) SetMaxSize(maxSize int64) error {
	if maxSize <= 0 {
		return fmt.Errorf("%w: max size must be > 0", ErrInvalidArgument)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	c.maxSize = maxSize
	c.scheduleCleanup()
	return nil
}

// Size returns the number of bytes used by committed values. Staged values
// of pending edits are not counted.
func (c *Cache) Size() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.size
}

// Len returns the number of entries in the cache, including entries that
// are being written for the first time.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries.len()
}

// IsClosed reports whether Close has been called.
func (c *Cache) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Flush evicts entries down to the size bound and writes buffered journal
// records to disk.
func (c *Cache) Flush() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if err := c.trimToSize(); err != nil {
		return err
	}
	if c.journal == nil {
		return errJournalUnavailable
	}
	return c.journal.Flush()
}

// Compact rewrites the journal to the minimal set of records describing the
// current entries.
func (c *Cache) Compact() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	return c.rebuildJournal()
}

// Close aborts in-progress edits, evicts entries down to the size bound and
// closes the journal. Closing a closed cache is a no-op.
func (c *Cache) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	var errs []error
	for e := range c.entries.all() {
		if e.editor != nil {
			errs = append(errs, e.editor.abortLocked())
		}
	}
	errs = append(errs, c.trimToSize())
	if c.journal != nil {
		errs = append(errs, c.journal.Close())
		c.journal = nil
	}
	c.closed = true
	c.mu.Unlock()

	c.stop()
	return errors.Join(errs...)
}

// Delete closes the cache and removes its directory, including any files
// not created by the cache.
func (c *Cache) Delete() error {
	closeErr := c.Close()
	if err := os.RemoveAll(c.dir); err != nil {
		return errors.Join(closeErr, fmt.Errorf("remove cache dir: %w", err))
	}
	return closeErr
}

// trimToSize evicts least recently used entries until the size bound holds.
// Entries with an active editor are skipped. Requires c.mu.
func (c *Cache) trimToSize() error {
	for e := range c.entries.all() {
		if c.size <= c.maxSize {
			return nil
		}
		if e.editor != nil {
			continue
		}
		if _, err := c.remove(e.key); err != nil {
			return fmt.Errorf("evict %s: %w", e.key, err)
		}
		c.log().Debug("evicted cache entry", "key", e.key, "size", c.size, "max_size", c.maxSize)
	}
	return nil
}

var errJournalUnavailable = errors.New("disklru: journal unavailable")

// append buffers rec in the journal. Requires c.mu.
func (c *Cache) append(rec journal.Record) error {
	if c.journal == nil {
		return errJournalUnavailable
	}
	if err := c.journal.Append(rec); err != nil {
		return fmt.Errorf("append journal: %w", err)
	}
	return nil
}

// appendAndFlush appends rec and flushes the journal. Requires c.mu.
func (c *Cache) appendAndFlush(rec journal.Record) error {
	if err := c.append(rec); err != nil {
		return err
	}
	if err := c.journal.Flush(); err != nil {
		return fmt.Errorf("flush journal: %w", err)
	}
	return nil
}

func validateKey(key string) error {
	if !journal.ValidKey(key) {
		return fmt.Errorf("%w: %q must match %s", ErrInvalidKey, key, journal.KeyPattern)
	}
	return nil
}

func (c *Cache) checkSlot(slot int) error {
	if slot < 0 || slot >= c.valueCount {
		return fmt.Errorf("%w: slot %d not in [0, %d)", ErrInvalidArgument, slot, c.valueCount)
	}
	return nil
}

func closeFiles(files []*os.File) {
	for _, f := range files {
		if f != nil {
			_ = f.Close()
		}
	}
}
