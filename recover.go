package disklru

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"github.com/meigma/disklru/internal/fsutil"
	"github.com/meigma/disklru/internal/journal"
)

// recover rebuilds the entry table from the journal and reconciles the files
// in the cache directory with it. It runs before the cache is shared, so it
// does not take c.mu except around the journal rebuild.
func (c *Cache) recover() error {
	torn, err := c.readJournal()
	if err != nil {
		return err
	}
	if err := c.processJournal(); err != nil {
		return err
	}

	if torn {
		// The last append was cut short by a crash; rewrite the journal so new
		// records do not land on the end of a partial line.
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.rebuildJournal()
	}
	w, err := journal.OpenWriter(journal.Path(c.dir))
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	c.journal = w
	return nil
}

// readJournal replays every complete record. It reports whether the journal
// ended in a torn line.
func (c *Cache) readJournal() (bool, error) {
	r, err := journal.OpenReader(journal.Path(c.dir), c.header())
	if err != nil {
		return false, err
	}
	defer r.Close()

	lines := 0
	for {
		rec, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return false, err
		}
		if !journal.ValidKey(rec.Key) {
			return false, fmt.Errorf("%w: invalid key %q", journal.ErrCorrupt, rec.Key)
		}
		c.replay(rec)
		lines++
	}
	c.redundantOps = max(0, lines-c.entries.len())
	return r.Torn(), nil
}

func (c *Cache) replay(rec journal.Record) {
	if rec.Op == journal.OpRemove {
		c.entries.remove(rec.Key)
		return
	}

	e := c.entries.get(rec.Key)
	if e == nil {
		e = newEntry(rec.Key, c.valueCount)
		c.entries.add(e)
	}
	switch rec.Op {
	case journal.OpClean:
		e.readable = true
		e.editor = nil
		copy(e.lengths, rec.Lengths)
	case journal.OpDirty:
		e.editor = newEditor(c, e)
	case journal.OpRead:
		// get already moved the entry to the back.
	}
}

// processJournal computes the initial size and settles edits that were in
// progress when the journal was last written. Their staged files are deleted;
// entries that were never committed are dropped entirely, committed ones keep
// their previous values.
func (c *Cache) processJournal() error {
	if err := fsutil.DeleteIfExists(filepath.Join(c.dir, journal.TempFileName)); err != nil {
		return err
	}
	for e := range c.entries.all() {
		if e.editor == nil {
			c.size += e.size()
			continue
		}
		e.editor = nil
		for i := range c.valueCount {
			if err := fsutil.DeleteIfExists(e.dirtyPath(c.dir, i)); err != nil {
				return err
			}
		}
		if e.readable {
			c.size += e.size()
			c.log().Debug("reverted interrupted edit", "key", e.key)
			continue
		}
		for i := range c.valueCount {
			if err := fsutil.DeleteIfExists(e.cleanPath(c.dir, i)); err != nil {
				return err
			}
		}
		c.entries.remove(e.key)
		c.log().Debug("dropped incomplete entry", "key", e.key)
	}
	return nil
}
