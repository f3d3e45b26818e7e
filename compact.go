package disklru

import (
	"fmt"

	"github.com/meigma/disklru/internal/journal"
)

// start launches the background worker that trims the cache and compacts the
// journal.
func (c *Cache) start() {
	c.cleanupCh = make(chan struct{}, 1)
	c.stopCh = make(chan struct{})
	c.workerWG.Add(1)
	go c.cleanupLoop()
}

// stop terminates the background worker and waits for it to exit.
func (c *Cache) stop() {
	if c.stopCh == nil {
		return
	}
	close(c.stopCh)
	c.workerWG.Wait()
}

// scheduleCleanup requests a cleanup pass. It never blocks: if a pass is
// already pending the request is merged into it.
func (c *Cache) scheduleCleanup() {
	if c.cleanupCh == nil {
		return
	}
	select {
	case c.cleanupCh <- struct{}{}:
	default:
	}
}

func (c *Cache) cleanupLoop() {
	defer c.workerWG.Done()
	for {
		select {
		case <-c.stopCh:
			return
		case <-c.cleanupCh:
			c.cleanup()
		}
	}
}

func (c *Cache) cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	if err := c.trimToSize(); err != nil {
		c.log().Warn("trim cache", "dir", c.dir, "error", err)
	}
	if c.rebuildRequired() {
		if err := c.rebuildJournal(); err != nil {
			c.log().Warn("compact journal", "dir", c.dir, "error", err)
		}
	}
}

// rebuildRequired reports whether the journal has accumulated enough
// superseded records to be worth rewriting. Requires c.mu.
func (c *Cache) rebuildRequired() bool {
	return c.redundantOps >= c.compactThreshold && c.redundantOps >= c.entries.len()
}

// rebuildJournal replaces the journal with one record per entry: DIRTY for
// entries being edited and CLEAN for the rest. Requires c.mu.
func (c *Cache) rebuildJournal() error {
	if c.journal != nil {
		if err := c.journal.Close(); err != nil {
			c.log().Warn("close journal before rebuild", "dir", c.dir, "error", err)
		}
		c.journal = nil
	}

	records := make([]journal.Record, 0, c.entries.len())
	for e := range c.entries.all() {
		if e.editor != nil {
			records = append(records, journal.Record{Op: journal.OpDirty, Key: e.key})
			continue
		}
		records = append(records, journal.Record{
			Op:      journal.OpClean,
			Key:     e.key,
			Lengths: append([]int64(nil), e.lengths...),
		})
	}

	w, err := journal.Rebuild(c.dir, c.header(), records, c.filePerm)
	if err != nil {
		// Keep appending to whichever complete journal survived.
		if prev, openErr := journal.OpenWriter(journal.Path(c.dir)); openErr == nil {
			c.journal = prev
		}
		return fmt.Errorf("rebuild journal: %w", err)
	}
	c.journal = w
	c.redundantOps = 0
	c.log().Debug("rebuilt journal", "dir", c.dir, "entries", len(records))
	return nil
}
