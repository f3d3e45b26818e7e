package disklru

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"

	"github.com/meigma/disklru/internal/fsutil"
	"github.com/meigma/disklru/internal/journal"
)

// Editor stages new values for one entry.
//
// Values are written to temporary files next to the committed ones. Commit
// renames them into place; Abort deletes them. Until then, Get keeps
// returning the previously committed values.
//
// An Editor's writers may be used from another goroutine than the one that
// calls Commit, but Commit must not race with writes still in flight.
type Editor struct {
	cache *Cache
	entry *entry

	// written tracks which slots received a writer; a first commit needs all of them.
	written []bool

	// hasErrors is set by staged writers that failed. It turns Commit into Abort.
	hasErrors atomic.Bool

	// Guarded by cache.mu.
	done    bool
	writers []*stagedWriter
}

func newEditor(c *Cache, e *entry) *Editor {
	return &Editor{
		cache:   c,
		entry:   e,
		written: make([]bool, c.valueCount),
	}
}

// Key returns the key of the entry being edited.
func (ed *Editor) Key() string {
	return ed.entry.key
}

// NewWriter returns a writer that stages a new value for slot, replacing any
// value staged before. The writer must be closed before Commit.
//
// Write errors are not returned to the caller. They are recorded instead and
// make the next Commit abort the edit and return ErrCommitAborted.
func (ed *Editor) NewWriter(slot int) (io.WriteCloser, error) {
	c := ed.cache
	if err := c.checkSlot(slot); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := ed.checkActive(); err != nil {
		return nil, err
	}

	if !ed.entry.readable {
		ed.written[slot] = true
	}
	path := ed.entry.dirtyPath(c.dir, slot)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, c.filePerm) //nolint:gosec // path built from a validated key
	if err != nil {
		// The directory may have been deleted underneath the cache.
		if mkErr := os.MkdirAll(c.dir, c.dirPerm); mkErr == nil {
			f, err = os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, c.filePerm) //nolint:gosec // see above
		}
	}
	if err != nil {
		// Without a staged file the commit of a new entry fails and the commit of
		// an existing entry keeps this slot unchanged.
		c.log().Warn("create staged value", "key", ed.entry.key, "slot", slot, "error", err)
		return discardCloser{}, nil
	}
	w := &stagedWriter{f: f, editor: ed}
	ed.writers = append(ed.writers, w)
	return w, nil
}

// NewReader returns a reader over the last committed value of slot. It
// returns ErrNotFound if the entry has never been committed.
func (ed *Editor) NewReader(slot int) (io.ReadCloser, error) {
	c := ed.cache
	if err := c.checkSlot(slot); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := ed.checkActive(); err != nil {
		return nil, err
	}
	if !ed.entry.readable {
		return nil, ErrNotFound
	}
	f, err := os.Open(ed.entry.cleanPath(c.dir, slot))
	if err != nil {
		return nil, ErrNotFound
	}
	return f, nil
}

// Set stages value as the new content of slot.
func (ed *Editor) Set(slot int, value string) error {
	w, err := ed.NewWriter(slot)
	if err != nil {
		return err
	}
	_, _ = io.WriteString(w, value)
	return w.Close()
}

// String returns the last committed value of slot.
func (ed *Editor) String(slot int) (string, error) {
	r, err := ed.NewReader(slot)
	if err != nil {
		return "", err
	}
	defer r.Close()
	b, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Commit publishes the staged values and releases the entry.
//
// Slots without a staged value keep their committed content, except on the
// first commit of an entry, which requires every slot to be written and
// fails with ErrIncompleteEntry otherwise. If any staged write failed, the
// edit is aborted, the entry removed and ErrCommitAborted returned.
func (ed *Editor) Commit() error {
	c := ed.cache
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := ed.checkActive(); err != nil {
		return err
	}
	ed.done = true
	ed.closeWriters()

	if ed.hasErrors.Load() {
		err := c.completeEdit(ed, false)
		// The committed values may predate whatever the caller failed to write.
		_, rmErr := c.remove(ed.entry.key)
		return errors.Join(ErrCommitAborted, err, rmErr)
	}
	return c.completeEdit(ed, true)
}

// Abort discards the staged values and releases the entry. An entry that was
// never committed is removed.
func (ed *Editor) Abort() error {
	c := ed.cache
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := ed.checkActive(); err != nil {
		return err
	}
	return ed.abortLocked()
}

// Close aborts the edit unless it was already committed or aborted. It is
// meant for defer statements.
func (ed *Editor) Close() error {
	c := ed.cache
	c.mu.Lock()
	defer c.mu.Unlock()
	if ed.done {
		return nil
	}
	return ed.abortLocked()
}

// abortLocked requires cache.mu.
func (ed *Editor) abortLocked() error {
	ed.done = true
	ed.closeWriters()
	return ed.cache.completeEdit(ed, false)
}

// checkActive requires cache.mu.
func (ed *Editor) checkActive() error {
	if ed.done || ed.entry.editor != ed {
		return ErrEditorDone
	}
	return nil
}

// closeWriters closes staged files the caller left open. Requires cache.mu.
func (ed *Editor) closeWriters() {
	for _, w := range ed.writers {
		_ = w.Close()
	}
	ed.writers = nil
}

// completeEdit publishes or discards the staged values of ed. Requires c.mu.
func (c *Cache) completeEdit(ed *Editor, success bool) error {
	e := ed.entry
	if e.editor != ed {
		return ErrEditorDone
	}

	if success && !e.readable {
		for i := range c.valueCount {
			if !ed.written[i] {
				return errors.Join(
					fmt.Errorf("%w: slot %d was not written", ErrIncompleteEntry, i),
					c.completeEdit(ed, false))
			}
			if !fsutil.Exists(e.dirtyPath(c.dir, i)) {
				return errors.Join(
					fmt.Errorf("%w: slot %d has no staged file", ErrIncompleteEntry, i),
					c.completeEdit(ed, false))
			}
		}
	}

	var errs []error
	for i := range c.valueCount {
		dirty := e.dirtyPath(c.dir, i)
		if !success {
			if err := fsutil.DeleteIfExists(dirty); err != nil {
				errs = append(errs, err)
			}
			continue
		}
		if !fsutil.Exists(dirty) {
			continue
		}
		clean := e.cleanPath(c.dir, i)
		if err := os.Rename(dirty, clean); err != nil {
			errs = append(errs, fmt.Errorf("publish slot %d: %w", i, err))
			continue
		}
		info, err := os.Stat(clean)
		if err != nil {
			errs = append(errs, fmt.Errorf("stat slot %d: %w", i, err))
			continue
		}
		c.size += info.Size() - e.lengths[i]
		e.lengths[i] = info.Size()
	}

	c.redundantOps++
	e.editor = nil
	var rec journal.Record
	if e.readable || success {
		e.readable = true
		rec = journal.Record{Op: journal.OpClean, Key: e.key, Lengths: append([]int64(nil), e.lengths...)}
		if success {
			e.sequence = c.nextSequence
			c.nextSequence++
		}
	} else {
		c.entries.remove(e.key)
		rec = journal.Record{Op: journal.OpRemove, Key: e.key}
	}
	if err := c.appendAndFlush(rec); err != nil {
		errs = append(errs, err)
	}

	if c.size > c.maxSize || c.rebuildRequired() {
		c.scheduleCleanup()
	}
	return errors.Join(errs...)
}

// stagedWriter writes one staged value. It never reports errors; failures
// mark the editor instead.
type stagedWriter struct {
	f         *os.File
	editor    *Editor
	closeOnce sync.Once
}

func (w *stagedWriter) Write(p []byte) (int, error) {
	if _, err := w.f.Write(p); err != nil {
		w.editor.hasErrors.Store(true)
	}
	return len(p), nil
}

func (w *stagedWriter) Close() error {
	w.closeOnce.Do(func() {
		if err := w.f.Close(); err != nil {
			w.editor.hasErrors.Store(true)
		}
	})
	return nil
}

type discardCloser struct{}

func (discardCloser) Write(p []byte) (int, error) { return len(p), nil }
func (discardCloser) Close() error                { return nil }
