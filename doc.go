// Package disklru provides a journaled, size-bounded LRU cache stored in a
// directory on disk.
//
// Every entry has a key matching [a-z0-9_-]{1,120} and a fixed number of
// values, each an opaque byte stream stored in its own file. All changes are
// recorded in an append-only journal that is replayed when the cache is
// opened, so committed entries survive crashes while interrupted edits are
// rolled back.
//
// # Quick Start
//
// Open a cache with two values per entry and a 10 MB bound:
//
//	c, err := disklru.Open("/var/cache/thumbs", 1, 2, 10<<20)
//	if err != nil {
//	    return err
//	}
//	defer c.Close()
//
// Store an entry:
//
//	ed, err := c.Edit("c3ab8ff1")
//	if err != nil {
//	    return err // ErrEntryBusy if someone else is writing it
//	}
//	defer ed.Close() // aborts unless committed
//	if err := ed.Set(0, `{"type":"png"}`); err != nil {
//	    return err
//	}
//	w, err := ed.NewWriter(1)
//	...
//	return ed.Commit()
//
// Read it back:
//
//	snap, err := c.Get("c3ab8ff1")
//	if errors.Is(err, disklru.ErrNotFound) {
//	    // recompute and store
//	}
//	defer snap.Close()
//	meta, err := snap.String(0)
//
// # Files
//
// The cache owns its directory. Besides the journal (and its temporary and
// backup names used while it is rewritten) it stores committed values as
// <key>.<slot> and staged values as <key>.<slot>.tmp. Opening a directory
// whose journal was written with another generation or value count, or whose
// journal cannot be parsed, deletes everything in it.
//
// # Consistency
//
// One editor may exist per entry at a time. Snapshots read committed files
// and keep reading the same bytes even if a later commit replaces the entry,
// because commits rename new files over old ones instead of rewriting them.
// Use [Snapshot.Edit] to update an entry only if it has not changed since it
// was read.
package disklru
