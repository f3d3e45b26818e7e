package disklru

import (
	"errors"
	"fmt"

	"github.com/meigma/disklru/internal/journal"
)

var (
	// ErrInvalidArgument is returned for out-of-range configuration and slot indexes.
	ErrInvalidArgument = errors.New("disklru: invalid argument")

	// ErrInvalidKey is returned when a key does not match [a-z0-9_-]{1,120}.
	// It wraps ErrInvalidArgument.
	ErrInvalidKey = fmt.Errorf("%w: invalid key", ErrInvalidArgument)

	// ErrNotFound is returned by Get when the key has no readable value.
	ErrNotFound = errors.New("disklru: not found")

	// ErrEntryBusy is returned by Edit while another editor holds the entry.
	ErrEntryBusy = errors.New("disklru: entry is being edited")

	// ErrStaleSnapshot is returned by Snapshot.Edit when the entry changed after
	// the snapshot was taken.
	ErrStaleSnapshot = errors.New("disklru: stale snapshot")

	// ErrClosed is returned by every operation on a closed cache.
	ErrClosed = errors.New("disklru: cache is closed")

	// ErrEditorDone is returned when an editor is used after Commit or Abort.
	ErrEditorDone = errors.New("disklru: editor already completed")

	// ErrIncompleteEntry is returned when the first commit of an entry is
	// missing a value. The edit is aborted.
	ErrIncompleteEntry = errors.New("disklru: new entry is missing values")

	// ErrCommitAborted is returned by Commit when a write to a staged value
	// failed. The edit is aborted and the entry removed.
	ErrCommitAborted = errors.New("disklru: commit aborted after write failure")
)

// ErrJournalCorrupt is reported when a journal cannot be replayed.
// Open recovers from it by starting an empty cache; it is exported for
// callers that inspect logs or wrap the journal package.
var ErrJournalCorrupt = journal.ErrCorrupt
