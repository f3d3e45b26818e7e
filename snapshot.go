package disklru

import (
	"errors"
	"io"
	"os"
)

// Snapshot is a read-only view of an entry's values as they were when Get
// returned. Later commits do not change what a Snapshot reads.
type Snapshot struct {
	cache    *Cache
	key      string
	sequence int64
	files    []*os.File
	lengths  []int64
}

// Key returns the entry's key.
func (s *Snapshot) Key() string {
	return s.key
}

// SequenceNumber identifies the commit this snapshot reads.
func (s *Snapshot) SequenceNumber() int64 {
	return s.sequence
}

// Reader returns the unbuffered stream over slot. It panics if slot is out of
// range.
func (s *Snapshot) Reader(slot int) io.Reader {
	return s.files[slot]
}

// String reads the remainder of slot's stream.
func (s *Snapshot) String(slot int) (string, error) {
	b, err := io.ReadAll(s.Reader(slot))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Length returns the byte length of slot's value.
func (s *Snapshot) Length(slot int) int64 {
	return s.lengths[slot]
}

// Edit returns an editor for this entry, or ErrStaleSnapshot if the entry
// was changed or removed after the snapshot was taken.
func (s *Snapshot) Edit() (*Editor, error) {
	return s.cache.edit(s.key, s.sequence)
}

// Close closes every stream of the snapshot.
func (s *Snapshot) Close() error {
	errs := make([]error, 0, len(s.files))
	for _, f := range s.files {
		errs = append(errs, f.Close())
	}
	return errors.Join(errs...)
}
