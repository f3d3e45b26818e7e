package journal

import (
	"fmt"
	"strconv"
	"strings"
)

// Op is the operation a record describes.
type Op string

// Journal operations.
const (
	// OpDirty marks the start of an edit. It must be followed by OpClean or OpRemove.
	OpDirty Op = "DIRTY"

	// OpClean records a successful commit along with the length of every value.
	OpClean Op = "CLEAN"

	// OpRemove records that an entry was deleted.
	OpRemove Op = "REMOVE"

	// OpRead records an access. It only affects eviction order.
	OpRead Op = "READ"
)

// Record is one journal line.
type Record struct {
	Op      Op
	Key     string
	Lengths []int64 // set for OpClean only
}

// String renders the record without its line terminator.
func (r Record) String() string {
	var b strings.Builder
	b.Grow(len(r.Op) + 1 + len(r.Key) + 8*len(r.Lengths))
	b.WriteString(string(r.Op))
	b.WriteByte(' ')
	b.WriteString(r.Key)
	for _, n := range r.Lengths {
		b.WriteByte(' ')
		b.WriteString(strconv.FormatInt(n, 10))
	}
	return b.String()
}

// ParseRecord parses a journal line written for an entry of valueCount values.
func ParseRecord(line string, valueCount int) (Record, error) {
	fields := strings.Split(line, " ")
	if len(fields) < 2 || fields[1] == "" {
		return Record{}, unexpectedLine(line)
	}
	rec := Record{Op: Op(fields[0]), Key: fields[1]}
	switch rec.Op {
	case OpDirty, OpRemove, OpRead:
		if len(fields) != 2 {
			return Record{}, unexpectedLine(line)
		}
	case OpClean:
		if len(fields) != 2+valueCount {
			return Record{}, unexpectedLine(line)
		}
		rec.Lengths = make([]int64, valueCount)
		for i, f := range fields[2:] {
			n, err := strconv.ParseInt(f, 10, 64)
			if err != nil || n < 0 {
				return Record{}, unexpectedLine(line)
			}
			rec.Lengths[i] = n
		}
	default:
		return Record{}, unexpectedLine(line)
	}
	return rec, nil
}

func unexpectedLine(line string) error {
	return fmt.Errorf("%w: unexpected line %q", ErrCorrupt, line)
}
