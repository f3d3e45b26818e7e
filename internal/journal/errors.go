package journal

import "errors"

// ErrCorrupt is returned when the journal header or a record cannot be parsed.
var ErrCorrupt = errors.New("journal: corrupt")
