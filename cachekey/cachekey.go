// Package cachekey derives cache keys from arbitrary source identifiers.
//
// Cache keys are restricted to [a-z0-9_-]{1,120}. URLs, file paths and other
// identifiers rarely fit that grammar, so callers hash them first.
package cachekey

import (
	_ "crypto/sha256" // registers sha256 for go-digest
	"fmt"

	"github.com/cespare/xxhash/v2"
	"github.com/opencontainers/go-digest"

	"github.com/meigma/disklru/internal/journal"
)

// Func maps a source identifier to a cache key.
type Func func(source string) string

// Digest returns the lowercase hex sha256 of source. The result is 64
// characters long and always a valid key.
func Digest(source string) string {
	return digest.Canonical.FromString(source).Encoded()
}

// Fast returns the 16 character lowercase hex xxhash64 of source. It is
// cheaper than Digest but collisions are more likely; use it when sources are
// trusted.
func Fast(source string) string {
	return fmt.Sprintf("%016x", xxhash.Sum64String(source))
}

// Valid reports whether key can be used with a cache as is.
func Valid(key string) bool {
	return journal.ValidKey(key)
}
