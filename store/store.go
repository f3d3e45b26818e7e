// Package store is a read-through layer over a disklru.Cache.
//
// A Store keeps one entry per source identifier. Slot 0 of the entry holds
// JSON metadata describing the value and slot 1 holds the payload, optionally
// zstd-compressed. On a miss, Load computes the value with a caller-supplied
// function and stores it; concurrent loads of the same source share one
// computation.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"slices"
	"time"

	"github.com/klauspost/compress/zstd"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/meigma/disklru"
	"github.com/meigma/disklru/cachekey"
)

// Slot layout of every entry.
const (
	metaSlot    = 0
	payloadSlot = 1
	valueCount  = 2
)

// ErrValueCount is returned by New when the cache was not opened with two
// values per entry.
var ErrValueCount = fmt.Errorf("%w: store needs a cache with %d values per entry", disklru.ErrInvalidArgument, valueCount)

// Meta describes a stored value.
type Meta struct {
	// Source is the identifier the value was stored under.
	Source string `json:"source"`

	// Encoding is the compression applied to the payload on disk.
	Encoding Compression `json:"encoding"`

	// Size is the length of the value before encoding.
	Size int64 `json:"size"`

	// StoredAt is when Put wrote the value.
	StoredAt time.Time `json:"stored_at"`
}

// FillFunc computes the value of a source after a miss.
type FillFunc func(ctx context.Context) ([]byte, error)

// Store maps source identifiers to cached byte values.
//
// A Store is safe for concurrent use. It does not own the cache; closing the
// cache is the caller's job.
type Store struct {
	cache            *disklru.Cache
	keyFunc          cachekey.Func
	compression      Compression
	maxDecoderMemory uint64
	logger           *slog.Logger

	encoder  *zstd.Encoder
	decoders *decoderPool
	group    singleflight.Group
	now      func() time.Time
}

// New returns a Store backed by c, which must hold two values per entry.
func New(c *disklru.Cache, opts ...Option) (*Store, error) {
	if c == nil {
		return nil, fmt.Errorf("%w: cache is nil", disklru.ErrInvalidArgument)
	}
	if c.ValueCount() != valueCount {
		return nil, ErrValueCount
	}
	s := &Store{
		cache:       c,
		keyFunc:     cachekey.Digest,
		compression: CompressionNone,
		now:         time.Now,
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}

	// EncodeAll is safe for concurrent use, so one encoder serves every Put.
	if s.compression == CompressionZstd {
		enc, err := zstd.NewWriter(nil, zstd.WithEncoderConcurrency(1), zstd.WithLowerEncoderMem(true))
		if err != nil {
			return nil, fmt.Errorf("create zstd encoder: %w", err)
		}
		s.encoder = enc
	}
	s.decoders = newDecoderPool(s.maxDecoderMemory)
	return s, nil
}

// log returns the logger, falling back to a discard logger if nil.
func (s *Store) log() *slog.Logger {
	if s.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return s.logger
}

// Key returns the cache key used for source.
func (s *Store) Key(source string) string {
	return s.keyFunc(source)
}

// Get returns the value stored for source. It returns disklru.ErrNotFound if
// there is none. Entries that cannot be decoded are removed and reported as
// misses.
func (s *Store) Get(source string) ([]byte, Meta, error) {
	key := s.keyFunc(source)
	snap, err := s.cache.Get(key)
	if err != nil {
		return nil, Meta{}, err
	}
	defer snap.Close()

	raw, err := io.ReadAll(snap.Reader(metaSlot))
	if err != nil {
		return nil, Meta{}, fmt.Errorf("read metadata: %w", err)
	}
	var meta Meta
	if err := json.Unmarshal(raw, &meta); err != nil {
		s.discard(key, "invalid metadata", err)
		return nil, Meta{}, disklru.ErrNotFound
	}
	if meta.Source != source {
		// Two sources hashed to the same key; the other one owns the entry.
		s.log().Debug("cache key collision", "key", key, "source", source, "stored_source", meta.Source)
		return nil, Meta{}, disklru.ErrNotFound
	}

	data, err := s.decode(meta.Encoding, snap.Reader(payloadSlot))
	if err != nil {
		s.discard(key, "undecodable payload", err)
		return nil, Meta{}, disklru.ErrNotFound
	}
	if int64(len(data)) != meta.Size {
		s.discard(key, "payload size mismatch", fmt.Errorf("got %d bytes, want %d", len(data), meta.Size))
		return nil, Meta{}, disklru.ErrNotFound
	}
	return data, meta, nil
}

// Put stores data for source, replacing any previous value. If another
// writer is updating the same entry, Put leaves it alone and returns nil.
func (s *Store) Put(source string, data []byte) error {
	key := s.keyFunc(source)
	meta := Meta{
		Source:   source,
		Encoding: s.compression,
		Size:     int64(len(data)),
		StoredAt: s.now().UTC(),
	}
	raw, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	payload := s.encode(data)

	ed, err := s.cache.Edit(key)
	if errors.Is(err, disklru.ErrEntryBusy) {
		s.log().Debug("skipping put of busy entry", "key", key, "source", source)
		return nil
	}
	if err != nil {
		return err
	}
	defer ed.Close()

	if err := writeSlot(ed, metaSlot, raw); err != nil {
		return err
	}
	if err := writeSlot(ed, payloadSlot, payload); err != nil {
		return err
	}
	return ed.Commit()
}

func writeSlot(ed *disklru.Editor, slot int, data []byte) error {
	w, err := ed.NewWriter(slot)
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return err
	}
	return w.Close()
}

// Load returns the value for source, calling fill to compute it on a miss.
//
// Concurrent calls for the same source share one call to fill, made with the
// context of the first caller. The computed value is stored before it is
// returned; failing to store it is logged, not returned. If fill fails or ctx
// is done by the time fill returns, nothing is stored and the error is
// returned.
func (s *Store) Load(ctx context.Context, source string, fill FillFunc) ([]byte, error) {
	data, _, err := s.Get(source)
	if err == nil {
		return data, nil
	}
	if !errors.Is(err, disklru.ErrNotFound) {
		return nil, err
	}

	result, err, _ := s.group.Do(source, func() (any, error) {
		// Another caller may have stored the value since our Get.
		if data, _, err := s.Get(source); err == nil {
			return data, nil
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		data, err := fill(ctx)
		if err != nil {
			return nil, err
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := s.Put(source, data); err != nil {
			s.log().Warn("store computed value", "source", source, "error", err)
		}
		return data, nil
	})
	if err != nil {
		return nil, err
	}
	data, _ = result.([]byte) //nolint:errcheck // always []byte when err is nil
	return data, nil
}

// Warm loads every source in items, running up to parallel fills at once.
// A parallel value <= 0 means no limit. The first error cancels the rest
// and is returned.
func (s *Store) Warm(ctx context.Context, items map[string]FillFunc, parallel int) error {
	g, ctx := errgroup.WithContext(ctx)
	if parallel > 0 {
		g.SetLimit(parallel)
	}
	for _, source := range slices.Sorted(maps.Keys(items)) {
		fill := items[source]
		g.Go(func() error {
			if _, err := s.Load(ctx, source, fill); err != nil {
				return fmt.Errorf("warm %s: %w", source, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// Close releases the zstd encoder. It does not close the cache.
func (s *Store) Close() error {
	if s.encoder != nil {
		return s.encoder.Close()
	}
	return nil
}

// discard removes an entry that cannot be read back.
func (s *Store) discard(key, reason string, cause error) {
	s.log().Warn("discarding cache entry", "key", key, "reason", reason, "error", cause)
	if _, err := s.cache.Remove(key); err != nil {
		s.log().Warn("remove discarded entry", "key", key, "error", err)
	}
}
