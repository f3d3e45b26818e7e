package store

import (
	"fmt"
	"io"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// Compression is the encoding applied to payloads before they are written.
type Compression string

const (
	// CompressionNone stores payloads as is.
	CompressionNone Compression = "none"

	// CompressionZstd stores payloads as a single zstd frame.
	CompressionZstd Compression = "zstd"
)

func (c Compression) valid() bool {
	return c == CompressionNone || c == CompressionZstd
}

// decoderPool reuses zstd decoders between reads. A decoder holds several
// buffers, so allocating one per Get dominates small reads.
type decoderPool struct {
	pool      sync.Pool
	maxMemory uint64
}

func newDecoderPool(maxMemory uint64) *decoderPool {
	p := &decoderPool{maxMemory: maxMemory}
	p.pool.New = func() any {
		dec, err := p.newDecoder(nil)
		if err != nil {
			return nil
		}
		return dec
	}
	return p
}

// get returns a decoder reading from r. release must be called when done,
// unless an error is returned.
func (p *decoderPool) get(r io.Reader) (*zstd.Decoder, func(), error) {
	dec, ok := p.pool.Get().(*zstd.Decoder)
	if !ok {
		// New failed; fall back to a decoder that is not returned to the pool.
		fresh, err := p.newDecoder(r)
		if err != nil {
			return nil, nil, err
		}
		return fresh, fresh.Close, nil
	}
	if err := dec.Reset(r); err != nil {
		dec.Close()
		return nil, nil, fmt.Errorf("reset decoder: %w", err)
	}
	return dec, func() {
		_ = dec.Reset(nil) //nolint:errcheck // drop the reference to r before pooling
		p.pool.Put(dec)
	}, nil
}

func (p *decoderPool) newDecoder(r io.Reader) (*zstd.Decoder, error) {
	opts := []zstd.DOption{
		zstd.WithDecoderConcurrency(1),
		zstd.WithDecoderLowmem(false),
	}
	if p.maxMemory != 0 {
		opts = append(opts, zstd.WithDecoderMaxMemory(p.maxMemory))
	}
	return zstd.NewReader(r, opts...)
}

// decode reads the whole payload from r according to enc.
func (s *Store) decode(enc Compression, r io.Reader) ([]byte, error) {
	switch enc {
	case CompressionNone:
		return io.ReadAll(r)
	case CompressionZstd:
		dec, release, err := s.decoders.get(r)
		if err != nil {
			return nil, err
		}
		defer release()
		return io.ReadAll(dec)
	default:
		return nil, fmt.Errorf("unknown encoding %q", enc)
	}
}

// encode returns data in the store's configured encoding.
func (s *Store) encode(data []byte) []byte {
	if s.compression == CompressionZstd {
		return s.encoder.EncodeAll(data, make([]byte, 0, len(data)/2))
	}
	return data
}
