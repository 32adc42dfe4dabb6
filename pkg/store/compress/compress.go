// Package compress provides the payload compressors for file-backed caches.
// Encoded payloads carry a one byte header naming the algorithm, so a cache
// written with one compressor can be read back after switching to another.
package compress

import (
	"errors"
	"fmt"

	"github.com/klauspost/compress/s2"
	"github.com/klauspost/compress/zstd"
)

// Algorithm identifiers stored in the payload header.
const (
	IDNone byte = 'n'
	IDS2   byte = 's'
	IDZstd byte = 'z'
)

// ErrUnknownAlgorithm is returned by Unwrap for an unrecognized header.
var ErrUnknownAlgorithm = errors.New("unknown compression algorithm")

// Compressor compresses and decompresses data.
type Compressor interface {
	Encode(data []byte) ([]byte, error)
	Decode(data []byte) ([]byte, error)
	ID() byte
}

type none struct{}

// None returns a pass-through compressor (no compression).
func None() Compressor { return none{} }

func (none) Encode(data []byte) ([]byte, error) { return data, nil }
func (none) Decode(data []byte) ([]byte, error) { return data, nil }
func (none) ID() byte                           { return IDNone }

type s2c struct{}

// S2 returns a fast compressor using S2 (improved Snappy).
func S2() Compressor { return s2c{} }

func (s2c) Encode(data []byte) ([]byte, error) { return s2.Encode(nil, data), nil }
func (s2c) Decode(data []byte) ([]byte, error) { return s2.Decode(nil, data) }
func (s2c) ID() byte                           { return IDS2 }

type zstdc struct {
	enc *zstd.Encoder
	dec *zstd.Decoder
}

// Zstd returns a compressor using Zstandard.
// Level: 1 (fastest) to 4 (best compression).
func Zstd(level int) Compressor {
	lvl := zstd.SpeedDefault
	if level <= 1 {
		lvl = zstd.SpeedFastest
	} else if level >= 4 {
		lvl = zstd.SpeedBestCompression
	}
	enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(lvl)) //nolint:errcheck // options are valid
	dec, _ := zstd.NewReader(nil)                             //nolint:errcheck // options are valid
	return &zstdc{enc: enc, dec: dec}
}

func (z *zstdc) Encode(data []byte) ([]byte, error) { return z.enc.EncodeAll(data, nil), nil }
func (z *zstdc) Decode(data []byte) ([]byte, error) { return z.dec.DecodeAll(data, nil) }
func (*zstdc) ID() byte                             { return IDZstd }

// decoders is used by Unwrap; zstd decoders are safe for concurrent DecodeAll.
var decoders = map[byte]Compressor{
	IDNone: None(),
	IDS2:   S2(),
	IDZstd: Zstd(2),
}

// Wrap compresses data with c and prefixes the algorithm header.
func Wrap(c Compressor, data []byte) ([]byte, error) {
	if c == nil {
		c = None()
	}
	body, err := c.Encode(data)
	if err != nil {
		return nil, fmt.Errorf("compress: %w", err)
	}
	out := make([]byte, 0, len(body)+1)
	out = append(out, c.ID())
	return append(out, body...), nil
}

// Unwrap reads the header written by Wrap and decompresses the rest.
func Unwrap(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrUnknownAlgorithm)
	}
	c, ok := decoders[data[0]]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownAlgorithm, data[0])
	}
	out, err := c.Decode(data[1:])
	if err != nil {
		return nil, fmt.Errorf("decompress: %w", err)
	}
	return out, nil
}
