// Package hasher computes BLAKE3-256 content digests over byte sources.
//
// The digest depends only on the logical byte sequence, never on how the
// sequence was split into chunks, so a buffer and any chunking of the same
// bytes hash identically.
package hasher

import (
	"context"
	"errors"
	"hash"
	"io"

	"lukechampine.com/blake3"

	"github.com/meigma/portal/source"
)

// Size is the digest length in bytes.
const Size = 32

// New returns an incremental BLAKE3-256 hash.
func New() hash.Hash {
	return blake3.New(Size, nil)
}

// SumBytes returns the digest of b.
func SumBytes(b []byte) [Size]byte {
	return blake3.Sum256(b)
}

// Sum returns the digest of every byte in src. Streams are consumed; tee
// them first when the bytes are needed elsewhere.
func Sum(ctx context.Context, src source.Source) ([Size]byte, error) {
	if src == nil {
		return [Size]byte{}, source.ErrInvalidSource
	}
	if b, ok := src.(*source.Buffer); ok {
		return SumBytes(b.Data()), nil
	}
	r, err := src.Open()
	if err != nil {
		return [Size]byte{}, err
	}
	return SumChunks(ctx, r)
}

// SumChunks returns the digest of every chunk r yields.
func SumChunks(ctx context.Context, r source.ChunkReader) ([Size]byte, error) {
	var out [Size]byte
	if r == nil {
		return out, source.ErrInvalidSource
	}
	h := New()
	for {
		chunk, err := r.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return out, err
		}
		_, _ = h.Write(chunk) //nolint:errcheck // hash writes never fail
	}
	h.Sum(out[:0])
	return out, nil
}

// SumReader returns the digest of everything read from r.
func SumReader(r io.Reader) ([Size]byte, error) {
	var out [Size]byte
	if r == nil {
		return out, source.ErrInvalidSource
	}
	hr := NewHashingReader(r)
	if _, err := io.Copy(io.Discard, hr); err != nil {
		return out, err
	}
	copy(out[:], hr.Sum())
	return out, nil
}

// HashingReader wraps an io.Reader and computes a digest of all data read.
type HashingReader struct {
	r io.Reader
	h hash.Hash
	n int64
}

// NewHashingReader creates a reader that computes a digest while reading.
func NewHashingReader(r io.Reader) *HashingReader {
	return &HashingReader{r: r, h: New()}
}

// Read implements io.Reader.
func (hr *HashingReader) Read(p []byte) (int, error) {
	n, err := hr.r.Read(p)
	if n > 0 {
		_, _ = hr.h.Write(p[:n]) //nolint:errcheck // hash writes never fail
		hr.n += int64(n)
	}
	return n, err
}

// Sum returns the digest of the data read so far.
func (hr *HashingReader) Sum() []byte {
	return hr.h.Sum(nil)
}

// Count returns the number of bytes read so far.
func (hr *HashingReader) Count() int64 {
	return hr.n
}
