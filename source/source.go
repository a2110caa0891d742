// Package source provides the byte sources consumed by the upload and
// verified-download paths.
//
// Every source is read through a [ChunkReader], a pull-driven producer of
// byte chunks. Nothing is read until a consumer asks for the next chunk, so
// a slow consumer stalls the producer instead of growing a buffer.
//
// Two kinds of [Source] exist. Random-access sources ([Bytes], [Section])
// know their size and may be opened any number of times. Streams ([Stream])
// wrap a single ChunkReader and may be opened once; use [Tee] when two
// consumers need the same stream.
package source

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
)

// DefaultChunkSize is the chunk size used by readers that split their input.
const DefaultChunkSize = 256 << 10 // 256 KiB

// UnknownSize marks a stream whose length is not known in advance.
const UnknownSize int64 = -1

// ChunkReader yields a byte sequence as consecutive chunks.
type ChunkReader interface {
	// Next returns the next chunk, or io.EOF once the sequence is exhausted.
	// Returned chunks must be treated as read-only.
	Next(ctx context.Context) ([]byte, error)

	// Cancel stops the reader and releases its resources. Subsequent calls
	// to Next return cause (or ErrCancelled if cause is nil). Cancel may be
	// called concurrently with a blocked Next to abort it.
	Cancel(cause error)
}

// Source is a byte source that can produce chunk readers.
type Source interface {
	// Size returns the total length in bytes, if known.
	Size() (int64, bool)

	// Open returns a reader over the source's bytes.
	Open() (ChunkReader, error)
}

// RandomAccess is a Source that also supports positioned reads.
type RandomAccess interface {
	Source
	io.ReaderAt
}

// Buffer is a finite in-memory source.
type Buffer struct {
	data []byte
}

// Bytes returns a source over b. The slice is not copied and must not be
// modified while the source is in use.
func Bytes(b []byte) *Buffer {
	return &Buffer{data: b}
}

// Size returns the buffer length.
func (b *Buffer) Size() (int64, bool) {
	return int64(len(b.data)), true
}

// Open returns a reader that yields the whole buffer as one chunk.
func (b *Buffer) Open() (ChunkReader, error) {
	if len(b.data) == 0 {
		return FromChunks(), nil
	}
	return FromChunks(b.data), nil
}

// ReadAt implements io.ReaderAt.
func (b *Buffer) ReadAt(p []byte, off int64) (int, error) {
	return bytes.NewReader(b.data).ReadAt(p, off)
}

// Data returns the backing slice.
func (b *Buffer) Data() []byte {
	return b.data
}

// SectionSource is a random-access source over an io.ReaderAt, such as an
// *os.File.
type SectionSource struct {
	r         io.ReaderAt
	size      int64
	chunkSize int
}

// Section returns a source over the first size bytes of r.
func Section(r io.ReaderAt, size int64) *SectionSource {
	return &SectionSource{r: r, size: size, chunkSize: DefaultChunkSize}
}

// Size returns the section length.
func (s *SectionSource) Size() (int64, bool) {
	return s.size, true
}

// Open returns a fresh sequential reader over the section.
func (s *SectionSource) Open() (ChunkReader, error) {
	return FromReader(io.NewSectionReader(s.r, 0, s.size), s.chunkSize), nil
}

// ReadAt implements io.ReaderAt, bounded to the section.
func (s *SectionSource) ReadAt(p []byte, off int64) (int, error) {
	return io.NewSectionReader(s.r, 0, s.size).ReadAt(p, off)
}

// StreamSource is a single-use source over a ChunkReader.
type StreamSource struct {
	mu     sync.Mutex
	r      ChunkReader
	size   int64
	opened bool
}

// Stream returns a single-use source over r. Pass UnknownSize when the
// length is not known.
func Stream(r ChunkReader, size int64) *StreamSource {
	if size < 0 {
		size = UnknownSize
	}
	return &StreamSource{r: r, size: size}
}

// Size returns the declared stream length, if any.
func (s *StreamSource) Size() (int64, bool) {
	if s.size < 0 {
		return 0, false
	}
	return s.size, true
}

// Open returns the underlying reader. It fails with ErrConsumed on the
// second call.
func (s *StreamSource) Open() (ChunkReader, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.r == nil {
		return nil, ErrInvalidSource
	}
	if s.opened {
		return nil, ErrConsumed
	}
	s.opened = true
	return s.r, nil
}

// ReadAll drains r into memory.
func ReadAll(ctx context.Context, r ChunkReader) ([]byte, error) {
	var buf bytes.Buffer
	if _, err := Copy(ctx, &buf, r); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Copy writes every chunk of r to w and returns the number of bytes copied.
// On a write error the reader is cancelled.
func Copy(ctx context.Context, w io.Writer, r ChunkReader) (int64, error) {
	var n int64
	for {
		chunk, err := r.Next(ctx)
		if errors.Is(err, io.EOF) {
			return n, nil
		}
		if err != nil {
			return n, err
		}
		written, err := w.Write(chunk)
		n += int64(written)
		if err != nil {
			r.Cancel(err)
			return n, err
		}
	}
}

// Materialize returns the full contents of src.
func Materialize(ctx context.Context, src Source) ([]byte, error) {
	if src == nil {
		return nil, ErrInvalidSource
	}
	if b, ok := src.(*Buffer); ok {
		return b.data, nil
	}
	r, err := src.Open()
	if err != nil {
		return nil, err
	}
	return ReadAll(ctx, r)
}

// MaterializeLimit is like Materialize but reads at most limit+1 bytes. If
// src holds more than limit bytes the result is truncated to limit+1 bytes
// and the reader is cancelled with ErrReadLimit, so callers can detect
// oversized sources without buffering them.
func MaterializeLimit(ctx context.Context, src Source, limit int64) ([]byte, error) {
	if src == nil {
		return nil, ErrInvalidSource
	}
	if limit < 0 {
		limit = 0
	}
	if b, ok := src.(*Buffer); ok {
		return b.data[:min(int64(len(b.data)), limit+1)], nil
	}
	r, err := src.Open()
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	for int64(buf.Len()) <= limit {
		chunk, err := r.Next(ctx)
		if errors.Is(err, io.EOF) {
			return buf.Bytes(), nil
		}
		if err != nil {
			return nil, err
		}
		room := limit + 1 - int64(buf.Len())
		buf.Write(chunk[:min(int64(len(chunk)), room)])
	}
	r.Cancel(ErrReadLimit)
	return buf.Bytes(), nil
}
