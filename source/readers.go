package source

import (
	"context"
	"errors"
	"io"
	"sync"
)

// cancelState records the cancellation cause shared by the readers below.
type cancelState struct {
	mu    sync.Mutex
	cause error
}

func (c *cancelState) cancel(cause error) bool {
	if cause == nil {
		cause = ErrCancelled
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cause != nil {
		return false
	}
	c.cause = cause
	return true
}

func (c *cancelState) err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cause
}

type sliceReader struct {
	cancelState
	chunks [][]byte
}

// FromChunks returns a reader that yields the given chunks in order.
// Empty chunks are skipped.
func FromChunks(chunks ...[]byte) ChunkReader {
	return &sliceReader{chunks: chunks}
}

func (s *sliceReader) Next(ctx context.Context) ([]byte, error) {
	if err := s.err(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for len(s.chunks) > 0 {
		chunk := s.chunks[0]
		s.chunks = s.chunks[1:]
		if len(chunk) > 0 {
			return chunk, nil
		}
	}
	return nil, io.EOF
}

func (s *sliceReader) Cancel(cause error) {
	if s.cancel(cause) {
		s.mu.Lock()
		s.chunks = nil
		s.mu.Unlock()
	}
}

type ioReader struct {
	cancelState
	r         io.Reader
	chunkSize int
	eof       bool
}

// FromReader returns a reader that yields whatever each Read of r returns,
// up to chunkSize bytes per chunk. Chunk sizes follow the underlying reader
// and are not predictable. Cancel closes r if it implements io.Closer.
func FromReader(r io.Reader, chunkSize int) ChunkReader {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &ioReader{r: r, chunkSize: chunkSize}
}

func (s *ioReader) Next(ctx context.Context) ([]byte, error) {
	if err := s.err(); err != nil {
		return nil, err
	}
	if s.eof {
		return nil, io.EOF
	}
	buf := make([]byte, s.chunkSize)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		n, err := s.r.Read(buf)
		if cause := s.err(); cause != nil {
			return nil, cause
		}
		if errors.Is(err, io.EOF) {
			s.eof = true
			if n > 0 {
				return buf[:n], nil
			}
			return nil, io.EOF
		}
		if err != nil {
			return nil, err
		}
		if n > 0 {
			return buf[:n], nil
		}
	}
}

func (s *ioReader) Cancel(cause error) {
	if !s.cancel(cause) {
		return
	}
	if c, ok := s.r.(io.Closer); ok {
		_ = c.Close()
	}
}

type funcReader struct {
	cancelState
	next func(ctx context.Context) ([]byte, error)
}

// Func adapts a pull function to a ChunkReader. The function returns io.EOF
// when exhausted.
func Func(next func(ctx context.Context) ([]byte, error)) ChunkReader {
	return &funcReader{next: next}
}

func (f *funcReader) Next(ctx context.Context) ([]byte, error) {
	if err := f.err(); err != nil {
		return nil, err
	}
	return f.next(ctx)
}

func (f *funcReader) Cancel(cause error) {
	f.cancel(cause)
}
