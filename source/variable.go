package source

import (
	"context"
	"errors"
	"io"
	"sync"
)

// VariableReader serves exact-size reads from a ChunkReader whose chunk
// sizes are arbitrary. Bytes left over from a chunk are kept for the next
// read.
type VariableReader struct {
	src ChunkReader

	mu     sync.Mutex
	buf    []byte
	eof    bool
	cancel error
}

// NewVariableReader returns a VariableReader over src.
func NewVariableReader(src ChunkReader) *VariableReader {
	return &VariableReader{src: src}
}

// Read returns exactly n bytes while the source has them. Once the source
// is exhausted it returns whatever remains, possibly nothing, with final
// set. The returned slice is valid until the reader is discarded and must
// not be modified.
func (r *VariableReader) Read(ctx context.Context, n int) ([]byte, bool, error) {
	if n < 0 {
		n = 0
	}
	for {
		r.mu.Lock()
		if r.cancel != nil {
			err := r.cancel
			r.mu.Unlock()
			return nil, false, err
		}
		if len(r.buf) >= n && (n > 0 || !r.eof) {
			out := r.buf[:n:n]
			r.buf = r.buf[n:]
			r.mu.Unlock()
			return out, false, nil
		}
		if r.eof {
			out := r.buf
			r.buf = nil
			r.mu.Unlock()
			return out, true, nil
		}
		r.mu.Unlock()

		chunk, err := r.src.Next(ctx)

		r.mu.Lock()
		switch {
		case r.cancel != nil:
			err = r.cancel
		case errors.Is(err, io.EOF):
			r.eof = true
			err = nil
		case err == nil:
			r.buf = append(r.buf, chunk...)
		}
		r.mu.Unlock()
		if err != nil {
			return nil, false, err
		}
	}
}

// Buffered returns the number of bytes held from previous chunks.
func (r *VariableReader) Buffered() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.buf)
}

// Cancel drops any buffered bytes and cancels the source. It may be called
// concurrently with a blocked Read.
func (r *VariableReader) Cancel(cause error) {
	if cause == nil {
		cause = ErrCancelled
	}
	r.mu.Lock()
	if r.cancel != nil {
		r.mu.Unlock()
		return
	}
	r.cancel = cause
	r.buf = nil
	r.mu.Unlock()
	r.src.Cancel(cause)
}
