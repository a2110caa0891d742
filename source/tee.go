package source

import (
	"context"
	"sync"
)

// Tee splits r into two readers that each observe every chunk of r.
//
// Whichever branch asks for a chunk its queue does not yet hold pulls from
// r and queues the chunk for the other branch, so neither branch waits for
// the other to make progress. The queue of a lagging branch grows until
// that branch catches up. Cancelling one branch drops its queue and leaves
// the other branch running; r itself is cancelled once both branches are.
//
// Both branches may be used from different goroutines.
func Tee(r ChunkReader) (ChunkReader, ChunkReader) {
	t := &tee{src: r, pull: make(chan struct{}, 1)}
	return &teeBranch{t: t, idx: 0}, &teeBranch{t: t, idx: 1}
}

type tee struct {
	src  ChunkReader
	pull chan struct{} // held by the branch currently reading src

	mu        sync.Mutex
	queues    [2][][]byte
	cancelled [2]error
	err       error // terminal error from src, including io.EOF
}

type teeBranch struct {
	t   *tee
	idx int
}

// take resolves Next from the branch's queue or from terminal state.
// The caller holds t.mu.
func (b *teeBranch) take() ([]byte, error, bool) {
	t := b.t
	if cause := t.cancelled[b.idx]; cause != nil {
		return nil, cause, true
	}
	if q := t.queues[b.idx]; len(q) > 0 {
		chunk := q[0]
		q[0] = nil
		t.queues[b.idx] = q[1:]
		return chunk, nil, true
	}
	if t.err != nil {
		return nil, t.err, true
	}
	return nil, nil, false
}

func (b *teeBranch) Next(ctx context.Context) ([]byte, error) {
	t := b.t

	t.mu.Lock()
	chunk, err, ok := b.take()
	t.mu.Unlock()
	if ok {
		return chunk, err
	}

	select {
	case t.pull <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-t.pull }()

	// The other branch may have pulled while we waited.
	t.mu.Lock()
	chunk, err, ok = b.take()
	t.mu.Unlock()
	if ok {
		return chunk, err
	}

	chunk, err = t.src.Next(ctx)

	t.mu.Lock()
	defer t.mu.Unlock()
	if err != nil {
		if ctx.Err() == nil {
			t.err = err
		}
		return nil, err
	}
	other := 1 - b.idx
	if t.cancelled[other] == nil {
		t.queues[other] = append(t.queues[other], chunk)
	}
	if cause := t.cancelled[b.idx]; cause != nil {
		return nil, cause
	}
	return chunk, nil
}

func (b *teeBranch) Cancel(cause error) {
	if cause == nil {
		cause = ErrCancelled
	}
	t := b.t
	t.mu.Lock()
	if t.cancelled[b.idx] != nil {
		t.mu.Unlock()
		return
	}
	t.cancelled[b.idx] = cause
	t.queues[b.idx] = nil
	both := t.cancelled[1-b.idx] != nil
	t.mu.Unlock()

	if both {
		t.src.Cancel(cause)
	}
}
