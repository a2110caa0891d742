// Package verify turns a stream of untrusted bytes into a stream of verified
// bytes by driving an incremental verification [Engine].
//
// The engine decides how many bytes it wants next; the [Reader] pulls exactly
// that many from the source, feeds them in, and hands the caller only what
// the engine has certified. Nothing is read from the source until the caller
// reads from the Reader.
package verify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/meigma/portal/source"
)

type state int

const (
	stateRunning state = iota
	stateCompleted
	stateFailed
	stateCancelled
)

var errVerdictFalse = errors.New("content does not match root")

// Reader is an io.ReadCloser over verified bytes.
//
// A Reader owns its engine and its source. Both are released when the
// stream completes, fails, or is closed, with the source always cancelled
// before the engine exits.
type Reader struct {
	ctx    context.Context
	cancel context.CancelCauseFunc
	src    *source.VariableReader
	engine Engine
	logger *slog.Logger

	exitOnce sync.Once
	closed   atomic.Bool
	verified atomic.Int64

	mu       sync.Mutex
	state    state
	want     int
	pending  []byte
	err      error
}

// NewReader starts an engine from factory, registers root and proof, and
// returns a Reader that verifies the bytes produced by src.
//
// The engine is asked for its first read size before NewReader returns.
// On error the source is cancelled and the engine, if one was started, is
// released.
func NewReader(ctx context.Context, factory Factory, root, proof []byte, src source.ChunkReader, opts ...Option) (*Reader, error) {
	if src == nil {
		return nil, source.ErrInvalidSource
	}
	if factory == nil {
		src.Cancel(ErrNoEngine)
		return nil, ErrNoEngine
	}

	ictx, cancel := context.WithCancelCause(ctx)
	engine, err := factory(ictx)
	if err != nil {
		err = fmt.Errorf("start verifier engine: %w", err)
		src.Cancel(err)
		cancel(err)
		return nil, err
	}

	r := &Reader{
		ctx:    ictx,
		cancel: cancel,
		src:    source.NewVariableReader(src),
		engine: engine,
	}
	for _, opt := range opts {
		opt(r)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.start(root, proof); err != nil {
		r.fail(err)
		return nil, r.err
	}
	return r, nil
}

func (r *Reader) log() *slog.Logger {
	if r.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return r.logger
}

func (r *Reader) start(root, proof []byte) error {
	if err := r.engine.SetRoot(root); err != nil {
		return fmt.Errorf("%w: set root: %w", ErrVerificationFailed, err)
	}
	if err := r.engine.SetProof(proof); err != nil {
		return fmt.Errorf("%w: set proof: %w", ErrVerificationFailed, err)
	}
	want, done, err := r.engine.Next(r.ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrVerificationFailed, err)
	}
	r.collect()
	r.want = want
	if done {
		r.finish()
	}
	return nil
}

// Read implements io.Reader. It returns io.EOF once every byte has been
// verified, and an error wrapping ErrVerificationFailed if verification
// fails. Bytes certified before a failure are delivered before the error.
func (r *Reader) Read(p []byte) (int, error) {
	if r.closed.Load() {
		return 0, ErrClosed
	}
	if len(p) == 0 {
		return 0, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for len(r.pending) == 0 {
		if r.state != stateRunning {
			return 0, r.terminalErr()
		}
		if err := r.step(); err != nil {
			r.fail(err)
		}
	}
	if r.closed.Load() {
		return 0, ErrClosed
	}
	n := copy(p, r.pending)
	r.pending = r.pending[n:]
	return n, nil
}

// step performs one exchange with the engine. Called with mu held.
func (r *Reader) step() error {
	chunk, final, err := r.src.Read(r.ctx, r.want)
	if err != nil {
		return fmt.Errorf("read source: %w", err)
	}
	if len(chunk) > 0 {
		if err := r.engine.Write(chunk); err != nil {
			return fmt.Errorf("%w: %w", ErrVerificationFailed, err)
		}
	}
	if final {
		if err := r.engine.CloseWrite(); err != nil {
			return fmt.Errorf("%w: %w", ErrVerificationFailed, err)
		}
	}

	want, done, err := r.engine.Next(r.ctx)
	r.collect()
	if err != nil {
		if cause := context.Cause(r.ctx); cause != nil {
			return cause
		}
		return fmt.Errorf("%w: %w", ErrVerificationFailed, err)
	}
	r.want = want
	if done || final {
		r.finish()
	}
	return nil
}

func (r *Reader) collect() {
	out := r.engine.Output()
	if len(out) == 0 {
		return
	}
	r.pending = append(r.pending, out...)
	r.verified.Add(int64(len(out)))
}

// finish settles the stream from the engine's verdict. Called with mu held.
func (r *Reader) finish() {
	ok, finished := r.engine.Result()
	switch {
	case finished && ok:
		r.state = stateCompleted
		r.src.Cancel(nil)
		r.cancel(nil)
		r.release()
		r.log().Debug("verified stream complete", "bytes", r.verified.Load())
	case !finished:
		r.fail(fmt.Errorf("%w: source ended before verification finished", ErrVerificationFailed))
	default:
		engErr := r.engine.Err()
		if engErr == nil {
			engErr = errVerdictFalse
		}
		r.fail(fmt.Errorf("%w: %w", ErrVerificationFailed, engErr))
	}
}

// fail moves the reader to the failed state. Called with mu held.
func (r *Reader) fail(err error) {
	if r.state != stateRunning {
		return
	}
	r.state = stateFailed
	r.err = err
	r.src.Cancel(err)
	r.cancel(err)
	r.release()
	r.log().Warn("verified stream failed", "bytes", r.verified.Load(), "error", err)
}

func (r *Reader) release() {
	r.exitOnce.Do(r.engine.Exit)
}

func (r *Reader) terminalErr() error {
	if r.closed.Load() {
		return ErrClosed
	}
	switch r.state {
	case stateCompleted:
		return io.EOF
	case stateFailed:
		return r.err
	default:
		return ErrClosed
	}
}

// Close cancels the stream. The source is cancelled first, then the engine
// is released. Close is safe to call concurrently with Read and more than
// once.
func (r *Reader) Close() error {
	if !r.closed.CompareAndSwap(false, true) {
		return nil
	}
	r.cancel(ErrClosed)
	r.src.Cancel(ErrClosed)

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == stateRunning {
		r.state = stateCancelled
		r.err = ErrClosed
		r.log().Debug("verified stream closed", "bytes", r.verified.Load())
	}
	r.pending = nil
	r.release()
	return nil
}

// Verified returns the number of bytes the engine has certified so far. It
// does not wait for a Read in progress.
func (r *Reader) Verified() int64 {
	return r.verified.Load()
}
