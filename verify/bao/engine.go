// Package bao provides an in-process verification engine backed by the Bao
// streaming decoder for BLAKE3.
//
// Proofs are Bao outboard encodings with the default group size (one
// 1 KiB chunk per group), and the root commitment is the BLAKE3-256 hash of
// the content. The decoder runs in its own goroutine and asks for input one
// group at a time, so the engine never holds more than a group of
// unverified bytes.
package bao

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	blake3bao "lukechampine.com/blake3/bao"

	"github.com/meigma/portal/verify"
)

// Group is the Bao group exponent used for proofs. Zero means each group is
// a single 1 KiB BLAKE3 chunk.
const Group = 0

var (
	// ErrExited is returned by calls made after Exit.
	ErrExited = errors.New("bao: engine exited")

	// ErrNotReady is returned by Next when the root or proof is missing.
	ErrNotReady = errors.New("bao: root and proof must be set before reading")

	// ErrUnexpectedWrite is returned by Write when the engine did not ask for
	// input.
	ErrUnexpectedWrite = errors.New("bao: write without a pending request")
)

// Encode returns the outboard proof and root commitment for data.
func Encode(data []byte) (proof []byte, root [32]byte) {
	return blake3bao.EncodeBuf(data, Group, true)
}

// Verify reports whether data matches proof and root.
func Verify(data, proof []byte, root [32]byte) bool {
	return blake3bao.VerifyBuf(data, proof, Group, root)
}

// New starts an engine. It satisfies verify.Factory.
func New(context.Context) (verify.Engine, error) {
	return &Engine{
		reqs: make(chan int),
		data: make(chan []byte),
		quit: make(chan struct{}),
		done: make(chan struct{}),
	}, nil
}

// Engine implements verify.Engine.
type Engine struct {
	root    [32]byte
	hasRoot bool
	proof   []byte

	reqs chan int
	data chan []byte
	quit chan struct{}
	done chan struct{}

	started     bool
	awaiting    bool
	writeClosed bool
	closeOnce   sync.Once
	exitOnce    sync.Once

	out outputBuffer

	// Set by the decode goroutine before done is closed.
	ok  bool
	err error
}

var _ verify.Engine = (*Engine)(nil)

// SetRoot implements verify.Engine.
func (e *Engine) SetRoot(root []byte) error {
	if len(root) != len(e.root) {
		return fmt.Errorf("bao: root must be %d bytes, got %d", len(e.root), len(root))
	}
	if e.started {
		return errors.New("bao: root set after start")
	}
	copy(e.root[:], root)
	e.hasRoot = true
	return nil
}

// SetProof implements verify.Engine.
func (e *Engine) SetProof(proof []byte) error {
	if e.started {
		return errors.New("bao: proof set after start")
	}
	e.proof = bytes.Clone(proof)
	if e.proof == nil {
		e.proof = []byte{}
	}
	return nil
}

func (e *Engine) start() {
	e.started = true
	in := &inputReader{reqs: e.reqs, data: e.data, quit: e.quit}
	go func() {
		defer close(e.done)
		e.ok, e.err = blake3bao.Decode(&e.out, in, bytes.NewReader(e.proof), Group, e.root)
	}()
}

// Write implements verify.Engine.
func (e *Engine) Write(p []byte) error {
	if !e.awaiting {
		return ErrUnexpectedWrite
	}
	e.awaiting = false
	select {
	case e.data <- bytes.Clone(p):
		return nil
	case <-e.done:
		return nil
	case <-e.quit:
		return ErrExited
	}
}

// CloseWrite implements verify.Engine.
func (e *Engine) CloseWrite() error {
	e.closeOnce.Do(func() {
		e.writeClosed = true
		e.awaiting = false
		close(e.data)
	})
	return nil
}

// Next implements verify.Engine.
func (e *Engine) Next(ctx context.Context) (int, bool, error) {
	select {
	case <-e.quit:
		return 0, false, ErrExited
	default:
	}
	if !e.started {
		if !e.hasRoot || e.proof == nil {
			return 0, false, ErrNotReady
		}
		e.start()
	}
	if e.awaiting {
		return 0, false, ErrUnexpectedWrite
	}
	for {
		select {
		case n := <-e.reqs:
			if e.writeClosed {
				// The decoder sees io.EOF on its next receive.
				continue
			}
			e.awaiting = true
			return n, false, nil
		case <-e.done:
			return 0, true, nil
		case <-ctx.Done():
			return 0, false, context.Cause(ctx)
		case <-e.quit:
			return 0, false, ErrExited
		}
	}
}

// Output implements verify.Engine.
func (e *Engine) Output() []byte {
	return e.out.take()
}

// Result implements verify.Engine.
func (e *Engine) Result() (ok, finished bool) {
	select {
	case <-e.done:
		return e.ok, true
	default:
		return false, false
	}
}

// Err implements verify.Engine.
func (e *Engine) Err() error {
	select {
	case <-e.done:
		return e.err
	default:
		return nil
	}
}

// Exit implements verify.Engine. It stops the decode goroutine and waits
// for it to return.
func (e *Engine) Exit() {
	e.exitOnce.Do(func() {
		close(e.quit)
		if e.started {
			<-e.done
		}
	})
}

// inputReader hands the decoder exactly the bytes it asks for, one request
// at a time.
type inputReader struct {
	reqs  chan<- int
	data  <-chan []byte
	quit  <-chan struct{}
	inbox []byte
	eof   bool
}

func (r *inputReader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if len(r.inbox) == 0 {
		if r.eof {
			return 0, io.EOF
		}
		select {
		case r.reqs <- len(p):
		case <-r.quit:
			return 0, ErrExited
		}
		select {
		case b, ok := <-r.data:
			if !ok {
				r.eof = true
				return 0, io.EOF
			}
			r.inbox = b
		case <-r.quit:
			return 0, ErrExited
		}
	}
	n := copy(p, r.inbox)
	r.inbox = r.inbox[n:]
	return n, nil
}

// outputBuffer collects verified groups written by the decoder.
type outputBuffer struct {
	mu  sync.Mutex
	buf []byte
}

func (b *outputBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = append(b.buf, p...)
	return len(p), nil
}

func (b *outputBuffer) take() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.buf
	b.buf = nil
	return out
}
