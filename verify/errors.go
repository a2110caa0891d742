package verify

import "errors"

var (
	// ErrVerificationFailed is returned when the downloaded bytes do not match
	// the root commitment, or the engine reports an internal error.
	ErrVerificationFailed = errors.New("verify: verification failed")

	// ErrClosed is returned by Read after the reader has been closed.
	ErrClosed = errors.New("verify: reader closed")

	// ErrNoEngine is returned when NewReader is called without an engine factory.
	ErrNoEngine = errors.New("verify: no engine factory")
)
