package source

import "errors"

// Sentinel errors for byte sources.
var (
	// ErrInvalidSource is returned when a source is missing or has an
	// unsupported shape.
	ErrInvalidSource = errors.New("source: invalid source")

	// ErrConsumed is returned when a single-use stream is opened twice.
	ErrConsumed = errors.New("source: stream already consumed")

	// ErrReadLimit is the cause given to a reader cancelled by
	// MaterializeLimit once it yielded more bytes than allowed.
	ErrReadLimit = errors.New("source: read limit exceeded")

	// ErrCancelled is returned by readers cancelled without a cause.
	ErrCancelled = errors.New("source: cancelled")
)
