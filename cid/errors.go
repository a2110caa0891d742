package cid

import "errors"

// Sentinel errors for CID encoding and decoding.
var (
	// ErrMalformed is returned when CID text or bytes cannot be parsed.
	ErrMalformed = errors.New("cid: malformed")

	// ErrUnknownType is returned when the type tag is not a known content type.
	ErrUnknownType = errors.New("cid: unknown type")

	// ErrUnknownHashType is returned when the hash tag is not a known algorithm.
	ErrUnknownHashType = errors.New("cid: unknown hash type")

	// ErrInvalidHash is returned when a digest is not exactly HashSize bytes.
	ErrInvalidHash = errors.New("cid: invalid hash")

	// ErrInvalidSize is returned when encoding a CID with a zero size.
	ErrInvalidSize = errors.New("cid: size must be positive")
)
