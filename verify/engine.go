package verify

import "context"

// Engine incrementally checks streamed bytes against a root commitment and
// its proof. An Engine serves a single stream and is not safe for concurrent
// use; the Reader serializes every call.
type Engine interface {
	// SetRoot registers the root commitment.
	SetRoot(root []byte) error

	// SetProof registers the proof that accompanies the content.
	SetProof(proof []byte) error

	// Write feeds the bytes most recently requested by Next.
	Write(p []byte) error

	// CloseWrite signals that no more bytes will be written.
	CloseWrite() error

	// Next blocks until the engine either wants more input, in which case it
	// returns the number of bytes it wants, or has finished.
	Next(ctx context.Context) (want int, done bool, err error)

	// Output returns and clears the bytes verified since the last call.
	Output() []byte

	// Result reports the verdict. finished is false while the engine runs.
	Result() (ok, finished bool)

	// Err returns the engine's failure, if any.
	Err() error

	// Exit releases the engine's resources. It is called exactly once.
	Exit()
}

// Factory starts a new engine instance.
type Factory func(ctx context.Context) (Engine, error)
