package upload

import (
	"log/slog"
	"time"
)

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger for upload events.
// If not set, logging is disabled.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

// WithProgress sets a callback to receive progress events.
// The callback may be invoked concurrently and must be safe for concurrent use.
func WithProgress(fn ProgressFunc) Option {
	return func(o *Orchestrator) {
		o.progress = fn
	}
}

// WithRetryDelays sets the wait before each transfer retry. The number of
// delays bounds the number of retries; a transfer that makes progress starts
// the sequence over.
//
// Default: DefaultRetryDelays.
func WithRetryDelays(delays ...time.Duration) Option {
	return func(o *Orchestrator) {
		o.delays = append([]time.Duration(nil), delays...)
	}
}

// WithPollInterval sets the wait between commit status checks.
//
// Default: DefaultPollInterval.
func WithPollInterval(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.pollInterval = d
		}
	}
}

// WithCommitTimeout bounds the wait for the portal to report an upload as
// stored. Zero waits until the context is done.
//
// Default: 0.
func WithCommitTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		o.commitTimeout = d
	}
}

// WithSpoolDir sets the directory for temporary files that hold streams of
// unknown size or streams too large for a single request.
//
// Default: os.TempDir().
func WithSpoolDir(dir string) Option {
	return func(o *Orchestrator) {
		o.spoolDir = dir
	}
}
