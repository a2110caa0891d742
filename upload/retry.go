package upload

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// DefaultRetryDelays is the wait before each transfer retry. The first
// retry is immediate.
var DefaultRetryDelays = []time.Duration{
	0,
	3 * time.Second,
	5 * time.Second,
	10 * time.Second,
	20 * time.Second,
}

// DefaultPollInterval is the wait between commit status checks.
const DefaultPollInterval = time.Second

// delayBackOff walks a fixed delay sequence and stops at its end.
type delayBackOff struct {
	delays []time.Duration
	next   int
}

var _ backoff.BackOff = (*delayBackOff)(nil)

func newDelayBackOff(delays []time.Duration) *delayBackOff {
	return &delayBackOff{delays: delays}
}

func (b *delayBackOff) NextBackOff() time.Duration {
	if b.next >= len(b.delays) {
		return backoff.Stop
	}
	d := b.delays[b.next]
	b.next++
	return d
}

func (b *delayBackOff) Reset() {
	b.next = 0
}

// permanent reports whether err must not be retried.
func permanent(err error) bool {
	return errors.Is(err, ErrAuthRequired) ||
		errors.Is(err, ErrAlreadyExists) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

// classify marks non-retryable errors for backoff.
func classify(err error) error {
	if err == nil || !permanent(err) {
		return err
	}
	return backoff.Permanent(err)
}
