package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// sendTransfer moves s.body to the portal through the resumable transfer.
//
// Each attempt resynchronizes with the portal's acknowledged offset before
// sending, so an interrupted transfer continues where the portal left off.
// The retry sequence starts over whenever an attempt moves the offset
// forward.
func (o *Orchestrator) sendTransfer(ctx context.Context, s *session) error {
	fp := Fingerprint(s.hash, s.size)
	body := &progressReaderAt{r: s.body, total: s.size, emit: o.emit}
	b := newDelayBackOff(o.delays)

	var (
		url      string
		offset   int64
		attempts int
		created  bool
	)
	op := func() error {
		attempts++
		if url == "" {
			if prev, ok := o.transfer.Lookup(ctx, fp); ok {
				url = prev
				s.log.Debug("found previous transfer session", "url", url)
			}
		}
		if url != "" && !created {
			acked, err := o.transfer.Offset(ctx, url)
			switch {
			case errors.Is(err, ErrSessionGone):
				s.log.Debug("transfer session gone", "url", url)
				o.transfer.Forget(fp)
				url = ""
			case err != nil:
				return classify(fmt.Errorf("query offset: %w", err))
			default:
				if acked > offset {
					b.Reset()
				}
				offset = acked
				if offset > 0 {
					s.log.Info("resuming transfer", "offset", offset, "size", s.size)
				}
			}
		}
		if url == "" {
			u, err := o.transfer.Create(ctx, TransferRequest{Fingerprint: fp, Hash: s.hash, Size: s.size})
			if err != nil {
				return classify(fmt.Errorf("create transfer: %w", err))
			}
			url = u
			offset = 0
			created = true
		}
		// Only the attempt that created the session may trust offset zero.
		defer func() { created = false }()

		acked, err := o.transfer.Send(ctx, url, body, offset, s.size)
		if acked > offset {
			offset = acked
			b.Reset()
		}
		if err != nil {
			return classify(fmt.Errorf("send at offset %d: %w", offset, err))
		}
		if offset < s.size {
			return fmt.Errorf("portal acknowledged %d of %d bytes", offset, s.size)
		}
		return nil
	}
	notify := func(err error, wait time.Duration) {
		s.log.Warn("transfer attempt failed", "attempt", attempts, "retry_in", wait, "error", err)
	}

	o.emit(StageUploading, 0, s.size)
	err := backoff.RetryNotify(op, backoff.WithContext(b, ctx), notify)
	switch {
	case err == nil:
		o.transfer.Forget(fp)
	case errors.Is(err, ErrAlreadyExists):
		s.log.Info("content already stored on portal")
		o.transfer.Forget(fp)
	case errors.Is(err, ErrAuthRequired):
		return err
	case ctx.Err() != nil:
		return context.Cause(ctx)
	default:
		return fmt.Errorf("%w after %d attempts: %w", ErrTransferFailed, attempts, err)
	}
	o.emit(StageUploading, s.size, s.size)
	return nil
}

// progressReaderAt reports the highest offset read as upload progress.
type progressReaderAt struct {
	r     io.ReaderAt
	total int64
	emit  func(stage ProgressStage, done, total int64)
	high  atomic.Int64
}

func (p *progressReaderAt) ReadAt(b []byte, off int64) (int, error) {
	n, err := p.r.ReadAt(b, off)
	if end := off + int64(n); n > 0 && end > p.high.Load() {
		p.high.Store(end)
		p.emit(StageUploading, end, p.total)
	}
	return n, err
}
