// Package upload turns a byte source into a stored, content-addressed object
// on the portal.
//
// An upload is sized first. Content no larger than the portal's upload
// limit goes up in a single request and the CID the portal returns is
// checked against the local hash. Larger content is hashed up front, sent
// through a resumable [Transfer] that picks up from the last acknowledged
// offset after failures or restarts, and then polled until the portal
// reports it as stored.
package upload

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/meigma/portal/cid"
	"github.com/meigma/portal/hasher"
	"github.com/meigma/portal/source"
)

var errNotCommitted = errors.New("upload: not yet committed")

// Orchestrator runs uploads against a portal. It is safe for concurrent use;
// each Upload call keeps its state to itself. The upload limit is fetched
// once and shared by all calls.
type Orchestrator struct {
	remote   Remote
	transfer Transfer

	logger        *slog.Logger
	progress      ProgressFunc
	delays        []time.Duration
	pollInterval  time.Duration
	commitTimeout time.Duration
	spoolDir      string

	limitGroup singleflight.Group
	limit      atomic.Pointer[uint64]
}

// New creates an Orchestrator. transfer may be nil, in which case content
// above the upload limit is rejected.
func New(remote Remote, transfer Transfer, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		remote:       remote,
		transfer:     transfer,
		delays:       DefaultRetryDelays,
		pollInterval: DefaultPollInterval,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *Orchestrator) log() *slog.Logger {
	if o.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return o.logger
}

func (o *Orchestrator) emit(stage ProgressStage, done, total int64) {
	if o.progress == nil {
		return
	}
	o.progress(ProgressEvent{Stage: stage, BytesDone: uint64(max(done, 0)), BytesTotal: uint64(max(total, 0))})
}

// Limit returns the portal's upload limit. The first successful fetch is
// cached for the lifetime of the Orchestrator; concurrent first calls share
// one request. A caller whose shared request failed only because another
// caller's context ended fetches again with its own context.
func (o *Orchestrator) Limit(ctx context.Context) (uint64, error) {
	for {
		if p := o.limit.Load(); p != nil {
			return *p, nil
		}
		led := false
		v, err, _ := o.limitGroup.Do("limit", func() (any, error) {
			led = true
			if p := o.limit.Load(); p != nil {
				return *p, nil
			}
			limit, err := o.remote.UploadLimit(ctx)
			if err != nil {
				return uint64(0), err
			}
			o.limit.Store(&limit)
			o.log().Debug("upload limit fetched", "limit", limit)
			return limit, nil
		})
		if err == nil {
			return v.(uint64), nil
		}
		if !led && ctx.Err() == nil && isContextErr(err) {
			continue
		}
		return 0, fmt.Errorf("fetch upload limit: %w", err)
	}
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// session is the state of one Upload call.
type session struct {
	id    string
	size  int64
	hash  [32]byte
	limit uint64
	body  io.ReaderAt
	log   *slog.Logger
	spool *spool
}

func (s *session) close() {
	if s.spool != nil {
		s.spool.Close()
	}
}

// Upload stores the bytes of src on the portal and returns their CID.
//
// Streams of unknown size are spooled to a temporary file first. Sources no
// larger than the upload limit are sent in one request; larger ones go
// through the resumable transfer and the call returns once the portal
// reports the content as stored.
func (o *Orchestrator) Upload(ctx context.Context, src source.Source) (cid.CID, error) {
	if src == nil {
		return cid.Undef, source.ErrInvalidSource
	}
	s := &session{id: uuid.NewString()}
	s.log = o.log().With("upload", s.id)
	defer s.close()

	size, known := src.Size()
	if known && size == 0 {
		return cid.Undef, ErrEmptySource
	}

	o.emit(StageSizing, 0, size)
	limit, err := o.Limit(ctx)
	if err != nil {
		return cid.Undef, err
	}
	s.limit = limit

	if !known {
		r, err := src.Open()
		if err != nil {
			return cid.Undef, err
		}
		if err := o.spoolInto(ctx, s, r); err != nil {
			return cid.Undef, err
		}
		size = s.size
		if size == 0 {
			return cid.Undef, ErrEmptySource
		}
	}
	s.size = size
	s.log.Debug("upload sized", "size", size, "limit", limit, "spooled", s.spool != nil)

	if uint64(size) <= limit {
		return o.uploadSmall(ctx, s, src)
	}
	if o.transfer == nil {
		return cid.Undef, fmt.Errorf("%w: %d bytes exceeds upload limit %d and no resumable transfer is configured",
			ErrTransferFailed, size, limit)
	}
	return o.uploadLarge(ctx, s, src)
}

func (o *Orchestrator) spoolInto(ctx context.Context, s *session, r source.ChunkReader) error {
	sp, err := spoolStream(ctx, o.spoolDir, r, func(done int64) { o.emit(StageSizing, done, 0) })
	if err != nil {
		return fmt.Errorf("spool stream: %w", err)
	}
	s.spool = sp
	s.size = sp.size
	s.hash = sp.hash
	s.body = sp
	return nil
}

func (o *Orchestrator) uploadSmall(ctx context.Context, s *session, src source.Source) (cid.CID, error) {
	var data []byte
	if s.spool != nil {
		data = make([]byte, s.size)
		if _, err := s.spool.ReadAt(data, 0); err != nil && !isEOF(err) {
			return cid.Undef, fmt.Errorf("read spool file: %w", err)
		}
	} else {
		var err error
		data, err = source.MaterializeLimit(ctx, src, s.size)
		if err != nil {
			return cid.Undef, fmt.Errorf("materialize source: %w", err)
		}
		if int64(len(data)) > s.size {
			return cid.Undef, fmt.Errorf("%w: declared %d, source yields more", ErrSizeMismatch, s.size)
		}
		if int64(len(data)) != s.size {
			return cid.Undef, fmt.Errorf("%w: declared %d, read %d", ErrSizeMismatch, s.size, len(data))
		}
	}

	o.emit(StageHashing, 0, s.size)
	hash := hasher.SumBytes(data)
	o.emit(StageHashing, s.size, s.size)

	o.emit(StageUploading, 0, s.size)
	text, err := o.remote.UploadSmall(ctx, data)
	if err != nil {
		return cid.Undef, fmt.Errorf("small upload: %w", err)
	}
	o.emit(StageUploading, s.size, s.size)

	id, err := cid.Decode(text)
	if err != nil {
		return cid.Undef, fmt.Errorf("decode portal CID %q: %w", text, err)
	}
	if id.Hash != hash || id.Size != uint64(len(data)) {
		return cid.Undef, fmt.Errorf("%w: portal returned %s for %d bytes hashing to %s",
			ErrHashMismatch, id, len(data), hex.EncodeToString(hash[:]))
	}
	s.log.Info("small upload complete", "cid", id.String(), "size", s.size)
	return id, nil
}

func (o *Orchestrator) uploadLarge(ctx context.Context, s *session, src source.Source) (cid.CID, error) {
	if s.spool == nil {
		if err := o.prepare(ctx, s, src); err != nil {
			return cid.Undef, err
		}
	}

	id, err := cid.New(s.hash[:], uint64(s.size), cid.TypeRaw, cid.HashBlake3)
	if err != nil {
		return cid.Undef, err
	}
	s.log = s.log.With("cid", id.String())

	if err := o.sendTransfer(ctx, s); err != nil {
		return cid.Undef, err
	}
	if err := o.awaitCommit(ctx, s, id); err != nil {
		return cid.Undef, err
	}
	s.log.Info("upload complete", "size", s.size)
	return id, nil
}

// prepare computes the hash of a source that has a declared size. Sources
// with random access are hashed by a separate pass and sent in place;
// streams are spooled so hashing and sending see the same bytes.
func (o *Orchestrator) prepare(ctx context.Context, s *session, src source.Source) error {
	if ra, ok := src.(source.RandomAccess); ok {
		o.emit(StageHashing, 0, s.size)
		hash, err := hasher.Sum(ctx, ra)
		if err != nil {
			return fmt.Errorf("hash source: %w", err)
		}
		o.emit(StageHashing, s.size, s.size)
		s.hash = hash
		s.body = ra
		return nil
	}

	r, err := src.Open()
	if err != nil {
		return err
	}
	declared := s.size
	o.emit(StageHashing, 0, declared)
	if err := o.spoolInto(ctx, s, r); err != nil {
		return err
	}
	if s.size != declared {
		return fmt.Errorf("%w: declared %d, read %d", ErrSizeMismatch, declared, s.size)
	}
	o.emit(StageHashing, declared, declared)
	return nil
}

// Fingerprint identifies content for transfer resume lookups.
func Fingerprint(hash [32]byte, size int64) string {
	return hex.EncodeToString(hash[:]) + "-" + strconv.FormatInt(size, 10)
}

func (o *Orchestrator) awaitCommit(ctx context.Context, s *session, id cid.CID) error {
	if o.commitTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.commitTimeout)
		defer cancel()
	}
	o.emit(StageCommitting, 0, s.size)

	polls := 0
	op := func() error {
		polls++
		status, err := o.remote.UploadStatus(ctx, id)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("upload status: %w", err))
		}
		if status == StatusUploaded {
			return nil
		}
		return errNotCommitted
	}
	b := backoff.WithContext(backoff.NewConstantBackOff(o.pollInterval), ctx)
	if err := backoff.Retry(op, b); err != nil {
		return fmt.Errorf("await commit of %s: %w", id, err)
	}
	o.emit(StageCommitting, s.size, s.size)
	s.log.Debug("upload committed", "polls", polls)
	return nil
}

func isEOF(err error) bool {
	return errors.Is(err, io.EOF)
}
