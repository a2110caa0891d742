package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"lukechampine.com/blake3"

	"github.com/meigma/portal/cid"
)

var errFlaky = errors.New("connection reset")

// mockRemote is a Remote whose behavior can be overridden per test.
type mockRemote struct {
	mu          sync.Mutex
	limit       uint64
	limitCalls  int
	smallCalls  int
	statusCalls int
	statuses    []Status

	UploadLimitFunc  func(ctx context.Context) (uint64, error)
	UploadSmallFunc  func(data []byte) (string, error)
	UploadStatusFunc func(ctx context.Context, id cid.CID) (Status, error)
}

func (m *mockRemote) UploadLimit(ctx context.Context) (uint64, error) {
	m.mu.Lock()
	m.limitCalls++
	m.mu.Unlock()
	if m.UploadLimitFunc != nil {
		return m.UploadLimitFunc(ctx)
	}
	return m.limit, nil
}

func (m *mockRemote) UploadSmall(_ context.Context, data []byte) (string, error) {
	m.mu.Lock()
	m.smallCalls++
	m.mu.Unlock()
	if m.UploadSmallFunc != nil {
		return m.UploadSmallFunc(data)
	}
	return cid.Encode(hashOf(data), uint64(len(data)))
}

func (m *mockRemote) UploadStatus(ctx context.Context, id cid.CID) (Status, error) {
	if m.UploadStatusFunc != nil {
		return m.UploadStatusFunc(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statusCalls++
	if len(m.statuses) == 0 {
		return StatusUploaded, nil
	}
	s := m.statuses[0]
	m.statuses = m.statuses[1:]
	return s, nil
}

func hashOf(b []byte) []byte {
	sum := blake3.Sum256(b)
	return sum[:]
}

// memTransfer is an in-memory resumable transfer.
//
// plan controls successive Send calls: a non-negative entry accepts that
// many bytes and then fails with errFlaky; a negative entry lets the call
// run to completion. Calls beyond the plan complete normally.
type memTransfer struct {
	mu       sync.Mutex
	store    map[string]string
	sessions map[string]*memSession
	nextID   int

	plan        []int64
	sendOffsets []int64
	creates     int
	forgets     int

	CreateFunc func(req TransferRequest) (string, error)
	SendErr    error
}

type memSession struct {
	req  TransferRequest
	data []byte
}

func newMemTransfer(plan ...int64) *memTransfer {
	return &memTransfer{
		store:    make(map[string]string),
		sessions: make(map[string]*memSession),
		plan:     plan,
	}
}

func (t *memTransfer) Lookup(_ context.Context, fp string) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	url, ok := t.store[fp]
	return url, ok
}

func (t *memTransfer) Create(_ context.Context, req TransferRequest) (string, error) {
	if t.CreateFunc != nil {
		return t.CreateFunc(req)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.creates++
	t.nextID++
	url := fmt.Sprintf("mem://upload/%d", t.nextID)
	t.sessions[url] = &memSession{req: req}
	t.store[req.Fingerprint] = url
	return url, nil
}

func (t *memTransfer) Offset(_ context.Context, url string) (int64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	sess, ok := t.sessions[url]
	if !ok {
		return 0, ErrSessionGone
	}
	return int64(len(sess.data)), nil
}

func (t *memTransfer) Send(ctx context.Context, url string, body io.ReaderAt, offset, size int64) (int64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.SendErr != nil {
		t.sendOffsets = append(t.sendOffsets, offset)
		return offset, t.SendErr
	}
	sess, ok := t.sessions[url]
	if !ok {
		return offset, ErrSessionGone
	}
	if offset != int64(len(sess.data)) {
		return int64(len(sess.data)), fmt.Errorf("offset %d does not match stored %d", offset, len(sess.data))
	}
	t.sendOffsets = append(t.sendOffsets, offset)

	end, fail := size, false
	if len(t.plan) > 0 {
		accept := t.plan[0]
		t.plan = t.plan[1:]
		if accept >= 0 {
			end, fail = min(offset+accept, size), true
		}
	}
	const chunk = 1000
	for off := offset; off < end; off += chunk {
		if err := ctx.Err(); err != nil {
			return int64(len(sess.data)), err
		}
		buf := make([]byte, min(chunk, end-off))
		n, err := body.ReadAt(buf, off)
		if err != nil && !errors.Is(err, io.EOF) {
			return int64(len(sess.data)), err
		}
		sess.data = append(sess.data, buf[:n]...)
	}
	if fail {
		return end, errFlaky
	}
	return end, nil
}

func (t *memTransfer) Forget(fp string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.forgets++
	delete(t.store, fp)
}

func (t *memTransfer) onlySession() *memSession {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, s := range t.sessions {
		return s
	}
	return nil
}
