package portal

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/portal/internal/testutil"
	"github.com/meigma/portal/verify"
	"github.com/meigma/portal/verify/bao"
)

func TestDownloadRaw(t *testing.T) {
	t.Parallel()

	p := testutil.NewPortal(t)
	c := newTestClient(t, p)
	data := testutil.Data(1, 3000)
	id, err := ParseCID(p.Put(data))
	require.NoError(t, err)
	ctx := context.Background()

	body, err := c.Download(ctx, id)
	require.NoError(t, err)
	got, err := io.ReadAll(body)
	require.NoError(t, err)
	require.NoError(t, body.Close())
	assert.Equal(t, data, got)

	proof, err := c.DownloadProof(ctx, id)
	require.NoError(t, err)
	want, root := bao.Encode(data)
	assert.Equal(t, want, proof)
	assert.Equal(t, id.Hash, root)
}

func TestDownloadNotFound(t *testing.T) {
	t.Parallel()

	p := testutil.NewPortal(t)
	c := newTestClient(t, p)
	id := wantCID(t, []byte("never uploaded"))
	ctx := context.Background()

	_, err := c.Download(ctx, id)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = c.DownloadProof(ctx, id)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = c.DownloadVerified(ctx, id)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMalformedCIDRejectedLocally(t *testing.T) {
	t.Parallel()

	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(server.Close)

	c, err := New(server.URL, WithHTTPClient(server.Client()))
	require.NoError(t, err)
	ctx := context.Background()

	bad := wantCID(t, []byte("payload"))
	bad.Type = 0
	for _, id := range []CID{{}, bad} {
		_, err := c.Download(ctx, id)
		assert.ErrorIs(t, err, ErrMalformedCID)
		_, err = c.DownloadProof(ctx, id)
		assert.ErrorIs(t, err, ErrMalformedCID)
		_, err = c.DownloadVerified(ctx, id)
		assert.ErrorIs(t, err, ErrMalformedCID)
		_, err = c.UploadStatus(ctx, id)
		assert.ErrorIs(t, err, ErrMalformedCID)
	}
	assert.Zero(t, requests.Load())
}

func TestDownloadVerified(t *testing.T) {
	t.Parallel()

	p := testutil.NewPortal(t)
	c := newTestClient(t, p, WithDownloadChunkSize(777))
	ctx := context.Background()

	for _, n := range []int{1, 1024, 1025, 100000} {
		data := testutil.Data(int64(n), n)
		id, err := ParseCID(p.Put(data))
		require.NoError(t, err)

		r, err := c.DownloadVerified(ctx, id)
		require.NoError(t, err)
		got, err := io.ReadAll(r)
		require.NoError(t, err, "size %d", n)
		require.NoError(t, r.Close())
		assert.Equal(t, data, got, "size %d", n)
	}
}

func TestDownloadVerifiedRoundTrip(t *testing.T) {
	t.Parallel()

	p := testutil.NewPortal(t)
	p.SetUploadLimit(4096)
	c := newTestClient(t, p, fastOpts()...)
	ctx := context.Background()
	data := testutil.Data(2, 50000)

	id, err := c.UploadBytes(ctx, data)
	require.NoError(t, err)

	r, err := c.DownloadVerified(ctx, id)
	require.NoError(t, err)
	defer r.Close()
	got, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestDownloadVerifiedTampered(t *testing.T) {
	t.Parallel()

	p := testutil.NewPortal(t)
	p.SetTamper(true)
	c := newTestClient(t, p)
	data := testutil.Data(3, 40000)
	id, err := ParseCID(p.Put(data))
	require.NoError(t, err)

	r, err := c.DownloadVerified(context.Background(), id)
	require.NoError(t, err)
	got, err := io.ReadAll(r)
	require.ErrorIs(t, err, ErrVerificationFailed)
	require.NoError(t, r.Close())

	assert.Less(t, len(got), len(data)/2+1, "no bytes past the tampered group are released")
	assert.Equal(t, data[:len(got)], got, "released bytes are authentic")
}

func TestDownloadVerifiedClose(t *testing.T) {
	t.Parallel()

	p := testutil.NewPortal(t)
	c := newTestClient(t, p, WithDownloadChunkSize(1024))
	data := testutil.Data(5, 64<<10)
	id, err := ParseCID(p.Put(data))
	require.NoError(t, err)

	r, err := c.DownloadVerified(context.Background(), id)
	require.NoError(t, err)
	buf := make([]byte, 2048)
	n, err := io.ReadFull(r, buf)
	require.NoError(t, err)
	assert.Equal(t, data[:n], buf[:n])

	require.NoError(t, r.Close())
	_, err = r.Read(buf)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestWithVerifier(t *testing.T) {
	t.Parallel()

	var started atomic.Int32
	factory := func(ctx context.Context) (verify.Engine, error) {
		started.Add(1)
		return bao.New(ctx)
	}

	p := testutil.NewPortal(t)
	c := newTestClient(t, p, WithVerifier(factory))
	data := testutil.Data(6, 2000)
	id, err := ParseCID(p.Put(data))
	require.NoError(t, err)

	r, err := c.DownloadVerified(context.Background(), id)
	require.NoError(t, err)
	got, err := io.ReadAll(r)
	require.NoError(t, err)
	require.NoError(t, r.Close())
	assert.Equal(t, data, got)
	assert.Equal(t, int32(1), started.Load())
}
