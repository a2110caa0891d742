package source

import (
	"bytes"
	"context"
	"errors"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func randomBytes(rng *rand.Rand, n int) []byte {
	b := make([]byte, n)
	rng.Read(b)
	return b
}

// splitRandom cuts b into consecutive chunks of random length in [1, max].
func splitRandom(rng *rand.Rand, b []byte, max int) [][]byte {
	var chunks [][]byte
	for len(b) > 0 {
		n := 1 + rng.Intn(max)
		if n > len(b) {
			n = len(b)
		}
		chunks = append(chunks, b[:n])
		b = b[n:]
	}
	return chunks
}

// closeRecorder is an io.ReadCloser that records Close.
type closeRecorder struct {
	io.Reader
	closed bool
}

func (c *closeRecorder) Close() error {
	c.closed = true
	return nil
}

func TestBufferSource(t *testing.T) {
	t.Parallel()

	data := []byte("hello portal")
	src := Bytes(data)

	size, ok := src.Size()
	require.True(t, ok)
	assert.Equal(t, int64(len(data)), size)

	for i := 0; i < 2; i++ {
		r, err := src.Open()
		require.NoError(t, err)
		got, err := ReadAll(context.Background(), r)
		require.NoError(t, err)
		assert.Equal(t, data, got)
	}

	p := make([]byte, 6)
	n, err := src.ReadAt(p, 6)
	require.NoError(t, err)
	assert.Equal(t, "portal", string(p[:n]))
}

func TestEmptyBufferSource(t *testing.T) {
	t.Parallel()

	r, err := Bytes(nil).Open()
	require.NoError(t, err)
	_, err = r.Next(context.Background())
	assert.ErrorIs(t, err, io.EOF)
}

func TestSectionSource(t *testing.T) {
	t.Parallel()

	data := randomBytes(rand.New(rand.NewSource(1)), 3*DefaultChunkSize+17)
	path := filepath.Join(t.TempDir(), "data")
	require.NoError(t, os.WriteFile(path, data, 0o600))
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	src := Section(f, int64(len(data)))
	got, err := Materialize(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, data, got)

	p := make([]byte, 10)
	_, err = src.ReadAt(p, 100)
	require.NoError(t, err)
	assert.Equal(t, data[100:110], p)
}

func TestStreamSourceSingleUse(t *testing.T) {
	t.Parallel()

	src := Stream(FromChunks([]byte("a"), []byte("b")), UnknownSize)
	_, ok := src.Size()
	assert.False(t, ok)

	r, err := src.Open()
	require.NoError(t, err)
	got, err := ReadAll(context.Background(), r)
	require.NoError(t, err)
	assert.Equal(t, "ab", string(got))

	_, err = src.Open()
	assert.ErrorIs(t, err, ErrConsumed)

	sized := Stream(FromChunks([]byte("abc")), 3)
	size, ok := sized.Size()
	assert.True(t, ok)
	assert.Equal(t, int64(3), size)

	_, err = Stream(nil, 0).Open()
	assert.ErrorIs(t, err, ErrInvalidSource)

	_, err = Materialize(context.Background(), nil)
	assert.ErrorIs(t, err, ErrInvalidSource)
}

func TestMaterializeLimit(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	data := []byte("0123456789")

	got, err := MaterializeLimit(ctx, Stream(FromChunks(data[:4], data[4:]), 10), 10)
	require.NoError(t, err)
	assert.Equal(t, data, got)

	got, err = MaterializeLimit(ctx, Bytes(data), 4)
	require.NoError(t, err)
	assert.Equal(t, data[:5], got)

	_, err = MaterializeLimit(ctx, nil, 4)
	assert.ErrorIs(t, err, ErrInvalidSource)
}

func TestMaterializeLimitStopsEndlessStream(t *testing.T) {
	t.Parallel()

	var pulls int
	endless := Func(func(context.Context) ([]byte, error) {
		pulls++
		return bytes.Repeat([]byte{'x'}, 3), nil
	})

	got, err := MaterializeLimit(context.Background(), Stream(endless, 10), 10)
	require.NoError(t, err)
	assert.Len(t, got, 11)
	assert.Equal(t, 4, pulls)

	_, err = endless.Next(context.Background())
	assert.ErrorIs(t, err, ErrReadLimit)
}

func TestFromReader(t *testing.T) {
	t.Parallel()

	data := randomBytes(rand.New(rand.NewSource(2)), 1000)
	r := FromReader(bytes.NewReader(data), 64)

	var got []byte
	for {
		chunk, err := r.Next(context.Background())
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		assert.LessOrEqual(t, len(chunk), 64)
		got = append(got, chunk...)
	}
	assert.Equal(t, data, got)
}

func TestFromReaderCancelClosesReader(t *testing.T) {
	t.Parallel()

	rc := &closeRecorder{Reader: bytes.NewReader([]byte("data"))}
	r := FromReader(rc, 0)
	cause := errors.New("stop")
	r.Cancel(cause)
	assert.True(t, rc.closed)

	_, err := r.Next(context.Background())
	assert.ErrorIs(t, err, cause)
}

func TestFromChunksSkipsEmpty(t *testing.T) {
	t.Parallel()

	r := FromChunks(nil, []byte("x"), []byte{}, []byte("y"))
	got, err := ReadAll(context.Background(), r)
	require.NoError(t, err)
	assert.Equal(t, "xy", string(got))
}

func TestFromChunksHonorsContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := FromChunks([]byte("x")).Next(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestCopyCancelsOnWriteError(t *testing.T) {
	t.Parallel()

	r := FromChunks([]byte("x"), []byte("y"))
	_, err := Copy(context.Background(), failingWriter{}, r)
	require.Error(t, err)

	_, err = r.Next(context.Background())
	assert.EqualError(t, err, "disk full")
}

func TestTeeBothBranchesSeeAllBytes(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewSource(3))
	data := randomBytes(rng, 10_000)
	a, b := Tee(FromChunks(splitRandom(rng, data, 700)...))

	// Drain one branch completely before touching the other.
	gotA, err := ReadAll(context.Background(), a)
	require.NoError(t, err)
	gotB, err := ReadAll(context.Background(), b)
	require.NoError(t, err)

	assert.Equal(t, data, gotA)
	assert.Equal(t, data, gotB)
}

func TestTeeConcurrentConsumers(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewSource(4))
	data := randomBytes(rng, 50_000)
	a, b := Tee(FromChunks(splitRandom(rng, data, 1000)...))

	var wg sync.WaitGroup
	results := make([][]byte, 2)
	errs := make([]error, 2)
	for i, r := range []ChunkReader{a, b} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = ReadAll(context.Background(), r)
		}()
	}
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.Equal(t, data, results[0])
	assert.Equal(t, data, results[1])
}

func TestTeeCancelOneBranch(t *testing.T) {
	t.Parallel()

	var cancelled error
	src := &recordingReader{ChunkReader: FromChunks([]byte("1"), []byte("2"), []byte("3"))}
	src.onCancel = func(err error) { cancelled = err }
	a, b := Tee(src)

	cause := errors.New("hash done")
	a.Cancel(cause)
	assert.Nil(t, cancelled, "source must stay open while one branch is live")

	_, err := a.Next(context.Background())
	assert.ErrorIs(t, err, cause)

	got, err := ReadAll(context.Background(), b)
	require.NoError(t, err)
	assert.Equal(t, "123", string(got))

	b.Cancel(nil)
	assert.ErrorIs(t, cancelled, ErrCancelled)
}

func TestTeePropagatesSourceError(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	calls := 0
	src := Func(func(context.Context) ([]byte, error) {
		calls++
		if calls == 1 {
			return []byte("ok"), nil
		}
		return nil, boom
	})
	a, b := Tee(src)

	_, err := ReadAll(context.Background(), a)
	assert.ErrorIs(t, err, boom)
	_, err = ReadAll(context.Background(), b)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 2, calls)
}

type recordingReader struct {
	ChunkReader
	onCancel func(error)
}

func (r *recordingReader) Cancel(cause error) {
	if r.onCancel != nil {
		r.onCancel(cause)
	}
	r.ChunkReader.Cancel(cause)
}
