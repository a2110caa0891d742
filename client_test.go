package portal

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/portal/internal/testutil"
)

func newTestClient(t *testing.T, p *testutil.Portal, opts ...Option) *Client {
	t.Helper()
	opts = append([]Option{WithHTTPClient(p.Client())}, opts...)
	c, err := New(p.URL(), opts...)
	require.NoError(t, err)
	return c
}

func TestPasswordLoginLifecycle(t *testing.T) {
	t.Parallel()

	p := testutil.NewPortal(t)
	c := newTestClient(t, p, WithEmail("alice@example.com"), WithPassword("hunter2"))
	ctx := context.Background()

	ok, err := c.IsLoggedIn(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Register(ctx))
	require.NoError(t, c.Login(ctx))
	assert.NotEmpty(t, c.Token())

	ok, err = c.IsLoggedIn(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, c.Logout(ctx))
	assert.Empty(t, c.Token())
	ok, err = c.IsLoggedIn(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLoginWrongPassword(t *testing.T) {
	t.Parallel()

	p := testutil.NewPortal(t)
	ctx := context.Background()
	require.NoError(t, newTestClient(t, p, WithEmail("bob@example.com"), WithPassword("right")).Register(ctx))

	c := newTestClient(t, p, WithEmail("bob@example.com"), WithPassword("wrong"))
	err := c.Login(ctx)
	require.ErrorIs(t, err, ErrAuthRequired)
	assert.Empty(t, c.Token())
}

func TestRegisterDuplicate(t *testing.T) {
	t.Parallel()

	p := testutil.NewPortal(t)
	ctx := context.Background()
	c := newTestClient(t, p, WithEmail("carol@example.com"), WithPassword("pw"))
	require.NoError(t, c.Register(ctx))

	err := c.Register(ctx)
	require.ErrorIs(t, err, ErrUnexpectedStatus)
	assert.Contains(t, err.Error(), "409")
}

func TestPubkeyLogin(t *testing.T) {
	t.Parallel()

	p := testutil.NewPortal(t)
	c := newTestClient(t, p, WithEmail("dave@example.com"), WithPassword("old"))
	ctx := context.Background()

	require.NoError(t, c.UseNewPubkeyAccount())
	assert.Len(t, c.PubkeyHex(), 64)
	require.ErrorIs(t, c.Login(ctx), ErrCredentialsRequired, "password is cleared")

	require.NoError(t, c.Register(ctx))
	require.NoError(t, c.LoginPubkey(ctx))
	assert.NotEmpty(t, c.Token())

	ok, err := c.IsLoggedIn(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestPubkeyLoginUnknownKey(t *testing.T) {
	t.Parallel()

	p := testutil.NewPortal(t)
	c := newTestClient(t, p)
	require.NoError(t, c.UseNewPubkeyAccount())

	err := c.LoginPubkey(context.Background())
	assert.ErrorIs(t, err, ErrAuthRequired)
}

func TestCredentialsRequired(t *testing.T) {
	t.Parallel()

	p := testutil.NewPortal(t)
	ctx := context.Background()

	tests := []struct {
		name string
		opts []Option
		run  func(*Client) error
	}{
		{name: "register without email", opts: []Option{WithPassword("pw")}, run: func(c *Client) error { return c.Register(ctx) }},
		{name: "register without secret", opts: []Option{WithEmail("e@example.com")}, run: func(c *Client) error { return c.Register(ctx) }},
		{name: "login without password", opts: []Option{WithEmail("e@example.com")}, run: func(c *Client) error { return c.Login(ctx) }},
		{name: "pubkey login without key", run: func(c *Client) error { return c.LoginPubkey(ctx) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, p, tt.opts...)
			assert.ErrorIs(t, tt.run(c), ErrCredentialsRequired)
		})
	}
	assert.Zero(t, p.Hits("POST /api/v1/account/register"), "nothing reaches the portal")
}

func TestBearerTokenRequiredForFiles(t *testing.T) {
	t.Parallel()

	p := testutil.NewPortal(t)
	p.RequireAuth()
	ctx := context.Background()

	anon := newTestClient(t, p)
	_, err := anon.UploadLimit(ctx)
	require.ErrorIs(t, err, ErrAuthRequired)

	owner := newTestClient(t, p, WithEmail("erin@example.com"), WithPassword("pw"))
	require.NoError(t, owner.Register(ctx))
	require.NoError(t, owner.Login(ctx))

	resumed := newTestClient(t, p, WithToken(owner.Token()))
	limit, err := resumed.UploadLimit(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(testutil.DefaultUploadLimit), limit)
}

func TestTransportHeaders(t *testing.T) {
	t.Parallel()

	var got http.Header
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		_, _ = w.Write([]byte(`{"limit": 5}`))
	}))
	t.Cleanup(server.Close)

	c, err := New(server.URL, WithHTTPClient(server.Client()), WithToken("tok-123"), WithUserAgent("portal-test/1"))
	require.NoError(t, err)

	limit, err := c.UploadLimit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(5), limit)
	assert.Equal(t, "Bearer tok-123", got.Get("Authorization"))
	assert.Equal(t, "portal-test/1", got.Get("User-Agent"))
}

func TestUnexpectedStatus(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "maintenance", http.StatusServiceUnavailable)
	}))
	t.Cleanup(server.Close)

	c, err := New(server.URL, WithHTTPClient(server.Client()))
	require.NoError(t, err)

	_, err = c.IsLoggedIn(context.Background())
	require.ErrorIs(t, err, ErrUnexpectedStatus)
	assert.Contains(t, err.Error(), "503")
	assert.Contains(t, err.Error(), "maintenance")
}
