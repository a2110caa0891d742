package portal

import (
	"crypto/ed25519"
	"encoding/hex"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/portal/tus"
	"github.com/meigma/portal/tus/disk"
)

func TestNew_PortalURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		url     string
		wantURL string
		wantErr string
	}{
		{name: "https", url: "https://portal.example.com", wantURL: "https://portal.example.com"},
		{name: "trailing slash trimmed", url: "http://localhost:8080/", wantURL: "http://localhost:8080"},
		{name: "path kept", url: "https://example.com/portal", wantURL: "https://example.com/portal"},
		{name: "missing scheme", url: "portal.example.com", wantErr: "scheme must be http or https"},
		{name: "unsupported scheme", url: "ftp://portal.example.com", wantErr: "scheme must be http or https"},
		{name: "missing host", url: "https://", wantErr: "missing host"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			c, err := New(tt.url)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantURL, c.URL())
			assert.Equal(t, tt.wantURL+"/api/v1/files/tus", c.transfer.Endpoint())
		})
	}
}

func TestNew_Defaults(t *testing.T) {
	t.Parallel()

	c, err := New("https://portal.example.com")
	require.NoError(t, err)

	assert.IsType(t, &tus.MemoryStore{}, c.resumeStore)
	assert.NotNil(t, c.verifier)
	assert.Empty(t, c.Token())
	assert.Empty(t, c.PubkeyHex())
	_, ok := c.httpClient.Transport.(*bearerTransport)
	assert.True(t, ok, "requests go through the bearer transport")
}

func TestWithHTTPClient_KeepsSettings(t *testing.T) {
	t.Parallel()

	base := &http.Client{Timeout: 7 * time.Second}
	c, err := New("https://portal.example.com", WithHTTPClient(base))
	require.NoError(t, err)

	assert.Equal(t, 7*time.Second, c.httpClient.Timeout)
	assert.Nil(t, base.Transport, "caller's client is not modified")
}

func TestWithPrivateKeyHex(t *testing.T) {
	t.Parallel()

	seed := make([]byte, ed25519.SeedSize)
	for i := range seed {
		seed[i] = byte(i)
	}
	key := ed25519.NewKeyFromSeed(seed)
	wantPub := hex.EncodeToString(key.Public().(ed25519.PublicKey))

	tests := []struct {
		name    string
		hex     string
		wantErr string
	}{
		{name: "seed", hex: hex.EncodeToString(seed)},
		{name: "expanded key", hex: hex.EncodeToString(key)},
		{name: "bad hex", hex: "zz", wantErr: "decode private key"},
		{name: "wrong length", hex: strings.Repeat("ab", 16), wantErr: "private key must be 32 or 64 bytes"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			c, err := New("https://portal.example.com", WithPrivateKeyHex(tt.hex))
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, wantPub, c.PubkeyHex())
		})
	}
}

func TestOptionsRejectInvalidValues(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		opt     Option
		wantErr string
	}{
		{name: "nil http client", opt: WithHTTPClient(nil), wantErr: "http client is nil"},
		{name: "short private key", opt: WithPrivateKey(make([]byte, 10)), wantErr: "private key must be 64 bytes"},
		{name: "nil resume store", opt: WithResumeStore(nil), wantErr: "resume store is nil"},
		{name: "negative retry delay", opt: WithRetryDelays(0, -time.Second), wantErr: "retry delays must be non-negative"},
		{name: "zero poll interval", opt: WithPollInterval(0), wantErr: "poll interval must be positive"},
		{name: "negative commit timeout", opt: WithCommitTimeout(-time.Second), wantErr: "commit timeout must be non-negative"},
		{name: "nil verifier", opt: WithVerifier(nil), wantErr: "verifier factory is nil"},
		{name: "zero download chunk", opt: WithDownloadChunkSize(0), wantErr: "download chunk size must be positive"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := New("https://portal.example.com", tt.opt)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestWithResumeDir(t *testing.T) {
	t.Parallel()

	c, err := New("https://portal.example.com", WithResumeDir(t.TempDir()))
	require.NoError(t, err)
	assert.IsType(t, &disk.Store{}, c.resumeStore)
}

func TestUploadOptionsAccumulate(t *testing.T) {
	t.Parallel()

	c, err := New("https://portal.example.com",
		WithRetryDelays(0, time.Millisecond),
		WithPollInterval(time.Millisecond),
		WithCommitTimeout(time.Second),
		WithSpoolDir(t.TempDir()),
		WithProgress(func(ProgressEvent) {}),
	)
	require.NoError(t, err)
	assert.Len(t, c.uploadOpts, 5)
}
