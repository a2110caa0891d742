package portal

import (
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/meigma/portal/tus"
	"github.com/meigma/portal/tus/disk"
	"github.com/meigma/portal/upload"
	"github.com/meigma/portal/verify"
)

// Option configures a Client.
type Option func(*Client) error

// --- Transport Options ---

// WithHTTPClient sets the HTTP client used for portal requests. Its
// transport is wrapped to add the session token.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) error {
		if hc == nil {
			return errors.New("http client is nil")
		}
		c.baseHTTP = hc
		return nil
	}
}

// WithUserAgent sets the User-Agent header for portal requests.
func WithUserAgent(ua string) Option {
	return func(c *Client) error {
		c.userAgent = ua
		return nil
	}
}

// WithLogger sets the logger for client, upload and download events.
// If not set, logging is disabled.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) error {
		c.logger = logger
		return nil
	}
}

// --- Account Options ---

// WithToken sets a session token obtained earlier, skipping login.
func WithToken(token string) Option {
	return func(c *Client) error {
		c.token = token
		return nil
	}
}

// WithEmail sets the account email used by Register and Login.
func WithEmail(email string) Option {
	return func(c *Client) error {
		c.email = email
		return nil
	}
}

// WithPassword sets the account password used by Register and Login.
func WithPassword(password string) Option {
	return func(c *Client) error {
		c.password = password
		return nil
	}
}

// WithPrivateKey sets the ed25519 key used by Register and LoginPubkey.
func WithPrivateKey(key ed25519.PrivateKey) Option {
	return func(c *Client) error {
		if len(key) != ed25519.PrivateKeySize {
			return fmt.Errorf("private key must be %d bytes, got %d", ed25519.PrivateKeySize, len(key))
		}
		c.privateKey = key
		return nil
	}
}

// WithPrivateKeyHex sets the ed25519 key from hex. Both the 32-byte seed
// form and the 64-byte expanded form are accepted.
func WithPrivateKeyHex(s string) Option {
	return func(c *Client) error {
		key, err := parsePrivateKey(s)
		if err != nil {
			return err
		}
		c.privateKey = key
		return nil
	}
}

// --- Upload Options ---

// WithResumeStore sets where resumable transfer sessions are remembered.
// Default: an in-memory store.
func WithResumeStore(store tus.Store) Option {
	return func(c *Client) error {
		if store == nil {
			return errors.New("resume store is nil")
		}
		c.resumeStore = store
		return nil
	}
}

// WithResumeDir remembers resumable transfer sessions in dir, so an
// interrupted upload resumes after a restart.
func WithResumeDir(dir string) Option {
	return func(c *Client) error {
		store, err := disk.New(dir)
		if err != nil {
			return fmt.Errorf("open resume dir: %w", err)
		}
		c.resumeStore = store
		return nil
	}
}

// WithRetryDelays sets the waits between resumable transfer retries.
// Default: upload.DefaultRetryDelays.
func WithRetryDelays(delays ...time.Duration) Option {
	return func(c *Client) error {
		for _, d := range delays {
			if d < 0 {
				return errors.New("retry delays must be non-negative")
			}
		}
		c.uploadOpts = append(c.uploadOpts, upload.WithRetryDelays(delays...))
		return nil
	}
}

// WithPollInterval sets the wait between upload status checks after a
// resumable transfer. Default: upload.DefaultPollInterval.
func WithPollInterval(d time.Duration) Option {
	return func(c *Client) error {
		if d <= 0 {
			return errors.New("poll interval must be positive")
		}
		c.uploadOpts = append(c.uploadOpts, upload.WithPollInterval(d))
		return nil
	}
}

// WithCommitTimeout bounds the wait for the portal to report a resumable
// upload as stored. Zero, the default, waits until the context is done.
func WithCommitTimeout(d time.Duration) Option {
	return func(c *Client) error {
		if d < 0 {
			return errors.New("commit timeout must be non-negative")
		}
		c.uploadOpts = append(c.uploadOpts, upload.WithCommitTimeout(d))
		return nil
	}
}

// WithSpoolDir sets the directory for temporary copies of streams.
// Default: os.TempDir().
func WithSpoolDir(dir string) Option {
	return func(c *Client) error {
		c.uploadOpts = append(c.uploadOpts, upload.WithSpoolDir(dir))
		return nil
	}
}

// WithProgress sets a callback to receive upload progress events.
func WithProgress(fn ProgressFunc) Option {
	return func(c *Client) error {
		c.uploadOpts = append(c.uploadOpts, upload.WithProgress(fn))
		return nil
	}
}

// --- Download Options ---

// WithVerifier sets the verifier engine used by DownloadVerified.
// Default: bao.New.
func WithVerifier(factory verify.Factory) Option {
	return func(c *Client) error {
		if factory == nil {
			return errors.New("verifier factory is nil")
		}
		c.verifier = factory
		return nil
	}
}

// WithDownloadChunkSize sets the largest chunk read from the network at a
// time by DownloadVerified. Default: source.DefaultChunkSize.
func WithDownloadChunkSize(n int) Option {
	return func(c *Client) error {
		if n <= 0 {
			return errors.New("download chunk size must be positive")
		}
		c.downloadChunk = n
		return nil
	}
}

func parsePrivateKey(s string) (ed25519.PrivateKey, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decode private key: %w", err)
	}
	switch len(b) {
	case ed25519.SeedSize:
		return ed25519.NewKeyFromSeed(b), nil
	case ed25519.PrivateKeySize:
		return ed25519.PrivateKey(b), nil
	default:
		return nil, fmt.Errorf("private key must be %d or %d bytes, got %d",
			ed25519.SeedSize, ed25519.PrivateKeySize, len(b))
	}
}
