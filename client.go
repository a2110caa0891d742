package portal

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/meigma/portal/internal/httputil"
	"github.com/meigma/portal/tus"
	"github.com/meigma/portal/upload"
	"github.com/meigma/portal/verify"
	"github.com/meigma/portal/verify/bao"
)

const apiPrefix = "/api/v1"

// Client talks to one portal.
//
// Client holds the account credentials and session token, keeps the
// portal's upload limit once it has been fetched, and routes uploads
// between single-request and resumable transfers. It is safe for
// concurrent use.
type Client struct {
	baseURL    string
	baseHTTP   *http.Client
	httpClient *http.Client
	userAgent  string
	logger     *slog.Logger

	mu         sync.RWMutex
	token      string
	email      string
	password   string
	privateKey ed25519.PrivateKey

	resumeStore   tus.Store
	uploadOpts    []upload.Option
	verifier      verify.Factory
	downloadChunk int

	uploads  *upload.Orchestrator
	transfer *tus.Client
}

// New creates a Client for the portal at portalURL, for example
// "https://portal.example.com".
func New(portalURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(portalURL)
	if err != nil {
		return nil, fmt.Errorf("parse portal URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("parse portal URL %q: scheme must be http or https", portalURL)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("parse portal URL %q: missing host", portalURL)
	}

	c := &Client{
		baseURL:  strings.TrimSuffix(u.String(), "/"),
		verifier: bao.New,
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}

	c.httpClient = c.authedClient()
	if c.resumeStore == nil {
		c.resumeStore = tus.NewMemoryStore()
	}
	c.transfer, err = tus.New(c.endpoint("/files/tus"),
		tus.WithHTTPClient(c.httpClient),
		tus.WithStore(c.resumeStore),
		tus.WithLogger(c.log()),
		tus.WithChunkSizer(c.transferChunkSize),
	)
	if err != nil {
		return nil, err
	}

	uploadOpts := append([]upload.Option{upload.WithLogger(c.log())}, c.uploadOpts...)
	c.uploads = upload.New(remote{c}, c.transfer, uploadOpts...)
	return c, nil
}

// authedClient derives the HTTP client used for every request: the
// configured client (or a default one) behind a transport that adds the
// bearer token and user agent.
func (c *Client) authedClient() *http.Client {
	hc := http.Client{}
	if c.baseHTTP != nil {
		hc = *c.baseHTTP
	}
	base := hc.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	hc.Transport = &bearerTransport{base: base, client: c}
	return &hc
}

func (c *Client) log() *slog.Logger {
	if c.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return c.logger
}

// URL returns the portal base URL.
func (c *Client) URL() string {
	return c.baseURL
}

func (c *Client) endpoint(path string) string {
	return c.baseURL + apiPrefix + path
}

func (c *Client) transferChunkSize(ctx context.Context) (int64, error) {
	limit, err := c.uploads.Limit(ctx)
	if err != nil {
		return 0, err
	}
	return int64(min(limit, uint64(1<<62))), nil
}

// do sends a request and returns the response if its status is 2xx. Any
// other status is turned into an error and the body is closed.
func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path), body)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer httputil.DrainClose(resp.Body)
		return nil, statusErr(resp)
	}
	return resp, nil
}

// call performs a JSON request. in may be nil for requests without a body;
// out may be nil when the response body is ignored.
func (c *Client) call(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	contentType := ""
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode %s request: %w", path, err)
		}
		body = bytes.NewReader(b)
		contentType = "application/json"
	}
	resp, err := c.do(ctx, method, path, body, contentType)
	if err != nil {
		return err
	}
	defer httputil.DrainClose(resp.Body)
	if out == nil {
		return nil
	}
	if err := decodeBody(resp.Body, out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

func decodeBody(r io.Reader, v any) error {
	if err := json.NewDecoder(r).Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("empty body")
		}
		return err
	}
	return nil
}

func statusErr(resp *http.Response) error {
	serr := httputil.NewStatusError(resp)
	switch resp.StatusCode {
	case http.StatusUnauthorized:
		return fmt.Errorf("%w: %w", ErrAuthRequired, serr)
	case http.StatusNotFound:
		return fmt.Errorf("%w: %w", ErrNotFound, serr)
	default:
		return serr
	}
}
