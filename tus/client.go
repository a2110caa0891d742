// Package tus implements the subset of the tus 1.0.0 resumable upload
// protocol spoken by the portal: creation, offset queries and PATCH
// transfers. It satisfies upload.Transfer.
package tus

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"

	"github.com/meigma/portal/internal/httputil"
	"github.com/meigma/portal/upload"
)

// Version is the protocol version sent in the Tus-Resumable header.
const Version = "1.0.0"

// DefaultChunkSize is the PATCH body size used when none is configured.
const DefaultChunkSize int64 = 8 << 20

const offsetContentType = "application/offset+octet-stream"

// ErrProtocol is returned when the server response violates the protocol.
var ErrProtocol = errors.New("tus: protocol violation")

// Client talks to a single tus creation endpoint.
type Client struct {
	endpoint  *url.URL
	client    *http.Client
	headers   http.Header
	store     Store
	chunkSize int64
	sizer     func(context.Context) (int64, error)
	logger    *slog.Logger
}

var _ upload.Transfer = (*Client)(nil)

// New creates a Client for the creation endpoint at endpoint.
func New(endpoint string, opts ...Option) (*Client, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse tus endpoint: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("parse tus endpoint %q: missing scheme or host", endpoint)
	}
	c := &Client{
		endpoint:  u,
		client:    http.DefaultClient,
		chunkSize: DefaultChunkSize,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.client == nil {
		c.client = http.DefaultClient
	}
	if c.store == nil {
		c.store = NewMemoryStore()
	}
	return c, nil
}

func (c *Client) log() *slog.Logger {
	if c.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return c.logger
}

// Endpoint returns the creation endpoint URL.
func (c *Client) Endpoint() string {
	return c.endpoint.String()
}

// Lookup implements upload.Transfer.
func (c *Client) Lookup(_ context.Context, fingerprint string) (string, bool) {
	return c.store.Get(fingerprint)
}

// Forget implements upload.Transfer.
func (c *Client) Forget(fingerprint string) {
	if err := c.store.Delete(fingerprint); err != nil {
		c.log().Warn("failed to forget transfer session", "fingerprint", fingerprint, "error", err)
	}
}

// Create implements upload.Transfer. The content hash travels as the
// "hash" metadata key in lowercase hex.
func (c *Client) Create(ctx context.Context, req upload.TransferRequest) (string, error) {
	if req.Size <= 0 {
		return "", fmt.Errorf("tus: invalid upload length %d", req.Size)
	}
	hreq, err := c.newRequest(ctx, http.MethodPost, c.endpoint.String(), nil)
	if err != nil {
		return "", err
	}
	hreq.Header.Set("Upload-Length", strconv.FormatInt(req.Size, 10))
	hreq.Header.Set("Upload-Metadata", EncodeMetadata(map[string]string{
		"hash": hex.EncodeToString(req.Hash[:]),
	}))

	resp, err := c.client.Do(hreq)
	if err != nil {
		return "", err
	}
	defer httputil.DrainClose(resp.Body)
	if resp.StatusCode != http.StatusCreated {
		return "", statusErr(resp)
	}

	loc := resp.Header.Get("Location")
	if loc == "" {
		return "", fmt.Errorf("%w: creation response has no Location", ErrProtocol)
	}
	ref, err := url.Parse(loc)
	if err != nil {
		return "", fmt.Errorf("%w: bad Location %q: %w", ErrProtocol, loc, err)
	}
	sessionURL := c.endpoint.ResolveReference(ref).String()

	if err := c.store.Put(req.Fingerprint, sessionURL); err != nil {
		c.log().Warn("failed to remember transfer session", "url", sessionURL, "error", err)
	}
	c.log().Debug("transfer session created", "url", sessionURL, "size", req.Size)
	return sessionURL, nil
}

// Offset implements upload.Transfer.
func (c *Client) Offset(ctx context.Context, sessionURL string) (int64, error) {
	req, err := c.newRequest(ctx, http.MethodHead, sessionURL, nil)
	if err != nil {
		return 0, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer httputil.DrainClose(resp.Body)
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return 0, statusErr(resp)
	}
	return parseOffset(resp)
}

// Send implements upload.Transfer. Bytes go out in PATCH requests of at
// most the configured chunk size; the returned offset is the last one the
// server acknowledged.
func (c *Client) Send(ctx context.Context, sessionURL string, body io.ReaderAt, offset, size int64) (int64, error) {
	chunk := c.chunkSize
	if c.sizer != nil {
		n, err := c.sizer(ctx)
		if err != nil {
			return offset, fmt.Errorf("resolve chunk size: %w", err)
		}
		if n > 0 {
			chunk = n
		}
	}
	for offset < size {
		n := min(chunk, size-offset)
		next, err := c.patch(ctx, sessionURL, io.NewSectionReader(body, offset, n), offset, n)
		if err != nil {
			return offset, err
		}
		if next <= offset || next > size {
			return offset, fmt.Errorf("%w: offset moved from %d to %d", ErrProtocol, offset, next)
		}
		offset = next
	}
	return offset, nil
}

func (c *Client) patch(ctx context.Context, sessionURL string, r io.Reader, offset, n int64) (int64, error) {
	req, err := c.newRequest(ctx, http.MethodPatch, sessionURL, r)
	if err != nil {
		return 0, err
	}
	req.ContentLength = n
	req.Header.Set("Content-Type", offsetContentType)
	req.Header.Set("Upload-Offset", strconv.FormatInt(offset, 10))

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer httputil.DrainClose(resp.Body)
	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK {
		return 0, statusErr(resp)
	}
	return parseOffset(resp)
}

func (c *Client) newRequest(ctx context.Context, method, target string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, err
	}
	for key, values := range c.headers {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	req.Header.Set("Tus-Resumable", Version)
	return req, nil
}

func parseOffset(resp *http.Response) (int64, error) {
	raw := resp.Header.Get("Upload-Offset")
	if raw == "" {
		return 0, fmt.Errorf("%w: response has no Upload-Offset", ErrProtocol)
	}
	off, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || off < 0 {
		return 0, fmt.Errorf("%w: bad Upload-Offset %q", ErrProtocol, raw)
	}
	return off, nil
}

// statusErr maps a non-success response to the errors upload.Orchestrator
// understands.
func statusErr(resp *http.Response) error {
	serr := httputil.NewStatusError(resp)
	switch resp.StatusCode {
	case http.StatusNotModified:
		return fmt.Errorf("%w: %w", upload.ErrAlreadyExists, serr)
	case http.StatusUnauthorized:
		return fmt.Errorf("%w: %w", upload.ErrAuthRequired, serr)
	case http.StatusNotFound, http.StatusGone:
		return fmt.Errorf("%w: %w", upload.ErrSessionGone, serr)
	default:
		return serr
	}
}

// EncodeMetadata renders an Upload-Metadata header value with keys in
// sorted order and base64 encoded values.
func EncodeMetadata(md map[string]string) string {
	var b strings.Builder
	for _, k := range slices.Sorted(maps.Keys(md)) {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(k)
		b.WriteByte(' ')
		b.WriteString(base64.StdEncoding.EncodeToString([]byte(md[k])))
	}
	return b.String()
}
