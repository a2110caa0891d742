package portal

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"

	"github.com/meigma/portal/cid"
	"github.com/meigma/portal/source"
	"github.com/meigma/portal/upload"
)

type uploadLimitResponse struct {
	Limit uint64 `json:"limit"`
}

type uploadResponse struct {
	CID string `json:"cid"`
}

type uploadStatusResponse struct {
	Status upload.Status `json:"status"`
}

// remote adapts Client to upload.Remote. The limit goes straight to the
// portal; caching happens in the orchestrator.
type remote struct {
	c *Client
}

func (r remote) UploadLimit(ctx context.Context) (uint64, error) {
	var resp uploadLimitResponse
	if err := r.c.call(ctx, http.MethodGet, "/files/upload/limit", nil, &resp); err != nil {
		return 0, err
	}
	return resp.Limit, nil
}

func (r remote) UploadSmall(ctx context.Context, data []byte) (string, error) {
	return r.c.UploadSmall(ctx, data)
}

func (r remote) UploadStatus(ctx context.Context, id cid.CID) (upload.Status, error) {
	return r.c.UploadStatus(ctx, id)
}

// UploadLimit returns the largest upload, in bytes, the portal accepts in a
// single request. The value is fetched once and then cached.
func (c *Client) UploadLimit(ctx context.Context) (uint64, error) {
	return c.uploads.Limit(ctx)
}

// UploadSmall uploads data in one multipart request and returns the CID
// text the portal reports. It does not check the result; use UploadBytes
// for a verified upload.
func (c *Client) UploadSmall(ctx context.Context, data []byte) (string, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "file")
	if err != nil {
		return "", err
	}
	if _, err := part.Write(data); err != nil {
		return "", err
	}
	if err := mw.Close(); err != nil {
		return "", err
	}

	resp, err := c.do(ctx, http.MethodPost, "/files/upload", &body, mw.FormDataContentType())
	if err != nil {
		return "", fmt.Errorf("upload: %w", err)
	}
	defer resp.Body.Close()
	var out uploadResponse
	if err := decodeBody(resp.Body, &out); err != nil {
		return "", fmt.Errorf("decode upload response: %w", err)
	}
	return out.CID, nil
}

// UploadStatus returns the commit state of id.
func (c *Client) UploadStatus(ctx context.Context, id CID) (Status, error) {
	if err := id.Validate(); err != nil {
		return "", fmt.Errorf("upload status: %w", err)
	}
	var resp uploadStatusResponse
	if err := c.call(ctx, http.MethodGet, "/files/status/"+id.String(), nil, &resp); err != nil {
		return "", fmt.Errorf("upload status of %s: %w", id, err)
	}
	return resp.Status, nil
}

// Upload stores the bytes of src and returns their CID. Sources up to the
// upload limit go up in one request; larger ones use a resumable transfer
// and Upload returns once the portal reports them as stored.
func (c *Client) Upload(ctx context.Context, src source.Source) (CID, error) {
	return c.uploads.Upload(ctx, src)
}

// UploadBytes stores data and returns its CID.
func (c *Client) UploadBytes(ctx context.Context, data []byte) (CID, error) {
	return c.Upload(ctx, source.Bytes(data))
}

// UploadFile stores the file at path and returns its CID. The file is read
// twice for large uploads, once to hash it and once to send it.
func (c *Client) UploadFile(ctx context.Context, path string) (CID, error) {
	f, err := os.Open(path)
	if err != nil {
		return cid.Undef, err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return cid.Undef, err
	}
	if !info.Mode().IsRegular() {
		return cid.Undef, fmt.Errorf("upload %s: not a regular file", path)
	}
	return c.Upload(ctx, source.Section(f, info.Size()))
}

// UploadReader stores everything r yields and returns its CID. size is the
// number of bytes r will yield, or source.UnknownSize; readers of unknown
// size are copied to a temporary file first.
func (c *Client) UploadReader(ctx context.Context, r io.Reader, size int64) (CID, error) {
	if r == nil {
		return cid.Undef, ErrInvalidSource
	}
	if size < 0 {
		size = source.UnknownSize
	}
	return c.Upload(ctx, source.Stream(source.FromReader(r, source.DefaultChunkSize), size))
}
