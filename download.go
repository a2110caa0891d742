package portal

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/meigma/portal/source"
	"github.com/meigma/portal/verify"
)

// maxProofSize bounds the proof body. A Bao outboard encoding is roughly
// 1/16 of the content plus a header, so this covers content far beyond any
// portal limit.
const maxProofSize = 1 << 30

// Download returns the raw bytes of id as served by the portal. Nothing is
// verified; use DownloadVerified for that. The caller must close the
// returned reader.
func (c *Client) Download(ctx context.Context, id CID) (io.ReadCloser, error) {
	if err := id.Validate(); err != nil {
		return nil, fmt.Errorf("download: %w", err)
	}
	resp, err := c.do(ctx, http.MethodGet, "/files/download/"+id.String(), nil, "")
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", id, err)
	}
	return resp.Body, nil
}

// DownloadProof returns the verification proof for id.
func (c *Client) DownloadProof(ctx context.Context, id CID) ([]byte, error) {
	if err := id.Validate(); err != nil {
		return nil, fmt.Errorf("download proof: %w", err)
	}
	resp, err := c.do(ctx, http.MethodGet, "/files/proof/"+id.String(), nil, "")
	if err != nil {
		return nil, fmt.Errorf("download proof for %s: %w", id, err)
	}
	defer resp.Body.Close()
	proof, err := io.ReadAll(io.LimitReader(resp.Body, maxProofSize+1))
	if err != nil {
		return nil, fmt.Errorf("read proof for %s: %w", id, err)
	}
	if len(proof) > maxProofSize {
		return nil, fmt.Errorf("proof for %s exceeds %d bytes", id, maxProofSize)
	}
	return proof, nil
}

// DownloadVerified returns the bytes of id, checked against the CID's hash
// as they stream in. Read only ever returns bytes that have been verified;
// tampered or truncated content fails with ErrVerificationFailed. The
// caller must close the returned reader.
func (c *Client) DownloadVerified(ctx context.Context, id CID) (io.ReadCloser, error) {
	proof, err := c.DownloadProof(ctx, id)
	if err != nil {
		return nil, err
	}
	body, err := c.Download(ctx, id)
	if err != nil {
		return nil, err
	}

	chunk := c.downloadChunk
	if chunk <= 0 {
		chunk = source.DefaultChunkSize
	}
	r, err := verify.NewReader(ctx, c.verifier, id.Hash[:], proof,
		source.FromReader(body, chunk), verify.WithLogger(c.log().With("cid", id.String())))
	if err != nil {
		return nil, fmt.Errorf("verify %s: %w", id, err)
	}
	return r, nil
}
