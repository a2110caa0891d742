package upload

import (
	"context"
	"io"

	"github.com/meigma/portal/cid"
)

// Status is the commit state the portal reports for a CID.
type Status string

// Known upload states.
const (
	StatusUploaded  Status = "uploaded"
	StatusUploading Status = "uploading"
	StatusNotFound  Status = "not_found"
)

// Remote is the portal surface used for small uploads and commit polling.
type Remote interface {
	// UploadLimit returns the largest size, in bytes, accepted by
	// UploadSmall.
	UploadLimit(ctx context.Context) (uint64, error)

	// UploadSmall uploads data in a single request and returns the CID text
	// reported by the portal.
	UploadSmall(ctx context.Context, data []byte) (string, error)

	// UploadStatus returns the commit state of id.
	UploadStatus(ctx context.Context, id cid.CID) (Status, error)
}

// TransferRequest describes a new resumable transfer session.
type TransferRequest struct {
	// Fingerprint identifies the content for resume lookups.
	Fingerprint string

	// Hash is the BLAKE3-256 hash of the content.
	Hash [32]byte

	// Size is the content length in bytes.
	Size int64
}

// Transfer is an offset-based resumable transfer protocol.
//
// Implementations report ErrAlreadyExists when the portal already holds the
// content, ErrSessionGone when a session URL is no longer valid, and
// ErrAuthRequired when the portal rejects the credentials.
type Transfer interface {
	// Lookup returns the session URL previously created for fingerprint.
	Lookup(ctx context.Context, fingerprint string) (url string, ok bool)

	// Create starts a new session and remembers it under req.Fingerprint.
	Create(ctx context.Context, req TransferRequest) (url string, err error)

	// Offset returns the number of bytes the portal has acknowledged.
	Offset(ctx context.Context, url string) (int64, error)

	// Send transfers body[offset:size] and returns the last acknowledged
	// offset, which is meaningful even when err is non-nil.
	Send(ctx context.Context, url string, body io.ReaderAt, offset, size int64) (int64, error)

	// Forget drops the session remembered under fingerprint.
	Forget(fingerprint string)
}
