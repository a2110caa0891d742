package portal

import (
	"errors"

	"github.com/meigma/portal/cid"
	"github.com/meigma/portal/internal/httputil"
	"github.com/meigma/portal/source"
	"github.com/meigma/portal/upload"
	"github.com/meigma/portal/verify"
)

var (
	// ErrNotFound is returned when the portal has no content for a CID.
	ErrNotFound = errors.New("portal: not found")

	// ErrCredentialsRequired is returned when an account operation is
	// attempted without the credentials it needs.
	ErrCredentialsRequired = errors.New("portal: credentials required")

	// ErrUnexpectedStatus is returned when the portal answers with a status
	// the operation does not expect.
	ErrUnexpectedStatus = httputil.ErrUnexpectedStatus
)

// Errors re-exported from cid.
var (
	// ErrMalformedCID is returned when CID text or bytes cannot be parsed.
	ErrMalformedCID = cid.ErrMalformed

	// ErrUnknownType is returned when a CID carries an unknown content type.
	ErrUnknownType = cid.ErrUnknownType

	// ErrUnknownHashType is returned when a CID carries an unknown hash algorithm.
	ErrUnknownHashType = cid.ErrUnknownHashType
)

// Errors re-exported from upload.
var (
	// ErrAuthRequired is returned when the portal rejects the request as
	// unauthenticated.
	ErrAuthRequired = upload.ErrAuthRequired

	// ErrTransferFailed is returned when a resumable transfer fails after all retries.
	ErrTransferFailed = upload.ErrTransferFailed

	// ErrHashMismatch is returned when the portal reports a CID that does not
	// match the uploaded bytes.
	ErrHashMismatch = upload.ErrHashMismatch

	// ErrEmptySource is returned when uploading zero bytes.
	ErrEmptySource = upload.ErrEmptySource

	// ErrSizeMismatch is returned when a reader yields a different number of
	// bytes than declared.
	ErrSizeMismatch = upload.ErrSizeMismatch

	// ErrInvalidSource is returned when an upload is given no source.
	ErrInvalidSource = source.ErrInvalidSource
)

// Errors re-exported from verify.
var (
	// ErrVerificationFailed is returned when downloaded bytes do not match
	// the CID.
	ErrVerificationFailed = verify.ErrVerificationFailed

	// ErrClosed is returned when reading a verified download after Close.
	ErrClosed = verify.ErrClosed
)
