package upload

import "errors"

var (
	// ErrAuthRequired is returned when the portal rejects the request as
	// unauthenticated. It is never retried.
	ErrAuthRequired = errors.New("upload: authentication required")

	// ErrTransferFailed is returned when a resumable transfer still fails
	// after the retry sequence is exhausted.
	ErrTransferFailed = errors.New("upload: transfer failed")

	// ErrAlreadyExists is reported by a Transfer when the portal already holds
	// the content. The orchestrator treats it as success.
	ErrAlreadyExists = errors.New("upload: content already exists")

	// ErrHashMismatch is returned when the portal reports a CID that does not
	// match the locally computed hash and size.
	ErrHashMismatch = errors.New("upload: hash mismatch")

	// ErrSessionGone is reported by a Transfer when a previously created
	// session no longer exists on the portal.
	ErrSessionGone = errors.New("upload: transfer session gone")

	// ErrEmptySource is returned when the source holds no bytes. A CID
	// cannot address empty content.
	ErrEmptySource = errors.New("upload: empty source")

	// ErrSizeMismatch is returned when a stream yields a different number of
	// bytes than it declared.
	ErrSizeMismatch = errors.New("upload: stream size does not match declared size")
)
