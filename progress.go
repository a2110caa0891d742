package portal

import "github.com/meigma/portal/upload"

// Re-export progress types from the upload package.
type (
	// ProgressEvent represents a progress update during an upload.
	ProgressEvent = upload.ProgressEvent

	// ProgressStage identifies the current phase of an upload.
	ProgressStage = upload.ProgressStage

	// ProgressFunc receives progress updates during uploads.
	// Implementations must be safe for concurrent calls.
	ProgressFunc = upload.ProgressFunc
)

// Re-export progress stage constants.
const (
	// StageSizing indicates the upload size is being determined.
	StageSizing = upload.StageSizing

	// StageHashing indicates the content hash is being computed.
	StageHashing = upload.StageHashing

	// StageUploading indicates bytes are being sent to the portal.
	StageUploading = upload.StageUploading

	// StageCommitting indicates the client is waiting for the portal to
	// report the upload as stored.
	StageCommitting = upload.StageCommitting
)
