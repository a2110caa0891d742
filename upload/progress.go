package upload

// ProgressEvent represents a progress update during an upload.
type ProgressEvent struct {
	// Stage identifies the current phase of the upload.
	Stage ProgressStage

	// BytesDone is the number of bytes completed in the current stage.
	BytesDone uint64

	// BytesTotal is the total bytes for the current stage.
	// Zero indicates the total is unknown.
	BytesTotal uint64
}

// ProgressStage identifies the current phase of an upload.
type ProgressStage uint8

// Upload stages, in the order they occur.
const (
	// StageSizing indicates the upload size is being determined. Streams of
	// unknown length are spooled to disk during this stage.
	StageSizing ProgressStage = iota

	// StageHashing indicates the content hash is being computed.
	StageHashing

	// StageUploading indicates bytes are being sent to the portal.
	StageUploading

	// StageCommitting indicates the upload is waiting for the portal to
	// report the content as stored.
	StageCommitting
)

// String returns the string representation of the stage.
func (s ProgressStage) String() string {
	switch s {
	case StageSizing:
		return "sizing"
	case StageHashing:
		return "hashing"
	case StageUploading:
		return "uploading"
	case StageCommitting:
		return "committing"
	default:
		return "unknown"
	}
}

// ProgressFunc receives progress updates during uploads.
// Implementations must be safe for concurrent calls.
type ProgressFunc func(ProgressEvent)
