package portal

import (
	"github.com/meigma/portal/cid"
	"github.com/meigma/portal/upload"
)

// CID identifies content stored on a portal.
type CID = cid.CID

// ParseCID decodes CID text as returned by uploads.
func ParseCID(s string) (CID, error) {
	return cid.Decode(s)
}

// Status is the commit state the portal reports for an upload.
type Status = upload.Status

// Re-export upload states.
const (
	// StatusUploaded means the content is stored and retrievable.
	StatusUploaded = upload.StatusUploaded

	// StatusUploading means the portal is still processing the upload.
	StatusUploading = upload.StatusUploading

	// StatusNotFound means the portal knows nothing about the CID.
	StatusNotFound = upload.StatusNotFound
)
