package models

import (
	"encoding/json"
	"io"
	"time"
)

// RecognitionRequest is a validated request to recognize a document.
// It is either a ByReference or a ByUpload.
type RecognitionRequest interface {
	isRecognitionRequest()
}

// ByReference points at a document that lives in object storage.
type ByReference struct {
	Path string // Object path inside the configured bucket, never empty
}

// ByUpload carries a document uploaded directly by the caller.
type ByUpload struct {
	File *FileUpload
}

func (ByReference) isRecognitionRequest() {}
func (ByUpload) isRecognitionRequest()    {}

// FileUpload describes an uploaded file without holding its content.
// Content is only read through Open, after validation succeeded.
type FileUpload struct {
	Filename    string // Original client-side filename
	ContentType string // Declared MIME type of the part (may be empty)
	Size        int64  // Declared size in bytes
	Open        func() (io.ReadCloser, error)
}

// SignedAccess is a time-limited URL granting read access to a stored object.
type SignedAccess struct {
	URL       string
	ExpiresAt time.Time
}

// UploadedFile is the content of an upload, read in full.
type UploadedFile struct {
	Filename    string
	ContentType string
	Content     []byte
}

// Result is the gateway's answer to one recognition request.
type Result struct {
	StatusCode int             // Status the gateway answers with
	Payload    json.RawMessage // Engine body, verbatim (success only)
	Failure    *Failure        // Set when the engine did not answer with 2xx
}

// Failure is the uniform error envelope sent back to the caller.
type Failure struct {
	StatusCode int             `json:"-"`
	Message    string          `json:"error"`
	Details    json.RawMessage `json:"details"`
}

// Succeeded reports whether the engine answered with a 2xx status.
func (r *Result) Succeeded() bool {
	return r.Failure == nil
}

// Body returns the JSON document to write back to the caller.
func (r *Result) Body() ([]byte, error) {
	if r.Failure == nil {
		return r.Payload, nil
	}
	return json.Marshal(r.Failure)
}
