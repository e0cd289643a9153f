// Package ocr talks to the recognition engine that turns PDF documents into text.
//
// The engine is an external service. Two backends implement Engine:
//   - Client: the HTTP recognition engine. A document is either referenced by
//     URL (GET ?file=<url>&key=<secret>) or uploaded as multipart form data
//     (POST with a "file" part and a "key" field).
//   - VisionEngine: Google Cloud Vision document text detection, answering in
//     the HTTP engine's payload shape ({"ocr_text": "..."}).
//
// Exactly one outbound call is made per recognition. Nothing is retried.
package ocr

import (
	"context"
)

// Engine defines the interface for recognition engines.
type Engine interface {
	// RecognizeURL asks the engine to fetch and recognize the document at fileURL.
	RecognizeURL(ctx context.Context, fileURL string) (*Response, error)

	// RecognizeFile sends the document bytes to the engine.
	RecognizeFile(ctx context.Context, filename, contentType string, content []byte) (*Response, error)
}

// Response is the engine's answer, status and body untouched.
type Response struct {
	StatusCode int
	Body       []byte
}

// Successful reports whether the engine answered with a 2xx status.
func (r *Response) Successful() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}
