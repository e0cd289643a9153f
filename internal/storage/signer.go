// Package storage mints temporary signed URLs for objects held in a bucket.
//
// Two backends are supported:
//   - gcs: Google Cloud Storage V4 signed URLs. Credentials come from
//     GOOGLE_CREDENTIALS (inline JSON), GOOGLE_APPLICATION_CREDENTIALS (file)
//     or Application Default Credentials. An explicit service account ID and
//     PEM key can be given to sign locally.
//   - s3: Amazon S3 (or any S3 compatible store) presigned GET requests, using
//     the default AWS credential chain.
//
// Signed URLs are created fresh for every call and never cached.
package storage

import (
	"context"
	"fmt"
	"time"
)

// Signer mints a time-limited URL granting read access to one object.
type Signer interface {
	SignedURL(ctx context.Context, path string, ttl time.Duration) (string, error)
}

// Options configures a Signer.
type Options struct {
	Driver string // "gcs" or "s3"
	Bucket string

	// VerifyObjects makes the signer check that the object exists before
	// signing, so a missing object fails fast instead of at the engine.
	VerifyObjects bool

	// GCS only. When both are set, URLs are signed locally with this service
	// account key instead of the client's credentials.
	GoogleAccessID string
	PrivateKey     []byte

	// S3 only
	Region    string
	Endpoint  string
	PathStyle bool
}

// New returns the Signer for opts.Driver.
func New(ctx context.Context, opts Options) (Signer, error) {
	if opts.Bucket == "" {
		return nil, ErrNotConfigured
	}
	switch opts.Driver {
	case "gcs":
		return NewGCSSigner(ctx, opts)
	case "s3":
		return NewS3Signer(ctx, opts)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDriver, opts.Driver)
	}
}
