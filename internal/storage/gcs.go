package storage

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	gcs "cloud.google.com/go/storage"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"

	"ocrgateway/internal/logger"
)

// GCSSigner implements Signer using Google Cloud Storage V4 signed URLs.
type GCSSigner struct {
	client *gcs.Client
	bucket string
	verify bool

	accessID   string
	privateKey []byte

	log zerolog.Logger
}

// NewGCSSigner creates a signer with credentials from environment.
// It expects either GOOGLE_CREDENTIALS JSON or a GOOGLE_APPLICATION_CREDENTIALS
// path, and falls back to Application Default Credentials.
func NewGCSSigner(ctx context.Context, opts Options) (*GCSSigner, error) {
	var clientOptions []option.ClientOption

	if credJSON := os.Getenv("GOOGLE_CREDENTIALS"); credJSON != "" {
		clientOptions = append(clientOptions, option.WithCredentialsJSON([]byte(credJSON)))
	} else if credFile := os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"); credFile != "" {
		clientOptions = append(clientOptions, option.WithCredentialsFile(credFile))
	}

	client, err := gcs.NewClient(ctx, clientOptions...)
	if err != nil {
		return nil, &StorageError{Op: "NewGCSSigner", Bucket: opts.Bucket, Err: err}
	}

	return NewGCSSignerWithClient(client, opts), nil
}

// NewGCSSignerWithClient creates a signer with an explicit client (for testing).
func NewGCSSignerWithClient(client *gcs.Client, opts Options) *GCSSigner {
	return &GCSSigner{
		client: client,
		bucket: opts.Bucket,
		verify: opts.VerifyObjects,

		accessID:   opts.GoogleAccessID,
		privateKey: opts.PrivateKey,

		log: logger.WithComponent("storage-gcs"),
	}
}

// SignedURL returns a V4 signed GET URL for path valid for ttl.
func (s *GCSSigner) SignedURL(ctx context.Context, path string, ttl time.Duration) (string, error) {
	const op = "SignedURL"

	bucket := s.client.Bucket(s.bucket)

	if s.verify {
		if _, err := bucket.Object(path).Attrs(ctx); err != nil {
			if errors.Is(err, gcs.ErrObjectNotExist) {
				return "", &StorageError{Op: op, Bucket: s.bucket, Path: path, Err: ErrObjectNotFound}
			}
			return "", &StorageError{Op: op, Bucket: s.bucket, Path: path, Err: err}
		}
	}

	signed, err := bucket.SignedURL(path, &gcs.SignedURLOptions{
		GoogleAccessID: s.accessID,
		PrivateKey:     s.privateKey,
		Scheme:         gcs.SigningSchemeV4,
		Method:         http.MethodGet,
		Expires:        time.Now().Add(ttl),
	})
	if err != nil {
		return "", &StorageError{Op: op, Bucket: s.bucket, Path: path, Err: fmt.Errorf("%w: %v", ErrSigningFailed, err)}
	}

	s.log.Debug().
		Str("bucket", s.bucket).
		Str("path", path).
		Dur("ttl", ttl).
		Msg("Signed URL created")

	return signed, nil
}

// Close closes the underlying storage client.
func (s *GCSSigner) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}
