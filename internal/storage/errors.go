package storage

import (
	"errors"
	"fmt"
)

var (
	// ErrObjectNotFound is returned when the referenced object does not exist in the bucket.
	ErrObjectNotFound = errors.New("object not found")

	// ErrSigningFailed is returned when the backend cannot mint a signed URL.
	ErrSigningFailed = errors.New("signed URL could not be created")

	// ErrUnsupportedDriver is returned for an unknown storage driver name.
	ErrUnsupportedDriver = errors.New("unsupported storage driver")

	// ErrNotConfigured is returned when no bucket is configured.
	ErrNotConfigured = errors.New("object storage is not configured")
)

// StorageError wraps a backend failure with the operation and object involved.
type StorageError struct {
	Op     string
	Bucket string
	Path   string
	Err    error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s %s/%s: %v", e.Op, e.Bucket, e.Path, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}
