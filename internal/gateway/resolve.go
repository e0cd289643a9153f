package gateway

import (
	"context"
	"io"
	"net/http"
	"slices"
	"time"

	"ocrgateway/internal/storage"
	"ocrgateway/pkg/models"
)

// Resolver turns a validated request into something the engine can consume:
// a signed URL for stored documents, the raw bytes for uploads.
type Resolver struct {
	signer   storage.Signer
	ttl      time.Duration
	maxBytes int64
	accepted []string
	now      func() time.Time
}

// NewResolver creates a Resolver. signer may be nil when no storage is configured;
// reference requests then fail with ErrStorage.
func NewResolver(signer storage.Signer, ttl time.Duration, maxBytes int64, accepted []string) *Resolver {
	return &Resolver{
		signer:   signer,
		ttl:      ttl,
		maxBytes: maxBytes,
		accepted: accepted,
		now:      time.Now,
	}
}

// ResolveReference mints a fresh signed URL valid for the configured TTL.
func (r *Resolver) ResolveReference(ctx context.Context, req models.ByReference) (*models.SignedAccess, error) {
	const op = "ResolveReference"

	if r.signer == nil {
		return nil, newError(op, ErrStorage, storage.ErrNotConfigured, req.Path)
	}

	issued := r.now()
	signed, err := r.signer.SignedURL(ctx, req.Path, r.ttl)
	if err != nil {
		return nil, newError(op, ErrStorage, err, req.Path)
	}

	return &models.SignedAccess{URL: signed, ExpiresAt: issued.Add(r.ttl)}, nil
}

// ResolveUpload reads the whole upload. Bytes are passed through untouched.
func (r *Resolver) ResolveUpload(req models.ByUpload) (*models.UploadedFile, error) {
	const op = "ResolveUpload"

	f := req.File
	if f == nil || f.Open == nil {
		return nil, invalid(FieldFile, RuleRequired, "The %s field is required.", FieldFile)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, newError(op, ErrIO, err, f.Filename)
	}
	defer rc.Close()

	// Read one byte past the limit to catch a declared size that lied
	src := io.Reader(rc)
	if r.maxBytes > 0 {
		src = io.LimitReader(rc, r.maxBytes+1)
	}
	content, err := io.ReadAll(src)
	if err != nil {
		return nil, newError(op, ErrIO, err, f.Filename)
	}

	if len(content) == 0 {
		return nil, invalid(FieldFile, RuleRequired, "The %s field is required.", FieldFile)
	}
	if r.maxBytes > 0 && int64(len(content)) > r.maxBytes {
		return nil, TooLarge(FieldFile, r.maxBytes)
	}

	// The content must agree with the declared type when it is recognizable
	if sniffed := baseType(http.DetectContentType(content)); len(r.accepted) > 0 &&
		sniffed != "application/octet-stream" && !slices.Contains(r.accepted, sniffed) {
		return nil, invalid(FieldFile, RuleMimes, "The %s field must be a file of type: %s.", FieldFile, typeList(r.accepted))
	}

	return &models.UploadedFile{
		Filename:    f.Filename,
		ContentType: DeclaredType(f),
		Content:     content,
	}, nil
}
