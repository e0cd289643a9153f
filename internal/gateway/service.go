// Package gateway relays documents to the recognition engine.
//
// A request goes through four steps, each in its own file:
//   - validate.go: the request is checked against a Schema, before any I/O.
//   - resolve.go: a stored document becomes a signed URL, an upload becomes bytes.
//   - the ocr.Engine is called exactly once.
//   - translate.go: the engine's answer becomes a models.Result.
//
// The Gateway keeps no state between requests and is safe for concurrent use.
package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"ocrgateway/internal/logger"
	"ocrgateway/internal/ocr"
	"ocrgateway/internal/storage"
	"ocrgateway/pkg/models"
)

// Options is the gateway configuration, injected at construction.
type Options struct {
	// SignedURLTTL is the lifetime of signed URLs handed to the engine.
	SignedURLTTL time.Duration

	// MaxUploadBytes bounds uploaded documents.
	MaxUploadBytes int64

	// AcceptedMIMETypes lists the document types accepted for upload.
	AcceptedMIMETypes []string
}

// Gateway validates, resolves and forwards recognition requests.
type Gateway struct {
	opts     Options
	resolver *Resolver
	engine   ocr.Engine
}

// New creates a Gateway. signer may be nil when only uploads are served.
func New(opts Options, signer storage.Signer, engine ocr.Engine) *Gateway {
	return &Gateway{
		opts:     opts,
		resolver: NewResolver(signer, opts.SignedURLTTL, opts.MaxUploadBytes, opts.AcceptedMIMETypes),
		engine:   engine,
	}
}

// RecognizeFromStorage serves a request naming a stored document in file_path.
func (g *Gateway) RecognizeFromStorage(ctx context.Context, in Input) (*models.Result, error) {
	req, err := ValidateReference(in)
	if err != nil {
		return nil, err
	}
	return g.Recognize(ctx, req)
}

// RecognizeUpload serves a request carrying the document in the file field.
func (g *Gateway) RecognizeUpload(ctx context.Context, in Input) (*models.Result, error) {
	req, err := ValidateUpload(in, g.opts.AcceptedMIMETypes, g.opts.MaxUploadBytes)
	if err != nil {
		return nil, err
	}
	return g.Recognize(ctx, req)
}

// Recognize resolves a validated request, calls the engine once and
// translates its answer. An engine failure is a Result, not an error.
func (g *Gateway) Recognize(ctx context.Context, req models.RecognitionRequest) (*models.Result, error) {
	log := logger.WithContext(ctx).With().Str("component", "gateway").Logger()

	var (
		resp *ocr.Response
		err  error
		op   string
	)

	switch r := req.(type) {
	case models.ByReference:
		op = "RecognizeURL"
		access, rerr := g.resolver.ResolveReference(ctx, r)
		if rerr != nil {
			log.Warn().Err(rerr).Str("path", r.Path).Msg("Could not sign storage object")
			return nil, rerr
		}
		log.Debug().
			Str("path", r.Path).
			Time("expires_at", access.ExpiresAt).
			Msg("Forwarding signed URL to recognition engine")
		resp, err = g.engine.RecognizeURL(ctx, access.URL)

	case models.ByUpload:
		op = "RecognizeFile"
		file, rerr := g.resolver.ResolveUpload(r)
		if rerr != nil {
			log.Warn().Err(rerr).Msg("Could not read upload")
			return nil, rerr
		}
		log.Debug().
			Str("filename", file.Filename).
			Int("size", len(file.Content)).
			Msg("Forwarding upload to recognition engine")
		resp, err = g.engine.RecognizeFile(ctx, file.Filename, file.ContentType, file.Content)

	default:
		return nil, fmt.Errorf("gateway: unsupported request type %T", req)
	}

	if err != nil {
		log.Error().Err(err).Str("op", op).Msg("Recognition engine call failed")
		return nil, newError(op, ErrNetwork, err, "")
	}

	result := Translate(resp)
	logResult(log, op, result)
	return result, nil
}

func logResult(log zerolog.Logger, op string, result *models.Result) {
	if result.Succeeded() {
		log.Info().Str("op", op).Int("payload_bytes", len(result.Payload)).Msg("Recognition succeeded")
		return
	}
	log.Warn().Str("op", op).Int("engine_status", result.StatusCode).Msg("Recognition engine returned an error")
}
