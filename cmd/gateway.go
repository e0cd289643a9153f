package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"

	"ocrgateway/internal/config"
	"ocrgateway/internal/gateway"
	"ocrgateway/internal/ocr"
	"ocrgateway/internal/storage"
)

// buildGateway wires the engine and the signer selected by c. The returned
// cleanup releases their clients.
func buildGateway(ctx context.Context, c *config.Config, log zerolog.Logger) (*gateway.Gateway, func(), error) {
	var closers []io.Closer
	cleanup := func() {
		for _, cl := range closers {
			if err := cl.Close(); err != nil {
				log.Warn().Err(err).Msg("Failed to close client")
			}
		}
	}

	engine, err := buildEngine(ctx, c)
	if err != nil {
		return nil, nil, err
	}
	if cl, ok := engine.(io.Closer); ok {
		closers = append(closers, cl)
	}

	var signer storage.Signer
	if c.StorageConfigured() {
		opts := storage.Options{
			Driver:         c.StorageDriver,
			Bucket:         c.StorageBucket,
			VerifyObjects:  c.StorageVerifyObjects,
			GoogleAccessID: c.GCSAccessID,
			Region:         c.S3Region,
			Endpoint:       c.S3Endpoint,
			PathStyle:      c.S3PathStyle,
		}
		if c.GCSPrivateKeyFile != "" {
			if opts.PrivateKey, err = os.ReadFile(c.GCSPrivateKeyFile); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("failed to read GCS private key: %w", err)
			}
		}
		signer, err = storage.New(ctx, opts)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("failed to create %s signer: %w", c.StorageDriver, err)
		}
		if cl, ok := signer.(io.Closer); ok {
			closers = append(closers, cl)
		}
		log.Info().
			Str("driver", c.StorageDriver).
			Str("bucket", c.StorageBucket).
			Dur("signed_url_ttl", c.SignedURLTTL).
			Msg("Object storage configured")
	} else {
		log.Warn().Msg("STORAGE_BUCKET not set, reference requests will fail")
	}

	gw := gateway.New(gateway.Options{
		SignedURLTTL:      c.SignedURLTTL,
		MaxUploadBytes:    c.MaxUploadBytes,
		AcceptedMIMETypes: c.AcceptedMIMETypes,
	}, signer, engine)

	return gw, cleanup, nil
}

func buildEngine(ctx context.Context, c *config.Config) (ocr.Engine, error) {
	switch c.EngineBackend {
	case config.BackendVision:
		engine, err := ocr.NewVisionEngine(ctx, c.EngineTimeout)
		if err != nil {
			if errors.Is(err, ocr.ErrMissingCredentials) {
				return nil, fmt.Errorf("Google Cloud credentials not configured. Set GOOGLE_APPLICATION_CREDENTIALS " +
					"to a service account JSON file or GOOGLE_CREDENTIALS to its inline JSON")
			}
			return nil, fmt.Errorf("failed to create Vision engine: %w", err)
		}
		return engine, nil
	default:
		client, err := ocr.NewClient(ocr.ClientConfig{
			Endpoint: c.EngineURL,
			Key:      c.EngineKey,
			Timeout:  c.EngineTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create engine client: %w", err)
		}
		return client, nil
	}
}
