package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/rs/zerolog"

	"ocrgateway/internal/logger"
)

// S3Signer implements Signer using presigned S3 GET requests.
type S3Signer struct {
	client  *s3.Client
	presign *s3.PresignClient
	bucket  string
	verify  bool
	log     zerolog.Logger
}

// NewS3Signer creates a signer using the default AWS credential chain.
// Endpoint and PathStyle allow S3 compatible stores such as MinIO.
func NewS3Signer(ctx context.Context, opts Options) (*S3Signer, error) {
	var loadOptions []func(*awsconfig.LoadOptions) error
	if opts.Region != "" {
		loadOptions = append(loadOptions, awsconfig.WithRegion(opts.Region))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOptions...)
	if err != nil {
		return nil, &StorageError{Op: "NewS3Signer", Bucket: opts.Bucket, Err: err}
	}

	return NewS3SignerWithConfig(cfg, opts), nil
}

// NewS3SignerWithConfig creates a signer from an explicit AWS config (for testing).
func NewS3SignerWithConfig(cfg aws.Config, opts Options) *S3Signer {
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
		o.UsePathStyle = opts.PathStyle
	})

	return &S3Signer{
		client:  client,
		presign: s3.NewPresignClient(client),
		bucket:  opts.Bucket,
		verify:  opts.VerifyObjects,
		log:     logger.WithComponent("storage-s3"),
	}
}

// SignedURL returns a presigned GET URL for path valid for ttl.
func (s *S3Signer) SignedURL(ctx context.Context, path string, ttl time.Duration) (string, error) {
	const op = "SignedURL"

	if s.verify {
		_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(path),
		})
		if err != nil {
			var notFound *types.NotFound
			if errors.As(err, &notFound) {
				return "", &StorageError{Op: op, Bucket: s.bucket, Path: path, Err: ErrObjectNotFound}
			}
			return "", &StorageError{Op: op, Bucket: s.bucket, Path: path, Err: err}
		}
	}

	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(path),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", &StorageError{Op: op, Bucket: s.bucket, Path: path, Err: fmt.Errorf("%w: %v", ErrSigningFailed, err)}
	}

	s.log.Debug().
		Str("bucket", s.bucket).
		Str("path", path).
		Dur("ttl", ttl).
		Msg("Presigned URL created")

	return req.URL, nil
}
