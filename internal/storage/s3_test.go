package storage

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func staticAWSConfig() aws.Config {
	return aws.Config{
		Region:      "eu-central-1",
		Credentials: credentials.NewStaticCredentialsProvider("AKIDEXAMPLE", "secret", ""),
	}
}

func TestS3Signer_PresignCarriesTTL(t *testing.T) {
	signer := NewS3SignerWithConfig(staticAWSConfig(), Options{
		Bucket:    "scans",
		Endpoint:  "http://minio.local:9000",
		PathStyle: true,
	})

	raw, err := signer.SignedURL(context.Background(), "docs/sample.pdf", 15*time.Minute)
	require.NoError(t, err)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "minio.local:9000", u.Host)
	assert.Equal(t, "/scans/docs/sample.pdf", u.Path)
	assert.Equal(t, "900", u.Query().Get("X-Amz-Expires"))
	assert.NotEmpty(t, u.Query().Get("X-Amz-Signature"))
}

func TestS3Signer_VerifyMissingObject(t *testing.T) {
	var heads int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			heads++
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	signer := NewS3SignerWithConfig(staticAWSConfig(), Options{
		Bucket:        "scans",
		Endpoint:      srv.URL,
		PathStyle:     true,
		VerifyObjects: true,
	})

	_, err := signer.SignedURL(context.Background(), "docs/missing.pdf", time.Minute)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrObjectNotFound))
	assert.Equal(t, 1, heads)

	var se *StorageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "docs/missing.pdf", se.Path)
}

func TestS3Signer_VerifyExistingObject(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "4")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	signer := NewS3SignerWithConfig(staticAWSConfig(), Options{
		Bucket:        "scans",
		Endpoint:      srv.URL,
		PathStyle:     true,
		VerifyObjects: true,
	})

	raw, err := signer.SignedURL(context.Background(), "docs/sample.pdf", 2*time.Minute)
	require.NoError(t, err)
	assert.Contains(t, raw, "X-Amz-Expires=120")
}

func TestNew_Errors(t *testing.T) {
	_, err := New(context.Background(), Options{Driver: "s3"})
	assert.ErrorIs(t, err, ErrNotConfigured)

	_, err = New(context.Background(), Options{Driver: "azure", Bucket: "b"})
	assert.ErrorIs(t, err, ErrUnsupportedDriver)
}
