package storage

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	gcs "cloud.google.com/go/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
)

const testAccessID = "gateway@test-project.iam.gserviceaccount.com"

func testPrivateKey(t *testing.T) []byte {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	})
}

// newGCSClient returns a client whose JSON API calls go to srv. A nil srv
// gives an offline client, enough for local signing.
func newGCSClient(t *testing.T, srv *httptest.Server) *gcs.Client {
	t.Helper()
	opts := []option.ClientOption{option.WithoutAuthentication()}
	if srv != nil {
		opts = append(opts, option.WithEndpoint(srv.URL+"/storage/v1/"))
	}
	client, err := gcs.NewClient(context.Background(), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client
}

// objectAPI serves object metadata for the names in existing and a JSON 404
// for anything else.
func objectAPI(t *testing.T, existing ...string) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		for _, name := range existing {
			if strings.HasSuffix(r.URL.Path, "/o/"+name) {
				json.NewEncoder(w).Encode(map[string]any{
					"bucket":      "scans",
					"name":        name,
					"contentType": "application/pdf",
					"size":        "1024",
				})
				return
			}
		}
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"code": 404, "message": "No such object: scans/" + strings.TrimPrefix(r.URL.Path, "/")},
		})
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func TestGCSSigner_SignedURLCarriesTTL(t *testing.T) {
	signer := NewGCSSignerWithClient(newGCSClient(t, nil), Options{
		Bucket:         "scans",
		GoogleAccessID: testAccessID,
		PrivateKey:     testPrivateKey(t),
	})

	raw, err := signer.SignedURL(context.Background(), "docs/sample.pdf", 15*time.Minute)
	require.NoError(t, err)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	q := u.Query()
	assert.Equal(t, "900", q.Get("X-Goog-Expires"))
	assert.Equal(t, "GOOG4-RSA-SHA256", q.Get("X-Goog-Algorithm"))
	assert.True(t, strings.HasPrefix(q.Get("X-Goog-Credential"), testAccessID+"/"))
	assert.NotEmpty(t, q.Get("X-Goog-Signature"))
	assert.Contains(t, u.Path, "docs/sample.pdf")
}

func TestGCSSigner_EachCallSignsFresh(t *testing.T) {
	signer := NewGCSSignerWithClient(newGCSClient(t, nil), Options{
		Bucket:         "scans",
		GoogleAccessID: testAccessID,
		PrivateKey:     testPrivateKey(t),
	})

	short, err := signer.SignedURL(context.Background(), "docs/sample.pdf", time.Minute)
	require.NoError(t, err)
	long, err := signer.SignedURL(context.Background(), "docs/sample.pdf", time.Hour)
	require.NoError(t, err)

	shortURL, err := url.Parse(short)
	require.NoError(t, err)
	longURL, err := url.Parse(long)
	require.NoError(t, err)
	assert.Equal(t, "60", shortURL.Query().Get("X-Goog-Expires"))
	assert.Equal(t, "3600", longURL.Query().Get("X-Goog-Expires"))
}

func TestGCSSigner_VerifyMissingObject(t *testing.T) {
	srv, hits := objectAPI(t)

	signer := NewGCSSignerWithClient(newGCSClient(t, srv), Options{
		Bucket:         "scans",
		VerifyObjects:  true,
		GoogleAccessID: testAccessID,
		PrivateKey:     testPrivateKey(t),
	})

	_, err := signer.SignedURL(context.Background(), "docs/missing.pdf", time.Minute)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrObjectNotFound))
	assert.False(t, errors.Is(err, ErrSigningFailed))
	assert.GreaterOrEqual(t, hits.Load(), int32(1))

	var se *StorageError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "scans", se.Bucket)
	assert.Equal(t, "docs/missing.pdf", se.Path)
}

func TestGCSSigner_VerifyExistingObject(t *testing.T) {
	srv, hits := objectAPI(t, "docs/sample.pdf")

	signer := NewGCSSignerWithClient(newGCSClient(t, srv), Options{
		Bucket:         "scans",
		VerifyObjects:  true,
		GoogleAccessID: testAccessID,
		PrivateKey:     testPrivateKey(t),
	})

	raw, err := signer.SignedURL(context.Background(), "docs/sample.pdf", 5*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int32(1), hits.Load())

	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "300", u.Query().Get("X-Goog-Expires"))
}

func TestGCSSigner_NoVerifySkipsLookup(t *testing.T) {
	srv, hits := objectAPI(t)

	signer := NewGCSSignerWithClient(newGCSClient(t, srv), Options{
		Bucket:         "scans",
		GoogleAccessID: testAccessID,
		PrivateKey:     testPrivateKey(t),
	})

	_, err := signer.SignedURL(context.Background(), "docs/missing.pdf", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int32(0), hits.Load())
}

func TestGCSSigner_SigningFailure(t *testing.T) {
	signer := NewGCSSignerWithClient(newGCSClient(t, nil), Options{
		Bucket:         "scans",
		GoogleAccessID: testAccessID,
		PrivateKey:     []byte("not a key"),
	})

	_, err := signer.SignedURL(context.Background(), "docs/sample.pdf", time.Minute)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSigningFailed))
	assert.False(t, errors.Is(err, ErrObjectNotFound))

	var se *StorageError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "SignedURL", se.Op)
	assert.Equal(t, "docs/sample.pdf", se.Path)
}

func TestGCSSigner_Close(t *testing.T) {
	client, err := gcs.NewClient(context.Background(), option.WithoutAuthentication())
	require.NoError(t, err)

	signer := NewGCSSignerWithClient(client, Options{Bucket: "scans"})
	assert.NoError(t, signer.Close())
	assert.NoError(t, (&GCSSigner{}).Close())
}
