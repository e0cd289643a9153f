package ocr

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"ocrgateway/internal/logger"
)

const (
	// FileField is the form field and query parameter carrying the document.
	FileField = "file"

	// KeyField is the form field and query parameter carrying the shared secret.
	KeyField = "key"
)

// ClientConfig configures the HTTP engine client.
type ClientConfig struct {
	// Endpoint is the engine's recognize URL, e.g. http://localhost:8080/recognize.
	Endpoint string

	// Key is the shared secret expected by the engine.
	Key string

	// Timeout bounds one outbound call. Zero means no client-side bound.
	Timeout time.Duration
}

// Client implements Engine over HTTP.
type Client struct {
	endpoint *url.URL
	key      string
	http     *http.Client
	log      zerolog.Logger
}

// NewClient creates an engine client.
func NewClient(cfg ClientConfig) (*Client, error) {
	const op = "NewClient"

	endpoint, err := url.Parse(cfg.Endpoint)
	if err != nil {
		return nil, WrapOCRError(op, err, "invalid engine endpoint")
	}
	if endpoint.Scheme == "" || endpoint.Host == "" {
		return nil, NewOCRError(op, fmt.Errorf("endpoint %q is not absolute", cfg.Endpoint), "invalid engine endpoint")
	}

	return NewClientWithHTTPClient(endpoint, cfg.Key, &http.Client{Timeout: cfg.Timeout}), nil
}

// NewClientWithHTTPClient creates an engine client with an explicit http.Client (for testing).
func NewClientWithHTTPClient(endpoint *url.URL, key string, httpClient *http.Client) *Client {
	return &Client{
		endpoint: endpoint,
		key:      key,
		http:     httpClient,
		log:      logger.WithComponent("ocr-client"),
	}
}

// RecognizeURL issues GET <endpoint>?file=<fileURL>&key=<key>.
func (c *Client) RecognizeURL(ctx context.Context, fileURL string) (*Response, error) {
	const op = "RecognizeURL"

	target := *c.endpoint
	query := target.Query()
	query.Set(FileField, fileURL)
	query.Set(KeyField, c.key)
	target.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return nil, WrapOCRError(op, err, "failed to build request")
	}
	req.Header.Set("Accept", "application/json")

	return c.do(op, req)
}

// RecognizeFile issues a multipart POST carrying the file and the key.
func (c *Client) RecognizeFile(ctx context.Context, filename, contentType string, content []byte) (*Response, error) {
	const op = "RecognizeFile"

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	if contentType == "" {
		contentType = "application/octet-stream"
	}
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition",
		fmt.Sprintf(`form-data; name="%s"; filename="%s"`, FileField, quoteEscaper.Replace(filename)))
	header.Set("Content-Type", contentType)

	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, WrapOCRError(op, err, "create form file")
	}
	if _, err := part.Write(content); err != nil {
		return nil, WrapOCRError(op, err, "copy file data")
	}
	if err := writer.WriteField(KeyField, c.key); err != nil {
		return nil, WrapOCRError(op, err, "write key field")
	}
	if err := writer.Close(); err != nil {
		return nil, WrapOCRError(op, err, "close multipart body")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint.String(), body)
	if err != nil {
		return nil, WrapOCRError(op, err, "failed to build request")
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	return c.do(op, req)
}

func (c *Client) do(op string, req *http.Request) (*Response, error) {
	start := time.Now()

	resp, err := c.http.Do(req)
	if err != nil {
		cause := transportCause(err)
		c.log.Error().
			Err(cause).
			Str("method", req.Method).
			Str("endpoint", c.endpoint.Redacted()).
			Msg("Recognition engine unreachable")
		return nil, NewOCRError(op, requestFailure(err),
			fmt.Sprintf("%s %s: %v", req.Method, c.endpoint.Redacted(), cause))
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, NewOCRError(op, ErrRequestFailed, fmt.Sprintf("read response body: %v", err))
	}

	c.log.Debug().
		Str("method", req.Method).
		Int("status", resp.StatusCode).
		Int("bytes", len(data)).
		Dur("duration", time.Since(start)).
		Msg("Recognition engine answered")

	out := &Response{StatusCode: resp.StatusCode, Body: data}
	if out.Successful() && !json.Valid(data) {
		return nil, NewOCRError(op, ErrMalformedResponse, fmt.Sprintf("status %d with %d byte non-JSON body", resp.StatusCode, len(data)))
	}
	return out, nil
}

// transportCause drops the request URL from a client error. The URL carries the
// engine key and the signed document URL.
func transportCause(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return urlErr.Err
	}
	return err
}

// requestFailure classifies a transport error; timeouts also match ErrTimeout.
func requestFailure(err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return fmt.Errorf("%w: %w", ErrRequestFailed, ErrTimeout)
	}
	return ErrRequestFailed
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")
