package ocr

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	vision "cloud.google.com/go/vision/v2/apiv1"
	"cloud.google.com/go/vision/v2/apiv1/visionpb"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"

	"ocrgateway/internal/logger"
)

const (
	// MaxFileSizeBytes is the maximum file size for synchronous Vision processing (20MB)
	MaxFileSizeBytes = 20 * 1024 * 1024
)

// VisionEngine implements Engine using Google Cloud Vision API.
// It answers the way the HTTP engine does: 200 {"ocr_text": "..."} on success,
// a 4xx/5xx JSON error body otherwise.
type VisionEngine struct {
	client *vision.ImageAnnotatorClient
	http   *http.Client
	log    zerolog.Logger
}

// NewVisionEngine creates a Vision backed engine with credentials from environment.
// It expects either GOOGLE_APPLICATION_CREDENTIALS path or GOOGLE_CREDENTIALS JSON in env.
// downloadTimeout bounds fetching documents referenced by URL.
func NewVisionEngine(ctx context.Context, downloadTimeout time.Duration) (*VisionEngine, error) {
	const op = "NewVisionEngine"

	var client *vision.ImageAnnotatorClient
	var err error

	if credJSON := os.Getenv("GOOGLE_CREDENTIALS"); credJSON != "" {
		client, err = vision.NewImageAnnotatorClient(ctx, option.WithCredentialsJSON([]byte(credJSON)))
		if err != nil {
			return nil, WrapOCRError(op, err, "failed to create client with GOOGLE_CREDENTIALS")
		}
	} else if credFile := os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"); credFile != "" {
		client, err = vision.NewImageAnnotatorClient(ctx, option.WithCredentialsFile(credFile))
		if err != nil {
			return nil, WrapOCRError(op, err, "failed to create client with GOOGLE_APPLICATION_CREDENTIALS")
		}
	} else {
		// Try default credentials as fallback
		client, err = vision.NewImageAnnotatorClient(ctx)
		if err != nil {
			return nil, WrapOCRError(op, ErrMissingCredentials, "no credentials found in environment")
		}
	}

	return NewVisionEngineWithClient(client, &http.Client{Timeout: downloadTimeout}), nil
}

// NewVisionEngineWithClient creates a Vision engine with explicit clients (for testing).
func NewVisionEngineWithClient(client *vision.ImageAnnotatorClient, httpClient *http.Client) *VisionEngine {
	return &VisionEngine{
		client: client,
		http:   httpClient,
		log:    logger.WithComponent("ocr-vision"),
	}
}

// RecognizeURL downloads the document at fileURL and recognizes it.
func (v *VisionEngine) RecognizeURL(ctx context.Context, fileURL string) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return jsonResponse(http.StatusBadRequest, map[string]any{"error": "Invalid file URL", "details": transportCause(err).Error()})
	}

	resp, err := v.http.Do(req)
	if err != nil {
		return jsonResponse(http.StatusInternalServerError, map[string]any{
			"error":   "An error occurred while downloading the file",
			"details": transportCause(err).Error(),
		})
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return jsonResponse(http.StatusBadRequest, map[string]any{
			"error":       "Unable to download the file",
			"status_code": resp.StatusCode,
			"reason":      http.StatusText(resp.StatusCode),
			"url":         fileURL,
		})
	}

	content, err := io.ReadAll(io.LimitReader(resp.Body, MaxFileSizeBytes+1))
	if err != nil {
		return jsonResponse(http.StatusInternalServerError, map[string]any{
			"error":   "An error occurred while downloading the file",
			"details": err.Error(),
		})
	}

	return v.recognize(ctx, "RecognizeURL", content)
}

// RecognizeFile recognizes an uploaded document.
func (v *VisionEngine) RecognizeFile(ctx context.Context, filename, contentType string, content []byte) (*Response, error) {
	if filename == "" {
		return jsonResponse(http.StatusBadRequest, map[string]any{"error": "No selected file"})
	}
	return v.recognize(ctx, "RecognizeFile", content)
}

func (v *VisionEngine) recognize(ctx context.Context, op string, pdfBytes []byte) (*Response, error) {
	startTime := time.Now()

	if len(pdfBytes) > MaxFileSizeBytes {
		return jsonResponse(http.StatusRequestEntityTooLarge, map[string]any{
			"error": fmt.Sprintf("PDF file size exceeds the maximum limit (%d bytes)", MaxFileSizeBytes),
		})
	}

	// Validate PDF header
	if len(pdfBytes) < 4 || string(pdfBytes[:4]) != "%PDF" {
		return jsonResponse(http.StatusBadRequest, map[string]any{"error": ErrInvalidPDF.Error()})
	}

	req := &visionpb.BatchAnnotateFilesRequest{
		Requests: []*visionpb.AnnotateFileRequest{
			{
				InputConfig: &visionpb.InputConfig{
					Content:  pdfBytes,
					MimeType: "application/pdf",
				},
				Features: []*visionpb.Feature{
					{
						Type: visionpb.Feature_DOCUMENT_TEXT_DETECTION,
					},
				},
			},
		},
	}

	resp, err := v.client.BatchAnnotateFiles(ctx, req)
	if err != nil {
		return nil, NewOCRError(op, ErrRequestFailed, fmt.Sprintf("Vision API call failed: %v", err))
	}
	if len(resp.Responses) == 0 {
		return nil, NewOCRError(op, ErrMalformedResponse, "no response from Vision API")
	}

	fileResp := resp.Responses[0]
	if fileResp.Error != nil {
		return jsonResponse(http.StatusBadGateway, map[string]any{
			"error":   "Vision API error",
			"details": fileResp.Error.Message,
		})
	}

	text, err := extractText(fileResp)
	if err != nil {
		return jsonResponse(http.StatusUnprocessableEntity, map[string]any{"error": err.Error()})
	}

	v.log.Info().
		Int("pages", len(fileResp.Responses)).
		Int("text_length", len(text)).
		Dur("duration", time.Since(startTime)).
		Msg("Vision recognition completed")

	return jsonResponse(http.StatusOK, map[string]any{"ocr_text": text})
}

// extractText joins page texts in page order, each followed by a blank line.
func extractText(fileResp *visionpb.AnnotateFileResponse) (string, error) {
	var allText strings.Builder

	for pageIdx, page := range fileResp.Responses {
		if page.Error != nil {
			return "", fmt.Errorf("error processing page %d: %s", pageIdx+1, page.Error.Message)
		}
		if page.FullTextAnnotation != nil {
			allText.WriteString(page.FullTextAnnotation.Text)
			allText.WriteString("\n\n")
		}
	}

	text := allText.String()
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyDocument
	}
	return text, nil
}

func jsonResponse(status int, body map[string]any) (*Response, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	return &Response{StatusCode: status, Body: data}, nil
}

// Close closes the underlying Vision client.
func (v *VisionEngine) Close() error {
	if v.client != nil {
		return v.client.Close()
	}
	return nil
}
