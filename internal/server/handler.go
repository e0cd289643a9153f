// Package server exposes the gateway over HTTP.
package server

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/http"

	"ocrgateway/internal/gateway"
	"ocrgateway/internal/logger"
	"ocrgateway/internal/ocr"
	"ocrgateway/internal/storage"
	"ocrgateway/pkg/models"
)

const (
	// formBodyLimit bounds bodies that only carry a storage path.
	formBodyLimit = 1 << 20

	// multipartSlack covers boundaries, part headers and small fields around the file.
	multipartSlack = 1 << 20

	// maxMemory is kept in memory by ParseMultipartForm; larger parts spill to disk.
	maxMemory = 8 << 20
)

// Handler serves the recognition endpoints.
type Handler struct {
	gateway   *gateway.Gateway
	maxUpload int64
}

// NewHandler creates a Handler. maxUpload must match the gateway's upload limit.
func NewHandler(gw *gateway.Gateway, maxUpload int64) *Handler {
	return &Handler{
		gateway:   gw,
		maxUpload: maxUpload,
	}
}

// RecognizeFromStorage handles POST /recognize-from-storage.
func (h *Handler) RecognizeFromStorage(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, formBodyLimit)

	in, err := parseInput(r)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(w, "The request body is too large.", nil, http.StatusRequestEntityTooLarge)
			return
		}
		logger.WithContext(r.Context()).Debug().Err(err).Msg("Unreadable request body, treating as empty")
	}

	result, err := h.gateway.RecognizeFromStorage(r.Context(), in)
	writeResult(w, r, result, err)
}

// RecognizeUpload handles POST /recognize-upload.
func (h *Handler) RecognizeUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload+multipartSlack)

	in, err := parseInput(r)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			// The body is abandoned here, so the document never reaches the engine
			writeError(w, r, gateway.TooLarge(gateway.FieldFile, h.maxUpload))
			return
		}
		logger.WithContext(r.Context()).Debug().Err(err).Msg("Unreadable request body, treating as empty")
	}
	if r.MultipartForm != nil {
		defer r.MultipartForm.RemoveAll()
	}

	result, err := h.gateway.RecognizeUpload(r.Context(), in)
	writeResult(w, r, result, err)
}

// Health handles GET /healthz.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{"status": "ok"}, http.StatusOK)
}

// NotFound answers every route that is not registered.
func (h *Handler) NotFound(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{"error": "Endpoint not found"}, http.StatusNotFound)
}

// parseInput collects fields and files from a JSON, urlencoded or multipart body.
// Whatever was read before an error is still returned.
func parseInput(r *http.Request) (gateway.Input, error) {
	in := gateway.Input{
		Fields: map[string]any{},
		Files:  map[string]*models.FileUpload{},
	}

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "application/json":
		var body any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			if errors.Is(err, io.EOF) {
				return in, nil
			}
			return in, err
		}
		if fields, ok := body.(map[string]any); ok {
			in.Fields = fields
		}
		return in, nil

	case "multipart/form-data":
		if err := r.ParseMultipartForm(maxMemory); err != nil {
			return in, err
		}
		for name, values := range r.MultipartForm.Value {
			if len(values) > 0 {
				in.Fields[name] = values[0]
			}
		}
		for name, headers := range r.MultipartForm.File {
			if len(headers) > 0 {
				in.Files[name] = fileUpload(headers[0])
			}
		}
		return in, nil

	default:
		if err := r.ParseForm(); err != nil {
			return in, err
		}
		for name, values := range r.PostForm {
			if len(values) > 0 {
				in.Fields[name] = values[0]
			}
		}
		return in, nil
	}
}

func fileUpload(fh *multipart.FileHeader) *models.FileUpload {
	return &models.FileUpload{
		Filename:    fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Size:        fh.Size,
		Open: func() (io.ReadCloser, error) {
			return fh.Open()
		},
	}
}

// writeResult writes the engine payload verbatim on success and the failure
// envelope otherwise.
func writeResult(w http.ResponseWriter, r *http.Request, result *models.Result, err error) {
	if err != nil {
		writeError(w, r, err)
		return
	}

	body, err := result.Body()
	if err != nil {
		logger.WithContext(r.Context()).Error().Err(err).Msg("Failed to encode result")
		respondError(w, "Internal server error.", nil, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(result.StatusCode)
	w.Write(body)
}

// writeError maps a gateway error class to its HTTP status.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	log := logger.WithContext(r.Context())

	var ve *gateway.ValidationError
	switch {
	case errors.As(err, &ve):
		log.Info().Str("field", ve.Field).Str("rule", ve.Rule).Msg("Request rejected")
		respondError(w, ve.Message, map[string]string{"field": ve.Field, "rule": ve.Rule}, http.StatusUnprocessableEntity)

	case errors.Is(err, gateway.ErrStorage):
		status := http.StatusBadGateway
		message := "The document could not be made available to the recognition engine."
		if errors.Is(err, storage.ErrObjectNotFound) {
			status = http.StatusNotFound
			message = "The requested document does not exist."
		}
		log.Warn().Err(err).Int("status", status).Msg("Storage failure")
		respondError(w, message, nil, status)

	case errors.Is(err, gateway.ErrIO):
		log.Error().Err(err).Msg("Upload could not be read")
		respondError(w, "The uploaded file could not be read.", nil, http.StatusInternalServerError)

	case errors.Is(err, ocr.ErrMalformedResponse):
		log.Error().Err(err).Msg("Recognition engine answered with an invalid body")
		respondError(w, "The recognition engine returned an invalid response.", nil, http.StatusBadGateway)

	case errors.Is(err, gateway.ErrNetwork):
		status := http.StatusBadGateway
		if errors.Is(err, ocr.ErrTimeout) {
			status = http.StatusGatewayTimeout
		}
		log.Error().Err(err).Int("status", status).Msg("Recognition engine unavailable")
		respondError(w, "The recognition engine could not be reached.", nil, status)

	default:
		log.Error().Err(err).Msg("Unhandled error")
		respondError(w, "Internal server error.", nil, http.StatusInternalServerError)
	}
}

func respondJSON(w http.ResponseWriter, data any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, message string, details any, status int) {
	respondJSON(w, map[string]any{"error": message, "details": details}, status)
}
