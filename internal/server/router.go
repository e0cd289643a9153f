package server

import (
	"net/http"

	"github.com/rs/zerolog"
)

// RouterOptions configures the middleware around the routes.
type RouterOptions struct {
	Logger         zerolog.Logger
	RateLimitRPS   float64
	RateLimitBurst int
}

// NewRouter registers the gateway routes. Anything else gets the JSON 404.
func NewRouter(h *Handler, opts RouterOptions) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /recognize-from-storage", h.RecognizeFromStorage)
	mux.HandleFunc("POST /recognize-upload", h.RecognizeUpload)
	mux.HandleFunc("GET /healthz", h.Health)
	mux.HandleFunc("/", h.NotFound)

	// Health checks are not rate limited
	limited := RateLimit(opts.RateLimitRPS, opts.RateLimitBurst)(mux)
	root := http.NewServeMux()
	root.Handle("GET /healthz", mux)
	root.Handle("/", limited)

	return Chain(root, RequestLogger(opts.Logger), Recover())
}
