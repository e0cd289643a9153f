package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"ocrgateway/internal/logger"
	"ocrgateway/internal/server"
)

const shutdownTimeout = 30 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP gateway",
	Long: `Start the HTTP gateway.

Routes:
  POST /recognize-from-storage   JSON or form body with file_path
  POST /recognize-upload         multipart form with a PDF in the file field
  GET  /healthz                  liveness check

Required environment variables:
  ENGINE_URL  - Recognition engine endpoint (http backend)
  ENGINE_KEY  - Shared secret sent to the engine (http backend)

Optional:
  STORAGE_BUCKET, STORAGE_DRIVER (gcs|s3), SIGNED_URL_TTL (default 15m)`,
	Example: `  # Listen on the default address :8000
  ocrgateway serve

  # Listen elsewhere with a config file
  ocrgateway serve --addr 127.0.0.1:9000 --config gateway.toml`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("addr", "", "Listen address (overrides SERVER_ADDR)")
}

func runServe(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("serve")

	addr, _ := cmd.Flags().GetString("addr")
	if addr == "" {
		addr = cfg.ServerAddr
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	gw, cleanup, err := buildGateway(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer cleanup()

	router := server.NewRouter(server.NewHandler(gw, cfg.MaxUploadBytes), server.RouterOptions{
		Logger:         logger.GetLogger(),
		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,
	})

	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().
			Str("addr", addr).
			Str("engine_backend", cfg.EngineBackend).
			Msg("HTTP server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	case <-ctx.Done():
		log.Info().Msg("Shutdown signal received, draining connections")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	log.Info().Msg("HTTP server closed")
	return nil
}
