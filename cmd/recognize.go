package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"ocrgateway/internal/gateway"
	"ocrgateway/internal/logger"
	"ocrgateway/internal/ocr"
	"ocrgateway/pkg/models"
)

var recognizeCmd = &cobra.Command{
	Use:   "recognize [pdf-file]",
	Short: "Recognize one document through the gateway without starting the server",
	Long: `Send a single document to the recognition engine and print its answer.

The document is either a local PDF file, uploaded as multipart form data, or
an object in the configured bucket (--path), handed to the engine as a signed
URL. Validation and error handling are the same as for the HTTP routes.

On success the engine's JSON is printed unchanged. On failure the error
envelope is printed and the command exits with a non-zero status.`,
	Example: `  # Upload a local file
  ocrgateway recognize invoice.pdf

  # Recognize a stored object and save the answer
  ocrgateway recognize --path docs/sample.pdf -o result.json

  # Allow a slow engine more time
  ocrgateway recognize large-document.pdf --timeout 600`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRecognize,
}

func init() {
	rootCmd.AddCommand(recognizeCmd)

	recognizeCmd.Flags().StringP("path", "p", "", "Object path in the configured bucket")
	recognizeCmd.Flags().StringP("output", "o", "", "Output file path (default: stdout)")
	recognizeCmd.Flags().Int("timeout", 0, "Overall timeout in seconds (default: ENGINE_TIMEOUT)")
}

func runRecognize(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("recognize")

	objectPath, _ := cmd.Flags().GetString("path")
	outputPath, _ := cmd.Flags().GetString("output")
	timeoutSecs, _ := cmd.Flags().GetInt("timeout")

	if (objectPath == "") == (len(args) == 0) {
		return fmt.Errorf("provide exactly one of a PDF file argument or --path")
	}

	timeout := cfg.EngineTimeout
	if timeoutSecs > 0 {
		timeout = time.Duration(timeoutSecs) * time.Second
	}
	ctx, cancel := createContextWithTimeout(cmd.Context(), timeout)
	defer cancel()

	gw, cleanup, err := buildGateway(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer cleanup()

	var result *models.Result
	if objectPath != "" {
		log.Info().Str("path", objectPath).Msg("Recognizing stored document")
		result, err = gw.RecognizeFromStorage(ctx, gateway.Input{
			Fields: map[string]any{gateway.FieldFilePath: objectPath},
		})
	} else {
		upload, ferr := localUpload(args[0])
		if ferr != nil {
			return ferr
		}
		log.Info().Str("file", args[0]).Int64("size", upload.Size).Msg("Recognizing local document")
		result, err = gw.RecognizeUpload(ctx, gateway.Input{
			Files: map[string]*models.FileUpload{gateway.FieldFile: upload},
		})
	}
	if err != nil {
		return handleRecognizeError(err, log)
	}

	body, err := result.Body()
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}
	if err := writeOutput(body, outputPath, log); err != nil {
		return err
	}

	if rerr := gateway.ResultError(result); rerr != nil {
		log.Warn().Int("engine_status", result.StatusCode).Msg("Recognition engine returned an error")
		return rerr
	}
	log.Info().Int("bytes", len(body)).Msg("Recognition completed successfully")
	return nil
}

// localUpload describes a file on disk the way an HTTP upload would.
func localUpload(path string) (*models.FileUpload, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("PDF file not found: %s", path)
		}
		if os.IsPermission(err) {
			return nil, fmt.Errorf("permission denied accessing PDF file: %s", path)
		}
		return nil, fmt.Errorf("error accessing PDF file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("path is not a regular file: %s", path)
	}

	return &models.FileUpload{
		Filename:    filepath.Base(path),
		ContentType: mime.TypeByExtension(filepath.Ext(path)),
		Size:        info.Size(),
		Open: func() (io.ReadCloser, error) {
			return os.Open(path)
		},
	}, nil
}

// createContextWithTimeout creates a context with timeout and signal handling
func createContextWithTimeout(parent context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(parent, timeout)
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)

	return ctx, func() {
		stop()
		cancel()
	}
}

// handleRecognizeError turns gateway errors into messages for the terminal.
func handleRecognizeError(err error, log zerolog.Logger) error {
	log.Error().Err(err).Msg("Recognition failed")

	var ve *gateway.ValidationError
	switch {
	case errors.As(err, &ve):
		return errors.New(ve.Message)
	case errors.Is(err, ocr.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("recognition timed out. Try increasing --timeout or ENGINE_TIMEOUT")
	case errors.Is(err, context.Canceled):
		return fmt.Errorf("recognition was canceled")
	case errors.Is(err, gateway.ErrStorage):
		return fmt.Errorf("could not create a signed URL (check STORAGE_BUCKET and credentials): %w", err)
	case errors.Is(err, gateway.ErrIO):
		return fmt.Errorf("could not read the PDF file: %w", err)
	case errors.Is(err, ocr.ErrMalformedResponse):
		return fmt.Errorf("recognition engine returned an invalid response: %w", err)
	case errors.Is(err, gateway.ErrNetwork):
		return fmt.Errorf("recognition engine could not be reached (check ENGINE_URL): %w", err)
	default:
		return fmt.Errorf("recognition failed: %w", err)
	}
}

func writeOutput(body []byte, outputPath string, log zerolog.Logger) error {
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, body, "", "  "); err == nil {
		body = pretty.Bytes()
	}
	body = append(body, '\n')

	if outputPath == "" {
		if _, err := os.Stdout.Write(body); err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}
		return nil
	}

	if err := os.WriteFile(outputPath, body, 0644); err != nil {
		log.Error().
			Err(err).
			Str("output_file", outputPath).
			Msg("Failed to write output file")
		return fmt.Errorf("failed to write output file: %w", err)
	}
	log.Info().
		Str("output_file", outputPath).
		Int("bytes", len(body)).
		Msg("Result written to file")
	return nil
}
