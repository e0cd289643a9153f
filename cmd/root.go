package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"ocrgateway/internal/config"
	"ocrgateway/internal/logger"
)

var version = "1.0.0"

// cfg is loaded once before any subcommand runs.
var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "ocrgateway",
	Short: "OCR gateway - forwards PDF documents to a text recognition engine",
	Long: `ocrgateway relays PDF documents to a text recognition engine and returns
its answer unchanged.

A document is either referenced by its path in object storage, in which case
the engine receives a short-lived signed URL, or uploaded directly, in which
case its bytes are forwarded as multipart form data.

Configuration comes from environment variables (a .env file is loaded when
present) and an optional TOML file passed with --config.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("config")

		loaded, err := config.Load(path)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		if err := logger.Setup(loaded.GetLoggerConfig()); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		cfg = loaded
		return nil
	},
}

func Execute() {
	log := logger.WithComponent("cmd")

	if err := rootCmd.Execute(); err != nil {
		log.Error().
			Err(err).
			Msg("Command execution failed")
		fmt.Fprintf(os.Stderr, "Error executing command: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to a TOML configuration file")
}
