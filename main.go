package main

import (
	"log"
	"os"

	"github.com/joho/godotenv"

	"ocrgateway/cmd"
	"ocrgateway/internal/logger"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("Warning: Could not load .env file: %v", err)
	}

	// Commands reconfigure the logger once the full configuration is loaded
	if err := logger.Setup(logger.DefaultConfig()); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	cmd.Execute()
}
