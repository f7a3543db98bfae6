package main

import (
	"log"

	"github.com/joho/godotenv"

	"folderscan/cmd"
	"folderscan/internal/logger"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: Could not load .env file: %v", err)
	}

	// Commands reconfigure the logger once the config is loaded
	if err := logger.Setup(logger.DefaultConfig()); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	cmd.Execute()
}
