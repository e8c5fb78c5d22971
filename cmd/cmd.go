// Package cmd provides the storegate CLI commands.
//
// Commands:
//   - serve: HTTP API server
//   - migrate: run database migrations and exit
//   - version: version and configuration summary
//
// Signal handling and graceful shutdown are implemented via context
// cancellation.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/storegate/storegate/internal/log"
)

// Execute is the main entry point for the storegate CLI.
func Execute() error {
	level := slog.LevelInfo
	if os.Getenv("DEBUG") != "" {
		level = slog.LevelDebug
	}
	logger := log.New(log.Config{Level: level})

	if len(os.Args) < 2 {
		runHelp()
		return nil
	}

	switch os.Args[1] {
	case "serve":
		return runServe(logger, os.Args[2:])
	case "migrate":
		return runMigrate(logger)
	case "version", "--version", "-v":
		runVersion()
		return nil
	case "help", "--help", "-h":
		runHelp()
		return nil
	default:
		return fmt.Errorf("unknown command: %s", os.Args[1])
	}
}

// runHelp displays the help message.
func runHelp() {
	fmt.Println("Storegate - multi-tenant gateway for Gemini File Search")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  storegate serve [addr]  Start the HTTP API server (default: 127.0.0.1:8600)")
	fmt.Println("  storegate migrate       Run database migrations and exit")
	fmt.Println("  storegate --version     Show version information")
	fmt.Println("  storegate --help        Show this help")
	fmt.Println()
	fmt.Println("Environment Variables:")
	fmt.Println("  GEMINI_API_KEY              Gemini API key; without it the server starts degraded")
	fmt.Println("  STOREGATE_POSTGRES_PASSWORD PostgreSQL password")
	fmt.Println("  DATABASE_URL                Full PostgreSQL URL (overrides individual settings)")
	fmt.Println("  STOREGATE_LISTEN_ADDR       Listen address override")
	fmt.Println("  DEBUG                       Enable debug logging")
}
