package cli

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/splitkit/splitkit/internal/logger"
	"github.com/splitkit/splitkit/internal/server"
	"github.com/splitkit/splitkit/internal/store"
)

var (
	port    int
	logMode string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long: `Start the splitkit HTTP server.

The server provides:
  - Experiment CRUD and lifecycle endpoints
  - Assignment and tracking endpoints for clients
  - Results endpoint and a minimal dashboard
  - Health check endpoint

Example:
  splitkit serve --port 8080`,
	RunE: runServe,
}

func init() {
	defaultPort := 8080
	if p := os.Getenv("SK_PORT"); p != "" {
		if parsed, err := strconv.Atoi(p); err == nil {
			defaultPort = parsed
		}
	}

	serveCmd.Flags().IntVarP(&port, "port", "p", defaultPort, "port to listen on")
	serveCmd.Flags().StringVar(&logMode, "log", getEnvOrDefault("SK_LOG_MODE", "dev"), "log mode (dev or prod)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	log, err := logger.New(logMode)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer log.Sync()

	// Open database
	s, err := store.Open(dbPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer s.Close()

	fmt.Printf("splitkit running on http://localhost:%d\n", port)
	fmt.Printf("Dashboard: http://localhost:%d/dashboard\n", port)
	fmt.Println()
	fmt.Println("Press Ctrl+C to stop")

	srv := server.New(s, port, log)
	return srv.Start()
}
