package cli

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	dbPath string
)

var rootCmd = &cobra.Command{
	Use:   "splitkit",
	Short: "splitkit - a self-hosted A/B experiment engine",
	Long: `splitkit manages A/B test experiments: weighted variants, user-attribute
segmentation, deterministic assignment, conversion tracking, and per-variant
statistics. Single Go binary, embedded SQLite.

Running without a subcommand starts the server (same as 'splitkit serve').`,
	RunE: runServe, // Default action is to start server
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// A .env alongside the binary is honored but optional.
	_ = godotenv.Load()

	// Global flags
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", getEnvOrDefault("SK_DB_PATH", "./splitkit.db"), "database path")
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
