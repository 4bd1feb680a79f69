// Package main is the arxivdaily command: the HTTP server with the run
// controller and scheduler, plus direct pipeline and config tools.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/yangwenmai/arxivdaily/internal/config"
	"github.com/yangwenmai/arxivdaily/internal/logging"
)

// cfg is loaded once before any subcommand runs.
var cfg config.Config

var rootCmd = &cobra.Command{
	Use:   "arxivdaily",
	Short: "Daily arXiv paper pipeline",
	Long:  "arxivdaily runs the daily arXiv harvesting and summarization pipeline, either on demand or on a schedule behind an HTTP API.",
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		if err := config.LoadEnvFiles(".env.local", ".env"); err != nil {
			return fmt.Errorf("load env files: %w", err)
		}
		cfg = config.Load()
		logging.Init(cfg.LogLevel, os.Stderr)
		return nil
	},
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
