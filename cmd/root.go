// Package cmd provides the ragcache CLI commands.
//
// Commands:
//   - serve: HTTP API server
//   - ingest: seed the knowledge collection from CSV files or a web page
//   - mcp: Model Context Protocol server over stdio
//   - version: build information
//
// Long-running commands install a signal context so SIGINT/SIGTERM shut
// them down gracefully.
package cmd

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/ragcache/ragcache/internal/log"
)

var rootCmd = &cobra.Command{
	Use:   "ragcache",
	Short: "Retrieval-augmented answering with a semantic cache",
	Long: `ragcache answers questions from an indexed knowledge base.

Each prompt is embedded and checked against a semantic cache of previous
answers; on a miss the closest indexed document grounds a fresh generation,
and the new answer is cached for semantically similar prompts to come.`,
	SilenceUsage: true,
}

var (
	verbose  bool
	jsonLogs bool
)

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&jsonLogs, "json-logs", false, "emit logs as JSON")
}

// newLogger builds the process logger from the persistent flags. Output
// goes to stderr, keeping stdout free for command output and MCP framing.
func newLogger() log.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return log.New(log.Config{Level: level, JSON: jsonLogs})
}
