// Package main provides the process entrypoint for the MarkdownFlow Run
// Engine: an HTTP/SSE server driving the Block Runner (C3), the Outline
// Walker (C4), and the Streaming TTS Orchestrator (C6/C7) for one learner
// at a time per (user, outline) pair.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// Build information, populated by ldflags during build.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := buildRootCmd().Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "mdflow-engine",
		Short:        "MarkdownFlow Run Engine - visual-aware streaming TTS learning runtime",
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}
	rootCmd.AddCommand(buildServeCmd())
	return rootCmd
}

func buildServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the run engine's HTTP/SSE server",
		Long: `Start the run engine server.

The server:
1. Opens the Postgres connection and the Config/Secrets Store (C11)
2. Builds the LLM provider registry (C5) and the TTS pipeline (C6/C7)
3. Starts the HTTP/SSE surface described in SPEC_FULL.md section 6.1

Graceful shutdown is handled on SIGINT/SIGTERM.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), loadConfig())
		},
	}
	return cmd
}
