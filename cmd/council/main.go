// Package main provides the CLI entry point for the council orchestrator.
//
// Council fans a user question out to several LLM providers, runs an
// anonymized peer-review round between their answers, and has a chairman
// model synthesize the result, streaming every step to the caller as
// NDJSON.
//
// # Basic Usage
//
// Start the server:
//
//	council serve --config council.yaml
//
// Validate a configuration file without starting the server:
//
//	council config validate --config council.yaml
//
// # Environment Variables
//
// Configuration can be provided via environment variables referenced from
// the config file's api_key_env fields, e.g.:
//
//   - ANTHROPIC_API_KEY: Anthropic API key for Claude models
//   - OPENAI_API_KEY: OpenAI API key for GPT models
//   - GOOGLE_API_KEY: Google API key for Gemini models
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
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	rootCmd := buildRootCmd()
	if err := rootCmd.Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

// buildRootCmd creates the root command with all subcommands attached.
// Separated from main() to facilitate testing.
func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "council",
		Short: "Council - multi-model LLM deliberation orchestrator",
		Long: `Council fans a question out to several LLM providers, runs an
anonymized peer-review round between their answers, and has a chairman
model synthesize the final response, streaming every stage as NDJSON.

Supported providers: Anthropic (Claude), OpenAI (GPT), Google (Gemini)`,
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		buildServeCmd(),
		buildConfigCmd(),
	)

	return rootCmd
}
