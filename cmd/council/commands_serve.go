package main

import (
	"github.com/spf13/cobra"
)

// buildServeCmd creates the "serve" command that starts the demo HTTP
// surface over the orchestrator.
func buildServeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the council HTTP server",
		Long: `Start the council HTTP server.

The server will:
1. Load and validate configuration from the specified file
2. Build the model registry and provider clients
3. Open the conversation store (SQL-backed if database.url is set, in-memory otherwise)
4. Serve POST /turns, streaming each turn's deliberation as NDJSON

Graceful shutdown is handled on SIGINT/SIGTERM.`,
		Example: `  # Start with default config
  council serve --config council.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "council.yaml", "Path to YAML configuration file")
	return cmd
}

// buildConfigCmd creates the "config" command group.
func buildConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and validate configuration",
	}
	cmd.AddCommand(buildConfigValidateCmd(), buildConfigSchemaCmd())
	return cmd
}

func buildConfigValidateCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Load and validate a configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigValidate(cmd, configPath)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "council.yaml", "Path to YAML configuration file")
	return cmd
}

func buildConfigSchemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Print the configuration JSON Schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigSchema(cmd)
		},
	}
}
