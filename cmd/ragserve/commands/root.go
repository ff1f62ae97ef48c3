// Package commands defines all Cobra CLI commands for the ragserve binary.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/ragworks/ragserve/internal/audit"
	"github.com/ragworks/ragserve/internal/config"
	"github.com/ragworks/ragserve/internal/logging"
)

// configPath holds the --config flag value for YAML config file override.
var configPath string

// loadedConfigPath stores the resolved config file path for audit logging.
var loadedConfigPath string

// NewRootCmd constructs the root Cobra command that all subcommands attach to.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "ragserve",
		Short: "ragserve — document ingestion and retrieval-augmented query service",
		Long: `ragserve ingests documents (PDF, DOCX, HTML, Markdown, plain text) into a
Qdrant vector store and answers natural language questions over them with
cited sources.

Uploads are processed asynchronously: the API accepts a file, registers it,
and queues an ingestion job; workers parse, chunk, embed, and index it.
Queries embed the question, retrieve the nearest fragments, and synthesize
an answer with an LLM.

Model provider is selected via the MODEL_PROVIDER environment variable
or a YAML config file (~/.ragserve/config.yaml).
See 'ragserve --help' for available commands.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			log := logging.New()

			// Load YAML config (env vars always override YAML values).
			path, err := config.Load(configPath, log)
			if err != nil {
				return err
			}
			loadedConfigPath = path

			// Emit structured audit log for every command invocation.
			audit.LogCommandStart(log, cmd.Name(), loadedConfigPath)

			return nil
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file (default: ~/.ragserve/config.yaml)")

	root.AddCommand(
		NewServeCmd(),
		NewWorkerCmd(),
		NewVersionCmd(),
	)

	return root
}
