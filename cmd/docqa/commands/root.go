// Package commands defines all Cobra CLI commands for the docqa binary.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/54b3r/docqa-go/internal/audit"
	"github.com/54b3r/docqa-go/internal/config"
	"github.com/54b3r/docqa-go/internal/logging"
)

// configPath holds the --config flag value for YAML config file override.
var configPath string

// NewRootCmd constructs the root Cobra command that all subcommands attach to.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "docqa",
		Short: "Ask questions about your own documents",
		Long: `docqa ingests text documents into a vector store and answers natural
language questions from them with a local or hosted language model.

Documents are split into fragments, embedded, and stored either in a local
JSON snapshot (default) or a Qdrant collection. Questions retrieve the most
similar fragments and send them, with recent conversation, to the model.

Configuration comes from environment variables, a .env file, or a YAML
config file (~/.docqa/config.yaml). Environment variables always win.
See 'docqa --help' for available commands.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			log := logging.New()

			// Load .env and YAML config (env vars always override file values).
			path, err := config.Load(configPath, log)
			if err != nil {
				return err
			}

			audit.LogCommandStart(log, cmd.CommandPath(), path)
			return nil
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file (default: ~/.docqa/config.yaml)")

	root.AddCommand(
		NewServeCmd(),
		NewIngestCmd(),
		NewAskCmd(),
		NewDocsCmd(),
		NewHistoryCmd(),
		NewVersionCmd(),
	)

	return root
}
