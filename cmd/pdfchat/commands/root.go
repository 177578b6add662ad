// Package commands defines all Cobra CLI commands for the pdfchat binary.
package commands

import (
	"errors"
	"io/fs"
	"log/slog"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/54b3r/pdfchat-go/internal/audit"
	"github.com/54b3r/pdfchat-go/internal/config"
	"github.com/54b3r/pdfchat-go/internal/logging"
)

// configPath holds the --config flag value for YAML config file override.
var configPath string

// envFile holds the --env-file flag value.
var envFile string

// loadedConfigPath stores the resolved config file path for audit logging.
var loadedConfigPath string

// NewRootCmd constructs the root Cobra command that all subcommands attach to.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "pdfchat",
		Short: "pdfchat: chat with your PDFs through an LLM",
		Long: `pdfchat turns uploaded PDF documents into a per-session retrieval index
and answers questions, writes quizzes, and summarises content from it.

Model provider is selected via the MODEL_PROVIDER environment variable
or a YAML config file (~/.pdfchat/config.yaml). A .env file in the working
directory is loaded first; real environment variables always win.
See 'pdfchat --help' for available commands.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			log := logging.New()

			// godotenv never overrides variables that are already set.
			if err := godotenv.Load(envFile); err != nil {
				if !errors.Is(err, fs.ErrNotExist) || cmd.Flags().Changed("env-file") {
					return err
				}
			} else {
				log.Debug("env: loaded dotenv file", slog.String("path", envFile))
			}

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

	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file (default: ~/.pdfchat/config.yaml)")
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Path to a dotenv file loaded before the config")

	root.AddCommand(
		NewServeCmd(),
		NewAskCmd(),
		NewVersionCmd(),
	)

	return root
}
