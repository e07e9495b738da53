// Package cli implements the surveybot command line.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/money626/epidemic-servey-chatbot/internal/surveybot/config"
	"github.com/money626/epidemic-servey-chatbot/internal/surveybot/observability"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string

	// Config is loaded before any subcommand runs.
	Config *config.Config
}

// NewRootCommand creates the root command for the surveybot CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "surveybot",
		Short: "Chat bot tracking footprint-overlap survey replies",
		Long: `surveybot keeps a roster of people and records whether each one's
footprint overlaps a published case footprint. Operators drive it through
chat commands on LINE or Matrix.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.ConfigPath)
			if err != nil {
				return err
			}
			observability.Setup(cfg.Log.Level, cfg.Log.Format)
			observability.RegisterSecrets(cfg.Secrets()...)
			opts.Config = cfg
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "YAML config file (default $"+config.FileEnv+")")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewAdminCommand(opts))
	cmd.AddCommand(NewResetCommand(opts))
	cmd.AddCommand(NewVersionCommand())

	return cmd
}
