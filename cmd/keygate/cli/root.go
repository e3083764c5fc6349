// Package cli implements the keygate command tree.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"keygate/internal/config"
)

var (
	cfgFile string
	envFile string
)

// Execute creates the root command tree and runs it.
func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keygate",
		Short: "API key gate and key administration",
		Long: `keygate guards an HTTP API with scoped, expiring, rate-limited API keys.

Run 'keygate serve' to start the gate, then manage keys with 'keygate key'
against the running server using a key that holds the admin scope.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return loadEnvironment(cmd)
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to configuration file (YAML)")
	cmd.PersistentFlags().StringVar(&envFile, "env-file", config.DefaultEnvFile, "dotenv file loaded before configuration")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newKeyCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// loadEnvironment applies the dotenv file and, when configured, an AWS
// Secrets Manager secret. Variables already set in the process win.
func loadEnvironment(cmd *cobra.Command) error {
	if err := config.LoadDotEnv(envFile, cmd.Flags().Changed("env-file")); err != nil {
		return err
	}

	settings := config.SecretSettingsFromEnv()
	if settings.SecretID == "" {
		return nil
	}
	client, err := config.NewSecretFetcher(cmd.Context(), settings.Region)
	if err != nil {
		return err
	}
	if _, err := config.LoadSecrets(cmd.Context(), client, settings); err != nil {
		return fmt.Errorf("failed to load secrets: %w", err)
	}
	return nil
}
