package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/harrison/codeloop/internal/config"
)

// Version is injected at build time via -ldflags
var Version = "dev"

// NewRootCommand creates and returns the root cobra command for codeloop
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "codeloop",
		Short: "Generate code and tests with a local model until the tests pass",
		Long: `Codeloop turns a natural-language request into a source file and a test
file using a text generation service, runs the tests in a throwaway sandbox,
and repairs the code or regenerates the tests until they pass or the attempt
budget runs out.

Configuration is loaded from .codeloop/config.yaml (or $CODELOOP_HOME/config.yaml)
if present. CLI flags override configuration file settings.`,
		Version: Version,
		// Silence usage on errors to avoid duplicate help text
		SilenceUsage: true,
	}

	cmd.PersistentFlags().String("config", "", "Path to config file (default: .codeloop/config.yaml)")

	cmd.AddCommand(NewRunCommand())
	cmd.AddCommand(NewModelsCommand())
	cmd.AddCommand(NewHistoryCommand())

	return cmd
}

// loadConfig reads the file named by --config, or the default location.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	configPath, _ := cmd.Flags().GetString("config")
	if configPath == "" {
		cfg, err := config.LoadConfig(config.ConfigPath())
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		return cfg, nil
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config from %s: %w", configPath, err)
	}
	return cfg, nil
}
