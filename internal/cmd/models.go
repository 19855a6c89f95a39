package cmd

import (
	"fmt"
	"sort"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/harrison/codeloop/internal/config"
	"github.com/harrison/codeloop/internal/generation"
)

// NewModelsCommand creates the 'codeloop models' command
func NewModelsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List the models the generation service offers",
		Long: `List the models available from the configured generation backend and mark
the ones used by a generation profile.`,
		Args: cobra.NoArgs,
		RunE: runModels,
	}
}

func runModels(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	client, err := generation.NewFromConfig(cfg.Generation)
	if err != nil {
		return fmt.Errorf("failed to create generation client: %w", err)
	}

	names, err := client.ListModels(cmd.Context())
	if generation.IsUnavailable(err) {
		where := client.Backend().Name()
		if cfg.Generation.BaseURL != "" {
			where += " at " + cfg.Generation.BaseURL
		}
		return fmt.Errorf("cannot reach %s: %w", where, err)
	}
	if err != nil {
		return fmt.Errorf("list models: %w", err)
	}

	output := cmd.OutOrStdout()
	if len(names) == 0 {
		fmt.Fprintf(output, "No models available from %s\n", client.Backend().Name())
		return nil
	}

	usedBy := profilesByModel(cfg)
	cyan := color.New(color.FgCyan)
	fmt.Fprintf(output, "Models available from %s:\n", client.Backend().Name())
	for _, name := range names {
		if profiles, ok := usedBy[name]; ok {
			fmt.Fprintf(output, "  %s %s\n", name, cyan.Sprintf("(%s)", strings.Join(profiles, ", ")))
			continue
		}
		fmt.Fprintf(output, "  %s\n", name)
	}

	available := make(map[string]bool, len(names))
	for _, name := range names {
		available[name] = true
	}
	yellow := color.New(color.FgYellow)
	for _, model := range sortedModelNames(usedBy) {
		if !available[model] {
			yellow.Fprintf(output, "Warning: model %s used by %s is not available\n", model, strings.Join(usedBy[model], ", "))
		}
	}
	return nil
}

// profilesByModel maps each configured model to the profiles using it.
func profilesByModel(cfg *config.Config) map[string][]string {
	usedBy := make(map[string][]string)
	for name, p := range cfg.Generation.Profiles {
		usedBy[p.Model] = append(usedBy[p.Model], name)
	}
	for model := range usedBy {
		sort.Strings(usedBy[model])
	}
	return usedBy
}

func sortedModelNames(m map[string][]string) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
