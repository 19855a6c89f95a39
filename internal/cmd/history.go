package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/harrison/codeloop/internal/history"
)

// NewHistoryCommand creates the 'codeloop history' command group
func NewHistoryCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect and prune recorded runs",
		Long: `Inspect the run history database: the latest passing solution for a file,
the failed runs for a file, and pruning of old records.`,
	}

	cmd.AddCommand(newHistoryShowCommand())
	cmd.AddCommand(newHistoryFailuresCommand())
	cmd.AddCommand(newHistoryPruneCommand())

	return cmd
}

func newHistoryShowCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <file-name>",
		Short: "Show the latest passing solution for a file",
		Args:  cobra.ExactArgs(1),
		RunE:  runHistoryShow,
	}
	cmd.Flags().Bool("tests", false, "Also print the tests")
	return cmd
}

func newHistoryFailuresCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "failures <file-name>",
		Short: "List failed runs for a file, most recent first",
		Args:  cobra.ExactArgs(1),
		RunE:  runHistoryFailures,
	}
	cmd.Flags().Int("limit", 5, "Maximum number of failures to show (0 = all)")
	cmd.Flags().Bool("output", false, "Print the last test output of each failure")
	return cmd
}

func newHistoryPruneCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete records older than a number of days",
		Args:  cobra.NoArgs,
		RunE:  runHistoryPrune,
	}
	cmd.Flags().Int("keep-days", 0, "Keep records from the last N days (default: history.keep_days)")
	return cmd
}

// openHistory opens the configured database. It returns a nil store, and
// prints a note, when no database exists yet.
func openHistory(cmd *cobra.Command) (*history.Store, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	dbPath := cfg.History.DBPath
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		fmt.Fprintf(cmd.OutOrStdout(), "No run history found at %s\n", dbPath)
		return nil, nil
	}

	store, err := history.NewStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open history store: %w", err)
	}
	return store, nil
}

func runHistoryShow(cmd *cobra.Command, args []string) error {
	store, err := openHistory(cmd)
	if err != nil || store == nil {
		return err
	}
	defer store.Close()

	fileName := args[0]
	output := cmd.OutOrStdout()

	sol, err := store.GetLatestSuccess(cmd.Context(), fileName)
	if err != nil {
		return fmt.Errorf("get latest solution: %w", err)
	}
	if sol == nil {
		fmt.Fprintf(output, "No passing solution recorded for %s\n", fileName)
		return nil
	}

	green := color.New(color.FgGreen, color.Bold)
	green.Fprintf(output, "Latest solution for %s\n", sol.FileName)
	fmt.Fprintf(output, "  Run: %s\n", sol.RunID)
	fmt.Fprintf(output, "  Recorded: %s\n", sol.CreatedAt.Local().Format(time.DateTime))
	fmt.Fprintf(output, "  Language: %s\n", sol.Language)
	fmt.Fprintf(output, "  Mode: %s\n", sol.Mode)
	fmt.Fprintf(output, "  Attempts: %d\n", sol.Attempts)

	printSection(output, "Code", sol.Code)
	if showTests, _ := cmd.Flags().GetBool("tests"); showTests {
		printSection(output, "Tests", sol.Tests)
	}
	return nil
}

func runHistoryFailures(cmd *cobra.Command, args []string) error {
	store, err := openHistory(cmd)
	if err != nil || store == nil {
		return err
	}
	defer store.Close()

	fileName := args[0]
	limit, _ := cmd.Flags().GetInt("limit")
	showOutput, _ := cmd.Flags().GetBool("output")
	output := cmd.OutOrStdout()

	failures, err := store.GetFailures(cmd.Context(), fileName, limit)
	if err != nil {
		return fmt.Errorf("get failures: %w", err)
	}
	if len(failures) == 0 {
		fmt.Fprintf(output, "No failures recorded for %s\n", fileName)
		return nil
	}

	red := color.New(color.FgRed)
	cyan := color.New(color.FgCyan)

	fmt.Fprintf(output, "Failures for %s (%d shown)\n", fileName, len(failures))
	for i, f := range failures {
		fmt.Fprintf(output, "\n%s %s\n", cyan.Sprintf("#%d", i+1), f.CreatedAt.Local().Format(time.DateTime))
		fmt.Fprintf(output, "  Run: %s\n", f.RunID)
		fmt.Fprintf(output, "  Reason: %s\n", red.Sprint(f.TerminalReason))
		fmt.Fprintf(output, "  Attempts: %d\n", f.Attempts)
		if f.FailureDetail != "" {
			fmt.Fprintf(output, "  Detail: %s\n", f.FailureDetail)
		}
		if showOutput && f.TestOutput != "" {
			printSection(output, "Test output", f.TestOutput)
		}
	}
	return nil
}

func runHistoryPrune(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	keepDays := cfg.History.KeepDays
	if cmd.Flags().Changed("keep-days") {
		keepDays, _ = cmd.Flags().GetInt("keep-days")
	}
	if keepDays <= 0 {
		return fmt.Errorf("--keep-days must be > 0 (or set history.keep_days)")
	}

	store, err := openHistory(cmd)
	if err != nil || store == nil {
		return err
	}
	defer store.Close()

	deleted, err := store.CleanupOld(cmd.Context(), keepDays)
	if err != nil {
		return fmt.Errorf("prune history: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d record(s) older than %d day(s)\n", deleted, keepDays)
	return nil
}

func printSection(w io.Writer, title, body string) {
	label := color.New(color.FgCyan)
	label.Fprintf(w, "\n--- %s ---\n", title)
	fmt.Fprintln(w, strings.TrimRight(body, "\n"))
}
