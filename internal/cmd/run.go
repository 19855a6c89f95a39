package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/harrison/codeloop/internal/artifact"
	"github.com/harrison/codeloop/internal/config"
	"github.com/harrison/codeloop/internal/executor"
	"github.com/harrison/codeloop/internal/generation"
	"github.com/harrison/codeloop/internal/history"
	"github.com/harrison/codeloop/internal/logger"
	"github.com/harrison/codeloop/internal/models"
	"github.com/harrison/codeloop/internal/sandbox"
)

// sharedWorkspaceName is the sandbox directory used when runs do not get
// their own workspace.
const sharedWorkspaceName = "workspace"

// NewRunCommand creates the run command
func NewRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Generate code and tests, then repair until the tests pass",
		Long: `Generate a source file from a natural-language request, generate tests for it
from a test plan, and run the tests in a sandbox. Failing runs are classified
as a code bug or a test bug; code bugs are repaired and test bugs lead to new
tests, within the configured budgets.

Task details missing from the flags are asked for when stdin is a terminal.
The final code and tests are written to the output directory whether or not
the tests passed. The command exits non-zero when the tests did not pass.

Examples:
  # Interactive
  codeloop run

  # Fully specified
  codeloop run --language python --artifact adder.py \
    --prompt "a function add(a, b) returning the sum" \
    --test-plan "1. add(2, 3) == 5"

  # Draft the test plan with the model and accept it
  codeloop run --language python --artifact adder.py --prompt-file request.md \
    --plan-source auto --yes

  # Fix existing code
  codeloop run --mode debug --seed-file broken.py --language python \
    --artifact broken.py --prompt-file request.md --test-plan-file plan.md`,
		Args: cobra.NoArgs,
		RunE: runCommand,
	}

	cmd.Flags().String("language", "", "Programming language of the artifact (selects the test runner)")
	cmd.Flags().String("artifact", "", "File name of the code to generate (e.g. my_module.py)")
	cmd.Flags().String("prompt", "", "Natural-language description of the code")
	cmd.Flags().String("prompt-file", "", "Read the description from a file")
	cmd.Flags().String("test-plan", "", "Test plan the generated tests must follow")
	cmd.Flags().String("test-plan-file", "", "Read the test plan from a file")
	cmd.Flags().String("plan-source", "", "Where the test plan comes from when none is given: manual or auto")
	cmd.Flags().BoolP("yes", "y", false, "Accept a generated test plan without asking")
	cmd.Flags().String("mode", "", "generate, refactor or debug (default: generate)")
	cmd.Flags().String("seed-file", "", "Existing code to refactor or debug")
	cmd.Flags().Int("code-repair-limit", 0, "Maximum number of code repairs (overrides config)")
	cmd.Flags().Int("test-regen-limit", 0, "Maximum number of test regenerations (overrides config)")
	cmd.Flags().String("test-timeout", "", "Maximum time for one test execution (e.g., 30s, 2m)")
	cmd.Flags().String("model", "", "Model to use for every generation profile")
	cmd.Flags().Bool("verbose", false, "Show test output and phase details")
	cmd.Flags().String("log-dir", "", "Directory for log files")
	cmd.Flags().String("output-dir", "", "Directory receiving the final code and tests")
	cmd.Flags().Bool("no-history", false, "Do not record the run in the history database")

	return cmd
}

// flagOverrides builds config overrides from the flags the user set.
func flagOverrides(cmd *cobra.Command) (config.FlagOverrides, error) {
	var f config.FlagOverrides

	if cmd.Flags().Changed("log-dir") {
		v, _ := cmd.Flags().GetString("log-dir")
		f.LogDir = &v
	}
	if cmd.Flags().Changed("output-dir") {
		v, _ := cmd.Flags().GetString("output-dir")
		f.OutputDir = &v
	}
	if cmd.Flags().Changed("model") {
		v, _ := cmd.Flags().GetString("model")
		f.Model = &v
	}
	if cmd.Flags().Changed("code-repair-limit") {
		v, _ := cmd.Flags().GetInt("code-repair-limit")
		f.CodeRepairLimit = &v
	}
	if cmd.Flags().Changed("test-regen-limit") {
		v, _ := cmd.Flags().GetInt("test-regen-limit")
		f.TestRegenLimit = &v
	}
	if cmd.Flags().Changed("test-timeout") {
		s, _ := cmd.Flags().GetString("test-timeout")
		timeout, err := time.ParseDuration(s)
		if err != nil {
			return f, fmt.Errorf("invalid test timeout format %q: %w", s, err)
		}
		f.TestTimeout = &timeout
	}
	if noHistory, _ := cmd.Flags().GetBool("no-history"); noHistory {
		disabled := false
		f.HistoryEnabled = &disabled
	}
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		level := "debug"
		f.LogLevel = &level
	}

	return f, nil
}

// readTaskFlags collects the task flags, reading --prompt-file and
// --test-plan-file.
func readTaskFlags(cmd *cobra.Command) (taskInput, error) {
	var in taskInput
	in.Language, _ = cmd.Flags().GetString("language")
	in.Artifact, _ = cmd.Flags().GetString("artifact")
	in.Prompt, _ = cmd.Flags().GetString("prompt")
	in.TestPlan, _ = cmd.Flags().GetString("test-plan")
	in.PlanSource, _ = cmd.Flags().GetString("plan-source")
	in.Mode, _ = cmd.Flags().GetString("mode")
	in.SeedFile, _ = cmd.Flags().GetString("seed-file")
	in.AssumeYes, _ = cmd.Flags().GetBool("yes")

	if cmd.Flags().Changed("prompt") && cmd.Flags().Changed("prompt-file") {
		return in, fmt.Errorf("cannot use both --prompt and --prompt-file")
	}
	if cmd.Flags().Changed("test-plan") && cmd.Flags().Changed("test-plan-file") {
		return in, fmt.Errorf("cannot use both --test-plan and --test-plan-file")
	}

	if path, _ := cmd.Flags().GetString("prompt-file"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return in, fmt.Errorf("read prompt file: %w", err)
		}
		in.Prompt = string(data)
	}
	if path, _ := cmd.Flags().GetString("test-plan-file"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return in, fmt.Errorf("read test plan file: %w", err)
		}
		in.TestPlan = string(data)
	}

	return in, nil
}

// workspaceFactory places each run's sandbox under the configured root.
func workspaceFactory(sb config.SandboxConfig) func(runID string) executor.Workspace {
	return func(runID string) executor.Workspace {
		name := sharedWorkspaceName
		if sb.UniquePerRun {
			name = runID
		}
		return sandbox.New(filepath.Join(sb.Root, name))
	}
}

// runCommand implements the run command logic
func runCommand(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	overrides, err := flagOverrides(cmd)
	if err != nil {
		return err
	}
	cfg.MergeWithFlags(overrides)

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	in, err := readTaskFlags(cmd)
	if err != nil {
		return err
	}

	client, err := generation.NewFromConfig(cfg.Generation)
	if err != nil {
		return fmt.Errorf("failed to create generation client: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out := cmd.OutOrStdout()
	collector := &taskCollector{
		plan: executor.NewPlanner(client).Plan,
		out:  out,
	}
	if isInteractive(cmd.InOrStdin()) {
		collector.prompter = NewPrompter(NewDefaultMenuReader(cmd.InOrStdin()), out)
	}

	spec, err := collector.collect(ctx, in)
	if err != nil {
		return err
	}

	runnerCfg, err := cfg.Runner(spec.Language)
	if err != nil {
		return err
	}
	runner := executor.NewCommandTestRunner(runnerCfg, cfg.Sandbox.TestTimeout)

	consoleLog := logger.NewConsoleLogger(out, cfg.LogLevel)
	loggers := []logger.RunLogger{consoleLog}
	fileLog, err := logger.NewFileLogger(cfg.LogDir, cfg.LogLevel)
	if err != nil {
		consoleLog.Warnf("file logging disabled: %v", err)
	} else {
		defer fileLog.Close()
		loggers = append(loggers, fileLog)
	}
	runLog := logger.NewMultiLogger(loggers...)

	writer := artifact.NewWriter(cfg.OutputDir, runner.TestFileName)
	sinks := []executor.ResultSink{writer}

	var store *history.Store
	if cfg.History.Enabled {
		store, err = history.NewStore(cfg.History.DBPath)
		if err != nil {
			runLog.Warnf("run history disabled: %v", err)
		} else {
			defer store.Close()
			sinks = append(sinks, history.NewRecorder(store))
		}
	}

	orch, err := executor.NewOrchestrator(executor.LoopConfigFrom(cfg), executor.Dependencies{
		Generator:    client,
		Classifier:   executor.NewLLMClassifier(client, spec.Language),
		Runner:       runner,
		NewWorkspace: workspaceFactory(cfg.Sandbox),
		Logger:       runLog,
		Sinks:        sinks,
	})
	if err != nil {
		return fmt.Errorf("failed to create orchestrator: %w", err)
	}

	result, err := orch.Run(ctx, spec)
	if err == nil && store != nil && cfg.History.KeepDays > 0 {
		if _, err := store.CleanupOld(context.WithoutCancel(ctx), cfg.History.KeepDays); err != nil {
			runLog.Warnf("failed to prune run history: %v", err)
		}
	}

	if result != nil && result.FinalCode != "" {
		fmt.Fprintf(out, "\nCode written to %s\n", writer.CodePath(spec.ArtifactName))
	}

	return runOutcome(result, err)
}

// runOutcome turns a finished run into the command's exit error.
func runOutcome(result *models.RunResult, err error) error {
	switch {
	case executor.IsPreconditionError(err):
		return fmt.Errorf("cannot start run: %w", err)
	case executor.IsCancelled(err):
		return fmt.Errorf("run interrupted, partial results saved: %w", err)
	case err != nil:
		return err
	case !result.Passed:
		return fmt.Errorf("tests did not pass: %s", result.TerminalReason.Description())
	}
	return nil
}
