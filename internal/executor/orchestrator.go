package executor

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/harrison/codeloop/internal/config"
	"github.com/harrison/codeloop/internal/generation"
	"github.com/harrison/codeloop/internal/models"
)

// Logger defines the interface for logging run progress and results.
type Logger interface {
	LogRunStart(runID string, spec models.TaskSpec, workspace string)
	LogPhase(runID string, phase string, attempt int)
	LogAttempt(runID string, attempt models.Attempt)
	LogRunComplete(runID string, result *models.RunResult)
	Warnf(format string, args ...interface{})
}

// ResultSink receives every finished run after its sandbox is gone.
// Errors are logged and never change the outcome of the run.
type ResultSink interface {
	Name() string
	Record(ctx context.Context, runID string, spec models.TaskSpec, result *models.RunResult) error
}

// LoopConfig holds the per-run limits and the profile used for each step.
type LoopConfig struct {
	CodeRepairLimit int
	TestRegenLimit  int
	CoderProfile    string
	TesterProfile   string
	DebuggerProfile string
}

// LoopConfigFrom builds a LoopConfig from the loaded configuration.
func LoopConfigFrom(cfg *config.Config) LoopConfig {
	return LoopConfig{
		CodeRepairLimit: cfg.Loop.CodeRepairLimit,
		TestRegenLimit:  cfg.Loop.TestRegenLimit,
		CoderProfile:    config.ProfileCoder,
		TesterProfile:   config.ProfileTester,
		DebuggerProfile: config.ProfileDebugger,
	}
}

// Dependencies are the collaborators of an Orchestrator.
type Dependencies struct {
	Generator  generation.Generator
	Classifier Classifier
	Runner     TestRunner

	// NewWorkspace returns the (not yet created) workspace for a run.
	NewWorkspace func(runID string) Workspace

	Logger Logger        // optional
	Sinks  []ResultSink  // optional
	RunID  func() string // optional, defaults to uuid.NewString
}

// Orchestrator drives the generate, test, classify and repair loop for one
// task at a time. It holds no per-run state and may be reused.
type Orchestrator struct {
	cfg          LoopConfig
	generator    generation.Generator
	classifier   Classifier
	runner       TestRunner
	newWorkspace func(runID string) Workspace
	logger       Logger
	sinks        []ResultSink
	runID        func() string
}

// NewOrchestrator creates a new Orchestrator instance.
func NewOrchestrator(cfg LoopConfig, deps Dependencies) (*Orchestrator, error) {
	switch {
	case deps.Generator == nil:
		return nil, fmt.Errorf("generator cannot be nil")
	case deps.Classifier == nil:
		return nil, fmt.Errorf("classifier cannot be nil")
	case deps.Runner == nil:
		return nil, fmt.Errorf("test runner cannot be nil")
	case deps.NewWorkspace == nil:
		return nil, fmt.Errorf("workspace factory cannot be nil")
	}

	if cfg.CoderProfile == "" {
		cfg.CoderProfile = config.ProfileCoder
	}
	if cfg.TesterProfile == "" {
		cfg.TesterProfile = config.ProfileTester
	}
	if cfg.DebuggerProfile == "" {
		cfg.DebuggerProfile = config.ProfileDebugger
	}

	o := &Orchestrator{
		cfg:          cfg,
		generator:    deps.Generator,
		classifier:   deps.Classifier,
		runner:       deps.Runner,
		newWorkspace: deps.NewWorkspace,
		logger:       deps.Logger,
		sinks:        append([]ResultSink(nil), deps.Sinks...),
		runID:        deps.RunID,
	}
	if o.logger == nil {
		o.logger = noopLogger{}
	}
	if o.runID == nil {
		o.runID = uuid.NewString
	}
	return o, nil
}

// Run executes one task. Loop outcomes, including generation_unavailable,
// are reported through the result with a nil error. A cancelled context
// returns the partial result together with an error. Invalid specs and
// sandbox failures return only an error.
func (o *Orchestrator) Run(ctx context.Context, spec models.TaskSpec) (*models.RunResult, error) {
	if err := spec.Validate(); err != nil {
		return nil, &PreconditionError{Artifact: spec.ArtifactName, Err: err}
	}

	runID := o.runID()
	ws := o.newWorkspace(runID)
	o.logger.LogRunStart(runID, spec, ws.Root())

	result, err := o.runInWorkspace(ctx, runID, spec, ws)
	if result == nil {
		return nil, err
	}

	o.logger.LogRunComplete(runID, result)
	o.record(ctx, runID, spec, result)
	return result, err
}

// runInWorkspace owns the workspace lifetime: it is destroyed on every exit
// path, panics included, before the result reaches any sink.
func (o *Orchestrator) runInWorkspace(ctx context.Context, runID string, spec models.TaskSpec, ws Workspace) (*models.RunResult, error) {
	// Destroy is safe on a workspace whose Create failed.
	defer func() {
		if err := ws.Destroy(); err != nil {
			o.logger.Warnf("failed to remove sandbox %s: %v", ws.Root(), err)
		}
	}()
	if err := ws.Create(); err != nil {
		return nil, &RunError{Phase: PhaseSetup, Attempt: -1, Err: fmt.Errorf("create sandbox: %w", err)}
	}

	st := &runState{
		runID:    runID,
		spec:     spec,
		ws:       ws,
		budget:   models.NewAttemptBudget(o.cfg.CodeRepairLimit, o.cfg.TestRegenLimit),
		testFile: o.runner.TestFileName(spec.ArtifactName),
	}
	return o.loop(ctx, st)
}

// runState is the loop-carried state of one run.
type runState struct {
	runID    string
	spec     models.TaskSpec
	ws       Workspace
	budget   models.AttemptBudget
	testFile string
	code     string
	tests    string
	attempts []models.Attempt
	verdict  models.Classification

	// exhausted is the budget that ran out first, empty while both remain
	exhausted models.TerminalReason
}

func (s *runState) finish(reason models.TerminalReason, detail string) *models.RunResult {
	return &models.RunResult{
		Passed:         reason == models.ReasonPassed,
		FinalCode:      s.code,
		FinalTests:     s.tests,
		TestPlan:       s.spec.TestPlan,
		Attempts:       append([]models.Attempt(nil), s.attempts...),
		TerminalReason: reason,
		Budget:         s.budget,
		FailureDetail:  detail,
	}
}

func (o *Orchestrator) loop(ctx context.Context, st *runState) (*models.RunResult, error) {
	if ctx.Err() != nil {
		return o.stop(ctx, st, PhaseGenerateCode, ctx.Err())
	}

	o.logger.LogPhase(st.runID, PhaseGenerateCode.String(), 0)
	code, err := o.generator.Generate(ctx, BuildCodeMessages(st.spec), o.cfg.CoderProfile)
	if err != nil {
		return o.stop(ctx, st, PhaseGenerateCode, err)
	}
	st.code = code
	if err := st.ws.WriteFile(st.spec.ArtifactName, st.code); err != nil {
		return nil, &RunError{Phase: PhaseGenerateCode, Attempt: -1, Err: err}
	}

	for index := 0; index < st.budget.MaxAttempts(); index++ {
		if ctx.Err() != nil {
			return o.stop(ctx, st, PhaseGenerateTests, ctx.Err())
		}

		o.logger.LogPhase(st.runID, PhaseGenerateTests.String(), index)
		tests, err := o.generator.Generate(ctx, BuildTestMessages(st.spec, st.code, st.testFile), o.cfg.TesterProfile)
		if err != nil {
			return o.stop(ctx, st, PhaseGenerateTests, err)
		}
		st.tests = tests
		if err := st.ws.WriteFile(st.testFile, st.tests); err != nil {
			return nil, &RunError{Phase: PhaseGenerateTests, Attempt: index, Err: err}
		}

		o.logger.LogPhase(st.runID, PhaseExecute.String(), index)
		res, err := o.runner.RunTests(ctx, st.ws, st.spec.ArtifactName)
		if err != nil {
			if ctx.Err() != nil {
				return o.stop(ctx, st, PhaseExecute, err)
			}
			return nil, &RunError{Phase: PhaseExecute, Attempt: index, Err: err}
		}

		attempt := models.NewAttempt(index, st.code, st.tests, res)
		if res.Passed() {
			o.appendAttempt(st, attempt)
			return st.finish(models.ReasonPassed, ""), nil
		}

		o.logger.LogPhase(st.runID, PhaseClassify.String(), index)
		verdict, err := o.classifier.Classify(ctx, st.code, st.tests, res.Output())
		if err != nil {
			o.appendAttempt(st, attempt)
			return o.stop(ctx, st, PhaseClassify, err)
		}
		attempt.Classification = verdict
		st.verdict = verdict
		o.appendAttempt(st, attempt)

		switch {
		case verdict == models.CodeBug && st.budget.CanRepairCode():
			o.logger.LogPhase(st.runID, PhaseRepair.String(), index)
			repaired, err := o.generator.Generate(ctx,
				BuildRepairMessages(st.spec, st.code, st.testFile, res.Output()), o.cfg.DebuggerProfile)
			if err != nil {
				return o.stop(ctx, st, PhaseRepair, err)
			}
			st.budget.UseCodeRepair()
			if !st.budget.CanRepairCode() {
				st.markExhausted(models.ReasonCodeBudgetExhausted)
			}
			st.code = repaired
			if err := st.ws.WriteFile(st.spec.ArtifactName, st.code); err != nil {
				return nil, &RunError{Phase: PhaseRepair, Attempt: index, Err: err}
			}
		case verdict == models.TestBug && st.budget.UseTestRegen():
			// keep the code, regenerate tests on the next pass
			if !st.budget.CanRegenerateTests() {
				st.markExhausted(models.ReasonTestBudgetExhausted)
			}
		default:
			return st.finish(st.stopReason(verdict), ""), nil
		}
	}

	// every continue above consumes budget, so this is only reached if
	// MaxAttempts and the counters disagree
	return st.finish(st.stopReason(st.verdict), ""), nil
}

func (o *Orchestrator) appendAttempt(st *runState, attempt models.Attempt) {
	st.attempts = append(st.attempts, attempt)
	o.logger.LogAttempt(st.runID, attempt)
}

// stop ends the run after a failed step. Cancellation wins over any other
// cause; everything else at this point is the generation service failing.
func (o *Orchestrator) stop(ctx context.Context, st *runState, phase Phase, err error) (*models.RunResult, error) {
	if ctxErr := ctx.Err(); ctxErr != nil {
		detail := fmt.Sprintf("cancelled during %s: %v", phase, ctxErr)
		return st.finish(models.ReasonCancelled, detail), fmt.Errorf("run %s %s: %w", st.runID, detail, ctxErr)
	}
	return st.finish(models.ReasonGenerationUnavailable, fmt.Sprintf("%s: %v", phase, err)), nil
}

func (s *runState) markExhausted(reason models.TerminalReason) {
	if s.exhausted == "" {
		s.exhausted = reason
	}
}

// stopReason names the budget that ended the run. An inconclusive verdict
// is only undeterminable while no budget has run out; after that the first
// exhausted budget is reported.
func (s *runState) stopReason(verdict models.Classification) models.TerminalReason {
	switch verdict {
	case models.CodeBug:
		return models.ReasonCodeBudgetExhausted
	case models.TestBug:
		return models.ReasonTestBudgetExhausted
	}
	if s.exhausted != "" {
		return s.exhausted
	}
	return models.ReasonUndeterminable
}

// record hands the result to every sink. Sinks still run after
// cancellation so interrupted runs are kept.
func (o *Orchestrator) record(ctx context.Context, runID string, spec models.TaskSpec, result *models.RunResult) {
	sinkCtx := context.WithoutCancel(ctx)
	for _, sink := range o.sinks {
		if err := sink.Record(sinkCtx, runID, spec, result); err != nil {
			o.logger.Warnf("failed to record run in %s: %v", sink.Name(), err)
		}
	}
}

type noopLogger struct{}

func (noopLogger) LogRunStart(string, models.TaskSpec, string) {}
func (noopLogger) LogPhase(string, string, int) {}
func (noopLogger) LogAttempt(string, models.Attempt) {}
func (noopLogger) LogRunComplete(string, *models.RunResult) {}
func (noopLogger) Warnf(string, ...interface{}) {}
