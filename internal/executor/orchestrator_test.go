package executor

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harrison/codeloop/internal/config"
	"github.com/harrison/codeloop/internal/generation"
	"github.com/harrison/codeloop/internal/models"
)

func adderSpec() models.TaskSpec {
	return models.TaskSpec{
		Language:     "python",
		ArtifactName: "adder.py",
		Prompt:       "Write add(a, b) returning the sum.",
		TestPlan:     "1. add(2, 3) == 5",
		Mode:         models.ModeGenerate,
	}
}

type harness struct {
	gen        *scriptedGenerator
	classifier *scriptedClassifier
	runner     *fakeRunner
	ws         *fakeWorkspace
	sink       *recordingSink
	logger     *recordingLogger
	wsCalls    int
}

func newHarness() *harness {
	h := &harness{
		gen:        newScriptedGenerator(),
		classifier: &scriptedClassifier{},
		runner:     &fakeRunner{},
		ws:         &fakeWorkspace{root: "/tmp/codeloop-test/run"},
		logger:     &recordingLogger{},
	}
	h.sink = &recordingSink{name: "recorder", ws: h.ws}
	return h
}

func (h *harness) orchestrator(t *testing.T, codeLimit, testLimit int) *Orchestrator {
	t.Helper()
	o, err := NewOrchestrator(LoopConfig{CodeRepairLimit: codeLimit, TestRegenLimit: testLimit}, Dependencies{
		Generator:  h.gen,
		Classifier: h.classifier,
		Runner:     h.runner,
		NewWorkspace: func(runID string) Workspace {
			h.wsCalls++
			return h.ws
		},
		Logger: h.logger,
		Sinks:  []ResultSink{h.sink},
		RunID:  func() string { return "run-1" },
	})
	require.NoError(t, err)
	return o
}

func TestNewOrchestrator_RequiresDependencies(t *testing.T) {
	gen := newScriptedGenerator()
	ws := func(string) Workspace { return &fakeWorkspace{} }

	tests := []struct {
		name string
		deps Dependencies
		want string
	}{
		{"no generator", Dependencies{Classifier: &scriptedClassifier{}, Runner: &fakeRunner{}, NewWorkspace: ws}, "generator"},
		{"no classifier", Dependencies{Generator: gen, Runner: &fakeRunner{}, NewWorkspace: ws}, "classifier"},
		{"no runner", Dependencies{Generator: gen, Classifier: &scriptedClassifier{}, NewWorkspace: ws}, "test runner"},
		{"no workspace", Dependencies{Generator: gen, Classifier: &scriptedClassifier{}, Runner: &fakeRunner{}}, "workspace"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewOrchestrator(LoopConfig{}, tt.deps)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoopConfigFrom(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Loop.CodeRepairLimit = 5
	cfg.Loop.TestRegenLimit = 4

	lc := LoopConfigFrom(cfg)
	assert.Equal(t, 5, lc.CodeRepairLimit)
	assert.Equal(t, 4, lc.TestRegenLimit)
	assert.Equal(t, config.ProfileCoder, lc.CoderProfile)
	assert.Equal(t, config.ProfileTester, lc.TesterProfile)
	assert.Equal(t, config.ProfileDebugger, lc.DebuggerProfile)
}

func TestRun_PassesFirstTime(t *testing.T) {
	h := newHarness()
	h.gen.on(config.ProfileCoder, "def add(a, b):\n    return a + b")
	h.gen.on(config.ProfileTester, "def test_add():\n    assert add(2, 3) == 5")
	h.runner.results = []models.ExecResult{{Stdout: "1 passed", ExitStatus: 0}}

	result, err := h.orchestrator(t, 3, 2).Run(context.Background(), adderSpec())
	require.NoError(t, err)

	assert.True(t, result.Passed)
	assert.Equal(t, models.ReasonPassed, result.TerminalReason)
	require.Len(t, result.Attempts, 1)
	assert.Equal(t, models.Classification(""), result.Attempts[0].Classification)
	assert.Equal(t, "def add(a, b):\n    return a + b", result.FinalCode)
	assert.Equal(t, adderSpec().TestPlan, result.TestPlan)
	assert.Empty(t, result.FailureDetail)

	assert.Equal(t, []string{config.ProfileCoder, config.ProfileTester}, h.gen.Calls())
	assert.Zero(t, h.classifier.calls, "a passing run is never classified")
	assert.Equal(t, "def add(a, b):\n    return a + b", h.ws.files["adder.py"])
	assert.Contains(t, h.ws.files, "test_adder.py")
	assert.True(t, h.ws.destroyed)
}

func TestRun_CodeBugExhaustsCodeBudget(t *testing.T) {
	h := newHarness()
	h.gen.on(config.ProfileCoder, "v0")
	h.gen.on(config.ProfileTester, "tests")
	h.gen.on(config.ProfileDebugger, "v1", "v2")
	h.runner.results = []models.ExecResult{failing("AssertionError")}
	h.classifier.verdicts = []models.Classification{models.CodeBug}

	result, err := h.orchestrator(t, 2, 1).Run(context.Background(), adderSpec())
	require.NoError(t, err)

	assert.False(t, result.Passed)
	assert.Equal(t, models.ReasonCodeBudgetExhausted, result.TerminalReason)
	require.Len(t, result.Attempts, 3)
	assert.Equal(t, []string{"v0", "v1", "v2"}, []string{
		result.Attempts[0].Code, result.Attempts[1].Code, result.Attempts[2].Code,
	})
	for i, a := range result.Attempts {
		assert.Equal(t, i, a.Index)
		assert.Equal(t, models.CodeBug, a.Classification)
	}
	assert.Equal(t, "v2", result.FinalCode)
	assert.Equal(t, 2, result.Budget.CodeRepairsUsed)
	assert.Equal(t, 0, result.Budget.TestRegensUsed)

	assert.Equal(t, []string{
		config.ProfileCoder,
		config.ProfileTester, config.ProfileDebugger,
		config.ProfileTester, config.ProfileDebugger,
		config.ProfileTester,
	}, h.gen.Calls())
	assert.Equal(t, "v2", h.ws.files["adder.py"])
}

func TestRun_MixedVerdicts(t *testing.T) {
	h := newHarness()
	h.gen.on(config.ProfileCoder, "v0")
	h.gen.on(config.ProfileTester, "t0", "t1", "t2")
	h.gen.on(config.ProfileDebugger, "v1")
	h.runner.results = []models.ExecResult{failing("first"), failing("second"), failing("third")}
	h.classifier.verdicts = []models.Classification{models.TestBug, models.CodeBug, models.CodeBug}

	result, err := h.orchestrator(t, 1, 1).Run(context.Background(), adderSpec())
	require.NoError(t, err)

	assert.Equal(t, models.ReasonCodeBudgetExhausted, result.TerminalReason)
	require.Len(t, result.Attempts, 3)

	// test regeneration keeps the code
	assert.Equal(t, "v0", result.Attempts[0].Code)
	assert.Equal(t, "v0", result.Attempts[1].Code)
	assert.Equal(t, "v1", result.Attempts[2].Code)
	assert.Equal(t, []string{"t0", "t1", "t2"}, []string{
		result.Attempts[0].Tests, result.Attempts[1].Tests, result.Attempts[2].Tests,
	})
	assert.Equal(t, 1, result.Budget.CodeRepairsUsed)
	assert.Equal(t, 1, result.Budget.TestRegensUsed)
	assert.Equal(t, []string{"first", "second", "third"}, h.classifier.outputs)
}

func TestRun_TestBugExhaustsTestBudget(t *testing.T) {
	h := newHarness()
	h.gen.on(config.ProfileCoder, "v0")
	h.gen.on(config.ProfileTester, "t0", "t1")
	h.runner.results = []models.ExecResult{failing("bad test")}
	h.classifier.verdicts = []models.Classification{models.TestBug}

	result, err := h.orchestrator(t, 3, 1).Run(context.Background(), adderSpec())
	require.NoError(t, err)

	assert.Equal(t, models.ReasonTestBudgetExhausted, result.TerminalReason)
	require.Len(t, result.Attempts, 2)
	assert.Equal(t, "v0", result.FinalCode)
	assert.Equal(t, "t1", result.FinalTests)
	assert.Equal(t, 1, result.Budget.TestRegensUsed)
	assert.Equal(t, 0, result.Budget.CodeRepairsUsed)
	assert.NotContains(t, h.gen.Calls(), config.ProfileDebugger)
}

func TestRun_TestBugDoesNotResetCodeRepairs(t *testing.T) {
	h := newHarness()
	h.gen.on(config.ProfileCoder, "v0")
	h.gen.on(config.ProfileTester, "t")
	h.gen.on(config.ProfileDebugger, "v1", "v2")
	h.runner.results = []models.ExecResult{failing("x")}
	h.classifier.verdicts = []models.Classification{models.CodeBug, models.TestBug, models.CodeBug, models.CodeBug}

	result, err := h.orchestrator(t, 2, 1).Run(context.Background(), adderSpec())
	require.NoError(t, err)

	assert.Equal(t, models.ReasonCodeBudgetExhausted, result.TerminalReason)
	assert.Len(t, result.Attempts, 4)
	assert.Equal(t, 2, result.Budget.CodeRepairsUsed)
	assert.Equal(t, 1, result.Budget.TestRegensUsed)
}

func TestRun_AttemptsNeverExceedMaxAttempts(t *testing.T) {
	limits := []struct{ code, test int }{{0, 0}, {1, 0}, {0, 1}, {2, 1}, {3, 2}}
	verdictSets := [][]models.Classification{
		{models.CodeBug},
		{models.TestBug},
		{models.CodeBug, models.TestBug},
		{models.TestBug, models.CodeBug},
	}

	for _, l := range limits {
		for _, verdicts := range verdictSets {
			h := newHarness()
			h.gen.on(config.ProfileCoder, "v")
			h.gen.on(config.ProfileTester, "t")
			h.gen.on(config.ProfileDebugger, "v")
			h.runner.results = []models.ExecResult{failing("x")}
			h.classifier.verdicts = append([]models.Classification(nil), verdicts...)

			result, err := h.orchestrator(t, l.code, l.test).Run(context.Background(), adderSpec())
			require.NoError(t, err)

			assert.LessOrEqual(t, len(result.Attempts), l.code+l.test+1)
			assert.LessOrEqual(t, result.Budget.CodeRepairsUsed, l.code)
			assert.LessOrEqual(t, result.Budget.TestRegensUsed, l.test)
			assert.False(t, result.Passed)
		}
	}
}

func TestRun_Undeterminable(t *testing.T) {
	h := newHarness()
	h.gen.on(config.ProfileCoder, "v0")
	h.gen.on(config.ProfileTester, "t0")
	h.runner.results = []models.ExecResult{failing("?")}
	h.classifier.verdicts = []models.Classification{models.CannotDetermine}

	result, err := h.orchestrator(t, 3, 2).Run(context.Background(), adderSpec())
	require.NoError(t, err)

	assert.Equal(t, models.ReasonUndeterminable, result.TerminalReason)
	require.Len(t, result.Attempts, 1)
	assert.Equal(t, models.CannotDetermine, result.Attempts[0].Classification)
	assert.Equal(t, 0, result.Budget.CodeRepairsUsed)
	assert.Equal(t, 0, result.Budget.TestRegensUsed)
}

func TestRun_InconclusiveAfterBudgetRunsOut(t *testing.T) {
	tests := []struct {
		name         string
		codeLimit    int
		testLimit    int
		verdicts     []models.Classification
		wantReason   models.TerminalReason
		wantAttempts int
	}{
		{
			name:         "code budget spent",
			codeLimit:    1,
			testLimit:    1,
			verdicts:     []models.Classification{models.CodeBug, models.CannotDetermine},
			wantReason:   models.ReasonCodeBudgetExhausted,
			wantAttempts: 2,
		},
		{
			name:         "test budget spent",
			codeLimit:    1,
			testLimit:    1,
			verdicts:     []models.Classification{models.TestBug, models.CannotDetermine},
			wantReason:   models.ReasonTestBudgetExhausted,
			wantAttempts: 2,
		},
		{
			name:         "first budget spent wins",
			codeLimit:    1,
			testLimit:    1,
			verdicts:     []models.Classification{models.TestBug, models.CodeBug, models.CannotDetermine},
			wantReason:   models.ReasonTestBudgetExhausted,
			wantAttempts: 3,
		},
		{
			name:         "budget left",
			codeLimit:    2,
			testLimit:    1,
			verdicts:     []models.Classification{models.CodeBug, models.CannotDetermine},
			wantReason:   models.ReasonUndeterminable,
			wantAttempts: 2,
		},
		{
			name:         "zero limits never spent",
			codeLimit:    0,
			testLimit:    0,
			verdicts:     []models.Classification{models.CannotDetermine},
			wantReason:   models.ReasonUndeterminable,
			wantAttempts: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness()
			h.gen.on(config.ProfileCoder, "v0")
			h.gen.on(config.ProfileTester, "t")
			h.gen.on(config.ProfileDebugger, "v1")
			h.runner.results = []models.ExecResult{failing("x")}
			h.classifier.verdicts = tt.verdicts

			result, err := h.orchestrator(t, tt.codeLimit, tt.testLimit).Run(context.Background(), adderSpec())
			require.NoError(t, err)

			assert.Equal(t, tt.wantReason, result.TerminalReason)
			require.Len(t, result.Attempts, tt.wantAttempts)
			assert.Equal(t, models.CannotDetermine, result.Attempts[tt.wantAttempts-1].Classification)
		})
	}
}

func TestRun_PreconditionFailure(t *testing.T) {
	h := newHarness()
	spec := adderSpec()
	spec.Prompt = ""

	result, err := h.orchestrator(t, 3, 2).Run(context.Background(), spec)
	require.Error(t, err)
	assert.Nil(t, result)

	var pe *PreconditionError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "adder.py", pe.Artifact)
	assert.True(t, IsPreconditionError(err))

	assert.Zero(t, h.wsCalls, "no sandbox may be created for an invalid task")
	assert.Empty(t, h.gen.Calls())
	assert.Empty(t, h.sink.results)
}

func TestRun_GenerationUnavailable(t *testing.T) {
	down := &generation.UnavailableError{Backend: "ollama", Op: "chat", Err: errors.New("connection refused")}

	tests := []struct {
		name         string
		setup        func(h *harness)
		wantAttempts int
		wantCode     string
	}{
		{
			name: "code generation",
			setup: func(h *harness) {
				h.gen.fail(config.ProfileCoder, down)
			},
			wantAttempts: 0,
			wantCode:     "",
		},
		{
			name: "test generation",
			setup: func(h *harness) {
				h.gen.on(config.ProfileCoder, "v0")
				h.gen.fail(config.ProfileTester, down)
			},
			wantAttempts: 0,
			wantCode:     "v0",
		},
		{
			name: "repair",
			setup: func(h *harness) {
				h.gen.on(config.ProfileCoder, "v0")
				h.gen.on(config.ProfileTester, "t0")
				h.gen.fail(config.ProfileDebugger, down)
				h.runner.results = []models.ExecResult{failing("boom")}
				h.classifier.verdicts = []models.Classification{models.CodeBug}
			},
			wantAttempts: 1,
			wantCode:     "v0",
		},
		{
			name: "classification",
			setup: func(h *harness) {
				h.gen.on(config.ProfileCoder, "v0")
				h.gen.on(config.ProfileTester, "t0")
				h.runner.results = []models.ExecResult{failing("boom")}
				h.classifier.err = down
			},
			wantAttempts: 1,
			wantCode:     "v0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness()
			tt.setup(h)

			result, err := h.orchestrator(t, 3, 2).Run(context.Background(), adderSpec())
			require.NoError(t, err)

			assert.Equal(t, models.ReasonGenerationUnavailable, result.TerminalReason)
			assert.False(t, result.Passed)
			assert.Len(t, result.Attempts, tt.wantAttempts)
			assert.Equal(t, tt.wantCode, result.FinalCode)
			assert.Contains(t, result.FailureDetail, "connection refused")
			assert.True(t, h.ws.destroyed)
			assert.Len(t, h.sink.results, 1)
		})
	}
}

func TestRun_GenerationUnavailableKeepsLastOutput(t *testing.T) {
	h := newHarness()
	h.gen.on(config.ProfileCoder, "v0")
	h.gen.on(config.ProfileTester, "t0")
	h.gen.fail(config.ProfileDebugger, &generation.UnavailableError{Backend: "ollama", Op: "chat"})
	h.runner.results = []models.ExecResult{{Stdout: "F", Stderr: "AssertionError", ExitStatus: 1}}
	h.classifier.verdicts = []models.Classification{models.CodeBug}

	result, err := h.orchestrator(t, 3, 2).Run(context.Background(), adderSpec())
	require.NoError(t, err)

	assert.Equal(t, "F\nAssertionError", result.LastOutput())
	assert.Equal(t, "t0", result.FinalTests)
}

func TestRun_Cancelled(t *testing.T) {
	h := newHarness()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h.gen.on(config.ProfileCoder, "v0")
	h.gen.on(config.ProfileTester, "t0")
	h.gen.hook = func(profile string) {
		if profile == config.ProfileTester {
			cancel()
		}
	}

	result, err := h.orchestrator(t, 3, 2).Run(ctx, adderSpec())
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, IsCancelled(err))

	require.NotNil(t, result)
	assert.Equal(t, models.ReasonCancelled, result.TerminalReason)
	assert.Equal(t, "v0", result.FinalCode)
	assert.Contains(t, result.FailureDetail, "generate tests")
	assert.Empty(t, result.Attempts)

	assert.True(t, h.ws.destroyed)
	require.Len(t, h.sink.results, 1, "cancelled runs are still recorded")
	assert.NoError(t, h.sink.ctxErrAtWrite)
}

func TestRun_CancelledBeforeStart(t *testing.T) {
	h := newHarness()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := h.orchestrator(t, 3, 2).Run(ctx, adderSpec())
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, models.ReasonCancelled, result.TerminalReason)
	assert.Empty(t, h.gen.Calls())
	assert.True(t, h.ws.destroyed)
}

func TestRun_RunnerErrorIsInternal(t *testing.T) {
	h := newHarness()
	h.gen.on(config.ProfileCoder, "v0")
	h.gen.on(config.ProfileTester, "t0")
	h.runner.err = errors.New("empty command")

	result, err := h.orchestrator(t, 3, 2).Run(context.Background(), adderSpec())
	require.Error(t, err)
	assert.Nil(t, result)

	var re *RunError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, PhaseExecute, re.Phase)
	assert.Equal(t, 0, re.Attempt)
	assert.True(t, h.ws.destroyed)
	assert.Empty(t, h.sink.results)
}

func TestRun_SandboxCreateFailure(t *testing.T) {
	h := newHarness()
	h.ws.createErr = errors.New("sandbox path in use")

	result, err := h.orchestrator(t, 3, 2).Run(context.Background(), adderSpec())
	require.Error(t, err)
	assert.Nil(t, result)
	assert.Contains(t, err.Error(), "sandbox path in use")
	assert.Contains(t, err.Error(), "setup")
	assert.Empty(t, h.gen.Calls())
	assert.True(t, h.ws.destroyed, "a failed Create is still torn down")
}

func TestRun_SandboxWriteFailure(t *testing.T) {
	h := newHarness()
	h.gen.on(config.ProfileCoder, "v0")
	h.ws.writeErr = errors.New("disk full")

	_, err := h.orchestrator(t, 3, 2).Run(context.Background(), adderSpec())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.True(t, h.ws.destroyed)
}

func TestRun_WorkspaceDestroyedOnPanic(t *testing.T) {
	h := newHarness()
	h.gen.hook = func(string) { panic("generator exploded") }

	o := h.orchestrator(t, 3, 2)
	assert.Panics(t, func() {
		_, _ = o.Run(context.Background(), adderSpec())
	})
	assert.True(t, h.ws.destroyed)
}

func TestRun_SinksRunAfterTeardown(t *testing.T) {
	h := newHarness()
	h.gen.on(config.ProfileCoder, "v0")
	h.gen.on(config.ProfileTester, "t0")

	result, err := h.orchestrator(t, 3, 2).Run(context.Background(), adderSpec())
	require.NoError(t, err)

	require.Len(t, h.sink.results, 1)
	assert.Same(t, result, h.sink.results[0])
	assert.Equal(t, []string{"run-1"}, h.sink.runIDs)
	assert.True(t, h.sink.sawDestroyed, "sandbox must be gone before results are recorded")
}

func TestRun_SinkErrorIsOnlyAWarning(t *testing.T) {
	h := newHarness()
	h.gen.on(config.ProfileCoder, "v0")
	h.gen.on(config.ProfileTester, "t0")
	h.sink.err = errors.New("database is locked")

	result, err := h.orchestrator(t, 3, 2).Run(context.Background(), adderSpec())
	require.NoError(t, err)
	assert.True(t, result.Passed)

	require.Len(t, h.logger.warnings, 1)
	assert.Contains(t, h.logger.warnings[0], "recorder")
	assert.Contains(t, h.logger.warnings[0], "database is locked")
}

func TestRun_LogsProgress(t *testing.T) {
	h := newHarness()
	h.gen.on(config.ProfileCoder, "v0")
	h.gen.on(config.ProfileTester, "t0")
	h.gen.on(config.ProfileDebugger, "v1")
	h.runner.results = []models.ExecResult{failing("x"), {ExitStatus: 0}}
	h.classifier.verdicts = []models.Classification{models.CodeBug}

	_, err := h.orchestrator(t, 3, 2).Run(context.Background(), adderSpec())
	require.NoError(t, err)

	assert.Equal(t, []string{"run-1"}, h.logger.started)
	assert.Len(t, h.logger.attempts, 2)
	assert.Len(t, h.logger.completed, 1)
	assert.Equal(t, []string{
		"generate code",
		"generate tests", "execute tests", "classify", "repair",
		"generate tests", "execute tests",
	}, h.logger.phases)
}

func TestRun_Idempotent(t *testing.T) {
	run := func() *models.RunResult {
		h := newHarness()
		h.gen.on(config.ProfileCoder, "v0")
		h.gen.on(config.ProfileTester, "t0", "t1")
		h.gen.on(config.ProfileDebugger, "v1")
		h.runner.results = []models.ExecResult{failing("a"), failing("b"), {ExitStatus: 0}}
		h.classifier.verdicts = []models.Classification{models.TestBug, models.CodeBug}

		result, err := h.orchestrator(t, 3, 2).Run(context.Background(), adderSpec())
		require.NoError(t, err)
		return result
	}

	first := run()
	second := run()
	assert.Equal(t, first, second)
	assert.True(t, first.Passed)
	assert.Len(t, first.Attempts, 3)
}

func TestRun_SeedCodeReachesCoder(t *testing.T) {
	var seen []generation.Message
	gen := &capturingGenerator{reply: "fixed", seen: &seen}
	ws := &fakeWorkspace{}

	o, err := NewOrchestrator(LoopConfig{}, Dependencies{
		Generator:    gen,
		Classifier:   &scriptedClassifier{},
		Runner:       &fakeRunner{},
		NewWorkspace: func(string) Workspace { return ws },
	})
	require.NoError(t, err)

	spec := adderSpec()
	spec.Mode = models.ModeDebug
	spec.SeedCode = "def add(a, b):\n    return a - b"

	result, err := o.Run(context.Background(), spec)
	require.NoError(t, err)
	assert.True(t, result.Passed)

	require.NotEmpty(t, seen)
	assert.Contains(t, seen[len(seen)-1].Content, "return a - b")
}

// capturingGenerator records the messages of the first call.
type capturingGenerator struct {
	reply string
	seen  *[]generation.Message
}

func (g *capturingGenerator) Generate(ctx context.Context, messages []generation.Message, profile string) (string, error) {
	if len(*g.seen) == 0 {
		*g.seen = append(*g.seen, messages...)
	}
	return g.reply, nil
}
