package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/harrison/codeloop/internal/generation"
	"github.com/harrison/codeloop/internal/models"
)

// scriptedGenerator replies per profile from a queue. When a queue runs dry
// the last reply is repeated.
type scriptedGenerator struct {
	mu      sync.Mutex
	replies map[string][]string
	errs    map[string]error
	calls   []string
	hook    func(profile string)
}

func newScriptedGenerator() *scriptedGenerator {
	return &scriptedGenerator{
		replies: make(map[string][]string),
		errs:    make(map[string]error),
	}
}

func (g *scriptedGenerator) on(profile string, replies ...string) *scriptedGenerator {
	g.replies[profile] = append(g.replies[profile], replies...)
	return g
}

func (g *scriptedGenerator) fail(profile string, err error) *scriptedGenerator {
	g.errs[profile] = err
	return g
}

func (g *scriptedGenerator) Generate(ctx context.Context, messages []generation.Message, profile string) (string, error) {
	g.mu.Lock()
	g.calls = append(g.calls, profile)
	hook := g.hook
	g.mu.Unlock()

	if hook != nil {
		hook(profile)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if err, ok := g.errs[profile]; ok {
		return "", err
	}
	queue := g.replies[profile]
	if len(queue) == 0 {
		return "", fmt.Errorf("no reply scripted for profile %s", profile)
	}
	reply := queue[0]
	if len(queue) > 1 {
		g.replies[profile] = queue[1:]
	}
	return reply, nil
}

func (g *scriptedGenerator) Calls() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.calls...)
}

// scriptedClassifier returns verdicts in order, repeating the last one.
type scriptedClassifier struct {
	verdicts []models.Classification
	err      error
	calls    int
	outputs  []string
}

func (c *scriptedClassifier) Classify(ctx context.Context, code, tests, testOutput string) (models.Classification, error) {
	c.calls++
	c.outputs = append(c.outputs, testOutput)
	if c.err != nil {
		return "", c.err
	}
	if len(c.verdicts) == 0 {
		return models.CannotDetermine, nil
	}
	v := c.verdicts[0]
	if len(c.verdicts) > 1 {
		c.verdicts = c.verdicts[1:]
	}
	return v, nil
}

// fakeRunner returns canned results in order, repeating the last one.
type fakeRunner struct {
	results []models.ExecResult
	err     error
	runs    int
}

func failing(output string) models.ExecResult {
	return models.ExecResult{Stdout: output, ExitStatus: 1}
}

func (r *fakeRunner) TestFileName(artifact string) string {
	return "test_" + artifact
}

func (r *fakeRunner) RunTests(ctx context.Context, ws Workspace, artifact string) (models.ExecResult, error) {
	r.runs++
	if r.err != nil {
		return models.ExecResult{}, r.err
	}
	if len(r.results) == 0 {
		return models.ExecResult{}, nil
	}
	res := r.results[0]
	if len(r.results) > 1 {
		r.results = r.results[1:]
	}
	return res, nil
}

// fakeWorkspace keeps files in memory and tracks its lifecycle.
type fakeWorkspace struct {
	root      string
	created   bool
	destroyed bool
	files     map[string]string
	writes    []string
	createErr error
	writeErr  error
}

func (w *fakeWorkspace) Create() error {
	if w.createErr != nil {
		return w.createErr
	}
	w.created = true
	w.files = make(map[string]string)
	return nil
}

func (w *fakeWorkspace) WriteFile(name, content string) error {
	if !w.created || w.destroyed {
		return errors.New("workspace not initialized")
	}
	if w.writeErr != nil {
		return w.writeErr
	}
	w.files[name] = content
	w.writes = append(w.writes, name)
	return nil
}

func (w *fakeWorkspace) Execute(ctx context.Context, argv []string, timeout time.Duration) (models.ExecResult, error) {
	return models.ExecResult{}, nil
}

func (w *fakeWorkspace) Destroy() error {
	w.destroyed = true
	return nil
}

func (w *fakeWorkspace) Root() string {
	return w.root
}

// recordingSink captures results and, when a workspace is attached, whether
// it was already destroyed at record time.
type recordingSink struct {
	name          string
	err           error
	runIDs        []string
	results       []*models.RunResult
	ws            *fakeWorkspace
	sawDestroyed  bool
	ctxErrAtWrite error
}

func (s *recordingSink) Name() string { return s.name }

func (s *recordingSink) Record(ctx context.Context, runID string, spec models.TaskSpec, result *models.RunResult) error {
	s.runIDs = append(s.runIDs, runID)
	s.results = append(s.results, result)
	s.ctxErrAtWrite = ctx.Err()
	if s.ws != nil {
		s.sawDestroyed = s.ws.destroyed
	}
	return s.err
}

// recordingLogger keeps warnings and attempts for assertions.
type recordingLogger struct {
	started   []string
	phases    []string
	attempts  []models.Attempt
	completed []*models.RunResult
	warnings  []string
}

func (l *recordingLogger) LogRunStart(runID string, spec models.TaskSpec, workspace string) {
	l.started = append(l.started, runID)
}

func (l *recordingLogger) LogPhase(runID string, phase string, attempt int) {
	l.phases = append(l.phases, phase)
}

func (l *recordingLogger) LogAttempt(runID string, attempt models.Attempt) {
	l.attempts = append(l.attempts, attempt)
}

func (l *recordingLogger) LogRunComplete(runID string, result *models.RunResult) {
	l.completed = append(l.completed, result)
}

func (l *recordingLogger) Warnf(format string, args ...interface{}) {
	l.warnings = append(l.warnings, fmt.Sprintf(format, args...))
}
