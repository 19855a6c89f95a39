package executor

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/harrison/codeloop/internal/config"
	"github.com/harrison/codeloop/internal/models"
)

// Workspace is the isolated directory a run writes into and executes in.
// Destroy must be safe to call after a failed Create. *sandbox.Sandbox
// implements it.
type Workspace interface {
	Create() error
	WriteFile(name, content string) error
	Execute(ctx context.Context, argv []string, timeout time.Duration) (models.ExecResult, error)
	Destroy() error
	Root() string
}

// TestRunner executes the generated tests inside a workspace.
type TestRunner interface {
	// TestFileName returns the name the test file must be written under.
	TestFileName(artifact string) string

	// RunTests runs the tests. Test failures and timeouts are results;
	// errors mean the tests could not be run at all.
	RunTests(ctx context.Context, ws Workspace, artifact string) (models.ExecResult, error)
}

// CommandTestRunner runs a fixed command template. Exit status 0 is the only
// success signal; output is never parsed.
type CommandTestRunner struct {
	Command  []string
	TestFile string
	Timeout  time.Duration
}

// NewCommandTestRunner creates a runner from a language's runner config.
func NewCommandTestRunner(rc config.RunnerConfig, timeout time.Duration) *CommandTestRunner {
	return &CommandTestRunner{
		Command:  append([]string(nil), rc.Command...),
		TestFile: rc.TestFile,
		Timeout:  timeout,
	}
}

// TestFileName implements TestRunner.
func (r *CommandTestRunner) TestFileName(artifact string) string {
	return ExpandPlaceholders(r.TestFile, artifact, "")
}

// RunTests implements TestRunner.
func (r *CommandTestRunner) RunTests(ctx context.Context, ws Workspace, artifact string) (models.ExecResult, error) {
	if len(r.Command) == 0 {
		return models.ExecResult{}, fmt.Errorf("no test command configured")
	}

	testFile := r.TestFileName(artifact)
	argv := make([]string, len(r.Command))
	for i, arg := range r.Command {
		argv[i] = ExpandPlaceholders(arg, artifact, testFile)
	}

	return ws.Execute(ctx, argv, r.Timeout)
}

// ExpandPlaceholders fills {artifact}, {stem}, {ext} and {test_file} in s.
// For "adder.py": stem is "adder", ext is ".py".
func ExpandPlaceholders(s, artifact, testFile string) string {
	ext := filepath.Ext(artifact)
	stem := strings.TrimSuffix(artifact, ext)
	return strings.NewReplacer(
		"{artifact}", artifact,
		"{stem}", stem,
		"{ext}", ext,
		"{test_file}", testFile,
	).Replace(s)
}
