package models

import "strings"

// Classification is the verdict on which side of a failing test run is wrong.
// The zero value means the attempt was not classified.
type Classification string

const (
	CodeBug         Classification = "code_bug"
	TestBug         Classification = "test_bug"
	CannotDetermine Classification = "cannot_determine"
)

// ExecResult is what a sandboxed command produced.
type ExecResult struct {
	Stdout     string
	Stderr     string
	ExitStatus int
	TimedOut   bool
}

// Passed reports whether the command exited with status 0.
func (r ExecResult) Passed() bool {
	return r.ExitStatus == 0
}

// Output joins stdout and stderr the way they are shown to the classifier
// and the repair step.
func (r ExecResult) Output() string {
	return joinOutput(r.Stdout, r.Stderr)
}

// Attempt records one test-and-classify cycle. Attempts are appended to a
// run's history and never modified afterwards.
type Attempt struct {
	Index          int
	Code           string
	Tests          string
	ExitStatus     int
	Stdout         string
	Stderr         string
	TimedOut       bool
	Classification Classification
}

// NewAttempt builds an unclassified attempt from an execution result.
func NewAttempt(index int, code, tests string, res ExecResult) Attempt {
	return Attempt{
		Index:      index,
		Code:       code,
		Tests:      tests,
		ExitStatus: res.ExitStatus,
		Stdout:     res.Stdout,
		Stderr:     res.Stderr,
		TimedOut:   res.TimedOut,
	}
}

// Passed reports whether the attempt's tests exited with status 0.
func (a Attempt) Passed() bool {
	return a.ExitStatus == 0
}

// Output returns the attempt's combined test output.
func (a Attempt) Output() string {
	return joinOutput(a.Stdout, a.Stderr)
}

func joinOutput(stdout, stderr string) string {
	switch {
	case stderr == "":
		return stdout
	case stdout == "":
		return stderr
	case strings.HasSuffix(stdout, "\n"):
		return stdout + stderr
	default:
		return stdout + "\n" + stderr
	}
}
