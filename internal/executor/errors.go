package executor

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Phase identifies the step of the loop in which something happened.
type Phase int

const (
	// PhaseSetup covers validation and sandbox creation.
	PhaseSetup Phase = iota
	// PhaseGenerateCode covers the initial code generation.
	PhaseGenerateCode
	// PhaseGenerateTests covers test generation.
	PhaseGenerateTests
	// PhaseExecute covers running the tests.
	PhaseExecute
	// PhaseClassify covers failure classification.
	PhaseClassify
	// PhaseRepair covers code repair.
	PhaseRepair
)

// String returns the string representation of Phase.
func (p Phase) String() string {
	switch p {
	case PhaseSetup:
		return "setup"
	case PhaseGenerateCode:
		return "generate code"
	case PhaseGenerateTests:
		return "generate tests"
	case PhaseExecute:
		return "execute tests"
	case PhaseClassify:
		return "classify"
	case PhaseRepair:
		return "repair"
	default:
		return "unknown"
	}
}

// ErrPrecondition matches every PreconditionError.
var ErrPrecondition = errors.New("precondition failed")

// PreconditionError reports a TaskSpec that cannot start a run. It is
// returned before any sandbox exists.
type PreconditionError struct {
	Artifact string // Artifact name from the task (may be empty)
	Err      error  // Validation failure
}

// Error implements the error interface for PreconditionError.
func (e *PreconditionError) Error() string {
	var sb strings.Builder
	sb.WriteString("invalid task")
	if e.Artifact != "" {
		sb.WriteString(fmt.Sprintf(" %s", e.Artifact))
	}
	if e.Err != nil {
		sb.WriteString(fmt.Sprintf(": %v", e.Err))
	}
	return sb.String()
}

// Unwrap returns the underlying validation error.
func (e *PreconditionError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrPrecondition) match.
func (e *PreconditionError) Is(target error) bool {
	return target == ErrPrecondition
}

// RunError is an unexpected internal failure that aborted a run, such as a
// sandbox that could not be created or written.
type RunError struct {
	Phase   Phase // Loop phase where the failure happened
	Attempt int   // Attempt index, -1 before the first attempt
	Err     error // Underlying error
}

// Error implements the error interface for RunError.
func (e *RunError) Error() string {
	if e.Attempt >= 0 {
		return fmt.Sprintf("run failed in %s phase (attempt %d): %v", e.Phase, e.Attempt+1, e.Err)
	}
	return fmt.Sprintf("run failed in %s phase: %v", e.Phase, e.Err)
}

// Unwrap returns the underlying error for error wrapping support.
func (e *RunError) Unwrap() error {
	return e.Err
}

// IsPreconditionError checks if the error is or wraps a PreconditionError.
func IsPreconditionError(err error) bool {
	return errors.Is(err, ErrPrecondition)
}

// IsCancelled checks if the error comes from a cancelled or expired context.
func IsCancelled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
