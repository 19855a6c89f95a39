package models

// TerminalReason says why a run stopped.
type TerminalReason string

const (
	ReasonPassed                TerminalReason = "passed"
	ReasonCodeBudgetExhausted   TerminalReason = "code_budget_exhausted"
	ReasonTestBudgetExhausted   TerminalReason = "test_budget_exhausted"
	ReasonUndeterminable        TerminalReason = "undeterminable"
	ReasonGenerationUnavailable TerminalReason = "generation_unavailable"
	ReasonCancelled             TerminalReason = "cancelled"
)

// Description returns a short human-readable explanation of the reason.
func (r TerminalReason) Description() string {
	switch r {
	case ReasonPassed:
		return "all tests passed"
	case ReasonCodeBudgetExhausted:
		return "code repair budget exhausted"
	case ReasonTestBudgetExhausted:
		return "test regeneration budget exhausted"
	case ReasonUndeterminable:
		return "could not determine whether the code or the tests are wrong"
	case ReasonGenerationUnavailable:
		return "generation service unavailable"
	case ReasonCancelled:
		return "run cancelled"
	default:
		return string(r)
	}
}

// RunResult is the outcome of one run. It deliberately carries no
// timestamps or identifiers: the same inputs against a deterministic
// generator produce an identical RunResult.
type RunResult struct {
	Passed         bool
	FinalCode      string
	FinalTests     string
	TestPlan       string
	Attempts       []Attempt
	TerminalReason TerminalReason
	Budget         AttemptBudget
	// FailureDetail explains generation_unavailable and cancelled outcomes.
	FailureDetail string
}

// LastAttempt returns the most recent attempt, or nil if none ran.
func (r *RunResult) LastAttempt() *Attempt {
	if len(r.Attempts) == 0 {
		return nil
	}
	return &r.Attempts[len(r.Attempts)-1]
}

// LastOutput returns the combined test output of the most recent attempt.
func (r *RunResult) LastOutput() string {
	if last := r.LastAttempt(); last != nil {
		return last.Output()
	}
	return ""
}
