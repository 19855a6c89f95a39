package models

// AttemptBudget tracks the two independent repair counters of a run.
// Code repairs and test regenerations never share a counter.
type AttemptBudget struct {
	CodeRepairsUsed int
	CodeRepairLimit int
	TestRegensUsed  int
	TestRegenLimit  int
}

// NewAttemptBudget returns an unused budget with the given limits.
// Negative limits are treated as zero.
func NewAttemptBudget(codeRepairLimit, testRegenLimit int) AttemptBudget {
	return AttemptBudget{
		CodeRepairLimit: max(codeRepairLimit, 0),
		TestRegenLimit:  max(testRegenLimit, 0),
	}
}

// CanRepairCode reports whether another code repair is allowed.
func (b AttemptBudget) CanRepairCode() bool {
	return b.CodeRepairsUsed < b.CodeRepairLimit
}

// CanRegenerateTests reports whether another test regeneration is allowed.
func (b AttemptBudget) CanRegenerateTests() bool {
	return b.TestRegensUsed < b.TestRegenLimit
}

// UseCodeRepair consumes one code repair. It returns false, leaving the
// budget untouched, when none remain.
func (b *AttemptBudget) UseCodeRepair() bool {
	if !b.CanRepairCode() {
		return false
	}
	b.CodeRepairsUsed++
	return true
}

// UseTestRegen consumes one test regeneration. It returns false, leaving
// the budget untouched, when none remain.
func (b *AttemptBudget) UseTestRegen() bool {
	if !b.CanRegenerateTests() {
		return false
	}
	b.TestRegensUsed++
	return true
}

// MaxAttempts is the upper bound on test executions in one run.
func (b AttemptBudget) MaxAttempts() int {
	return b.CodeRepairLimit + b.TestRegenLimit + 1
}
