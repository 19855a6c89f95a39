package history

import (
	"context"

	"github.com/harrison/codeloop/internal/models"
)

// Recorder stores finished runs. It satisfies executor.ResultSink.
type Recorder struct {
	store *Store
}

// NewRecorder creates a Recorder writing to store.
func NewRecorder(store *Store) *Recorder {
	return &Recorder{store: store}
}

// Name identifies the sink in warnings.
func (r *Recorder) Name() string {
	return "history"
}

// Record saves a passing run as a solution and any other outcome as a
// failure carrying the last test output and the terminal reason.
func (r *Recorder) Record(ctx context.Context, runID string, spec models.TaskSpec, result *models.RunResult) error {
	if result.Passed {
		return r.store.SaveSuccess(ctx, &Solution{
			RunID:    runID,
			FileName: spec.ArtifactName,
			Language: spec.Language,
			Mode:     string(spec.Mode),
			Prompt:   spec.Prompt,
			Code:     result.FinalCode,
			Tests:    result.FinalTests,
			TestPlan: result.TestPlan,
			Attempts: len(result.Attempts),
		})
	}

	return r.store.SaveFailure(ctx, &Failure{
		RunID:          runID,
		FileName:       spec.ArtifactName,
		Language:       spec.Language,
		Mode:           string(spec.Mode),
		Prompt:         spec.Prompt,
		Code:           result.FinalCode,
		Tests:          result.FinalTests,
		TestPlan:       result.TestPlan,
		TestOutput:     result.LastOutput(),
		TerminalReason: string(result.TerminalReason),
		FailureDetail:  result.FailureDetail,
		Attempts:       len(result.Attempts),
	})
}
