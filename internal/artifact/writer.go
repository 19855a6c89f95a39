// Package artifact saves the final code and tests of a run to the output
// directory.
package artifact

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/harrison/codeloop/internal/filelock"
	"github.com/harrison/codeloop/internal/models"
)

// lockName guards the output directory so the code and tests of one run are
// written as a pair.
const lockName = ".codeloop.lock"

// Writer writes the final version of every run, passed or not. It satisfies
// executor.ResultSink.
type Writer struct {
	Dir string

	// TestFileName maps an artifact name to its test file name.
	TestFileName func(artifact string) string
}

// NewWriter creates a Writer for dir.
func NewWriter(dir string, testFileName func(string) string) *Writer {
	return &Writer{Dir: dir, TestFileName: testFileName}
}

// Name identifies the sink in warnings.
func (w *Writer) Name() string {
	return "output directory"
}

// Record writes result.FinalCode as the artifact and result.FinalTests next
// to it. Empty content is skipped.
func (w *Writer) Record(ctx context.Context, runID string, spec models.TaskSpec, result *models.RunResult) error {
	if result.FinalCode == "" && result.FinalTests == "" {
		return nil
	}

	lock := filelock.New(filepath.Join(w.Dir, lockName))
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("lock output directory: %w", err)
	}
	defer lock.Unlock()

	if result.FinalCode != "" {
		if err := filelock.AtomicWrite(w.CodePath(spec.ArtifactName), []byte(withNewline(result.FinalCode))); err != nil {
			return fmt.Errorf("save %s: %w", spec.ArtifactName, err)
		}
	}

	if result.FinalTests != "" && w.TestFileName != nil {
		testFile := w.TestFileName(spec.ArtifactName)
		if err := filelock.AtomicWrite(filepath.Join(w.Dir, testFile), []byte(withNewline(result.FinalTests))); err != nil {
			return fmt.Errorf("save %s: %w", testFile, err)
		}
	}

	return nil
}

// CodePath returns where the artifact is saved.
func (w *Writer) CodePath(artifact string) string {
	return filepath.Join(w.Dir, artifact)
}

func withNewline(s string) string {
	if s == "" || s[len(s)-1] == '\n' {
		return s
	}
	return s + "\n"
}
