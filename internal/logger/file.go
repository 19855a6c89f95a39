package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/harrison/codeloop/internal/models"
)

// FileLogger logs run events to files in the log directory.
// It creates a timestamped log file per process, a transcript directory per
// run with the code, tests and output of every attempt, and maintains a
// latest.log symlink pointing to the most recent log file.
type FileLogger struct {
	logDir   string
	runLog   *os.File
	runFile  string
	runsDir  string
	logLevel string
	mu       sync.Mutex
}

// NewFileLogger creates a FileLogger writing to logDir with the given level.
func NewFileLogger(logDir string, logLevel string) (*FileLogger, error) {
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	runsDir := filepath.Join(logDir, "runs")
	if err := os.MkdirAll(runsDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create runs directory: %w", err)
	}

	// run-YYYYMMDD-HHMMSS.log
	runFile := filepath.Join(logDir, fmt.Sprintf("run-%s.log", time.Now().Format("20060102-150405")))
	file, err := os.OpenFile(runFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to create run log file: %w", err)
	}

	symlinkPath := filepath.Join(logDir, "latest.log")
	if _, err := os.Lstat(symlinkPath); err == nil {
		if err := os.Remove(symlinkPath); err != nil {
			file.Close()
			return nil, fmt.Errorf("failed to remove old symlink: %w", err)
		}
	}
	if err := os.Symlink(filepath.Base(runFile), symlinkPath); err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to create symlink: %w", err)
	}

	logger := &FileLogger{
		logDir:   logDir,
		runLog:   file,
		runFile:  runFile,
		runsDir:  runsDir,
		logLevel: normalizeLogLevel(logLevel),
	}

	logger.writeRunLog("=== codeloop Run Log ===\n")
	logger.writeRunLog(fmt.Sprintf("Started at: %s\n\n", time.Now().Format(time.RFC3339)))

	return logger, nil
}

// RunFile returns the path of the log file being written.
func (fl *FileLogger) RunFile() string {
	return fl.runFile
}

// RunDir returns the transcript directory of a run.
func (fl *FileLogger) RunDir(runID string) string {
	return filepath.Join(fl.runsDir, runID)
}

func (fl *FileLogger) shouldLog(messageLevel string) bool {
	return logLevelToInt(messageLevel) >= logLevelToInt(fl.logLevel)
}

// LogInfo logs an info-level message.
func (fl *FileLogger) LogInfo(message string) {
	fl.logWithLevel("INFO", message)
}

// LogWarn logs a warning-level message.
func (fl *FileLogger) LogWarn(message string) {
	fl.logWithLevel("WARN", message)
}

// Warnf logs a formatted warning.
func (fl *FileLogger) Warnf(format string, args ...interface{}) {
	fl.logWithLevel("WARN", fmt.Sprintf(format, args...))
}

func (fl *FileLogger) logWithLevel(level string, message string) {
	if !fl.shouldLog(strings.ToLower(level)) {
		return
	}
	fl.writeRunLog(fmt.Sprintf("[%s] [%s] %s\n", timestamp(), level, message))
}

// LogRunStart records the task and creates the run's transcript directory.
func (fl *FileLogger) LogRunStart(runID string, spec models.TaskSpec, workspace string) {
	if err := os.MkdirAll(fl.RunDir(runID), 0755); err != nil {
		fl.LogWarn(fmt.Sprintf("failed to create transcript directory: %v", err))
	}

	if !fl.shouldLog("info") {
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("[%s] Starting run %s\n", timestamp(), runID))
	sb.WriteString(fmt.Sprintf("  Artifact: %s\n", spec.ArtifactName))
	sb.WriteString(fmt.Sprintf("  Language: %s\n", spec.Language))
	sb.WriteString(fmt.Sprintf("  Mode: %s\n", spec.Mode))
	sb.WriteString(fmt.Sprintf("  Sandbox: %s\n", workspace))
	fl.writeRunLog(sb.String())

	fl.writeTranscript(runID, "task.md", fmt.Sprintf("# Prompt\n\n%s\n\n# Test Plan\n\n%s\n", spec.Prompt, spec.TestPlan))
}

// LogPhase logs the step the loop is entering at DEBUG level.
func (fl *FileLogger) LogPhase(runID string, phase string, attempt int) {
	fl.logWithLevel("DEBUG", fmt.Sprintf("run %s attempt %d: %s", shortID(runID), attempt+1, phase))
}

// LogAttempt logs the attempt outcome and writes its code, tests and output
// to the transcript directory.
func (fl *FileLogger) LogAttempt(runID string, attempt models.Attempt) {
	if fl.shouldLog("info") {
		verdict := string(attempt.Classification)
		if verdict == "" {
			verdict = "-"
		}
		fl.writeRunLog(fmt.Sprintf("[%s] Attempt %d: exit %d, timed out %t, verdict %s\n",
			timestamp(), attempt.Index+1, attempt.ExitStatus, attempt.TimedOut, verdict))
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("=== Attempt %d ===\n", attempt.Index+1))
	sb.WriteString(fmt.Sprintf("Exit status: %d\n", attempt.ExitStatus))
	sb.WriteString(fmt.Sprintf("Timed out: %t\n", attempt.TimedOut))
	if attempt.Classification != "" {
		sb.WriteString(fmt.Sprintf("Classification: %s\n", attempt.Classification))
	}
	sb.WriteString("\n--- Code ---\n")
	sb.WriteString(attempt.Code)
	sb.WriteString("\n\n--- Tests ---\n")
	sb.WriteString(attempt.Tests)
	sb.WriteString("\n\n--- Output ---\n")
	sb.WriteString(attempt.Output())
	sb.WriteString("\n")

	fl.writeTranscript(runID, fmt.Sprintf("attempt-%d.log", attempt.Index+1), sb.String())
}

// LogRunComplete logs the run summary at INFO level.
func (fl *FileLogger) LogRunComplete(runID string, result *models.RunResult) {
	if result == nil || !fl.shouldLog("info") {
		return
	}

	status := "PASSED"
	if !result.Passed {
		status = "FAILED"
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("[%s] === Run Summary (%s) ===\n", timestamp(), runID))
	sb.WriteString(fmt.Sprintf("  Result: %s\n", status))
	sb.WriteString(fmt.Sprintf("  Terminal reason: %s\n", result.TerminalReason))
	sb.WriteString(fmt.Sprintf("  Attempts: %d\n", len(result.Attempts)))
	sb.WriteString(fmt.Sprintf("  Code repairs: %d/%d\n", result.Budget.CodeRepairsUsed, result.Budget.CodeRepairLimit))
	sb.WriteString(fmt.Sprintf("  Test regenerations: %d/%d\n", result.Budget.TestRegensUsed, result.Budget.TestRegenLimit))
	if result.FailureDetail != "" {
		sb.WriteString(fmt.Sprintf("  Detail: %s\n", result.FailureDetail))
	}
	sb.WriteString(fmt.Sprintf("  Transcript: %s\n\n", fl.RunDir(runID)))
	fl.writeRunLog(sb.String())
}

// Close closes the run log file.
func (fl *FileLogger) Close() error {
	fl.mu.Lock()
	defer fl.mu.Unlock()

	if fl.runLog == nil {
		return nil
	}
	fl.runLog.WriteString(fmt.Sprintf("\nFinished at: %s\n", time.Now().Format(time.RFC3339)))
	err := fl.runLog.Close()
	fl.runLog = nil
	return err
}

// writeRunLog writes a message to the run log file in a thread-safe manner.
func (fl *FileLogger) writeRunLog(message string) {
	fl.mu.Lock()
	defer fl.mu.Unlock()

	if fl.runLog != nil {
		fl.runLog.WriteString(message)
	}
}

func (fl *FileLogger) writeTranscript(runID, name, content string) {
	path := filepath.Join(fl.RunDir(runID), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		fl.logWithLevel("WARN", fmt.Sprintf("failed to write transcript %s: %v", path, err))
	}
}
