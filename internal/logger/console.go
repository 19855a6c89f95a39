// Package logger provides logging implementations for codeloop runs.
//
// Loggers report run progress at the phase, attempt and summary levels.
// Implementations are thread-safe and write to the console or to log files.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"

	"github.com/harrison/codeloop/internal/models"
)

// Log level constants for filtering
const (
	levelTrace int = 0
	levelDebug int = 1
	levelInfo  int = 2
	levelWarn  int = 3
	levelError int = 4
)

// ConsoleLogger logs run progress to a writer with timestamps and thread safety.
// All output is prefixed with [HH:MM:SS] timestamps.
// Color output is automatically enabled for terminal output (os.Stdout/os.Stderr).
type ConsoleLogger struct {
	writer      io.Writer
	logLevel    string
	mutex       sync.Mutex
	colorOutput bool
	started     map[string]time.Time
}

// NewConsoleLogger creates a ConsoleLogger that writes to the provided io.Writer.
// If writer is nil, messages are silently discarded.
// Valid levels: trace, debug, info, warn, error (case-insensitive).
// If logLevel is empty or invalid, defaults to "info".
func NewConsoleLogger(writer io.Writer, logLevel string) *ConsoleLogger {
	return &ConsoleLogger{
		writer:      writer,
		logLevel:    normalizeLogLevel(logLevel),
		colorOutput: isTerminal(writer),
		started:     make(map[string]time.Time),
	}
}

// isTerminal checks if the writer is a terminal that supports colors.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok || f == nil {
		return false
	}
	if f != os.Stdout && f != os.Stderr {
		return false
	}
	// color.NoColor honours NO_COLOR and dumb terminals
	return !color.NoColor && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd()))
}

// normalizeLogLevel converts a log level string to lowercase and validates it.
// Returns "info" as default for empty or invalid levels.
func normalizeLogLevel(level string) string {
	normalized := strings.ToLower(strings.TrimSpace(level))

	switch normalized {
	case "trace", "debug", "info", "warn", "error":
		return normalized
	}
	return "info"
}

// logLevelToInt converts a log level string to its numeric value.
func logLevelToInt(level string) int {
	switch level {
	case "trace":
		return levelTrace
	case "debug":
		return levelDebug
	case "info":
		return levelInfo
	case "warn":
		return levelWarn
	case "error":
		return levelError
	default:
		return levelInfo
	}
}

// shouldLog checks if a message at the given level should be logged.
func (cl *ConsoleLogger) shouldLog(messageLevel string) bool {
	return logLevelToInt(messageLevel) >= logLevelToInt(cl.logLevel)
}

// LogDebug logs a debug-level message.
func (cl *ConsoleLogger) LogDebug(message string) {
	cl.logWithLevel("DEBUG", message)
}

// LogInfo logs an info-level message.
func (cl *ConsoleLogger) LogInfo(message string) {
	cl.logWithLevel("INFO", message)
}

// LogWarn logs a warning-level message.
func (cl *ConsoleLogger) LogWarn(message string) {
	cl.logWithLevel("WARN", message)
}

// Warnf logs a formatted warning.
func (cl *ConsoleLogger) Warnf(format string, args ...interface{}) {
	cl.logWithLevel("WARN", fmt.Sprintf(format, args...))
}

// logWithLevel logs a message at the specified level if filtering allows it.
func (cl *ConsoleLogger) logWithLevel(level string, message string) {
	if cl.writer == nil || !cl.shouldLog(strings.ToLower(level)) {
		return
	}

	cl.mutex.Lock()
	defer cl.mutex.Unlock()

	ts := timestamp()
	if cl.colorOutput {
		cl.writer.Write([]byte(cl.formatWithColor(ts, level, message)))
		return
	}
	cl.writer.Write([]byte(fmt.Sprintf("[%s] [%s] %s\n", ts, level, message)))
}

// formatWithColor formats a log message with ANSI color codes.
func (cl *ConsoleLogger) formatWithColor(ts, level, message string) string {
	var coloredLevel string

	switch strings.ToUpper(level) {
	case "DEBUG":
		coloredLevel = color.New(color.FgCyan).Sprint(level)
	case "INFO":
		coloredLevel = color.New(color.FgBlue).Sprint(level)
	case "WARN":
		coloredLevel = color.New(color.FgYellow).Sprint(level)
	default:
		coloredLevel = level
	}

	return fmt.Sprintf("[%s] [%s] %s\n", ts, coloredLevel, message)
}

// writeLines writes pre-formatted lines under the mutex, each prefixed with ts.
func (cl *ConsoleLogger) writeLines(lines ...string) {
	cl.mutex.Lock()
	defer cl.mutex.Unlock()

	ts := timestamp()
	var sb strings.Builder
	for _, line := range lines {
		sb.WriteString(fmt.Sprintf("[%s] %s\n", ts, line))
	}
	cl.writer.Write([]byte(sb.String()))
}

// paint applies c only when color output is enabled.
func (cl *ConsoleLogger) paint(c *color.Color, s string) string {
	if !cl.colorOutput {
		return s
	}
	return c.Sprint(s)
}

// LogRunStart logs the start of a run at INFO level.
// Format: "[HH:MM:SS] Starting run <id>: <artifact> (<language>, <mode>)"
func (cl *ConsoleLogger) LogRunStart(runID string, spec models.TaskSpec, workspace string) {
	cl.mutex.Lock()
	cl.started[runID] = time.Now()
	cl.mutex.Unlock()

	if cl.writer == nil || !cl.shouldLog("info") {
		return
	}

	name := cl.paint(color.New(color.Bold), spec.ArtifactName)
	cl.writeLines(fmt.Sprintf("Starting run %s: %s (%s, %s)", shortID(runID), name, spec.Language, spec.Mode))
	cl.LogDebug(fmt.Sprintf("Sandbox: %s", workspace))
}

// LogPhase logs the step the loop is entering at INFO level.
// Format: "[HH:MM:SS] Attempt <n>: <phase>"
func (cl *ConsoleLogger) LogPhase(runID string, phase string, attempt int) {
	if cl.writer == nil || !cl.shouldLog("info") {
		return
	}
	cl.writeLines(fmt.Sprintf("Attempt %d: %s", attempt+1, phase))
}

// LogAttempt logs the outcome of one test run at INFO level, with the test
// output at DEBUG level.
// Format: "[HH:MM:SS] Attempt <n>: tests passed" or
// "[HH:MM:SS] Attempt <n>: tests failed (exit <status>) -> <verdict>"
func (cl *ConsoleLogger) LogAttempt(runID string, attempt models.Attempt) {
	if cl.writer == nil || !cl.shouldLog("info") {
		return
	}

	scheme := newColorScheme()
	var line string
	switch {
	case attempt.Passed():
		line = fmt.Sprintf("Attempt %d: %s", attempt.Index+1, cl.paint(scheme.success, "tests passed"))
	case attempt.TimedOut:
		line = fmt.Sprintf("Attempt %d: %s", attempt.Index+1, cl.paint(scheme.fail, "tests timed out"))
	default:
		line = fmt.Sprintf("Attempt %d: %s (exit %d)", attempt.Index+1, cl.paint(scheme.fail, "tests failed"), attempt.ExitStatus)
	}
	if attempt.Classification != "" {
		line += " -> " + cl.formatVerdict(attempt.Classification, scheme)
	}
	cl.writeLines(line)

	if out := strings.TrimSpace(attempt.Output()); out != "" && !attempt.Passed() {
		cl.LogDebug("Test output:\n" + tail(out, 40))
	}
}

// LogRunComplete logs the run summary at INFO level.
func (cl *ConsoleLogger) LogRunComplete(runID string, result *models.RunResult) {
	cl.mutex.Lock()
	start, ok := cl.started[runID]
	delete(cl.started, runID)
	cl.mutex.Unlock()

	if cl.writer == nil || !cl.shouldLog("info") || result == nil {
		return
	}

	scheme := newColorScheme()
	status := cl.paint(scheme.success, "PASSED")
	if !result.Passed {
		status = cl.paint(scheme.fail, "FAILED")
	}

	lines := []string{
		cl.paint(color.New(color.Bold), "=== Run Summary ==="),
		fmt.Sprintf("Result: %s (%s)", status, result.TerminalReason.Description()),
		fmt.Sprintf("Attempts: %d", len(result.Attempts)),
		fmt.Sprintf("Code repairs: %d/%d", result.Budget.CodeRepairsUsed, result.Budget.CodeRepairLimit),
		fmt.Sprintf("Test regenerations: %d/%d", result.Budget.TestRegensUsed, result.Budget.TestRegenLimit),
	}
	if ok {
		lines = append(lines, fmt.Sprintf("Duration: %s", formatDuration(time.Since(start))))
	}
	if result.FailureDetail != "" {
		lines = append(lines, fmt.Sprintf("Detail: %s", cl.paint(scheme.warn, result.FailureDetail)))
	}
	cl.writeLines(lines...)
}

// timestamp returns the current time formatted as "15:04:05" (HH:MM:SS).
func timestamp() string {
	return time.Now().Format("15:04:05")
}

// shortID keeps the first block of a uuid for display.
func shortID(runID string) string {
	if i := strings.IndexByte(runID, '-'); i > 0 {
		return runID[:i]
	}
	return runID
}

// tail returns the last n lines of s.
func tail(s string, n int) string {
	lines := strings.Split(s, "\n")
	if len(lines) <= n {
		return s
	}
	return fmt.Sprintf("... (%d lines omitted)\n%s", len(lines)-n, strings.Join(lines[len(lines)-n:], "\n"))
}

// formatDuration converts a time.Duration to a human-readable string.
// Examples: "5s", "1m30s", "2h15m"
func formatDuration(d time.Duration) string {
	switch {
	case d >= time.Hour:
		hours := d / time.Hour
		remainder := d % time.Hour
		if remainder == 0 {
			return fmt.Sprintf("%dh", hours)
		}
		minutes := remainder / time.Minute
		remainder = remainder % time.Minute
		if remainder == 0 {
			return fmt.Sprintf("%dh%dm", hours, minutes)
		}
		seconds := remainder / time.Second
		return fmt.Sprintf("%dh%dm%ds", hours, minutes, seconds)
	case d >= time.Minute:
		minutes := d / time.Minute
		remainder := d % time.Minute
		if remainder == 0 {
			return fmt.Sprintf("%dm", minutes)
		}
		seconds := remainder / time.Second
		return fmt.Sprintf("%dm%ds", minutes, seconds)
	default:
		return fmt.Sprintf("%ds", int64(d.Seconds()))
	}
}
