package logger

import "github.com/harrison/codeloop/internal/models"

// RunLogger is the set of events a run reports.
type RunLogger interface {
	LogRunStart(runID string, spec models.TaskSpec, workspace string)
	LogPhase(runID string, phase string, attempt int)
	LogAttempt(runID string, attempt models.Attempt)
	LogRunComplete(runID string, result *models.RunResult)
	Warnf(format string, args ...interface{})
}

// MultiLogger fans every event out to several loggers in order.
type MultiLogger struct {
	loggers []RunLogger
}

// NewMultiLogger creates a MultiLogger. Nil loggers are skipped.
func NewMultiLogger(loggers ...RunLogger) *MultiLogger {
	m := &MultiLogger{}
	for _, l := range loggers {
		if l != nil {
			m.loggers = append(m.loggers, l)
		}
	}
	return m
}

// LogRunStart forwards to every logger.
func (m *MultiLogger) LogRunStart(runID string, spec models.TaskSpec, workspace string) {
	for _, l := range m.loggers {
		l.LogRunStart(runID, spec, workspace)
	}
}

// LogPhase forwards to every logger.
func (m *MultiLogger) LogPhase(runID string, phase string, attempt int) {
	for _, l := range m.loggers {
		l.LogPhase(runID, phase, attempt)
	}
}

// LogAttempt forwards to every logger.
func (m *MultiLogger) LogAttempt(runID string, attempt models.Attempt) {
	for _, l := range m.loggers {
		l.LogAttempt(runID, attempt)
	}
}

// LogRunComplete forwards to every logger.
func (m *MultiLogger) LogRunComplete(runID string, result *models.RunResult) {
	for _, l := range m.loggers {
		l.LogRunComplete(runID, result)
	}
}

// Warnf forwards to every logger.
func (m *MultiLogger) Warnf(format string, args ...interface{}) {
	for _, l := range m.loggers {
		l.Warnf(format, args...)
	}
}
