package logger

import (
	"github.com/fatih/color"

	"github.com/harrison/codeloop/internal/models"
)

// colorScheme defines consistent colors for run output.
// Green: success
// Red: failure
// Yellow: warnings and inconclusive verdicts
// Cyan: labels and identifiers
type colorScheme struct {
	success *color.Color
	fail    *color.Color
	warn    *color.Color
	label   *color.Color
}

// newColorScheme creates the standard color scheme.
func newColorScheme() *colorScheme {
	return &colorScheme{
		success: color.New(color.FgGreen),
		fail:    color.New(color.FgRed),
		warn:    color.New(color.FgYellow),
		label:   color.New(color.FgCyan),
	}
}

// formatVerdict colors a classification: code bugs red, test bugs cyan,
// anything inconclusive yellow.
func (cl *ConsoleLogger) formatVerdict(c models.Classification, scheme *colorScheme) string {
	switch c {
	case models.CodeBug:
		return cl.paint(scheme.fail, string(c))
	case models.TestBug:
		return cl.paint(scheme.label, string(c))
	default:
		return cl.paint(scheme.warn, string(c))
	}
}
