package executor

import (
	"context"
	"fmt"
	"strings"

	"github.com/harrison/codeloop/internal/config"
	"github.com/harrison/codeloop/internal/generation"
	"github.com/harrison/codeloop/internal/models"
)

// Classifier decides whether a failing test run points at the code or at
// the tests. An error means the verdict could not be obtained at all; an
// inconclusive verdict is models.CannotDetermine, not an error.
type Classifier interface {
	Classify(ctx context.Context, code, tests, testOutput string) (models.Classification, error)
}

// LLMClassifier asks the generation service for a one-word verdict.
type LLMClassifier struct {
	Generator generation.Generator
	Language  string
	Profile   string // defaults to config.ProfileAnalyzer
}

// NewLLMClassifier creates a classifier for code written in language.
func NewLLMClassifier(gen generation.Generator, language string) *LLMClassifier {
	return &LLMClassifier{
		Generator: gen,
		Language:  language,
		Profile:   config.ProfileAnalyzer,
	}
}

// Classify implements Classifier.
func (c *LLMClassifier) Classify(ctx context.Context, code, tests, testOutput string) (models.Classification, error) {
	profile := c.Profile
	if profile == "" {
		profile = config.ProfileAnalyzer
	}

	reply, err := c.Generator.Generate(ctx, BuildClassifyMessages(c.Language, code, tests, testOutput), profile)
	if err != nil {
		return "", fmt.Errorf("classify failure: %w", err)
	}
	return ParseClassification(reply), nil
}

// labelTrim strips decoration models like to put around a bare keyword.
const labelTrim = " \t\r\n`'\".,;:!*_()[]"

// ParseClassification normalises a model reply to a classification.
// Only an exact code_bug or test_bug (after trimming decoration and case)
// is actionable; anything else, including replies naming both labels or
// explaining themselves, is cannot_determine.
func ParseClassification(reply string) models.Classification {
	label := strings.ToLower(generation.StripCodeFences(reply))
	label = strings.Trim(label, labelTrim)

	switch label {
	case string(models.CodeBug):
		return models.CodeBug
	case string(models.TestBug):
		return models.TestBug
	default:
		return models.CannotDetermine
	}
}
