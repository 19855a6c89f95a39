package executor

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harrison/codeloop/internal/config"
	"github.com/harrison/codeloop/internal/generation"
	"github.com/harrison/codeloop/internal/models"
)

func TestParseClassification(t *testing.T) {
	tests := []struct {
		reply string
		want  models.Classification
	}{
		{"code_bug", models.CodeBug},
		{"test_bug", models.TestBug},
		{"cannot_determine", models.CannotDetermine},
		{"  CODE_BUG\n", models.CodeBug},
		{"`test_bug`", models.TestBug},
		{"\"code_bug\".", models.CodeBug},
		{"**test_bug**", models.TestBug},
		{"```\ncode_bug\n```", models.CodeBug},
		{"", models.CannotDetermine},
		{"code_bug or test_bug", models.CannotDetermine},
		{"The failure is a code_bug because add subtracts.", models.CannotDetermine},
		{"bug", models.CannotDetermine},
	}

	for _, tt := range tests {
		t.Run(tt.reply, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseClassification(tt.reply))
		})
	}
}

func TestLLMClassifier_UsesAnalyzerProfile(t *testing.T) {
	gen := newScriptedGenerator().on(config.ProfileAnalyzer, "Test_Bug")
	c := NewLLMClassifier(gen, "python")

	got, err := c.Classify(context.Background(), "code", "tests", "output")
	require.NoError(t, err)
	assert.Equal(t, models.TestBug, got)
	assert.Equal(t, []string{config.ProfileAnalyzer}, gen.Calls())
}

func TestLLMClassifier_EmptyProfileFallsBack(t *testing.T) {
	gen := newScriptedGenerator().on(config.ProfileAnalyzer, "code_bug")
	c := &LLMClassifier{Generator: gen, Language: "go"}

	got, err := c.Classify(context.Background(), "code", "", "output")
	require.NoError(t, err)
	assert.Equal(t, models.CodeBug, got)
}

func TestLLMClassifier_GenerationErrorIsNotALabel(t *testing.T) {
	down := &generation.UnavailableError{Backend: "ollama", Op: "chat", Err: errors.New("refused")}
	gen := newScriptedGenerator().fail(config.ProfileAnalyzer, down)
	c := NewLLMClassifier(gen, "python")

	got, err := c.Classify(context.Background(), "code", "tests", "output")
	require.Error(t, err)
	assert.Empty(t, got)
	assert.True(t, generation.IsUnavailable(err))
}
