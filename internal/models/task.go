package models

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Mode selects how the initial code is produced.
type Mode string

const (
	ModeGenerate Mode = "generate" // Write new code from the prompt
	ModeRefactor Mode = "refactor" // Restructure supplied seed code
	ModeDebug    Mode = "debug"    // Fix supplied seed code
)

// Modes lists every supported mode in display order.
var Modes = []Mode{ModeGenerate, ModeRefactor, ModeDebug}

// ParseMode converts user input to a Mode.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeGenerate:
		return ModeGenerate, nil
	case ModeRefactor:
		return ModeRefactor, nil
	case ModeDebug:
		return ModeDebug, nil
	}
	return "", fmt.Errorf("invalid mode %q (must be generate, refactor, or debug)", s)
}

// NeedsSeedCode reports whether the mode operates on existing code.
func (m Mode) NeedsSeedCode() bool {
	return m == ModeRefactor || m == ModeDebug
}

// PlanSource says where the test plan comes from. It only matters to the
// front end; the loop always receives a finished plan.
type PlanSource string

const (
	PlanManual PlanSource = "manual"
	PlanAuto   PlanSource = "auto"
)

// ParsePlanSource converts user input to a PlanSource.
func ParsePlanSource(s string) (PlanSource, error) {
	switch PlanSource(strings.ToLower(strings.TrimSpace(s))) {
	case PlanManual:
		return PlanManual, nil
	case PlanAuto:
		return PlanAuto, nil
	}
	return "", fmt.Errorf("invalid test plan source %q (must be manual or auto)", s)
}

// TaskSpec is the immutable input to a single run.
type TaskSpec struct {
	Language     string `validate:"required"`
	ArtifactName string `validate:"required,artifactname"`
	Prompt       string `validate:"required"`
	TestPlan     string `validate:"required"`
	Mode         Mode   `validate:"required,oneof=generate refactor debug"`
	SeedCode     string
}

var taskValidate *validator.Validate

func init() {
	taskValidate = validator.New()
	_ = taskValidate.RegisterValidation("artifactname", validateArtifactName)
}

// validateArtifactName accepts a single local file name: no directories, no
// parent references, no absolute paths.
func validateArtifactName(fl validator.FieldLevel) bool {
	name := fl.Field().String()
	if !filepath.IsLocal(name) {
		return false
	}
	return !strings.ContainsAny(name, `/\`)
}

// Validate checks that the task is complete enough to start a run.
// Each problem is reported as "<field>: <reason>".
func (s TaskSpec) Validate() error {
	var problems []string

	if err := taskValidate.Struct(s); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return err
		}
		for _, fe := range verrs {
			problems = append(problems, describeFieldError(fe))
		}
	}

	// Whitespace-only prompts pass "required" but are still empty.
	if s.Prompt != "" && strings.TrimSpace(s.Prompt) == "" {
		problems = append(problems, "Prompt: must not be blank")
	}

	if s.Mode.NeedsSeedCode() && strings.TrimSpace(s.SeedCode) == "" {
		problems = append(problems, fmt.Sprintf("SeedCode: required in %s mode", s.Mode))
	}

	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}

func describeFieldError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s: required", fe.Field())
	case "oneof":
		return fmt.Sprintf("%s: must be one of %s, got %q", fe.Field(), fe.Param(), fe.Value())
	case "artifactname":
		return fmt.Sprintf("%s: %q must be a plain file name", fe.Field(), fe.Value())
	default:
		return fmt.Sprintf("%s: failed %s", fe.Field(), fe.Tag())
	}
}
