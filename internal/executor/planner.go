package executor

import (
	"context"
	"fmt"
	"strings"

	"github.com/harrison/codeloop/internal/config"
	"github.com/harrison/codeloop/internal/generation"
)

// Planner drafts a test plan from the user's request. It is used when the
// test plan source is "auto"; the caller decides whether to accept it.
type Planner struct {
	Generator generation.Generator
	Profile   string // defaults to config.ProfilePlanner
}

// NewPlanner creates a Planner using the planner profile.
func NewPlanner(gen generation.Generator) *Planner {
	return &Planner{Generator: gen, Profile: config.ProfilePlanner}
}

// Plan returns a numbered test plan for request.
func (p *Planner) Plan(ctx context.Context, language, request string) (string, error) {
	profile := p.Profile
	if profile == "" {
		profile = config.ProfilePlanner
	}

	plan, err := p.Generator.Generate(ctx, BuildPlanMessages(language, request), profile)
	if err != nil {
		return "", fmt.Errorf("generate test plan: %w", err)
	}

	plan = strings.TrimSpace(plan)
	if plan == "" {
		return "", fmt.Errorf("generate test plan: model returned an empty plan")
	}
	return plan, nil
}
