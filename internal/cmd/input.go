package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"

	"github.com/harrison/codeloop/internal/models"
)

// multilineTerminator ends a multi-line answer when entered on its own line.
const multilineTerminator = "."

// MenuReader defines interface for reading user input (for testing)
type MenuReader interface {
	ReadString(delim byte) (string, error)
}

// DefaultMenuReader wraps bufio.Reader
type DefaultMenuReader struct {
	reader *bufio.Reader
}

func (d *DefaultMenuReader) ReadString(delim byte) (string, error) {
	return d.reader.ReadString(delim)
}

// NewDefaultMenuReader reads from r.
func NewDefaultMenuReader(r io.Reader) *DefaultMenuReader {
	return &DefaultMenuReader{reader: bufio.NewReader(r)}
}

// Prompter asks the user for task details one question at a time.
type Prompter struct {
	reader MenuReader
	out    io.Writer
	cue    *color.Color
}

// NewPrompter creates a Prompter reading answers from reader and writing
// questions to out.
func NewPrompter(reader MenuReader, out io.Writer) *Prompter {
	return &Prompter{
		reader: reader,
		out:    out,
		cue:    color.New(color.FgCyan, color.Bold),
	}
}

// isInteractive reports whether in is a terminal the user can answer from.
func isInteractive(in io.Reader) bool {
	f, ok := in.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func (p *Prompter) readLine() (string, error) {
	line, err := p.reader.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) && line != "" {
			return strings.TrimRight(line, "\r\n"), nil
		}
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func (p *Prompter) question(label string) {
	p.cue.Fprint(p.out, "▶ ")
	fmt.Fprint(p.out, label)
}

// Ask reads a single-line answer. An empty answer returns def.
func (p *Prompter) Ask(label, def string) (string, error) {
	if def != "" {
		p.question(fmt.Sprintf("%s (default: %s): ", label, def))
	} else {
		p.question(label + ": ")
	}

	answer, err := p.readLine()
	if err != nil {
		return "", fmt.Errorf("read answer: %w", err)
	}
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return def, nil
	}
	return answer, nil
}

// AskMultiline reads lines until a line holding only "." or the end of
// input, and returns them trimmed.
func (p *Prompter) AskMultiline(label string) (string, error) {
	p.question(label + "\n")
	fmt.Fprintf(p.out, "  (finish with a line containing only %q)\n", multilineTerminator)

	var lines []string
	for {
		line, err := p.readLine()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("read answer: %w", err)
		}
		if strings.TrimSpace(line) == multilineTerminator {
			break
		}
		lines = append(lines, line)
	}
	return strings.TrimSpace(strings.Join(lines, "\n")), nil
}

// Choose reads a single-letter choice from options (lower case). An empty
// answer returns def; anything else not in options is asked again.
func (p *Prompter) Choose(label string, options string, def byte) (byte, error) {
	for {
		answer, err := p.Ask(label, "")
		if err != nil {
			return 0, err
		}
		if answer == "" {
			return def, nil
		}
		c := strings.ToLower(answer)[0]
		if strings.IndexByte(options, c) >= 0 {
			return c, nil
		}
		fmt.Fprintf(p.out, "  Please answer one of: %s\n", strings.Join(strings.Split(options, ""), ", "))
	}
}

// taskInput is what the run command's flags say about the task. Empty fields
// are asked for interactively, or reported as missing.
type taskInput struct {
	Language   string
	Artifact   string
	Prompt     string
	TestPlan   string
	PlanSource string
	Mode       string
	SeedFile   string
	AssumeYes  bool
}

// planFunc drafts a test plan for a request.
type planFunc func(ctx context.Context, language, request string) (string, error)

// taskCollector turns flags and answers into a TaskSpec.
type taskCollector struct {
	prompter *Prompter // nil when not interactive
	plan     planFunc
	out      io.Writer
}

// collect fills in every field of the task, asking for what the flags left
// out. Without a prompter, missing fields are an error naming their flags.
func (c *taskCollector) collect(ctx context.Context, in taskInput) (models.TaskSpec, error) {
	if c.prompter == nil {
		if missing := missingFlags(in); len(missing) > 0 {
			return models.TaskSpec{}, fmt.Errorf("missing required input (stdin is not a terminal): %s", strings.Join(missing, ", "))
		}
	}

	var err error
	spec := models.TaskSpec{
		Language:     in.Language,
		ArtifactName: in.Artifact,
		Prompt:       in.Prompt,
		TestPlan:     in.TestPlan,
	}

	if spec.Language == "" {
		if spec.Language, err = c.prompter.Ask("Programming language", "python"); err != nil {
			return spec, err
		}
	}
	if spec.ArtifactName == "" {
		if spec.ArtifactName, err = c.prompter.Ask("Target file name (e.g. my_module.py)", ""); err != nil {
			return spec, err
		}
	}
	if strings.TrimSpace(spec.Prompt) == "" {
		if spec.Prompt, err = c.prompter.AskMultiline("Describe the code you want:"); err != nil {
			return spec, err
		}
	}

	if spec.TestPlan == "" {
		if spec.TestPlan, err = c.testPlan(ctx, in, spec); err != nil {
			return spec, err
		}
	}

	if spec.Mode, err = c.mode(in); err != nil {
		return spec, err
	}

	if in.SeedFile != "" || spec.Mode.NeedsSeedCode() {
		if spec.SeedCode, err = c.seedCode(in, spec.Mode); err != nil {
			return spec, err
		}
	}

	return spec, nil
}

func missingFlags(in taskInput) []string {
	var missing []string
	if in.Language == "" {
		missing = append(missing, "--language")
	}
	if in.Artifact == "" {
		missing = append(missing, "--artifact")
	}
	if strings.TrimSpace(in.Prompt) == "" {
		missing = append(missing, "--prompt or --prompt-file")
	}
	if in.TestPlan == "" && !strings.EqualFold(strings.TrimSpace(in.PlanSource), string(models.PlanAuto)) {
		missing = append(missing, "--test-plan, --test-plan-file or --plan-source auto")
	}
	return missing
}

func (c *taskCollector) testPlan(ctx context.Context, in taskInput, spec models.TaskSpec) (string, error) {
	source := models.PlanManual
	if in.PlanSource != "" {
		parsed, err := models.ParsePlanSource(in.PlanSource)
		if err != nil {
			return "", err
		}
		source = parsed
	} else if c.prompter != nil {
		choice, err := c.prompter.Choose("Test plan: [M]anual entry or [A]uto-generate? (M/a)", "ma", 'm')
		if err != nil {
			return "", err
		}
		if choice == 'a' {
			source = models.PlanAuto
		}
	}

	if source == models.PlanManual {
		return c.prompter.AskMultiline("Enter your test plan:")
	}

	if c.prompter == nil && !in.AssumeYes {
		return "", fmt.Errorf("--plan-source auto needs --yes when stdin is not a terminal")
	}

	for {
		plan, err := c.plan(ctx, spec.Language, spec.Prompt)
		if err != nil {
			return "", err
		}

		fmt.Fprintln(c.out, "\n--- Proposed Test Plan ---")
		fmt.Fprintln(c.out, plan)
		fmt.Fprintln(c.out, "--------------------------")

		if in.AssumeYes {
			return plan, nil
		}

		choice, err := c.prompter.Choose("Use this plan? [Y/n] (or 'm' to enter manually)", "ynm", 'y')
		if err != nil {
			return "", err
		}
		switch choice {
		case 'y':
			return plan, nil
		case 'm':
			return c.prompter.AskMultiline("Enter your test plan:")
		}
		// 'n' drafts another plan
	}
}

func (c *taskCollector) mode(in taskInput) (models.Mode, error) {
	if in.Mode != "" {
		return models.ParseMode(in.Mode)
	}
	if c.prompter == nil {
		return models.ModeGenerate, nil
	}

	answer, err := c.prompter.Ask("Mode [generate, refactor, debug]", string(models.ModeGenerate))
	if err != nil {
		return "", err
	}
	mode, err := models.ParseMode(answer)
	if err != nil {
		fmt.Fprintf(c.out, "  (Invalid mode %q, using %s.)\n", answer, models.ModeGenerate)
		return models.ModeGenerate, nil
	}
	return mode, nil
}

func (c *taskCollector) seedCode(in taskInput, mode models.Mode) (string, error) {
	path := in.SeedFile
	if path == "" {
		if c.prompter == nil {
			return "", fmt.Errorf("%s mode needs --seed-file", mode)
		}
		var err error
		path, err = c.prompter.Ask(fmt.Sprintf("Path to the existing code file for %s mode", mode), "")
		if err != nil {
			return "", err
		}
		if path == "" {
			return "", fmt.Errorf("%s mode needs an existing code file", mode)
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read seed code: %w", err)
	}
	fmt.Fprintf(c.out, "Loaded seed code from %s\n", path)
	return string(data), nil
}
