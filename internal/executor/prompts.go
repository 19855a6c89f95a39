package executor

import (
	"fmt"
	"strings"

	"github.com/harrison/codeloop/internal/generation"
	"github.com/harrison/codeloop/internal/models"
)

// fence wraps content in a Markdown code block tagged with lang.
func fence(lang, content string) string {
	return fmt.Sprintf("```%s\n%s\n```", strings.ToLower(lang), strings.TrimRight(content, "\n"))
}

// BuildCodeMessages asks for the initial version of the artifact.
func BuildCodeMessages(spec models.TaskSpec) []generation.Message {
	system := fmt.Sprintf(`You are an expert %[1]s programmer. Write one complete, clean %[1]s source file named %[2]s that fulfills the request.
Respond with ONLY the code, enclosed in a single markdown code block. No explanations outside the block.`,
		spec.Language, spec.ArtifactName)

	var user string
	switch spec.Mode {
	case models.ModeRefactor:
		user = fmt.Sprintf("Improve this existing code according to the request.\n\n== Existing Code ==\n%s\n\n== Request ==\n%s",
			fence(spec.Language, spec.SeedCode), spec.Prompt)
	case models.ModeDebug:
		user = fmt.Sprintf("Find and fix the defects in this existing code. It must satisfy the test plan below.\n\n== Existing Code ==\n%s\n\n== Request ==\n%s\n\n== Test Plan ==\n%s",
			fence(spec.Language, spec.SeedCode), spec.Prompt, spec.TestPlan)
	default:
		user = spec.Prompt
	}

	return []generation.Message{generation.System(system), generation.User(user)}
}

// BuildTestMessages asks for a test file covering the plan.
func BuildTestMessages(spec models.TaskSpec, code, testFile string) []generation.Message {
	prompt := fmt.Sprintf(`You are an expert %[1]s test developer. Write unit tests for the code below, strictly following the test plan.

== Source File Name ==
%[2]s

== Code ==
%[3]s

== Test Plan ==
%[4]s

== Instructions ==
1. The tests will be saved as %[5]s next to %[2]s and run with the project's standard test runner.
2. Import what you need from %[2]s.
3. Cover every item of the test plan.
4. Check expected errors explicitly.
5. Return ONLY the test code.`,
		spec.Language, spec.ArtifactName, fence(spec.Language, code), spec.TestPlan, testFile)

	return []generation.Message{generation.User(prompt)}
}

// BuildRepairMessages asks for a corrected artifact after a code_bug verdict.
func BuildRepairMessages(spec models.TaskSpec, code, testFile, output string) []generation.Message {
	prompt := fmt.Sprintf(`You are a senior software engineer. The code below failed its unit tests.
Find the root cause in the code and return a corrected version of the ENTIRE file.

== Code (%[1]s) ==
%[2]s

== Test Failure Output (from %[3]s) ==
%[4]s

== Request the code must satisfy ==
%[5]s

Return ONLY the corrected code, enclosed in a single markdown code block.`,
		spec.ArtifactName, fence(spec.Language, code), testFile, fence("", output), spec.Prompt)

	return []generation.Message{generation.User(prompt)}
}

// BuildClassifyMessages asks which side of a failing run is wrong.
func BuildClassifyMessages(language, code, tests, output string) []generation.Message {
	var testsSection string
	if tests != "" {
		testsSection = fmt.Sprintf("\n== Tests ==\n%s\n", fence(language, tests))
	}

	prompt := fmt.Sprintf(`You are a quality assurance expert. Analyze the code and the output of a failed test run and decide the most likely cause of the failure.

== Code ==
%s
%s
== Test Failure Output ==
%s

Respond with ONLY one of these keywords: %s, %s, or %s.`,
		fence(language, code), testsSection, fence("", output),
		models.CodeBug, models.TestBug, models.CannotDetermine)

	return []generation.Message{generation.User(prompt)}
}

// BuildPlanMessages asks for a numbered test plan derived from the request.
func BuildPlanMessages(language, request string) []generation.Message {
	prompt := fmt.Sprintf(`You are an expert QA engineer. Write a step-by-step test plan for code that will be written in %s.

== Code Request ==
%s

== Instructions ==
1. Identify each function or behavior the request describes.
2. Give every one at least one normal-input test case.
3. Add edge cases (empty input, zero, large values, empty strings).
4. Add error cases (invalid types, impossible operations).
5. Output a plain numbered list with no other text and no markdown.`, language, request)

	return []generation.Message{generation.User(prompt)}
}
