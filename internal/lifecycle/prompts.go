package lifecycle

import (
	"fmt"
	"strings"

	"github.com/cloud-shuttle/muster/internal/plan"
	"github.com/cloud-shuttle/muster/pkg/types"
)

// planPrompt asks the agent for an implementation plan in the exact
// checklist grammar the plan parser understands. The grammar requirement is
// load-bearing: implementation resumes from this document, so steps the
// agent writes in any other shape would be invisible to it.
func planPrompt(issue *types.Issue) string {
	var b strings.Builder
	b.WriteString("You are planning the implementation of the following issue. Explore the repository first.\n\n")
	fmt.Fprintf(&b, "# Issue: %s\n\n%s\n", issue.Title, issue.Description)

	if thread := threadTranscript(issue); thread != "" {
		b.WriteString("\n# Discussion so far\n\n")
		b.WriteString(thread)
	}

	b.WriteString(`
# Instructions

If the issue is ambiguous or underspecified, do NOT produce a plan. Instead,
write a section titled "Clarifying Questions" containing a numbered list of
the questions that block you.

Otherwise produce a concrete implementation plan as a numbered checklist,
one line per step, in exactly this format:

- [ ] Step 1: <first change>
- [ ] Step 2: <second change>

Each step must be independently committable. Do not modify any files.
`)
	return b.String()
}

// replanPrompt folds a human reply into a fresh planning round.
func replanPrompt(issue *types.Issue, message string) string {
	return planPrompt(issue) + fmt.Sprintf(`
# Latest reply

The human just replied:

%s

Revise the plan (or ask further clarifying questions) taking this reply into
account.
`, message)
}

// stepPrompt targets one pending step with the full plan as context.
func stepPrompt(issue *types.Issue, doc *plan.Document, step plan.Step) string {
	return fmt.Sprintf(`You are implementing an approved plan for the issue %q.

# Full plan

%s

# Your task

Implement ONLY Step %d: %s

Earlier checked-off steps are already committed; build on them. Do not start
later steps. Make the code change now.
`, issue.Title, doc.Render(), step.Number, step.Text)
}

// reviewPrompt drives the self-review pass over the full branch diff.
func reviewPrompt(doc *plan.Document, diff string) string {
	return fmt.Sprintf(`You implemented the following plan and the diff below is the full result.
Review your own work: look for bugs, unhandled errors, inconsistencies with
the plan, and leftover debugging artifacts. Fix anything you find by editing
the files directly. If everything is fine, change nothing.

# Plan

%s

# Diff against the base branch

%s
`, doc.Render(), diff)
}

// prCommentPrompt applies a reviewer instruction to an existing branch.
func prCommentPrompt(instruction, diff string) string {
	return fmt.Sprintf(`You previously authored the changes in the diff below, which are open as a
pull request. A reviewer left this instruction:

%s

# Current diff against the base branch

%s

Apply the instruction by editing the files directly. If the instruction
requires no code change, change nothing.
`, instruction, diff)
}

// threadTranscript flattens an issue's comment thread for prompt context.
func threadTranscript(issue *types.Issue) string {
	if len(issue.Comments) == 0 {
		return ""
	}
	var b strings.Builder
	for _, c := range issue.Comments {
		fmt.Fprintf(&b, "%s: %s\n\n", c.Author, c.Body)
	}
	return b.String()
}
