package plan

import (
	"regexp"
	"strings"
)

// How far back from the end of plan-mode output to look for trailing
// numbered questions.
const questionTailLines = 20

var (
	clarifyingHeading = regexp.MustCompile(`(?mi)^#{1,6}\s*Clarifying Questions\b`)
	bareQuestions     = regexp.MustCompile(`(?mi)^#{1,6}\s*Questions\s*$`)
	numberedQuestion  = regexp.MustCompile(`^\s*\d+[.)]\s+.*\?\s*$`)
)

// NeedsClarification classifies plan-mode agent output. It is deliberately
// conservative: a "Clarifying Questions" (or bare "Questions") heading
// anywhere, or a numbered list item ending in a question mark within the
// final lines of output. A plan that merely mentions question marks in its
// body, or states that no questions remain, must not trigger.
func NeedsClarification(output string) bool {
	if clarifyingHeading.MatchString(output) || bareQuestions.MatchString(output) {
		return true
	}

	lines := strings.Split(strings.TrimRight(output, "\n"), "\n")
	start := len(lines) - questionTailLines
	if start < 0 {
		start = 0
	}
	for _, ln := range lines[start:] {
		if numberedQuestion.MatchString(ln) {
			return true
		}
	}
	return false
}
