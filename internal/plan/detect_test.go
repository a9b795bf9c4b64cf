package plan_test

import (
	"strings"
	"testing"

	"github.com/cloud-shuttle/muster/internal/plan"
)

func TestNeedsClarification(t *testing.T) {
	tests := []struct {
		name   string
		output string
		want   bool
	}{
		{
			name:   "clarifying questions heading",
			output: "Here is a draft plan.\n\n## Clarifying Questions\n1. What auth method?",
			want:   true,
		},
		{
			name:   "bare questions heading",
			output: "Plan draft.\n\n### Questions\n- which database?",
			want:   true,
		},
		{
			name:   "trailing numbered question",
			output: "- [ ] Step 1: do a thing\n\n1. Should the cache be shared?",
			want:   true,
		},
		{
			name:   "numbered question with paren",
			output: "plan body\n\n2) Is the legacy endpoint still live?",
			want:   true,
		},
		{
			name:   "no remaining questions statement",
			output: "- [ ] Step 1: do a thing\n\nNo remaining clarifying questions.",
			want:   false,
		},
		{
			name:   "question mark in body prose only",
			output: "This handles the edge case (what if the file is missing?) by retrying.\n- [ ] Step 1: add retry",
			want:   false,
		},
		{
			name:   "plain plan",
			output: "- [ ] Step 1: add field\n- [ ] Step 2: wire it",
			want:   false,
		},
		{
			name:   "heading is case-insensitive",
			output: "draft\n\n## CLARIFYING QUESTIONS\n1. scope?",
			want:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := plan.NeedsClarification(tt.output); got != tt.want {
				t.Errorf("NeedsClarification() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNeedsClarification_QuestionOutsideTail(t *testing.T) {
	// A numbered question buried far above the tail must not trigger;
	// only the final lines are positional signals.
	var sb strings.Builder
	sb.WriteString("1. Should we use X?\n")
	for i := 0; i < 30; i++ {
		sb.WriteString("filler line\n")
	}
	sb.WriteString("- [ ] Step 1: implement\n")

	if plan.NeedsClarification(sb.String()) {
		t.Error("question outside the tail window should not trigger")
	}
}
