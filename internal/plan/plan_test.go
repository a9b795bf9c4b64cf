// Package plan_test provides tests for the plan package
package plan_test

import (
	"strings"
	"testing"

	"github.com/cloud-shuttle/muster/internal/plan"
)

const sampleDoc = `## Implementation Plan

Some context about the change.

- [ ] Step 1: Add the config field
- [ ] Step 2: Wire it into the server
- [ ] Step 3: Update the docs

Notes: keep commits small.`

func TestParse_Pending(t *testing.T) {
	d := plan.Parse(sampleDoc)

	pending := d.Pending()
	if len(pending) != 3 {
		t.Fatalf("Expected 3 pending steps, got %d", len(pending))
	}
	if pending[0].Number != 1 || pending[0].Text != "Add the config field" {
		t.Errorf("Unexpected first step: %+v", pending[0])
	}
	if pending[2].Number != 3 || pending[2].Text != "Update the docs" {
		t.Errorf("Unexpected last step: %+v", pending[2])
	}
	if len(d.Done()) != 0 {
		t.Errorf("Expected no done steps, got %d", len(d.Done()))
	}
}

func TestParse_IgnoresNonStepLines(t *testing.T) {
	doc := "random text\n- [ ] not a step line\n- [ ] Step 5: real step\n* bullet"
	d := plan.Parse(doc)

	steps := d.Steps()
	if len(steps) != 1 {
		t.Fatalf("Expected 1 step, got %d", len(steps))
	}
	if steps[0].Number != 5 {
		t.Errorf("Expected step 5, got %d", steps[0].Number)
	}
}

func TestParse_MixedStates(t *testing.T) {
	doc := "- [x] Step 1: done already\n- [ ] Step 2: still open\n- [X] Step 3: uppercase marker"
	d := plan.Parse(doc)

	if got := len(d.Done()); got != 2 {
		t.Errorf("Expected 2 done steps, got %d", got)
	}
	if got := len(d.Pending()); got != 1 {
		t.Errorf("Expected 1 pending step, got %d", got)
	}
}

func TestMarkDone_RoundTrip(t *testing.T) {
	d := plan.Parse(sampleDoc)

	for i := 1; i <= 3; i++ {
		if !d.MarkDone(i) {
			t.Fatalf("MarkDone(%d) returned false", i)
		}
	}

	rendered := d.Render()
	reparsed := plan.Parse(rendered)

	if len(reparsed.Pending()) != 0 {
		t.Errorf("Expected no pending steps after marking all done, got %d", len(reparsed.Pending()))
	}
	done := reparsed.Done()
	if len(done) != 3 {
		t.Fatalf("Expected 3 done steps, got %d", len(done))
	}
	wantTexts := []string{"Add the config field", "Wire it into the server", "Update the docs"}
	for i, want := range wantTexts {
		if done[i].Text != want {
			t.Errorf("Step %d text = %q, want %q", i+1, done[i].Text, want)
		}
	}

	// Non-step text must survive the round trip untouched.
	if !strings.Contains(rendered, "Notes: keep commits small.") {
		t.Error("Render lost non-step text")
	}
	if !strings.Contains(rendered, "## Implementation Plan") {
		t.Error("Render lost heading")
	}
}

func TestMarkDone_Unknown(t *testing.T) {
	d := plan.Parse(sampleDoc)

	if d.MarkDone(99) {
		t.Error("MarkDone(99) should return false for unknown step")
	}

	d.MarkDone(2)
	if d.MarkDone(2) {
		t.Error("MarkDone on an already-done step should return false")
	}
}

func TestEmptyAndComplete(t *testing.T) {
	empty := plan.Parse("just prose, no checklist")
	if !empty.Empty() {
		t.Error("Expected document without steps to be Empty")
	}
	if empty.Complete() {
		t.Error("Empty document must not be Complete")
	}

	full := plan.Parse("- [x] Step 1: a\n- [x] Step 2: b")
	if !full.Complete() {
		t.Error("All-done document should be Complete")
	}

	partial := plan.Parse("- [x] Step 1: a\n- [ ] Step 2: b")
	if partial.Complete() {
		t.Error("Partially-done document must not be Complete")
	}
}

func TestRender_Deterministic(t *testing.T) {
	d := plan.Parse(sampleDoc)
	if d.Render() != sampleDoc {
		t.Errorf("Render of unmodified document differs from input:\n%s", d.Render())
	}
}
