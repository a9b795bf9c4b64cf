// Package plan implements the checklist plan-document protocol.
//
// A plan document is free text containing an ordered sequence of step lines
// in the grammar "- [ ] Step <N>: <text>" (pending) or "- [x] Step <N>: <text>"
// (done). The document is the sole authority on step completion: there is no
// separate ledger, which is what makes the implementation phase resumable
// after a crash.
package plan

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Step is one implementation step parsed from a plan document.
type Step struct {
	Number int
	Text   string
	Done   bool
}

// stepPattern matches a checklist step line. Non-matching lines are carried
// through Render untouched.
var stepPattern = regexp.MustCompile(`^- \[([ xX])\] Step (\d+): (.*)$`)

// line is one line of the source document. stepIdx is -1 for lines that are
// not steps; otherwise it indexes into Document.steps.
type line struct {
	raw     string
	stepIdx int
}

// Document is a parsed plan. Mutations happen on the structured form and
// Render reproduces the checklist grammar deterministically, so marking a
// step done can never corrupt surrounding text.
type Document struct {
	lines []line
	steps []Step
}

// Parse scans a document line by line and extracts step records in order.
// Lines that do not match the step grammar are kept as-is; they are not an
// error.
func Parse(doc string) *Document {
	d := &Document{}
	for _, raw := range strings.Split(doc, "\n") {
		m := stepPattern.FindStringSubmatch(raw)
		if m == nil {
			d.lines = append(d.lines, line{raw: raw, stepIdx: -1})
			continue
		}
		num, err := strconv.Atoi(m[2])
		if err != nil {
			// Step number overflows int; treat as plain text.
			d.lines = append(d.lines, line{raw: raw, stepIdx: -1})
			continue
		}
		d.steps = append(d.steps, Step{
			Number: num,
			Text:   m[3],
			Done:   m[1] == "x" || m[1] == "X",
		})
		d.lines = append(d.lines, line{raw: raw, stepIdx: len(d.steps) - 1})
	}
	return d
}

// Steps returns all steps in document order.
func (d *Document) Steps() []Step {
	out := make([]Step, len(d.steps))
	copy(out, d.steps)
	return out
}

// Pending returns the unchecked steps in document order.
func (d *Document) Pending() []Step {
	var out []Step
	for _, s := range d.steps {
		if !s.Done {
			out = append(out, s)
		}
	}
	return out
}

// Done returns the checked steps in document order.
func (d *Document) Done() []Step {
	var out []Step
	for _, s := range d.steps {
		if s.Done {
			out = append(out, s)
		}
	}
	return out
}

// Empty reports whether the document contains no steps at all. An empty
// plan is fatal for the implementation phase.
func (d *Document) Empty() bool {
	return len(d.steps) == 0
}

// Complete reports whether every step is done and at least one exists.
// A complete plan means implementation skips straight to PR creation.
func (d *Document) Complete() bool {
	return len(d.steps) > 0 && len(d.Pending()) == 0
}

// MarkDone checks off the first pending step with the given number. The
// step text is left untouched. Returns false if no pending step matches.
func (d *Document) MarkDone(number int) bool {
	for i := range d.steps {
		if d.steps[i].Number == number && !d.steps[i].Done {
			d.steps[i].Done = true
			return true
		}
	}
	return false
}

// Render reassembles the document. Step lines are emitted in canonical
// grammar; everything else is reproduced byte for byte.
func (d *Document) Render() string {
	var sb strings.Builder
	for i, ln := range d.lines {
		if i > 0 {
			sb.WriteByte('\n')
		}
		if ln.stepIdx < 0 {
			sb.WriteString(ln.raw)
			continue
		}
		s := d.steps[ln.stepIdx]
		marker := " "
		if s.Done {
			marker = "x"
		}
		fmt.Fprintf(&sb, "- [%s] Step %d: %s", marker, s.Number, s.Text)
	}
	return sb.String()
}
