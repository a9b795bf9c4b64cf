package lifecycle

import (
	"context"
	"fmt"
	"log"

	"github.com/cloud-shuttle/muster/internal/events"
	"github.com/cloud-shuttle/muster/internal/plan"
	"github.com/cloud-shuttle/muster/pkg/telemetry"
	"github.com/cloud-shuttle/muster/pkg/types"
)

// branchName is the deterministic branch for an issue. Re-running the
// implementation phase lands on the same branch and picks up where the
// previous attempt stopped.
func branchName(issueID string) string {
	return "muster/" + issueID
}

// runImplementation executes the approved plan step by step. The plan
// comment is the resume ledger: each completed step is checked off and
// persisted before the next one starts, so a crash mid-plan costs at most
// the step that was running.
func (m *Machine) runImplementation(ctx context.Context, issueID string) {
	ctx, span := telemetry.StartPhaseSpan(ctx, telemetry.SpanPhaseImplement, issueID)
	defer span.End()
	m.publish(events.NewEvent(events.EventPhaseStarted, issueID, types.StateInProgress, "implementation"))

	rec, err := m.store.Get(issueID)
	if err != nil {
		telemetry.RecordError(span, err, "store")
		log.Printf("❌ Implementation %s: loading record: %v", issueID, err)
		return
	}
	if rec == nil || rec.State != types.StateInProgress {
		log.Printf("⏭️ Implementation precondition not met for %s, ignoring", issueID)
		return
	}
	if rec.PlanCommentID == "" {
		log.Printf("❌ Implementation %s: no plan comment on record", issueID)
		m.say(ctx, rec.AgentSessionID, "I have no saved plan for this issue, so there is nothing to implement.")
		return
	}

	body, err := m.tracker.FetchComment(ctx, rec.PlanCommentID)
	if err != nil {
		telemetry.RecordError(span, err, "tracker")
		m.failPhase(ctx, rec, "implementation", fmt.Errorf("fetching plan: %w", err))
		return
	}
	doc := plan.Parse(body)
	if doc.Empty() {
		log.Printf("⏭️ Implementation %s: plan has no steps", issueID)
		m.say(ctx, rec.AgentSessionID, "The approved plan contains no steps, so there is nothing to implement.")
		return
	}

	issue, err := m.tracker.FetchIssue(ctx, issueID)
	if err != nil {
		telemetry.RecordError(span, err, "tracker")
		m.failPhase(ctx, rec, "implementation", fmt.Errorf("fetching issue: %w", err))
		return
	}

	path, err := m.scm.EnsureCheckout(ctx, m.opts.RepoURL)
	if err != nil {
		telemetry.RecordError(span, err, "scm")
		m.failPhase(ctx, rec, "implementation", fmt.Errorf("preparing checkout: %w", err))
		return
	}
	rec.RepoPath = path

	branch := branchName(issueID)
	created, err := m.scm.SwitchOrCreateBranch(ctx, path, branch)
	if err != nil {
		telemetry.RecordError(span, err, "scm")
		m.failPhase(ctx, rec, "implementation", fmt.Errorf("switching to branch %s: %w", branch, err))
		return
	}
	if created {
		log.Printf("🌱 Created branch %s", branch)
	} else {
		log.Printf("♻️ Reusing branch %s, resuming from first pending step", branch)
	}

	for _, step := range doc.Pending() {
		telemetry.SetStep(span, step.Number)
		log.Printf("🔨 Issue %s step %d: %s", issueID, step.Number, step.Text)

		if _, err := m.agent.RunWriteMode(ctx, stepPrompt(issue, doc, step), path); err != nil {
			telemetry.RecordError(span, err, "agent")
			m.failPhase(ctx, rec, "implementation", fmt.Errorf("step %d: %w", step.Number, err))
			return
		}

		msg := fmt.Sprintf("Step %d: %s", step.Number, step.Text)
		if _, err := m.scm.CommitAndPush(ctx, path, msg); err != nil {
			telemetry.RecordError(span, err, "scm")
			m.failPhase(ctx, rec, "implementation", fmt.Errorf("pushing step %d: %w", step.Number, err))
			return
		}

		doc.MarkDone(step.Number)
		if err := m.tracker.UpdateComment(ctx, rec.PlanCommentID, doc.Render()); err != nil {
			// The work is committed; a stale checkbox only risks one
			// redundant step on resume.
			log.Printf("⚠️ Issue %s: persisting progress after step %d: %v", issueID, step.Number, err)
		}
	}

	prURL, err := m.scm.OpenPullRequest(ctx, path, issue.Title, prBody(issueID, doc))
	if err != nil {
		telemetry.RecordError(span, err, "scm")
		m.failPhase(ctx, rec, "implementation", fmt.Errorf("opening pull request: %w", err))
		return
	}
	rec.PRURL = prURL
	m.publish(events.NewPREvent(events.EventPROpened, prURL, issueID))

	m.moveStatus(ctx, issueID, m.opts.StatusInReview)
	m.say(ctx, rec.AgentSessionID, fmt.Sprintf("All plan steps are done. I opened a pull request: %s\n\nRunning a self-review pass next.", prURL))

	if err := m.setState(rec, types.StateReviewing); err != nil {
		telemetry.RecordError(span, err, "store")
		log.Printf("❌ Implementation %s: %v", issueID, err)
		return
	}
	m.pool.Enqueue(func() {
		m.runReview(context.Background(), issueID)
	})
}

// prBody summarizes the executed plan for the pull request description.
func prBody(issueID string, doc *plan.Document) string {
	body := fmt.Sprintf("Implements issue %s.\n\n## Changes\n\n", issueID)
	for _, step := range doc.Done() {
		body += fmt.Sprintf("- %s\n", step.Text)
	}
	return body
}
