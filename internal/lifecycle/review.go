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

// runReview has the agent read its own diff against the base branch and fix
// what it finds. The phase always ends in the terminal state; a clean review
// and a fix-up review differ only in the message posted.
func (m *Machine) runReview(ctx context.Context, issueID string) {
	ctx, span := telemetry.StartPhaseSpan(ctx, telemetry.SpanPhaseReview, issueID)
	defer span.End()
	m.publish(events.NewEvent(events.EventPhaseStarted, issueID, types.StateReviewing, "self-review"))

	rec, err := m.store.Get(issueID)
	if err != nil {
		telemetry.RecordError(span, err, "store")
		log.Printf("❌ Review %s: loading record: %v", issueID, err)
		return
	}
	if rec == nil || rec.State != types.StateReviewing {
		log.Printf("⏭️ Review precondition not met for %s, ignoring", issueID)
		return
	}

	planBody := ""
	if rec.PlanCommentID != "" {
		planBody, err = m.tracker.FetchComment(ctx, rec.PlanCommentID)
		if err != nil {
			telemetry.RecordError(span, err, "tracker")
			m.failPhase(ctx, rec, "self-review", fmt.Errorf("fetching plan: %w", err))
			return
		}
	}

	path, err := m.scm.EnsureCheckout(ctx, m.opts.RepoURL)
	if err != nil {
		telemetry.RecordError(span, err, "scm")
		m.failPhase(ctx, rec, "self-review", fmt.Errorf("preparing checkout: %w", err))
		return
	}
	if _, err := m.scm.SwitchOrCreateBranch(ctx, path, branchName(issueID)); err != nil {
		telemetry.RecordError(span, err, "scm")
		m.failPhase(ctx, rec, "self-review", fmt.Errorf("switching branch: %w", err))
		return
	}

	diff, err := m.scm.DiffAgainstBase(ctx, path)
	if err != nil {
		telemetry.RecordError(span, err, "scm")
		m.failPhase(ctx, rec, "self-review", fmt.Errorf("computing diff: %w", err))
		return
	}

	if _, err := m.agent.RunWriteMode(ctx, reviewPrompt(plan.Parse(planBody), diff), path); err != nil {
		telemetry.RecordError(span, err, "agent")
		m.failPhase(ctx, rec, "self-review", fmt.Errorf("agent write mode: %w", err))
		return
	}

	hasChanges, err := m.scm.CommitAndPush(ctx, path, "Self-review fixes")
	if err != nil {
		telemetry.RecordError(span, err, "scm")
		m.failPhase(ctx, rec, "self-review", fmt.Errorf("pushing review fixes: %w", err))
		return
	}

	if hasChanges {
		m.say(ctx, rec.AgentSessionID, fmt.Sprintf("Self-review found issues and pushed fixes. The pull request is ready: %s", rec.PRURL))
	} else {
		m.say(ctx, rec.AgentSessionID, fmt.Sprintf("Self-review found nothing to fix. The pull request is ready: %s", rec.PRURL))
	}

	m.moveStatus(ctx, issueID, m.opts.StatusDone)
	if err := m.setState(rec, types.StateImplemented); err != nil {
		telemetry.RecordError(span, err, "store")
		log.Printf("❌ Review %s: %v", issueID, err)
	}
}
