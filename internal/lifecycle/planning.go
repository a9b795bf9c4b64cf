package lifecycle

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/cloud-shuttle/muster/internal/events"
	"github.com/cloud-shuttle/muster/internal/plan"
	"github.com/cloud-shuttle/muster/pkg/telemetry"
	"github.com/cloud-shuttle/muster/pkg/types"
)

// runPlanning handles a fresh assignment: check out the repository, ask the
// agent for a plan, and park the issue in one of the two waiting states.
func (m *Machine) runPlanning(ctx context.Context, ev AssignmentEvent) {
	ctx, span := telemetry.StartPhaseSpan(ctx, telemetry.SpanPhasePlanning, ev.IssueID)
	defer span.End()
	m.publish(events.NewEvent(events.EventPhaseStarted, ev.IssueID, types.StatePlanning, "planning"))

	rec, err := m.store.Get(ev.IssueID)
	if err != nil {
		telemetry.RecordError(span, err, "store")
		log.Printf("❌ Planning %s: loading record: %v", ev.IssueID, err)
		return
	}
	if rec != nil && rec.State != types.StatePlanning {
		log.Printf("⏭️ Issue %s already in state %s, ignoring duplicate assignment", ev.IssueID, rec.State)
		return
	}
	if rec == nil {
		rec = &types.Record{
			IssueID:        ev.IssueID,
			OrgID:          ev.OrgID,
			State:          types.StatePlanning,
			AgentSessionID: ev.SessionID,
			CreatedAt:      time.Now().Unix(),
		}
		if err := m.store.Upsert(rec); err != nil {
			telemetry.RecordError(span, err, "store")
			log.Printf("❌ Planning %s: creating record: %v", ev.IssueID, err)
			return
		}
	}

	m.moveStatus(ctx, ev.IssueID, m.opts.StatusStarted)

	issue, err := m.tracker.FetchIssue(ctx, ev.IssueID)
	if err != nil {
		telemetry.RecordError(span, err, "tracker")
		m.failPhase(ctx, rec, "planning", fmt.Errorf("fetching issue: %w", err))
		return
	}

	path, err := m.scm.EnsureCheckout(ctx, m.opts.RepoURL)
	if err != nil {
		telemetry.RecordError(span, err, "scm")
		m.failPhase(ctx, rec, "planning", fmt.Errorf("preparing checkout: %w", err))
		return
	}
	rec.RepoPath = path
	if err := m.store.Upsert(rec); err != nil {
		log.Printf("⚠️ Planning %s: persisting repo path: %v", ev.IssueID, err)
	}

	output, err := m.agent.RunPlanMode(ctx, planPrompt(issue), path)
	if err != nil {
		telemetry.RecordError(span, err, "agent")
		m.failPhase(ctx, rec, "planning", fmt.Errorf("agent plan mode: %w", err))
		return
	}

	m.parkPlanOutput(ctx, rec, output)
	telemetry.SetState(span, string(rec.State))
}

// runFollowUp routes a human reply: approval starts implementation, anything
// else is treated as an answer or pushback and triggers a replan.
func (m *Machine) runFollowUp(ctx context.Context, ev FollowUpEvent) {
	ctx, span := telemetry.StartPhaseSpan(ctx, telemetry.SpanPhaseFollowUp, ev.IssueID)
	defer span.End()

	rec, err := m.store.Get(ev.IssueID)
	if err != nil {
		telemetry.RecordError(span, err, "store")
		log.Printf("❌ Follow-up %s: loading record: %v", ev.IssueID, err)
		return
	}
	if rec == nil {
		log.Printf("⏭️ Follow-up for unknown issue %s, ignoring", ev.IssueID)
		return
	}
	if !rec.State.AwaitingInput() {
		log.Printf("⏭️ Issue %s is in state %s, not waiting for input, ignoring follow-up", ev.IssueID, rec.State)
		return
	}
	if ev.SessionID != "" {
		rec.AgentSessionID = ev.SessionID
	}

	if plan.IsApproval(ev.Message) {
		log.Printf("✅ Issue %s approved, starting implementation", ev.IssueID)
		if err := m.setState(rec, types.StateInProgress); err != nil {
			telemetry.RecordError(span, err, "store")
			log.Printf("❌ Follow-up %s: %v", ev.IssueID, err)
			return
		}
		m.pool.Enqueue(func() {
			m.runImplementation(context.Background(), rec.IssueID)
		})
		return
	}

	// Not an approval: fold the reply into a replan.
	issue, err := m.tracker.FetchIssue(ctx, ev.IssueID)
	if err != nil {
		telemetry.RecordError(span, err, "tracker")
		m.failPhase(ctx, rec, "replanning", fmt.Errorf("fetching issue: %w", err))
		return
	}

	path, err := m.scm.EnsureCheckout(ctx, m.opts.RepoURL)
	if err != nil {
		telemetry.RecordError(span, err, "scm")
		m.failPhase(ctx, rec, "replanning", fmt.Errorf("preparing checkout: %w", err))
		return
	}
	rec.RepoPath = path

	output, err := m.agent.RunPlanMode(ctx, replanPrompt(issue, ev.Message), path)
	if err != nil {
		telemetry.RecordError(span, err, "agent")
		m.failPhase(ctx, rec, "replanning", fmt.Errorf("agent plan mode: %w", err))
		return
	}

	m.parkPlanOutput(ctx, rec, output)
	telemetry.SetState(span, string(rec.State))
}

// parkPlanOutput branches on the clarification heuristic and moves the
// issue to the matching waiting state. Shared by planning and replanning.
func (m *Machine) parkPlanOutput(ctx context.Context, rec *types.Record, output string) {
	if plan.NeedsClarification(output) {
		m.say(ctx, rec.AgentSessionID, output+"\n\nPlease answer the questions above and I'll refine the plan.")
		if err := m.setState(rec, types.StateAwaitingClarification); err != nil {
			log.Printf("❌ Issue %s: %v", rec.IssueID, err)
		}
		return
	}

	// Persist the plan so implementation can resume from it even after a
	// restart. One comment per issue, updated in place on replans.
	if rec.PlanCommentID != "" {
		if err := m.tracker.UpdateComment(ctx, rec.PlanCommentID, output); err != nil {
			log.Printf("❌ Issue %s: updating plan comment: %v", rec.IssueID, err)
			m.say(ctx, rec.AgentSessionID, "I drafted a plan but could not save it to the issue. Please retry.")
			return
		}
	} else {
		commentID, err := m.tracker.CreateComment(ctx, rec.IssueID, output)
		if err != nil {
			log.Printf("❌ Issue %s: creating plan comment: %v", rec.IssueID, err)
			m.say(ctx, rec.AgentSessionID, "I drafted a plan but could not save it to the issue. Please retry.")
			return
		}
		rec.PlanCommentID = commentID
	}

	m.say(ctx, rec.AgentSessionID, output+"\n\nDoes this plan look good? Reply with an approval and I'll start implementing.")
	if err := m.setState(rec, types.StateAwaitingApproval); err != nil {
		log.Printf("❌ Issue %s: %v", rec.IssueID, err)
	}
}

// failPhase reports a collaborator failure to the user and leaves the state
// untouched so the same trigger can be sent again.
func (m *Machine) failPhase(ctx context.Context, rec *types.Record, phase string, err error) {
	log.Printf("❌ Issue %s %s failed: %v", rec.IssueID, phase, err)
	m.publish(events.NewEvent(events.EventPhaseFailed, rec.IssueID, rec.State, err.Error()))
	m.say(ctx, rec.AgentSessionID, fmt.Sprintf("I hit a problem during %s: %v\n\nNothing was changed. Trigger me again to retry.", phase, err))
}
