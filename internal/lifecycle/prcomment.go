package lifecycle

import (
	"context"
	"fmt"
	"log"

	"github.com/cloud-shuttle/muster/internal/events"
	"github.com/cloud-shuttle/muster/internal/locks"
	"github.com/cloud-shuttle/muster/pkg/telemetry"
)

// runPRComment applies a free-form instruction left as a PR comment. The
// caller holds the per-PR lock. Failures are reported at the trigger
// location rather than in an issue thread, since a PR trigger may have no
// issue behind it.
func (m *Machine) runPRComment(ctx context.Context, ev PRTriggerEvent, key locks.Key) {
	ctx, span := telemetry.StartPRSpan(ctx, telemetry.SpanPhasePRComment, key.String())
	defer span.End()

	branch, err := m.scm.PRBranch(ctx, key)
	if err != nil {
		telemetry.RecordError(span, err, "scm")
		m.failPRTrigger(ctx, key, ev.ReviewCommentID, fmt.Errorf("resolving PR branch: %w", err))
		return
	}

	path, err := m.scm.EnsureCheckout(ctx, m.opts.RepoURL)
	if err != nil {
		telemetry.RecordError(span, err, "scm")
		m.failPRTrigger(ctx, key, ev.ReviewCommentID, fmt.Errorf("preparing checkout: %w", err))
		return
	}
	if _, err := m.scm.SwitchOrCreateBranch(ctx, path, branch); err != nil {
		telemetry.RecordError(span, err, "scm")
		m.failPRTrigger(ctx, key, ev.ReviewCommentID, fmt.Errorf("switching to %s: %w", branch, err))
		return
	}

	diff, err := m.scm.DiffAgainstBase(ctx, path)
	if err != nil {
		telemetry.RecordError(span, err, "scm")
		m.failPRTrigger(ctx, key, ev.ReviewCommentID, fmt.Errorf("computing diff: %w", err))
		return
	}

	if _, err := m.agent.RunWriteMode(ctx, prCommentPrompt(ev.Instruction, diff), path); err != nil {
		telemetry.RecordError(span, err, "agent")
		m.failPRTrigger(ctx, key, ev.ReviewCommentID, fmt.Errorf("agent write mode: %w", err))
		return
	}

	hasChanges, err := m.scm.CommitAndPush(ctx, path, "Address PR feedback")
	if err != nil {
		telemetry.RecordError(span, err, "scm")
		m.failPRTrigger(ctx, key, ev.ReviewCommentID, fmt.Errorf("pushing changes: %w", err))
		return
	}

	reply := "Done. I didn't end up changing any files for this; let me know if you expected a code change."
	if hasChanges {
		reply = "Done. I pushed the changes to this branch."
	}
	if err := m.replyAt(ctx, key, ev.ReviewCommentID, reply); err != nil {
		log.Printf("⚠️ Failed to reply on %s: %v", key, err)
	}
	m.publish(events.NewPREvent(events.EventPRCommentHandled, key.String(), ev.Instruction))
	log.Printf("✅ Handled PR comment on %s (changes: %v)", key, hasChanges)
}

func (m *Machine) failPRTrigger(ctx context.Context, key locks.Key, reviewCommentID string, err error) {
	log.Printf("❌ PR comment on %s failed: %v", key, err)
	m.publish(events.NewPREvent(events.EventPhaseFailed, key.String(), err.Error()))
	reply := fmt.Sprintf("I hit a problem while working on this: %v\n\nNothing was pushed. Mention me again to retry.", err)
	if rerr := m.replyAt(ctx, key, reviewCommentID, reply); rerr != nil {
		log.Printf("⚠️ Failed to post failure reply on %s: %v", key, rerr)
	}
}
