// Package lifecycle drives an issue from assignment to a landed pull
// request. A small state machine decides which phase an incoming event may
// trigger; the phases themselves run as jobs on a shared worker pool and
// never run concurrently for the same issue because each phase is only
// reachable from a state that no other in-flight phase can produce.
package lifecycle

import (
	"context"
	"log"

	"github.com/cloud-shuttle/muster/internal/events"
	"github.com/cloud-shuttle/muster/internal/locks"
	"github.com/cloud-shuttle/muster/internal/queue"
	"github.com/cloud-shuttle/muster/pkg/types"
)

// Store persists per-issue records. Get returns nil without error when the
// issue is unknown.
type Store interface {
	Get(issueID string) (*types.Record, error)
	Upsert(rec *types.Record) error
}

// Tracker is the issue-tracker surface the lifecycle needs.
type Tracker interface {
	FetchIssue(ctx context.Context, issueID string) (*types.Issue, error)
	PostThreadMessage(ctx context.Context, sessionID, body string) error
	CreateComment(ctx context.Context, issueID, body string) (string, error)
	UpdateComment(ctx context.Context, commentID, body string) error
	FetchComment(ctx context.Context, commentID string) (string, error)
	TransitionStatus(ctx context.Context, issueID, statusName string) error
}

// SCM covers checkouts, branches, commits and pull requests.
type SCM interface {
	EnsureCheckout(ctx context.Context, workKey string) (string, error)
	SwitchOrCreateBranch(ctx context.Context, path, name string) (bool, error)
	CommitAndPush(ctx context.Context, path, message string) (bool, error)
	DiffAgainstBase(ctx context.Context, path string) (string, error)
	OpenPullRequest(ctx context.Context, path, title, body string) (string, error)
	PRBranch(ctx context.Context, key locks.Key) (string, error)
	CommentOnPR(ctx context.Context, key locks.Key, body string) error
	ReplyToReviewComment(ctx context.Context, key locks.Key, commentID, body string) error
}

// Agent invokes the coding agent in the given checkout.
type Agent interface {
	RunPlanMode(ctx context.Context, prompt, workDir string) (string, error)
	RunWriteMode(ctx context.Context, prompt, workDir string) (string, error)
}

// Pool accepts phase jobs for asynchronous execution.
type Pool interface {
	Enqueue(job queue.Job)
}

// AssignmentEvent fires when an issue is assigned to the agent.
type AssignmentEvent struct {
	IssueID   string `json:"issue_id" validate:"required"`
	OrgID     string `json:"org_id" validate:"required"`
	SessionID string `json:"session_id" validate:"required"`
}

// FollowUpEvent fires when a human replies in the agent session thread.
type FollowUpEvent struct {
	IssueID   string `json:"issue_id" validate:"required"`
	OrgID     string `json:"org_id" validate:"required"`
	SessionID string `json:"session_id" validate:"required"`
	Message   string `json:"message" validate:"required"`
}

// PRTriggerEvent fires when a PR comment mentions the trigger phrase. It is
// keyed by pull request, not by issue.
type PRTriggerEvent struct {
	Org             string `json:"org" validate:"required"`
	Repo            string `json:"repo" validate:"required"`
	Number          int    `json:"number" validate:"required,gt=0"`
	Instruction     string `json:"instruction" validate:"required"`
	ReviewCommentID string `json:"review_comment_id"`
}

// Options carries the deployment-specific knobs the machine needs.
type Options struct {
	RepoURL        string
	StatusStarted  string
	StatusInReview string
	StatusDone     string
}

// Machine owns the issue lifecycle. All phase work goes through the pool;
// the Handle methods only classify the event and enqueue.
type Machine struct {
	store   Store
	tracker Tracker
	scm     SCM
	agent   Agent
	pool    Pool
	locks   *locks.Table
	bus     *events.Bus
	opts    Options
}

func New(store Store, tracker Tracker, scm SCM, agent Agent, pool Pool, lockTable *locks.Table, bus *events.Bus, opts Options) *Machine {
	return &Machine{
		store:   store,
		tracker: tracker,
		scm:     scm,
		agent:   agent,
		pool:    pool,
		locks:   lockTable,
		bus:     bus,
		opts:    opts,
	}
}

// HandleAssignment enqueues the planning phase for a newly assigned issue.
// Redelivered assignments are filtered inside the phase, against the
// freshest record, so duplicate webhooks cannot double-plan.
func (m *Machine) HandleAssignment(ev AssignmentEvent) {
	log.Printf("📥 Assignment for issue %s (org %s)", ev.IssueID, ev.OrgID)
	m.pool.Enqueue(func() {
		m.runPlanning(context.Background(), ev)
	})
}

// HandleFollowUp enqueues handling of a human reply. Replies to issues that
// are not waiting for input are dropped inside the phase.
func (m *Machine) HandleFollowUp(ev FollowUpEvent) {
	log.Printf("📥 Follow-up for issue %s", ev.IssueID)
	m.pool.Enqueue(func() {
		m.runFollowUp(context.Background(), ev)
	})
}

// HandlePRTrigger enqueues a PR-comment instruction. The per-PR lock is
// taken here, before queueing, so a trigger against a busy PR gets its
// "still working" reply immediately instead of waiting in line behind the
// very job that makes it busy.
func (m *Machine) HandlePRTrigger(ev PRTriggerEvent) {
	key := locks.Key{Org: ev.Org, Repo: ev.Repo, Number: ev.Number}
	if !m.locks.TryAcquire(key) {
		log.Printf("🔒 PR %s is busy, replying without queueing", key)
		m.publish(events.NewPREvent(events.EventPRCommentBusy, key.String(), ev.Instruction))
		go func() {
			err := m.replyAt(context.Background(), key, ev.ReviewCommentID,
				"I'm still working on a previous request for this pull request. Please try again once that finishes.")
			if err != nil {
				log.Printf("⚠️ Failed to post busy reply on %s: %v", key, err)
			}
		}()
		return
	}
	m.pool.Enqueue(func() {
		defer m.locks.Release(key)
		m.runPRComment(context.Background(), ev, key)
	})
}

// replyAt answers at the trigger location: inline when the trigger was a
// review comment, as a top-level PR comment otherwise.
func (m *Machine) replyAt(ctx context.Context, key locks.Key, reviewCommentID, body string) error {
	if reviewCommentID != "" {
		return m.scm.ReplyToReviewComment(ctx, key, reviewCommentID, body)
	}
	return m.scm.CommentOnPR(ctx, key, body)
}

func (m *Machine) publish(ev *events.Event) {
	if m.bus == nil {
		return
	}
	if err := m.bus.Publish(context.Background(), ev); err != nil {
		log.Printf("⚠️ Failed to publish %s event: %v", ev.Type, err)
	}
}

// setState persists the transition and announces it on the bus.
func (m *Machine) setState(rec *types.Record, state types.State) error {
	rec.State = state
	if err := m.store.Upsert(rec); err != nil {
		return err
	}
	log.Printf("🔄 Issue %s → %s", rec.IssueID, state)
	m.publish(events.NewEvent(events.EventStateChanged, rec.IssueID, state, ""))
	return nil
}

// say posts to the agent session thread. Failures are logged, not
// propagated: a lost progress message must not derail a phase.
func (m *Machine) say(ctx context.Context, sessionID, body string) {
	if err := m.tracker.PostThreadMessage(ctx, sessionID, body); err != nil {
		log.Printf("⚠️ Failed to post thread message: %v", err)
	}
}

// moveStatus transitions the tracker card. Best effort by contract.
func (m *Machine) moveStatus(ctx context.Context, issueID, status string) {
	if status == "" {
		return
	}
	if err := m.tracker.TransitionStatus(ctx, issueID, status); err != nil {
		log.Printf("⚠️ Failed to move issue %s to %q: %v", issueID, status, err)
	}
}
