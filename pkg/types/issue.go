// Package types defines core data structures for Muster
package types

// State represents where an issue is in its journey from assignment to PR.
type State string

const (
	StatePlanning              State = "planning"
	StateAwaitingClarification State = "awaiting_clarification"
	StateAwaitingApproval      State = "awaiting_approval"
	StateInProgress            State = "in_progress"
	StateReviewing             State = "reviewing"
	StateImplemented           State = "implemented"
)

// AwaitingInput reports whether a state can receive externally triggered
// input again. Only the two waiting states accept follow-up messages.
func (s State) AwaitingInput() bool {
	return s == StateAwaitingClarification || s == StateAwaitingApproval
}

// Record is the durable per-issue record. Fields other than State are
// monotonically populated: an empty value on write never clobbers a value
// already stored (merge-on-null upsert, see store.Upsert).
type Record struct {
	IssueID        string `json:"issue_id" db:"issue_id"`
	OrgID          string `json:"org_id" db:"org_id"`
	State          State  `json:"state" db:"state"`
	RepoPath       string `json:"repo_path" db:"repo_path"`
	AgentSessionID string `json:"agent_session_id" db:"agent_session_id"`
	PlanCommentID  string `json:"plan_comment_id" db:"plan_comment_id"`
	PRURL          string `json:"pr_url" db:"pr_url"`
	CreatedAt      int64  `json:"created_at" db:"created_at"`
	UpdatedAt      int64  `json:"updated_at" db:"updated_at"`
}

// Issue is an issue as fetched from the tracker, with its comment thread.
type Issue struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Status      string    `json:"status"`
	Comments    []Comment `json:"comments"`
}

// Comment is a single message in an issue's thread.
type Comment struct {
	ID        string `json:"id"`
	Author    string `json:"author"`
	Body      string `json:"body"`
	CreatedAt int64  `json:"created_at"`
}
