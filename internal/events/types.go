// Package events provides real-time streaming of issue lifecycle events
package events

import (
	"time"

	"github.com/cloud-shuttle/muster/pkg/types"
)

// EventType represents the type of event
type EventType string

const (
	// EventStateChanged is emitted on every lifecycle state transition
	EventStateChanged EventType = "issue.state_changed"
	// EventPhaseStarted is emitted when a phase job begins
	EventPhaseStarted EventType = "phase.started"
	// EventPhaseFailed is emitted when a phase halts on a collaborator failure
	EventPhaseFailed EventType = "phase.failed"
	// EventPROpened is emitted when implementation lands a pull request
	EventPROpened EventType = "pr.opened"
	// EventPRCommentHandled is emitted when a PR-comment instruction finishes
	EventPRCommentHandled EventType = "pr.comment_handled"
	// EventPRCommentBusy is emitted when a PR trigger is rejected as busy
	EventPRCommentBusy EventType = "pr.comment_busy"
)

// Event represents a single lifecycle event
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	Timestamp int64       `json:"timestamp"`
	IssueID   string      `json:"issue_id,omitempty"`
	State     types.State `json:"state,omitempty"`
	PR        string      `json:"pr,omitempty"`
	Detail    string      `json:"detail,omitempty"`
}

// NewEvent creates a new event with the current timestamp
func NewEvent(eventType EventType, issueID string, state types.State, detail string) *Event {
	return &Event{
		Type:      eventType,
		Timestamp: time.Now().Unix(),
		IssueID:   issueID,
		State:     state,
		Detail:    detail,
	}
}

// NewPREvent creates a new pull-request scoped event
func NewPREvent(eventType EventType, pr, detail string) *Event {
	return &Event{
		Type:      eventType,
		Timestamp: time.Now().Unix(),
		PR:        pr,
		Detail:    detail,
	}
}
