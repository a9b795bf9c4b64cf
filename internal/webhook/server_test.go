package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/cloud-shuttle/muster/internal/lifecycle"
)

type recordingDispatcher struct {
	mu          sync.Mutex
	assignments []lifecycle.AssignmentEvent
	followUps   []lifecycle.FollowUpEvent
	prTriggers  []lifecycle.PRTriggerEvent
}

func (d *recordingDispatcher) HandleAssignment(ev lifecycle.AssignmentEvent) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.assignments = append(d.assignments, ev)
}

func (d *recordingDispatcher) HandleFollowUp(ev lifecycle.FollowUpEvent) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.followUps = append(d.followUps, ev)
}

func (d *recordingDispatcher) HandlePRTrigger(ev lifecycle.PRTriggerEvent) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.prTriggers = append(d.prTriggers, ev)
}

func sign(secret, body string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(body))
	return hex.EncodeToString(mac.Sum(nil))
}

func newTestServer(t *testing.T) (*Server, *recordingDispatcher) {
	t.Helper()
	d := &recordingDispatcher{}
	s := NewServer(d, Options{
		TrackerSecret: "tracker-secret",
		ForgeSecret:   "forge-secret",
		TriggerPhrase: "@muster",
	})
	return s, d
}

func postTracker(s *Server, body, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/tracker", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Webhook-Signature", signature)
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)
	return rec
}

func postForge(s *Server, event, body, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/forge", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-GitHub-Event", event)
	req.Header.Set("X-Hub-Signature-256", signature)
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)
	return rec
}

func TestTrackerAssignment(t *testing.T) {
	s, d := newTestServer(t)
	body := `{"kind":"issue.assigned","issue_id":"ISSUE-1","org_id":"org-1","session_id":"sess-1"}`

	rec := postTracker(s, body, sign("tracker-secret", body))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	if len(d.assignments) != 1 || d.assignments[0].IssueID != "ISSUE-1" {
		t.Errorf("assignments = %+v", d.assignments)
	}
}

func TestTrackerReply(t *testing.T) {
	s, d := newTestServer(t)
	body := `{"kind":"issue.reply","issue_id":"ISSUE-1","org_id":"org-1","session_id":"sess-1","message":"approved"}`

	rec := postTracker(s, body, sign("tracker-secret", body))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	if len(d.followUps) != 1 || d.followUps[0].Message != "approved" {
		t.Errorf("followUps = %+v", d.followUps)
	}
}

func TestTrackerBadSignatureRejected(t *testing.T) {
	s, d := newTestServer(t)
	body := `{"kind":"issue.assigned","issue_id":"ISSUE-1","org_id":"org-1","session_id":"sess-1"}`

	for _, sig := range []string{"", "deadbeef", sign("wrong-secret", body)} {
		rec := postTracker(s, body, sig)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("signature %q: status = %d, want 401", sig, rec.Code)
		}
	}
	if len(d.assignments) != 0 {
		t.Errorf("rejected delivery was dispatched: %+v", d.assignments)
	}
}

func TestTrackerInvalidEnvelopeRejected(t *testing.T) {
	s, d := newTestServer(t)
	cases := []string{
		`{"kind":"issue.assigned","issue_id":"ISSUE-1"}`,
		`{"kind":"issue.deleted","issue_id":"ISSUE-1","org_id":"o","session_id":"s"}`,
		`{"kind":"issue.reply","issue_id":"ISSUE-1","org_id":"o","session_id":"s","message":"  "}`,
		`not json`,
	}
	for _, body := range cases {
		rec := postTracker(s, body, sign("tracker-secret", body))
		if rec.Code != http.StatusBadRequest {
			t.Errorf("body %q: status = %d, want 400", body, rec.Code)
		}
	}
	if len(d.assignments)+len(d.followUps) != 0 {
		t.Error("invalid envelope was dispatched")
	}
}

func TestForgePRCommentTrigger(t *testing.T) {
	s, d := newTestServer(t)
	body := `{
		"action": "created",
		"comment": {"id": 77, "body": "@muster please rename the flag"},
		"issue": {"number": 5, "pull_request": {}},
		"repository": {"name": "widget", "owner": {"login": "acme"}}
	}`

	rec := postForge(s, "issue_comment", body, "sha256="+sign("forge-secret", body))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	if len(d.prTriggers) != 1 {
		t.Fatalf("prTriggers = %+v", d.prTriggers)
	}
	ev := d.prTriggers[0]
	if ev.Org != "acme" || ev.Repo != "widget" || ev.Number != 5 {
		t.Errorf("target = %s/%s#%d", ev.Org, ev.Repo, ev.Number)
	}
	if ev.Instruction != "please rename the flag" {
		t.Errorf("instruction = %q", ev.Instruction)
	}
	if ev.ReviewCommentID != "" {
		t.Errorf("top-level comment should have no review comment id")
	}
}

func TestForgeReviewCommentCarriesReplyLocation(t *testing.T) {
	s, d := newTestServer(t)
	body := `{
		"action": "created",
		"comment": {"id": 88, "body": "@muster tighten this loop"},
		"pull_request": {"number": 6},
		"repository": {"name": "widget", "owner": {"login": "acme"}}
	}`

	rec := postForge(s, "pull_request_review_comment", body, "sha256="+sign("forge-secret", body))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	if len(d.prTriggers) != 1 || d.prTriggers[0].ReviewCommentID != "88" {
		t.Errorf("prTriggers = %+v", d.prTriggers)
	}
}

func TestForgeIgnoresUnaddressedAndNonPRComments(t *testing.T) {
	s, d := newTestServer(t)
	cases := []struct {
		name, event, body string
	}{
		{
			name:  "no trigger phrase",
			event: "issue_comment",
			body:  `{"action":"created","comment":{"id":1,"body":"nice work"},"issue":{"number":5,"pull_request":{}},"repository":{"name":"widget","owner":{"login":"acme"}}}`,
		},
		{
			name:  "plain issue not a PR",
			event: "issue_comment",
			body:  `{"action":"created","comment":{"id":1,"body":"@muster do it"},"issue":{"number":5},"repository":{"name":"widget","owner":{"login":"acme"}}}`,
		},
		{
			name:  "edited comment",
			event: "issue_comment",
			body:  `{"action":"edited","comment":{"id":1,"body":"@muster do it"},"issue":{"number":5,"pull_request":{}},"repository":{"name":"widget","owner":{"login":"acme"}}}`,
		},
		{
			name:  "bare mention without instruction",
			event: "issue_comment",
			body:  `{"action":"created","comment":{"id":1,"body":"@muster"},"issue":{"number":5,"pull_request":{}},"repository":{"name":"widget","owner":{"login":"acme"}}}`,
		},
		{
			name:  "unrelated event",
			event: "push",
			body:  `{}`,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := postForge(s, tc.event, tc.body, "sha256="+sign("forge-secret", tc.body))
			if rec.Code != http.StatusAccepted {
				t.Errorf("status = %d, want 202 ignored", rec.Code)
			}
		})
	}
	if len(d.prTriggers) != 0 {
		t.Errorf("ignored deliveries were dispatched: %+v", d.prTriggers)
	}
}

func TestForgeBadSignatureRejected(t *testing.T) {
	s, d := newTestServer(t)
	body := `{"action":"created"}`
	rec := postForge(s, "issue_comment", body, "sha256="+sign("wrong", body))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
	if len(d.prTriggers) != 0 {
		t.Error("rejected delivery was dispatched")
	}
}

func TestHealthz(t *testing.T) {
	s, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d", rec.Code)
	}
}
