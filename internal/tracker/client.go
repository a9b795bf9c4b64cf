// Package tracker implements the issue-tracker HTTP client.
//
// The orchestrator only needs a narrow surface: fetch an issue with its
// thread, post messages to the agent session, and create/update/fetch the
// persistent comment holding the plan document. Status transitions are
// best-effort; a workspace without the target status name is not an error.
package tracker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/cloud-shuttle/muster/pkg/types"
)

// Client talks to the tracker's REST API.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a tracker client authenticated with a static API token.
func NewClient(baseURL, token string) *Client {
	src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	httpClient := oauth2.NewClient(context.Background(), src)
	httpClient.Timeout = 30 * time.Second
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
	}
}

// FetchIssue retrieves an issue with its comment thread.
func (c *Client) FetchIssue(ctx context.Context, issueID string) (*types.Issue, error) {
	var issue types.Issue
	path := fmt.Sprintf("/api/v1/issues/%s?expand=comments", url.PathEscape(issueID))
	if err := c.do(ctx, http.MethodGet, path, nil, &issue); err != nil {
		return nil, fmt.Errorf("fetching issue %s: %w", issueID, err)
	}
	return &issue, nil
}

// PostThreadMessage posts a progress message to the agent session thread.
func (c *Client) PostThreadMessage(ctx context.Context, sessionID, body string) error {
	path := fmt.Sprintf("/api/v1/agent-sessions/%s/messages", url.PathEscape(sessionID))
	payload := map[string]string{"body": body}
	if err := c.do(ctx, http.MethodPost, path, payload, nil); err != nil {
		return fmt.Errorf("posting thread message: %w", err)
	}
	return nil
}

// CreateComment creates a persistent comment on an issue and returns its id.
// The implementation phase uses this to store the plan document.
func (c *Client) CreateComment(ctx context.Context, issueID, body string) (string, error) {
	path := fmt.Sprintf("/api/v1/issues/%s/comments", url.PathEscape(issueID))
	payload := map[string]string{"body": body}
	var resp struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, path, payload, &resp); err != nil {
		return "", fmt.Errorf("creating comment on %s: %w", issueID, err)
	}
	return resp.ID, nil
}

// UpdateComment replaces a comment's body.
func (c *Client) UpdateComment(ctx context.Context, commentID, body string) error {
	path := fmt.Sprintf("/api/v1/comments/%s", url.PathEscape(commentID))
	payload := map[string]string{"body": body}
	if err := c.do(ctx, http.MethodPatch, path, payload, nil); err != nil {
		return fmt.Errorf("updating comment %s: %w", commentID, err)
	}
	return nil
}

// FetchComment retrieves a comment's current body.
func (c *Client) FetchComment(ctx context.Context, commentID string) (string, error) {
	path := fmt.Sprintf("/api/v1/comments/%s", url.PathEscape(commentID))
	var resp struct {
		Body string `json:"body"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return "", fmt.Errorf("fetching comment %s: %w", commentID, err)
	}
	return resp.Body, nil
}

// TransitionStatus moves an issue to the named workflow status. Missing
// status names are logged and skipped, not fatal: teams rename their
// workflow columns and the orchestrator should not break on that.
func (c *Client) TransitionStatus(ctx context.Context, issueID, statusName string) error {
	path := fmt.Sprintf("/api/v1/issues/%s/statuses", url.PathEscape(issueID))
	var resp struct {
		Statuses []struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		} `json:"statuses"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return fmt.Errorf("listing statuses for %s: %w", issueID, err)
	}

	var statusID string
	for _, s := range resp.Statuses {
		if strings.EqualFold(s.Name, statusName) {
			statusID = s.ID
			break
		}
	}
	if statusID == "" {
		log.Printf("⚠️  tracker: no status named %q for issue %s, skipping transition", statusName, issueID)
		return nil
	}

	path = fmt.Sprintf("/api/v1/issues/%s/transition", url.PathEscape(issueID))
	payload := map[string]string{"status_id": statusID}
	if err := c.do(ctx, http.MethodPost, path, payload, nil); err != nil {
		return fmt.Errorf("transitioning %s to %s: %w", issueID, statusName, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshaling request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%s %s: HTTP %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(data)))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}
	return nil
}
