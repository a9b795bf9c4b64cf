// Package webhook is the HTTP ingress. It verifies signatures, normalizes
// tracker and forge payloads into lifecycle events, and acknowledges fast;
// all real work happens on the worker pool behind the state machine.
package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cloud-shuttle/muster/internal/lifecycle"
)

// Dispatcher receives normalized events. Satisfied by lifecycle.Machine.
type Dispatcher interface {
	HandleAssignment(ev lifecycle.AssignmentEvent)
	HandleFollowUp(ev lifecycle.FollowUpEvent)
	HandlePRTrigger(ev lifecycle.PRTriggerEvent)
}

// Server hosts the webhook endpoints plus health and metrics.
type Server struct {
	echo          *echo.Echo
	dispatcher    Dispatcher
	validate      *validator.Validate
	trackerSecret string
	forgeSecret   string
	triggerPhrase string
}

// Options configures the ingress endpoints.
type Options struct {
	TrackerSecret string
	ForgeSecret   string
	TriggerPhrase string
	QueueDepth    func() int
}

func NewServer(dispatcher Dispatcher, opts Options) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	s := &Server{
		echo:          e,
		dispatcher:    dispatcher,
		validate:      validator.New(),
		trackerSecret: opts.TrackerSecret,
		forgeSecret:   opts.ForgeSecret,
		triggerPhrase: opts.TriggerPhrase,
	}
	if opts.QueueDepth != nil {
		setDepthFunc(opts.QueueDepth)
	}

	e.POST("/webhooks/tracker", s.handleTracker)
	e.POST("/webhooks/forge", s.handleForge)
	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	return s
}

// Start blocks serving HTTP until Shutdown.
func (s *Server) Start(addr string) error {
	log.Printf("🌐 Webhook server listening on %s", addr)
	err := s.echo.Start(addr)
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// trackerEnvelope is the tracker's delivery format. Kind selects which
// lifecycle event the payload becomes.
type trackerEnvelope struct {
	Kind      string `json:"kind" validate:"required,oneof=issue.assigned issue.reply"`
	IssueID   string `json:"issue_id" validate:"required"`
	OrgID     string `json:"org_id" validate:"required"`
	SessionID string `json:"session_id" validate:"required"`
	Message   string `json:"message"`
}

func (s *Server) handleTracker(c echo.Context) error {
	body, ok := s.verifiedBody(c, c.Request().Header.Get("X-Webhook-Signature"), s.trackerSecret, "")
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "invalid signature"})
	}

	var env trackerEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		eventsRejected.WithLabelValues("malformed").Inc()
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "malformed payload"})
	}
	if err := s.validate.Struct(env); err != nil {
		eventsRejected.WithLabelValues("invalid").Inc()
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	eventsReceived.WithLabelValues("tracker", env.Kind).Inc()

	switch env.Kind {
	case "issue.assigned":
		s.dispatcher.HandleAssignment(lifecycle.AssignmentEvent{
			IssueID:   env.IssueID,
			OrgID:     env.OrgID,
			SessionID: env.SessionID,
		})
		jobsDispatched.WithLabelValues("assignment").Inc()
	case "issue.reply":
		if strings.TrimSpace(env.Message) == "" {
			eventsRejected.WithLabelValues("invalid").Inc()
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "reply without message"})
		}
		s.dispatcher.HandleFollowUp(lifecycle.FollowUpEvent{
			IssueID:   env.IssueID,
			OrgID:     env.OrgID,
			SessionID: env.SessionID,
			Message:   env.Message,
		})
		jobsDispatched.WithLabelValues("follow_up").Inc()
	}
	return c.JSON(http.StatusAccepted, map[string]string{"status": "accepted"})
}

// forgeEnvelope covers the two comment events we react to. Fields we don't
// read are left undeclared.
type forgeEnvelope struct {
	Action  string `json:"action"`
	Comment struct {
		ID   int64  `json:"id"`
		Body string `json:"body"`
	} `json:"comment"`
	Issue struct {
		Number      int              `json:"number"`
		PullRequest *json.RawMessage `json:"pull_request"`
	} `json:"issue"`
	PullRequest struct {
		Number int `json:"number"`
	} `json:"pull_request"`
	Repository struct {
		Name  string `json:"name"`
		Owner struct {
			Login string `json:"login"`
		} `json:"owner"`
	} `json:"repository"`
}

func (s *Server) handleForge(c echo.Context) error {
	body, ok := s.verifiedBody(c, c.Request().Header.Get("X-Hub-Signature-256"), s.forgeSecret, "sha256=")
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "invalid signature"})
	}

	event := c.Request().Header.Get("X-GitHub-Event")
	if event != "issue_comment" && event != "pull_request_review_comment" {
		return c.JSON(http.StatusAccepted, map[string]string{"status": "ignored"})
	}

	var env forgeEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		eventsRejected.WithLabelValues("malformed").Inc()
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "malformed payload"})
	}
	if env.Action != "created" {
		return c.JSON(http.StatusAccepted, map[string]string{"status": "ignored"})
	}

	instruction, found := s.extractInstruction(env.Comment.Body)
	if !found {
		return c.JSON(http.StatusAccepted, map[string]string{"status": "ignored"})
	}

	ev := lifecycle.PRTriggerEvent{
		Org:         env.Repository.Owner.Login,
		Repo:        env.Repository.Name,
		Instruction: instruction,
	}
	switch event {
	case "issue_comment":
		// Issue comments also fire on plain issues; only PR threads count.
		if env.Issue.PullRequest == nil {
			return c.JSON(http.StatusAccepted, map[string]string{"status": "ignored"})
		}
		ev.Number = env.Issue.Number
	case "pull_request_review_comment":
		ev.Number = env.PullRequest.Number
		ev.ReviewCommentID = fmt.Sprintf("%d", env.Comment.ID)
	}

	if err := s.validate.Struct(ev); err != nil {
		eventsRejected.WithLabelValues("invalid").Inc()
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	eventsReceived.WithLabelValues("forge", event).Inc()

	s.dispatcher.HandlePRTrigger(ev)
	jobsDispatched.WithLabelValues("pr_trigger").Inc()
	return c.JSON(http.StatusAccepted, map[string]string{"status": "accepted"})
}

// extractInstruction returns the text after the trigger phrase. A comment
// that never mentions the phrase is not addressed to us.
func (s *Server) extractInstruction(body string) (string, bool) {
	idx := strings.Index(strings.ToLower(body), strings.ToLower(s.triggerPhrase))
	if idx < 0 {
		return "", false
	}
	instruction := strings.TrimSpace(body[idx+len(s.triggerPhrase):])
	if instruction == "" {
		return "", false
	}
	return instruction, true
}

// verifiedBody reads the request body and checks its HMAC-SHA256 signature.
// Comparison is constant time.
func (s *Server) verifiedBody(c echo.Context, signature, secret, prefix string) ([]byte, bool) {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		eventsRejected.WithLabelValues("read").Inc()
		return nil, false
	}
	if secret == "" {
		// Unset secret means signing is disabled for this source.
		return body, true
	}
	signature = strings.TrimPrefix(signature, prefix)
	expected, err := hex.DecodeString(signature)
	if err != nil || len(expected) == 0 {
		eventsRejected.WithLabelValues("signature").Inc()
		return nil, false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	if !hmac.Equal(mac.Sum(nil), expected) {
		eventsRejected.WithLabelValues("signature").Inc()
		return nil, false
	}
	return body, true
}
