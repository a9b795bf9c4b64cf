// Package telemetry provides OpenTelemetry observability for Muster
package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// tracer is the global tracer for Muster
var tracer = otel.Tracer("muster")

// Span names for Muster operations
const (
	// Phase spans
	SpanPhasePlanning  = "muster.phase.planning"
	SpanPhaseFollowUp  = "muster.phase.followup"
	SpanPhaseImplement = "muster.phase.implement"
	SpanPhaseReview    = "muster.phase.review"
	SpanPhasePRComment = "muster.phase.pr_comment"

	// Agent spans
	SpanAgentPlan  = "muster.agent.plan"
	SpanAgentWrite = "muster.agent.write"

	// SCM spans
	SpanCheckout = "muster.scm.checkout"
	SpanCommit   = "muster.scm.commit_push"
	SpanOpenPR   = "muster.scm.open_pr"
)

// StartPhaseSpan starts a span for a phase job keyed by issue
func StartPhaseSpan(ctx context.Context, name, issueID string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs, attribute.String(KeyIssueID, issueID))
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// StartAgentSpan starts a span for a coding-agent invocation
func StartAgentSpan(ctx context.Context, name, workDir string, promptLen int) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(
		attribute.String(KeyWorkDir, workDir),
		attribute.Int(KeyPromptLength, promptLen),
	))
}

// StartPRSpan starts a span for a pull-request scoped operation
func StartPRSpan(ctx context.Context, name, prKey string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs, attribute.String(KeyPRKey, prKey))
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// RecordError records an error on a span with an error type
func RecordError(span trace.Span, err error, errorType string) {
	if err == nil {
		return
	}
	span.RecordError(err, trace.WithAttributes(
		attribute.String("exception.type", errorType),
	))
	span.SetStatus(codes.Error, err.Error())
}

// SetState records the issue's lifecycle state on a span
func SetState(span trace.Span, state string) {
	span.SetAttributes(attribute.String(KeyIssueState, state))
}

// SetStep records the plan step being worked on
func SetStep(span trace.Span, number int) {
	span.SetAttributes(attribute.Int(KeyStepNumber, number))
}

// GetTraceID returns the trace ID from context if available
func GetTraceID(ctx context.Context) string {
	span := trace.SpanFromContext(ctx)
	if span.SpanContext().IsValid() {
		return span.SpanContext().TraceID().String()
	}
	return ""
}
