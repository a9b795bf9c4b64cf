// Package agent handles Claude Code subprocess execution
package agent

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/cloud-shuttle/muster/pkg/telemetry"
)

// ClaudeCLI runs prompts through the Claude Code CLI. Invocations have no
// timeout: agent runs legitimately take many minutes, and the orchestrator
// deliberately does not abort in-flight runs.
type ClaudeCLI struct {
	path    string
	verbose bool
}

// NewClaudeCLI creates a new Claude Code adapter
func NewClaudeCLI(path string) *ClaudeCLI {
	return &ClaudeCLI{path: path}
}

// SetVerbose enables or disables verbose logging
func (a *ClaudeCLI) SetVerbose(v bool) {
	a.verbose = v
}

// CheckInstalled verifies Claude Code is available
func (a *ClaudeCLI) CheckInstalled() error {
	cmd := exec.Command(a.path, "--version")
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("claude not found at %s: %w\n%s", a.path, err, output)
	}
	return nil
}

// RunPlanMode invokes the agent in plan mode: it may read the checkout but
// must not modify it. Returns the raw plan-mode output; classifying it as
// needing clarification is the caller's concern.
func (a *ClaudeCLI) RunPlanMode(ctx context.Context, prompt, workDir string) (string, error) {
	return a.run(ctx, telemetry.SpanAgentPlan, workDir, prompt,
		"--permission-mode", "plan")
}

// RunWriteMode invokes the agent with write access to the checkout.
func (a *ClaudeCLI) RunWriteMode(ctx context.Context, prompt, workDir string) (string, error) {
	return a.run(ctx, telemetry.SpanAgentWrite, workDir, prompt,
		"--dangerously-skip-permissions")
}

func (a *ClaudeCLI) run(ctx context.Context, spanName, workDir, prompt string, extraArgs ...string) (string, error) {
	_, span := telemetry.StartAgentSpan(ctx, spanName, workDir, len(prompt))
	defer span.End()

	if a.verbose {
		log.Printf("🤖 Sending prompt to Claude (length: %d chars)", len(prompt))
		log.Printf("📝 Prompt preview: %s", truncateString(prompt, 200))
	}

	// Use -p for non-interactive mode and pass the prompt as argument
	args := append([]string{"-p", prompt}, extraArgs...)
	cmd := exec.CommandContext(ctx, a.path, args...)
	cmd.Dir = workDir

	// Capture output while also streaming to stdout/stderr for real-time viewing
	var outputBuf, errBuf strings.Builder
	if a.verbose {
		cmd.Stdout = io.MultiWriter(os.Stdout, &outputBuf)
		cmd.Stderr = io.MultiWriter(os.Stderr, &errBuf)
	} else {
		cmd.Stdout = &outputBuf
		cmd.Stderr = &errBuf
	}

	start := time.Now()
	err := cmd.Run()
	duration := time.Since(start)

	fullOutput := outputBuf.String() + errBuf.String()

	if err != nil {
		telemetry.RecordError(span, err, "agent_execution")
		return fullOutput, fmt.Errorf("claude failed after %v: %w", duration, err)
	}

	if a.verbose {
		log.Printf("✅ Claude completed in %v", duration)
	}
	return fullOutput, nil
}

// truncateString truncates a string to a maximum length for logging
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
