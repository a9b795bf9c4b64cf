// Package scm handles git checkouts, branches, and pull requests for Muster.
//
// All operations shell out to git and the gh CLI, the same way the agent
// itself interacts with the repository. The checkout directory for a work
// key is stable across phases: planning creates it and every later phase
// reuses it.
package scm

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/cloud-shuttle/muster/internal/locks"
)

// Git manages local checkouts and the hosted side of pull requests.
type Git struct {
	baseDir    string
	baseBranch string
	verbose    bool
}

// New creates a Git adapter rooted at baseDir.
func New(baseDir, baseBranch string) *Git {
	return &Git{baseDir: baseDir, baseBranch: baseBranch}
}

// SetVerbose enables or disables verbose logging
func (g *Git) SetVerbose(v bool) {
	g.verbose = v
}

var unsafePathChars = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// CheckoutPath returns the stable local directory for a work key.
func (g *Git) CheckoutPath(workKey string) string {
	name := workKey
	if i := strings.LastIndexAny(name, "/:"); i >= 0 {
		name = name[i+1:]
	}
	name = strings.TrimSuffix(name, ".git")
	name = unsafePathChars.ReplaceAllString(name, "-")
	if name == "" {
		name = "checkout"
	}
	return filepath.Join(g.baseDir, name)
}

// EnsureCheckout clones the repository for workKey if needed and returns
// the local path. An existing checkout is refreshed with a fetch rather
// than recloned.
func (g *Git) EnsureCheckout(ctx context.Context, workKey string) (string, error) {
	path := g.CheckoutPath(workKey)

	if _, err := os.Stat(filepath.Join(path, ".git")); err == nil {
		if out, err := g.git(ctx, path, "fetch", "--prune", "origin"); err != nil {
			return "", fmt.Errorf("fetching origin: %w\n%s", err, out)
		}
		return path, nil
	}

	if err := os.MkdirAll(g.baseDir, 0o755); err != nil {
		return "", fmt.Errorf("creating checkout directory: %w", err)
	}
	if out, err := g.git(ctx, "", "clone", workKey, path); err != nil {
		return "", fmt.Errorf("cloning %s: %w\n%s", workKey, err, out)
	}
	return path, nil
}

// SwitchOrCreateBranch checks out the named branch, reusing it when it
// already exists locally or on the remote. Returns true only when a new
// branch was created. Reuse is what makes the implementation phase
// re-entrant after a crash or redeploy.
func (g *Git) SwitchOrCreateBranch(ctx context.Context, path, name string) (bool, error) {
	// Local branch exists: switch and fast-forward if the remote has it.
	if _, err := g.git(ctx, path, "rev-parse", "--verify", "--quiet", "refs/heads/"+name); err == nil {
		if out, err := g.git(ctx, path, "checkout", name); err != nil {
			return false, fmt.Errorf("checking out %s: %w\n%s", name, err, out)
		}
		// Best effort; the remote branch may not exist yet.
		if out, err := g.git(ctx, path, "pull", "--ff-only", "origin", name); err != nil && g.verbose {
			log.Printf("📭 No fast-forward for %s: %v\n%s", name, err, out)
		}
		return false, nil
	}

	// Remote branch exists: track it.
	if _, err := g.git(ctx, path, "ls-remote", "--exit-code", "--heads", "origin", name); err == nil {
		if out, err := g.git(ctx, path, "checkout", "--track", "origin/"+name); err != nil {
			return false, fmt.Errorf("tracking origin/%s: %w\n%s", name, err, out)
		}
		return false, nil
	}

	// Fresh branch off an up-to-date base.
	if out, err := g.git(ctx, path, "checkout", g.baseBranch); err != nil {
		return false, fmt.Errorf("checking out %s: %w\n%s", g.baseBranch, err, out)
	}
	if out, err := g.git(ctx, path, "pull", "--ff-only", "origin", g.baseBranch); err != nil && g.verbose {
		log.Printf("📭 No fast-forward for %s: %v\n%s", g.baseBranch, err, out)
	}
	if out, err := g.git(ctx, path, "checkout", "-b", name); err != nil {
		return false, fmt.Errorf("creating branch %s: %w\n%s", name, err, out)
	}
	return true, nil
}

// CommitAndPush stages and commits everything in the checkout, then pushes
// the current branch. A clean working tree is not an error: the commit is
// skipped, the push still runs (it picks up commits from a crashed earlier
// attempt), and hasChanges reports false.
func (g *Git) CommitAndPush(ctx context.Context, path, message string) (bool, error) {
	out, err := g.git(ctx, path, "status", "--porcelain")
	if err != nil {
		return false, fmt.Errorf("checking status: %w\n%s", err, out)
	}

	hasChanges := strings.TrimSpace(out) != ""
	if hasChanges {
		if out, err := g.git(ctx, path, "add", "-A"); err != nil {
			return false, fmt.Errorf("staging changes: %w\n%s", err, out)
		}
		if out, err := g.git(ctx, path, "commit", "-m", message); err != nil {
			// The working tree can race to clean between the status
			// check and the commit; that is not a failure.
			if strings.Contains(out, "nothing to commit") {
				hasChanges = false
			} else {
				return false, fmt.Errorf("committing: %w\n%s", err, out)
			}
		}
	} else if g.verbose {
		log.Printf("📭 No changes to commit in %s", path)
	}

	if out, err := g.git(ctx, path, "push", "-u", "origin", "HEAD"); err != nil {
		return false, fmt.Errorf("pushing: %w\n%s", err, out)
	}
	return hasChanges, nil
}

// DiffAgainstBase returns the diff of the current branch against the merge
// base with the base branch.
func (g *Git) DiffAgainstBase(ctx context.Context, path string) (string, error) {
	out, err := g.git(ctx, path, "diff", g.baseBranch+"...HEAD")
	if err != nil {
		return "", fmt.Errorf("diffing against %s: %w\n%s", g.baseBranch, err, out)
	}
	return out, nil
}

// OpenPullRequest opens a PR for the current branch and returns its URL.
// If a PR already exists for the branch, its URL is returned instead.
func (g *Git) OpenPullRequest(ctx context.Context, path, title, body string) (string, error) {
	out, err := g.gh(ctx, path, "pr", "create",
		"--title", title,
		"--body", body,
		"--base", g.baseBranch)
	if err != nil {
		if strings.Contains(out, "already exists") {
			url, viewErr := g.gh(ctx, path, "pr", "view", "--json", "url", "--jq", ".url")
			if viewErr != nil {
				return "", fmt.Errorf("looking up existing PR: %w\n%s", viewErr, url)
			}
			return strings.TrimSpace(url), nil
		}
		return "", fmt.Errorf("creating PR: %w\n%s", err, out)
	}

	// gh prints the PR URL as the final output line.
	lines := strings.Split(strings.TrimSpace(out), "\n")
	return strings.TrimSpace(lines[len(lines)-1]), nil
}

// PRBranch resolves the head branch of a pull request.
func (g *Git) PRBranch(ctx context.Context, key locks.Key) (string, error) {
	out, err := g.gh(ctx, "", "pr", "view", fmt.Sprintf("%d", key.Number),
		"--repo", key.Org+"/"+key.Repo,
		"--json", "headRefName", "--jq", ".headRefName")
	if err != nil {
		return "", fmt.Errorf("resolving branch for %s: %w\n%s", key, err, out)
	}
	return strings.TrimSpace(out), nil
}

// CommentOnPR posts a top-level comment on a pull request.
func (g *Git) CommentOnPR(ctx context.Context, key locks.Key, body string) error {
	out, err := g.gh(ctx, "", "pr", "comment", fmt.Sprintf("%d", key.Number),
		"--repo", key.Org+"/"+key.Repo,
		"--body", body)
	if err != nil {
		return fmt.Errorf("commenting on %s: %w\n%s", key, err, out)
	}
	return nil
}

// ReplyToReviewComment replies in the same inline review thread the
// trigger came from.
func (g *Git) ReplyToReviewComment(ctx context.Context, key locks.Key, commentID, body string) error {
	out, err := g.gh(ctx, "", "api",
		fmt.Sprintf("repos/%s/%s/pulls/comments/%s/replies", key.Org, key.Repo, commentID),
		"-f", "body="+body)
	if err != nil {
		return fmt.Errorf("replying to review comment on %s: %w\n%s", key, err, out)
	}
	return nil
}

func (g *Git) git(ctx context.Context, dir string, args ...string) (string, error) {
	return g.runCmd(ctx, dir, "git", args...)
}

func (g *Git) gh(ctx context.Context, dir string, args ...string) (string, error) {
	return g.runCmd(ctx, dir, "gh", args...)
}

func (g *Git) runCmd(ctx context.Context, dir, bin string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, bin, args...)
	if dir != "" {
		cmd.Dir = dir
	}
	output, err := cmd.CombinedOutput()
	if g.verbose {
		log.Printf("🔧 %s %s (dir=%s)", bin, strings.Join(args, " "), dir)
	}
	return string(output), err
}
