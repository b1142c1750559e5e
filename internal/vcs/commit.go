// Package vcs commits synced mirror changes into the git working copy
// that contains the project directory. Git is driven through its CLI;
// absence of the binary or a repository is reported through sentinel
// errors so callers can warn and continue.
package vcs

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
)

var (
	// ErrNoRepository means the project directory is not inside a git
	// working copy.
	ErrNoRepository = errors.New("not inside a git repository")

	// ErrGitNotAvailable means the git binary is not in PATH.
	ErrGitNotAvailable = errors.New("git binary not available")
)

// Repo is the git working copy containing one project directory.
// Operations are scoped to that directory, never the whole repository.
type Repo struct {
	root string // repository root
	dir  string // absolute project directory inside the repo
}

// Detect locates the git repository containing dir.
func Detect(dir string) (*Repo, error) {
	if _, err := exec.LookPath("git"); err != nil {
		return nil, ErrGitNotAvailable
	}

	cmd := exec.Command("git", "rev-parse", "--show-toplevel")
	cmd.Dir = dir
	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", dir, ErrNoRepository)
	}

	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", dir, err)
	}
	return &Repo{
		root: strings.TrimSpace(string(output)),
		dir:  abs,
	}, nil
}

// Root returns the repository root directory.
func (r *Repo) Root() string { return r.root }

// HasChanges reports whether the project directory holds uncommitted
// changes, untracked files included.
func (r *Repo) HasChanges() (bool, error) {
	cmd := exec.Command("git", "status", "--porcelain", "--", r.dir)
	cmd.Dir = r.root
	output, err := cmd.Output()
	if err != nil {
		return false, fmt.Errorf("git status failed: %w", err)
	}
	return len(strings.TrimSpace(string(output))) > 0, nil
}

// Commit stages everything under the project directory and commits it.
func (r *Repo) Commit(ctx context.Context, message string) error {
	if message == "" {
		return fmt.Errorf("commit message is required")
	}

	add := exec.CommandContext(ctx, "git", "add", "--", r.dir)
	add.Dir = r.root
	if output, err := add.CombinedOutput(); err != nil {
		return fmt.Errorf("git add failed: %w\n%s", err, string(output))
	}

	commit := exec.CommandContext(ctx, "git", "commit", "-m", message, "--", r.dir)
	commit.Dir = r.root
	if output, err := commit.CombinedOutput(); err != nil {
		return fmt.Errorf("git commit failed: %w\n%s", err, string(output))
	}
	return nil
}
