package vcs

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
)

func requireGit(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
}

func gitRun(t *testing.T, dir string, args ...string) {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	if output, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("git %v: %v\n%s", args, err, output)
	}
}

// initRepo creates a git repository with a project subdirectory.
func initRepo(t *testing.T) (repoRoot, projectDir string) {
	t.Helper()
	requireGit(t)

	repoRoot = t.TempDir()
	gitRun(t, repoRoot, "init", "-q")
	gitRun(t, repoRoot, "config", "user.email", "sync@example.com")
	gitRun(t, repoRoot, "config", "user.name", "confsync test")
	gitRun(t, repoRoot, "config", "commit.gpgsign", "false")

	projectDir = filepath.Join(repoRoot, "docs")
	if err := os.MkdirAll(projectDir, 0o755); err != nil {
		t.Fatal(err)
	}
	return repoRoot, projectDir
}

func TestDetect(t *testing.T) {
	repoRoot, projectDir := initRepo(t)

	repo, err := Detect(projectDir)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}

	// git may report the root through a resolved symlink (macOS /tmp).
	want, _ := filepath.EvalSymlinks(repoRoot)
	got, _ := filepath.EvalSymlinks(repo.Root())
	if got != want {
		t.Errorf("root = %q, want %q", got, want)
	}
}

func TestDetectOutsideRepository(t *testing.T) {
	requireGit(t)

	_, err := Detect(t.TempDir())
	if !errors.Is(err, ErrNoRepository) {
		t.Errorf("err = %v, want ErrNoRepository", err)
	}
}

func TestCommitScopedToProject(t *testing.T) {
	repoRoot, projectDir := initRepo(t)

	repo, err := Detect(projectDir)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}

	changed, err := repo.HasChanges()
	if err != nil {
		t.Fatalf("HasChanges: %v", err)
	}
	if changed {
		t.Fatal("fresh project directory should have no changes")
	}

	if err := os.WriteFile(filepath.Join(projectDir, "guide.md"), []byte("# guide\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	// A file outside the project directory must not be swept up.
	if err := os.WriteFile(filepath.Join(repoRoot, "unrelated.txt"), []byte("keep out\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	changed, err = repo.HasChanges()
	if err != nil {
		t.Fatalf("HasChanges: %v", err)
	}
	if !changed {
		t.Fatal("new mirror file should count as a change")
	}

	if err := repo.Commit(context.Background(), "sync docs: 1 created"); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	changed, err = repo.HasChanges()
	if err != nil {
		t.Fatalf("HasChanges: %v", err)
	}
	if changed {
		t.Error("project directory should be clean after commit")
	}

	// The unrelated file stays uncommitted.
	status := exec.Command("git", "status", "--porcelain", "--", "unrelated.txt")
	status.Dir = repoRoot
	output, err := status.Output()
	if err != nil {
		t.Fatal(err)
	}
	if len(output) == 0 {
		t.Error("file outside the project directory was committed")
	}
}

func TestCommitRequiresMessage(t *testing.T) {
	_, projectDir := initRepo(t)

	repo, err := Detect(projectDir)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if err := repo.Commit(context.Background(), ""); err == nil {
		t.Error("empty commit message should be rejected")
	}
}
