package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/confhub/confsync/internal/sync"
	"github.com/confhub/confsync/internal/ui"
	"github.com/confhub/confsync/internal/vcs"
)

var pullCmd = &cobra.Command{
	Use:     "pull [name]",
	GroupID: "sync",
	Short:   "Mirror remote page trees into local markdown",
	Long: `Fetch tracked page trees and materialize them as markdown files.

Without arguments every tracked page in sources.yaml is pulled; with a
name only that page's tree is. Pages whose remote version matches the
sync record are skipped, so repeated pulls are cheap. Child pages nest
into a directory named after their parent file, and attachments land in
a sibling assets/ directory.

Examples:
  confsync pull                  # pull every tracked tree
  confsync pull runbook          # pull one tree
  confsync pull --force          # rewrite files even when unchanged
  confsync pull --jobs 8         # raise fetch concurrency
  confsync pull --commit         # git-commit the mirror afterwards`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		force, _ := cmd.Flags().GetBool("force")
		jobs, _ := cmd.Flags().GetInt("jobs")
		commit, _ := cmd.Flags().GetBool("commit")

		selector := ""
		if len(args) == 1 {
			selector = args[0]
		}

		eng, err := openEngine(jobs, nil)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer eng.Close()

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		target := eng.project.Name
		if selector != "" {
			target = selector
		}
		fmt.Printf("%s Pulling %s...\n", ui.RenderAccent("🔄"), target)

		rep, err := eng.puller.Sync(ctx, eng.project, selector, force)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		rep.SortByPath()
		for _, res := range rep.Results {
			switch res.Outcome {
			case sync.OutcomeCreated, sync.OutcomeUpdated:
				fmt.Printf("   %s %-7s %s (v%d)\n", ui.RenderPass("✓"), res.Outcome, res.Path, res.Version)
			case sync.OutcomeFailed:
				fmt.Printf("   %s %-7s %s: %v\n", ui.RenderFail("✗"), res.Outcome, displayPath(res), res.Err)
			case sync.OutcomeSkipped:
				if flagVerbose {
					fmt.Printf("   %s %-7s %s (v%d)\n", ui.RenderDim("·"), res.Outcome, res.Path, res.Version)
				}
			}
		}

		fmt.Printf("%s Pull complete in %v\n", ui.RenderPass("✓"), rep.Duration.Round(time.Millisecond))
		fmt.Printf("   %s\n", rep.Summary())

		if commit && rep.Count(sync.OutcomeCreated)+rep.Count(sync.OutcomeUpdated) > 0 {
			commitMirror(ctx, eng.project.Dir, rep)
		}

		if !rep.OK() {
			os.Exit(1)
		}
	},
}

// displayPath falls back to the remote id for nodes that failed before a
// local path was decided.
func displayPath(res sync.Result) string {
	if res.Path != "" {
		return res.Path
	}
	return res.RemoteID
}

// commitMirror stages and commits the project directory. Failures warn
// and return; a pull that cannot be committed is still a good pull.
func commitMirror(ctx context.Context, dir string, rep *sync.Report) {
	repo, err := vcs.Detect(dir)
	switch {
	case errors.Is(err, vcs.ErrGitNotAvailable):
		fmt.Printf("%s git not found in PATH, skipping commit\n", ui.RenderWarn("⚠"))
		return
	case errors.Is(err, vcs.ErrNoRepository):
		fmt.Printf("%s %s is not inside a git repository, skipping commit\n", ui.RenderWarn("⚠"), dir)
		return
	case err != nil:
		fmt.Printf("%s git detection failed: %v\n", ui.RenderWarn("⚠"), err)
		return
	}

	changed, err := repo.HasChanges()
	if err != nil {
		fmt.Printf("%s git status failed: %v\n", ui.RenderWarn("⚠"), err)
		return
	}
	if !changed {
		fmt.Printf("   %s\n", ui.RenderDim("mirror already committed"))
		return
	}

	msg := fmt.Sprintf("confsync pull: %s", rep.Summary())
	if err := repo.Commit(ctx, msg); err != nil {
		fmt.Printf("%s git commit failed: %v\n", ui.RenderWarn("⚠"), err)
		return
	}
	fmt.Printf("%s Committed mirror changes\n", ui.RenderPass("✓"))
}

func init() {
	pullCmd.Flags().Bool("force", false, "rematerialize documents even when versions match")
	pullCmd.Flags().Int("jobs", 0, "concurrent fetches (default from settings)")
	pullCmd.Flags().Bool("commit", false, "git-commit the mirror after a pass with changes")
	rootCmd.AddCommand(pullCmd)
}
