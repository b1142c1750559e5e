package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/confhub/confsync/internal/config"
	"github.com/confhub/confsync/internal/markdown"
	"github.com/confhub/confsync/internal/sync"
	"github.com/confhub/confsync/internal/ui"
)

var pushCmd = &cobra.Command{
	Use:     "push <name> [file]",
	GroupID: "sync",
	Short:   "Publish local markdown edits to the remote page",
	Long: `Convert a local markdown file back to storage format and submit it as
the new body of the named page.

The page must be tracked with accessMode: read-write. Without a file
argument the page's own mirrored file is pushed. After a successful
update the page's tree is re-pulled with force, so the local mirror
reflects exactly what the server stored.

The push targets only the named page itself. Edits to child pages must
be pushed under their own tracked name.

Examples:
  confsync push runbook                # push the mirrored file
  confsync push runbook /tmp/draft.md  # push another file's content`,
	Args: cobra.RangeArgs(1, 2),
	Run: func(cmd *cobra.Command, args []string) {
		name := args[0]

		eng, err := openEngine(0, nil)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer eng.Close()

		doc, ok := eng.project.Document(name)
		if !ok {
			fmt.Fprintf(os.Stderr, "Error: %q is not a tracked document (check %s in %s)\n",
				name, config.SourcesFile, eng.project.Dir)
			os.Exit(1)
		}
		if doc.AccessMode != config.ReadWrite {
			fmt.Fprintf(os.Stderr, "Error: %s is read-only; set accessMode: read-write in %s to push it\n",
				name, config.SourcesFile)
			os.Exit(1)
		}

		file := filepath.Join(eng.project.Dir, doc.LocalPath)
		if len(args) == 2 {
			file = args[1]
		}
		md, err := os.ReadFile(file)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		content, err := markdown.ToStorage(string(md))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: convert %s: %v\n", file, err)
			os.Exit(1)
		}

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		fmt.Printf("%s Pushing %s from %s...\n", ui.RenderAccent("🔄"), name, file)

		res, err := eng.pusher.Push(ctx, eng.project, name, content)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			if errors.Is(err, sync.ErrVersionConflict) {
				fmt.Fprintf(os.Stderr, "The remote page changed since your last pull. Run 'confsync pull %s --force', reapply the edit, and push again.\n", name)
			}
			os.Exit(1)
		}

		fmt.Printf("%s Pushed %s: v%d -> v%d\n", ui.RenderPass("✓"), name, res.OldVersion, res.NewVersion)
		if res.RefreshErr != nil {
			fmt.Printf("%s Refreshing the local mirror failed: %v\n", ui.RenderWarn("⚠"), res.RefreshErr)
			fmt.Printf("   Run 'confsync pull %s --force' to reconverge.\n", name)
			return
		}
		fmt.Printf("   %s\n", ui.RenderDim("refresh: "+res.Refresh.Summary()))
	},
}

func init() {
	rootCmd.AddCommand(pushCmd)
}
