package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/confhub/confsync/internal/config"
	"github.com/confhub/confsync/internal/daemon"
	"github.com/confhub/confsync/internal/logging"
	"github.com/confhub/confsync/internal/markdown"
	"github.com/confhub/confsync/internal/ui"
)

var watchCmd = &cobra.Command{
	Use:     "watch",
	GroupID: "sync",
	Short:   "Watch read-write files and push edits as they settle",
	Long: `Run a foreground daemon that watches the mirrored files of read-write
documents and pushes each one after its edits settle.

Saves are debounced: a file must sit quiet for the debounce interval
before it is pushed, so editor write bursts collapse into one push.
After a push the daemon briefly ignores the watched file while the
forced refresh rewrites it.

Read-only documents are never watched. Stop with Ctrl+C.

Examples:
  confsync watch
  confsync watch --debounce 5s`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		debounce, _ := cmd.Flags().GetDuration("debounce")

		eng, err := openEngine(0, nil)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer eng.Close()

		push := func(ctx context.Context, name, md string) error {
			content, err := markdown.ToStorage(md)
			if err != nil {
				return fmt.Errorf("convert %s: %w", name, err)
			}
			res, err := eng.pusher.Push(ctx, eng.project, name, content)
			if err != nil {
				return err
			}
			fmt.Printf("%s Pushed %s: v%d -> v%d\n", ui.RenderPass("✓"), name, res.OldVersion, res.NewVersion)
			if res.RefreshErr != nil {
				fmt.Printf("%s Refreshing %s failed: %v\n", ui.RenderWarn("⚠"), name, res.RefreshErr)
			}
			return nil
		}

		dcfg := daemon.DefaultConfig()
		if debounce > 0 {
			dcfg.DebounceInterval = debounce
		}
		dcfg.Logger = logging.New("[watch] ")

		d, err := daemon.New(eng.project, push, dcfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			fmt.Fprintf(os.Stderr, "Watching needs at least one document with accessMode: read-write in %s\n", config.SourcesFile)
			os.Exit(1)
		}

		fmt.Printf("%s Watching %s for local edits\n", ui.RenderAccent("👁"), eng.project.Name)
		for _, doc := range eng.project.Documents {
			if doc.AccessMode == config.ReadWrite {
				fmt.Printf("   %s -> %s\n", doc.LocalPath, doc.Name)
			}
		}
		fmt.Printf("   debounce %v\n", dcfg.DebounceInterval.Round(time.Millisecond))
		fmt.Printf("\nPress Ctrl+C to stop\n\n")

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		if err := d.Start(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("\n%s Watch daemon stopped\n", ui.RenderPass("✓"))
	},
}

func init() {
	watchCmd.Flags().Duration("debounce", 0, "quiet period before a changed file is pushed (default 2s)")
	rootCmd.AddCommand(watchCmd)
}
