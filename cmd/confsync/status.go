package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
	"github.com/spf13/cobra"

	"github.com/confhub/confsync/internal/config"
	"github.com/confhub/confsync/internal/state"
	"github.com/confhub/confsync/internal/ui"
)

var statusCmd = &cobra.Command{
	Use:     "status",
	GroupID: "sync",
	Short:   "Show sync state and recent activity",
	Long: `List every tracked document with its last synced version, when it was
synced, and where the mirror lives, followed by recent journal entries.

--since accepts natural-language expressions ("2 days ago", "last
monday", "yesterday") or an RFC 3339 timestamp. The default window is
the last 24 hours.

Status is entirely local: it reads the sync records and the journal,
never the remote.

Examples:
  confsync status
  confsync status --since "last friday"
  confsync status --since 2026-08-20T00:00:00Z`,
	Run: func(cmd *cobra.Command, args []string) {
		sinceExpr, _ := cmd.Flags().GetString("since")

		cutoff, err := parseSince(sinceExpr)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		settings, err := config.LoadSettings(flagProject)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		proj, err := config.Load(flagProject, settings)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		backend := settings.Store
		if flagStore != "" {
			backend = flagStore
		}
		store, err := state.Open(backend, proj.Dir)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer store.Close()

		records, err := store.All(context.Background())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("\n%s %s: %d tracked documents (%s store)\n\n",
			ui.RenderAccent("📊"), proj.Name, len(proj.Documents), backendName(backend))

		tracked := make(map[string]bool, len(proj.Documents))
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "DOCUMENT\tACCESS\tVERSION\tSYNCED\tPATH")
		for _, doc := range proj.Documents {
			tracked[doc.RemoteID] = true
			rec, ok := records[doc.RemoteID]
			if !ok {
				fmt.Fprintf(w, "%s\t%s\t-\tnever\t-\n", doc.Name, doc.AccessMode)
				continue
			}
			fmt.Fprintf(w, "%s\t%s\tv%d\t%s\t%s\n",
				doc.Name, doc.AccessMode, rec.Version, humanizeSince(rec.SyncedAt), rec.LocalPath)
		}
		w.Flush()

		// Child pages record under their own ids, so only former roots
		// can be identified by path.
		untracked := untrackedRoots(proj, records, tracked)
		if len(untracked) > 0 {
			fmt.Printf("\n%s\n", ui.RenderWarn("No longer tracked (records kept, files untouched):"))
			for _, id := range untracked {
				rec := records[id]
				fmt.Printf("   %s\n", ui.RenderDim(fmt.Sprintf("%s v%d %s", id, rec.Version, rec.LocalPath)))
			}
		}

		journal := state.OpenJournal(proj.Dir)
		entries, err := journal.ReadSince(cutoff)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("\nActivity since %s:\n", cutoff.Local().Format("2006-01-02 15:04"))
		if len(entries) == 0 {
			fmt.Printf("   %s\n\n", ui.RenderDim("none"))
			return
		}
		for _, e := range entries {
			line := fmt.Sprintf("%s %-4s %s", e.Time.Local().Format("01-02 15:04:05"), e.Op, entryTarget(e))
			if e.Version > 0 {
				line += fmt.Sprintf(" v%d", e.Version)
			}
			switch {
			case e.Error != "":
				fmt.Printf("   %s %s %s: %s\n", ui.RenderFail("✗"), line, e.Outcome, e.Error)
			case e.Outcome == "skipped":
				fmt.Printf("   %s\n", ui.RenderDim(fmt.Sprintf("· %s %s", line, e.Outcome)))
			default:
				fmt.Printf("   %s %s %s\n", ui.RenderPass("✓"), line, e.Outcome)
			}
		}
		fmt.Println()
	},
}

// parseSince resolves --since: natural language first, RFC 3339 second.
// Empty means the last 24 hours.
func parseSince(expr string) (time.Time, error) {
	if expr == "" {
		return time.Now().Add(-24 * time.Hour), nil
	}

	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	if r, err := w.Parse(expr, time.Now()); err == nil && r != nil {
		return r.Time, nil
	}

	t, err := time.Parse(time.RFC3339, expr)
	if err != nil {
		return time.Time{}, fmt.Errorf("cannot parse --since %q (try \"2 days ago\" or RFC 3339)", expr)
	}
	return t, nil
}

// untrackedRoots returns record ids that are neither configured roots
// nor inside any current root's child directory, sorted for stable
// output.
func untrackedRoots(proj *config.Project, records map[string]state.Record, tracked map[string]bool) []string {
	prefixes := make([]string, 0, len(proj.Documents))
	for _, doc := range proj.Documents {
		stem := strings.TrimSuffix(doc.LocalPath, filepath.Ext(doc.LocalPath))
		prefixes = append(prefixes, stem+string(filepath.Separator))
	}

	var out []string
	for id, rec := range records {
		if tracked[id] {
			continue
		}
		inside := false
		for _, p := range prefixes {
			if strings.HasPrefix(rec.LocalPath, p) {
				inside = true
				break
			}
		}
		if !inside {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

// entryTarget prefers the configured name over the raw remote id.
func entryTarget(e state.JournalEntry) string {
	if e.Root != "" {
		return e.Root
	}
	return e.RemoteID
}

func backendName(backend string) string {
	if backend == "" {
		return state.BackendJSON
	}
	return backend
}

func humanizeSince(t time.Time) string {
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}

func init() {
	statusCmd.Flags().String("since", "", "journal window: natural language or RFC 3339")
	rootCmd.AddCommand(statusCmd)
}
