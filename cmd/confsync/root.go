package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/confhub/confsync/internal/ui"
)

var (
	flagProject string
	flagVerbose bool
	flagLogFile string
	flagNoColor bool
	flagStore   string
)

var rootCmd = &cobra.Command{
	Use:   "confsync",
	Short: "Sync Confluence page trees to local markdown and back",
	Long: `confsync mirrors Confluence page trees into a local directory of
markdown files and pushes local edits back to the pages they came from.

A project is a directory with a sources.yaml listing the tracked pages.
Each tracked page becomes a markdown file; child pages nest into
directories named after their parent. Sync state lives alongside the
mirror, so repeated pulls only fetch pages whose remote version moved.

Typical workflow:
  confsync init                # scaffold sources.yaml and .env.example
  confsync pull                # mirror every tracked tree
  confsync push runbook        # publish local edits to a read-write page
  confsync watch               # push read-write files as they change

Credentials come from CONFLUENCE_BASE_URL, CONFLUENCE_USERNAME and
CONFLUENCE_API_TOKEN, read from the environment or the project's .env.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if flagNoColor {
			ui.DisableColor()
		}
	},
}

// Execute runs the root command. Subcommand Run funcs exit directly on
// failure; this catches flag and usage errors.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&flagProject, "project", "p", ".", "project directory containing sources.yaml")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "log engine activity to stderr")
	rootCmd.PersistentFlags().StringVar(&flagLogFile, "log-file", "", "also append engine logs to this rolling file")
	rootCmd.PersistentFlags().BoolVar(&flagNoColor, "no-color", false, "disable colored output")
	rootCmd.PersistentFlags().StringVar(&flagStore, "store", "", "state backend override: json or sqlite")

	rootCmd.AddGroup(
		&cobra.Group{ID: "sync", Title: "Sync commands:"},
		&cobra.Group{ID: "project", Title: "Project commands:"},
		&cobra.Group{ID: "advanced", Title: "Advanced commands:"},
	)
}
