package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/confhub/confsync/internal/config"
	"github.com/confhub/confsync/internal/state"
	"github.com/confhub/confsync/internal/ui"
)

var stateCmd = &cobra.Command{
	Use:     "state",
	GroupID: "advanced",
	Short:   "Manage the sync record store",
}

var stateMigrateCmd = &cobra.Command{
	Use:   "migrate --to <backend>",
	Short: "Copy sync records to another store backend",
	Long: `Copy every sync record from the current store backend into another.

The source backend comes from the project settings (or --store); --to
names the destination. The source is left untouched; after migrating,
set "store" in confsync-settings.yaml so future runs use the new
backend.

Example:
  confsync state migrate --to sqlite`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		to, _ := cmd.Flags().GetString("to")
		if to != state.BackendJSON && to != state.BackendSQLite {
			fmt.Fprintf(os.Stderr, "Error: --to must be %q or %q\n", state.BackendJSON, state.BackendSQLite)
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

		from := settings.Store
		if flagStore != "" {
			from = flagStore
		}
		if from == "" {
			from = state.BackendJSON
		}
		if from == to {
			fmt.Fprintf(os.Stderr, "Error: store is already %s\n", to)
			os.Exit(1)
		}

		src, err := state.Open(from, proj.Dir)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: open %s store: %v\n", from, err)
			os.Exit(1)
		}
		defer src.Close()

		dst, err := state.Open(to, proj.Dir)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: open %s store: %v\n", to, err)
			os.Exit(1)
		}
		defer dst.Close()

		n, err := state.Copy(context.Background(), src, dst)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("%s Migrated %d records from %s to %s\n", ui.RenderPass("✓"), n, from, to)
		fmt.Printf("   Set \"store: %s\" in %s.yaml to switch over.\n", to, config.SettingsName)
	},
}

func init() {
	stateMigrateCmd.Flags().String("to", "", "destination backend: json or sqlite")
	stateMigrateCmd.MarkFlagRequired("to")
	stateCmd.AddCommand(stateMigrateCmd)
	rootCmd.AddCommand(stateCmd)
}
