package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/confhub/confsync/internal/config"
	"github.com/confhub/confsync/internal/dashboard"
	"github.com/confhub/confsync/internal/logging"
	"github.com/confhub/confsync/internal/ui"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	GroupID: "advanced",
	Short:   "Serve a live dashboard for sync activity",
	Long: `Start a local web dashboard that streams sync events over a websocket.

The page shows per-document outcomes as passes run and a button that
triggers a pull of every tracked tree via POST /api/pull. Only one
triggered pass runs at a time; further requests are rejected until it
finishes.

Endpoints:
  /            dashboard page
  /ws          websocket event stream
  /health      JSON health summary
  /api/pull    POST starts a sync pass

Examples:
  confsync serve
  confsync serve --addr 0.0.0.0:9000`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		addr, _ := cmd.Flags().GetString("addr")

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

		cfg := dashboard.DefaultConfig()
		if addr != "" {
			cfg.Addr = addr
		}
		cfg.Project = proj.Name
		cfg.Documents = len(proj.Documents)
		cfg.Logger = logging.New("[serve] ")

		server := dashboard.NewServer(cfg)
		sink := dashboard.NewHandler(server, nil)

		eng, err := openEngine(0, sink)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer eng.Close()

		server.SetPullFunc(func(ctx context.Context) error {
			_, err := eng.puller.Sync(ctx, eng.project, "", false)
			return err
		})

		if err := server.Start(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to start dashboard: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("%s Dashboard on http://%s\n", ui.RenderAccent("📊"), server.GetAddr())
		fmt.Printf("   WebSocket: ws://%s/ws\n", server.GetAddr())
		fmt.Printf("   Health:    http://%s/health\n", server.GetAddr())
		fmt.Printf("\nPress Ctrl+C to stop\n")

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()
		<-ctx.Done()

		fmt.Println("\nShutting down dashboard...")
		if err := server.Stop(); err != nil {
			fmt.Fprintf(os.Stderr, "Error during shutdown: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("%s Dashboard stopped\n", ui.RenderPass("✓"))
	},
}

func init() {
	serveCmd.Flags().String("addr", "", "listen address (default 127.0.0.1:8787)")
	rootCmd.AddCommand(serveCmd)
}
