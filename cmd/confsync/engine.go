package main

import (
	"fmt"
	"os"

	"github.com/confhub/confsync/internal/config"
	"github.com/confhub/confsync/internal/confluence"
	"github.com/confhub/confsync/internal/logging"
	"github.com/confhub/confsync/internal/markdown"
	"github.com/confhub/confsync/internal/state"
	"github.com/confhub/confsync/internal/sync"
)

// engine bundles the wired sync stack for one project so commands share
// a single setup path.
type engine struct {
	settings config.Settings
	project  *config.Project
	store    state.Store
	journal  *state.Journal
	logs     *logging.Factory
	gateway  *confluence.Client
	puller   *sync.Puller
	pusher   *sync.Pusher
}

// openEngine loads the project selected by --project and wires the full
// pull/push stack. workers overrides the configured fetch concurrency
// when positive; sink may be nil.
func openEngine(workers int, sink sync.EventSink) (*engine, error) {
	settings, err := config.LoadSettings(flagProject)
	if err != nil {
		return nil, err
	}
	proj, err := config.Load(flagProject, settings)
	if err != nil {
		return nil, err
	}
	creds, err := config.LoadCredentials(flagProject)
	if err != nil {
		return nil, err
	}

	backend := settings.Store
	if flagStore != "" {
		backend = flagStore
	}
	store, err := state.Open(backend, proj.Dir)
	if err != nil {
		return nil, err
	}

	logs := logging.NewFactory(flagLogFile, flagVerbose)
	journal := state.OpenJournal(proj.Dir)
	gateway := confluence.NewClient(creds, logs.Logger("[api] "))

	cfg := sync.DefaultPullerConfig()
	if settings.Workers > 0 {
		cfg.Workers = settings.Workers
	}
	if workers > 0 {
		cfg.Workers = workers
	}
	cfg.Convert = markdown.ToMarkdown
	cfg.Journal = journal
	cfg.Events = sink
	cfg.Logger = logs.Logger("[sync] ")

	puller := sync.NewPuller(gateway, store, cfg)
	pusher := sync.NewPusher(gateway, puller, sink, logs.Logger("[push] "))

	return &engine{
		settings: settings,
		project:  proj,
		store:    store,
		journal:  journal,
		logs:     logs,
		gateway:  gateway,
		puller:   puller,
		pusher:   pusher,
	}, nil
}

// Close releases the state store and the log file.
func (e *engine) Close() {
	if err := e.store.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: closing state store: %v\n", err)
	}
	e.logs.Close()
}
