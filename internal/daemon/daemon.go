package daemon

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	stdsync "sync"
	"time"

	"github.com/confhub/confsync/internal/config"
)

// Config holds daemon tuning.
type Config struct {
	// DebounceInterval is how long a file must sit quiet before its
	// change is pushed. Editors produce bursts of events per save.
	DebounceInterval time.Duration

	// QuietAfterPush suppresses events queued within this window after
	// a push. The push's own refresh rewrites the watched file, and
	// without the window that rewrite would trigger the next push.
	QuietAfterPush time.Duration

	Logger *log.Logger
}

// DefaultConfig returns the intervals used by confsync watch.
func DefaultConfig() *Config {
	return &Config{
		DebounceInterval: 2 * time.Second,
		QuietAfterPush:   5 * time.Second,
		Logger:           log.New(os.Stderr, "[watch] ", log.LstdFlags),
	}
}

// PushFunc submits one document's local markdown to the remote. The
// daemon stays unaware of wire formats; the caller converts and pushes.
type PushFunc func(ctx context.Context, name, markdown string) error

// Daemon watches the writable documents of one project and pushes
// their edits after a debounce.
type Daemon struct {
	project *config.Project
	push    PushFunc
	config  *Config
	watcher *FileWatcher
	files   map[string]string // absolute path -> document name

	mu          stdsync.Mutex
	changeQueue map[string]time.Time // absolute path -> last event
	quietUntil  map[string]time.Time // absolute path -> suppress before

	ctx    context.Context
	cancel context.CancelFunc
	wg     stdsync.WaitGroup
}

// New builds a daemon over the project's ReadWrite documents. A project
// with no writable documents is an error: there would be nothing to
// watch.
func New(proj *config.Project, push PushFunc, cfg *Config) (*Daemon, error) {
	if push == nil {
		return nil, fmt.Errorf("push func cannot be nil")
	}
	if cfg == nil {
		cfg = DefaultConfig()
	}

	files := map[string]string{}
	for _, doc := range proj.Documents {
		if doc.AccessMode != config.ReadWrite {
			continue
		}
		abs, err := filepath.Abs(filepath.Join(proj.Dir, doc.LocalPath))
		if err != nil {
			return nil, fmt.Errorf("resolve %s: %w", doc.LocalPath, err)
		}
		files[abs] = doc.Name
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no read-write documents in project %s, nothing to watch", proj.Name)
	}

	watcher, err := NewFileWatcher()
	if err != nil {
		return nil, err
	}
	for path, name := range files {
		if err := watcher.Register(path, name); err != nil {
			watcher.Stop()
			return nil, err
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Daemon{
		project:     proj,
		push:        push,
		config:      cfg,
		watcher:     watcher,
		files:       files,
		changeQueue: map[string]time.Time{},
		quietUntil:  map[string]time.Time{},
		ctx:         ctx,
		cancel:      cancel,
	}, nil
}

// Start runs the daemon until ctx is canceled.
func (d *Daemon) Start(ctx context.Context) error {
	if err := d.watcher.Start(); err != nil {
		return err
	}
	for path, name := range d.files {
		d.config.Logger.Printf("watching %s (%s)", path, name)
	}

	d.wg.Add(2)
	go d.collectEvents()
	go d.processChangeQueue()

	select {
	case <-ctx.Done():
		d.config.Logger.Println("shutting down")
		return d.Stop()
	case <-d.ctx.Done():
		return nil
	}
}

// Stop shuts the daemon down and waits for in-flight work.
func (d *Daemon) Stop() error {
	d.cancel()
	err := d.watcher.Stop()
	d.wg.Wait()
	return err
}

func (d *Daemon) collectEvents() {
	defer d.wg.Done()

	for {
		select {
		case <-d.ctx.Done():
			return

		case ev, ok := <-d.watcher.Events():
			if !ok {
				return
			}
			if ev.Op == OpRemove {
				// A rename-replace save recreates the file right
				// after; a real deletion leaves nothing to push.
				continue
			}
			d.queueChange(ev.Path)

		case err, ok := <-d.watcher.Errors():
			if !ok {
				return
			}
			d.config.Logger.Printf("watcher error: %v", err)
		}
	}
}

func (d *Daemon) queueChange(path string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.changeQueue[path] = time.Now()
}

func (d *Daemon) processChangeQueue() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.DebounceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return
		case <-ticker.C:
			d.processPendingChanges()
		}
	}
}

// processPendingChanges pushes files whose last event has settled.
// Pushes run outside the queue lock so new events keep queueing while
// a slow push is in flight.
func (d *Daemon) processPendingChanges() {
	type change struct {
		path string
		doc  string
	}

	now := time.Now()
	var ripe []change

	d.mu.Lock()
	for path, queuedAt := range d.changeQueue {
		if now.Sub(queuedAt) < d.config.DebounceInterval {
			continue
		}
		delete(d.changeQueue, path)
		if queuedAt.Before(d.quietUntil[path]) {
			d.config.Logger.Printf("settling after push, ignoring change to %s", path)
			continue
		}
		ripe = append(ripe, change{path: path, doc: d.files[path]})
	}
	d.mu.Unlock()

	for _, c := range ripe {
		d.pushFile(c.path, c.doc)
	}
}

func (d *Daemon) pushFile(path, doc string) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			d.config.Logger.Printf("%s removed locally, not pushing", path)
		} else {
			d.config.Logger.Printf("read %s: %v", path, err)
		}
		return
	}

	d.config.Logger.Printf("pushing %s", doc)
	if err := d.push(d.ctx, doc, string(data)); err != nil {
		d.config.Logger.Printf("push %s: %v", doc, err)
		return
	}

	d.mu.Lock()
	d.quietUntil[path] = time.Now().Add(d.config.QuietAfterPush)
	d.mu.Unlock()
}
