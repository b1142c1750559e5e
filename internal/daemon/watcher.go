// Package daemon watches the materialized files of writable documents
// and pushes local edits back to the remote as they settle.
package daemon

import (
	"fmt"
	"path/filepath"
	stdsync "sync"

	"github.com/fsnotify/fsnotify"
)

// EventOp is the kind of change seen on a registered file.
type EventOp int

const (
	// OpModify covers writes, creates, and renames onto the path.
	// Editors commonly save by writing a temp file and renaming it
	// over the target, so all three mean "the content changed".
	OpModify EventOp = iota
	// OpRemove means the file disappeared.
	OpRemove
)

func (op EventOp) String() string {
	switch op {
	case OpModify:
		return "modify"
	case OpRemove:
		return "remove"
	default:
		return "unknown"
	}
}

// FileEvent is a change to one registered document file.
type FileEvent struct {
	Path string // absolute path of the file
	Doc  string // tracked document name
	Op   EventOp
}

// FileWatcher maps fsnotify events onto registered document files.
// Directories are watched rather than the files themselves, because a
// rename-replace save breaks a watch on the file's inode.
type FileWatcher struct {
	watcher *fsnotify.Watcher
	events  chan FileEvent
	errors  chan error
	done    chan struct{}
	wg      stdsync.WaitGroup

	mu      stdsync.Mutex
	running bool
	files   map[string]string // absolute path -> document name
}

// NewFileWatcher creates a watcher. Register files, then Start.
func NewFileWatcher() (*FileWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}
	return &FileWatcher{
		watcher: w,
		events:  make(chan FileEvent, 100),
		errors:  make(chan error, 10),
		done:    make(chan struct{}),
		files:   map[string]string{},
	}, nil
}

// Register adds one document file to the watch set. Must be called
// before Start.
func (fw *FileWatcher) Register(path, doc string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", path, err)
	}

	fw.mu.Lock()
	defer fw.mu.Unlock()
	if fw.running {
		return fmt.Errorf("watcher already running")
	}
	fw.files[abs] = doc
	return nil
}

// Start watches the parent directories of all registered files and
// begins emitting events.
func (fw *FileWatcher) Start() error {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	if fw.running {
		return fmt.Errorf("watcher already running")
	}
	if len(fw.files) == 0 {
		return fmt.Errorf("no files registered")
	}

	dirs := map[string]bool{}
	for path := range fw.files {
		dirs[filepath.Dir(path)] = true
	}
	for dir := range dirs {
		if err := fw.watcher.Add(dir); err != nil {
			return fmt.Errorf("watch %s: %w", dir, err)
		}
	}

	fw.running = true
	fw.wg.Add(1)
	go fw.processEvents()
	return nil
}

// Stop shuts the watcher down and closes the event channels. It blocks
// until the event loop has exited.
func (fw *FileWatcher) Stop() error {
	fw.mu.Lock()
	if !fw.running {
		fw.mu.Unlock()
		return fw.watcher.Close()
	}
	fw.running = false
	fw.mu.Unlock()

	close(fw.done)
	err := fw.watcher.Close()
	fw.wg.Wait()
	close(fw.events)
	close(fw.errors)
	if err != nil {
		return fmt.Errorf("close watcher: %w", err)
	}
	return nil
}

// Events emits changes to registered files. Closed by Stop.
func (fw *FileWatcher) Events() <-chan FileEvent {
	return fw.events
}

// Errors emits watcher failures. Closed by Stop.
func (fw *FileWatcher) Errors() <-chan error {
	return fw.errors
}

// IsRunning reports whether Start has been called and Stop has not.
func (fw *FileWatcher) IsRunning() bool {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	return fw.running
}

func (fw *FileWatcher) processEvents() {
	defer fw.wg.Done()

	for {
		select {
		case <-fw.done:
			return

		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			if fe, ok := fw.convertEvent(event); ok {
				select {
				case fw.events <- fe:
				case <-fw.done:
					return
				}
			}

		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			select {
			case fw.errors <- err:
			case <-fw.done:
				return
			}
		}
	}
}

// convertEvent keeps only events on registered files. Sibling files in
// the watched directories, including editor temp files, are dropped.
func (fw *FileWatcher) convertEvent(event fsnotify.Event) (FileEvent, bool) {
	abs, err := filepath.Abs(event.Name)
	if err != nil {
		return FileEvent{}, false
	}

	fw.mu.Lock()
	doc, registered := fw.files[abs]
	fw.mu.Unlock()
	if !registered {
		return FileEvent{}, false
	}

	var op EventOp
	switch {
	case event.Has(fsnotify.Write), event.Has(fsnotify.Create), event.Has(fsnotify.Rename):
		op = OpModify
	case event.Has(fsnotify.Remove):
		op = OpRemove
	default:
		// Chmod and friends carry no content change.
		return FileEvent{}, false
	}

	return FileEvent{Path: abs, Doc: doc, Op: op}, true
}
