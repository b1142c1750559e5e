package daemon

import (
	"context"
	"io"
	"log"
	"os"
	"path/filepath"
	stdsync "sync"
	"testing"
	"time"

	"github.com/confhub/confsync/internal/config"
)

type pushRecorder struct {
	mu     stdsync.Mutex
	names  []string
	bodies []string
	// onPush runs inside the push, before it returns. Tests use it to
	// simulate the refresh rewriting the watched file.
	onPush func()
}

func (r *pushRecorder) push(ctx context.Context, name, markdown string) error {
	r.mu.Lock()
	r.names = append(r.names, name)
	r.bodies = append(r.bodies, markdown)
	onPush := r.onPush
	r.mu.Unlock()
	if onPush != nil {
		onPush()
	}
	return nil
}

func (r *pushRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.names)
}

func (r *pushRecorder) last() (string, string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.names) == 0 {
		return "", ""
	}
	return r.names[len(r.names)-1], r.bodies[len(r.bodies)-1]
}

func watchProject(t *testing.T) (*config.Project, string) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "guide.md")
	if err := os.WriteFile(path, []byte("# guide\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	proj := &config.Project{
		Name: "docs",
		Dir:  dir,
		Documents: []config.TrackedDocument{
			{Name: "guide", RemoteID: "1", LocalPath: "guide.md", AccessMode: config.ReadWrite},
			{Name: "readme", RemoteID: "2", LocalPath: "readme.md", AccessMode: config.ReadOnly},
		},
	}
	return proj, path
}

func testConfig(debounce, quiet time.Duration) *Config {
	return &Config{
		DebounceInterval: debounce,
		QuietAfterPush:   quiet,
		Logger:           log.New(io.Discard, "", 0),
	}
}

// startDaemon runs the daemon in the background and returns a stop
// function that shuts it down and waits for Start to return.
func startDaemon(t *testing.T, d *Daemon) func() {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Start(ctx) }()
	time.Sleep(100 * time.Millisecond)

	stopped := false
	stop := func() {
		if stopped {
			return
		}
		stopped = true
		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("daemon exited with %v", err)
			}
		case <-time.After(2 * time.Second):
			t.Error("daemon did not stop in time")
		}
	}
	t.Cleanup(stop)
	return stop
}

func waitForPushes(t *testing.T, rec *pushRecorder, n int) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if rec.count() >= n {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d pushes, saw %d", n, rec.count())
}

func TestNewRequiresWritableDocuments(t *testing.T) {
	proj := &config.Project{
		Name: "docs",
		Dir:  t.TempDir(),
		Documents: []config.TrackedDocument{
			{Name: "readme", RemoteID: "2", LocalPath: "readme.md", AccessMode: config.ReadOnly},
		},
	}
	rec := &pushRecorder{}
	if _, err := New(proj, rec.push, testConfig(time.Second, time.Second)); err == nil {
		t.Error("a project without read-write documents should be rejected")
	}
}

func TestDaemonPushesAfterDebounce(t *testing.T) {
	proj, path := watchProject(t)
	rec := &pushRecorder{}

	d, err := New(proj, rec.push, testConfig(50*time.Millisecond, 300*time.Millisecond))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	startDaemon(t, d)

	if err := os.WriteFile(path, []byte("# edited locally\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	waitForPushes(t, rec, 1)
	name, body := rec.last()
	if name != "guide" {
		t.Errorf("pushed document = %q", name)
	}
	if body != "# edited locally\n" {
		t.Errorf("pushed content = %q", body)
	}
}

func TestDaemonCoalescesBursts(t *testing.T) {
	proj, path := watchProject(t)
	rec := &pushRecorder{}

	d, err := New(proj, rec.push, testConfig(150*time.Millisecond, 5*time.Second))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	startDaemon(t, d)

	for _, body := range []string{"# one\n", "# two\n", "# three\n"} {
		if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
		time.Sleep(10 * time.Millisecond)
	}

	waitForPushes(t, rec, 1)
	time.Sleep(400 * time.Millisecond)

	if got := rec.count(); got != 1 {
		t.Errorf("pushes = %d, want the burst coalesced into 1", got)
	}
	if _, body := rec.last(); body != "# three\n" {
		t.Errorf("pushed content = %q, want the final write", body)
	}
}

func TestDaemonIgnoresRefreshEcho(t *testing.T) {
	proj, path := watchProject(t)
	rec := &pushRecorder{}
	rec.onPush = func() {
		// The push reconciler re-pulls and rewrites the local file.
		os.WriteFile(path, []byte("# refreshed from remote\n"), 0o644)
	}

	d, err := New(proj, rec.push, testConfig(50*time.Millisecond, time.Second))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	startDaemon(t, d)

	if err := os.WriteFile(path, []byte("# local edit\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	waitForPushes(t, rec, 1)
	time.Sleep(500 * time.Millisecond)
	if got := rec.count(); got != 1 {
		t.Fatalf("pushes = %d, the refresh rewrite must not trigger another push", got)
	}

	// A real edit after the quiet window still goes through.
	time.Sleep(700 * time.Millisecond)
	if err := os.WriteFile(path, []byte("# later edit\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	waitForPushes(t, rec, 2)
	if _, body := rec.last(); body != "# later edit\n" {
		t.Errorf("pushed content = %q", body)
	}
}

func TestDaemonSkipsVanishedFile(t *testing.T) {
	proj, path := watchProject(t)
	rec := &pushRecorder{}

	d, err := New(proj, rec.push, testConfig(200*time.Millisecond, time.Second))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	startDaemon(t, d)

	if err := os.WriteFile(path, []byte("# edited\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}

	time.Sleep(600 * time.Millisecond)
	if got := rec.count(); got != 0 {
		t.Errorf("pushes = %d, want none for a vanished file", got)
	}
}
