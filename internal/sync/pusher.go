package sync

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/confhub/confsync/internal/config"
	"github.com/confhub/confsync/internal/state"
)

// Pusher uploads local edits to the remote store and re-pulls the
// affected tree afterwards, so the local mirror reflects what the server
// actually stored rather than the bytes that were submitted.
type Pusher struct {
	gw     Gateway
	puller *Puller
	events EventSink
	logger *log.Logger
}

// NewPusher creates a Pusher that refreshes through the given Puller
// after each successful update.
func NewPusher(gw Gateway, puller *Puller, events EventSink, logger *log.Logger) *Pusher {
	if logger == nil {
		logger = log.New(os.Stderr, "[push] ", log.LstdFlags)
	}
	return &Pusher{gw: gw, puller: puller, events: events, logger: logger}
}

// PushResult describes a completed push.
type PushResult struct {
	Root       string
	RemoteID   string
	OldVersion int // remote version observed just before the update
	NewVersion int // version assigned by the remote for the update

	// Refresh holds the report of the forced re-pull that follows a
	// successful update. RefreshErr is set when that re-pull could not
	// run; the push itself still succeeded.
	Refresh    *Report
	RefreshErr error
}

// Push submits content as the new body of the named document, then pulls
// the document's subtree with force so local files and sync records match
// the server-assigned version.
//
// The name must resolve to a configured root with read-write access; the
// access check happens before any gateway call. Pushing empty content is
// refused. On gateway failure no local state is touched and the error is
// returned unchanged apart from wrapping.
func (p *Pusher) Push(ctx context.Context, proj *config.Project, name, content string) (*PushResult, error) {
	doc, ok := proj.Document(name)
	if !ok {
		return nil, fmt.Errorf("push %q: %w", name, ErrUnknownDocument)
	}
	if doc.AccessMode != config.ReadWrite {
		return nil, fmt.Errorf("push %q (access mode %s): %w", name, doc.AccessMode, ErrAccessDenied)
	}
	if strings.TrimSpace(content) == "" {
		return nil, fmt.Errorf("push %q: %w", name, ErrEmptyContent)
	}

	// Best-effort freshness check right before the update. This narrows,
	// but cannot close, the window for a lost concurrent edit; the
	// remote rejects with a version conflict when it detects one.
	remote, err := p.gw.GetDocument(ctx, doc.RemoteID)
	if err != nil {
		return nil, fmt.Errorf("fetch %s before push: %w", doc.RemoteID, err)
	}

	newVersion, err := p.gw.UpdateDocument(ctx, doc.RemoteID, content)
	if err != nil {
		return nil, fmt.Errorf("update %s: %w", doc.RemoteID, err)
	}
	p.logger.Printf("pushed %s (%s): v%d -> v%d", name, doc.RemoteID, remote.Version, newVersion)

	res := &PushResult{
		Root:       name,
		RemoteID:   doc.RemoteID,
		OldVersion: remote.Version,
		NewVersion: newVersion,
	}
	p.journal(proj, res)
	if p.events != nil {
		p.events.PushCompleted(res)
	}

	// Pull back what the server stored instead of trusting the pushed
	// bytes. A refresh failure is reported on the result, not as a push
	// error: the update itself is already committed remotely.
	rep, err := p.puller.Sync(ctx, proj, name, true)
	res.Refresh = rep
	switch {
	case err != nil:
		res.RefreshErr = fmt.Errorf("refresh after push: %w", err)
	case !rep.OK():
		res.RefreshErr = fmt.Errorf("refresh after push: %s", rep.Summary())
	}
	if res.RefreshErr != nil {
		p.logger.Printf("%s: local mirror may be stale, rerun pull: %v", name, res.RefreshErr)
	}
	return res, nil
}

func (p *Pusher) journal(proj *config.Project, res *PushResult) {
	if p.puller.journal == nil {
		return
	}
	entry := state.JournalEntry{
		Time:     time.Now().UTC(),
		Op:       "push",
		Project:  proj.Name,
		Root:     res.Root,
		RemoteID: res.RemoteID,
		Version:  res.NewVersion,
		Outcome:  "pushed",
	}
	if err := p.puller.journal.Append(entry); err != nil {
		p.logger.Printf("journal append: %v", err)
	}
}
