package sync

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	stdsync "sync"
	"time"

	"github.com/confhub/confsync/internal/config"
	"github.com/confhub/confsync/internal/state"
)

// PullerConfig carries the optional pieces of a Puller. The zero value is
// usable; NewPuller fills in the worker count and logger.
type PullerConfig struct {
	// Workers bounds concurrent document fetches across the whole pass.
	Workers int
	// Convert transforms fetched content before it is written. nil writes
	// content as received.
	Convert ConvertFunc
	// Journal receives one entry per visited document when set.
	Journal *state.Journal
	// Events receives progress notifications when set.
	Events EventSink
	Logger *log.Logger
}

// DefaultPullerConfig returns the default puller settings.
func DefaultPullerConfig() PullerConfig {
	return PullerConfig{Workers: 4}
}

// Puller walks configured document trees and materializes them locally.
type Puller struct {
	gw      Gateway
	store   state.Store
	journal *state.Journal
	convert ConvertFunc
	events  EventSink
	logger  *log.Logger
	sem     chan struct{}
}

// NewPuller creates a Puller backed by the given gateway and sync record
// store.
func NewPuller(gw Gateway, store state.Store, cfg PullerConfig) *Puller {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultPullerConfig().Workers
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "[sync] ", log.LstdFlags)
	}
	return &Puller{
		gw:      gw,
		store:   store,
		journal: cfg.Journal,
		convert: cfg.Convert,
		events:  cfg.Events,
		logger:  logger,
		sem:     make(chan struct{}, cfg.Workers),
	}
}

// Sync pulls the selected document trees of proj. An empty selector pulls
// every configured root; otherwise selector names a single root. force
// rematerializes documents even when the recorded version matches the
// remote one.
//
// Per-document failures are recorded in the report rather than returned;
// the only errors are an unknown selector or a canceled context.
func (p *Puller) Sync(ctx context.Context, proj *config.Project, selector string, force bool) (*Report, error) {
	roots := proj.Documents
	if selector != "" {
		doc, ok := proj.Document(selector)
		if !ok {
			return nil, fmt.Errorf("pull %q: %w", selector, ErrUnknownDocument)
		}
		roots = []config.TrackedDocument{doc}
	}

	rep := newReport()
	pass := &pullPass{p: p, proj: proj, force: force, rep: rep}

	var wg stdsync.WaitGroup
	for _, root := range roots {
		wg.Add(1)
		go func(root config.TrackedDocument) {
			defer wg.Done()
			pass.syncTree(ctx, root)
		}(root)
	}
	wg.Wait()

	rep.finish()
	rep.SortByPath()
	if p.events != nil {
		p.events.PassCompleted(rep)
	}
	p.logger.Printf("pull finished in %s: %s", rep.Duration.Round(time.Millisecond), rep.Summary())
	if err := ctx.Err(); err != nil {
		return rep, err
	}
	return rep, nil
}

// fetchDocument performs one gateway fetch under the worker semaphore.
// The semaphore covers only the fetch, never a whole subtree, so deep
// trees cannot deadlock the pool.
func (p *Puller) fetchDocument(ctx context.Context, id string) (*Document, error) {
	select {
	case p.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-p.sem }()
	return p.gw.GetDocument(ctx, id)
}

// pullPass holds the per-pass state shared by the tree walk.
type pullPass struct {
	p     *Puller
	proj  *config.Project
	force bool
	rep   *Report
}

func (pp *pullPass) syncTree(ctx context.Context, root config.TrackedDocument) {
	doc, err := pp.p.fetchDocument(ctx, root.RemoteID)
	if err != nil {
		pp.record(Result{
			Root:     root.Name,
			RemoteID: root.RemoteID,
			Path:     root.LocalPath,
			Outcome:  OutcomeFailed,
			Err:      fmt.Errorf("fetch %s: %w", root.RemoteID, err),
		})
		return
	}
	pp.syncNode(ctx, root, doc, root.LocalPath)
}

// syncNode materializes one document when needed, then walks its children.
// A failure here still lets the children sync; only an unfetchable
// document ends its subtree.
func (pp *pullPass) syncNode(ctx context.Context, root config.TrackedDocument, doc *Document, path string) {
	if ctx.Err() != nil {
		return
	}

	res := Result{Root: root.Name, RemoteID: doc.ID, Title: doc.Title, Path: path, Version: doc.Version}

	rec, known, err := pp.p.store.Get(ctx, doc.ID)
	if err != nil {
		res.Outcome = OutcomeFailed
		res.Err = fmt.Errorf("read sync record %s: %w", doc.ID, err)
		pp.record(res)
	} else {
		switch {
		case !known:
			res.Outcome = OutcomeCreated
		case pp.force || rec.Version != doc.Version:
			res.Outcome = OutcomeUpdated
		default:
			res.Outcome = OutcomeSkipped
		}
		if res.Outcome != OutcomeSkipped {
			if err := pp.materialize(ctx, root, doc, path); err != nil {
				res.Outcome = OutcomeFailed
				res.Err = err
			} else if err := pp.p.store.Put(ctx, doc.ID, state.Record{
				Version:   doc.Version,
				SyncedAt:  time.Now().UTC(),
				LocalPath: path,
			}); err != nil {
				res.Outcome = OutcomeFailed
				res.Err = fmt.Errorf("record sync %s: %w", doc.ID, err)
			}
		}
		pp.record(res)
	}

	if root.SyncChildren && len(doc.ChildIDs) > 0 {
		pp.syncChildren(ctx, root, doc, path)
	}
}

// syncChildren fetches every child concurrently, computes their paths
// from the full sibling set, then recurses into each. Paths need the
// whole set at once so slug collisions resolve the same way every pass.
func (pp *pullPass) syncChildren(ctx context.Context, root config.TrackedDocument, parent *Document, parentPath string) {
	var (
		wg   stdsync.WaitGroup
		mu   stdsync.Mutex
		docs []*Document
	)
	for _, id := range parent.ChildIDs {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			doc, err := pp.p.fetchDocument(ctx, id)
			if err != nil {
				pp.record(Result{
					Root:     root.Name,
					RemoteID: id,
					Outcome:  OutcomeFailed,
					Err:      fmt.Errorf("fetch %s: %w", id, err),
				})
				return
			}
			mu.Lock()
			docs = append(docs, doc)
			mu.Unlock()
		}(id)
	}
	wg.Wait()

	refs := make([]ChildRef, len(docs))
	for i, d := range docs {
		refs[i] = ChildRef{ID: d.ID, Title: d.Title}
	}
	paths := ChildPaths(parentPath, refs)

	var nodes stdsync.WaitGroup
	for _, d := range docs {
		nodes.Add(1)
		go func(d *Document) {
			defer nodes.Done()
			pp.syncNode(ctx, root, d, paths[d.ID])
		}(d)
	}
	nodes.Wait()
}

// materialize converts and writes the document file, then downloads its
// attachments. Attachments download sequentially; the fetch pool is for
// documents.
func (pp *pullPass) materialize(ctx context.Context, root config.TrackedDocument, doc *Document, path string) error {
	content := doc.Content
	if pp.p.convert != nil {
		converted, err := pp.p.convert(content, doc.ID)
		if err != nil {
			return fmt.Errorf("convert %s: %w", doc.ID, err)
		}
		content = converted
	}
	if content != "" && !strings.HasSuffix(content, "\n") {
		content += "\n"
	}

	abs := filepath.Join(pp.proj.Dir, path)
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return &LocalIOError{Path: path, Err: err}
	}
	if err := writeFileAtomic(abs, []byte(content)); err != nil {
		return &LocalIOError{Path: path, Err: err}
	}

	if !root.SyncAttachments || len(doc.Attachments) == 0 {
		return nil
	}
	assetsRel := AssetsDir(path)
	assetsAbs := filepath.Join(pp.proj.Dir, assetsRel)
	if err := os.MkdirAll(assetsAbs, 0o755); err != nil {
		return &LocalIOError{Path: assetsRel, Err: err}
	}
	for _, att := range doc.Attachments {
		if err := ctx.Err(); err != nil {
			return err
		}
		data, err := pp.p.gw.GetAttachment(ctx, doc.ID, att.ID)
		if err != nil {
			return fmt.Errorf("attachment %q (%s): %w", att.Filename, att.ID, err)
		}
		name := AssetName(doc.ID, att.Filename)
		if err := writeFileAtomic(filepath.Join(assetsAbs, name), data); err != nil {
			return &LocalIOError{Path: filepath.Join(assetsRel, name), Err: err}
		}
	}
	return nil
}

// record appends the result to the report and mirrors it to the logger,
// journal, and event sink.
func (pp *pullPass) record(res Result) {
	pp.rep.add(res)

	switch res.Outcome {
	case OutcomeFailed:
		pp.p.logger.Printf("failed %s (%s): %v", res.Path, res.RemoteID, res.Err)
	case OutcomeSkipped:
	default:
		pp.p.logger.Printf("%s %s (v%d)", res.Outcome, res.Path, res.Version)
	}

	if pp.p.journal != nil {
		entry := state.JournalEntry{
			Time:     time.Now().UTC(),
			Op:       "pull",
			Project:  pp.proj.Name,
			Root:     res.Root,
			RemoteID: res.RemoteID,
			Path:     res.Path,
			Version:  res.Version,
			Outcome:  string(res.Outcome),
		}
		if res.Err != nil {
			entry.Error = res.Err.Error()
		}
		if err := pp.p.journal.Append(entry); err != nil {
			pp.p.logger.Printf("journal append: %v", err)
		}
	}
	if pp.p.events != nil {
		pp.p.events.DocumentSynced(res)
	}
}

// writeFileAtomic writes data to a temp file next to path and renames it
// into place, so readers never observe a partial write.
func writeFileAtomic(path string, data []byte) error {
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	return nil
}
